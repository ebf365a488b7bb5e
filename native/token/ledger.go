package token

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"stablemint/crypto"
)

var (
	ErrInvalidAmount     = errors.New("token: amount must be positive")
	ErrInsufficientFunds = errors.New("token: insufficient balance")
	ErrNotMintable       = errors.New("token: mint and burn not enabled")
)

// Ledger is an in-memory fungible token. It backs both collateral assets and
// the synthetic-dollar debt token for the daemon and tests; the accounting
// engine only ever sees it through its collaborator interfaces.
type Ledger struct {
	mu        sync.RWMutex
	symbol    string
	mintable  bool
	authority crypto.Address
	balances  map[string]*big.Int
	supply    *big.Int
}

// NewAsset constructs a plain transferable token.
func NewAsset(symbol string) *Ledger {
	return &Ledger{
		symbol:   strings.ToUpper(strings.TrimSpace(symbol)),
		balances: make(map[string]*big.Int),
		supply:   big.NewInt(0),
	}
}

// NewMintable constructs a token whose supply is controlled by a single
// authority: only mints credited by the engine and burns of the authority's
// own held balance change the supply.
func NewMintable(symbol string, authority crypto.Address) *Ledger {
	ledger := NewAsset(symbol)
	ledger.mintable = true
	ledger.authority = authority
	return ledger
}

// Symbol returns the token identifier.
func (l *Ledger) Symbol() string { return l.symbol }

func balanceKey(addr crypto.Address) string { return string(addr.Bytes()) }

func (l *Ledger) balance(addr crypto.Address) *big.Int {
	if b, ok := l.balances[balanceKey(addr)]; ok && b != nil {
		return b
	}
	return big.NewInt(0)
}

// Transfer moves amount between principals.
func (l *Ledger) Transfer(from, to crypto.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	fromBal := l.balance(from)
	if fromBal.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s has %s, needs %s", ErrInsufficientFunds, from, fromBal, amount)
	}
	l.balances[balanceKey(from)] = new(big.Int).Sub(fromBal, amount)
	l.balances[balanceKey(to)] = new(big.Int).Add(l.balance(to), amount)
	return nil
}

// Mint credits freshly issued tokens to the recipient.
func (l *Ledger) Mint(to crypto.Address, amount *big.Int) error {
	if !l.mintable {
		return ErrNotMintable
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[balanceKey(to)] = new(big.Int).Add(l.balance(to), amount)
	l.supply = new(big.Int).Add(l.supply, amount)
	return nil
}

// Burn destroys amount from the authority's own held balance.
func (l *Ledger) Burn(amount *big.Int) error {
	if !l.mintable {
		return ErrNotMintable
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	held := l.balance(l.authority)
	if held.Cmp(amount) < 0 {
		return fmt.Errorf("%w: authority holds %s, burning %s", ErrInsufficientFunds, held, amount)
	}
	l.balances[balanceKey(l.authority)] = new(big.Int).Sub(held, amount)
	l.supply = new(big.Int).Sub(l.supply, amount)
	return nil
}

// Credit funds a principal directly, bypassing transfer checks. Used to seed
// balances at bootstrap; the credited amount counts towards the supply.
func (l *Ledger) Credit(to crypto.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[balanceKey(to)] = new(big.Int).Add(l.balance(to), amount)
	l.supply = new(big.Int).Add(l.supply, amount)
	return nil
}

// BalanceOf reports the current balance for the principal.
func (l *Ledger) BalanceOf(addr crypto.Address) *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return new(big.Int).Set(l.balance(addr))
}

// TotalSupply reports the outstanding token supply.
func (l *Ledger) TotalSupply() *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return new(big.Int).Set(l.supply)
}
