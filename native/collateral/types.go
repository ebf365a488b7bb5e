package collateral

import (
	"math/big"
	"strings"

	"stablemint/crypto"
)

// Asset describes a supported collateral type. The supported set is fixed at
// engine construction; every asset is bound to exactly one price feed and one
// transferable token.
type Asset struct {
	// Symbol is the canonical upper-case identifier, e.g. "WETH".
	Symbol string
	// Decimals is the token's native precision. Collateral amounts are
	// recorded in these units.
	Decimals uint8
}

// NormalizeSymbol renders an asset symbol in its canonical form.
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// Position maintains the collateral and debt bookkeeping for a single
// principal. Accounts are implicit: a position exists the moment any balance
// is non-zero.
type Position struct {
	// Address is the principal that owns the position.
	Address crypto.Address
	// Collateral maps asset symbol to the deposited amount in the asset's
	// native decimals. Amounts never go negative.
	Collateral map[string]*big.Int
	// Debt is the outstanding minted synthetic-dollar amount in wad units.
	Debt *big.Int
}

// Clone returns a deep copy of the position.
func (p *Position) Clone() *Position {
	if p == nil {
		return nil
	}
	clone := &Position{Address: p.Address}
	if p.Collateral != nil {
		clone.Collateral = make(map[string]*big.Int, len(p.Collateral))
		for symbol, amount := range p.Collateral {
			if amount != nil {
				clone.Collateral[symbol] = new(big.Int).Set(amount)
			}
		}
	}
	if p.Debt != nil {
		clone.Debt = new(big.Int).Set(p.Debt)
	}
	return clone
}

// CollateralAmount returns the recorded balance for the given symbol. Missing
// entries read as zero.
func (p *Position) CollateralAmount(symbol string) *big.Int {
	if p == nil || p.Collateral == nil {
		return big.NewInt(0)
	}
	amount, ok := p.Collateral[NormalizeSymbol(symbol)]
	if !ok || amount == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(amount)
}

// AccountInfo is the read-only view of a position exposed to callers.
type AccountInfo struct {
	Address       crypto.Address
	CollateralUSD *big.Int
	Debt          *big.Int
	HealthFactor  *big.Int
}
