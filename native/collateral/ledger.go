package collateral

import (
	"math/big"

	"stablemint/crypto"
)

// ledger holds every recorded position. It is exclusively owned and mutated
// by the Engine: reads hand out deep copies and writes happen only through
// commit, so an aborted operation can never leave a half-applied position
// behind.
type ledger struct {
	positions map[string]*Position
}

func newLedger() *ledger {
	return &ledger{positions: make(map[string]*Position)}
}

func ledgerKey(addr crypto.Address) string {
	return string(addr.Bytes())
}

// position returns a deep copy of the account's position with all fields
// initialised. Accounts are implicit, so unknown addresses yield an empty
// position rather than an error.
func (l *ledger) position(addr crypto.Address) *Position {
	stored, ok := l.positions[ledgerKey(addr)]
	if !ok {
		return &Position{
			Address:    addr,
			Collateral: make(map[string]*big.Int),
			Debt:       big.NewInt(0),
		}
	}
	clone := stored.Clone()
	if clone.Collateral == nil {
		clone.Collateral = make(map[string]*big.Int)
	}
	if clone.Debt == nil {
		clone.Debt = big.NewInt(0)
	}
	return clone
}

// commit stores a deep copy of the staged position, pruning zeroed collateral
// entries so iteration stays proportional to live balances.
func (l *ledger) commit(pos *Position) {
	if pos == nil {
		return
	}
	clone := pos.Clone()
	if clone.Collateral != nil {
		for symbol, amount := range clone.Collateral {
			if amount == nil || amount.Sign() == 0 {
				delete(clone.Collateral, symbol)
			}
		}
	}
	l.positions[ledgerKey(pos.Address)] = clone
}
