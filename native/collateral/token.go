package collateral

import (
	"math/big"

	"stablemint/crypto"
)

// CollateralToken is the opaque transfer capability backing a collateral
// asset. The engine never implements a token ledger for collateral: it only
// records claims against tokens the external implementation holds.
type CollateralToken interface {
	// Transfer moves amount between principals. The engine is assumed to be
	// authorised to move funds out of the payer when it orchestrates an
	// operation on the payer's behalf.
	Transfer(from, to crypto.Address, amount *big.Int) error
}

// DebtToken is the mintable/burnable synthetic-dollar token. Mint and Burn are
// restricted to an engine-held exclusive authority by the implementation.
type DebtToken interface {
	Transfer(from, to crypto.Address, amount *big.Int) error
	// Mint credits freshly issued debt tokens to the recipient.
	Mint(to crypto.Address, amount *big.Int) error
	// Burn destroys amount from the engine's own held balance.
	Burn(amount *big.Int) error
}

// tokenStep is one external token call together with its compensating call.
// Operations sequence their external calls as steps so that a failure midway
// unwinds everything already executed before the error surfaces; irreversible
// steps (mint, burn) are always scheduled last so they never need an undo.
type tokenStep struct {
	do   func() error
	undo func() error
}

func runTokenSteps(steps []tokenStep) error {
	done := make([]tokenStep, 0, len(steps))
	for _, step := range steps {
		if err := step.do(); err != nil {
			for i := len(done) - 1; i >= 0; i-- {
				if done[i].undo != nil {
					_ = done[i].undo()
				}
			}
			return err
		}
		done = append(done, step)
	}
	return nil
}
