package collateral

import "math/big"

// SolvencyGuard computes health factors and enforces the minimum after every
// mutating operation. It is a pure function of a position snapshot plus the
// valuator's oracle reads; it holds no state of its own.
type SolvencyGuard struct {
	valuator     *Valuator
	thresholdBps uint64
}

// NewSolvencyGuard constructs the guard with the fixed liquidation threshold.
func NewSolvencyGuard(valuator *Valuator, thresholdBps uint64) *SolvencyGuard {
	return &SolvencyGuard{valuator: valuator, thresholdBps: thresholdBps}
}

// HealthFactor returns the wad-scaled health factor for the position:
// collateralUsd * threshold / debt. Positions with no debt report the maximal
// sentinel instead of dividing by zero.
func (g *SolvencyGuard) HealthFactor(pos *Position) (*big.Int, error) {
	if pos == nil || pos.Debt == nil || pos.Debt.Sign() == 0 {
		return MaxHealthFactor(), nil
	}
	collateralUSD, err := g.valuator.TotalCollateralUSD(pos)
	if err != nil {
		return nil, err
	}
	adjusted := bpsShare(collateralUSD, g.thresholdBps)
	return mulDiv(adjusted, wad, pos.Debt), nil
}

// AssertSolvent fails with HealthFactorBrokenError when the position sits
// below the minimum health factor.
func (g *SolvencyGuard) AssertSolvent(pos *Position) error {
	hf, err := g.HealthFactor(pos)
	if err != nil {
		return err
	}
	if hf.Cmp(MinHealthFactor) < 0 {
		return &HealthFactorBrokenError{Current: hf}
	}
	return nil
}
