package collateral

import (
	"fmt"
	"math/big"
	"time"
)

// MinHealthFactor is the wad-scaled parity value: positions at or above it are
// solvent, positions below it are eligible for liquidation.
var MinHealthFactor = new(big.Int).Set(wad)

// MaxHealthFactor is the sentinel health factor reported for debt-free
// positions.
func MaxHealthFactor() *big.Int {
	return new(big.Int).Set(maxHealthFactor)
}

// RiskParameters groups the protocol safety constants. Values are expressed in
// basis points the same way the rest of the module reasons about ratios.
type RiskParameters struct {
	// LiquidationThresholdBps discounts collateral value before the health
	// factor is computed. 5_000 means only half of the collateral value
	// counts, i.e. a 200% overcollateralization target.
	LiquidationThresholdBps uint64
	// LiquidationBonusBps is the liquidator incentive paid out of the
	// liquidated position's remaining collateral.
	LiquidationBonusBps uint64
	// MaxPriceAge bounds how old an oracle quote may be before every
	// valuation-dependent operation is rejected.
	MaxPriceAge time.Duration
}

// DefaultRiskParameters returns the protocol defaults: 200% target
// collateralization, 10% liquidation bonus, 3 hour price staleness window.
func DefaultRiskParameters() RiskParameters {
	return RiskParameters{
		LiquidationThresholdBps: 5_000,
		LiquidationBonusBps:     1_000,
		MaxPriceAge:             3 * time.Hour,
	}
}

// Validate rejects parameter combinations the engine cannot operate under.
func (p RiskParameters) Validate() error {
	if p.LiquidationThresholdBps == 0 || p.LiquidationThresholdBps > 10_000 {
		return fmt.Errorf("collateral engine: liquidation threshold %d bps out of range (0, 10000]", p.LiquidationThresholdBps)
	}
	if p.LiquidationBonusBps >= 10_000 {
		return fmt.Errorf("collateral engine: liquidation bonus %d bps must be below 10000", p.LiquidationBonusBps)
	}
	if p.MaxPriceAge <= 0 {
		return fmt.Errorf("collateral engine: max price age must be positive")
	}
	return nil
}
