package collateral

import (
	"errors"
	"fmt"
	"math/big"
)

var (
	errNilEngine              = errors.New("collateral engine: engine not configured")
	ErrInvalidAmount          = errors.New("collateral engine: amount must be positive")
	ErrUnsupportedAsset       = errors.New("collateral engine: asset not supported")
	ErrTransferFailed         = errors.New("collateral engine: token transfer failed")
	ErrMintFailed             = errors.New("collateral engine: debt token mint failed")
	ErrInsufficientCollateral = errors.New("collateral engine: insufficient collateral balance")
	ErrNoDebt                 = errors.New("collateral engine: repayment exceeds outstanding debt")
	ErrStalePrice             = errors.New("collateral engine: oracle price is stale")
	ErrInvalidPrice           = errors.New("collateral engine: oracle returned invalid price")
)

// HealthFactorBrokenError reports that an operation would leave the caller's
// own position below the minimum health factor. Current carries the wad-scaled
// health factor the position would end up with.
type HealthFactorBrokenError struct {
	Current *big.Int
}

func (e *HealthFactorBrokenError) Error() string {
	return fmt.Sprintf("collateral engine: health factor %s below minimum", e.Current)
}

// HealthFactorOkError reports a liquidation attempt against a position that is
// not eligible for liquidation.
type HealthFactorOkError struct {
	Current *big.Int
}

func (e *HealthFactorOkError) Error() string {
	return fmt.Sprintf("collateral engine: health factor %s is not below minimum, position not liquidatable", e.Current)
}

// HealthFactorNotImprovedError reports a liquidation whose outcome would not
// strictly improve the target's health factor. The whole liquidation is
// discarded when this is returned.
type HealthFactorNotImprovedError struct {
	Start *big.Int
	End   *big.Int
}

func (e *HealthFactorNotImprovedError) Error() string {
	return fmt.Sprintf("collateral engine: health factor not improved, start %s end %s", e.Start, e.End)
}
