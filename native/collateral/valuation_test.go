package collateral

import (
	"errors"
	"math/big"
	"testing"
	"time"
)

func newTestValuator(t *testing.T, oracle PriceOracle) *Valuator {
	t.Helper()
	v, err := NewValuator(oracle, 3*time.Hour, []Asset{
		{Symbol: "WETH", Decimals: 18},
		{Symbol: "WBTC", Decimals: 8},
	})
	if err != nil {
		t.Fatalf("new valuator: %v", err)
	}
	return v
}

func TestNewValuatorRejectsBadAssetSets(t *testing.T) {
	oracle := NewManualOracle()
	if _, err := NewValuator(nil, time.Hour, []Asset{{Symbol: "WETH", Decimals: 18}}); err == nil {
		t.Fatal("nil oracle accepted")
	}
	if _, err := NewValuator(oracle, time.Hour, nil); err == nil {
		t.Fatal("empty asset set accepted")
	}
	if _, err := NewValuator(oracle, time.Hour, []Asset{{Symbol: " ", Decimals: 18}}); err == nil {
		t.Fatal("blank symbol accepted")
	}
	if _, err := NewValuator(oracle, time.Hour, []Asset{
		{Symbol: "WETH", Decimals: 18},
		{Symbol: "weth", Decimals: 18},
	}); err == nil {
		t.Fatal("duplicate symbol accepted")
	}
}

func TestUSDValueNormalizesDecimals(t *testing.T) {
	oracle := NewManualOracle()
	now := time.Unix(1_700_000_000, 0)
	oracle.Set("WETH", big.NewInt(2_000e8), 8, now)
	oracle.Set("WBTC", big.NewInt(45_000e8), 8, now)
	v := newTestValuator(t, oracle)
	v.now = func() time.Time { return now }

	// 1 WETH in 18-decimal units.
	got, err := v.USDValue("WETH", wadAmount(1))
	if err != nil {
		t.Fatalf("usd value weth: %v", err)
	}
	if want := wadAmount(2_000); got.Cmp(want) != 0 {
		t.Fatalf("1 WETH = %s USD, want %s", got, want)
	}

	// 1 WBTC in 8-decimal units.
	got, err = v.USDValue("WBTC", big.NewInt(1e8))
	if err != nil {
		t.Fatalf("usd value wbtc: %v", err)
	}
	if want := wadAmount(45_000); got.Cmp(want) != 0 {
		t.Fatalf("1 WBTC = %s USD, want %s", got, want)
	}

	// Zero amounts never touch the oracle scaling.
	got, err = v.USDValue("WETH", big.NewInt(0))
	if err != nil {
		t.Fatalf("usd value zero: %v", err)
	}
	if got.Sign() != 0 {
		t.Fatalf("zero amount valued at %s", got)
	}

	if _, err := v.USDValue("WETH", big.NewInt(-1)); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("negative amount: expected ErrInvalidAmount, got %v", err)
	}
	if _, err := v.USDValue("DOGE", wadAmount(1)); !errors.Is(err, ErrUnsupportedAsset) {
		t.Fatalf("unknown asset: expected ErrUnsupportedAsset, got %v", err)
	}
}

func TestAssetAmountForUSDInvertsWithinOneUnit(t *testing.T) {
	oracle := NewManualOracle()
	now := time.Unix(1_700_000_000, 0)
	oracle.Set("WETH", big.NewInt(1_777e8), 8, now)
	oracle.Set("WBTC", big.NewInt(45_123e8), 8, now)
	v := newTestValuator(t, oracle)
	v.now = func() time.Time { return now }

	for _, tc := range []struct {
		symbol string
		amount *big.Int
	}{
		{"WETH", wadAmount(3)},
		{"WETH", mustBigInt("123456789012345678")},
		{"WBTC", big.NewInt(1e8)},
		{"WBTC", big.NewInt(222_222)},
	} {
		usd, err := v.USDValue(tc.symbol, tc.amount)
		if err != nil {
			t.Fatalf("%s usd value: %v", tc.symbol, err)
		}
		back, err := v.AssetAmountForUSD(tc.symbol, usd)
		if err != nil {
			t.Fatalf("%s inverse: %v", tc.symbol, err)
		}
		diff := new(big.Int).Sub(tc.amount, back)
		if diff.Sign() < 0 || diff.Cmp(big.NewInt(1)) > 0 {
			t.Fatalf("%s round trip: %s -> %s USD -> %s", tc.symbol, tc.amount, usd, back)
		}
	}
}

func TestFreshPriceRejectsStaleAndInvalidQuotes(t *testing.T) {
	oracle := NewManualOracle()
	now := time.Unix(1_700_000_000, 0)
	v := newTestValuator(t, oracle)
	v.now = func() time.Time { return now }

	oracle.Set("WETH", big.NewInt(2_000e8), 8, now.Add(-3*time.Hour-time.Second))
	if _, err := v.USDValue("WETH", wadAmount(1)); !errors.Is(err, ErrStalePrice) {
		t.Fatalf("stale quote: expected ErrStalePrice, got %v", err)
	}

	// Exactly at the window boundary is still acceptable.
	oracle.Set("WETH", big.NewInt(2_000e8), 8, now.Add(-3*time.Hour))
	if _, err := v.USDValue("WETH", wadAmount(1)); err != nil {
		t.Fatalf("boundary quote rejected: %v", err)
	}

	oracle.Set("WBTC", big.NewInt(0), 8, now)
	if _, err := v.USDValue("WBTC", big.NewInt(1e8)); !errors.Is(err, ErrInvalidPrice) {
		t.Fatalf("zero price: expected ErrInvalidPrice, got %v", err)
	}
}

func TestTotalCollateralUSDSumsHeldAssets(t *testing.T) {
	oracle := NewManualOracle()
	now := time.Unix(1_700_000_000, 0)
	oracle.Set("WETH", big.NewInt(2_000e8), 8, now)
	oracle.Set("WBTC", big.NewInt(45_000e8), 8, now)
	v := newTestValuator(t, oracle)
	v.now = func() time.Time { return now }

	pos := &Position{
		Address: makeAddress(0x10),
		Collateral: map[string]*big.Int{
			"WETH": wadAmount(2),
			"WBTC": big.NewInt(5e7), // half a WBTC
		},
		Debt: big.NewInt(0),
	}
	total, err := v.TotalCollateralUSD(pos)
	if err != nil {
		t.Fatalf("total: %v", err)
	}
	if want := wadAmount(26_500); total.Cmp(want) != 0 {
		t.Fatalf("total = %s, want %s", total, want)
	}

	// Nil and empty positions value to zero without oracle reads.
	total, err = v.TotalCollateralUSD(nil)
	if err != nil || total.Sign() != 0 {
		t.Fatalf("nil position: total %s err %v", total, err)
	}
	empty := &Position{Address: makeAddress(0x11), Collateral: map[string]*big.Int{"WETH": big.NewInt(0)}}
	total, err = v.TotalCollateralUSD(empty)
	if err != nil || total.Sign() != 0 {
		t.Fatalf("empty position: total %s err %v", total, err)
	}
}
