package collateral

import (
	"errors"
	"math/big"
	"testing"
)

// setupUnderwaterTarget opens a position at exactly the minimum health factor
// and then drops the WETH price so it becomes liquidatable.
func setupUnderwaterTarget(t *testing.T, f *testFixture) {
	t.Helper()
	target := makeAddress(0x20)
	f.collateral["WETH"].fund(target, wadAmount(1))
	if err := f.engine.DepositCollateral(target, "WETH", wadAmount(1)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	// $2000 of collateral supports exactly $1000 of debt at a 50% threshold.
	if err := f.engine.MintDebt(target, wadAmount(1_000)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	f.oracle.Set("WETH", big.NewInt(1_800e8), 8, f.now)
}

func TestLiquidateSeizesCollateralWithBonus(t *testing.T) {
	f := newTestFixture(t)
	target := makeAddress(0x20)
	liquidator := makeAddress(0x30)
	setupUnderwaterTarget(t, f)
	f.debtToken.fund(liquidator, wadAmount(500))

	receipt, err := f.engine.Liquidate(liquidator, target, "WETH", wadAmount(500))
	if err != nil {
		t.Fatalf("liquidate: %v", err)
	}

	// $500 at $1800/WETH plus the 10% bonus.
	base := mustBigInt("277777777777777777")
	wantSeized := mustBigInt("305555555555555554")
	if receipt.CollateralSeized.Cmp(wantSeized) != 0 {
		t.Fatalf("collateral seized = %s, want %s", receipt.CollateralSeized, wantSeized)
	}
	if receipt.DebtCovered.Cmp(wadAmount(500)) != 0 {
		t.Fatalf("debt covered = %s, want %s", receipt.DebtCovered, wadAmount(500))
	}
	if want := mustBigInt("900000000000000000"); receipt.StartHealthFactor.Cmp(want) != 0 {
		t.Fatalf("start health factor = %s, want %s", receipt.StartHealthFactor, want)
	}
	if receipt.EndHealthFactor.Cmp(receipt.StartHealthFactor) <= 0 {
		t.Fatalf("end health factor %s did not improve on %s", receipt.EndHealthFactor, receipt.StartHealthFactor)
	}

	// The liquidator holds the seized collateral and no debt tokens.
	if got := f.collateral["WETH"].balance(liquidator); got.Cmp(wantSeized) != 0 {
		t.Fatalf("liquidator collateral = %s, want %s", got, wantSeized)
	}
	if got := f.debtToken.balance(liquidator); got.Sign() != 0 {
		t.Fatalf("liquidator debt balance = %s, want 0", got)
	}
	// The covered debt left circulation entirely.
	if want := wadAmount(1_000); f.debtToken.supply.Cmp(want) != 0 {
		t.Fatalf("debt supply = %s, want %s", f.debtToken.supply, want)
	}

	// Target ledger reflects the seizure and repayment.
	info, err := f.engine.AccountInfo(target)
	if err != nil {
		t.Fatalf("account info: %v", err)
	}
	if want := wadAmount(500); info.Debt.Cmp(want) != 0 {
		t.Fatalf("target debt = %s, want %s", info.Debt, want)
	}
	remaining, err := f.engine.CollateralBalance(target, "WETH")
	if err != nil {
		t.Fatalf("collateral balance: %v", err)
	}
	if want := new(big.Int).Sub(wadAmount(1), wantSeized); remaining.Cmp(want) != 0 {
		t.Fatalf("target collateral = %s, want %s", remaining, want)
	}
	if base.Cmp(receipt.CollateralSeized) >= 0 {
		t.Fatalf("bonus missing: seized %s not above base %s", receipt.CollateralSeized, base)
	}
}

func TestLiquidateRejectsHealthyTarget(t *testing.T) {
	f := newTestFixture(t)
	target := makeAddress(0x20)
	liquidator := makeAddress(0x30)
	f.collateral["WETH"].fund(target, wadAmount(1))
	if err := f.engine.DepositCollateral(target, "WETH", wadAmount(1)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if err := f.engine.MintDebt(target, wadAmount(500)); err != nil {
		t.Fatalf("mint: %v", err)
	}

	_, err := f.engine.Liquidate(liquidator, target, "WETH", wadAmount(100))
	var ok *HealthFactorOkError
	if !errors.As(err, &ok) {
		t.Fatalf("expected HealthFactorOkError, got %v", err)
	}
	if want := wadAmount(2); ok.Current.Cmp(want) != 0 {
		t.Fatalf("reported health factor = %s, want %s", ok.Current, want)
	}
}

func TestLiquidateRejectsNonImprovingSeizure(t *testing.T) {
	f := newTestFixture(t)
	target := makeAddress(0x20)
	liquidator := makeAddress(0x30)

	// At $1/WETH the bonus drains value faster than the repayment helps:
	// $550 of collateral against $520 of debt gets strictly worse when $100
	// is covered for a $110 seizure.
	f.oracle.Set("WETH", big.NewInt(1e8), 8, f.now)
	f.engine.ledger.commit(&Position{
		Address:    target,
		Collateral: map[string]*big.Int{"WETH": wadAmount(550)},
		Debt:       wadAmount(520),
	})
	f.collateral["WETH"].fund(f.module, wadAmount(550))
	f.debtToken.fund(liquidator, wadAmount(100))

	_, err := f.engine.Liquidate(liquidator, target, "WETH", wadAmount(100))
	var notImproved *HealthFactorNotImprovedError
	if !errors.As(err, &notImproved) {
		t.Fatalf("expected HealthFactorNotImprovedError, got %v", err)
	}
	if notImproved.End.Cmp(notImproved.Start) > 0 {
		t.Fatalf("error reports improvement: start %s end %s", notImproved.Start, notImproved.End)
	}

	// Nothing committed, nothing moved.
	info, infoErr := f.engine.AccountInfo(target)
	if infoErr != nil {
		t.Fatalf("account info: %v", infoErr)
	}
	if info.Debt.Cmp(wadAmount(520)) != 0 {
		t.Fatalf("target debt = %s, want %s", info.Debt, wadAmount(520))
	}
	if got := f.debtToken.balance(liquidator); got.Cmp(wadAmount(100)) != 0 {
		t.Fatalf("liquidator debt balance = %s, want %s", got, wadAmount(100))
	}
}

func TestLiquidateRejectsSeizureBeyondCollateral(t *testing.T) {
	f := newTestFixture(t)
	target := makeAddress(0x20)
	liquidator := makeAddress(0x30)

	// $100 of collateral against $150 of debt; covering the full debt would
	// seize $165 worth including the bonus, more than the position holds.
	twentieth := new(big.Int).Quo(wadAmount(1), big.NewInt(20))
	f.engine.ledger.commit(&Position{
		Address:    target,
		Collateral: map[string]*big.Int{"WETH": twentieth},
		Debt:       wadAmount(150),
	})
	f.debtToken.fund(liquidator, wadAmount(150))

	_, err := f.engine.Liquidate(liquidator, target, "WETH", wadAmount(150))
	if !errors.Is(err, ErrInsufficientCollateral) {
		t.Fatalf("expected ErrInsufficientCollateral, got %v", err)
	}
}

func TestLiquidateRejectsInsolventLiquidator(t *testing.T) {
	f := newTestFixture(t)
	target := makeAddress(0x20)
	liquidator := makeAddress(0x30)
	setupUnderwaterTarget(t, f)
	f.debtToken.fund(liquidator, wadAmount(500))

	// The liquidator carries uncollateralized debt of their own.
	f.engine.ledger.commit(&Position{
		Address:    liquidator,
		Collateral: map[string]*big.Int{},
		Debt:       wadAmount(100),
	})

	_, err := f.engine.Liquidate(liquidator, target, "WETH", wadAmount(500))
	var broken *HealthFactorBrokenError
	if !errors.As(err, &broken) {
		t.Fatalf("expected HealthFactorBrokenError, got %v", err)
	}
	info, infoErr := f.engine.AccountInfo(target)
	if infoErr != nil {
		t.Fatalf("account info: %v", infoErr)
	}
	if info.Debt.Cmp(wadAmount(1_000)) != 0 {
		t.Fatalf("target debt = %s, want %s", info.Debt, wadAmount(1_000))
	}
}

func TestLiquidateSelfJudgedOnStagedPosition(t *testing.T) {
	f := newTestFixture(t)
	account := makeAddress(0x20)

	// At $1/WETH: $1900 of collateral against $1000 of debt is underwater
	// (health factor 0.95). Covering $200 of own debt for a $220 seizure
	// leaves $1680 against $800, health factor 1.05 — solvent again.
	f.oracle.Set("WETH", big.NewInt(1e8), 8, f.now)
	f.engine.ledger.commit(&Position{
		Address:    account,
		Collateral: map[string]*big.Int{"WETH": wadAmount(1_900)},
		Debt:       wadAmount(1_000),
	})
	f.collateral["WETH"].fund(f.module, wadAmount(1_900))
	f.debtToken.fund(account, wadAmount(200))

	receipt, err := f.engine.Liquidate(account, account, "WETH", wadAmount(200))
	if err != nil {
		t.Fatalf("self-liquidate: %v", err)
	}
	if want := wadAmount(220); receipt.CollateralSeized.Cmp(want) != 0 {
		t.Fatalf("collateral seized = %s, want %s", receipt.CollateralSeized, want)
	}
	if receipt.EndHealthFactor.Cmp(MinHealthFactor) < 0 {
		t.Fatalf("end health factor %s below minimum", receipt.EndHealthFactor)
	}

	info, err := f.engine.AccountInfo(account)
	if err != nil {
		t.Fatalf("account info: %v", err)
	}
	if want := wadAmount(800); info.Debt.Cmp(want) != 0 {
		t.Fatalf("debt = %s, want %s", info.Debt, want)
	}
	remaining, err := f.engine.CollateralBalance(account, "WETH")
	if err != nil {
		t.Fatalf("collateral balance: %v", err)
	}
	if want := wadAmount(1_680); remaining.Cmp(want) != 0 {
		t.Fatalf("collateral = %s, want %s", remaining, want)
	}
	if got := f.collateral["WETH"].balance(account); got.Cmp(wadAmount(220)) != 0 {
		t.Fatalf("seized tokens held = %s, want %s", got, wadAmount(220))
	}
	if got := f.debtToken.balance(account); got.Sign() != 0 {
		t.Fatalf("debt tokens held = %s, want 0", got)
	}
}

func TestLiquidateRejectsInvalidCover(t *testing.T) {
	f := newTestFixture(t)
	if _, err := f.engine.Liquidate(makeAddress(0x30), makeAddress(0x20), "WETH", big.NewInt(0)); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("zero cover: expected ErrInvalidAmount, got %v", err)
	}
	if _, err := f.engine.Liquidate(makeAddress(0x30), makeAddress(0x20), "DOGE", wadAmount(1)); !errors.Is(err, ErrUnsupportedAsset) {
		t.Fatalf("unknown asset: expected ErrUnsupportedAsset, got %v", err)
	}
}
