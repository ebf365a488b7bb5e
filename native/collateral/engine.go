package collateral

import (
	"fmt"
	"math/big"
	"sync"

	"stablemint/crypto"
	nativecommon "stablemint/native/common"
)

const moduleName = "collateral"

// Engine orchestrates every accounting operation against the collateral and
// debt ledgers. Operations are serialised under a single lock held across the
// entire body, external token calls included, so nothing can observe a
// partially applied mutation. Ledger writes happen only after every check and
// every external call has succeeded; failures roll back any external call
// already executed and leave the ledger untouched.
type Engine struct {
	mu sync.RWMutex

	moduleAddress    crypto.Address
	params           RiskParameters
	valuator         *Valuator
	guard            *SolvencyGuard
	ledger           *ledger
	debtToken        DebtToken
	collateralTokens map[string]CollateralToken
	pauses           nativecommon.PauseView
}

// LiquidationReceipt summarises a committed liquidation.
type LiquidationReceipt struct {
	DebtCovered       *big.Int
	CollateralSeized  *big.Int
	StartHealthFactor *big.Int
	EndHealthFactor   *big.Int
}

// NewEngine constructs an engine over a fixed asset set. Every asset must be
// bound to exactly one collateral token and be priceable through the oracle;
// membership is closed after construction.
func NewEngine(moduleAddr crypto.Address, params RiskParameters, assets []Asset, oracle PriceOracle, debtToken DebtToken, tokens map[string]CollateralToken) (*Engine, error) {
	if moduleAddr.IsZero() {
		return nil, fmt.Errorf("collateral engine: module address required")
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if debtToken == nil {
		return nil, fmt.Errorf("collateral engine: debt token required")
	}
	valuator, err := NewValuator(oracle, params.MaxPriceAge, assets)
	if err != nil {
		return nil, err
	}
	bound := make(map[string]CollateralToken, len(tokens))
	for symbol, token := range tokens {
		if token == nil {
			continue
		}
		bound[NormalizeSymbol(symbol)] = token
	}
	for _, asset := range valuator.Assets() {
		if _, ok := bound[asset.Symbol]; !ok {
			return nil, fmt.Errorf("collateral engine: no token bound for asset %s", asset.Symbol)
		}
	}
	if len(bound) != len(valuator.Assets()) {
		return nil, fmt.Errorf("collateral engine: token bound for unsupported asset")
	}
	return &Engine{
		moduleAddress:    moduleAddr,
		params:           params,
		valuator:         valuator,
		guard:            NewSolvencyGuard(valuator, params.LiquidationThresholdBps),
		ledger:           newLedger(),
		debtToken:        debtToken,
		collateralTokens: bound,
	}, nil
}

// SetPauses wires the engine to an operational circuit breaker.
func (e *Engine) SetPauses(p nativecommon.PauseView) {
	if e == nil {
		return
	}
	e.mu.Lock()
	e.pauses = p
	e.mu.Unlock()
}

// ModuleAddress returns the address under which the engine holds escrowed
// tokens.
func (e *Engine) ModuleAddress() crypto.Address { return e.moduleAddress }

// Params returns the risk parameters the engine was constructed with.
func (e *Engine) Params() RiskParameters { return e.params }

// Assets returns the supported assets in the fixed valuation order.
func (e *Engine) Assets() []Asset { return e.valuator.Assets() }

func (e *Engine) begin() error {
	if e == nil {
		return errNilEngine
	}
	return nativecommon.Guard(e.pauses, moduleName)
}

func (e *Engine) assetToken(symbol string) (Asset, CollateralToken, error) {
	asset, ok := e.valuator.Asset(symbol)
	if !ok {
		return Asset{}, nil, fmt.Errorf("%w: %s", ErrUnsupportedAsset, NormalizeSymbol(symbol))
	}
	return asset, e.collateralTokens[asset.Symbol], nil
}

// DepositCollateral locks collateral for the account. Depositing can only
// improve the position's health, so no solvency check follows.
func (e *Engine) DepositCollateral(account crypto.Address, symbol string, amount *big.Int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.begin(); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	asset, token, err := e.assetToken(symbol)
	if err != nil {
		return err
	}
	pos := e.ledger.position(account)
	e.stageDeposit(pos, asset.Symbol, amount)
	if err := token.Transfer(account, e.moduleAddress, amount); err != nil {
		return fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	e.ledger.commit(pos)
	return nil
}

// MintDebt issues synthetic dollars against the account's collateral. The
// operation is rejected before any token is minted when it would leave the
// account below the minimum health factor.
func (e *Engine) MintDebt(account crypto.Address, amount *big.Int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.begin(); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	pos := e.ledger.position(account)
	pos.Debt = new(big.Int).Add(pos.Debt, amount)
	if err := e.guard.AssertSolvent(pos); err != nil {
		return err
	}
	if err := e.debtToken.Mint(account, amount); err != nil {
		return fmt.Errorf("%w: %v", ErrMintFailed, err)
	}
	e.ledger.commit(pos)
	return nil
}

// BurnDebt repays part of the account's debt. The payer's tokens are pulled
// into the engine and destroyed before the ledger records the reduction.
func (e *Engine) BurnDebt(account crypto.Address, amount *big.Int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.begin(); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	pos := e.ledger.position(account)
	if err := e.stageBurn(pos, amount); err != nil {
		return err
	}
	// Burning can only help, but the guard is cheap relative to the damage a
	// regression here would cause.
	if err := e.guard.AssertSolvent(pos); err != nil {
		return err
	}
	if err := runTokenSteps(e.burnSteps(account, amount)); err != nil {
		return fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	e.ledger.commit(pos)
	return nil
}

// RedeemCollateral releases collateral back to the account provided the
// position stays solvent afterwards.
func (e *Engine) RedeemCollateral(account crypto.Address, symbol string, amount *big.Int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.begin(); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	asset, token, err := e.assetToken(symbol)
	if err != nil {
		return err
	}
	pos := e.ledger.position(account)
	if err := e.stageWithdrawal(pos, asset.Symbol, amount); err != nil {
		return err
	}
	if err := e.guard.AssertSolvent(pos); err != nil {
		return err
	}
	if err := token.Transfer(e.moduleAddress, account, amount); err != nil {
		return fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	e.ledger.commit(pos)
	return nil
}

// DepositAndMint composes deposit and mint into one atomic operation: either
// both land or neither does.
func (e *Engine) DepositAndMint(account crypto.Address, symbol string, depositAmount, mintAmount *big.Int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.begin(); err != nil {
		return err
	}
	if depositAmount == nil || depositAmount.Sign() <= 0 || mintAmount == nil || mintAmount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	asset, token, err := e.assetToken(symbol)
	if err != nil {
		return err
	}
	pos := e.ledger.position(account)
	e.stageDeposit(pos, asset.Symbol, depositAmount)
	pos.Debt = new(big.Int).Add(pos.Debt, mintAmount)
	if err := e.guard.AssertSolvent(pos); err != nil {
		return err
	}
	steps := []tokenStep{
		{
			do: func() error {
				if err := token.Transfer(account, e.moduleAddress, depositAmount); err != nil {
					return fmt.Errorf("%w: %v", ErrTransferFailed, err)
				}
				return nil
			},
			undo: func() error { return token.Transfer(e.moduleAddress, account, depositAmount) },
		},
		// Mint is irreversible, so it runs last and never needs an undo. Its
		// failure keeps the standalone mint's sentinel.
		{do: func() error {
			if err := e.debtToken.Mint(account, mintAmount); err != nil {
				return fmt.Errorf("%w: %v", ErrMintFailed, err)
			}
			return nil
		}},
	}
	if err := runTokenSteps(steps); err != nil {
		return err
	}
	e.ledger.commit(pos)
	return nil
}

// RedeemAndBurn composes burn and redeem into one atomic operation, burning
// first so the freed collateral is measured against the reduced debt.
func (e *Engine) RedeemAndBurn(account crypto.Address, symbol string, redeemAmount, burnAmount *big.Int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.begin(); err != nil {
		return err
	}
	if redeemAmount == nil || redeemAmount.Sign() <= 0 || burnAmount == nil || burnAmount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	asset, token, err := e.assetToken(symbol)
	if err != nil {
		return err
	}
	pos := e.ledger.position(account)
	if err := e.stageBurn(pos, burnAmount); err != nil {
		return err
	}
	if err := e.stageWithdrawal(pos, asset.Symbol, redeemAmount); err != nil {
		return err
	}
	if err := e.guard.AssertSolvent(pos); err != nil {
		return err
	}
	steps := []tokenStep{
		{
			do:   func() error { return e.debtToken.Transfer(account, e.moduleAddress, burnAmount) },
			undo: func() error { return e.debtToken.Transfer(e.moduleAddress, account, burnAmount) },
		},
		{
			do:   func() error { return token.Transfer(e.moduleAddress, account, redeemAmount) },
			undo: func() error { return token.Transfer(account, e.moduleAddress, redeemAmount) },
		},
		// Burn is irreversible, so it stays last.
		{do: func() error { return e.debtToken.Burn(burnAmount) }},
	}
	if err := runTokenSteps(steps); err != nil {
		return fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	e.ledger.commit(pos)
	return nil
}

// Liquidate lets a third party cover part of an unsafe position's debt in
// exchange for a discounted claim on its collateral. The operation commits
// only when it strictly improves the target's health factor and leaves the
// liquidator solvent; otherwise nothing is observable.
//
// When total collateral value has already fallen to or below the outstanding
// debt there is no collateral left to fund the bonus and liquidation cannot
// restore solvency. That is an acknowledged insolvency scenario, not a
// failure this engine attempts to repair.
func (e *Engine) Liquidate(liquidator, target crypto.Address, symbol string, debtToCover *big.Int) (*LiquidationReceipt, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.begin(); err != nil {
		return nil, err
	}
	if debtToCover == nil || debtToCover.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	asset, token, err := e.assetToken(symbol)
	if err != nil {
		return nil, err
	}

	targetPos := e.ledger.position(target)
	startHf, err := e.guard.HealthFactor(targetPos)
	if err != nil {
		return nil, err
	}
	if startHf.Cmp(MinHealthFactor) >= 0 {
		return nil, &HealthFactorOkError{Current: startHf}
	}

	seizedBase, err := e.valuator.AssetAmountForUSD(asset.Symbol, debtToCover)
	if err != nil {
		return nil, err
	}
	totalSeized := new(big.Int).Add(seizedBase, bpsShare(seizedBase, e.params.LiquidationBonusBps))

	if err := e.stageWithdrawal(targetPos, asset.Symbol, totalSeized); err != nil {
		return nil, err
	}
	if err := e.stageBurn(targetPos, debtToCover); err != nil {
		return nil, err
	}

	endHf, err := e.guard.HealthFactor(targetPos)
	if err != nil {
		return nil, err
	}
	if endHf.Cmp(startHf) <= 0 {
		return nil, &HealthFactorNotImprovedError{Start: startHf, End: endHf}
	}

	// A liquidator who was already undercollateralized elsewhere must not be
	// allowed to exit this call unsafe. Self-liquidations are judged on the
	// staged position, not the committed one.
	liquidatorPos := e.ledger.position(liquidator)
	if liquidator.Equal(target) {
		liquidatorPos = targetPos
	}
	if err := e.guard.AssertSolvent(liquidatorPos); err != nil {
		return nil, err
	}

	steps := []tokenStep{
		{
			do:   func() error { return token.Transfer(e.moduleAddress, liquidator, totalSeized) },
			undo: func() error { return token.Transfer(liquidator, e.moduleAddress, totalSeized) },
		},
		{
			do:   func() error { return e.debtToken.Transfer(liquidator, e.moduleAddress, debtToCover) },
			undo: func() error { return e.debtToken.Transfer(e.moduleAddress, liquidator, debtToCover) },
		},
		{do: func() error { return e.debtToken.Burn(debtToCover) }},
	}
	if err := runTokenSteps(steps); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}

	e.ledger.commit(targetPos)
	return &LiquidationReceipt{
		DebtCovered:       new(big.Int).Set(debtToCover),
		CollateralSeized:  totalSeized,
		StartHealthFactor: startHf,
		EndHealthFactor:   endHf,
	}, nil
}

// stageDeposit records a collateral increase on the staged position.
func (e *Engine) stageDeposit(pos *Position, symbol string, amount *big.Int) {
	current, ok := pos.Collateral[symbol]
	if !ok || current == nil {
		current = big.NewInt(0)
	}
	pos.Collateral[symbol] = new(big.Int).Add(current, amount)
}

// stageWithdrawal records a collateral decrease, failing instead of letting a
// balance go negative.
func (e *Engine) stageWithdrawal(pos *Position, symbol string, amount *big.Int) error {
	current, ok := pos.Collateral[symbol]
	if !ok || current == nil || current.Cmp(amount) < 0 {
		return ErrInsufficientCollateral
	}
	pos.Collateral[symbol] = new(big.Int).Sub(current, amount)
	return nil
}

// stageBurn records a debt decrease, failing instead of letting debt go
// negative.
func (e *Engine) stageBurn(pos *Position, amount *big.Int) error {
	if pos.Debt == nil || pos.Debt.Cmp(amount) < 0 {
		return ErrNoDebt
	}
	pos.Debt = new(big.Int).Sub(pos.Debt, amount)
	return nil
}

// burnSteps pulls debt tokens from the payer into the engine and destroys
// them. The burn runs last so the pull can be compensated if needed.
func (e *Engine) burnSteps(payer crypto.Address, amount *big.Int) []tokenStep {
	return []tokenStep{
		{
			do:   func() error { return e.debtToken.Transfer(payer, e.moduleAddress, amount) },
			undo: func() error { return e.debtToken.Transfer(e.moduleAddress, payer, amount) },
		},
		{do: func() error { return e.debtToken.Burn(amount) }},
	}
}

// AccountInfo reports the account's total collateral value, outstanding debt
// and health factor. Read-only; no side effects.
func (e *Engine) AccountInfo(account crypto.Address) (AccountInfo, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	pos := e.ledger.position(account)
	collateralUSD, err := e.valuator.TotalCollateralUSD(pos)
	if err != nil {
		return AccountInfo{}, err
	}
	hf, err := e.guard.HealthFactor(pos)
	if err != nil {
		return AccountInfo{}, err
	}
	return AccountInfo{
		Address:       account,
		CollateralUSD: collateralUSD,
		Debt:          pos.Debt,
		HealthFactor:  hf,
	}, nil
}

// CollateralBalance reports the recorded collateral amount for one asset.
func (e *Engine) CollateralBalance(account crypto.Address, symbol string) (*big.Int, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	asset, ok := e.valuator.Asset(symbol)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedAsset, NormalizeSymbol(symbol))
	}
	return e.ledger.position(account).CollateralAmount(asset.Symbol), nil
}

// HealthFactor reports the account's current health factor.
func (e *Engine) HealthFactor(account crypto.Address) (*big.Int, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.guard.HealthFactor(e.ledger.position(account))
}

// AssetAmountForUSD converts a wad USD amount into the equivalent asset
// quantity at the current price snapshot. Exposed as a read-only utility.
func (e *Engine) AssetAmountForUSD(symbol string, usd *big.Int) (*big.Int, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.valuator.AssetAmountForUSD(symbol, usd)
}

// USDValue converts an asset amount into its wad USD value at the current
// price snapshot.
func (e *Engine) USDValue(symbol string, amount *big.Int) (*big.Int, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.valuator.USDValue(symbol, amount)
}
