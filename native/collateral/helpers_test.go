package collateral

import (
	"bytes"
	"errors"
	"math/big"
	"testing"
	"time"

	"stablemint/crypto"
)

var errMockTokenFailure = errors.New("mock token failure")

func makeAddress(fill byte) crypto.Address {
	raw := bytes.Repeat([]byte{fill}, 20)
	return crypto.MustNewAddress(raw)
}

// mockToken is an in-memory token with switchable failure injection used to
// exercise the engine's rollback paths.
type mockToken struct {
	balances     map[string]*big.Int
	supply       *big.Int
	module       crypto.Address
	failTransfer bool
	failMint     bool
	failBurn     bool
}

func newMockToken(module crypto.Address) *mockToken {
	return &mockToken{
		balances: make(map[string]*big.Int),
		supply:   big.NewInt(0),
		module:   module,
	}
}

func (t *mockToken) key(addr crypto.Address) string { return string(addr.Bytes()) }

func (t *mockToken) balance(addr crypto.Address) *big.Int {
	if b, ok := t.balances[t.key(addr)]; ok && b != nil {
		return b
	}
	return big.NewInt(0)
}

func (t *mockToken) fund(addr crypto.Address, amount *big.Int) {
	t.balances[t.key(addr)] = new(big.Int).Add(t.balance(addr), amount)
	t.supply = new(big.Int).Add(t.supply, amount)
}

func (t *mockToken) Transfer(from, to crypto.Address, amount *big.Int) error {
	if t.failTransfer {
		return errMockTokenFailure
	}
	fromBal := t.balance(from)
	if fromBal.Cmp(amount) < 0 {
		return errors.New("mock token: insufficient balance")
	}
	t.balances[t.key(from)] = new(big.Int).Sub(fromBal, amount)
	t.balances[t.key(to)] = new(big.Int).Add(t.balance(to), amount)
	return nil
}

func (t *mockToken) Mint(to crypto.Address, amount *big.Int) error {
	if t.failMint {
		return errMockTokenFailure
	}
	t.fund(to, amount)
	return nil
}

func (t *mockToken) Burn(amount *big.Int) error {
	if t.failBurn {
		return errMockTokenFailure
	}
	held := t.balance(t.module)
	if held.Cmp(amount) < 0 {
		return errors.New("mock token: burn exceeds held balance")
	}
	t.balances[t.key(t.module)] = new(big.Int).Sub(held, amount)
	t.supply = new(big.Int).Sub(t.supply, amount)
	return nil
}

type testFixture struct {
	engine     *Engine
	oracle     *ManualOracle
	debtToken  *mockToken
	collateral map[string]*mockToken
	module     crypto.Address
	now        time.Time
}

// newTestFixture builds an engine over WETH (18 decimals) and WBTC
// (8 decimals) with 8-decimal manual price feeds and a frozen clock.
func newTestFixture(t *testing.T) *testFixture {
	t.Helper()
	module := makeAddress(0x01)
	oracle := NewManualOracle()
	now := time.Unix(1_700_000_000, 0)
	oracle.Set("WETH", big.NewInt(2_000e8), 8, now)
	oracle.Set("WBTC", big.NewInt(45_000e8), 8, now)

	weth := newMockToken(module)
	wbtc := newMockToken(module)
	debt := newMockToken(module)

	assets := []Asset{
		{Symbol: "WETH", Decimals: 18},
		{Symbol: "WBTC", Decimals: 8},
	}
	engine, err := NewEngine(module, DefaultRiskParameters(), assets, oracle, debt, map[string]CollateralToken{
		"WETH": weth,
		"WBTC": wbtc,
	})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	engine.valuator.now = func() time.Time { return now }

	return &testFixture{
		engine:     engine,
		oracle:     oracle,
		debtToken:  debt,
		collateral: map[string]*mockToken{"WETH": weth, "WBTC": wbtc},
		module:     module,
		now:        now,
	}
}

func wadAmount(units int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(units), wad)
}
