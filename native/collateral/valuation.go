package collateral

import (
	"fmt"
	"math/big"
	"sort"
	"time"
)

// Valuator converts asset amounts to wad-scaled USD values and back using
// staleness-checked oracle quotes. It wraps whatever PriceOracle it is given
// with the freshness enforcement, so price sources never need to be trusted.
type Valuator struct {
	oracle PriceOracle
	maxAge time.Duration
	assets map[string]Asset
	order  []string
	now    func() time.Time
}

// NewValuator constructs a valuator over the fixed asset set. The iteration
// order used by TotalCollateralUSD is the sorted symbol order, fixed here so
// valuations are reproducible.
func NewValuator(oracle PriceOracle, maxAge time.Duration, assets []Asset) (*Valuator, error) {
	if oracle == nil {
		return nil, fmt.Errorf("collateral engine: price oracle required")
	}
	if len(assets) == 0 {
		return nil, fmt.Errorf("collateral engine: at least one supported asset required")
	}
	bySymbol := make(map[string]Asset, len(assets))
	order := make([]string, 0, len(assets))
	for _, asset := range assets {
		symbol := NormalizeSymbol(asset.Symbol)
		if symbol == "" {
			return nil, fmt.Errorf("collateral engine: asset symbol required")
		}
		if _, exists := bySymbol[symbol]; exists {
			return nil, fmt.Errorf("collateral engine: duplicate asset %s", symbol)
		}
		asset.Symbol = symbol
		bySymbol[symbol] = asset
		order = append(order, symbol)
	}
	sort.Strings(order)
	return &Valuator{
		oracle: oracle,
		maxAge: maxAge,
		assets: bySymbol,
		order:  order,
		now:    time.Now,
	}, nil
}

// Asset returns the asset definition for a symbol.
func (v *Valuator) Asset(symbol string) (Asset, bool) {
	asset, ok := v.assets[NormalizeSymbol(symbol)]
	return asset, ok
}

// Assets returns the supported assets in the fixed iteration order.
func (v *Valuator) Assets() []Asset {
	out := make([]Asset, 0, len(v.order))
	for _, symbol := range v.order {
		out = append(out, v.assets[symbol])
	}
	return out
}

// freshPrice reads the latest quote for the symbol and enforces the staleness
// window before any arithmetic uses it.
func (v *Valuator) freshPrice(symbol string) (PricePoint, error) {
	asset, ok := v.Asset(symbol)
	if !ok {
		return PricePoint{}, fmt.Errorf("%w: %s", ErrUnsupportedAsset, NormalizeSymbol(symbol))
	}
	quote, err := v.oracle.LatestPrice(asset.Symbol)
	if err != nil {
		return PricePoint{}, fmt.Errorf("collateral engine: oracle read for %s: %w", asset.Symbol, err)
	}
	if quote.Price == nil || quote.Price.Sign() <= 0 {
		return PricePoint{}, fmt.Errorf("%w: %s", ErrInvalidPrice, asset.Symbol)
	}
	if v.maxAge > 0 && v.now().Sub(quote.UpdatedAt) > v.maxAge {
		return PricePoint{}, fmt.Errorf("%w: %s quote from %s", ErrStalePrice, asset.Symbol, quote.UpdatedAt.UTC().Format(time.RFC3339))
	}
	return quote, nil
}

// USDValue converts an asset amount in native decimals into a wad-scaled USD
// value. usd = amount * price * 1e18 / (10^assetDecimals * 10^priceDecimals).
func (v *Valuator) USDValue(symbol string, amount *big.Int) (*big.Int, error) {
	asset, ok := v.Asset(symbol)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedAsset, NormalizeSymbol(symbol))
	}
	if amount == nil || amount.Sign() < 0 {
		return nil, ErrInvalidAmount
	}
	if amount.Sign() == 0 {
		return big.NewInt(0), nil
	}
	quote, err := v.freshPrice(asset.Symbol)
	if err != nil {
		return nil, err
	}
	numerator := new(big.Int).Mul(amount, quote.Price)
	numerator.Mul(numerator, wad)
	denominator := new(big.Int).Mul(pow10(asset.Decimals), pow10(quote.Decimals))
	return numerator.Quo(numerator, denominator), nil
}

// AssetAmountForUSD converts a wad-scaled USD value into the equivalent asset
// quantity at the current price snapshot. The inverse of USDValue up to one
// unit of the asset's smallest precision.
func (v *Valuator) AssetAmountForUSD(symbol string, usd *big.Int) (*big.Int, error) {
	asset, ok := v.Asset(symbol)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedAsset, NormalizeSymbol(symbol))
	}
	if usd == nil || usd.Sign() < 0 {
		return nil, ErrInvalidAmount
	}
	if usd.Sign() == 0 {
		return big.NewInt(0), nil
	}
	quote, err := v.freshPrice(asset.Symbol)
	if err != nil {
		return nil, err
	}
	numerator := new(big.Int).Mul(usd, pow10(asset.Decimals))
	numerator.Mul(numerator, pow10(quote.Decimals))
	denominator := new(big.Int).Mul(quote.Price, wad)
	return numerator.Quo(numerator, denominator), nil
}

// TotalCollateralUSD sums the USD value of every asset the position holds,
// visiting assets in the fixed iteration order. Zero balances contribute zero
// without an oracle read.
func (v *Valuator) TotalCollateralUSD(pos *Position) (*big.Int, error) {
	total := big.NewInt(0)
	if pos == nil || pos.Collateral == nil {
		return total, nil
	}
	for _, symbol := range v.order {
		amount, ok := pos.Collateral[symbol]
		if !ok || amount == nil || amount.Sign() == 0 {
			continue
		}
		value, err := v.USDValue(symbol, amount)
		if err != nil {
			return nil, err
		}
		total.Add(total, value)
	}
	return total, nil
}
