package collateral

import (
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// PricePoint captures a USD quote for a collateral asset along with the
// timestamp reported by the upstream feed and the feed identifier.
type PricePoint struct {
	// Price is the USD price scaled by 10^Decimals.
	Price *big.Int
	// Decimals is the fixed-point precision of Price.
	Decimals uint8
	// UpdatedAt is the moment the upstream source last refreshed the quote.
	UpdatedAt time.Time
	// Source identifies the feed that produced the quote.
	Source string
}

// Clone returns a deep copy of the quote to prevent accidental mutations.
func (p PricePoint) Clone() PricePoint {
	clone := PricePoint{Decimals: p.Decimals, UpdatedAt: p.UpdatedAt, Source: p.Source}
	if p.Price != nil {
		clone.Price = new(big.Int).Set(p.Price)
	}
	return clone
}

// PriceOracle resolves the latest USD quote for a collateral asset. The engine
// treats implementations as untrusted and staleness-checks every quote.
type PriceOracle interface {
	LatestPrice(symbol string) (PricePoint, error)
}

// ManualOracle is an in-memory oracle used for tests, bootstrap seeding and
// manual overrides during incident response.
type ManualOracle struct {
	mu     sync.RWMutex
	quotes map[string]PricePoint
}

// NewManualOracle constructs an empty manual oracle.
func NewManualOracle() *ManualOracle {
	return &ManualOracle{quotes: make(map[string]PricePoint)}
}

// Set stores the provided quote for the asset symbol.
func (m *ManualOracle) Set(symbol string, price *big.Int, decimals uint8, ts time.Time) {
	if m == nil || price == nil {
		return
	}
	key := NormalizeSymbol(symbol)
	if key == "" {
		return
	}
	m.mu.Lock()
	m.quotes[key] = PricePoint{
		Price:     new(big.Int).Set(price),
		Decimals:  decimals,
		UpdatedAt: ts,
		Source:    "manual",
	}
	m.mu.Unlock()
}

// SetDecimal parses a decimal price string such as "2000.50" and stores it
// scaled to the provided precision.
func (m *ManualOracle) SetDecimal(symbol, price string, decimals uint8, ts time.Time) error {
	if m == nil {
		return fmt.Errorf("manual oracle not configured")
	}
	trimmed := strings.TrimSpace(price)
	if trimmed == "" {
		return fmt.Errorf("manual oracle: price required")
	}
	rat, ok := new(big.Rat).SetString(trimmed)
	if !ok {
		return fmt.Errorf("manual oracle: invalid price %q", price)
	}
	if rat.Sign() <= 0 {
		return fmt.Errorf("manual oracle: price must be positive")
	}
	scaled := new(big.Rat).Mul(rat, new(big.Rat).SetInt(pow10(decimals)))
	value := new(big.Int).Quo(scaled.Num(), scaled.Denom())
	m.Set(symbol, value, decimals, ts)
	return nil
}

// LatestPrice returns the stored quote for the asset symbol.
func (m *ManualOracle) LatestPrice(symbol string) (PricePoint, error) {
	if m == nil {
		return PricePoint{}, fmt.Errorf("manual oracle not configured")
	}
	key := NormalizeSymbol(symbol)
	m.mu.RLock()
	stored, ok := m.quotes[key]
	m.mu.RUnlock()
	if !ok {
		return PricePoint{}, fmt.Errorf("manual oracle: quote for %s not found", key)
	}
	return stored.Clone(), nil
}

// HTTPDoer abstracts http.Client for ease of testing.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// FeedOracle fetches quotes from an HTTP price endpoint that answers
// `?symbol=X` requests with a JSON body of the form
// {"price":"2000.50","timestamp":1700000000}.
type FeedOracle struct {
	client   HTTPDoer
	endpoint string
	decimals uint8
	apiKey   string
}

const defaultFeedDecimals = 8

// NewFeedOracle constructs an HTTP feed adapter. When the client is nil
// http.DefaultClient is used; the API key is optional and only attached when
// supplied.
func NewFeedOracle(client HTTPDoer, endpoint, apiKey string, decimals uint8) *FeedOracle {
	if client == nil {
		client = http.DefaultClient
	}
	if decimals == 0 {
		decimals = defaultFeedDecimals
	}
	return &FeedOracle{
		client:   client,
		endpoint: strings.TrimSpace(endpoint),
		decimals: decimals,
		apiKey:   strings.TrimSpace(apiKey),
	}
}

func (o *FeedOracle) LatestPrice(symbol string) (PricePoint, error) {
	if o == nil || o.endpoint == "" {
		return PricePoint{}, fmt.Errorf("feed oracle not configured")
	}
	req, err := http.NewRequest(http.MethodGet, o.endpoint, nil)
	if err != nil {
		return PricePoint{}, err
	}
	values := url.Values{}
	values.Set("symbol", NormalizeSymbol(symbol))
	req.URL.RawQuery = values.Encode()
	if o.apiKey != "" {
		req.Header.Set("x-api-key", o.apiKey)
	}
	resp, err := o.client.Do(req)
	if err != nil {
		return PricePoint{}, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return PricePoint{}, fmt.Errorf("feed oracle: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	var payload struct {
		Price     string `json:"price"`
		Timestamp int64  `json:"timestamp"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return PricePoint{}, fmt.Errorf("feed oracle: decode: %w", err)
	}
	trimmed := strings.TrimSpace(payload.Price)
	if trimmed == "" {
		return PricePoint{}, fmt.Errorf("feed oracle: empty price")
	}
	rat, ok := new(big.Rat).SetString(trimmed)
	if !ok || rat.Sign() <= 0 {
		return PricePoint{}, fmt.Errorf("feed oracle: invalid price %q", payload.Price)
	}
	scaled := new(big.Rat).Mul(rat, new(big.Rat).SetInt(pow10(o.decimals)))
	value := new(big.Int).Quo(scaled.Num(), scaled.Denom())
	return PricePoint{
		Price:     value,
		Decimals:  o.decimals,
		UpdatedAt: time.Unix(payload.Timestamp, 0),
		Source:    "feed",
	}, nil
}
