package fees

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/openbridge/openbridge-backend/internal/transfer"
	"github.com/openbridge/openbridge-backend/pkg/kv"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	IrisMainnetURL = "https://iris-api.circle.com"
	IrisTestnetURL = "https://iris-api-sandbox.circle.com"

	DefaultQuoteTTL = time.Minute
)

// Network selects the Iris environment.
type Network string

const (
	Mainnet Network = "mainnet"
	Testnet Network = "testnet"
)

// BaseURL returns the Iris API root for n. Anything but testnet is mainnet.
func (n Network) BaseURL() string {
	if n == Testnet {
		return IrisTestnetURL
	}
	return IrisMainnetURL
}

// Quote holds the per-tier fee rates in basis points for one route.
type Quote struct {
	FastBps     decimal.Decimal `json:"fastBps"`
	StandardBps decimal.Decimal `json:"standardBps"`
}

// DefaultQuote is used whenever Iris cannot be reached.
func DefaultQuote() Quote {
	return Quote{FastBps: defaultFast, StandardBps: decimal.Zero}
}

// Bps returns the rate for speed.
func (q Quote) Bps(speed transfer.Speed) decimal.Decimal {
	if speed == transfer.SpeedFast {
		return q.FastBps
	}
	return q.StandardBps
}

// Allowance is the remaining Fast Transfer capacity.
type Allowance struct {
	Amount    decimal.Decimal `json:"allowance"`
	Available bool            `json:"available"`
}

// Health reports the state of the Iris connection.
type Health struct {
	Healthy     bool      `json:"healthy"`
	LastError   string    `json:"last_error,omitempty"`
	LastSuccess time.Time `json:"last_success"`
}

// CacheRecorder receives fee-quote cache outcomes.
type CacheRecorder interface {
	RecordFeeQuoteCache(ctx context.Context, hit bool)
}

type feeEntry struct {
	FinalityThreshold int             `json:"finalityThreshold"`
	MinimumFee        decimal.Decimal `json:"minimumFee"`
}

// Client talks to the Iris API. Every lookup is best effort: failures are
// logged and answered with conservative defaults.
type Client struct {
	baseURL  string
	http     *http.Client
	cache    kv.Store
	ttl      time.Duration
	recorder CacheRecorder
	logger   *zap.SugaredLogger
	group    singleflight.Group

	mu     sync.RWMutex
	health Health
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the network's base URL.
func WithBaseURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithHTTPClient replaces the default client (10s timeout).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithCache caches quotes in store for ttl.
func WithCache(store kv.Store, ttl time.Duration) Option {
	return func(c *Client) {
		c.cache = store
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithCacheRecorder reports cache hits and misses.
func WithCacheRecorder(r CacheRecorder) Option {
	return func(c *Client) { c.recorder = r }
}

// NewClient creates an Iris client for network.
func NewClient(network Network, logger *zap.SugaredLogger, opts ...Option) *Client {
	c := &Client{
		baseURL: network.BaseURL(),
		http:    &http.Client{Timeout: 10 * time.Second},
		ttl:     DefaultQuoteTTL,
		logger:  logger,
		health:  Health{Healthy: true, LastSuccess: time.Now()},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Health returns the last observed connection state.
func (c *Client) Health() Health {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.health
}

func (c *Client) updateHealth(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.health.Healthy = err == nil
	if err == nil {
		c.health.LastSuccess = time.Now()
		c.health.LastError = ""
	} else {
		c.health.LastError = err.Error()
	}
}

// Quote returns the fee rates for a route between two CCTP domains.
func (c *Client) Quote(ctx context.Context, srcDomain, dstDomain uint32) Quote {
	key := fmt.Sprintf("fees:quote:%s:%d:%d", c.baseURL, srcDomain, dstDomain)

	if q, ok := c.cachedQuote(ctx, key); ok {
		return q
	}

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		q, err := c.fetchQuote(ctx, srcDomain, dstDomain)
		if err != nil {
			return nil, err
		}
		c.storeQuote(ctx, key, q)
		return q, nil
	})
	if err != nil {
		c.logger.Warnw("Failed to fetch CCTP fees, using defaults",
			"sourceDomain", srcDomain, "destDomain", dstDomain, "error", err)
		return DefaultQuote()
	}
	return v.(Quote)
}

func (c *Client) cachedQuote(ctx context.Context, key string) (Quote, bool) {
	if c.cache == nil {
		return Quote{}, false
	}
	raw, err := c.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, kv.ErrNotFound) {
			c.logger.Debugw("Fee quote cache read failed", "key", key, "error", err)
		}
		c.recordCache(ctx, false)
		return Quote{}, false
	}
	var q Quote
	if err := json.Unmarshal(raw, &q); err != nil {
		c.recordCache(ctx, false)
		return Quote{}, false
	}
	c.recordCache(ctx, true)
	return q, true
}

func (c *Client) storeQuote(ctx context.Context, key string, q Quote) {
	if c.cache == nil {
		return
	}
	raw, err := json.Marshal(q)
	if err != nil {
		return
	}
	if err := c.cache.Set(ctx, key, raw, c.ttl); err != nil {
		c.logger.Debugw("Fee quote cache write failed", "key", key, "error", err)
	}
}

func (c *Client) recordCache(ctx context.Context, hit bool) {
	if c.recorder != nil {
		c.recorder.RecordFeeQuoteCache(ctx, hit)
	}
}

func (c *Client) fetchQuote(ctx context.Context, srcDomain, dstDomain uint32) (Quote, error) {
	var entries []feeEntry
	if err := c.getJSON(ctx, fmt.Sprintf("/v2/burn/USDC/fees/%d/%d", srcDomain, dstDomain), &entries); err != nil {
		return Quote{}, err
	}

	q := DefaultQuote()
	for _, e := range entries {
		if e.FinalityThreshold == ThresholdFast {
			q.FastBps = e.MinimumFee
			break
		}
	}
	return q, nil
}

// FastAllowance returns the remaining Fast Transfer allowance. Errors report
// an empty, unavailable allowance.
func (c *Client) FastAllowance(ctx context.Context) Allowance {
	var body struct {
		Allowance *decimal.Decimal `json:"allowance"`
	}
	if err := c.getJSON(ctx, "/v2/fastBurn/USDC/allowance", &body); err != nil {
		c.logger.Warnw("Failed to fetch Fast Transfer allowance", "error", err)
		return Allowance{Amount: decimal.Zero}
	}

	amount := decimal.Zero
	if body.Allowance != nil {
		amount = *body.Allowance
	}
	return Allowance{Amount: amount, Available: amount.IsPositive()}
}

// CheckFastAvailability reports whether amount can go through Fast Transfer,
// with a user-facing reason when it cannot.
func (c *Client) CheckFastAvailability(ctx context.Context, amount decimal.Decimal) (bool, string) {
	allowance := c.FastAllowance(ctx)
	if !allowance.Available {
		return false, "Fast Transfer allowance is depleted. Use Standard Transfer."
	}
	if amount.GreaterThan(allowance.Amount) {
		return false, fmt.Sprintf("Amount exceeds Fast Transfer allowance (%s USDC available)", allowance.Amount.String())
	}
	return true, ""
}

func (c *Client) getJSON(ctx context.Context, path string, dest any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		c.updateHealth(err)
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		c.updateHealth(err)
		return fmt.Errorf("failed to reach Iris: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("iris API error: %d", resp.StatusCode)
		c.updateHealth(err)
		return err
	}

	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		c.updateHealth(err)
		return fmt.Errorf("failed to decode response: %w", err)
	}

	c.updateHealth(nil)
	return nil
}
