package analytics

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/openbridge/openbridge-backend/internal/transfer"
	"go.uber.org/zap"
)

// Client reports transfer lifecycle events to the analytics service. Every
// call returns immediately; requests run in the background and failures are
// only logged. A Client with an empty base URL does nothing.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *zap.SugaredLogger

	mu      sync.Mutex
	ids     map[string]*remoteID // transfer id -> analytics id
	nextSeq uint64
	wg      sync.WaitGroup
}

type remoteID struct {
	ready chan struct{}
	id    string
	seq   uint64
}

type ClientOption func(*Client)

func WithHTTPClient(c *http.Client) ClientOption {
	return func(cl *Client) { cl.http = c }
}

func NewClient(baseURL string, logger *zap.SugaredLogger, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
		logger:  logger,
		ids:     make(map[string]*remoteID),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Enabled() bool {
	return c.baseURL != ""
}

func (c *Client) goAsync(fn func()) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		fn()
	}()
}

// TransferStarted tracks a new transfer and remembers the id the service
// assigns so TransferFinished can update it.
func (c *Client) TransferStarted(ctx context.Context, t transfer.Transfer) {
	if !c.Enabled() {
		return
	}
	c.mu.Lock()
	c.nextSeq++
	entry := &remoteID{ready: make(chan struct{}), seq: c.nextSeq}
	c.ids[t.ID] = entry
	c.evictLocked()
	c.mu.Unlock()

	ctx = context.WithoutCancel(ctx)
	body := TrackTransactionRequest{
		SourceChainID: int64(t.SourceChainID),
		DestChainID:   int64(t.DestChainID),
		Amount:        t.Amount,
		Status:        StatusPending,
		TransferSpeed: string(t.TransferSpeed),
		WalletAddress: t.WalletAddress,
		BurnTxHash:    t.BurnTxHash,
		StartedAt:     t.StartedAt,
	}
	c.goAsync(func() {
		defer close(entry.ready)
		var resp struct {
			Success bool   `json:"success"`
			ID      string `json:"id"`
		}
		if err := c.send(ctx, http.MethodPost, "/api/track/transaction", body, &resp); err != nil {
			c.logger.Warnw("Failed to track transaction", "transferId", t.ID, "error", err)
			return
		}
		entry.id = resp.ID
	})
}

// evictLocked keeps at most transfer.MaxTransfers ids. Interrupted transfers
// stay tracked so a later resume can report them; the oldest go first.
func (c *Client) evictLocked() {
	for len(c.ids) > transfer.MaxTransfers {
		var (
			oldest string
			seq    uint64
		)
		for id, e := range c.ids {
			if oldest == "" || e.seq < seq {
				oldest, seq = id, e.seq
			}
		}
		delete(c.ids, oldest)
	}
}

// TransferFinished sends the terminal status once the start event has been
// acknowledged. Transfers started by another process are not tracked here and
// are skipped.
func (c *Client) TransferFinished(ctx context.Context, t transfer.Transfer) {
	if !c.Enabled() {
		return
	}
	c.mu.Lock()
	entry, ok := c.ids[t.ID]
	delete(c.ids, t.ID)
	c.mu.Unlock()
	if !ok {
		c.logger.Debugw("No analytics id for transfer", "transferId", t.ID)
		return
	}

	ctx = context.WithoutCancel(ctx)
	status := Status(t.Status)
	update := UpdateTransactionRequest{Status: &status}
	if t.MintTxHash != "" {
		mint := t.MintTxHash
		update.MintTxHash = &mint
	}
	if t.CompletedAt > 0 {
		completed := t.CompletedAt
		duration := t.CompletedAt - t.StartedAt
		update.CompletedAt = &completed
		update.DurationMs = &duration
	}

	c.goAsync(func() {
		<-entry.ready
		if entry.id == "" {
			return
		}
		path := "/api/track/transaction/" + url.PathEscape(entry.id)
		if err := c.send(ctx, http.MethodPatch, path, update, nil); err != nil {
			c.logger.Warnw("Failed to update transaction", "transferId", t.ID, "analyticsId", entry.id, "error", err)
		}
	})
}

func (c *Client) TrackWallet(ctx context.Context, wallet string, chainID int64) {
	if !c.Enabled() {
		return
	}
	ctx = context.WithoutCancel(ctx)
	body := TrackWalletRequest{WalletAddress: wallet}
	if chainID > 0 {
		body.ChainID = &chainID
	}
	c.goAsync(func() {
		if err := c.send(ctx, http.MethodPost, "/api/track/wallet", body, nil); err != nil {
			c.logger.Warnw("Failed to track wallet connection", "error", err)
		}
	})
}

func (c *Client) TrackPageView(ctx context.Context, path, referrer string) {
	if !c.Enabled() {
		return
	}
	ctx = context.WithoutCancel(ctx)
	body := TrackPageViewRequest{Path: path, Referrer: referrer}
	c.goAsync(func() {
		if err := c.send(ctx, http.MethodPost, "/api/track/pageview", body, nil); err != nil {
			c.logger.Warnw("Failed to track page view", "path", path, "error", err)
		}
	})
}

// Flush waits for outstanding requests or until ctx is done.
func (c *Client) Flush(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) send(ctx context.Context, method, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
