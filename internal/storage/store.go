// Package storage keeps the local history of bridge transfers: one versioned
// JSON container under a single key of a kv.Store.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/openbridge/openbridge-backend/internal/transfer"
	"github.com/openbridge/openbridge-backend/pkg/kv"
	"go.uber.org/zap"
)

// DefaultKey is the kv key holding the transfer container.
const DefaultKey = "openbridge_transfers"

// CompletedLimit bounds Completed results.
const CompletedLimit = 10

// ErrNotFound is returned when no transfer has the requested id.
var ErrNotFound = errors.New("transfer not found")

// Store is the persistence layer for transfers. Reads never fail: missing,
// corrupt or outdated data loads as an empty container. Write failures are
// logged and dropped.
type Store struct {
	kv     kv.Store
	key    string
	logger *zap.SugaredLogger
	now    func() time.Time

	// mu serializes read-modify-write cycles of this process only.
	mu sync.Mutex
}

// Option configures a Store.
type Option func(*Store)

// WithKey overrides DefaultKey.
func WithKey(key string) Option {
	return func(s *Store) {
		if key != "" {
			s.key = key
		}
	}
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func New(backend kv.Store, logger *zap.SugaredLogger, opts ...Option) *Store {
	s := &Store{
		kv:     backend,
		key:    DefaultKey,
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load reads the container. Transfers whose steps are not the canonical
// four are dropped.
func (s *Store) Load(ctx context.Context) transfer.Container {
	raw, err := s.kv.Get(ctx, s.key)
	if err != nil {
		if !errors.Is(err, kv.ErrNotFound) {
			s.logger.Warnw("Failed to read transfer storage", "key", s.key, "error", err)
		}
		return transfer.NewContainer()
	}

	var c transfer.Container
	if err := json.Unmarshal(raw, &c); err != nil {
		s.logger.Warnw("Transfer storage is corrupt, resetting", "key", s.key, "error", err)
		return transfer.NewContainer()
	}
	if c.Version != transfer.StorageVersion {
		s.logger.Infow("Transfer storage version mismatch, resetting",
			"key", s.key, "found", c.Version, "expected", transfer.StorageVersion)
		return transfer.NewContainer()
	}
	valid := filter(c.Transfers, func(t transfer.Transfer) bool { return t.Steps.Valid() })
	if dropped := len(c.Transfers) - len(valid); dropped > 0 {
		s.logger.Warnw("Dropping transfers with malformed steps", "key", s.key, "count", dropped)
	}
	c.Transfers = valid
	return c
}

// Save writes the whole container.
func (s *Store) Save(ctx context.Context, c transfer.Container) {
	if c.Transfers == nil {
		c.Transfers = []transfer.Transfer{}
	}
	raw, err := json.Marshal(c)
	if err != nil {
		s.logger.Warnw("Failed to encode transfer storage", "key", s.key, "error", err)
		return
	}
	if err := s.kv.Set(ctx, s.key, raw); err != nil {
		s.logger.Warnw("Failed to save transfer storage", "key", s.key, "error", err)
	}
}

// List returns every transfer, most recent first.
func (s *Store) List(ctx context.Context) []transfer.Transfer {
	return s.Load(ctx).Transfers
}

// ListByWallet returns the wallet's transfers in stored order. Addresses
// compare case-insensitively.
func (s *Store) ListByWallet(ctx context.Context, wallet string) []transfer.Transfer {
	return filter(s.List(ctx), func(t transfer.Transfer) bool { return t.BelongsTo(wallet) })
}

// Get returns the transfer with id.
func (s *Store) Get(ctx context.Context, id string) (transfer.Transfer, error) {
	for _, t := range s.List(ctx) {
		if t.ID == id {
			return t, nil
		}
	}
	return transfer.Transfer{}, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// Pending returns the wallet's transfers that have not finished.
func (s *Store) Pending(ctx context.Context, wallet string) []transfer.Transfer {
	return filter(s.ListByWallet(ctx, wallet), func(t transfer.Transfer) bool {
		return t.Status == transfer.StatusPending
	})
}

// Completed returns up to CompletedLimit finished transfers of the wallet.
func (s *Store) Completed(ctx context.Context, wallet string) []transfer.Transfer {
	done := filter(s.ListByWallet(ctx, wallet), func(t transfer.Transfer) bool {
		return t.Status != transfer.StatusPending
	})
	if len(done) > CompletedLimit {
		done = done[:CompletedLimit]
	}
	return done
}

// Resumable returns the wallet's pending transfers that can be finished.
func (s *Store) Resumable(ctx context.Context, wallet string) []transfer.Transfer {
	return filter(s.Pending(ctx, wallet), transfer.CanResume)
}

// Upsert replaces the transfer with the same id in place, or inserts t at the
// front. The container is then truncated to transfer.MaxTransfers.
func (s *Store) Upsert(ctx context.Context, t transfer.Transfer) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.Load(ctx)
	upsert(&c, t)
	s.Save(ctx, c)
}

func upsert(c *transfer.Container, t transfer.Transfer) {
	t = t.Clone()
	t.Version = transfer.StorageVersion

	replaced := false
	for i := range c.Transfers {
		if c.Transfers[i].ID == t.ID {
			c.Transfers[i] = t
			replaced = true
			break
		}
	}
	if !replaced {
		c.Transfers = append([]transfer.Transfer{t}, c.Transfers...)
	}
	if len(c.Transfers) > transfer.MaxTransfers {
		c.Transfers = c.Transfers[:transfer.MaxTransfers]
	}
	c.Version = transfer.StorageVersion
}

// Patch merges p into the transfer with id and stores it. Only that record
// changes.
func (s *Store) Patch(ctx context.Context, id string, p transfer.Patch) (transfer.Transfer, error) {
	return s.modify(ctx, id, p.Apply)
}

// StepPatch is a field-level update of one step. Nil fields are untouched.
type StepPatch struct {
	State       *transfer.StepState
	TxHash      *string
	StartedAt   *int64
	CompletedAt *int64
	BlockNumber *uint64
	Error       *string
}

func (p StepPatch) apply(st *transfer.Step) {
	if p.State != nil {
		st.State = *p.State
	}
	if p.TxHash != nil {
		st.TxHash = *p.TxHash
	}
	if p.StartedAt != nil {
		st.StartedAt = *p.StartedAt
	}
	if p.CompletedAt != nil {
		st.CompletedAt = *p.CompletedAt
	}
	if p.BlockNumber != nil {
		st.BlockNumber = *p.BlockNumber
	}
	if p.Error != nil {
		st.Error = *p.Error
	}
}

// UpdateStep merges p into one step of the transfer with id.
func (s *Store) UpdateStep(ctx context.Context, id string, name transfer.StepName, p StepPatch) (transfer.Transfer, error) {
	return s.modify(ctx, id, func(t *transfer.Transfer) error {
		st := t.Steps.Find(name)
		if st == nil {
			return fmt.Errorf("transfer %s has no step %q", id, name)
		}
		p.apply(st)
		return nil
	})
}

// Complete records the terminal status, stamping CompletedAt with the current
// time. An empty mintTxHash leaves the stored one untouched.
func (s *Store) Complete(ctx context.Context, id string, status transfer.Status, mintTxHash string) (transfer.Transfer, error) {
	p := transfer.Patch{
		Status:      &status,
		CompletedAt: transfer.Ptr(s.now().UnixMilli()),
	}
	if mintTxHash != "" {
		p.MintTxHash = &mintTxHash
	}
	return s.Patch(ctx, id, p)
}

// Delete removes the transfer with id. Missing ids are ignored.
func (s *Store) Delete(ctx context.Context, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.Load(ctx)
	c.Transfers = filter(c.Transfers, func(t transfer.Transfer) bool { return t.ID != id })
	s.Save(ctx, c)
}

// ClearWallet removes every transfer of wallet and reports how many went.
func (s *Store) ClearWallet(ctx context.Context, wallet string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.Load(ctx)
	before := len(c.Transfers)
	c.Transfers = filter(c.Transfers, func(t transfer.Transfer) bool { return !t.BelongsTo(wallet) })
	s.Save(ctx, c)
	return before - len(c.Transfers)
}

func (s *Store) modify(ctx context.Context, id string, fn func(*transfer.Transfer) error) (transfer.Transfer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.Load(ctx)
	for i := range c.Transfers {
		if c.Transfers[i].ID != id {
			continue
		}
		updated := c.Transfers[i].Clone()
		if err := fn(&updated); err != nil {
			return transfer.Transfer{}, err
		}
		updated.Version = transfer.StorageVersion
		upsert(&c, updated)
		s.Save(ctx, c)
		return updated, nil
	}
	return transfer.Transfer{}, fmt.Errorf("%w: %s", ErrNotFound, id)
}

func filter(in []transfer.Transfer, keep func(transfer.Transfer) bool) []transfer.Transfer {
	out := make([]transfer.Transfer, 0, len(in))
	for _, t := range in {
		if keep(t) {
			out = append(out, t)
		}
	}
	return out
}
