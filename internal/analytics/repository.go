package analytics

import (
	"context"
	"time"
)

const (
	chainStatsLimit   = 10
	recentLimit       = 20
	dailyVolumeWindow = 30 * 24 * time.Hour
	weekWindow        = 7 * 24 * time.Hour
)

// Repository persists tracking events and answers the dashboard queries.
type Repository interface {
	CreateTransaction(ctx context.Context, tx Transaction) error
	// UpdateTransaction returns ErrNotFound for an unknown id.
	UpdateTransaction(ctx context.Context, id string, u TransactionUpdate) error
	CreateWalletConnection(ctx context.Context, wc WalletConnection) error
	CreatePageView(ctx context.Context, pv PageView) error
	// Dashboard computes the aggregates relative to the UTC day containing now.
	Dashboard(ctx context.Context, now time.Time) (*Dashboard, error)
	// ListTransactions returns a newest-first page and the total count.
	ListTransactions(ctx context.Context, offset, limit int) ([]Transaction, int64, error)
	Ping(ctx context.Context) error
}

// windows returns the start of the UTC day containing now, and the starts of
// the week and 30-day windows counted back from it.
func windows(now time.Time) (today, weekAgo, monthAgo time.Time) {
	now = now.UTC()
	today = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return today, today.Add(-weekWindow), today.Add(-dailyVolumeWindow)
}
