package analytics

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type seedTx struct {
	at       string
	status   Status
	src, dst int64
	amount   string
	usd      string
	wallet   string
}

// seedDashboard fills repo with a fixed data set around 2026-03-10.
func seedDashboard(t *testing.T, repo Repository) time.Time {
	t.Helper()
	ctx := context.Background()

	txs := []seedTx{
		{"2026-03-10T09:00:00Z", StatusSuccess, 1, 8453, "100", "", "0xa"},
		{"2026-03-10T10:00:00Z", StatusFailed, 1, 8453, "50", "", "0xb"},
		{"2026-03-05T12:00:00Z", StatusSuccess, 42161, 8453, "200", "199.5", "0xa"},
		{"2026-01-01T12:00:00Z", StatusSuccess, 1, 8453, "1000", "", "0xc"},
	}
	for i, s := range txs {
		amount := decimal.RequireFromString(s.amount)
		usd := amount
		if s.usd != "" {
			usd = decimal.RequireFromString(s.usd)
		}
		require.NoError(t, repo.CreateTransaction(ctx, Transaction{
			ID:            string(rune('a' + i)),
			CreatedAt:     date(s.at),
			SourceChainID: s.src,
			DestChainID:   s.dst,
			Amount:        amount,
			AmountUSD:     usd,
			Status:        s.status,
			TransferSpeed: "fast",
			WalletAddress: s.wallet,
			StartedAt:     date(s.at),
		}))
	}

	for _, wc := range []WalletConnection{
		{ID: "w1", WalletAddress: "0xa", CreatedAt: date("2026-03-10T08:00:00Z")},
		{ID: "w2", WalletAddress: "0xa", CreatedAt: date("2026-03-10T11:00:00Z")},
		{ID: "w3", WalletAddress: "0xb", CreatedAt: date("2026-03-09T23:00:00Z")},
	} {
		require.NoError(t, repo.CreateWalletConnection(ctx, wc))
	}
	for _, pv := range []PageView{
		{ID: "p1", Path: "/", CreatedAt: date("2026-03-10T08:00:00Z")},
		{ID: "p2", Path: "/analytics", CreatedAt: date("2026-03-10T12:00:00Z")},
		{ID: "p3", Path: "/", CreatedAt: date("2026-03-09T12:00:00Z")},
	} {
		require.NoError(t, repo.CreatePageView(ctx, pv))
	}

	return date("2026-03-10T15:00:00Z")
}

func assertSeededDashboard(t *testing.T, d *Dashboard) {
	t.Helper()

	assert.Equal(t, int64(4), d.Totals.Transactions)
	assert.Equal(t, int64(3), d.Totals.SuccessfulTransactions)
	assert.Equal(t, "1299.5", d.Totals.Volume.String())
	assert.Equal(t, int64(3), d.Totals.UniqueWallets)
	assert.Equal(t, int64(3), d.Totals.PageViews)

	assert.Equal(t, int64(2), d.Today.Transactions)
	assert.Equal(t, "100", d.Today.Volume.String())
	assert.Equal(t, int64(1), d.Today.UniqueWallets)
	assert.Equal(t, int64(2), d.Today.PageViews)

	assert.Equal(t, int64(3), d.Week.Transactions)
	assert.Equal(t, "299.5", d.Week.Volume.String())
	assert.Equal(t, int64(2), d.Week.UniqueWallets)

	require.Len(t, d.ChainStats, 2)
	assert.Equal(t, int64(1), d.ChainStats[0].SourceChainID)
	assert.Equal(t, int64(3), d.ChainStats[0].Count)
	assert.Equal(t, "1150", d.ChainStats[0].Volume.String())
	assert.Equal(t, int64(42161), d.ChainStats[1].SourceChainID)

	require.Len(t, d.RecentTransactions, 4)
	assert.Equal(t, []string{"b", "a", "c", "d"}, []string{
		d.RecentTransactions[0].ID, d.RecentTransactions[1].ID,
		d.RecentTransactions[2].ID, d.RecentTransactions[3].ID,
	})

	require.Len(t, d.DailyVolume, 2)
	assert.Equal(t, "2026-03-05", d.DailyVolume[0].Date)
	assert.Equal(t, "199.5", d.DailyVolume[0].Volume.String())
	assert.Equal(t, "2026-03-10", d.DailyVolume[1].Date)
	assert.Equal(t, int64(1), d.DailyVolume[1].Count)
}

func TestMemoryRepository_Dashboard(t *testing.T) {
	repo := NewMemoryRepository()
	now := seedDashboard(t, repo)

	d, err := repo.Dashboard(context.Background(), now)
	require.NoError(t, err)
	assertSeededDashboard(t, d)
}

func TestMemoryRepository_EmptyDashboard(t *testing.T) {
	d, err := NewMemoryRepository().Dashboard(context.Background(), time.Now())
	require.NoError(t, err)
	assert.True(t, d.Totals.Volume.IsZero())
	assert.NotNil(t, d.ChainStats)
	assert.NotNil(t, d.DailyVolume)
	assert.Empty(t, d.RecentTransactions)
}

func TestMemoryRepository_ChainStatsLimit(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	for i := int64(0); i < 15; i++ {
		require.NoError(t, repo.CreateTransaction(ctx, Transaction{
			ID: string(rune('A' + i)), SourceChainID: i + 1, DestChainID: 100, CreatedAt: time.Now(),
			Amount: decimal.NewFromInt(1), AmountUSD: decimal.NewFromInt(1),
		}))
	}
	d, err := repo.Dashboard(ctx, time.Now())
	require.NoError(t, err)
	assert.Len(t, d.ChainStats, chainStatsLimit)
}
