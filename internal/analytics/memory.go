package analytics

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// MemoryRepository keeps everything in process. It is the default store and
// loses its data on restart.
type MemoryRepository struct {
	mu           sync.RWMutex
	transactions []Transaction // insertion order
	wallets      []WalletConnection
	pageViews    []PageView
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{}
}

func (r *MemoryRepository) CreateTransaction(ctx context.Context, tx Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transactions = append(r.transactions, tx)
	return nil
}

func (r *MemoryRepository) UpdateTransaction(ctx context.Context, id string, u TransactionUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.transactions {
		tx := &r.transactions[i]
		if tx.ID != id {
			continue
		}
		if u.Status != nil {
			tx.Status = *u.Status
		}
		if u.MintTxHash != nil {
			tx.MintTxHash = *u.MintTxHash
		}
		if u.CompletedAt != nil {
			at := *u.CompletedAt
			tx.CompletedAt = &at
		}
		if u.DurationMs != nil {
			d := *u.DurationMs
			tx.DurationMs = &d
		}
		return nil
	}
	return ErrNotFound
}

func (r *MemoryRepository) CreateWalletConnection(ctx context.Context, wc WalletConnection) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.wallets = append(r.wallets, wc)
	return nil
}

func (r *MemoryRepository) CreatePageView(ctx context.Context, pv PageView) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pageViews = append(r.pageViews, pv)
	return nil
}

// newestFirst returns a copy of the transactions ordered by creation time,
// newest first. Must be called with r.mu held.
func (r *MemoryRepository) newestFirst() []Transaction {
	out := make([]Transaction, len(r.transactions))
	copy(out, r.transactions)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func (r *MemoryRepository) Dashboard(ctx context.Context, now time.Time) (*Dashboard, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	today, weekAgo, monthAgo := windows(now)
	d := &Dashboard{
		Totals: Totals{Volume: decimal.Zero},
		Today:  DayStats{Volume: decimal.Zero},
		Week:   WeekStats{Volume: decimal.Zero},
	}

	wallets := make(map[string]struct{})
	weekWallets := make(map[string]struct{})
	type pair struct{ src, dst int64 }
	pairs := make(map[pair]*ChainStat)
	var pairOrder []pair
	daily := make(map[string]*DailyVolume)

	for _, tx := range r.transactions {
		success := tx.Status == StatusSuccess
		d.Totals.Transactions++
		wallets[tx.WalletAddress] = struct{}{}
		if success {
			d.Totals.SuccessfulTransactions++
			d.Totals.Volume = d.Totals.Volume.Add(tx.AmountUSD)
		}

		if !tx.CreatedAt.Before(today) {
			d.Today.Transactions++
			if success {
				d.Today.Volume = d.Today.Volume.Add(tx.AmountUSD)
			}
		}
		if !tx.CreatedAt.Before(weekAgo) {
			d.Week.Transactions++
			weekWallets[tx.WalletAddress] = struct{}{}
			if success {
				d.Week.Volume = d.Week.Volume.Add(tx.AmountUSD)
			}
		}

		key := pair{tx.SourceChainID, tx.DestChainID}
		stat, ok := pairs[key]
		if !ok {
			stat = &ChainStat{SourceChainID: key.src, DestChainID: key.dst, Volume: decimal.Zero}
			pairs[key] = stat
			pairOrder = append(pairOrder, key)
		}
		stat.Count++
		stat.Volume = stat.Volume.Add(tx.AmountUSD)

		if success && !tx.CreatedAt.Before(monthAgo) {
			day := tx.CreatedAt.UTC().Format(time.DateOnly)
			dv, ok := daily[day]
			if !ok {
				dv = &DailyVolume{Date: day, Volume: decimal.Zero}
				daily[day] = dv
			}
			dv.Count++
			dv.Volume = dv.Volume.Add(tx.AmountUSD)
		}
	}
	d.Totals.UniqueWallets = int64(len(wallets))
	d.Week.UniqueWallets = int64(len(weekWallets))

	todayWallets := make(map[string]struct{})
	for _, wc := range r.wallets {
		if !wc.CreatedAt.Before(today) {
			todayWallets[wc.WalletAddress] = struct{}{}
		}
	}
	d.Today.UniqueWallets = int64(len(todayWallets))

	for _, pv := range r.pageViews {
		d.Totals.PageViews++
		if !pv.CreatedAt.Before(today) {
			d.Today.PageViews++
		}
	}

	d.ChainStats = make([]ChainStat, 0, len(pairOrder))
	for _, key := range pairOrder {
		d.ChainStats = append(d.ChainStats, *pairs[key])
	}
	sort.SliceStable(d.ChainStats, func(i, j int) bool {
		return d.ChainStats[i].Count > d.ChainStats[j].Count
	})
	if len(d.ChainStats) > chainStatsLimit {
		d.ChainStats = d.ChainStats[:chainStatsLimit]
	}

	recent := r.newestFirst()
	if len(recent) > recentLimit {
		recent = recent[:recentLimit]
	}
	d.RecentTransactions = recent

	d.DailyVolume = make([]DailyVolume, 0, len(daily))
	for _, dv := range daily {
		d.DailyVolume = append(d.DailyVolume, *dv)
	}
	sort.Slice(d.DailyVolume, func(i, j int) bool {
		return d.DailyVolume[i].Date < d.DailyVolume[j].Date
	})

	return d, nil
}

func (r *MemoryRepository) ListTransactions(ctx context.Context, offset, limit int) ([]Transaction, int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all := r.newestFirst()
	total := int64(len(all))
	if offset >= len(all) {
		return []Transaction{}, total, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], total, nil
}

func (r *MemoryRepository) Ping(ctx context.Context) error {
	return nil
}
