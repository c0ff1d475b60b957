package analytics

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	_ "github.com/jackc/pgx/v5/stdlib"
)

const transactionColumns = `id, created_at, source_chain_id, dest_chain_id, amount, amount_usd, status,
	transfer_speed, wallet_address, COALESCE(burn_tx_hash, ''), COALESCE(mint_tx_hash, ''),
	started_at, completed_at, duration_ms`

// PostgresRepository stores analytics in the tables created by the sql/
// migrations.
type PostgresRepository struct {
	db     *sql.DB
	logger *zap.SugaredLogger
}

func NewPostgresRepository(db *sql.DB, logger *zap.SugaredLogger) *PostgresRepository {
	return &PostgresRepository{
		db:     db,
		logger: logger,
	}
}

// OpenPostgres opens a pgx-backed *sql.DB and checks the connection.
func OpenPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxIdleTime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

func nullable[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func (r *PostgresRepository) CreateTransaction(ctx context.Context, tx Transaction) error {
	query := `
		INSERT INTO transactions (id, created_at, source_chain_id, dest_chain_id, amount, amount_usd, status,
			transfer_speed, wallet_address, burn_tx_hash, mint_tx_hash, started_at, completed_at, duration_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`

	_, err := r.db.ExecContext(ctx, query,
		tx.ID,
		tx.CreatedAt,
		tx.SourceChainID,
		tx.DestChainID,
		tx.Amount,
		tx.AmountUSD,
		string(tx.Status),
		tx.TransferSpeed,
		tx.WalletAddress,
		nullString(tx.BurnTxHash),
		nullString(tx.MintTxHash),
		tx.StartedAt,
		nullable(tx.CompletedAt),
		nullable(tx.DurationMs),
	)
	if err != nil {
		return fmt.Errorf("failed to store transaction: %w", err)
	}
	return nil
}

func (r *PostgresRepository) UpdateTransaction(ctx context.Context, id string, u TransactionUpdate) error {
	var status any
	if u.Status != nil {
		status = string(*u.Status)
	}

	query := `
		UPDATE transactions SET
			status = COALESCE($2, status),
			mint_tx_hash = COALESCE($3, mint_tx_hash),
			completed_at = COALESCE($4, completed_at),
			duration_ms = COALESCE($5, duration_ms)
		WHERE id = $1
	`

	res, err := r.db.ExecContext(ctx, query, id, status, nullable(u.MintTxHash), nullable(u.CompletedAt), nullable(u.DurationMs))
	if err != nil {
		return fmt.Errorf("failed to update transaction: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update transaction: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: transaction %s", ErrNotFound, id)
	}
	return nil
}

func (r *PostgresRepository) CreateWalletConnection(ctx context.Context, wc WalletConnection) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO wallet_connections (id, wallet_address, chain_id, created_at) VALUES ($1, $2, $3, $4)`,
		wc.ID, wc.WalletAddress, nullable(wc.ChainID), wc.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to store wallet connection: %w", err)
	}
	return nil
}

func (r *PostgresRepository) CreatePageView(ctx context.Context, pv PageView) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO page_views (id, path, referrer, user_agent, created_at) VALUES ($1, $2, $3, $4, $5)`,
		pv.ID, pv.Path, nullString(pv.Referrer), nullString(pv.UserAgent), pv.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to store page view: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (Transaction, error) {
	var (
		tx          Transaction
		status      string
		completedAt sql.NullTime
		durationMs  sql.NullInt64
	)
	err := row.Scan(
		&tx.ID,
		&tx.CreatedAt,
		&tx.SourceChainID,
		&tx.DestChainID,
		&tx.Amount,
		&tx.AmountUSD,
		&status,
		&tx.TransferSpeed,
		&tx.WalletAddress,
		&tx.BurnTxHash,
		&tx.MintTxHash,
		&tx.StartedAt,
		&completedAt,
		&durationMs,
	)
	if err != nil {
		return Transaction{}, err
	}
	tx.Status = Status(status)
	if completedAt.Valid {
		at := completedAt.Time
		tx.CompletedAt = &at
	}
	if durationMs.Valid {
		d := durationMs.Int64
		tx.DurationMs = &d
	}
	return tx, nil
}

func (r *PostgresRepository) queryTransactions(ctx context.Context, query string, args ...any) ([]Transaction, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Transaction{}
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, tx)
	}
	return out, rows.Err()
}

// Dashboard runs the independent aggregate queries concurrently.
func (r *PostgresRepository) Dashboard(ctx context.Context, now time.Time) (*Dashboard, error) {
	today, weekAgo, monthAgo := windows(now)
	d := &Dashboard{}
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := r.db.QueryRowContext(ctx, `
			SELECT
				COUNT(*),
				COUNT(*) FILTER (WHERE status = 'success'),
				COALESCE(SUM(amount_usd) FILTER (WHERE status = 'success'), 0),
				COUNT(DISTINCT wallet_address),
				COUNT(*) FILTER (WHERE created_at >= $1),
				COALESCE(SUM(amount_usd) FILTER (WHERE created_at >= $1 AND status = 'success'), 0),
				COUNT(*) FILTER (WHERE created_at >= $2),
				COALESCE(SUM(amount_usd) FILTER (WHERE created_at >= $2 AND status = 'success'), 0),
				COUNT(DISTINCT wallet_address) FILTER (WHERE created_at >= $2)
			FROM transactions
		`, today, weekAgo).Scan(
			&d.Totals.Transactions,
			&d.Totals.SuccessfulTransactions,
			&d.Totals.Volume,
			&d.Totals.UniqueWallets,
			&d.Today.Transactions,
			&d.Today.Volume,
			&d.Week.Transactions,
			&d.Week.Volume,
			&d.Week.UniqueWallets,
		)
		if err != nil {
			return fmt.Errorf("transaction totals: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		err := r.db.QueryRowContext(ctx,
			`SELECT COUNT(*), COUNT(*) FILTER (WHERE created_at >= $1) FROM page_views`, today,
		).Scan(&d.Totals.PageViews, &d.Today.PageViews)
		if err != nil {
			return fmt.Errorf("page views: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		err := r.db.QueryRowContext(ctx,
			`SELECT COUNT(DISTINCT wallet_address) FROM wallet_connections WHERE created_at >= $1`, today,
		).Scan(&d.Today.UniqueWallets)
		if err != nil {
			return fmt.Errorf("wallet connections: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		rows, err := r.db.QueryContext(ctx, `
			SELECT source_chain_id, dest_chain_id, COUNT(*), COALESCE(SUM(amount_usd), 0)
			FROM transactions
			GROUP BY source_chain_id, dest_chain_id
			ORDER BY COUNT(*) DESC
			LIMIT $1
		`, chainStatsLimit)
		if err != nil {
			return fmt.Errorf("chain stats: %w", err)
		}
		defer rows.Close()

		stats := []ChainStat{}
		for rows.Next() {
			var s ChainStat
			if err := rows.Scan(&s.SourceChainID, &s.DestChainID, &s.Count, &s.Volume); err != nil {
				return fmt.Errorf("chain stats: %w", err)
			}
			stats = append(stats, s)
		}
		d.ChainStats = stats
		return rows.Err()
	})

	g.Go(func() error {
		recent, err := r.queryTransactions(ctx,
			`SELECT `+transactionColumns+` FROM transactions ORDER BY created_at DESC LIMIT $1`, recentLimit)
		if err != nil {
			return fmt.Errorf("recent transactions: %w", err)
		}
		d.RecentTransactions = recent
		return nil
	})

	g.Go(func() error {
		rows, err := r.db.QueryContext(ctx, `
			SELECT to_char((created_at AT TIME ZONE 'UTC')::date, 'YYYY-MM-DD') AS day, COUNT(*), COALESCE(SUM(amount_usd), 0)
			FROM transactions
			WHERE created_at >= $1 AND status = 'success'
			GROUP BY day
			ORDER BY day ASC
		`, monthAgo)
		if err != nil {
			return fmt.Errorf("daily volume: %w", err)
		}
		defer rows.Close()

		daily := []DailyVolume{}
		for rows.Next() {
			var dv DailyVolume
			if err := rows.Scan(&dv.Date, &dv.Count, &dv.Volume); err != nil {
				return fmt.Errorf("daily volume: %w", err)
			}
			daily = append(daily, dv)
		}
		d.DailyVolume = daily
		return rows.Err()
	})

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to build dashboard: %w", err)
	}
	return d, nil
}

func (r *PostgresRepository) ListTransactions(ctx context.Context, offset, limit int) ([]Transaction, int64, error) {
	var (
		page  []Transaction
		total int64
	)
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		page, err = r.queryTransactions(ctx,
			`SELECT `+transactionColumns+` FROM transactions ORDER BY created_at DESC OFFSET $1 LIMIT $2`, offset, limit)
		return err
	})
	g.Go(func() error {
		return r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM transactions`).Scan(&total)
	})
	if err := g.Wait(); err != nil {
		return nil, 0, fmt.Errorf("failed to list transactions: %w", err)
	}
	return page, total, nil
}

func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}
