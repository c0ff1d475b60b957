package analytics

import (
	"context"
	"os"
	"testing"

	"github.com/openbridge/openbridge-backend/utils"
	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// Runs only when OB_TEST_POSTGRES_DSN points at a disposable database.
func newPostgresRepository(t *testing.T) *PostgresRepository {
	t.Helper()
	dsn := os.Getenv("OB_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("OB_TEST_POSTGRES_DSN not set")
	}

	ctx := context.Background()
	db, err := OpenPostgres(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, goose.SetDialect("postgres"))
	require.NoError(t, goose.Up(db, utils.MigrationsDir("sql")))
	_, err = db.ExecContext(ctx, `TRUNCATE transactions, wallet_connections, page_views`)
	require.NoError(t, err)

	return NewPostgresRepository(db, zap.NewNop().Sugar())
}

func TestPostgresRepository_Dashboard(t *testing.T) {
	repo := newPostgresRepository(t)
	now := seedDashboard(t, repo)

	d, err := repo.Dashboard(context.Background(), now)
	require.NoError(t, err)
	assertSeededDashboard(t, d)
}

func TestPostgresRepository_UpdateAndList(t *testing.T) {
	repo := newPostgresRepository(t)
	ctx := context.Background()
	seedDashboard(t, repo)

	status := StatusFailed
	mint := "0xmint"
	require.NoError(t, repo.UpdateTransaction(ctx, "a", TransactionUpdate{Status: &status, MintTxHash: &mint}))
	assert.ErrorIs(t, repo.UpdateTransaction(ctx, "missing", TransactionUpdate{Status: &status}), ErrNotFound)

	page, total, err := repo.ListTransactions(ctx, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(4), total)
	require.Len(t, page, 2)
	assert.Equal(t, "a", page[0].ID)
	assert.Equal(t, StatusFailed, page[0].Status)
	assert.Equal(t, "0xmint", page[0].MintTxHash)
	assert.Equal(t, "c", page[1].ID)
	assert.Equal(t, "199.5", page[1].AmountUSD.String())
}
