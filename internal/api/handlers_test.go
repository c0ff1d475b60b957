package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/openbridge/openbridge-backend/internal/analytics"
	"github.com/openbridge/openbridge-backend/internal/chains"
	"github.com/openbridge/openbridge-backend/internal/transfer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testKey = "s3cret"

// Mock metrics for testing
type MockMetrics struct {
	mu       sync.Mutex
	patterns []string
}

func (m *MockMetrics) RecordHTTPRequest(ctx context.Context, method, path string, status int, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.patterns = append(m.patterns, path)
}

type failingRepo struct {
	analytics.Repository
}

func (failingRepo) Dashboard(ctx context.Context, now time.Time) (*analytics.Dashboard, error) {
	return nil, errors.New("connection refused")
}

func (failingRepo) Ping(ctx context.Context) error {
	return errors.New("connection refused")
}

func createTestRouter(t *testing.T, repo analytics.Repository) (http.Handler, *MockMetrics) {
	t.Helper()
	logger := zap.NewNop().Sugar()
	svc := analytics.NewService(repo, testKey, logger)
	metrics := &MockMetrics{}
	h := NewHandler(svc, logger)
	return h.Routes(NewMiddleware(logger, metrics), []string{"http://localhost:5173"}, 600), metrics
}

func do(t *testing.T, router http.Handler, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestHealth(t *testing.T) {
	router, _ := createTestRouter(t, analytics.NewMemoryRepository())

	rec := do(t, router, http.MethodGet, "/api/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody[HealthResponse](t, rec)
	assert.Equal(t, "ok", body.Status)
	_, err := time.Parse(time.RFC3339Nano, body.Timestamp)
	assert.NoError(t, err)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}

func TestRequestIDIsPropagated(t *testing.T) {
	router, _ := createTestRouter(t, analytics.NewMemoryRepository())
	rec := do(t, router, http.MethodGet, "/api/health", nil, "X-Request-ID", "req-123")
	assert.Equal(t, "req-123", rec.Header().Get("X-Request-ID"))
}

func TestTrackAndUpdateTransaction(t *testing.T) {
	router, metrics := createTestRouter(t, analytics.NewMemoryRepository())

	rec := do(t, router, http.MethodPost, "/api/track/transaction", map[string]any{
		"sourceChainId": 1,
		"destChainId":   8453,
		"amount":        "42",
		"status":        "pending",
		"transferSpeed": "fast",
		"walletAddress": "0xABC",
		"startedAt":     1_700_000_000_000,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	tracked := decodeBody[TrackResponse](t, rec)
	assert.True(t, tracked.Success)
	require.NotEmpty(t, tracked.ID)

	rec = do(t, router, http.MethodPatch, "/api/track/transaction/"+tracked.ID, map[string]any{
		"status":      "success",
		"mintTxHash":  "0xmint",
		"completedAt": 1_700_000_030_000,
		"durationMs":  30_000,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, decodeBody[SuccessResponse](t, rec).Success)

	rec = do(t, router, http.MethodGet, "/api/analytics/transactions", nil, "Authorization", "Bearer "+testKey)
	require.Equal(t, http.StatusOK, rec.Code)
	page := decodeBody[analytics.TransactionPage](t, rec)
	require.Len(t, page.Transactions, 1)
	tx := page.Transactions[0]
	assert.Equal(t, "0xabc", tx.WalletAddress)
	assert.Equal(t, analytics.StatusSuccess, tx.Status)
	assert.Equal(t, "42", tx.AmountUSD.String())
	assert.Equal(t, analytics.Pagination{Page: 1, Limit: 50, Total: 1, Pages: 1}, page.Pagination)

	metrics.mu.Lock()
	defer metrics.mu.Unlock()
	assert.Contains(t, metrics.patterns, "/api/track/transaction/{id}")
}

func TestTrackTransaction_Errors(t *testing.T) {
	router, _ := createTestRouter(t, analytics.NewMemoryRepository())

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
		code   string
	}{
		{"malformed json", http.MethodPost, "/api/track/transaction", "not an object", http.StatusBadRequest, "INVALID_JSON"},
		{"missing wallet", http.MethodPost, "/api/track/transaction", map[string]any{"sourceChainId": 1, "destChainId": 10, "amount": "1"}, http.StatusBadRequest, "INVALID_REQUEST"},
		{"unknown id", http.MethodPatch, "/api/track/transaction/nope", map[string]any{"status": "failed"}, http.StatusNotFound, "NOT_FOUND"},
		{"missing path", http.MethodPost, "/api/track/pageview", map[string]any{}, http.StatusBadRequest, "INVALID_REQUEST"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, router, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.code, decodeBody[ErrorResponse](t, rec).Code)
		})
	}
}

func TestTrackWalletAndPageView(t *testing.T) {
	router, _ := createTestRouter(t, analytics.NewMemoryRepository())

	rec := do(t, router, http.MethodPost, "/api/track/wallet", map[string]any{"walletAddress": "0xA", "chainId": 1})
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = do(t, router, http.MethodPost, "/api/track/pageview", map[string]any{"path": "/"}, "User-Agent", "test-agent")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, router, http.MethodGet, "/api/analytics/dashboard", nil, "Authorization", "Bearer "+testKey)
	require.Equal(t, http.StatusOK, rec.Code)
	d := decodeBody[analytics.Dashboard](t, rec)
	assert.Equal(t, int64(1), d.Totals.PageViews)
	assert.Equal(t, int64(1), d.Today.UniqueWallets)
}

func TestDashboardRequiresKey(t *testing.T) {
	router, _ := createTestRouter(t, analytics.NewMemoryRepository())

	for _, header := range []string{"", "Bearer wrong", testKey} {
		rec := do(t, router, http.MethodGet, "/api/analytics/dashboard", nil, "Authorization", header)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, header)
		assert.Equal(t, "UNAUTHORIZED", decodeBody[ErrorResponse](t, rec).Code)
	}
	rec := do(t, router, http.MethodGet, "/api/analytics/transactions?page=2", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestDashboardStoreFailure(t *testing.T) {
	router, _ := createTestRouter(t, failingRepo{Repository: analytics.NewMemoryRepository()})

	rec := do(t, router, http.MethodGet, "/api/analytics/dashboard", nil, "Authorization", "Bearer "+testKey)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decodeBody[ErrorResponse](t, rec)
	assert.Equal(t, "Failed to fetch dashboard stats", body.Message)

	rec = do(t, router, http.MethodGet, "/readyz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestVerifyKey(t *testing.T) {
	router, _ := createTestRouter(t, analytics.NewMemoryRepository())

	tests := []struct {
		key   string
		valid bool
	}{
		{testKey, true},
		{"  " + testKey + "  ", true},
		{"admin", false},
		{"", false},
	}
	for _, tt := range tests {
		rec := do(t, router, http.MethodPost, "/api/analytics/verify", VerifyRequest{Key: tt.key})
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, tt.valid, decodeBody[VerifyResponse](t, rec).Valid, tt.key)
	}
}

func TestTransactionsPaginationQuery(t *testing.T) {
	router, _ := createTestRouter(t, analytics.NewMemoryRepository())

	rec := do(t, router, http.MethodGet, "/api/analytics/transactions?page=abc&limit=1000", nil, "Authorization", "Bearer "+testKey)
	require.Equal(t, http.StatusOK, rec.Code)
	page := decodeBody[analytics.TransactionPage](t, rec)
	assert.Equal(t, 1, page.Pagination.Page)
	assert.Equal(t, 100, page.Pagination.Limit)
	assert.Empty(t, page.Transactions)

	rec = do(t, router, http.MethodGet, "/api/analytics/transactions?page=9223372036854775807&limit=100", nil, "Authorization", "Bearer "+testKey)
	require.Equal(t, http.StatusOK, rec.Code)
	page = decodeBody[analytics.TransactionPage](t, rec)
	assert.Equal(t, analytics.MaxPage, page.Pagination.Page)
	assert.Empty(t, page.Transactions)
}

func TestRateLimit(t *testing.T) {
	logger := zap.NewNop().Sugar()
	h := NewHandler(analytics.NewService(analytics.NewMemoryRepository(), testKey, logger), logger)
	router := h.Routes(NewMiddleware(logger, nil), nil, 6) // burst of 1

	assert.Equal(t, http.StatusOK, do(t, router, http.MethodGet, "/api/health", nil).Code)
	rec := do(t, router, http.MethodGet, "/api/health", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "RATE_LIMITED", decodeBody[ErrorResponse](t, rec).Code)
}

// The reporter client and the service agree on the wire format.
func TestReporterClientAgainstRouter(t *testing.T) {
	router, _ := createTestRouter(t, analytics.NewMemoryRepository())
	srv := httptest.NewServer(router)
	defer srv.Close()

	client := analytics.NewClient(srv.URL, zap.NewNop().Sugar())
	ctx := context.Background()

	tr := transfer.Transfer{
		ID:            "transfer-1",
		StartedAt:     time.Now().Add(-time.Minute).UnixMilli(),
		SourceChainID: chains.Arbitrum,
		DestChainID:   chains.Base,
		Amount:        "75",
		WalletAddress: "0xWALLET",
		TransferSpeed: transfer.SpeedStandard,
		Status:        transfer.StatusPending,
	}
	client.TransferStarted(ctx, tr)
	tr.Status = transfer.StatusSuccess
	tr.MintTxHash = "0xmint"
	tr.CompletedAt = time.Now().UnixMilli()
	client.TransferFinished(ctx, tr)
	client.TrackWallet(ctx, "0xWALLET", int64(chains.Arbitrum))

	flushCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, client.Flush(flushCtx))

	rec := do(t, router, http.MethodGet, "/api/analytics/dashboard", nil, "Authorization", "Bearer "+testKey)
	require.Equal(t, http.StatusOK, rec.Code)
	d := decodeBody[analytics.Dashboard](t, rec)
	assert.Equal(t, int64(1), d.Totals.SuccessfulTransactions)
	assert.Equal(t, "75", d.Totals.Volume.String())
	assert.Equal(t, int64(1), d.Today.UniqueWallets)
	require.Len(t, d.RecentTransactions, 1)
	assert.Equal(t, "0xmint", d.RecentTransactions[0].MintTxHash)
	assert.Equal(t, "0xwallet", d.RecentTransactions[0].WalletAddress)
}
