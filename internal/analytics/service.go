package analytics

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrInvalidRequest = errors.New("invalid request")
	ErrUnauthorized   = errors.New("unauthorized")
)

const (
	DefaultPageLimit = 50
	MaxPageLimit     = 100
	// MaxPage keeps the row offset well inside int range.
	MaxPage = 1_000_000
)

type Service struct {
	repo   Repository
	key    string
	logger *zap.SugaredLogger
	now    func() time.Time
	newID  func() string
}

type ServiceOption func(*Service)

func WithServiceClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

func WithServiceIDGenerator(fn func() string) ServiceOption {
	return func(s *Service) { s.newID = fn }
}

// NewService serves tracking and dashboard requests. key guards the dashboard
// endpoints and is compared after trimming whitespace.
func NewService(repo Repository, key string, logger *zap.SugaredLogger, opts ...ServiceOption) *Service {
	s := &Service{
		repo:   repo,
		key:    strings.TrimSpace(key),
		logger: logger,
		now:    time.Now,
		newID:  func() string { return uuid.Must(uuid.NewV7()).String() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, fmt.Sprintf(format, args...))
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

// TrackTransaction records a new transfer and returns its analytics id.
func (s *Service) TrackTransaction(ctx context.Context, req TrackTransactionRequest) (string, error) {
	wallet := strings.ToLower(strings.TrimSpace(req.WalletAddress))
	if wallet == "" {
		return "", invalid("walletAddress is required")
	}
	if req.SourceChainID <= 0 || req.DestChainID <= 0 {
		return "", invalid("sourceChainId and destChainId are required")
	}
	amount, err := decimal.NewFromString(strings.TrimSpace(req.Amount))
	if err != nil || amount.IsNegative() {
		return "", invalid("amount %q is not a valid decimal", req.Amount)
	}
	status := req.Status
	if status == "" {
		status = StatusPending
	}
	if !status.Valid() {
		return "", invalid("unknown status %q", req.Status)
	}

	now := s.now().UTC()
	tx := Transaction{
		ID:            s.newID(),
		CreatedAt:     now,
		SourceChainID: req.SourceChainID,
		DestChainID:   req.DestChainID,
		Amount:        amount,
		// USDC is treated as 1:1 with USD unless the caller says otherwise.
		AmountUSD:     amount,
		Status:        status,
		TransferSpeed: req.TransferSpeed,
		WalletAddress: wallet,
		BurnTxHash:    req.BurnTxHash,
		MintTxHash:    req.MintTxHash,
		StartedAt:     now,
		DurationMs:    req.DurationMs,
	}
	if req.AmountUSD != nil {
		tx.AmountUSD = *req.AmountUSD
	}
	if req.StartedAt > 0 {
		tx.StartedAt = fromMillis(req.StartedAt)
	}
	if req.CompletedAt != nil {
		at := fromMillis(*req.CompletedAt)
		tx.CompletedAt = &at
	}

	if err := s.repo.CreateTransaction(ctx, tx); err != nil {
		return "", err
	}
	s.logger.Debugw("Tracked transaction", "id", tx.ID, "source", tx.SourceChainID, "destination", tx.DestChainID, "amount", tx.Amount)
	return tx.ID, nil
}

func (s *Service) UpdateTransaction(ctx context.Context, id string, req UpdateTransactionRequest) error {
	if strings.TrimSpace(id) == "" {
		return invalid("id is required")
	}
	if req.Status != nil && !req.Status.Valid() {
		return invalid("unknown status %q", *req.Status)
	}
	u := TransactionUpdate{
		Status:     req.Status,
		MintTxHash: req.MintTxHash,
		DurationMs: req.DurationMs,
	}
	if req.CompletedAt != nil {
		at := fromMillis(*req.CompletedAt)
		u.CompletedAt = &at
	}
	return s.repo.UpdateTransaction(ctx, id, u)
}

func (s *Service) TrackWallet(ctx context.Context, req TrackWalletRequest) error {
	wallet := strings.ToLower(strings.TrimSpace(req.WalletAddress))
	if wallet == "" {
		return invalid("walletAddress is required")
	}
	return s.repo.CreateWalletConnection(ctx, WalletConnection{
		ID:            s.newID(),
		WalletAddress: wallet,
		ChainID:       req.ChainID,
		CreatedAt:     s.now().UTC(),
	})
}

func (s *Service) TrackPageView(ctx context.Context, req TrackPageViewRequest, userAgent string) error {
	if strings.TrimSpace(req.Path) == "" {
		return invalid("path is required")
	}
	return s.repo.CreatePageView(ctx, PageView{
		ID:        s.newID(),
		Path:      req.Path,
		Referrer:  req.Referrer,
		UserAgent: userAgent,
		CreatedAt: s.now().UTC(),
	})
}

func (s *Service) Dashboard(ctx context.Context) (*Dashboard, error) {
	return s.repo.Dashboard(ctx, s.now())
}

// Transactions returns one newest-first page. Pages start at 1; the limit
// defaults to DefaultPageLimit and is capped at MaxPageLimit.
func (s *Service) Transactions(ctx context.Context, page, limit int) (*TransactionPage, error) {
	if page < 1 {
		page = 1
	}
	if page > MaxPage {
		page = MaxPage
	}
	if limit < 1 {
		limit = DefaultPageLimit
	}
	if limit > MaxPageLimit {
		limit = MaxPageLimit
	}

	txs, total, err := s.repo.ListTransactions(ctx, (page-1)*limit, limit)
	if err != nil {
		return nil, err
	}
	return &TransactionPage{
		Transactions: txs,
		Pagination: Pagination{
			Page:  page,
			Limit: limit,
			Total: total,
			Pages: (total + int64(limit) - 1) / int64(limit),
		},
	}, nil
}

// VerifyKey reports whether key matches the dashboard key after trimming.
func (s *Service) VerifyKey(key string) bool {
	key = strings.TrimSpace(key)
	valid := subtle.ConstantTimeCompare([]byte(key), []byte(s.key)) == 1
	s.logger.Infow("Analytics key verification", "valid", valid, "keyLength", len(key))
	return valid
}

// Authorize checks an Authorization header carrying "Bearer <key>".
func (s *Service) Authorize(header string) error {
	key, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || subtle.ConstantTimeCompare([]byte(key), []byte(s.key)) != 1 {
		return ErrUnauthorized
	}
	return nil
}

func (s *Service) Ping(ctx context.Context) error {
	return s.repo.Ping(ctx)
}
