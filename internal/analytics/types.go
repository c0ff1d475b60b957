package analytics

import (
	"time"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusPending Status = "pending"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusSuccess, StatusFailed:
		return true
	}
	return false
}

// Transaction is one tracked bridge transfer.
type Transaction struct {
	ID            string          `json:"id"`
	CreatedAt     time.Time       `json:"createdAt"`
	SourceChainID int64           `json:"sourceChainId"`
	DestChainID   int64           `json:"destChainId"`
	Amount        decimal.Decimal `json:"amount"`
	AmountUSD     decimal.Decimal `json:"amountUsd"`
	Status        Status          `json:"status"`
	TransferSpeed string          `json:"transferSpeed"`
	WalletAddress string          `json:"walletAddress"`
	BurnTxHash    string          `json:"burnTxHash,omitempty"`
	MintTxHash    string          `json:"mintTxHash,omitempty"`
	StartedAt     time.Time       `json:"startedAt"`
	CompletedAt   *time.Time      `json:"completedAt,omitempty"`
	DurationMs    *int64          `json:"durationMs,omitempty"`
}

// TransactionUpdate carries the fields a status update may change. Nil
// fields are left untouched.
type TransactionUpdate struct {
	Status      *Status
	MintTxHash  *string
	CompletedAt *time.Time
	DurationMs  *int64
}

type WalletConnection struct {
	ID            string    `json:"id"`
	WalletAddress string    `json:"walletAddress"`
	ChainID       *int64    `json:"chainId,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

type PageView struct {
	ID        string    `json:"id"`
	Path      string    `json:"path"`
	Referrer  string    `json:"referrer,omitempty"`
	UserAgent string    `json:"userAgent,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Request bodies of the tracking endpoints. Timestamps are unix milliseconds.

type TrackTransactionRequest struct {
	SourceChainID int64            `json:"sourceChainId"`
	DestChainID   int64            `json:"destChainId"`
	Amount        string           `json:"amount"`
	AmountUSD     *decimal.Decimal `json:"amountUsd,omitempty"`
	Status        Status           `json:"status"`
	TransferSpeed string           `json:"transferSpeed"`
	WalletAddress string           `json:"walletAddress"`
	BurnTxHash    string           `json:"burnTxHash,omitempty"`
	MintTxHash    string           `json:"mintTxHash,omitempty"`
	StartedAt     int64            `json:"startedAt"`
	CompletedAt   *int64           `json:"completedAt,omitempty"`
	DurationMs    *int64           `json:"durationMs,omitempty"`
}

type UpdateTransactionRequest struct {
	Status      *Status `json:"status,omitempty"`
	MintTxHash  *string `json:"mintTxHash,omitempty"`
	CompletedAt *int64  `json:"completedAt,omitempty"`
	DurationMs  *int64  `json:"durationMs,omitempty"`
}

type TrackWalletRequest struct {
	WalletAddress string `json:"walletAddress"`
	ChainID       *int64 `json:"chainId,omitempty"`
}

type TrackPageViewRequest struct {
	Path     string `json:"path"`
	Referrer string `json:"referrer,omitempty"`
}

// Dashboard aggregates.

type Totals struct {
	Transactions           int64           `json:"transactions"`
	SuccessfulTransactions int64           `json:"successfulTransactions"`
	Volume                 decimal.Decimal `json:"volume"`
	UniqueWallets          int64           `json:"uniqueWallets"`
	PageViews              int64           `json:"pageViews"`
}

type DayStats struct {
	Transactions  int64           `json:"transactions"`
	Volume        decimal.Decimal `json:"volume"`
	UniqueWallets int64           `json:"uniqueWallets"`
	PageViews     int64           `json:"pageViews"`
}

type WeekStats struct {
	Transactions  int64           `json:"transactions"`
	Volume        decimal.Decimal `json:"volume"`
	UniqueWallets int64           `json:"uniqueWallets"`
}

type ChainStat struct {
	SourceChainID int64           `json:"sourceChainId"`
	DestChainID   int64           `json:"destChainId"`
	Count         int64           `json:"count"`
	Volume        decimal.Decimal `json:"volume"`
}

type DailyVolume struct {
	Date   string          `json:"date"` // YYYY-MM-DD, UTC
	Count  int64           `json:"count"`
	Volume decimal.Decimal `json:"volume"`
}

type Dashboard struct {
	Totals             Totals        `json:"totals"`
	Today              DayStats      `json:"today"`
	Week               WeekStats     `json:"week"`
	ChainStats         []ChainStat   `json:"chainStats"`
	RecentTransactions []Transaction `json:"recentTransactions"`
	DailyVolume        []DailyVolume `json:"dailyVolume"`
}

type Pagination struct {
	Page  int   `json:"page"`
	Limit int   `json:"limit"`
	Total int64 `json:"total"`
	Pages int64 `json:"pages"`
}

type TransactionPage struct {
	Transactions []Transaction `json:"transactions"`
	Pagination   Pagination    `json:"pagination"`
}
