package transfer

import (
	"errors"
	"fmt"
	"strings"

	"github.com/openbridge/openbridge-backend/internal/chains"
	"github.com/shopspring/decimal"
)

const (
	// StorageVersion tags the persisted container format. A stored container
	// with any other version is discarded on load.
	StorageVersion = 1
	// MaxTransfers bounds the container; older entries are dropped from the tail.
	MaxTransfers = 50
)

// Status is the overall outcome of a transfer.
type Status string

const (
	StatusPending Status = "pending"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// Speed selects the CCTP finality tier.
type Speed string

const (
	SpeedFast     Speed = "fast"
	SpeedStandard Speed = "standard"
)

// ParseSpeed validates a transfer speed.
func ParseSpeed(s string) (Speed, error) {
	switch Speed(strings.ToLower(strings.TrimSpace(s))) {
	case SpeedFast:
		return SpeedFast, nil
	case SpeedStandard:
		return SpeedStandard, nil
	}
	return "", fmt.Errorf("invalid transfer speed %q (must be fast or standard)", s)
}

// ErrInvalidSteps is returned when a patch would break the four-step order.
var ErrInvalidSteps = errors.New("steps must be approve, burn, fetchAttestation, mint")

// Transfer is the durable record of one bridge operation.
type Transfer struct {
	ID            string    `json:"id"`
	Version       int       `json:"version"`
	StartedAt     int64     `json:"startedAt"`
	CompletedAt   int64     `json:"completedAt,omitempty"`
	SourceChainID chains.ID `json:"sourceChainId"`
	DestChainID   chains.ID `json:"destChainId"`
	// Amount is a decimal string and never changes after creation.
	Amount        string   `json:"amount"`
	WalletAddress string   `json:"walletAddress"`
	TransferSpeed Speed    `json:"transferSpeed"`
	CurrentStep   StepName `json:"currentStep"`
	Steps         Steps    `json:"steps"`
	BurnTxHash    string   `json:"burnTxHash,omitempty"`
	MintTxHash    string   `json:"mintTxHash,omitempty"`
	Attestation   string   `json:"attestation,omitempty"`
	Status        Status   `json:"status"`
}

// Clone returns a deep copy of t.
func (t Transfer) Clone() Transfer {
	t.Steps = t.Steps.Clone()
	return t
}

// BelongsTo compares wallet addresses case-insensitively.
func (t Transfer) BelongsTo(wallet string) bool {
	return strings.EqualFold(t.WalletAddress, wallet)
}

// AmountDecimal parses the stored amount.
func (t Transfer) AmountDecimal() (decimal.Decimal, error) {
	return decimal.NewFromString(t.Amount)
}

// stepChain picks the chain a step's transaction lives on: the destination
// for mint, the source otherwise.
func (t Transfer) stepChain(name StepName) chains.ID {
	if name == StepMint {
		return t.DestChainID
	}
	return t.SourceChainID
}

// ExplorerURL derives the explorer link for a step, or "" when it has no tx hash.
func (t Transfer) ExplorerURL(name StepName) string {
	st := t.Steps.Find(name)
	if st == nil || st.TxHash == "" {
		return ""
	}
	return chains.ExplorerTxURL(t.stepChain(name), st.TxHash)
}

// StepsWithExplorerURLs returns a copy of the steps with ExplorerURL recomputed
// from chain id and tx hash.
func (t Transfer) StepsWithExplorerURLs() Steps {
	out := t.Steps.Clone()
	for i := range out {
		out[i].ExplorerURL = ""
		if out[i].TxHash != "" {
			out[i].ExplorerURL = chains.ExplorerTxURL(t.stepChain(out[i].Name), out[i].TxHash)
		}
	}
	return out
}

// DisplayTxHash is the hash a history view should link: the mint hash once a
// transfer succeeded, the burn hash otherwise. The chain id says where it lives.
func (t Transfer) DisplayTxHash() (string, chains.ID) {
	if t.Status == StatusSuccess && t.MintTxHash != "" {
		return t.MintTxHash, t.DestChainID
	}
	return t.BurnTxHash, t.SourceChainID
}

// Patch is a shallow, field-level update. Nil fields are left untouched.
// Amount and WalletAddress have no patch field and cannot change.
type Patch struct {
	CompletedAt *int64
	CurrentStep *StepName
	// Steps, when set, replaces all four steps.
	Steps       Steps
	BurnTxHash  *string
	MintTxHash  *string
	Attestation *string
	Status      *Status
}

// Apply merges p into t.
func (p Patch) Apply(t *Transfer) error {
	if p.Steps != nil {
		if !p.Steps.Valid() {
			return ErrInvalidSteps
		}
		t.Steps = p.Steps.Clone()
	}
	if p.CompletedAt != nil {
		t.CompletedAt = *p.CompletedAt
	}
	if p.CurrentStep != nil {
		t.CurrentStep = *p.CurrentStep
	}
	if p.BurnTxHash != nil {
		t.BurnTxHash = *p.BurnTxHash
	}
	if p.MintTxHash != nil {
		t.MintTxHash = *p.MintTxHash
	}
	if p.Attestation != nil {
		t.Attestation = *p.Attestation
	}
	if p.Status != nil {
		t.Status = *p.Status
	}
	return nil
}

// Ptr returns a pointer to v, for building patches.
func Ptr[T any](v T) *T { return &v }

// Container is the persisted document holding every transfer, most recent first.
type Container struct {
	Version   int        `json:"version"`
	Transfers []Transfer `json:"transfers"`
}

// NewContainer returns an empty container at the current version.
func NewContainer() Container {
	return Container{Version: StorageVersion, Transfers: []Transfer{}}
}
