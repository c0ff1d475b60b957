package bridge

import (
	"context"

	"github.com/openbridge/openbridge-backend/internal/transfer"
	"github.com/shopspring/decimal"
)

// Leg is one side of a transfer as the bridge SDK sees it.
type Leg struct {
	// Chain is the SDK's chain identifier, see chains.KitName.
	Chain   string `json:"chain"`
	Address string `json:"address,omitempty"`
}

type EstimateRequest struct {
	From   Leg    `json:"from"`
	To     Leg    `json:"to"`
	Amount string `json:"amount"`
}

// Gas leg names reported by Kit.Estimate.
const (
	GasSource      = "source"
	GasDestination = "destination"
)

// GasFee is the gas cost of one leg in USD. GasPrice is in wei and may be zero
// when the SDK does not report it.
type GasFee struct {
	Name     string          `json:"name"`
	Fees     decimal.Decimal `json:"fees"`
	GasPrice decimal.Decimal `json:"gasPrice"`
}

// FeeProvider is the fee type carrying the bridge provider's charge.
const FeeProvider = "provider"

type Fee struct {
	Type   string `json:"type"`
	Amount string `json:"amount"`
}

// Estimate is the SDK's raw cost estimate.
type Estimate struct {
	GasFees []GasFee `json:"gasFees"`
	Fees    []Fee    `json:"fees"`
}

func (e *Estimate) gas(name string) (GasFee, bool) {
	for _, g := range e.GasFees {
		if g.Name == name {
			return g, true
		}
	}
	return GasFee{}, false
}

func (e *Estimate) fee(typ string) (string, bool) {
	for _, f := range e.Fees {
		if f.Type == typ {
			return f.Amount, true
		}
	}
	return "", false
}

type BridgeRequest struct {
	From                 Leg            `json:"from"`
	To                   Leg            `json:"to"`
	Amount               string         `json:"amount"`
	TransferSpeed        transfer.Speed `json:"transferSpeed"`
	MinFinalityThreshold int            `json:"minFinalityThreshold"`
}

// StepSnapshot is the SDK's view of one step.
type StepSnapshot struct {
	Name   transfer.StepName  `json:"name"`
	State  transfer.StepState `json:"state"`
	TxHash string             `json:"txHash,omitempty"`
}

func snapshotSteps(steps transfer.Steps) []StepSnapshot {
	out := make([]StepSnapshot, len(steps))
	for i, st := range steps {
		out[i] = StepSnapshot{Name: st.Name, State: st.State, TxHash: st.TxHash}
	}
	return out
}

// RetryRequest seeds the SDK with a transfer's completed steps so it continues
// instead of starting over.
type RetryRequest struct {
	State       ResultState    `json:"state"`
	Steps       []StepSnapshot `json:"steps"`
	Source      Leg            `json:"source"`
	Destination Leg            `json:"destination"`
	Attestation string         `json:"attestation,omitempty"`
}

// StepEvent signals that a step finished on the SDK side.
type StepEvent struct {
	Step        transfer.StepName `json:"step"`
	TxHash      string            `json:"txHash,omitempty"`
	BlockNumber uint64            `json:"blockNumber,omitempty"`
	// Attestation carries the payload on fetchAttestation events.
	Attestation string `json:"attestation,omitempty"`
}

type ResultState string

const (
	ResultPending ResultState = "pending"
	ResultSuccess ResultState = "success"
	ResultError   ResultState = "error"
)

// Result is the terminal outcome of Bridge or Retry.
type Result struct {
	State ResultState    `json:"state"`
	Steps []StepSnapshot `json:"steps"`
}

// TxHash returns the hash the result reports for a step.
func (r *Result) TxHash(name transfer.StepName) string {
	if r == nil {
		return ""
	}
	for _, s := range r.Steps {
		if s.Name == name {
			return s.TxHash
		}
	}
	return ""
}

// Kit is the cross-chain transfer SDK. Bridge and Retry send a StepEvent on
// events as each step completes, in order, and return once the transfer is
// terminal. They must not send after returning and must give up when ctx is
// cancelled.
type Kit interface {
	Estimate(ctx context.Context, req EstimateRequest) (*Estimate, error)
	Bridge(ctx context.Context, req BridgeRequest, events chan<- StepEvent) (*Result, error)
	Retry(ctx context.Context, req RetryRequest, events chan<- StepEvent) (*Result, error)
}
