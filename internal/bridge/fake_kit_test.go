package bridge

import (
	"context"
	"sync"

	"github.com/openbridge/openbridge-backend/internal/fees"
	"github.com/openbridge/openbridge-backend/internal/transfer"
	"github.com/stretchr/testify/mock"
)

// scriptedKit replays a fixed list of step events and then returns a fixed
// result. With pause set it stops after pauseAfter events, signals paused and
// waits for the run context to be cancelled.
type scriptedKit struct {
	events []StepEvent
	result *Result
	err    error

	pause      bool
	pauseAfter int
	paused     chan struct{}

	estimate    func(ctx context.Context, req EstimateRequest) (*Estimate, error)
	estimateReq chan EstimateRequest

	mu          sync.Mutex
	bridgeCalls int
	retryCalls  int
	estimates   int
	lastBridge  BridgeRequest
	lastRetry   RetryRequest
	seenStates  []State
	orch        *Orchestrator
}

func successResult(burn, mint string) *Result {
	return &Result{State: ResultSuccess, Steps: []StepSnapshot{
		{Name: transfer.StepApprove, State: transfer.StateSuccess, TxHash: "0xapprove"},
		{Name: transfer.StepBurn, State: transfer.StateSuccess, TxHash: burn},
		{Name: transfer.StepFetchAttestation, State: transfer.StateSuccess},
		{Name: transfer.StepMint, State: transfer.StateSuccess, TxHash: mint},
	}}
}

func fullEvents() []StepEvent {
	return []StepEvent{
		{Step: transfer.StepApprove, TxHash: "0xapprove"},
		{Step: transfer.StepBurn, TxHash: "0xburn", BlockNumber: 19_000_000},
		{Step: transfer.StepFetchAttestation, Attestation: "0xattestation"},
		{Step: transfer.StepMint, TxHash: "0xmint"},
	}
}

func (k *scriptedKit) play(ctx context.Context, events chan<- StepEvent) (*Result, error) {
	if k.orch != nil {
		k.mu.Lock()
		k.seenStates = append(k.seenStates, k.orch.Snapshot().State)
		k.mu.Unlock()
	}
	for i, ev := range k.events {
		if k.pause && i == k.pauseAfter {
			close(k.paused)
			<-ctx.Done()
			return nil, ctx.Err()
		}
		select {
		case events <- ev:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if k.pause && k.pauseAfter >= len(k.events) {
		close(k.paused)
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return k.result, k.err
}

func (k *scriptedKit) Bridge(ctx context.Context, req BridgeRequest, events chan<- StepEvent) (*Result, error) {
	k.mu.Lock()
	k.bridgeCalls++
	k.lastBridge = req
	k.mu.Unlock()
	return k.play(ctx, events)
}

func (k *scriptedKit) Retry(ctx context.Context, req RetryRequest, events chan<- StepEvent) (*Result, error) {
	k.mu.Lock()
	k.retryCalls++
	k.lastRetry = req
	k.mu.Unlock()
	return k.play(ctx, events)
}

func (k *scriptedKit) Estimate(ctx context.Context, req EstimateRequest) (*Estimate, error) {
	k.mu.Lock()
	k.estimates++
	k.mu.Unlock()
	if k.estimateReq != nil {
		k.estimateReq <- req
	}
	if k.estimate != nil {
		return k.estimate(ctx, req)
	}
	return &Estimate{}, nil
}

func (k *scriptedKit) calls() (bridge, retry, estimate int) {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.bridgeCalls, k.retryCalls, k.estimates
}

type mockQuoter struct {
	mock.Mock
}

func (m *mockQuoter) Quote(ctx context.Context, src, dst uint32) fees.Quote {
	args := m.Called(ctx, src, dst)
	return args.Get(0).(fees.Quote)
}

type mockReporter struct {
	mock.Mock
}

func (m *mockReporter) TransferStarted(ctx context.Context, t transfer.Transfer) {
	m.Called(ctx, t)
}

func (m *mockReporter) TransferFinished(ctx context.Context, t transfer.Transfer) {
	m.Called(ctx, t)
}
