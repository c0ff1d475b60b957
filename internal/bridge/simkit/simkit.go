// Package simkit is an in-process stand-in for the cross-chain transfer SDK.
// It walks the four CCTP steps with configurable delays and can be told to
// fail or stall at a given step, which is enough to drive the orchestrator
// end to end without touching a chain.
package simkit

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/openbridge/openbridge-backend/internal/bridge"
	"github.com/openbridge/openbridge-backend/internal/transfer"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// DefaultStepDelay is how long each simulated step takes.
const DefaultStepDelay = 200 * time.Millisecond

type chainProfile struct {
	gasUSD   decimal.Decimal
	gasPrice decimal.Decimal // wei
	block    uint64
}

// Keyed by chains.Chain.KitName.
var profiles = map[string]chainProfile{
	"Ethereum":    {gasUSD: decimal.RequireFromString("1.2450"), gasPrice: decimal.NewFromInt(18_500_000_000), block: 21_000_000},
	"Avalanche":   {gasUSD: decimal.RequireFromString("0.0410"), gasPrice: decimal.NewFromInt(25_000_000_000), block: 54_000_000},
	"OP Mainnet":  {gasUSD: decimal.RequireFromString("0.0065"), gasPrice: decimal.NewFromInt(1_000_000), block: 128_000_000},
	"Arbitrum":    {gasUSD: decimal.RequireFromString("0.0120"), gasPrice: decimal.NewFromInt(10_000_000), block: 280_000_000},
	"Base":        {gasUSD: decimal.RequireFromString("0.0048"), gasPrice: decimal.NewFromInt(5_000_000), block: 23_000_000},
	"Polygon PoS": {gasUSD: decimal.RequireFromString("0.0090"), gasPrice: decimal.NewFromInt(30_000_000_000), block: 65_000_000},
}

// Messages mimic what wallets and the SDK report for each step.
var failures = map[transfer.StepName]string{
	transfer.StepApprove:          "User rejected the request.",
	transfer.StepBurn:             "execution reverted: burn amount exceeds allowance",
	transfer.StepFetchAttestation: "attestation not yet available for message",
	transfer.StepMint:             "execution reverted: nonce already used",
}

type Kit struct {
	delay       time.Duration
	failAt      transfer.StepName
	interruptAt transfer.StepName
	onInterrupt func()
	logger      *zap.SugaredLogger

	mu     sync.Mutex
	blocks map[string]uint64
}

type Option func(*Kit)

func WithStepDelay(d time.Duration) Option {
	return func(k *Kit) { k.delay = d }
}

// WithFailAt makes the given step fail with a realistic SDK error.
func WithFailAt(step transfer.StepName) Option {
	return func(k *Kit) { k.failAt = step }
}

// WithInterruptAt stalls before the given step, calls fn and then waits for
// the run context to be cancelled.
func WithInterruptAt(step transfer.StepName, fn func()) Option {
	return func(k *Kit) {
		k.interruptAt = step
		k.onInterrupt = fn
	}
}

func New(logger *zap.SugaredLogger, opts ...Option) *Kit {
	k := &Kit{
		delay:  DefaultStepDelay,
		logger: logger,
		blocks: make(map[string]uint64),
	}
	for _, opt := range opts {
		opt(k)
	}
	return k
}

func (k *Kit) Estimate(ctx context.Context, req bridge.EstimateRequest) (*bridge.Estimate, error) {
	src, dst, err := k.legs(req.From, req.To, req.Amount)
	if err != nil {
		return nil, err
	}
	if err := k.sleep(ctx); err != nil {
		return nil, err
	}
	return &bridge.Estimate{
		GasFees: []bridge.GasFee{
			// approve plus burn on the source chain
			{Name: bridge.GasSource, Fees: src.gasUSD.Mul(decimal.NewFromInt(2)), GasPrice: src.gasPrice},
			{Name: bridge.GasDestination, Fees: dst.gasUSD, GasPrice: dst.gasPrice},
		},
		Fees: []bridge.Fee{{Type: bridge.FeeProvider, Amount: "0"}},
	}, nil
}

func (k *Kit) Bridge(ctx context.Context, req bridge.BridgeRequest, events chan<- bridge.StepEvent) (*bridge.Result, error) {
	if _, _, err := k.legs(req.From, req.To, req.Amount); err != nil {
		return nil, err
	}
	steps := make([]bridge.StepSnapshot, 0, 4)
	for _, name := range transfer.StepNames() {
		steps = append(steps, bridge.StepSnapshot{Name: name, State: transfer.StatePending})
	}
	k.logger.Debugw("Simulated bridge started", "from", req.From.Chain, "to", req.To.Chain, "amount", req.Amount, "speed", req.TransferSpeed)
	return k.run(ctx, steps, req.From.Chain, req.To.Chain, events)
}

// Retry continues from the first step that has not succeeded.
func (k *Kit) Retry(ctx context.Context, req bridge.RetryRequest, events chan<- bridge.StepEvent) (*bridge.Result, error) {
	if _, ok := profiles[req.Source.Chain]; !ok {
		return nil, fmt.Errorf("unsupported chain: %s", req.Source.Chain)
	}
	if _, ok := profiles[req.Destination.Chain]; !ok {
		return nil, fmt.Errorf("unsupported chain: %s", req.Destination.Chain)
	}
	steps := append([]bridge.StepSnapshot(nil), req.Steps...)
	k.logger.Debugw("Simulated retry started", "from", req.Source.Chain, "to", req.Destination.Chain)
	return k.run(ctx, steps, req.Source.Chain, req.Destination.Chain, events)
}

func (k *Kit) run(ctx context.Context, steps []bridge.StepSnapshot, src, dst string, events chan<- bridge.StepEvent) (*bridge.Result, error) {
	for i := range steps {
		st := &steps[i]
		if st.State == transfer.StateSuccess {
			continue
		}
		if st.Name == k.interruptAt {
			if k.onInterrupt != nil {
				k.onInterrupt()
			}
			<-ctx.Done()
			return nil, ctx.Err()
		}
		if err := k.sleep(ctx); err != nil {
			return nil, err
		}
		if st.Name == k.failAt {
			return nil, fmt.Errorf("%s", failures[st.Name])
		}

		ev := bridge.StepEvent{Step: st.Name}
		switch st.Name {
		case transfer.StepApprove, transfer.StepBurn:
			ev.TxHash = randomHex(32)
			ev.BlockNumber = k.nextBlock(src)
		case transfer.StepFetchAttestation:
			ev.Attestation = randomHex(65)
		case transfer.StepMint:
			ev.TxHash = randomHex(32)
			ev.BlockNumber = k.nextBlock(dst)
		}
		st.State = transfer.StateSuccess
		st.TxHash = ev.TxHash

		select {
		case events <- ev:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return &bridge.Result{State: bridge.ResultSuccess, Steps: steps}, nil
}

func (k *Kit) legs(from, to bridge.Leg, amount string) (chainProfile, chainProfile, error) {
	src, ok := profiles[from.Chain]
	if !ok {
		return chainProfile{}, chainProfile{}, fmt.Errorf("unsupported chain: %s", from.Chain)
	}
	dst, ok := profiles[to.Chain]
	if !ok {
		return chainProfile{}, chainProfile{}, fmt.Errorf("unsupported chain: %s", to.Chain)
	}
	if d, err := decimal.NewFromString(amount); err != nil || !d.IsPositive() {
		return chainProfile{}, chainProfile{}, fmt.Errorf("invalid amount %q", amount)
	}
	return src, dst, nil
}

func (k *Kit) nextBlock(chain string) uint64 {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.blocks[chain] == 0 {
		k.blocks[chain] = profiles[chain].block
	}
	k.blocks[chain]++
	return k.blocks[chain]
}

func (k *Kit) sleep(ctx context.Context) error {
	if k.delay <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(k.delay)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func randomHex(n int) string {
	b := make([]byte, n)
	_, _ = rand.Read(b)
	return "0x" + hex.EncodeToString(b)
}
