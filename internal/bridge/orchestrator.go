// Package bridge drives USDC transfers through the cross-chain SDK. The
// Orchestrator runs the transfer state machine, mirrors every step transition
// into the persistence store and resumes transfers interrupted after the burn.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/openbridge/openbridge-backend/internal/chains"
	"github.com/openbridge/openbridge-backend/internal/fees"
	"github.com/openbridge/openbridge-backend/internal/storage"
	"github.com/openbridge/openbridge-backend/internal/transfer"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// HistoryLimit bounds History results.
const HistoryLimit = 10

// State is the orchestrator's lifecycle state.
type State string

const (
	StateIdle       State = "idle"
	StateEstimating State = "estimating"
	StateConfirming State = "confirming"
	StateBridging   State = "bridging"
	StateSuccess    State = "success"
	StateError      State = "error"
)

// Reporter receives best-effort lifecycle notifications. Implementations must
// not block.
type Reporter interface {
	TransferStarted(ctx context.Context, t transfer.Transfer)
	TransferFinished(ctx context.Context, t transfer.Transfer)
}

// Recorder receives metrics.
type Recorder interface {
	RecordTransferStarted(ctx context.Context, speed string)
	RecordTransferFinished(ctx context.Context, status string, d time.Duration)
	RecordStepDuration(ctx context.Context, step string, d time.Duration)
	RecordEstimate(ctx context.Context, outcome string)
}

// FeeQuoter looks up CCTP fee rates for a route.
type FeeQuoter interface {
	Quote(ctx context.Context, srcDomain, dstDomain uint32) fees.Quote
}

type nopReporter struct{}

func (nopReporter) TransferStarted(context.Context, transfer.Transfer)  {}
func (nopReporter) TransferFinished(context.Context, transfer.Transfer) {}

type nopRecorder struct{}

func (nopRecorder) RecordTransferStarted(context.Context, string)                 {}
func (nopRecorder) RecordTransferFinished(context.Context, string, time.Duration) {}
func (nopRecorder) RecordStepDuration(context.Context, string, time.Duration)     {}
func (nopRecorder) RecordEstimate(context.Context, string)                        {}

// Snapshot is the observable orchestrator state.
type Snapshot struct {
	State         State             `json:"state"`
	TransferID    string            `json:"transferId,omitempty"`
	Steps         transfer.Steps    `json:"steps"`
	CurrentStep   transfer.StepName `json:"currentStep,omitempty"`
	StartedAt     int64             `json:"startedAt,omitempty"`
	SourceChainID chains.ID         `json:"sourceChainId,omitempty"`
	DestChainID   chains.ID         `json:"destChainId,omitempty"`
	Amount        string            `json:"amount,omitempty"`
	Speed         transfer.Speed    `json:"transferSpeed,omitempty"`
	Estimate      *EstimateResult   `json:"estimate,omitempty"`
	Err           *Error            `json:"error,omitempty"`
}

func (s Snapshot) clone() Snapshot {
	view := transfer.Transfer{SourceChainID: s.SourceChainID, DestChainID: s.DestChainID, Steps: s.Steps}
	s.Steps = view.StepsWithExplorerURLs()
	return s
}

func idleSnapshot() Snapshot {
	return Snapshot{State: StateIdle, Steps: transfer.NewSteps()}
}

// ExecuteRequest starts a fresh transfer.
type ExecuteRequest struct {
	Wallet        string
	SourceChainID chains.ID
	DestChainID   chains.ID
	Amount        string
	Speed         transfer.Speed
}

type Orchestrator struct {
	kit      Kit
	store    *storage.Store
	quoter   FeeQuoter
	reporter Reporter
	recorder Recorder
	logger   *zap.SugaredLogger
	now      func() time.Time
	newID    func() string
	observer func(Snapshot)

	mu        sync.Mutex
	snap      Snapshot
	subs      map[int]chan Snapshot
	nextSub   int
	runGen    uint64
	cancelRun context.CancelFunc
	estGen    uint64
	cancelEst context.CancelFunc
}

type Option func(*Orchestrator)

func WithReporter(r Reporter) Option {
	return func(o *Orchestrator) {
		if r != nil {
			o.reporter = r
		}
	}
}

func WithRecorder(r Recorder) Option {
	return func(o *Orchestrator) {
		if r != nil {
			o.recorder = r
		}
	}
}

func WithFeeQuoter(q FeeQuoter) Option {
	return func(o *Orchestrator) { o.quoter = q }
}

// WithObserver registers fn to be called synchronously on every state change,
// in order. fn must not call back into the Orchestrator.
func WithObserver(fn func(Snapshot)) Option {
	return func(o *Orchestrator) { o.observer = fn }
}

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

func WithIDGenerator(gen func() string) Option {
	return func(o *Orchestrator) { o.newID = gen }
}

// NewTransferID returns a time-ordered UUIDv7.
func NewTransferID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

func NewOrchestrator(kit Kit, store *storage.Store, logger *zap.SugaredLogger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		kit:      kit,
		store:    store,
		reporter: nopReporter{},
		recorder: nopRecorder{},
		logger:   logger,
		now:      time.Now,
		newID:    NewTransferID,
		snap:     idleSnapshot(),
		subs:     make(map[int]chan Snapshot),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Snapshot returns the current state. Step explorer URLs are derived from the
// transfer's chains.
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snap.clone()
}

// Subscribe streams snapshots, starting with the current one. A slow
// subscriber only sees the latest snapshot. Call the returned func to stop.
func (o *Orchestrator) Subscribe() (<-chan Snapshot, func()) {
	o.mu.Lock()
	defer o.mu.Unlock()

	id := o.nextSub
	o.nextSub++
	ch := make(chan Snapshot, 1)
	ch <- o.snap.clone()
	o.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			o.mu.Lock()
			defer o.mu.Unlock()
			delete(o.subs, id)
			close(ch)
		})
	}
}

// publishLocked must be called with o.mu held.
func (o *Orchestrator) publishLocked() {
	s := o.snap.clone()
	if o.observer != nil {
		o.observer(s)
	}
	for _, ch := range o.subs {
		select {
		case ch <- s:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- s:
			default:
			}
		}
	}
}

// Reset cancels any running transfer or estimate and returns to idle. A
// cancelled transfer keeps its persisted record as is.
func (o *Orchestrator) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.cancelRun != nil {
		o.cancelRun()
		o.cancelRun = nil
	}
	o.runGen++
	if o.cancelEst != nil {
		o.cancelEst()
		o.cancelEst = nil
	}
	o.estGen++
	o.snap = idleSnapshot()
	o.publishLocked()
}

// History returns the wallet's most recent transfers.
func (o *Orchestrator) History(ctx context.Context, wallet string) []transfer.Transfer {
	list := o.store.ListByWallet(ctx, wallet)
	if len(list) > HistoryLimit {
		list = list[:HistoryLimit]
	}
	return list
}

// Resumable returns the wallet's transfers that Resume accepts.
func (o *Orchestrator) Resumable(ctx context.Context, wallet string) []transfer.Transfer {
	return o.store.Resumable(ctx, wallet)
}

func (o *Orchestrator) validate(wallet string, src, dst chains.ID, amount string) (chains.Chain, chains.Chain, decimal.Decimal, error) {
	if strings.TrimSpace(wallet) == "" {
		return chains.Chain{}, chains.Chain{}, decimal.Zero, ErrWalletNotConnected
	}
	srcChain, ok := chains.Lookup(src)
	if !ok {
		return chains.Chain{}, chains.Chain{}, decimal.Zero, fmt.Errorf("%w: source %d", ErrUnsupportedChain, src)
	}
	dstChain, ok := chains.Lookup(dst)
	if !ok {
		return chains.Chain{}, chains.Chain{}, decimal.Zero, fmt.Errorf("%w: destination %d", ErrUnsupportedChain, dst)
	}
	amt, err := decimal.NewFromString(strings.TrimSpace(amount))
	if err != nil || !amt.IsPositive() {
		return chains.Chain{}, chains.Chain{}, decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, amount)
	}
	return srcChain, dstChain, amt, nil
}

func (o *Orchestrator) beginRun(ctx context.Context) (context.Context, context.CancelFunc, uint64) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.cancelRun != nil {
		o.cancelRun()
	}
	if o.cancelEst != nil {
		o.cancelEst()
		o.cancelEst = nil
	}
	o.estGen++

	runCtx, cancel := context.WithCancel(ctx)
	o.runGen++
	o.cancelRun = cancel
	return runCtx, cancel, o.runGen
}

// updateRun applies fn only while gen is the current run.
func (o *Orchestrator) updateRun(gen uint64, fn func(*Snapshot)) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	if gen != o.runGen {
		return false
	}
	fn(&o.snap)
	o.publishLocked()
	return true
}

func (o *Orchestrator) persist(ctx context.Context, id string, p transfer.Patch) {
	if _, err := o.store.Patch(ctx, id, p); err != nil {
		o.logger.Warnw("Failed to persist transfer update", "transferId", id, "error", err)
	}
}

// Execute runs a fresh transfer to completion. Precondition failures return
// before anything is persisted or the state changes.
func (o *Orchestrator) Execute(ctx context.Context, req ExecuteRequest) (transfer.Transfer, error) {
	src, dst, amount, err := o.validate(req.Wallet, req.SourceChainID, req.DestChainID, req.Amount)
	if err != nil {
		return transfer.Transfer{}, Classify(err)
	}
	speed := req.Speed
	if speed == "" {
		speed = transfer.SpeedStandard
	}

	runCtx, cancel, gen := o.beginRun(ctx)
	defer cancel()
	storeCtx := context.WithoutCancel(ctx)

	t := transfer.Transfer{
		ID:            o.newID(),
		Version:       transfer.StorageVersion,
		StartedAt:     o.now().UnixMilli(),
		SourceChainID: src.ID,
		DestChainID:   dst.ID,
		Amount:        amount.String(),
		WalletAddress: req.Wallet,
		TransferSpeed: speed,
		CurrentStep:   transfer.StepApprove,
		Steps:         transfer.NewSteps(),
		Status:        transfer.StatusPending,
	}
	o.store.Upsert(storeCtx, t)
	o.reporter.TransferStarted(storeCtx, t)
	o.recorder.RecordTransferStarted(storeCtx, string(speed))
	o.logger.Infow("Transfer started", "transferId", t.ID, "source", src.Name,
		"destination", dst.Name, "amount", t.Amount, "speed", speed)

	o.updateRun(gen, func(s *Snapshot) {
		*s = Snapshot{
			State:         StateConfirming,
			TransferID:    t.ID,
			Steps:         t.Steps.Clone(),
			CurrentStep:   transfer.StepApprove,
			StartedAt:     t.StartedAt,
			SourceChainID: t.SourceChainID,
			DestChainID:   t.DestChainID,
			Amount:        t.Amount,
			Speed:         speed,
			Estimate:      s.Estimate,
		}
	})

	events, done := o.consume(runCtx, storeCtx, gen, t)
	o.updateRun(gen, func(s *Snapshot) { s.State = StateBridging })
	o.markInProgress(storeCtx, gen, t.ID, transfer.StepApprove)

	result, runErr := o.kit.Bridge(runCtx, BridgeRequest{
		From:                 Leg{Chain: src.KitName, Address: req.Wallet},
		To:                   Leg{Chain: dst.KitName, Address: req.Wallet},
		Amount:               t.Amount,
		TransferSpeed:        speed,
		MinFinalityThreshold: fees.MinFinalityThreshold(speed),
	}, events)
	close(events)
	<-done

	return o.finish(storeCtx, runCtx, gen, t, result, runErr)
}

// Resume continues a transfer whose burn landed but whose mint did not. It is
// rejected without touching the store or the SDK unless wallet owns the
// transfer and it is resumable.
func (o *Orchestrator) Resume(ctx context.Context, wallet, transferID string) (transfer.Transfer, error) {
	if strings.TrimSpace(wallet) == "" {
		return transfer.Transfer{}, Classify(ErrWalletNotConnected)
	}
	t, err := o.store.Get(ctx, transferID)
	if err != nil {
		return transfer.Transfer{}, Classify(err)
	}
	if !t.BelongsTo(wallet) {
		return transfer.Transfer{}, Classify(ErrWalletMismatch)
	}
	if !t.Steps.Valid() || !transfer.CanResume(t) {
		return transfer.Transfer{}, Classify(ErrNotResumable)
	}
	if t.BurnTxHash == "" {
		return transfer.Transfer{}, Classify(ErrMissingBurnTx)
	}
	src, ok := chains.Lookup(t.SourceChainID)
	if !ok {
		return transfer.Transfer{}, Classify(fmt.Errorf("%w: source %d", ErrUnsupportedChain, t.SourceChainID))
	}
	dst, ok := chains.Lookup(t.DestChainID)
	if !ok {
		return transfer.Transfer{}, Classify(fmt.Errorf("%w: destination %d", ErrUnsupportedChain, t.DestChainID))
	}
	point, _ := transfer.ResumptionPoint(t)

	runCtx, cancel, gen := o.beginRun(ctx)
	defer cancel()
	storeCtx := context.WithoutCancel(ctx)

	// An in_progress mark from an earlier session cannot be trusted.
	steps := t.Steps.Clone()
	for i := range steps {
		if steps[i].State == transfer.StateInProgress {
			steps[i].State = transfer.StatePending
		}
	}
	resumed := steps.Find(point)
	resumed.State = transfer.StateInProgress
	resumed.Error = ""
	if resumed.StartedAt == 0 {
		resumed.StartedAt = o.now().UnixMilli()
	}

	o.logger.Infow("Resuming transfer", "transferId", t.ID, "step", point, "burnTxHash", t.BurnTxHash)
	o.updateRun(gen, func(s *Snapshot) {
		*s = Snapshot{
			State:         StateBridging,
			TransferID:    t.ID,
			Steps:         steps.Clone(),
			CurrentStep:   point,
			StartedAt:     t.StartedAt,
			SourceChainID: t.SourceChainID,
			DestChainID:   t.DestChainID,
			Amount:        t.Amount,
			Speed:         t.TransferSpeed,
		}
	})
	o.persist(storeCtx, t.ID, transfer.Patch{Steps: steps, CurrentStep: &point})

	events, done := o.consume(runCtx, storeCtx, gen, t)
	result, runErr := o.kit.Retry(runCtx, RetryRequest{
		State:       ResultPending,
		Steps:       snapshotSteps(steps),
		Source:      Leg{Chain: src.KitName, Address: t.WalletAddress},
		Destination: Leg{Chain: dst.KitName, Address: t.WalletAddress},
		Attestation: t.Attestation,
	}, events)
	close(events)
	<-done

	return o.finish(storeCtx, runCtx, gen, t, result, runErr)
}

// consume applies step events in arrival order until events is closed. Events
// of a cancelled run are drained without being applied.
func (o *Orchestrator) consume(runCtx, storeCtx context.Context, gen uint64, t transfer.Transfer) (chan StepEvent, <-chan struct{}) {
	events := make(chan StepEvent, len(transfer.StepNames()))
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range events {
			if runCtx.Err() != nil {
				continue
			}
			o.applyEvent(storeCtx, gen, t, ev)
		}
	}()
	return events, done
}

func (o *Orchestrator) markInProgress(ctx context.Context, gen uint64, id string, name transfer.StepName) {
	now := o.now().UnixMilli()
	var steps transfer.Steps
	if !o.updateRun(gen, func(s *Snapshot) {
		st := s.Steps.Find(name)
		if st == nil {
			return
		}
		st.State = transfer.StateInProgress
		if st.StartedAt == 0 {
			st.StartedAt = now
		}
		s.CurrentStep = name
		steps = s.Steps.Clone()
	}) || steps == nil {
		return
	}
	o.persist(ctx, id, transfer.Patch{Steps: steps, CurrentStep: &name})
}

// applyEvent marks the completed step success and the next one in_progress.
// Repeated success events are no-ops apart from filling in missing data.
func (o *Orchestrator) applyEvent(ctx context.Context, gen uint64, t transfer.Transfer, ev StepEvent) {
	if !ev.Step.Valid() {
		o.logger.Warnw("Ignoring unknown step event", "transferId", t.ID, "step", ev.Step)
		return
	}

	now := o.now().UnixMilli()
	var (
		steps    transfer.Steps
		current  transfer.StepName
		duration time.Duration
	)
	applied := o.updateRun(gen, func(s *Snapshot) {
		st := s.Steps.Find(ev.Step)
		if st == nil {
			return
		}
		if st.State != transfer.StateSuccess {
			st.State = transfer.StateSuccess
			st.CompletedAt = now
			if st.StartedAt > 0 {
				duration = time.Duration(now-st.StartedAt) * time.Millisecond
			}
		}
		if ev.TxHash != "" {
			st.TxHash = ev.TxHash
		}
		if ev.BlockNumber != 0 {
			st.BlockNumber = ev.BlockNumber
		}
		st.Error = ""

		current = ev.Step
		if next, ok := ev.Step.Next(); ok {
			ns := s.Steps.Find(next)
			if ns != nil && ns.State != transfer.StateSuccess {
				ns.State = transfer.StateInProgress
				if ns.StartedAt == 0 {
					ns.StartedAt = now
				}
			}
			current = next
		}
		s.CurrentStep = current
		steps = s.Steps.Clone()
	})
	if !applied || steps == nil {
		return
	}

	p := transfer.Patch{Steps: steps, CurrentStep: &current}
	switch ev.Step {
	case transfer.StepBurn:
		if ev.TxHash != "" {
			p.BurnTxHash = &ev.TxHash
		}
	case transfer.StepFetchAttestation:
		if ev.Attestation != "" {
			p.Attestation = &ev.Attestation
		}
	case transfer.StepMint:
		if ev.TxHash != "" {
			p.MintTxHash = &ev.TxHash
		}
	}
	o.persist(ctx, t.ID, p)

	if duration > 0 {
		o.recorder.RecordStepDuration(ctx, string(ev.Step), duration)
	}
	o.logger.Debugw("Step completed", "transferId", t.ID, "step", ev.Step, "txHash", ev.TxHash)
}

// finish records the terminal outcome of a run. An interrupted run leaves a
// resumable record untouched; one interrupted before its burn landed is
// marked failed.
func (o *Orchestrator) finish(ctx, runCtx context.Context, gen uint64, t transfer.Transfer, result *Result, runErr error) (transfer.Transfer, error) {
	if runCtx.Err() != nil {
		o.updateRun(gen, func(s *Snapshot) { s.State = StateIdle })
		cancelled := Classify(fmt.Errorf("%w: %w", ErrCancelled, runCtx.Err()))
		latest, err := o.store.Get(ctx, t.ID)
		if err != nil {
			latest = t
		}
		if latest.Status != transfer.StatusPending || transfer.CanResume(latest) {
			o.logger.Infow("Transfer run interrupted", "transferId", t.ID)
			return latest, cancelled
		}
		return o.abandon(ctx, latest, cancelled), cancelled
	}

	now := o.now().UnixMilli()
	status := transfer.StatusSuccess
	var failure *Error
	switch {
	case runErr != nil:
		status = transfer.StatusFailed
		failure = Classify(runErr)
	case result == nil || result.State != ResultSuccess:
		status = transfer.StatusFailed
		failure = Classify(ErrTransferFailed)
	}
	mintTx := result.TxHash(transfer.StepMint)

	var steps transfer.Steps
	o.updateRun(gen, func(s *Snapshot) {
		if failure == nil {
			completeSteps(s.Steps, result, now)
			s.CurrentStep = transfer.StepMint
			s.State = StateSuccess
			s.Err = nil
		} else {
			failSteps(s.Steps, failure.Message)
			s.State = StateError
			s.Err = failure
		}
		steps = s.Steps.Clone()
	})
	if steps == nil {
		// Reset raced the outcome; derive the steps from the stored record.
		if stored, err := o.store.Get(ctx, t.ID); err == nil {
			steps = stored.Steps.Clone()
			if failure == nil {
				completeSteps(steps, result, now)
			} else {
				failSteps(steps, failure.Message)
			}
		}
	}

	p := transfer.Patch{Status: &status, CompletedAt: &now, Steps: steps}
	if mintTx != "" {
		p.MintTxHash = &mintTx
	}
	if status == transfer.StatusSuccess {
		p.CurrentStep = transfer.Ptr(transfer.StepMint)
	}
	final, err := o.store.Patch(ctx, t.ID, p)
	if err != nil {
		o.logger.Warnw("Failed to persist transfer outcome", "transferId", t.ID, "status", status, "error", err)
		final = t.Clone()
		_ = p.Apply(&final)
	}

	o.reporter.TransferFinished(ctx, final)
	o.recorder.RecordTransferFinished(ctx, string(status), time.Duration(now-t.StartedAt)*time.Millisecond)

	if failure != nil {
		o.logger.Warnw("Transfer failed", "transferId", t.ID, "code", failure.Code, "error", runErr)
		return final, failure
	}
	o.logger.Infow("Transfer completed", "transferId", t.ID, "mintTxHash", mintTx)
	return final, nil
}

// abandon marks an interrupted transfer that cannot be resumed as failed.
func (o *Orchestrator) abandon(ctx context.Context, t transfer.Transfer, cause *Error) transfer.Transfer {
	now := o.now().UnixMilli()
	steps := t.Steps.Clone()
	failSteps(steps, cause.Message)
	status := transfer.StatusFailed
	p := transfer.Patch{Status: &status, CompletedAt: &now}
	if steps.Valid() {
		p.Steps = steps
	}

	final, err := o.store.Patch(ctx, t.ID, p)
	if err != nil {
		o.logger.Warnw("Failed to persist interrupted transfer", "transferId", t.ID, "error", err)
		final = t.Clone()
		_ = p.Apply(&final)
	}

	o.reporter.TransferFinished(ctx, final)
	o.recorder.RecordTransferFinished(ctx, string(status), time.Duration(now-t.StartedAt)*time.Millisecond)
	o.logger.Warnw("Transfer interrupted before burn, marked failed", "transferId", t.ID)
	return final
}

// completeSteps marks every step success, filling tx hashes from result.
func completeSteps(steps transfer.Steps, result *Result, now int64) {
	for i := range steps {
		st := &steps[i]
		if st.TxHash == "" {
			st.TxHash = result.TxHash(st.Name)
		}
		if st.State != transfer.StateSuccess {
			st.State = transfer.StateSuccess
			st.CompletedAt = now
		}
	}
}

// failSteps marks the step that was running as errored.
func failSteps(steps transfer.Steps, msg string) {
	for i := range steps {
		if steps[i].State == transfer.StateInProgress {
			steps[i].State = transfer.StateError
			steps[i].Error = msg
		}
	}
}

// IsCancelled reports whether err came from a reset or superseded run.
func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled)
}
