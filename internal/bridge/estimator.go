package bridge

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultDebounce is the estimator's default quiet period.
const DefaultDebounce = 500 * time.Millisecond

// EstimateOutcome is delivered on Estimator.Results.
type EstimateOutcome struct {
	Params EstimateParams
	Result *EstimateResult
	Err    error
}

// Estimator debounces estimate requests, as a form re-estimating on every
// keystroke would. Repeating the last params is a no-op, a changed tuple
// cancels the estimate in flight, and only the latest outcome is delivered.
type Estimator struct {
	orch   *Orchestrator
	window time.Duration
	logger *zap.SugaredLogger

	mu       sync.Mutex
	last     EstimateParams
	hasLast  bool
	timer    *time.Timer
	cancel   context.CancelFunc
	closed   bool
	results  chan EstimateOutcome
	inflight sync.WaitGroup
}

func NewEstimator(o *Orchestrator, window time.Duration, logger *zap.SugaredLogger) *Estimator {
	if window <= 0 {
		window = DefaultDebounce
	}
	return &Estimator{
		orch:    o,
		window:  window,
		logger:  logger,
		results: make(chan EstimateOutcome, 1),
	}
}

// Results delivers estimate outcomes. It is closed by Close.
func (e *Estimator) Results() <-chan EstimateOutcome {
	return e.results
}

// Request schedules an estimate for p once the debounce window passes without
// another change. It reports false when p repeats the previous request.
func (e *Estimator) Request(p EstimateParams) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed || (e.hasLast && p == e.last) {
		return false
	}
	e.last = p
	e.hasLast = true
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
	e.scheduleLocked(p)
	return true
}

// Refresh re-runs the last request even though its params did not change.
func (e *Estimator) Refresh() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed || !e.hasLast {
		return
	}
	e.scheduleLocked(e.last)
}

func (e *Estimator) scheduleLocked(p EstimateParams) {
	if e.timer != nil {
		e.timer.Stop()
	}
	e.timer = time.AfterFunc(e.window, func() { e.run(p) })
}

func (e *Estimator) run(p EstimateParams) {
	e.mu.Lock()
	if e.closed || p != e.last {
		e.mu.Unlock()
		return
	}
	if e.cancel != nil {
		e.cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	e.inflight.Add(1)
	e.mu.Unlock()

	defer e.inflight.Done()
	defer cancel()

	res, err := e.orch.Estimate(ctx, p)
	if errors.Is(err, ErrStaleEstimate) || errors.Is(err, context.Canceled) {
		return
	}
	if err != nil {
		e.logger.Debugw("Estimate request failed", "source", p.SourceChainID, "destination", p.DestChainID, "error", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed || p != e.last {
		return
	}
	out := EstimateOutcome{Params: p, Result: res, Err: err}
	select {
	case e.results <- out:
	default:
		select {
		case <-e.results:
		default:
		}
		select {
		case e.results <- out:
		default:
		}
	}
}

// Close stops pending work and closes Results.
func (e *Estimator) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	if e.timer != nil {
		e.timer.Stop()
	}
	if e.cancel != nil {
		e.cancel()
	}
	e.mu.Unlock()

	e.inflight.Wait()
	close(e.results)
}
