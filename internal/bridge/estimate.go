package bridge

import (
	"context"
	"errors"

	"github.com/openbridge/openbridge-backend/internal/chains"
	"github.com/openbridge/openbridge-backend/internal/fees"
	"github.com/openbridge/openbridge-backend/internal/transfer"
	"github.com/shopspring/decimal"
)

// ErrStaleEstimate is returned when a newer estimate or a transfer run
// superseded the request. Its result is discarded.
var ErrStaleEstimate = errors.New("estimate superseded")

var weiPerGwei = decimal.NewFromInt(1_000_000_000)

// EstimateParams identifies one estimate. Identical params yield identical
// estimates, which is what the Estimator deduplicates on.
type EstimateParams struct {
	Wallet        string         `json:"wallet"`
	SourceChainID chains.ID      `json:"sourceChainId"`
	DestChainID   chains.ID      `json:"destChainId"`
	Amount        string         `json:"amount"`
	Speed         transfer.Speed `json:"transferSpeed"`
}

// GasEstimate is the gas cost of one leg.
type GasEstimate struct {
	Amount  decimal.Decimal `json:"amount"`
	Display string          `json:"display"`
	Gwei    string          `json:"gwei,omitempty"`
}

// EstimateResult is the user-facing cost and timing of a transfer.
type EstimateResult struct {
	SourceGas       *GasEstimate    `json:"sourceGas"`
	DestinationGas  *GasEstimate    `json:"destinationGas"`
	ProviderFee     string          `json:"providerFee"`
	TotalGas        decimal.Decimal `json:"totalGas"`
	TotalGasDisplay string          `json:"totalGasDisplay"`
	Finality        string          `json:"finality"`
	FinalitySeconds int             `json:"finalitySeconds"`
	// CCTPFee is only set for fast transfers.
	CCTPFee    string          `json:"cctpFee,omitempty"`
	CCTPFeeBps decimal.Decimal `json:"cctpFeeBps"`
	Speed      transfer.Speed  `json:"transferSpeed"`
}

func usd(d decimal.Decimal) string {
	return "~$" + d.StringFixed(4)
}

func gasEstimate(est *Estimate, name string) (*GasEstimate, decimal.Decimal) {
	g, ok := est.gas(name)
	if !ok {
		return nil, decimal.Zero
	}
	out := &GasEstimate{Amount: g.Fees, Display: usd(g.Fees)}
	if g.GasPrice.IsPositive() {
		out.Gwei = g.GasPrice.Div(weiPerGwei).StringFixed(2) + " gwei"
	}
	return out, g.Fees
}

func buildEstimate(est *Estimate, amount decimal.Decimal, speed transfer.Speed, quote fees.Quote) *EstimateResult {
	if est == nil {
		est = &Estimate{}
	}
	source, sourceGas := gasEstimate(est, GasSource)
	dest, destGas := gasEstimate(est, GasDestination)
	total := sourceGas.Add(destGas)

	provider, ok := est.fee(FeeProvider)
	if !ok || provider == "" {
		provider = "0"
	}

	finality := fees.EstimatedFinality(speed)
	res := &EstimateResult{
		SourceGas:       source,
		DestinationGas:  dest,
		ProviderFee:     provider,
		TotalGas:        total,
		TotalGasDisplay: usd(total),
		Finality:        finality.Label,
		FinalitySeconds: finality.Seconds,
		CCTPFeeBps:      decimal.Zero,
		Speed:           speed,
	}
	if speed == transfer.SpeedFast {
		res.CCTPFeeBps = quote.FastBps
		res.CCTPFee = fees.FormatFee(fees.CCTPFee(amount, quote.FastBps, speed))
	}
	return res
}

func (o *Orchestrator) beginEstimate(ctx context.Context) (context.Context, context.CancelFunc, uint64, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.snap.State == StateConfirming || o.snap.State == StateBridging {
		return nil, nil, 0, ErrTransferInProgress
	}
	if o.cancelEst != nil {
		o.cancelEst()
	}
	estCtx, cancel := context.WithCancel(ctx)
	o.estGen++
	o.cancelEst = cancel
	o.snap.State = StateEstimating
	o.snap.Err = nil
	o.publishLocked()
	return estCtx, cancel, o.estGen, nil
}

// updateEstimate applies fn only while gen is the latest estimate and no
// transfer has started since.
func (o *Orchestrator) updateEstimate(gen uint64, fn func(*Snapshot)) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	if gen != o.estGen || o.snap.State != StateEstimating {
		return false
	}
	fn(&o.snap)
	o.cancelEst = nil
	o.publishLocked()
	return true
}

// Estimate prices a transfer without touching any persisted record. The last
// request wins: a superseded estimate returns ErrStaleEstimate and leaves the
// state alone.
func (o *Orchestrator) Estimate(ctx context.Context, p EstimateParams) (*EstimateResult, error) {
	src, dst, amount, err := o.validate(p.Wallet, p.SourceChainID, p.DestChainID, p.Amount)
	if err != nil {
		return nil, Classify(err)
	}
	speed := p.Speed
	if speed == "" {
		speed = transfer.SpeedStandard
	}

	estCtx, cancel, gen, err := o.beginEstimate(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()

	est, kitErr := o.kit.Estimate(estCtx, EstimateRequest{
		From:   Leg{Chain: src.KitName, Address: p.Wallet},
		To:     Leg{Chain: dst.KitName, Address: p.Wallet},
		Amount: amount.String(),
	})

	quote := fees.DefaultQuote()
	if kitErr == nil && speed == transfer.SpeedFast && o.quoter != nil {
		quote = o.quoter.Quote(estCtx, src.Domain, dst.Domain)
	}

	if estCtx.Err() != nil {
		o.recorder.RecordEstimate(ctx, "stale")
		// Still current means the caller gave up rather than being superseded.
		if o.updateEstimate(gen, func(s *Snapshot) { s.State = StateIdle }) {
			return nil, estCtx.Err()
		}
		return nil, ErrStaleEstimate
	}

	if kitErr != nil {
		failure := Classify(kitErr)
		if !o.updateEstimate(gen, func(s *Snapshot) {
			s.State = StateError
			s.Err = failure
		}) {
			o.recorder.RecordEstimate(ctx, "stale")
			return nil, ErrStaleEstimate
		}
		o.recorder.RecordEstimate(ctx, "error")
		o.logger.Warnw("Estimate failed", "source", src.Name, "destination", dst.Name, "error", kitErr)
		return nil, failure
	}

	res := buildEstimate(est, amount, speed, quote)
	if !o.updateEstimate(gen, func(s *Snapshot) {
		s.State = StateIdle
		s.Estimate = res
		s.Err = nil
	}) {
		o.recorder.RecordEstimate(ctx, "stale")
		return nil, ErrStaleEstimate
	}
	o.recorder.RecordEstimate(ctx, "ok")
	return res, nil
}
