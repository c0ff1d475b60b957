package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/openbridge/openbridge-backend/internal/bridge"
	"github.com/openbridge/openbridge-backend/internal/bridge/simkit"
	"github.com/openbridge/openbridge-backend/internal/chains"
	"github.com/openbridge/openbridge-backend/internal/transfer"
	"github.com/shopspring/decimal"
	"github.com/urfave/cli/v2"
)

// interruptWait bounds how long --interrupt-at waits for the previous step
// to reach the store before cancelling anyway.
const interruptWait = 5 * time.Second

var (
	quoteCmd     = withRuntime(runQuote)
	allowanceCmd = withRuntime(runAllowance)
	estimateCmd  = withRuntime(runEstimate)
	sendCmd      = withRuntime(runSend)
	resumeCmd    = withRuntime(runResume)
	historyCmd   = withRuntime(runHistory)
	pendingCmd   = withRuntime(runPending)
	clearCmd     = withRuntime(runClear)
)

func chainsCmd(c *cli.Context) error {
	list := chains.All()
	if c.Bool(jsonFlag.Name) {
		return printJSON(list)
	}
	w := newTable()
	fmt.Fprintln(w, "ID\tNAME\tSHORT\tSDK\tDOMAIN\tEXPLORER")
	for _, ch := range list {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\t%s\n", ch.ID, ch.Name, ch.ShortName, ch.KitName, ch.Domain, ch.Explorer)
	}
	return w.Flush()
}

func parseRoute(c *cli.Context) (chains.Chain, chains.Chain, error) {
	srcID, err := chains.Parse(c.String(fromFlag.Name))
	if err != nil {
		return chains.Chain{}, chains.Chain{}, fmt.Errorf("--from: %w", err)
	}
	dstID, err := chains.Parse(c.String(toFlag.Name))
	if err != nil {
		return chains.Chain{}, chains.Chain{}, fmt.Errorf("--to: %w", err)
	}
	if srcID == dstID {
		return chains.Chain{}, chains.Chain{}, errors.New("source and destination chain must differ")
	}
	src, _ := chains.Lookup(srcID)
	dst, _ := chains.Lookup(dstID)
	return src, dst, nil
}

func runQuote(c *cli.Context, rt *runtime) error {
	src, dst, err := parseRoute(c)
	if err != nil {
		return err
	}
	q := rt.fees.Quote(c.Context, src.Domain, dst.Domain)
	if c.Bool(jsonFlag.Name) {
		return printJSON(q)
	}
	fmt.Printf("%s -> %s\n", src.Name, dst.Name)
	fmt.Printf("  fast:     %s bps\n", q.FastBps)
	fmt.Printf("  standard: %s bps\n", q.StandardBps)
	if h := rt.fees.Health(); !h.Healthy && h.LastError != "" {
		fmt.Printf("  (fallback rates: %s)\n", h.LastError)
	}
	return nil
}

func runAllowance(c *cli.Context, rt *runtime) error {
	allowance := rt.fees.FastAllowance(c.Context)
	raw := c.String("amount")
	if raw == "" {
		if c.Bool(jsonFlag.Name) {
			return printJSON(allowance)
		}
		fmt.Printf("Fast Transfer allowance: %s USDC (available: %t)\n", allowance.Amount, allowance.Available)
		return nil
	}

	amount, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid --amount %q", raw)
	}
	ok, reason := rt.fees.CheckFastAvailability(c.Context, amount)
	if c.Bool(jsonFlag.Name) {
		return printJSON(map[string]any{"allowance": allowance.Amount, "available": ok, "reason": reason})
	}
	if ok {
		fmt.Printf("%s USDC can use Fast Transfer (%s USDC available)\n", amount, allowance.Amount)
		return nil
	}
	fmt.Println(reason)
	return nil
}

func estimateParams(c *cli.Context) (bridge.EstimateParams, error) {
	src, dst, err := parseRoute(c)
	if err != nil {
		return bridge.EstimateParams{}, err
	}
	speed, err := transfer.ParseSpeed(c.String(speedFlag.Name))
	if err != nil {
		return bridge.EstimateParams{}, err
	}
	return bridge.EstimateParams{
		Wallet:        c.String(walletFlag.Name),
		SourceChainID: src.ID,
		DestChainID:   dst.ID,
		Amount:        c.String(amountFlag.Name),
		Speed:         speed,
	}, nil
}

func runEstimate(c *cli.Context, rt *runtime) error {
	params, err := estimateParams(c)
	if err != nil {
		return err
	}

	orch := rt.orchestrator(nil)
	est := bridge.NewEstimator(orch, rt.cfg.Bridge.EstimateDebounce, rt.logger)
	defer est.Close()
	est.Request(params)

	ctx, cancel := context.WithTimeout(c.Context, rt.cfg.Bridge.EstimateDebounce+rt.cfg.Bridge.HTTPTimeout+time.Minute)
	defer cancel()

	select {
	case out := <-est.Results():
		if out.Err != nil {
			return out.Err
		}
		if c.Bool(jsonFlag.Name) {
			return printJSON(out.Result)
		}
		printEstimate(params, out.Result)
		return nil
	case <-ctx.Done():
		return fmt.Errorf("estimate did not finish: %w", ctx.Err())
	}
}

func runSend(c *cli.Context, rt *runtime) error {
	params, err := estimateParams(c)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var kitOpts []simkit.Option
	if s := c.String("fail-at"); s != "" {
		step, err := transfer.ParseStepName(s)
		if err != nil {
			return fmt.Errorf("--fail-at: %w", err)
		}
		kitOpts = append(kitOpts, simkit.WithFailAt(step))
	}

	var orch *bridge.Orchestrator
	if s := c.String("interrupt-at"); s != "" {
		step, err := transfer.ParseStepName(s)
		if err != nil {
			return fmt.Errorf("--interrupt-at: %w", err)
		}
		kitOpts = append(kitOpts, simkit.WithInterruptAt(step, func() {
			go func() {
				defer cancel()
				waitForStep(ctx, rt, orch.Snapshot().TransferID, step)
			}()
		}))
	}

	orch = rt.orchestrator(kitOpts, bridge.WithObserver(progressPrinter(c)))
	rt.analytics.TrackWallet(ctx, params.Wallet, int64(params.SourceChainID))

	t, err := orch.Execute(runCtx, bridge.ExecuteRequest{
		Wallet:        params.Wallet,
		SourceChainID: params.SourceChainID,
		DestChainID:   params.DestChainID,
		Amount:        params.Amount,
		Speed:         params.Speed,
	})
	return reportOutcome(c, t, err)
}

// waitForStep blocks until the step before next is stored as successful, so
// an interrupt leaves a record that reflects what the SDK reported.
func waitForStep(ctx context.Context, rt *runtime, id string, next transfer.StepName) {
	idx := next.Index()
	if idx <= 0 || id == "" {
		return
	}
	prev := transfer.StepNames()[idx-1]

	deadline := time.Now().Add(interruptWait)
	for time.Now().Before(deadline) {
		if t, err := rt.store.Get(ctx, id); err == nil && t.Steps.State(prev) == transfer.StateSuccess {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(20 * time.Millisecond):
		}
	}
	rt.logger.Warnw("Interrupting before the previous step was stored", "transferId", id, "step", prev)
}

func runResume(c *cli.Context, rt *runtime) error {
	wallet := c.String(walletFlag.Name)
	id := c.String("id")
	if id == "" {
		resumable := rt.store.Resumable(c.Context, wallet)
		if len(resumable) == 0 {
			return errors.New("no resumable transfers for this wallet")
		}
		id = resumable[0].ID
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	orch := rt.orchestrator(nil, bridge.WithObserver(progressPrinter(c)))
	t, err := orch.Resume(ctx, wallet, id)
	return reportOutcome(c, t, err)
}

func reportOutcome(c *cli.Context, t transfer.Transfer, err error) error {
	if bridge.IsCancelled(err) {
		if c.Bool(jsonFlag.Name) {
			return printJSON(map[string]any{"transfer": t, "error": bridge.Classify(err)})
		}
		fmt.Printf("\nTransfer %s interrupted.\n", t.ID)
		if transfer.CanResume(t) {
			fmt.Printf("Resume with: %s resume --wallet %s --id %s\n", appName, t.WalletAddress, t.ID)
		} else if t.Status == transfer.StatusFailed {
			fmt.Println("No burn was confirmed, so the transfer was marked failed. No funds left the wallet.")
		}
		return nil
	}
	if err != nil && t.ID == "" {
		return err
	}
	if c.Bool(jsonFlag.Name) {
		out := map[string]any{"transfer": viewOf(t)}
		if err != nil {
			out["error"] = bridge.Classify(err)
		}
		if perr := printJSON(out); perr != nil {
			return perr
		}
		return err
	}
	fmt.Println()
	printTransfer(t)
	return err
}

func runHistory(c *cli.Context, rt *runtime) error {
	orch := rt.orchestrator(nil)
	list := orch.History(c.Context, c.String(walletFlag.Name))
	if c.Bool(jsonFlag.Name) {
		return printJSON(viewsOf(list))
	}
	if len(list) == 0 {
		fmt.Println("No completed transfers.")
		return nil
	}
	printTransfers(list, false)
	return nil
}

func runPending(c *cli.Context, rt *runtime) error {
	list := rt.store.Pending(c.Context, c.String(walletFlag.Name))
	if c.Bool(jsonFlag.Name) {
		return printJSON(viewsOf(list))
	}
	if len(list) == 0 {
		fmt.Println("No pending transfers.")
		return nil
	}
	printTransfers(list, true)
	return nil
}

func runClear(c *cli.Context, rt *runtime) error {
	n := rt.store.ClearWallet(c.Context, c.String(walletFlag.Name))
	if c.Bool(jsonFlag.Name) {
		return printJSON(map[string]int{"deleted": n})
	}
	fmt.Printf("Deleted %d transfer(s).\n", n)
	return nil
}
