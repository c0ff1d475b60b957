package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/openbridge/openbridge-backend/internal/bridge"
	"github.com/openbridge/openbridge-backend/internal/chains"
	"github.com/openbridge/openbridge-backend/internal/transfer"
	"github.com/urfave/cli/v2"
)

// transferView is a stored transfer with derived explorer links.
type transferView struct {
	transfer.Transfer
	Resumable bool `json:"resumable"`
}

func viewOf(t transfer.Transfer) transferView {
	t.Steps = t.StepsWithExplorerURLs()
	return transferView{Transfer: t, Resumable: transfer.CanResume(t)}
}

func viewsOf(list []transfer.Transfer) []transferView {
	out := make([]transferView, 0, len(list))
	for _, t := range list {
		out = append(out, viewOf(t))
	}
	return out
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newTable() *tabwriter.Writer {
	return tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
}

func chainName(id chains.ID) string {
	if c, ok := chains.Lookup(id); ok {
		return c.Name
	}
	return fmt.Sprintf("chain %d", id)
}

func printEstimate(p bridge.EstimateParams, r *bridge.EstimateResult) {
	fmt.Printf("%s USDC %s -> %s (%s)\n", p.Amount, chainName(p.SourceChainID), chainName(p.DestChainID), r.Speed)
	w := newTable()
	if r.SourceGas != nil {
		fmt.Fprintf(w, "  Source gas\t%s\t%s\n", r.SourceGas.Display, r.SourceGas.Gwei)
	}
	if r.DestinationGas != nil {
		fmt.Fprintf(w, "  Destination gas\t%s\t%s\n", r.DestinationGas.Display, r.DestinationGas.Gwei)
	}
	fmt.Fprintf(w, "  Total gas\t%s\t\n", r.TotalGasDisplay)
	if r.CCTPFee != "" {
		fmt.Fprintf(w, "  CCTP fee\t%s USDC\t%s bps\n", r.CCTPFee, r.CCTPFeeBps)
	}
	fmt.Fprintf(w, "  Provider fee\t%s\t\n", r.ProviderFee)
	fmt.Fprintf(w, "  Finality\t%s\t\n", r.Finality)
	w.Flush()
}

func printTransfer(t transfer.Transfer) {
	hash, chain := t.DisplayTxHash()
	fmt.Printf("Transfer %s: %s\n", t.ID, t.Status)
	fmt.Printf("  %s USDC %s -> %s (%s), %s\n", t.Amount, chainName(t.SourceChainID), chainName(t.DestChainID),
		t.TransferSpeed, transfer.Elapsed(t.StartedAt, t.CompletedAt, time.Now()))
	w := newTable()
	for _, st := range t.StepsWithExplorerURLs() {
		detail := st.ExplorerURL
		if st.Error != "" {
			detail = st.Error
		}
		fmt.Fprintf(w, "  %s\t%s\t%s\n", st.Name, st.State, detail)
	}
	w.Flush()
	if hash != "" {
		fmt.Printf("  %s\n", chains.ExplorerTxURL(chain, hash))
	}
}

func printTransfers(list []transfer.Transfer, showResumable bool) {
	w := newTable()
	header := "ID\tSTATUS\tROUTE\tAMOUNT\tSPEED\tSTARTED\tELAPSED"
	if showResumable {
		header += "\tSTEP\tRESUMABLE"
	}
	fmt.Fprintln(w, header)
	now := time.Now()
	for _, t := range list {
		fmt.Fprintf(w, "%s\t%s\t%s -> %s\t%s\t%s\t%s\t%s",
			t.ID, t.Status, chainName(t.SourceChainID), chainName(t.DestChainID), t.Amount, t.TransferSpeed,
			time.UnixMilli(t.StartedAt).Format(time.DateTime), transfer.Elapsed(t.StartedAt, t.CompletedAt, now))
		if showResumable {
			fmt.Fprintf(w, "\t%s\t%t", t.CurrentStep, transfer.CanResume(t))
		}
		fmt.Fprintln(w)
	}
	w.Flush()
}

// progressPrinter prints each step transition once. It is silent in JSON mode.
func progressPrinter(c *cli.Context) func(bridge.Snapshot) {
	if c.Bool(jsonFlag.Name) {
		return nil
	}
	var mu sync.Mutex
	seen := make(map[transfer.StepName]transfer.StepState)
	return func(s bridge.Snapshot) {
		mu.Lock()
		defer mu.Unlock()
		for _, st := range s.Steps {
			if st.State == transfer.StatePending || seen[st.Name] == st.State {
				continue
			}
			seen[st.Name] = st.State
			line := fmt.Sprintf("[%s] %s", st.Name, st.State)
			if st.TxHash != "" {
				line += " " + st.TxHash
			}
			if st.Error != "" {
				line += ": " + st.Error
			}
			fmt.Println(line)
		}
	}
}
