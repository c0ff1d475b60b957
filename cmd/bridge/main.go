package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

const (
	appName = "openbridge"
	version = "v1.0.0"
)

var (
	walletFlag = &cli.StringFlag{
		Name:     "wallet",
		Aliases:  []string{"w"},
		Usage:    "Wallet address owning the transfer",
		EnvVars:  []string{"OB_WALLET"},
		Required: true,
	}
	fromFlag = &cli.StringFlag{
		Name:     "from",
		Usage:    "Source chain (id, name or short name)",
		Required: true,
	}
	toFlag = &cli.StringFlag{
		Name:     "to",
		Usage:    "Destination chain (id, name or short name)",
		Required: true,
	}
	amountFlag = &cli.StringFlag{
		Name:     "amount",
		Aliases:  []string{"a"},
		Usage:    "USDC amount as a decimal string",
		Required: true,
	}
	speedFlag = &cli.StringFlag{
		Name:  "speed",
		Usage: "Transfer speed: fast or standard",
		Value: "standard",
	}
	jsonFlag = &cli.BoolFlag{
		Name:  "json",
		Usage: "Print machine-readable JSON",
	}
	stepDelayFlag = &cli.DurationFlag{
		Name:  "step-delay",
		Usage: "Simulated SDK latency per step",
		Value: 0,
	}
	metricsAddrFlag = &cli.StringFlag{
		Name:  "metrics-addr",
		Usage: "Serve Prometheus metrics on this address while the command runs",
	}
)

func main() {
	app := cli.NewApp()
	app.Name = appName
	app.Usage = "Bridge USDC between chains over CCTP and recover interrupted transfers"
	app.Version = version
	app.Flags = []cli.Flag{jsonFlag, stepDelayFlag, metricsAddrFlag}
	app.Commands = []*cli.Command{
		{
			Name:   "chains",
			Usage:  "List supported chains",
			Action: chainsCmd,
		},
		{
			Name:   "quote",
			Usage:  "Show CCTP fee rates for a route",
			Flags:  []cli.Flag{fromFlag, toFlag},
			Action: quoteCmd,
		},
		{
			Name:  "allowance",
			Usage: "Show the remaining Fast Transfer allowance",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "amount", Usage: "Check whether this amount fits the allowance"},
			},
			Action: allowanceCmd,
		},
		{
			Name:   "estimate",
			Usage:  "Estimate gas, fees and finality for a transfer",
			Flags:  []cli.Flag{walletFlag, fromFlag, toFlag, amountFlag, speedFlag},
			Action: estimateCmd,
		},
		{
			Name:  "send",
			Usage: "Start a new transfer and wait until it finishes",
			Flags: []cli.Flag{
				walletFlag, fromFlag, toFlag, amountFlag, speedFlag,
				&cli.StringFlag{Name: "fail-at", Usage: "Make the simulated SDK fail at this step"},
				&cli.StringFlag{Name: "interrupt-at", Usage: "Interrupt the transfer before this step"},
			},
			Action: sendCmd,
		},
		{
			Name:  "resume",
			Usage: "Resume an interrupted transfer",
			Flags: []cli.Flag{
				walletFlag,
				&cli.StringFlag{Name: "id", Usage: "Transfer id (defaults to the newest resumable transfer)"},
			},
			Action: resumeCmd,
		},
		{
			Name:   "history",
			Usage:  "List recent completed transfers",
			Flags:  []cli.Flag{walletFlag},
			Action: historyCmd,
		},
		{
			Name:   "pending",
			Usage:  "List pending transfers and whether they can be resumed",
			Flags:  []cli.Flag{walletFlag},
			Action: pendingCmd,
		},
		{
			Name:   "clear",
			Usage:  "Delete all stored transfers of a wallet",
			Flags:  []cli.Flag{walletFlag},
			Action: clearCmd,
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
