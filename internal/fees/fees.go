// Package fees computes CCTP transfer fees and finality estimates and fetches
// live fee quotes and the Fast Transfer allowance from Circle's Iris API.
package fees

import (
	"time"

	"github.com/openbridge/openbridge-backend/internal/transfer"
	"github.com/shopspring/decimal"
)

// Finality thresholds Iris uses to identify the two transfer tiers.
const (
	ThresholdFast     = 1000
	ThresholdStandard = 2000
)

// FeeDecimals is the precision fees are rendered with (USDC has 6 decimals).
const FeeDecimals = 6

var (
	bpsDivisor  = decimal.NewFromInt(10_000)
	fastFeeMin  = decimal.RequireFromString("0.01")
	defaultFast = decimal.NewFromInt(1)
)

// CCTPFee returns max(amount * bps / 10000, floor). The floor is 0.01 USDC for
// fast transfers with a non-zero rate and zero otherwise. Non-positive amounts
// cost nothing.
func CCTPFee(amount, bps decimal.Decimal, speed transfer.Speed) decimal.Decimal {
	if !amount.IsPositive() {
		return decimal.Zero
	}
	fee := amount.Mul(bps).Div(bpsDivisor)
	if speed == transfer.SpeedFast && bps.IsPositive() {
		return decimal.Max(fee, fastFeeMin)
	}
	return fee
}

// FormatFee renders a fee with six decimals, e.g. "0.010000".
func FormatFee(fee decimal.Decimal) string {
	return fee.StringFixed(FeeDecimals)
}

// Finality is the user-facing timing estimate for a transfer speed.
type Finality struct {
	Label       string        `json:"label"`
	Duration    time.Duration `json:"-"`
	Seconds     int           `json:"seconds"`
	Description string        `json:"description"`
}

// EstimatedFinality returns the fixed estimate for speed.
func EstimatedFinality(speed transfer.Speed) Finality {
	if speed == transfer.SpeedFast {
		return Finality{
			Label:       "~15 seconds",
			Duration:    15 * time.Second,
			Seconds:     15,
			Description: "Fast Transfer uses soft finality for quick confirmation",
		}
	}
	return Finality{
		Label:       "~13-19 minutes",
		Duration:    13 * time.Minute,
		Seconds:     13 * 60,
		Description: "Standard Transfer waits for hard finality on source chain",
	}
}

// MinFinalityThreshold is the value handed to the bridge SDK for speed.
func MinFinalityThreshold(speed transfer.Speed) int {
	if speed == transfer.SpeedFast {
		return ThresholdFast
	}
	return ThresholdStandard
}
