package transfer

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/openbridge/openbridge-backend/internal/chains"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleTransfer() Transfer {
	return Transfer{
		ID:            "0190f0c4-0000-7000-8000-000000000001",
		Version:       StorageVersion,
		StartedAt:     1_700_000_000_000,
		SourceChainID: chains.Ethereum,
		DestChainID:   chains.Base,
		Amount:        "100.5",
		WalletAddress: "0xAbCd",
		TransferSpeed: SpeedFast,
		CurrentStep:   StepApprove,
		Steps:         NewSteps(),
		Status:        StatusPending,
	}
}

func TestPatch_ApplyIsFieldLevel(t *testing.T) {
	tr := sampleTransfer()
	tr.BurnTxHash = "0xburn"

	err := Patch{Status: Ptr(StatusFailed), CompletedAt: Ptr(int64(42))}.Apply(&tr)
	require.NoError(t, err)

	assert.Equal(t, StatusFailed, tr.Status)
	assert.Equal(t, int64(42), tr.CompletedAt)
	assert.Equal(t, "0xburn", tr.BurnTxHash)
	assert.Equal(t, "100.5", tr.Amount)
	assert.True(t, tr.Steps.Valid())
}

func TestPatch_RejectsInvalidSteps(t *testing.T) {
	tr := sampleTransfer()
	err := Patch{Steps: NewSteps()[:2]}.Apply(&tr)
	assert.ErrorIs(t, err, ErrInvalidSteps)
	assert.Len(t, tr.Steps, 4)
}

func TestPatch_StepsAreCopied(t *testing.T) {
	tr := sampleTransfer()
	steps := NewSteps()
	require.NoError(t, Patch{Steps: steps}.Apply(&tr))

	steps.Find(StepApprove).State = StateSuccess
	assert.Equal(t, StatePending, tr.Steps.State(StepApprove))
}

func TestExplorerURLs(t *testing.T) {
	tr := sampleTransfer()
	tr.Steps.Find(StepApprove).TxHash = "0x1"
	tr.Steps.Find(StepBurn).TxHash = "0x2"
	tr.Steps.Find(StepMint).TxHash = "0x3"
	tr.Steps.Find(StepMint).ExplorerURL = "https://stale.example/tx/0x3"

	assert.Equal(t, "https://etherscan.io/tx/0x1", tr.ExplorerURL(StepApprove))
	assert.Equal(t, "https://etherscan.io/tx/0x2", tr.ExplorerURL(StepBurn))
	assert.Equal(t, "https://basescan.org/tx/0x3", tr.ExplorerURL(StepMint))
	assert.Empty(t, tr.ExplorerURL(StepFetchAttestation))

	steps := tr.StepsWithExplorerURLs()
	assert.Equal(t, "https://basescan.org/tx/0x3", steps.Find(StepMint).ExplorerURL)
	assert.Empty(t, steps.Find(StepFetchAttestation).ExplorerURL)
	assert.Equal(t, "https://stale.example/tx/0x3", tr.Steps.Find(StepMint).ExplorerURL)
}

func TestDisplayTxHash(t *testing.T) {
	tr := sampleTransfer()
	tr.BurnTxHash = "0xburn"
	tr.MintTxHash = "0xmint"

	hash, chain := tr.DisplayTxHash()
	assert.Equal(t, "0xburn", hash)
	assert.Equal(t, chains.Ethereum, chain)

	tr.Status = StatusSuccess
	hash, chain = tr.DisplayTxHash()
	assert.Equal(t, "0xmint", hash)
	assert.Equal(t, chains.Base, chain)
}

func TestBelongsTo(t *testing.T) {
	tr := sampleTransfer()
	assert.True(t, tr.BelongsTo("0xabcd"))
	assert.True(t, tr.BelongsTo("0XABCD"))
	assert.False(t, tr.BelongsTo("0xabce"))
}

func TestParseSpeed(t *testing.T) {
	s, err := ParseSpeed("Fast")
	require.NoError(t, err)
	assert.Equal(t, SpeedFast, s)

	s, err = ParseSpeed("standard")
	require.NoError(t, err)
	assert.Equal(t, SpeedStandard, s)

	_, err = ParseSpeed("instant")
	assert.Error(t, err)
}

func TestTransfer_JSONFieldNames(t *testing.T) {
	tr := sampleTransfer()
	tr.BurnTxHash = "0xburn"

	raw, err := json.Marshal(tr)
	require.NoError(t, err)

	var fields map[string]any
	require.NoError(t, json.Unmarshal(raw, &fields))
	for _, key := range []string{"id", "version", "startedAt", "sourceChainId", "destChainId", "amount",
		"walletAddress", "transferSpeed", "currentStep", "steps", "burnTxHash", "status"} {
		assert.Contains(t, fields, key)
	}
	assert.NotContains(t, fields, "mintTxHash")
	assert.Equal(t, "100.5", fields["amount"])
}

func TestElapsed(t *testing.T) {
	start := int64(1_700_000_000_000)
	tests := []struct {
		seconds int64
		want    string
	}{
		{0, "0s"},
		{42, "42s"},
		{60, "1m"},
		{185, "3m 5s"},
		{3600, "1h 0m"},
		{3720 + 15, "1h 2m"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Elapsed(start, start+tt.seconds*1000, time.Time{}))
	}

	now := time.UnixMilli(start + 12_000)
	assert.Equal(t, "12s", Elapsed(start, 0, now))
}
