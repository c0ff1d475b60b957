package transfer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func transferWith(status Status, burn StepState, burnTx string, attestation StepState, payload string, mint StepState) Transfer {
	steps := NewSteps()
	steps.Find(StepApprove).State = StateSuccess
	steps.Find(StepBurn).State = burn
	steps.Find(StepBurn).TxHash = burnTx
	steps.Find(StepFetchAttestation).State = attestation
	steps.Find(StepMint).State = mint
	return Transfer{
		ID:          "t1",
		Status:      status,
		Steps:       steps,
		BurnTxHash:  burnTx,
		Attestation: payload,
	}
}

func TestCanResume(t *testing.T) {
	tests := []struct {
		name string
		tr   Transfer
		want bool
	}{
		{"burned, waiting for attestation", transferWith(StatusPending, StateSuccess, "0xabc", StatePending, "", StatePending), true},
		{"burned, mint in progress", transferWith(StatusPending, StateSuccess, "0xabc", StateSuccess, "att", StateInProgress), true},
		{"burned, mint errored", transferWith(StatusPending, StateSuccess, "0xabc", StateSuccess, "", StateError), true},
		{"burn without hash", transferWith(StatusPending, StateSuccess, "", StatePending, "", StatePending), false},
		{"burn in progress", transferWith(StatusPending, StateInProgress, "0xabc", StatePending, "", StatePending), false},
		{"mint done", transferWith(StatusPending, StateSuccess, "0xabc", StateSuccess, "att", StateSuccess), false},
		{"failed status", transferWith(StatusFailed, StateSuccess, "0xabc", StatePending, "", StatePending), false},
		{"success status", transferWith(StatusSuccess, StateSuccess, "0xabc", StateSuccess, "att", StateSuccess), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CanResume(tt.tr))
		})
	}
}

func TestCanResume_FalseForEveryNonPendingStatus(t *testing.T) {
	states := []StepState{StatePending, StateInProgress, StateSuccess, StateError}
	for _, status := range []Status{StatusSuccess, StatusFailed} {
		for _, burn := range states {
			for _, att := range states {
				for _, mint := range states {
					tr := transferWith(status, burn, "0xabc", att, "payload", mint)
					assert.False(t, CanResume(tr))
				}
			}
		}
	}
}

func TestCanResume_PendingMatchesBurnAndMintStates(t *testing.T) {
	states := []StepState{StatePending, StateInProgress, StateSuccess, StateError}
	for _, burn := range states {
		for _, mint := range states {
			for _, hash := range []string{"", "0xabc"} {
				tr := transferWith(StatusPending, burn, hash, StatePending, "", mint)
				want := burn == StateSuccess && hash != "" && mint != StateSuccess
				assert.Equal(t, want, CanResume(tr), "burn=%s mint=%s hash=%q", burn, mint, hash)
			}
		}
	}
}

func TestCanResume_RequiresCanonicalSteps(t *testing.T) {
	tr := transferWith(StatusPending, StateSuccess, "0xabc", StatePending, "", StatePending)
	require.True(t, CanResume(tr))

	tr.Steps = tr.Steps[:2]
	assert.False(t, CanResume(tr))
	_, ok := ResumptionPoint(tr)
	assert.False(t, ok)
}

func TestResumptionPoint(t *testing.T) {
	tests := []struct {
		name string
		tr   Transfer
		want StepName
		ok   bool
	}{
		{"attestation pending", transferWith(StatusPending, StateSuccess, "0xabc", StatePending, "", StatePending), StepFetchAttestation, true},
		{"attestation done with payload", transferWith(StatusPending, StateSuccess, "0xabc", StateSuccess, "0xattestation", StatePending), StepMint, true},
		{"attestation done without payload", transferWith(StatusPending, StateSuccess, "0xabc", StateSuccess, "", StatePending), StepFetchAttestation, true},
		{"payload but attestation step not done", transferWith(StatusPending, StateSuccess, "0xabc", StateInProgress, "0xattestation", StatePending), StepFetchAttestation, true},
		{"not resumable", transferWith(StatusFailed, StateSuccess, "0xabc", StatePending, "", StatePending), "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ResumptionPoint(tt.tr)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
