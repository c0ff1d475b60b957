package transfer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSteps(t *testing.T) {
	steps := NewSteps()
	require.Len(t, steps, 4)
	assert.True(t, steps.Valid())

	for i, name := range StepNames() {
		assert.Equal(t, Step{Name: name, State: StatePending}, steps[i])
	}
}

func TestStepNames_ReturnsCopy(t *testing.T) {
	names := StepNames()
	names[0] = "tampered"
	assert.Equal(t, StepApprove, StepNames()[0])
}

func TestStepName_Next(t *testing.T) {
	tests := []struct {
		name StepName
		next StepName
		ok   bool
	}{
		{StepApprove, StepBurn, true},
		{StepBurn, StepFetchAttestation, true},
		{StepFetchAttestation, StepMint, true},
		{StepMint, "", false},
		{"bogus", "", false},
	}
	for _, tt := range tests {
		next, ok := tt.name.Next()
		assert.Equal(t, tt.ok, ok, tt.name)
		assert.Equal(t, tt.next, next, tt.name)
	}
}

func TestParseStepName(t *testing.T) {
	n, err := ParseStepName("fetchAttestation")
	require.NoError(t, err)
	assert.Equal(t, StepFetchAttestation, n)

	_, err = ParseStepName("attest")
	assert.Error(t, err)
}

func TestSteps_Valid(t *testing.T) {
	swapped := NewSteps()
	swapped[0], swapped[1] = swapped[1], swapped[0]

	tests := []struct {
		name  string
		steps Steps
		want  bool
	}{
		{"canonical", NewSteps(), true},
		{"nil", nil, false},
		{"three", NewSteps()[:3], false},
		{"out of order", swapped, false},
		{"five", append(NewSteps(), Step{Name: StepMint}), false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.steps.Valid(), tt.name)
	}
}

func TestSteps_CloneIsIndependent(t *testing.T) {
	steps := NewSteps()
	clone := steps.Clone()
	clone.Find(StepBurn).State = StateSuccess

	assert.Equal(t, StatePending, steps.State(StepBurn))
	assert.Equal(t, StateSuccess, clone.State(StepBurn))
}
