package transfer

// CanResume reports whether an interrupted transfer can be finished: it is
// still pending, the burn landed with a known tx hash, and the mint has not.
func CanResume(t Transfer) bool {
	if t.Status != StatusPending || !t.Steps.Valid() {
		return false
	}
	burn := t.Steps.Find(StepBurn)
	if burn == nil || burn.State != StateSuccess || burn.TxHash == "" {
		return false
	}
	return t.Steps.State(StepMint) != StateSuccess
}

// ResumptionPoint returns the step a resumed transfer restarts from. A cached
// attestation skips straight to mint.
func ResumptionPoint(t Transfer) (StepName, bool) {
	if !CanResume(t) {
		return "", false
	}
	if t.Steps.State(StepFetchAttestation) == StateSuccess && t.Attestation != "" {
		return StepMint, true
	}
	return StepFetchAttestation, true
}
