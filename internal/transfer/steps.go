package transfer

import "fmt"

// StepName identifies one of the four fixed stages of a CCTP transfer.
type StepName string

const (
	StepApprove          StepName = "approve"
	StepBurn             StepName = "burn"
	StepFetchAttestation StepName = "fetchAttestation"
	StepMint             StepName = "mint"
)

var stepOrder = [...]StepName{StepApprove, StepBurn, StepFetchAttestation, StepMint}

// StepNames returns the canonical step order.
func StepNames() []StepName {
	out := make([]StepName, len(stepOrder))
	copy(out, stepOrder[:])
	return out
}

// Index returns the position of name in the canonical order, or -1.
func (n StepName) Index() int {
	for i, s := range stepOrder {
		if s == n {
			return i
		}
	}
	return -1
}

// Valid reports whether n is one of the four step names.
func (n StepName) Valid() bool { return n.Index() >= 0 }

// Next returns the step that follows n. It returns false for mint.
func (n StepName) Next() (StepName, bool) {
	i := n.Index()
	if i < 0 || i == len(stepOrder)-1 {
		return "", false
	}
	return stepOrder[i+1], true
}

// ParseStepName validates a step name coming from user input.
func ParseStepName(s string) (StepName, error) {
	n := StepName(s)
	if !n.Valid() {
		return "", fmt.Errorf("unknown step %q", s)
	}
	return n, nil
}

// StepState is the progress of a single step.
type StepState string

const (
	StatePending    StepState = "pending"
	StateInProgress StepState = "in_progress"
	StateSuccess    StepState = "success"
	StateError      StepState = "error"
)

// Step is one stage of a transfer. Timestamps are milliseconds since epoch.
type Step struct {
	Name        StepName  `json:"name"`
	State       StepState `json:"state"`
	TxHash      string    `json:"txHash,omitempty"`
	StartedAt   int64     `json:"startedAt,omitempty"`
	CompletedAt int64     `json:"completedAt,omitempty"`
	BlockNumber uint64    `json:"blockNumber,omitempty"`
	// ExplorerURL is derived from chain id and TxHash; see Transfer.StepsWithExplorerURLs.
	ExplorerURL string `json:"explorerUrl,omitempty"`
	Error       string `json:"error,omitempty"`
}

// Steps is the ordered step list of a transfer.
type Steps []Step

// NewSteps returns the four steps in canonical order, all pending.
func NewSteps() Steps {
	steps := make(Steps, len(stepOrder))
	for i, name := range stepOrder {
		steps[i] = Step{Name: name, State: StatePending}
	}
	return steps
}

// Find returns a pointer into s for the named step, or nil.
func (s Steps) Find(name StepName) *Step {
	for i := range s {
		if s[i].Name == name {
			return &s[i]
		}
	}
	return nil
}

// State returns the state of the named step, or "" when absent.
func (s Steps) State(name StepName) StepState {
	if st := s.Find(name); st != nil {
		return st.State
	}
	return ""
}

// Clone returns a copy that shares no memory with s.
func (s Steps) Clone() Steps {
	if s == nil {
		return nil
	}
	out := make(Steps, len(s))
	copy(out, s)
	return out
}

// Valid reports whether s holds exactly the four steps in canonical order.
func (s Steps) Valid() bool {
	if len(s) != len(stepOrder) {
		return false
	}
	for i, name := range stepOrder {
		if s[i].Name != name {
			return false
		}
	}
	return true
}
