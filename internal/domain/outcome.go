package domain

type OutcomeKind int

const (
	OutcomeSuccess OutcomeKind = iota
	OutcomeRetryable
	OutcomeTerminal
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeRetryable:
		return "retryable"
	case OutcomeTerminal:
		return "terminal"
	default:
		return "unknown"
	}
}

// Outcome is what a task handler reports back to the task runner. Only
// Retryable outcomes are rescheduled.
type Outcome struct {
	Kind   OutcomeKind
	Reason string
}

func Success() Outcome { return Outcome{Kind: OutcomeSuccess} }

func Retryable(reason string) Outcome { return Outcome{Kind: OutcomeRetryable, Reason: reason} }

func Terminal(reason string) Outcome { return Outcome{Kind: OutcomeTerminal, Reason: reason} }
