package protocol

import "fmt"

// RecoverableError indicates the caller may retry, possibly with adjusted
// inputs (e.g. a smaller amount, a later block). It is the "infrastructure"
// band of the error taxonomy in §7.
type RecoverableError struct {
	Reason string
}

func (e *RecoverableError) Error() string { return fmt.Sprintf("recoverable: %s", e.Reason) }

// FatalError indicates a non-retryable defect: malformed input, an
// unrecoverable arithmetic overflow, an unsupported protocol feature.
type FatalError struct {
	Reason string
}

func (e *FatalError) Error() string { return fmt.Sprintf("fatal: %s", e.Reason) }

// InvalidInputError is returned alongside a partial result when an amount
// had to be clamped (VM pool hard limits, tick-list exhaustion on a
// concentrated-liquidity quote). Partial carries whatever the caller can
// still use to retry with a smaller amount.
type InvalidInputError struct {
	Reason  string
	Partial *GetAmountOutResult
}

func (e *InvalidInputError) Error() string { return fmt.Sprintf("invalid input: %s", e.Reason) }

// InvalidSnapshotError is returned by a C9 snapshot decoder.
type InvalidSnapshotError struct {
	Kind    InvalidSnapshotKind
	Message string
}

// InvalidSnapshotKind discriminates why a snapshot failed to decode.
type InvalidSnapshotKind int

const (
	MissingAttribute InvalidSnapshotKind = iota
	ValueError
	VMError
)

func (e *InvalidSnapshotError) Error() string {
	var kind string
	switch e.Kind {
	case MissingAttribute:
		kind = "missing attribute"
	case ValueError:
		kind = "value error"
	case VMError:
		kind = "vm error"
	}
	return fmt.Sprintf("invalid snapshot (%s): %s", kind, e.Message)
}

// TransitionError is returned by DeltaTransition when a delta cannot be
// applied (missing attribute, malformed encoding).
type TransitionError struct {
	Message string
}

func (e *TransitionError) Error() string { return fmt.Sprintf("transition error: %s", e.Message) }
