package model

import "fmt"

// Error codes surfaced over the UDS protocol. Each typed error below carries
// one of these via ErrorCode() so the daemon boundary can map failures
// without string matching.
const (
	ErrCodeInvalidSequence      = "INVALID_SEQUENCE"
	ErrCodeUnresolvedDependency = "UNRESOLVED_DEPENDENCY"
	ErrCodeUnknownPlan          = "UNKNOWN_PLAN"
	ErrCodeInvalidPlanFormat    = "INVALID_PLAN"
	ErrCodeInvalidSessionFormat = "INVALID_SESSION"
)

// InvalidSequenceError reports a sequence number below 1 passed to a
// formatter. This is a programming invariant violation, never retried.
type InvalidSequenceError struct {
	Kind  EntityKind
	Field string
	Value uint
}

func (e *InvalidSequenceError) Error() string {
	return fmt.Sprintf("invalid %s %s: %d (must be >= 1)", e.Kind, e.Field, e.Value)
}

func (e *InvalidSequenceError) ErrorCode() string { return ErrCodeInvalidSequence }

// UnresolvedDependencyError reports a depends_on reference that matched no
// raw identifier in the same planning call. The whole call is rejected.
type UnresolvedDependencyError struct {
	RawRef    string // the reference that failed to resolve
	RawPlanID string // raw identifier of the plan that declared it
}

func (e *UnresolvedDependencyError) Error() string {
	return fmt.Sprintf("unresolved dependency %q declared by plan %q", e.RawRef, e.RawPlanID)
}

func (e *UnresolvedDependencyError) ErrorCode() string { return ErrCodeUnresolvedDependency }

// UnknownPlanError reports a counter operation on a plan that was never
// registered.
type UnknownPlanError struct {
	PlanID string
}

func (e *UnknownPlanError) Error() string {
	return fmt.Sprintf("unknown plan: %s", e.PlanID)
}

func (e *UnknownPlanError) ErrorCode() string { return ErrCodeUnknownPlan }

// InvalidPlanFormatError reports a plan string that does not conform to the
// canonical plan layout. Distinct from UnknownPlanError: a malformed string
// could never name a registered plan.
type InvalidPlanFormatError struct {
	PlanID string
}

func (e *InvalidPlanFormatError) Error() string {
	return fmt.Sprintf("invalid plan format: %q", e.PlanID)
}

func (e *InvalidPlanFormatError) ErrorCode() string { return ErrCodeInvalidPlanFormat }

// InvalidSessionFormatError reports a client-supplied session string that does
// not conform to the canonical session layout. The client must request a
// server-minted session instead.
type InvalidSessionFormatError struct {
	SessionID string
}

func (e *InvalidSessionFormatError) Error() string {
	return fmt.Sprintf("invalid session format: %q", e.SessionID)
}

func (e *InvalidSessionFormatError) ErrorCode() string { return ErrCodeInvalidSessionFormat }

// Coder is satisfied by all typed errors in this package. The UDS boundary
// uses errors.As against this interface to pick a protocol error code.
type Coder interface {
	error
	ErrorCode() string
}
