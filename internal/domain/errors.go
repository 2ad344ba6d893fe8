package domain

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Sentinel errors for errors.Is matching across layers
var (
	ErrIllegalTransition      = errors.New("illegal workflow transition")
	ErrUnauthorizedRole       = errors.New("role not permitted for transition")
	ErrConcurrentModification = errors.New("dossier modified concurrently")
	ErrDossierNotFound        = errors.New("dossier not found")
)

// ConfigError reports an invalid weight/threshold/rule configuration.
// Fatal at startup, never recoverable per-request.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid configuration %s: %s", e.Field, e.Reason)
}

// ValidationError reports a malformed input record. The evaluation is
// aborted and no partial result is returned.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid record: %s %s", e.Field, e.Reason)
}

// IllegalTransitionError reports a (from, to) pair absent from the
// transition table
type IllegalTransitionError struct {
	From WorkflowState
	To   WorkflowState
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("transition %s -> %s is not allowed", e.From, e.To)
}

func (e *IllegalTransitionError) Is(target error) bool {
	return target == ErrIllegalTransition
}

// UnauthorizedRoleError reports a legal transition requested by a role that
// is not permitted for it
type UnauthorizedRoleError struct {
	Role ActorRole
	From WorkflowState
	To   WorkflowState
}

func (e *UnauthorizedRoleError) Error() string {
	return fmt.Sprintf("role %s may not perform %s -> %s", e.Role, e.From, e.To)
}

func (e *UnauthorizedRoleError) Is(target error) bool {
	return target == ErrUnauthorizedRole
}

// ConcurrentModificationError reports that the dossier's current state no
// longer matches the state the request was computed against. Transient; the
// caller may reload and retry once.
type ConcurrentModificationError struct {
	DossierID uuid.UUID
	Expected  WorkflowState
	Observed  WorkflowState
}

func (e *ConcurrentModificationError) Error() string {
	return fmt.Sprintf("dossier %s changed state (expected %s, observed %s)",
		e.DossierID, e.Expected, e.Observed)
}

func (e *ConcurrentModificationError) Is(target error) bool {
	return target == ErrConcurrentModification
}
