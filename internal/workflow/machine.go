// Package workflow governs the legal transitions between dossier states.
// The machine is passive: it validates requested transitions and emits the
// audit entry, it never polls for fraud state or mutates storage itself.
package workflow

import (
	"github.com/banking/riskguard/internal/domain"
)

type transitionKey struct {
	from domain.WorkflowState
	to   domain.WorkflowState
}

// transitionTable maps each legal (from, to) pair to the roles permitted to
// request it. RoleSystem marks the automatic fraud escalation path; admin
// carries every manager_risque permission.
var transitionTable = map[transitionKey][]domain.ActorRole{
	{domain.StateSoumis, domain.StateEnAnalyse}: {
		domain.RoleGestionnaire, domain.RoleManagerRisque, domain.RoleAdmin,
	},
	{domain.StateEnAnalyse, domain.StateValide}: {
		domain.RoleManagerRisque, domain.RoleAdmin,
	},
	{domain.StateEnAnalyse, domain.StateRefuse}: {
		domain.RoleManagerRisque, domain.RoleAdmin,
	},
	{domain.StateEnAnalyse, domain.StateAlerteFraude}: {
		domain.RoleManagerRisque, domain.RoleAdmin, domain.RoleSystem,
	},
	// Automatic trigger only: a critical fraud alert escalates a freshly
	// submitted dossier without any human in the loop.
	{domain.StateSoumis, domain.StateAlerteFraude}: {
		domain.RoleSystem,
	},
}

// Machine validates dossier state transitions against the static table
type Machine struct{}

// NewMachine returns the workflow state machine
func NewMachine() *Machine {
	return &Machine{}
}

// Transition validates a requested transition and, when accepted, returns
// the new state plus exactly one audit entry for the caller to persist.
// The request fails fast: an illegal pair, a forbidden role, or a stale
// observed state rejects the whole request with no partial mutation.
func (m *Machine) Transition(record *domain.DossierRecord, observed, target domain.WorkflowState, role domain.ActorRole, reason string) (domain.WorkflowState, domain.AuditEntry, error) {
	if record.State != observed {
		return record.State, domain.AuditEntry{}, &domain.ConcurrentModificationError{
			DossierID: record.DossierID,
			Expected:  observed,
			Observed:  record.State,
		}
	}

	allowed, legal := transitionTable[transitionKey{record.State, target}]
	if !legal {
		return record.State, domain.AuditEntry{}, &domain.IllegalTransitionError{
			From: record.State,
			To:   target,
		}
	}

	if !roleAllowed(allowed, role) {
		return record.State, domain.AuditEntry{}, &domain.UnauthorizedRoleError{
			Role: role,
			From: record.State,
			To:   target,
		}
	}

	entry := domain.NewAuditEntry(record.DossierID, role, record.State, target, reason)
	return target, entry, nil
}

// AllowedTargets lists the states reachable from the given state by the
// given role. Used by the API layer to surface available actions.
func (m *Machine) AllowedTargets(from domain.WorkflowState, role domain.ActorRole) []domain.WorkflowState {
	var targets []domain.WorkflowState
	for key, roles := range transitionTable {
		if key.from == from && roleAllowed(roles, role) {
			targets = append(targets, key.to)
		}
	}
	return targets
}

func roleAllowed(allowed []domain.ActorRole, role domain.ActorRole) bool {
	for _, r := range allowed {
		if r == role {
			return true
		}
	}
	return false
}
