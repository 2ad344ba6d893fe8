package domain

import (
	"time"

	"github.com/google/uuid"
)

// AuditEntry is the immutable record of one accepted workflow transition.
// Entries are append-only and can never be modified or deleted.
type AuditEntry struct {
	EntryID   uuid.UUID     `json:"entry_id" db:"entry_id"`
	DossierID uuid.UUID     `json:"dossier_id" db:"dossier_id"`
	ActorRole ActorRole     `json:"actor_role" db:"actor_role"`
	FromState WorkflowState `json:"from_state" db:"from_state"`
	ToState   WorkflowState `json:"to_state" db:"to_state"`
	Timestamp time.Time     `json:"timestamp" db:"timestamp"`
	Reason    string        `json:"reason" db:"reason"`
	Signature string        `json:"signature" db:"signature"` // HMAC for non-repudiation
}

// NewAuditEntry creates an audit entry for an accepted transition
func NewAuditEntry(dossierID uuid.UUID, role ActorRole, from, to WorkflowState, reason string) AuditEntry {
	return AuditEntry{
		EntryID:   uuid.New(),
		DossierID: dossierID,
		ActorRole: role,
		FromState: from,
		ToState:   to,
		Timestamp: time.Now().UTC(),
		Reason:    reason,
	}
}
