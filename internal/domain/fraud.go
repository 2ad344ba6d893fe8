package domain

import (
	"time"

	"github.com/google/uuid"
)

// AlertSeverity represents the severity of a fraud alert
type AlertSeverity string

const (
	SeverityInfo     AlertSeverity = "INFO"
	SeverityWarning  AlertSeverity = "WARNING"
	SeverityCritical AlertSeverity = "CRITICAL"
)

// Stable rule identifiers for the fraud rule registry
const (
	RuleDuplicateApplication      = "duplicate_application"
	RuleIncomeCoherence           = "income_coherence"
	RuleSubmissionVelocity        = "submission_velocity"
	RuleDocumentAnomaly           = "document_anomaly"
	RuleIncomeProfileMismatch     = "income_profile_mismatch"
	RuleMissingCharges            = "missing_charges"
	RuleRepeatIncidentsHighAmount = "repeat_incidents_high_amount"
	RuleSharedIdentity            = "shared_identity"
)

// FraudAlert is one triggered fraud rule for a dossier. A dossier may carry
// zero or more alerts; any CRITICAL alert forces the workflow into
// alerte_fraude via the orchestrating caller.
type FraudAlert struct {
	AlertID     uuid.UUID     `json:"alert_id" db:"alert_id"`
	DossierID   uuid.UUID     `json:"dossier_id" db:"dossier_id"`
	RuleID      string        `json:"rule_id" db:"rule_id"`
	Severity    AlertSeverity `json:"severity" db:"severity"`
	Message     string        `json:"message" db:"message"`
	TriggeredAt time.Time     `json:"triggered_at" db:"triggered_at"`
}

// HasCritical reports whether any alert in the slice is CRITICAL
func HasCritical(alerts []FraudAlert) bool {
	for _, a := range alerts {
		if a.Severity == SeverityCritical {
			return true
		}
	}
	return false
}
