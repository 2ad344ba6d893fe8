package domain

import (
	"time"

	"github.com/google/uuid"
)

// AssessmentReport is the archived snapshot of one full dossier assessment:
// the dossier as evaluated, the score, the fraud alerts, and the audit trail
// up to the moment of generation. Stored as JSON in the archive bucket.
type AssessmentReport struct {
	ReportID    uuid.UUID     `json:"report_id"`
	Dossier     DossierRecord `json:"dossier"`
	Client      ClientProfile `json:"client"`
	Score       *ScoreResult  `json:"score,omitempty"`
	Alerts      []FraudAlert  `json:"alerts,omitempty"`
	AuditTrail  []AuditEntry  `json:"audit_trail,omitempty"`
	GeneratedAt time.Time     `json:"generated_at"`
}

// NewAssessmentReport assembles a report snapshot
func NewAssessmentReport(dossier DossierRecord, client ClientProfile, score *ScoreResult, alerts []FraudAlert, trail []AuditEntry) *AssessmentReport {
	return &AssessmentReport{
		ReportID:    uuid.New(),
		Dossier:     dossier,
		Client:      client,
		Score:       score,
		Alerts:      alerts,
		AuditTrail:  trail,
		GeneratedAt: time.Now().UTC(),
	}
}
