package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// WorkflowState represents the lifecycle state of a loan dossier
type WorkflowState string

const (
	StateSoumis       WorkflowState = "soumis"
	StateEnAnalyse    WorkflowState = "en_analyse"
	StateValide       WorkflowState = "valide"
	StateRefuse       WorkflowState = "refuse"
	StateAlerteFraude WorkflowState = "alerte_fraude"
)

// IsTerminal reports whether no further automatic or role-driven transition
// is allowed from the state. alerte_fraude is terminal pending a manual
// override by a privileged actor, which happens outside this engine.
func (s WorkflowState) IsTerminal() bool {
	switch s {
	case StateValide, StateRefuse, StateAlerteFraude:
		return true
	}
	return false
}

// ActorRole represents the role of the actor requesting a transition.
// The caller authenticates the actor; the engine only checks the role is
// permitted for the requested transition.
type ActorRole string

const (
	RoleConseiller    ActorRole = "conseiller"
	RoleGestionnaire  ActorRole = "gestionnaire"
	RoleManagerRisque ActorRole = "manager_risque"
	RoleAdmin         ActorRole = "admin"
	RoleSystem        ActorRole = "system" // Automatic triggers (fraud escalation)
)

// LoanPurpose represents the declared purpose of the requested loan
type LoanPurpose string

const (
	PurposePersonnel  LoanPurpose = "personnel"
	PurposeImmobilier LoanPurpose = "immobilier"
	PurposeVehicule   LoanPurpose = "vehicule"
	PurposeEducation  LoanPurpose = "education"
	PurposeCommerce   LoanPurpose = "commerce"
	PurposeAgricole   LoanPurpose = "agricole"
	PurposeEquipement LoanPurpose = "equipement"
	PurposeAutre      LoanPurpose = "autre"
)

// DossierRecord is the loan application under review. Its State is mutable
// only through the workflow state machine; Version backs the optimistic
// concurrency check on state updates.
type DossierRecord struct {
	DossierID       uuid.UUID      `json:"dossier_id" db:"dossier_id"`
	Reference       string         `json:"reference" db:"reference"`
	ClientID        uuid.UUID      `json:"client_id" db:"client_id"`
	RequestedAmount float64        `json:"requested_amount" db:"requested_amount"`
	TermMonths      int            `json:"term_months" db:"term_months"`
	Purpose         LoanPurpose    `json:"purpose" db:"purpose"`
	PersonalDeposit float64        `json:"personal_deposit" db:"personal_deposit"`
	State           WorkflowState  `json:"state" db:"state"`
	Version         int64          `json:"version" db:"version"`
	SubmittedAt     time.Time      `json:"submitted_at" db:"submitted_at"`
	Documents       []DocumentMeta `json:"documents,omitempty" db:"-"`
	UpdatedAt       time.Time      `json:"updated_at" db:"updated_at"`
}

// NewDossierReference builds a dossier reference in the RG-YYYY-NNNNN scheme
func NewDossierReference(year int, sequence int) string {
	return fmt.Sprintf("RG-%d-%05d", year, sequence)
}
