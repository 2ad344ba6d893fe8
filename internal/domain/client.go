package domain

import (
	"time"

	"github.com/google/uuid"
)

// ClientType distinguishes individual borrowers from businesses
type ClientType string

const (
	ClientTypeParticulier ClientType = "particulier"
	ClientTypeEntreprise  ClientType = "entreprise"
)

// Profession represents the professional category of a client, which bounds
// the loan amounts the client can plausibly request
type Profession string

const (
	ProfessionEtudiant        Profession = "etudiant"
	ProfessionSalarieJunior   Profession = "salarie_junior"
	ProfessionSalarieConfirme Profession = "salarie_confirme"
	ProfessionSalarieSenior   Profession = "salarie_senior"
	ProfessionEntrepreneur    Profession = "entrepreneur"
	ProfessionRetraite        Profession = "retraite"
	ProfessionEntreprise      Profession = "entreprise"
)

// ProfessionAmountCeilings maps each profession to the maximum loan amount
// (FCFA) considered coherent for that profile
var ProfessionAmountCeilings = map[Profession]float64{
	ProfessionEtudiant:        500_000,
	ProfessionSalarieJunior:   5_000_000,
	ProfessionSalarieConfirme: 20_000_000,
	ProfessionSalarieSenior:   50_000_000,
	ProfessionEntrepreneur:    30_000_000,
	ProfessionRetraite:        10_000_000,
	ProfessionEntreprise:      200_000_000,
}

// ProfessionIncomeCeilings maps professions to the monthly income (FCFA)
// above which a declaration looks suspicious for that profile. Professions
// without an entry have no plausible upper bound.
var ProfessionIncomeCeilings = map[Profession]float64{
	ProfessionEtudiant:        200_000,
	ProfessionSalarieJunior:   500_000,
	ProfessionSalarieConfirme: 2_000_000,
	ProfessionRetraite:        1_000_000,
}

// AmountCeiling returns the coherent loan ceiling for a profession
func AmountCeiling(p Profession) float64 {
	if ceiling, exists := ProfessionAmountCeilings[p]; exists {
		return ceiling
	}
	return 10_000_000 // Default for unknown professions
}

// PaymentOutcome represents the outcome of one past repayment
type PaymentOutcome string

const (
	OutcomeOnTime  PaymentOutcome = "on_time"
	OutcomeLate    PaymentOutcome = "late"
	OutcomeDefault PaymentOutcome = "default"
)

// RepaymentRecord is one observed past repayment, ordered oldest first
// within a client's history
type RepaymentRecord struct {
	DueDate time.Time      `json:"due_date" db:"due_date"`
	Outcome PaymentOutcome `json:"outcome" db:"outcome"`
}

// ClientProfile is the immutable snapshot of a client as seen by the engine
// at evaluation time. The engine only reads it; the surrounding application
// owns creation and persistence.
type ClientProfile struct {
	ClientID         uuid.UUID         `json:"client_id" db:"client_id"`
	ClientType       ClientType        `json:"client_type" db:"client_type"`
	LastName         string            `json:"last_name" db:"last_name"`
	FirstName        string            `json:"first_name" db:"first_name"`
	NationalID       string            `json:"-" db:"national_id"` // AES-encrypted at rest
	Profession       Profession        `json:"profession" db:"profession"`
	MonthlyIncome    float64           `json:"monthly_income" db:"monthly_income"`
	MonthlyCharges   float64           `json:"monthly_charges" db:"monthly_charges"`
	ExistingDebts    float64           `json:"existing_debts" db:"existing_debts"`
	EmploymentYears  float64           `json:"employment_years" db:"employment_years"`
	Age              int               `json:"age" db:"age"`
	AddressVerified  bool              `json:"address_verified" db:"address_verified"`
	ContactVerified  bool              `json:"contact_verified" db:"contact_verified"`
	BankStatedIncome *float64          `json:"bank_stated_income,omitempty" db:"bank_stated_income"`
	RepaymentHistory []RepaymentRecord `json:"repayment_history,omitempty" db:"-"`
	CreatedAt        time.Time         `json:"created_at" db:"created_at"`
}

// IdentityFingerprint returns the value used to match a client across
// dossiers for duplicate detection. National ID dominates; name fallback
// for records collected before ID capture was mandatory.
func (c *ClientProfile) IdentityFingerprint() string {
	if c.NationalID != "" {
		return "cni:" + c.NationalID
	}
	return "name:" + c.LastName + "/" + c.FirstName
}
