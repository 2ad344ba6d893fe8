// Package scoring turns raw dossier and client data into normalized risk
// factors and aggregates them into a banded risk score. Everything in this
// package is a pure computation: same input, same output, no clock, no I/O.
package scoring

import (
	"github.com/banking/riskguard/internal/config"
	"github.com/banking/riskguard/internal/domain"
	"github.com/google/uuid"
)

// Extract computes the risk factor value object for a dossier. Missing
// optional data degrades the relevant sub-score toward a neutral default;
// only missing required identity fields abort the evaluation.
func Extract(dossier *domain.DossierRecord, client *domain.ClientProfile, cfg config.ScoringConfig) (domain.RiskFactors, error) {
	if err := validateInputs(dossier, client); err != nil {
		return domain.RiskFactors{}, err
	}

	return domain.RiskFactors{
		DebtRatio:      debtRatio(dossier, client, cfg),
		HistoryScore:   historyScore(client.RepaymentHistory, cfg),
		StabilityScore: stabilityScore(client, cfg),
		CoherenceScore: coherenceScore(dossier, client, cfg),
	}, nil
}

func validateInputs(dossier *domain.DossierRecord, client *domain.ClientProfile) error {
	if client == nil || client.ClientID == uuid.Nil {
		return &domain.ValidationError{Field: "client_id", Reason: "is required"}
	}
	if client.LastName == "" && client.NationalID == "" {
		return &domain.ValidationError{Field: "identity", Reason: "requires last_name or national_id"}
	}
	if client.MonthlyIncome < 0 {
		return &domain.ValidationError{Field: "monthly_income", Reason: "must not be negative"}
	}
	if dossier == nil || dossier.DossierID == uuid.Nil {
		return &domain.ValidationError{Field: "dossier_id", Reason: "is required"}
	}
	if dossier.RequestedAmount <= 0 {
		return &domain.ValidationError{Field: "requested_amount", Reason: "must be positive"}
	}
	if dossier.TermMonths <= 0 {
		return &domain.ValidationError{Field: "term_months", Reason: "must be positive"}
	}
	return nil
}

// debtRatio is total monthly debt service (declared charges, existing debts,
// estimated installment of the requested loan) over monthly income. Unbounded
// above; the aggregator maps it through a saturating curve.
func debtRatio(dossier *domain.DossierRecord, client *domain.ClientProfile, cfg config.ScoringConfig) float64 {
	installment := Installment(dossier.RequestedAmount, dossier.TermMonths, cfg.AnnualRate)
	income := client.MonthlyIncome
	if income < cfg.IncomeEpsilon {
		income = cfg.IncomeEpsilon
	}
	return (client.MonthlyCharges + client.ExistingDebts + installment) / income
}

// historyScore is the recency-weighted fraction of on-time payments over the
// observed repayment sequence (oldest first). An absent history yields the
// configured neutral default instead of failing.
func historyScore(history []domain.RepaymentRecord, cfg config.ScoringConfig) float64 {
	if len(history) == 0 {
		return cfg.NeutralHistory
	}

	var weighted, total float64
	for i, rec := range history {
		w := float64(i + 1) // Most recent payment counts most
		total += w
		if rec.Outcome == domain.OutcomeOnTime {
			weighted += w
		}
	}
	return clamp01(weighted / total)
}

// stabilityScore blends employment tenure, saturating at the configured
// threshold, with address/contact verification.
func stabilityScore(client *domain.ClientProfile, cfg config.ScoringConfig) float64 {
	tenure := client.EmploymentYears / cfg.TenureSaturationYrs
	if tenure > 1 {
		tenure = 1
	}
	if tenure < 0 {
		tenure = 0
	}

	contact := 0.0
	if client.AddressVerified {
		contact += 0.5
	}
	if client.ContactVerified {
		contact += 0.5
	}

	return clamp01(0.75*tenure + 0.25*contact)
}

// coherenceScore cross-checks declared data against the rest of the record.
// Each failed check costs a fixed penalty, floored at zero.
func coherenceScore(dossier *domain.DossierRecord, client *domain.ClientProfile, cfg config.ScoringConfig) float64 {
	score := 1.0
	penalize := func(failed bool) {
		if failed {
			score -= cfg.CoherencePenalty
		}
	}

	ceiling := domain.AmountCeiling(client.Profession)
	penalize(dossier.RequestedAmount > ceiling)
	penalize(dossier.RequestedAmount > 2*ceiling) // Second penalty past double the ceiling

	if client.MonthlyIncome > 0 {
		penalize(dossier.RequestedAmount > 60*client.MonthlyIncome)
	}

	penalize(dossier.TermMonths > 84)

	// Declared income vs bank statement, when a statement was collected
	if client.BankStatedIncome != nil && client.MonthlyIncome > 0 {
		deviation := (client.MonthlyIncome - *client.BankStatedIncome) / client.MonthlyIncome
		if deviation < 0 {
			deviation = -deviation
		}
		penalize(deviation > 0.20)
	}

	for _, doc := range dossier.Documents {
		if doc.Status == domain.DocumentStatusRejected {
			score -= cfg.CoherencePenalty
		}
	}

	if score < 0 {
		return 0
	}
	return score
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
