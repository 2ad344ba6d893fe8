package fraud

import (
	"errors"
	"fmt"
	"time"

	"github.com/banking/riskguard/internal/domain"
	"github.com/google/uuid"
)

func defaultRules() []Rule {
	return []Rule{
		{ID: domain.RuleDuplicateApplication, Check: checkDuplicateApplication},
		{ID: domain.RuleIncomeCoherence, Check: checkIncomeCoherence},
		{ID: domain.RuleSubmissionVelocity, Check: checkSubmissionVelocity},
		{ID: domain.RuleDocumentAnomaly, Check: checkDocumentAnomaly},
		{ID: domain.RuleIncomeProfileMismatch, Check: checkIncomeProfileMismatch},
		{ID: domain.RuleMissingCharges, Check: checkMissingCharges},
		{ID: domain.RuleRepeatIncidentsHighAmount, Check: checkRepeatIncidentsHighAmount},
	}
}

func newAlert(ruleID string, severity domain.AlertSeverity, message string) *domain.FraudAlert {
	return &domain.FraudAlert{
		AlertID:     uuid.New(),
		RuleID:      ruleID,
		Severity:    severity,
		Message:     message,
		TriggeredAt: time.Now().UTC(),
	}
}

// checkDuplicateApplication flags a second open dossier for the same client
// identity within the duplicate window
func checkDuplicateApplication(ctx RuleContext) (*domain.FraudAlert, error) {
	if ctx.Client == nil {
		return nil, errors.New("client profile missing")
	}
	for _, prior := range ctx.History {
		if prior.DossierID == ctx.Dossier.DossierID {
			continue
		}
		if prior.State.IsTerminal() {
			continue
		}
		gap := ctx.Dossier.SubmittedAt.Sub(prior.SubmittedAt)
		if gap < 0 {
			gap = -gap
		}
		if gap <= ctx.cfg.DuplicateWindow {
			return newAlert(domain.RuleDuplicateApplication, domain.SeverityWarning,
				fmt.Sprintf("dossier %s du même client encore ouvert (soumis il y a %s)",
					prior.Reference, gap.Round(time.Hour))), nil
		}
	}
	return nil, nil
}

// checkIncomeCoherence scales severity with how far the coherence sub-score
// falls below the configured thresholds
func checkIncomeCoherence(ctx RuleContext) (*domain.FraudAlert, error) {
	if ctx.Coherence < 0 {
		return nil, errors.New("coherence score unavailable")
	}
	msg := fmt.Sprintf("cohérence des données déclarées à %.2f", ctx.Coherence)
	switch {
	case ctx.Coherence < ctx.cfg.CoherenceCriticalBelow:
		return newAlert(domain.RuleIncomeCoherence, domain.SeverityCritical, msg), nil
	case ctx.Coherence < ctx.cfg.CoherenceWarnBelow:
		return newAlert(domain.RuleIncomeCoherence, domain.SeverityWarning, msg), nil
	case ctx.Coherence < ctx.cfg.CoherenceInfoBelow:
		return newAlert(domain.RuleIncomeCoherence, domain.SeverityInfo, msg), nil
	}
	return nil, nil
}

// checkSubmissionVelocity flags more than the threshold number of
// submissions by the same client inside the velocity window. The dossier
// under review counts as one submission.
func checkSubmissionVelocity(ctx RuleContext) (*domain.FraudAlert, error) {
	count := 1
	for _, prior := range ctx.History {
		if prior.DossierID == ctx.Dossier.DossierID {
			continue
		}
		gap := ctx.Dossier.SubmittedAt.Sub(prior.SubmittedAt)
		if gap < 0 {
			gap = -gap
		}
		if gap <= ctx.cfg.VelocityWindow {
			count++
		}
	}
	if count > ctx.cfg.VelocityThreshold {
		return newAlert(domain.RuleSubmissionVelocity, domain.SeverityCritical,
			fmt.Sprintf("%d soumissions en %s (seuil: %d)",
				count, ctx.cfg.VelocityWindow, ctx.cfg.VelocityThreshold)), nil
	}
	return nil, nil
}

// checkDocumentAnomaly flags any document whose metadata carries a tampering
// indicator
func checkDocumentAnomaly(ctx RuleContext) (*domain.FraudAlert, error) {
	for _, doc := range ctx.Dossier.Documents {
		if doc.TamperSuspected {
			return newAlert(domain.RuleDocumentAnomaly, domain.SeverityCritical,
				fmt.Sprintf("document %s (%s) suspecté de falsification", doc.Filename, doc.Type)), nil
		}
	}
	return nil, nil
}

// checkIncomeProfileMismatch flags a declared income far above what the
// profession plausibly pays
func checkIncomeProfileMismatch(ctx RuleContext) (*domain.FraudAlert, error) {
	if ctx.Client == nil {
		return nil, errors.New("client profile missing")
	}
	ceiling, known := domain.ProfessionIncomeCeilings[ctx.Client.Profession]
	if !known {
		return nil, nil
	}
	if ctx.Client.MonthlyIncome > 3*ceiling {
		return newAlert(domain.RuleIncomeProfileMismatch, domain.SeverityWarning,
			fmt.Sprintf("revenu déclaré (%.0f FCFA) anormalement élevé pour le profil '%s'",
				ctx.Client.MonthlyIncome, ctx.Client.Profession)), nil
	}
	return nil, nil
}

// checkMissingCharges flags a significant income with no declared charges
func checkMissingCharges(ctx RuleContext) (*domain.FraudAlert, error) {
	if ctx.Client == nil {
		return nil, errors.New("client profile missing")
	}
	if ctx.Client.MonthlyIncome > ctx.cfg.SignificantIncome && ctx.Client.MonthlyCharges == 0 {
		return newAlert(domain.RuleMissingCharges, domain.SeverityInfo,
			"aucune charge déclarée malgré un revenu significatif"), nil
	}
	return nil, nil
}

// checkRepeatIncidentsHighAmount flags a client with repeated payment
// incidents requesting a large amount
func checkRepeatIncidentsHighAmount(ctx RuleContext) (*domain.FraudAlert, error) {
	if ctx.Client == nil {
		return nil, errors.New("client profile missing")
	}
	incidents := 0
	for _, rec := range ctx.Client.RepaymentHistory {
		if rec.Outcome != domain.OutcomeOnTime {
			incidents++
		}
	}
	if incidents >= ctx.cfg.IncidentCountThreshold && ctx.Dossier.RequestedAmount > ctx.cfg.LargeAmountThreshold {
		return newAlert(domain.RuleRepeatIncidentsHighAmount, domain.SeverityWarning,
			fmt.Sprintf("client avec %d incidents demandant %.0f FCFA",
				incidents, ctx.Dossier.RequestedAmount)), nil
	}
	return nil, nil
}
