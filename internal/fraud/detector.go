// Package fraud evaluates an open registry of fraud rules against a dossier
// and the client's prior dossiers. Rules are independent: each yields zero or
// one alert, and one rule's fault never aborts the others.
package fraud

import (
	"fmt"

	"github.com/banking/riskguard/internal/config"
	"github.com/banking/riskguard/internal/domain"
	"go.uber.org/zap"
)

// RuleContext is the read-only input handed to every rule
type RuleContext struct {
	Dossier *domain.DossierRecord
	Client  *domain.ClientProfile
	History []domain.DossierRecord // Prior dossiers of the same client

	// Coherence is the cross-field coherence sub-score, or -1 when it
	// could not be computed for this record.
	Coherence float64

	cfg config.FraudConfig
}

// Rule is one fraud check with a stable identifier. Check returns nil when
// the rule does not trigger, and an error when it must abstain.
type Rule struct {
	ID    string
	Check func(RuleContext) (*domain.FraudAlert, error)
}

// Detector runs the registered rules in order and returns the union of
// triggered alerts. Stateless and safe for concurrent use.
type Detector struct {
	rules  []Rule
	cfg    config.FraudConfig
	logger *zap.Logger
}

// NewDetector builds a detector with the default rule set
func NewDetector(cfg config.FraudConfig, logger *zap.Logger) (*Detector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	d := &Detector{cfg: cfg, logger: logger}
	for _, r := range defaultRules() {
		d.Register(r)
	}
	return d, nil
}

// Register appends a rule to the registry. Adding a rule never requires
// touching the aggregation logic.
func (d *Detector) Register(rule Rule) {
	d.rules = append(d.rules, rule)
}

// Detect evaluates every rule against the dossier. Alerts are returned
// unordered by severity; ranking them is a caller concern. A failing rule
// abstains for this evaluation and is logged for operator visibility.
func (d *Detector) Detect(dossier *domain.DossierRecord, client *domain.ClientProfile, history []domain.DossierRecord, coherence float64) []domain.FraudAlert {
	ctx := RuleContext{
		Dossier:   dossier,
		Client:    client,
		History:   history,
		Coherence: coherence,
		cfg:       d.cfg,
	}

	var alerts []domain.FraudAlert
	for _, rule := range d.rules {
		alert, err := d.evaluateRule(rule, ctx)
		if err != nil {
			d.logger.Warn("fraud rule abstained",
				zap.String("rule_id", rule.ID),
				zap.String("dossier_id", dossier.DossierID.String()),
				zap.Error(err),
			)
			continue
		}
		if alert != nil {
			alert.DossierID = dossier.DossierID
			alerts = append(alerts, *alert)
		}
	}
	return alerts
}

// evaluateRule isolates a single rule, converting panics into abstentions
func (d *Detector) evaluateRule(rule Rule, ctx RuleContext) (alert *domain.FraudAlert, err error) {
	defer func() {
		if r := recover(); r != nil {
			alert = nil
			err = fmt.Errorf("rule panicked: %v", r)
		}
	}()
	return rule.Check(ctx)
}
