package scoring

import (
	"github.com/banking/riskguard/internal/config"
	"github.com/banking/riskguard/internal/domain"
)

// factorOrder fixes the accumulation order of the weighted sum. Float
// addition is not associative, so summing in map order would make the score
// depend on iteration order; identical inputs must produce bit-identical
// scores.
var factorOrder = []string{
	domain.FactorDebtRatio,
	domain.FactorHistory,
	domain.FactorStability,
	domain.FactorCoherence,
}

// Aggregator combines risk factors into a single banded score under one
// immutable policy. Construction validates the policy; evaluation is
// side-effect-free and safe for concurrent use.
type Aggregator struct {
	cfg config.ScoringConfig
}

// NewAggregator validates the scoring policy and returns an aggregator
func NewAggregator(cfg config.ScoringConfig) (*Aggregator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Aggregator{cfg: cfg}, nil
}

// Evaluate computes the weighted risk score in [0,100] and its band.
// Higher scores mean riskier dossiers. The computation is pure and
// deterministic: identical factors yield an identical result, down to the
// float bits. EvaluatedAt is left zero; callers that persist the result
// stamp it at the persistence boundary.
func (a *Aggregator) Evaluate(factors domain.RiskFactors) domain.ScoreResult {
	risks := map[string]float64{
		domain.FactorDebtRatio: debtRiskCurve(factors.DebtRatio),
		domain.FactorHistory:   1 - clamp01(factors.HistoryScore),
		domain.FactorStability: 1 - clamp01(factors.StabilityScore),
		domain.FactorCoherence: 1 - clamp01(factors.CoherenceScore),
	}
	weights := map[string]float64{
		domain.FactorDebtRatio: a.cfg.DebtWeight,
		domain.FactorHistory:   a.cfg.HistoryWeight,
		domain.FactorStability: a.cfg.StabilityWeight,
		domain.FactorCoherence: a.cfg.CoherenceWeight,
	}

	contributions := make(map[string]float64, len(risks))
	score := 0.0
	for _, name := range factorOrder {
		contribution := 100 * weights[name] * risks[name]
		contributions[name] = contribution
		score += contribution
	}
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}

	band := a.band(score)

	return domain.ScoreResult{
		NumericScore:   score,
		Band:           band,
		Factors:        factors,
		Contributions:  contributions,
		Explanation:    buildExplanation(factors, contributions, score),
		Recommendation: recommend(band),
	}
}

// band maps a numeric score to its risk band. Deterministic and monotonic
// by construction: thresholds are validated strictly increasing.
func (a *Aggregator) band(score float64) domain.RiskBand {
	switch {
	case score < a.cfg.MediumMin:
		return domain.BandLow
	case score < a.cfg.HighMin:
		return domain.BandMedium
	case score < a.cfg.CriticalMin:
		return domain.BandHigh
	default:
		return domain.BandCritical
	}
}

// debtRiskCurve maps the unbounded debt ratio to a risk in [0,1] through a
// diminishing piecewise curve: below a third of income the risk stays low,
// then climbs steeply, saturating at 1 once the ratio reaches the full
// income. Very high ratios no longer change the outcome.
func debtRiskCurve(ratio float64) float64 {
	switch {
	case ratio <= 0:
		return 0
	case ratio <= 0.20:
		return 0
	case ratio <= 0.33:
		return (ratio - 0.20) / 0.13 * 0.30
	case ratio <= 0.45:
		return 0.30 + (ratio-0.33)/0.12*0.30
	case ratio <= 0.60:
		return 0.60 + (ratio-0.45)/0.15*0.25
	case ratio <= 1.00:
		return 0.85 + (ratio-0.60)/0.40*0.15
	default:
		return 1
	}
}
