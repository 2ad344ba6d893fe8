package domain

import "time"

// RiskBand represents the discretized risk level derived from the numeric score
type RiskBand string

const (
	BandLow      RiskBand = "LOW"
	BandMedium   RiskBand = "MEDIUM"
	BandHigh     RiskBand = "HIGH"
	BandCritical RiskBand = "CRITICAL"
)

var bandRank = map[RiskBand]int{
	BandLow:      0,
	BandMedium:   1,
	BandHigh:     2,
	BandCritical: 3,
}

// Rank returns the ordering position of the band (LOW < MEDIUM < HIGH < CRITICAL)
func (b RiskBand) Rank() int {
	return bandRank[b]
}

// Factor names used in ScoreResult contributions
const (
	FactorDebtRatio = "debt_ratio"
	FactorHistory   = "history"
	FactorStability = "stability"
	FactorCoherence = "coherence"
)

// RiskFactors is the normalized sub-score value object produced fresh per
// evaluation. DebtRatio is unbounded above; the other components live in
// [0,1] where 1 is the best observable value.
type RiskFactors struct {
	DebtRatio      float64 `json:"debt_ratio"`
	HistoryScore   float64 `json:"history_score"`
	StabilityScore float64 `json:"stability_score"`
	CoherenceScore float64 `json:"coherence_score"`
}

// ScoreResult is the outcome of one risk evaluation. NumericScore lives in
// [0,100] where higher means riskier; Band is a deterministic, monotonic
// function of NumericScore via the configured thresholds.
type ScoreResult struct {
	NumericScore   float64            `json:"numeric_score"`
	Band           RiskBand           `json:"band"`
	Factors        RiskFactors        `json:"factors"`
	Contributions  map[string]float64 `json:"contributions"`
	Explanation    string             `json:"explanation,omitempty"`
	Recommendation string             `json:"recommendation,omitempty"`
	Installment    float64            `json:"installment_estimate"`
	EvaluatedAt    time.Time          `json:"evaluated_at"`
}
