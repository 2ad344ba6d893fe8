package config

import (
	"testing"
	"time"

	"github.com/banking/riskguard/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8086, cfg.Server.Port)
	assert.Equal(t, "riskguard_db", cfg.Database.DBName)
	assert.Equal(t, "dossier-assessments", cfg.Elasticsearch.Index)

	// Shipped scoring policy must itself be valid
	assert.InDelta(t, 0.45, cfg.Scoring.DebtWeight, 1e-9)
	assert.InDelta(t, 0.30, cfg.Scoring.HistoryWeight, 1e-9)
	assert.NoError(t, cfg.Scoring.Validate())
	assert.NoError(t, cfg.Fraud.Validate())
}

func TestScoringConfigValidate(t *testing.T) {
	valid := ScoringConfig{
		DebtWeight: 0.45, HistoryWeight: 0.30, StabilityWeight: 0.15, CoherenceWeight: 0.10,
		MediumMin: 25, HighMin: 45, CriticalMin: 75,
		AnnualRate: 0.15, TenureSaturationYrs: 5, CoherencePenalty: 0.25,
		IncomeEpsilon: 1, NeutralHistory: 0.5,
	}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(*ScoringConfig)
	}{
		{"weights above one", func(c *ScoringConfig) { c.DebtWeight = 0.9 }},
		{"negative weight", func(c *ScoringConfig) { c.CoherenceWeight = -0.10; c.DebtWeight = 0.65 }},
		{"equal thresholds", func(c *ScoringConfig) { c.HighMin = c.MediumMin }},
		{"threshold past 100", func(c *ScoringConfig) { c.CriticalMin = 101 }},
		{"zero medium threshold", func(c *ScoringConfig) { c.MediumMin = 0 }},
		{"zero epsilon", func(c *ScoringConfig) { c.IncomeEpsilon = 0 }},
		{"penalty above one", func(c *ScoringConfig) { c.CoherencePenalty = 1.5 }},
		{"zero tenure saturation", func(c *ScoringConfig) { c.TenureSaturationYrs = 0 }},
		{"neutral history out of range", func(c *ScoringConfig) { c.NeutralHistory = 1.5 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			err := cfg.Validate()
			var configErr *domain.ConfigError
			require.ErrorAs(t, err, &configErr)
		})
	}
}

func TestFraudConfigValidate(t *testing.T) {
	valid := FraudConfig{
		DuplicateWindow:        720 * time.Hour,
		VelocityWindow:         24 * time.Hour,
		VelocityThreshold:      3,
		CoherenceInfoBelow:     0.60,
		CoherenceWarnBelow:     0.45,
		CoherenceCriticalBelow: 0.25,
		LargeAmountThreshold:   10_000_000,
		SignificantIncome:      300_000,
		IncidentCountThreshold: 3,
	}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(*FraudConfig)
	}{
		{"zero velocity threshold", func(c *FraudConfig) { c.VelocityThreshold = 0 }},
		{"zero velocity window", func(c *FraudConfig) { c.VelocityWindow = 0 }},
		{"zero duplicate window", func(c *FraudConfig) { c.DuplicateWindow = 0 }},
		{"unordered coherence thresholds", func(c *FraudConfig) { c.CoherenceCriticalBelow = 0.9 }},
		{"info threshold above one", func(c *FraudConfig) { c.CoherenceInfoBelow = 1.2 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			err := cfg.Validate()
			var configErr *domain.ConfigError
			require.ErrorAs(t, err, &configErr)
		})
	}
}

func TestDatabaseDSN(t *testing.T) {
	cfg := DatabaseConfig{
		Host: "db", Port: 5432, User: "risk", Password: "secret",
		DBName: "riskguard_db", SSLMode: "disable",
	}
	assert.Equal(t,
		"host=db port=5432 user=risk password=secret dbname=riskguard_db sslmode=disable",
		cfg.DSN())
}
