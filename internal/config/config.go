package config

import (
	"fmt"
	"math"
	"time"

	"github.com/banking/riskguard/internal/domain"
	"github.com/spf13/viper"
)

// Config holds all configuration for the risk assessment service
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Elasticsearch ElasticsearchConfig
	Kafka         KafkaConfig
	S3            S3Config
	Encryption    EncryptionConfig
	Auth          AuthConfig
	Logging       LoggingConfig
	Scoring       ScoringConfig
	Fraud         FraudConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
}

// DSN returns the database connection string
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

// ElasticsearchConfig holds Elasticsearch configuration
type ElasticsearchConfig struct {
	Addresses []string `mapstructure:"addresses"`
	Username  string   `mapstructure:"username"`
	Password  string   `mapstructure:"password"`
	Index     string   `mapstructure:"index"`
}

// KafkaConfig holds Kafka configuration
type KafkaConfig struct {
	Brokers         []string `mapstructure:"brokers"`
	ConsumerGroup   string   `mapstructure:"consumer_group"`
	SubmissionTopic string   `mapstructure:"submission_topic"`
	ReanalysisTopic string   `mapstructure:"reanalysis_topic"`
}

// S3Config holds AWS S3 configuration for report archival
type S3Config struct {
	Region        string `mapstructure:"region"`
	ReportsBucket string `mapstructure:"reports_bucket"`
	ArchiveBucket string `mapstructure:"archive_bucket"`
	Endpoint      string `mapstructure:"endpoint"` // For local testing with MinIO
	AccessKey     string `mapstructure:"access_key"`
	SecretKey     string `mapstructure:"secret_key"`
}

// EncryptionConfig holds field encryption and audit signing settings
type EncryptionConfig struct {
	FieldKeysBase64   []string `mapstructure:"keys"`
	CurrentKeyVersion int      `mapstructure:"current_key_version"`
	AuditHMACSecret   string   `mapstructure:"audit_hmac_secret"`
}

// AuthConfig holds authentication settings
type AuthConfig struct {
	JWTPublicKeyPath string `mapstructure:"jwt_public_key_path"`
	JWTIssuer        string `mapstructure:"jwt_issuer"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ScoringConfig holds the risk model policy: factor weights, band
// thresholds, and extractor parameters. Multiple instances may coexist
// (per-product risk models); each is validated independently.
type ScoringConfig struct {
	DebtWeight      float64 `mapstructure:"debt_weight"`
	HistoryWeight   float64 `mapstructure:"history_weight"`
	StabilityWeight float64 `mapstructure:"stability_weight"`
	CoherenceWeight float64 `mapstructure:"coherence_weight"`

	// Band cut points over [0,100]: LOW < MediumMin <= MEDIUM < HighMin
	// <= HIGH < CriticalMin <= CRITICAL
	MediumMin   float64 `mapstructure:"medium_min"`
	HighMin     float64 `mapstructure:"high_min"`
	CriticalMin float64 `mapstructure:"critical_min"`

	AnnualRate          float64 `mapstructure:"annual_rate"`
	TenureSaturationYrs float64 `mapstructure:"tenure_saturation_years"`
	CoherencePenalty    float64 `mapstructure:"coherence_penalty"`
	IncomeEpsilon       float64 `mapstructure:"income_epsilon"`
	NeutralHistory      float64 `mapstructure:"neutral_history"`
}

// Validate checks weight and threshold invariants. Any violation is fatal
// at startup.
func (c ScoringConfig) Validate() error {
	weights := map[string]float64{
		"scoring.debt_weight":      c.DebtWeight,
		"scoring.history_weight":   c.HistoryWeight,
		"scoring.stability_weight": c.StabilityWeight,
		"scoring.coherence_weight": c.CoherenceWeight,
	}
	sum := 0.0
	for field, w := range weights {
		if w < 0 {
			return &domain.ConfigError{Field: field, Reason: "weight must be non-negative"}
		}
		sum += w
	}
	if math.Abs(sum-1.0) > 1e-9 {
		return &domain.ConfigError{
			Field:  "scoring.*_weight",
			Reason: fmt.Sprintf("weights must sum to 1, got %g", sum),
		}
	}
	if !(0 < c.MediumMin && c.MediumMin < c.HighMin && c.HighMin < c.CriticalMin && c.CriticalMin <= 100) {
		return &domain.ConfigError{
			Field:  "scoring.medium_min/high_min/critical_min",
			Reason: "band thresholds must be strictly increasing within (0,100]",
		}
	}
	if c.IncomeEpsilon <= 0 {
		return &domain.ConfigError{Field: "scoring.income_epsilon", Reason: "must be positive"}
	}
	if c.CoherencePenalty <= 0 || c.CoherencePenalty > 1 {
		return &domain.ConfigError{Field: "scoring.coherence_penalty", Reason: "must be in (0,1]"}
	}
	if c.TenureSaturationYrs <= 0 {
		return &domain.ConfigError{Field: "scoring.tenure_saturation_years", Reason: "must be positive"}
	}
	if c.NeutralHistory < 0 || c.NeutralHistory > 1 {
		return &domain.ConfigError{Field: "scoring.neutral_history", Reason: "must be in [0,1]"}
	}
	return nil
}

// FraudConfig holds fraud rule parameters
type FraudConfig struct {
	DuplicateWindow        time.Duration `mapstructure:"duplicate_window"`
	VelocityWindow         time.Duration `mapstructure:"velocity_window"`
	VelocityThreshold      int           `mapstructure:"velocity_threshold"`
	CoherenceInfoBelow     float64       `mapstructure:"coherence_info_below"`
	CoherenceWarnBelow     float64       `mapstructure:"coherence_warn_below"`
	CoherenceCriticalBelow float64       `mapstructure:"coherence_critical_below"`
	LargeAmountThreshold   float64       `mapstructure:"large_amount_threshold"`
	SignificantIncome      float64       `mapstructure:"significant_income"`
	IncidentCountThreshold int           `mapstructure:"incident_count_threshold"`
}

// Validate checks fraud rule parameter invariants
func (c FraudConfig) Validate() error {
	if c.VelocityThreshold <= 0 {
		return &domain.ConfigError{Field: "fraud.velocity_threshold", Reason: "must be positive"}
	}
	if c.VelocityWindow <= 0 || c.DuplicateWindow <= 0 {
		return &domain.ConfigError{Field: "fraud.*_window", Reason: "windows must be positive"}
	}
	if !(0 <= c.CoherenceCriticalBelow && c.CoherenceCriticalBelow <= c.CoherenceWarnBelow &&
		c.CoherenceWarnBelow <= c.CoherenceInfoBelow && c.CoherenceInfoBelow <= 1) {
		return &domain.ConfigError{
			Field:  "fraud.coherence_*_below",
			Reason: "coherence thresholds must be ordered critical <= warn <= info within [0,1]",
		}
	}
	return nil
}

// Load loads configuration from environment and config files
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("RISKGUARD")
	v.AutomaticEnv()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath(".")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Scoring.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Fraud.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	// Server
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8086)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "30s")

	// Database
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "riskguard_db")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "5m")
	v.SetDefault("database.conn_max_idle_time", "5m")

	// Elasticsearch
	v.SetDefault("elasticsearch.addresses", []string{"http://localhost:9200"})
	v.SetDefault("elasticsearch.username", "elastic")
	v.SetDefault("elasticsearch.password", "changeme")
	v.SetDefault("elasticsearch.index", "dossier-assessments")

	// Kafka
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.consumer_group", "riskguard-service")
	v.SetDefault("kafka.submission_topic", "riskguard.dossiers.submitted")
	v.SetDefault("kafka.reanalysis_topic", "riskguard.dossiers.reanalysis")

	// S3
	v.SetDefault("s3.region", "us-east-1")
	v.SetDefault("s3.reports_bucket", "riskguard-assessment-reports")
	v.SetDefault("s3.archive_bucket", "riskguard-audit-archive")

	// Encryption
	v.SetDefault("encryption.current_key_version", 1)

	// Auth
	v.SetDefault("auth.jwt_public_key_path", "./keys/jwt_public.pem")
	v.SetDefault("auth.jwt_issuer", "riskguard-auth-service")

	// Logging
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	// Scoring policy. Defaults chosen so a saturated debt ratio alone
	// lands a dossier in HIGH; all values are policy, not algorithm.
	v.SetDefault("scoring.debt_weight", 0.45)
	v.SetDefault("scoring.history_weight", 0.30)
	v.SetDefault("scoring.stability_weight", 0.15)
	v.SetDefault("scoring.coherence_weight", 0.10)
	v.SetDefault("scoring.medium_min", 25.0)
	v.SetDefault("scoring.high_min", 45.0)
	v.SetDefault("scoring.critical_min", 75.0)
	v.SetDefault("scoring.annual_rate", 0.15)
	v.SetDefault("scoring.tenure_saturation_years", 5.0)
	v.SetDefault("scoring.coherence_penalty", 0.25)
	v.SetDefault("scoring.income_epsilon", 1.0)
	v.SetDefault("scoring.neutral_history", 0.5)

	// Fraud rules
	v.SetDefault("fraud.duplicate_window", "720h") // 30 days
	v.SetDefault("fraud.velocity_window", "24h")
	v.SetDefault("fraud.velocity_threshold", 3)
	v.SetDefault("fraud.coherence_info_below", 0.60)
	v.SetDefault("fraud.coherence_warn_below", 0.45)
	v.SetDefault("fraud.coherence_critical_below", 0.25)
	v.SetDefault("fraud.large_amount_threshold", 10_000_000)
	v.SetDefault("fraud.significant_income", 300_000)
	v.SetDefault("fraud.incident_count_threshold", 3)
}
