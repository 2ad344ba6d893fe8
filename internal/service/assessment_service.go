package service

import (
	"context"
	"fmt"
	"time"

	"github.com/banking/riskguard/internal/config"
	"github.com/banking/riskguard/internal/crypto"
	"github.com/banking/riskguard/internal/domain"
	"github.com/banking/riskguard/internal/fraud"
	"github.com/banking/riskguard/internal/scoring"
	"github.com/banking/riskguard/internal/workflow"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DossierStore loads dossier data and persists the outcomes the engine
// produces. Implemented by the postgres repository; the engine itself never
// performs I/O directly.
type DossierStore interface {
	GetDossier(ctx context.Context, dossierID uuid.UUID) (*domain.DossierRecord, *domain.ClientProfile, error)
	GetClientHistory(ctx context.Context, clientID uuid.UUID) ([]domain.DossierRecord, error)
	// FindOpenDossiersByFingerprint returns non-terminal dossiers whose
	// client carries the same identity fingerprint under a different
	// client record.
	FindOpenDossiersByFingerprint(ctx context.Context, fingerprint string, excludeClientID uuid.UUID) ([]domain.DossierRecord, error)
	// CommitTransition atomically applies the state change and appends the
	// audit entry, but only when the stored state and version still match
	// what the request was computed against. Either both land or neither
	// does.
	CommitTransition(ctx context.Context, entry *domain.AuditEntry, version int64) error
	SaveScore(ctx context.Context, dossierID uuid.UUID, result *domain.ScoreResult) error
}

// AuditLedger reads the append-only trail of accepted transitions. Entries
// are written only through DossierStore.CommitTransition, in the same
// transaction as the state change they record.
type AuditLedger interface {
	ListAudit(ctx context.Context, dossierID uuid.UUID) ([]domain.AuditEntry, error)
}

// SearchIndex indexes assessment outcomes for operator search. Best effort:
// indexing failures never fail the evaluation.
type SearchIndex interface {
	IndexScore(ctx context.Context, dossierID uuid.UUID, result *domain.ScoreResult) error
	IndexAlerts(ctx context.Context, dossierID uuid.UUID, alerts []domain.FraudAlert) error
}

// ReportArchive stores assessment report snapshots and audit trail batches
// for long-term retention
type ReportArchive interface {
	StoreReport(ctx context.Context, report *domain.AssessmentReport) error
	ArchiveAuditBatch(ctx context.Context, entries []domain.AuditEntry, batchID string) error
}

// AssessmentService is the entry point for the four core operations:
// risk evaluation, fraud detection, workflow transitions, and simulation.
type AssessmentService struct {
	store      DossierStore
	ledger     AuditLedger
	index      SearchIndex
	archive    ReportArchive
	aggregator *scoring.Aggregator
	detector   *fraud.Detector
	machine    *workflow.Machine
	protector  *crypto.FieldProtector
	scoringCfg config.ScoringConfig
	logger     *zap.Logger
}

// NewAssessmentService wires the engine together. index and archive may be
// nil; the corresponding side channels are then skipped.
func NewAssessmentService(
	store DossierStore,
	ledger AuditLedger,
	index SearchIndex,
	archive ReportArchive,
	aggregator *scoring.Aggregator,
	detector *fraud.Detector,
	machine *workflow.Machine,
	protector *crypto.FieldProtector,
	scoringCfg config.ScoringConfig,
	logger *zap.Logger,
) *AssessmentService {
	return &AssessmentService{
		store:      store,
		ledger:     ledger,
		index:      index,
		archive:    archive,
		aggregator: aggregator,
		detector:   detector,
		machine:    machine,
		protector:  protector,
		scoringCfg: scoringCfg,
		logger:     logger,
	}
}

// EvaluateRisk scores a dossier and persists the result in the score
// history. The computation itself is pure; persistence and search indexing
// happen around it.
func (s *AssessmentService) EvaluateRisk(ctx context.Context, dossierID uuid.UUID) (*domain.ScoreResult, error) {
	dossier, client, err := s.store.GetDossier(ctx, dossierID)
	if err != nil {
		return nil, fmt.Errorf("failed to load dossier: %w", err)
	}

	factors, err := scoring.Extract(dossier, client, s.scoringCfg)
	if err != nil {
		return nil, err
	}

	result := s.aggregator.Evaluate(factors)
	result.Installment = scoring.Installment(dossier.RequestedAmount, dossier.TermMonths, s.scoringCfg.AnnualRate)
	result.EvaluatedAt = time.Now().UTC()

	if err := s.store.SaveScore(ctx, dossierID, &result); err != nil {
		s.logger.Error("failed to persist score result",
			zap.String("dossier_id", dossierID.String()),
			zap.Error(err),
		)
		return nil, fmt.Errorf("score persistence failed: %w", err)
	}

	s.asyncIndex(func(asyncCtx context.Context) error {
		return s.index.IndexScore(asyncCtx, dossierID, &result)
	}, dossierID, "score")

	s.logger.Info("dossier scored",
		zap.String("dossier_id", dossierID.String()),
		zap.Float64("score", result.NumericScore),
		zap.String("band", string(result.Band)),
	)

	return &result, nil
}

// DetectFraud runs the rule set over the dossier and the client's prior
// dossiers. Any CRITICAL alert on a non-terminal dossier triggers the
// automatic escalation to alerte_fraude; the state machine itself stays
// passive and only validates the requested transition.
func (s *AssessmentService) DetectFraud(ctx context.Context, dossierID uuid.UUID) ([]domain.FraudAlert, error) {
	dossier, client, err := s.store.GetDossier(ctx, dossierID)
	if err != nil {
		return nil, fmt.Errorf("failed to load dossier: %w", err)
	}

	history, err := s.store.GetClientHistory(ctx, dossier.ClientID)
	if err != nil {
		return nil, fmt.Errorf("failed to load client history: %w", err)
	}

	// Coherence feeds the income consistency rule; when the record is too
	// malformed to extract, the rule abstains rather than failing detection.
	coherence := -1.0
	if factors, err := scoring.Extract(dossier, client, s.scoringCfg); err == nil {
		coherence = factors.CoherenceScore
	} else {
		s.logger.Warn("coherence unavailable for fraud detection",
			zap.String("dossier_id", dossierID.String()),
			zap.Error(err),
		)
	}

	alerts := s.detector.Detect(dossier, client, history, coherence)

	// Duplicate submissions under a second client record share the identity
	// fingerprint even when the client IDs differ. Lookup failures abstain,
	// like any single rule.
	shared, err := s.store.FindOpenDossiersByFingerprint(ctx, client.IdentityFingerprint(), client.ClientID)
	if err != nil {
		s.logger.Warn("identity fingerprint lookup failed",
			zap.String("dossier_id", dossierID.String()),
			zap.Error(err),
		)
	} else if len(shared) > 0 {
		alerts = append(alerts, domain.FraudAlert{
			AlertID:     uuid.New(),
			DossierID:   dossierID,
			RuleID:      domain.RuleSharedIdentity,
			Severity:    domain.SeverityWarning,
			Message:     fmt.Sprintf("identité partagée avec un autre client ayant %d dossier(s) en cours (ex: %s)", len(shared), shared[0].Reference),
			TriggeredAt: time.Now().UTC(),
		})
	}

	if len(alerts) > 0 {
		s.asyncIndex(func(asyncCtx context.Context) error {
			return s.index.IndexAlerts(asyncCtx, dossierID, alerts)
		}, dossierID, "alerts")
	}

	if domain.HasCritical(alerts) && !dossier.State.IsTerminal() {
		if err := s.escalateFraud(ctx, dossier); err != nil {
			// Detection succeeded; report the alerts and surface the
			// escalation failure to the operator.
			s.logger.Error("automatic fraud escalation failed",
				zap.String("dossier_id", dossierID.String()),
				zap.Error(err),
			)
		}
	}

	return alerts, nil
}

func (s *AssessmentService) escalateFraud(ctx context.Context, dossier *domain.DossierRecord) error {
	_, entry, err := s.machine.Transition(dossier, dossier.State, domain.StateAlerteFraude,
		domain.RoleSystem, "alerte fraude critique détectée par le moteur de règles")
	if err != nil {
		return err
	}
	return s.commitTransition(ctx, dossier, entry)
}

// RequestTransition validates and commits a workflow transition. Fail-fast:
// the state change and its audit entry commit in one atomic step, and a
// stale observed state rejects the request with no partial mutation.
func (s *AssessmentService) RequestTransition(ctx context.Context, dossierID uuid.UUID, target domain.WorkflowState, role domain.ActorRole, reason string) (*domain.AuditEntry, error) {
	dossier, _, err := s.store.GetDossier(ctx, dossierID)
	if err != nil {
		return nil, fmt.Errorf("failed to load dossier: %w", err)
	}

	_, entry, err := s.machine.Transition(dossier, dossier.State, target, role, reason)
	if err != nil {
		return nil, err
	}

	if err := s.commitTransition(ctx, dossier, entry); err != nil {
		return nil, err
	}

	s.logger.Info("dossier transition",
		zap.String("dossier_id", dossierID.String()),
		zap.String("from", string(entry.FromState)),
		zap.String("to", string(entry.ToState)),
		zap.String("role", string(entry.ActorRole)),
	)

	return &entry, nil
}

func (s *AssessmentService) commitTransition(ctx context.Context, dossier *domain.DossierRecord, entry domain.AuditEntry) error {
	entry.Signature = s.protector.SignAuditEntry(
		entry.EntryID.String(),
		entry.DossierID.String(),
		string(entry.ActorRole),
		string(entry.FromState),
		string(entry.ToState),
		entry.Timestamp.Format(time.RFC3339),
	)

	if err := s.store.CommitTransition(ctx, &entry, dossier.Version); err != nil {
		return err
	}

	dossier.State = entry.ToState
	dossier.Version++
	return nil
}

// AllowedTransitions lists the target states the given role may request from
// the dossier's current state. Advisory: the authoritative check happens
// again inside RequestTransition.
func (s *AssessmentService) AllowedTransitions(ctx context.Context, dossierID uuid.UUID, role domain.ActorRole) (domain.WorkflowState, []domain.WorkflowState, error) {
	dossier, _, err := s.store.GetDossier(ctx, dossierID)
	if err != nil {
		return "", nil, fmt.Errorf("failed to load dossier: %w", err)
	}
	return dossier.State, s.machine.AllowedTargets(dossier.State, role), nil
}

// Overrides are the what-if deltas applied to a working copy of the dossier
// and client before re-scoring. Nil fields keep the stored value.
type Overrides struct {
	MonthlyIncome   *float64 `json:"monthly_income,omitempty"`
	MonthlyCharges  *float64 `json:"monthly_charges,omitempty"`
	ExistingDebts   *float64 `json:"existing_debts,omitempty"`
	EmploymentYears *float64 `json:"employment_years,omitempty"`
	RequestedAmount *float64 `json:"requested_amount,omitempty"`
	TermMonths      *int     `json:"term_months,omitempty"`
}

// SimulationResult pairs the re-computed score with the repayment profile of
// the simulated loan
type SimulationResult struct {
	Score domain.ScoreResult  `json:"score"`
	Loan  scoring.LoanSummary `json:"loan"`
}

// Simulate re-runs extraction and aggregation against a working copy with
// the overrides applied. Read-only advisory tool: it never persists
// anything and never touches the fraud detector or the state machine.
func (s *AssessmentService) Simulate(ctx context.Context, dossierID uuid.UUID, overrides Overrides) (*SimulationResult, error) {
	dossier, client, err := s.store.GetDossier(ctx, dossierID)
	if err != nil {
		return nil, fmt.Errorf("failed to load dossier: %w", err)
	}

	dossierCopy := *dossier
	dossierCopy.Documents = append([]domain.DocumentMeta(nil), dossier.Documents...)
	clientCopy := *client
	clientCopy.RepaymentHistory = append([]domain.RepaymentRecord(nil), client.RepaymentHistory...)

	if overrides.MonthlyIncome != nil {
		clientCopy.MonthlyIncome = *overrides.MonthlyIncome
	}
	if overrides.MonthlyCharges != nil {
		clientCopy.MonthlyCharges = *overrides.MonthlyCharges
	}
	if overrides.ExistingDebts != nil {
		clientCopy.ExistingDebts = *overrides.ExistingDebts
	}
	if overrides.EmploymentYears != nil {
		clientCopy.EmploymentYears = *overrides.EmploymentYears
	}
	if overrides.RequestedAmount != nil {
		dossierCopy.RequestedAmount = *overrides.RequestedAmount
	}
	if overrides.TermMonths != nil {
		dossierCopy.TermMonths = *overrides.TermMonths
	}

	factors, err := scoring.Extract(&dossierCopy, &clientCopy, s.scoringCfg)
	if err != nil {
		return nil, err
	}

	result := s.aggregator.Evaluate(factors)
	loan := scoring.SummarizeLoan(dossierCopy.RequestedAmount, dossierCopy.TermMonths,
		s.scoringCfg.AnnualRate, clientCopy.MonthlyIncome)
	result.Installment = loan.Installment

	return &SimulationResult{Score: result, Loan: loan}, nil
}

// ArchiveAssessment snapshots the full assessment (score, alerts, audit
// trail) and stores it in the report archive.
func (s *AssessmentService) ArchiveAssessment(ctx context.Context, dossierID uuid.UUID) (*domain.AssessmentReport, error) {
	dossier, client, err := s.store.GetDossier(ctx, dossierID)
	if err != nil {
		return nil, fmt.Errorf("failed to load dossier: %w", err)
	}

	score, err := s.EvaluateRisk(ctx, dossierID)
	if err != nil {
		return nil, err
	}

	alerts, err := s.DetectFraud(ctx, dossierID)
	if err != nil {
		return nil, err
	}

	trail, err := s.ledger.ListAudit(ctx, dossierID)
	if err != nil {
		return nil, fmt.Errorf("failed to load audit trail: %w", err)
	}

	report := domain.NewAssessmentReport(*dossier, *client, score, alerts, trail)
	if s.archive != nil {
		if err := s.archive.StoreReport(ctx, report); err != nil {
			return nil, fmt.Errorf("report archival failed: %w", err)
		}
		// The trail ships alongside the report so retention holds even if
		// the database is purged later
		if err := s.archive.ArchiveAuditBatch(ctx, trail, report.ReportID.String()); err != nil {
			return nil, fmt.Errorf("audit batch archival failed: %w", err)
		}
	}

	return report, nil
}

// VerifyAuditTrail re-checks the HMAC signature of every entry for a
// dossier. A mismatch means the trail was tampered with.
func (s *AssessmentService) VerifyAuditTrail(ctx context.Context, dossierID uuid.UUID) (bool, error) {
	trail, err := s.ledger.ListAudit(ctx, dossierID)
	if err != nil {
		return false, fmt.Errorf("failed to load audit trail: %w", err)
	}

	for _, entry := range trail {
		valid := s.protector.VerifyAuditEntry(entry.Signature,
			entry.EntryID.String(),
			entry.DossierID.String(),
			string(entry.ActorRole),
			string(entry.FromState),
			string(entry.ToState),
			entry.Timestamp.Format(time.RFC3339),
		)
		if !valid {
			s.logger.Error("audit signature mismatch - potential tampering",
				zap.String("entry_id", entry.EntryID.String()),
				zap.String("dossier_id", dossierID.String()),
			)
			return false, nil
		}
	}
	return true, nil
}

// asyncIndex runs a search-index operation in the background with panic
// protection, following the best-effort contract: the ledger is the source
// of truth, the index is a convenience.
func (s *AssessmentService) asyncIndex(op func(context.Context) error, dossierID uuid.UUID, kind string) {
	if s.index == nil {
		return
	}
	go func() {
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("panic in async indexing", zap.Any("panic", r))
			}
		}()

		asyncCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := op(asyncCtx); err != nil {
			s.logger.Error("failed to index assessment",
				zap.String("dossier_id", dossierID.String()),
				zap.String("kind", kind),
				zap.Error(err),
			)
		}
	}()
}
