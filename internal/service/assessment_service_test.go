package service

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/banking/riskguard/internal/config"
	"github.com/banking/riskguard/internal/crypto"
	"github.com/banking/riskguard/internal/domain"
	"github.com/banking/riskguard/internal/fraud"
	"github.com/banking/riskguard/internal/scoring"
	"github.com/banking/riskguard/internal/workflow"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// memStore is an in-memory DossierStore and AuditLedger with the same
// compare-and-set and all-or-nothing commit semantics as the postgres
// repository. commitErr simulates a transaction that fails after the CAS:
// nothing may be left behind.
type memStore struct {
	mu           sync.Mutex
	dossier      domain.DossierRecord
	client       domain.ClientProfile
	history      []domain.DossierRecord
	fingerprints map[string][]domain.DossierRecord
	scores       []domain.ScoreResult
	entries      []domain.AuditEntry
	commitErr    error
}

func (s *memStore) GetDossier(_ context.Context, dossierID uuid.UUID) (*domain.DossierRecord, *domain.ClientProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if dossierID != s.dossier.DossierID {
		return nil, nil, domain.ErrDossierNotFound
	}
	d := s.dossier
	d.Documents = append([]domain.DocumentMeta(nil), s.dossier.Documents...)
	c := s.client
	c.RepaymentHistory = append([]domain.RepaymentRecord(nil), s.client.RepaymentHistory...)
	return &d, &c, nil
}

func (s *memStore) GetClientHistory(_ context.Context, clientID uuid.UUID) ([]domain.DossierRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.DossierRecord(nil), s.history...), nil
}

func (s *memStore) FindOpenDossiersByFingerprint(_ context.Context, fingerprint string, excludeClientID uuid.UUID) ([]domain.DossierRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.DossierRecord
	for _, d := range s.fingerprints[fingerprint] {
		if d.ClientID != excludeClientID && !d.State.IsTerminal() {
			out = append(out, d)
		}
	}
	return out, nil
}

func (s *memStore) CommitTransition(_ context.Context, entry *domain.AuditEntry, version int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry.DossierID != s.dossier.DossierID {
		return domain.ErrDossierNotFound
	}
	if s.dossier.State != entry.FromState || s.dossier.Version != version {
		return &domain.ConcurrentModificationError{
			DossierID: entry.DossierID,
			Expected:  entry.FromState,
			Observed:  s.dossier.State,
		}
	}
	if s.commitErr != nil {
		return s.commitErr
	}
	s.dossier.State = entry.ToState
	s.dossier.Version++
	s.entries = append(s.entries, *entry)
	return nil
}

func (s *memStore) SaveScore(_ context.Context, _ uuid.UUID, result *domain.ScoreResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scores = append(s.scores, *result)
	return nil
}

func (s *memStore) ListAudit(_ context.Context, dossierID uuid.UUID) ([]domain.AuditEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.AuditEntry
	for _, e := range s.entries {
		if e.DossierID == dossierID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *memStore) currentState() domain.WorkflowState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dossier.State
}

func (s *memStore) currentVersion() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dossier.Version
}

func (s *memStore) scoreCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.scores)
}

// memArchive records archived reports and audit batches
type memArchive struct {
	mu      sync.Mutex
	reports []domain.AssessmentReport
	batches map[string][]domain.AuditEntry
}

func (a *memArchive) StoreReport(_ context.Context, report *domain.AssessmentReport) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.reports = append(a.reports, *report)
	return nil
}

func (a *memArchive) ArchiveAuditBatch(_ context.Context, entries []domain.AuditEntry, batchID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.batches == nil {
		a.batches = make(map[string][]domain.AuditEntry)
	}
	a.batches[batchID] = append([]domain.AuditEntry(nil), entries...)
	return nil
}

func testScoringConfig() config.ScoringConfig {
	return config.ScoringConfig{
		DebtWeight:          0.45,
		HistoryWeight:       0.30,
		StabilityWeight:     0.15,
		CoherenceWeight:     0.10,
		MediumMin:           25,
		HighMin:             45,
		CriticalMin:         75,
		AnnualRate:          0.15,
		TenureSaturationYrs: 5,
		CoherencePenalty:    0.25,
		IncomeEpsilon:       1,
		NeutralHistory:      0.5,
	}
}

func testFraudConfig() config.FraudConfig {
	return config.FraudConfig{
		DuplicateWindow:        30 * 24 * time.Hour,
		VelocityWindow:         24 * time.Hour,
		VelocityThreshold:      3,
		CoherenceInfoBelow:     0.60,
		CoherenceWarnBelow:     0.45,
		CoherenceCriticalBelow: 0.25,
		LargeAmountThreshold:   10_000_000,
		SignificantIncome:      300_000,
		IncidentCountThreshold: 3,
	}
}

func testProtector(t *testing.T) *crypto.FieldProtector {
	t.Helper()
	key := base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{0x42}, 32))
	secret := base64.StdEncoding.EncodeToString([]byte("audit-test-secret"))
	p, err := crypto.NewFieldProtector([]string{key}, 1, secret)
	require.NoError(t, err)
	return p
}

func newTestService(t *testing.T, store *memStore) (*AssessmentService, *crypto.FieldProtector) {
	t.Helper()
	return newTestServiceWithArchive(t, store, nil)
}

func newTestServiceWithArchive(t *testing.T, store *memStore, archive ReportArchive) (*AssessmentService, *crypto.FieldProtector) {
	t.Helper()
	scoringCfg := testScoringConfig()

	aggregator, err := scoring.NewAggregator(scoringCfg)
	require.NoError(t, err)

	detector, err := fraud.NewDetector(testFraudConfig(), zap.NewNop())
	require.NoError(t, err)

	protector := testProtector(t)

	svc := NewAssessmentService(store, store, nil, archive,
		aggregator, detector, workflow.NewMachine(), protector,
		scoringCfg, zap.NewNop())
	return svc, protector
}

func seededStore() *memStore {
	clientID := uuid.New()
	return &memStore{
		dossier: domain.DossierRecord{
			DossierID:       uuid.New(),
			Reference:       domain.NewDossierReference(2026, 101),
			ClientID:        clientID,
			RequestedAmount: 3_000_000,
			TermMonths:      36,
			Purpose:         domain.PurposePersonnel,
			State:           domain.StateSoumis,
			Version:         1,
			SubmittedAt:     time.Now().UTC(),
		},
		client: domain.ClientProfile{
			ClientID:        clientID,
			ClientType:      domain.ClientTypeParticulier,
			LastName:        "Traore",
			FirstName:       "Fatou",
			NationalID:      "CI555000111",
			Profession:      domain.ProfessionSalarieConfirme,
			MonthlyIncome:   700_000,
			MonthlyCharges:  150_000,
			EmploymentYears: 4,
			AddressVerified: true,
			ContactVerified: true,
		},
	}
}

func TestEvaluateRiskPersistsScore(t *testing.T) {
	store := seededStore()
	svc, _ := newTestService(t, store)

	result, err := svc.EvaluateRisk(context.Background(), store.dossier.DossierID)
	require.NoError(t, err)

	assert.GreaterOrEqual(t, result.NumericScore, 0.0)
	assert.LessOrEqual(t, result.NumericScore, 100.0)
	assert.NotEmpty(t, result.Band)
	assert.Greater(t, result.Installment, 0.0)
	assert.Equal(t, 1, store.scoreCount())
}

func TestEvaluateRiskUnknownDossier(t *testing.T) {
	store := seededStore()
	svc, _ := newTestService(t, store)

	_, err := svc.EvaluateRisk(context.Background(), uuid.New())
	assert.ErrorIs(t, err, domain.ErrDossierNotFound)
}

func TestRequestTransitionHappyPath(t *testing.T) {
	store := seededStore()
	svc, protector := newTestService(t, store)

	entry, err := svc.RequestTransition(context.Background(), store.dossier.DossierID,
		domain.StateEnAnalyse, domain.RoleGestionnaire, "prise en charge")
	require.NoError(t, err)

	assert.Equal(t, domain.StateEnAnalyse, store.currentState())
	require.Len(t, store.entries, 1)
	assert.Equal(t, entry.EntryID, store.entries[0].EntryID)

	// The persisted entry carries a verifiable signature
	persisted := store.entries[0]
	valid := protector.VerifyAuditEntry(persisted.Signature,
		persisted.EntryID.String(),
		persisted.DossierID.String(),
		string(persisted.ActorRole),
		string(persisted.FromState),
		string(persisted.ToState),
		persisted.Timestamp.Format(time.RFC3339),
	)
	assert.True(t, valid)
}

func TestRequestTransitionRejectionsLeaveNoTrace(t *testing.T) {
	store := seededStore()
	svc, _ := newTestService(t, store)
	ctx := context.Background()

	_, err := svc.RequestTransition(ctx, store.dossier.DossierID,
		domain.StateValide, domain.RoleAdmin, "shortcut")
	assert.ErrorIs(t, err, domain.ErrIllegalTransition)

	_, err = svc.RequestTransition(ctx, store.dossier.DossierID,
		domain.StateEnAnalyse, domain.RoleConseiller, "not my call")
	assert.ErrorIs(t, err, domain.ErrUnauthorizedRole)

	assert.Equal(t, domain.StateSoumis, store.currentState())
	assert.Empty(t, store.entries)
}

// A commit that fails at the persistence layer must leave the dossier
// exactly where it was: no state change without its audit entry, no audit
// entry without its state change.
func TestTransitionCommitFailureLeavesNoTrace(t *testing.T) {
	store := seededStore()
	store.commitErr = errors.New("audit insert failed")
	svc, _ := newTestService(t, store)

	_, err := svc.RequestTransition(context.Background(), store.dossier.DossierID,
		domain.StateEnAnalyse, domain.RoleGestionnaire, "prise en charge")
	require.Error(t, err)

	assert.Equal(t, domain.StateSoumis, store.currentState())
	assert.Equal(t, int64(1), store.currentVersion())
	assert.Empty(t, store.entries)
}

// N racing transition requests: exactly one wins, every loser gets a clean
// rejection, and exactly one audit entry is written.
func TestConcurrentTransitionsExactlyOneWins(t *testing.T) {
	store := seededStore()
	svc, _ := newTestService(t, store)

	const racers = 8
	results := make(chan error, racers)
	var wg sync.WaitGroup
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.RequestTransition(context.Background(), store.dossier.DossierID,
				domain.StateEnAnalyse, domain.RoleGestionnaire, "course")
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	wins := 0
	for err := range results {
		if err == nil {
			wins++
			continue
		}
		ok := errors.Is(err, domain.ErrConcurrentModification) ||
			errors.Is(err, domain.ErrIllegalTransition)
		assert.True(t, ok, "unexpected rejection: %v", err)
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, domain.StateEnAnalyse, store.currentState())
	assert.Len(t, store.entries, 1)
}

func TestDetectFraudEscalatesOnCritical(t *testing.T) {
	store := seededStore()
	store.dossier.Documents = []domain.DocumentMeta{
		{DocumentID: uuid.New(), Type: domain.DocumentBulletinSalaire, Filename: "bulletin.pdf", TamperSuspected: true},
	}
	svc, _ := newTestService(t, store)

	alerts, err := svc.DetectFraud(context.Background(), store.dossier.DossierID)
	require.NoError(t, err)
	assert.True(t, domain.HasCritical(alerts))

	// Automatic escalation parked the dossier, attributed to the system role
	assert.Equal(t, domain.StateAlerteFraude, store.currentState())
	require.Len(t, store.entries, 1)
	assert.Equal(t, domain.RoleSystem, store.entries[0].ActorRole)
	assert.Equal(t, domain.StateSoumis, store.entries[0].FromState)
	assert.Equal(t, domain.StateAlerteFraude, store.entries[0].ToState)
}

func TestDetectFraudNoEscalationWithoutCritical(t *testing.T) {
	store := seededStore()
	svc, _ := newTestService(t, store)

	alerts, err := svc.DetectFraud(context.Background(), store.dossier.DossierID)
	require.NoError(t, err)
	assert.False(t, domain.HasCritical(alerts))
	assert.Equal(t, domain.StateSoumis, store.currentState())
	assert.Empty(t, store.entries)
}

func TestDetectFraudTerminalDossierNotEscalated(t *testing.T) {
	store := seededStore()
	store.dossier.State = domain.StateValide
	store.dossier.Documents = []domain.DocumentMeta{{TamperSuspected: true}}
	svc, _ := newTestService(t, store)

	alerts, err := svc.DetectFraud(context.Background(), store.dossier.DossierID)
	require.NoError(t, err)
	assert.True(t, domain.HasCritical(alerts))
	assert.Equal(t, domain.StateValide, store.currentState())
	assert.Empty(t, store.entries)
}

// The same person applying again under a freshly created client record: the
// client IDs differ but the national ID maps to the same fingerprint, so the
// open dossier of the other record raises a warning.
func TestDetectFraudFlagsSharedIdentity(t *testing.T) {
	store := seededStore()
	other := domain.DossierRecord{
		DossierID:   uuid.New(),
		Reference:   domain.NewDossierReference(2026, 77),
		ClientID:    uuid.New(),
		State:       domain.StateEnAnalyse,
		SubmittedAt: time.Now().AddDate(0, 0, -3),
	}
	store.fingerprints = map[string][]domain.DossierRecord{
		store.client.IdentityFingerprint(): {other},
	}
	svc, _ := newTestService(t, store)

	alerts, err := svc.DetectFraud(context.Background(), store.dossier.DossierID)
	require.NoError(t, err)

	require.Len(t, alerts, 1)
	assert.Equal(t, domain.RuleSharedIdentity, alerts[0].RuleID)
	assert.Equal(t, domain.SeverityWarning, alerts[0].Severity)
	assert.Contains(t, alerts[0].Message, other.Reference)

	// A warning does not park the dossier
	assert.Equal(t, domain.StateSoumis, store.currentState())
}

func TestAllowedTransitionsFollowsDossierState(t *testing.T) {
	store := seededStore()
	svc, _ := newTestService(t, store)
	ctx := context.Background()

	state, targets, err := svc.AllowedTransitions(ctx, store.dossier.DossierID, domain.RoleGestionnaire)
	require.NoError(t, err)
	assert.Equal(t, domain.StateSoumis, state)
	assert.ElementsMatch(t, []domain.WorkflowState{domain.StateEnAnalyse}, targets)

	_, targets, err = svc.AllowedTransitions(ctx, store.dossier.DossierID, domain.RoleConseiller)
	require.NoError(t, err)
	assert.Empty(t, targets)

	_, _, err = svc.AllowedTransitions(ctx, uuid.New(), domain.RoleGestionnaire)
	assert.ErrorIs(t, err, domain.ErrDossierNotFound)
}

func TestSimulateIsPureAndAppliesOverrides(t *testing.T) {
	store := seededStore()
	svc, _ := newTestService(t, store)
	ctx := context.Background()

	baseline, err := svc.Simulate(ctx, store.dossier.DossierID, Overrides{})
	require.NoError(t, err)

	// A far smaller loan must not score worse
	smallAmount := 500_000.0
	improved, err := svc.Simulate(ctx, store.dossier.DossierID, Overrides{
		RequestedAmount: &smallAmount,
	})
	require.NoError(t, err)
	assert.LessOrEqual(t, improved.Score.NumericScore, baseline.Score.NumericScore)
	assert.Less(t, improved.Loan.Installment, baseline.Loan.Installment)

	// Same inputs, literally the same outcome: no timestamp is stamped on a
	// simulation and the score agrees to the last float bit
	again, err := svc.Simulate(ctx, store.dossier.DossierID, Overrides{})
	require.NoError(t, err)
	assert.Equal(t, math.Float64bits(baseline.Score.NumericScore),
		math.Float64bits(again.Score.NumericScore))
	assert.True(t, baseline.Score.EvaluatedAt.IsZero())
	assert.Equal(t, baseline.Score, again.Score)

	// Nothing persisted, nothing moved
	assert.Equal(t, 0, store.scoreCount())
	assert.Empty(t, store.entries)
	assert.Equal(t, domain.StateSoumis, store.currentState())
	assert.Equal(t, 3_000_000.0, store.dossier.RequestedAmount)
}

// An over-indebted borrower with one recent late payment, stable employment
// and coherent documents: the debt load alone must land the dossier in HIGH,
// and nothing about the profile is fraudulent.
func TestOverindebtedCleanProfileScenario(t *testing.T) {
	store := seededStore()
	store.client.MonthlyIncome = 3000
	store.client.MonthlyCharges = 2000
	store.client.ExistingDebts = 700
	store.client.EmploymentYears = 5
	store.dossier.RequestedAmount = 100_000
	store.dossier.TermMonths = 12

	history := make([]domain.RepaymentRecord, 0, 10)
	for i := 0; i < 9; i++ {
		history = append(history, domain.RepaymentRecord{
			DueDate: time.Now().AddDate(0, i-10, 0),
			Outcome: domain.OutcomeOnTime,
		})
	}
	history = append(history, domain.RepaymentRecord{
		DueDate: time.Now().AddDate(0, -1, 0),
		Outcome: domain.OutcomeLate,
	})
	store.client.RepaymentHistory = history

	svc, _ := newTestService(t, store)
	ctx := context.Background()

	result, err := svc.EvaluateRisk(ctx, store.dossier.DossierID)
	require.NoError(t, err)
	assert.Equal(t, domain.BandHigh, result.Band)
	assert.Greater(t, result.Factors.DebtRatio, 0.9)
	assert.InDelta(t, 1.0, result.Factors.CoherenceScore, 1e-9)

	alerts, err := svc.DetectFraud(ctx, store.dossier.DossierID)
	require.NoError(t, err)
	assert.Empty(t, alerts)
	assert.Equal(t, domain.StateSoumis, store.currentState())
}

func TestVerifyAuditTrail(t *testing.T) {
	store := seededStore()
	svc, _ := newTestService(t, store)
	ctx := context.Background()

	_, err := svc.RequestTransition(ctx, store.dossier.DossierID,
		domain.StateEnAnalyse, domain.RoleGestionnaire, "prise en charge")
	require.NoError(t, err)

	valid, err := svc.VerifyAuditTrail(ctx, store.dossier.DossierID)
	require.NoError(t, err)
	assert.True(t, valid)

	// Tampering with a persisted entry must be detected
	store.mu.Lock()
	store.entries[0].Reason = "forged"
	store.entries[0].ActorRole = domain.RoleAdmin
	store.mu.Unlock()

	valid, err = svc.VerifyAuditTrail(ctx, store.dossier.DossierID)
	require.NoError(t, err)
	assert.False(t, valid)
}

func TestArchiveAssessmentWithoutArchiveConfigured(t *testing.T) {
	store := seededStore()
	svc, _ := newTestService(t, store)

	report, err := svc.ArchiveAssessment(context.Background(), store.dossier.DossierID)
	require.NoError(t, err)
	require.NotNil(t, report)
	assert.Equal(t, store.dossier.DossierID, report.Dossier.DossierID)
	assert.NotNil(t, report.Score)
	assert.False(t, report.GeneratedAt.IsZero())
}

func TestArchiveAssessmentShipsReportAndAuditBatch(t *testing.T) {
	store := seededStore()
	archive := &memArchive{}
	svc, _ := newTestServiceWithArchive(t, store, archive)
	ctx := context.Background()

	_, err := svc.RequestTransition(ctx, store.dossier.DossierID,
		domain.StateEnAnalyse, domain.RoleGestionnaire, "prise en charge")
	require.NoError(t, err)

	report, err := svc.ArchiveAssessment(ctx, store.dossier.DossierID)
	require.NoError(t, err)

	require.Len(t, archive.reports, 1)
	assert.Equal(t, report.ReportID, archive.reports[0].ReportID)

	// The audit trail ships as a batch keyed by the report
	batch, ok := archive.batches[report.ReportID.String()]
	require.True(t, ok)
	require.Len(t, batch, 1)
	assert.Equal(t, domain.StateEnAnalyse, batch[0].ToState)
}
