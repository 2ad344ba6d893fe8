package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/banking/riskguard/internal/config"
	"github.com/banking/riskguard/internal/crypto"
	"github.com/banking/riskguard/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DossierRepository reads dossiers and client profiles and persists scoring
// outcomes and state transitions
type DossierRepository struct {
	pool      *pgxpool.Pool
	protector *crypto.FieldProtector
}

// NewDossierRepository creates a new dossier repository
func NewDossierRepository(cfg config.DatabaseConfig, protector *crypto.FieldProtector) (*DossierRepository, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxOpenConns)
	poolConfig.MinConns = int32(cfg.MaxIdleConns)
	poolConfig.MaxConnLifetime = cfg.ConnMaxLifetime
	poolConfig.MaxConnIdleTime = cfg.ConnMaxIdleTime

	pool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}

	return &DossierRepository{
		pool:      pool,
		protector: protector,
	}, nil
}

// GetDossier loads a dossier with its client profile, documents, and the
// client's repayment history. National IDs are stored encrypted and
// decrypted on the way out.
func (r *DossierRepository) GetDossier(ctx context.Context, dossierID uuid.UUID) (*domain.DossierRecord, *domain.ClientProfile, error) {
	const query = `
		SELECT
			d.dossier_id, d.reference, d.client_id, d.requested_amount,
			d.term_months, d.purpose, d.personal_deposit, d.state, d.version,
			d.submitted_at, d.updated_at,
			c.client_type, c.last_name, c.first_name, c.national_id, c.national_id_key_version,
			c.profession, c.monthly_income, c.monthly_charges, c.existing_debts,
			c.employment_years, c.age, c.address_verified, c.contact_verified,
			c.bank_stated_income, c.created_at
		FROM dossiers d
		JOIN clients c ON c.client_id = d.client_id
		WHERE d.dossier_id = $1
	`

	var dossier domain.DossierRecord
	var client domain.ClientProfile
	var encryptedID string
	var keyVersion int

	err := r.pool.QueryRow(ctx, query, dossierID).Scan(
		&dossier.DossierID, &dossier.Reference, &dossier.ClientID, &dossier.RequestedAmount,
		&dossier.TermMonths, &dossier.Purpose, &dossier.PersonalDeposit, &dossier.State, &dossier.Version,
		&dossier.SubmittedAt, &dossier.UpdatedAt,
		&client.ClientType, &client.LastName, &client.FirstName, &encryptedID, &keyVersion,
		&client.Profession, &client.MonthlyIncome, &client.MonthlyCharges, &client.ExistingDebts,
		&client.EmploymentYears, &client.Age, &client.AddressVerified, &client.ContactVerified,
		&client.BankStatedIncome, &client.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, domain.ErrDossierNotFound
		}
		return nil, nil, fmt.Errorf("failed to load dossier: %w", err)
	}
	client.ClientID = dossier.ClientID

	if encryptedID != "" {
		plain, err := r.protector.Decrypt(encryptedID, keyVersion)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to decrypt national id: %w", err)
		}
		client.NationalID = plain
	}

	dossier.Documents, err = r.listDocuments(ctx, dossierID)
	if err != nil {
		return nil, nil, err
	}

	client.RepaymentHistory, err = r.listRepayments(ctx, dossier.ClientID)
	if err != nil {
		return nil, nil, err
	}

	return &dossier, &client, nil
}

func (r *DossierRepository) listDocuments(ctx context.Context, dossierID uuid.UUID) ([]domain.DocumentMeta, error) {
	const query = `
		SELECT document_id, dossier_id, type, status, filename,
		       tamper_suspected, uploaded_at
		FROM documents
		WHERE dossier_id = $1
		ORDER BY uploaded_at
	`
	rows, err := r.pool.Query(ctx, query, dossierID)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer rows.Close()

	var docs []domain.DocumentMeta
	for rows.Next() {
		var d domain.DocumentMeta
		if err := rows.Scan(&d.DocumentID, &d.DossierID, &d.Type, &d.Status,
			&d.Filename, &d.TamperSuspected, &d.UploadedAt); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

func (r *DossierRepository) listRepayments(ctx context.Context, clientID uuid.UUID) ([]domain.RepaymentRecord, error) {
	// Oldest first; the recency weighting in scoring depends on this order
	const query = `
		SELECT due_date, outcome
		FROM repayment_records
		WHERE client_id = $1
		ORDER BY due_date
	`
	rows, err := r.pool.Query(ctx, query, clientID)
	if err != nil {
		return nil, fmt.Errorf("failed to query repayment history: %w", err)
	}
	defer rows.Close()

	var history []domain.RepaymentRecord
	for rows.Next() {
		var rec domain.RepaymentRecord
		if err := rows.Scan(&rec.DueDate, &rec.Outcome); err != nil {
			return nil, fmt.Errorf("failed to scan repayment: %w", err)
		}
		history = append(history, rec)
	}
	return history, rows.Err()
}

// GetClientHistory returns all dossiers belonging to a client, most recent
// first. Used by the fraud rules for duplicate and velocity checks.
func (r *DossierRepository) GetClientHistory(ctx context.Context, clientID uuid.UUID) ([]domain.DossierRecord, error) {
	const query = `
		SELECT dossier_id, reference, client_id, requested_amount, term_months,
		       purpose, personal_deposit, state, version, submitted_at, updated_at
		FROM dossiers
		WHERE client_id = $1
		ORDER BY submitted_at DESC
	`
	rows, err := r.pool.Query(ctx, query, clientID)
	if err != nil {
		return nil, fmt.Errorf("failed to query client history: %w", err)
	}
	defer rows.Close()

	var history []domain.DossierRecord
	for rows.Next() {
		var d domain.DossierRecord
		if err := rows.Scan(&d.DossierID, &d.Reference, &d.ClientID, &d.RequestedAmount,
			&d.TermMonths, &d.Purpose, &d.PersonalDeposit, &d.State, &d.Version,
			&d.SubmittedAt, &d.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan dossier: %w", err)
		}
		history = append(history, d)
	}
	return history, rows.Err()
}

// FindOpenDossiersByFingerprint returns non-terminal dossiers whose client
// shares the given identity fingerprint under a different client record.
// The fingerprint column is populated at client intake, so the lookup never
// needs to decrypt national IDs.
func (r *DossierRepository) FindOpenDossiersByFingerprint(ctx context.Context, fingerprint string, excludeClientID uuid.UUID) ([]domain.DossierRecord, error) {
	const query = `
		SELECT d.dossier_id, d.reference, d.client_id, d.requested_amount,
		       d.term_months, d.purpose, d.personal_deposit, d.state, d.version,
		       d.submitted_at, d.updated_at
		FROM dossiers d
		JOIN clients c ON c.client_id = d.client_id
		WHERE c.identity_fingerprint = $1
		  AND d.client_id <> $2
		  AND d.state NOT IN ($3, $4, $5)
		ORDER BY d.submitted_at DESC
	`
	rows, err := r.pool.Query(ctx, query, fingerprint, excludeClientID,
		domain.StateValide, domain.StateRefuse, domain.StateAlerteFraude)
	if err != nil {
		return nil, fmt.Errorf("failed to query dossiers by fingerprint: %w", err)
	}
	defer rows.Close()

	var matches []domain.DossierRecord
	for rows.Next() {
		var d domain.DossierRecord
		if err := rows.Scan(&d.DossierID, &d.Reference, &d.ClientID, &d.RequestedAmount,
			&d.TermMonths, &d.Purpose, &d.PersonalDeposit, &d.State, &d.Version,
			&d.SubmittedAt, &d.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan dossier: %w", err)
		}
		matches = append(matches, d)
	}
	return matches, rows.Err()
}

// CommitTransition commits a validated transition and its audit entry in one
// transaction: either the state moves and the trail records it, or nothing
// is persisted. The WHERE clause carries the observed state and version so a
// concurrent update makes the CAS a no-op, which surfaces as
// ConcurrentModificationError. Exactly one of N racing requests can win.
func (r *DossierRepository) CommitTransition(ctx context.Context, entry *domain.AuditEntry, version int64) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	const update = `
		UPDATE dossiers
		SET state = $1, version = version + 1, updated_at = NOW()
		WHERE dossier_id = $2 AND state = $3 AND version = $4
	`
	tag, err := tx.Exec(ctx, update, entry.ToState, entry.DossierID, entry.FromState, version)
	if err != nil {
		return fmt.Errorf("failed to update dossier state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		current, _, err := r.currentState(ctx, entry.DossierID)
		if err != nil {
			return err
		}
		return &domain.ConcurrentModificationError{
			DossierID: entry.DossierID,
			Expected:  entry.FromState,
			Observed:  current,
		}
	}

	const insert = `
		INSERT INTO audit_entries (
			entry_id, dossier_id, actor_role, from_state, to_state,
			timestamp, reason, signature
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err = tx.Exec(ctx, insert,
		entry.EntryID, entry.DossierID, entry.ActorRole, entry.FromState,
		entry.ToState, entry.Timestamp, entry.Reason, entry.Signature,
	)
	if err != nil {
		return fmt.Errorf("failed to insert audit entry: %w", err)
	}

	return tx.Commit(ctx)
}

func (r *DossierRepository) currentState(ctx context.Context, dossierID uuid.UUID) (domain.WorkflowState, int64, error) {
	var state domain.WorkflowState
	var version int64
	err := r.pool.QueryRow(ctx,
		`SELECT state, version FROM dossiers WHERE dossier_id = $1`, dossierID,
	).Scan(&state, &version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", 0, domain.ErrDossierNotFound
		}
		return "", 0, fmt.Errorf("failed to read dossier state: %w", err)
	}
	return state, version, nil
}

// SaveScore appends an evaluation to the dossier's score history. Past
// evaluations are never overwritten.
func (r *DossierRepository) SaveScore(ctx context.Context, dossierID uuid.UUID, result *domain.ScoreResult) error {
	contributions, err := json.Marshal(result.Contributions)
	if err != nil {
		return fmt.Errorf("failed to marshal contributions: %w", err)
	}
	factors, err := json.Marshal(result.Factors)
	if err != nil {
		return fmt.Errorf("failed to marshal factors: %w", err)
	}

	const query = `
		INSERT INTO score_history (
			score_id, dossier_id, numeric_score, band, factors,
			contributions, explanation, recommendation, installment, evaluated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err = r.pool.Exec(ctx, query,
		uuid.New(), dossierID, result.NumericScore, result.Band, factors,
		contributions, result.Explanation, result.Recommendation,
		result.Installment, result.EvaluatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert score: %w", err)
	}
	return nil
}

// Close closes the database connection pool
func (r *DossierRepository) Close() {
	r.pool.Close()
}
