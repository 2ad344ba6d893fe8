package postgres

import (
	"context"
	"fmt"

	"github.com/banking/riskguard/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AuditRepository reads workflow audit entries. APPEND-ONLY: inserts happen
// exclusively inside DossierRepository.CommitTransition, in the same
// transaction as the state change; no update or delete is ever issued
// against this table.
type AuditRepository struct {
	pool *pgxpool.Pool
}

// NewAuditRepository shares the dossier repository's pool; the audit trail
// lives in the same database.
func NewAuditRepository(dossiers *DossierRepository) *AuditRepository {
	return &AuditRepository{pool: dossiers.pool}
}

// ListAudit returns the full trail for a dossier in chronological order
func (r *AuditRepository) ListAudit(ctx context.Context, dossierID uuid.UUID) ([]domain.AuditEntry, error) {
	const query = `
		SELECT entry_id, dossier_id, actor_role, from_state, to_state,
		       timestamp, reason, signature
		FROM audit_entries
		WHERE dossier_id = $1
		ORDER BY timestamp
	`
	rows, err := r.pool.Query(ctx, query, dossierID)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit entries: %w", err)
	}
	defer rows.Close()

	var entries []domain.AuditEntry
	for rows.Next() {
		var e domain.AuditEntry
		if err := rows.Scan(&e.EntryID, &e.DossierID, &e.ActorRole, &e.FromState,
			&e.ToState, &e.Timestamp, &e.Reason, &e.Signature); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
