package workflow

import (
	"errors"
	"testing"
	"time"

	"github.com/banking/riskguard/internal/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dossierIn(state domain.WorkflowState) *domain.DossierRecord {
	return &domain.DossierRecord{
		DossierID:   uuid.New(),
		Reference:   domain.NewDossierReference(2026, 1),
		ClientID:    uuid.New(),
		State:       state,
		Version:     1,
		SubmittedAt: time.Now().UTC(),
	}
}

func TestTransitionTable(t *testing.T) {
	m := NewMachine()

	tests := []struct {
		name    string
		from    domain.WorkflowState
		to      domain.WorkflowState
		role    domain.ActorRole
		wantErr error
	}{
		{"gestionnaire takes dossier in analysis", domain.StateSoumis, domain.StateEnAnalyse, domain.RoleGestionnaire, nil},
		{"manager validates", domain.StateEnAnalyse, domain.StateValide, domain.RoleManagerRisque, nil},
		{"manager refuses", domain.StateEnAnalyse, domain.StateRefuse, domain.RoleManagerRisque, nil},
		{"admin validates", domain.StateEnAnalyse, domain.StateValide, domain.RoleAdmin, nil},
		{"manager escalates fraud", domain.StateEnAnalyse, domain.StateAlerteFraude, domain.RoleManagerRisque, nil},
		{"system escalates submitted dossier", domain.StateSoumis, domain.StateAlerteFraude, domain.RoleSystem, nil},

		{"no shortcut to validation", domain.StateSoumis, domain.StateValide, domain.RoleAdmin, domain.ErrIllegalTransition},
		{"no shortcut to refusal", domain.StateSoumis, domain.StateRefuse, domain.RoleManagerRisque, domain.ErrIllegalTransition},
		{"validated dossier is final", domain.StateValide, domain.StateEnAnalyse, domain.RoleAdmin, domain.ErrIllegalTransition},
		{"refused dossier is final", domain.StateRefuse, domain.StateEnAnalyse, domain.RoleAdmin, domain.ErrIllegalTransition},
		{"fraud alert is final here", domain.StateAlerteFraude, domain.StateEnAnalyse, domain.RoleAdmin, domain.ErrIllegalTransition},
		{"no self transition", domain.StateEnAnalyse, domain.StateEnAnalyse, domain.RoleAdmin, domain.ErrIllegalTransition},

		{"conseiller may not validate", domain.StateEnAnalyse, domain.StateValide, domain.RoleConseiller, domain.ErrUnauthorizedRole},
		{"conseiller may not take in analysis", domain.StateSoumis, domain.StateEnAnalyse, domain.RoleConseiller, domain.ErrUnauthorizedRole},
		{"gestionnaire may not validate", domain.StateEnAnalyse, domain.StateValide, domain.RoleGestionnaire, domain.ErrUnauthorizedRole},
		{"human may not auto-escalate submitted", domain.StateSoumis, domain.StateAlerteFraude, domain.RoleManagerRisque, domain.ErrUnauthorizedRole},
		{"system may not validate", domain.StateEnAnalyse, domain.StateValide, domain.RoleSystem, domain.ErrUnauthorizedRole},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			record := dossierIn(tt.from)
			newState, entry, err := m.Transition(record, tt.from, tt.to, tt.role, "test")

			if tt.wantErr != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Equal(t, tt.from, newState, "state must not move on rejection")
				assert.Equal(t, uuid.Nil, entry.EntryID, "no audit entry on rejection")
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.to, newState)
			assert.NotEqual(t, uuid.Nil, entry.EntryID)
			assert.Equal(t, record.DossierID, entry.DossierID)
			assert.Equal(t, tt.from, entry.FromState)
			assert.Equal(t, tt.to, entry.ToState)
			assert.Equal(t, tt.role, entry.ActorRole)
			assert.Equal(t, "test", entry.Reason)
			assert.False(t, entry.Timestamp.IsZero())
		})
	}
}

func TestTransitionStaleObservedState(t *testing.T) {
	m := NewMachine()
	record := dossierIn(domain.StateEnAnalyse)

	// The caller computed the request against soumis, but the dossier moved on
	_, _, err := m.Transition(record, domain.StateSoumis, domain.StateEnAnalyse, domain.RoleGestionnaire, "stale")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrConcurrentModification)

	var concurrentErr *domain.ConcurrentModificationError
	require.True(t, errors.As(err, &concurrentErr))
	assert.Equal(t, domain.StateSoumis, concurrentErr.Expected)
	assert.Equal(t, domain.StateEnAnalyse, concurrentErr.Observed)
}

func TestAllowedTargets(t *testing.T) {
	m := NewMachine()

	assert.ElementsMatch(t,
		[]domain.WorkflowState{domain.StateValide, domain.StateRefuse, domain.StateAlerteFraude},
		m.AllowedTargets(domain.StateEnAnalyse, domain.RoleManagerRisque))

	assert.ElementsMatch(t,
		[]domain.WorkflowState{domain.StateEnAnalyse},
		m.AllowedTargets(domain.StateSoumis, domain.RoleGestionnaire))

	assert.Empty(t, m.AllowedTargets(domain.StateValide, domain.RoleAdmin))
	assert.Empty(t, m.AllowedTargets(domain.StateEnAnalyse, domain.RoleConseiller))
}
