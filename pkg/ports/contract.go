package ports

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stephen-chu/insurance-claims-triage/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func contractSession(id, claimID string) *domain.Session {
	s := domain.NewSession(id, domain.Claim{
		ClaimID:      claimID,
		ClaimantName: "Jane Doe",
		PolicyID:     "POL-100",
		ClaimType:    "collision",
		Photos:       []string{"front.jpg", "side.jpg"},
	}, time.Now().UTC().Truncate(time.Second))
	s.Results[domain.TaskNameFraud] = domain.TaskResult{
		TaskName: domain.TaskNameFraud,
		Kind:     domain.TaskFraud,
		Output:   "Risk: low",
	}
	return s
}

// RunSessionStoreContract runs a suite of tests to verify that a SessionStore implementation
// adheres to the defined interface contract.
func RunSessionStoreContract(t *testing.T, store SessionStore) {
	ctx := context.Background()
	sessionID := "contract-test-session-" + time.Now().Format("20060102150405")

	t.Run("Save and Load", func(t *testing.T) {
		s := contractSession(sessionID, "CLM-CONTRACT")
		s.Status = domain.StatusAwaitingReview
		s.Proposal = &domain.DecisionProposal{
			Outcome:        domain.OutcomeManualReview,
			Coverage:       domain.CoverageYes,
			FraudRisk:      domain.FraudRiskLow,
			DamageEstimate: "7200.00",
			Reason:         "Large loss",
			Rule:           "large-loss",
		}

		err := store.Save(ctx, s)
		require.NoError(t, err, "Save should not return error")

		loaded, err := store.Load(ctx, sessionID)
		require.NoError(t, err, "Load should not return error")
		assert.Equal(t, s.ID, loaded.ID)
		assert.Equal(t, s.ClaimID, loaded.ClaimID)
		assert.Equal(t, domain.StatusAwaitingReview, loaded.Status)
		require.NotNil(t, loaded.Proposal)
		assert.Equal(t, *s.Proposal, *loaded.Proposal)
		assert.Equal(t, s.Claim.Photos, loaded.Claim.Photos)
		assert.Contains(t, loaded.Results, domain.TaskNameFraud)
		assert.True(t, s.CreatedAt.Equal(loaded.CreatedAt))
	})

	t.Run("Load returns an isolated copy", func(t *testing.T) {
		loaded, err := store.Load(ctx, sessionID)
		require.NoError(t, err)
		loaded.Status = domain.StatusRejected

		again, err := store.Load(ctx, sessionID)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusAwaitingReview, again.Status)
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := store.Load(ctx, "non-existent-"+sessionID)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		err := store.Save(ctx, contractSession(sessionID, "CLM-CONTRACT"))
		require.NoError(t, err)

		err = store.Delete(ctx, sessionID)
		require.NoError(t, err, "Delete should not return error")

		_, err = store.Load(ctx, sessionID)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound, "Load after Delete should return ErrSessionNotFound")

		// Idempotent
		assert.NoError(t, store.Delete(ctx, sessionID))
	})

	t.Run("List", func(t *testing.T) {
		id1 := sessionID + "-1"
		id2 := sessionID + "-2"
		_ = store.Save(ctx, contractSession(id1, "CLM-1"))
		_ = store.Save(ctx, contractSession(id2, "CLM-2"))

		defer func() {
			_ = store.Delete(ctx, id1)
			_ = store.Delete(ctx, id2)
		}()

		sessions, err := store.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, sessions, id1)
		assert.Contains(t, sessions, id2)
	})
}

// RunArchiveContract verifies an Archive implementation.
func RunArchiveContract(t *testing.T, archive Archive) {
	ctx := context.Background()
	sessionID := "contract-archive-" + time.Now().Format("20060102150405")

	t.Run("Lookup Non-Existent", func(t *testing.T) {
		_, err := archive.Lookup(ctx, sessionID)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	})

	t.Run("Record and Lookup", func(t *testing.T) {
		entry := domain.ArchiveEntry{
			SessionID:  sessionID,
			ClaimID:    "CLM-ARCH",
			Resolution: domain.ResolutionRejected,
			ClosedAt:   time.Now().UTC().Truncate(time.Second),
		}
		require.NoError(t, archive.Record(ctx, entry))

		got, err := archive.Lookup(ctx, sessionID)
		require.NoError(t, err)
		assert.Equal(t, entry.ClaimID, got.ClaimID)
		assert.Equal(t, entry.Resolution, got.Resolution)
		assert.True(t, entry.ClosedAt.Equal(got.ClosedAt))
	})

	t.Run("First record wins", func(t *testing.T) {
		err := archive.Record(ctx, domain.ArchiveEntry{
			SessionID:  sessionID,
			ClaimID:    "CLM-ARCH",
			Resolution: domain.ResolutionApproved,
			ClosedAt:   time.Now(),
		})
		require.NoError(t, err)

		got, err := archive.Lookup(ctx, sessionID)
		require.NoError(t, err)
		assert.Equal(t, domain.ResolutionRejected, got.Resolution)
	})
}

// RunDecisionSinkContract verifies a DecisionSink implementation, including
// the once-only write guarantee under concurrent writers.
func RunDecisionSinkContract(t *testing.T, sink DecisionSink) {
	ctx := context.Background()
	claimID := "CLM-SINK-" + time.Now().Format("20060102150405")

	decision := domain.FinalDecision{
		ClaimID:     claimID,
		SessionID:   "s-1",
		ProcessedAt: time.Now().UTC().Truncate(time.Second),
		Decision: domain.DecisionProposal{
			Outcome:        domain.OutcomeAutoApprove,
			Coverage:       domain.CoverageYes,
			FraudRisk:      domain.FraudRiskLow,
			DamageEstimate: "850.00",
			Reason:         "Covered, low fraud risk",
		},
		Resolution: domain.ResolutionApproved,
	}

	t.Run("Missing", func(t *testing.T) {
		ok, err := sink.Exists(ctx, claimID)
		require.NoError(t, err)
		assert.False(t, ok)

		_, err = sink.Load(ctx, claimID)
		assert.ErrorIs(t, err, domain.ErrClaimNotFound)
	})

	t.Run("Write and Load", func(t *testing.T) {
		require.NoError(t, sink.Write(ctx, decision))

		ok, err := sink.Exists(ctx, claimID)
		require.NoError(t, err)
		assert.True(t, ok)

		got, err := sink.Load(ctx, claimID)
		require.NoError(t, err)
		assert.Equal(t, decision.Decision, got.Decision)
		assert.Equal(t, decision.Resolution, got.Resolution)
		assert.True(t, decision.ProcessedAt.Equal(got.ProcessedAt))
	})

	t.Run("Second write is rejected", func(t *testing.T) {
		other := decision
		other.Decision.Outcome = domain.OutcomeDeny
		err := sink.Write(ctx, other)
		assert.ErrorIs(t, err, domain.ErrDecisionExists)

		got, err := sink.Load(ctx, claimID)
		require.NoError(t, err)
		assert.Equal(t, domain.OutcomeAutoApprove, got.Decision.Outcome)
	})

	t.Run("Concurrent writers", func(t *testing.T) {
		raceID := claimID + "-race"
		const writers = 8

		var wg sync.WaitGroup
		errs := make(chan error, writers)
		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				d := decision
				d.ClaimID = raceID
				errs <- sink.Write(ctx, d)
			}()
		}
		wg.Wait()
		close(errs)

		var wins int
		for err := range errs {
			if err == nil {
				wins++
				continue
			}
			assert.ErrorIs(t, err, domain.ErrDecisionExists)
		}
		assert.Equal(t, 1, wins, "exactly one writer must succeed")
	})
}
