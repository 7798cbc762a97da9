package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/OrbitXSolutions/exam-integrity-service/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenSession(t *testing.T) {
	env := newTestEnv()
	sessions, _, _ := env.proctorStack(75, 2*time.Minute)
	ctx := context.Background()

	attempt := env.startAttempt(t, "cand-1", 10, 3600)

	t.Run("opens against a running attempt", func(t *testing.T) {
		session, err := sessions.OpenSession(ctx, &OpenSessionRequest{
			AttemptID: attempt.ID,
			Mode:      models.ProctorModeSoft,
			OpenedBy:  "cand-1",
		})
		require.NoError(t, err)
		assert.Equal(t, models.SessionActive, session.Status)
		require.NotNil(t, session.LastHeartbeatAt)
	})

	t.Run("one active session per attempt and mode", func(t *testing.T) {
		_, err := sessions.OpenSession(ctx, &OpenSessionRequest{
			AttemptID: attempt.ID,
			Mode:      models.ProctorModeSoft,
			OpenedBy:  "cand-1",
		})
		assert.ErrorIs(t, err, ErrActiveSessionExists)
	})

	t.Run("a different mode may coexist", func(t *testing.T) {
		_, err := sessions.OpenSession(ctx, &OpenSessionRequest{
			AttemptID: attempt.ID,
			Mode:      models.ProctorModeAdvanced,
			OpenedBy:  "proctor-1",
		})
		require.NoError(t, err)
	})

	t.Run("rejects non-running attempts", func(t *testing.T) {
		paused := env.startAttempt(t, "cand-2", 10, 3600)
		_, err := env.attemptTimer().Pause(ctx, paused.ID, "admin-1", "")
		require.NoError(t, err)

		_, err = sessions.OpenSession(ctx, &OpenSessionRequest{
			AttemptID: paused.ID,
			Mode:      models.ProctorModeSoft,
			OpenedBy:  "cand-2",
		})
		assert.ErrorIs(t, err, ErrAttemptNotRunning)
	})

	t.Run("unknown attempt", func(t *testing.T) {
		_, err := sessions.OpenSession(ctx, &OpenSessionRequest{
			AttemptID: 9999,
			Mode:      models.ProctorModeSoft,
			OpenedBy:  "cand-1",
		})
		assert.ErrorIs(t, err, ErrAttemptNotFound)
	})
}

func TestConcurrentOpenSession(t *testing.T) {
	env := newTestEnv()
	sessions, _, _ := env.proctorStack(75, 2*time.Minute)
	ctx := context.Background()

	attempt := env.startAttempt(t, "cand-1", 10, 3600)

	const racers = 2
	errs := make(chan error, racers)
	var wg sync.WaitGroup
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := sessions.OpenSession(ctx, &OpenSessionRequest{
				AttemptID: attempt.ID,
				Mode:      models.ProctorModeSoft,
				OpenedBy:  "cand-1",
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var opened, rejected int
	for err := range errs {
		switch {
		case err == nil:
			opened++
		case errors.Is(err, ErrActiveSessionExists):
			rejected++
		default:
			t.Fatalf("unexpected error from racing open: %v", err)
		}
	}
	assert.Equal(t, 1, opened)
	assert.Equal(t, 1, rejected)

	active, err := env.repo.Proctor().GetActiveSessionsByAttempt(ctx, attempt.ID)
	require.NoError(t, err)
	assert.Len(t, active, 1)
}

func TestIngestEvent(t *testing.T) {
	env := newTestEnv()
	sessions, engine, _ := env.proctorStack(75, 2*time.Minute)
	ctx := context.Background()

	_, err := engine.AddRule(ctx, &AddRuleRequest{EventType: models.EventTabSwitch, RiskPoints: 10, CreatedBy: "admin-1"})
	require.NoError(t, err)

	attempt := env.startAttempt(t, "cand-1", 10, 3600)
	session, err := sessions.OpenSession(ctx, &OpenSessionRequest{
		AttemptID: attempt.ID,
		Mode:      models.ProctorModeSoft,
		OpenedBy:  "cand-1",
	})
	require.NoError(t, err)

	t.Run("scores and counts a matched event", func(t *testing.T) {
		event, err := sessions.IngestEvent(ctx, &IngestEventRequest{
			SessionID:  session.ID,
			EventType:  models.EventTabSwitch,
			Severity:   3,
			OccurredAt: env.clock.Now(),
			Metadata:   map[string]interface{}{"from": "exam", "to": "browser"},
		})
		require.NoError(t, err)
		assert.True(t, event.IsViolation)

		stored, err := env.repo.Proctor().GetSessionByID(ctx, session.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, stored.TotalEvents)
		assert.Equal(t, 1, stored.TotalViolations)
		assert.Equal(t, 10.0, stored.RiskScore)
	})

	t.Run("an unmatched event counts but does not violate", func(t *testing.T) {
		event, err := sessions.IngestEvent(ctx, &IngestEventRequest{
			SessionID:  session.ID,
			EventType:  models.EventRightClick,
			Severity:   1,
			OccurredAt: env.clock.Now(),
		})
		require.NoError(t, err)
		assert.False(t, event.IsViolation)

		stored, err := env.repo.Proctor().GetSessionByID(ctx, session.ID)
		require.NoError(t, err)
		assert.Equal(t, 2, stored.TotalEvents)
		assert.Equal(t, 1, stored.TotalViolations)
		assert.Equal(t, 10.0, stored.RiskScore)
	})

	t.Run("events are listed in occurrence order", func(t *testing.T) {
		events, err := sessions.ListEvents(ctx, session.ID)
		require.NoError(t, err)
		require.Len(t, events, 2)
		assert.Equal(t, models.EventTabSwitch, events[0].EventType)
	})

	t.Run("rejects an out-of-range severity", func(t *testing.T) {
		_, err := sessions.IngestEvent(ctx, &IngestEventRequest{
			SessionID:  session.ID,
			EventType:  models.EventTabSwitch,
			Severity:   9,
			OccurredAt: env.clock.Now(),
		})
		assert.Error(t, err)
		assert.True(t, IsValidation(err))
	})

	t.Run("closed sessions take no events", func(t *testing.T) {
		_, err := sessions.CloseSession(ctx, session.ID, "cand-1", models.SessionCompleted)
		require.NoError(t, err)

		_, err = sessions.IngestEvent(ctx, &IngestEventRequest{
			SessionID:  session.ID,
			EventType:  models.EventTabSwitch,
			Severity:   1,
			OccurredAt: env.clock.Now(),
		})
		assert.ErrorIs(t, err, ErrSessionClosed)
	})
}

func TestThresholdCrossingOpensIncident(t *testing.T) {
	env := newTestEnv()
	sessions, engine, _ := env.proctorStack(20, 2*time.Minute)
	ctx := context.Background()

	_, err := engine.AddRule(ctx, &AddRuleRequest{EventType: models.EventMultipleFaces, RiskPoints: 15, CreatedBy: "admin-1"})
	require.NoError(t, err)

	attempt := env.startAttempt(t, "cand-1", 10, 3600)
	session, err := sessions.OpenSession(ctx, &OpenSessionRequest{
		AttemptID: attempt.ID,
		Mode:      models.ProctorModeAdvanced,
		OpenedBy:  "proctor-1",
	})
	require.NoError(t, err)

	ingest := func() {
		t.Helper()
		_, err := sessions.IngestEvent(ctx, &IngestEventRequest{
			SessionID:  session.ID,
			EventType:  models.EventMultipleFaces,
			Severity:   4,
			OccurredAt: env.clock.Now(),
		})
		require.NoError(t, err)
	}

	ingest() // 15, below threshold
	cases, _, err := env.repo.Incident().List(ctx, listAllIncidents())
	require.NoError(t, err)
	assert.Empty(t, cases)

	ingest() // 30, crosses
	cases, _, err = env.repo.Incident().List(ctx, listAllIncidents())
	require.NoError(t, err)
	require.Len(t, cases, 1)
	created := cases[0]
	assert.Equal(t, models.SourceProctorAuto, created.Source)
	assert.Equal(t, models.IncidentOpen, created.Status)
	assert.Equal(t, models.SeverityMedium, created.Severity)
	assert.Equal(t, 30.0, created.RiskScoreAtCreate)
	assert.Equal(t, attempt.ID, created.AttemptID)
	assert.Equal(t, "cand-1", created.CandidateID)

	ingest() // 45, still above; the open case dedupes
	cases, _, err = env.repo.Incident().List(ctx, listAllIncidents())
	require.NoError(t, err)
	assert.Len(t, cases, 1)
}

func TestHeartbeatAndSweep(t *testing.T) {
	env := newTestEnv()
	sessions, _, _ := env.proctorStack(75, 2*time.Minute)
	ctx := context.Background()

	a1 := env.startAttempt(t, "cand-1", 10, 7200)
	a2 := env.startAttempt(t, "cand-2", 10, 7200)
	stale, err := sessions.OpenSession(ctx, &OpenSessionRequest{AttemptID: a1.ID, Mode: models.ProctorModeSoft, OpenedBy: "cand-1"})
	require.NoError(t, err)
	fresh, err := sessions.OpenSession(ctx, &OpenSessionRequest{AttemptID: a2.ID, Mode: models.ProctorModeSoft, OpenedBy: "cand-2"})
	require.NoError(t, err)

	env.clock.Advance(5 * time.Minute)
	require.NoError(t, sessions.Heartbeat(ctx, fresh.ID))

	swept, err := sessions.SweepStaleSessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, swept)

	storedStale, err := env.repo.Proctor().GetSessionByID(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionCancelled, storedStale.Status)

	storedFresh, err := env.repo.Proctor().GetSessionByID(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionActive, storedFresh.Status)

	t.Run("heartbeat on a closed session", func(t *testing.T) {
		err := sessions.Heartbeat(ctx, stale.ID)
		assert.ErrorIs(t, err, ErrSessionClosed)
	})
}

func TestCloseSession(t *testing.T) {
	env := newTestEnv()
	sessions, _, _ := env.proctorStack(75, 2*time.Minute)
	ctx := context.Background()

	attempt := env.startAttempt(t, "cand-1", 10, 3600)
	session, err := sessions.OpenSession(ctx, &OpenSessionRequest{AttemptID: attempt.ID, Mode: models.ProctorModeSoft, OpenedBy: "cand-1"})
	require.NoError(t, err)

	t.Run("rejects a non-terminal close status", func(t *testing.T) {
		_, err := sessions.CloseSession(ctx, session.ID, "cand-1", models.SessionActive)
		assert.Error(t, err)
	})

	t.Run("completes the session", func(t *testing.T) {
		closed, err := sessions.CloseSession(ctx, session.ID, "cand-1", models.SessionCompleted)
		require.NoError(t, err)
		assert.Equal(t, models.SessionCompleted, closed.Status)
		require.NotNil(t, closed.EndedAt)
	})

	t.Run("double close", func(t *testing.T) {
		_, err := sessions.CloseSession(ctx, session.ID, "cand-1", models.SessionCancelled)
		assert.ErrorIs(t, err, ErrSessionClosed)
	})
}

func TestAttachEvidence(t *testing.T) {
	env := newTestEnv()
	sessions, _, _ := env.proctorStack(75, 2*time.Minute)
	ctx := context.Background()

	attempt := env.startAttempt(t, "cand-1", 10, 3600)
	session, err := sessions.OpenSession(ctx, &OpenSessionRequest{AttemptID: attempt.ID, Mode: models.ProctorModeAdvanced, OpenedBy: "proctor-1"})
	require.NoError(t, err)

	t.Run("stores the reference only", func(t *testing.T) {
		evidence, err := sessions.AttachEvidence(ctx, &AttachEvidenceRequest{
			SessionID:  session.ID,
			Kind:       "screenshot",
			StorageRef: "s3://proctor-evidence/sess-1/shot-001.png",
			Caption:    "second monitor visible",
			AttachedBy: "proctor-1",
		})
		require.NoError(t, err)
		assert.NotZero(t, evidence.ID)

		list, err := sessions.ListEvidence(ctx, session.ID)
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, "s3://proctor-evidence/sess-1/shot-001.png", list[0].StorageRef)
	})

	t.Run("rejects unknown kinds", func(t *testing.T) {
		_, err := sessions.AttachEvidence(ctx, &AttachEvidenceRequest{
			SessionID:  session.ID,
			Kind:       "hologram",
			StorageRef: "s3://x",
			AttachedBy: "proctor-1",
		})
		assert.Error(t, err)
		assert.True(t, IsValidation(err))
	})
}

func TestRecordProctorDecision(t *testing.T) {
	env := newTestEnv()
	sessions, _, _ := env.proctorStack(75, 2*time.Minute)
	ctx := context.Background()

	attempt := env.startAttempt(t, "cand-1", 10, 3600)
	session, err := sessions.OpenSession(ctx, &OpenSessionRequest{AttemptID: attempt.ID, Mode: models.ProctorModeAdvanced, OpenedBy: "proctor-1"})
	require.NoError(t, err)

	t.Run("records and later revises the verdict", func(t *testing.T) {
		first, err := sessions.RecordDecision(ctx, &RecordProctorDecisionRequest{
			SessionID: session.ID,
			Status:    models.DecisionSuspicious,
			DecidedBy: "proctor-1",
		})
		require.NoError(t, err)
		assert.Equal(t, models.DecisionSuspicious, first.Status)

		second, err := sessions.RecordDecision(ctx, &RecordProctorDecisionRequest{
			SessionID: session.ID,
			Status:    models.DecisionCleared,
			DecidedBy: "proctor-2",
		})
		require.NoError(t, err)
		assert.Equal(t, first.ID, second.ID, "one decision row per session")
		assert.Equal(t, models.DecisionCleared, second.Status)
	})

	t.Run("finalized decisions are frozen", func(t *testing.T) {
		_, err := sessions.RecordDecision(ctx, &RecordProctorDecisionRequest{
			SessionID: session.ID,
			Status:    models.DecisionInvalidated,
			DecidedBy: "proctor-1",
			Finalize:  true,
		})
		require.NoError(t, err)

		_, err = sessions.RecordDecision(ctx, &RecordProctorDecisionRequest{
			SessionID: session.ID,
			Status:    models.DecisionCleared,
			DecidedBy: "proctor-2",
		})
		assert.ErrorIs(t, err, ErrDecisionFinalized)
	})
}
