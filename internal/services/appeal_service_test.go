package services

import (
	"context"
	"testing"

	"github.com/OrbitXSolutions/exam-integrity-service/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// seedDecidedCase builds a case resolved as Suspicious for candidate cand-1.
func seedDecidedCase(t *testing.T, env *testEnv, incidents IncidentService) *models.IncidentCase {
	t.Helper()
	ctx := context.Background()
	created := seedCase(t, env, incidents, 40)
	_, err := incidents.ChangeStatus(ctx, created.ID, models.IncidentInReview, "reviewer-1", "")
	require.NoError(t, err)
	decided, err := incidents.RecordDecision(ctx, &RecordDecisionRequest{
		CaseID:    created.ID,
		Outcome:   models.OutcomeSuspicious,
		Reason:    "repeated multi-face detections",
		DecidedBy: "reviewer-1",
	})
	require.NoError(t, err)
	return decided
}

func TestSubmitAppeal(t *testing.T) {
	env := newTestEnv()
	incidents := env.incidentService()
	appeals := env.appealService()
	ctx := context.Background()

	t.Run("requires a decided case", func(t *testing.T) {
		undecided := seedCase(t, env, incidents, 0)
		_, err := appeals.Submit(ctx, &SubmitAppealRequest{
			CaseID:      undecided.ID,
			CandidateID: "cand-1",
			Message:     "I never left the exam window",
		})
		assert.ErrorIs(t, err, ErrCaseNotDecided)
	})

	decided := seedDecidedCase(t, env, incidents)

	t.Run("only the case's candidate may appeal", func(t *testing.T) {
		_, err := appeals.Submit(ctx, &SubmitAppealRequest{
			CaseID:      decided.ID,
			CandidateID: "someone-else",
			Message:     "appealing on their behalf",
		})
		assert.ErrorIs(t, err, ErrInvalidState)
	})

	t.Run("freezes the outcome under dispute", func(t *testing.T) {
		appeal, err := appeals.Submit(ctx, &SubmitAppealRequest{
			CaseID:      decided.ID,
			CandidateID: "cand-1",
			Message:     "I never left the exam window",
		})
		require.NoError(t, err)
		assert.Equal(t, "AP-000001", appeal.AppealNumber)
		assert.Equal(t, models.AppealSubmitted, appeal.Status)
		require.NotNil(t, appeal.OriginalOutcome)
		assert.Equal(t, models.OutcomeSuspicious, *appeal.OriginalOutcome)
		assert.Contains(t, timelineTypes(t, env, decided.ID), models.TimelineAppealSubmitted)
	})

	t.Run("one open appeal per case", func(t *testing.T) {
		_, err := appeals.Submit(ctx, &SubmitAppealRequest{
			CaseID:      decided.ID,
			CandidateID: "cand-1",
			Message:     "submitting a duplicate appeal",
		})
		assert.ErrorIs(t, err, ErrOpenAppealExists)
	})

	t.Run("rejects a too-short message", func(t *testing.T) {
		_, err := appeals.Submit(ctx, &SubmitAppealRequest{
			CaseID:      decided.ID,
			CandidateID: "cand-1",
			Message:     "unfair",
		})
		assert.Error(t, err)
		assert.True(t, IsValidation(err))
	})
}

func TestStartAppealReview(t *testing.T) {
	env := newTestEnv()
	incidents := env.incidentService()
	appeals := env.appealService()
	ctx := context.Background()

	decided := seedDecidedCase(t, env, incidents)
	appeal, err := appeals.Submit(ctx, &SubmitAppealRequest{
		CaseID:      decided.ID,
		CandidateID: "cand-1",
		Message:     "I never left the exam window",
	})
	require.NoError(t, err)

	claimed, err := appeals.StartReview(ctx, appeal.ID, "reviewer-2")
	require.NoError(t, err)
	assert.Equal(t, models.AppealInReview, claimed.Status)
	require.NotNil(t, claimed.ReviewedBy)
	assert.Equal(t, "reviewer-2", *claimed.ReviewedBy)

	_, err = appeals.StartReview(ctx, appeal.ID, "reviewer-3")
	assert.ErrorIs(t, err, ErrAppealNotOpen)
}

func TestReviewAppealRejection(t *testing.T) {
	env := newTestEnv()
	incidents := env.incidentService()
	appeals := env.appealService()
	ctx := context.Background()

	decided := seedDecidedCase(t, env, incidents)
	appeal, err := appeals.Submit(ctx, &SubmitAppealRequest{
		CaseID:      decided.ID,
		CandidateID: "cand-1",
		Message:     "I never left the exam window",
	})
	require.NoError(t, err)

	decisionsBefore, err := env.repo.Incident().ListDecisions(ctx, decided.ID)
	require.NoError(t, err)

	reviewed, err := appeals.Review(ctx, &ReviewAppealRequest{
		AppealID:   appeal.ID,
		Approve:    false,
		Reason:     "the recording shows a second person",
		ReviewerID: "reviewer-2",
	})
	require.NoError(t, err)
	assert.Equal(t, models.AppealRejected, reviewed.Status)
	require.NotNil(t, reviewed.ReviewedAt)

	// Rejection leaves the case exactly as it was.
	stored, err := env.repo.Incident().GetByID(ctx, decided.ID)
	require.NoError(t, err)
	assert.Equal(t, models.IncidentResolved, stored.Status)
	assert.Equal(t, models.OutcomeSuspicious, *stored.Outcome)

	decisionsAfter, err := env.repo.Incident().ListDecisions(ctx, decided.ID)
	require.NoError(t, err)
	assert.Len(t, decisionsAfter, len(decisionsBefore))

	// The candidate hears about the verdict, best effort.
	require.NotEmpty(t, env.notifier.pushes)
	assert.Equal(t, "appeal_reviewed", env.notifier.pushes[len(env.notifier.pushes)-1].EventName)

	t.Run("a rejected appeal cannot be re-reviewed", func(t *testing.T) {
		_, err := appeals.Review(ctx, &ReviewAppealRequest{
			AppealID:   appeal.ID,
			Approve:    true,
			NewOutcome: outcomePtr(models.OutcomeCleared),
			Reason:     "changed my mind",
			ReviewerID: "reviewer-2",
		})
		assert.ErrorIs(t, err, ErrAppealNotOpen)
	})

	t.Run("the case stays appealable after rejection", func(t *testing.T) {
		_, err := appeals.Submit(ctx, &SubmitAppealRequest{
			CaseID:      decided.ID,
			CandidateID: "cand-1",
			Message:     "requesting a second look at minute 42",
		})
		require.NoError(t, err)
	})
}

func TestReviewAppealApproval(t *testing.T) {
	env := newTestEnv()
	incidents := env.incidentService()
	appeals := env.appealService()
	ctx := context.Background()

	decided := seedDecidedCase(t, env, incidents)
	appeal, err := appeals.Submit(ctx, &SubmitAppealRequest{
		CaseID:      decided.ID,
		CandidateID: "cand-1",
		Message:     "I never left the exam window",
	})
	require.NoError(t, err)

	t.Run("approval requires a new outcome", func(t *testing.T) {
		_, err := appeals.Review(ctx, &ReviewAppealRequest{
			AppealID:   appeal.ID,
			Approve:    true,
			Reason:     "candidate is right",
			ReviewerID: "reviewer-2",
		})
		assert.ErrorIs(t, err, ErrNewOutcomeRequired)
	})

	t.Run("approval reopens and redecides atomically", func(t *testing.T) {
		reviewed, err := appeals.Review(ctx, &ReviewAppealRequest{
			AppealID:   appeal.ID,
			Approve:    true,
			NewOutcome: outcomePtr(models.OutcomeCleared),
			Reason:     "second review found no second person",
			ReviewerID: "reviewer-2",
		})
		require.NoError(t, err)
		assert.Equal(t, models.AppealApproved, reviewed.Status)

		// The frozen original never changes, even after the redecision.
		require.NotNil(t, reviewed.OriginalOutcome)
		assert.Equal(t, models.OutcomeSuspicious, *reviewed.OriginalOutcome)

		stored, err := env.repo.Incident().GetByID(ctx, decided.ID)
		require.NoError(t, err)
		assert.Equal(t, models.IncidentResolved, stored.Status)
		assert.Equal(t, models.OutcomeCleared, *stored.Outcome)

		decisions, err := env.repo.Incident().ListDecisions(ctx, decided.ID)
		require.NoError(t, err)
		require.Len(t, decisions, 2)
		assert.Equal(t, models.OutcomeCleared, decisions[1].Outcome)

		// The case passed back through Open and InReview on its way to the
		// superseding decision.
		types := timelineTypes(t, env, decided.ID)
		assert.Contains(t, types, models.TimelineReopened)
		assert.Contains(t, types, models.TimelineStatusChanged)
		assert.Contains(t, types, models.TimelineAppealReviewed)
	})
}

func outcomePtr(o models.CaseOutcome) *models.CaseOutcome {
	return &o
}
