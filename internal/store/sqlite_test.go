package store

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bisq-support/review-engine/internal/apperr"
	"github.com/bisq-support/review-engine/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func ptr[T any](v T) *T { return &v }

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func seedCandidate(t *testing.T, st Store, routing model.Routing, offset time.Duration) *model.Candidate {
	t.Helper()
	c := &model.Candidate{
		QuestionText:    "How do I open a trade?",
		StaffAnswer:     "Use the offerbook.",
		GeneratedAnswer: ptr("Open the offerbook and take an offer."),
		Protocol:        model.ProtocolBisqEasy,
		Routing:         routing,
		FinalScore:      ptr(0.93),
		Category:        "trading",
		CreatedAt:       baseTime.Add(offset),
	}
	require.NoError(t, st.CreateCandidate(context.Background(), c))
	return c
}

func seedFAQ(t *testing.T, st Store, question, answer string) *model.FAQ {
	t.Helper()
	f := &model.FAQ{Question: question, Answer: answer, Category: "wallet"}
	require.NoError(t, st.CreateFAQ(context.Background(), f, "seed"))
	return f
}

// --- Candidates ---

func TestSQLite_Candidate_CreateAndGet(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	c := seedCandidate(t, st, model.RoutingSpotCheck, 0)
	require.NotEmpty(t, c.ID)

	got, err := st.GetCandidate(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, c.QuestionText, got.QuestionText)
	require.NotNil(t, got.GeneratedAnswer)
	assert.Equal(t, *c.GeneratedAnswer, *got.GeneratedAnswer)
	assert.Equal(t, model.ProtocolBisqEasy, got.Protocol)
	assert.Equal(t, model.RoutingSpotCheck, got.Routing)
	assert.Equal(t, model.ReviewPending, got.ReviewStatus)
	assert.Equal(t, 1, got.AnswerVersion)
	require.NotNil(t, got.FinalScore)
	assert.InDelta(t, 0.93, *got.FinalScore, 1e-12)
	assert.Nil(t, got.Metrics.Completeness)
	assert.Nil(t, got.Rating)
	assert.Nil(t, got.ReviewedAt)
	assert.False(t, got.IsCalibrationSample)
}

func TestSQLite_Candidate_NotFound(t *testing.T) {
	st := newTestSQLiteStore(t)

	_, err := st.GetCandidate(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, apperr.IsNotFound(err))
}

func TestSQLite_BulkCreate_SkipsExisting(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	batch := []model.Candidate{
		{ID: "a", QuestionText: "q1", StaffAnswer: "a1"},
		{ID: "b", QuestionText: "q2", StaffAnswer: "a2"},
	}
	n, err := st.BulkCreateCandidates(ctx, batch)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = st.BulkCreateCandidates(ctx, []model.Candidate{
		{ID: "b", QuestionText: "changed", StaffAnswer: "a2"},
		{ID: "c", QuestionText: "q3", StaffAnswer: "a3"},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := st.GetCandidate(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, "q2", got.QuestionText)
	assert.Equal(t, model.RoutingFullReview, got.Routing)
}

func TestSQLite_Approve_CreatesFAQOnce(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	c := seedCandidate(t, st, model.RoutingAutoApprove, 0)

	faq := &model.FAQ{Question: c.QuestionText, Answer: c.StaffAnswer}
	require.NoError(t, st.ApproveCandidate(ctx, c.ID, "alice", faq))

	got, err := st.GetCandidate(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ReviewApproved, got.ReviewStatus)
	assert.Equal(t, "alice", got.ReviewedBy)
	require.NotNil(t, got.FAQID)
	assert.Equal(t, faq.ID, *got.FAQID)

	stored, err := st.GetFAQ(ctx, faq.ID)
	require.NoError(t, err)
	assert.Equal(t, c.StaffAnswer, stored.Answer)

	revs, err := st.ListFAQRevisions(ctx, faq.ID)
	require.NoError(t, err)
	require.Len(t, revs, 1)
	assert.Equal(t, model.RevisionCreate, revs[0].Action)

	// Second approval loses the race and writes nothing.
	err = st.ApproveCandidate(ctx, c.ID, "bob", &model.FAQ{Question: "dup", Answer: "dup"})
	require.Error(t, err)
	assert.True(t, apperr.IsConflict(err))
	assert.Contains(t, err.Error(), "approved")

	got, err = st.GetCandidate(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", got.ReviewedBy)
}

func TestSQLite_Reject_ThenApproveConflicts(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	c := seedCandidate(t, st, model.RoutingFullReview, 0)

	require.NoError(t, st.RejectCandidate(ctx, c.ID, "alice", model.RejectOutdated, "superseded by v2"))

	got, err := st.GetCandidate(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ReviewRejected, got.ReviewStatus)
	assert.Equal(t, model.RejectOutdated, got.RejectionReason)
	assert.Equal(t, "superseded by v2", got.RejectionNote)

	err = st.ApproveCandidate(ctx, c.ID, "bob", &model.FAQ{Question: "q", Answer: "a"})
	assert.True(t, apperr.IsConflict(err))

	err = st.ApproveCandidate(ctx, "missing", "bob", &model.FAQ{Question: "q", Answer: "a"})
	assert.True(t, apperr.IsNotFound(err))
}

func TestSQLite_Skip_DeprioritizesInQueue(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	first := seedCandidate(t, st, model.RoutingSpotCheck, 0)
	second := seedCandidate(t, st, model.RoutingSpotCheck, time.Minute)

	require.NoError(t, st.SkipCandidate(ctx, first.ID, "alice"))

	got, err := st.GetCandidate(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ReviewPending, got.ReviewStatus)
	assert.Equal(t, 1, got.SkipCount)
	assert.NotNil(t, got.LastSkippedAt)

	queue, err := st.ListCandidates(ctx, CandidateFilter{Status: model.ReviewPending, Routing: model.RoutingSpotCheck})
	require.NoError(t, err)
	require.Len(t, queue, 2)
	assert.Equal(t, second.ID, queue[0].ID)
	assert.Equal(t, first.ID, queue[1].ID)
}

func TestSQLite_Edit_OnlyPending(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	c := seedCandidate(t, st, model.RoutingSpotCheck, 0)

	require.NoError(t, st.EditCandidate(ctx, c.ID, model.CandidateEdit{StaffAnswer: ptr("Edited answer")}))
	got, err := st.GetCandidate(ctx, c.ID)
	require.NoError(t, err)
	require.NotNil(t, got.EditedStaffAnswer)
	assert.Equal(t, "Edited answer", got.EffectiveAnswer())
	assert.Nil(t, got.EditedQuestionText)
	assert.Equal(t, "trading", got.Category)

	require.NoError(t, st.RejectCandidate(ctx, c.ID, "alice", model.RejectOther, ""))
	err = st.EditCandidate(ctx, c.ID, model.CandidateEdit{Category: ptr("wallet")})
	assert.True(t, apperr.IsConflict(err))
}

// --- Rating and calibration ---

func isAuto(r model.Routing) bool { return r == model.RoutingAutoApprove }

func TestSQLite_Rate_CountsAutoApproveOnly(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	require.NoError(t, st.EnsureCalibration(ctx, 3))

	auto := seedCandidate(t, st, model.RoutingAutoApprove, 0)
	spot := seedCandidate(t, st, model.RoutingSpotCheck, time.Second)

	counted, err := st.RateCandidate(ctx, RatingInput{CandidateID: auto.ID, AnswerVersion: 1, Rating: model.RatingGood, Actor: "alice"}, isAuto)
	require.NoError(t, err)
	assert.True(t, counted)

	counted, err = st.RateCandidate(ctx, RatingInput{CandidateID: spot.ID, AnswerVersion: 1, Rating: model.RatingGood, Actor: "alice"}, isAuto)
	require.NoError(t, err)
	assert.False(t, counted)

	cal, err := st.GetCalibration(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, cal.SamplesCollected)
	assert.Equal(t, 3, cal.SamplesRequired)
	assert.Equal(t, 1, cal.GoodCount)
	assert.False(t, cal.IsComplete)

	got, err := st.GetCandidate(ctx, auto.ID)
	require.NoError(t, err)
	assert.True(t, got.IsCalibrationSample)
	require.NotNil(t, got.Rating)
	assert.Equal(t, model.RatingGood, *got.Rating)
}

func TestSQLite_Rate_OncePerAnswerVersion(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	require.NoError(t, st.EnsureCalibration(ctx, 10))
	c := seedCandidate(t, st, model.RoutingAutoApprove, 0)

	in := RatingInput{CandidateID: c.ID, AnswerVersion: 1, Rating: model.RatingNeedsImprovement, Actor: "alice"}
	_, err := st.RateCandidate(ctx, in, isAuto)
	require.NoError(t, err)

	_, err = st.RateCandidate(ctx, in, isAuto)
	require.Error(t, err)
	assert.True(t, apperr.IsConflict(err))
	assert.Contains(t, err.Error(), "already rated")

	// Regenerating opens a new version for rating.
	require.NoError(t, st.ReplaceAnswer(ctx, c.ID, 1, model.AnswerUpdate{
		Protocol:        model.ProtocolMuSig,
		GeneratedAnswer: "MuSig answer",
	}))
	got, err := st.GetCandidate(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.AnswerVersion)
	assert.Nil(t, got.Rating)
	assert.False(t, got.IsCalibrationSample)
	assert.Equal(t, model.ProtocolMuSig, got.Protocol)
	assert.Nil(t, got.FinalScore, "an unscored replacement answer has no score")
	assert.True(t, got.Metrics.Empty())
	assert.Equal(t, model.RoutingAutoApprove, got.Routing)

	_, err = st.RateCandidate(ctx, in, isAuto)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "regenerated")

	in.AnswerVersion = 2
	counted, err := st.RateCandidate(ctx, in, isAuto)
	require.NoError(t, err)
	assert.True(t, counted)

	cal, err := st.GetCalibration(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, cal.SamplesCollected)
	assert.Equal(t, 2, cal.NeedsImprovementCount)
}

func TestSQLite_Rate_ConcurrentNeverOvershoots(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	const required = 10
	require.NoError(t, st.EnsureCalibration(ctx, required))

	ids := make([]string, 25)
	for i := range ids {
		ids[i] = seedCandidate(t, st, model.RoutingAutoApprove, time.Duration(i)*time.Second).ID
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	countedTotal := 0
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			counted, err := st.RateCandidate(ctx, RatingInput{CandidateID: id, AnswerVersion: 1, Rating: model.RatingGood, Actor: "r"}, isAuto)
			assert.NoError(t, err)
			if counted {
				mu.Lock()
				countedTotal++
				mu.Unlock()
			}
		}(id)
	}
	wg.Wait()

	cal, err := st.GetCalibration(ctx)
	require.NoError(t, err)
	assert.Equal(t, required, cal.SamplesCollected)
	assert.Equal(t, required, countedTotal)
	assert.True(t, cal.IsComplete)
	assert.NotNil(t, cal.CompletedAt)
}

func TestSQLite_Rate_RejectedCandidateConflicts(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	require.NoError(t, st.EnsureCalibration(ctx, 10))
	c := seedCandidate(t, st, model.RoutingAutoApprove, 0)
	require.NoError(t, st.RejectCandidate(ctx, c.ID, "alice", model.RejectIncorrect, ""))

	_, err := st.RateCandidate(ctx, RatingInput{CandidateID: c.ID, AnswerVersion: 1, Rating: model.RatingGood, Actor: "bob"}, isAuto)
	assert.True(t, apperr.IsConflict(err))

	_, err = st.RateCandidate(ctx, RatingInput{CandidateID: "missing", AnswerVersion: 1, Rating: model.RatingGood}, isAuto)
	assert.True(t, apperr.IsNotFound(err))
}

func TestSQLite_EnsureCalibration_Idempotent(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	_, err := st.GetCalibration(ctx)
	assert.True(t, apperr.IsNotFound(err))

	require.NoError(t, st.EnsureCalibration(ctx, 100))
	require.NoError(t, st.EnsureCalibration(ctx, 5))

	cal, err := st.GetCalibration(ctx)
	require.NoError(t, err)
	assert.Equal(t, 100, cal.SamplesRequired)
	assert.Equal(t, 0, cal.SamplesCollected)
	assert.Nil(t, cal.CompletedAt)
}

func TestSQLite_SetScores_StaleVersion(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	c := seedCandidate(t, st, model.RoutingFullReview, 0)

	up := model.ScoreUpdate{
		Metrics:    model.Metrics{EmbeddingSimilarity: ptr(0.9), FactualAlignment: ptr(0.95), ContradictionScore: ptr(0.05), Completeness: ptr(0.85), HallucinationRisk: ptr(0.05)},
		FinalScore: ptr(0.9325),
		Routing:    model.RoutingAutoApprove,
	}
	require.NoError(t, st.SetScores(ctx, c.ID, 1, up))

	got, err := st.GetCandidate(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RoutingAutoApprove, got.Routing)
	require.NotNil(t, got.Metrics.HallucinationRisk)
	assert.InDelta(t, 0.05, *got.Metrics.HallucinationRisk, 1e-12)

	err = st.SetScores(ctx, c.ID, 7, up)
	require.Error(t, err)
	assert.True(t, apperr.IsConflict(err))
}

func TestSQLite_ListCandidates_Unscored(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	scored := seedCandidate(t, st, model.RoutingSpotCheck, 0)
	unscored := &model.Candidate{
		QuestionText:    "q",
		StaffAnswer:     "a",
		GeneratedAnswer: ptr("g"),
		Protocol:        model.ProtocolBisqEasy,
		CreatedAt:       baseTime.Add(time.Minute),
	}
	require.NoError(t, st.CreateCandidate(ctx, unscored))

	list, err := st.ListCandidates(ctx, CandidateFilter{Unscored: true})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, unscored.ID, list[0].ID)
	assert.NotEqual(t, scored.ID, list[0].ID)
}

// --- Similar FAQ candidates ---

func seedSimilar(t *testing.T, st Store, faq *model.FAQ) *model.SimilarFaqCandidate {
	t.Helper()
	c := &model.SimilarFaqCandidate{
		ExtractedQuestion: "How do I back up my wallet?",
		ExtractedAnswer:   "Write down the seed words.",
		ExtractedCategory: "wallet",
		MatchedFAQID:      faq.ID,
		MatchedQuestion:   faq.Question,
		MatchedAnswer:     faq.Answer,
		Similarity:        0.88,
		Tier:              "very_similar",
	}
	require.NoError(t, st.CreateSimilarCandidate(context.Background(), c))
	return c
}

func appendRewrite(extracted string) func(model.FAQ) model.FAQ {
	return func(cur model.FAQ) model.FAQ {
		cur.Answer = cur.Answer + "\n\n---\n\n" + extracted
		return cur
	}
}

func TestSQLite_Merge_AppendsAndAudits(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	faq := seedFAQ(t, st, "How to back up?", "Use the backup menu.")
	sc := seedSimilar(t, st, faq)

	err := st.ResolveSimilar(ctx, sc.ID, model.SimilarMerged, Resolution{
		Actor:   "alice",
		Mode:    model.MergeAppend,
		Rewrite: appendRewrite(sc.ExtractedAnswer),
	})
	require.NoError(t, err)

	merged, err := st.GetFAQ(ctx, faq.ID)
	require.NoError(t, err)
	assert.Equal(t, "Use the backup menu.\n\n---\n\nWrite down the seed words.", merged.Answer)

	revs, err := st.ListFAQRevisions(ctx, faq.ID)
	require.NoError(t, err)
	require.Len(t, revs, 2)
	assert.Equal(t, model.RevisionAppend, revs[1].Action)
	assert.Equal(t, "Use the backup menu.", revs[1].Answer)

	got, err := st.GetSimilarCandidate(ctx, sc.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SimilarMerged, got.Status)
	assert.Equal(t, model.MergeAppend, got.MergeMode)
	assert.Equal(t, faq.ID, got.ResultFAQID)
	assert.Equal(t, "alice", got.ResolvedBy)

	// A second merge must not append twice.
	err = st.ResolveSimilar(ctx, sc.ID, model.SimilarMerged, Resolution{
		Actor:   "bob",
		Mode:    model.MergeAppend,
		Rewrite: appendRewrite(sc.ExtractedAnswer),
	})
	require.Error(t, err)
	assert.True(t, apperr.IsConflict(err))

	again, err := st.GetFAQ(ctx, faq.ID)
	require.NoError(t, err)
	assert.Equal(t, merged.Answer, again.Answer)
}

func TestSQLite_Approve_Similar_CreatesNewFAQ(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	faq := seedFAQ(t, st, "How to back up?", "Use the backup menu.")
	sc := seedSimilar(t, st, faq)

	newFAQ := &model.FAQ{Question: sc.ExtractedQuestion, Answer: sc.ExtractedAnswer, Category: sc.ExtractedCategory}
	require.NoError(t, st.ResolveSimilar(ctx, sc.ID, model.SimilarApproved, Resolution{Actor: "alice", FAQ: newFAQ}))

	got, err := st.GetSimilarCandidate(ctx, sc.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SimilarApproved, got.Status)
	assert.Equal(t, newFAQ.ID, got.ResultFAQID)

	original, err := st.GetFAQ(ctx, faq.ID)
	require.NoError(t, err)
	assert.Equal(t, "Use the backup menu.", original.Answer)
}

func TestSQLite_Resolve_ValidatesBeforeWrite(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	faq := seedFAQ(t, st, "q", "a")
	sc := seedSimilar(t, st, faq)

	err := st.ResolveSimilar(ctx, sc.ID, model.SimilarMerged, Resolution{Actor: "alice", Mode: "overwrite"})
	assert.True(t, apperr.IsValidation(err))

	err = st.ResolveSimilar(ctx, sc.ID, model.SimilarApproved, Resolution{Actor: "alice"})
	assert.True(t, apperr.IsValidation(err))

	got, err := st.GetSimilarCandidate(ctx, sc.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SimilarPending, got.Status)
}

func TestSQLite_DismissAndRestore(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	faq := seedFAQ(t, st, "q", "a")
	sc := seedSimilar(t, st, faq)

	require.NoError(t, st.ResolveSimilar(ctx, sc.ID, model.SimilarDismissed, Resolution{Actor: "alice", Reason: "same question"}))
	got, err := st.GetSimilarCandidate(ctx, sc.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SimilarDismissed, got.Status)
	assert.Equal(t, "same question", got.DismissReason)
	require.NotNil(t, got.ResolvedAt)

	err = st.ResolveSimilar(ctx, sc.ID, model.SimilarMerged, Resolution{Actor: "bob", Mode: model.MergeReplace, Rewrite: appendRewrite("x")})
	assert.True(t, apperr.IsConflict(err))

	require.NoError(t, st.RestoreSimilar(ctx, sc.ID, "admin"))
	got, err = st.GetSimilarCandidate(ctx, sc.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SimilarPending, got.Status)
	assert.Nil(t, got.ResolvedAt)
	assert.Empty(t, got.DismissReason)

	err = st.RestoreSimilar(ctx, sc.ID, "admin")
	require.Error(t, err)
	assert.True(t, apperr.IsConflict(err))
	assert.Contains(t, err.Error(), "not dismissed")

	events, err := st.ListSimilarEvents(ctx, sc.ID)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, model.SimilarDismissed, events[0].Status)
	assert.Equal(t, "alice", events[0].Actor, "dismissal actor survives the restore")
	assert.Equal(t, "same question", events[0].Reason)
	assert.Equal(t, model.SimilarPending, events[1].Status)
	assert.Equal(t, "admin", events[1].Actor)
	assert.Equal(t, "restored", events[1].Reason)

	err = st.RestoreSimilar(ctx, "missing", "admin")
	assert.True(t, apperr.IsNotFound(err))
}

func TestSQLite_ListSimilar_FilterByStatus(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	faq := seedFAQ(t, st, "q", "a")
	for i := 0; i < 3; i++ {
		seedSimilar(t, st, faq)
	}
	all, err := st.ListSimilarCandidates(ctx, SimilarFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)

	require.NoError(t, st.ResolveSimilar(ctx, all[0].ID, model.SimilarDismissed, Resolution{Actor: "a"}))

	pending, err := st.ListSimilarCandidates(ctx, SimilarFilter{Status: model.SimilarPending})
	require.NoError(t, err)
	assert.Len(t, pending, 2)

	limited, err := st.ListSimilarCandidates(ctx, SimilarFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestSQLite_GetFAQ_NotFound(t *testing.T) {
	st := newTestSQLiteStore(t)
	_, err := st.GetFAQ(context.Background(), fmt.Sprintf("faq-%d", 42))
	assert.True(t, apperr.IsNotFound(err))
}

func TestSQLite_CreateSimilar_MissingFAQ(t *testing.T) {
	st := newTestSQLiteStore(t)

	err := st.CreateSimilarCandidate(context.Background(), &model.SimilarFaqCandidate{
		ExtractedQuestion: "q", ExtractedAnswer: "a", MatchedFAQID: "gone", Similarity: 0.9, Tier: "very_similar",
	})
	require.Error(t, err)
	assert.True(t, apperr.IsNotFound(err))
}
