package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/quizdesk/quizdesk-backend/internal/model"
	"github.com/rs/zerolog"
)

// ────────────────────────────────────────────────────────────────────────────
// In-memory stores
// ────────────────────────────────────────────────────────────────────────────

type memAttemptStore struct {
	mu       sync.Mutex
	attempts map[uuid.UUID]*model.Attempt
	clock    func() time.Time
}

func newMemAttemptStore(clock func() time.Time) *memAttemptStore {
	return &memAttemptStore{attempts: make(map[uuid.UUID]*model.Attempt), clock: clock}
}

func (s *memAttemptStore) Create(_ context.Context, a *model.Attempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a.ID = uuid.New()
	a.StartedAt = s.clock()
	cp := *a
	s.attempts[a.ID] = &cp
	return nil
}

func (s *memAttemptStore) GetByID(_ context.Context, id uuid.UUID) (*model.Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.attempts[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *a
	if a.QuestionOrder != nil {
		cp.QuestionOrder = append([]uuid.UUID(nil), a.QuestionOrder...)
	}
	return &cp, nil
}

func (s *memAttemptStore) CountByQuizAndStudent(_ context.Context, quizID uuid.UUID, studentID int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, a := range s.attempts {
		if a.QuizID == quizID && a.StudentID == studentID {
			n++
		}
	}
	return n, nil
}

func (s *memAttemptStore) SetQuestionOrderIfUnset(_ context.Context, attemptID uuid.UUID, order []uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.attempts[attemptID]
	if !ok {
		return false, pgx.ErrNoRows
	}
	if a.QuestionOrder != nil {
		return false, nil
	}
	a.QuestionOrder = append([]uuid.UUID(nil), order...)
	return true, nil
}

func (s *memAttemptStore) CompleteIfPending(_ context.Context, attemptID uuid.UUID, score, percentage float64, passed bool, finishedAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.attempts[attemptID]
	if !ok {
		return false, pgx.ErrNoRows
	}
	if a.IsCompleted {
		return false, nil
	}
	a.IsCompleted = true
	a.Score = &score
	a.Percentage = &percentage
	a.IsPassed = &passed
	a.FinishedAt = &finishedAt
	return true, nil
}

type memAnswerStore struct {
	mu       sync.Mutex
	answers  map[uuid.UUID]map[uuid.UUID]*model.Answer
	attempts *memAttemptStore
	clock    func() time.Time
}

func newMemAnswerStore(attempts *memAttemptStore, clock func() time.Time) *memAnswerStore {
	return &memAnswerStore{
		answers:  make(map[uuid.UUID]map[uuid.UUID]*model.Answer),
		attempts: attempts,
		clock:    clock,
	}
}

// Upsert mirrors the real store's guard: no write once the attempt is
// completed.
func (s *memAnswerStore) Upsert(_ context.Context, a *model.Answer) (bool, error) {
	s.attempts.mu.Lock()
	att, ok := s.attempts.attempts[a.AttemptID]
	pending := ok && !att.IsCompleted
	s.attempts.mu.Unlock()
	if !pending {
		return false, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	byQuestion, ok := s.answers[a.AttemptID]
	if !ok {
		byQuestion = make(map[uuid.UUID]*model.Answer)
		s.answers[a.AttemptID] = byQuestion
	}
	if prev, ok := byQuestion[a.QuestionID]; ok {
		a.ID = prev.ID
	} else {
		a.ID = uuid.New()
	}
	a.UpdatedAt = s.clock()
	cp := *a
	cp.SelectedOptionIDs = append([]uuid.UUID(nil), a.SelectedOptionIDs...)
	byQuestion[a.QuestionID] = &cp
	return true, nil
}

func (s *memAnswerStore) Get(_ context.Context, attemptID, questionID uuid.UUID) (*model.Answer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.answers[attemptID][questionID]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *a
	return &cp, nil
}

func (s *memAnswerStore) ListByAttempt(_ context.Context, attemptID uuid.UUID) ([]model.Answer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Answer, 0, len(s.answers[attemptID]))
	for _, a := range s.answers[attemptID] {
		out = append(out, *a)
	}
	return out, nil
}

func (s *memAnswerStore) BulkSetCorrectness(_ context.Context, attemptID uuid.UUID, verdicts map[uuid.UUID]*bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for questionID, verdict := range verdicts {
		if verdict == nil {
			continue
		}
		if a, ok := s.answers[attemptID][questionID]; ok {
			v := *verdict
			a.IsCorrect = &v
		}
	}
	return nil
}

type memSnapshotSource struct {
	snapshots map[uuid.UUID]*model.QuizSnapshot
}

func (s *memSnapshotSource) Snapshot(_ context.Context, quizID uuid.UUID) (*model.QuizSnapshot, error) {
	snap, ok := s.snapshots[quizID]
	if !ok {
		return nil, ErrQuizNotFound
	}
	return snap, nil
}

// ────────────────────────────────────────────────────────────────────────────
// Fixture
// ────────────────────────────────────────────────────────────────────────────

type fixture struct {
	svc      *AttemptService
	attempts *memAttemptStore
	answers  *memAnswerStore
	snap     *model.QuizSnapshot
	now      time.Time
	mu       sync.Mutex
}

func (f *fixture) clock() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fixture) advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

// Q1: single choice, 2 marks, correct = option A.
// Q2: multiple choice, 3 marks, correct = {C, D}.
// Q3: short answer, 5 marks, never auto-scored.
var (
	optA = uuid.New()
	optB = uuid.New()
	optC = uuid.New()
	optD = uuid.New()
	optE = uuid.New()

	q1ID = uuid.New()
	q2ID = uuid.New()
	q3ID = uuid.New()
)

func newFixture(t *testing.T, mutate func(*model.Quiz)) *fixture {
	t.Helper()

	quiz := model.Quiz{
		ID:                     uuid.New(),
		Title:                  "Signals and Systems Midterm",
		OwnerID:                1,
		DurationMinutes:        1,
		PassPercentage:         70,
		MaxAttempts:            2,
		IsActive:               true,
		ShowResultsImmediately: true,
	}
	if mutate != nil {
		mutate(&quiz)
	}

	snap := &model.QuizSnapshot{
		Quiz: quiz,
		Questions: []model.Question{
			{
				ID: q1ID, QuizID: quiz.ID, QuestionText: "Pick A",
				QuestionType: model.QuestionTypeSingle, Marks: 2, SortOrder: 1,
				Options: []model.Option{
					{ID: optA, QuestionID: q1ID, OptionText: "A", IsCorrect: true},
					{ID: optB, QuestionID: q1ID, OptionText: "B"},
				},
			},
			{
				ID: q2ID, QuizID: quiz.ID, QuestionText: "Pick C and D",
				QuestionType: model.QuestionTypeMultiple, Marks: 3, SortOrder: 2,
				Options: []model.Option{
					{ID: optC, QuestionID: q2ID, OptionText: "C", IsCorrect: true},
					{ID: optD, QuestionID: q2ID, OptionText: "D", IsCorrect: true},
					{ID: optE, QuestionID: q2ID, OptionText: "E"},
				},
			},
			{
				ID: q3ID, QuizID: quiz.ID, QuestionText: "Explain",
				QuestionType: model.QuestionTypeShortAnswer, Marks: 5, SortOrder: 3,
			},
		},
	}

	f := &fixture{
		snap: snap,
		now:  time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC),
	}
	f.attempts = newMemAttemptStore(f.clock)
	f.answers = newMemAnswerStore(f.attempts, f.clock)
	f.svc = NewAttemptService(
		f.attempts,
		f.answers,
		&memSnapshotSource{snapshots: map[uuid.UUID]*model.QuizSnapshot{quiz.ID: snap}},
		f.clock,
		zerolog.Nop(),
	)
	return f
}

func (f *fixture) start(t *testing.T, studentID int) *model.Attempt {
	t.Helper()
	attempt, err := f.svc.Create(context.Background(), f.snap.Quiz.ID, studentID)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return attempt
}

func (f *fixture) save(t *testing.T, attemptID uuid.UUID, studentID int, questionID uuid.UUID, req model.SaveAnswerRequest) {
	t.Helper()
	if _, err := f.svc.SaveAnswer(context.Background(), attemptID, studentID, questionID, req); err != nil {
		t.Fatalf("SaveAnswer(%s): %v", questionID, err)
	}
}

// ────────────────────────────────────────────────────────────────────────────
// Creation policy
// ────────────────────────────────────────────────────────────────────────────

func TestCreateEnforcesQuota(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	f.start(t, 42)
	f.start(t, 42)

	_, err := f.svc.Create(ctx, f.snap.Quiz.ID, 42)
	if !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("third attempt: got %v, want ErrQuotaExceeded", err)
	}

	// Another student has their own quota.
	if _, err := f.svc.Create(ctx, f.snap.Quiz.ID, 43); err != nil {
		t.Fatalf("other student blocked: %v", err)
	}
}

func TestCreateRejectsUnavailableQuiz(t *testing.T) {
	later := time.Date(2025, 3, 11, 0, 0, 0, 0, time.UTC)

	cases := []struct {
		name   string
		mutate func(*model.Quiz)
	}{
		{"inactive", func(q *model.Quiz) { q.IsActive = false }},
		{"before window", func(q *model.Quiz) { q.StartsAt = &later }},
		{"after window", func(q *model.Quiz) {
			earlier := time.Date(2025, 3, 9, 0, 0, 0, 0, time.UTC)
			q.EndsAt = &earlier
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, tc.mutate)
			_, err := f.svc.Create(context.Background(), f.snap.Quiz.ID, 42)
			if !errors.Is(err, ErrQuizUnavailable) {
				t.Fatalf("got %v, want ErrQuizUnavailable", err)
			}
		})
	}
}

// ────────────────────────────────────────────────────────────────────────────
// Ownership
// ────────────────────────────────────────────────────────────────────────────

func TestForeignAttemptLooksMissing(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	attempt := f.start(t, 42)

	if _, err := f.svc.ListQuestions(ctx, attempt.ID, 99); !errors.Is(err, ErrAttemptNotFound) {
		t.Errorf("ListQuestions as stranger: got %v, want ErrAttemptNotFound", err)
	}
	if _, err := f.svc.GetStatus(ctx, attempt.ID, 99); !errors.Is(err, ErrAttemptNotFound) {
		t.Errorf("GetStatus as stranger: got %v, want ErrAttemptNotFound", err)
	}
	if _, err := f.svc.Finalize(ctx, attempt.ID, 99); !errors.Is(err, ErrAttemptNotFound) {
		t.Errorf("Finalize as stranger: got %v, want ErrAttemptNotFound", err)
	}
	if _, err := f.svc.GetStatus(ctx, uuid.New(), 42); !errors.Is(err, ErrAttemptNotFound) {
		t.Errorf("GetStatus on random id: got %v, want ErrAttemptNotFound", err)
	}
}

// ────────────────────────────────────────────────────────────────────────────
// Question order
// ────────────────────────────────────────────────────────────────────────────

func TestQuestionOrderEstablishedOnceAndStable(t *testing.T) {
	f := newFixture(t, func(q *model.Quiz) { q.RandomizeQuestions = true })
	ctx := context.Background()
	attempt := f.start(t, 42)

	first, err := f.svc.ListQuestions(ctx, attempt.ID, 42)
	if err != nil {
		t.Fatalf("ListQuestions: %v", err)
	}
	if len(first) != 3 {
		t.Fatalf("got %d questions, want 3", len(first))
	}

	seen := make(map[uuid.UUID]bool)
	for _, q := range first {
		seen[q.ID] = true
	}
	for _, id := range []uuid.UUID{q1ID, q2ID, q3ID} {
		if !seen[id] {
			t.Fatalf("question %s missing from shuffled order", id)
		}
	}

	for i := 0; i < 5; i++ {
		again, err := f.svc.ListQuestions(ctx, attempt.ID, 42)
		if err != nil {
			t.Fatalf("ListQuestions #%d: %v", i, err)
		}
		for j := range first {
			if again[j].ID != first[j].ID {
				t.Fatalf("order changed between calls at position %d", j)
			}
		}
	}
}

func TestQuestionOrderAuthoredWhenNotRandomized(t *testing.T) {
	f := newFixture(t, nil)
	attempt := f.start(t, 42)

	qs, err := f.svc.ListQuestions(context.Background(), attempt.ID, 42)
	if err != nil {
		t.Fatalf("ListQuestions: %v", err)
	}
	want := []uuid.UUID{q1ID, q2ID, q3ID}
	for i, q := range qs {
		if q.ID != want[i] {
			t.Fatalf("position %d: got %s, want %s", i, q.ID, want[i])
		}
	}
}

func TestQuestionListHidesOptions(t *testing.T) {
	f := newFixture(t, nil)
	attempt := f.start(t, 42)

	view, err := f.svc.GetQuestion(context.Background(), attempt.ID, 42, q1ID)
	if err != nil {
		t.Fatalf("GetQuestion: %v", err)
	}
	if len(view.Options) != 2 {
		t.Fatalf("got %d options, want 2", len(view.Options))
	}
	// Correctness must not leak through the delivery view; OptionForStudent
	// has no correctness field, so marshaling it can never expose one.
	for _, o := range view.Options {
		if o.OptionText == "" || o.ID == uuid.Nil {
			t.Fatalf("malformed option view: %+v", o)
		}
	}
}

func TestOptionOrderStablePerAttempt(t *testing.T) {
	f := newFixture(t, func(q *model.Quiz) { q.ShuffleOptions = true })
	ctx := context.Background()
	attempt := f.start(t, 42)

	first, err := f.svc.GetQuestion(ctx, attempt.ID, 42, q2ID)
	if err != nil {
		t.Fatalf("GetQuestion: %v", err)
	}
	for i := 0; i < 5; i++ {
		again, err := f.svc.GetQuestion(ctx, attempt.ID, 42, q2ID)
		if err != nil {
			t.Fatalf("GetQuestion #%d: %v", i, err)
		}
		for j := range first.Options {
			if again.Options[j].ID != first.Options[j].ID {
				t.Fatalf("option order changed between fetches at position %d", j)
			}
		}
	}
}

// ────────────────────────────────────────────────────────────────────────────
// Answer semantics
// ────────────────────────────────────────────────────────────────────────────

func TestSaveAnswerReplacesPreviousSelection(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	attempt := f.start(t, 42)

	f.save(t, attempt.ID, 42, q2ID, model.SaveAnswerRequest{OptionIDs: []uuid.UUID{optC, optD}})
	f.save(t, attempt.ID, 42, q2ID, model.SaveAnswerRequest{OptionIDs: []uuid.UUID{optE}})

	view, err := f.svc.GetQuestion(ctx, attempt.ID, 42, q2ID)
	if err != nil {
		t.Fatalf("GetQuestion: %v", err)
	}
	if view.CurrentAnswer == nil {
		t.Fatal("no current answer after save")
	}
	if len(view.CurrentAnswer.SelectedOptionIDs) != 1 || view.CurrentAnswer.SelectedOptionIDs[0] != optE {
		t.Fatalf("got selection %v, want [%s]", view.CurrentAnswer.SelectedOptionIDs, optE)
	}

	all, _ := f.answers.ListByAttempt(ctx, attempt.ID)
	if len(all) != 1 {
		t.Fatalf("got %d answer rows, want 1", len(all))
	}
}

func TestSaveAnswerDropsForeignAndDuplicateOptions(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	attempt := f.start(t, 42)

	// optC belongs to Q2, not Q1; the duplicate optA collapses silently.
	dropped, err := f.svc.SaveAnswer(ctx, attempt.ID, 42, q1ID, model.SaveAnswerRequest{
		OptionIDs: []uuid.UUID{optA, optC, optA, uuid.New()},
	})
	if err != nil {
		t.Fatalf("SaveAnswer: %v", err)
	}
	if dropped != 2 {
		t.Fatalf("dropped = %d, want 2", dropped)
	}

	stored, err := f.answers.Get(ctx, attempt.ID, q1ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(stored.SelectedOptionIDs) != 1 || stored.SelectedOptionIDs[0] != optA {
		t.Fatalf("got selection %v, want [%s]", stored.SelectedOptionIDs, optA)
	}
}

func TestSaveAnswerUnknownQuestion(t *testing.T) {
	f := newFixture(t, nil)
	attempt := f.start(t, 42)

	_, err := f.svc.SaveAnswer(context.Background(), attempt.ID, 42, uuid.New(), model.SaveAnswerRequest{Text: "?"})
	if !errors.Is(err, ErrQuestionNotFound) {
		t.Fatalf("got %v, want ErrQuestionNotFound", err)
	}
}

// raceFinalizeStore completes the attempt right before the first answer
// write goes through, like a status poll or a second tab finalizing after
// the service already checked writability.
type raceFinalizeStore struct {
	*memAnswerStore
	svc       *AttemptService
	studentID int
	once      sync.Once
	result    *model.AttemptResult
	err       error
}

func (s *raceFinalizeStore) Upsert(ctx context.Context, a *model.Answer) (bool, error) {
	s.once.Do(func() {
		s.result, s.err = s.svc.Finalize(ctx, a.AttemptID, s.studentID)
	})
	return s.memAnswerStore.Upsert(ctx, a)
}

func TestSaveAnswerLosesToRacingFinalize(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	attempt := f.start(t, 42)

	racing := &raceFinalizeStore{memAnswerStore: f.answers, svc: f.svc, studentID: 42}
	svc := NewAttemptService(
		f.attempts,
		racing,
		&memSnapshotSource{snapshots: map[uuid.UUID]*model.QuizSnapshot{f.snap.Quiz.ID: f.snap}},
		f.clock,
		zerolog.Nop(),
	)

	_, err := svc.SaveAnswer(ctx, attempt.ID, 42, q1ID, model.SaveAnswerRequest{OptionIDs: []uuid.UUID{optA}})
	if !errors.Is(err, ErrAlreadyCompleted) {
		t.Fatalf("racing save: got %v, want ErrAlreadyCompleted", err)
	}
	if racing.err != nil {
		t.Fatalf("mid-save finalize: %v", racing.err)
	}

	// The frozen result saw no answers, and the losing write left no row
	// behind it.
	if racing.result.Score != 0 {
		t.Fatalf("finalized score = %v, want 0", racing.result.Score)
	}
	if _, err := f.answers.Get(ctx, attempt.ID, q1ID); !errors.Is(err, pgx.ErrNoRows) {
		t.Fatalf("answer written after completion: %v", err)
	}
}

// ────────────────────────────────────────────────────────────────────────────
// Expiry
// ────────────────────────────────────────────────────────────────────────────

func TestExpiredWriteFinalizesFirst(t *testing.T) {
	f := newFixture(t, nil) // 1 minute duration
	ctx := context.Background()
	attempt := f.start(t, 42)

	f.save(t, attempt.ID, 42, q1ID, model.SaveAnswerRequest{OptionIDs: []uuid.UUID{optA}})

	f.advance(61 * time.Second)

	_, err := f.svc.SaveAnswer(ctx, attempt.ID, 42, q2ID, model.SaveAnswerRequest{OptionIDs: []uuid.UUID{optC, optD}})
	if !errors.Is(err, ErrAttemptExpired) {
		t.Fatalf("late save: got %v, want ErrAttemptExpired", err)
	}

	// The late save must not have landed, and the attempt must now be
	// completed with only the pre-deadline answer scored.
	status, err := f.svc.GetStatus(ctx, attempt.ID, 42)
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	if !status.Completed {
		t.Fatal("attempt not completed after expiry")
	}
	if status.Score == nil || *status.Score != 2 {
		t.Fatalf("score = %v, want 2", status.Score)
	}
	if _, err := f.answers.Get(ctx, attempt.ID, q2ID); !errors.Is(err, pgx.ErrNoRows) {
		t.Fatalf("late answer was stored: %v", err)
	}
}

func TestStatusReportsRemainingAndDetectsExpiry(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	attempt := f.start(t, 42)

	status, err := f.svc.GetStatus(ctx, attempt.ID, 42)
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	if status.Completed || status.RemainingSeconds != 60 {
		t.Fatalf("fresh attempt: completed=%v remaining=%d, want false/60", status.Completed, status.RemainingSeconds)
	}

	f.advance(25 * time.Second)
	status, _ = f.svc.GetStatus(ctx, attempt.ID, 42)
	if status.RemainingSeconds != 35 {
		t.Fatalf("remaining = %d, want 35", status.RemainingSeconds)
	}

	f.advance(35 * time.Second)
	status, err = f.svc.GetStatus(ctx, attempt.ID, 42)
	if err != nil {
		t.Fatalf("GetStatus at deadline: %v", err)
	}
	if !status.Completed {
		t.Fatal("attempt not finalized at deadline")
	}
}

func TestFinalizeExpiredRefusesLiveAttempt(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	attempt := f.start(t, 42)

	if err := f.svc.FinalizeExpired(ctx, attempt.ID); !errors.Is(err, ErrNotCompleted) {
		t.Fatalf("got %v, want ErrNotCompleted", err)
	}

	f.advance(2 * time.Minute)
	if err := f.svc.FinalizeExpired(ctx, attempt.ID); err != nil {
		t.Fatalf("FinalizeExpired: %v", err)
	}
	// Second sweep over the same attempt is a no-op.
	if err := f.svc.FinalizeExpired(ctx, attempt.ID); err != nil {
		t.Fatalf("repeat FinalizeExpired: %v", err)
	}
}

// ────────────────────────────────────────────────────────────────────────────
// Finalize
// ────────────────────────────────────────────────────────────────────────────

func TestFinalizeScoresAndFreezes(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	attempt := f.start(t, 42)

	f.save(t, attempt.ID, 42, q1ID, model.SaveAnswerRequest{OptionIDs: []uuid.UUID{optA}})
	f.save(t, attempt.ID, 42, q2ID, model.SaveAnswerRequest{OptionIDs: []uuid.UUID{optC, optD}})

	result, err := f.svc.Finalize(ctx, attempt.ID, 42)
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if result.Score != 5 || result.Total != 5 || result.Percentage != 100 || !result.Passed {
		t.Fatalf("result = %+v, want score 5 / total 5 / 100%% / passed", result)
	}

	// Writes after completion are rejected.
	if _, err := f.svc.SaveAnswer(ctx, attempt.ID, 42, q3ID, model.SaveAnswerRequest{Text: "late"}); !errors.Is(err, ErrAlreadyCompleted) {
		t.Fatalf("post-finalize save: got %v, want ErrAlreadyCompleted", err)
	}

	// A second finalize returns the stored result unchanged.
	again, err := f.svc.Finalize(ctx, attempt.ID, 42)
	if err != nil {
		t.Fatalf("repeat Finalize: %v", err)
	}
	if *again != *result {
		t.Fatalf("repeat finalize drifted: %+v vs %+v", again, result)
	}
}

func TestFinalizeCountsAnsweredQuestionsOnly(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	attempt := f.start(t, 42)

	// Only Q1 answered: total is 2, not the quiz-wide 10.
	f.save(t, attempt.ID, 42, q1ID, model.SaveAnswerRequest{OptionIDs: []uuid.UUID{optA}})

	result, err := f.svc.Finalize(ctx, attempt.ID, 42)
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if result.Score != 2 || result.Total != 2 || result.Percentage != 100 {
		t.Fatalf("result = %+v, want 2/2 at 100%%", result)
	}
}

func TestFinalizeShortAnswerNeedsReview(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	attempt := f.start(t, 42)

	f.save(t, attempt.ID, 42, q1ID, model.SaveAnswerRequest{OptionIDs: []uuid.UUID{optA}})
	f.save(t, attempt.ID, 42, q3ID, model.SaveAnswerRequest{Text: "superposition holds"})

	result, err := f.svc.Finalize(ctx, attempt.ID, 42)
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	// Short answer contributes marks to the total but never to the score.
	if result.Score != 2 || result.Total != 7 {
		t.Fatalf("result = %+v, want score 2 / total 7", result)
	}

	_, reviews, err := f.svc.Result(ctx, attempt.ID, 42)
	if err != nil {
		t.Fatalf("Result: %v", err)
	}
	var short *model.AnswerReview
	for i := range reviews {
		if reviews[i].Question.ID == q3ID {
			short = &reviews[i]
		}
	}
	if short == nil {
		t.Fatal("short answer missing from review")
	}
	if !short.NeedsReview || short.IsCorrect != nil {
		t.Fatalf("short answer review = %+v, want needs_review with no verdict", short)
	}
}

func TestFinalizeConcurrentSingleWinner(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	attempt := f.start(t, 42)

	f.save(t, attempt.ID, 42, q1ID, model.SaveAnswerRequest{OptionIDs: []uuid.UUID{optA}})

	const callers = 16
	results := make([]*model.AttemptResult, callers)
	errs := make([]error, callers)

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = f.svc.Finalize(ctx, attempt.ID, 42)
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		if errs[i] != nil {
			t.Fatalf("caller %d: %v", i, errs[i])
		}
		if *results[i] != *results[0] {
			t.Fatalf("caller %d disagrees: %+v vs %+v", i, results[i], results[0])
		}
	}

	stored, _ := f.attempts.GetByID(ctx, attempt.ID)
	if !stored.IsCompleted || *stored.Score != 2 {
		t.Fatalf("stored attempt = %+v, want completed with score 2", stored)
	}
}

// ────────────────────────────────────────────────────────────────────────────
// Results
// ────────────────────────────────────────────────────────────────────────────

func TestResultRequiresCompletion(t *testing.T) {
	f := newFixture(t, nil)
	attempt := f.start(t, 42)

	_, _, err := f.svc.Result(context.Background(), attempt.ID, 42)
	if !errors.Is(err, ErrNotCompleted) {
		t.Fatalf("got %v, want ErrNotCompleted", err)
	}
}

func TestResultWithholdsBreakdownWhenConfigured(t *testing.T) {
	f := newFixture(t, func(q *model.Quiz) { q.ShowResultsImmediately = false })
	ctx := context.Background()
	attempt := f.start(t, 42)

	f.save(t, attempt.ID, 42, q1ID, model.SaveAnswerRequest{OptionIDs: []uuid.UUID{optA}})
	if _, err := f.svc.Finalize(ctx, attempt.ID, 42); err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	result, reviews, err := f.svc.Result(ctx, attempt.ID, 42)
	if err != nil {
		t.Fatalf("Result: %v", err)
	}
	if result.Score != 2 {
		t.Fatalf("score = %v, want 2", result.Score)
	}
	if reviews != nil {
		t.Fatalf("breakdown leaked despite show_results_immediately=false: %+v", reviews)
	}
}
