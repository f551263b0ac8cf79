package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/quizdesk/quizdesk-backend/internal/model"
	"github.com/quizdesk/quizdesk-backend/internal/scoring"
	"github.com/quizdesk/quizdesk-backend/internal/shuffle"
	"github.com/quizdesk/quizdesk-backend/internal/timing"
	"github.com/rs/zerolog"
)

// Attempt flow errors. NotFound deliberately covers both "no such attempt"
// and "someone else's attempt" so ids cannot be probed. Expired and
// AlreadyCompleted are steady-state signals the caller branches on, not
// failures.
var (
	ErrQuizUnavailable  = errors.New("quiz is not available for attempts")
	ErrQuotaExceeded    = errors.New("attempt quota exceeded")
	ErrAttemptNotFound  = errors.New("attempt not found")
	ErrQuestionNotFound = errors.New("question not found")
	ErrAttemptExpired   = errors.New("attempt deadline has passed")
	ErrAlreadyCompleted = errors.New("attempt is already completed")
	ErrNotCompleted     = errors.New("attempt is not completed yet")
)

// AttemptStore is the persistence surface the state machine needs from
// attempts. *repository.AttemptRepository implements it.
type AttemptStore interface {
	Create(ctx context.Context, a *model.Attempt) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Attempt, error)
	CountByQuizAndStudent(ctx context.Context, quizID uuid.UUID, studentID int) (int, error)
	SetQuestionOrderIfUnset(ctx context.Context, attemptID uuid.UUID, order []uuid.UUID) (bool, error)
	CompleteIfPending(ctx context.Context, attemptID uuid.UUID, score, percentage float64, passed bool, finishedAt time.Time) (bool, error)
}

// AnswerStore is the persistence surface for answers.
// *repository.AnswerRepository implements it.
type AnswerStore interface {
	// Upsert writes the answer only while its attempt is still pending and
	// reports whether the write happened.
	Upsert(ctx context.Context, a *model.Answer) (bool, error)
	Get(ctx context.Context, attemptID, questionID uuid.UUID) (*model.Answer, error)
	ListByAttempt(ctx context.Context, attemptID uuid.UUID) ([]model.Answer, error)
	BulkSetCorrectness(ctx context.Context, attemptID uuid.UUID, verdicts map[uuid.UUID]*bool) error
}

// SnapshotSource provides the frozen quiz view. *QuizService implements it.
type SnapshotSource interface {
	Snapshot(ctx context.Context, quizID uuid.UUID) (*model.QuizSnapshot, error)
}

// AttemptService is the timed-attempt state machine: CREATED →
// IN_PROGRESS → COMPLETED, with COMPLETED terminal.
//
// The deadline is re-evaluated against the persisted start time on every
// operation — never cached, never taken from the client. Any operation
// that observes an expired deadline finalizes the attempt before
// reporting, so expiry always wins over a racing write. Coordination
// happens entirely through the store's conditional updates; the service
// holds no mutable state of its own.
type AttemptService struct {
	attempts AttemptStore
	answers  AnswerStore
	quizzes  SnapshotSource
	now      func() time.Time
	log      zerolog.Logger
}

// NewAttemptService creates a new AttemptService. A nil clock defaults to
// time.Now; tests inject a fake to steer the deadline.
func NewAttemptService(
	attempts AttemptStore,
	answers AnswerStore,
	quizzes SnapshotSource,
	clock func() time.Time,
	log zerolog.Logger,
) *AttemptService {
	if clock == nil {
		clock = time.Now
	}
	return &AttemptService{
		attempts: attempts,
		answers:  answers,
		quizzes:  quizzes,
		now:      clock,
		log:      log.With().Str("component", "attempt_service").Logger(),
	}
}

// Create starts a new attempt for (quiz, student). Preconditions: the quiz
// is available right now and the student has quota left. Policy failures
// surface as typed errors and are never retried here.
func (s *AttemptService) Create(ctx context.Context, quizID uuid.UUID, studentID int) (*model.Attempt, error) {
	snap, err := s.quizzes.Snapshot(ctx, quizID)
	if err != nil {
		return nil, err
	}

	if !snap.Quiz.AvailableAt(s.now()) {
		return nil, ErrQuizUnavailable
	}

	used, err := s.attempts.CountByQuizAndStudent(ctx, quizID, studentID)
	if err != nil {
		return nil, fmt.Errorf("count attempts: %w", err)
	}
	if used >= snap.Quiz.MaxAttempts {
		return nil, ErrQuotaExceeded
	}

	attempt := &model.Attempt{QuizID: quizID, StudentID: studentID}
	if err := s.attempts.Create(ctx, attempt); err != nil {
		return nil, fmt.Errorf("create attempt: %w", err)
	}

	s.log.Info().
		Str("attempt_id", attempt.ID.String()).
		Str("quiz_id", quizID.String()).
		Int("student_id", studentID).
		Msg("Attempt started")

	return attempt, nil
}

// ListQuestions returns the attempt's questions in their per-attempt order,
// stripped of options and correctness. The order is established once, on
// the first call, and persisted; every later call returns the same order.
func (s *AttemptService) ListQuestions(ctx context.Context, attemptID uuid.UUID, studentID int) ([]model.QuestionForStudent, error) {
	attempt, snap, err := s.openAttempt(ctx, attemptID, studentID)
	if err != nil {
		return nil, err
	}

	order, err := s.establishOrder(ctx, attempt, snap)
	if err != nil {
		return nil, err
	}

	out := make([]model.QuestionForStudent, 0, len(order))
	for _, id := range order {
		q := snap.Question(id)
		if q == nil {
			continue
		}
		out = append(out, model.QuestionForStudent{
			ID:           q.ID,
			QuestionText: q.QuestionText,
			QuestionType: q.QuestionType,
			Marks:        q.Marks,
			IsRequired:   q.IsRequired,
		})
	}
	return out, nil
}

// GetQuestion returns one question with its options (ids and text only,
// shuffled when the quiz asks for it) and the student's current answer.
func (s *AttemptService) GetQuestion(ctx context.Context, attemptID uuid.UUID, studentID int, questionID uuid.UUID) (*model.AttemptQuestion, error) {
	attempt, snap, err := s.openAttempt(ctx, attemptID, studentID)
	if err != nil {
		return nil, err
	}

	q := snap.Question(questionID)
	if q == nil {
		return nil, ErrQuestionNotFound
	}

	view := &model.AttemptQuestion{
		Question: model.QuestionForStudent{
			ID:           q.ID,
			QuestionText: q.QuestionText,
			QuestionType: q.QuestionType,
			Marks:        q.Marks,
			IsRequired:   q.IsRequired,
		},
	}

	// Option order is derived from a seed on (attempt, question): stable
	// across repeated fetches without persisting anything.
	idx := make([]int, len(q.Options))
	for i := range idx {
		idx[i] = i
	}
	if snap.Quiz.ShuffleOptions {
		idx = shuffle.PermuteOptions(shuffle.OptionSeed(attempt.ID, q.ID), len(q.Options))
	}
	for _, i := range idx {
		view.Options = append(view.Options, model.OptionForStudent{
			ID:         q.Options[i].ID,
			OptionText: q.Options[i].OptionText,
		})
	}

	answer, err := s.answers.Get(ctx, attempt.ID, q.ID)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("get answer: %w", err)
	}
	if answer != nil {
		view.CurrentAnswer = answer
	}

	return view, nil
}

// SaveAnswer records the student's current response to one question with
// full-replace semantics. Option ids that do not belong to the question are
// dropped, not fatal; the dropped count is returned for observability.
// A save that arrives after the deadline finalizes the attempt and reports
// ErrAttemptExpired instead of saving — expiry always beats a racing write.
// The store itself refuses writes to completed attempts, so a finalize that
// lands mid-save can never be followed by a late answer row.
func (s *AttemptService) SaveAnswer(ctx context.Context, attemptID uuid.UUID, studentID int, questionID uuid.UUID, req model.SaveAnswerRequest) (int, error) {
	attempt, snap, err := s.openAttempt(ctx, attemptID, studentID)
	if err != nil {
		return 0, err
	}

	q := snap.Question(questionID)
	if q == nil {
		return 0, ErrQuestionNotFound
	}

	answer := &model.Answer{AttemptID: attempt.ID, QuestionID: questionID}

	dropped := 0
	if q.QuestionType.Choice() {
		kept := make([]uuid.UUID, 0, len(req.OptionIDs))
		seen := make(map[uuid.UUID]struct{}, len(req.OptionIDs))
		for _, id := range req.OptionIDs {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			if q.Option(id) == nil {
				dropped++
				continue
			}
			kept = append(kept, id)
		}
		answer.SelectedOptionIDs = kept
	} else {
		answer.TextAnswer = req.Text
	}

	if dropped > 0 {
		s.log.Warn().
			Str("attempt_id", attempt.ID.String()).
			Str("question_id", questionID.String()).
			Int("dropped", dropped).
			Msg("Dropped option ids not belonging to question")
	}

	applied, err := s.answers.Upsert(ctx, answer)
	if err != nil {
		return 0, fmt.Errorf("save answer: %w", err)
	}
	if !applied {
		// A finalize landed between the writability check and the write.
		// Report the terminal state exactly as openAttempt would have.
		if timing.Expired(attempt.StartedAt, snap.Quiz.DurationMinutes, s.now()) {
			return 0, ErrAttemptExpired
		}
		return 0, ErrAlreadyCompleted
	}
	return dropped, nil
}

// GetStatus reports completion and the freshly evaluated remaining time.
// Polling this endpoint is what detects expiry for idle attempts: the
// first status call past the deadline finalizes the attempt.
func (s *AttemptService) GetStatus(ctx context.Context, attemptID uuid.UUID, studentID int) (*model.AttemptStatus, error) {
	attempt, err := s.getOwned(ctx, attemptID, studentID)
	if err != nil {
		return nil, err
	}

	status := &model.AttemptStatus{AttemptID: attempt.ID}

	if attempt.IsCompleted {
		status.Completed = true
		status.Score = attempt.Score
		status.Percentage = attempt.Percentage
		status.IsPassed = attempt.IsPassed
		return status, nil
	}

	snap, err := s.quizzes.Snapshot(ctx, attempt.QuizID)
	if err != nil {
		return nil, err
	}

	remaining := timing.Remaining(attempt.StartedAt, snap.Quiz.DurationMinutes, s.now())
	if remaining > 0 {
		status.RemainingSeconds = remaining
		return status, nil
	}

	// Deadline passed while the attempt was open: finalize now and report
	// the terminal state.
	result, err := s.finalize(ctx, attempt, snap)
	if err != nil {
		return nil, err
	}
	status.Completed = true
	status.Score = &result.Score
	status.Percentage = &result.Percentage
	status.IsPassed = &result.Passed
	return status, nil
}

// Finalize submits the attempt: computes the score over the answers stored
// right now, freezes it, and returns the result. Idempotent — a completed
// attempt returns its stored result without a second scoring pass, and
// concurrent callers all settle on the one result that won the conditional
// update.
func (s *AttemptService) Finalize(ctx context.Context, attemptID uuid.UUID, studentID int) (*model.AttemptResult, error) {
	attempt, err := s.getOwned(ctx, attemptID, studentID)
	if err != nil {
		return nil, err
	}

	snap, err := s.quizzes.Snapshot(ctx, attempt.QuizID)
	if err != nil {
		return nil, err
	}

	if attempt.IsCompleted {
		return s.storedResult(ctx, attempt, snap)
	}
	return s.finalize(ctx, attempt, snap)
}

// FinalizeExpired finalizes an attempt on behalf of the system (expiry
// sweep), bypassing ownership. It refuses attempts whose deadline has not
// actually passed and is a no-op for completed ones.
func (s *AttemptService) FinalizeExpired(ctx context.Context, attemptID uuid.UUID) error {
	attempt, err := s.attempts.GetByID(ctx, attemptID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrAttemptNotFound
		}
		return err
	}
	if attempt.IsCompleted {
		return nil
	}

	snap, err := s.quizzes.Snapshot(ctx, attempt.QuizID)
	if err != nil {
		return err
	}
	if !timing.Expired(attempt.StartedAt, snap.Quiz.DurationMinutes, s.now()) {
		return ErrNotCompleted
	}

	_, err = s.finalize(ctx, attempt, snap)
	return err
}

// Result returns the frozen outcome of a completed attempt, with the
// per-question review attached when the quiz shows results immediately.
func (s *AttemptService) Result(ctx context.Context, attemptID uuid.UUID, studentID int) (*model.AttemptResult, []model.AnswerReview, error) {
	attempt, err := s.getOwned(ctx, attemptID, studentID)
	if err != nil {
		return nil, nil, err
	}
	if !attempt.IsCompleted {
		return nil, nil, ErrNotCompleted
	}

	snap, err := s.quizzes.Snapshot(ctx, attempt.QuizID)
	if err != nil {
		return nil, nil, err
	}

	result, err := s.storedResult(ctx, attempt, snap)
	if err != nil {
		return nil, nil, err
	}

	if !snap.Quiz.ShowResultsImmediately {
		return result, nil, nil
	}

	answers, err := s.answers.ListByAttempt(ctx, attempt.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("list answers: %w", err)
	}

	reviews := make([]model.AnswerReview, 0, len(answers))
	for i := range answers {
		a := &answers[i]
		q := snap.Question(a.QuestionID)
		if q == nil {
			continue
		}
		reviews = append(reviews, model.AnswerReview{
			Question: model.QuestionForStudent{
				ID:           q.ID,
				QuestionText: q.QuestionText,
				QuestionType: q.QuestionType,
				Marks:        q.Marks,
				IsRequired:   q.IsRequired,
			},
			SelectedOptions: a.SelectedOptionIDs,
			CorrectOptions:  q.CorrectOptionIDs(),
			TextAnswer:      a.TextAnswer,
			IsCorrect:       a.IsCorrect,
			NeedsReview:     q.QuestionType == model.QuestionTypeShortAnswer,
		})
	}
	return result, reviews, nil
}

// ────────────────────────────────────────────────────────────────────────────
// Internals
// ────────────────────────────────────────────────────────────────────────────

// getOwned loads an attempt and enforces ownership. A missing attempt and
// another student's attempt are the same error by design.
func (s *AttemptService) getOwned(ctx context.Context, attemptID uuid.UUID, studentID int) (*model.Attempt, error) {
	attempt, err := s.attempts.GetByID(ctx, attemptID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAttemptNotFound
		}
		return nil, err
	}
	if attempt.StudentID != studentID {
		return nil, ErrAttemptNotFound
	}
	return attempt, nil
}

// openAttempt loads an owned attempt that must still be writable: not
// completed and not past its deadline. An expired attempt is finalized
// here before ErrAttemptExpired is reported.
func (s *AttemptService) openAttempt(ctx context.Context, attemptID uuid.UUID, studentID int) (*model.Attempt, *model.QuizSnapshot, error) {
	attempt, err := s.getOwned(ctx, attemptID, studentID)
	if err != nil {
		return nil, nil, err
	}
	if attempt.IsCompleted {
		return nil, nil, ErrAlreadyCompleted
	}

	snap, err := s.quizzes.Snapshot(ctx, attempt.QuizID)
	if err != nil {
		return nil, nil, err
	}

	if timing.Expired(attempt.StartedAt, snap.Quiz.DurationMinutes, s.now()) {
		if _, err := s.finalize(ctx, attempt, snap); err != nil {
			return nil, nil, err
		}
		return nil, nil, ErrAttemptExpired
	}

	return attempt, snap, nil
}

// establishOrder returns the per-attempt question order, creating and
// persisting it on first access. Losing the first-write race is fine: the
// stored order is read back, so all callers agree.
func (s *AttemptService) establishOrder(ctx context.Context, attempt *model.Attempt, snap *model.QuizSnapshot) ([]uuid.UUID, error) {
	if attempt.QuestionOrder != nil {
		return attempt.QuestionOrder, nil
	}

	order := snap.QuestionIDs()
	if snap.Quiz.RandomizeQuestions {
		order = shuffle.Permute(shuffle.AttemptSeed(attempt.ID), order)
	}

	won, err := s.attempts.SetQuestionOrderIfUnset(ctx, attempt.ID, order)
	if err != nil {
		return nil, fmt.Errorf("persist question order: %w", err)
	}
	if !won {
		stored, err := s.attempts.GetByID(ctx, attempt.ID)
		if err != nil {
			return nil, fmt.Errorf("re-read question order: %w", err)
		}
		return stored.QuestionOrder, nil
	}
	return order, nil
}

// finalize runs the single scoring pass and freezes the result through the
// store's conditional update. If another finalize won the race first, the
// stored result is returned instead — never a second scoring pass.
func (s *AttemptService) finalize(ctx context.Context, attempt *model.Attempt, snap *model.QuizSnapshot) (*model.AttemptResult, error) {
	answers, err := s.answers.ListByAttempt(ctx, attempt.ID)
	if err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}

	out := scoring.Score(snap, answers)

	applied, err := s.attempts.CompleteIfPending(ctx, attempt.ID,
		float64(out.Earned), scoring.Round2(out.Percentage), out.Passed, s.now())
	if err != nil {
		return nil, fmt.Errorf("complete attempt: %w", err)
	}

	if !applied {
		// A concurrent finalize won; report its result.
		stored, err := s.attempts.GetByID(ctx, attempt.ID)
		if err != nil {
			return nil, fmt.Errorf("re-read completed attempt: %w", err)
		}
		return s.storedResult(ctx, stored, snap)
	}

	// Stamp verdicts for the result review. Best effort: the frozen score
	// is already durable.
	if err := s.answers.BulkSetCorrectness(ctx, attempt.ID, out.Verdicts); err != nil {
		s.log.Warn().Err(err).Str("attempt_id", attempt.ID.String()).Msg("Verdict stamping failed")
	}

	s.log.Info().
		Str("attempt_id", attempt.ID.String()).
		Int("earned", out.Earned).
		Int("total", out.Total).
		Float64("percentage", scoring.Round2(out.Percentage)).
		Bool("passed", out.Passed).
		Msg("Attempt finalized")

	return &model.AttemptResult{
		AttemptID:  attempt.ID,
		Score:      float64(out.Earned),
		Total:      out.Total,
		Percentage: scoring.Round2(out.Percentage),
		Passed:     out.Passed,
	}, nil
}

// storedResult rebuilds the result view of a completed attempt from its
// frozen fields. The total is derived from the (immutable) answered set;
// the score itself is never recomputed.
func (s *AttemptService) storedResult(ctx context.Context, attempt *model.Attempt, snap *model.QuizSnapshot) (*model.AttemptResult, error) {
	if attempt.Score == nil || attempt.Percentage == nil || attempt.IsPassed == nil {
		return nil, fmt.Errorf("attempt %s completed without result fields", attempt.ID)
	}

	answers, err := s.answers.ListByAttempt(ctx, attempt.ID)
	if err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}
	total := 0
	for i := range answers {
		if q := snap.Question(answers[i].QuestionID); q != nil {
			total += q.Marks
		}
	}

	return &model.AttemptResult{
		AttemptID:  attempt.ID,
		Score:      *attempt.Score,
		Total:      total,
		Percentage: *attempt.Percentage,
		Passed:     *attempt.IsPassed,
	}, nil
}
