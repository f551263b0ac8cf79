package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/quizdesk/quizdesk-backend/internal/model"
)

// AttemptRepository handles attempt data access. The attempt row is the
// serialization point for the whole flow: completion is flipped with a
// conditional UPDATE so that at most one finalize ever takes effect.
type AttemptRepository struct {
	pool *pgxpool.Pool
}

// NewAttemptRepository creates a new AttemptRepository.
func NewAttemptRepository(pool *pgxpool.Pool) *AttemptRepository {
	return &AttemptRepository{pool: pool}
}

// Create inserts a new attempt. started_at is assigned by the database so
// the deadline is anchored to server time, never the caller's clock.
func (r *AttemptRepository) Create(ctx context.Context, a *model.Attempt) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO attempts (quiz_id, student_id)
		 VALUES ($1, $2)
		 RETURNING id, started_at`,
		a.QuizID, a.StudentID,
	).Scan(&a.ID, &a.StartedAt)
}

// GetByID retrieves an attempt by id.
func (r *AttemptRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Attempt, error) {
	a := &model.Attempt{}
	var orderRaw []byte
	err := r.pool.QueryRow(ctx,
		`SELECT id, quiz_id, student_id, started_at, finished_at,
		        is_completed, score, percentage, is_passed, question_order
		 FROM attempts
		 WHERE id = $1`, id,
	).Scan(&a.ID, &a.QuizID, &a.StudentID, &a.StartedAt, &a.FinishedAt,
		&a.IsCompleted, &a.Score, &a.Percentage, &a.IsPassed, &orderRaw)
	if err != nil {
		return nil, err
	}
	if len(orderRaw) > 0 {
		if err := json.Unmarshal(orderRaw, &a.QuestionOrder); err != nil {
			return nil, fmt.Errorf("decode question order: %w", err)
		}
	}
	return a, nil
}

// CountByQuizAndStudent returns how many attempts the student has already
// created for the quiz, completed or not. Used for quota enforcement.
func (r *AttemptRepository) CountByQuizAndStudent(ctx context.Context, quizID uuid.UUID, studentID int) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM attempts WHERE quiz_id = $1 AND student_id = $2`,
		quizID, studentID,
	).Scan(&n)
	return n, err
}

// SetQuestionOrderIfUnset persists the question order for an attempt, but
// only if no order has been stored yet. Returns true if this call won the
// write; a false return means another request got there first and the
// caller should re-read the stored order.
func (r *AttemptRepository) SetQuestionOrderIfUnset(ctx context.Context, attemptID uuid.UUID, order []uuid.UUID) (bool, error) {
	raw, err := json.Marshal(order)
	if err != nil {
		return false, fmt.Errorf("encode question order: %w", err)
	}
	tag, err := r.pool.Exec(ctx,
		`UPDATE attempts
		 SET question_order = $1
		 WHERE id = $2 AND question_order IS NULL`,
		raw, attemptID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// CompleteIfPending flips the attempt to completed and freezes its result,
// but only if it is not completed yet ("set completed only if not
// completed" is the write-once invariant). Returns true if this call
// applied the result; false means a concurrent finalize already won and
// the stored result must be read back instead.
func (r *AttemptRepository) CompleteIfPending(ctx context.Context, attemptID uuid.UUID, score, percentage float64, passed bool, finishedAt time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE attempts
		 SET is_completed = TRUE,
		     score = $1,
		     percentage = $2,
		     is_passed = $3,
		     finished_at = $4
		 WHERE id = $5 AND is_completed = FALSE`,
		score, percentage, passed, finishedAt, attemptID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// ListExpiredPending returns ids of attempts whose deadline has passed but
// that were never finalized — the student abandoned them. The expiry sweep
// finalizes these lazily.
func (r *AttemptRepository) ListExpiredPending(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT a.id
		 FROM attempts a
		 JOIN quizzes q ON a.quiz_id = q.id
		 WHERE a.is_completed = FALSE
		   AND a.started_at + make_interval(mins => q.duration_minutes) <= $1
		 ORDER BY a.started_at ASC
		 LIMIT $2`, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// AttemptStats summarizes one student's history for one quiz.
type AttemptStats struct {
	AttemptsUsed   int
	BestPercentage *float64
}

// StatsByStudent returns per-quiz attempt counts and best completed
// percentage for a student, keyed by quiz id.
func (r *AttemptRepository) StatsByStudent(ctx context.Context, studentID int) (map[uuid.UUID]AttemptStats, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT quiz_id, COUNT(*), MAX(percentage) FILTER (WHERE is_completed)
		 FROM attempts
		 WHERE student_id = $1
		 GROUP BY quiz_id`, studentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := make(map[uuid.UUID]AttemptStats)
	for rows.Next() {
		var quizID uuid.UUID
		var s AttemptStats
		if err := rows.Scan(&quizID, &s.AttemptsUsed, &s.BestPercentage); err != nil {
			return nil, err
		}
		stats[quizID] = s
	}
	return stats, rows.Err()
}

// ScoreBucket is one band of the score distribution.
type ScoreBucket struct {
	Range string `json:"range"`
	Count int    `json:"count"`
}

// QuizAnalytics aggregates completed attempts of one quiz.
type QuizAnalytics struct {
	TotalAttempts        int           `json:"total_attempts"`
	UniqueStudents       int           `json:"unique_students"`
	AveragePercentage    float64       `json:"average_percentage"`
	PassRate             float64       `json:"pass_rate"`
	AvgCompletionMinutes float64       `json:"avg_completion_minutes"`
	Distribution         []ScoreBucket `json:"distribution"`
}

// AnalyticsByQuiz computes the aggregate view over completed attempts.
func (r *AttemptRepository) AnalyticsByQuiz(ctx context.Context, quizID uuid.UUID) (*QuizAnalytics, error) {
	a := &QuizAnalytics{}
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*),
		        COUNT(DISTINCT student_id),
		        COALESCE(AVG(percentage), 0),
		        COALESCE(AVG(CASE WHEN is_passed THEN 100.0 ELSE 0.0 END), 0),
		        COALESCE(AVG(EXTRACT(EPOCH FROM (finished_at - started_at)) / 60.0), 0)
		 FROM attempts
		 WHERE quiz_id = $1 AND is_completed`, quizID,
	).Scan(&a.TotalAttempts, &a.UniqueStudents, &a.AveragePercentage,
		&a.PassRate, &a.AvgCompletionMinutes)
	if err != nil {
		return nil, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT CASE
		          WHEN percentage < 20 THEN '0-20'
		          WHEN percentage < 40 THEN '20-40'
		          WHEN percentage < 60 THEN '40-60'
		          WHEN percentage < 80 THEN '60-80'
		          ELSE '80-100'
		        END AS band,
		        COUNT(*)
		 FROM attempts
		 WHERE quiz_id = $1 AND is_completed
		 GROUP BY band
		 ORDER BY band`, quizID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var band string
		var n int
		if err := rows.Scan(&band, &n); err != nil {
			return nil, err
		}
		counts[band] = n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, band := range []string{"0-20", "20-40", "40-60", "60-80", "80-100"} {
		a.Distribution = append(a.Distribution, ScoreBucket{Range: band, Count: counts[band]})
	}
	return a, nil
}
