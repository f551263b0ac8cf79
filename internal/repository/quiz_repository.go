package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/quizdesk/quizdesk-backend/internal/model"
)

const quizColumns = `id, title, description, owner_id, duration_minutes,
	pass_percentage, max_attempts, is_active, starts_at, ends_at,
	randomize_questions, shuffle_options, show_results_immediately,
	created_at, updated_at`

// QuizRepository handles quiz data access.
type QuizRepository struct {
	pool *pgxpool.Pool
}

// NewQuizRepository creates a new QuizRepository.
func NewQuizRepository(pool *pgxpool.Pool) *QuizRepository {
	return &QuizRepository{pool: pool}
}

func scanQuiz(row interface{ Scan(...any) error }) (*model.Quiz, error) {
	q := &model.Quiz{}
	err := row.Scan(
		&q.ID, &q.Title, &q.Description, &q.OwnerID, &q.DurationMinutes,
		&q.PassPercentage, &q.MaxAttempts, &q.IsActive, &q.StartsAt, &q.EndsAt,
		&q.RandomizeQuestions, &q.ShuffleOptions, &q.ShowResultsImmediately,
		&q.CreatedAt, &q.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return q, nil
}

// GetByID retrieves a quiz by its UUID.
func (r *QuizRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Quiz, error) {
	return scanQuiz(r.pool.QueryRow(ctx,
		`SELECT `+quizColumns+` FROM quizzes WHERE id = $1`, id))
}

// ListActivePaginated retrieves one page of active quizzes, newest first,
// along with the total active count for pagination metadata.
func (r *QuizRepository) ListActivePaginated(ctx context.Context, limit, offset int) ([]model.Quiz, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM quizzes WHERE is_active`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT `+quizColumns+` FROM quizzes WHERE is_active
		 ORDER BY created_at DESC
		 LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var quizzes []model.Quiz
	for rows.Next() {
		q, err := scanQuiz(rows)
		if err != nil {
			return nil, 0, err
		}
		quizzes = append(quizzes, *q)
	}
	return quizzes, total, rows.Err()
}

// ListActive retrieves all quizzes with the active flag set, newest first.
// Availability-window filtering happens in the service against server time.
func (r *QuizRepository) ListActive(ctx context.Context) ([]model.Quiz, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+quizColumns+` FROM quizzes WHERE is_active ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var quizzes []model.Quiz
	for rows.Next() {
		q, err := scanQuiz(rows)
		if err != nil {
			return nil, err
		}
		quizzes = append(quizzes, *q)
	}
	return quizzes, rows.Err()
}
