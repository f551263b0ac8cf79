package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/quizdesk/quizdesk-backend/internal/model"
)

// AnswerRepository handles answer data access.
//
// The unique index on (attempt_id, question_id) plus the UPSERT in Upsert
// guarantee at most one row per pair without an insert-then-fail dance, and
// every save replaces the previous selection in full.
type AnswerRepository struct {
	pool *pgxpool.Pool
}

// NewAnswerRepository creates a new AnswerRepository.
func NewAnswerRepository(pool *pgxpool.Pool) *AnswerRepository {
	return &AnswerRepository{pool: pool}
}

// Upsert creates or replaces the answer for (attempt, question), guarded on
// the attempt still being pending. The source SELECT locks the attempt row,
// so the write serializes against CompleteIfPending: once a finalize has
// committed, the guard yields no row and nothing is written. Returns false
// when the guard rejected the write.
func (r *AnswerRepository) Upsert(ctx context.Context, a *model.Answer) (bool, error) {
	selected := a.SelectedOptionIDs
	if selected == nil {
		selected = []uuid.UUID{}
	}
	raw, err := json.Marshal(selected)
	if err != nil {
		return false, fmt.Errorf("encode selection: %w", err)
	}

	err = r.pool.QueryRow(ctx,
		`INSERT INTO answers (attempt_id, question_id, selected_option_ids, text_answer)
		 SELECT id, $2, $3, $4
		 FROM attempts
		 WHERE id = $1 AND is_completed = FALSE
		 FOR UPDATE
		 ON CONFLICT (attempt_id, question_id) DO UPDATE
		 SET selected_option_ids = EXCLUDED.selected_option_ids,
		     text_answer = EXCLUDED.text_answer,
		     updated_at = NOW()
		 RETURNING id, updated_at`,
		a.AttemptID, a.QuestionID, raw, a.TextAnswer,
	).Scan(&a.ID, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Get retrieves the answer for (attempt, question). Returns pgx.ErrNoRows
// if the student has not answered yet.
func (r *AnswerRepository) Get(ctx context.Context, attemptID, questionID uuid.UUID) (*model.Answer, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, attempt_id, question_id, selected_option_ids, text_answer, is_correct, updated_at
		 FROM answers
		 WHERE attempt_id = $1 AND question_id = $2`, attemptID, questionID)
	return scanAnswer(row)
}

// ListByAttempt retrieves every answer of an attempt.
func (r *AnswerRepository) ListByAttempt(ctx context.Context, attemptID uuid.UUID) ([]model.Answer, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, attempt_id, question_id, selected_option_ids, text_answer, is_correct, updated_at
		 FROM answers
		 WHERE attempt_id = $1`, attemptID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var answers []model.Answer
	for rows.Next() {
		a, err := scanAnswer(rows)
		if err != nil {
			return nil, err
		}
		answers = append(answers, *a)
	}
	return answers, rows.Err()
}

// BulkSetCorrectness stamps the scoring verdicts onto answer rows in one
// round trip, UNNESTing parallel arrays. Questions with a nil verdict
// (short answers awaiting manual review) are left untouched.
func (r *AnswerRepository) BulkSetCorrectness(ctx context.Context, attemptID uuid.UUID, verdicts map[uuid.UUID]*bool) error {
	questionIDs := make([]uuid.UUID, 0, len(verdicts))
	correct := make([]bool, 0, len(verdicts))
	for qID, v := range verdicts {
		if v == nil {
			continue
		}
		questionIDs = append(questionIDs, qID)
		correct = append(correct, *v)
	}
	if len(questionIDs) == 0 {
		return nil
	}

	_, err := r.pool.Exec(ctx,
		`UPDATE answers AS a
		 SET is_correct = t.correct
		 FROM (
			SELECT u.question_id, u.correct
			FROM UNNEST($1::uuid[], $2::bool[]) AS u (question_id, correct)
		 ) AS t
		 WHERE a.attempt_id = $3
		   AND a.question_id = t.question_id`,
		questionIDs, correct, attemptID)
	return err
}

func scanAnswer(row interface{ Scan(...any) error }) (*model.Answer, error) {
	a := &model.Answer{}
	var raw []byte
	err := row.Scan(&a.ID, &a.AttemptID, &a.QuestionID, &raw, &a.TextAnswer, &a.IsCorrect, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &a.SelectedOptionIDs); err != nil {
			return nil, fmt.Errorf("decode selection: %w", err)
		}
	}
	return a, nil
}
