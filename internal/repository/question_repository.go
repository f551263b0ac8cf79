package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/quizdesk/quizdesk-backend/internal/model"
)

// QuestionRepository handles question and option data access.
type QuestionRepository struct {
	pool *pgxpool.Pool
}

// NewQuestionRepository creates a new QuestionRepository.
func NewQuestionRepository(pool *pgxpool.Pool) *QuestionRepository {
	return &QuestionRepository{pool: pool}
}

// ListByQuiz retrieves all questions of a quiz in authored order, each with
// its options attached (correctness flags included — callers strip them
// before anything reaches a student).
func (r *QuestionRepository) ListByQuiz(ctx context.Context, quizID uuid.UUID) ([]model.Question, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, quiz_id, question_text, question_type, marks, is_required, sort_order
		 FROM questions
		 WHERE quiz_id = $1
		 ORDER BY sort_order ASC`, quizID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var questions []model.Question
	index := make(map[uuid.UUID]int)
	for rows.Next() {
		var q model.Question
		if err := rows.Scan(&q.ID, &q.QuizID, &q.QuestionText, &q.QuestionType, &q.Marks, &q.IsRequired, &q.SortOrder); err != nil {
			return nil, err
		}
		index[q.ID] = len(questions)
		questions = append(questions, q)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(questions) == 0 {
		return questions, nil
	}

	optRows, err := r.pool.Query(ctx,
		`SELECT o.id, o.question_id, o.option_text, o.is_correct, o.sort_order
		 FROM options o
		 JOIN questions q ON o.question_id = q.id
		 WHERE q.quiz_id = $1
		 ORDER BY o.question_id, o.sort_order ASC`, quizID)
	if err != nil {
		return nil, err
	}
	defer optRows.Close()

	for optRows.Next() {
		var o model.Option
		if err := optRows.Scan(&o.ID, &o.QuestionID, &o.OptionText, &o.IsCorrect, &o.SortOrder); err != nil {
			return nil, err
		}
		if i, ok := index[o.QuestionID]; ok {
			questions[i].Options = append(questions[i].Options, o)
		}
	}
	return questions, optRows.Err()
}
