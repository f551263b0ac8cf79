package model

import (
	"time"

	"github.com/google/uuid"
)

// Attempt is one student's timed instance of taking a quiz.
//
// StartedAt is set at creation and never changes. FinishedAt, Score,
// Percentage and IsPassed are null until finalize and write-once after it:
// IsCompleted flips false→true exactly once, and a completed attempt is
// immutable (enforced by a conditional UPDATE in the repository).
type Attempt struct {
	ID            uuid.UUID   `json:"id"`
	QuizID        uuid.UUID   `json:"quiz_id"`
	StudentID     int         `json:"student_id"`
	StartedAt     time.Time   `json:"started_at"`
	FinishedAt    *time.Time  `json:"finished_at,omitempty"`
	IsCompleted   bool        `json:"is_completed"`
	Score         *float64    `json:"score,omitempty"`
	Percentage    *float64    `json:"percentage,omitempty"`
	IsPassed      *bool       `json:"is_passed,omitempty"`
	QuestionOrder []uuid.UUID `json:"question_order,omitempty"`
}

// SaveAnswerRequest is the payload for saving an answer to one question.
// Choice questions use OptionIDs (full replace), short-answer uses Text.
type SaveAnswerRequest struct {
	OptionIDs []uuid.UUID `json:"option_ids"`
	Text      string      `json:"text_answer" binding:"max=10000"`
}

// AttemptStatus is the polling view of an attempt: completion flag, the
// freshly evaluated remaining time, and the frozen result once completed.
type AttemptStatus struct {
	AttemptID        uuid.UUID `json:"attempt_id"`
	Completed        bool      `json:"completed"`
	RemainingSeconds int       `json:"remaining_seconds"`
	Score            *float64  `json:"score,omitempty"`
	Percentage       *float64  `json:"percentage,omitempty"`
	IsPassed         *bool     `json:"is_passed,omitempty"`
}

// AttemptQuestion is the single-question delivery view inside an attempt:
// the stripped question, its options in the per-attempt presentation order,
// and whatever answer the student has saved so far.
type AttemptQuestion struct {
	Question      QuestionForStudent `json:"question"`
	Options       []OptionForStudent `json:"options"`
	CurrentAnswer *Answer            `json:"current_answer,omitempty"`
}

// AttemptResult is the frozen outcome of a finalized attempt.
type AttemptResult struct {
	AttemptID  uuid.UUID `json:"attempt_id"`
	Score      float64   `json:"score"`
	Total      int       `json:"total"`
	Percentage float64   `json:"percentage"`
	Passed     bool      `json:"passed"`
}

// AnswerReview is the per-question breakdown shown on the result page when
// the quiz allows immediate results.
type AnswerReview struct {
	Question        QuestionForStudent `json:"question"`
	SelectedOptions []uuid.UUID        `json:"selected_option_ids,omitempty"`
	CorrectOptions  []uuid.UUID        `json:"correct_option_ids,omitempty"`
	TextAnswer      string             `json:"text_answer,omitempty"`
	IsCorrect       *bool              `json:"is_correct,omitempty"`
	NeedsReview     bool               `json:"needs_review"`
}
