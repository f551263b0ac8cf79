package model

import (
	"time"

	"github.com/google/uuid"
)

// Answer is the student's current response to one question within one
// attempt. At most one row exists per (attempt, question); every save
// replaces the prior selection set or text in full.
//
// IsCorrect stays null until the owning attempt is finalized, at which
// point the scoring pass stamps it. Short-answer questions keep it null
// forever — they are flagged for manual review, never auto-scored.
type Answer struct {
	ID                uuid.UUID   `json:"id"`
	AttemptID         uuid.UUID   `json:"attempt_id"`
	QuestionID        uuid.UUID   `json:"question_id"`
	SelectedOptionIDs []uuid.UUID `json:"selected_option_ids"`
	TextAnswer        string      `json:"text_answer,omitempty"`
	IsCorrect         *bool       `json:"is_correct,omitempty"`
	UpdatedAt         time.Time   `json:"updated_at"`
}
