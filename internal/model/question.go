package model

import "github.com/google/uuid"

// QuestionType is the closed set of supported question kinds. Scoring
// dispatches on this type in exactly one place (internal/scoring).
type QuestionType string

const (
	QuestionTypeSingle      QuestionType = "single"
	QuestionTypeMultiple    QuestionType = "multiple"
	QuestionTypeTrueFalse   QuestionType = "true_false"
	QuestionTypeShortAnswer QuestionType = "short_answer"
)

// Valid reports whether t is one of the supported question types.
func (t QuestionType) Valid() bool {
	switch t {
	case QuestionTypeSingle, QuestionTypeMultiple, QuestionTypeTrueFalse, QuestionTypeShortAnswer:
		return true
	}
	return false
}

// Choice reports whether answers to this type are option selections
// (as opposed to free text).
func (t QuestionType) Choice() bool {
	return t != QuestionTypeShortAnswer
}

// Question belongs to exactly one quiz.
type Question struct {
	ID           uuid.UUID    `json:"id"`
	QuizID       uuid.UUID    `json:"quiz_id"`
	QuestionText string       `json:"question_text"`
	QuestionType QuestionType `json:"question_type"`
	Marks        int          `json:"marks"`
	IsRequired   bool         `json:"is_required"`
	SortOrder    int          `json:"sort_order"`
	Options      []Option     `json:"options,omitempty"`
}

// Option returns the option with the given id, or nil.
func (q *Question) Option(id uuid.UUID) *Option {
	for i := range q.Options {
		if q.Options[i].ID == id {
			return &q.Options[i]
		}
	}
	return nil
}

// CorrectOptionIDs returns the ids of all options flagged correct.
func (q *Question) CorrectOptionIDs() []uuid.UUID {
	var ids []uuid.UUID
	for i := range q.Options {
		if q.Options[i].IsCorrect {
			ids = append(ids, q.Options[i].ID)
		}
	}
	return ids
}

// Option belongs to exactly one question. The full struct round-trips
// through the snapshot cache and is never serialized to students; delivery
// goes through OptionForStudent, which carries no correctness.
type Option struct {
	ID         uuid.UUID `json:"id"`
	QuestionID uuid.UUID `json:"question_id"`
	OptionText string    `json:"option_text"`
	IsCorrect  bool      `json:"is_correct"`
	SortOrder  int       `json:"sort_order"`
}

// QuestionForStudent is a question stripped for delivery to students:
// type, marks and text only — no options, no correctness data.
type QuestionForStudent struct {
	ID           uuid.UUID    `json:"id"`
	QuestionText string       `json:"question_text"`
	QuestionType QuestionType `json:"question_type"`
	Marks        int          `json:"marks"`
	IsRequired   bool         `json:"is_required"`
}

// OptionForStudent is an option stripped for delivery to students:
// id and text only.
type OptionForStudent struct {
	ID         uuid.UUID `json:"id"`
	OptionText string    `json:"option_text"`
}
