package model

import (
	"time"

	"github.com/google/uuid"
)

// Quiz represents a quiz as authored by a teacher. The attempt flow treats
// a quiz and its questions as an immutable snapshot for the lifetime of an
// attempt, even if the owner edits it concurrently.
type Quiz struct {
	ID                     uuid.UUID  `json:"id"`
	Title                  string     `json:"title"`
	Description            string     `json:"description,omitempty"`
	OwnerID                int        `json:"owner_id"`
	DurationMinutes        int        `json:"duration_minutes"`
	PassPercentage         int        `json:"pass_percentage"`
	MaxAttempts            int        `json:"max_attempts"`
	IsActive               bool       `json:"is_active"`
	StartsAt               *time.Time `json:"starts_at,omitempty"`
	EndsAt                 *time.Time `json:"ends_at,omitempty"`
	RandomizeQuestions     bool       `json:"randomize_questions"`
	ShuffleOptions         bool       `json:"shuffle_options"`
	ShowResultsImmediately bool       `json:"show_results_immediately"`
	CreatedAt              time.Time  `json:"created_at"`
	UpdatedAt              time.Time  `json:"updated_at"`
}

// AvailableAt reports whether the quiz can accept new attempts at the given
// instant: active flag set and inside the scheduled window (open-ended when
// either bound is unset).
func (q *Quiz) AvailableAt(now time.Time) bool {
	if !q.IsActive {
		return false
	}
	if q.StartsAt != nil && now.Before(*q.StartsAt) {
		return false
	}
	if q.EndsAt != nil && now.After(*q.EndsAt) {
		return false
	}
	return true
}

// QuizSnapshot is the full read-only view of a quiz consumed by the attempt
// flow: settings plus every question with its options (correctness flags
// included — never serialized to students).
type QuizSnapshot struct {
	Quiz      Quiz       `json:"quiz"`
	Questions []Question `json:"questions"`
}

// Question returns the snapshot question with the given id, or nil.
func (s *QuizSnapshot) Question(id uuid.UUID) *Question {
	for i := range s.Questions {
		if s.Questions[i].ID == id {
			return &s.Questions[i]
		}
	}
	return nil
}

// QuestionIDs returns the ids of all questions in authored order.
func (s *QuizSnapshot) QuestionIDs() []uuid.UUID {
	ids := make([]uuid.UUID, len(s.Questions))
	for i := range s.Questions {
		ids[i] = s.Questions[i].ID
	}
	return ids
}

// QuizListEntry is a quiz as shown in the student's quiz list, with the
// student's own attempt history overlaid.
type QuizListEntry struct {
	Quiz           Quiz     `json:"quiz"`
	AttemptsUsed   int      `json:"attempts_used"`
	CanAttempt     bool     `json:"can_attempt"`
	BestPercentage *float64 `json:"best_percentage,omitempty"`
}
