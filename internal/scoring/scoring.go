// Package scoring computes the final result of a quiz attempt.
//
// Score is a pure function over a quiz snapshot and the set of answers
// present at finalize time. It has no clock, no store and no side effects;
// the attempt service decides when it runs (exactly once per attempt).
package scoring

import (
	"math"

	"github.com/google/uuid"
	"github.com/quizdesk/quizdesk-backend/internal/model"
)

// Outcome is the deterministic result of scoring one attempt.
//
// Total sums marks over answered questions only — a question the student
// never opened contributes to neither earned nor total. Percentage is kept
// unrounded; Passed compares it against the quiz pass threshold before any
// display rounding.
type Outcome struct {
	Earned     int
	Total      int
	Percentage float64
	Passed     bool

	// Verdicts maps question id to the graded correctness of its answer.
	// Short-answer questions carry a nil verdict: they are never
	// auto-scored and stay flagged for manual review.
	Verdicts map[uuid.UUID]*bool
}

// grader reports whether an answer earns the question's marks. The second
// return is false for types that cannot be auto-scored.
type grader func(q *model.Question, a *model.Answer) (correct, gradable bool)

// One dispatch table for every question type; adding a type means adding
// exactly one entry here.
var graders = map[model.QuestionType]grader{
	model.QuestionTypeSingle:      gradeSingleChoice,
	model.QuestionTypeTrueFalse:   gradeSingleChoice,
	model.QuestionTypeMultiple:    gradeMultipleChoice,
	model.QuestionTypeShortAnswer: gradeShortAnswer,
}

// Score grades all answers against the snapshot and returns the outcome.
// Answers referencing questions outside the snapshot are ignored.
func Score(snapshot *model.QuizSnapshot, answers []model.Answer) Outcome {
	out := Outcome{Verdicts: make(map[uuid.UUID]*bool, len(answers))}

	for i := range answers {
		a := &answers[i]
		q := snapshot.Question(a.QuestionID)
		if q == nil {
			continue
		}

		grade, ok := graders[q.QuestionType]
		if !ok {
			continue
		}

		out.Total += q.Marks

		correct, gradable := grade(q, a)
		if !gradable {
			out.Verdicts[q.ID] = nil
			continue
		}
		if correct {
			out.Earned += q.Marks
		}
		v := correct
		out.Verdicts[q.ID] = &v
	}

	if out.Total > 0 {
		out.Percentage = float64(out.Earned) / float64(out.Total) * 100
	}
	out.Passed = out.Percentage >= float64(snapshot.Quiz.PassPercentage)

	return out
}

// gradeSingleChoice handles single and true_false questions: correct iff
// exactly one option is selected and that option is flagged correct. Zero
// or multiple selections score zero, never an error.
func gradeSingleChoice(q *model.Question, a *model.Answer) (bool, bool) {
	if len(a.SelectedOptionIDs) != 1 {
		return false, true
	}
	opt := q.Option(a.SelectedOptionIDs[0])
	return opt != nil && opt.IsCorrect, true
}

// gradeMultipleChoice requires the selected set to equal the correct set
// exactly. No partial credit.
func gradeMultipleChoice(q *model.Question, a *model.Answer) (bool, bool) {
	correct := q.CorrectOptionIDs()
	if len(a.SelectedOptionIDs) != len(correct) {
		return false, true
	}
	selected := make(map[uuid.UUID]struct{}, len(a.SelectedOptionIDs))
	for _, id := range a.SelectedOptionIDs {
		selected[id] = struct{}{}
	}
	if len(selected) != len(correct) {
		return false, true
	}
	for _, id := range correct {
		if _, ok := selected[id]; !ok {
			return false, true
		}
	}
	return true, true
}

// gradeShortAnswer never auto-scores: the marks count toward the total but
// contribute nothing to earned. Manual review happens outside this core.
func gradeShortAnswer(_ *model.Question, _ *model.Answer) (bool, bool) {
	return false, false
}

// Round2 rounds a value to two decimal places for display and storage.
// Pass/fail decisions always use the unrounded percentage.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
