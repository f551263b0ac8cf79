package scoring

import (
	"testing"

	"github.com/google/uuid"
	"github.com/quizdesk/quizdesk-backend/internal/model"
)

// fixture builds the reference quiz: Q1 single worth 2 (correct optA),
// Q2 multiple worth 3 (correct {optC, optD}), Q3 short_answer worth 5.
// Pass threshold 70%.
type fixture struct {
	snapshot                     *model.QuizSnapshot
	q1, q2, q3                   uuid.UUID
	optA, optB, optC, optD, optE uuid.UUID
}

func newFixture() *fixture {
	f := &fixture{
		q1: uuid.New(), q2: uuid.New(), q3: uuid.New(),
		optA: uuid.New(), optB: uuid.New(),
		optC: uuid.New(), optD: uuid.New(), optE: uuid.New(),
	}
	f.snapshot = &model.QuizSnapshot{
		Quiz: model.Quiz{ID: uuid.New(), PassPercentage: 70},
		Questions: []model.Question{
			{
				ID: f.q1, QuestionType: model.QuestionTypeSingle, Marks: 2,
				Options: []model.Option{
					{ID: f.optA, IsCorrect: true},
					{ID: f.optB},
				},
			},
			{
				ID: f.q2, QuestionType: model.QuestionTypeMultiple, Marks: 3,
				Options: []model.Option{
					{ID: f.optC, IsCorrect: true},
					{ID: f.optD, IsCorrect: true},
					{ID: f.optE},
				},
			},
			{
				ID: f.q3, QuestionType: model.QuestionTypeShortAnswer, Marks: 5,
			},
		},
	}
	return f
}

func answer(qID uuid.UUID, optIDs ...uuid.UUID) model.Answer {
	return model.Answer{ID: uuid.New(), QuestionID: qID, SelectedOptionIDs: optIDs}
}

func TestScoreReferenceTable(t *testing.T) {
	f := newFixture()

	textAnswer := answer(f.q3)
	textAnswer.TextAnswer = "some text"

	out := Score(f.snapshot, []model.Answer{
		answer(f.q1, f.optA),         // correct
		answer(f.q2, f.optC),         // partial set, no credit
		textAnswer,                   // short answer, never auto-scored
	})

	if out.Total != 10 {
		t.Fatalf("total = %d, want 10", out.Total)
	}
	if out.Earned != 2 {
		t.Fatalf("earned = %d, want 2", out.Earned)
	}
	if out.Percentage != 20.0 {
		t.Fatalf("percentage = %v, want 20.0", out.Percentage)
	}
	if out.Passed {
		t.Fatal("passed = true, want false")
	}

	if v := out.Verdicts[f.q1]; v == nil || !*v {
		t.Fatal("Q1 should be graded correct")
	}
	if v := out.Verdicts[f.q2]; v == nil || *v {
		t.Fatal("Q2 should be graded incorrect")
	}
	if v, ok := out.Verdicts[f.q3]; !ok || v != nil {
		t.Fatal("Q3 should carry a nil verdict (manual review)")
	}
}

// A question the student never answered contributes to neither earned nor
// total: answering only Q1 correctly is a 100% pass.
func TestScoreUnansweredExcludedFromTotal(t *testing.T) {
	f := newFixture()

	out := Score(f.snapshot, []model.Answer{answer(f.q1, f.optA)})

	if out.Total != 2 || out.Earned != 2 {
		t.Fatalf("earned/total = %d/%d, want 2/2", out.Earned, out.Total)
	}
	if out.Percentage != 100.0 {
		t.Fatalf("percentage = %v, want 100.0", out.Percentage)
	}
	if !out.Passed {
		t.Fatal("passed = false, want true")
	}
}

func TestScoreSingleChoiceEdges(t *testing.T) {
	f := newFixture()

	tests := []struct {
		name    string
		answers []model.Answer
		earned  int
	}{
		{"no selection", []model.Answer{answer(f.q1)}, 0},
		{"wrong option", []model.Answer{answer(f.q1, f.optB)}, 0},
		{"two selections on single", []model.Answer{answer(f.q1, f.optA, f.optB)}, 0},
		{"correct", []model.Answer{answer(f.q1, f.optA)}, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := Score(f.snapshot, tt.answers)
			if out.Earned != tt.earned {
				t.Fatalf("earned = %d, want %d", out.Earned, tt.earned)
			}
			if out.Total != 2 {
				t.Fatalf("total = %d, want 2", out.Total)
			}
		})
	}
}

func TestScoreMultipleChoiceExactSetMatch(t *testing.T) {
	f := newFixture()

	tests := []struct {
		name    string
		selected []uuid.UUID
		earned  int
	}{
		{"exact match", []uuid.UUID{f.optC, f.optD}, 3},
		{"exact match reversed order", []uuid.UUID{f.optD, f.optC}, 3},
		{"subset", []uuid.UUID{f.optC}, 0},
		{"superset", []uuid.UUID{f.optC, f.optD, f.optE}, 0},
		{"wrong set same size", []uuid.UUID{f.optC, f.optE}, 0},
		{"empty", nil, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := Score(f.snapshot, []model.Answer{answer(f.q2, tt.selected...)})
			if out.Earned != tt.earned {
				t.Fatalf("earned = %d, want %d", out.Earned, tt.earned)
			}
		})
	}
}

// Short-answer marks count toward the total but can never be earned here.
func TestScoreShortAnswerCountsInTotalOnly(t *testing.T) {
	f := newFixture()

	a := answer(f.q3)
	a.TextAnswer = "a thoughtful essay"
	out := Score(f.snapshot, []model.Answer{a})

	if out.Total != 5 || out.Earned != 0 {
		t.Fatalf("earned/total = %d/%d, want 0/5", out.Earned, out.Total)
	}
	if out.Passed {
		t.Fatal("passed = true, want false")
	}
}

func TestScoreNoAnswers(t *testing.T) {
	f := newFixture()

	out := Score(f.snapshot, nil)
	if out.Total != 0 || out.Earned != 0 {
		t.Fatalf("earned/total = %d/%d, want 0/0", out.Earned, out.Total)
	}
	if out.Percentage != 0 {
		t.Fatalf("percentage = %v, want 0", out.Percentage)
	}
	// 0 >= 0 would pass a zero-threshold quiz; at 70 it must fail.
	if out.Passed {
		t.Fatal("passed = true, want false")
	}
}

// Pass/fail compares the unrounded percentage: 2/3 of the marks on a
// 66.66...% threshold passes even though both display as 66.67.
func TestScorePassUsesUnroundedPercentage(t *testing.T) {
	q := uuid.New()
	opt := uuid.New()
	snapshot := &model.QuizSnapshot{
		Quiz: model.Quiz{PassPercentage: 66},
		Questions: []model.Question{
			{ID: q, QuestionType: model.QuestionTypeSingle, Marks: 2,
				Options: []model.Option{{ID: opt, IsCorrect: true}}},
			{ID: uuid.New(), QuestionType: model.QuestionTypeShortAnswer, Marks: 1},
		},
	}

	shortQ := snapshot.Questions[1].ID
	out := Score(snapshot, []model.Answer{
		answer(q, opt),
		answer(shortQ),
	})

	if out.Earned != 2 || out.Total != 3 {
		t.Fatalf("earned/total = %d/%d, want 2/3", out.Earned, out.Total)
	}
	if !out.Passed {
		t.Fatalf("unrounded %v should pass a 66%% threshold", out.Percentage)
	}
	if Round2(out.Percentage) != 66.67 {
		t.Fatalf("Round2 = %v, want 66.67", Round2(out.Percentage))
	}
}

func TestScoreIgnoresForeignQuestionAnswer(t *testing.T) {
	f := newFixture()

	out := Score(f.snapshot, []model.Answer{
		answer(f.q1, f.optA),
		answer(uuid.New(), f.optA), // not in this quiz
	})

	if out.Total != 2 || out.Earned != 2 {
		t.Fatalf("earned/total = %d/%d, want 2/2", out.Earned, out.Total)
	}
	if len(out.Verdicts) != 1 {
		t.Fatalf("verdicts = %d, want 1", len(out.Verdicts))
	}
}
