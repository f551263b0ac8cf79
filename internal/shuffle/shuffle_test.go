package shuffle

import (
	"testing"

	"github.com/google/uuid"
)

func ids(n int) []uuid.UUID {
	out := make([]uuid.UUID, n)
	for i := range out {
		out[i] = uuid.New()
	}
	return out
}

func TestPermuteDeterministic(t *testing.T) {
	attemptID := uuid.New()
	questions := ids(10)

	first := Permute(AttemptSeed(attemptID), questions)
	second := Permute(AttemptSeed(attemptID), questions)

	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("permutation not stable at %d: %v vs %v", i, first[i], second[i])
		}
	}
}

func TestPermuteKeepsElements(t *testing.T) {
	questions := ids(20)
	out := Permute(AttemptSeed(uuid.New()), questions)

	if len(out) != len(questions) {
		t.Fatalf("length changed: %d vs %d", len(out), len(questions))
	}
	seen := make(map[uuid.UUID]bool, len(out))
	for _, id := range out {
		seen[id] = true
	}
	for _, id := range questions {
		if !seen[id] {
			t.Fatalf("element %v lost in permutation", id)
		}
	}
}

func TestPermuteDoesNotMutateInput(t *testing.T) {
	questions := ids(8)
	orig := make([]uuid.UUID, len(questions))
	copy(orig, questions)

	Permute(AttemptSeed(uuid.New()), questions)

	for i := range orig {
		if questions[i] != orig[i] {
			t.Fatal("input slice was mutated")
		}
	}
}

// Different attempts should, with high probability, see different orders.
// With 10 elements a seed collision across 50 attempts is effectively
// impossible; require at least one differing pair.
func TestPermuteVariesAcrossAttempts(t *testing.T) {
	questions := ids(10)

	base := Permute(AttemptSeed(uuid.New()), questions)
	for i := 0; i < 50; i++ {
		other := Permute(AttemptSeed(uuid.New()), questions)
		for j := range base {
			if base[j] != other[j] {
				return
			}
		}
	}
	t.Fatal("50 attempts produced identical question orders")
}

func TestOptionSeedDistinctPerQuestion(t *testing.T) {
	attemptID := uuid.New()
	q1, q2 := uuid.New(), uuid.New()

	if OptionSeed(attemptID, q1) == OptionSeed(attemptID, q2) {
		t.Fatal("option seeds collide across questions")
	}
	if OptionSeed(attemptID, q1) != OptionSeed(attemptID, q1) {
		t.Fatal("option seed not stable")
	}
}

func TestPermuteOptionsStable(t *testing.T) {
	seed := OptionSeed(uuid.New(), uuid.New())

	first := PermuteOptions(seed, 5)
	second := PermuteOptions(seed, 5)

	seen := make(map[int]bool, 5)
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("option order not stable at %d", i)
		}
		seen[first[i]] = true
	}
	if len(seen) != 5 {
		t.Fatalf("expected 5 distinct indices, got %d", len(seen))
	}
}
