package timing

import (
	"testing"
	"time"
)

func TestRemaining(t *testing.T) {
	start := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		duration int
		now      time.Time
		want     int
	}{
		{"at start", 30, start, 1800},
		{"one second in", 30, start.Add(time.Second), 1799},
		{"sub-second elapsed truncates", 30, start.Add(900 * time.Millisecond), 1800},
		{"halfway", 30, start.Add(15 * time.Minute), 900},
		{"exactly at deadline", 1, start.Add(time.Minute), 0},
		{"past deadline", 1, start.Add(61 * time.Second), 0},
		{"long past deadline", 1, start.Add(24 * time.Hour), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Remaining(start, tt.duration, tt.now)
			if got != tt.want {
				t.Fatalf("Remaining = %d, want %d", got, tt.want)
			}
		})
	}
}

// Remaining must be non-increasing as now advances, and exactly zero for
// every instant at or after the deadline.
func TestRemainingMonotonic(t *testing.T) {
	start := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	const duration = 2 // minutes

	prev := Remaining(start, duration, start)
	for s := 1; s <= 180; s++ {
		now := start.Add(time.Duration(s) * time.Second)
		got := Remaining(start, duration, now)
		if got > prev {
			t.Fatalf("Remaining increased from %d to %d at +%ds", prev, got, s)
		}
		if s >= duration*60 && got != 0 {
			t.Fatalf("Remaining = %d at +%ds, want 0 past deadline", got, s)
		}
		prev = got
	}
}

func TestExpired(t *testing.T) {
	start := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

	if Expired(start, 1, start.Add(59*time.Second)) {
		t.Fatal("expired one second early")
	}
	if !Expired(start, 1, start.Add(time.Minute)) {
		t.Fatal("not expired exactly at deadline")
	}
	if !Expired(start, 1, start.Add(61*time.Second)) {
		t.Fatal("not expired past deadline")
	}
}

func TestDeadline(t *testing.T) {
	start := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	want := start.Add(45 * time.Minute)
	if got := Deadline(start, 45); !got.Equal(want) {
		t.Fatalf("Deadline = %v, want %v", got, want)
	}
}
