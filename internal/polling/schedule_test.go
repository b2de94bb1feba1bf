package polling

import (
	"testing"
	"time"
)

func TestScheduleGrowth(t *testing.T) {
	s := DefaultSchedule()

	cases := []struct {
		polls int
		want  time.Duration
	}{
		{0, 1000 * time.Millisecond},
		{1, 1000 * time.Millisecond},
		{2, 1000 * time.Millisecond},
		{3, 1500 * time.Millisecond},
		{4, 2250 * time.Millisecond},
		{5, 3375 * time.Millisecond},
		{6, 5000 * time.Millisecond},
		{50, 5000 * time.Millisecond},
	}
	for _, tc := range cases {
		if got := s.DelayFor(tc.polls); got != tc.want {
			t.Fatalf("DelayFor(%d) = %v, want %v", tc.polls, got, tc.want)
		}
	}
}

func TestScheduleNeverExceedsMax(t *testing.T) {
	s := DefaultSchedule()
	for polls := 0; polls < 100; polls++ {
		if got := s.DelayFor(polls); got > s.Max {
			t.Fatalf("DelayFor(%d) = %v exceeds max %v", polls, got, s.Max)
		}
	}
}

func TestSessionAdvancesAndResets(t *testing.T) {
	sess := NewSession(DefaultSchedule())

	var delays []time.Duration
	for i := 0; i < 5; i++ {
		delays = append(delays, sess.NextDelay())
	}
	want := []time.Duration{
		1000 * time.Millisecond,
		1000 * time.Millisecond,
		1000 * time.Millisecond,
		1500 * time.Millisecond,
		2250 * time.Millisecond,
	}
	for i := range want {
		if delays[i] != want[i] {
			t.Fatalf("delay %d = %v, want %v", i, delays[i], want[i])
		}
	}

	// A new submission starts the schedule over.
	sess.Reset()
	if got := sess.NextDelay(); got != 1000*time.Millisecond {
		t.Fatalf("delay after reset = %v, want 1s", got)
	}
	if sess.Polls() != 1 {
		t.Fatalf("poll count after reset = %d, want 1", sess.Polls())
	}
}
