package polling

import "time"

// Schedule describes the adaptive poll backoff contract: a fixed initial
// interval for the first few polls, then multiplicative growth up to a cap.
type Schedule struct {
	Initial    time.Duration
	Factor     float64
	AfterPolls int
	Max        time.Duration
}

// DefaultSchedule matches the deployed client behavior: 1s for the first
// three polls, ×1.5 per poll afterwards, capped at 5s.
func DefaultSchedule() Schedule {
	return Schedule{
		Initial:    1000 * time.Millisecond,
		Factor:     1.5,
		AfterPolls: 3,
		Max:        5000 * time.Millisecond,
	}
}

// DelayFor returns the wait before the next poll given how many polls have
// already happened for the current job.
func (s Schedule) DelayFor(pollCount int) time.Duration {
	if pollCount < 0 {
		pollCount = 0
	}
	delay := s.Initial
	for i := s.AfterPolls; i <= pollCount; i++ {
		delay = time.Duration(float64(delay) * s.Factor)
		if delay >= s.Max {
			return s.Max
		}
	}
	if delay > s.Max {
		return s.Max
	}
	return delay
}

// Session tracks per-job polling state on the client side. A fresh session
// is created on each submission so schedules never leak across jobs.
type Session struct {
	schedule  Schedule
	pollCount int
}

// NewSession starts a session at the beginning of the schedule.
func NewSession(schedule Schedule) *Session {
	return &Session{schedule: schedule}
}

// NextDelay returns the wait before the next poll and advances the counter.
func (s *Session) NextDelay() time.Duration {
	delay := s.schedule.DelayFor(s.pollCount)
	s.pollCount++
	return delay
}

// Polls returns how many polls the session has issued.
func (s *Session) Polls() int {
	return s.pollCount
}

// Reset rewinds the session to the start of the schedule. Called when a new
// job is submitted.
func (s *Session) Reset() {
	s.pollCount = 0
}
