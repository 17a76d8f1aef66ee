package output

import (
	"log/slog"
	"time"

	"feed_go/internal/domain"
)

// CounterSink logs throughput every Steps records.
type CounterSink struct {
	steps uint64
	count uint64
	start time.Time
	last  time.Time
	now   func() time.Time
}

// NewCounterSink starts the clock immediately.
func NewCounterSink(steps uint64) *CounterSink {
	if steps == 0 {
		steps = 100000
	}
	now := time.Now()
	return &CounterSink{steps: steps, start: now, last: now, now: time.Now}
}

func (s *CounterSink) Name() string { return "counter" }

// Write counts the record and logs progress every steps records.
func (s *CounterSink) Write(*domain.Record) error {
	s.count++
	if s.count%s.steps != 0 {
		return nil
	}
	now := s.now()
	slog.Info("Records processed",
		slog.Uint64("count", s.count),
		slog.Duration("elapsed", now.Sub(s.start)),
		slog.Duration("step", now.Sub(s.last)),
	)
	s.last = now
	return nil
}

// Count returns the records seen so far.
func (s *CounterSink) Count() uint64 { return s.count }

func (s *CounterSink) Close() error { return nil }
