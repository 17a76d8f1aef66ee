// Package output delivers finished records to the configured sinks.
package output

import (
	"errors"
	"log/slog"
	"sync"

	"feed_go/internal/domain"
	"feed_go/internal/infra"
)

// Fanout implements domain.Output over any number of sinks. Writes are
// serialized so sinks never see concurrent calls.
type Fanout struct {
	mu      sync.Mutex
	sinks   []domain.Sink
	metrics *infra.Metrics
}

// NewFanout wraps sinks.
func NewFanout(metrics *infra.Metrics, sinks ...domain.Sink) *Fanout {
	return &Fanout{sinks: sinks, metrics: metrics}
}

// Add registers another sink.
func (f *Fanout) Add(s domain.Sink) {
	f.mu.Lock()
	f.sinks = append(f.sinks, s)
	f.mu.Unlock()
}

// Write hands rec to every sink. A failing sink is logged and counted;
// the remaining sinks still receive the record.
func (f *Fanout) Write(rec *domain.Record) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, s := range f.sinks {
		if err := s.Write(rec); err != nil {
			f.metrics.RecordSinkError()
			slog.Warn("Sink write failed",
				slog.String("sink", s.Name()),
				slog.Int64("token", rec.Token),
				slog.Any("error", err),
			)
		}
	}
	f.metrics.RecordRecord()
}

// Close closes every sink and joins their errors.
func (f *Fanout) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	var errs []error
	for _, s := range f.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	f.sinks = nil
	return errors.Join(errs...)
}
