package engine

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"
)

const (
	defaultIdleSpins = 64
	idleSleep        = 50 * time.Microsecond
)

// Scheduler runs a fixed pool of workers that pull Work straight from the
// dispatcher. An idle worker yields the processor and, after idleSpins
// consecutive misses, sleeps briefly before polling again.
type Scheduler struct {
	d         *Dispatcher
	workers   int
	idleSpins int
	wg        sync.WaitGroup
}

// NewScheduler creates a scheduler with the given pool size.
func NewScheduler(d *Dispatcher, workers, idleSpins int) *Scheduler {
	if workers < 1 {
		workers = 1
	}
	if idleSpins <= 0 {
		idleSpins = defaultIdleSpins
	}
	return &Scheduler{d: d, workers: workers, idleSpins: idleSpins}
}

// Run starts the workers and blocks until ctx is cancelled and every
// worker has returned.
func (s *Scheduler) Run(ctx context.Context) {
	slog.Info("Scheduler started", slog.Int("workers", s.workers))
	for i := 0; i < s.workers; i++ {
		s.wg.Add(1)
		go s.worker(ctx, i)
	}
	s.wg.Wait()
	slog.Info("Scheduler stopped")
}

func (s *Scheduler) worker(ctx context.Context, id int) {
	defer s.wg.Done()
	done := ctx.Done()
	misses := 0
	for {
		select {
		case <-done:
			return
		default:
		}

		w, ok := s.d.Next()
		if !ok {
			misses++
			if misses < s.idleSpins {
				runtime.Gosched()
			} else {
				time.Sleep(idleSleep)
			}
			continue
		}
		misses = 0
		s.execute(id, w)
	}
}

// execute is the last line of defence: Execute already guards every
// packet, so a panic here means the engine itself is broken.
func (s *Scheduler) execute(id int, w *Work) {
	defer func() {
		if r := recover(); r != nil {
			s.d.metrics.RecordPanic()
			slog.Error("Worker recovered from engine panic",
				slog.Int("worker", id),
				slog.String("work", w.Type.String()),
				slog.Uint64("seq", w.Seq),
				slog.String("panic", fmt.Sprint(r)),
			)
		}
	}()
	s.d.Execute(w)
}
