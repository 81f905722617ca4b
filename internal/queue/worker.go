package queue

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog"
)

// Cleaner releases automation resources leaked by a finished task.
type Cleaner interface {
	Cleanup() error
}

// Worker is the single consumer of a Queue. Only one task runs at a time.
type Worker struct {
	queue   *Queue
	cleaner Cleaner
	logger  zerolog.Logger
	onError func(t Task, err error)
}

type WorkerOption func(*Worker)

// WithErrorHandler is called with every error a task returns or panics with.
func WithErrorHandler(fn func(t Task, err error)) WorkerOption {
	return func(w *Worker) {
		w.onError = fn
	}
}

func NewWorker(q *Queue, cleaner Cleaner, logger zerolog.Logger, opts ...WorkerOption) *Worker {
	w := &Worker{
		queue:   q,
		cleaner: cleaner,
		logger:  logger.With().Str("component", "worker").Logger(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run consumes tasks until ctx is cancelled. A failing task never stops it.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info().Msg("worker started")
	for {
		t, err := w.queue.next(ctx)
		if err != nil {
			w.logger.Info().Msg("worker stopped")
			return err
		}
		w.execute(ctx, t)
	}
}

func (w *Worker) execute(ctx context.Context, t Task) {
	logger := w.logger.With().Str("task_id", t.ID).Str("task", t.Label).Logger()
	start := time.Now()

	defer func() {
		w.queue.finish()
		if w.cleaner != nil {
			if err := w.cleaner.Cleanup(); err != nil {
				logger.Warn().Err(err).Msg("cleanup after task failed")
			}
		}
	}()

	logger.Info().Dur("waited", start.Sub(t.Enqueued)).Msg("task started")
	err := w.run(ctx, t)
	if err != nil {
		logger.Error().Err(err).Dur("took", time.Since(start)).Msg("task failed")
		if w.onError != nil {
			w.onError(t, err)
		}
		return
	}
	logger.Info().Dur("took", time.Since(start)).Msg("task finished")
}

func (w *Worker) run(ctx context.Context, t Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error().Str("stack", string(debug.Stack())).Msg("task panicked")
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	if t.Op == nil {
		return fmt.Errorf("task %q has no operation", t.Label)
	}
	return t.Op(ctx, w.queue)
}
