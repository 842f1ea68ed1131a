package service

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// compensation undoes one completed saga step
type compensation struct {
	name string
	undo func(ctx context.Context) error
}

// sagaOrchestrator records the compensations of completed steps and runs them
// in reverse order when a later step fails
type sagaOrchestrator struct {
	name   string
	steps  []compensation
	logger *zap.Logger
}

func newSaga(name string, logger *zap.Logger) *sagaOrchestrator {
	return &sagaOrchestrator{name: name, logger: logger}
}

// Completed registers the compensation for a step that has succeeded
func (so *sagaOrchestrator) Completed(name string, undo func(ctx context.Context) error) {
	so.steps = append(so.steps, compensation{name: name, undo: undo})
}

// Compensate undoes every completed step, newest first.
// It runs on its own context so a cancelled request still releases what it took.
func (so *sagaOrchestrator) Compensate(ctx context.Context) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	for i := len(so.steps) - 1; i >= 0; i-- {
		step := so.steps[i]
		if err := step.undo(ctx); err != nil {
			so.logger.Error("Failed to compensate saga step",
				zap.String("saga", so.name),
				zap.String("step", step.name),
				zap.Error(err))
		}
	}

	so.logger.Warn("Saga compensated",
		zap.String("saga", so.name),
		zap.Int("steps", len(so.steps)))
	so.steps = nil
}
