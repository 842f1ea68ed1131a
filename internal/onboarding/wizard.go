package onboarding

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"salon-service/internal/util"

	"go.uber.org/zap"
)

// Wizard applies the step transitions for one tenant.
// Every transition is written to the ProgressClient before the local view changes,
// so a failed call leaves the wizard as it was.
type Wizard struct {
	mu         sync.Mutex
	client     ProgressClient
	tenantID   int64
	catalogue  []Step
	progress   Progress
	closed     bool
	onComplete func(context.Context, Progress)
	logger     *zap.Logger
}

// Option configures a Wizard
type Option func(*Wizard)

// WithOnComplete registers the callback run once all steps are passed
func WithOnComplete(fn func(context.Context, Progress)) Option {
	return func(w *Wizard) {
		w.onComplete = fn
	}
}

// NewWizard creates a wizard for tenantID; catalogue is used when onboarding is started
func NewWizard(client ProgressClient, tenantID int64, catalogue []Step, opts ...Option) *Wizard {
	w := &Wizard{
		client:    client,
		tenantID:  tenantID,
		catalogue: catalogue,
		logger:    util.GetLogger(),
		progress: Progress{
			TenantID: tenantID,
			Status:   StatusNotStarted,
		},
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Load rebuilds the wizard from the persisted progress, starting onboarding if needed
func (w *Wizard) Load(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	p, err := w.client.GetProgress(ctx, w.tenantID)
	if errors.Is(err, ErrNotStarted) {
		p, err = w.client.StartOnboarding(ctx, w.tenantID, w.freshSteps())
		if err != nil {
			return fmt.Errorf("start onboarding: %w", err)
		}
		util.OnboardingTransitionsTotal.WithLabelValues("start").Inc()
	}
	if err != nil {
		return fmt.Errorf("get progress: %w", err)
	}

	w.apply(p)
	return nil
}

func (w *Wizard) freshSteps() []Step {
	steps := make([]Step, len(w.catalogue))
	copy(steps, w.catalogue)
	for i := range steps {
		steps[i].Status = StepPending
	}
	return steps
}

func (w *Wizard) apply(p *Progress) {
	w.progress = *p
	w.progress.Steps = append([]Step(nil), p.Steps...)
	w.closed = p.Status == StatusCompleted
}

// State returns the progress with the step at the current index marked current
func (w *Wizard) State() Progress {
	w.mu.Lock()
	defer w.mu.Unlock()

	p := w.progress
	p.Steps = append([]Step(nil), w.progress.Steps...)
	if !w.closed && p.CurrentStep >= 0 && p.CurrentStep < len(p.Steps) {
		p.Steps[p.CurrentStep].Status = StepCurrent
	}
	return p
}

// Fraction is the share of completed steps
func (w *Wizard) Fraction() float64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.progress.Fraction()
}

// Closed reports whether onboarding has been completed
func (w *Wizard) Closed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closed
}

func (w *Wizard) currentStep(stepID string) (int, error) {
	if w.closed {
		return 0, ErrWizardClosed
	}
	if len(w.progress.Steps) == 0 {
		return 0, ErrNotStarted
	}

	idx := w.indexOf(stepID)
	if idx < 0 {
		return 0, ErrUnknownStep
	}
	if idx != w.progress.CurrentStep {
		return 0, ErrNotCurrentStep
	}
	return idx, nil
}

func (w *Wizard) indexOf(stepID string) int {
	for i, s := range w.progress.Steps {
		if s.ID == stepID {
			return i
		}
	}
	return -1
}

// Complete marks the current step completed and moves to the next one.
// Completing the last step completes onboarding.
func (w *Wizard) Complete(ctx context.Context, stepID string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	idx, err := w.currentStep(stepID)
	if err != nil {
		return err
	}

	p, err := w.client.CompleteStep(ctx, w.tenantID, stepID)
	if err != nil {
		return fmt.Errorf("complete step: %w", err)
	}
	w.apply(p)
	util.OnboardingTransitionsTotal.WithLabelValues("complete").Inc()

	return w.advance(ctx, idx)
}

// Skip marks the current step skipped and moves to the next one.
// Only skippable steps other than the last may be skipped.
func (w *Wizard) Skip(ctx context.Context, stepID, reason string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	idx, err := w.currentStep(stepID)
	if err != nil {
		return err
	}
	if !w.progress.Steps[idx].IsSkippable || idx == len(w.progress.Steps)-1 {
		return ErrStepNotSkippable
	}

	p, err := w.client.SkipStep(ctx, w.tenantID, stepID, reason)
	if err != nil {
		return fmt.Errorf("skip step: %w", err)
	}
	w.apply(p)
	util.OnboardingTransitionsTotal.WithLabelValues("skip").Inc()

	return w.advance(ctx, idx)
}

func (w *Wizard) advance(ctx context.Context, idx int) error {
	next := idx + 1
	if next >= len(w.progress.Steps) {
		return w.finish(ctx)
	}

	p, err := w.client.UpdateProgress(ctx, w.tenantID, next)
	if err != nil {
		return fmt.Errorf("update progress: %w", err)
	}
	w.apply(p)
	return nil
}

func (w *Wizard) finish(ctx context.Context) error {
	p, err := w.client.CompleteOnboarding(ctx, w.tenantID)
	if err != nil {
		return fmt.Errorf("complete onboarding: %w", err)
	}
	w.apply(p)
	w.closed = true
	util.OnboardingTransitionsTotal.WithLabelValues("finish").Inc()

	w.logger.Info("Onboarding completed", zap.Int64("tenant_id", w.tenantID))

	if w.onComplete != nil {
		w.onComplete(ctx, w.progress)
	}
	return nil
}

// Previous moves back one step; step statuses are left untouched
func (w *Wizard) Previous(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrWizardClosed
	}
	if w.progress.CurrentStep <= 0 {
		return nil
	}

	p, err := w.client.UpdateProgress(ctx, w.tenantID, w.progress.CurrentStep-1)
	if err != nil {
		return fmt.Errorf("update progress: %w", err)
	}
	w.apply(p)
	util.OnboardingTransitionsTotal.WithLabelValues("previous").Inc()
	return nil
}

// JumpTo moves to index when it is not ahead of the current step or the target step is completed
func (w *Wizard) JumpTo(ctx context.Context, index int) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrWizardClosed
	}
	if index < 0 || index >= len(w.progress.Steps) {
		return ErrIndexOutOfRange
	}
	if index == w.progress.CurrentStep {
		return nil
	}
	if index > w.progress.CurrentStep && w.progress.Steps[index].Status != StepCompleted {
		return ErrStepLocked
	}

	p, err := w.client.UpdateProgress(ctx, w.tenantID, index)
	if err != nil {
		return fmt.Errorf("update progress: %w", err)
	}
	w.apply(p)
	util.OnboardingTransitionsTotal.WithLabelValues("jump").Inc()
	return nil
}
