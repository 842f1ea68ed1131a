// Package onboarding drives a tenant through the ordered setup steps of a new shop.
//
// The Wizard owns the transition rules; durable state lives behind a ProgressClient,
// so a wizard can be rebuilt at any time with Load.
package onboarding

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotStarted       = errors.New("onboarding not started")
	ErrWizardClosed     = errors.New("onboarding already completed")
	ErrUnknownStep      = errors.New("unknown onboarding step")
	ErrNotCurrentStep   = errors.New("step is not the current step")
	ErrStepNotSkippable = errors.New("step cannot be skipped")
	ErrStepLocked       = errors.New("step cannot be reached before the steps ahead of it are completed")
	ErrIndexOutOfRange  = errors.New("step index out of range")
)

type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepCurrent   StepStatus = "current"
	StepCompleted StepStatus = "completed"
	StepSkipped   StepStatus = "skipped"
)

type Status string

const (
	StatusNotStarted Status = "not_started"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
)

// Step is one entry of the onboarding sequence
type Step struct {
	ID          string     `json:"id" yaml:"id"`
	Title       string     `json:"title" yaml:"title"`
	Description string     `json:"description,omitempty" yaml:"description"`
	IsSkippable bool       `json:"is_skippable" yaml:"skippable"`
	IsRequired  bool       `json:"is_required" yaml:"required"`
	Status      StepStatus `json:"status" yaml:"-"`
}

// Progress is the persisted onboarding state of a tenant.
// CurrentStep equal to len(Steps) means every step has been passed.
type Progress struct {
	TenantID    int64             `json:"tenant_id"`
	Status      Status            `json:"status"`
	CurrentStep int               `json:"current_step"`
	Steps       []Step            `json:"steps"`
	SkipReasons map[string]string `json:"skip_reasons,omitempty"`
	UpdatedAt   time.Time         `json:"updated_at"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`
}

// Fraction is completedCount / totalSteps
func (p Progress) Fraction() float64 {
	if len(p.Steps) == 0 {
		return 0
	}
	completed := 0
	for _, s := range p.Steps {
		if s.Status == StepCompleted {
			completed++
		}
	}
	return float64(completed) / float64(len(p.Steps))
}

// ProgressClient is the external progress-tracking service.
// GetProgress returns ErrNotStarted when the tenant has no progress yet.
type ProgressClient interface {
	StartOnboarding(ctx context.Context, tenantID int64, steps []Step) (*Progress, error)
	GetProgress(ctx context.Context, tenantID int64) (*Progress, error)
	CompleteStep(ctx context.Context, tenantID int64, stepID string) (*Progress, error)
	SkipStep(ctx context.Context, tenantID int64, stepID, reason string) (*Progress, error)
	UpdateProgress(ctx context.Context, tenantID int64, currentStep int) (*Progress, error)
	CompleteOnboarding(ctx context.Context, tenantID int64) (*Progress, error)
}
