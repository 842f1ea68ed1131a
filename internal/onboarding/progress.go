package onboarding

import "time"

// NewProgress returns in-progress state positioned on the first step
func NewProgress(tenantID int64, steps []Step, now time.Time) Progress {
	fresh := make([]Step, len(steps))
	copy(fresh, steps)
	for i := range fresh {
		fresh[i].Status = StepPending
	}
	return Progress{
		TenantID:    tenantID,
		Status:      StatusInProgress,
		Steps:       fresh,
		SkipReasons: map[string]string{},
		UpdatedAt:   now,
	}
}

func (p *Progress) step(stepID string) (*Step, error) {
	for i := range p.Steps {
		if p.Steps[i].ID == stepID {
			return &p.Steps[i], nil
		}
	}
	return nil, ErrUnknownStep
}

// current is the step stepID when it sits at the current index
func (p *Progress) current(stepID string) (*Step, error) {
	s, err := p.step(stepID)
	if err != nil {
		return nil, err
	}
	if p.CurrentStep < 0 || p.CurrentStep >= len(p.Steps) || &p.Steps[p.CurrentStep] != s {
		return nil, ErrNotCurrentStep
	}
	return s, nil
}

// MarkCompleted records the current step stepID as completed
func (p *Progress) MarkCompleted(stepID string, now time.Time) error {
	s, err := p.current(stepID)
	if err != nil {
		return err
	}
	s.Status = StepCompleted
	delete(p.SkipReasons, stepID)
	p.UpdatedAt = now
	return nil
}

// MarkSkipped records the current step stepID as skipped with reason
func (p *Progress) MarkSkipped(stepID, reason string, now time.Time) error {
	s, err := p.current(stepID)
	if err != nil {
		return err
	}
	s.Status = StepSkipped
	if p.SkipReasons == nil {
		p.SkipReasons = map[string]string{}
	}
	p.SkipReasons[stepID] = reason
	p.UpdatedAt = now
	return nil
}

// MoveTo sets the current step index
func (p *Progress) MoveTo(index int, now time.Time) error {
	if index < 0 || index >= len(p.Steps) {
		return ErrIndexOutOfRange
	}
	p.CurrentStep = index
	p.Status = StatusInProgress
	p.UpdatedAt = now
	return nil
}

// Finish marks onboarding completed
func (p *Progress) Finish(now time.Time) {
	p.CurrentStep = len(p.Steps)
	p.Status = StatusCompleted
	p.UpdatedAt = now
	p.CompletedAt = &now
}
