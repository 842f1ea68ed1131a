package onboarding

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memoryClient keeps progress in memory and records the calls it receives
type memoryClient struct {
	progress map[int64]*Progress
	calls    []string
	failOn   string
}

func newMemoryClient() *memoryClient {
	return &memoryClient{progress: map[int64]*Progress{}}
}

func (m *memoryClient) record(call string) error {
	m.calls = append(m.calls, call)
	if m.failOn == call {
		return errors.New("progress api unavailable")
	}
	return nil
}

func (m *memoryClient) snapshot(tenantID int64) *Progress {
	p := *m.progress[tenantID]
	p.Steps = append([]Step(nil), p.Steps...)
	return &p
}

func (m *memoryClient) StartOnboarding(ctx context.Context, tenantID int64, steps []Step) (*Progress, error) {
	if err := m.record("start"); err != nil {
		return nil, err
	}
	p := NewProgress(tenantID, steps, time.Now())
	m.progress[tenantID] = &p
	return m.snapshot(tenantID), nil
}

func (m *memoryClient) GetProgress(ctx context.Context, tenantID int64) (*Progress, error) {
	if err := m.record("get"); err != nil {
		return nil, err
	}
	if _, ok := m.progress[tenantID]; !ok {
		return nil, ErrNotStarted
	}
	return m.snapshot(tenantID), nil
}

func (m *memoryClient) CompleteStep(ctx context.Context, tenantID int64, stepID string) (*Progress, error) {
	if err := m.record("complete"); err != nil {
		return nil, err
	}
	if err := m.progress[tenantID].MarkCompleted(stepID, time.Now()); err != nil {
		return nil, err
	}
	return m.snapshot(tenantID), nil
}

func (m *memoryClient) SkipStep(ctx context.Context, tenantID int64, stepID, reason string) (*Progress, error) {
	if err := m.record("skip"); err != nil {
		return nil, err
	}
	if err := m.progress[tenantID].MarkSkipped(stepID, reason, time.Now()); err != nil {
		return nil, err
	}
	return m.snapshot(tenantID), nil
}

func (m *memoryClient) UpdateProgress(ctx context.Context, tenantID int64, currentStep int) (*Progress, error) {
	if err := m.record("update"); err != nil {
		return nil, err
	}
	if err := m.progress[tenantID].MoveTo(currentStep, time.Now()); err != nil {
		return nil, err
	}
	return m.snapshot(tenantID), nil
}

func (m *memoryClient) CompleteOnboarding(ctx context.Context, tenantID int64) (*Progress, error) {
	if err := m.record("finish"); err != nil {
		return nil, err
	}
	m.progress[tenantID].Finish(time.Now())
	return m.snapshot(tenantID), nil
}

func threeSteps() []Step {
	return []Step{
		{ID: "profile", Title: "Profile", IsRequired: true},
		{ID: "staff", Title: "Staff", IsSkippable: true},
		{ID: "launch", Title: "Launch", IsSkippable: true},
	}
}

func loadedWizard(t *testing.T, client *memoryClient, opts ...Option) *Wizard {
	t.Helper()
	w := NewWizard(client, 1, threeSteps(), opts...)
	require.NoError(t, w.Load(context.Background()))
	return w
}

func TestWizard_LoadStartsOnboarding(t *testing.T) {
	client := newMemoryClient()
	w := loadedWizard(t, client)

	state := w.State()
	assert.Equal(t, StatusInProgress, state.Status)
	assert.Equal(t, 0, state.CurrentStep)
	assert.Equal(t, StepCurrent, state.Steps[0].Status)
	assert.Equal(t, StepPending, state.Steps[1].Status)
	assert.Equal(t, []string{"get", "start"}, client.calls)
}

func TestWizard_CompleteAllSteps(t *testing.T) {
	client := newMemoryClient()
	var completed *Progress
	w := loadedWizard(t, client, WithOnComplete(func(ctx context.Context, p Progress) {
		completed = &p
	}))
	ctx := context.Background()

	require.NoError(t, w.Complete(ctx, "profile"))
	assert.Equal(t, 1, w.State().CurrentStep)

	require.NoError(t, w.Complete(ctx, "staff"))
	assert.Equal(t, 2, w.State().CurrentStep)

	require.NoError(t, w.Complete(ctx, "launch"))

	assert.True(t, w.Closed())
	require.NotNil(t, completed)
	assert.Equal(t, StatusCompleted, completed.Status)
	assert.Equal(t, 1.0, w.Fraction())

	assert.ErrorIs(t, w.Complete(ctx, "launch"), ErrWizardClosed)
	assert.ErrorIs(t, w.Previous(ctx), ErrWizardClosed)
}

func TestWizard_CompleteRequiresCurrentStep(t *testing.T) {
	w := loadedWizard(t, newMemoryClient())
	ctx := context.Background()

	assert.ErrorIs(t, w.Complete(ctx, "staff"), ErrNotCurrentStep)
	assert.ErrorIs(t, w.Complete(ctx, "missing"), ErrUnknownStep)
	assert.Equal(t, 0, w.State().CurrentStep)
}

func TestWizard_Skip(t *testing.T) {
	client := newMemoryClient()
	w := loadedWizard(t, client)
	ctx := context.Background()

	assert.ErrorIs(t, w.Skip(ctx, "profile", "later"), ErrStepNotSkippable)
	assert.Equal(t, 0, w.State().CurrentStep)

	require.NoError(t, w.Complete(ctx, "profile"))
	require.NoError(t, w.Skip(ctx, "staff", "solo shop"))

	state := w.State()
	assert.Equal(t, 2, state.CurrentStep)
	assert.Equal(t, StepSkipped, state.Steps[1].Status)
	assert.Equal(t, "solo shop", state.SkipReasons["staff"])

	// the last step is never skippable, even when flagged so
	assert.ErrorIs(t, w.Skip(ctx, "launch", "nah"), ErrStepNotSkippable)
	assert.InDelta(t, 1.0/3.0, w.Fraction(), 1e-9)
}

func TestWizard_Previous(t *testing.T) {
	w := loadedWizard(t, newMemoryClient())
	ctx := context.Background()

	require.NoError(t, w.Previous(ctx))
	assert.Equal(t, 0, w.State().CurrentStep)

	require.NoError(t, w.Complete(ctx, "profile"))
	require.NoError(t, w.Previous(ctx))

	state := w.State()
	assert.Equal(t, 0, state.CurrentStep)
	assert.Equal(t, StepPending, state.Steps[1].Status)
	assert.Equal(t, 1.0/3.0, w.Fraction())
}

func TestWizard_JumpTo(t *testing.T) {
	w := loadedWizard(t, newMemoryClient())
	ctx := context.Background()

	assert.ErrorIs(t, w.JumpTo(ctx, 2), ErrStepLocked)
	assert.ErrorIs(t, w.JumpTo(ctx, 5), ErrIndexOutOfRange)

	require.NoError(t, w.Complete(ctx, "profile"))
	require.NoError(t, w.Complete(ctx, "staff"))
	require.NoError(t, w.JumpTo(ctx, 0))
	assert.Equal(t, 0, w.State().CurrentStep)

	// forward to a completed step is allowed, past it is not
	require.NoError(t, w.JumpTo(ctx, 1))
	assert.Equal(t, 1, w.State().CurrentStep)
	assert.ErrorIs(t, w.JumpTo(ctx, 2), ErrStepLocked)
}

func TestWizard_CollaboratorFailureLeavesStateUnchanged(t *testing.T) {
	client := newMemoryClient()
	w := loadedWizard(t, client)
	client.failOn = "complete"

	err := w.Complete(context.Background(), "profile")
	require.Error(t, err)

	state := w.State()
	assert.Equal(t, 0, state.CurrentStep)
	assert.Equal(t, StepCurrent, state.Steps[0].Status)
}

func TestWizard_LoadResumesPersistedProgress(t *testing.T) {
	client := newMemoryClient()
	first := loadedWizard(t, client)
	require.NoError(t, first.Complete(context.Background(), "profile"))

	second := NewWizard(client, 1, threeSteps())
	require.NoError(t, second.Load(context.Background()))

	assert.Equal(t, 1, second.State().CurrentStep)
	assert.Equal(t, StepCompleted, second.State().Steps[0].Status)
}

func TestProgress_MarkRequiresCurrentStep(t *testing.T) {
	now := time.Now()
	p := NewProgress(1, threeSteps(), now)

	assert.ErrorIs(t, p.MarkCompleted("staff", now), ErrNotCurrentStep)
	assert.ErrorIs(t, p.MarkSkipped("staff", "later", now), ErrNotCurrentStep)
	assert.ErrorIs(t, p.MarkCompleted("nope", now), ErrUnknownStep)
	assert.Equal(t, StepPending, p.Steps[1].Status)

	require.NoError(t, p.MarkCompleted("profile", now))
	require.NoError(t, p.MoveTo(1, now))
	require.NoError(t, p.MarkSkipped("staff", "later", now))
	assert.Equal(t, "later", p.SkipReasons["staff"])

	p.Finish(now)
	assert.ErrorIs(t, p.MarkCompleted("launch", now), ErrNotCurrentStep)
}
