package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"salon-service/internal/onboarding"

	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
)

type progressRow struct {
	TenantID    int64          `db:"tenant_id"`
	Status      string         `db:"status"`
	CurrentStep int            `db:"current_step"`
	Steps       types.JSONText `db:"steps"`
	SkipReasons types.JSONText `db:"skip_reasons"`
	UpdatedAt   time.Time      `db:"updated_at"`
	CompletedAt *time.Time     `db:"completed_at"`
}

func (r progressRow) toProgress() (*onboarding.Progress, error) {
	p := &onboarding.Progress{
		TenantID:    r.TenantID,
		Status:      onboarding.Status(r.Status),
		CurrentStep: r.CurrentStep,
		UpdatedAt:   r.UpdatedAt,
		CompletedAt: r.CompletedAt,
	}
	if err := r.Steps.Unmarshal(&p.Steps); err != nil {
		return nil, fmt.Errorf("decode steps: %w", err)
	}
	if err := r.SkipReasons.Unmarshal(&p.SkipReasons); err != nil {
		return nil, fmt.Errorf("decode skip reasons: %w", err)
	}
	return p, nil
}

// ProgressStore keeps onboarding progress in Postgres.
// It is the ProgressClient used when no external progress API is configured.
type ProgressStore struct {
	db  *sqlx.DB
	now func() time.Time
}

var _ onboarding.ProgressClient = (*ProgressStore)(nil)

// NewProgressStore creates a ProgressStore on the store's connection
func (s *Store) NewProgressStore() *ProgressStore {
	return &ProgressStore{db: s.db, now: time.Now}
}

// StartOnboarding creates progress for tenantID; an existing progress is returned unchanged
func (ps *ProgressStore) StartOnboarding(ctx context.Context, tenantID int64, steps []onboarding.Step) (*onboarding.Progress, error) {
	p := onboarding.NewProgress(tenantID, steps, ps.now())

	stepsJSON, err := json.Marshal(p.Steps)
	if err != nil {
		return nil, fmt.Errorf("encode steps: %w", err)
	}

	_, err = ps.db.ExecContext(ctx, `
		INSERT INTO onboarding_progress (tenant_id, status, current_step, steps, skip_reasons, updated_at)
		VALUES ($1, $2, $3, $4, '{}', $5)
		ON CONFLICT (tenant_id) DO NOTHING`,
		tenantID, p.Status, p.CurrentStep, types.JSONText(stepsJSON), p.UpdatedAt)
	if err != nil {
		return nil, mapError(err, "start onboarding")
	}

	return ps.GetProgress(ctx, tenantID)
}

// GetProgress returns onboarding.ErrNotStarted when the tenant has no progress
func (ps *ProgressStore) GetProgress(ctx context.Context, tenantID int64) (*onboarding.Progress, error) {
	var row progressRow
	err := ps.db.GetContext(ctx, &row, "SELECT * FROM onboarding_progress WHERE tenant_id = $1", tenantID)
	if err != nil {
		err = mapError(err, "get progress")
		if isNotFound(err) {
			return nil, onboarding.ErrNotStarted
		}
		return nil, err
	}
	return row.toProgress()
}

func (ps *ProgressStore) CompleteStep(ctx context.Context, tenantID int64, stepID string) (*onboarding.Progress, error) {
	return ps.mutate(ctx, tenantID, func(p *onboarding.Progress, now time.Time) error {
		return p.MarkCompleted(stepID, now)
	})
}

func (ps *ProgressStore) SkipStep(ctx context.Context, tenantID int64, stepID, reason string) (*onboarding.Progress, error) {
	return ps.mutate(ctx, tenantID, func(p *onboarding.Progress, now time.Time) error {
		return p.MarkSkipped(stepID, reason, now)
	})
}

func (ps *ProgressStore) UpdateProgress(ctx context.Context, tenantID int64, currentStep int) (*onboarding.Progress, error) {
	return ps.mutate(ctx, tenantID, func(p *onboarding.Progress, now time.Time) error {
		return p.MoveTo(currentStep, now)
	})
}

func (ps *ProgressStore) CompleteOnboarding(ctx context.Context, tenantID int64) (*onboarding.Progress, error) {
	return ps.mutate(ctx, tenantID, func(p *onboarding.Progress, now time.Time) error {
		p.Finish(now)
		return nil
	})
}

// mutate loads the progress row for update, applies fn and writes it back
func (ps *ProgressStore) mutate(ctx context.Context, tenantID int64, fn func(*onboarding.Progress, time.Time) error) (*onboarding.Progress, error) {
	var out *onboarding.Progress

	err := withTx(ctx, ps.db, func(tx *sqlx.Tx) error {
		var row progressRow
		err := tx.GetContext(ctx, &row,
			"SELECT * FROM onboarding_progress WHERE tenant_id = $1 FOR UPDATE", tenantID)
		if err != nil {
			err = mapError(err, "load progress")
			if isNotFound(err) {
				return onboarding.ErrNotStarted
			}
			return err
		}

		p, err := row.toProgress()
		if err != nil {
			return err
		}
		if p.Status == onboarding.StatusCompleted {
			return onboarding.ErrWizardClosed
		}

		if err := fn(p, ps.now()); err != nil {
			return err
		}

		stepsJSON, err := json.Marshal(p.Steps)
		if err != nil {
			return fmt.Errorf("encode steps: %w", err)
		}
		reasonsJSON, err := json.Marshal(p.SkipReasons)
		if err != nil {
			return fmt.Errorf("encode skip reasons: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE onboarding_progress
			SET status = $2, current_step = $3, steps = $4, skip_reasons = $5, updated_at = $6, completed_at = $7
			WHERE tenant_id = $1`,
			tenantID, p.Status, p.CurrentStep, types.JSONText(stepsJSON), types.JSONText(reasonsJSON),
			p.UpdatedAt, p.CompletedAt)
		if err != nil {
			return mapError(err, "save progress")
		}

		out = p
		return nil
	})

	return out, err
}
