package service

import (
	"context"
	"fmt"
	"time"

	"salon-service/internal/models"
	"salon-service/internal/policy"
	"salon-service/internal/util"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CommissionLineInput is one appointment service a stylist is paid commission on.
// Rate is a percentage.
type CommissionLineInput struct {
	AppointmentID int64   `json:"appointment_id"`
	ServiceID     int64   `json:"service_id"`
	SaleAmount    int64   `json:"sale_amount"`
	Rate          float64 `json:"rate"`
}

// CalculateRequest holds everything a commission is derived from
type CalculateRequest struct {
	TenantID    int64                    `json:"tenant_id,omitempty"`
	StylistID   int64                    `json:"stylist_id"`
	PeriodStart time.Time                `json:"period_start"`
	PeriodEnd   time.Time                `json:"period_end"`
	Lines       []CommissionLineInput    `json:"lines"`
	Deductions  []models.CommissionEntry `json:"deductions,omitempty"`
	Adjustments []models.CommissionEntry `json:"adjustments,omitempty"`
	Notes       string                   `json:"notes,omitempty"`
}

// SetStatusRequest changes a commission's status
type SetStatusRequest struct {
	Status string `json:"status" binding:"required"`
	Note   string `json:"note,omitempty"`
}

func validateCalculateRequest(req *CalculateRequest) error {
	if req.StylistID <= 0 {
		return fmt.Errorf("%w: stylist is required", ErrInvalidCommission)
	}
	if req.PeriodStart.IsZero() || req.PeriodEnd.IsZero() {
		return fmt.Errorf("%w: period start and end are required", ErrInvalidCommission)
	}
	if req.PeriodStart.After(req.PeriodEnd) {
		return fmt.Errorf("%w: period starts after it ends", ErrInvalidCommission)
	}
	for i, l := range req.Lines {
		if l.SaleAmount < 0 {
			return fmt.Errorf("%w: line %d has a negative sale amount", ErrInvalidCommission, i)
		}
		if l.Rate < 0 || l.Rate > 100 {
			return fmt.Errorf("%w: line %d rate %.2f is outside 0..100", ErrInvalidCommission, i, l.Rate)
		}
		// rates are stored as NUMERIC(5,2)
		if r := decimal.NewFromFloat(l.Rate); !r.Equal(r.Round(2)) {
			return fmt.Errorf("%w: line %d rate %v has more than two decimals", ErrInvalidCommission, i, l.Rate)
		}
	}
	for _, e := range append(append([]models.CommissionEntry{}, req.Deductions...), req.Adjustments...) {
		if e.Amount < 0 {
			return fmt.Errorf("%w: %s entry has a negative amount", ErrInvalidCommission, e.Category)
		}
	}
	return nil
}

// Calculate derives the lines, summary and final amount of a commission.
// The final amount is not floored and may be negative.
func Calculate(req *CalculateRequest) (*models.Commission, error) {
	if err := validateCalculateRequest(req); err != nil {
		return nil, err
	}

	lines := lo.Map(req.Lines, func(l CommissionLineInput, _ int) models.CommissionLine {
		return models.CommissionLine{
			AppointmentID:    l.AppointmentID,
			ServiceID:        l.ServiceID,
			SaleAmount:       l.SaleAmount,
			Rate:             l.Rate,
			CommissionAmount: percentOf(l.SaleAmount, l.Rate),
		}
	})

	entryAmount := func(e models.CommissionEntry) int64 { return e.Amount }
	summary := models.CommissionSummary{
		TotalSales:       lo.SumBy(lines, func(l models.CommissionLine) int64 { return l.SaleAmount }),
		TotalCommission:  lo.SumBy(lines, func(l models.CommissionLine) int64 { return l.CommissionAmount }),
		AppointmentCount: len(lo.Uniq(lo.Map(lines, func(l models.CommissionLine, _ int) int64 { return l.AppointmentID }))),
		ServiceCount:     len(lines),
		TotalDeductions:  lo.SumBy(req.Deductions, entryAmount),
		TotalAdjustments: lo.SumBy(req.Adjustments, entryAmount),
	}

	return &models.Commission{
		TenantID:    req.TenantID,
		StylistID:   req.StylistID,
		PeriodStart: req.PeriodStart,
		PeriodEnd:   req.PeriodEnd,
		Lines:       lines,
		Deductions:  lo.Ternary(req.Deductions == nil, []models.CommissionEntry{}, req.Deductions),
		Adjustments: lo.Ternary(req.Adjustments == nil, []models.CommissionEntry{}, req.Adjustments),
		Summary:     summary,
		FinalAmount: summary.TotalCommission - summary.TotalDeductions + summary.TotalAdjustments,
		Status:      models.CommissionStatusCalculated,
		Notes:       req.Notes,
	}, nil
}

// CommissionService handles stylist commissions
type CommissionService struct {
	repo   CommissionRepository
	now    func() time.Time
	logger *zap.Logger
}

// NewCommissionService creates a new commission service
func NewCommissionService(repo CommissionRepository) *CommissionService {
	return &CommissionService{
		repo:   repo,
		now:    time.Now,
		logger: util.GetLogger(),
	}
}

// CreateCommission calculates and stores a commission
func (s *CommissionService) CreateCommission(ctx context.Context, actor models.Actor, req *CalculateRequest) (*models.Commission, error) {
	ctx, span := util.StartSpan(ctx, "CommissionService.CreateCommission")
	defer span.End()

	if actor.Role != models.RoleAdmin || req.TenantID == 0 {
		req.TenantID = actor.TenantID
	}
	if err := policy.Authorize(actor, policy.ResourceCommissions, policy.ActionCreate, req.TenantID, req.StylistID); err != nil {
		return nil, err
	}

	c, err := Calculate(req)
	if err != nil {
		return nil, err
	}

	if err := s.repo.CreateCommission(ctx, c); err != nil {
		util.RecordError(span, err)
		return nil, fmt.Errorf("failed to create commission: %w", err)
	}

	util.CommissionsCalculatedTotal.Inc()
	s.logger.Info("Commission calculated",
		zap.Int64("commission_id", c.ID),
		zap.Int64("stylist_id", c.StylistID),
		zap.Int64("final_amount", c.FinalAmount))
	return c, nil
}

// RecalculateCommission replaces the lines and entries of a commission and derives it again.
// Paid commissions are final.
func (s *CommissionService) RecalculateCommission(ctx context.Context, actor models.Actor, id int64, req *CalculateRequest) (*models.Commission, error) {
	ctx, span := util.StartSpan(ctx, "CommissionService.RecalculateCommission")
	defer span.End()

	existing, err := s.repo.GetCommissionByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := policy.Authorize(actor, policy.ResourceCommissions, policy.ActionUpdate, existing.TenantID, existing.StylistID); err != nil {
		return nil, err
	}
	if existing.Status == models.CommissionStatusPaid {
		return nil, fmt.Errorf("%w: commission %d is already paid", ErrInvalidTransition, id)
	}

	req.TenantID = existing.TenantID
	req.StylistID = existing.StylistID
	c, err := Calculate(req)
	if err != nil {
		return nil, err
	}

	c.ID = existing.ID
	c.Status = existing.Status
	c.ApprovedBy = existing.ApprovedBy
	c.ApprovedAt = existing.ApprovedAt
	c.PaidAt = existing.PaidAt
	c.History = existing.History
	c.CreatedAt = existing.CreatedAt

	if err := s.repo.ReplaceCommissionDetails(ctx, c); err != nil {
		util.RecordError(span, err)
		return nil, fmt.Errorf("failed to recalculate commission: %w", err)
	}

	util.CommissionsCalculatedTotal.Inc()
	return c, nil
}

// GetCommission retrieves a commission by ID
func (s *CommissionService) GetCommission(ctx context.Context, actor models.Actor, id int64) (*models.Commission, error) {
	c, err := s.repo.GetCommissionByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := policy.Authorize(actor, policy.ResourceCommissions, policy.ActionRead, c.TenantID, c.StylistID); err != nil {
		return nil, err
	}
	return c, nil
}

// ListCommissions returns the commissions the actor may see, narrowed by filter
func (s *CommissionService) ListCommissions(ctx context.Context, actor models.Actor, filter models.CommissionFilter) ([]models.Commission, error) {
	decision := policy.Check(actor, policy.ResourceCommissions, policy.ActionRead)
	switch decision.Effect {
	case policy.Deny:
		return nil, policy.ErrForbidden
	case policy.Filtered:
		filter.TenantID = decision.Filter.TenantID
		if decision.Filter.OwnerID != 0 {
			filter.StylistID = decision.Filter.OwnerID
		}
	}
	return s.repo.ListCommissions(ctx, filter)
}

// SetStatus moves a commission to any known status and records the change.
// No adjacency is enforced between statuses.
func (s *CommissionService) SetStatus(ctx context.Context, actor models.Actor, id int64, req *SetStatusRequest) (*models.Commission, error) {
	ctx, span := util.StartSpan(ctx, "CommissionService.SetStatus")
	defer span.End()

	status, err := models.ToCommissionStatus(req.Status)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, req.Status)
	}

	c, err := s.repo.GetCommissionByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := policy.Authorize(actor, policy.ResourceCommissions, policy.ActionUpdate, c.TenantID, c.StylistID); err != nil {
		return nil, err
	}
	if c.Status == status {
		return c, nil
	}

	now := s.now()
	change := models.StatusChange{
		From: c.Status,
		To:   status,
		By:   actor.UserID,
		At:   now,
		Note: req.Note,
	}

	updated := *c
	updated.Status = status
	switch status {
	case models.CommissionStatusApproved:
		updated.ApprovedBy = &actor.UserID
		updated.ApprovedAt = &now
	case models.CommissionStatusPaid:
		updated.PaidAt = &now
	}

	if err := s.repo.UpdateCommissionStatus(ctx, &updated, change); err != nil {
		util.RecordError(span, err)
		return nil, fmt.Errorf("failed to update commission status: %w", err)
	}

	updated.History = append(append([]models.StatusChange{}, c.History...), change)
	updated.UpdatedAt = now

	s.logger.Info("Commission status changed",
		zap.Int64("commission_id", c.ID),
		zap.String("from", string(change.From)),
		zap.String("to", string(change.To)))
	return &updated, nil
}
