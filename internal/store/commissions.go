package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"salon-service/internal/models"

	"github.com/jmoiron/sqlx"
)

type commissionRow struct {
	ID          int64                   `db:"id"`
	TenantID    int64                   `db:"tenant_id"`
	StylistID   int64                   `db:"stylist_id"`
	PeriodStart time.Time               `db:"period_start"`
	PeriodEnd   time.Time               `db:"period_end"`
	FinalAmount int64                   `db:"final_amount"`
	Status      models.CommissionStatus `db:"status"`
	ApprovedBy  *int64                  `db:"approved_by"`
	ApprovedAt  *time.Time              `db:"approved_at"`
	PaidAt      *time.Time              `db:"paid_at"`
	Notes       string                  `db:"notes"`
	CreatedAt   time.Time               `db:"created_at"`
	UpdatedAt   time.Time               `db:"updated_at"`
	models.CommissionSummary
}

func (r commissionRow) toModel() *models.Commission {
	return &models.Commission{
		ID:          r.ID,
		TenantID:    r.TenantID,
		StylistID:   r.StylistID,
		PeriodStart: r.PeriodStart,
		PeriodEnd:   r.PeriodEnd,
		Summary:     r.CommissionSummary,
		FinalAmount: r.FinalAmount,
		Status:      r.Status,
		ApprovedBy:  r.ApprovedBy,
		ApprovedAt:  r.ApprovedAt,
		PaidAt:      r.PaidAt,
		Notes:       r.Notes,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

type commissionEntryRow struct {
	Kind string `db:"kind"`
	models.CommissionEntry
}

const (
	entryDeduction  = "deduction"
	entryAdjustment = "adjustment"
)

// CreateCommission persists a commission with its lines, entries and history
func (s *Store) CreateCommission(ctx context.Context, c *models.Commission) error {
	return withTx(ctx, s.db, func(tx *sqlx.Tx) error {
		sum := c.Summary
		err := tx.QueryRowxContext(ctx, `
			INSERT INTO commissions (
				tenant_id, stylist_id, period_start, period_end,
				total_sales, total_commission, appointment_count, service_count,
				total_deductions, total_adjustments, final_amount, status, notes)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
			RETURNING id, created_at, updated_at`,
			c.TenantID, c.StylistID, c.PeriodStart, c.PeriodEnd,
			sum.TotalSales, sum.TotalCommission, sum.AppointmentCount, sum.ServiceCount,
			sum.TotalDeductions, sum.TotalAdjustments, c.FinalAmount, c.Status, c.Notes,
		).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
		if err != nil {
			return mapError(err, "insert commission")
		}

		if err := insertCommissionDetails(ctx, tx, c); err != nil {
			return err
		}

		for _, h := range c.History {
			if err := insertStatusChange(ctx, tx, c.ID, h); err != nil {
				return err
			}
		}
		return nil
	})
}

// ReplaceCommissionDetails overwrites the period, lines, entries and totals of a commission
func (s *Store) ReplaceCommissionDetails(ctx context.Context, c *models.Commission) error {
	return withTx(ctx, s.db, func(tx *sqlx.Tx) error {
		sum := c.Summary
		err := tx.QueryRowxContext(ctx, `
			UPDATE commissions SET
				period_start = $2, period_end = $3,
				total_sales = $4, total_commission = $5, appointment_count = $6, service_count = $7,
				total_deductions = $8, total_adjustments = $9, final_amount = $10, notes = $11,
				updated_at = NOW()
			WHERE id = $1
			RETURNING updated_at`,
			c.ID, c.PeriodStart, c.PeriodEnd,
			sum.TotalSales, sum.TotalCommission, sum.AppointmentCount, sum.ServiceCount,
			sum.TotalDeductions, sum.TotalAdjustments, c.FinalAmount, c.Notes,
		).Scan(&c.UpdatedAt)
		if err != nil {
			return mapError(err, fmt.Sprintf("update commission %d", c.ID))
		}

		if _, err := tx.ExecContext(ctx, "DELETE FROM commission_lines WHERE commission_id = $1", c.ID); err != nil {
			return mapError(err, "clear commission lines")
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM commission_entries WHERE commission_id = $1", c.ID); err != nil {
			return mapError(err, "clear commission entries")
		}

		return insertCommissionDetails(ctx, tx, c)
	})
}

func insertCommissionDetails(ctx context.Context, tx *sqlx.Tx, c *models.Commission) error {
	for _, l := range c.Lines {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO commission_lines (commission_id, appointment_id, service_id, sale_amount, rate, commission_amount)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			c.ID, l.AppointmentID, l.ServiceID, l.SaleAmount, l.Rate, l.CommissionAmount)
		if err != nil {
			return mapError(err, "insert commission line")
		}
	}

	insertEntries := func(kind string, entries []models.CommissionEntry) error {
		for _, e := range entries {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO commission_entries (commission_id, kind, category, description, amount)
				VALUES ($1, $2, $3, $4, $5)`,
				c.ID, kind, e.Category, e.Description, e.Amount)
			if err != nil {
				return mapError(err, "insert commission "+kind)
			}
		}
		return nil
	}
	if err := insertEntries(entryDeduction, c.Deductions); err != nil {
		return err
	}
	return insertEntries(entryAdjustment, c.Adjustments)
}

func insertStatusChange(ctx context.Context, tx *sqlx.Tx, commissionID int64, h models.StatusChange) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO commission_status_history (commission_id, from_status, to_status, changed_by, changed_at, note)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		commissionID, h.From, h.To, h.By, h.At, h.Note)
	return mapError(err, "insert status change")
}

// GetCommissionByID retrieves a commission with lines, entries and history
func (s *Store) GetCommissionByID(ctx context.Context, id int64) (*models.Commission, error) {
	var row commissionRow
	if err := s.db.GetContext(ctx, &row, "SELECT * FROM commissions WHERE id = $1", id); err != nil {
		return nil, mapError(err, fmt.Sprintf("get commission %d", id))
	}
	c := row.toModel()

	c.Lines = []models.CommissionLine{}
	err := s.db.SelectContext(ctx, &c.Lines, `
		SELECT appointment_id, service_id, sale_amount, rate, commission_amount
		FROM commission_lines WHERE commission_id = $1 ORDER BY id`, id)
	if err != nil {
		return nil, mapError(err, "get commission lines")
	}

	var entries []commissionEntryRow
	err = s.db.SelectContext(ctx, &entries, `
		SELECT kind, category, description, amount
		FROM commission_entries WHERE commission_id = $1 ORDER BY id`, id)
	if err != nil {
		return nil, mapError(err, "get commission entries")
	}
	c.Deductions = []models.CommissionEntry{}
	c.Adjustments = []models.CommissionEntry{}
	for _, e := range entries {
		if e.Kind == entryDeduction {
			c.Deductions = append(c.Deductions, e.CommissionEntry)
		} else {
			c.Adjustments = append(c.Adjustments, e.CommissionEntry)
		}
	}

	err = s.db.SelectContext(ctx, &c.History, `
		SELECT from_status, to_status, changed_by, changed_at, note
		FROM commission_status_history WHERE commission_id = $1 ORDER BY id`, id)
	if err != nil {
		return nil, mapError(err, "get commission history")
	}

	return c, nil
}

// ListCommissions returns commission headers matching filter, newest period first
func (s *Store) ListCommissions(ctx context.Context, filter models.CommissionFilter) ([]models.Commission, error) {
	var (
		where []string
		args  []any
	)
	if filter.TenantID != 0 {
		args = append(args, filter.TenantID)
		where = append(where, fmt.Sprintf("tenant_id = $%d", len(args)))
	}
	if filter.StylistID != 0 {
		args = append(args, filter.StylistID)
		where = append(where, fmt.Sprintf("stylist_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}

	query := "SELECT * FROM commissions"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY period_start DESC, id DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	var rows []commissionRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, mapError(err, "list commissions")
	}

	commissions := make([]models.Commission, 0, len(rows))
	for _, r := range rows {
		commissions = append(commissions, *r.toModel())
	}
	return commissions, nil
}

// UpdateCommissionStatus writes c's status and stamps and appends change to its history.
// Returns ErrConflict when the stored status is no longer change.From.
func (s *Store) UpdateCommissionStatus(ctx context.Context, c *models.Commission, change models.StatusChange) error {
	return withTx(ctx, s.db, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE commissions SET
				status = $2, approved_by = $3, approved_at = $4, paid_at = $5, updated_at = NOW()
			WHERE id = $1 AND status = $6`,
			c.ID, c.Status, c.ApprovedBy, c.ApprovedAt, c.PaidAt, change.From)
		if err != nil {
			return mapError(err, "update commission status")
		}

		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("commission %d changed concurrently: %w", c.ID, ErrConflict)
		}

		return insertStatusChange(ctx, tx, c.ID, change)
	})
}
