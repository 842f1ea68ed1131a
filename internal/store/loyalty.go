package store

import (
	"context"

	"salon-service/internal/models"
)

// CreateLoyaltyRecord opens an active loyalty record for a customer
func (s *Store) CreateLoyaltyRecord(ctx context.Context, rec *models.LoyaltyRecord) error {
	err := s.db.QueryRowxContext(ctx, `
		INSERT INTO loyalty_records (tenant_id, customer_id, points, lifetime_points, total_spent, order_count, active)
		VALUES ($1, $2, $3, $4, $5, $6, TRUE)
		RETURNING id, active, updated_at`,
		rec.TenantID, rec.CustomerID, rec.Points, rec.LifetimePoints, rec.TotalSpent, rec.OrderCount,
	).Scan(&rec.ID, &rec.Active, &rec.UpdatedAt)
	return mapError(err, "create loyalty record")
}

// GetActiveLoyaltyRecord returns the customer's active loyalty record
func (s *Store) GetActiveLoyaltyRecord(ctx context.Context, tenantID, customerID int64) (*models.LoyaltyRecord, error) {
	var rec models.LoyaltyRecord
	err := s.db.GetContext(ctx, &rec,
		"SELECT * FROM loyalty_records WHERE tenant_id = $1 AND customer_id = $2 AND active",
		tenantID, customerID)
	if err != nil {
		return nil, mapError(err, "get loyalty record")
	}
	return &rec, nil
}

// AwardLoyalty credits points for an order of amount spent.
// Returns ErrNotFound when the customer has no active record.
func (s *Store) AwardLoyalty(ctx context.Context, tenantID, customerID, points, spent int64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE loyalty_records
		SET points = points + $3,
			lifetime_points = lifetime_points + $3,
			total_spent = total_spent + $4,
			order_count = order_count + 1,
			updated_at = NOW()
		WHERE tenant_id = $1 AND customer_id = $2 AND active`,
		tenantID, customerID, points, spent)
	if err != nil {
		return mapError(err, "award loyalty")
	}
	return expectOneRow(res, "award loyalty")
}

// DeductLoyalty removes points, never going below zero.
// Returns ErrNotFound when the customer has no active record.
func (s *Store) DeductLoyalty(ctx context.Context, tenantID, customerID, points int64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE loyalty_records
		SET points = GREATEST(points - $3, 0), updated_at = NOW()
		WHERE tenant_id = $1 AND customer_id = $2 AND active`,
		tenantID, customerID, points)
	if err != nil {
		return mapError(err, "deduct loyalty")
	}
	return expectOneRow(res, "deduct loyalty")
}
