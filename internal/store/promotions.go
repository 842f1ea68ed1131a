package store

import (
	"context"
	"time"

	"salon-service/internal/models"
)

// CreatePromotion inserts a promotion
func (s *Store) CreatePromotion(ctx context.Context, p *models.Promotion) error {
	err := s.db.QueryRowxContext(ctx, `
		INSERT INTO promotions (tenant_id, name, code, percent, priority, active, starts_at, ends_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at`,
		p.TenantID, p.Name, p.Code, p.Percent, p.Priority, p.Active, p.StartsAt, p.EndsAt,
	).Scan(&p.ID, &p.CreatedAt)
	return mapError(err, "create promotion")
}

// ListActivePromotions returns the tenant's promotions running at now, by priority
func (s *Store) ListActivePromotions(ctx context.Context, tenantID int64, now time.Time) ([]models.Promotion, error) {
	promotions := []models.Promotion{}
	err := s.db.SelectContext(ctx, &promotions, `
		SELECT * FROM promotions
		WHERE tenant_id = $1 AND active
			AND (starts_at IS NULL OR starts_at <= $2)
			AND (ends_at IS NULL OR ends_at > $2)
		ORDER BY priority DESC, id`,
		tenantID, now)
	return promotions, mapError(err, "list promotions")
}
