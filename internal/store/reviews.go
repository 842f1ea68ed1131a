package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"salon-service/internal/models"

	"github.com/jmoiron/sqlx/types"
)

type reviewRow struct {
	models.Review
	models.CategoryRatings
}

func (r reviewRow) toModel() *models.Review {
	review := r.Review
	review.Categories = r.CategoryRatings
	return &review
}

// CreateReview inserts a review
func (s *Store) CreateReview(ctx context.Context, r *models.Review) error {
	c := r.Categories
	err := s.db.QueryRowxContext(ctx, `
		INSERT INTO reviews (
			tenant_id, customer_id, appointment_id, service_id, barber_id,
			rating, title, comment, approved,
			quality, service_rating, cleanliness, value_rating, punctuality)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING id, created_at, updated_at`,
		r.TenantID, r.CustomerID, r.AppointmentID, r.ServiceID, r.BarberID,
		r.Rating, r.Title, r.Comment, r.Approved,
		c.Quality, c.Service, c.Cleanliness, c.Value, c.Punctuality,
	).Scan(&r.ID, &r.CreatedAt, &r.UpdatedAt)
	return mapError(err, "create review")
}

// UpdateReview overwrites the mutable fields of a review
func (s *Store) UpdateReview(ctx context.Context, r *models.Review) error {
	c := r.Categories
	err := s.db.QueryRowxContext(ctx, `
		UPDATE reviews SET
			appointment_id = $2, service_id = $3, barber_id = $4,
			rating = $5, title = $6, comment = $7, approved = $8,
			quality = $9, service_rating = $10, cleanliness = $11, value_rating = $12, punctuality = $13,
			updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`,
		r.ID, r.AppointmentID, r.ServiceID, r.BarberID,
		r.Rating, r.Title, r.Comment, r.Approved,
		c.Quality, c.Service, c.Cleanliness, c.Value, c.Punctuality,
	).Scan(&r.UpdatedAt)
	return mapError(err, fmt.Sprintf("update review %d", r.ID))
}

// DeleteReview removes a review
func (s *Store) DeleteReview(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM reviews WHERE id = $1", id)
	if err != nil {
		return mapError(err, "delete review")
	}
	return expectOneRow(res, fmt.Sprintf("delete review %d", id))
}

// GetReviewByID retrieves a review
func (s *Store) GetReviewByID(ctx context.Context, id int64) (*models.Review, error) {
	var row reviewRow
	if err := s.db.GetContext(ctx, &row, "SELECT * FROM reviews WHERE id = $1", id); err != nil {
		return nil, mapError(err, fmt.Sprintf("get review %d", id))
	}
	return row.toModel(), nil
}

// ListReviews returns reviews matching filter, newest first
func (s *Store) ListReviews(ctx context.Context, filter models.ReviewFilter) ([]models.Review, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if filter.TenantID != 0 {
		add("tenant_id = $%d", filter.TenantID)
	}
	if filter.BarberID != nil {
		add("barber_id = $%d", *filter.BarberID)
	}
	if filter.ServiceID != nil {
		add("service_id = $%d", *filter.ServiceID)
	}
	if filter.CustomerID != 0 {
		add("customer_id = $%d", filter.CustomerID)
	}
	if filter.ApprovedOnly {
		where = append(where, "approved")
	}

	query := "SELECT * FROM reviews"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	var rows []reviewRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, mapError(err, "list reviews")
	}

	reviews := make([]models.Review, 0, len(rows))
	for _, r := range rows {
		reviews = append(reviews, *r.toModel())
	}
	return reviews, nil
}

type barberRatingRow struct {
	BarberID         int64          `db:"barber_id"`
	TenantID         int64          `db:"tenant_id"`
	Average          *float64       `db:"average"`
	Count            int            `db:"count"`
	CategoryAverages types.JSONText `db:"category_averages"`
	UpdatedAt        time.Time      `db:"updated_at"`
}

// UpsertBarberRating stores a barber aggregate
func (s *Store) UpsertBarberRating(ctx context.Context, r *models.BarberRating) error {
	categories := r.CategoryAverages
	if categories == nil {
		categories = map[string]float64{}
	}
	raw, err := json.Marshal(categories)
	if err != nil {
		return fmt.Errorf("marshal category averages: %w", err)
	}

	err = s.db.QueryRowxContext(ctx, `
		INSERT INTO barber_ratings (barber_id, tenant_id, average, count, category_averages, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (tenant_id, barber_id) DO UPDATE SET
			average = EXCLUDED.average,
			count = EXCLUDED.count,
			category_averages = EXCLUDED.category_averages,
			updated_at = EXCLUDED.updated_at
		RETURNING updated_at`,
		r.BarberID, r.TenantID, r.Average, r.Count, types.JSONText(raw),
	).Scan(&r.UpdatedAt)
	return mapError(err, "upsert barber rating")
}

// GetBarberRating retrieves a barber aggregate within a tenant
func (s *Store) GetBarberRating(ctx context.Context, tenantID, barberID int64) (*models.BarberRating, error) {
	var row barberRatingRow
	err := s.db.GetContext(ctx, &row,
		"SELECT * FROM barber_ratings WHERE tenant_id = $1 AND barber_id = $2", tenantID, barberID)
	if err != nil {
		return nil, mapError(err, "get barber rating")
	}

	rating := &models.BarberRating{
		BarberID:  row.BarberID,
		TenantID:  row.TenantID,
		Average:   row.Average,
		Count:     row.Count,
		UpdatedAt: row.UpdatedAt,
	}
	if err := row.CategoryAverages.Unmarshal(&rating.CategoryAverages); err != nil {
		return nil, fmt.Errorf("decode category averages: %w", err)
	}
	return rating, nil
}

// UpsertServiceRating stores a service aggregate
func (s *Store) UpsertServiceRating(ctx context.Context, r *models.ServiceRating) error {
	err := s.db.QueryRowxContext(ctx, `
		INSERT INTO service_ratings (service_id, tenant_id, average, count, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (tenant_id, service_id) DO UPDATE SET
			average = EXCLUDED.average,
			count = EXCLUDED.count,
			updated_at = EXCLUDED.updated_at
		RETURNING updated_at`,
		r.ServiceID, r.TenantID, r.Average, r.Count,
	).Scan(&r.UpdatedAt)
	return mapError(err, "upsert service rating")
}

// GetServiceRating retrieves a service aggregate within a tenant
func (s *Store) GetServiceRating(ctx context.Context, tenantID, serviceID int64) (*models.ServiceRating, error) {
	var r models.ServiceRating
	err := s.db.QueryRowxContext(ctx, `
		SELECT service_id, tenant_id, average, count, updated_at
		FROM service_ratings WHERE tenant_id = $1 AND service_id = $2`,
		tenantID, serviceID,
	).Scan(&r.ServiceID, &r.TenantID, &r.Average, &r.Count, &r.UpdatedAt)
	if err != nil {
		return nil, mapError(err, "get service rating")
	}
	return &r, nil
}

// UpsertTenantRating stores a tenant aggregate
func (s *Store) UpsertTenantRating(ctx context.Context, r *models.TenantRating) error {
	d := r.Distribution
	err := s.db.QueryRowxContext(ctx, `
		INSERT INTO tenant_ratings (tenant_id, average, count, dist_1, dist_2, dist_3, dist_4, dist_5, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		ON CONFLICT (tenant_id) DO UPDATE SET
			average = EXCLUDED.average,
			count = EXCLUDED.count,
			dist_1 = EXCLUDED.dist_1,
			dist_2 = EXCLUDED.dist_2,
			dist_3 = EXCLUDED.dist_3,
			dist_4 = EXCLUDED.dist_4,
			dist_5 = EXCLUDED.dist_5,
			updated_at = EXCLUDED.updated_at
		RETURNING updated_at`,
		r.TenantID, r.Average, r.Count, d[0], d[1], d[2], d[3], d[4],
	).Scan(&r.UpdatedAt)
	return mapError(err, "upsert tenant rating")
}

// GetTenantRating retrieves a tenant aggregate
func (s *Store) GetTenantRating(ctx context.Context, tenantID int64) (*models.TenantRating, error) {
	var r models.TenantRating
	d := &r.Distribution
	err := s.db.QueryRowxContext(ctx, `
		SELECT tenant_id, average, count, dist_1, dist_2, dist_3, dist_4, dist_5, updated_at
		FROM tenant_ratings WHERE tenant_id = $1`,
		tenantID,
	).Scan(&r.TenantID, &r.Average, &r.Count, &d[0], &d[1], &d[2], &d[3], &d[4], &r.UpdatedAt)
	if err != nil {
		return nil, mapError(err, "get tenant rating")
	}
	return &r, nil
}
