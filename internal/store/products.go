package store

import (
	"context"

	"salon-service/internal/models"

	"github.com/jmoiron/sqlx"
)

// CreateProduct inserts a product
func (s *Store) CreateProduct(ctx context.Context, p *models.Product) error {
	query := `
		INSERT INTO products (tenant_id, sku, name, price, stock)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at`

	err := s.db.QueryRowxContext(ctx, query, p.TenantID, p.SKU, p.Name, p.Price, p.Stock).
		Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	return mapError(err, "create product")
}

// GetProductByID retrieves a product by ID
func (s *Store) GetProductByID(ctx context.Context, id int64) (*models.Product, error) {
	var product models.Product
	err := s.db.GetContext(ctx, &product, "SELECT * FROM products WHERE id = $1", id)
	if err != nil {
		return nil, mapError(err, "get product")
	}
	return &product, nil
}

// GetProductsByIDs retrieves the tenant's products among ids
func (s *Store) GetProductsByIDs(ctx context.Context, tenantID int64, ids []int64) ([]models.Product, error) {
	if len(ids) == 0 {
		return []models.Product{}, nil
	}

	query, args, err := sqlx.In("SELECT * FROM products WHERE tenant_id = ? AND id IN (?)", tenantID, ids)
	if err != nil {
		return nil, err
	}
	query = s.db.Rebind(query)

	var products []models.Product
	err = s.db.SelectContext(ctx, &products, query, args...)
	return products, mapError(err, "get products")
}

// DecrementStock takes quantity off a product, floored at zero.
// It reports false without changing anything when stock is insufficient.
func (s *Store) DecrementStock(ctx context.Context, productID int64, quantity int) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE products SET stock = GREATEST(stock - $1, 0), updated_at = NOW()
		 WHERE id = $2 AND stock >= $1`,
		quantity, productID)
	if err != nil {
		return false, mapError(err, "decrement stock")
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// RestoreStock puts quantity back on a product
func (s *Store) RestoreStock(ctx context.Context, productID int64, quantity int) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE products SET stock = stock + $1, updated_at = NOW() WHERE id = $2",
		quantity, productID)
	return mapError(err, "restore stock")
}
