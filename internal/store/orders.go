package store

import (
	"context"
	"fmt"
	"strings"

	"salon-service/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// orderRow flattens the grouped order columns for sqlx
type orderRow struct {
	models.Order
	models.Pricing
	models.Shipping
	models.Payment
}

func (r orderRow) toModel() *models.Order {
	order := r.Order
	order.Pricing = r.Pricing
	order.Shipping = r.Shipping
	order.Payment = r.Payment
	return &order
}

// CreateOrder persists an order and its items in one transaction
func (s *Store) CreateOrder(ctx context.Context, order *models.Order) error {
	return withTx(ctx, s.db, func(tx *sqlx.Tx) error {
		query := `
			INSERT INTO orders (
				tenant_id, customer_id, order_number, status, promotion_id, idempotency_key,
				currency, subtotal, tax, shipping_cost, discount, total,
				ship_name, ship_email, ship_address, ship_city, ship_postal_code, ship_country,
				ship_carrier, ship_tracking_number, shipped_at,
				payment_method, payment_status, payment_tx_id)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12,
				$13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24)
			RETURNING id, created_at, updated_at`

		p, sh, pay := order.Pricing, order.Shipping, order.Payment
		err := tx.QueryRowxContext(ctx, query,
			order.TenantID, order.CustomerID, order.OrderNumber, order.Status, order.PromotionID, order.IdempotencyKey,
			p.Currency, p.Subtotal, p.Tax, p.Shipping, p.Discount, p.Total,
			sh.Name, sh.Email, sh.Address, sh.City, sh.PostalCode, sh.Country,
			sh.Carrier, sh.TrackingNumber, sh.ShippedAt,
			pay.Method, pay.Status, pay.TransactionID,
		).Scan(&order.ID, &order.CreatedAt, &order.UpdatedAt)
		if err != nil {
			return mapError(err, "insert order")
		}

		for i := range order.Items {
			item := &order.Items[i]
			item.OrderID = order.ID
			err := tx.QueryRowxContext(ctx, `
				INSERT INTO order_items (order_id, product_id, product_name, quantity, unit_price, total_price)
				VALUES ($1, $2, $3, $4, $5, $6)
				RETURNING id`,
				item.OrderID, item.ProductID, item.ProductName, item.Quantity, item.UnitPrice, item.TotalPrice,
			).Scan(&item.ID)
			if err != nil {
				return mapError(err, "insert order item")
			}
		}

		return nil
	})
}

// GetOrderByID retrieves an order with its items
func (s *Store) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	var row orderRow
	if err := s.db.GetContext(ctx, &row, "SELECT * FROM orders WHERE id = $1", id); err != nil {
		return nil, mapError(err, fmt.Sprintf("get order %d", id))
	}

	order := row.toModel()
	items, err := s.GetOrderItemsByOrderID(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	order.Items = items

	return order, nil
}

// GetOrderByIdempotencyKey retrieves an order by idempotency key, nil when absent
func (s *Store) GetOrderByIdempotencyKey(ctx context.Context, key string) (*models.Order, error) {
	var id int64
	err := s.db.GetContext(ctx, &id, "SELECT id FROM orders WHERE idempotency_key = $1", key)
	if err != nil {
		err = mapError(err, "get order by idempotency key")
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return s.GetOrderByID(ctx, id)
}

// ListOrders returns orders matching filter, newest first
func (s *Store) ListOrders(ctx context.Context, filter models.OrderFilter) ([]models.Order, error) {
	var (
		where []string
		args  []any
	)
	if filter.TenantID != 0 {
		args = append(args, filter.TenantID)
		where = append(where, fmt.Sprintf("tenant_id = $%d", len(args)))
	}
	if filter.CustomerID != 0 {
		args = append(args, filter.CustomerID)
		where = append(where, fmt.Sprintf("customer_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}

	query := "SELECT * FROM orders"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	var rows []orderRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, mapError(err, "list orders")
	}

	orders := make([]models.Order, 0, len(rows))
	ids := make([]int64, 0, len(rows))
	for _, r := range rows {
		orders = append(orders, *r.toModel())
		ids = append(ids, r.Order.ID)
	}
	if len(ids) == 0 {
		return orders, nil
	}

	var items []models.OrderItem
	if err := s.db.SelectContext(ctx, &items,
		"SELECT * FROM order_items WHERE order_id = ANY($1) ORDER BY id", pq.Array(ids)); err != nil {
		return nil, mapError(err, "list order items")
	}
	byOrder := make(map[int64][]models.OrderItem, len(ids))
	for _, item := range items {
		byOrder[item.OrderID] = append(byOrder[item.OrderID], item)
	}
	for i := range orders {
		orders[i].Items = byOrder[orders[i].ID]
		if orders[i].Items == nil {
			orders[i].Items = []models.OrderItem{}
		}
	}
	return orders, nil
}

// TransitionOrderStatus moves an order from one status to another.
// It reports false when the order is no longer in status from.
// A non-nil shipping replaces the stored shipping columns.
func (s *Store) TransitionOrderStatus(ctx context.Context, id int64, from, to models.OrderStatus, shipping *models.Shipping) (bool, error) {
	query := "UPDATE orders SET status = $1, updated_at = NOW() WHERE id = $2 AND status = $3"
	args := []any{to, id, from}

	if shipping != nil {
		query = `
			UPDATE orders SET status = $1, updated_at = NOW(),
				ship_carrier = $4, ship_tracking_number = $5, shipped_at = $6
			WHERE id = $2 AND status = $3`
		args = append(args, shipping.Carrier, shipping.TrackingNumber, shipping.ShippedAt)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, mapError(err, "transition order status")
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// GetOrderItemsByOrderID retrieves all items for an order
func (s *Store) GetOrderItemsByOrderID(ctx context.Context, orderID int64) ([]models.OrderItem, error) {
	items := []models.OrderItem{}
	err := s.db.SelectContext(ctx, &items,
		"SELECT * FROM order_items WHERE order_id = $1 ORDER BY id", orderID)
	return items, mapError(err, "get order items")
}
