package models

import (
	"errors"
	"time"
)

type OrderStatus string

// remember to add new statuses to the validOrderStatuses map
const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusConfirmed  OrderStatus = "confirmed"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
	OrderStatusRefunded   OrderStatus = "refunded"
)

var validOrderStatuses = map[OrderStatus]struct{}{
	OrderStatusPending:    {},
	OrderStatusConfirmed:  {},
	OrderStatusProcessing: {},
	OrderStatusShipped:    {},
	OrderStatusDelivered:  {},
	OrderStatusCancelled:  {},
	OrderStatusRefunded:   {},
}

func ToOrderStatus(s string) (OrderStatus, error) {
	status := OrderStatus(s)
	if _, ok := validOrderStatuses[status]; ok {
		return status, nil
	}

	return "", errors.New("invalid order status")
}

// Order represents a customer order
type Order struct {
	ID             int64       `db:"id" json:"id"`
	TenantID       int64       `db:"tenant_id" json:"tenant_id"`
	CustomerID     int64       `db:"customer_id" json:"customer_id"`
	OrderNumber    string      `db:"order_number" json:"order_number"`
	Status         OrderStatus `db:"status" json:"status"`
	PromotionID    *int64      `db:"promotion_id" json:"promotion_id,omitempty"`
	IdempotencyKey string      `db:"idempotency_key" json:"idempotency_key,omitempty"`
	Pricing        Pricing     `db:"-" json:"pricing"`
	Shipping       Shipping    `db:"-" json:"shipping"`
	Payment        Payment     `db:"-" json:"payment"`
	Items          []OrderItem `db:"-" json:"items"`
	CreatedAt      time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time   `db:"updated_at" json:"updated_at"`
}

// Pricing is the monetary breakdown of an order, in minor currency units
type Pricing struct {
	Currency string `db:"currency" json:"currency"`
	Subtotal int64  `db:"subtotal" json:"subtotal"`
	Tax      int64  `db:"tax" json:"tax"`
	Shipping int64  `db:"shipping_cost" json:"shipping"`
	Discount int64  `db:"discount" json:"discount"`
	Total    int64  `db:"total" json:"total"`
}

// Shipping holds the delivery details of an order
type Shipping struct {
	Name           string     `db:"ship_name" json:"name"`
	Email          string     `db:"ship_email" json:"email"`
	Address        string     `db:"ship_address" json:"address"`
	City           string     `db:"ship_city" json:"city"`
	PostalCode     string     `db:"ship_postal_code" json:"postal_code"`
	Country        string     `db:"ship_country" json:"country"`
	Carrier        string     `db:"ship_carrier" json:"carrier,omitempty"`
	TrackingNumber string     `db:"ship_tracking_number" json:"tracking_number,omitempty"`
	ShippedAt      *time.Time `db:"shipped_at" json:"shipped_at,omitempty"`
}

// Payment holds the payment details of an order
type Payment struct {
	Method        string `db:"payment_method" json:"method"`
	Status        string `db:"payment_status" json:"status"`
	TransactionID string `db:"payment_tx_id" json:"transaction_id,omitempty"`
}

// OrderItem represents a line of an order
type OrderItem struct {
	ID          int64  `db:"id" json:"id"`
	OrderID     int64  `db:"order_id" json:"order_id"`
	ProductID   int64  `db:"product_id" json:"product_id"`
	ProductName string `db:"product_name" json:"product_name"`
	Quantity    int    `db:"quantity" json:"quantity"`
	UnitPrice   int64  `db:"unit_price" json:"unit_price"`
	TotalPrice  int64  `db:"total_price" json:"total_price"`
}

// OrderFilter narrows order listings; zero values are ignored
type OrderFilter struct {
	TenantID   int64
	CustomerID int64
	Status     OrderStatus
	Limit      int
}
