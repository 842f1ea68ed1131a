package models

import "time"

// Event types
const (
	EventTypeOrderCreated   = "ORDER_CREATED"
	EventTypeOrderCancelled = "ORDER_CANCELLED"
	EventTypeOrderShipped   = "ORDER_SHIPPED"
	EventTypeReviewChanged  = "REVIEW_CHANGED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderCreatedEvent published when an order is persisted
type OrderCreatedEvent struct {
	BaseEvent
	OrderID     int64           `json:"order_id"`
	TenantID    int64           `json:"tenant_id"`
	CustomerID  int64           `json:"customer_id"`
	OrderNumber string          `json:"order_number"`
	Total       int64           `json:"total"`
	Items       []OrderItemData `json:"items"`
}

// OrderCancelledEvent published when an order moves to cancelled
type OrderCancelledEvent struct {
	BaseEvent
	OrderID     int64  `json:"order_id"`
	TenantID    int64  `json:"tenant_id"`
	OrderNumber string `json:"order_number"`
}

// OrderShippedEvent published when an order moves to shipped
type OrderShippedEvent struct {
	BaseEvent
	OrderID        int64  `json:"order_id"`
	TenantID       int64  `json:"tenant_id"`
	OrderNumber    string `json:"order_number"`
	Email          string `json:"email"`
	Name           string `json:"name"`
	Carrier        string `json:"carrier,omitempty"`
	TrackingNumber string `json:"tracking_number,omitempty"`
}

// ReviewChangedEvent asks for the aggregates of the listed targets to be recomputed
type ReviewChangedEvent struct {
	BaseEvent
	ReviewID   int64   `json:"review_id"`
	TenantID   int64   `json:"tenant_id"`
	BarberIDs  []int64 `json:"barber_ids,omitempty"`
	ServiceIDs []int64 `json:"service_ids,omitempty"`
}

// OrderItemData represents item data in events
type OrderItemData struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
	UnitPrice int64 `json:"unit_price"`
}
