package models

import "time"

// Role is the actor's role inside a tenant
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleManager  Role = "manager"
	RoleBarber   Role = "barber"
	RoleCustomer Role = "customer"
)

var validRoles = map[Role]struct{}{
	RoleAdmin:    {},
	RoleManager:  {},
	RoleBarber:   {},
	RoleCustomer: {},
}

// IsValid reports whether r is a known role
func (r Role) IsValid() bool {
	_, ok := validRoles[r]
	return ok
}

// Actor is the authenticated caller of an operation
type Actor struct {
	UserID   int64  `json:"user_id"`
	TenantID int64  `json:"tenant_id"`
	Role     Role   `json:"role"`
	Email    string `json:"email,omitempty"`
}

// Tenant represents an isolated business account
type Tenant struct {
	ID        int64     `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Slug      string    `db:"slug" json:"slug"`
	Active    bool      `db:"active" json:"active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Product represents a retail product sold by a tenant
type Product struct {
	ID        int64     `db:"id" json:"id"`
	TenantID  int64     `db:"tenant_id" json:"tenant_id"`
	SKU       string    `db:"sku" json:"sku"`
	Name      string    `db:"name" json:"name"`
	Price     int64     `db:"price" json:"price"`
	Stock     int       `db:"stock" json:"stock"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Promotion is a percentage discount that can be auto-applied to orders
type Promotion struct {
	ID        int64      `db:"id" json:"id"`
	TenantID  int64      `db:"tenant_id" json:"tenant_id"`
	Name      string     `db:"name" json:"name"`
	Code      string     `db:"code" json:"code"`
	Percent   float64    `db:"percent" json:"percent"`
	Priority  int        `db:"priority" json:"priority"`
	Active    bool       `db:"active" json:"active"`
	StartsAt  *time.Time `db:"starts_at" json:"starts_at,omitempty"`
	EndsAt    *time.Time `db:"ends_at" json:"ends_at,omitempty"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
}

// LoyaltyRecord is a customer's running balance of reward points
type LoyaltyRecord struct {
	ID             int64     `db:"id" json:"id"`
	TenantID       int64     `db:"tenant_id" json:"tenant_id"`
	CustomerID     int64     `db:"customer_id" json:"customer_id"`
	Points         int64     `db:"points" json:"points"`
	LifetimePoints int64     `db:"lifetime_points" json:"lifetime_points"`
	TotalSpent     int64     `db:"total_spent" json:"total_spent"`
	OrderCount     int       `db:"order_count" json:"order_count"`
	Active         bool      `db:"active" json:"active"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// ProcessedEvent for idempotency
type ProcessedEvent struct {
	EventID     string    `db:"event_id"`
	EventType   string    `db:"event_type"`
	ProcessedAt time.Time `db:"processed_at"`
}
