package models

import "time"

// Review is a customer's rating of an appointment, service or barber
type Review struct {
	ID            int64           `db:"id" json:"id"`
	TenantID      int64           `db:"tenant_id" json:"tenant_id"`
	CustomerID    int64           `db:"customer_id" json:"customer_id"`
	AppointmentID *int64          `db:"appointment_id" json:"appointment_id,omitempty"`
	ServiceID     *int64          `db:"service_id" json:"service_id,omitempty"`
	BarberID      *int64          `db:"barber_id" json:"barber_id,omitempty"`
	Rating        int             `db:"rating" json:"rating"`
	Title         string          `db:"title" json:"title"`
	Comment       string          `db:"comment" json:"comment"`
	Approved      bool            `db:"approved" json:"approved"`
	Categories    CategoryRatings `db:"-" json:"categories"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at" json:"updated_at"`
}

// CategoryRatings are optional sub-ratings; 0 means not rated
type CategoryRatings struct {
	Quality     int `db:"quality" json:"quality,omitempty"`
	Service     int `db:"service_rating" json:"service,omitempty"`
	Cleanliness int `db:"cleanliness" json:"cleanliness,omitempty"`
	Value       int `db:"value_rating" json:"value,omitempty"`
	Punctuality int `db:"punctuality" json:"punctuality,omitempty"`
}

// Values returns the sub-ratings keyed by category name
func (c CategoryRatings) Values() map[string]int {
	return map[string]int{
		"quality":     c.Quality,
		"service":     c.Service,
		"cleanliness": c.Cleanliness,
		"value":       c.Value,
		"punctuality": c.Punctuality,
	}
}

// ReviewFilter narrows review scans; nil pointers are ignored
type ReviewFilter struct {
	TenantID     int64
	BarberID     *int64
	ServiceID    *int64
	CustomerID   int64
	ApprovedOnly bool
	Limit        int
}

// BarberRating is the stored aggregate for one barber
type BarberRating struct {
	BarberID         int64              `json:"barber_id"`
	TenantID         int64              `json:"tenant_id"`
	Average          *float64           `json:"average"`
	Count            int                `json:"count"`
	CategoryAverages map[string]float64 `json:"category_averages,omitempty"`
	UpdatedAt        time.Time          `json:"updated_at"`
}

// ServiceRating is the stored aggregate for one service
type ServiceRating struct {
	ServiceID int64     `json:"service_id"`
	TenantID  int64     `json:"tenant_id"`
	Average   *float64  `json:"average"`
	Count     int       `json:"count"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TenantRating is the tenant-wide aggregate with a 1..5 star distribution
type TenantRating struct {
	TenantID     int64     `json:"tenant_id"`
	Average      *float64  `json:"average"`
	Count        int       `json:"count"`
	Distribution [5]int    `json:"distribution"`
	UpdatedAt    time.Time `json:"updated_at"`
}
