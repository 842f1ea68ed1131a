package models

import (
	"errors"
	"time"
)

type CommissionStatus string

const (
	CommissionStatusPending    CommissionStatus = "pending"
	CommissionStatusCalculated CommissionStatus = "calculated"
	CommissionStatusReview     CommissionStatus = "review"
	CommissionStatusApproved   CommissionStatus = "approved"
	CommissionStatusProcessing CommissionStatus = "processing"
	CommissionStatusPaid       CommissionStatus = "paid"
	CommissionStatusHeld       CommissionStatus = "held"
	CommissionStatusDisputed   CommissionStatus = "disputed"
)

var validCommissionStatuses = map[CommissionStatus]struct{}{
	CommissionStatusPending:    {},
	CommissionStatusCalculated: {},
	CommissionStatusReview:     {},
	CommissionStatusApproved:   {},
	CommissionStatusProcessing: {},
	CommissionStatusPaid:       {},
	CommissionStatusHeld:       {},
	CommissionStatusDisputed:   {},
}

func ToCommissionStatus(s string) (CommissionStatus, error) {
	status := CommissionStatus(s)
	if _, ok := validCommissionStatuses[status]; ok {
		return status, nil
	}

	return "", errors.New("invalid commission status")
}

// Commission is a stylist's payable for one period
type Commission struct {
	ID          int64             `json:"id"`
	TenantID    int64             `json:"tenant_id"`
	StylistID   int64             `json:"stylist_id"`
	PeriodStart time.Time         `json:"period_start"`
	PeriodEnd   time.Time         `json:"period_end"`
	Lines       []CommissionLine  `json:"lines"`
	Deductions  []CommissionEntry `json:"deductions"`
	Adjustments []CommissionEntry `json:"adjustments"`
	Summary     CommissionSummary `json:"summary"`
	FinalAmount int64             `json:"final_amount"`
	Status      CommissionStatus  `json:"status"`
	ApprovedBy  *int64            `json:"approved_by,omitempty"`
	ApprovedAt  *time.Time        `json:"approved_at,omitempty"`
	PaidAt      *time.Time        `json:"paid_at,omitempty"`
	Notes       string            `json:"notes,omitempty"`
	History     []StatusChange    `json:"history,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// CommissionLine is the commission earned on one appointment service
type CommissionLine struct {
	AppointmentID    int64   `db:"appointment_id" json:"appointment_id"`
	ServiceID        int64   `db:"service_id" json:"service_id"`
	SaleAmount       int64   `db:"sale_amount" json:"sale_amount"`
	Rate             float64 `db:"rate" json:"rate"`
	CommissionAmount int64   `db:"commission_amount" json:"commission_amount"`
}

// CommissionEntry is a categorised deduction or adjustment
type CommissionEntry struct {
	Category    string `db:"category" json:"category"`
	Description string `db:"description" json:"description,omitempty"`
	Amount      int64  `db:"amount" json:"amount"`
}

// CommissionSummary holds the derived totals of a commission
type CommissionSummary struct {
	TotalSales       int64 `db:"total_sales" json:"total_sales"`
	TotalCommission  int64 `db:"total_commission" json:"total_commission"`
	AppointmentCount int   `db:"appointment_count" json:"appointment_count"`
	ServiceCount     int   `db:"service_count" json:"service_count"`
	TotalDeductions  int64 `db:"total_deductions" json:"total_deductions"`
	TotalAdjustments int64 `db:"total_adjustments" json:"total_adjustments"`
}

// StatusChange records one status transition of a commission
type StatusChange struct {
	From CommissionStatus `db:"from_status" json:"from"`
	To   CommissionStatus `db:"to_status" json:"to"`
	By   int64            `db:"changed_by" json:"by"`
	At   time.Time        `db:"changed_at" json:"at"`
	Note string           `db:"note" json:"note,omitempty"`
}

// CommissionFilter narrows commission listings; zero values are ignored
type CommissionFilter struct {
	TenantID  int64
	StylistID int64
	Status    CommissionStatus
	Limit     int
}
