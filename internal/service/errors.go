package service

import "errors"

var (
	ErrInvalidOrderItem  = errors.New("invalid order item")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidPricing    = errors.New("invalid pricing")
	ErrInvalidCurrency   = errors.New("invalid currency")
	ErrInvalidContact    = errors.New("invalid order number or shipping contact")
	ErrInvalidStatus     = errors.New("invalid status")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrOrderInProgress   = errors.New("order with this idempotency key is already being processed")
	ErrInvalidReview     = errors.New("invalid review")
	ErrInvalidCommission = errors.New("invalid commission")
)
