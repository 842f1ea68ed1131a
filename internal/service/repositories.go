package service

import (
	"context"
	"time"

	"salon-service/internal/models"
)

// OrderRepository is the order persistence the OrderService needs
type OrderRepository interface {
	GetProductsByIDs(ctx context.Context, tenantID int64, ids []int64) ([]models.Product, error)
	ListActivePromotions(ctx context.Context, tenantID int64, now time.Time) ([]models.Promotion, error)
	CreateOrder(ctx context.Context, order *models.Order) error
	GetOrderByID(ctx context.Context, id int64) (*models.Order, error)
	GetOrderByIdempotencyKey(ctx context.Context, key string) (*models.Order, error)
	ListOrders(ctx context.Context, filter models.OrderFilter) ([]models.Order, error)
	TransitionOrderStatus(ctx context.Context, id int64, from, to models.OrderStatus, shipping *models.Shipping) (bool, error)
}

// StockRepository adjusts product stock
type StockRepository interface {
	DecrementStock(ctx context.Context, productID int64, quantity int) (bool, error)
	RestoreStock(ctx context.Context, productID int64, quantity int) error
}

// LoyaltyRepository adjusts a customer's active loyalty record
type LoyaltyRepository interface {
	AwardLoyalty(ctx context.Context, tenantID, customerID, points, spent int64) error
	DeductLoyalty(ctx context.Context, tenantID, customerID, points int64) error
}

// ReviewRepository stores reviews and their aggregates
type ReviewRepository interface {
	CreateReview(ctx context.Context, r *models.Review) error
	UpdateReview(ctx context.Context, r *models.Review) error
	DeleteReview(ctx context.Context, id int64) error
	GetReviewByID(ctx context.Context, id int64) (*models.Review, error)
	ListReviews(ctx context.Context, filter models.ReviewFilter) ([]models.Review, error)

	UpsertBarberRating(ctx context.Context, r *models.BarberRating) error
	GetBarberRating(ctx context.Context, tenantID, barberID int64) (*models.BarberRating, error)
	UpsertServiceRating(ctx context.Context, r *models.ServiceRating) error
	GetServiceRating(ctx context.Context, tenantID, serviceID int64) (*models.ServiceRating, error)
	UpsertTenantRating(ctx context.Context, r *models.TenantRating) error
	GetTenantRating(ctx context.Context, tenantID int64) (*models.TenantRating, error)
}

// CommissionRepository stores commissions
type CommissionRepository interface {
	CreateCommission(ctx context.Context, c *models.Commission) error
	ReplaceCommissionDetails(ctx context.Context, c *models.Commission) error
	GetCommissionByID(ctx context.Context, id int64) (*models.Commission, error)
	ListCommissions(ctx context.Context, filter models.CommissionFilter) ([]models.Commission, error)
	UpdateCommissionStatus(ctx context.Context, c *models.Commission, change models.StatusChange) error
}

// Locker provides named, expiring locks
type Locker interface {
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error)
	ReleaseLock(ctx context.Context, key, token string) error
}

// IdempotencyCache maps idempotency keys to the IDs of the orders they created
type IdempotencyCache interface {
	SetIdempotencyKey(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	GetIdempotencyKey(ctx context.Context, key string) (string, error)
}

// OrderEventPublisher publishes order lifecycle events
type OrderEventPublisher interface {
	PublishOrderCreated(ctx context.Context, event *models.OrderCreatedEvent) error
	PublishOrderCancelled(ctx context.Context, event *models.OrderCancelledEvent) error
	PublishOrderShipped(ctx context.Context, event *models.OrderShippedEvent) error
}

// ReviewEventPublisher publishes review change events
type ReviewEventPublisher interface {
	PublishReviewChanged(ctx context.Context, event *models.ReviewChangedEvent) error
}
