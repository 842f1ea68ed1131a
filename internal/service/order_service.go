package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"regexp"
	"slices"
	"strconv"
	"time"

	"salon-service/internal/models"
	"salon-service/internal/policy"
	"salon-service/internal/store"
	"salon-service/internal/util"

	"github.com/samber/lo"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const idempotencyCacheTTL = 24 * time.Hour

// orderNumberPattern bounds client-chosen order numbers; they end up in email subjects
var orderNumberPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]{0,63}$`)

// OrderConfig tunes the OrderService
type OrderConfig struct {
	LockTTL         time.Duration
	DefaultCurrency string
}

// OrderService handles order business logic
type OrderService struct {
	orders    OrderRepository
	inventory *InventoryClient
	loyalty   LoyaltyRepository
	locker    Locker
	cache     IdempotencyCache
	events    OrderEventPublisher
	cfg       OrderConfig
	now       func() time.Time
	logger    *zap.Logger
}

// NewOrderService creates a new order service
func NewOrderService(
	orders OrderRepository,
	inventory *InventoryClient,
	loyalty LoyaltyRepository,
	locker Locker,
	cache IdempotencyCache,
	events OrderEventPublisher,
	cfg OrderConfig,
) *OrderService {
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 30 * time.Second
	}
	if cfg.DefaultCurrency == "" {
		cfg.DefaultCurrency = "USD"
	}
	return &OrderService{
		orders:    orders,
		inventory: inventory,
		loyalty:   loyalty,
		locker:    locker,
		cache:     cache,
		events:    events,
		cfg:       cfg,
		now:       time.Now,
		logger:    util.GetLogger(),
	}
}

// CreateOrderRequest represents a request to create an order
type CreateOrderRequest struct {
	TenantID       int64              `json:"tenant_id,omitempty"`
	CustomerID     int64              `json:"customer_id,omitempty"`
	OrderNumber    string             `json:"order_number,omitempty"`
	Items          []OrderItemRequest `json:"items"`
	Currency       string             `json:"currency,omitempty"`
	Tax            int64              `json:"tax,omitempty"`
	Shipping       int64              `json:"shipping,omitempty"`
	Discount       int64              `json:"discount,omitempty"`
	ShipTo         models.Shipping    `json:"ship_to"`
	PaymentMethod  string             `json:"payment_method,omitempty"`
	IdempotencyKey string             `json:"idempotency_key,omitempty"`
}

// OrderItemRequest represents an item in an order.
// A zero UnitPrice takes the product's current price.
type OrderItemRequest struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
	UnitPrice int64 `json:"unit_price,omitempty"`
}

// UpdateStatusRequest moves an order to Status; carrier and tracking apply to shipped
type UpdateStatusRequest struct {
	Status         string `json:"status" binding:"required"`
	Carrier        string `json:"carrier,omitempty"`
	TrackingNumber string `json:"tracking_number,omitempty"`
}

// CreateOrder validates, prices and persists an order, then runs its side effects.
// Stock is reserved before the order is written and released again if the write fails,
// so a rejected order leaves no trace.
func (s *OrderService) CreateOrder(ctx context.Context, actor models.Actor, req *CreateOrderRequest) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.CreateOrder")
	defer span.End()

	tenantID, customerID := s.orderOwner(actor, req)
	if err := policy.Authorize(actor, policy.ResourceOrders, policy.ActionCreate, tenantID, customerID); err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int64("tenant_id", tenantID))

	if err := validateOrderItems(req.Items); err != nil {
		util.OrdersFailedTotal.WithLabelValues("invalid_items").Inc()
		return nil, err
	}
	if err := validateContact(req); err != nil {
		util.OrdersFailedTotal.WithLabelValues("invalid_contact").Inc()
		return nil, err
	}

	curr, err := normalizeCurrency(req.Currency, s.cfg.DefaultCurrency)
	if err != nil {
		util.OrdersFailedTotal.WithLabelValues("invalid_currency").Inc()
		return nil, err
	}

	if req.IdempotencyKey != "" {
		existing, err := s.cachedOrder(ctx, req.IdempotencyKey)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return authorizedOrder(actor, existing)
		}

		lockKey := "order:" + req.IdempotencyKey
		token, ok, err := s.locker.AcquireLock(ctx, lockKey, s.cfg.LockTTL)
		if err != nil {
			return nil, fmt.Errorf("failed to acquire order lock: %w", err)
		}
		if !ok {
			return nil, ErrOrderInProgress
		}
		defer func() {
			if err := s.locker.ReleaseLock(context.WithoutCancel(ctx), lockKey, token); err != nil {
				s.logger.Warn("Failed to release order lock", zap.String("key", lockKey), zap.Error(err))
			}
		}()

		existing, err = s.orders.GetOrderByIdempotencyKey(ctx, req.IdempotencyKey)
		if err != nil {
			return nil, fmt.Errorf("failed to check idempotency: %w", err)
		}
		if existing != nil {
			s.logger.Info("Duplicate order request detected",
				zap.String("idempotency_key", req.IdempotencyKey),
				zap.Int64("order_id", existing.ID))
			return authorizedOrder(actor, existing)
		}
	}

	products, err := s.loadProducts(ctx, tenantID, req.Items)
	if err != nil {
		util.OrdersFailedTotal.WithLabelValues("invalid_items").Inc()
		return nil, err
	}

	quantities := orderedQuantities(req.Items)
	if err := checkStock(quantities, products); err != nil {
		util.OrdersFailedTotal.WithLabelValues("insufficient_stock").Inc()
		return nil, err
	}

	order := &models.Order{
		TenantID:       tenantID,
		CustomerID:     customerID,
		OrderNumber:    req.OrderNumber,
		Status:         models.OrderStatusPending,
		IdempotencyKey: req.IdempotencyKey,
		Pricing: models.Pricing{
			Currency: curr,
			Tax:      req.Tax,
			Shipping: req.Shipping,
			Discount: req.Discount,
		},
		Shipping: req.ShipTo,
		Payment:  models.Payment{Method: req.PaymentMethod, Status: "pending"},
		Items: lo.Map(req.Items, func(it OrderItemRequest, _ int) models.OrderItem {
			return models.OrderItem{ProductID: it.ProductID, Quantity: it.Quantity, UnitPrice: it.UnitPrice}
		}),
	}
	if order.OrderNumber == "" {
		order.OrderNumber = GenerateOrderNumber(s.now())
	}

	subtotal := priceItems(order.Items, products)
	if order.Pricing.Discount == 0 {
		if err := s.applyPromotion(ctx, order, subtotal); err != nil {
			return nil, err
		}
	}
	if err := finalizePricing(&order.Pricing, order.Items); err != nil {
		util.OrdersFailedTotal.WithLabelValues("invalid_pricing").Inc()
		return nil, err
	}

	saga := newSaga("create_order", s.logger)

	for _, productID := range sortedKeys(quantities) {
		qty := quantities[productID]
		ok, err := s.inventory.ReserveStock(ctx, productID, qty)
		if err != nil {
			saga.Compensate(ctx)
			util.OrdersFailedTotal.WithLabelValues("reservation_failed").Inc()
			return nil, err
		}
		if !ok {
			saga.Compensate(ctx)
			util.OrdersFailedTotal.WithLabelValues("insufficient_stock").Inc()
			return nil, fmt.Errorf("%w for %s", ErrInsufficientStock, products[productID].Name)
		}
		saga.Completed(fmt.Sprintf("reserve_stock_%d", productID), func(ctx context.Context) error {
			return s.inventory.ReleaseStock(ctx, productID, qty)
		})
	}

	if err := s.orders.CreateOrder(ctx, order); err != nil {
		saga.Compensate(ctx)
		util.OrdersFailedTotal.WithLabelValues("db_error").Inc()
		util.RecordError(span, err)
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	util.OrdersCreatedTotal.Inc()
	s.logger.Info("Order created",
		zap.Int64("order_id", order.ID),
		zap.String("order_number", order.OrderNumber),
		zap.Int64("total", order.Pricing.Total))

	s.awardLoyalty(ctx, order)

	if order.IdempotencyKey != "" {
		if err := s.cache.SetIdempotencyKey(ctx, order.IdempotencyKey, order.ID, idempotencyCacheTTL); err != nil {
			s.logger.Warn("Failed to cache idempotency key", zap.Error(err))
		}
	}

	event := &models.OrderCreatedEvent{
		OrderID:     order.ID,
		TenantID:    order.TenantID,
		CustomerID:  order.CustomerID,
		OrderNumber: order.OrderNumber,
		Total:       order.Pricing.Total,
		Items: lo.Map(order.Items, func(it models.OrderItem, _ int) models.OrderItemData {
			return models.OrderItemData{ProductID: it.ProductID, Quantity: it.Quantity, UnitPrice: it.UnitPrice}
		}),
	}
	if err := s.events.PublishOrderCreated(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderCreated event", zap.Int64("order_id", order.ID), zap.Error(err))
	}

	return order, nil
}

// authorizedOrder returns order when actor may read it
func authorizedOrder(actor models.Actor, order *models.Order) (*models.Order, error) {
	if err := policy.Authorize(actor, policy.ResourceOrders, policy.ActionRead, order.TenantID, order.CustomerID); err != nil {
		return nil, err
	}
	return order, nil
}

// orderOwner resolves the tenant and customer an order is placed for
func (s *OrderService) orderOwner(actor models.Actor, req *CreateOrderRequest) (int64, int64) {
	tenantID := actor.TenantID
	if actor.Role == models.RoleAdmin && req.TenantID != 0 {
		tenantID = req.TenantID
	}

	customerID := req.CustomerID
	if actor.Role == models.RoleCustomer || customerID == 0 {
		customerID = actor.UserID
	}
	return tenantID, customerID
}

func (s *OrderService) cachedOrder(ctx context.Context, key string) (*models.Order, error) {
	cached, err := s.cache.GetIdempotencyKey(ctx, key)
	if err != nil {
		s.logger.Warn("Idempotency cache unavailable", zap.Error(err))
		return nil, nil
	}
	if cached == "" {
		return nil, nil
	}

	orderID, err := strconv.ParseInt(cached, 10, 64)
	if err != nil {
		return nil, nil
	}

	order, err := s.orders.GetOrderByID(ctx, orderID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	s.logger.Info("Duplicate order request served from cache",
		zap.String("idempotency_key", key),
		zap.Int64("order_id", order.ID))
	return order, nil
}

// validateOrderItems rejects empty orders and lines without a product or with quantity <= 0
func validateOrderItems(items []OrderItemRequest) error {
	if len(items) == 0 {
		return fmt.Errorf("%w: order has no items", ErrInvalidOrderItem)
	}
	for i, item := range items {
		if item.ProductID <= 0 {
			return fmt.Errorf("%w: item %d has no product", ErrInvalidOrderItem, i)
		}
		if item.Quantity <= 0 {
			return fmt.Errorf("%w: item %d has quantity %d", ErrInvalidOrderItem, i, item.Quantity)
		}
		if item.UnitPrice < 0 {
			return fmt.Errorf("%w: item %d has a negative price", ErrInvalidOrderItem, i)
		}
	}
	return nil
}

// validateContact checks the client-supplied order number and ship-to email
func validateContact(req *CreateOrderRequest) error {
	if req.OrderNumber != "" && !orderNumberPattern.MatchString(req.OrderNumber) {
		return fmt.Errorf("%w: order number %q", ErrInvalidContact, req.OrderNumber)
	}
	if email := req.ShipTo.Email; email != "" {
		addr, err := mail.ParseAddress(email)
		if err != nil || addr.Name != "" || addr.Address != email {
			return fmt.Errorf("%w: email %q", ErrInvalidContact, email)
		}
	}
	return nil
}

// loadProducts fetches the tenant's products referenced by items
func (s *OrderService) loadProducts(ctx context.Context, tenantID int64, items []OrderItemRequest) (map[int64]models.Product, error) {
	ids := lo.Uniq(lo.Map(items, func(it OrderItemRequest, _ int) int64 { return it.ProductID }))

	products, err := s.orders.GetProductsByIDs(ctx, tenantID, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load products: %w", err)
	}

	byID := lo.KeyBy(products, func(p models.Product) int64 { return p.ID })
	for _, id := range ids {
		if _, ok := byID[id]; !ok {
			return nil, fmt.Errorf("%w: product %d not found", ErrInvalidOrderItem, id)
		}
	}
	return byID, nil
}

// orderedQuantities sums the requested quantity per product
func orderedQuantities(items []OrderItemRequest) map[int64]int {
	quantities := make(map[int64]int, len(items))
	for _, it := range items {
		quantities[it.ProductID] += it.Quantity
	}
	return quantities
}

func checkStock(quantities map[int64]int, products map[int64]models.Product) error {
	for _, id := range sortedKeys(quantities) {
		p := products[id]
		if p.Stock-quantities[id] < 0 {
			return fmt.Errorf("%w for %s", ErrInsufficientStock, p.Name)
		}
	}
	return nil
}

func sortedKeys(m map[int64]int) []int64 {
	keys := lo.Keys(m)
	slices.Sort(keys)
	return keys
}

func (s *OrderService) applyPromotion(ctx context.Context, order *models.Order, subtotal int64) error {
	promotions, err := s.orders.ListActivePromotions(ctx, order.TenantID, s.now())
	if err != nil {
		return fmt.Errorf("failed to load promotions: %w", err)
	}

	promo := firstPromotion(promotions)
	if promo == nil {
		return nil
	}

	order.PromotionID = &promo.ID
	order.Pricing.Discount = percentOf(subtotal, promo.Percent)
	s.logger.Debug("Promotion applied",
		zap.Int64("promotion_id", promo.ID),
		zap.Int64("discount", order.Pricing.Discount))
	return nil
}

func (s *OrderService) awardLoyalty(ctx context.Context, order *models.Order) {
	points := loyaltyPointsEarned(order.Pricing.Total)

	err := s.loyalty.AwardLoyalty(ctx, order.TenantID, order.CustomerID, points, order.Pricing.Total)
	if errors.Is(err, store.ErrNotFound) {
		s.logger.Info("No active loyalty record, points not awarded",
			zap.Int64("customer_id", order.CustomerID),
			zap.Int64("order_id", order.ID))
		return
	}
	if err != nil {
		s.logger.Error("Failed to award loyalty points",
			zap.Int64("order_id", order.ID),
			zap.Error(err))
		return
	}

	util.LoyaltyPointsAwardedTotal.Add(float64(points))
}

// GetOrder retrieves an order by ID
func (s *OrderService) GetOrder(ctx context.Context, actor models.Actor, orderID int64) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.GetOrder")
	defer span.End()

	order, err := s.orders.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return authorizedOrder(actor, order)
}

// ListOrders returns the orders the actor may see, narrowed by filter
func (s *OrderService) ListOrders(ctx context.Context, actor models.Actor, filter models.OrderFilter) ([]models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.ListOrders")
	defer span.End()

	decision := policy.Check(actor, policy.ResourceOrders, policy.ActionRead)
	switch decision.Effect {
	case policy.Deny:
		return nil, policy.ErrForbidden
	case policy.Filtered:
		filter.TenantID = decision.Filter.TenantID
		if decision.Filter.OwnerID != 0 {
			filter.CustomerID = decision.Filter.OwnerID
		}
	}

	if filter.Status != "" {
		if _, err := models.ToOrderStatus(string(filter.Status)); err != nil {
			return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, filter.Status)
		}
	}

	return s.orders.ListOrders(ctx, filter)
}

// UpdateStatus moves an order to a new status and runs the transition's side effects.
// The write is a compare-and-set on the previous status, so side effects run once
// even when the same transition is requested concurrently or repeatedly.
func (s *OrderService) UpdateStatus(ctx context.Context, actor models.Actor, orderID int64, req *UpdateStatusRequest) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.UpdateStatus",
		attribute.Int64("order_id", orderID),
		attribute.String("status", req.Status))
	defer span.End()

	status, err := models.ToOrderStatus(req.Status)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, req.Status)
	}

	order, err := s.orders.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := policy.Authorize(actor, policy.ResourceOrders, policy.ActionUpdate, order.TenantID, order.CustomerID); err != nil {
		return nil, err
	}

	if order.Status == status {
		return order, nil
	}
	if order.Status == models.OrderStatusCancelled || order.Status == models.OrderStatusRefunded {
		return nil, fmt.Errorf("%w: order %s is %s", ErrInvalidTransition, order.OrderNumber, order.Status)
	}

	var shipping *models.Shipping
	if status == models.OrderStatusShipped {
		now := s.now()
		ship := order.Shipping
		if req.Carrier != "" {
			ship.Carrier = req.Carrier
		}
		if req.TrackingNumber != "" {
			ship.TrackingNumber = req.TrackingNumber
		}
		ship.ShippedAt = &now
		shipping = &ship
	}

	from := order.Status
	applied, err := s.orders.TransitionOrderStatus(ctx, order.ID, from, status, shipping)
	if err != nil {
		util.RecordError(span, err)
		return nil, fmt.Errorf("failed to update order status: %w", err)
	}
	if !applied {
		current, err := s.orders.GetOrderByID(ctx, order.ID)
		if err != nil {
			return nil, err
		}
		if current.Status == status {
			s.logger.Info("Order status already applied",
				zap.Int64("order_id", order.ID),
				zap.String("status", string(status)))
			return current, nil
		}
		return nil, fmt.Errorf("order %d changed concurrently: %w", order.ID, store.ErrConflict)
	}

	order.Status = status
	order.UpdatedAt = s.now()
	if shipping != nil {
		order.Shipping = *shipping
	}

	util.OrderStatusTransitionsTotal.WithLabelValues(string(status)).Inc()
	s.logger.Info("Order status updated",
		zap.Int64("order_id", order.ID),
		zap.String("from", string(from)),
		zap.String("to", string(status)))

	switch status {
	case models.OrderStatusCancelled:
		s.onCancelled(ctx, order)
	case models.OrderStatusShipped:
		s.onShipped(ctx, order)
	}

	return order, nil
}

func (s *OrderService) onCancelled(ctx context.Context, order *models.Order) {
	for _, item := range order.Items {
		if err := s.inventory.ReleaseStock(ctx, item.ProductID, item.Quantity); err != nil {
			s.logger.Error("Failed to restore stock for cancelled order",
				zap.Int64("order_id", order.ID),
				zap.Int64("product_id", item.ProductID),
				zap.Error(err))
		}
	}

	points := loyaltyPointsForfeited(order.Pricing.Total)
	err := s.loyalty.DeductLoyalty(ctx, order.TenantID, order.CustomerID, points)
	switch {
	case errors.Is(err, store.ErrNotFound):
		s.logger.Info("No active loyalty record, points not deducted",
			zap.Int64("customer_id", order.CustomerID))
	case err != nil:
		s.logger.Error("Failed to deduct loyalty points",
			zap.Int64("order_id", order.ID),
			zap.Error(err))
	default:
		util.LoyaltyPointsDeductedTotal.Add(float64(points))
	}

	event := &models.OrderCancelledEvent{
		OrderID:     order.ID,
		TenantID:    order.TenantID,
		OrderNumber: order.OrderNumber,
	}
	if err := s.events.PublishOrderCancelled(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderCancelled event", zap.Int64("order_id", order.ID), zap.Error(err))
	}
}

// onShipped hands the shipping email to the notification worker
func (s *OrderService) onShipped(ctx context.Context, order *models.Order) {
	event := &models.OrderShippedEvent{
		OrderID:        order.ID,
		TenantID:       order.TenantID,
		OrderNumber:    order.OrderNumber,
		Email:          order.Shipping.Email,
		Name:           order.Shipping.Name,
		Carrier:        order.Shipping.Carrier,
		TrackingNumber: order.Shipping.TrackingNumber,
	}
	if err := s.events.PublishOrderShipped(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderShipped event", zap.Int64("order_id", order.ID), zap.Error(err))
	}
}
