package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"salon-service/internal/models"
	"salon-service/internal/store"
)

// stubOrderRepo keeps products, promotions and orders in memory.
// It serves as both OrderRepository and StockRepository.
type stubOrderRepo struct {
	mu         sync.Mutex
	products   map[int64]*models.Product
	promotions []models.Promotion
	orders     map[int64]*models.Order
	nextID     int64
	createErr  error
	restores   map[int64]int
}

func newStubOrderRepo(products ...models.Product) *stubOrderRepo {
	r := &stubOrderRepo{
		products: map[int64]*models.Product{},
		orders:   map[int64]*models.Order{},
		restores: map[int64]int{},
	}
	for i := range products {
		p := products[i]
		r.products[p.ID] = &p
	}
	return r
}

func (r *stubOrderRepo) stock(productID int64) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.products[productID].Stock
}

func (r *stubOrderRepo) orderCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.orders)
}

func (r *stubOrderRepo) GetProductsByIDs(ctx context.Context, tenantID int64, ids []int64) ([]models.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Product
	for _, id := range ids {
		if p, ok := r.products[id]; ok && p.TenantID == tenantID {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (r *stubOrderRepo) ListActivePromotions(ctx context.Context, tenantID int64, now time.Time) ([]models.Promotion, error) {
	var out []models.Promotion
	for _, p := range r.promotions {
		if p.TenantID == tenantID && p.Active {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *stubOrderRepo) DecrementStock(ctx context.Context, productID int64, quantity int) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.products[productID]
	if !ok || p.Stock < quantity {
		return false, nil
	}
	p.Stock -= quantity
	return true, nil
}

func (r *stubOrderRepo) RestoreStock(ctx context.Context, productID int64, quantity int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.products[productID].Stock += quantity
	r.restores[productID] += quantity
	return nil
}

func copyOrder(o *models.Order) *models.Order {
	c := *o
	c.Items = append([]models.OrderItem(nil), o.Items...)
	return &c
}

func (r *stubOrderRepo) CreateOrder(ctx context.Context, order *models.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return r.createErr
	}
	r.nextID++
	order.ID = r.nextID
	order.CreatedAt = time.Now()
	order.UpdatedAt = order.CreatedAt
	for i := range order.Items {
		order.Items[i].ID = int64(i + 1)
		order.Items[i].OrderID = order.ID
	}
	r.orders[order.ID] = copyOrder(order)
	return nil
}

func (r *stubOrderRepo) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return nil, fmt.Errorf("get order %d: %w", id, store.ErrNotFound)
	}
	return copyOrder(o), nil
}

func (r *stubOrderRepo) GetOrderByIdempotencyKey(ctx context.Context, key string) (*models.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, o := range r.orders {
		if o.IdempotencyKey == key {
			return copyOrder(o), nil
		}
	}
	return nil, nil
}

func (r *stubOrderRepo) ListOrders(ctx context.Context, filter models.OrderFilter) ([]models.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Order
	for _, o := range r.orders {
		if filter.TenantID != 0 && o.TenantID != filter.TenantID {
			continue
		}
		if filter.CustomerID != 0 && o.CustomerID != filter.CustomerID {
			continue
		}
		if filter.Status != "" && o.Status != filter.Status {
			continue
		}
		out = append(out, *copyOrder(o))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *stubOrderRepo) TransitionOrderStatus(ctx context.Context, id int64, from, to models.OrderStatus, shipping *models.Shipping) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok || o.Status != from {
		return false, nil
	}
	o.Status = to
	if shipping != nil {
		o.Shipping = *shipping
	}
	return true, nil
}

// stubLoyalty keeps one active record per customer
type stubLoyalty struct {
	mu      sync.Mutex
	records map[int64]*models.LoyaltyRecord
	err     error
}

func newStubLoyalty(customers ...int64) *stubLoyalty {
	l := &stubLoyalty{records: map[int64]*models.LoyaltyRecord{}}
	for _, c := range customers {
		l.records[c] = &models.LoyaltyRecord{CustomerID: c, Active: true}
	}
	return l
}

func (l *stubLoyalty) record(customerID int64) models.LoyaltyRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	return *l.records[customerID]
}

func (l *stubLoyalty) AwardLoyalty(ctx context.Context, tenantID, customerID, points, spent int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return l.err
	}
	rec, ok := l.records[customerID]
	if !ok {
		return store.ErrNotFound
	}
	rec.Points += points
	rec.LifetimePoints += points
	rec.TotalSpent += spent
	rec.OrderCount++
	return nil
}

func (l *stubLoyalty) DeductLoyalty(ctx context.Context, tenantID, customerID, points int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, ok := l.records[customerID]
	if !ok {
		return store.ErrNotFound
	}
	rec.Points = max(rec.Points-points, 0)
	return nil
}

// stubLocker hands out in-process locks; busy keys are never granted
type stubLocker struct {
	mu       sync.Mutex
	held     map[string]string
	busy     map[string]bool
	acquired []string
	seq      int
}

func newStubLocker() *stubLocker {
	return &stubLocker{held: map[string]string{}, busy: map[string]bool{}}
}

func (l *stubLocker) AcquireLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.busy[key] {
		return "", false, nil
	}
	if _, ok := l.held[key]; ok {
		return "", false, nil
	}
	l.seq++
	token := strconv.Itoa(l.seq)
	l.held[key] = token
	l.acquired = append(l.acquired, key)
	return token, true, nil
}

func (l *stubLocker) ReleaseLock(ctx context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] != token {
		return errors.New("lock not held")
	}
	delete(l.held, key)
	return nil
}

type stubCache struct {
	mu     sync.Mutex
	values map[string]string
}

func newStubCache() *stubCache {
	return &stubCache{values: map[string]string{}}
}

func (c *stubCache) SetIdempotencyKey(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] = fmt.Sprint(value)
	return nil
}

func (c *stubCache) GetIdempotencyKey(ctx context.Context, key string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.values[key], nil
}

// stubPublisher records published events
type stubPublisher struct {
	mu        sync.Mutex
	created   []*models.OrderCreatedEvent
	cancelled []*models.OrderCancelledEvent
	shipped   []*models.OrderShippedEvent
	reviews   []*models.ReviewChangedEvent
	err       error
}

func (p *stubPublisher) PublishOrderCreated(ctx context.Context, e *models.OrderCreatedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.created = append(p.created, e)
	return p.err
}

func (p *stubPublisher) PublishOrderCancelled(ctx context.Context, e *models.OrderCancelledEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cancelled = append(p.cancelled, e)
	return p.err
}

func (p *stubPublisher) PublishOrderShipped(ctx context.Context, e *models.OrderShippedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.shipped = append(p.shipped, e)
	return p.err
}

func (p *stubPublisher) PublishReviewChanged(ctx context.Context, e *models.ReviewChangedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reviews = append(p.reviews, e)
	return p.err
}

// aggregateKey identifies a barber or service aggregate within a tenant
type aggregateKey struct {
	tenantID int64
	id       int64
}

// stubReviewRepo keeps reviews and aggregates in memory
type stubReviewRepo struct {
	mu       sync.Mutex
	reviews  map[int64]*models.Review
	barbers  map[aggregateKey]*models.BarberRating
	services map[aggregateKey]*models.ServiceRating
	tenants  map[int64]*models.TenantRating
	nextID   int64
	upserts  int
}

func newStubReviewRepo() *stubReviewRepo {
	return &stubReviewRepo{
		reviews:  map[int64]*models.Review{},
		barbers:  map[aggregateKey]*models.BarberRating{},
		services: map[aggregateKey]*models.ServiceRating{},
		tenants:  map[int64]*models.TenantRating{},
	}
}

func (r *stubReviewRepo) CreateReview(ctx context.Context, rv *models.Review) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	rv.ID = r.nextID
	c := *rv
	r.reviews[rv.ID] = &c
	return nil
}

func (r *stubReviewRepo) UpdateReview(ctx context.Context, rv *models.Review) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.reviews[rv.ID]; !ok {
		return store.ErrNotFound
	}
	c := *rv
	r.reviews[rv.ID] = &c
	return nil
}

func (r *stubReviewRepo) DeleteReview(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.reviews[id]; !ok {
		return store.ErrNotFound
	}
	delete(r.reviews, id)
	return nil
}

func (r *stubReviewRepo) GetReviewByID(ctx context.Context, id int64) (*models.Review, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rv, ok := r.reviews[id]
	if !ok {
		return nil, fmt.Errorf("get review %d: %w", id, store.ErrNotFound)
	}
	c := *rv
	return &c, nil
}

func (r *stubReviewRepo) ListReviews(ctx context.Context, f models.ReviewFilter) ([]models.Review, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Review
	for _, rv := range r.reviews {
		switch {
		case f.TenantID != 0 && rv.TenantID != f.TenantID,
			f.BarberID != nil && (rv.BarberID == nil || *rv.BarberID != *f.BarberID),
			f.ServiceID != nil && (rv.ServiceID == nil || *rv.ServiceID != *f.ServiceID),
			f.CustomerID != 0 && rv.CustomerID != f.CustomerID,
			f.ApprovedOnly && !rv.Approved:
			continue
		}
		out = append(out, *rv)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *stubReviewRepo) UpsertBarberRating(ctx context.Context, a *models.BarberRating) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := *a
	r.barbers[aggregateKey{a.TenantID, a.BarberID}] = &c
	r.upserts++
	return nil
}

func (r *stubReviewRepo) GetBarberRating(ctx context.Context, tenantID, id int64) (*models.BarberRating, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.barbers[aggregateKey{tenantID, id}]
	if !ok {
		return nil, store.ErrNotFound
	}
	c := *a
	return &c, nil
}

func (r *stubReviewRepo) UpsertServiceRating(ctx context.Context, a *models.ServiceRating) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := *a
	r.services[aggregateKey{a.TenantID, a.ServiceID}] = &c
	r.upserts++
	return nil
}

func (r *stubReviewRepo) GetServiceRating(ctx context.Context, tenantID, id int64) (*models.ServiceRating, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.services[aggregateKey{tenantID, id}]
	if !ok {
		return nil, store.ErrNotFound
	}
	c := *a
	return &c, nil
}

func (r *stubReviewRepo) UpsertTenantRating(ctx context.Context, a *models.TenantRating) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := *a
	r.tenants[a.TenantID] = &c
	r.upserts++
	return nil
}

func (r *stubReviewRepo) GetTenantRating(ctx context.Context, id int64) (*models.TenantRating, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.tenants[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	c := *a
	return &c, nil
}

// stubCommissionRepo keeps commissions in memory
type stubCommissionRepo struct {
	mu          sync.Mutex
	commissions map[int64]*models.Commission
	nextID      int64
}

func newStubCommissionRepo() *stubCommissionRepo {
	return &stubCommissionRepo{commissions: map[int64]*models.Commission{}}
}

func (r *stubCommissionRepo) CreateCommission(ctx context.Context, c *models.Commission) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	c.ID = r.nextID
	cp := *c
	r.commissions[c.ID] = &cp
	return nil
}

func (r *stubCommissionRepo) ReplaceCommissionDetails(ctx context.Context, c *models.Commission) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.commissions[c.ID]; !ok {
		return store.ErrNotFound
	}
	cp := *c
	r.commissions[c.ID] = &cp
	return nil
}

func (r *stubCommissionRepo) GetCommissionByID(ctx context.Context, id int64) (*models.Commission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.commissions[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *c
	cp.History = append([]models.StatusChange(nil), c.History...)
	return &cp, nil
}

func (r *stubCommissionRepo) ListCommissions(ctx context.Context, f models.CommissionFilter) ([]models.Commission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Commission
	for _, c := range r.commissions {
		if f.TenantID != 0 && c.TenantID != f.TenantID {
			continue
		}
		if f.StylistID != 0 && c.StylistID != f.StylistID {
			continue
		}
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *stubCommissionRepo) UpdateCommissionStatus(ctx context.Context, c *models.Commission, change models.StatusChange) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.commissions[c.ID]
	if !ok {
		return store.ErrNotFound
	}
	if stored.Status != change.From {
		return store.ErrConflict
	}
	stored.Status = c.Status
	stored.ApprovedBy = c.ApprovedBy
	stored.ApprovedAt = c.ApprovedAt
	stored.PaidAt = c.PaidAt
	stored.History = append(stored.History, change)
	return nil
}
