package store

import (
	"context"
	"os"
	"testing"
	"time"

	"salon-service/internal/models"
	"salon-service/internal/onboarding"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

type storeSuite struct {
	suite.Suite

	container *postgres.PostgresContainer
	store     *Store
	tenant    models.Tenant
}

// entry point to run the tests in the suite
func TestStoreSuite(t *testing.T) {
	if os.Getenv("INTEGRATION_TESTS") == "" {
		t.Skip("Integration test - set INTEGRATION_TESTS=1 to run against a postgres container")
	}
	suite.Run(t, new(storeSuite))
}

// before all tests in the suite
func (s *storeSuite) SetupSuite() {
	ctx := context.Background()

	container, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("salon"),
		postgres.WithUsername("app"),
		postgres.WithPassword("secret"),
		postgres.BasicWaitStrategies(),
	)
	s.Require().NoError(err)
	s.container = container

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	s.Require().NoError(err)

	s.store, err = NewStore(connStr, Options{MaxOpenConns: 5, RunMigrations: true})
	s.Require().NoError(err)
}

// after all tests in the suite
func (s *storeSuite) TearDownSuite() {
	if s.store != nil {
		s.store.Close()
	}
	if s.container != nil {
		_ = testcontainers.TerminateContainer(s.container)
	}
}

// before each test: a fresh tenant keeps tests independent
func (s *storeSuite) SetupTest() {
	s.tenant = models.Tenant{Name: gofakeit.Company(), Slug: gofakeit.UUID()}
	s.Require().NoError(s.store.CreateTenant(context.Background(), &s.tenant))
}

func (s *storeSuite) randomProduct(stock int) models.Product {
	p := models.Product{
		TenantID: s.tenant.ID,
		SKU:      gofakeit.UUID(),
		Name:     gofakeit.ProductName(),
		Price:    int64(gofakeit.Number(100, 10000)),
		Stock:    stock,
	}
	s.Require().NoError(s.store.CreateProduct(context.Background(), &p))
	return p
}

func (s *storeSuite) randomOrder(product models.Product, qty int) models.Order {
	total := product.Price * int64(qty)
	return models.Order{
		TenantID:       s.tenant.ID,
		CustomerID:     int64(gofakeit.Number(1, 1000)),
		OrderNumber:    "ORD-" + gofakeit.Numerify("########") + "-" + gofakeit.LetterN(4),
		Status:         models.OrderStatusPending,
		IdempotencyKey: gofakeit.UUID(),
		Pricing: models.Pricing{
			Currency: "USD",
			Subtotal: total,
			Total:    total,
		},
		Shipping: models.Shipping{
			Name:    gofakeit.Name(),
			Email:   gofakeit.Email(),
			Address: gofakeit.Street(),
			City:    gofakeit.City(),
			Country: "US",
		},
		Payment: models.Payment{Method: "card", Status: "pending"},
		Items: []models.OrderItem{{
			ProductID:   product.ID,
			ProductName: product.Name,
			Quantity:    qty,
			UnitPrice:   product.Price,
			TotalPrice:  total,
		}},
	}
}

func (s *storeSuite) TestCreateAndGetOrder() {
	t := s.T()
	ctx := context.Background()

	product := s.randomProduct(10)
	order := s.randomOrder(product, 2)
	require.NoError(t, s.store.CreateOrder(ctx, &order))
	require.NotZero(t, order.ID)

	got, err := s.store.GetOrderByID(ctx, order.ID)
	require.NoError(t, err)

	diff := cmp.Diff(order, *got,
		cmpopts.IgnoreFields(models.Order{}, "CreatedAt", "UpdatedAt"),
	)
	assert.Empty(t, diff)

	byKey, err := s.store.GetOrderByIdempotencyKey(ctx, order.IdempotencyKey)
	require.NoError(t, err)
	assert.Equal(t, order.ID, byKey.ID)

	missing, err := s.store.GetOrderByIdempotencyKey(ctx, "no-such-key")
	require.NoError(t, err)
	assert.Nil(t, missing)

	_, err = s.store.GetOrderByID(ctx, -1)
	assert.ErrorIs(t, err, ErrNotFound)
}

func (s *storeSuite) TestDuplicateIdempotencyKey() {
	t := s.T()
	ctx := context.Background()

	product := s.randomProduct(10)
	first := s.randomOrder(product, 1)
	require.NoError(t, s.store.CreateOrder(ctx, &first))

	second := s.randomOrder(product, 1)
	second.IdempotencyKey = first.IdempotencyKey
	assert.ErrorIs(t, s.store.CreateOrder(ctx, &second), ErrConflict)
}

func (s *storeSuite) TestStockReservation() {
	t := s.T()
	ctx := context.Background()

	product := s.randomProduct(3)

	ok, err := s.store.DecrementStock(ctx, product.ID, 2)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.store.DecrementStock(ctx, product.ID, 2)
	require.NoError(t, err)
	assert.False(t, ok, "only 1 left in stock")

	require.NoError(t, s.store.RestoreStock(ctx, product.ID, 2))

	got, err := s.store.GetProductByID(ctx, product.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.Stock)
}

func (s *storeSuite) TestTransitionOrderStatus() {
	t := s.T()
	ctx := context.Background()

	order := s.randomOrder(s.randomProduct(5), 1)
	require.NoError(t, s.store.CreateOrder(ctx, &order))

	ok, err := s.store.TransitionOrderStatus(ctx, order.ID, models.OrderStatusPending, models.OrderStatusCancelled, nil)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.store.TransitionOrderStatus(ctx, order.ID, models.OrderStatusPending, models.OrderStatusCancelled, nil)
	require.NoError(t, err)
	assert.False(t, ok, "second transition from a stale status must not apply")

	order2 := s.randomOrder(s.randomProduct(5), 1)
	require.NoError(t, s.store.CreateOrder(ctx, &order2))

	shippedAt := time.Now().UTC().Truncate(time.Second)
	ship := order2.Shipping
	ship.Carrier = "UPS"
	ship.TrackingNumber = "1Z999"
	ship.ShippedAt = &shippedAt

	ok, err = s.store.TransitionOrderStatus(ctx, order2.ID, models.OrderStatusPending, models.OrderStatusShipped, &ship)
	require.NoError(t, err)
	require.True(t, ok)

	got, err := s.store.GetOrderByID(ctx, order2.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusShipped, got.Status)
	assert.Equal(t, "1Z999", got.Shipping.TrackingNumber)
	require.NotNil(t, got.Shipping.ShippedAt)
	assert.True(t, shippedAt.Equal(*got.Shipping.ShippedAt))

	list, err := s.store.ListOrders(ctx, models.OrderFilter{TenantID: s.tenant.ID, Status: models.OrderStatusShipped})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, order2.ID, list[0].ID)
}

func (s *storeSuite) TestListOrdersLoadsItems() {
	t := s.T()
	ctx := context.Background()

	customerID := int64(gofakeit.Number(2000, 3000))
	products := []models.Product{s.randomProduct(10), s.randomProduct(10)}
	for i, p := range products {
		order := s.randomOrder(p, i+1)
		order.CustomerID = customerID
		require.NoError(t, s.store.CreateOrder(ctx, &order))
	}

	list, err := s.store.ListOrders(ctx, models.OrderFilter{TenantID: s.tenant.ID, CustomerID: customerID})
	require.NoError(t, err)
	require.Len(t, list, 2)

	// newest first
	for i, order := range list {
		product := products[len(products)-1-i]
		require.Len(t, order.Items, 1)
		assert.Equal(t, order.ID, order.Items[0].OrderID)
		assert.Equal(t, product.ID, order.Items[0].ProductID)
		assert.Equal(t, len(products)-i, order.Items[0].Quantity)
	}

	empty, err := s.store.ListOrders(ctx, models.OrderFilter{TenantID: s.tenant.ID, CustomerID: -1})
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func (s *storeSuite) TestLoyalty() {
	t := s.T()
	ctx := context.Background()

	customerID := int64(gofakeit.Number(1, 1000))
	assert.ErrorIs(t, s.store.AwardLoyalty(ctx, s.tenant.ID, customerID, 10, 100), ErrNotFound)

	rec := models.LoyaltyRecord{TenantID: s.tenant.ID, CustomerID: customerID}
	require.NoError(t, s.store.CreateLoyaltyRecord(ctx, &rec))

	require.NoError(t, s.store.AwardLoyalty(ctx, s.tenant.ID, customerID, 10, 100))
	require.NoError(t, s.store.DeductLoyalty(ctx, s.tenant.ID, customerID, 25))

	got, err := s.store.GetActiveLoyaltyRecord(ctx, s.tenant.ID, customerID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), got.Points)
	assert.Equal(t, int64(10), got.LifetimePoints)
	assert.Equal(t, int64(100), got.TotalSpent)
	assert.Equal(t, 1, got.OrderCount)
}

func (s *storeSuite) TestActivePromotions() {
	t := s.T()
	ctx := context.Background()
	now := time.Now()
	past := now.Add(-time.Hour)

	low := models.Promotion{TenantID: s.tenant.ID, Name: "low", Percent: 5, Priority: 1, Active: true}
	high := models.Promotion{TenantID: s.tenant.ID, Name: "high", Percent: 10, Priority: 9, Active: true}
	expired := models.Promotion{TenantID: s.tenant.ID, Name: "expired", Percent: 50, Priority: 99, Active: true, EndsAt: &past}
	inactive := models.Promotion{TenantID: s.tenant.ID, Name: "off", Percent: 50, Priority: 99}
	for _, p := range []*models.Promotion{&low, &high, &expired, &inactive} {
		require.NoError(t, s.store.CreatePromotion(ctx, p))
	}

	got, err := s.store.ListActivePromotions(ctx, s.tenant.ID, now)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "high", got[0].Name)
	assert.Equal(t, "low", got[1].Name)
}

func (s *storeSuite) TestReviewsAndAggregates() {
	t := s.T()
	ctx := context.Background()

	barberID := int64(gofakeit.Number(1, 1_000_000))
	review := models.Review{
		TenantID:   s.tenant.ID,
		CustomerID: 7,
		BarberID:   &barberID,
		Rating:     4,
		Title:      gofakeit.BeerName(),
		Approved:   true,
		Categories: models.CategoryRatings{Quality: 5, Punctuality: 3},
	}
	require.NoError(t, s.store.CreateReview(ctx, &review))

	got, err := s.store.GetReviewByID(ctx, review.ID)
	require.NoError(t, err)
	assert.Equal(t, review.Categories, got.Categories)

	approved, err := s.store.ListReviews(ctx, models.ReviewFilter{BarberID: &barberID, ApprovedOnly: true})
	require.NoError(t, err)
	assert.Len(t, approved, 1)

	avg := 4.5
	br := models.BarberRating{
		BarberID:         barberID,
		TenantID:         s.tenant.ID,
		Average:          &avg,
		Count:            2,
		CategoryAverages: map[string]float64{"quality": 4.5},
	}
	require.NoError(t, s.store.UpsertBarberRating(ctx, &br))

	gotBR, err := s.store.GetBarberRating(ctx, s.tenant.ID, barberID)
	require.NoError(t, err)
	require.NotNil(t, gotBR.Average)
	assert.Equal(t, 4.5, *gotBR.Average)
	assert.Equal(t, br.CategoryAverages, gotBR.CategoryAverages)

	other := models.Tenant{Name: gofakeit.Company(), Slug: gofakeit.UUID()}
	require.NoError(t, s.store.CreateTenant(ctx, &other))
	one := 1.0
	require.NoError(t, s.store.UpsertBarberRating(ctx, &models.BarberRating{
		BarberID: barberID,
		TenantID: other.ID,
		Average:  &one,
		Count:    1,
	}))

	gotBR, err = s.store.GetBarberRating(ctx, s.tenant.ID, barberID)
	require.NoError(t, err)
	assert.Equal(t, 4.5, *gotBR.Average, "another tenant's aggregate for the same barber id must not overwrite this one")
	assert.Equal(t, 2, gotBR.Count)

	br.Average = nil
	br.Count = 0
	br.CategoryAverages = nil
	require.NoError(t, s.store.UpsertBarberRating(ctx, &br))

	gotBR, err = s.store.GetBarberRating(ctx, s.tenant.ID, barberID)
	require.NoError(t, err)
	assert.Nil(t, gotBR.Average)
	assert.Zero(t, gotBR.Count)

	tr := models.TenantRating{TenantID: s.tenant.ID, Average: &avg, Count: 2, Distribution: [5]int{0, 0, 0, 1, 1}}
	require.NoError(t, s.store.UpsertTenantRating(ctx, &tr))
	gotTR, err := s.store.GetTenantRating(ctx, s.tenant.ID)
	require.NoError(t, err)
	assert.Equal(t, tr.Distribution, gotTR.Distribution)

	require.NoError(t, s.store.DeleteReview(ctx, review.ID))
	assert.ErrorIs(t, s.store.DeleteReview(ctx, review.ID), ErrNotFound)
}

func (s *storeSuite) TestCommissionLifecycle() {
	t := s.T()
	ctx := context.Background()

	day := func(d int) time.Time { return time.Date(2025, 3, d, 0, 0, 0, 0, time.UTC) }
	c := models.Commission{
		TenantID:    s.tenant.ID,
		StylistID:   42,
		PeriodStart: day(1),
		PeriodEnd:   day(31),
		Lines: []models.CommissionLine{
			{AppointmentID: 1, ServiceID: 10, SaleAmount: 10000, Rate: 15, CommissionAmount: 1500},
			{AppointmentID: 2, ServiceID: 11, SaleAmount: 5000, Rate: 10, CommissionAmount: 500},
		},
		Deductions:  []models.CommissionEntry{{Category: "supplies", Amount: 200}},
		Adjustments: []models.CommissionEntry{{Category: "bonus", Amount: 100}},
		Summary: models.CommissionSummary{
			TotalSales: 15000, TotalCommission: 2000, AppointmentCount: 2, ServiceCount: 2,
			TotalDeductions: 200, TotalAdjustments: 100,
		},
		FinalAmount: 1900,
		Status:      models.CommissionStatusCalculated,
	}
	require.NoError(t, s.store.CreateCommission(ctx, &c))

	got, err := s.store.GetCommissionByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Empty(t, cmp.Diff(c.Lines, got.Lines))
	assert.Empty(t, cmp.Diff(c.Deductions, got.Deductions))
	assert.Empty(t, cmp.Diff(c.Adjustments, got.Adjustments))
	assert.Equal(t, int64(1900), got.FinalAmount)

	now := time.Now().UTC().Truncate(time.Second)
	approver := int64(99)
	got.Status = models.CommissionStatusApproved
	got.ApprovedBy = &approver
	got.ApprovedAt = &now
	change := models.StatusChange{From: models.CommissionStatusCalculated, To: models.CommissionStatusApproved, By: approver, At: now}
	require.NoError(t, s.store.UpdateCommissionStatus(ctx, got, change))

	assert.ErrorIs(t, s.store.UpdateCommissionStatus(ctx, got, change), ErrConflict)

	got, err = s.store.GetCommissionByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CommissionStatusApproved, got.Status)
	require.Len(t, got.History, 1)
	assert.Equal(t, models.CommissionStatusCalculated, got.History[0].From)

	list, err := s.store.ListCommissions(ctx, models.CommissionFilter{TenantID: s.tenant.ID, StylistID: 42})
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func (s *storeSuite) TestProgressStore() {
	t := s.T()
	ctx := context.Background()
	ps := s.store.NewProgressStore()

	_, err := ps.GetProgress(ctx, s.tenant.ID)
	assert.ErrorIs(t, err, onboarding.ErrNotStarted)

	steps := onboarding.DefaultCatalogue()
	p, err := ps.StartOnboarding(ctx, s.tenant.ID, steps)
	require.NoError(t, err)
	assert.Equal(t, onboarding.StatusInProgress, p.Status)
	assert.Len(t, p.Steps, len(steps))

	_, err = ps.SkipStep(ctx, s.tenant.ID, steps[1].ID, "later")
	assert.ErrorIs(t, err, onboarding.ErrNotCurrentStep)

	p, err = ps.CompleteStep(ctx, s.tenant.ID, steps[0].ID)
	require.NoError(t, err)
	assert.Equal(t, onboarding.StepCompleted, p.Steps[0].Status)

	p, err = ps.UpdateProgress(ctx, s.tenant.ID, 1)
	require.NoError(t, err)

	p, err = ps.SkipStep(ctx, s.tenant.ID, steps[1].ID, "later")
	require.NoError(t, err)
	assert.Equal(t, "later", p.SkipReasons[steps[1].ID])

	p, err = ps.UpdateProgress(ctx, s.tenant.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, p.CurrentStep)

	p, err = ps.CompleteOnboarding(ctx, s.tenant.ID)
	require.NoError(t, err)
	assert.Equal(t, onboarding.StatusCompleted, p.Status)
	assert.NotNil(t, p.CompletedAt)

	_, err = ps.CompleteStep(ctx, s.tenant.ID, steps[2].ID)
	assert.ErrorIs(t, err, onboarding.ErrWizardClosed)

	again, err := ps.StartOnboarding(ctx, s.tenant.ID, steps)
	require.NoError(t, err)
	assert.Equal(t, onboarding.StatusCompleted, again.Status, "starting twice keeps existing progress")
}

func (s *storeSuite) TestProgressStoreRejectsStaleComplete() {
	t := s.T()
	ctx := context.Background()
	ps := s.store.NewProgressStore()

	tenantID := s.tenant.ID
	steps := onboarding.DefaultCatalogue()
	_, err := ps.StartOnboarding(ctx, tenantID, steps)
	require.NoError(t, err)

	// two wizards loaded the same progress; the first one wins
	first := onboarding.NewWizard(ps, tenantID, steps)
	second := onboarding.NewWizard(ps, tenantID, steps)
	require.NoError(t, first.Load(ctx))
	require.NoError(t, second.Load(ctx))

	require.NoError(t, first.Complete(ctx, steps[0].ID))
	assert.ErrorIs(t, second.Complete(ctx, steps[0].ID), onboarding.ErrNotCurrentStep)

	p, err := ps.GetProgress(ctx, tenantID)
	require.NoError(t, err)
	assert.Equal(t, 1, p.CurrentStep, "stale complete must not move the wizard")
	assert.Equal(t, onboarding.StepCompleted, p.Steps[0].Status)
}
