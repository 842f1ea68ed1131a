package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"salon-service/internal/models"
	"salon-service/internal/policy"
	"salon-service/internal/util"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ErrRecomputeBusy is returned when a target's aggregate lock stays taken
var ErrRecomputeBusy = errors.New("rating recompute already running for target")

// RatingConfig tunes the RatingService
type RatingConfig struct {
	AutoApprove    bool
	Async          bool
	LockTTL        time.Duration
	LockRetries    int
	LockRetryDelay time.Duration
}

// RatingService manages reviews and keeps the barber, service and tenant aggregates current
type RatingService struct {
	reviews ReviewRepository
	locker  Locker
	events  ReviewEventPublisher
	cfg     RatingConfig
	logger  *zap.Logger
}

// NewRatingService creates a new rating service
func NewRatingService(reviews ReviewRepository, locker Locker, events ReviewEventPublisher, cfg RatingConfig) *RatingService {
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 10 * time.Second
	}
	if cfg.LockRetries <= 0 {
		cfg.LockRetries = 5
	}
	if cfg.LockRetryDelay <= 0 {
		cfg.LockRetryDelay = 100 * time.Millisecond
	}
	return &RatingService{
		reviews: reviews,
		locker:  locker,
		events:  events,
		cfg:     cfg,
		logger:  util.GetLogger(),
	}
}

// CreateReviewRequest represents a new review
type CreateReviewRequest struct {
	TenantID      int64                  `json:"tenant_id,omitempty"`
	CustomerID    int64                  `json:"customer_id,omitempty"`
	AppointmentID *int64                 `json:"appointment_id,omitempty"`
	ServiceID     *int64                 `json:"service_id,omitempty"`
	BarberID      *int64                 `json:"barber_id,omitempty"`
	Rating        int                    `json:"rating"`
	Title         string                 `json:"title,omitempty"`
	Comment       string                 `json:"comment,omitempty"`
	Categories    models.CategoryRatings `json:"categories"`
	Approved      *bool                  `json:"approved,omitempty"`
}

// UpdateReviewRequest changes the non-nil fields of a review
type UpdateReviewRequest struct {
	ServiceID  *int64                  `json:"service_id,omitempty"`
	BarberID   *int64                  `json:"barber_id,omitempty"`
	Rating     *int                    `json:"rating,omitempty"`
	Title      *string                 `json:"title,omitempty"`
	Comment    *string                 `json:"comment,omitempty"`
	Categories *models.CategoryRatings `json:"categories,omitempty"`
	Approved   *bool                   `json:"approved,omitempty"`
}

// ratingTargets are the aggregates one review contributes to
type ratingTargets struct {
	TenantID   int64
	BarberIDs  []int64
	ServiceIDs []int64
}

func targetsOf(reviews ...*models.Review) ratingTargets {
	var t ratingTargets
	for _, r := range reviews {
		t.TenantID = r.TenantID
		if r.BarberID != nil {
			t.BarberIDs = append(t.BarberIDs, *r.BarberID)
		}
		if r.ServiceID != nil {
			t.ServiceIDs = append(t.ServiceIDs, *r.ServiceID)
		}
	}
	t.BarberIDs = lo.Uniq(t.BarberIDs)
	t.ServiceIDs = lo.Uniq(t.ServiceIDs)
	return t
}

func canModerate(actor models.Actor) bool {
	return actor.Role == models.RoleAdmin || actor.Role == models.RoleManager
}

func validateRating(rating int, categories models.CategoryRatings) error {
	if rating < 1 || rating > 5 {
		return fmt.Errorf("%w: rating %d is outside 1..5", ErrInvalidReview, rating)
	}
	for name, v := range categories.Values() {
		if v != 0 && (v < 1 || v > 5) {
			return fmt.Errorf("%w: %s rating %d is outside 1..5", ErrInvalidReview, name, v)
		}
	}
	return nil
}

// CreateReview stores a review and recomputes the aggregates it approves into
func (s *RatingService) CreateReview(ctx context.Context, actor models.Actor, req *CreateReviewRequest) (*models.Review, error) {
	ctx, span := util.StartSpan(ctx, "RatingService.CreateReview")
	defer span.End()

	tenantID := actor.TenantID
	if actor.Role == models.RoleAdmin && req.TenantID != 0 {
		tenantID = req.TenantID
	}
	customerID := req.CustomerID
	if actor.Role == models.RoleCustomer || customerID == 0 {
		customerID = actor.UserID
	}
	if err := policy.Authorize(actor, policy.ResourceReviews, policy.ActionCreate, tenantID, customerID); err != nil {
		return nil, err
	}

	if err := validateRating(req.Rating, req.Categories); err != nil {
		return nil, err
	}

	approved := s.cfg.AutoApprove
	if req.Approved != nil {
		if !canModerate(actor) {
			return nil, policy.ErrForbidden
		}
		approved = *req.Approved
	}

	review := &models.Review{
		TenantID:      tenantID,
		CustomerID:    customerID,
		AppointmentID: req.AppointmentID,
		ServiceID:     req.ServiceID,
		BarberID:      req.BarberID,
		Rating:        req.Rating,
		Title:         req.Title,
		Comment:       req.Comment,
		Approved:      approved,
		Categories:    req.Categories,
	}
	if err := s.reviews.CreateReview(ctx, review); err != nil {
		util.RecordError(span, err)
		return nil, fmt.Errorf("failed to create review: %w", err)
	}

	s.logger.Info("Review created",
		zap.Int64("review_id", review.ID),
		zap.Bool("approved", review.Approved))

	if review.Approved {
		s.reviewChanged(ctx, review.ID, targetsOf(review))
	}
	return review, nil
}

// UpdateReview applies req and recomputes every aggregate the change touches
func (s *RatingService) UpdateReview(ctx context.Context, actor models.Actor, id int64, req *UpdateReviewRequest) (*models.Review, error) {
	ctx, span := util.StartSpan(ctx, "RatingService.UpdateReview")
	defer span.End()

	before, err := s.reviews.GetReviewByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := policy.Authorize(actor, policy.ResourceReviews, policy.ActionUpdate, before.TenantID, before.CustomerID); err != nil {
		return nil, err
	}

	after := *before
	if req.ServiceID != nil {
		after.ServiceID = req.ServiceID
	}
	if req.BarberID != nil {
		after.BarberID = req.BarberID
	}
	if req.Rating != nil {
		after.Rating = *req.Rating
	}
	if req.Title != nil {
		after.Title = *req.Title
	}
	if req.Comment != nil {
		after.Comment = *req.Comment
	}
	if req.Categories != nil {
		after.Categories = *req.Categories
	}
	if req.Approved != nil && *req.Approved != before.Approved {
		if !canModerate(actor) {
			return nil, policy.ErrForbidden
		}
		after.Approved = *req.Approved
	}

	if err := validateRating(after.Rating, after.Categories); err != nil {
		return nil, err
	}

	if err := s.reviews.UpdateReview(ctx, &after); err != nil {
		util.RecordError(span, err)
		return nil, fmt.Errorf("failed to update review: %w", err)
	}

	if needsRecompute(before, &after) {
		s.reviewChanged(ctx, after.ID, targetsOf(before, &after))
	}
	return &after, nil
}

// needsRecompute reports whether an update changes what approved reviews contribute
func needsRecompute(before, after *models.Review) bool {
	if !before.Approved && !after.Approved {
		return false
	}
	if before.Approved != after.Approved {
		return true
	}
	return before.Rating != after.Rating ||
		before.Categories != after.Categories ||
		!sameRef(before.BarberID, after.BarberID) ||
		!sameRef(before.ServiceID, after.ServiceID)
}

func sameRef(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// DeleteReview removes a review; deleting an approved review recomputes its aggregates
func (s *RatingService) DeleteReview(ctx context.Context, actor models.Actor, id int64) error {
	ctx, span := util.StartSpan(ctx, "RatingService.DeleteReview")
	defer span.End()

	review, err := s.reviews.GetReviewByID(ctx, id)
	if err != nil {
		return err
	}
	if err := policy.Authorize(actor, policy.ResourceReviews, policy.ActionDelete, review.TenantID, review.CustomerID); err != nil {
		return err
	}

	if err := s.reviews.DeleteReview(ctx, id); err != nil {
		util.RecordError(span, err)
		return fmt.Errorf("failed to delete review: %w", err)
	}

	if review.Approved {
		s.reviewChanged(ctx, review.ID, targetsOf(review))
	}
	return nil
}

// GetReview retrieves a review by ID
func (s *RatingService) GetReview(ctx context.Context, actor models.Actor, id int64) (*models.Review, error) {
	review, err := s.reviews.GetReviewByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := policy.Authorize(actor, policy.ResourceReviews, policy.ActionRead, review.TenantID, review.CustomerID); err != nil {
		return nil, err
	}
	if !review.Approved && !canModerate(actor) && review.CustomerID != actor.UserID {
		return nil, policy.ErrForbidden
	}
	return review, nil
}

// ListReviews returns the reviews the actor may see; only moderators see unapproved ones
func (s *RatingService) ListReviews(ctx context.Context, actor models.Actor, filter models.ReviewFilter) ([]models.Review, error) {
	ctx, span := util.StartSpan(ctx, "RatingService.ListReviews")
	defer span.End()

	decision := policy.Check(actor, policy.ResourceReviews, policy.ActionRead)
	switch decision.Effect {
	case policy.Deny:
		return nil, policy.ErrForbidden
	case policy.Filtered:
		filter.TenantID = decision.Filter.TenantID
	}
	if !canModerate(actor) {
		filter.ApprovedOnly = true
	}
	return s.reviews.ListReviews(ctx, filter)
}

// GetBarberRating returns the barber aggregate kept for tenantID
func (s *RatingService) GetBarberRating(ctx context.Context, actor models.Actor, tenantID, barberID int64) (*models.BarberRating, error) {
	if err := policy.Authorize(actor, policy.ResourceReviews, policy.ActionRead, tenantID, 0); err != nil {
		return nil, err
	}
	return s.reviews.GetBarberRating(ctx, tenantID, barberID)
}

// GetServiceRating returns the service aggregate kept for tenantID
func (s *RatingService) GetServiceRating(ctx context.Context, actor models.Actor, tenantID, serviceID int64) (*models.ServiceRating, error) {
	if err := policy.Authorize(actor, policy.ResourceReviews, policy.ActionRead, tenantID, 0); err != nil {
		return nil, err
	}
	return s.reviews.GetServiceRating(ctx, tenantID, serviceID)
}

// GetTenantRating returns the stored tenant aggregate
func (s *RatingService) GetTenantRating(ctx context.Context, actor models.Actor, tenantID int64) (*models.TenantRating, error) {
	if err := policy.Authorize(actor, policy.ResourceReviews, policy.ActionRead, tenantID, 0); err != nil {
		return nil, err
	}
	return s.reviews.GetTenantRating(ctx, tenantID)
}

// reviewChanged recomputes inline or hands the targets to the rating worker.
// Aggregation problems are logged and never fail the review write.
func (s *RatingService) reviewChanged(ctx context.Context, reviewID int64, t ratingTargets) {
	if s.cfg.Async {
		event := &models.ReviewChangedEvent{
			ReviewID:   reviewID,
			TenantID:   t.TenantID,
			BarberIDs:  t.BarberIDs,
			ServiceIDs: t.ServiceIDs,
		}
		err := s.events.PublishReviewChanged(ctx, event)
		if err == nil {
			return
		}
		s.logger.Error("Failed to publish ReviewChanged event, recomputing inline",
			zap.Int64("review_id", reviewID),
			zap.Error(err))
	}

	if err := s.RecomputeTargets(ctx, t.TenantID, t.BarberIDs, t.ServiceIDs); err != nil {
		s.logger.Error("Rating recompute failed",
			zap.Int64("review_id", reviewID),
			zap.Error(err))
	}
}

// RecomputeTargets rebuilds the aggregates of the given barbers, services and the tenant.
// Each target is recomputed independently; the joined error reports every failure.
func (s *RatingService) RecomputeTargets(ctx context.Context, tenantID int64, barberIDs, serviceIDs []int64) error {
	ctx, span := util.StartSpan(ctx, "RatingService.RecomputeTargets")
	defer span.End()

	var errs []error
	for _, id := range barberIDs {
		errs = append(errs, s.withTargetLock(ctx, "barber", tenantID, id, func(ctx context.Context) error {
			return s.recomputeBarber(ctx, tenantID, id)
		}))
	}
	for _, id := range serviceIDs {
		errs = append(errs, s.withTargetLock(ctx, "service", tenantID, id, func(ctx context.Context) error {
			return s.recomputeService(ctx, tenantID, id)
		}))
	}
	if tenantID != 0 {
		errs = append(errs, s.withTargetLock(ctx, "tenant", tenantID, tenantID, func(ctx context.Context) error {
			return s.recomputeTenant(ctx, tenantID)
		}))
	}

	err := errors.Join(errs...)
	if err != nil {
		util.RecordError(span, err)
	}
	return err
}

// withTargetLock runs fn while holding the aggregate lock of one target within a tenant.
// fn re-scans inside the lock, so the last holder always writes the latest committed reviews.
func (s *RatingService) withTargetLock(ctx context.Context, target string, tenantID, id int64, fn func(context.Context) error) error {
	key := fmt.Sprintf("rating:%d:%s:%d", tenantID, target, id)

	var token string
	for attempt := 0; ; attempt++ {
		t, ok, err := s.locker.AcquireLock(ctx, key, s.cfg.LockTTL)
		if err != nil {
			util.RatingRecomputeFailedTotal.WithLabelValues(target, "lock_error").Inc()
			return fmt.Errorf("acquire %s: %w", key, err)
		}
		if ok {
			token = t
			break
		}
		if attempt+1 >= s.cfg.LockRetries {
			util.RatingRecomputeFailedTotal.WithLabelValues(target, "lock_busy").Inc()
			return fmt.Errorf("%s: %w", key, ErrRecomputeBusy)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.cfg.LockRetryDelay):
		}
	}
	defer func() {
		if err := s.locker.ReleaseLock(context.WithoutCancel(ctx), key, token); err != nil {
			s.logger.Warn("Failed to release rating lock", zap.String("key", key), zap.Error(err))
		}
	}()

	start := time.Now()
	err := fn(ctx)
	util.RatingRecomputeLatency.WithLabelValues(target).Observe(time.Since(start).Seconds())
	if err != nil {
		util.RatingRecomputeFailedTotal.WithLabelValues(target, "store_error").Inc()
		return fmt.Errorf("recompute %s %d: %w", target, id, err)
	}
	return nil
}

// averageOf is the mean rounded to one decimal; nil when there are no values
func averageOf(values []int) *float64 {
	if len(values) == 0 {
		return nil
	}
	sum := decimal.NewFromInt(int64(lo.Sum(values)))
	avg := sum.Div(decimal.NewFromInt(int64(len(values)))).Round(1).InexactFloat64()
	return &avg
}

func ratingsOf(reviews []models.Review) []int {
	return lo.Map(reviews, func(r models.Review, _ int) int { return r.Rating })
}

// categoryAverages averages every category over the reviews that rated it
func categoryAverages(reviews []models.Review) map[string]float64 {
	rated := map[string][]int{}
	for _, r := range reviews {
		for name, v := range r.Categories.Values() {
			if v > 0 {
				rated[name] = append(rated[name], v)
			}
		}
	}

	out := make(map[string]float64, len(rated))
	for name, values := range rated {
		out[name] = *averageOf(values)
	}
	return out
}

func (s *RatingService) recomputeBarber(ctx context.Context, tenantID, barberID int64) error {
	reviews, err := s.reviews.ListReviews(ctx, models.ReviewFilter{
		TenantID:     tenantID,
		BarberID:     &barberID,
		ApprovedOnly: true,
	})
	if err != nil {
		return err
	}

	return s.reviews.UpsertBarberRating(ctx, &models.BarberRating{
		BarberID:         barberID,
		TenantID:         tenantID,
		Average:          averageOf(ratingsOf(reviews)),
		Count:            len(reviews),
		CategoryAverages: categoryAverages(reviews),
	})
}

func (s *RatingService) recomputeService(ctx context.Context, tenantID, serviceID int64) error {
	reviews, err := s.reviews.ListReviews(ctx, models.ReviewFilter{
		TenantID:     tenantID,
		ServiceID:    &serviceID,
		ApprovedOnly: true,
	})
	if err != nil {
		return err
	}

	return s.reviews.UpsertServiceRating(ctx, &models.ServiceRating{
		ServiceID: serviceID,
		TenantID:  tenantID,
		Average:   averageOf(ratingsOf(reviews)),
		Count:     len(reviews),
	})
}

func (s *RatingService) recomputeTenant(ctx context.Context, tenantID int64) error {
	reviews, err := s.reviews.ListReviews(ctx, models.ReviewFilter{
		TenantID:     tenantID,
		ApprovedOnly: true,
	})
	if err != nil {
		return err
	}

	agg := &models.TenantRating{
		TenantID: tenantID,
		Average:  averageOf(ratingsOf(reviews)),
		Count:    len(reviews),
	}
	for _, r := range reviews {
		agg.Distribution[r.Rating-1]++
	}
	return s.reviews.UpsertTenantRating(ctx, agg)
}
