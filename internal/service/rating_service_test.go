package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"salon-service/internal/models"
	"salon-service/internal/policy"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type ratingFixture struct {
	svc       *RatingService
	repo      *stubReviewRepo
	locker    *stubLocker
	publisher *stubPublisher
}

func newRatingFixture(t *testing.T, cfg RatingConfig) *ratingFixture {
	t.Helper()

	cfg.LockRetries = 2
	cfg.LockRetryDelay = time.Millisecond
	f := &ratingFixture{
		repo:      newStubReviewRepo(),
		locker:    newStubLocker(),
		publisher: &stubPublisher{},
	}
	f.svc = NewRatingService(f.repo, f.locker, f.publisher, cfg)
	return f
}

func (f *ratingFixture) review(t *testing.T, barberID, serviceID int64, rating int) *models.Review {
	t.Helper()
	return f.reviewAs(t, customer, barberID, serviceID, rating)
}

func (f *ratingFixture) reviewAs(t *testing.T, actor models.Actor, barberID, serviceID int64, rating int) *models.Review {
	t.Helper()

	r, err := f.svc.CreateReview(context.Background(), actor, &CreateReviewRequest{
		BarberID:   lo.ToPtr(barberID),
		ServiceID:  lo.ToPtr(serviceID),
		Rating:     rating,
		Categories: models.CategoryRatings{Quality: rating},
	})
	require.NoError(t, err)
	return r
}

func TestRatingAggregates_RecomputedOnCreateAndDelete(t *testing.T) {
	f := newRatingFixture(t, RatingConfig{AutoApprove: true})

	f.review(t, 10, 20, 4)
	five := f.review(t, 10, 20, 5)
	f.review(t, 10, 20, 3)

	barber, err := f.svc.GetBarberRating(context.Background(), customer, 1, 10)
	require.NoError(t, err)
	require.NotNil(t, barber.Average)
	assert.Equal(t, 4.0, *barber.Average)
	assert.Equal(t, 3, barber.Count)
	assert.Equal(t, 4.0, barber.CategoryAverages["quality"])

	tenant, err := f.svc.GetTenantRating(context.Background(), customer, 1)
	require.NoError(t, err)
	assert.Equal(t, [5]int{0, 0, 1, 1, 1}, tenant.Distribution)

	require.NoError(t, f.svc.DeleteReview(context.Background(), manager, five.ID))

	barber, err = f.svc.GetBarberRating(context.Background(), customer, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 3.5, *barber.Average)
	assert.Equal(t, 2, barber.Count)

	service, err := f.svc.GetServiceRating(context.Background(), customer, 1, 20)
	require.NoError(t, err)
	assert.Equal(t, 3.5, *service.Average)
	assert.Equal(t, 2, service.Count)

	assert.Empty(t, f.locker.held)
}

func TestRatingAggregates_RoundToOneDecimal(t *testing.T) {
	f := newRatingFixture(t, RatingConfig{AutoApprove: true})

	f.review(t, 10, 20, 5)
	f.review(t, 10, 20, 4)
	f.review(t, 10, 20, 4)

	barber, err := f.svc.GetBarberRating(context.Background(), manager, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 4.3, *barber.Average)
}

func TestRatingAggregates_UnapprovedReviewsDoNotCount(t *testing.T) {
	f := newRatingFixture(t, RatingConfig{})

	pending := f.review(t, 10, 20, 2)
	assert.Zero(t, f.repo.upserts)

	_, err := f.svc.UpdateReview(context.Background(), customer, pending.ID, &UpdateReviewRequest{Approved: lo.ToPtr(true)})
	assert.ErrorIs(t, err, policy.ErrForbidden)

	_, err = f.svc.UpdateReview(context.Background(), manager, pending.ID, &UpdateReviewRequest{Approved: lo.ToPtr(true)})
	require.NoError(t, err)

	barber, err := f.svc.GetBarberRating(context.Background(), manager, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 2.0, *barber.Average)
	assert.Equal(t, 1, barber.Count)

	_, err = f.svc.UpdateReview(context.Background(), manager, pending.ID, &UpdateReviewRequest{Approved: lo.ToPtr(false)})
	require.NoError(t, err)

	barber, err = f.svc.GetBarberRating(context.Background(), manager, 1, 10)
	require.NoError(t, err)
	assert.Nil(t, barber.Average)
	assert.Zero(t, barber.Count)
	assert.Empty(t, barber.CategoryAverages)
}

func TestRatingAggregates_RetargetRecomputesBothBarbers(t *testing.T) {
	f := newRatingFixture(t, RatingConfig{AutoApprove: true})

	r := f.review(t, 10, 20, 5)
	f.review(t, 11, 20, 3)

	_, err := f.svc.UpdateReview(context.Background(), manager, r.ID, &UpdateReviewRequest{BarberID: lo.ToPtr(int64(11))})
	require.NoError(t, err)

	old, err := f.svc.GetBarberRating(context.Background(), manager, 1, 10)
	require.NoError(t, err)
	assert.Nil(t, old.Average)

	moved, err := f.svc.GetBarberRating(context.Background(), manager, 1, 11)
	require.NoError(t, err)
	assert.Equal(t, 4.0, *moved.Average)
	assert.Equal(t, 2, moved.Count)
}

func TestRatingAggregates_IsolatedPerTenant(t *testing.T) {
	f := newRatingFixture(t, RatingConfig{AutoApprove: true})

	f.review(t, 10, 20, 5)
	f.review(t, 10, 20, 5)
	f.review(t, 10, 20, 5)
	f.reviewAs(t, outsider, 10, 20, 1)

	barber, err := f.svc.GetBarberRating(context.Background(), manager, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 5.0, *barber.Average)
	assert.Equal(t, 3, barber.Count)

	service, err := f.svc.GetServiceRating(context.Background(), manager, 1, 20)
	require.NoError(t, err)
	assert.Equal(t, 3, service.Count)

	theirs, err := f.svc.GetBarberRating(context.Background(), outsider, 2, 10)
	require.NoError(t, err)
	assert.Equal(t, 1.0, *theirs.Average)
	assert.Equal(t, 1, theirs.Count)

	_, err = f.svc.GetBarberRating(context.Background(), outsider, 1, 10)
	assert.ErrorIs(t, err, policy.ErrForbidden)
}

func TestRatingService_AsyncPublishesInsteadOfRecomputing(t *testing.T) {
	f := newRatingFixture(t, RatingConfig{AutoApprove: true, Async: true})

	r := f.review(t, 10, 20, 4)

	require.Len(t, f.publisher.reviews, 1)
	event := f.publisher.reviews[0]
	assert.Equal(t, r.ID, event.ReviewID)
	assert.Equal(t, []int64{10}, event.BarberIDs)
	assert.Equal(t, []int64{20}, event.ServiceIDs)
	assert.Zero(t, f.repo.upserts)

	require.NoError(t, f.svc.RecomputeTargets(context.Background(), event.TenantID, event.BarberIDs, event.ServiceIDs))
	assert.Equal(t, 3, f.repo.upserts)
}

func TestRatingService_AsyncFallsBackInlineWhenPublishFails(t *testing.T) {
	f := newRatingFixture(t, RatingConfig{AutoApprove: true, Async: true})
	f.publisher.err = errors.New("broker down")

	f.review(t, 10, 20, 4)

	assert.Equal(t, 3, f.repo.upserts)
}

func TestRatingService_BusyTargetDoesNotFailReview(t *testing.T) {
	f := newRatingFixture(t, RatingConfig{AutoApprove: true})
	f.locker.busy["rating:1:barber:10"] = true

	f.review(t, 10, 20, 4)

	_, err := f.svc.GetBarberRating(context.Background(), manager, 1, 10)
	assert.Error(t, err)

	err = f.svc.RecomputeTargets(context.Background(), 1, []int64{10}, nil)
	assert.ErrorIs(t, err, ErrRecomputeBusy)

	service, err := f.svc.GetServiceRating(context.Background(), manager, 1, 20)
	require.NoError(t, err)
	assert.Equal(t, 1, service.Count)
}

func TestCreateReview_Validation(t *testing.T) {
	f := newRatingFixture(t, RatingConfig{})

	_, err := f.svc.CreateReview(context.Background(), customer, &CreateReviewRequest{Rating: 6})
	assert.ErrorIs(t, err, ErrInvalidReview)

	_, err = f.svc.CreateReview(context.Background(), customer, &CreateReviewRequest{
		Rating:     4,
		Categories: models.CategoryRatings{Cleanliness: 9},
	})
	assert.ErrorIs(t, err, ErrInvalidReview)

	_, err = f.svc.CreateReview(context.Background(), customer, &CreateReviewRequest{Rating: 4, Approved: lo.ToPtr(true)})
	assert.ErrorIs(t, err, policy.ErrForbidden)

	barber := models.Actor{UserID: 3, TenantID: 1, Role: models.RoleBarber}
	_, err = f.svc.CreateReview(context.Background(), barber, &CreateReviewRequest{Rating: 4})
	assert.ErrorIs(t, err, policy.ErrForbidden)
}

func TestReviewVisibility(t *testing.T) {
	f := newRatingFixture(t, RatingConfig{})
	pending := f.review(t, 10, 20, 3)

	other := models.Actor{UserID: 9, TenantID: 1, Role: models.RoleCustomer}
	_, err := f.svc.GetReview(context.Background(), other, pending.ID)
	assert.ErrorIs(t, err, policy.ErrForbidden)

	own, err := f.svc.GetReview(context.Background(), customer, pending.ID)
	require.NoError(t, err)
	assert.False(t, own.Approved)

	listed, err := f.svc.ListReviews(context.Background(), customer, models.ReviewFilter{})
	require.NoError(t, err)
	assert.Empty(t, listed)

	listed, err = f.svc.ListReviews(context.Background(), manager, models.ReviewFilter{})
	require.NoError(t, err)
	assert.Len(t, listed, 1)
}
