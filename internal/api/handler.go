package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"salon-service/internal/models"
	"salon-service/internal/onboarding"
	"salon-service/internal/policy"
	"salon-service/internal/service"
	"salon-service/internal/store"
	"salon-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// OrderService is the order API the handlers call
type OrderService interface {
	CreateOrder(ctx context.Context, actor models.Actor, req *service.CreateOrderRequest) (*models.Order, error)
	GetOrder(ctx context.Context, actor models.Actor, orderID int64) (*models.Order, error)
	ListOrders(ctx context.Context, actor models.Actor, filter models.OrderFilter) ([]models.Order, error)
	UpdateStatus(ctx context.Context, actor models.Actor, orderID int64, req *service.UpdateStatusRequest) (*models.Order, error)
}

// RatingService is the review and rating API the handlers call
type RatingService interface {
	CreateReview(ctx context.Context, actor models.Actor, req *service.CreateReviewRequest) (*models.Review, error)
	UpdateReview(ctx context.Context, actor models.Actor, id int64, req *service.UpdateReviewRequest) (*models.Review, error)
	DeleteReview(ctx context.Context, actor models.Actor, id int64) error
	GetReview(ctx context.Context, actor models.Actor, id int64) (*models.Review, error)
	ListReviews(ctx context.Context, actor models.Actor, filter models.ReviewFilter) ([]models.Review, error)
	GetBarberRating(ctx context.Context, actor models.Actor, tenantID, barberID int64) (*models.BarberRating, error)
	GetServiceRating(ctx context.Context, actor models.Actor, tenantID, serviceID int64) (*models.ServiceRating, error)
	GetTenantRating(ctx context.Context, actor models.Actor, tenantID int64) (*models.TenantRating, error)
}

// CommissionService is the commission API the handlers call
type CommissionService interface {
	CreateCommission(ctx context.Context, actor models.Actor, req *service.CalculateRequest) (*models.Commission, error)
	RecalculateCommission(ctx context.Context, actor models.Actor, id int64, req *service.CalculateRequest) (*models.Commission, error)
	GetCommission(ctx context.Context, actor models.Actor, id int64) (*models.Commission, error)
	ListCommissions(ctx context.Context, actor models.Actor, filter models.CommissionFilter) ([]models.Commission, error)
	SetStatus(ctx context.Context, actor models.Actor, id int64, req *service.SetStatusRequest) (*models.Commission, error)
}

// Pinger reports whether a dependency is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the collaborators of the HTTP handlers
type Deps struct {
	Orders      OrderService
	Ratings     RatingService
	Commissions CommissionService
	Progress    onboarding.ProgressClient
	Steps       []onboarding.Step
	Auth        *ActorAuth
	Checks      map[string]Pinger
}

// Handler contains HTTP handlers
type Handler struct {
	orders      OrderService
	ratings     RatingService
	commissions CommissionService
	progress    onboarding.ProgressClient
	steps       []onboarding.Step
	auth        *ActorAuth
	checks      map[string]Pinger
	logger      *zap.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(deps Deps) *Handler {
	return &Handler{
		orders:      deps.Orders,
		ratings:     deps.Ratings,
		commissions: deps.Commissions,
		progress:    deps.Progress,
		steps:       deps.Steps,
		auth:        deps.Auth,
		checks:      deps.Checks,
		logger:      util.GetLogger(),
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1", h.auth.Middleware())
	{
		v1.POST("/orders", h.createOrder)
		v1.GET("/orders", h.listOrders)
		v1.GET("/orders/:id", h.getOrder)
		v1.PATCH("/orders/:id/status", h.updateOrderStatus)

		v1.POST("/reviews", h.createReview)
		v1.GET("/reviews", h.listReviews)
		v1.GET("/reviews/:id", h.getReview)
		v1.PATCH("/reviews/:id", h.updateReview)
		v1.DELETE("/reviews/:id", h.deleteReview)

		v1.GET("/ratings/barbers/:id", h.getBarberRating)
		v1.GET("/ratings/services/:id", h.getServiceRating)
		v1.GET("/ratings/tenants/:id", h.getTenantRating)

		v1.POST("/commissions", h.createCommission)
		v1.GET("/commissions", h.listCommissions)
		v1.GET("/commissions/:id", h.getCommission)
		v1.PUT("/commissions/:id", h.recalculateCommission)
		v1.PATCH("/commissions/:id/status", h.setCommissionStatus)

		v1.GET("/onboarding", h.getOnboarding)
		v1.POST("/onboarding/start", h.startOnboarding)
		v1.POST("/onboarding/steps/:step/complete", h.completeStep)
		v1.POST("/onboarding/steps/:step/skip", h.skipStep)
		v1.POST("/onboarding/previous", h.previousStep)
		v1.POST("/onboarding/jump", h.jumpToStep)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck reports ready only when every dependency answers
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	failed := gin.H{}
	for name, p := range h.checks {
		if err := p.Ping(ctx); err != nil {
			failed[name] = err.Error()
		}
	}
	if len(failed) > 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"failed": failed,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

func (h *Handler) badRequest(c *gin.Context, msg string, err error) {
	body := gin.H{"error": msg}
	if err != nil {
		body["details"] = err.Error()
	}
	c.JSON(http.StatusBadRequest, body)
}

// respondError maps domain errors to HTTP statuses
func (h *Handler) respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, policy.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, store.ErrNotFound),
		errors.Is(err, onboarding.ErrNotStarted):
		status = http.StatusNotFound
	case errors.Is(err, store.ErrConflict),
		errors.Is(err, service.ErrOrderInProgress),
		errors.Is(err, service.ErrInvalidTransition),
		errors.Is(err, onboarding.ErrWizardClosed),
		errors.Is(err, onboarding.ErrNotCurrentStep),
		errors.Is(err, onboarding.ErrStepNotSkippable),
		errors.Is(err, onboarding.ErrStepLocked):
		status = http.StatusConflict
	case errors.Is(err, service.ErrInvalidOrderItem),
		errors.Is(err, service.ErrInsufficientStock),
		errors.Is(err, service.ErrInvalidPricing),
		errors.Is(err, service.ErrInvalidCurrency),
		errors.Is(err, service.ErrInvalidContact),
		errors.Is(err, service.ErrInvalidStatus),
		errors.Is(err, service.ErrInvalidReview),
		errors.Is(err, service.ErrInvalidCommission),
		errors.Is(err, onboarding.ErrUnknownStep),
		errors.Is(err, onboarding.ErrIndexOutOfRange):
		status = http.StatusUnprocessableEntity
	}

	if status == http.StatusInternalServerError {
		h.logger.Error("Request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err))
		c.JSON(status, gin.H{"error": "Internal server error"})
		return
	}

	c.JSON(status, gin.H{"error": err.Error()})
}

func paramID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid ID"})
		return 0, false
	}
	return id, true
}

// scopedTenant is the actor's tenant; admins may name another with ?tenant_id=
func scopedTenant(c *gin.Context, actor models.Actor) (int64, bool) {
	tenantID := actor.TenantID
	if raw := c.Query("tenant_id"); raw != "" && actor.Role == models.RoleAdmin {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid tenant_id"})
			return 0, false
		}
		tenantID = id
	}
	return tenantID, true
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
