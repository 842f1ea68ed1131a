package api

import (
	"net/http"

	"salon-service/internal/models"
	"salon-service/internal/service"

	"github.com/gin-gonic/gin"
)

type listReviewsQuery struct {
	TenantID     int64  `form:"tenant_id"`
	BarberID     *int64 `form:"barber_id"`
	ServiceID    *int64 `form:"service_id"`
	CustomerID   int64  `form:"customer_id"`
	ApprovedOnly bool   `form:"approved_only"`
	Limit        int    `form:"limit"`
}

func (h *Handler) createReview(c *gin.Context) {
	var req service.CreateReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "Invalid request body", err)
		return
	}

	review, err := h.ratings.CreateReview(c.Request.Context(), actorFrom(c), &req)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, review)
}

func (h *Handler) listReviews(c *gin.Context) {
	var q listReviewsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.badRequest(c, "Invalid query", err)
		return
	}

	reviews, err := h.ratings.ListReviews(c.Request.Context(), actorFrom(c), models.ReviewFilter{
		TenantID:     q.TenantID,
		BarberID:     q.BarberID,
		ServiceID:    q.ServiceID,
		CustomerID:   q.CustomerID,
		ApprovedOnly: q.ApprovedOnly,
		Limit:        q.Limit,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"reviews": reviews})
}

func (h *Handler) getReview(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}

	review, err := h.ratings.GetReview(c.Request.Context(), actorFrom(c), id)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, review)
}

func (h *Handler) updateReview(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}

	var req service.UpdateReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "Invalid request body", err)
		return
	}

	review, err := h.ratings.UpdateReview(c.Request.Context(), actorFrom(c), id, &req)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, review)
}

func (h *Handler) deleteReview(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}

	if err := h.ratings.DeleteReview(c.Request.Context(), actorFrom(c), id); err != nil {
		h.respondError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *Handler) getBarberRating(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}

	actor := actorFrom(c)
	tenantID, ok := scopedTenant(c, actor)
	if !ok {
		return
	}

	rating, err := h.ratings.GetBarberRating(c.Request.Context(), actor, tenantID, id)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, rating)
}

func (h *Handler) getServiceRating(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}

	actor := actorFrom(c)
	tenantID, ok := scopedTenant(c, actor)
	if !ok {
		return
	}

	rating, err := h.ratings.GetServiceRating(c.Request.Context(), actor, tenantID, id)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, rating)
}

func (h *Handler) getTenantRating(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}

	rating, err := h.ratings.GetTenantRating(c.Request.Context(), actorFrom(c), id)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, rating)
}
