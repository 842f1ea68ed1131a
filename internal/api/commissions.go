package api

import (
	"net/http"

	"salon-service/internal/models"
	"salon-service/internal/service"

	"github.com/gin-gonic/gin"
)

type listCommissionsQuery struct {
	TenantID  int64  `form:"tenant_id"`
	StylistID int64  `form:"stylist_id"`
	Status    string `form:"status"`
	Limit     int    `form:"limit"`
}

func (h *Handler) createCommission(c *gin.Context) {
	var req service.CalculateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "Invalid request body", err)
		return
	}

	commission, err := h.commissions.CreateCommission(c.Request.Context(), actorFrom(c), &req)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, commission)
}

func (h *Handler) recalculateCommission(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}

	var req service.CalculateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "Invalid request body", err)
		return
	}

	commission, err := h.commissions.RecalculateCommission(c.Request.Context(), actorFrom(c), id, &req)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, commission)
}

func (h *Handler) getCommission(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}

	commission, err := h.commissions.GetCommission(c.Request.Context(), actorFrom(c), id)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, commission)
}

func (h *Handler) listCommissions(c *gin.Context) {
	var q listCommissionsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.badRequest(c, "Invalid query", err)
		return
	}

	var status models.CommissionStatus
	if q.Status != "" {
		s, err := models.ToCommissionStatus(q.Status)
		if err != nil {
			h.badRequest(c, "Invalid status", err)
			return
		}
		status = s
	}

	commissions, err := h.commissions.ListCommissions(c.Request.Context(), actorFrom(c), models.CommissionFilter{
		TenantID:  q.TenantID,
		StylistID: q.StylistID,
		Status:    status,
		Limit:     q.Limit,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"commissions": commissions})
}

func (h *Handler) setCommissionStatus(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}

	var req service.SetStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "Invalid request body", err)
		return
	}

	commission, err := h.commissions.SetStatus(c.Request.Context(), actorFrom(c), id, &req)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, commission)
}
