package api

import (
	"net/http"

	"salon-service/internal/models"
	"salon-service/internal/service"

	"github.com/gin-gonic/gin"
)

type listOrdersQuery struct {
	TenantID   int64  `form:"tenant_id"`
	CustomerID int64  `form:"customer_id"`
	Status     string `form:"status"`
	Limit      int    `form:"limit"`
}

// createOrder handles order creation
func (h *Handler) createOrder(c *gin.Context) {
	var req service.CreateOrderRequest

	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "Invalid request body", err)
		return
	}

	if req.IdempotencyKey == "" {
		req.IdempotencyKey = c.GetHeader("Idempotency-Key")
	}

	order, err := h.orders.CreateOrder(c.Request.Context(), actorFrom(c), &req)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, order)
}

// getOrder handles get order by ID
func (h *Handler) getOrder(c *gin.Context) {
	orderID, ok := paramID(c)
	if !ok {
		return
	}

	order, err := h.orders.GetOrder(c.Request.Context(), actorFrom(c), orderID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, order)
}

func (h *Handler) listOrders(c *gin.Context) {
	var q listOrdersQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.badRequest(c, "Invalid query", err)
		return
	}

	orders, err := h.orders.ListOrders(c.Request.Context(), actorFrom(c), models.OrderFilter{
		TenantID:   q.TenantID,
		CustomerID: q.CustomerID,
		Status:     models.OrderStatus(q.Status),
		Limit:      q.Limit,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

func (h *Handler) updateOrderStatus(c *gin.Context) {
	orderID, ok := paramID(c)
	if !ok {
		return
	}

	var req service.UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "Invalid request body", err)
		return
	}

	order, err := h.orders.UpdateStatus(c.Request.Context(), actorFrom(c), orderID, &req)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, order)
}
