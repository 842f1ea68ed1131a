package api

import (
	"context"
	"net/http"

	"salon-service/internal/models"
	"salon-service/internal/onboarding"
	"salon-service/internal/policy"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type skipStepRequest struct {
	Reason string `json:"reason"`
}

type jumpRequest struct {
	Index *int `json:"index" binding:"required"`
}

// wizard authorizes the actor and rebuilds the tenant's wizard.
// When start is false a tenant that never started onboarding gets ErrNotStarted.
func (h *Handler) wizard(c *gin.Context, action policy.Action, start bool) (*onboarding.Wizard, bool) {
	actor := actorFrom(c)
	tenantID, ok := scopedTenant(c, actor)
	if !ok {
		return nil, false
	}
	if err := policy.Authorize(actor, policy.ResourceOnboarding, action, tenantID, 0); err != nil {
		h.respondError(c, err)
		return nil, false
	}

	ctx := c.Request.Context()
	if !start {
		if _, err := h.progress.GetProgress(ctx, tenantID); err != nil {
			h.respondError(c, err)
			return nil, false
		}
	}

	w := onboarding.NewWizard(h.progress, tenantID, h.steps,
		onboarding.WithOnComplete(func(ctx context.Context, p onboarding.Progress) {
			h.logger.Info("Tenant finished onboarding",
				zap.Int64("tenant_id", p.TenantID),
				zap.Int64("completed_by", actor.UserID))
		}))
	if err := w.Load(ctx); err != nil {
		h.respondError(c, err)
		return nil, false
	}
	return w, true
}

func (h *Handler) renderWizard(c *gin.Context, status int, w *onboarding.Wizard) {
	c.JSON(status, gin.H{
		"progress": w.State(),
		"fraction": w.Fraction(),
		"closed":   w.Closed(),
	})
}

// transition runs fn on a loaded wizard and renders the result
func (h *Handler) transition(c *gin.Context, fn func(context.Context, *onboarding.Wizard) error) {
	w, ok := h.wizard(c, policy.ActionUpdate, false)
	if !ok {
		return
	}
	if err := fn(c.Request.Context(), w); err != nil {
		h.respondError(c, err)
		return
	}
	h.renderWizard(c, http.StatusOK, w)
}

func (h *Handler) getOnboarding(c *gin.Context) {
	w, ok := h.wizard(c, policy.ActionRead, false)
	if !ok {
		return
	}
	h.renderWizard(c, http.StatusOK, w)
}

func (h *Handler) startOnboarding(c *gin.Context) {
	w, ok := h.wizard(c, policy.ActionCreate, true)
	if !ok {
		return
	}
	h.renderWizard(c, http.StatusOK, w)
}

func (h *Handler) completeStep(c *gin.Context) {
	step := c.Param("step")
	h.transition(c, func(ctx context.Context, w *onboarding.Wizard) error {
		return w.Complete(ctx, step)
	})
}

func (h *Handler) skipStep(c *gin.Context) {
	var req skipStepRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.badRequest(c, "Invalid request body", err)
			return
		}
	}

	step := c.Param("step")
	h.transition(c, func(ctx context.Context, w *onboarding.Wizard) error {
		return w.Skip(ctx, step, req.Reason)
	})
}

func (h *Handler) previousStep(c *gin.Context) {
	h.transition(c, func(ctx context.Context, w *onboarding.Wizard) error {
		return w.Previous(ctx)
	})
}

func (h *Handler) jumpToStep(c *gin.Context) {
	var req jumpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "Invalid request body", err)
		return
	}

	h.transition(c, func(ctx context.Context, w *onboarding.Wizard) error {
		return w.JumpTo(ctx, *req.Index)
	})
}
