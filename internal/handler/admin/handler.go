package admin

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/internal/service/membership"
	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/pkg/errors"
	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/pkg/httputil"
)

type Reconciler interface {
	ReconcileAll(ctx context.Context) ([]*membership.ReconcileReport, error)
}

type InvitationSweeper interface {
	ExpireStale(ctx context.Context) (int, error)
}

// Handler exposes the maintenance jobs to platform admins.
type Handler struct {
	reconciler Reconciler
	sweeper    InvitationSweeper
}

func NewHandler(reconciler Reconciler, sweeper InvitationSweeper) *Handler {
	return &Handler{reconciler: reconciler, sweeper: sweeper}
}

// RegisterRoutes expects r to be behind RequireAdmin.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/reconcile", h.ReconcileAll)
	r.POST("/invitations/expire", h.ExpireInvitations)
}

func (h *Handler) ReconcileAll(c *gin.Context) {
	reports, err := h.reconciler.ReconcileAll(c)
	if err != nil {
		_ = c.Error(errors.DependencyUnavailable("document store", err))
		return
	}
	httputil.RespondWithSuccess(c, reports)
}

func (h *Handler) ExpireInvitations(c *gin.Context) {
	n, err := h.sweeper.ExpireStale(c)
	if err != nil {
		_ = c.Error(errors.DependencyUnavailable("document store", err))
		return
	}
	httputil.RespondWithSuccess(c, gin.H{"expired": n})
}
