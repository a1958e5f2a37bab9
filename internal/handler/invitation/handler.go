package invitation

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/internal/middleware"
	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/internal/model"
	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/internal/service/invitation"
	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/pkg/httputil"
)

type Service interface {
	Issue(ctx context.Context, actor *model.Principal, req invitation.IssueRequest) (*model.Invitation, error)
	Accept(ctx context.Context, invitationID string, p *model.Principal) (*invitation.AcceptResult, error)
	Decline(ctx context.Context, invitationID string, p *model.Principal) (*model.Invitation, error)
	Revoke(ctx context.Context, actor *model.Principal, invitationID string) (*model.Invitation, error)
	ListForOwner(ctx context.Context, actor *model.Principal, ownerID string) ([]*model.Invitation, error)
	ListForRecipient(ctx context.Context, p *model.Principal) ([]*model.Invitation, error)
}

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	invitations := r.Group("/family/invitations")
	{
		invitations.POST("", h.Issue)
		invitations.GET("", h.List)
		invitations.POST("/:id/accept", h.Accept)
		invitations.POST("/:id/decline", h.Decline)
		invitations.DELETE("/:id", h.Revoke)
	}
}

func (h *Handler) Issue(c *gin.Context) {
	var req invitation.IssueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(err).SetType(gin.ErrorTypeBind)
		return
	}

	inv, err := h.service.Issue(c, middleware.Principal(c), req)
	if err != nil {
		_ = c.Error(err)
		return
	}
	httputil.RespondWithStatus(c, http.StatusCreated, inv)
}

// List returns the family's invitations, or with ?scope=received the ones
// addressed to the caller.
func (h *Handler) List(c *gin.Context) {
	var (
		invs []*model.Invitation
		err  error
	)
	if c.Query("scope") == "received" {
		invs, err = h.service.ListForRecipient(c, middleware.Principal(c))
	} else {
		invs, err = h.service.ListForOwner(c, middleware.Principal(c), c.Query("ownerId"))
	}
	if err != nil {
		_ = c.Error(err)
		return
	}
	httputil.RespondWithSuccess(c, invs)
}

func (h *Handler) Accept(c *gin.Context) {
	res, err := h.service.Accept(c, c.Param("id"), middleware.Principal(c))
	if err != nil {
		_ = c.Error(err)
		return
	}
	httputil.RespondWithSuccess(c, res)
}

func (h *Handler) Decline(c *gin.Context) {
	inv, err := h.service.Decline(c, c.Param("id"), middleware.Principal(c))
	if err != nil {
		_ = c.Error(err)
		return
	}
	httputil.RespondWithSuccess(c, inv)
}

func (h *Handler) Revoke(c *gin.Context) {
	inv, err := h.service.Revoke(c, middleware.Principal(c), c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	httputil.RespondWithSuccess(c, inv)
}
