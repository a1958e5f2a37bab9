package family

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/internal/middleware"
	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/internal/model"
	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/internal/service/access"
	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/internal/service/family"
	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/internal/service/membership"
	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/internal/service/rbac"
	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/pkg/errors"
	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/pkg/httputil"
)

// Service is the family surface the handler serves.
type Service interface {
	ListMembers(ctx context.Context, p *model.Principal, ownerID string) (*family.MemberList, error)
	UpdateMember(ctx context.Context, p *model.Principal, memberID string, req family.UpdateMemberRequest) (*family.UpdateResult, error)
	RemoveMember(ctx context.Context, p *model.Principal, ownerID, memberID string) (*membership.RevokeResult, error)
	Roles() []rbac.RoleInfo
	CheckAccess(ctx context.Context, p *model.Principal, patientID string, capability model.Capability) (*access.Decision, error)
	Reconcile(ctx context.Context, p *model.Principal, ownerID string) (*membership.ReconcileReport, error)
	AuditLog(ctx context.Context, p *model.Principal, ownerID string) ([]*model.AuditLog, error)
}

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	fam := r.Group("/family")
	{
		fam.GET("/members", h.ListMembers)
		fam.PATCH("/members/:memberId", h.UpdateMember)
		fam.DELETE("/members/:memberId", h.RemoveMember)
		fam.GET("/roles", h.Roles)
		fam.POST("/reconcile", h.Reconcile)
		fam.GET("/audit-logs", h.AuditLog)
	}
	r.GET("/patients/:patientId/access", h.CheckAccess)
}

func (h *Handler) ListMembers(c *gin.Context) {
	list, err := h.service.ListMembers(c, middleware.Principal(c), c.Query("ownerId"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	httputil.RespondWithSuccess(c, list)
}

func (h *Handler) UpdateMember(c *gin.Context) {
	var req family.UpdateMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(err).SetType(gin.ErrorTypeBind)
		return
	}

	res, err := h.service.UpdateMember(c, middleware.Principal(c), c.Param("memberId"), req)
	if err != nil {
		_ = c.Error(err)
		return
	}
	httputil.RespondWithSuccess(c, res)
}

func (h *Handler) RemoveMember(c *gin.Context) {
	res, err := h.service.RemoveMember(c, middleware.Principal(c), c.Query("ownerId"), c.Param("memberId"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	httputil.RespondWithSuccess(c, res)
}

func (h *Handler) Roles(c *gin.Context) {
	httputil.RespondWithSuccess(c, h.service.Roles())
}

func (h *Handler) CheckAccess(c *gin.Context) {
	capability := c.Query("capability")
	if capability == "" {
		_ = c.Error(errors.Validation("capability is required"))
		return
	}

	d, err := h.service.CheckAccess(c, middleware.Principal(c), c.Param("patientId"), model.Capability(capability))
	if err != nil {
		_ = c.Error(err)
		return
	}
	httputil.RespondWithSuccess(c, d)
}

func (h *Handler) Reconcile(c *gin.Context) {
	report, err := h.service.Reconcile(c, middleware.Principal(c), c.Query("ownerId"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	httputil.RespondWithStatus(c, http.StatusOK, report)
}

func (h *Handler) AuditLog(c *gin.Context) {
	logs, err := h.service.AuditLog(c, middleware.Principal(c), c.Query("ownerId"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	httputil.RespondWithSuccess(c, logs)
}
