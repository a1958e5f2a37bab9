package directory

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/internal/middleware"
	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/internal/model"
	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/pkg/errors"
	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/pkg/httputil"
)

type Builder interface {
	Build(ctx context.Context, requesterID, patientFilter string) ([]model.DirectoryEntry, error)
}

type Handler struct {
	builder Builder
}

func NewHandler(builder Builder) *Handler {
	return &Handler{builder: builder}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/family/directory", h.GetDirectory)
}

func (h *Handler) GetDirectory(c *gin.Context) {
	p := middleware.Principal(c)
	if p == nil {
		_ = c.Error(errors.Unauthorized(nil))
		return
	}

	entries, err := h.builder.Build(c, p.UserID, c.Query("patientId"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	httputil.RespondWithSuccess(c, gin.H{
		"entries": entries,
		"count":   len(entries),
	})
}
