package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/internal/model"
	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/internal/repository"
)

// Auditor records administrative actions.
type Auditor interface {
	Log(ctx context.Context, actorID, ownerID, action, entityType, entityID string, opts *LogOptions) error
}

type Service struct {
	repo  repository.AuditRepository
	nowFn func() time.Time
}

func NewService(repo repository.AuditRepository) *Service {
	return &Service{repo: repo, nowFn: time.Now}
}

type LogOptions struct {
	Changes   interface{}
	Metadata  interface{}
	IPAddress string
	UserAgent string
}

// Log creates an audit log entry
func (s *Service) Log(ctx context.Context, actorID, ownerID, action, entityType, entityID string, opts *LogOptions) error {
	if opts == nil {
		opts = &LogOptions{}
	}

	var changes, metadata json.RawMessage
	var err error
	if opts.Changes != nil {
		if changes, err = json.Marshal(opts.Changes); err != nil {
			return fmt.Errorf("failed to marshal audit changes: %w", err)
		}
	}
	if opts.Metadata != nil {
		if metadata, err = json.Marshal(opts.Metadata); err != nil {
			return fmt.Errorf("failed to marshal audit metadata: %w", err)
		}
	}

	// Get IP and User Agent from gin context if not provided in opts
	ipAddress := opts.IPAddress
	userAgent := opts.UserAgent
	if rd, ok := requestDetails(ctx); ok && ipAddress == "" {
		ipAddress, userAgent = rd.ip, rd.userAgent
	}

	log := &model.AuditLog{
		ID:         uuid.NewString(),
		ActorID:    actorID,
		OwnerID:    ownerID,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Changes:    changes,
		Metadata:   metadata,
		IPAddress:  ipAddress,
		UserAgent:  userAgent,
		CreatedAt:  s.nowFn().UTC(),
	}

	return s.repo.Create(ctx, log)
}

func (s *Service) List(ctx context.Context, ownerID string) ([]*model.AuditLog, error) {
	return s.repo.List(ctx, ownerID)
}

type request struct {
	ip        string
	userAgent string
}

func requestDetails(ctx context.Context) (request, bool) {
	gc, ok := ctx.(*gin.Context)
	if !ok || gc.Request == nil {
		return request{}, false
	}
	return request{ip: gc.ClientIP(), userAgent: gc.GetHeader("User-Agent")}, true
}
