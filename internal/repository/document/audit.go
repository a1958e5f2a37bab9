package document

import (
	"context"
	"fmt"
	"sort"

	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/internal/model"
	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/internal/repository"
	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/pkg/docstore"
)

type auditRepository struct {
	BaseRepository
}

func NewAuditRepository(base BaseRepository) repository.AuditRepository {
	return &auditRepository{base}
}

// Create only ever inserts; entries are never rewritten.
func (r *auditRepository) Create(ctx context.Context, log *model.AuditLog) error {
	if err := r.store.Create(ctx, auditPath(log.ID), log); err != nil {
		return fmt.Errorf("failed to create audit log: %w", err)
	}
	return nil
}

func (r *auditRepository) List(ctx context.Context, ownerID string) ([]*model.AuditLog, error) {
	docs, err := r.store.Query(ctx, auditLogsCollection, docstore.Where("ownerId", docstore.OpEqual, ownerID))
	if err != nil {
		return nil, fmt.Errorf("failed to list audit logs: %w", err)
	}

	logs := make([]*model.AuditLog, 0, len(docs))
	for _, doc := range docs {
		l, err := decode[model.AuditLog](doc)
		if err != nil {
			return nil, err
		}
		logs = append(logs, l)
	}
	sort.Slice(logs, func(i, j int) bool { return logs[i].CreatedAt.After(logs[j].CreatedAt) })
	return logs, nil
}
