package audit

import (
	"context"
	"sync"

	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/pkg/logger"
)

// AuditLogger writes entries in the background. Failures are logged and dropped.
type AuditLogger struct {
	service Auditor
	log     *logger.Logger
	wg      sync.WaitGroup
}

func NewAuditLogger(service Auditor, log *logger.Logger) *AuditLogger {
	return &AuditLogger{
		service: service,
		log:     log,
	}
}

// Log dispatches the entry and always returns nil.
func (l *AuditLogger) Log(ctx context.Context, actorID, ownerID, action, entityType, entityID string, opts *LogOptions) error {
	if opts == nil {
		opts = &LogOptions{}
	}
	// Resolve request details before the request context is recycled.
	if rd, ok := requestDetails(ctx); ok && opts.IPAddress == "" {
		opts.IPAddress, opts.UserAgent = rd.ip, rd.userAgent
	}
	bg := context.WithoutCancel(ctx)

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		if err := l.service.Log(bg, actorID, ownerID, action, entityType, entityID, opts); err != nil {
			l.log.Error(err, "failed to write audit log", "action", action, "entity_id", entityID)
		}
	}()
	return nil
}

// LogSync writes the entry before returning.
func (l *AuditLogger) LogSync(ctx context.Context, actorID, ownerID, action, entityType, entityID string, opts *LogOptions) error {
	return l.service.Log(ctx, actorID, ownerID, action, entityType, entityID, opts)
}

// Wait blocks until every pending entry is written.
func (l *AuditLogger) Wait() {
	l.wg.Wait()
}
