package notification

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/internal/email"
	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/internal/model"
	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/pkg/logger"
	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/pkg/messaging"
	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/pkg/metrics"
	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/pkg/worker"
)

const (
	ChannelEmail = "email"
	ChannelInApp = "in_app"
	ChannelAll   = "all"
	ChannelNone  = "none"
)

// Dispatcher delivers notifications without blocking the caller. Delivery
// failures never reach the caller.
type Dispatcher interface {
	Notify(ctx context.Context, recipients []model.Recipient, event model.NotificationEvent, metadata map[string]interface{})
}

type Config struct {
	Channel    string
	MaxRetries int
	RetryDelay time.Duration
}

type Service struct {
	cfg      Config
	emailSvc email.Service
	broker   messaging.Broker
	log      *logger.Logger
	metrics  *metrics.Metrics
	nowFn    func() time.Time
	wg       sync.WaitGroup
}

// NewService wires the channels. emailSvc and broker may be nil, which disables that channel.
func NewService(cfg Config, emailSvc email.Service, broker messaging.Broker, log *logger.Logger, m *metrics.Metrics) *Service {
	if cfg.Channel == "" {
		cfg.Channel = ChannelAll
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	return &Service{
		cfg:      cfg,
		emailSvc: emailSvc,
		broker:   broker,
		log:      log,
		metrics:  m,
		nowFn:    time.Now,
	}
}

func (s *Service) Notify(ctx context.Context, recipients []model.Recipient, event model.NotificationEvent, metadata map[string]interface{}) {
	if s.cfg.Channel == ChannelNone || len(recipients) == 0 {
		return
	}

	subject, content := render(event, metadata)
	n := &model.Notification{
		ID:         uuid.NewString(),
		Event:      event,
		Recipients: recipients,
		Subject:    subject,
		Content:    content,
		Metadata:   metadata,
		CreatedAt:  s.nowFn().UTC(),
	}

	// Process notification asynchronously
	bg := context.WithoutCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.processNotification(bg, n)
	}()
}

// Wait blocks until every dispatched notification has been attempted.
func (s *Service) Wait() {
	s.wg.Wait()
}

func (s *Service) processNotification(ctx context.Context, n *model.Notification) {
	for _, r := range n.Recipients {
		if s.wants(ChannelEmail) && s.emailSvc != nil && r.Email != "" {
			s.deliver(ctx, n, ChannelEmail, func() error {
				return s.emailSvc.SendCustom(ctx, r.Email, n.Subject, n.Content)
			})
		}
		if s.wants(ChannelInApp) && s.broker != nil && r.UserID != "" {
			s.deliver(ctx, n, ChannelInApp, func() error {
				return s.broker.Publish(ctx, messaging.UserChannel(r.UserID), messaging.Message{
					Type:    string(n.Event),
					Payload: n,
				})
			})
		}
	}
}

func (s *Service) wants(channel string) bool {
	return s.cfg.Channel == ChannelAll || s.cfg.Channel == channel
}

func (s *Service) deliver(ctx context.Context, n *model.Notification, channel string, send func() error) {
	err := worker.Retry(ctx, s.cfg.MaxRetries, s.cfg.RetryDelay, send)
	s.metrics.Notifications.WithLabelValues(channel, metrics.Status(err)).Inc()
	if err != nil {
		s.handleError(n, channel, err)
	}
}

func (s *Service) handleError(n *model.Notification, channel string, err error) {
	s.log.Error(err, "failed to deliver notification",
		"notification_id", n.ID,
		"event", string(n.Event),
		"channel", channel)
}

func render(event model.NotificationEvent, md map[string]interface{}) (string, string) {
	get := func(k string) string {
		if v, ok := md[k]; ok {
			return fmt.Sprint(v)
		}
		return ""
	}

	switch event {
	case model.EventInvitationSent:
		return "You've been invited to a family care team",
			fmt.Sprintf("%s invited you to join their family as %s. The invitation expires on %s.",
				fallback(get("inviterName"), "A family member"), get("role"), get("expiresAt"))
	case model.EventInvitationAccepted:
		return "Your invitation was accepted",
			fmt.Sprintf("%s accepted your invitation.", fallback(get("memberName"), get("memberEmail")))
	case model.EventInvitationDeclined:
		return "Your invitation was declined",
			fmt.Sprintf("%s declined your invitation.", fallback(get("recipientEmail"), "The recipient"))
	case model.EventRoleChanged:
		return "Your family role changed",
			fmt.Sprintf("Your role is now %s.", get("role"))
	case model.EventAccessChanged:
		return "Your patient access changed",
			"The patients you can access in this family have changed."
	case model.EventMemberRemoved:
		return "You were removed from a family",
			"You no longer have access to this family's patients."
	}
	return string(event), ""
}

func fallback(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
