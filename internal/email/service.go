package email

import (
	"context"
	"fmt"
	"time"

	"gopkg.in/gomail.v2"

	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/pkg/circuitbreaker"
	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/pkg/logger"
)

type Service interface {
	SendCustom(ctx context.Context, to string, subject string, content string) error
}

type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

type smtpService struct {
	dialer *gomail.Dialer
	from   string
	cb     *circuitbreaker.CircuitBreaker
}

func NewSMTPService(cfg SMTPConfig) Service {
	return &smtpService{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:   cfg.From,
		cb: circuitbreaker.NewCircuitBreaker(circuitbreaker.Settings{
			Name:        "smtp",
			MaxFailures: 3,
			Timeout:     30 * time.Second,
		}),
	}
}

func (s *smtpService) SendCustom(ctx context.Context, to, subject, content string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := newMessage(s.from, to, subject, content)
	return s.cb.Execute(func() error {
		if err := s.dialer.DialAndSend(msg); err != nil {
			return fmt.Errorf("failed to send email: %w", err)
		}
		return nil
	})
}

func newMessage(from, to, subject, content string) *gomail.Message {
	m := gomail.NewMessage()
	m.SetHeader("From", from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", content)
	return m
}

// logService writes emails to the log instead of sending them. Used when no
// SMTP host is configured.
type logService struct {
	log *logger.Logger
}

func NewLogService(log *logger.Logger) Service {
	return &logService{log: log}
}

func (s *logService) SendCustom(_ context.Context, to, subject, _ string) error {
	s.log.Info("email suppressed", "to", to, "subject", subject)
	return nil
}
