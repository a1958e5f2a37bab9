package notification

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/internal/model"
	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/pkg/logger"
	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/pkg/messaging"
	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/pkg/metrics"
)

type sentEmail struct{ to, subject, content string }

type fakeEmail struct {
	mu   sync.Mutex
	sent []sentEmail
	err  error
}

func (f *fakeEmail) SendCustom(_ context.Context, to, subject, content string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentEmail{to, subject, content})
	return nil
}

type fakeBroker struct {
	mu        sync.Mutex
	published map[string][]interface{}
}

func (b *fakeBroker) Publish(_ context.Context, channel string, msg interface{}) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.published == nil {
		b.published = map[string][]interface{}{}
	}
	b.published[channel] = append(b.published[channel], msg)
	return nil
}

func (b *fakeBroker) Subscribe(context.Context, string) (<-chan []byte, error) { return nil, nil }
func (b *fakeBroker) Close() error                                              { return nil }

func TestNotify_DeliversOnBothChannels(t *testing.T) {
	mail := &fakeEmail{}
	broker := &fakeBroker{}
	m := metrics.Discard()
	svc := NewService(Config{}, mail, broker, logger.Nop(), m)

	svc.Notify(context.Background(), []model.Recipient{
		{Email: "aunt@example.com"},
		{UserID: "owner-1", Email: "owner@example.com"},
	}, model.EventInvitationSent, map[string]interface{}{"role": "caregiver", "inviterName": "Pat"})
	svc.Wait()

	require.Len(t, mail.sent, 2)
	assert.Equal(t, "aunt@example.com", mail.sent[0].to)
	assert.Contains(t, mail.sent[0].content, "Pat invited you")
	assert.Contains(t, mail.sent[0].content, "caregiver")

	msgs := broker.published[messaging.UserChannel("owner-1")]
	require.Len(t, msgs, 1)
	raw, err := json.Marshal(msgs[0])
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"type":"invitation_sent"`)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.Notifications.WithLabelValues(ChannelEmail, "success")))
}

func TestNotify_FailuresAreSwallowed(t *testing.T) {
	mail := &fakeEmail{err: errors.New("smtp down")}
	m := metrics.Discard()
	svc := NewService(Config{Channel: ChannelEmail, MaxRetries: 2}, mail, nil, logger.Nop(), m)

	assert.NotPanics(t, func() {
		svc.Notify(context.Background(), []model.Recipient{{Email: "a@example.com"}}, model.EventRoleChanged, nil)
		svc.Wait()
	})
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Notifications.WithLabelValues(ChannelEmail, "error")))
}

func TestNotify_ChannelNone(t *testing.T) {
	mail := &fakeEmail{}
	svc := NewService(Config{Channel: ChannelNone}, mail, nil, logger.Nop(), metrics.Discard())
	svc.Notify(context.Background(), []model.Recipient{{Email: "a@example.com"}}, model.EventMemberRemoved, nil)
	svc.Wait()
	assert.Empty(t, mail.sent)
}

func TestNotify_SurvivesCancelledContext(t *testing.T) {
	mail := &fakeEmail{}
	svc := NewService(Config{Channel: ChannelEmail}, mail, nil, logger.Nop(), metrics.Discard())
	ctx, cancel := context.WithCancel(context.Background())
	svc.Notify(ctx, []model.Recipient{{Email: "a@example.com"}}, model.EventAccessChanged, nil)
	cancel()
	svc.Wait()
	assert.Len(t, mail.sent, 1)
}
