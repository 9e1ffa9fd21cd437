package broadcast_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/chatpay-service/internal/broadcast"
	"github.com/spec-kit/chatpay-service/internal/domain"
	"github.com/spec-kit/chatpay-service/internal/events"
	"github.com/spec-kit/chatpay-service/internal/observability"
)

type capturingPublisher struct {
	mu       sync.Mutex
	channels []string
	payloads [][]byte
	err      error
}

func (p *capturingPublisher) Publish(_ context.Context, channel string, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.channels = append(p.channels, channel)
	p.payloads = append(p.payloads, payload)
	return nil
}

func (p *capturingPublisher) published() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string{}, p.channels...)
}

func newBroadcaster(publisher broadcast.Publisher, dispatcher events.Dispatcher, metrics *observability.Metrics) *broadcast.Broadcaster {
	return broadcast.NewBroadcaster(
		broadcast.NewChannelScheme("chat"),
		publisher,
		dispatcher,
		zap.NewNop(),
		metrics,
		16,
	)
}

func TestBroadcaster_PublishesToRecipientChannel(t *testing.T) {
	publisher := &capturingPublisher{}
	dispatcher := events.NewInMemoryDispatcher()
	b := newBroadcaster(publisher, dispatcher, observability.NewMetrics())
	b.RegisterHandlers()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Run(ctx)

	msg := &domain.Message{
		ID:             "m1",
		SenderID:       "cust-1",
		RecipientID:    "admin-1",
		Body:           "hello",
		Classification: domain.ClassificationNormal,
		PaymentState:   domain.PaymentStateFree,
		CreatedAt:      time.Now(),
	}
	err := dispatcher.Publish(ctx, events.Event{
		Type:    events.EventMessageSent,
		Payload: events.MessageSentPayload{Message: msg},
	})
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return len(publisher.published()) == 1
	}, time.Second, 10*time.Millisecond)

	assert.Equal(t, []string{"chat.admin-1"}, publisher.published())

	var wire struct {
		Event string          `json:"event"`
		Data  json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(publisher.payloads[0], &wire))
	assert.Equal(t, broadcast.EventNameMessageSent, wire.Event)

	var data map[string]any
	require.NoError(t, json.Unmarshal(wire.Data, &data))
	assert.Equal(t, "m1", data["id"])
	assert.Equal(t, "hello", data["body"])
	assert.Equal(t, false, data["is_chargeable"])
}

func TestBroadcaster_PublishFailureIsSwallowed(t *testing.T) {
	publisher := &capturingPublisher{err: errors.New("transport unreachable")}
	dispatcher := events.NewInMemoryDispatcher()
	metrics := observability.NewMetrics()
	b := newBroadcaster(publisher, dispatcher, metrics)
	b.RegisterHandlers()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Run(ctx)

	err := dispatcher.Publish(ctx, events.Event{
		Type: events.EventMessageSent,
		Payload: events.MessageSentPayload{Message: &domain.Message{
			ID: "m1", SenderID: "a", RecipientID: "b", PaymentState: domain.PaymentStateFree,
		}},
	})
	assert.NoError(t, err)

	assert.Eventually(t, func() bool {
		_, failed := metrics.PublishStats()
		return failed == 1
	}, time.Second, 10*time.Millisecond)
}

func TestBroadcaster_IgnoresForeignPayload(t *testing.T) {
	publisher := &capturingPublisher{}
	dispatcher := events.NewInMemoryDispatcher()
	b := newBroadcaster(publisher, dispatcher, observability.NewMetrics())
	b.RegisterHandlers()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Run(ctx)

	err := dispatcher.Publish(ctx, events.Event{Type: events.EventMessageSent, Payload: "garbage"})
	assert.NoError(t, err)

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, publisher.published())
}
