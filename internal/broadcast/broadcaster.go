package broadcast

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/chatpay-service/internal/api/dto"
	"github.com/spec-kit/chatpay-service/internal/events"
	"github.com/spec-kit/chatpay-service/internal/observability"
)

const publishTimeout = 5 * time.Second

type publishJob struct {
	channel string
	payload []byte
}

// Broadcaster bridges domain events to the live channel. Dispatch is
// fire-and-forget: the ingestion path only ever enqueues, and a publish
// failure is logged and swallowed because history fetch remains the source
// of truth.
type Broadcaster struct {
	scheme     ChannelScheme
	publisher  Publisher
	dispatcher events.Dispatcher
	logger     *zap.Logger
	metrics    *observability.Metrics
	queue      chan publishJob
}

// NewBroadcaster constructs the broadcaster with a bounded publish queue.
func NewBroadcaster(scheme ChannelScheme, publisher Publisher, dispatcher events.Dispatcher, logger *zap.Logger, metrics *observability.Metrics, queueSize int) *Broadcaster {
	if queueSize <= 0 {
		queueSize = 256
	}
	return &Broadcaster{
		scheme:     scheme,
		publisher:  publisher,
		dispatcher: dispatcher,
		logger:     logger,
		metrics:    metrics,
		queue:      make(chan publishJob, queueSize),
	}
}

// RegisterHandlers subscribes to events.
func (b *Broadcaster) RegisterHandlers() {
	if b.dispatcher == nil {
		return
	}
	b.dispatcher.Subscribe(events.EventMessageSent, b.handleMessageSent)
}

// handleMessageSent serializes the committed message and enqueues it for the
// recipient's channel without blocking the HTTP request cycle.
func (b *Broadcaster) handleMessageSent(_ context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.MessageSentPayload)
	if !ok || payload.Message == nil {
		return nil
	}

	body, err := json.Marshal(WireEvent{
		Event: EventNameMessageSent,
		Data:  dto.NewMessageView(payload.Message),
	})
	if err != nil {
		b.logger.Error("encode broadcast event", zap.Error(err), zap.String("message_id", payload.Message.ID))
		return nil
	}

	job := publishJob{
		channel: b.scheme.ChannelFor(payload.Message.RecipientID),
		payload: body,
	}

	select {
	case b.queue <- job:
	default:
		b.metrics.RecordPublish(true)
		b.logger.Warn("broadcast queue full, dropping event",
			zap.String("channel", job.channel),
			zap.String("message_id", payload.Message.ID))
	}
	return nil
}

// Run drains the publish queue until ctx is cancelled.
func (b *Broadcaster) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-b.queue:
			b.publish(job)
		}
	}
}

func (b *Broadcaster) publish(job publishJob) {
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	if err := b.publisher.Publish(ctx, job.channel, job.payload); err != nil {
		b.metrics.RecordPublish(true)
		b.logger.Warn("broadcast publish failed", zap.Error(err), zap.String("channel", job.channel))
		return
	}
	b.metrics.RecordPublish(false)
}
