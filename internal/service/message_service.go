package service

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/chatpay-service/internal/config"
	"github.com/spec-kit/chatpay-service/internal/domain"
	"github.com/spec-kit/chatpay-service/internal/events"
	"github.com/spec-kit/chatpay-service/internal/payment"
	"github.com/spec-kit/chatpay-service/internal/repository"
	apperrors "github.com/spec-kit/chatpay-service/pkg/util/errorutil"
)

// MessageService validates send requests, consults the payment gate, persists
// accepted messages and triggers live delivery.
type MessageService struct {
	messages   repository.MessageRepository
	users      repository.UserRepository
	gate       *payment.Gate
	dispatcher events.Dispatcher
	logger     *zap.Logger
	cfg        config.ChatConfig
}

// MessageDependencies bundles collaborators for the message service.
type MessageDependencies struct {
	MessageRepo repository.MessageRepository
	UserRepo    repository.UserRepository
	Gate        *payment.Gate
	Dispatcher  events.Dispatcher
	Logger      *zap.Logger
}

// SubmitInput describes a send request.
type SubmitInput struct {
	RecipientID    string
	Body           string
	Classification domain.Classification
	TransactionRef *string
}

// NewMessageService constructs the service.
func NewMessageService(cfg config.ChatConfig, deps MessageDependencies) *MessageService {
	return &MessageService{
		messages:   deps.MessageRepo,
		users:      deps.UserRepo,
		gate:       deps.Gate,
		dispatcher: deps.Dispatcher,
		logger:     deps.Logger,
		cfg:        cfg,
	}
}

// Submit runs the full ingestion path: validate, gate, persist, dispatch.
// Chargeable messages without a transaction reference are rejected with a
// payment-required error and nothing is persisted; the client collects a
// reference out-of-band and resubmits the identical message.
func (s *MessageService) Submit(ctx context.Context, sender *domain.User, input SubmitInput) (*domain.Message, error) {
	if sender == nil {
		return nil, apperrors.NewUnauthorized("no authenticated sender")
	}

	body := strings.TrimSpace(input.Body)
	if body == "" {
		return nil, apperrors.NewValidationError("body is required", map[string]any{"field": "body"})
	}
	if max := s.cfg.MaxBodyChars; max > 0 && utf8.RuneCountInString(body) > max {
		return nil, apperrors.NewValidationError("body too long", map[string]any{"field": "body", "max_chars": max})
	}

	classification := input.Classification
	if classification == "" {
		classification = domain.ClassificationNormal
	}
	if !classification.Valid() {
		return nil, apperrors.NewValidationError("unknown classification", map[string]any{"field": "classification"})
	}

	if _, err := s.users.GetByID(ctx, input.RecipientID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewValidationError("recipient does not exist", map[string]any{"field": "recipient_id"})
		}
		return nil, err
	}

	decision := s.gate.Decide(sender.Role, classification)

	var msg *domain.Message
	if !decision.Chargeable {
		msg = domain.NewFreeMessage(sender.ID, input.RecipientID, body, classification)
	} else {
		if input.TransactionRef == nil || strings.TrimSpace(*input.TransactionRef) == "" {
			return nil, apperrors.NewPaymentRequired(decision.Amount)
		}
		ref := strings.TrimSpace(*input.TransactionRef)

		// Friendly pre-check for the common resubmission case; the unique
		// index still decides the concurrent race below.
		if _, err := s.messages.GetByTransactionRef(ctx, ref); err == nil {
			return nil, apperrors.NewDuplicateTransaction()
		} else if !errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}

		msg = domain.NewPaidMessage(sender.ID, input.RecipientID, body, classification, ref, decision.Amount, time.Now().UTC())
	}

	if err := msg.Validate(); err != nil {
		return nil, apperrors.NewInternalError(err)
	}

	if err := s.messages.Create(ctx, msg); err != nil {
		if errors.Is(err, repository.ErrDuplicateTransaction) {
			return nil, apperrors.NewDuplicateTransaction()
		}
		return nil, err
	}
	msg.SenderName = sender.Name

	s.publishEvent(ctx, events.Event{
		Type:    events.EventMessageSent,
		ActorID: sender.ID,
		Payload: events.MessageSentPayload{Message: msg},
	})

	return msg, nil
}

// MarkRead flips every unread message from senderID to the recipient.
func (s *MessageService) MarkRead(ctx context.Context, recipient *domain.User, senderID string) (int64, error) {
	if recipient == nil {
		return 0, apperrors.NewUnauthorized("no authenticated recipient")
	}
	if _, err := s.users.GetByID(ctx, senderID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, apperrors.NewValidationError("sender does not exist", map[string]any{"field": "sender_id"})
		}
		return 0, err
	}

	readAt := time.Now().UTC()
	count, err := s.messages.MarkRead(ctx, senderID, recipient.ID, readAt)
	if err != nil {
		return 0, err
	}

	s.publishEvent(ctx, events.Event{
		Type:    events.EventMessagesRead,
		ActorID: recipient.ID,
		Payload: events.MessagesReadPayload{
			SenderID:    senderID,
			RecipientID: recipient.ID,
			ReadAt:      readAt,
			Count:       count,
		},
	})
	return count, nil
}

// ApproveLegacyPayment flips a pending row to paid. Only rows written by
// earlier revisions can still be pending; nothing on the request path calls
// this.
func (s *MessageService) ApproveLegacyPayment(ctx context.Context, messageID string) error {
	if err := s.messages.ApprovePayment(ctx, messageID, time.Now().UTC()); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NewNotFound("pending message", map[string]any{"message_id": messageID})
		}
		return err
	}
	return nil
}

func (s *MessageService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	event.ID = uuid.NewString()
	event.Timestamp = time.Now().UTC()
	if err := s.dispatcher.Publish(ctx, event); err != nil {
		// Live delivery is best-effort; the row is already durable.
		s.logger.Warn("event publish failed", zap.Error(err), zap.String("event_type", string(event.Type)))
	}
}
