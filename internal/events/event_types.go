package events

import (
	"time"

	"github.com/spec-kit/chatpay-service/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventMessageSent  EventType = "message_sent"
	EventMessagesRead EventType = "messages_read"
)

// Event represents a domain event emitted by services.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	ActorID   string    `json:"actor_id"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

// MessageSentPayload carries the committed message bound for broadcast.
type MessageSentPayload struct {
	Message *domain.Message `json:"message"`
}

// MessagesReadPayload records a recipient marking a sender's messages read.
type MessagesReadPayload struct {
	SenderID    string    `json:"sender_id"`
	RecipientID string    `json:"recipient_id"`
	ReadAt      time.Time `json:"read_at"`
	Count       int64     `json:"count"`
}
