package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/spec-kit/chatpay-service/internal/domain"
)

// SendMessageRequest payload.
type SendMessageRequest struct {
	Body           string                `json:"body"`
	RecipientID    string                `json:"recipient_id"`
	Classification domain.Classification `json:"classification"`
	TransactionRef *string               `json:"transaction_reference,omitempty"`
}

// MarkReadRequest payload.
type MarkReadRequest struct {
	SenderID string `json:"sender_id"`
}

// MessageView is the wire shape of a message, shared by HTTP responses and
// live-channel events.
type MessageView struct {
	ID             string                `json:"id"`
	Body           string                `json:"body"`
	SenderID       string                `json:"sender_id"`
	RecipientID    string                `json:"recipient_id"`
	SenderName     string                `json:"sender_name"`
	Classification domain.Classification `json:"classification"`
	PaymentState   domain.PaymentState   `json:"payment_state"`
	IsChargeable   bool                  `json:"is_chargeable"`
	TransactionRef *string               `json:"transaction_reference"`
	Amount         decimal.Decimal       `json:"amount"`
	IsRead         bool                  `json:"is_read"`
	CreatedAt      time.Time             `json:"created_at"`
}

// NewMessageView maps a domain message to its wire shape.
func NewMessageView(msg *domain.Message) MessageView {
	return MessageView{
		ID:             msg.ID,
		Body:           msg.Body,
		SenderID:       msg.SenderID,
		RecipientID:    msg.RecipientID,
		SenderName:     msg.SenderName,
		Classification: msg.Classification,
		PaymentState:   msg.PaymentState,
		IsChargeable:   msg.IsChargeable(),
		TransactionRef: msg.TransactionRef,
		Amount:         msg.Amount,
		IsRead:         msg.IsRead(),
		CreatedAt:      msg.CreatedAt,
	}
}

// CustomerSummaryView is one admin dashboard row.
type CustomerSummaryView struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Email       string       `json:"email"`
	UnreadCount int          `json:"unread_count"`
	LastMessage *MessageView `json:"last_message"`
}
