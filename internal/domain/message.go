package domain

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Classification distinguishes free chat, paid inquiry and the admin's
// canonical reply.
type Classification string

const (
	ClassificationNormal   Classification = "normal"
	ClassificationQuestion Classification = "question"
	ClassificationAnswer   Classification = "answer"
)

// Valid reports whether the classification is one of the three known tags.
func (c Classification) Valid() bool {
	switch c {
	case ClassificationNormal, ClassificationQuestion, ClassificationAnswer:
		return true
	}
	return false
}

// PaymentState tracks how a message moved through payment. "pending" exists
// only for rows written by earlier revisions; new rows are free or paid.
type PaymentState string

const (
	PaymentStateFree    PaymentState = "free"
	PaymentStatePending PaymentState = "pending"
	PaymentStatePaid    PaymentState = "paid"
)

// Message is the central entity: one chat message with its payment and
// delivery metadata. Classification and payment state are fixed at creation;
// only ReadAt (mark read) and the legacy pending->paid flip ever mutate a row.
type Message struct {
	ID             string
	SenderID       string
	RecipientID    string
	Body           string
	Classification Classification
	PaymentState   PaymentState
	Amount         decimal.Decimal
	TransactionRef *string
	PaidAt         *time.Time
	ReadAt         *time.Time
	CreatedAt      time.Time

	// SenderName is denormalized for display, populated on read paths.
	SenderName string
}

// IsChargeable is derived from the payment state, kept as a display convenience.
func (m *Message) IsChargeable() bool {
	return m.PaymentState != PaymentStateFree
}

// IsRead reports whether the recipient has marked the message read.
func (m *Message) IsRead() bool {
	return m.ReadAt != nil
}

var (
	errUnknownClassification = errors.New("unknown classification")
	errUnknownPaymentState   = errors.New("unknown payment state")
	errAmountMismatch        = errors.New("amount must be positive exactly when chargeable")
	errPaidWithoutRef        = errors.New("paid message requires a transaction reference")
	errFreeWithRef           = errors.New("free message must not carry a transaction reference")
)

// Validate rejects illegal classification/payment combinations at construction
// time instead of relying on optionally-present fields.
func (m *Message) Validate() error {
	if !m.Classification.Valid() {
		return errUnknownClassification
	}
	switch m.PaymentState {
	case PaymentStateFree:
		if !m.Amount.IsZero() {
			return errAmountMismatch
		}
		if m.TransactionRef != nil {
			return errFreeWithRef
		}
	case PaymentStatePaid:
		if !m.Amount.IsPositive() {
			return errAmountMismatch
		}
		if m.TransactionRef == nil || *m.TransactionRef == "" {
			return errPaidWithoutRef
		}
	case PaymentStatePending:
		// Legacy rows only; tolerated on read, never constructed anew.
		if !m.Amount.IsPositive() {
			return errAmountMismatch
		}
	default:
		return errUnknownPaymentState
	}
	return nil
}

// NewFreeMessage builds a non-chargeable message.
func NewFreeMessage(senderID, recipientID, body string, classification Classification) *Message {
	return &Message{
		SenderID:       senderID,
		RecipientID:    recipientID,
		Body:           body,
		Classification: classification,
		PaymentState:   PaymentStateFree,
		Amount:         decimal.Zero,
	}
}

// NewPaidMessage builds a chargeable message carrying a transaction reference.
func NewPaidMessage(senderID, recipientID, body string, classification Classification, transactionRef string, amount decimal.Decimal, paidAt time.Time) *Message {
	return &Message{
		SenderID:       senderID,
		RecipientID:    recipientID,
		Body:           body,
		Classification: classification,
		PaymentState:   PaymentStatePaid,
		Amount:         amount,
		TransactionRef: &transactionRef,
		PaidAt:         &paidAt,
	}
}
