package chatclient

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Message is the wire shape delivered by both the HTTP API and the live
// channel.
type Message struct {
	ID             string          `json:"id"`
	Body           string          `json:"body"`
	SenderID       string          `json:"sender_id"`
	RecipientID    string          `json:"recipient_id"`
	SenderName     string          `json:"sender_name"`
	Classification string          `json:"classification"`
	PaymentState   string          `json:"payment_state"`
	IsChargeable   bool            `json:"is_chargeable"`
	TransactionRef *string         `json:"transaction_reference"`
	Amount         decimal.Decimal `json:"amount"`
	IsRead         bool            `json:"is_read"`
	CreatedAt      time.Time       `json:"created_at"`
}

// Draft is a composed-but-unsent message. It is preserved verbatim across a
// payment round-trip so the retried send is identical.
type Draft struct {
	RecipientID    string
	Body           string
	Classification string
}

// PaymentRequiredError reports that the server wants a transaction reference
// before it will accept the message. The draft stays rendered locally under
// LocalID and must be retried with RetryWithReference, not composed anew.
type PaymentRequiredError struct {
	LocalID string
	Amount  decimal.Decimal
}

func (e *PaymentRequiredError) Error() string {
	return fmt.Sprintf("payment of %s required before sending", e.Amount.StringFixed(2))
}

// DuplicateTransactionError reports reuse of a transaction reference. A fresh
// reference must be collected; never auto-retry the same one.
type DuplicateTransactionError struct {
	LocalID string
}

func (e *DuplicateTransactionError) Error() string {
	return "transaction reference already used"
}
