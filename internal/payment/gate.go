package payment

import (
	"github.com/shopspring/decimal"

	"github.com/spec-kit/chatpay-service/internal/config"
	"github.com/spec-kit/chatpay-service/internal/domain"
)

// Decision is the gate's verdict for a prospective message.
type Decision struct {
	Chargeable bool
	Amount     decimal.Decimal
}

// Gate decides whether a prospective message requires payment. The policy is
// purely classification-based: admins are always exempt, and only
// customer-authored questions are chargeable, at the configured fixed price.
type Gate struct {
	price decimal.Decimal
}

// NewGate builds a gate from payment configuration.
func NewGate(cfg config.PaymentConfig) *Gate {
	return &Gate{price: cfg.QuestionPrice}
}

// Decide computes the verdict for a sender role and message classification.
func (g *Gate) Decide(role domain.Role, classification domain.Classification) Decision {
	if role == domain.RoleAdmin {
		return Decision{Chargeable: false, Amount: decimal.Zero}
	}
	if classification == domain.ClassificationQuestion {
		return Decision{Chargeable: true, Amount: g.price}
	}
	// "answer" from a customer has no defined use; it rides the normal path.
	return Decision{Chargeable: false, Amount: decimal.Zero}
}
