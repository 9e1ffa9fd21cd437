package service

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/chatpay-service/internal/config"
	"github.com/spec-kit/chatpay-service/internal/domain"
	"github.com/spec-kit/chatpay-service/internal/repository"
	apperrors "github.com/spec-kit/chatpay-service/pkg/util/errorutil"
)

// ConversationService reconstructs ordered message history and the admin's
// per-customer overview.
type ConversationService struct {
	messages repository.MessageRepository
	users    repository.UserRepository
	cfg      config.ChatConfig
}

// CustomerSummary is one row of the admin dashboard: every customer appears,
// with or without message history.
type CustomerSummary struct {
	Customer    domain.User
	LastMessage *domain.Message
	UnreadCount int
}

// HistoryQuery bounds a history fetch.
type HistoryQuery struct {
	Before *time.Time
	Limit  int
}

// NewConversationService constructs the service.
func NewConversationService(cfg config.ChatConfig, messages repository.MessageRepository, users repository.UserRepository) *ConversationService {
	return &ConversationService{messages: messages, users: users, cfg: cfg}
}

// History returns every message between the caller and the counterparty,
// ascending by created_at, bounded by an optional cursor.
func (s *ConversationService) History(ctx context.Context, caller *domain.User, counterpartyID string, query HistoryQuery) ([]domain.Message, error) {
	if caller == nil {
		return nil, apperrors.NewUnauthorized("no authenticated caller")
	}
	if counterpartyID == "" {
		return nil, apperrors.NewValidationError("receiver_id is required", map[string]any{"field": "receiver_id"})
	}

	limit := query.Limit
	if limit <= 0 {
		limit = s.cfg.HistoryDefaultLimit
	}
	if s.cfg.HistoryMaxLimit > 0 && limit > s.cfg.HistoryMaxLimit {
		limit = s.cfg.HistoryMaxLimit
	}

	return s.messages.ListBetween(ctx, caller.ID, counterpartyID, query.Before, limit)
}

// Summaries returns one entry per customer in the system, newest conversation
// first. Customers with no messages appear last with a nil last message.
func (s *ConversationService) Summaries(ctx context.Context, admin *domain.User) ([]CustomerSummary, error) {
	if admin == nil {
		return nil, apperrors.NewUnauthorized("no authenticated caller")
	}
	if !admin.IsAdmin() {
		return nil, apperrors.NewForbidden("admin required")
	}

	customers, err := s.users.ListCustomers(ctx)
	if err != nil {
		return nil, err
	}

	summaries := make([]CustomerSummary, 0, len(customers))
	for i := range customers {
		customer := customers[i]

		last, err := s.messages.LastBetween(ctx, admin.ID, customer.ID)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}

		unread, err := s.messages.CountUnread(ctx, customer.ID, admin.ID)
		if err != nil {
			return nil, err
		}

		summaries = append(summaries, CustomerSummary{
			Customer:    customer,
			LastMessage: last,
			UnreadCount: unread,
		})
	}

	sort.SliceStable(summaries, func(i, j int) bool {
		return lastMessageTime(summaries[i]).After(lastMessageTime(summaries[j]))
	})
	return summaries, nil
}

// lastMessageTime sorts customers without history to the bottom via the epoch
// sentinel.
func lastMessageTime(s CustomerSummary) time.Time {
	if s.LastMessage == nil {
		return time.Unix(0, 0)
	}
	return s.LastMessage.CreatedAt
}
