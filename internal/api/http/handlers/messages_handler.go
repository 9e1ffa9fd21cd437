package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/chatpay-service/internal/api/dto"
	"github.com/spec-kit/chatpay-service/internal/auth"
	"github.com/spec-kit/chatpay-service/internal/service"
	apperrors "github.com/spec-kit/chatpay-service/pkg/util/errorutil"
)

// MessagesHandler exposes the chat endpoints for both roles.
type MessagesHandler struct {
	messages      *service.MessageService
	conversations *service.ConversationService
}

// NewMessagesHandler constructs handler.
func NewMessagesHandler(messages *service.MessageService, conversations *service.ConversationService) *MessagesHandler {
	return &MessagesHandler{messages: messages, conversations: conversations}
}

// Send POST /api/messages.
func (h *MessagesHandler) Send(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.User == nil {
		return apperrors.NewUnauthorized("authentication required")
	}

	var req dto.SendMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	msg, err := h.messages.Submit(c.Context(), principal.User, service.SubmitInput{
		RecipientID:    req.RecipientID,
		Body:           req.Body,
		Classification: req.Classification,
		TransactionRef: req.TransactionRef,
	})
	if err != nil {
		return err
	}

	return c.Status(http.StatusCreated).JSON(dto.NewMessageView(msg))
}

// History GET /api/messages?receiver_id=...&before=...&limit=...
func (h *MessagesHandler) History(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.User == nil {
		return apperrors.NewUnauthorized("authentication required")
	}

	query := service.HistoryQuery{}
	if raw := c.Query("before"); raw != "" {
		before, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return apperrors.NewValidationError("invalid before cursor", map[string]any{"field": "before"})
		}
		query.Before = &before
	}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return apperrors.NewValidationError("invalid limit", map[string]any{"field": "limit"})
		}
		query.Limit = limit
	}

	history, err := h.conversations.History(c.Context(), principal.User, c.Query("receiver_id"), query)
	if err != nil {
		return err
	}

	views := make([]dto.MessageView, 0, len(history))
	for i := range history {
		views = append(views, dto.NewMessageView(&history[i]))
	}
	return c.JSON(views)
}

// Summaries GET /api/chat-users (admin only).
func (h *MessagesHandler) Summaries(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.User == nil {
		return apperrors.NewUnauthorized("authentication required")
	}

	summaries, err := h.conversations.Summaries(c.Context(), principal.User)
	if err != nil {
		return err
	}

	views := make([]dto.CustomerSummaryView, 0, len(summaries))
	for i := range summaries {
		summary := summaries[i]
		view := dto.CustomerSummaryView{
			ID:          summary.Customer.ID,
			Name:        summary.Customer.Name,
			Email:       summary.Customer.Email,
			UnreadCount: summary.UnreadCount,
		}
		if summary.LastMessage != nil {
			last := dto.NewMessageView(summary.LastMessage)
			view.LastMessage = &last
		}
		views = append(views, view)
	}
	return c.JSON(views)
}

// MarkRead POST /api/messages/read.
func (h *MessagesHandler) MarkRead(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.User == nil {
		return apperrors.NewUnauthorized("authentication required")
	}

	var req dto.MarkReadRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.SenderID == "" {
		return apperrors.NewValidationError("sender_id is required", map[string]any{"field": "sender_id"})
	}

	count, err := h.messages.MarkRead(c.Context(), principal.User, req.SenderID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"marked_read": count})
}
