package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/chatpay-service/internal/config"
	"github.com/spec-kit/chatpay-service/internal/domain"
	"github.com/spec-kit/chatpay-service/internal/service"
)

func seedMessage(t *testing.T, repo *memMessageRepo, sender, recipient, body string, at time.Time) {
	t.Helper()
	msg := domain.NewFreeMessage(sender, recipient, body, domain.ClassificationNormal)
	msg.CreatedAt = at
	require.NoError(t, repo.Create(context.Background(), msg))
}

func TestHistory_BidirectionalAscending(t *testing.T) {
	users := newMemUserRepo(customer, admin)
	messages := newMemMessageRepo(nil)
	svc := service.NewConversationService(config.ChatConfig{HistoryDefaultLimit: 200, HistoryMaxLimit: 500}, messages, users)

	base := time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)
	seedMessage(t, messages, customer.ID, admin.ID, "first", base)
	seedMessage(t, messages, admin.ID, customer.ID, "second", base.Add(time.Minute))
	seedMessage(t, messages, customer.ID, admin.ID, "third", base.Add(2*time.Minute))
	// Noise from an unrelated pair must not leak in.
	seedMessage(t, messages, "other-1", admin.ID, "noise", base.Add(90*time.Second))

	history, err := svc.History(context.Background(), &customer, admin.ID, service.HistoryQuery{})
	require.NoError(t, err)

	require.Len(t, history, 3)
	assert.Equal(t, "first", history[0].Body)
	assert.Equal(t, "second", history[1].Body)
	assert.Equal(t, "third", history[2].Body)
	for i := 1; i < len(history); i++ {
		assert.True(t, history[i].CreatedAt.After(history[i-1].CreatedAt))
	}
}

func TestHistory_CursorAndLimit(t *testing.T) {
	users := newMemUserRepo(customer, admin)
	messages := newMemMessageRepo(nil)
	svc := service.NewConversationService(config.ChatConfig{HistoryDefaultLimit: 2, HistoryMaxLimit: 3}, messages, users)

	base := time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)
	for i, body := range []string{"a", "b", "c", "d"} {
		seedMessage(t, messages, customer.ID, admin.ID, body, base.Add(time.Duration(i)*time.Minute))
	}

	// Default limit keeps the newest page, still ascending.
	page, err := svc.History(context.Background(), &customer, admin.ID, service.HistoryQuery{})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "c", page[0].Body)
	assert.Equal(t, "d", page[1].Body)

	// Requested limit is clamped to the configured maximum.
	page, err = svc.History(context.Background(), &customer, admin.ID, service.HistoryQuery{Limit: 100})
	require.NoError(t, err)
	assert.Len(t, page, 3)

	// Cursor pages strictly older rows.
	cursor := base.Add(2 * time.Minute)
	page, err = svc.History(context.Background(), &customer, admin.ID, service.HistoryQuery{Before: &cursor})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "a", page[0].Body)
	assert.Equal(t, "b", page[1].Body)
}

func TestHistory_RequiresCounterparty(t *testing.T) {
	users := newMemUserRepo(customer, admin)
	svc := service.NewConversationService(config.ChatConfig{}, newMemMessageRepo(nil), users)

	_, err := svc.History(context.Background(), &customer, "", service.HistoryQuery{})
	assert.Error(t, err)
}

func TestSummaries_CoversEveryCustomer(t *testing.T) {
	older := domain.User{ID: "cust-0", Name: "Old", Email: "old@example.com", Role: domain.RoleCustomer}
	fresh := domain.User{ID: "cust-9", Name: "Fresh", Email: "fresh@example.com", Role: domain.RoleCustomer}
	users := newMemUserRepo(customer, older, fresh, admin)
	messages := newMemMessageRepo(nil)
	svc := service.NewConversationService(config.ChatConfig{HistoryDefaultLimit: 200}, messages, users)

	base := time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)
	seedMessage(t, messages, older.ID, admin.ID, "old says hi", base)
	seedMessage(t, messages, customer.ID, admin.ID, "unread one", base.Add(time.Minute))
	seedMessage(t, messages, customer.ID, admin.ID, "unread two", base.Add(2*time.Minute))

	summaries, err := svc.Summaries(context.Background(), &admin)
	require.NoError(t, err)

	// Every customer appears, the admin does not.
	require.Len(t, summaries, 3)

	// Newest conversation first; the zero-message customer sorts last with a
	// nil last message.
	assert.Equal(t, customer.ID, summaries[0].Customer.ID)
	assert.Equal(t, 2, summaries[0].UnreadCount)
	require.NotNil(t, summaries[0].LastMessage)
	assert.Equal(t, "unread two", summaries[0].LastMessage.Body)

	assert.Equal(t, older.ID, summaries[1].Customer.ID)
	assert.Equal(t, 1, summaries[1].UnreadCount)

	assert.Equal(t, fresh.ID, summaries[2].Customer.ID)
	assert.Nil(t, summaries[2].LastMessage)
	assert.Equal(t, 0, summaries[2].UnreadCount)
}

func TestSummaries_UnreadCountExcludesRead(t *testing.T) {
	users := newMemUserRepo(customer, admin)
	messages := newMemMessageRepo(nil)
	svc := service.NewConversationService(config.ChatConfig{}, messages, users)

	base := time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)
	seedMessage(t, messages, customer.ID, admin.ID, "one", base)
	seedMessage(t, messages, customer.ID, admin.ID, "two", base.Add(time.Minute))
	_, err := messages.MarkRead(context.Background(), customer.ID, admin.ID, base.Add(2*time.Minute))
	require.NoError(t, err)
	seedMessage(t, messages, customer.ID, admin.ID, "three", base.Add(3*time.Minute))

	summaries, err := svc.Summaries(context.Background(), &admin)
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, 1, summaries[0].UnreadCount)
}

func TestSummaries_AdminOnly(t *testing.T) {
	users := newMemUserRepo(customer, admin)
	svc := service.NewConversationService(config.ChatConfig{}, newMemMessageRepo(nil), users)

	_, err := svc.Summaries(context.Background(), &customer)
	assert.Error(t, err)
}
