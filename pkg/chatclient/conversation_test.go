package chatclient

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func wireMessage(id, sender, recipient, body string, at time.Time) Message {
	return Message{
		ID:             id,
		Body:           body,
		SenderID:       sender,
		RecipientID:    recipient,
		Classification: "normal",
		PaymentState:   "free",
		CreatedAt:      at,
	}
}

func TestAppendLocalRendersImmediately(t *testing.T) {
	conv := NewConversation()

	localID := conv.AppendLocal("cust-1", Draft{RecipientID: "admin-1", Body: "hello", Classification: "normal"})

	require.True(t, strings.HasPrefix(localID, "tmp-"))
	entries := conv.Messages()
	require.Len(t, entries, 1)
	assert.Equal(t, StatusPending, entries[0].Status)
	assert.Equal(t, "hello", entries[0].Body)
	assert.Equal(t, localID, entries[0].ID)
}

func TestResolveReplacesProvisionalEntry(t *testing.T) {
	conv := NewConversation()
	localID := conv.AppendLocal("cust-1", Draft{RecipientID: "admin-1", Body: "hello"})

	real := wireMessage("m-1", "cust-1", "admin-1", "hello", time.Now())
	conv.Resolve(localID, real)

	entries := conv.Messages()
	require.Len(t, entries, 1)
	assert.Equal(t, "m-1", entries[0].ID)
	assert.Equal(t, StatusSent, entries[0].Status)
}

// The HTTP response and the live-channel event race for the same message.
// Whatever order they arrive in, the conversation must end with exactly one
// entry under the real id and none under the temporary one.
func TestHTTPResponseAndLiveEventRace(t *testing.T) {
	real := wireMessage("m-1", "cust-1", "admin-1", "hello", time.Now())

	t.Run("response first then event", func(t *testing.T) {
		conv := NewConversation()
		localID := conv.AppendLocal("cust-1", Draft{RecipientID: "admin-1", Body: "hello"})

		conv.Resolve(localID, real)
		merged := conv.MergeRemote(real)

		assert.False(t, merged)
		assertSingleReal(t, conv, localID)
	})

	t.Run("event first then response", func(t *testing.T) {
		conv := NewConversation()
		localID := conv.AppendLocal("cust-1", Draft{RecipientID: "admin-1", Body: "hello"})

		merged := conv.MergeRemote(real)
		conv.Resolve(localID, real)

		assert.True(t, merged)
		assertSingleReal(t, conv, localID)
	})
}

func assertSingleReal(t *testing.T, conv *Conversation, localID string) {
	t.Helper()
	entries := conv.Messages()
	realCount, tempCount := 0, 0
	for _, e := range entries {
		switch e.ID {
		case "m-1":
			realCount++
		case localID:
			tempCount++
		}
	}
	assert.Equal(t, 1, realCount)
	assert.Zero(t, tempCount)
}

func TestMergeRemoteIdempotent(t *testing.T) {
	conv := NewConversation()
	msg := wireMessage("m-9", "admin-1", "cust-1", "answer", time.Now())

	assert.True(t, conv.MergeRemote(msg))
	assert.False(t, conv.MergeRemote(msg))
	assert.Len(t, conv.Messages(), 1)
}

func TestAwaitPaymentPreservesDraft(t *testing.T) {
	conv := NewConversation()
	draft := Draft{RecipientID: "admin-1", Body: "how do I renew?", Classification: "question"}
	localID := conv.AppendLocal("cust-1", draft)

	conv.AwaitPayment(localID, decimal.RequireFromString("20.00"))

	entries := conv.Messages()
	require.Len(t, entries, 1)
	assert.Equal(t, StatusAwaitingPayment, entries[0].Status)
	assert.True(t, entries[0].Amount.Equal(decimal.RequireFromString("20.00")))

	kept, ok := conv.Draft(localID)
	require.True(t, ok)
	assert.Equal(t, draft, kept)

	// The later retry resolves the same entry, no re-entry of the draft.
	conv.Resolve(localID, wireMessage("m-2", "cust-1", "admin-1", draft.Body, time.Now()))
	entries = conv.Messages()
	require.Len(t, entries, 1)
	assert.Equal(t, "m-2", entries[0].ID)
	_, ok = conv.Draft(localID)
	assert.False(t, ok)
}

func TestDiscardRemovesEntryAndDraft(t *testing.T) {
	conv := NewConversation()
	localID := conv.AppendLocal("cust-1", Draft{RecipientID: "admin-1", Body: "oops"})

	conv.Discard(localID)

	assert.Empty(t, conv.Messages())
	_, ok := conv.Draft(localID)
	assert.False(t, ok)
}

func TestMergeHistoryDeduplicatesAndSorts(t *testing.T) {
	conv := NewConversation()
	base := time.Now().Add(-time.Hour)

	live := wireMessage("m-3", "admin-1", "cust-1", "third", base.Add(3*time.Minute))
	require.True(t, conv.MergeRemote(live))

	conv.MergeHistory([]Message{
		wireMessage("m-1", "cust-1", "admin-1", "first", base.Add(1*time.Minute)),
		wireMessage("m-2", "admin-1", "cust-1", "second", base.Add(2*time.Minute)),
		live,
	})

	entries := conv.Messages()
	require.Len(t, entries, 3)
	assert.Equal(t, "m-1", entries[0].ID)
	assert.Equal(t, "m-2", entries[1].ID)
	assert.Equal(t, "m-3", entries[2].ID)
}
