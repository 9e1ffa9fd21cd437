package chatclient

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LocalStatus tracks a rendered entry's position in the send lifecycle.
type LocalStatus string

const (
	// StatusPending is an optimistic render awaiting the server response.
	StatusPending LocalStatus = "pending"
	// StatusAwaitingPayment keeps the draft on screen while the user
	// collects a transaction reference.
	StatusAwaitingPayment LocalStatus = "awaiting_payment"
	// StatusSent carries the authoritative server copy.
	StatusSent LocalStatus = "sent"
)

// LocalMessage is one rendered entry: either an optimistic draft under a
// temporary identity or the authoritative server copy.
type LocalMessage struct {
	Message
	LocalID string
	Status  LocalStatus
}

// Conversation is the client-side view model. Its single correctness rule is
// idempotent merge-by-id: the HTTP response and the live-channel event race
// for the same message, and whichever arrives second must be a no-op.
type Conversation struct {
	mu      sync.Mutex
	entries []LocalMessage
	byID    map[string]int
	drafts  map[string]Draft
}

// NewConversation creates an empty view model.
func NewConversation() *Conversation {
	return &Conversation{
		byID:   make(map[string]int),
		drafts: make(map[string]Draft),
	}
}

// AppendLocal renders a draft immediately under a temporary identifier,
// before the network round-trip completes.
func (c *Conversation) AppendLocal(senderID string, draft Draft) string {
	c.mu.Lock()
	defer c.mu.Unlock()

	localID := "tmp-" + uuid.NewString()
	entry := LocalMessage{
		Message: Message{
			ID:             localID,
			Body:           draft.Body,
			SenderID:       senderID,
			RecipientID:    draft.RecipientID,
			Classification: draft.Classification,
			PaymentState:   "free",
			CreatedAt:      time.Now(),
		},
		LocalID: localID,
		Status:  StatusPending,
	}
	c.byID[localID] = len(c.entries)
	c.entries = append(c.entries, entry)
	c.drafts[localID] = draft
	return localID
}

// Resolve replaces the provisional entry with the authoritative copy, never
// appending a second one. If the live channel delivered the real id first,
// the provisional entry is simply dropped.
func (c *Conversation) Resolve(localID string, authoritative Message) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.drafts, localID)

	if _, exists := c.byID[authoritative.ID]; exists {
		c.removeLocked(localID)
		return
	}

	pos, ok := c.byID[localID]
	if !ok {
		// Provisional entry already gone; treat as a plain merge.
		c.appendLocked(authoritative)
		return
	}

	delete(c.byID, localID)
	c.entries[pos] = LocalMessage{Message: authoritative, LocalID: localID, Status: StatusSent}
	c.byID[authoritative.ID] = pos
}

// MergeRemote merges a live-channel message, ignoring ids already present
// (the client was the sender and reconciled it from the HTTP response).
// Returns true when the message was new.
func (c *Conversation) MergeRemote(msg Message) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.byID[msg.ID]; exists {
		return false
	}
	c.appendLocked(msg)
	return true
}

// MergeHistory folds a full history fetch into the view, deduplicating by id.
// Used after a reconnect, when missed live events must be recovered.
func (c *Conversation) MergeHistory(history []Message) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, msg := range history {
		if _, exists := c.byID[msg.ID]; exists {
			continue
		}
		c.appendLocked(msg)
	}

	sort.SliceStable(c.entries, func(i, j int) bool {
		return c.entries[i].CreatedAt.Before(c.entries[j].CreatedAt)
	})
	c.reindexLocked()
}

// AwaitPayment flags the provisional entry as blocked on payment, keeping the
// composed draft so the retry sends the identical message.
func (c *Conversation) AwaitPayment(localID string, amount decimal.Decimal) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if pos, ok := c.byID[localID]; ok {
		c.entries[pos].Status = StatusAwaitingPayment
		c.entries[pos].Amount = amount
	}
}

// Draft returns the preserved draft for a blocked entry.
func (c *Conversation) Draft(localID string) (Draft, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	draft, ok := c.drafts[localID]
	return draft, ok
}

// Discard removes a provisional entry whose send failed outright.
func (c *Conversation) Discard(localID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.drafts, localID)
	c.removeLocked(localID)
}

// Messages returns a snapshot of the rendered entries.
func (c *Conversation) Messages() []LocalMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]LocalMessage{}, c.entries...)
}

func (c *Conversation) appendLocked(msg Message) {
	c.byID[msg.ID] = len(c.entries)
	c.entries = append(c.entries, LocalMessage{Message: msg, Status: StatusSent})
}

func (c *Conversation) removeLocked(id string) {
	pos, ok := c.byID[id]
	if !ok {
		return
	}
	delete(c.byID, id)
	c.entries = append(c.entries[:pos], c.entries[pos+1:]...)
	c.reindexLocked()
}

func (c *Conversation) reindexLocked() {
	for k := range c.byID {
		delete(c.byID, k)
	}
	for i := range c.entries {
		c.byID[c.entries[i].ID] = i
	}
}
