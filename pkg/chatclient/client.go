package chatclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
)

// Session identifies the authenticated user behind a client.
type Session struct {
	Token  string
	UserID string
	Role   string
}

// Client talks to the chat API over HTTP and the live channel over websocket,
// reconciling both into a Conversation.
type Client struct {
	baseURL string
	session Session
	httpc   *http.Client
	dialer  *websocket.Dialer
	backoff *Reconnector
}

// NewClient builds a client for the given API base URL (e.g.
// "http://localhost:8080").
func NewClient(baseURL string, session Session) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		session: session,
		httpc:   &http.Client{Timeout: 15 * time.Second},
		dialer:  websocket.DefaultDialer,
		backoff: NewReconnector(time.Second, 30*time.Second),
	}
}

// Reconnector exposes the connection state machine, mainly for UI badges.
func (c *Client) Reconnector() *Reconnector {
	return c.backoff
}

type sendRequest struct {
	Body           string  `json:"body"`
	RecipientID    string  `json:"recipient_id"`
	Classification string  `json:"classification"`
	TransactionRef *string `json:"transaction_reference,omitempty"`
}

type errorEnvelope struct {
	Error           string          `json:"error"`
	Code            string          `json:"code"`
	RequiresPayment bool            `json:"requires_payment"`
	Amount          decimal.Decimal `json:"amount"`
}

// Send renders draft optimistically, posts it, and reconciles the outcome.
// A PaymentRequiredError leaves the draft rendered and preserved for
// RetryWithReference; any other failure discards the provisional entry.
func (c *Client) Send(ctx context.Context, conv *Conversation, draft Draft) (string, error) {
	localID := conv.AppendLocal(c.session.UserID, draft)
	if err := c.postMessage(ctx, conv, localID, draft, nil); err != nil {
		return localID, err
	}
	return localID, nil
}

// RetryWithReference resends the draft preserved under localID, now carrying a
// transaction reference. The draft is the one the user originally composed;
// nothing is re-entered.
func (c *Client) RetryWithReference(ctx context.Context, conv *Conversation, localID, transactionRef string) error {
	draft, ok := conv.Draft(localID)
	if !ok {
		return fmt.Errorf("no preserved draft for %s", localID)
	}
	return c.postMessage(ctx, conv, localID, draft, &transactionRef)
}

func (c *Client) postMessage(ctx context.Context, conv *Conversation, localID string, draft Draft, ref *string) error {
	payload, err := json.Marshal(sendRequest{
		Body:           draft.Body,
		RecipientID:    draft.RecipientID,
		Classification: draft.Classification,
		TransactionRef: ref,
	})
	if err != nil {
		conv.Discard(localID)
		return err
	}

	resp, err := c.do(ctx, http.MethodPost, "/api/messages", bytes.NewReader(payload))
	if err != nil {
		conv.Discard(localID)
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		conv.Discard(localID)
		return err
	}

	switch resp.StatusCode {
	case http.StatusCreated:
		var msg Message
		if err := json.Unmarshal(body, &msg); err != nil {
			conv.Discard(localID)
			return err
		}
		conv.Resolve(localID, msg)
		return nil

	case http.StatusPaymentRequired:
		var env errorEnvelope
		if err := json.Unmarshal(body, &env); err != nil {
			conv.Discard(localID)
			return err
		}
		conv.AwaitPayment(localID, env.Amount)
		return &PaymentRequiredError{LocalID: localID, Amount: env.Amount}

	case http.StatusBadRequest:
		var env errorEnvelope
		if err := json.Unmarshal(body, &env); err == nil && env.Code == "DUPLICATE_TRANSACTION" {
			// Keep the entry in awaiting_payment; a fresh reference retries it.
			return &DuplicateTransactionError{LocalID: localID}
		}
		conv.Discard(localID)
		return fmt.Errorf("send rejected: %s", strings.TrimSpace(string(body)))

	default:
		conv.Discard(localID)
		return fmt.Errorf("send failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
}

// History fetches the conversation with receiverID and folds it into conv.
func (c *Client) History(ctx context.Context, conv *Conversation, receiverID string) error {
	q := url.Values{"receiver_id": {receiverID}}
	resp, err := c.do(ctx, http.MethodGet, "/api/messages?"+q.Encode(), nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("history fetch failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var history []Message
	if err := json.NewDecoder(resp.Body).Decode(&history); err != nil {
		return err
	}
	conv.MergeHistory(history)
	return nil
}

// MarkRead marks everything from senderID as read.
func (c *Client) MarkRead(ctx context.Context, senderID string) error {
	payload, err := json.Marshal(map[string]string{"sender_id": senderID})
	if err != nil {
		return err
	}
	resp, err := c.do(ctx, http.MethodPost, "/api/messages/read", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("mark read failed with status %d", resp.StatusCode)
	}
	return nil
}

type wireEvent struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Listen subscribes to the user's own live channel and merges incoming
// messages into conv until ctx is cancelled. Dropped connections are redialed
// with backoff; after every reconnect the history for peerID is refetched,
// since the live channel does not replay missed events.
func (c *Client) Listen(ctx context.Context, conv *Conversation, peerID string) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		conn, err := c.dial(ctx)
		if err != nil {
			if waitErr := c.waitBackoff(ctx); waitErr != nil {
				return waitErr
			}
			continue
		}

		c.backoff.OnConnected()
		if c.backoff.NeedsResync() {
			if err := c.History(ctx, conv, peerID); err == nil {
				c.backoff.Resynced()
			}
		}

		err = c.readLoop(ctx, conn, conv)
		conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		_ = err
		if waitErr := c.waitBackoff(ctx); waitErr != nil {
			return waitErr
		}
	}
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	wsBase := strings.Replace(c.baseURL, "http", "ws", 1)
	endpoint := fmt.Sprintf("%s/ws/chat/%s?token=%s", wsBase, c.session.UserID, url.QueryEscape(c.session.Token))
	conn, resp, err := c.dialer.DialContext(ctx, endpoint, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	return conn, err
}

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn, conv *Conversation) error {
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		var evt wireEvent
		if err := json.Unmarshal(raw, &evt); err != nil {
			continue
		}
		if evt.Event != "message.sent" {
			continue
		}

		var msg Message
		if err := json.Unmarshal(evt.Data, &msg); err != nil {
			continue
		}
		conv.MergeRemote(msg)
	}
}

func (c *Client) waitBackoff(ctx context.Context) error {
	delay := c.backoff.OnDisconnect()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(delay):
		return nil
	}
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.session.Token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.httpc.Do(req)
}
