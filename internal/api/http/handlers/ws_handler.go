package handlers

import (
	"context"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/chatpay-service/internal/auth"
	"github.com/spec-kit/chatpay-service/internal/broadcast"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10
)

const wsChannelKey = "ws_channel"

// WSHandler upgrades authorized subscribers onto their live channel and
// bridges Redis pub/sub into the socket.
type WSHandler struct {
	authMiddleware *auth.AuthMiddleware
	authorizer     *broadcast.Authorizer
	scheme         broadcast.ChannelScheme
	broker         *broadcast.Broker
	logger         *zap.Logger
}

// NewWSHandler constructs handler.
func NewWSHandler(authMiddleware *auth.AuthMiddleware, authorizer *broadcast.Authorizer, scheme broadcast.ChannelScheme, broker *broadcast.Broker, logger *zap.Logger) *WSHandler {
	return &WSHandler{
		authMiddleware: authMiddleware,
		authorizer:     authorizer,
		scheme:         scheme,
		broker:         broker,
		logger:         logger,
	}
}

// Handshake authenticates and authorizes before the protocol upgrade. A
// denied subscription gets a bare rejected handshake, no error payload.
func (h *WSHandler) Handshake(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}

	user, err := h.authMiddleware.Resolve(c, c.Query("token"))
	if err != nil {
		return c.SendStatus(fiber.StatusUnauthorized)
	}

	channel := h.scheme.ChannelFor(c.Params("userID"))
	if !h.authorizer.Authorize(user, channel) {
		return c.SendStatus(fiber.StatusForbidden)
	}

	c.Locals(wsChannelKey, channel)
	return c.Next()
}

// Serve returns the upgraded connection handler.
func (h *WSHandler) Serve() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		channel, _ := conn.Locals(wsChannelKey).(string)
		if channel == "" {
			_ = conn.Close()
			return
		}
		h.pump(conn, channel)
	})
}

// pump forwards channel events to the socket until either side goes away.
// Subscription teardown on exit matters: a stale subscription would
// double-deliver into the next conversation view the client opens.
func (h *WSHandler) pump(conn *websocket.Conn, channel string) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pubsub := h.broker.Subscribe(ctx, channel)
	defer pubsub.Close()

	// Read pump only detects the client closing; subscribers never send.
	go func() {
		defer cancel()
		conn.SetReadDeadline(time.Now().Add(wsPongWait))
		conn.SetPongHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(wsPongWait))
			return nil
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	events := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-events:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.TextMessage, []byte(msg.Payload)); err != nil {
				h.logger.Debug("ws write failed", zap.Error(err), zap.String("channel", channel))
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
