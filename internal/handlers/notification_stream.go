package handlers

import (
	"net"
	"net/http"
	"time"

	"github.com/anonto42/nano-midea/relations/internal/realtime"
	"github.com/anonto42/nano-midea/relations/internal/services"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

const (
	streamWriteWait  = 10 * time.Second
	streamPongWait   = 60 * time.Second
	streamPingPeriod = streamPongWait * 9 / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Subscriber is implemented by *realtime.Hub.
type Subscriber interface {
	Subscribe(userID uint) *realtime.Subscription
}

// NotificationStreamHandler pushes the actor's notification events over a WebSocket.
type NotificationStreamHandler struct {
	hub Subscriber
	log *zap.Logger
}

func NewNotificationStreamHandler(hub Subscriber, log *zap.Logger) *NotificationStreamHandler {
	return &NotificationStreamHandler{hub: hub, log: log}
}

func (h *NotificationStreamHandler) RegisterStreamRoutes(g *echo.Group) {
	g.GET("/notifications/stream", h.Stream)
}

// Stream upgrades the request and writes one JSON NotificationEvent per
// message until either side closes.
func (h *NotificationStreamHandler) Stream(c echo.Context) error {
	actor := actorFromContext(c)
	if !actor.Authenticated() {
		return failure(c, h.log, services.ErrUnauthenticated, "")
	}

	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// The upgrader has already written the HTTP error.
		h.log.Info("websocket upgrade failed", zap.Uint("user", actor.ID), zap.Error(err))
		return nil
	}
	defer ws.Close()

	sub := h.hub.Subscribe(actor.ID)
	defer sub.Unsubscribe()

	done := make(chan struct{})
	go h.readLoop(ws, sub.ID, done)

	ping := time.NewTicker(streamPingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-done:
			return nil
		case <-c.Request().Context().Done():
			return nil
		case ev, ok := <-sub.Events():
			if !ok {
				return nil
			}
			ws.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := ws.WriteJSON(ev); err != nil {
				h.log.Info("websocket write failed", zap.String("sub", sub.ID), zap.Error(err))
				return nil
			}
		case <-ping.C:
			ws.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return nil
			}
		}
	}
}

// readLoop only consumes control frames; clients send nothing else.
func (h *NotificationStreamHandler) readLoop(ws *websocket.Conn, subID string, done chan<- struct{}) {
	defer close(done)
	ws.SetReadLimit(512)
	ws.SetReadDeadline(time.Now().Add(streamPongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(streamPongWait))
	})
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				h.log.Debug("websocket peer closed", zap.String("sub", subID))
			} else if ne, ok := err.(net.Error); ok && ne.Timeout() {
				h.log.Info("websocket read timeout", zap.String("sub", subID))
			} else {
				h.log.Debug("websocket read error", zap.String("sub", subID), zap.Error(err))
			}
			return
		}
	}
}
