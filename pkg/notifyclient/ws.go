package notifyclient

import (
	"context"
	"net/http"
	"strings"

	"github.com/anonto42/nano-midea/relations/internal/models"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
)

// WSPush subscribes to /api/v1/notifications/stream.
type WSPush struct {
	url    string
	token  string
	dialer *websocket.Dialer
}

// NewWSPush takes the same base URL as NewHTTPClient; http(s) is mapped to ws(s).
func NewWSPush(baseURL, token string) *WSPush {
	u := strings.TrimRight(baseURL, "/")
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	return &WSPush{
		url:    u + "/api/v1/notifications/stream",
		token:  token,
		dialer: websocket.DefaultDialer,
	}
}

// Subscribe dials the stream. The returned channel closes when the
// connection drops or ctx is done.
func (p *WSPush) Subscribe(ctx context.Context) (<-chan models.NotificationEvent, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+p.token)

	conn, _, err := p.dialer.DialContext(ctx, p.url, header)
	if err != nil {
		return nil, errors.Wrap(err, "dial notification stream")
	}

	events := make(chan models.NotificationEvent)
	stop := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
		case <-stop:
		}
		conn.Close()
	}()
	go func() {
		defer close(events)
		defer close(stop)
		for {
			var ev models.NotificationEvent
			if err := conn.ReadJSON(&ev); err != nil {
				return
			}
			select {
			case events <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return events, nil
}
