package notifyclient

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/anonto42/nano-midea/relations/internal/models"
	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
)

// APIError is a non-2xx reply from the service.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("relations api: %d %s", e.Status, e.Message)
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// HTTPClient calls the relations HTTP API with a bearer token.
type HTTPClient struct {
	r *resty.Client
}

// NewHTTPClient builds a client for the service at baseURL, e.g.
// "http://localhost:8080".
func NewHTTPClient(baseURL, token string, timeout time.Duration) *HTTPClient {
	r := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")+"/api/v1").
		SetAuthToken(token).
		SetHeader("Accept", "application/json")
	if timeout > 0 {
		r.SetTimeout(timeout)
	}
	return &HTTPClient{r: r}
}

func (h *HTTPClient) send(ctx context.Context, method, path string, query map[string]string, out interface{}) error {
	var env envelope
	req := h.r.R().
		SetContext(ctx).
		SetResult(&env).
		SetError(&env)
	if query != nil {
		req.SetQueryParams(query)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		return errors.Wrapf(err, "%s %s", method, path)
	}
	if resp.IsError() || !env.Success {
		msg := env.Error
		if msg == "" {
			msg = resp.Status()
		}
		return &APIError{Status: resp.StatusCode(), Message: msg}
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return errors.Wrapf(err, "decode %s %s", method, path)
		}
	}
	return nil
}

func (h *HTTPClient) ListNotifications(ctx context.Context, page, limit int) (*models.NotificationPage, error) {
	var p models.NotificationPage
	query := map[string]string{
		"page":  strconv.Itoa(page),
		"limit": strconv.Itoa(limit),
	}
	if err := h.send(ctx, resty.MethodGet, "/notifications", query, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (h *HTTPClient) AcceptFriendRequest(ctx context.Context, fromID uint) error {
	return h.send(ctx, resty.MethodPost, fmt.Sprintf("/friends/requests/%d/accept", fromID), nil, nil)
}

func (h *HTTPClient) DeclineFriendRequest(ctx context.Context, fromID uint) error {
	return h.send(ctx, resty.MethodPost, fmt.Sprintf("/friends/requests/%d/decline", fromID), nil, nil)
}

func (h *HTTPClient) MarkAsRead(ctx context.Context, id uint) error {
	return h.send(ctx, resty.MethodPut, fmt.Sprintf("/notifications/%d/read", id), nil, nil)
}

// UnreadCount asks the service for the recipient's unread count.
func (h *HTTPClient) UnreadCount(ctx context.Context) (int64, error) {
	var out struct {
		Count int64 `json:"count"`
	}
	if err := h.send(ctx, resty.MethodGet, "/notifications/unread-count", nil, &out); err != nil {
		return 0, err
	}
	return out.Count, nil
}
