// Package push delivers reminders to devices through an HTTP push gateway.
package push

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/bissquit/subtrack/internal/domain"
	"github.com/bissquit/subtrack/internal/notifications"
	"github.com/bissquit/subtrack/internal/version"
)

const (
	defaultTimeout   = 10 * time.Second
	maxResponseBytes = 64 << 10
)

// Config holds push sender configuration. The device token is the preference target.
type Config struct {
	Enabled    bool
	GatewayURL string
	APIKey     string
	Timeout    time.Duration
}

// Sender implements push notification sender.
type Sender struct {
	config     Config
	httpClient *http.Client
}

// NewSender creates a new push sender.
// Returns error if enabled but required config is missing.
func NewSender(config Config) (*Sender, error) {
	if config.Enabled && config.GatewayURL == "" {
		return nil, errors.New("push sender: gateway url is required when enabled")
	}
	if config.Timeout == 0 {
		config.Timeout = defaultTimeout
	}

	slog.Info("push sender configured",
		"enabled", config.Enabled,
		"gateway_url", config.GatewayURL,
	)

	return &Sender{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}, nil
}

// Type returns the channel type.
func (s *Sender) Type() domain.ChannelType {
	return domain.ChannelTypePush
}

type pushMessage struct {
	Token string `json:"token"`
	Title string `json:"title"`
	Body  string `json:"body"`
}

// Send posts the notification to the gateway. notification.To holds the device token.
func (s *Sender) Send(ctx context.Context, notification notifications.Notification) error {
	if !s.config.Enabled {
		return notifications.ErrChannelDisabled
	}
	if notification.To == "" {
		return &PermanentError{Message: "device token is empty"}
	}

	body, err := json.Marshal(pushMessage{
		Token: notification.To,
		Title: notification.Subject,
		Body:  notification.Body,
	})
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.GatewayURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())
	if s.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.config.APIKey)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return &RetryableError{Message: fmt.Sprintf("send request: %v", err)}
	}
	defer func() { _ = resp.Body.Close() }()

	return handleResponse(resp, notification.To)
}

func handleResponse(resp *http.Response, token string) error {
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return &RetryableError{Code: resp.StatusCode, Message: fmt.Sprintf("read response: %v", err)}
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		slog.Debug("push notification sent", "token", maskToken(token))
		return nil

	case resp.StatusCode == http.StatusBadRequest:
		return &PermanentError{Code: resp.StatusCode, Message: fmt.Sprintf("bad request: %s", body)}

	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return &PermanentError{Code: resp.StatusCode, Message: "invalid gateway credentials"}

	case resp.StatusCode == http.StatusNotFound, resp.StatusCode == http.StatusGone:
		return &PermanentError{Code: resp.StatusCode, Message: "device token not registered"}

	case resp.StatusCode == http.StatusTooManyRequests:
		return &RetryableError{
			Code:       resp.StatusCode,
			Message:    "rate limited",
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}

	case resp.StatusCode >= 500:
		return &RetryableError{Code: resp.StatusCode, Message: fmt.Sprintf("server error: %s", body)}

	default:
		return &PermanentError{Code: resp.StatusCode, Message: fmt.Sprintf("unexpected status: %s", body)}
	}
}

func parseRetryAfter(v string) time.Duration {
	secs, err := strconv.Atoi(v)
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

// maskToken hides most of a device token for logging.
func maskToken(token string) string {
	if len(token) > 12 {
		return token[:6] + "..." + token[len(token)-4:]
	}
	return "***"
}

// PermanentError indicates a permanent error that should not be retried.
type PermanentError struct {
	Code    int
	Message string
}

func (e *PermanentError) Error() string {
	if e.Code > 0 {
		return fmt.Sprintf("push error %d: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("push error: %s", e.Message)
}

// IsRetryable returns false as permanent errors should not be retried.
func (e *PermanentError) IsRetryable() bool { return false }

// RetryableError indicates a temporary error that can be retried.
type RetryableError struct {
	Code       int
	Message    string
	RetryAfter time.Duration
}

func (e *RetryableError) Error() string {
	if e.Code > 0 {
		return fmt.Sprintf("push error %d: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("push error: %s", e.Message)
}

// IsRetryable returns true as these errors are temporary.
func (e *RetryableError) IsRetryable() bool { return true }
