// Package telegram sends reminders through the Telegram Bot API.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/bissquit/subtrack/internal/domain"
	"github.com/bissquit/subtrack/internal/notifications"
	"github.com/bissquit/subtrack/internal/version"
	"golang.org/x/time/rate"
)

const (
	defaultAPIURL    = "https://api.telegram.org/bot%s/sendMessage"
	defaultRateLimit = 25.0 // messages per second, below the Bot API global limit of 30
	requestTimeout   = 10 * time.Second
	maxResponseBytes = 64 << 10
)

// Config holds telegram sender configuration.
type Config struct {
	Enabled   bool
	BotToken  string
	RateLimit float64
}

// Sender implements telegram notification sender.
type Sender struct {
	config     Config
	httpClient *http.Client
	limiter    *rate.Limiter
	apiURL     string
}

// NewSender creates a new telegram sender.
// Returns error if enabled but required config is missing.
func NewSender(config Config) (*Sender, error) {
	if config.Enabled && config.BotToken == "" {
		return nil, errors.New("telegram sender: bot token is required when enabled")
	}

	if config.RateLimit <= 0 {
		config.RateLimit = defaultRateLimit
	}

	slog.Info("telegram sender configured",
		"enabled", config.Enabled,
		"rate_limit", config.RateLimit,
	)

	return &Sender{
		config:     config,
		httpClient: &http.Client{Timeout: requestTimeout},
		limiter:    rate.NewLimiter(rate.Limit(config.RateLimit), 1),
		apiURL:     defaultAPIURL,
	}, nil
}

// Type returns the channel type.
func (s *Sender) Type() domain.ChannelType {
	return domain.ChannelTypeTelegram
}

type sendMessageRequest struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	ParseMode             string `json:"parse_mode,omitempty"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview,omitempty"`
}

type telegramResponse struct {
	OK          bool   `json:"ok"`
	ErrorCode   int    `json:"error_code,omitempty"`
	Description string `json:"description,omitempty"`
	Parameters  *struct {
		RetryAfter int `json:"retry_after,omitempty"`
	} `json:"parameters,omitempty"`
}

// Send delivers a message to the chat id in notification.To. The body is
// expected to be Telegram HTML; the subject is escaped and prepended in bold.
func (s *Sender) Send(ctx context.Context, notification notifications.Notification) error {
	if !s.config.Enabled {
		return notifications.ErrChannelDisabled
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	text := notification.Body
	if notification.Subject != "" {
		text = "<b>" + html.EscapeString(notification.Subject) + "</b>\n\n" + text
	}

	payload, err := json.Marshal(sendMessageRequest{
		ChatID:                notification.To,
		Text:                  text,
		ParseMode:             "HTML",
		DisableWebPagePreview: true,
	})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf(s.apiURL, s.config.BotToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return &RetryableError{Message: fmt.Sprintf("send request: %v", err)}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return &RetryableError{Code: resp.StatusCode, Message: fmt.Sprintf("read response: %v", err)}
	}

	var tgResp telegramResponse
	if err := json.Unmarshal(body, &tgResp); err != nil {
		if resp.StatusCode >= 500 {
			return &RetryableError{Code: resp.StatusCode, Message: "invalid response body"}
		}
		return &PermanentError{Code: resp.StatusCode, Message: "invalid response body"}
	}

	if tgResp.OK {
		slog.Debug("telegram message sent", "chat_id", notification.To)
		return nil
	}

	return classifyError(resp.StatusCode, tgResp)
}

func classifyError(status int, resp telegramResponse) error {
	code := resp.ErrorCode
	if code == 0 {
		code = status
	}

	switch {
	case code == http.StatusTooManyRequests:
		retryAfter := time.Second
		if resp.Parameters != nil && resp.Parameters.RetryAfter > 0 {
			retryAfter = time.Duration(resp.Parameters.RetryAfter) * time.Second
		}
		return &RateLimitError{RetryAfter: retryAfter, Message: resp.Description}
	case code == http.StatusUnauthorized:
		return &PermanentError{Code: code, Message: "invalid bot token"}
	case code >= 500:
		return &RetryableError{Code: code, Message: resp.Description}
	default:
		// 400 chat not found, 403 bot blocked by the user, etc.
		return &PermanentError{Code: code, Message: resp.Description}
	}
}
