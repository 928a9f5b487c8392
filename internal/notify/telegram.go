package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/calweaver/whalebot/internal/domain"
)

const telegramAPIBase = "https://api.telegram.org"

// TelegramSink delivers subscriber alerts via the Telegram Bot API sendMessage
// endpoint. It classifies every response into a domain.Outcome so the
// dispatcher can decide between retrying, honoring a retry-after, and
// deactivating the destination. The sink itself never sleeps or retries.
type TelegramSink struct {
	token   string
	baseURL string
	client  *http.Client
}

var _ domain.Sink = (*TelegramSink)(nil)

// NewTelegramSink creates a TelegramSink for the given bot token.
func NewTelegramSink(token string) *TelegramSink {
	return &TelegramSink{
		token:   token,
		baseURL: telegramAPIBase,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// NewTelegramSinkWithBase creates a TelegramSink that talks to a non-default
// API host, e.g. a self-hosted bot-api server. An empty baseURL falls back to
// the public endpoint.
func NewTelegramSinkWithBase(token, baseURL string) *TelegramSink {
	s := NewTelegramSink(token)
	if baseURL != "" {
		s.baseURL = strings.TrimRight(baseURL, "/")
	}
	return s
}

// SendAlert posts an HTML-formatted message to the given chat.
func (t *TelegramSink) SendAlert(ctx context.Context, chatID, text string) domain.Outcome {
	return t.send(ctx, chatID, text, "HTML")
}

func (t *TelegramSink) send(ctx context.Context, chatID, text, parseMode string) domain.Outcome {
	payload := map[string]any{
		"chat_id":                  chatID,
		"text":                     text,
		"parse_mode":               parseMode,
		"disable_web_page_preview": false,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return transient(fmt.Errorf("telegram: marshal payload: %w", err))
	}

	url := t.baseURL + "/bot" + t.token + "/sendMessage"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return transient(fmt.Errorf("telegram: create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return transient(fmt.Errorf("telegram: send request: %w", err))
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	switch resp.StatusCode {
	case http.StatusTooManyRequests:
		return domain.Outcome{
			Class:      domain.OutcomeRateLimited,
			RetryAfter: parseRetryAfter(respBody),
			Err:        fmt.Errorf("telegram: rate limited: %s", respBody),
		}
	case http.StatusForbidden:
		// The user blocked the bot.
		return domain.Outcome{
			Class: domain.OutcomeRejected,
			Err:   fmt.Errorf("telegram: destination blocked: %s", respBody),
		}
	case http.StatusBadRequest:
		// Invalid chat id.
		return domain.Outcome{
			Class: domain.OutcomeRejected,
			Err:   fmt.Errorf("telegram: destination invalid: %s", respBody),
		}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return transient(fmt.Errorf("telegram: unexpected status %d: %s", resp.StatusCode, respBody))
	}

	var result struct {
		OK          bool   `json:"ok"`
		Description string `json:"description"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return transient(fmt.Errorf("telegram: decode response: %w", err))
	}
	if !result.OK {
		return transient(fmt.Errorf("telegram: api error: %s", result.Description))
	}

	return domain.Outcome{Class: domain.OutcomeSent}
}

func transient(err error) domain.Outcome {
	return domain.Outcome{Class: domain.OutcomeTransient, Err: err}
}

// parseRetryAfter extracts the retry-after duration Telegram attaches to 429
// responses. Falls back to one second when the body is missing or malformed.
func parseRetryAfter(body []byte) time.Duration {
	var resp struct {
		Parameters struct {
			RetryAfter float64 `json:"retry_after"`
		} `json:"parameters"`
	}
	if err := json.Unmarshal(body, &resp); err == nil && resp.Parameters.RetryAfter > 0 {
		return time.Duration(resp.Parameters.RetryAfter * float64(time.Second))
	}
	return time.Second
}

// TelegramSender delivers operator notifications to a fixed ops chat. It
// implements Sender on top of the same sendMessage call the alert sink uses,
// collapsing the typed outcome back into a plain error since ops messages
// need no dispatch policy.
type TelegramSender struct {
	sink   *TelegramSink
	chatID string
}

// NewTelegramSender creates a TelegramSender for the given bot token and ops
// chat ID.
func NewTelegramSender(token, chatID string) *TelegramSender {
	return &TelegramSender{
		sink:   NewTelegramSink(token),
		chatID: chatID,
	}
}

// NewTelegramSenderWithSink reuses an existing sink for operator messages, so
// ops traffic shares the alert sink's token and API host.
func NewTelegramSenderWithSink(sink *TelegramSink, chatID string) *TelegramSender {
	return &TelegramSender{
		sink:   sink,
		chatID: chatID,
	}
}

// Send posts a message to the configured ops chat. The title is rendered in
// bold HTML. Ops message bodies often carry error strings, so both parts are
// escaped here rather than at every call site.
func (t *TelegramSender) Send(ctx context.Context, title, message string) error {
	text := fmt.Sprintf("<b>%s</b>\n%s", html.EscapeString(title), html.EscapeString(message))
	outcome := t.sink.send(ctx, t.chatID, text, "HTML")
	if outcome.Class != domain.OutcomeSent {
		return fmt.Errorf("telegram: ops send %s: %w", outcome.Class, outcome.Err)
	}
	return nil
}

// Name returns the sender identifier.
func (t *TelegramSender) Name() string {
	return "telegram"
}
