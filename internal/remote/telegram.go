package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gabe/botpool/internal/logger"
	"github.com/gabe/botpool/internal/models"
)

const (
	telegramAPI     = "https://api.telegram.org"
	pollTimeout     = 30 * time.Second
	pollRetryDelay  = 5 * time.Second
	maxMessageBytes = 4096
)

// Telegram is a long-polling bot API transport
type Telegram struct {
	token       string
	baseURL     string
	client      *http.Client
	pollTimeout time.Duration
	retryDelay  time.Duration
	log         logger.Logger
	offset      int64
}

// TelegramOption configures Telegram
type TelegramOption func(*Telegram)

// WithBaseURL points the transport at another API host
func WithBaseURL(u string) TelegramOption {
	return func(t *Telegram) { t.baseURL = u }
}

// WithPollTimeout sets the long-poll timeout
func WithPollTimeout(d time.Duration) TelegramOption {
	return func(t *Telegram) { t.pollTimeout = d }
}

// WithRetryDelay sets the wait after a failed poll
func WithRetryDelay(d time.Duration) TelegramOption {
	return func(t *Telegram) { t.retryDelay = d }
}

// WithTelegramLogger sets the logger
func WithTelegramLogger(l logger.Logger) TelegramOption {
	return func(t *Telegram) { t.log = l }
}

// NewTelegram creates a transport for the bot token
func NewTelegram(token string, opts ...TelegramOption) *Telegram {
	t := &Telegram{
		token:       token,
		baseURL:     telegramAPI,
		pollTimeout: pollTimeout,
		retryDelay:  pollRetryDelay,
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.log == nil {
		t.log = logger.NewNop()
	}
	t.client = &http.Client{Timeout: t.pollTimeout + 10*time.Second}
	return t
}

// Name implements Transport
func (t *Telegram) Name() string {
	return "telegram"
}

type tgResponse struct {
	OK          bool            `json:"ok"`
	Description string          `json:"description"`
	Result      json.RawMessage `json:"result"`
}

type tgUpdate struct {
	UpdateID int64 `json:"update_id"`
	Message  *struct {
		Date int64  `json:"date"`
		Text string `json:"text"`
		Chat struct {
			ID int64 `json:"id"`
		} `json:"chat"`
	} `json:"message"`
}

// Updates implements Transport. Poll failures are logged and retried.
func (t *Telegram) Updates(ctx context.Context) <-chan models.Command {
	out := make(chan models.Command)
	go func() {
		defer close(out)
		for ctx.Err() == nil {
			updates, err := t.poll(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				t.log.Warn("Telegram poll failed", logger.Error(err))
				select {
				case <-ctx.Done():
					return
				case <-time.After(t.retryDelay):
				}
				continue
			}

			for _, u := range updates {
				if u.UpdateID >= t.offset {
					t.offset = u.UpdateID + 1
				}
				if u.Message == nil {
					continue
				}
				cmd, ok := ParseCommand(u.Message.Text, u.Message.Chat.ID, time.Unix(u.Message.Date, 0))
				if !ok {
					continue
				}
				select {
				case out <- cmd:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

func (t *Telegram) poll(ctx context.Context) ([]tgUpdate, error) {
	q := url.Values{}
	q.Set("offset", strconv.FormatInt(t.offset, 10))
	q.Set("timeout", strconv.Itoa(int(t.pollTimeout.Seconds())))
	q.Set("allowed_updates", `["message"]`)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.method("getUpdates")+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}

	var updates []tgUpdate
	if err := t.do(req, &updates); err != nil {
		return nil, fmt.Errorf("getUpdates: %w", err)
	}
	return updates, nil
}

// Reply implements Transport
func (t *Telegram) Reply(ctx context.Context, channelID int64, text string) error {
	text = truncate(text, maxMessageBytes)
	body, err := json.Marshal(map[string]interface{}{
		"chat_id": channelID,
		"text":    text,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.method("sendMessage"), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	if err := t.do(req, nil); err != nil {
		return fmt.Errorf("sendMessage: %w", err)
	}
	return nil
}

func (t *Telegram) method(name string) string {
	return fmt.Sprintf("%s/bot%s/%s", t.baseURL, t.token, name)
}

// truncate cuts text to at most limit bytes on a rune boundary
func truncate(text string, limit int) string {
	if len(text) <= limit {
		return text
	}
	cut := limit - len("...")
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut] + "..."
}

// redact strips the bot token from a request URL
func (t *Telegram) redact(u string) string {
	if t.token == "" {
		return u
	}
	return strings.ReplaceAll(u, "bot"+t.token, "bot<redacted>")
}

func (t *Telegram) do(req *http.Request, result interface{}) error {
	resp, err := t.client.Do(req)
	if err != nil {
		// Transport errors carry the full URL, token included
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			urlErr.URL = t.redact(urlErr.URL)
		}
		return err
	}
	defer resp.Body.Close()

	var r tgResponse
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return fmt.Errorf("decode response (status %d): %w", resp.StatusCode, err)
	}
	if !r.OK {
		return fmt.Errorf("%w: %s", ErrTelegramAPI, r.Description)
	}
	if result != nil && len(r.Result) > 0 {
		return json.Unmarshal(r.Result, result)
	}
	return nil
}
