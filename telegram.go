package callwatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const telegramAPIBase = "https://api.telegram.org"

// maxRecentDeliveries bounds the delivery log kept for /internal/status.
const maxRecentDeliveries = 20

// TelegramDelivery records a single sendMessage attempt.
type TelegramDelivery struct {
	ID         string    `json:"id"`
	Attempt    int       `json:"attempt"`
	StatusCode int       `json:"status_code"`
	Duration   float64   `json:"duration_seconds"`
	Error      string    `json:"error,omitempty"`
	SentAt     time.Time `json:"sent_at"`
}

// TelegramClient posts alert cards to a chat via the Bot API.
type TelegramClient struct {
	botToken   string
	chatID     string
	apiBase    string
	httpClient *http.Client
	logger     zerolog.Logger

	// backoffs is the retry schedule; the first entry is the delay before
	// the first attempt.
	backoffs []time.Duration

	mu         sync.Mutex
	deliveries []TelegramDelivery
}

// NewTelegramClient creates a Bot API client for the given chat.
func NewTelegramClient(botToken, chatID string, timeout time.Duration, logger zerolog.Logger) *TelegramClient {
	return &TelegramClient{
		botToken:   botToken,
		chatID:     chatID,
		apiBase:    telegramAPIBase,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
		backoffs:   []time.Duration{0, 1 * time.Second, 5 * time.Second},
	}
}

// SendMessage posts an HTML message to the configured chat, retrying on
// failure. A bot token with the sk- prefix is an OpenAI key pasted into the
// wrong variable and is refused outright.
func (c *TelegramClient) SendMessage(ctx context.Context, text string) error {
	if strings.HasPrefix(c.botToken, "sk-") {
		c.logger.Error().Msg("TG_BOT_TOKEN looks like an OpenAI key (sk-...), expected a BotFather token")
		return fmt.Errorf("telegram: bot token looks like an OpenAI key")
	}

	guid := uuid.New().String()
	var lastErr error
	for attempt, backoff := range c.backoffs {
		if backoff > 0 {
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		delivery, err := c.doSend(ctx, text)
		delivery.ID = guid
		delivery.Attempt = attempt + 1
		c.recordDelivery(delivery)

		if err == nil && delivery.StatusCode >= 200 && delivery.StatusCode < 300 {
			return nil
		}
		if err != nil {
			lastErr = err
		} else {
			lastErr = fmt.Errorf("telegram: sendMessage status %d", delivery.StatusCode)
		}
		c.logger.Warn().Err(lastErr).Int("attempt", attempt+1).Str("delivery", guid).Msg("telegram send failed")
	}
	return lastErr
}

func (c *TelegramClient) doSend(ctx context.Context, text string) (TelegramDelivery, error) {
	start := time.Now()
	delivery := TelegramDelivery{SentAt: start}

	payload := map[string]interface{}{
		"chat_id":                  c.chatID,
		"text":                     text,
		"parse_mode":               "HTML",
		"disable_web_page_preview": true,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		delivery.Error = err.Error()
		return delivery, err
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", c.apiBase, c.botToken)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(body))
	if err != nil {
		delivery.Error = err.Error()
		return delivery, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	delivery.Duration = time.Since(start).Seconds()
	if err != nil {
		delivery.Error = err.Error()
		return delivery, err
	}
	defer resp.Body.Close()

	delivery.StatusCode = resp.StatusCode
	if resp.StatusCode >= 400 {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, 300))
		delivery.Error = string(excerpt)
	}
	return delivery, nil
}

func (c *TelegramClient) recordDelivery(d TelegramDelivery) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deliveries = append(c.deliveries, d)
	if len(c.deliveries) > maxRecentDeliveries {
		c.deliveries = c.deliveries[len(c.deliveries)-maxRecentDeliveries:]
	}
}

// RecentDeliveries returns a copy of the recent delivery log, newest last.
func (c *TelegramClient) RecentDeliveries() []TelegramDelivery {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]TelegramDelivery, len(c.deliveries))
	copy(out, c.deliveries)
	return out
}
