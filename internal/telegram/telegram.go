// Package telegram sends formatted alerts through the Telegram Bot API.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"storyradar/internal/logger"
	"storyradar/internal/retry"
)

// Sender posts HTML messages to one chat with retry and backoff.
type Sender struct {
	token   string
	chatID  string
	client  *http.Client
	baseURL string // overridable in tests
	retry   retry.Config
}

func NewSender(token, chatID string, attempts int, delay time.Duration) *Sender {
	if attempts <= 0 {
		attempts = 3
	}
	return &Sender{
		token:   token,
		chatID:  chatID,
		client:  &http.Client{Timeout: 30 * time.Second},
		baseURL: "https://api.telegram.org",
		retry:   retry.Config{MaxAttempts: attempts, Delay: delay, Backoff: true},
	}
}

// Send delivers one HTML-formatted message without a link preview.
func (s *Sender) Send(ctx context.Context, text string) error {
	return retry.Do(ctx, s.retry, func() error {
		return s.sendOnce(ctx, text)
	})
}

func (s *Sender) sendOnce(ctx context.Context, text string) error {
	url := fmt.Sprintf("%s/bot%s/sendMessage", s.baseURL, s.token)

	payload := map[string]interface{}{
		"chat_id":                  s.chatID,
		"text":                     text,
		"parse_mode":               "HTML",
		"disable_web_page_preview": true,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			logger.Warn("failed to close response body", "error", err)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("telegram API status %d: %s", resp.StatusCode, snippet)
	}
	return nil
}
