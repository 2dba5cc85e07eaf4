package alert

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Notifier delivers one rendered alert body.
type Notifier interface {
	Send(ctx context.Context, text string) error
}

// TelegramNotifier posts alerts to a Telegram chat through the Bot API.
type TelegramNotifier struct {
	token  string
	chatID string
	base   string
	client *http.Client
}

// NewTelegramNotifier builds a notifier for one bot token and chat.
func NewTelegramNotifier(token, chatID string) *TelegramNotifier {
	return &TelegramNotifier{
		token:  token,
		chatID: chatID,
		base:   "https://api.telegram.org",
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// SetBaseURL points the notifier at a different API host. Used by tests.
func (t *TelegramNotifier) SetBaseURL(base string) {
	t.base = strings.TrimRight(base, "/")
}

// Send implements Notifier.
func (t *TelegramNotifier) Send(ctx context.Context, text string) error {
	payload, err := json.Marshal(map[string]string{
		"chat_id": t.chatID,
		"text":    text,
	})
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", t.base, t.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(string(payload)))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram sendMessage: status %d", resp.StatusCode)
	}
	return nil
}

// LogNotifier writes alerts to the process log when no sink is
// configured. It never fails.
type LogNotifier struct {
	logf func(text string)
}

// NewLogNotifier builds a log-only notifier.
func NewLogNotifier(logf func(text string)) *LogNotifier {
	return &LogNotifier{logf: logf}
}

// Send implements Notifier.
func (n *LogNotifier) Send(_ context.Context, text string) error {
	if n.logf != nil {
		n.logf(text)
	}
	return nil
}
