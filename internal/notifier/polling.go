package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Command is a text message received from the operator chat.
type Command struct {
	Text     string
	Username string
}

// CommandHandler is called when a user command is received.
type CommandHandler func(ctx context.Context, cmd Command) string

type telegramUpdate struct {
	UpdateID int `json:"update_id"`
	Message  *struct {
		Text string `json:"text"`
		Chat struct {
			ID int64 `json:"id"`
		} `json:"chat"`
		From *struct {
			Username string `json:"username"`
		} `json:"from"`
	} `json:"message"`
}

// StartPolling begins long-polling for Telegram commands. Blocks until
// ctx is cancelled. Messages from chats other than ChatID are ignored.
func (t *TelegramNotifier) StartPolling(ctx context.Context, handler CommandHandler) {
	offset := 0
	client := &http.Client{Timeout: 35 * time.Second, Transport: t.Client.Transport}
	t.Log.Info("telegram polling started")

	for {
		if ctx.Err() != nil {
			t.Log.Info("telegram polling stopped")
			return
		}
		next, err := t.poll(ctx, client, offset, 30, handler)
		if err != nil {
			if ctx.Err() != nil {
				t.Log.Info("telegram polling stopped")
				return
			}
			t.Log.WithError(err).Warn("polling request failed")
			select {
			case <-ctx.Done():
			case <-time.After(t.pollBackoff):
			}
			continue
		}
		offset = next
	}
}

// poll fetches one batch of updates, dispatches them and returns the
// next offset.
func (t *TelegramNotifier) poll(ctx context.Context, client *http.Client, offset, timeoutSec int, handler CommandHandler) (int, error) {
	apiURL := fmt.Sprintf("%s?offset=%d&timeout=%d", t.endpoint("getUpdates"), offset, timeoutSec)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return offset, fmt.Errorf("create polling request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return offset, err
	}
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return offset, fmt.Errorf("read polling response: %w", err)
	}

	var result struct {
		OK     bool             `json:"ok"`
		Result []telegramUpdate `json:"result"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return offset, fmt.Errorf("decode polling response: %w", err)
	}
	if !result.OK {
		return offset, fmt.Errorf("telegram getUpdates not ok: %s", strings.TrimSpace(string(body)))
	}

	for _, update := range result.Result {
		offset = update.UpdateID + 1
		m := update.Message
		if m == nil || strings.TrimSpace(m.Text) == "" {
			continue
		}
		if strconv.FormatInt(m.Chat.ID, 10) != t.ChatID {
			t.Log.WithField("chat_id", m.Chat.ID).Warn("ignoring message from unknown chat")
			continue
		}
		cmd := Command{Text: strings.TrimSpace(m.Text)}
		if m.From != nil {
			cmd.Username = m.From.Username
		}
		t.Log.WithField("command", cmd.Text).Info("received command")
		if reply := handler(ctx, cmd); reply != "" {
			if err := t.Send(ctx, reply); err != nil {
				t.Log.WithError(err).Error("send reply failed")
			}
		}
	}
	return offset, nil
}
