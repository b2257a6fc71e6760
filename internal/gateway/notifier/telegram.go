package notifier

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const telegramAPI = "https://api.telegram.org"

// Telegram 通过 Bot API 推送到指定群或频道。
type Telegram struct {
	BotToken string
	ChatID   string

	client *resty.Client
}

var _ StructuredNotifier = (*Telegram)(nil)

func NewTelegram(botToken, chatID string) *Telegram {
	return newTelegram(telegramAPI, botToken, chatID)
}

func newTelegram(baseURL, botToken, chatID string) *Telegram {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(15 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() == 429 || r.StatusCode() >= 500
		})
	return &Telegram{BotToken: botToken, ChatID: chatID, client: client}
}

// SendText 发送 Markdown 文本，失败时最多重试 2 次。
func (t *Telegram) SendText(text string) error {
	if t.BotToken == "" || t.ChatID == "" {
		return fmt.Errorf("Telegram 配置不完整")
	}
	if strings.TrimSpace(text) == "" {
		return nil
	}
	resp, err := t.client.R().
		SetBody(map[string]any{
			"chat_id":    t.ChatID,
			"text":       text,
			"parse_mode": "Markdown",
		}).
		Post("/bot" + t.BotToken + "/sendMessage")
	if err != nil {
		return err
	}
	if !resp.IsSuccess() {
		return fmt.Errorf("telegram status=%d", resp.StatusCode())
	}
	return nil
}

func (t *Telegram) SendStructured(msg StructuredMessage) error {
	if msg.Empty() {
		return nil
	}
	return t.SendText(msg.RenderMarkdown())
}
