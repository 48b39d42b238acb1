package notify

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Telegram delivers reminders as Telegram messages. The user id doubles as
// the chat id.
type Telegram struct {
	api *tgbotapi.BotAPI
}

func NewTelegram(token string) (*Telegram, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("init telegram bot: %w", err)
	}
	return &Telegram{api: api}, nil
}

// NewTelegramWithAPI reuses an already authorized client, so the notifier
// and the command bot share one connection.
func NewTelegramWithAPI(api *tgbotapi.BotAPI) *Telegram {
	return &Telegram{api: api}
}

func (t *Telegram) Notify(_ context.Context, userID int64, m Message) error {
	text := fmt.Sprintf("🔔 <b>%s</b>", m.Title)
	if m.Body != "" {
		text += "\n\n" + m.Body
	}

	msg := tgbotapi.NewMessage(userID, text)
	msg.ParseMode = "HTML"
	if _, err := t.api.Send(msg); err != nil {
		return fmt.Errorf("send telegram message: %w", err)
	}
	return nil
}
