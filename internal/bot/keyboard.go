package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"reminderd/internal/domain"
)

// deleteKeyboard renders one delete button per reminder under a /list
// reply.
func deleteKeyboard(reminders []*domain.Reminder) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(reminders))
	for _, rem := range reminders {
		label := rem.Title
		if len(label) > 24 {
			label = label[:24] + "…"
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🗑 "+label, fmt.Sprintf("del:%d", rem.ID)),
		))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	defer func() {
		// Telegram shows a spinner on the button until the query is
		// answered.
		if _, err := b.api.Request(tgbotapi.NewCallback(cb.ID, "")); err != nil {
			b.logger.Warnw("failed to answer callback", "err", err)
		}
	}()

	if cb.Message == nil {
		return
	}
	chatID := cb.Message.Chat.ID

	idStr, ok := strings.CutPrefix(cb.Data, "del:")
	if !ok {
		b.logger.Warnw("unknown callback data", "data", cb.Data)
		return
	}
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		b.logger.Warnw("bad callback reminder id", "data", cb.Data)
		return
	}

	if err := b.svc.Delete(ctx, id); err != nil {
		b.SendMessage(chatID, "❌ "+err.Error())
		return
	}
	b.SendMessage(chatID, fmt.Sprintf("🗑 Reminder #%d deleted.", id))
}
