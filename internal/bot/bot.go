// Package bot is the Telegram command surface for managing reminders:
// creating one-shot and recurring reminders, listing them and deleting
// them, all against the same service layer the scheduler fires from.
package bot

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"reminderd/internal/service"
)

type Bot struct {
	api       *tgbotapi.BotAPI
	svc       *service.ReminderService
	defaultTZ string
	logger    *zap.SugaredLogger
}

func New(token string, svc *service.ReminderService, defaultTZ string, logger *zap.SugaredLogger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}

	logger.Infow("telegram bot authorized", "username", api.Self.UserName)

	b := &Bot{
		api:       api,
		svc:       svc,
		defaultTZ: defaultTZ,
		logger:    logger,
	}
	b.setCommands()
	return b, nil
}

func (b *Bot) setCommands() {
	commands := []tgbotapi.BotCommand{
		{Command: "add", Description: "➕ One-shot reminder"},
		{Command: "daily", Description: "🔁 Daily reminder"},
		{Command: "weekly", Description: "🗓 Weekly reminder"},
		{Command: "list", Description: "📋 List reminders"},
		{Command: "delete", Description: "🗑 Delete a reminder"},
		{Command: "help", Description: "❓ Command reference"},
	}

	cfg := tgbotapi.NewSetMyCommands(commands...)
	if _, err := b.api.Request(cfg); err != nil {
		b.logger.Warnw("failed to set bot commands", "err", err)
	}
}

// Start consumes updates via long polling until ctx is cancelled.
func (b *Bot) Start(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := b.api.GetUpdatesChan(u)

	b.logger.Info("telegram bot started")
	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return nil
		case update := <-updates:
			go b.handleUpdate(ctx, update)
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.CallbackQuery != nil:
		b.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil && update.Message.IsCommand():
		b.handleCommand(ctx, update.Message)
	case update.Message != nil:
		b.SendMessage(update.Message.Chat.ID, "Use /add, /daily or /weekly to create a reminder. /help for syntax.")
	}
}

func (b *Bot) SendMessage(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = "HTML"
	_, err := b.api.Send(msg)
	return err
}

func (b *Bot) sendWithKeyboard(chatID int64, text string, keyboard tgbotapi.InlineKeyboardMarkup) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = "HTML"
	msg.ReplyMarkup = keyboard
	_, err := b.api.Send(msg)
	return err
}

// API exposes the underlying client so the notifier can share it.
func (b *Bot) API() *tgbotapi.BotAPI {
	return b.api
}
