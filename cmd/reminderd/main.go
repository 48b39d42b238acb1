package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/jmhodges/clock"
	"go.uber.org/zap"

	"reminderd/config"
	"reminderd/internal/bot"
	"reminderd/internal/calendar"
	"reminderd/internal/notify"
	"reminderd/internal/queue"
	"reminderd/internal/recurrence"
	"reminderd/internal/scheduler"
	"reminderd/internal/service"
	"reminderd/internal/storage"
)

func main() {
	zl, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer zl.Sync()
	logger := zl.Sugar()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalw("failed to load config", "err", err)
	}

	store, err := storage.New(cfg.DatabasePath, logger)
	if err != nil {
		logger.Fatalw("failed to init storage", "err", err)
	}
	defer store.Close()

	clk := clock.New()
	expander := &recurrence.Expander{
		Custom: recurrence.RRuleExpand,
		Logger: logger,
	}

	q := queue.New(store, clk, logger)
	sched := scheduler.New(store, q, expander, clk, logger, cfg.HorizonDays)

	var publisher *calendar.Publisher
	if cfg.CalDAVEnabled() {
		logger.Infow("caldav mirroring enabled", "url", cfg.CalDAVURL, "calendar", cfg.CalDAVCalendar)
		publisher = calendar.NewPublisher(cfg.CalDAVURL, cfg.CalDAVUsername, cfg.CalDAVPassword, cfg.CalDAVCalendar)
	}

	var svcPublisher service.Publisher
	if publisher != nil {
		svcPublisher = publisher
	}
	svc := service.NewReminderService(store, sched, svcPublisher, clk, logger)

	var notifier notify.Notifier = &notify.Log{Logger: logger}
	var tgBot *bot.Bot
	if cfg.TelegramToken != "" {
		b, err := bot.New(cfg.TelegramToken, svc, cfg.DefaultTimezone, logger)
		if err != nil {
			logger.Fatalw("failed to init telegram bot", "err", err)
		}
		tgBot = b
		notifier = notify.NewTelegramWithAPI(b.API())
	}

	handler := scheduler.NewHandler(sched, store, notifier, clk, logger)
	handler.Register(q)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	refresh := func() {
		if err := sched.RefreshHorizons(ctx); err != nil {
			logger.Errorw("horizon refresh failed", "err", err)
		}
		if publisher != nil {
			mirrorCalendar(ctx, store, publisher, logger)
		}
	}

	// Rebuild the horizon for everything already in the database, then
	// keep it extended on a schedule.
	refresh()
	if err := q.AddFunc(cfg.RefreshCron, refresh); err != nil {
		logger.Fatalw("failed to register horizon refresh", "err", err)
	}

	go func() {
		if err := q.Start(ctx); err != nil {
			logger.Errorw("queue error", "err", err)
		}
	}()

	if tgBot != nil {
		go func() {
			if err := tgBot.Start(ctx); err != nil {
				logger.Errorw("bot error", "err", err)
			}
		}()
	}

	logger.Infow("reminderd started", "horizon_days", cfg.HorizonDays, "db", cfg.DatabasePath)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutting down...")
	cancel()
	q.Stop()
	logger.Info("reminderd stopped")
}

// mirrorCalendar pushes every active reminder to the CalDAV calendar.
// Mirroring is best effort; a publish failure never blocks scheduling.
func mirrorCalendar(ctx context.Context, store *storage.Storage, publisher *calendar.Publisher, logger *zap.SugaredLogger) {
	reminders, err := store.ListActiveReminders()
	if err != nil {
		logger.Errorw("calendar mirror: list reminders failed", "err", err)
		return
	}
	for _, rem := range reminders {
		if err := publisher.Publish(ctx, rem); err != nil {
			logger.Warnw("calendar mirror: publish failed", "reminder", rem.ID, "err", err)
		}
	}
}
