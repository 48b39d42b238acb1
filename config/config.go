package config

import (
	"fmt"
	"os"
	"strconv"

	"reminderd/internal/timezone"
)

type Config struct {
	DatabasePath    string
	TelegramToken   string // optional; log-only notifications when empty
	DefaultTimezone string
	HorizonDays     int
	RefreshCron     string

	// Optional CalDAV mirroring.
	CalDAVURL      string
	CalDAVUsername string
	CalDAVPassword string
	CalDAVCalendar string
}

func Load() (*Config, error) {
	dbPath := os.Getenv("DATABASE_PATH")
	if dbPath == "" {
		dbPath = "./data/reminderd.db"
	}

	tz := os.Getenv("DEFAULT_TIMEZONE")
	if tz == "" {
		tz = "UTC"
	}
	if _, ok := timezone.Ensure(tz); !ok {
		return nil, fmt.Errorf("invalid DEFAULT_TIMEZONE: %s", tz)
	}

	horizonDays := 30
	if h := os.Getenv("HORIZON_DAYS"); h != "" {
		n, err := strconv.Atoi(h)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("HORIZON_DAYS must be a positive number")
		}
		horizonDays = n
	}

	refreshCron := os.Getenv("REFRESH_CRON")
	if refreshCron == "" {
		refreshCron = "0 3 * * *"
	}

	return &Config{
		DatabasePath:    dbPath,
		TelegramToken:   os.Getenv("TELEGRAM_BOT_TOKEN"),
		DefaultTimezone: tz,
		HorizonDays:     horizonDays,
		RefreshCron:     refreshCron,
		CalDAVURL:       os.Getenv("CALDAV_URL"),
		CalDAVUsername:  os.Getenv("CALDAV_USERNAME"),
		CalDAVPassword:  os.Getenv("CALDAV_PASSWORD"),
		CalDAVCalendar:  os.Getenv("CALDAV_CALENDAR"),
	}, nil
}

// CalDAVEnabled reports whether the optional calendar mirror is configured.
func (c *Config) CalDAVEnabled() bool {
	return c.CalDAVURL != "" && c.CalDAVUsername != "" && c.CalDAVCalendar != ""
}
