package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"reminderd/internal/domain"
	"reminderd/internal/service"
	"reminderd/internal/timezone"
)

var weekdayAliases = map[string]int{
	"sun": 0, "mon": 1, "tue": 2, "wed": 3, "thu": 4, "fri": 5, "sat": 6,
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	args := strings.TrimSpace(msg.CommandArguments())

	switch msg.Command() {
	case "start":
		b.cmdStart(chatID, msg.From)
	case "help":
		b.cmdHelp(chatID)
	case "add":
		b.cmdAdd(ctx, chatID, args)
	case "daily":
		b.cmdDaily(ctx, chatID, args)
	case "weekly":
		b.cmdWeekly(ctx, chatID, args)
	case "list":
		b.cmdList(chatID)
	case "delete":
		b.cmdDelete(ctx, chatID, args)
	default:
		b.SendMessage(chatID, "Unknown command. /help for the list.")
	}
}

func (b *Bot) cmdStart(chatID int64, from *tgbotapi.User) {
	name := "there"
	if from != nil && from.FirstName != "" {
		name = from.FirstName
	}
	b.SendMessage(chatID, fmt.Sprintf("👋 Hi %s!\n\nI fire reminders on schedule, one-shot or recurring.\n\n/help — command reference", name))
}

func (b *Bot) cmdHelp(chatID int64) {
	text := `<b>Commands:</b>

/add <i>when</i> <i>title</i> — one-shot reminder
/daily [every N] <i>when</i> <i>title</i> — every day / every N days
/weekly [mon,wed,fri] <i>when</i> <i>title</i> — weekly on the given days
/list — your reminders, with delete buttons
/delete <i>ID</i> — delete by id

<i>when</i> is either a date <code>2026-09-01</code> (midnight in your zone)
or a timestamp <code>2026-09-01T09:00:00Z</code>.

Examples:
<code>/add 2026-09-01T09:00:00Z dentist</code>
<code>/daily every 2 2026-09-01T08:00:00Z take pills</code>
<code>/weekly mon,thu 2026-09-01T10:00:00Z standup</code>`

	b.SendMessage(chatID, text)
}

func (b *Bot) cmdAdd(ctx context.Context, chatID int64, args string) {
	when, title, ok := splitWhenTitle(args)
	if !ok {
		b.SendMessage(chatID, "Usage: /add <i>when</i> <i>title</i>")
		return
	}
	b.create(ctx, chatID, service.ReminderInput{
		Title:       title,
		ScheduledAt: when,
		Timezone:    b.defaultTZ,
		Cadence:     domain.CadenceNone,
	})
}

func (b *Bot) cmdDaily(ctx context.Context, chatID int64, args string) {
	interval := 1
	fields := strings.Fields(args)
	if len(fields) >= 3 && fields[0] == "every" {
		n, err := strconv.Atoi(fields[1])
		if err != nil || n < domain.MinInterval || n > domain.MaxInterval {
			b.SendMessage(chatID, fmt.Sprintf("The interval must be a number between %d and %d.", domain.MinInterval, domain.MaxInterval))
			return
		}
		interval = n
		fields = fields[2:]
	}

	when, title, ok := splitWhenTitle(strings.Join(fields, " "))
	if !ok {
		b.SendMessage(chatID, "Usage: /daily [every N] <i>when</i> <i>title</i>")
		return
	}
	b.create(ctx, chatID, service.ReminderInput{
		Title:       title,
		ScheduledAt: when,
		Timezone:    b.defaultTZ,
		Cadence:     domain.CadenceDaily,
		Interval:    interval,
	})
}

func (b *Bot) cmdWeekly(ctx context.Context, chatID int64, args string) {
	fields := strings.Fields(args)
	var days []int
	if len(fields) > 0 {
		if parsed, ok := parseWeekdays(fields[0]); ok {
			days = parsed
			fields = fields[1:]
		}
	}

	when, title, ok := splitWhenTitle(strings.Join(fields, " "))
	if !ok {
		b.SendMessage(chatID, "Usage: /weekly [mon,wed,fri] <i>when</i> <i>title</i>")
		return
	}
	b.create(ctx, chatID, service.ReminderInput{
		Title:       title,
		ScheduledAt: when,
		Timezone:    b.defaultTZ,
		Cadence:     domain.CadenceWeekly,
		Interval:    1,
		DaysOfWeek:  days,
	})
}

func (b *Bot) create(ctx context.Context, chatID int64, in service.ReminderInput) {
	rem, err := b.svc.Create(ctx, chatID, in)
	if err != nil {
		b.SendMessage(chatID, "❌ "+err.Error())
		return
	}
	b.SendMessage(chatID, fmt.Sprintf("✅ Reminder #%d created:\n%s", rem.ID, formatReminder(rem)))
}

func (b *Bot) cmdList(chatID int64) {
	reminders, err := b.svc.List(chatID)
	if err != nil {
		b.logger.Errorw("list reminders failed", "chat", chatID, "err", err)
		b.SendMessage(chatID, "❌ Could not load your reminders.")
		return
	}
	if len(reminders) == 0 {
		b.SendMessage(chatID, "No reminders yet. /add to create one.")
		return
	}

	var sb strings.Builder
	sb.WriteString("<b>Your reminders:</b>\n\n")
	for _, rem := range reminders {
		sb.WriteString(fmt.Sprintf("#%d %s\n", rem.ID, formatReminder(rem)))
	}
	b.sendWithKeyboard(chatID, sb.String(), deleteKeyboard(reminders))
}

func (b *Bot) cmdDelete(ctx context.Context, chatID int64, args string) {
	id, err := strconv.ParseInt(args, 10, 64)
	if err != nil {
		b.SendMessage(chatID, "Usage: /delete <i>ID</i> (see /list)")
		return
	}
	if err := b.svc.Delete(ctx, id); err != nil {
		b.SendMessage(chatID, "❌ "+err.Error())
		return
	}
	b.SendMessage(chatID, fmt.Sprintf("🗑 Reminder #%d deleted.", id))
}

// splitWhenTitle splits "2026-09-01T09:00:00Z dentist appointment" into the
// schedule token and the title remainder.
func splitWhenTitle(s string) (when, title string, ok bool) {
	fields := strings.Fields(s)
	if len(fields) < 2 {
		return "", "", false
	}
	return fields[0], strings.Join(fields[1:], " "), true
}

func parseWeekdays(s string) ([]int, bool) {
	var days []int
	for _, part := range strings.Split(strings.ToLower(s), ",") {
		d, ok := weekdayAliases[strings.TrimSpace(part)]
		if !ok {
			return nil, false
		}
		days = append(days, d)
	}
	return days, len(days) > 0
}

func formatReminder(rem *domain.Reminder) string {
	loc, _ := timezone.Ensure(rem.Timezone)
	when := rem.ScheduledAt.In(loc).Format("Mon 2006-01-02 15:04 MST")

	switch rem.Recurrence.Cadence {
	case domain.CadenceDaily:
		if rem.Recurrence.Interval > 1 {
			return fmt.Sprintf("<b>%s</b> — every %d days from %s", rem.Title, rem.Recurrence.Interval, when)
		}
		return fmt.Sprintf("<b>%s</b> — daily from %s", rem.Title, when)
	case domain.CadenceWeekly:
		return fmt.Sprintf("<b>%s</b> — weekly (%s) from %s", rem.Title, weekdayList(rem, loc), when)
	case domain.CadenceCustom:
		return fmt.Sprintf("<b>%s</b> — custom rule from %s", rem.Title, when)
	default:
		return fmt.Sprintf("<b>%s</b> — %s", rem.Title, when)
	}
}

var weekdayShort = [7]string{"Sun", "Mon", "Tue", "Wed", "Thu", "Fri", "Sat"}

func weekdayList(rem *domain.Reminder, loc *time.Location) string {
	days := rem.Recurrence.DaysOfWeek
	if len(days) == 0 {
		return weekdayShort[int(rem.Anchor().In(loc).Weekday())]
	}
	names := make([]string, 0, len(days))
	for _, d := range days {
		if d >= 0 && d <= 6 {
			names = append(names, weekdayShort[d])
		}
	}
	return strings.Join(names, ",")
}
