// Package recurrence turns a reminder's recurrence rule into concrete UTC
// occurrence instants inside a bounded window. The underlying series is
// conceptually unbounded; every expansion here is clipped to a half-open
// [start, end) window so job materialization stays finite.
package recurrence

import (
	"sort"
	"time"

	"go.uber.org/zap"

	"reminderd/internal/domain"
	"reminderd/internal/timezone"
)

// Safety cap per expansion so a degenerate rule can never spin forever.
const maxIterations = 10000

// CustomHandler expands a free-form rule string for the custom cadence.
// The returned instants must be UTC and fall inside [start, end).
type CustomHandler func(rule string, anchor time.Time, loc *time.Location, start, end time.Time) ([]time.Time, error)

// Expander computes occurrence instants for reminders. The zero value is
// usable; Custom and Logger are optional.
type Expander struct {
	// Custom handles the custom cadence. When nil, custom behaves like
	// a one-shot reminder.
	Custom CustomHandler

	Logger *zap.SugaredLogger
}

func (e *Expander) logger() *zap.SugaredLogger {
	if e.Logger != nil {
		return e.Logger
	}
	return zap.NewNop().Sugar()
}

// Expand returns the reminder's occurrences in [windowStart, windowEnd),
// strictly ascending, duplicates collapsed. The result depends only on the
// reminder and the window bounds; there is no hidden wall-clock input.
//
// All calendar stepping happens on local wall-clock fields in the
// reminder's zone and is converted to UTC at the end. Stepping UTC
// instants by N*24h instead would silently drift across DST days.
func (e *Expander) Expand(rem *domain.Reminder, windowStart, windowEnd time.Time) []time.Time {
	if !windowStart.Before(windowEnd) {
		return nil
	}
	windowStart = windowStart.UTC()
	windowEnd = windowEnd.UTC()

	loc, ok := timezone.Ensure(rem.Timezone)
	if !ok && rem.Timezone != "" {
		e.logger().Warnw("invalid timezone, using UTC", "reminder", rem.ID, "tz", rem.Timezone)
	}

	var out []time.Time
	switch rem.Recurrence.Cadence {
	case domain.CadenceDaily:
		out = e.expandDaily(rem, loc, windowStart, windowEnd)
	case domain.CadenceWeekly:
		out = e.expandWeekly(rem, loc, windowStart, windowEnd)
	case domain.CadenceCustom:
		out = e.expandCustom(rem, loc, windowStart, windowEnd)
	default:
		out = expandSingle(rem.ScheduledAt.UTC(), windowStart, windowEnd)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return dedupe(out)
}

// Next returns the first occurrence at or after from, or the zero time if
// none exists (only possible for non-recurring reminders).
func (e *Expander) Next(rem *domain.Reminder, from time.Time) time.Time {
	from = from.UTC()
	if !rem.Recurs() {
		if s := rem.ScheduledAt.UTC(); !s.Before(from) {
			return s
		}
		return time.Time{}
	}

	spanDays := rem.Recurrence.Interval
	if spanDays < domain.MinInterval {
		spanDays = domain.MinInterval
	}
	if rem.Recurrence.Cadence != domain.CadenceDaily {
		spanDays *= 7
	}
	lookahead := time.Duration(2*spanDays+7) * 24 * time.Hour

	winStart := from
	for i := 0; i < 8; i++ {
		winEnd := winStart.Add(lookahead)
		if occs := e.Expand(rem, winStart, winEnd); len(occs) > 0 {
			return occs[0]
		}
		winStart = winEnd
	}
	return time.Time{}
}

func expandSingle(at, windowStart, windowEnd time.Time) []time.Time {
	if at.Before(windowStart) || !at.Before(windowEnd) {
		return nil
	}
	return []time.Time{at}
}

func (e *Expander) expandDaily(rem *domain.Reminder, loc *time.Location, windowStart, windowEnd time.Time) []time.Time {
	interval := clampInterval(rem.Recurrence.Interval)
	anchor := rem.Anchor().UTC()
	cur := anchor.In(loc)

	// Fast-forward by whole steps so expansion cost is bounded by the
	// window, not by how far in the past the anchor lies.
	if days := civilDaysBetween(cur, windowStart.In(loc)); days > 0 {
		if steps := days / interval; steps > 0 {
			cur = cur.AddDate(0, 0, steps*interval)
		}
	}
	for cur.UTC().After(windowStart) {
		prev := cur.AddDate(0, 0, -interval)
		if prev.UTC().Before(anchor) {
			break
		}
		cur = prev
	}

	var out []time.Time
	for i := 0; i < maxIterations; i++ {
		u := cur.UTC()
		if !u.Before(windowEnd) {
			break
		}
		if !u.Before(windowStart) && !u.Before(anchor) {
			out = append(out, u)
		}
		cur = cur.AddDate(0, 0, interval)
	}
	return out
}

func (e *Expander) expandWeekly(rem *domain.Reminder, loc *time.Location, windowStart, windowEnd time.Time) []time.Time {
	interval := clampInterval(rem.Recurrence.Interval)
	anchor := rem.Anchor().UTC()
	anchorLocal := anchor.In(loc)

	days := normalizeDays(rem.Recurrence.DaysOfWeek)
	if len(days) == 0 {
		// No explicit weekday selection: the anchor's own weekday is
		// the sole day.
		days = []int{int(anchorLocal.Weekday())}
	}

	wk := weekStart(anchorLocal)
	if d := civilDaysBetween(wk, windowStart.In(loc)); d > 0 {
		if steps := (d / 7) / interval; steps > 0 {
			// Land one step early; the in-window checks below skip
			// anything before windowStart.
			wk = wk.AddDate(0, 0, (steps-1)*interval*7)
		}
	}

	var out []time.Time
	for i := 0; i < maxIterations; i++ {
		// The week's earliest possible candidate already past the
		// window means every later week is past it too.
		if time.Date(wk.Year(), wk.Month(), wk.Day(), 0, 0, 0, 0, loc).UTC().After(windowEnd) {
			break
		}
		for _, d := range days {
			cand := time.Date(wk.Year(), wk.Month(), wk.Day()+d,
				anchorLocal.Hour(), anchorLocal.Minute(), anchorLocal.Second(), 0, loc)
			u := cand.UTC()
			if u.Before(anchor) || u.Before(windowStart) || !u.Before(windowEnd) {
				continue
			}
			out = append(out, u)
		}
		wk = wk.AddDate(0, 0, 7*interval)
	}
	return out
}

func (e *Expander) expandCustom(rem *domain.Reminder, loc *time.Location, windowStart, windowEnd time.Time) []time.Time {
	if e.Custom == nil || rem.Recurrence.CustomRule == "" {
		return expandSingle(rem.ScheduledAt.UTC(), windowStart, windowEnd)
	}
	out, err := e.Custom(rem.Recurrence.CustomRule, rem.Anchor().UTC(), loc, windowStart, windowEnd)
	if err != nil {
		e.logger().Errorw("custom rule expansion failed, treating as one-shot",
			"reminder", rem.ID, "rule", rem.Recurrence.CustomRule, "err", err)
		return expandSingle(rem.ScheduledAt.UTC(), windowStart, windowEnd)
	}
	return out
}

func clampInterval(n int) int {
	if n < domain.MinInterval {
		return domain.MinInterval
	}
	if n > domain.MaxInterval {
		return domain.MaxInterval
	}
	return n
}

// weekStart returns local midnight of the Sunday beginning t's week.
func weekStart(t time.Time) time.Time {
	s := t.AddDate(0, 0, -int(t.Weekday()))
	return time.Date(s.Year(), s.Month(), s.Day(), 0, 0, 0, 0, t.Location())
}

// civilDaysBetween counts calendar days from a's local date to b's local
// date. The dates are rebuilt in UTC so the subtraction is exact regardless
// of DST-shortened or -lengthened days.
func civilDaysBetween(a, b time.Time) int {
	da := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	db := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	return int(db.Sub(da) / (24 * time.Hour))
}

func normalizeDays(days []int) []int {
	var out []int
	seen := [7]bool{}
	for _, d := range days {
		if d < 0 || d > 6 || seen[d] {
			continue
		}
		seen[d] = true
		out = append(out, d)
	}
	sort.Ints(out)
	return out
}

func dedupe(ts []time.Time) []time.Time {
	if len(ts) < 2 {
		return ts
	}
	out := ts[:1]
	for _, t := range ts[1:] {
		if !t.Equal(out[len(out)-1]) {
			out = append(out, t)
		}
	}
	return out
}
