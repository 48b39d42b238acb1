package recurrence

import (
	"fmt"
	"time"

	"github.com/teambition/rrule-go"
)

// RRuleExpand is a CustomHandler that interprets the custom rule string as
// an RFC-5545 RRULE, anchored at the reminder's anchor in its own zone.
//
//	exp := &recurrence.Expander{Custom: recurrence.RRuleExpand}
func RRuleExpand(rule string, anchor time.Time, loc *time.Location, start, end time.Time) ([]time.Time, error) {
	r, err := rrule.StrToRRule(rule)
	if err != nil {
		return nil, fmt.Errorf("parse rrule %q: %w", rule, err)
	}
	r.DTStart(anchor.In(loc))

	// Between is inclusive on both bounds; re-filter below to keep the
	// window half-open.
	times := r.Between(start.In(loc), end.In(loc), true)

	out := make([]time.Time, 0, len(times))
	for _, t := range times {
		u := t.UTC()
		if !u.Before(start) && u.Before(end) {
			out = append(out, u)
		}
	}
	return out, nil
}
