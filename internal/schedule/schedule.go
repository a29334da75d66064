// Package schedule computes cron occurrence times for backup jobs.
package schedule

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// parser accepts standard 5-field cron expressions
// (minute, hour, day-of-month, month, day-of-week).
var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Next returns the first occurrence of the cron expression strictly after
// from. A parse failure is the only error; an invalid schedule is terminal
// for the owning job until a user edits it.
func Next(expr string, from time.Time) (time.Time, error) {
	sched, err := parser.Parse(expr)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return sched.Next(from), nil
}

// Valid reports whether the expression parses.
func Valid(expr string) bool {
	_, err := parser.Parse(expr)
	return err == nil
}
