// Package backup manages scheduled backups for an InnoDB cluster. Each
// enabled entry in spec.backupSchedules maps to one CronJob that runs a
// dump against the cluster through its router-facing service.
package backup

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// MinScheduleInterval is the minimum allowed interval between scheduled
// backups. Tighter schedules are rejected by validation.
const MinScheduleInterval = 15 * time.Minute

// Parser accepts standard 5-field cron expressions.
var Parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ParseSchedule parses a cron expression and returns the schedule.
func ParseSchedule(expr string) (cron.Schedule, error) {
	schedule, err := Parser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return schedule, nil
}

// NextRun returns the next scheduled time strictly after from.
func NextRun(expr string, from time.Time) (time.Time, error) {
	schedule, err := ParseSchedule(expr)
	if err != nil {
		return time.Time{}, err
	}
	return schedule.Next(from), nil
}

// ScheduleInterval estimates the typical interval between runs by looking
// at two consecutive future firings.
func ScheduleInterval(expr string) (time.Duration, error) {
	schedule, err := ParseSchedule(expr)
	if err != nil {
		return 0, err
	}

	next := schedule.Next(time.Now().UTC())
	return schedule.Next(next).Sub(next), nil
}

// ValidateSchedule rejects invalid expressions and schedules tighter than
// MinScheduleInterval.
func ValidateSchedule(expr string) error {
	interval, err := ScheduleInterval(expr)
	if err != nil {
		return err
	}
	if interval < MinScheduleInterval {
		return fmt.Errorf("backup schedule interval %v is less than minimum allowed %v", interval, MinScheduleInterval)
	}
	return nil
}
