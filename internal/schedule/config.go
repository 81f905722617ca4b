package schedule

import (
	"fmt"
	"time"
)

// Kind names one of the two recurring jobs.
type Kind string

const (
	KindBackup Kind = "backup"
	KindCheck  Kind = "check"
)

// Job is the user-facing schedule of one job kind.
type Job struct {
	Enabled bool `json:"enabled" yaml:"enabled"`
	Value   int  `json:"value" yaml:"value"`
	Unit    Unit `json:"unit" yaml:"unit"`
}

// Interval returns the trigger period of the job.
func (j Job) Interval() time.Duration {
	return j.Unit.Duration(j.Value)
}

// Config holds the schedules of both job kinds.
type Config struct {
	Backup Job `json:"backup" yaml:"backup"`
	Check  Job `json:"check" yaml:"check"`
}

// DefaultConfig backs up daily and checks the session every four hours.
func DefaultConfig() Config {
	return Config{
		Backup: Job{Enabled: true, Value: 24, Unit: UnitHour},
		Check:  Job{Enabled: true, Value: 4, Unit: UnitHour},
	}
}

// Job returns the schedule for kind.
func (c Config) Job(kind Kind) Job {
	if kind == KindCheck {
		return c.Check
	}
	return c.Backup
}

// Normalize clamps out-of-range values and returns one warning per correction.
// Values are never rejected.
func (c *Config) Normalize() []string {
	var warnings []string
	warnings = append(warnings, c.Backup.normalize(KindBackup)...)
	warnings = append(warnings, c.Check.normalize(KindCheck)...)
	return warnings
}

func (j *Job) normalize(kind Kind) []string {
	var warnings []string
	if !j.Unit.Valid() {
		warnings = append(warnings, fmt.Sprintf("%s schedule: invalid unit, using hours", kind))
		j.Unit = UnitHour
	}
	if j.Value < 1 {
		warnings = append(warnings, fmt.Sprintf("%s schedule: value %d below 1, clamped to 1", kind, j.Value))
		j.Value = 1
	}
	if j.Unit == UnitMinute && j.Value < MinMinuteInterval {
		warnings = append(warnings, fmt.Sprintf("%s schedule: %d minutes below the %d minute floor, clamped to %d",
			kind, j.Value, MinMinuteInterval, MinMinuteInterval))
		j.Value = MinMinuteInterval
	}
	if limit := j.Unit.MaxValue(); j.Value > limit {
		warnings = append(warnings, fmt.Sprintf("%s schedule: %d %ss above the one year ceiling, clamped to %d",
			kind, j.Value, j.Unit, limit))
		j.Value = limit
	}
	return warnings
}
