package store

import (
	"time"

	"github.com/tangthinker/unibackup/internal/schedule"
)

// MaxLogEntries bounds the user-visible log ring.
const MaxLogEntries = 100

// StatusUnknown is the status of a target that was never attempted.
const StatusUnknown = "Unknown"

// Target is a managed console whose backup is fetched.
type Target struct {
	ID       int        `json:"id"`
	Name     string     `json:"name"`
	Locator  string     `json:"backup_url"`
	Status   string     `json:"last_backup_status"`
	LastTime *time.Time `json:"last_backup_time,omitempty"`
}

// LogEntry is one line of the user-visible activity log.
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
}

// Data is everything that survives a restart.
type Data struct {
	LoggedIn bool            `json:"master_logged_in"`
	NextID   int             `json:"next_id"`
	Targets  []Target        `json:"consoles"`
	Logs     []LogEntry      `json:"logs"`
	Schedule schedule.Config `json:"schedule"`
}

func defaultData() Data {
	return Data{
		NextID:   1,
		Targets:  []Target{},
		Logs:     []LogEntry{},
		Schedule: schedule.DefaultConfig(),
	}
}

func (t Target) clone() Target {
	if t.LastTime != nil {
		ts := *t.LastTime
		t.LastTime = &ts
	}
	return t
}
