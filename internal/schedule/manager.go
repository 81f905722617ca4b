package schedule

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/tangthinker/unibackup/internal/queue"
)

// TaskQueue is the part of the task queue the scheduler needs.
type TaskQueue interface {
	Enqueue(t queue.Task)
	// EnqueueIfAbsent refuses t when a task of the same class is queued or running.
	EnqueueIfAbsent(t queue.Task) bool
}

// Jobs builds the task each trigger enqueues.
type Jobs struct {
	Backup func() queue.Task
	Check  func() queue.Task
}

// Trigger labels shown in the status feed.
const (
	LabelBackup = "BackupJob"
	LabelCheck  = "ConnectivityCheckJob"
)

// Manager installs one recurring trigger per enabled job kind. Triggers only
// enqueue; the worker does the work.
type Manager struct {
	mu      sync.Mutex
	cron    *cron.Cron
	entries map[Kind]cron.EntryID
	queue   TaskQueue
	jobs    Jobs
	notify  func(msg string)
	logger  zerolog.Logger
}

// NewManager creates a stopped manager. notify receives user-visible messages.
func NewManager(q TaskQueue, jobs Jobs, notify func(msg string), logger zerolog.Logger) *Manager {
	logger = logger.With().Str("component", "schedule").Logger()
	cl := cronLogger{logger: logger}
	if notify == nil {
		notify = func(string) {}
	}
	return &Manager{
		cron:    cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl))),
		entries: make(map[Kind]cron.EntryID),
		queue:   q,
		jobs:    jobs,
		notify:  notify,
		logger:  logger,
	}
}

func (m *Manager) Start() {
	m.cron.Start()
}

// Stop halts the triggers and returns a context done once running trigger
// functions have returned.
func (m *Manager) Stop() context.Context {
	return m.cron.Stop()
}

// Apply replaces the installed triggers with the ones described by cfg.
func (m *Manager) Apply(cfg Config) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.install(KindBackup, cfg.Backup)
	m.install(KindCheck, cfg.Check)
}

// mu must be held.
func (m *Manager) install(kind Kind, job Job) {
	if id, ok := m.entries[kind]; ok {
		m.cron.Remove(id)
		delete(m.entries, kind)
	}
	if !job.Enabled {
		m.logger.Info().Str("kind", string(kind)).Msg("trigger disabled")
		return
	}

	interval := job.Interval()
	if interval <= 0 {
		m.logger.Warn().Str("kind", string(kind)).Msg("trigger has no interval, not installed")
		m.notify(fmt.Sprintf("Schedule warning: %s trigger has no interval and was not installed.", kind))
		return
	}

	id := m.cron.Schedule(cron.Every(interval), cron.FuncJob(func() { m.fire(kind) }))
	m.entries[kind] = id
	m.logger.Info().Str("kind", string(kind)).Dur("every", interval).Msg("trigger installed")
}

// fire enqueues the task of kind. Batch backups are not enqueued while one is
// already queued or running.
func (m *Manager) fire(kind Kind) {
	switch kind {
	case KindBackup:
		if !m.queue.EnqueueIfAbsent(m.jobs.Backup()) {
			m.notify("Scheduled backup skipped => a backup job is already queued or running.")
		}
	case KindCheck:
		m.queue.Enqueue(m.jobs.Check())
	}
}

// Next returns the next fire time of kind, if its trigger is installed.
func (m *Manager) Next(kind Kind) (time.Time, bool) {
	m.mu.Lock()
	id, ok := m.entries[kind]
	m.mu.Unlock()
	if !ok {
		return time.Time{}, false
	}

	e := m.cron.Entry(id)
	if !e.Valid() || e.Next.IsZero() {
		return time.Time{}, false
	}
	return e.Next, true
}

// Installed reports whether kind currently has a trigger.
func (m *Manager) Installed(kind Kind) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.entries[kind]
	return ok
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg(fmt.Sprintf("cron: %s", msg))
}
