package status

import (
	"context"
	"time"

	"github.com/tangthinker/unibackup/internal/queue"
	"github.com/tangthinker/unibackup/internal/schedule"
	"github.com/tangthinker/unibackup/internal/store"
)

// Snapshot is the point-in-time view pushed to live consumers.
type Snapshot struct {
	CurrentTask     queue.Status     `json:"current_task"`
	QueueSize       int              `json:"queue_size"`
	Pending         []string         `json:"pending"`
	SessionLoggedIn bool             `json:"session_logged_in"`
	SessionSuspect  bool             `json:"session_suspect"`
	Logs            []store.LogEntry `json:"logs"`
	Targets         []store.Target   `json:"targets"`
	NextTrigger     *NextTrigger     `json:"next_trigger"`
	GeneratedAt     time.Time        `json:"generated_at"`
}

// NextTrigger is the time left until the next scheduled backup.
type NextTrigger struct {
	Label            string    `json:"label"`
	At               time.Time `json:"at"`
	SecondsRemaining int64     `json:"seconds_remaining"`
}

type QueueSource interface {
	Status() queue.Status
	Len() int
	Pending() []string
}

type SessionSource interface {
	LoggedIn() bool
	Suspect() bool
}

type StoreSource interface {
	Logs() []store.LogEntry
	Targets() []store.Target
}

type ScheduleSource interface {
	Next(kind schedule.Kind) (time.Time, bool)
}

// Projector builds snapshots. It only reads.
type Projector struct {
	queue    QueueSource
	session  SessionSource
	store    StoreSource
	schedule ScheduleSource
	now      func() time.Time
}

func NewProjector(q QueueSource, sess SessionSource, st StoreSource, sched ScheduleSource) *Projector {
	return &Projector{
		queue:    q,
		session:  sess,
		store:    st,
		schedule: sched,
		now:      time.Now,
	}
}

func (p *Projector) Snapshot() Snapshot {
	now := p.now()
	snap := Snapshot{
		CurrentTask:     p.queue.Status(),
		QueueSize:       p.queue.Len(),
		Pending:         p.queue.Pending(),
		SessionLoggedIn: p.session.LoggedIn(),
		SessionSuspect:  p.session.Suspect(),
		Logs:            p.store.Logs(),
		Targets:         p.store.Targets(),
		GeneratedAt:     now.UTC(),
	}
	if p.schedule != nil {
		if next, ok := p.schedule.Next(schedule.KindBackup); ok {
			snap.NextTrigger = &NextTrigger{
				Label:            schedule.LabelBackup,
				At:               next.UTC(),
				SecondsRemaining: int64(Remaining(next, now) / time.Second),
			}
		}
	}
	return snap
}

// Remaining is the time from now until next, never negative.
func Remaining(next, now time.Time) time.Duration {
	d := next.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// Stream publishes a snapshot immediately and then every interval until ctx
// is done or publish fails, e.g. because the consumer went away.
func (p *Projector) Stream(ctx context.Context, interval time.Duration, publish func(Snapshot) error) error {
	if interval <= 0 {
		interval = time.Second
	}
	if err := publish(p.Snapshot()); err != nil {
		return err
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := publish(p.Snapshot()); err != nil {
				return err
			}
		}
	}
}
