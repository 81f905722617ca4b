package app

import (
	"context"
	"fmt"

	"github.com/tangthinker/unibackup/internal/queue"
	"github.com/tangthinker/unibackup/internal/schedule"
	"github.com/tangthinker/unibackup/internal/status"
	"github.com/tangthinker/unibackup/internal/store"
)

// EnqueueManualLogin queues a login. The stored session is discarded when the
// login runs.
func (a *App) EnqueueManualLogin() queue.Task {
	t := a.loginTask()
	a.queue.Enqueue(t)
	a.store.AddLog("Forcing re-login. A browser will open on the server side.")
	return t
}

// EnqueueBackup queues a single backup attempt for target id.
func (a *App) EnqueueBackup(id int) (queue.Task, error) {
	target, err := a.store.Target(id)
	if err != nil {
		return queue.Task{}, err
	}
	t := a.backupTask(target)
	a.queue.Enqueue(t)
	a.store.AddLog(fmt.Sprintf("Backup for '%s' queued.", target.Name))
	return t, nil
}

// EnqueueBatchBackup queues the retrying backup of all targets unless one is
// already queued or running.
func (a *App) EnqueueBatchBackup() (queue.Task, error) {
	t := a.batchBackupTask()
	if !a.queue.EnqueueIfAbsent(t) {
		a.store.AddLog("Backup of all consoles rejected => one is already queued or running.")
		return queue.Task{}, ErrDuplicateTask
	}
	return t, nil
}

// EnqueueConnectivityProbe always queues a probe.
func (a *App) EnqueueConnectivityProbe() queue.Task {
	t := a.probeTask()
	a.queue.Enqueue(t)
	return t
}

func (a *App) Targets() []store.Target {
	return a.store.Targets()
}

func (a *App) AddTarget(name, locator string) (store.Target, error) {
	t, err := a.store.AddTarget(name, locator)
	if err != nil {
		return t, err
	}
	a.store.AddLog(fmt.Sprintf("Console '%s' added.", t.Name))
	return t, nil
}

func (a *App) RemoveTarget(id int) error {
	t, err := a.store.Target(id)
	if err != nil {
		return err
	}
	if err := a.store.RemoveTarget(id); err != nil {
		return err
	}
	a.store.AddLog(fmt.Sprintf("Console '%s' removed.", t.Name))
	return nil
}

func (a *App) Schedule() schedule.Config {
	return a.store.Schedule()
}

// UpdateSchedule stores cfg, clamping invalid values, and reinstalls the
// triggers. The clamping warnings are logged and returned.
func (a *App) UpdateSchedule(cfg schedule.Config) (schedule.Config, []string, error) {
	cfg, warnings, err := a.store.SetSchedule(cfg)
	for _, w := range warnings {
		a.store.AddLog("Schedule warning: " + w)
	}
	if err != nil {
		return cfg, warnings, err
	}
	a.schedule.Apply(cfg)
	a.store.AddLog(fmt.Sprintf("Schedule updated: backup %s, check %s.", describe(cfg.Backup), describe(cfg.Check)))
	return cfg, warnings, nil
}

func describe(j schedule.Job) string {
	if !j.Enabled {
		return "disabled"
	}
	return fmt.Sprintf("every %d %s(s)", j.Value, j.Unit)
}

func (a *App) Snapshot() status.Snapshot {
	return a.projector.Snapshot()
}

// Stream publishes snapshots at the configured cadence until ctx is done or
// publish fails.
func (a *App) Stream(ctx context.Context, publish func(status.Snapshot) error) error {
	return a.projector.Stream(ctx, a.interval, publish)
}
