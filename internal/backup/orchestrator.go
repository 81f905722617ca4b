package backup

import (
	"context"
	"fmt"

	"github.com/tangthinker/unibackup/internal/queue"
	"github.com/tangthinker/unibackup/internal/store"
)

// BatchBackup attempts every target, then retries the failures in later
// passes separated by a fixed delay. Targets still failing after the last
// pass get a terminal status. A session expiry during a pass flips the
// session state but does not stop the ladder.
func (m *Manager) BatchBackup(ctx context.Context, p queue.Progress) error {
	if !m.session.LoggedIn() {
		m.store.AddLog("Scheduled backup canceled => not logged in.")
		return nil
	}

	targets := m.store.Targets()
	if len(targets) == 0 {
		m.store.AddLog("Scheduled backup skipped => no consoles configured.")
		return nil
	}

	m.store.AddLog(fmt.Sprintf("Scheduled backup pass#1 started for %d console(s).", len(targets)))
	failed := m.runPass(ctx, p, 1, targets)

	for pass := 2; pass <= MaxPasses && len(failed) > 0; pass++ {
		p.SetStep(fmt.Sprintf("Waiting %s before retry pass %d/%d", m.opts.PassDelay, pass, MaxPasses))
		if err := m.sleep(ctx, m.opts.PassDelay); err != nil {
			return fmt.Errorf("batch backup interrupted before pass %d: %w", pass, err)
		}
		failed = m.runPass(ctx, p, pass, failed)
	}

	for _, t := range failed {
		m.record(t, StatusFailed, nil)
		m.store.AddLog(fmt.Sprintf("'%s' failed after %d tries.", t.Name, MaxPasses))
	}
	m.store.AddLog(fmt.Sprintf("Scheduled backup complete: %d/%d succeeded.", len(targets)-len(failed), len(targets)))
	return nil
}

// runPass attempts targets in order and returns the ones that failed.
func (m *Manager) runPass(ctx context.Context, p queue.Progress, pass int, targets []store.Target) []store.Target {
	var failed []store.Target
	for i, t := range targets {
		if pass > 1 {
			m.store.AddLog(fmt.Sprintf("pass%d retry for '%s'.", pass, t.Name))
		}
		p.SetStep(fmt.Sprintf("Backup pass %d/%d: '%s' (%d/%d)", pass, MaxPasses, t.Name, i+1, len(targets)))

		if err := m.attempt(ctx, t); err != nil {
			m.record(t, failStatus(err), nil)
			m.store.AddLog(fmt.Sprintf("Backup fail for '%s' on try %d: %v", t.Name, pass, err))
			failed = append(failed, t)
			continue
		}

		status := StatusSuccess
		if pass > 1 {
			status = StatusRetrySuccess
		}
		now := m.now()
		m.record(t, status, &now)
	}
	return failed
}
