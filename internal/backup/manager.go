package backup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/tangthinker/unibackup/internal/automation"
	"github.com/tangthinker/unibackup/internal/queue"
	"github.com/tangthinker/unibackup/internal/session"
	"github.com/tangthinker/unibackup/internal/store"
)

// Options tunes the operations run by the worker.
type Options struct {
	HomeURL      string
	LoginTimeout time.Duration
	PassDelay    time.Duration
}

func (o *Options) setDefaults() {
	if o.HomeURL == "" {
		o.HomeURL = "https://unifi.ui.com/"
	}
	if o.LoginTimeout <= 0 {
		o.LoginTimeout = 120 * time.Second
	}
	if o.PassDelay <= 0 {
		o.PassDelay = 10 * time.Second
	}
}

// Manager runs the automation operations. Every method is meant to be
// executed by the queue worker, never concurrently.
type Manager struct {
	store   *store.Store
	session *session.State
	driver  automation.Driver
	jar     *automation.CookieJar
	opts    Options
	logger  zerolog.Logger

	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
}

func NewManager(st *store.Store, sess *session.State, driver automation.Driver, jar *automation.CookieJar, opts Options, logger zerolog.Logger) *Manager {
	opts.setDefaults()
	return &Manager{
		store:   st,
		session: sess,
		driver:  driver,
		jar:     jar,
		opts:    opts,
		logger:  logger.With().Str("component", "backup").Logger(),
		sleep:   automation.Sleep,
		now:     time.Now,
	}
}

// resetSession discards the stored cookies and marks the session logged out.
func (m *Manager) resetSession() {
	removed, err := m.jar.Remove()
	if err != nil {
		m.logger.Error().Err(err).Msg("failed to remove cookies")
	}
	if removed {
		m.store.AddLog("Removed old cookies manually.")
	}
	m.session.Logout()
}

// Login drops the old session, opens the controller and waits for a human to
// finish credentials and MFA. On success the session cookies are saved.
func (m *Manager) Login(ctx context.Context, p queue.Progress) error {
	p.SetStep("Manual server-side login")
	m.resetSession()

	b, err := m.driver.Start(ctx)
	if err != nil {
		m.store.AddLog(fmt.Sprintf("Manual login error: %v", err))
		return nil
	}
	defer b.Close()

	if err := b.Open(ctx, m.opts.HomeURL); err != nil {
		m.store.AddLog(fmt.Sprintf("Manual login error: %v", err))
		return nil
	}
	m.store.AddLog(fmt.Sprintf("Opened %s for manual login. Complete credentials, MFA and trust device in the browser.", m.opts.HomeURL))

	p.SetStep("Manual server-side login: waiting for user")
	err = automation.PollFor(m.opts.LoginTimeout, time.Second).Until(ctx, b.Authenticated)
	if errors.Is(err, automation.ErrPollTimeout) {
		m.store.AddLog("Timeout => user never left /login or /mfa => not logged in.")
		return nil
	}
	if err != nil {
		m.store.AddLog(fmt.Sprintf("Manual login error: %v", err))
		return nil
	}

	cookies, err := b.ExportSession(ctx)
	if err != nil {
		m.store.AddLog(fmt.Sprintf("Manual login error: %v", err))
		return nil
	}
	if err := m.jar.Save(cookies); err != nil {
		return fmt.Errorf("failed to save cookies: %w", err)
	}

	m.session.LoginSucceeded()
	m.store.AddLog(fmt.Sprintf("Manual login success, %d cookies saved.", len(cookies)))
	return nil
}

// Probe checks that the stored session still reaches the controller.
func (m *Manager) Probe(ctx context.Context, p queue.Progress) error {
	if !m.session.LoggedIn() {
		m.store.AddLog("Connectivity check => not logged in => skip.")
		return nil
	}
	p.SetStep("Connectivity check")

	ok, err := m.probe(ctx)
	switch {
	case err != nil:
		m.store.AddLog(fmt.Sprintf("Connectivity check error => %v", err))
		m.invalidate("connectivity check error")
	case !ok:
		m.store.AddLog("Connectivity check => forced login page.")
		m.invalidate("connectivity check redirected to login")
	default:
		m.session.Valid()
		m.store.AddLog("Connectivity check => success => still logged in.")
	}
	return nil
}

func (m *Manager) probe(ctx context.Context) (bool, error) {
	b, err := m.openSession(ctx)
	if err != nil {
		return false, err
	}
	defer b.Close()

	if err := b.Open(ctx, m.opts.HomeURL); err != nil {
		return false, err
	}
	return b.Authenticated(ctx)
}

// BackupTarget makes a single attempt for one target.
func (m *Manager) BackupTarget(ctx context.Context, id int, p queue.Progress) error {
	t, err := m.store.Target(id)
	if err != nil {
		m.store.AddLog(fmt.Sprintf("Backup skipped => console %d no longer exists.", id))
		return nil
	}
	if !m.session.LoggedIn() {
		m.store.AddLog(fmt.Sprintf("Backup for '%s' skipped => not logged in.", t.Name))
		return nil
	}

	p.SetStep(fmt.Sprintf("Backup for '%s'", t.Name))
	if err := m.attempt(ctx, t); err != nil {
		m.record(t, failStatus(err), nil)
		m.store.AddLog(fmt.Sprintf("Backup fail for '%s': %v", t.Name, err))
		return nil
	}
	now := m.now()
	m.record(t, StatusSuccess, &now)
	return nil
}

// attempt runs the download sequence for t in a fresh browser. A browser
// that cannot be started or handed the session invalidates the session.
// Failures inside the page only fail this target.
func (m *Manager) attempt(ctx context.Context, t store.Target) error {
	b, err := m.openSession(ctx)
	if err != nil {
		if errors.Is(err, automation.ErrDriver) {
			m.invalidate(fmt.Sprintf("browser for '%s' could not be started", t.Name))
		}
		return err
	}
	defer b.Close()

	art, err := b.ExecuteBackup(ctx, t.Name, t.Locator)
	if err != nil {
		if errors.Is(err, automation.ErrAuthRequired) {
			m.invalidate(fmt.Sprintf("backup of '%s' redirected to login", t.Name))
		}
		return err
	}

	m.session.Valid()
	m.store.AddLog(fmt.Sprintf("Backup success for '%s' => %s (%d bytes, sha256 %.12s)", t.Name, art.Name, art.Size, art.SHA256))
	return nil
}

func (m *Manager) openSession(ctx context.Context) (automation.Browser, error) {
	cookies, err := m.jar.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load cookies: %w", err)
	}

	b, err := m.driver.Start(ctx)
	if err != nil {
		return nil, err
	}
	if err := b.ImportSession(ctx, cookies); err != nil {
		b.Close()
		return nil, err
	}
	return b, nil
}

func (m *Manager) invalidate(reason string) {
	if m.session.Invalid(reason) {
		m.store.AddLog("Cookies expired => set not logged in.")
	}
}

func (m *Manager) record(t store.Target, status string, lastTime *time.Time) {
	if err := m.store.RecordAttempt(t.ID, status, lastTime); err != nil {
		m.logger.Warn().Err(err).Int("target", t.ID).Msg("failed to record attempt")
	}
}
