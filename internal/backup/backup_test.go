package backup

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tangthinker/unibackup/internal/automation"
	"github.com/tangthinker/unibackup/internal/session"
	"github.com/tangthinker/unibackup/internal/store"
)

// fakeDriver hands out browsers whose backup results are scripted per target
// name. An exhausted script means success.
type fakeDriver struct {
	mu            sync.Mutex
	results       map[string][]error
	authenticated []bool
	startErr      error
	started       int
	imported      [][]automation.Cookie
	exported      []automation.Cookie
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{results: make(map[string][]error)}
}

func (d *fakeDriver) script(name string, results ...error) {
	d.results[name] = results
}

func (d *fakeDriver) Start(ctx context.Context) (automation.Browser, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.startErr != nil {
		return nil, d.startErr
	}
	d.started++
	return &fakeBrowser{d: d}, nil
}

func (d *fakeDriver) Cleanup() error { return nil }

func (d *fakeDriver) next(name string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	rs := d.results[name]
	if len(rs) == 0 {
		return nil
	}
	d.results[name] = rs[1:]
	return rs[0]
}

type fakeBrowser struct {
	d *fakeDriver
}

func (b *fakeBrowser) Open(ctx context.Context, url string) error { return nil }

func (b *fakeBrowser) Authenticated(ctx context.Context) (bool, error) {
	b.d.mu.Lock()
	defer b.d.mu.Unlock()
	if len(b.d.authenticated) == 0 {
		return true, nil
	}
	ok := b.d.authenticated[0]
	b.d.authenticated = b.d.authenticated[1:]
	return ok, nil
}

func (b *fakeBrowser) ExecuteBackup(ctx context.Context, name, locator string) (*automation.Artifact, error) {
	if err := b.d.next(name); err != nil {
		return nil, err
	}
	return &automation.Artifact{Name: name + "_backup.unf", Size: 1024, SHA256: strings.Repeat("ab", 32)}, nil
}

func (b *fakeBrowser) ExportSession(ctx context.Context) ([]automation.Cookie, error) {
	return b.d.exported, nil
}

func (b *fakeBrowser) ImportSession(ctx context.Context, cookies []automation.Cookie) error {
	b.d.mu.Lock()
	defer b.d.mu.Unlock()
	b.d.imported = append(b.d.imported, cookies)
	return nil
}

func (b *fakeBrowser) Close() error { return nil }

type nopProgress struct{}

func (nopProgress) SetStep(string) {}

type fixture struct {
	m      *Manager
	store  *store.Store
	sess   *session.State
	driver *fakeDriver
	jar    *automation.CookieJar
	sleeps []time.Duration
}

func newFixture(t *testing.T, loggedIn bool, targets ...string) *fixture {
	t.Helper()
	dir := t.TempDir()

	st, err := store.Open(store.NewJSONBackend(filepath.Join(dir, "appdata.json")), zerolog.Nop())
	require.NoError(t, err)
	for _, name := range targets {
		_, err := st.AddTarget(name, "https://unifi.ui.com/consoles/"+name+"/backup")
		require.NoError(t, err)
	}
	require.NoError(t, st.SaveLoggedIn(loggedIn))

	f := &fixture{
		store:  st,
		sess:   session.New(loggedIn, session.NewPolicy(1), st, zerolog.Nop()),
		driver: newFakeDriver(),
		jar:    automation.NewCookieJar(filepath.Join(dir, "cookies.json")),
	}
	f.m = NewManager(st, f.sess, f.driver, f.jar, Options{LoginTimeout: 50 * time.Millisecond}, zerolog.Nop())
	f.m.sleep = func(ctx context.Context, d time.Duration) error {
		f.sleeps = append(f.sleeps, d)
		return ctx.Err()
	}
	return f
}

func (f *fixture) status(t *testing.T, name string) string {
	t.Helper()
	for _, tg := range f.store.Targets() {
		if tg.Name == name {
			return tg.Status
		}
	}
	t.Fatalf("no target %q", name)
	return ""
}

func (f *fixture) countLogs(substr string) int {
	n := 0
	for _, e := range f.store.Logs() {
		if strings.Contains(e.Message, substr) {
			n++
		}
	}
	return n
}

var errNotFound = fmt.Errorf("%w: no .unf or .tar.gz found after 1m0s", automation.ErrArtifactNotFound)

func TestBatchBackupRetryLadder(t *testing.T) {
	f := newFixture(t, true, "A", "B", "C")
	f.driver.script("B", errNotFound, errNotFound)
	f.driver.script("C", errNotFound, errNotFound, errNotFound, errNotFound)

	require.NoError(t, f.m.BatchBackup(context.Background(), nopProgress{}))

	assert.Equal(t, StatusSuccess, f.status(t, "A"))
	assert.Equal(t, StatusRetrySuccess, f.status(t, "B"))
	assert.Equal(t, StatusFailed, f.status(t, "C"))

	assert.Equal(t, []time.Duration{10 * time.Second, 10 * time.Second}, f.sleeps)
	assert.Equal(t, 1, f.countLogs("pass#1"))
	assert.Equal(t, 1, f.countLogs("pass2 retry for 'B'"))
	assert.Equal(t, 1, f.countLogs("pass3 retry for 'B'"))
	assert.Equal(t, 0, f.countLogs("pass2 retry for 'A'"))
	assert.Equal(t, 1, f.countLogs("'C' failed after 3 tries"))
	assert.Equal(t, 0, f.countLogs("pass4"))
	assert.Equal(t, 1, f.countLogs("complete: 2/3 succeeded"))

	// A once, B three times, C three times
	assert.Equal(t, 7, f.driver.started)
	assert.True(t, f.sess.LoggedIn())

	for _, tg := range f.store.Targets() {
		if tg.Name == "C" {
			assert.Nil(t, tg.LastTime)
		} else {
			assert.NotNil(t, tg.LastTime)
		}
	}
}

func TestBatchBackupAllSucceedWithoutDelay(t *testing.T) {
	f := newFixture(t, true, "A", "B")

	require.NoError(t, f.m.BatchBackup(context.Background(), nopProgress{}))

	assert.Empty(t, f.sleeps)
	assert.Equal(t, StatusSuccess, f.status(t, "A"))
	assert.Equal(t, StatusSuccess, f.status(t, "B"))
}

func TestBatchBackupCanceledWhenLoggedOut(t *testing.T) {
	f := newFixture(t, false, "A")

	require.NoError(t, f.m.BatchBackup(context.Background(), nopProgress{}))

	assert.Zero(t, f.driver.started)
	assert.Equal(t, store.StatusUnknown, f.status(t, "A"))
	assert.Equal(t, 1, f.countLogs("Scheduled backup canceled => not logged in."))
}

func TestBatchBackupWithoutTargets(t *testing.T) {
	f := newFixture(t, true)

	require.NoError(t, f.m.BatchBackup(context.Background(), nopProgress{}))
	assert.Zero(t, f.driver.started)
	assert.Equal(t, 1, f.countLogs("no consoles configured"))
}

func TestBatchBackupInterruptedDuringDelay(t *testing.T) {
	f := newFixture(t, true, "A")
	f.driver.script("A", errNotFound)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := f.m.BatchBackup(ctx, nopProgress{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, f.sleeps, 1)
}

func TestAuthRedirectFlipsSessionButLadderContinues(t *testing.T) {
	f := newFixture(t, true, "A", "B")
	f.driver.script("A", automation.ErrAuthRequired)

	require.NoError(t, f.m.BatchBackup(context.Background(), nopProgress{}))

	assert.False(t, f.sess.LoggedIn())
	assert.False(t, f.store.LoggedIn(), "the flag is persisted")
	assert.Equal(t, 1, f.countLogs("Cookies expired => set not logged in."))
	assert.Equal(t, StatusRetrySuccess, f.status(t, "A"))
	assert.Equal(t, StatusSuccess, f.status(t, "B"))
}

func TestPageErrorDoesNotFlipSession(t *testing.T) {
	f := newFixture(t, true, "A")
	f.driver.script("A", &automation.DriverError{Op: "click", Err: errors.New("element not interactable")})

	require.NoError(t, f.m.BackupTarget(context.Background(), 1, nopProgress{}))

	assert.True(t, f.sess.LoggedIn())
	assert.Equal(t, "Fail: click: element not interactable", f.status(t, "A"))
}

func TestBrowserStartFailureFlipsSession(t *testing.T) {
	f := newFixture(t, true, "A")
	f.driver.startErr = &automation.DriverError{Op: "start browser", Err: errors.New("chrome crashed")}

	require.NoError(t, f.m.BackupTarget(context.Background(), 1, nopProgress{}))

	assert.False(t, f.sess.LoggedIn())
	assert.False(t, f.store.LoggedIn())
	assert.Equal(t, "Fail: start browser: chrome crashed", f.status(t, "A"))
	assert.Equal(t, 1, f.countLogs("Cookies expired => set not logged in."))
}

func TestBrowserStartFailureDuringBatch(t *testing.T) {
	f := newFixture(t, true, "A", "B")
	f.driver.startErr = &automation.DriverError{Op: "start browser", Err: errors.New("chrome crashed")}

	require.NoError(t, f.m.BatchBackup(context.Background(), nopProgress{}))

	assert.False(t, f.sess.LoggedIn())
	assert.Equal(t, StatusFailed, f.status(t, "A"))
	assert.Equal(t, StatusFailed, f.status(t, "B"))
	assert.Equal(t, 1, f.countLogs("Cookies expired => set not logged in."), "the flip is logged once")
}

func TestBackupTarget(t *testing.T) {
	f := newFixture(t, true, "A")

	require.NoError(t, f.m.BackupTarget(context.Background(), 1, nopProgress{}))
	assert.Equal(t, StatusSuccess, f.status(t, "A"))
	assert.Equal(t, 1, f.countLogs("Backup success for 'A' => A_backup.unf"))
}

func TestBackupTargetSkips(t *testing.T) {
	f := newFixture(t, true, "A")
	require.NoError(t, f.m.BackupTarget(context.Background(), 99, nopProgress{}))
	assert.Equal(t, 1, f.countLogs("console 99 no longer exists"))

	f = newFixture(t, false, "A")
	require.NoError(t, f.m.BackupTarget(context.Background(), 1, nopProgress{}))
	assert.Equal(t, 1, f.countLogs("Backup for 'A' skipped => not logged in."))
	assert.Zero(t, f.driver.started)
}

func TestAuthFailureStatus(t *testing.T) {
	f := newFixture(t, true, "A")
	f.driver.script("A", automation.ErrAuthRequired)

	require.NoError(t, f.m.BackupTarget(context.Background(), 1, nopProgress{}))
	assert.Equal(t, "Fail: cookies invalid => forced login page", f.status(t, "A"))
	assert.False(t, f.sess.LoggedIn())
}

func TestProbeFlipThenBatchAborts(t *testing.T) {
	f := newFixture(t, true, "A")
	f.driver.authenticated = []bool{false}

	require.NoError(t, f.m.Probe(context.Background(), nopProgress{}))
	assert.False(t, f.sess.LoggedIn())
	assert.Equal(t, 1, f.countLogs("Connectivity check => forced login page."))

	started := f.driver.started
	require.NoError(t, f.m.BatchBackup(context.Background(), nopProgress{}))
	assert.Equal(t, started, f.driver.started, "no browser is started after the flip")
	assert.Equal(t, 1, f.countLogs("Scheduled backup canceled => not logged in."))
}

func TestProbe(t *testing.T) {
	f := newFixture(t, true)
	require.NoError(t, f.m.Probe(context.Background(), nopProgress{}))
	assert.True(t, f.sess.LoggedIn())
	assert.Equal(t, 1, f.countLogs("Connectivity check => success => still logged in."))

	f = newFixture(t, false)
	require.NoError(t, f.m.Probe(context.Background(), nopProgress{}))
	assert.Equal(t, 1, f.countLogs("Connectivity check => not logged in => skip."))
	assert.Zero(t, f.driver.started)
}

func TestProbeDriverErrorInvalidates(t *testing.T) {
	f := newFixture(t, true)
	f.driver.startErr = &automation.DriverError{Op: "start browser", Err: errors.New("chrome crashed")}

	require.NoError(t, f.m.Probe(context.Background(), nopProgress{}))
	assert.False(t, f.sess.LoggedIn())
	assert.Equal(t, 1, f.countLogs("Connectivity check error => start browser: chrome crashed"))
}

func TestLoginSavesCookies(t *testing.T) {
	f := newFixture(t, false)
	f.driver.authenticated = []bool{false, true}
	f.driver.exported = []automation.Cookie{{Name: "TOKEN", Value: "abc", Domain: ".ui.com", Path: "/"}}

	f.m.opts.LoginTimeout = 5 * time.Second
	require.NoError(t, f.m.Login(context.Background(), nopProgress{}))

	assert.True(t, f.sess.LoggedIn())
	assert.Equal(t, 1, f.countLogs("Manual login success, 1 cookies saved."))

	cookies, err := f.jar.Load()
	require.NoError(t, err)
	assert.Equal(t, f.driver.exported, cookies)

	// later operations import the saved session
	require.NoError(t, f.m.Probe(context.Background(), nopProgress{}))
	require.NotEmpty(t, f.driver.imported)
	assert.Equal(t, cookies, f.driver.imported[len(f.driver.imported)-1])
}

func TestLoginTimeout(t *testing.T) {
	f := newFixture(t, false)
	f.driver.authenticated = []bool{false, false, false, false, false}
	f.m.opts.LoginTimeout = 2 * time.Second

	require.NoError(t, f.m.Login(context.Background(), nopProgress{}))
	assert.False(t, f.sess.LoggedIn())
	assert.Equal(t, 1, f.countLogs("Timeout => user never left /login or /mfa => not logged in."))
}

func TestLoginDriverFailure(t *testing.T) {
	f := newFixture(t, false)
	f.driver.startErr = &automation.DriverError{Op: "start browser", Err: errors.New("no display")}

	require.NoError(t, f.m.Login(context.Background(), nopProgress{}))
	assert.False(t, f.sess.LoggedIn())
	assert.Equal(t, 1, f.countLogs("Manual login error: start browser: no display"))
}

func TestLoginDiscardsOldSessionFirst(t *testing.T) {
	f := newFixture(t, true)
	require.NoError(t, f.jar.Save([]automation.Cookie{{Name: "TOKEN", Value: "old"}}))
	f.driver.startErr = &automation.DriverError{Op: "start browser", Err: errors.New("no display")}

	require.NoError(t, f.m.Login(context.Background(), nopProgress{}))

	assert.False(t, f.sess.LoggedIn())
	assert.NoFileExists(t, f.jar.Path())
	assert.Equal(t, 1, f.countLogs("Removed old cookies manually."))
}

func TestResetSession(t *testing.T) {
	f := newFixture(t, true)
	require.NoError(t, f.jar.Save([]automation.Cookie{{Name: "TOKEN", Value: "abc"}}))

	f.m.resetSession()

	assert.False(t, f.sess.LoggedIn())
	assert.NoFileExists(t, f.jar.Path())
	assert.Equal(t, 1, f.countLogs("Removed old cookies manually."))

	f.m.resetSession()
	assert.Equal(t, 1, f.countLogs("Removed old cookies manually."), "nothing left to remove")
}
