package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/tangthinker/unibackup/internal/automation"
	"github.com/tangthinker/unibackup/internal/backup"
	"github.com/tangthinker/unibackup/internal/config"
	"github.com/tangthinker/unibackup/internal/queue"
	"github.com/tangthinker/unibackup/internal/schedule"
	"github.com/tangthinker/unibackup/internal/session"
	"github.com/tangthinker/unibackup/internal/status"
	"github.com/tangthinker/unibackup/internal/store"
)

// ErrDuplicateTask is returned when a batch backup is already queued or running.
var ErrDuplicateTask = errors.New("a backup job is already queued or running")

// Deps are the collaborators App is assembled from.
type Deps struct {
	Store           *store.Store
	Driver          automation.Driver
	Jar             *automation.CookieJar
	Backup          backup.Options
	InvalidateAfter int
	StatusInterval  time.Duration
}

// App owns the queue, its single worker, the scheduler and the session
// state, and exposes the enqueue API used by the HTTP and socket surfaces.
type App struct {
	store     *store.Store
	session   *session.State
	queue     *queue.Queue
	worker    *queue.Worker
	backup    *backup.Manager
	schedule  *schedule.Manager
	projector *status.Projector
	interval  time.Duration
	logger    zerolog.Logger
}

func New(deps Deps, logger zerolog.Logger) *App {
	a := &App{
		store:    deps.Store,
		queue:    queue.New(),
		interval: deps.StatusInterval,
		logger:   logger.With().Str("component", "app").Logger(),
	}
	if a.interval <= 0 {
		a.interval = time.Second
	}

	a.session = session.New(deps.Store.LoggedIn(), session.NewPolicy(deps.InvalidateAfter), deps.Store, logger)
	a.backup = backup.NewManager(deps.Store, a.session, deps.Driver, deps.Jar, deps.Backup, logger)
	a.worker = queue.NewWorker(a.queue, deps.Driver, logger, queue.WithErrorHandler(func(t queue.Task, err error) {
		a.store.AddLog(fmt.Sprintf("Task '%s' failed: %v", t.Label, err))
	}))
	a.schedule = schedule.NewManager(a.queue, schedule.Jobs{
		Backup: a.batchBackupTask,
		Check:  a.probeTask,
	}, a.store.AddLog, logger)
	a.projector = status.NewProjector(a.queue, a.session, a.store, a.schedule)
	return a
}

// Build assembles the production App from cfg. It fails when the browser
// driver can never be started, since no task could ever succeed.
func Build(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*App, func() error, error) {
	v, err := automation.CheckChromeDriver(ctx, cfg.ChromeDriver.Path, cfg.ChromeDriver.MinVersion)
	if err != nil {
		return nil, nil, err
	}
	logger.Info().Str("chromedriver", v.String()).Msg("browser driver available")

	var backend store.Backend
	switch cfg.Storage.Driver {
	case "json":
		backend = store.NewJSONBackend(cfg.StateFile())
	default:
		backend, err = store.OpenBadger(cfg.BadgerDir())
		if err != nil {
			return nil, nil, err
		}
	}

	st, err := store.Open(backend, logger)
	if err != nil {
		backend.Close()
		return nil, nil, err
	}

	driver := automation.NewSeleniumDriver(automation.SeleniumConfig{
		DriverPath:      cfg.ChromeDriver.Path,
		Port:            cfg.ChromeDriver.Port,
		Headless:        cfg.Browser.Headless,
		HomeURL:         cfg.Controller.URL,
		DownloadDir:     cfg.DownloadDir(),
		BackupDir:       cfg.BackupDir(),
		ElementTimeout:  cfg.Timeouts.Element,
		DownloadTimeout: cfg.Timeouts.Download,
		Settle:          cfg.Timeouts.Settle,
	}, logger)

	a := New(Deps{
		Store:  st,
		Driver: driver,
		Jar:    automation.NewCookieJar(cfg.CookiesFile()),
		Backup: backup.Options{
			HomeURL:      cfg.Controller.URL,
			LoginTimeout: cfg.Timeouts.Login,
			PassDelay:    cfg.Retry.PassDelay,
		},
		InvalidateAfter: cfg.Session.InvalidateAfter,
		StatusInterval:  cfg.Status.Interval,
	}, logger)

	closer := func() error {
		return errors.Join(driver.Close(), st.Close())
	}
	return a, closer, nil
}

// Run installs the schedule and consumes tasks until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	a.schedule.Apply(a.store.Schedule())
	a.schedule.Start()
	defer func() {
		<-a.schedule.Stop().Done()
	}()

	err := a.worker.Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (a *App) loginTask() queue.Task {
	return queue.NewTask(queue.ClassLogin, "Manual login", a.backup.Login)
}

func (a *App) batchBackupTask() queue.Task {
	return queue.NewTask(queue.ClassBatchBackup, "Backup all consoles", a.backup.BatchBackup)
}

func (a *App) probeTask() queue.Task {
	return queue.NewTask(queue.ClassConnectivity, "Connectivity check", a.backup.Probe)
}

func (a *App) backupTask(t store.Target) queue.Task {
	id := t.ID
	return queue.NewTask(queue.ClassBackup, fmt.Sprintf("Backup for '%s'", t.Name), func(ctx context.Context, p queue.Progress) error {
		return a.backup.BackupTarget(ctx, id, p)
	})
}
