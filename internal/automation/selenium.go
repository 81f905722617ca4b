package automation

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/tebeka/selenium"
	"github.com/tebeka/selenium/chrome"
)

const (
	xpathDownload      = "//button[@name='backupDownload']"
	xpathDownloadPopup = "//button[@name='backupDownload' and contains(@class, 'css-network-qhqpn7')]"
)

// SeleniumConfig configures the ChromeDriver-backed Driver.
type SeleniumConfig struct {
	DriverPath      string
	Port            int
	Headless        bool
	HomeURL         string
	DownloadDir     string
	BackupDir       string
	ElementTimeout  time.Duration
	DownloadTimeout time.Duration
	Settle          time.Duration
}

// SeleniumDriver starts one shared ChromeDriver service and opens Chrome
// sessions against it.
type SeleniumDriver struct {
	cfg    SeleniumConfig
	logger zerolog.Logger

	mu       sync.Mutex
	service  *selenium.Service
	browsers map[*seleniumBrowser]struct{}
}

func NewSeleniumDriver(cfg SeleniumConfig, logger zerolog.Logger) *SeleniumDriver {
	if cfg.Port == 0 {
		cfg.Port = 9515
	}
	return &SeleniumDriver{
		cfg:      cfg,
		logger:   logger.With().Str("component", "selenium").Logger(),
		browsers: make(map[*seleniumBrowser]struct{}),
	}
}

// FindChromeDriver looks up chromedriver in PATH and the usual install locations.
func FindChromeDriver() string {
	if path, err := exec.LookPath("chromedriver"); err == nil {
		return path
	}

	paths := []string{
		"/usr/local/bin/chromedriver",
		"/opt/homebrew/bin/chromedriver",
		"/usr/bin/chromedriver",
		"/usr/lib/chromium/chromedriver",
	}
	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

func (d *SeleniumDriver) ensureService() error {
	if d.service != nil {
		return nil
	}
	path := d.cfg.DriverPath
	if path == "" {
		path = FindChromeDriver()
	}
	if path == "" {
		return errors.New("chromedriver not found")
	}

	service, err := selenium.NewChromeDriverService(path, d.cfg.Port)
	if err != nil {
		return fmt.Errorf("failed to start chromedriver: %w", err)
	}
	d.service = service
	d.logger.Debug().Str("path", path).Int("port", d.cfg.Port).Msg("chromedriver service started")
	return nil
}

func (d *SeleniumDriver) Start(ctx context.Context) (Browser, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := os.MkdirAll(d.cfg.DownloadDir, 0755); err != nil {
		return nil, driverErr("prepare download dir", err)
	}
	if err := d.ensureService(); err != nil {
		return nil, driverErr("start service", err)
	}

	args := []string{
		"--disable-gpu",
		"--start-maximized",
		"--no-sandbox",
		"--disable-dev-shm-usage",
	}
	if d.cfg.Headless {
		args = append(args, "--headless=new")
	}

	caps := selenium.Capabilities{"browserName": "chrome"}
	caps.AddChrome(chrome.Capabilities{
		Args: args,
		Prefs: map[string]interface{}{
			"download.default_directory":   d.cfg.DownloadDir,
			"download.prompt_for_download": false,
			"download.directory_upgrade":   true,
		},
	})

	wd, err := selenium.NewRemote(caps, fmt.Sprintf("http://localhost:%d", d.cfg.Port))
	if err != nil {
		// the service may have died; start a fresh one next time
		d.service.Stop()
		d.service = nil
		return nil, driverErr("new session", err)
	}

	b := &seleniumBrowser{wd: wd, driver: d}
	d.browsers[b] = struct{}{}
	return b, nil
}

// Cleanup quits sessions that were never closed and removes partial downloads.
func (d *SeleniumDriver) Cleanup() error {
	d.mu.Lock()
	leaked := make([]*seleniumBrowser, 0, len(d.browsers))
	for b := range d.browsers {
		leaked = append(leaked, b)
	}
	d.mu.Unlock()

	for _, b := range leaked {
		d.logger.Warn().Msg("quitting leaked browser session")
		b.Close()
	}

	if d.cfg.DownloadDir == "" {
		return nil
	}
	removed, err := removePartialDownloads(d.cfg.DownloadDir)
	if err != nil {
		return err
	}
	if removed > 0 {
		d.logger.Info().Int("files", removed).Msg("removed partial downloads")
	}
	return nil
}

// Close quits every session and stops the ChromeDriver service.
func (d *SeleniumDriver) Close() error {
	err := d.Cleanup()

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.service != nil {
		if stopErr := d.service.Stop(); stopErr != nil && err == nil {
			err = stopErr
		}
		d.service = nil
	}
	return err
}

func (d *SeleniumDriver) forget(b *seleniumBrowser) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.browsers, b)
}

type seleniumBrowser struct {
	wd     selenium.WebDriver
	driver *SeleniumDriver
	once   sync.Once
}

func (b *seleniumBrowser) cfg() SeleniumConfig {
	return b.driver.cfg
}

func (b *seleniumBrowser) Open(ctx context.Context, url string) error {
	if err := b.wd.Get(url); err != nil {
		return driverErr("open "+url, err)
	}
	return Sleep(ctx, b.cfg().Settle)
}

func (b *seleniumBrowser) Authenticated(ctx context.Context) (bool, error) {
	url, err := b.wd.CurrentURL()
	if err != nil {
		return false, driverErr("current url", err)
	}
	return !IsAuthSurface(url), nil
}

func (b *seleniumBrowser) ExportSession(ctx context.Context) ([]Cookie, error) {
	raw, err := b.wd.GetCookies()
	if err != nil {
		return nil, driverErr("export cookies", err)
	}
	cookies := make([]Cookie, 0, len(raw))
	for _, c := range raw {
		cookies = append(cookies, Cookie{
			Name:   c.Name,
			Value:  c.Value,
			Domain: c.Domain,
			Path:   c.Path,
			Secure: c.Secure,
			Expiry: c.Expiry,
		})
	}
	return cookies, nil
}

// ImportSession opens the controller home so cookies land on the right
// domain, then adds them. Cookies the browser rejects are skipped.
func (b *seleniumBrowser) ImportSession(ctx context.Context, cookies []Cookie) error {
	if err := b.Open(ctx, b.cfg().HomeURL); err != nil {
		return err
	}
	for _, c := range cookies {
		if err := b.wd.AddCookie(&selenium.Cookie{
			Name:   c.Name,
			Value:  c.Value,
			Domain: c.Domain,
			Path:   c.Path,
			Secure: c.Secure,
			Expiry: c.Expiry,
		}); err != nil {
			b.driver.logger.Debug().Str("cookie", c.Name).Err(err).Msg("cookie rejected")
		}
	}
	return nil
}

func (b *seleniumBrowser) ExecuteBackup(ctx context.Context, name, locator string) (*Artifact, error) {
	if err := b.Open(ctx, locator); err != nil {
		return nil, err
	}
	ok, err := b.Authenticated(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrAuthRequired
	}

	before, err := downloadSnapshot(b.cfg().DownloadDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read download dir: %w", err)
	}
	if len(before) > 0 {
		b.driver.logger.Debug().Int("files", len(before)).Msg("ignoring artifacts left in the download dir")
	}

	if err := b.click(ctx, xpathDownload); err != nil {
		return nil, err
	}
	if err := Sleep(ctx, b.cfg().Settle); err != nil {
		return nil, err
	}
	if err := b.click(ctx, xpathDownloadPopup); err != nil {
		return nil, err
	}

	var found string
	err = PollFor(b.cfg().DownloadTimeout, time.Second).Until(ctx, func(context.Context) (bool, error) {
		f, ok, err := newestArtifact(b.cfg().DownloadDir, before)
		if err != nil {
			return false, err
		}
		found = f
		return ok, nil
	})
	if errors.Is(err, ErrPollTimeout) {
		return nil, fmt.Errorf("%w: no .unf or .tar.gz found after %s", ErrArtifactNotFound, b.cfg().DownloadTimeout)
	}
	if err != nil {
		return nil, driverErr("wait for download", err)
	}

	return fileArtifact(filepath.Join(b.cfg().DownloadDir, found), b.cfg().BackupDir, name, time.Now())
}

// click waits for the element to be displayed and enabled, then clicks it.
func (b *seleniumBrowser) click(ctx context.Context, xpath string) error {
	var el selenium.WebElement
	err := PollFor(b.cfg().ElementTimeout, 500*time.Millisecond).Until(ctx, func(context.Context) (bool, error) {
		e, err := b.wd.FindElement(selenium.ByXPATH, xpath)
		if err != nil {
			return false, nil
		}
		displayed, _ := e.IsDisplayed()
		enabled, _ := e.IsEnabled()
		if displayed && enabled {
			el = e
			return true, nil
		}
		return false, nil
	})
	if err != nil {
		return driverErr("wait for "+xpath, err)
	}
	return driverErr("click "+xpath, el.Click())
}

func (b *seleniumBrowser) Close() error {
	var err error
	b.once.Do(func() {
		err = b.wd.Quit()
		b.driver.forget(b)
	})
	return err
}
