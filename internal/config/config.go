package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. UNIBACKUP_HTTP_ADDR.
const EnvPrefix = "UNIBACKUP"

// Config is the daemon configuration.
type Config struct {
	DataDir      string             `mapstructure:"data_dir"`
	Socket       string             `mapstructure:"socket"`
	HTTP         HTTPConfig         `mapstructure:"http"`
	Controller   ControllerConfig   `mapstructure:"controller"`
	ChromeDriver ChromeDriverConfig `mapstructure:"chromedriver"`
	Browser      BrowserConfig      `mapstructure:"browser"`
	Timeouts     TimeoutsConfig     `mapstructure:"timeouts"`
	Retry        RetryConfig        `mapstructure:"retry"`
	Status       StatusConfig       `mapstructure:"status"`
	Session      SessionConfig      `mapstructure:"session"`
	Storage      StorageConfig      `mapstructure:"storage"`
	Log          LogConfig          `mapstructure:"log"`
}

type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
}

type ControllerConfig struct {
	URL string `mapstructure:"url"`
}

type ChromeDriverConfig struct {
	Path       string `mapstructure:"path"`
	Port       int    `mapstructure:"port"`
	MinVersion string `mapstructure:"min_version"`
}

type BrowserConfig struct {
	Headless bool `mapstructure:"headless"`
}

type TimeoutsConfig struct {
	Login    time.Duration `mapstructure:"login"`
	Download time.Duration `mapstructure:"download"`
	Element  time.Duration `mapstructure:"element"`
	Settle   time.Duration `mapstructure:"settle"`
}

type RetryConfig struct {
	PassDelay time.Duration `mapstructure:"pass_delay"`
}

type StatusConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

type SessionConfig struct {
	// InvalidateAfter is how many consecutive bad observations log the
	// session out. 1 flips on the first one.
	InvalidateAfter int `mapstructure:"invalidate_after"`
}

type StorageConfig struct {
	Driver string `mapstructure:"driver"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DefaultDataDir is $HOME/.unibackup, or ./unibackup_data without a home.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return "unibackup_data"
	}
	return filepath.Join(home, ".unibackup")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("data_dir", DefaultDataDir())
	v.SetDefault("socket", "")
	v.SetDefault("http.addr", ":5000")
	v.SetDefault("controller.url", "https://unifi.ui.com/")
	v.SetDefault("chromedriver.path", "")
	v.SetDefault("chromedriver.port", 9515)
	v.SetDefault("chromedriver.min_version", "100.0")
	v.SetDefault("browser.headless", false)
	v.SetDefault("timeouts.login", "120s")
	v.SetDefault("timeouts.download", "60s")
	v.SetDefault("timeouts.element", "30s")
	v.SetDefault("timeouts.settle", "3s")
	v.SetDefault("retry.pass_delay", "10s")
	v.SetDefault("status.interval", "1s")
	v.SetDefault("session.invalidate_after", 1)
	v.SetDefault("storage.driver", "badger")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the configuration. An empty path searches ./unibackup.yaml and
// $HOME/.unibackup/unibackup.yaml; a missing file is not an error.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := newViper()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("unibackup")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath(DefaultDataDir())
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the values the daemon cannot run without.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return errors.New("data_dir is required")
	}
	switch c.Storage.Driver {
	case "badger", "json":
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	return nil
}

// WriteDefault writes the default configuration as YAML to path.
func WriteDefault(path string) error {
	v := viper.New()
	setDefaults(v)

	data, err := yaml.Marshal(v.AllSettings())
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func (c *Config) SocketPath() string {
	if c.Socket != "" {
		return c.Socket
	}
	return filepath.Join(c.DataDir, "unibackup.sock")
}

func (c *Config) PIDFile() string     { return filepath.Join(c.DataDir, "unibackup.pid") }
func (c *Config) StateFile() string   { return filepath.Join(c.DataDir, "appdata.json") }
func (c *Config) BadgerDir() string   { return filepath.Join(c.DataDir, "state") }
func (c *Config) CookiesFile() string { return filepath.Join(c.DataDir, "cookies.json") }
func (c *Config) DownloadDir() string { return filepath.Join(c.DataDir, "chrome_downloads") }
func (c *Config) BackupDir() string   { return filepath.Join(c.DataDir, "backups") }
