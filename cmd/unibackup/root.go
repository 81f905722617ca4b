package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/tangthinker/unibackup/internal/client"
	"github.com/tangthinker/unibackup/internal/config"
)

// set with -ldflags "-X main.version=..."
var version = "dev"

var configPath string

var rootCmd = &cobra.Command{
	Use:           "unibackup",
	Short:         "Scheduled backups of UniFi consoles through a browser session",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show unibackup version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("unibackup version: %s\n", version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default ./unibackup.yaml or ~/.unibackup/unibackup.yaml)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(probeCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(targetCmd)
	rootCmd.AddCommand(scheduleCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

// newLogger builds the process logger from the log section of the config.
func newLogger(cfg config.LogConfig, out io.Writer) (zerolog.Logger, error) {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}
	if level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	if cfg.Format != "json" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.DateTime}
	}
	return zerolog.New(out).Level(level).With().Timestamp().Logger(), nil
}

func dial() (*client.Client, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	c, err := client.NewClient(cfg.SocketPath())
	if err != nil {
		return nil, fmt.Errorf("%w (is `unibackup serve` running?)", err)
	}
	return c, nil
}
