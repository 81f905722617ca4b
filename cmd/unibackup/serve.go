package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/tangthinker/unibackup/internal/api"
	"github.com/tangthinker/unibackup/internal/app"
	"github.com/tangthinker/unibackup/internal/config"
	"github.com/tangthinker/unibackup/internal/daemon"
)

const shutdownTimeout = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the backup daemon",
	Long:  "Run the task worker, the scheduler, the HTTP API and the control socket until interrupted.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		logger, err := newLogger(cfg.Log, os.Stderr)
		if err != nil {
			return err
		}
		log.Logger = logger
		return serve(cfg, logger)
	},
}

func serve(cfg *config.Config, logger zerolog.Logger) error {
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}

	pidFile := cfg.PIDFile()
	if checkRunningDaemon(pidFile) {
		return errors.New("unibackup daemon is already running")
	}
	if err := createPIDFile(pidFile); err != nil {
		return fmt.Errorf("failed to create PID file: %w", err)
	}
	defer os.Remove(pidFile)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, closeApp, err := app.Build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeApp(); err != nil {
			logger.Warn().Err(err).Msg("shutdown cleanup failed")
		}
	}()

	server, err := daemon.NewServer(cfg.SocketPath(), a, logger)
	if err != nil {
		return err
	}
	defer server.Close()

	go func() {
		if err := server.Start(); err != nil {
			logger.Error().Err(err).Msg("control socket failed")
			stop()
		}
	}()

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), api.RequestLogger(logger))
	api.RegisterHandlers(r, a)

	httpServer := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("http server failed")
			stop()
		}
	}()

	logger.Info().
		Str("http", cfg.HTTP.Addr).
		Str("socket", cfg.SocketPath()).
		Str("data_dir", cfg.DataDir).
		Msg("unibackup daemon started")

	runErr := a.Run(ctx)

	logger.Info().Msg("shutting down unibackup")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("http shutdown failed")
	}
	return runErr
}

// checkRunningDaemon reports whether the process recorded in pidFile is
// alive. A stale file is removed.
func checkRunningDaemon(pidFile string) bool {
	output, err := os.ReadFile(pidFile)
	if err != nil {
		return false
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(output)))
	if err != nil || pid <= 0 {
		os.Remove(pidFile)
		return false
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		os.Remove(pidFile)
		return false
	}

	// signal 0 only checks that the process exists
	if err := process.Signal(syscall.Signal(0)); err != nil {
		os.Remove(pidFile)
		return false
	}
	return true
}

func createPIDFile(pidFile string) error {
	return os.WriteFile(pidFile, []byte(strconv.Itoa(os.Getpid())), 0644)
}
