package daemon

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/tangthinker/unibackup/internal/ipc"
	"github.com/tangthinker/unibackup/internal/queue"
	"github.com/tangthinker/unibackup/internal/schedule"
	"github.com/tangthinker/unibackup/internal/status"
	"github.com/tangthinker/unibackup/internal/store"
)

const connTimeout = 10 * time.Second

// Service is what the socket commands are dispatched to.
type Service interface {
	EnqueueManualLogin() queue.Task
	EnqueueBackup(id int) (queue.Task, error)
	EnqueueBatchBackup() (queue.Task, error)
	EnqueueConnectivityProbe() queue.Task
	Targets() []store.Target
	AddTarget(name, locator string) (store.Target, error)
	RemoveTarget(id int) error
	Schedule() schedule.Config
	UpdateSchedule(cfg schedule.Config) (schedule.Config, []string, error)
	Snapshot() status.Snapshot
}

type Server struct {
	path     string
	listener net.Listener
	svc      Service
	logger   zerolog.Logger
}

// NewServer creates a new Unix domain socket server at path
func NewServer(path string, svc Service, logger zerolog.Logger) (*Server, error) {
	// Remove existing socket file if it exists
	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("failed to remove existing socket: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create socket directory: %w", err)
	}

	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("failed to create socket: %w", err)
	}

	if err := os.Chmod(path, 0600); err != nil {
		listener.Close()
		return nil, fmt.Errorf("failed to set socket permissions: %w", err)
	}

	return &Server{
		path:     path,
		listener: listener,
		svc:      svc,
		logger:   logger.With().Str("component", "daemon").Logger(),
	}, nil
}

// Start handles incoming connections until the server is closed.
func (s *Server) Start() error {
	for {
		conn, err := s.listener.Accept()
		if errors.Is(err, net.ErrClosed) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to accept connection: %w", err)
		}
		go s.handleConnection(conn)
	}
}

// Close closes the server
func (s *Server) Close() error {
	if err := s.listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		return fmt.Errorf("failed to close listener: %w", err)
	}
	return os.RemoveAll(s.path)
}

func (s *Server) handleConnection(conn net.Conn) {
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(connTimeout))

	cmd, err := ipc.ReadCommand(conn)
	if err != nil {
		s.reply(conn, ipc.NewResponse(nil, fmt.Errorf("invalid command: %w", err)))
		return
	}

	s.logger.Debug().Str("command", string(cmd.Type)).Msg("received command")
	s.reply(conn, s.Dispatch(cmd))
}

// Dispatch executes cmd against the service.
func (s *Server) Dispatch(cmd *ipc.Command) *ipc.Response {
	switch cmd.Type {
	case ipc.CmdLogin:
		return taskResponse(s.svc.EnqueueManualLogin(), nil)
	case ipc.CmdBatch:
		return taskResponse(s.svc.EnqueueBatchBackup())
	case ipc.CmdProbe:
		return taskResponse(s.svc.EnqueueConnectivityProbe(), nil)
	case ipc.CmdBackup:
		var p ipc.TargetPayload
		if err := cmd.Decode(&p); err != nil {
			return ipc.NewResponse(nil, err)
		}
		return taskResponse(s.svc.EnqueueBackup(p.ID))
	case ipc.CmdStatus:
		return ipc.NewResponse(s.svc.Snapshot(), nil)
	case ipc.CmdTargetList:
		return ipc.NewResponse(s.svc.Targets(), nil)
	case ipc.CmdTargetAdd:
		var p ipc.TargetPayload
		if err := cmd.Decode(&p); err != nil {
			return ipc.NewResponse(nil, err)
		}
		return ipc.NewResponse(s.svc.AddTarget(p.Name, p.Locator))
	case ipc.CmdTargetRemove:
		var p ipc.TargetPayload
		if err := cmd.Decode(&p); err != nil {
			return ipc.NewResponse(nil, err)
		}
		return ipc.NewResponse(nil, s.svc.RemoveTarget(p.ID))
	case ipc.CmdScheduleGet:
		return ipc.NewResponse(ipc.ScheduleData{Schedule: s.svc.Schedule()}, nil)
	case ipc.CmdScheduleSet:
		cfg := s.svc.Schedule()
		if err := cmd.Decode(&cfg); err != nil {
			return ipc.NewResponse(nil, err)
		}
		cfg, warnings, err := s.svc.UpdateSchedule(cfg)
		if err != nil {
			return ipc.NewResponse(nil, err)
		}
		return ipc.NewResponse(ipc.ScheduleData{Schedule: cfg, Warnings: warnings}, nil)
	default:
		return ipc.NewResponse(nil, fmt.Errorf("unknown command type: %s", cmd.Type))
	}
}

func (s *Server) reply(conn net.Conn, resp *ipc.Response) {
	if err := ipc.Write(conn, resp); err != nil {
		s.logger.Warn().Err(err).Msg("failed to send response")
	}
}

func taskResponse(t queue.Task, err error) *ipc.Response {
	if err != nil {
		return ipc.NewResponse(nil, err)
	}
	return ipc.NewResponse(ipc.TaskData{TaskID: t.ID, Label: t.Label}, nil)
}
