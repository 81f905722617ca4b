package client

import (
	"fmt"
	"net"
	"time"

	"github.com/tangthinker/unibackup/internal/ipc"
	"github.com/tangthinker/unibackup/internal/schedule"
	"github.com/tangthinker/unibackup/internal/status"
	"github.com/tangthinker/unibackup/internal/store"
)

const dialTimeout = 5 * time.Second

// Client talks to a running daemon over its unix socket. Each call opens its
// own connection.
type Client struct {
	path string
}

// NewClient checks that a daemon is listening on path.
func NewClient(path string) (*Client, error) {
	conn, err := net.DialTimeout("unix", path, dialTimeout)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to daemon: %w", err)
	}
	conn.Close()
	return &Client{path: path}, nil
}

// SendCommand sends a command to the daemon and returns the response
func (c *Client) SendCommand(cmd *ipc.Command) (*ipc.Response, error) {
	conn, err := net.DialTimeout("unix", c.path, dialTimeout)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to daemon: %w", err)
	}
	defer conn.Close()

	if err := ipc.Write(conn, cmd); err != nil {
		return nil, fmt.Errorf("failed to send command: %w", err)
	}
	return ipc.ReadResponse(conn)
}

func (c *Client) call(cmdType ipc.CommandType, payload, out any) error {
	cmd, err := ipc.NewCommand(cmdType, payload)
	if err != nil {
		return err
	}
	resp, err := c.SendCommand(cmd)
	if err != nil {
		return err
	}
	return resp.Decode(out)
}

func (c *Client) enqueue(cmdType ipc.CommandType, payload any) (ipc.TaskData, error) {
	var t ipc.TaskData
	err := c.call(cmdType, payload, &t)
	return t, err
}

// Login queues a manual login.
func (c *Client) Login() (ipc.TaskData, error) {
	return c.enqueue(ipc.CmdLogin, nil)
}

// Backup queues a single backup of console id.
func (c *Client) Backup(id int) (ipc.TaskData, error) {
	return c.enqueue(ipc.CmdBackup, ipc.TargetPayload{ID: id})
}

// BatchBackup queues the backup of every console.
func (c *Client) BatchBackup() (ipc.TaskData, error) {
	return c.enqueue(ipc.CmdBatch, nil)
}

// Probe queues a connectivity check.
func (c *Client) Probe() (ipc.TaskData, error) {
	return c.enqueue(ipc.CmdProbe, nil)
}

func (c *Client) Status() (status.Snapshot, error) {
	var s status.Snapshot
	err := c.call(ipc.CmdStatus, nil, &s)
	return s, err
}

func (c *Client) Targets() ([]store.Target, error) {
	var ts []store.Target
	err := c.call(ipc.CmdTargetList, nil, &ts)
	return ts, err
}

func (c *Client) AddTarget(name, locator string) (store.Target, error) {
	var t store.Target
	err := c.call(ipc.CmdTargetAdd, ipc.TargetPayload{Name: name, Locator: locator}, &t)
	return t, err
}

func (c *Client) RemoveTarget(id int) error {
	return c.call(ipc.CmdTargetRemove, ipc.TargetPayload{ID: id}, nil)
}

func (c *Client) Schedule() (ipc.ScheduleData, error) {
	var d ipc.ScheduleData
	err := c.call(ipc.CmdScheduleGet, nil, &d)
	return d, err
}

func (c *Client) SetSchedule(cfg schedule.Config) (ipc.ScheduleData, error) {
	var d ipc.ScheduleData
	err := c.call(ipc.CmdScheduleSet, cfg, &d)
	return d, err
}
