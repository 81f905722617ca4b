package ipc

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/tangthinker/unibackup/internal/schedule"
)

// CommandType names a request the daemon understands.
type CommandType string

const (
	CmdLogin        CommandType = "LOGIN"
	CmdBackup       CommandType = "BACKUP"
	CmdBatch        CommandType = "BATCH"
	CmdProbe        CommandType = "PROBE"
	CmdStatus       CommandType = "STATUS"
	CmdTargetList   CommandType = "TARGET_LIST"
	CmdTargetAdd    CommandType = "TARGET_ADD"
	CmdTargetRemove CommandType = "TARGET_REMOVE"
	CmdScheduleGet  CommandType = "SCHEDULE_GET"
	CmdScheduleSet  CommandType = "SCHEDULE_SET"
)

// Command represents a command sent from CLI to daemon
type Command struct {
	Type    CommandType     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Response represents a response sent from daemon to CLI
type Response struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// TargetPayload selects or describes a console.
type TargetPayload struct {
	ID      int    `json:"id,omitempty"`
	Name    string `json:"name,omitempty"`
	Locator string `json:"backup_url,omitempty"`
}

// TaskData acknowledges an enqueued task.
type TaskData struct {
	TaskID string `json:"task_id"`
	Label  string `json:"label"`
}

// ScheduleData carries the trigger configuration and any clamping warnings.
type ScheduleData struct {
	Schedule schedule.Config `json:"schedule"`
	Warnings []string        `json:"warnings,omitempty"`
}

// NewCommand creates a command, encoding payload when it is not nil.
func NewCommand(cmdType CommandType, payload any) (*Command, error) {
	cmd := &Command{Type: cmdType}
	if payload == nil {
		return cmd, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s payload: %w", cmdType, err)
	}
	cmd.Payload = raw
	return cmd, nil
}

// Decode unmarshals the payload into v.
func (c *Command) Decode(v any) error {
	if len(c.Payload) == 0 {
		return fmt.Errorf("%s requires a payload", c.Type)
	}
	if err := json.Unmarshal(c.Payload, v); err != nil {
		return fmt.Errorf("invalid %s payload: %w", c.Type, err)
	}
	return nil
}

// NewResponse creates a response. A non-nil err marks it failed.
func NewResponse(data any, err error) *Response {
	if err != nil {
		return &Response{Error: err.Error()}
	}
	resp := &Response{Success: true}
	if data != nil {
		raw, mErr := json.Marshal(data)
		if mErr != nil {
			return &Response{Error: fmt.Sprintf("failed to encode response: %v", mErr)}
		}
		resp.Data = raw
	}
	return resp
}

// Decode unmarshals the response data into v. A failed response is
// returned as an error.
func (r *Response) Decode(v any) error {
	if !r.Success {
		return fmt.Errorf("%s", r.Error)
	}
	if v == nil || len(r.Data) == 0 {
		return nil
	}
	return json.Unmarshal(r.Data, v)
}

// Write sends one JSON message on w.
func Write(w io.Writer, v any) error {
	return json.NewEncoder(w).Encode(v)
}

// ReadCommand reads one command from r.
func ReadCommand(r io.Reader) (*Command, error) {
	var cmd Command
	if err := json.NewDecoder(r).Decode(&cmd); err != nil {
		return nil, fmt.Errorf("failed to unmarshal command: %w", err)
	}
	return &cmd, nil
}

// ReadResponse reads one response from r.
func ReadResponse(r io.Reader) (*Response, error) {
	var resp Response
	if err := json.NewDecoder(r).Decode(&resp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return &resp, nil
}
