package queue

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Task classes used for duplicate detection.
const (
	ClassLogin        = "login"
	ClassBackup       = "backup"
	ClassBatchBackup  = "batch-backup"
	ClassConnectivity = "connectivity"
)

// Op is the operation a task runs. It receives a Progress to publish its
// current step.
type Op func(ctx context.Context, p Progress) error

// Task is one unit of work on the queue. Tasks are never persisted.
type Task struct {
	ID       string
	Label    string
	Class    string
	Op       Op
	Enqueued time.Time
}

// NewTask builds a task with a fresh id.
func NewTask(class, label string, op Op) Task {
	return Task{
		ID:    uuid.New().String(),
		Label: label,
		Class: class,
		Op:    op,
	}
}

// Progress receives step updates from a running task.
type Progress interface {
	SetStep(step string)
}

// Status describes the task currently held by the worker.
type Status struct {
	Running   bool       `json:"running"`
	TaskID    string     `json:"task_id,omitempty"`
	Step      string     `json:"step"`
	StartTime *time.Time `json:"start_time"`
}
