package queue

import (
	"context"
	"sync"
	"time"
)

// Queue is an unbounded FIFO of tasks with a single consumer. It also tracks
// the task the consumer is running so producers can detect duplicates.
type Queue struct {
	mu      sync.Mutex
	items   []Task
	running *Task
	status  Status
	notify  chan struct{}
	now     func() time.Time
}

func New() *Queue {
	return &Queue{
		notify: make(chan struct{}, 1),
		now:    time.Now,
	}
}

// Enqueue appends t to the tail and returns immediately.
func (q *Queue) Enqueue(t Task) {
	q.mu.Lock()
	q.push(t)
	q.mu.Unlock()
}

// EnqueueIfAbsent appends t unless a task of the same class is queued or
// running. The check and the append are atomic.
func (q *Queue) EnqueueIfAbsent(t Task) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.hasClass(t.Class) {
		return false
	}
	q.push(t)
	return true
}

// HasPendingOrRunning reports whether a task of class is queued or running.
func (q *Queue) HasPendingOrRunning(class string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.hasClass(class)
}

// Len is the number of queued, not yet started, tasks.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Pending returns the labels of queued tasks in order.
func (q *Queue) Pending() []string {
	q.mu.Lock()
	defer q.mu.Unlock()

	labels := make([]string, len(q.items))
	for i, t := range q.items {
		labels[i] = t.Label
	}
	return labels
}

// Status returns a copy of the current task status.
func (q *Queue) Status() Status {
	q.mu.Lock()
	defer q.mu.Unlock()

	st := q.status
	if st.StartTime != nil {
		ts := *st.StartTime
		st.StartTime = &ts
	}
	return st
}

// SetStep updates the step label of the running task.
func (q *Queue) SetStep(step string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.status.Running {
		q.status.Step = step
	}
}

// mu must be held.
func (q *Queue) push(t Task) {
	if t.Enqueued.IsZero() {
		t.Enqueued = q.now()
	}
	q.items = append(q.items, t)
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// mu must be held.
func (q *Queue) hasClass(class string) bool {
	if q.running != nil && q.running.Class == class {
		return true
	}
	for _, t := range q.items {
		if t.Class == class {
			return true
		}
	}
	return false
}

// next blocks until a task is available, pops it and marks it running.
func (q *Queue) next(ctx context.Context) (Task, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			t := q.items[0]
			q.items[0] = Task{}
			q.items = q.items[1:]

			start := q.now()
			q.running = &t
			q.status = Status{Running: true, TaskID: t.ID, Step: t.Label, StartTime: &start}
			q.mu.Unlock()
			return t, nil
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return Task{}, ctx.Err()
		case <-q.notify:
		}
	}
}

// finish clears the running task.
func (q *Queue) finish() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.running = nil
	q.status = Status{}
}
