package schedule

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tangthinker/unibackup/internal/queue"
)

func TestParseUnit(t *testing.T) {
	tests := []struct {
		in   string
		want Unit
	}{
		{"minute", UnitMinute},
		{"Minutes", UnitMinute},
		{"m", UnitMinute},
		{"hour", UnitHour},
		{" hours ", UnitHour},
		{"day", UnitDay},
		{"DAYS", UnitDay},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseUnit(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ParseUnit("week")
	assert.ErrorIs(t, err, ErrUnknownUnit)
}

func TestUnitDuration(t *testing.T) {
	assert.Equal(t, 15*time.Minute, UnitMinute.Duration(15))
	assert.Equal(t, 6*time.Hour, UnitHour.Duration(6))
	assert.Equal(t, 48*time.Hour, UnitDay.Duration(2))
	assert.Zero(t, Unit(0).Duration(5))
	assert.Equal(t, MaxInterval, UnitDay.Duration(12169727), "large values saturate")
	assert.Equal(t, MaxInterval, UnitDay.Duration(106752))
	assert.Equal(t, 365, UnitDay.MaxValue())
	assert.Equal(t, 8760, UnitHour.MaxValue())
	assert.Equal(t, 525600, UnitMinute.MaxValue())
}

func TestConfigJSON(t *testing.T) {
	raw, err := json.Marshal(DefaultConfig())
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"backup": {"enabled": true, "value": 24, "unit": "hour"},
		"check":  {"enabled": true, "value": 4, "unit": "hour"}
	}`, string(raw))

	var cfg Config
	require.NoError(t, json.Unmarshal([]byte(`{"backup":{"enabled":true,"value":30,"unit":"minutes"}}`), &cfg))
	assert.Equal(t, Job{Enabled: true, Value: 30, Unit: UnitMinute}, cfg.Backup)

	assert.Error(t, json.Unmarshal([]byte(`{"backup":{"unit":"fortnight"}}`), &cfg))
}

func TestNormalize(t *testing.T) {
	cfg := Config{
		Backup: Job{Enabled: true, Value: 5, Unit: UnitMinute},
		Check:  Job{Enabled: true, Value: 0, Unit: Unit(9)},
	}
	warnings := cfg.Normalize()

	assert.Len(t, warnings, 3)
	assert.Equal(t, Job{Enabled: true, Value: 15, Unit: UnitMinute}, cfg.Backup)
	assert.Equal(t, Job{Enabled: true, Value: 1, Unit: UnitHour}, cfg.Check)

	huge := Config{
		Backup: Job{Enabled: true, Value: 12169727, Unit: UnitDay},
		Check:  Job{Enabled: true, Value: 9000, Unit: UnitHour},
	}
	warnings = huge.Normalize()
	require.Len(t, warnings, 2)
	assert.Contains(t, warnings[0], "one year ceiling")
	assert.Equal(t, 365, huge.Backup.Value)
	assert.Equal(t, 8760, huge.Check.Value)
	assert.Equal(t, MaxInterval, huge.Backup.Interval())

	valid := DefaultConfig()
	assert.Empty(t, valid.Normalize())
	assert.Equal(t, DefaultConfig(), valid)
}

type fakeQueue struct {
	mu       sync.Mutex
	tasks    []queue.Task
	occupied map[string]bool
}

func newFakeQueue() *fakeQueue {
	return &fakeQueue{occupied: make(map[string]bool)}
}

func (q *fakeQueue) Enqueue(t queue.Task) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tasks = append(q.tasks, t)
	q.occupied[t.Class] = true
}

func (q *fakeQueue) EnqueueIfAbsent(t queue.Task) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.occupied[t.Class] {
		return false
	}
	q.tasks = append(q.tasks, t)
	q.occupied[t.Class] = true
	return true
}

func (q *fakeQueue) labels() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []string
	for _, t := range q.tasks {
		out = append(out, t.Label)
	}
	return out
}

func testJobs() Jobs {
	return Jobs{
		Backup: func() queue.Task { return queue.NewTask(queue.ClassBatchBackup, "batch", nil) },
		Check:  func() queue.Task { return queue.NewTask(queue.ClassConnectivity, "probe", nil) },
	}
}

func TestFireSkipsDuplicateBackup(t *testing.T) {
	q := newFakeQueue()
	var notes []string
	m := NewManager(q, testJobs(), func(msg string) { notes = append(notes, msg) }, zerolog.Nop())

	m.fire(KindBackup)
	m.fire(KindBackup)
	m.fire(KindCheck)
	m.fire(KindCheck)

	assert.Equal(t, []string{"batch", "probe", "probe"}, q.labels(), "probes are never deduplicated")
	require.Len(t, notes, 1)
	assert.Contains(t, notes[0], "already queued or running")
}

func TestApplyInstallsAndRemovesTriggers(t *testing.T) {
	m := NewManager(newFakeQueue(), testJobs(), nil, zerolog.Nop())

	m.Apply(DefaultConfig())
	assert.True(t, m.Installed(KindBackup))
	assert.True(t, m.Installed(KindCheck))
	assert.Len(t, m.cron.Entries(), 2)

	cfg := DefaultConfig()
	cfg.Check.Enabled = false
	m.Apply(cfg)
	assert.True(t, m.Installed(KindBackup))
	assert.False(t, m.Installed(KindCheck))
	assert.Len(t, m.cron.Entries(), 1, "the old trigger is removed, not duplicated")

	cfg.Backup.Enabled = false
	m.Apply(cfg)
	assert.False(t, m.Installed(KindBackup))
	assert.Empty(t, m.cron.Entries())

	_, ok := m.Next(KindBackup)
	assert.False(t, ok)
}

func TestNextReportsUpcomingBackup(t *testing.T) {
	m := NewManager(newFakeQueue(), testJobs(), nil, zerolog.Nop())
	m.Start()
	defer m.Stop()

	m.Apply(Config{
		Backup: Job{Enabled: true, Value: 2, Unit: UnitHour},
		Check:  Job{Enabled: false, Value: 1, Unit: UnitHour},
	})

	next, ok := m.Next(KindBackup)
	require.True(t, ok)
	assert.WithinDuration(t, time.Now().Add(2*time.Hour), next, 5*time.Second)

	_, ok = m.Next(KindCheck)
	assert.False(t, ok)
}
