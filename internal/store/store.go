package store

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tangthinker/unibackup/internal/schedule"
)

var (
	ErrTargetNotFound = errors.New("target not found")
	ErrInvalidTarget  = errors.New("name and backup URL are required")
)

// Backend persists Data between restarts.
type Backend interface {
	// Load returns found=false when nothing was persisted yet.
	Load() (data Data, found bool, err error)
	Save(data Data) error
	Close() error
}

// Store is the process-wide record of targets, session flag, schedule and logs.
// The worker is its only writer for target status and the session flag; every
// read returns a copy.
type Store struct {
	mu      sync.RWMutex
	data    Data
	backend Backend
	logger  zerolog.Logger
	now     func() time.Time
}

// Open loads the persisted state from backend, creating defaults on first run.
func Open(backend Backend, logger zerolog.Logger) (*Store, error) {
	s := &Store{
		backend: backend,
		logger:  logger.With().Str("component", "store").Logger(),
		now:     time.Now,
	}

	data, found, err := backend.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load state: %w", err)
	}
	if !found {
		s.data = defaultData()
		return s, s.save()
	}

	if data.NextID < 1 {
		data.NextID = 1
	}
	for _, t := range data.Targets {
		if t.ID >= data.NextID {
			data.NextID = t.ID + 1
		}
	}
	if data.Targets == nil {
		data.Targets = []Target{}
	}
	if len(data.Logs) > MaxLogEntries {
		data.Logs = data.Logs[len(data.Logs)-MaxLogEntries:]
	}
	if data.Schedule == (schedule.Config{}) {
		data.Schedule = schedule.DefaultConfig()
	}
	for _, w := range data.Schedule.Normalize() {
		s.logger.Warn().Msg(w)
	}
	s.data = data
	return s, nil
}

// Close releases the backend.
func (s *Store) Close() error {
	return s.backend.Close()
}

// save must be called with mu held.
func (s *Store) save() error {
	if err := s.backend.Save(s.data); err != nil {
		s.logger.Error().Err(err).Msg("failed to persist state")
		return err
	}
	return nil
}

// Targets returns the targets in stored order.
func (s *Store) Targets() []Target {
	s.mu.RLock()
	defer s.mu.RUnlock()

	targets := make([]Target, len(s.data.Targets))
	for i, t := range s.data.Targets {
		targets[i] = t.clone()
	}
	return targets
}

// Target returns the target with id.
func (s *Store) Target(id int) (Target, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, t := range s.data.Targets {
		if t.ID == id {
			return t.clone(), nil
		}
	}
	return Target{}, fmt.Errorf("%w: %d", ErrTargetNotFound, id)
}

// AddTarget appends a target and assigns it the next id.
func (s *Store) AddTarget(name, locator string) (Target, error) {
	name = strings.TrimSpace(name)
	locator = strings.TrimSpace(locator)
	if name == "" || locator == "" {
		return Target{}, ErrInvalidTarget
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t := Target{
		ID:      s.data.NextID,
		Name:    name,
		Locator: locator,
		Status:  StatusUnknown,
	}
	s.data.NextID++
	s.data.Targets = append(s.data.Targets, t)
	return t, s.save()
}

// RemoveTarget deletes the target with id.
func (s *Store) RemoveTarget(id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, t := range s.data.Targets {
		if t.ID == id {
			s.data.Targets = append(s.data.Targets[:i], s.data.Targets[i+1:]...)
			return s.save()
		}
	}
	return fmt.Errorf("%w: %d", ErrTargetNotFound, id)
}

// RecordAttempt stores the outcome of a backup attempt. A nil lastTime keeps
// the previous successful timestamp.
func (s *Store) RecordAttempt(id int, status string, lastTime *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.data.Targets {
		if s.data.Targets[i].ID != id {
			continue
		}
		s.data.Targets[i].Status = status
		if lastTime != nil {
			ts := lastTime.UTC()
			s.data.Targets[i].LastTime = &ts
		}
		return s.save()
	}
	return fmt.Errorf("%w: %d", ErrTargetNotFound, id)
}

// AddLog appends a user-visible log entry, dropping the oldest beyond MaxLogEntries.
func (s *Store) AddLog(msg string) {
	s.logger.Info().Msg(msg)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.data.Logs = append(s.data.Logs, LogEntry{Timestamp: s.now().UTC(), Message: msg})
	if over := len(s.data.Logs) - MaxLogEntries; over > 0 {
		s.data.Logs = append([]LogEntry(nil), s.data.Logs[over:]...)
	}
	// a log line must never fail its caller; save already reports the error
	s.save()
}

// Logs returns the most recent entries, newest first.
func (s *Store) Logs() []LogEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	logs := make([]LogEntry, len(s.data.Logs))
	for i, e := range s.data.Logs {
		logs[len(logs)-1-i] = e
	}
	return logs
}

func (s *Store) LoggedIn() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.LoggedIn
}

// SaveLoggedIn persists the session flag.
func (s *Store) SaveLoggedIn(loggedIn bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.data.LoggedIn == loggedIn {
		return nil
	}
	s.data.LoggedIn = loggedIn
	return s.save()
}

func (s *Store) Schedule() schedule.Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.Schedule
}

// SetSchedule normalizes cfg, stores it and returns the clamping warnings.
func (s *Store) SetSchedule(cfg schedule.Config) (schedule.Config, []string, error) {
	warnings := cfg.Normalize()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.data.Schedule = cfg
	return cfg, warnings, s.save()
}
