package session

import (
	"sync"

	"github.com/rs/zerolog"
)

// Persister durably records the logged-in flag.
type Persister interface {
	SaveLoggedIn(loggedIn bool) error
}

// State is the belief that the stored session reaches the controller without
// re-authentication. It starts logged out unless the persisted flag says
// otherwise.
type State struct {
	mu       sync.RWMutex
	loggedIn bool
	policy   Policy
	persist  Persister
	logger   zerolog.Logger
}

func New(loggedIn bool, policy Policy, persist Persister, logger zerolog.Logger) *State {
	if policy == nil {
		policy = &Immediate{}
	}
	return &State{
		loggedIn: loggedIn,
		policy:   policy,
		persist:  persist,
		logger:   logger.With().Str("component", "session").Logger(),
	}
}

func (s *State) LoggedIn() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loggedIn
}

// Suspect reports a logged-in session with unconfirmed bad evidence.
func (s *State) Suspect() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loggedIn && s.policy.Pending() > 0
}

// LoginSucceeded records that a login reached the authenticated surface.
func (s *State) LoginSucceeded() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.policy.Reset()
	s.set(true)
}

// Valid records an operation that used the session successfully.
func (s *State) Valid() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.policy.Succeed()
}

// Invalid records an authentication redirect or unrecoverable driver error.
// It reports whether the state flipped to logged out.
func (s *State) Invalid(reason string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.loggedIn {
		return false
	}
	if !s.policy.Fail() {
		s.logger.Warn().Str("reason", reason).Int("pending", s.policy.Pending()).Msg("session evidence recorded")
		return false
	}
	s.logger.Warn().Str("reason", reason).Msg("session invalidated")
	s.set(false)
	return true
}

// Logout discards all evidence and marks the session logged out.
func (s *State) Logout() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.policy.Reset()
	s.set(false)
}

// set must be called with mu held.
func (s *State) set(loggedIn bool) {
	s.loggedIn = loggedIn
	if s.persist == nil {
		return
	}
	if err := s.persist.SaveLoggedIn(loggedIn); err != nil {
		s.logger.Error().Err(err).Bool("logged_in", loggedIn).Msg("failed to persist session flag")
	}
}
