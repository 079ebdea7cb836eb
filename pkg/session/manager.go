package session

import (
	"errors"
	"sync"

	"github.com/google/uuid"
)

var ErrSessionNotFound = errors.New("session not found")

// Manager keeps sessions in memory, keyed by a random ID.
type Manager struct {
	deps     *Deps
	opts     Options
	defaults Settings

	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewManager(deps *Deps, opts Options, defaults Settings) (*Manager, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	if err := defaults.Validate(); err != nil {
		return nil, err
	}
	return &Manager{
		deps:     deps,
		opts:     opts,
		defaults: defaults,
		sessions: make(map[string]*Session),
	}, nil
}

func (m *Manager) Defaults() Settings {
	return m.defaults
}

// Create starts a session with the default settings.
func (m *Manager) Create() (*Session, error) {
	s, err := New(uuid.NewString(), m.deps, m.opts, m.defaults)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.sessions[s.ID()] = s
	m.mu.Unlock()
	return s, nil
}

func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if !ok {
		return ErrSessionNotFound
	}
	return s.Close()
}

func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Close closes every session.
func (m *Manager) Close() error {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	var errs []error
	for _, s := range sessions {
		errs = append(errs, s.Close())
	}
	return errors.Join(errs...)
}
