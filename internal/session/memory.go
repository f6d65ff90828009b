package session

import (
	"context"
	"sync"

	"github.com/relayguard/relayguard/internal/model"
)

// Memory is an in-process Oracle keyed by session id. Used by tests and the
// offline check command; state is always explicit per session, never ambient.
type Memory struct {
	mu       sync.RWMutex
	sessions map[string]*model.SessionStatus
}

// NewMemory creates an empty in-memory oracle.
func NewMemory() *Memory {
	return &Memory{sessions: make(map[string]*model.SessionStatus)}
}

// Set stores a snapshot for a session id.
func (m *Memory) Set(sessionID string, st *model.SessionStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[sessionID] = st
}

// SessionStatus returns the stored snapshot, or (nil, nil) for unknown ids.
func (m *Memory) SessionStatus(ctx context.Context, sessionID string) (*model.SessionStatus, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.sessions[sessionID]
	if !ok {
		return nil, nil
	}
	copied := *st
	return &copied, nil
}
