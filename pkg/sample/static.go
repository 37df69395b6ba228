package sample

import (
	"context"
	"sync"
)

// Static is an in-memory StateSource. States are set explicitly.
type Static struct {
	mu     sync.Mutex
	states map[string]string
}

// NewStatic creates a Static source seeded with states.
func NewStatic(states map[string]string) *Static {
	s := &Static{states: make(map[string]string, len(states))}
	for k, v := range states {
		s.states[k] = v
	}
	return s
}

// Set updates the state of entityID.
func (s *Static) Set(entityID, state string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[entityID] = state
}

// Delete removes entityID so it reads as missing.
func (s *Static) Delete(entityID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, entityID)
}

// State implements StateSource.
func (s *Static) State(ctx context.Context, entityID string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.states[entityID]
	return state, ok, nil
}
