package discovery

import (
	"sync"
	"time"
)

// State is the discovery state shared by the advertiser, the listener
// and the snapshot cache of one process.
type State struct {
	mu             sync.RWMutex
	selfID         string
	snapshotExpiry time.Time
}

// NewState creates an empty state.
func NewState() *State {
	return &State{}
}

// SelfID returns the id this process is currently registered under, or
// "" when not registered.
func (s *State) SelfID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selfID
}

func (s *State) setSelfID(id string) {
	s.mu.Lock()
	s.selfID = id
	s.mu.Unlock()
}

// SnapshotExpiry returns when the most recent snapshot expires.
func (s *State) SnapshotExpiry() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotExpiry
}

func (s *State) setSnapshotExpiry(t time.Time) {
	s.mu.Lock()
	s.snapshotExpiry = t
	s.mu.Unlock()
}
