package budget

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// PauseState records why (and since when) an agent is paused. Paused agents
// are denied admission regardless of budget or circuit state.
type PauseState struct {
	Paused   bool      `json:"paused"`
	Reason   string    `json:"reason,omitempty"`
	PausedAt time.Time `json:"paused_at,omitempty"`
}

// PauseStore persists the agent → pause-state map as a JSON document.
type PauseStore struct {
	path string
}

// NewPauseStore creates a store backed by the JSON file at path.
func NewPauseStore(path string) *PauseStore {
	return &PauseStore{path: path}
}

// Load reads the pause map. A missing file yields an empty map.
func (s *PauseStore) Load() (map[string]PauseState, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return map[string]PauseState{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read pause map %q: %w", s.path, err)
	}
	var m map[string]PauseState
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse pause map %q: %w", s.path, err)
	}
	if m == nil {
		m = map[string]PauseState{}
	}
	return m, nil
}

// Save writes the pause map atomically.
func (s *PauseStore) Save(m map[string]PauseState) error {
	return writeJSONAtomic(s.path, m)
}
