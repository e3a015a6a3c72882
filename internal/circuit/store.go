package circuit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// State is the persisted breaker state for one agent.
type State string

const (
	// StateClosed allows admission.
	StateClosed State = "CLOSED"
	// StateOpen blocks admission until an explicit reset.
	StateOpen State = "OPEN"
)

// Record is the persisted breaker entry for one agent. OPEN records carry
// TrippedAt and Reason; CLOSED records written by a reset carry ResetAt.
type Record struct {
	State     State     `json:"state"`
	TrippedAt time.Time `json:"tripped_at,omitempty"`
	ResetAt   time.Time `json:"reset_at,omitempty"`
	Reason    string    `json:"reason,omitempty"`
}

// Store persists the agent → breaker-record map as a JSON document. It is the
// only breaker state visible across processes; the in-memory failure window
// is per-process and lost on restart.
type Store struct {
	path string
}

// NewStore creates a store backed by the JSON file at path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Load reads the circuit map. A missing file yields an empty map.
func (s *Store) Load() (map[string]Record, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return map[string]Record{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read circuit map %q: %w", s.path, err)
	}
	var m map[string]Record
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse circuit map %q: %w", s.path, err)
	}
	if m == nil {
		m = map[string]Record{}
	}
	return m, nil
}

// Save writes the circuit map atomically (temp file + rename).
func (s *Store) Save(m map[string]Record) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal circuit map: %w", err)
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create state dir %q: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp for circuit map: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write circuit map: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close circuit map temp: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace circuit map %q: %w", s.path, err)
	}
	return nil
}
