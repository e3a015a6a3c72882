package agent

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Interaction statuses. Blocked runs carry zero usage; failed runs carry
// whatever was billed before the failure (zero when no call completed), so
// downstream consumers can distinguish "ran but failed" from "never ran".
const (
	StatusOK      = "ok"
	StatusBlocked = "blocked"
	StatusFailed  = "failed"
)

// InteractionRecord is one line of the interaction log: a single run of the
// agent, successful or not.
type InteractionRecord struct {
	ID               string    `json:"id"`
	Agent            string    `json:"agent"`
	Timestamp        time.Time `json:"timestamp"`
	Status           string    `json:"status"` // ok | blocked | failed
	Model            string    `json:"model"`
	PromptTokens     int       `json:"prompt_tokens"`
	CompletionTokens int       `json:"completion_tokens"`
	CostUSD          float64   `json:"cost_usd"`
	ToolCalls        int       `json:"tool_calls"`
	LatencyMs        int64     `json:"latency_ms"`
	Message          string    `json:"message"`
	Response         string    `json:"response"`
	Error            string    `json:"error,omitempty"`
}

// InteractionLog appends one JSON record per run to a JSONL file.
// Thread-safe; a nil *InteractionLog discards records.
type InteractionLog struct {
	mu   sync.Mutex
	file *os.File
	path string
}

// NewInteractionLog opens (or creates) the log file in append mode.
func NewInteractionLog(path string) (*InteractionLog, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("cannot open interaction log: %w", err)
	}
	return &InteractionLog{file: f, path: path}, nil
}

// Record writes one interaction. An empty ID is filled with a fresh UUID.
// Write failures are logged, never propagated: the interaction log must not
// break a run.
func (l *InteractionLog) Record(rec InteractionRecord) {
	if l == nil {
		return
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}

	data, err := json.Marshal(rec)
	if err != nil {
		log.Printf("[Interactions] Cannot marshal record: %v", err)
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.file.Write(append(data, '\n')); err != nil {
		log.Printf("[Interactions] Cannot write record: %v", err)
	}
}

// Close closes the underlying file.
func (l *InteractionLog) Close() error {
	if l == nil || l.file == nil {
		return nil
	}
	return l.file.Close()
}

// truncate shortens s to max runes for log previews.
func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}
