package budget

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DailyUsage is one day's token/cost bucket for a single agent.
type DailyUsage struct {
	Tokens int64   `json:"tokens"`
	Cost   float64 `json:"cost"`
}

// AgentUsage is the per-agent slice of the monthly ledger. Values are
// additive and never decremented.
type AgentUsage struct {
	Daily         map[string]DailyUsage `json:"daily"` // keyed by local date YYYY-MM-DD
	MonthlyTokens int64                 `json:"monthly_tokens"`
	MonthlyCost   float64               `json:"monthly_cost"`
}

// MonthlyUsage is the live ledger document for one month. When the stored
// month key differs from the active one, the document is re-initialized;
// historical months are not archived.
type MonthlyUsage struct {
	Month     string                 `json:"month"` // YYYY-MM
	Agents    map[string]*AgentUsage `json:"agents"`
	TotalCost float64                `json:"total_cost"`
}

// MonthKey returns the ledger key for t's month, e.g. "2026-08".
func MonthKey(t time.Time) string { return t.Format("2006-01") }

// DayKey returns the daily-bucket key for t's local date, e.g. "2026-08-23".
func DayKey(t time.Time) string { return t.Format("2006-01-02") }

// UsageStore persists the monthly ledger as a single JSON document. Reads and
// writes are whole-document; callers serialize read-modify-write cycles.
// Across processes the document is last-writer-wins.
type UsageStore struct {
	path string
}

// NewUsageStore creates a store backed by the JSON file at path.
func NewUsageStore(path string) *UsageStore {
	return &UsageStore{path: path}
}

// Load reads the ledger and rolls it over to a fresh document when the stored
// month key differs from now's month (or when no document exists yet).
func (s *UsageStore) Load(now time.Time) (*MonthlyUsage, error) {
	fresh := &MonthlyUsage{
		Month:  MonthKey(now),
		Agents: make(map[string]*AgentUsage),
	}

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return fresh, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read usage ledger %q: %w", s.path, err)
	}

	var doc MonthlyUsage
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse usage ledger %q: %w", s.path, err)
	}
	if doc.Month != MonthKey(now) {
		// Month boundary: the live document resets, nothing is archived.
		return fresh, nil
	}
	if doc.Agents == nil {
		doc.Agents = make(map[string]*AgentUsage)
	}
	return &doc, nil
}

// Save writes the ledger atomically (temp file + rename) so a crashed write
// never leaves a truncated document behind.
func (s *UsageStore) Save(doc *MonthlyUsage) error {
	return writeJSONAtomic(s.path, doc)
}

// writeJSONAtomic marshals v and replaces path via a same-directory temp file.
func writeJSONAtomic(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %q: %w", path, err)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create state dir %q: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp for %q: %w", path, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp for %q: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp for %q: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace %q: %w", path, err)
	}
	return nil
}
