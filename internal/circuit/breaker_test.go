package circuit

import (
	"path/filepath"
	"testing"
	"time"
)

func newTestBreaker(t *testing.T) (*Breaker, *Store, *time.Time) {
	t.Helper()
	store := NewStore(filepath.Join(t.TempDir(), "circuits.json"))
	b := NewBreaker(store, nil, nil)
	now := time.Date(2026, 8, 23, 10, 0, 0, 0, time.Local)
	b.SetClock(func() time.Time { return now })
	return b, store, &now
}

func TestBreaker_TripsOnThirdFailureInWindow(t *testing.T) {
	b, _, now := newTestBreaker(t)

	b.RecordFailure("scout")
	*now = now.Add(time.Minute)
	b.RecordFailure("scout")
	if b.IsOpen("scout") {
		t.Error("two failures must not trip the breaker")
	}

	*now = now.Add(time.Minute)
	b.RecordFailure("scout")
	if !b.IsOpen("scout") {
		t.Error("three failures within 5 minutes must trip the breaker")
	}
}

func TestBreaker_OldFailuresFallOutOfWindow(t *testing.T) {
	b, _, now := newTestBreaker(t)

	b.RecordFailure("scout")
	*now = now.Add(time.Minute)
	b.RecordFailure("scout")

	// Third failure arrives after the first two have aged out.
	*now = now.Add(6 * time.Minute)
	b.RecordFailure("scout")
	if b.IsOpen("scout") {
		t.Error("failures outside the window must not count toward the threshold")
	}
}

func TestBreaker_PerAgentIsolation(t *testing.T) {
	b, _, _ := newTestBreaker(t)
	for i := 0; i < 3; i++ {
		b.RecordFailure("scout")
	}
	if !b.IsOpen("scout") {
		t.Fatal("scout should be open")
	}
	if b.IsOpen("digest") {
		t.Error("digest has no failures and must stay closed")
	}
}

func TestBreaker_PersistedOpenSurvivesRestart(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(filepath.Join(dir, "circuits.json"))

	first := NewBreaker(store, nil, nil)
	for i := 0; i < 3; i++ {
		first.RecordFailure("scout")
	}
	if !first.IsOpen("scout") {
		t.Fatal("expected scout open before restart")
	}

	// A fresh breaker on the same store simulates a process restart: the
	// in-memory window is gone but the persisted OPEN record holds.
	restarted := NewBreaker(NewStore(filepath.Join(dir, "circuits.json")), nil, nil)
	if !restarted.IsOpen("scout") {
		t.Error("persisted OPEN state must be honored after restart")
	}

	restarted.Reset("scout")
	if restarted.IsOpen("scout") {
		t.Error("scout should be closed after explicit reset")
	}
	// The reset is persisted too.
	third := NewBreaker(NewStore(filepath.Join(dir, "circuits.json")), nil, nil)
	if third.IsOpen("scout") {
		t.Error("reset must persist across restarts")
	}
}

func TestBreaker_ResetClearsFailureWindow(t *testing.T) {
	b, _, _ := newTestBreaker(t)
	for i := 0; i < 3; i++ {
		b.RecordFailure("scout")
	}
	b.Reset("scout")

	// Two failures after reset: below threshold again.
	b.RecordFailure("scout")
	b.RecordFailure("scout")
	if b.IsOpen("scout") {
		t.Error("reset must clear the failure window, not just the trip flag")
	}
}

func TestBreaker_FailuresWhileOpenCauseNoDoubleTrip(t *testing.T) {
	b, store, _ := newTestBreaker(t)
	for i := 0; i < 5; i++ {
		b.RecordFailure("scout")
	}
	records, err := store.Load()
	if err != nil {
		t.Fatal(err)
	}
	if records["scout"].State != StateOpen {
		t.Error("expected persisted OPEN record")
	}
}

func TestStore_MissingFileYieldsEmptyMap(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "circuits.json"))
	records, err := store.Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("expected empty map, got %d records", len(records))
	}
}
