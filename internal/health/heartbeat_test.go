package health

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestHeartbeat_WritesImmediately(t *testing.T) {
	path := filepath.Join(t.TempDir(), "beats", "scout.json")
	hb := StartHeartbeat("scout", path, time.Hour)
	defer hb.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("expected an immediate first beat: %v", err)
	}

	var rec heartbeatRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		t.Fatalf("beat is not valid JSON: %v", err)
	}
	if rec.Agent != "scout" || rec.Status != "alive" {
		t.Errorf("unexpected beat: %+v", rec)
	}
	if rec.TS.IsZero() {
		t.Error("beat timestamp must be set")
	}
}

func TestHeartbeat_KeepsBeating(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scout.json")
	hb := StartHeartbeat("scout", path, 20*time.Millisecond)
	defer hb.Close()

	first := readBeat(t, path)
	deadline := time.After(2 * time.Second)
	for {
		select {
		case <-deadline:
			t.Fatal("no follow-up beat observed")
		case <-time.After(20 * time.Millisecond):
		}
		if readBeat(t, path).TS.After(first.TS) {
			return
		}
	}
}

func TestHeartbeat_CloseStopsLoop(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scout.json")
	hb := StartHeartbeat("scout", path, 10*time.Millisecond)
	hb.Close()

	last := readBeat(t, path)
	time.Sleep(50 * time.Millisecond)
	if readBeat(t, path).TS.After(last.TS) {
		t.Error("heartbeat must stop after Close")
	}
}

func readBeat(t *testing.T, path string) heartbeatRecord {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read beat: %v", err)
	}
	var rec heartbeatRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		t.Fatalf("parse beat: %v", err)
	}
	return rec
}
