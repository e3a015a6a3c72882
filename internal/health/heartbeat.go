package health

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"
)

// heartbeatRecord is the JSON document written on every beat.
type heartbeatRecord struct {
	Agent  string    `json:"agent"`
	TS     time.Time `json:"ts"`
	Status string    `json:"status"`
}

// Heartbeat periodically overwrites a per-agent JSON file so external
// watchdogs can detect a hung or dead process by file staleness alone.
type Heartbeat struct {
	agent    string
	path     string
	interval time.Duration
	done     chan struct{}
	stopped  chan struct{}
}

// StartHeartbeat writes one beat immediately, then keeps beating every
// interval until Close is called.
func StartHeartbeat(agent, path string, interval time.Duration) *Heartbeat {
	h := &Heartbeat{
		agent:    agent,
		path:     path,
		interval: interval,
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	h.beat()
	go h.loop()
	return h
}

func (h *Heartbeat) loop() {
	defer close(h.stopped)
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			h.beat()
		case <-h.done:
			return
		}
	}
}

// beat writes the heartbeat file atomically. Failures are logged, never
// fatal; a missed beat just looks stale to the watchdog.
func (h *Heartbeat) beat() {
	rec := heartbeatRecord{Agent: h.agent, TS: time.Now(), Status: "alive"}
	data, err := json.Marshal(rec)
	if err != nil {
		log.Printf("[Heartbeat] Cannot marshal beat: %v", err)
		return
	}
	if err := writeFileAtomic(h.path, data); err != nil {
		log.Printf("[Heartbeat] Cannot write beat: %v", err)
	}
}

// Close stops the heartbeat loop and waits for it to exit. The last written
// file is left in place.
func (h *Heartbeat) Close() {
	close(h.done)
	<-h.stopped
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create dir %q: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}
