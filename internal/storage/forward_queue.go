// Package storage holds small append-only file stores shared by the daemon.
package storage

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// PendingForward is an error forward that could not be delivered
type PendingForward struct {
	Hash     string    `json:"hash"`
	Trace    string    `json:"trace"`
	QueuedAt time.Time `json:"queued_at"`
	Attempts int       `json:"attempts"`
}

// ForwardQueue persists undelivered forwards as JSONL
type ForwardQueue struct {
	path string
	mu   sync.Mutex
}

// NewForwardQueue creates a queue backed by path
func NewForwardQueue(path string) (*ForwardQueue, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}
	return &ForwardQueue{path: path}, nil
}

// Push appends an entry
func (q *ForwardQueue) Push(entry PendingForward) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if entry.QueuedAt.IsZero() {
		entry.QueuedAt = time.Now()
	}

	f, err := os.OpenFile(q.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	_, err = f.Write(append(data, '\n'))
	return err
}

// Len returns the number of queued entries
func (q *ForwardQueue) Len() (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	entries, err := q.readAll()
	return len(entries), err
}

// Drain passes every queued entry to deliver and keeps the ones that fail.
// It returns the number delivered.
func (q *ForwardQueue) Drain(deliver func(PendingForward) error) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	entries, err := q.readAll()
	if err != nil || len(entries) == 0 {
		return 0, err
	}

	var remaining []PendingForward
	delivered := 0
	for _, e := range entries {
		if err := deliver(e); err != nil {
			e.Attempts++
			remaining = append(remaining, e)
			continue
		}
		delivered++
	}

	return delivered, q.writeAll(remaining)
}

func (q *ForwardQueue) readAll() ([]PendingForward, error) {
	f, err := os.Open(q.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var entries []PendingForward
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		var e PendingForward
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			continue // Skip malformed lines
		}
		entries = append(entries, e)
	}

	return entries, scanner.Err()
}

func (q *ForwardQueue) writeAll(entries []PendingForward) error {
	tmpFile := q.path + ".tmp"
	f, err := os.Create(tmpFile)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(f)
	for _, e := range entries {
		if err := enc.Encode(e); err != nil {
			f.Close()
			os.Remove(tmpFile)
			return err
		}
	}

	if err := f.Close(); err != nil {
		os.Remove(tmpFile)
		return err
	}

	return os.Rename(tmpFile, q.path)
}
