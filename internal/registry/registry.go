// Package registry persists the daemon's slot snapshot so that other
// processes (the CLI, the dashboard) can read it without the control socket.
package registry

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/gabe/botpool/internal/scheduler"
)

var (
	// ErrSlotNotFound is returned when a slot is not in the snapshot
	ErrSlotNotFound = errors.New("slot not found in registry")
)

// Snapshot is the on-disk format
type Snapshot struct {
	PID       int                    `json:"pid"`
	Paused    bool                   `json:"paused"`
	UpdatedAt time.Time              `json:"updated_at"`
	Slots     []scheduler.SlotStatus `json:"slots"`
}

// Registry manages the snapshot file shared across processes
type Registry struct {
	filepath string
	mu       sync.RWMutex
}

// New creates a new registry at the specified file path
func New(path string) *Registry {
	return &Registry{
		filepath: path,
	}
}

// DefaultPath returns the default registry path for a state directory
func DefaultPath(stateDir string) string {
	return filepath.Join(stateDir, "slots.json")
}

// Path returns the snapshot file path
func (r *Registry) Path() string {
	return r.filepath
}

// Write replaces the snapshot
func (r *Registry) Write(snap Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if snap.UpdatedAt.IsZero() {
		snap.UpdatedAt = time.Now()
	}
	return WithFileLock(r.filepath, func() error {
		return WriteJSON(r.filepath, snap)
	})
}

// Read returns the last snapshot. A missing file yields an empty snapshot.
func (r *Registry) Read() (Snapshot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var snap Snapshot
	err := WithFileLock(r.filepath, func() error {
		_, err := ReadJSON(r.filepath, &snap)
		return err
	})
	return snap, err
}

// Get returns one slot from the snapshot
func (r *Registry) Get(id int) (scheduler.SlotStatus, error) {
	snap, err := r.Read()
	if err != nil {
		return scheduler.SlotStatus{}, err
	}
	for _, st := range snap.Slots {
		if st.ID == id {
			return st, nil
		}
	}
	return scheduler.SlotStatus{}, ErrSlotNotFound
}

// Clear removes the snapshot file
func (r *Registry) Clear() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return WithFileLock(r.filepath, func() error {
		if err := os.Remove(r.filepath); err != nil && !os.IsNotExist(err) {
			return err
		}
		return nil
	})
}

// WithFileLock executes fn holding an exclusive lock on path + ".lock"
func WithFileLock(path string, fn func() error) error {
	// Ensure directory exists for lock file
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	f, err := os.OpenFile(path+".lock", os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX); err != nil {
		return err
	}
	defer syscall.Flock(int(f.Fd()), syscall.LOCK_UN)

	return fn()
}

// ReadJSON decodes path into v. It reports false without error when the
// file is missing or empty.
func ReadJSON(path string, v interface{}) (bool, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if len(content) == 0 {
		return false, nil
	}
	if err := json.Unmarshal(content, v); err != nil {
		return false, err
	}
	return true, nil
}

// WriteJSON writes v to path atomically via a temp file (caller holds the lock)
func WriteJSON(path string, v interface{}) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	content, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}

	tmpFile := path + ".tmp"
	if err := os.WriteFile(tmpFile, content, 0644); err != nil {
		return err
	}
	return os.Rename(tmpFile, path)
}
