// Package profile manages the per-slot browser profile directories.
package profile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
)

const metaFile = "profile.toml"

// ErrProfileNotFound is returned for slots without a profile directory
var ErrProfileNotFound = errors.New("profile not found")

// Profile is the metadata stored alongside a slot's browser data
type Profile struct {
	SlotID      int       `toml:"slot_id"`
	Path        string    `toml:"-"`
	CreatedAt   time.Time `toml:"created_at"`
	LastStarted time.Time `toml:"last_started"`
	LastProxy   string    `toml:"last_proxy"`
	Starts      int       `toml:"starts"`
}

// Manager handles profile storage under one root directory
type Manager struct {
	dir string
	mu  sync.Mutex
}

// NewManager creates a profile manager, creating dir if needed
func NewManager(dir string) (*Manager, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create profile directory: %w", err)
	}
	return &Manager{dir: dir}, nil
}

// Path returns the profile directory of a slot
func (m *Manager) Path(slotID int) string {
	return filepath.Join(m.dir, fmt.Sprintf("slot-%d", slotID))
}

// Acquire returns the slot's profile, creating it on first use, and records
// a start with the proxy the session will use.
func (m *Manager) Acquire(slotID int, proxy string) (*Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, err := m.get(slotID)
	if errors.Is(err, ErrProfileNotFound) {
		if err := os.MkdirAll(m.Path(slotID), 0755); err != nil {
			return nil, fmt.Errorf("failed to create profile for slot %d: %w", slotID, err)
		}
		p = &Profile{SlotID: slotID, Path: m.Path(slotID), CreatedAt: time.Now()}
	} else if err != nil {
		return nil, err
	}

	p.LastStarted = time.Now()
	p.LastProxy = proxy
	p.Starts++

	if err := m.save(p); err != nil {
		return nil, err
	}
	return p, nil
}

// Get retrieves a slot's profile
func (m *Manager) Get(slotID int) (*Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.get(slotID)
}

// List returns all profiles ordered by slot id
func (m *Manager) List() ([]*Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read profile directory: %w", err)
	}

	var profiles []*Profile
	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), "slot-") {
			continue
		}
		id, err := strconv.Atoi(strings.TrimPrefix(entry.Name(), "slot-"))
		if err != nil {
			continue
		}
		p, err := m.get(id)
		if err != nil {
			continue
		}
		profiles = append(profiles, p)
	}

	sort.Slice(profiles, func(i, j int) bool { return profiles[i].SlotID < profiles[j].SlotID })
	return profiles, nil
}

// Delete removes a slot's profile directory including browser data
func (m *Manager) Delete(slotID int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	path := m.Path(slotID)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return fmt.Errorf("%w: slot %d", ErrProfileNotFound, slotID)
	}
	return os.RemoveAll(path)
}

func (m *Manager) get(slotID int) (*Profile, error) {
	data, err := os.ReadFile(filepath.Join(m.Path(slotID), metaFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: slot %d", ErrProfileNotFound, slotID)
		}
		return nil, fmt.Errorf("failed to read profile file: %w", err)
	}

	var p Profile
	if _, err := toml.Decode(string(data), &p); err != nil {
		return nil, fmt.Errorf("failed to decode profile file: %w", err)
	}
	p.Path = m.Path(slotID)
	return &p, nil
}

func (m *Manager) save(p *Profile) error {
	f, err := os.Create(filepath.Join(p.Path, metaFile))
	if err != nil {
		return fmt.Errorf("failed to create profile file: %w", err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(p); err != nil {
		return fmt.Errorf("failed to encode profile: %w", err)
	}
	return nil
}
