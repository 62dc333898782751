package browser

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/shirou/gopsutil/v3/process"
)

// Spawner tracks the browser session of every slot
type Spawner struct {
	launcher Launcher
	sessions map[int]Session
	mu       sync.RWMutex
}

// NewSpawner creates a spawner launching through l
func NewSpawner(l Launcher) *Spawner {
	if l == nil {
		l = ChromeLauncher{}
	}
	return &Spawner{
		launcher: l,
		sessions: make(map[int]Session),
	}
}

// Spawn launches a session for slot, closing any session it already had
func (s *Spawner) Spawn(ctx context.Context, slotID int, opts Options) (Session, error) {
	s.mu.Lock()
	old := s.sessions[slotID]
	delete(s.sessions, slotID)
	s.mu.Unlock()

	if old != nil {
		_ = old.Close()
	}

	session, err := s.launcher.Launch(ctx, opts)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.sessions[slotID] = session
	s.mu.Unlock()

	return session, nil
}

// Get returns the session of a slot
func (s *Spawner) Get(slotID int) (Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[slotID]
	return session, ok
}

// Slots returns the ids of slots with a session, ascending
func (s *Spawner) Slots() []int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]int, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// Close gracefully closes the session of a slot
func (s *Spawner) Close(slotID int) error {
	s.mu.Lock()
	session, ok := s.sessions[slotID]
	delete(s.sessions, slotID)
	s.mu.Unlock()

	if !ok {
		return ErrSessionNotFound
	}
	return session.Close()
}

// Kill terminates the browser process of a slot out-of-band
func (s *Spawner) Kill(slotID int) error {
	s.mu.Lock()
	session, ok := s.sessions[slotID]
	delete(s.sessions, slotID)
	s.mu.Unlock()

	if !ok {
		return ErrSessionNotFound
	}
	return session.Kill()
}

// KillAll terminates every owned browser. Every session is attempted;
// failures are returned per slot.
func (s *Spawner) KillAll() map[int]error {
	s.mu.Lock()
	sessions := s.sessions
	s.sessions = make(map[int]Session)
	s.mu.Unlock()

	failures := make(map[int]error)
	for id, session := range sessions {
		if err := session.Kill(); err != nil {
			failures[id] = err
		}
	}
	return failures
}

// Count returns the number of tracked sessions
func (s *Spawner) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// MemoryUsage returns the resident memory in bytes of a slot's browser
// including its renderer and helper children.
func (s *Spawner) MemoryUsage(slotID int) (uint64, error) {
	session, ok := s.Get(slotID)
	if !ok {
		return 0, ErrSessionNotFound
	}
	pid := session.PID()
	if pid <= 0 {
		return 0, ErrNoProcess
	}
	return treeRSS(int32(pid))
}

func treeRSS(pid int32) (uint64, error) {
	p, err := process.NewProcess(pid)
	if err != nil {
		return 0, fmt.Errorf("failed to inspect pid %d: %w", pid, err)
	}

	var total uint64
	var walk func(p *process.Process, depth int)
	walk = func(p *process.Process, depth int) {
		if mem, err := p.MemoryInfo(); err == nil {
			total += mem.RSS
		}
		if depth > 8 {
			return
		}
		children, err := p.Children()
		if err != nil {
			return
		}
		for _, c := range children {
			walk(c, depth+1)
		}
	}
	walk(p, 0)

	return total, nil
}
