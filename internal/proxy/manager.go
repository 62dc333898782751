// Package proxy assigns proxy endpoints to worker slots.
package proxy

import (
	"sort"
	"sync"
	"time"

	"github.com/gabe/botpool/internal/logger"
)

// Record is one proxy endpoint in the pool
type Record struct {
	Address      string
	Slots        []int // slots currently holding this proxy
	Failures     int
	LastAssigned time.Time
}

// DegradedFunc is called when a proxy is shared because the pool is exhausted
type DegradedFunc func(slotID int, address string)

// Manager hands out proxies round-robin. It is safe for concurrent use.
type Manager struct {
	mu         sync.Mutex
	order      []string         // rotation order, front is tried first
	records    map[string]*Record
	assigned   map[int]string   // slot -> address
	log        logger.Logger
	onDegraded DegradedFunc
	now        func() time.Time
	seq        int64
	lastSeq    map[string]int64 // monotonic assignment order, immune to clock ties
}

// Option configures a Manager
type Option func(*Manager)

// WithLogger sets the logger
func WithLogger(l logger.Logger) Option {
	return func(m *Manager) {
		m.log = l
	}
}

// WithOnDegraded sets the callback for degraded (shared) assignments
func WithOnDegraded(fn DegradedFunc) Option {
	return func(m *Manager) {
		m.onDegraded = fn
	}
}

// NewManager creates a manager over addresses. Duplicates are ignored.
func NewManager(addresses []string, opts ...Option) *Manager {
	m := &Manager{
		records:  make(map[string]*Record),
		assigned: make(map[int]string),
		lastSeq:  make(map[string]int64),
		log:      logger.NewNop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.log = m.log.With(logger.String("component", "proxy"))
	m.Add(addresses...)
	return m
}

// Add appends new addresses to the pool and returns how many were new
func (m *Manager) Add(addresses ...string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	added := 0
	for _, addr := range addresses {
		if addr == "" {
			continue
		}
		if _, ok := m.records[addr]; ok {
			continue
		}
		m.records[addr] = &Record{Address: addr}
		m.order = append(m.order, addr)
		added++
	}
	return added
}

// Size returns the number of proxies in the pool
func (m *Manager) Size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.order)
}

// Get returns the slot's proxy, assigning one if needed.
// ok is false when the pool is empty.
func (m *Manager) Get(slotID int) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.get(slotID)
}

// ReportFailure releases the slot's proxy, counts a failure against it and
// assigns a replacement using the same policy as Get.
func (m *Manager) ReportFailure(slotID int, reason string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if addr, ok := m.assigned[slotID]; ok {
		m.release(slotID)
		m.records[addr].Failures++
		m.log.Warn("Proxy failed",
			logger.String("proxy", addr),
			logger.Int("slot", slotID),
			logger.String("reason", reason))
	}
	return m.get(slotID)
}

// Release frees the slot's proxy. It is a no-op when none is assigned.
func (m *Manager) Release(slotID int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.release(slotID)
}

// Assigned returns the slot's current proxy without assigning one
func (m *Manager) Assigned(slotID int) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	addr, ok := m.assigned[slotID]
	return addr, ok
}

// FailureStats returns per-proxy failure counts. Proxies with no failures
// are included with 0.
func (m *Manager) FailureStats() map[string]int {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := make(map[string]int, len(m.records))
	for addr, rec := range m.records {
		stats[addr] = rec.Failures
	}
	return stats
}

// Records returns copies of every proxy record sorted by address
func (m *Manager) Records() []Record {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Record, 0, len(m.records))
	for _, addr := range m.order {
		rec := *m.records[addr]
		rec.Slots = append([]int(nil), rec.Slots...)
		sort.Ints(rec.Slots)
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out
}

// get must be called with m.mu held
func (m *Manager) get(slotID int) (string, bool) {
	if addr, ok := m.assigned[slotID]; ok {
		return addr, true
	}
	if len(m.order) == 0 {
		m.log.Warn("No proxies available", logger.Int("slot", slotID))
		return "", false
	}

	// Round-robin over proxies nobody holds
	for i := 0; i < len(m.order); i++ {
		addr := m.order[0]
		m.order = append(m.order[1:], addr)
		if len(m.records[addr].Slots) == 0 {
			m.assign(slotID, addr)
			m.log.Info("Proxy assigned", logger.String("proxy", addr), logger.Int("slot", slotID))
			return addr, true
		}
	}

	// Pool exhausted: reuse the least recently assigned proxy
	addr := m.order[0]
	for _, candidate := range m.order[1:] {
		if m.lastSeq[candidate] < m.lastSeq[addr] {
			addr = candidate
		}
	}
	m.assign(slotID, addr)
	m.log.Warn("Reusing proxy, pool exhausted",
		logger.String("proxy", addr),
		logger.Int("slot", slotID),
		logger.Int("shared_by", len(m.records[addr].Slots)))
	if m.onDegraded != nil {
		m.onDegraded(slotID, addr)
	}
	return addr, true
}

func (m *Manager) assign(slotID int, addr string) {
	m.seq++
	rec := m.records[addr]
	rec.Slots = append(rec.Slots, slotID)
	rec.LastAssigned = m.now()
	m.lastSeq[addr] = m.seq
	m.assigned[slotID] = addr
}

func (m *Manager) release(slotID int) {
	addr, ok := m.assigned[slotID]
	if !ok {
		return
	}
	delete(m.assigned, slotID)

	rec := m.records[addr]
	for i, s := range rec.Slots {
		if s == slotID {
			rec.Slots = append(rec.Slots[:i], rec.Slots[i+1:]...)
			break
		}
	}
}
