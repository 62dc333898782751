// Package watchdog provides background health monitoring for slots.
// It restarts slots whose heartbeat went stale or whose browser grew past
// the memory limit.
package watchdog

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/gabe/botpool/internal/logger"
	"github.com/gabe/botpool/internal/models"
	"github.com/gabe/botpool/internal/scheduler"
)

// Health states
const (
	StatusHealthy = "healthy"
	StatusStale   = "stale"
	StatusMemory  = "memory"
)

// Health is the last verdict for a slot
type Health struct {
	SlotID       int           `json:"slot_id"`
	Status       string        `json:"status"`
	HeartbeatAge time.Duration `json:"heartbeat_age"`
	MemoryBytes  uint64        `json:"memory_bytes,omitempty"`
	Message      string        `json:"message,omitempty"`
	CheckedAt    time.Time     `json:"checked_at"`
}

// Pool is what the watchdog inspects and restarts
type Pool interface {
	Status() []scheduler.SlotStatus
	RestartSlotFor(id int, reason string) bool
}

// MemoryProbe reports the resident memory of a slot's browser
type MemoryProbe interface {
	MemoryUsage(slotID int) (uint64, error)
}

// Watchdog polls the pool
type Watchdog struct {
	pool        Pool
	probe       MemoryProbe
	interval    time.Duration // Default 30 seconds
	timeout     time.Duration // Default 5 minutes
	maxMemory   uint64        // bytes, 0 disables
	every       int           // re-issue after this many unhealthy checks, 0 disables
	onUnhealthy func(Health)
	log         logger.Logger
	now         func() time.Time
	mu          sync.RWMutex
	health      map[int]*Health
	streak      map[int]int
}

// Option functions for configuration
type Option func(*Watchdog)

// WithInterval sets the check interval
func WithInterval(d time.Duration) Option {
	return func(w *Watchdog) {
		w.interval = d
	}
}

// WithTimeout sets the heartbeat age after which a slot is stale
func WithTimeout(d time.Duration) Option {
	return func(w *Watchdog) {
		w.timeout = d
	}
}

// WithMaxMemory sets the per-slot browser memory limit in bytes
func WithMaxMemory(bytes uint64) Option {
	return func(w *Watchdog) {
		w.maxMemory = bytes
	}
}

// WithRestartEvery re-issues the restart of a slot that is still unhealthy
// n checks after the last request
func WithRestartEvery(n int) Option {
	return func(w *Watchdog) {
		w.every = n
	}
}

// WithMemoryProbe sets how memory is measured
func WithMemoryProbe(p MemoryProbe) Option {
	return func(w *Watchdog) {
		w.probe = p
	}
}

// WithOnUnhealthy sets a callback run after a slot is restarted
func WithOnUnhealthy(fn func(Health)) Option {
	return func(w *Watchdog) {
		w.onUnhealthy = fn
	}
}

// WithLogger sets the logger
func WithLogger(l logger.Logger) Option {
	return func(w *Watchdog) {
		w.log = l
	}
}

// New creates a watchdog for pool
func New(pool Pool, opts ...Option) *Watchdog {
	w := &Watchdog{
		pool:     pool,
		interval: 30 * time.Second,
		timeout:  5 * time.Minute,
		every:    3,
		now:      time.Now,
		health:   make(map[int]*Health),
		streak:   make(map[int]int),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.log == nil {
		w.log = logger.NewNop()
	}
	w.log = w.log.With(logger.String("component", "watchdog"))
	return w
}

// Start runs checks every interval until ctx is cancelled
func (w *Watchdog) Start(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.CheckAll()
		}
	}
}

// CheckAll inspects every live slot once and restarts unhealthy ones.
// A slot is restarted once per incident, and again every few checks while
// the incident lasts.
func (w *Watchdog) CheckAll() []Health {
	now := w.now()
	var restarted []Health

	for _, st := range w.pool.Status() {
		if st.State != models.SlotRunning && st.State != models.SlotPaused {
			continue
		}

		h := w.evaluate(st, now)

		w.mu.Lock()
		prev, seen := w.health[st.ID]
		w.health[st.ID] = &h
		restart := false
		switch {
		case h.Status == StatusHealthy:
			delete(w.streak, st.ID)
		case !seen || prev.Status != h.Status:
			w.streak[st.ID] = 0
			restart = true
		default:
			// Still unhealthy after a restart request
			w.streak[st.ID]++
			if w.every > 0 && w.streak[st.ID] >= w.every {
				w.streak[st.ID] = 0
				restart = true
			}
		}
		w.mu.Unlock()

		if !restart {
			continue
		}

		reason := scheduler.ReasonStale
		if h.Status == StatusMemory {
			reason = scheduler.ReasonMemory
		}
		w.log.Warn("Slot unhealthy, restarting",
			logger.Int("slot", st.ID),
			logger.String("status", h.Status),
			logger.String("message", h.Message))

		if w.pool.RestartSlotFor(st.ID, reason) {
			restarted = append(restarted, h)
			if w.onUnhealthy != nil {
				w.onUnhealthy(h)
			}
		}
	}
	return restarted
}

func (w *Watchdog) evaluate(st scheduler.SlotStatus, now time.Time) Health {
	h := Health{SlotID: st.ID, Status: StatusHealthy, CheckedAt: now}
	if !st.LastHeartbeat.IsZero() {
		h.HeartbeatAge = now.Sub(st.LastHeartbeat)
	}

	if w.timeout > 0 && h.HeartbeatAge > w.timeout {
		h.Status = StatusStale
		h.Message = fmt.Sprintf("no heartbeat for %s", h.HeartbeatAge.Round(time.Second))
		return h
	}

	if w.probe == nil || w.maxMemory == 0 {
		return h
	}
	rss, err := w.probe.MemoryUsage(st.ID)
	if err != nil {
		w.log.Debug("Memory probe failed", logger.Int("slot", st.ID), logger.Error(err))
		return h
	}
	h.MemoryBytes = rss
	if rss > w.maxMemory {
		h.Status = StatusMemory
		h.Message = fmt.Sprintf("browser uses %s, limit %s", humanize.IBytes(rss), humanize.IBytes(w.maxMemory))
	}
	return h
}

// Status returns the last verdict for every slot seen, ordered by slot
func (w *Watchdog) Status() []Health {
	w.mu.RLock()
	defer w.mu.RUnlock()

	out := make([]Health, 0, len(w.health))
	for _, h := range w.health {
		out = append(out, *h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SlotID < out[j].SlotID })
	return out
}
