package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gabe/botpool/internal/browser"
	"github.com/gabe/botpool/internal/models"
)

// Slot is one worker: a browser session, a profile and a proxy.
// Its stats block is written only by its own control loop.
type Slot struct {
	id int

	mu            sync.RWMutex
	state         models.SlotState
	retries       int
	proxy         string
	profilePath   string
	session       browser.Session
	stats         models.SlotStats
	reported      map[string]bool
	due           map[models.Category]time.Time
	nextRun       time.Time
	windowID      string
	windowStart   time.Time
	windowBase    models.SlotStats
	windowOpen    bool
	iterCancel    context.CancelFunc
	restartReason string

	restartCh chan struct{} // buffered, restart requests
	stopCh    chan struct{} // closed on graceful stop
	stopOnce  sync.Once
	ready     chan struct{} // closed on first RUNNING
	readyOnce sync.Once
	done      chan struct{} // closed when the loop exits
	cancel    context.CancelFunc
}

func newSlot(id int) *Slot {
	return &Slot{
		id:        id,
		state:     models.SlotInitializing,
		stats:     models.NewSlotStats(),
		reported:  make(map[string]bool),
		due:       make(map[models.Category]time.Time),
		restartCh: make(chan struct{}, 1),
		stopCh:    make(chan struct{}),
		ready:     make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// ID returns the slot id
func (s *Slot) ID() int {
	return s.id
}

// State returns the current lifecycle state
func (s *Slot) State() models.SlotState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// setState moves the slot to state. STOPPED is terminal.
func (s *Slot) setState(state models.SlotState) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == models.SlotStopped {
		return false
	}
	s.state = state
	if state == models.SlotRunning || state == models.SlotPaused {
		s.readyOnce.Do(func() { close(s.ready) })
	}
	return true
}

// Heartbeat implements task.Tracker
func (s *Slot) Heartbeat() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.LastHeartbeat = time.Now()
}

// RecordOutcome implements task.Tracker
func (s *Slot) RecordOutcome(out models.Outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !out.Success {
		s.stats.Failures++
		return
	}
	s.stats.Successes++
	if out.Category != models.CategoryNone {
		s.stats.Participations[out.Category]++
	}
	if out.Profit != nil {
		s.stats.Profit += *out.Profit
	}
}

// IncRetries implements task.Tracker
func (s *Slot) IncRetries() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.retries++
	return s.retries
}

// ResetRetries implements task.Tracker
func (s *Slot) ResetRetries() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.retries = 0
}

// Retries implements task.Tracker
func (s *Slot) Retries() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.retries
}

// FirstReport implements task.Tracker
func (s *Slot) FirstReport(signature string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.reported[signature] {
		return false
	}
	s.reported[signature] = true
	return true
}

// Stopping implements task.Tracker
func (s *Slot) Stopping() <-chan struct{} {
	return s.stopCh
}

func (s *Slot) addActiveTime(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.ActiveTime += d
}

func (s *Slot) setIterCancel(cancel context.CancelFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.iterCancel = cancel
}

// requestRestart asks the loop to restart and aborts the current iteration.
// It reports whether an earlier request was still waiting to be picked up.
func (s *Slot) requestRestart(reason string) bool {
	s.mu.Lock()
	pending := s.restartReason != ""
	s.restartReason = reason
	cancel := s.iterCancel
	s.mu.Unlock()

	select {
	case s.restartCh <- struct{}{}:
	default:
	}
	if cancel != nil {
		cancel()
	}
	return pending
}

func (s *Slot) takeRestart() (string, bool) {
	select {
	case <-s.restartCh:
		return s.consumeReason(), true
	default:
		return "", false
	}
}

// consumeReason returns and clears the pending restart reason. Call it
// after receiving from restartCh.
func (s *Slot) consumeReason() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	reason := s.restartReason
	s.restartReason = ""
	if reason == "" {
		reason = ReasonManual
	}
	return reason
}

// schedule sets the first due time of every enabled category
func (s *Slot) schedule(at time.Time, cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.due[models.CategoryAmateur] = at
	if cfg.ContenderInterval > 0 {
		s.due[models.CategoryContender] = at
	}
	s.nextRun = at
}

// nextDue returns the category due soonest. Contender wins ties.
func (s *Slot) nextDue() (models.Category, time.Time) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cat, at := models.CategoryAmateur, s.due[models.CategoryAmateur]
	if c, ok := s.due[models.CategoryContender]; ok && !c.After(at) {
		cat, at = models.CategoryContender, c
	}
	return cat, at
}

// reschedule pushes the due time of the category that was requested and of
// the one that actually ran
func (s *Slot) reschedule(requested, ran models.Category, now time.Time, cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, cat := range []models.Category{requested, ran} {
		if _, ok := s.due[cat]; ok {
			s.due[cat] = now.Add(cfg.interval(cat))
		}
	}
	s.nextRun = s.due[models.CategoryAmateur]
	if c, ok := s.due[models.CategoryContender]; ok && c.Before(s.nextRun) {
		s.nextRun = c
	}
}

func (s *Slot) gracefulStop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

func (s *Slot) stopping() bool {
	select {
	case <-s.stopCh:
		return true
	default:
		return false
	}
}

// openWindow starts a new session window
func (s *Slot) openWindow(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.windowID = uuid.NewString()
	s.windowStart = now
	s.windowBase = s.stats.Clone()
	s.windowOpen = true
}

// closeWindow ends the current window and returns its record. Only the
// first call after openWindow returns ok.
func (s *Slot) closeWindow(now time.Time, botID string, initialBalance *float64) (models.SessionRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.windowOpen {
		return models.SessionRecord{}, false
	}
	s.windowOpen = false

	cur, base := s.stats, s.windowBase
	rec := models.SessionRecord{
		SessionID:      s.windowID,
		StartTime:      models.FormatTime(s.windowStart),
		EndTime:        models.FormatTime(now),
		BotID:          botID,
		SlotID:         s.id,
		Profit:         cur.Profit - base.Profit,
		Participations: cur.TotalParticipations() - base.TotalParticipations(),
		Successes:      cur.Successes - base.Successes,
		Failures:       cur.Failures - base.Failures,
		ActiveTime:     (cur.ActiveTime - base.ActiveTime).Seconds(),
		InitialBalance: initialBalance,
	}
	return rec, true
}

func (s *Slot) status(now time.Time) SlotStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := SlotStatus{
		ID:            s.id,
		State:         s.state,
		Retries:       s.retries,
		Proxy:         s.proxy,
		ProfilePath:   s.profilePath,
		LastHeartbeat: s.stats.LastHeartbeat,
		NextRun:       s.nextRun,
		Stats:         s.stats.Clone(),
	}
	if !s.stats.LastHeartbeat.IsZero() {
		st.HeartbeatAge = now.Sub(s.stats.LastHeartbeat)
	}
	if s.session != nil {
		st.SessionID = s.session.ID()
		st.PID = s.session.PID()
	}
	return st
}

// SlotStatus is a point-in-time copy of a slot
type SlotStatus struct {
	ID            int              `json:"id"`
	State         models.SlotState `json:"state"`
	Retries       int              `json:"retries"`
	Proxy         string           `json:"proxy,omitempty"`
	ProfilePath   string           `json:"profile_path,omitempty"`
	LastHeartbeat time.Time        `json:"last_heartbeat"`
	HeartbeatAge  time.Duration    `json:"last_heartbeat_age"`
	NextRun       time.Time        `json:"next_run"`
	SessionID     string           `json:"session_id,omitempty"`
	PID           int              `json:"pid,omitempty"`
	Stats         models.SlotStats `json:"stats"`
}
