// Package scheduler owns the pool of worker slots and drives each slot's
// control loop: initialize, run the task on its interval, restart on
// exhaustion and drain on stop.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/gabe/botpool/internal/browser"
	"github.com/gabe/botpool/internal/logger"
	"github.com/gabe/botpool/internal/models"
	"github.com/gabe/botpool/internal/profile"
	"github.com/gabe/botpool/internal/proxy"
	"github.com/gabe/botpool/internal/task"
)

// Restart reasons
const (
	ReasonManual    = "manual restart"
	ReasonExhausted = "retries exhausted"
	ReasonStale     = "heartbeat stale"
	ReasonMemory    = "memory limit exceeded"
	ReasonPanic     = "loop panicked"
)

const (
	heartbeatEvery = 10 * time.Second
	forceGrace     = 5 * time.Second
)

// Config holds the timing of the slot loops
type Config struct {
	BaseInterval      time.Duration
	ContenderInterval time.Duration // 0 disables contender runs
	StartTimeout      time.Duration
	DrainTimeout      time.Duration
	InitBackoff       time.Duration
	Stagger           bool // spread first runs across one base interval
	BotID             string
	InitialBalance    *float64
	Browser           browser.Options // ProfileDir and Proxy are set per slot
}

// DefaultConfig returns the stock timings
func DefaultConfig() Config {
	return Config{
		BaseInterval:      3 * time.Minute,
		ContenderInterval: time.Hour,
		StartTimeout:      time.Minute,
		DrainTimeout:      30 * time.Second,
		InitBackoff:       5 * time.Second,
		Stagger:           true,
		BotID:             "default",
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.BaseInterval <= 0 {
		c.BaseInterval = d.BaseInterval
	}
	if c.StartTimeout <= 0 {
		c.StartTimeout = d.StartTimeout
	}
	if c.DrainTimeout <= 0 {
		c.DrainTimeout = d.DrainTimeout
	}
	if c.InitBackoff < 0 {
		c.InitBackoff = 0
	}
	if c.BotID == "" {
		c.BotID = d.BotID
	}
	return c
}

func (c Config) interval(cat models.Category) time.Duration {
	if cat == models.CategoryContender {
		return c.ContenderInterval
	}
	return c.BaseInterval
}

// SessionRecorder persists finished session windows
type SessionRecorder interface {
	RecordSession(rec models.SessionRecord, day *time.Time) error
}

// Notifier is told about restarts and emergency stops
type Notifier interface {
	NotifySlotRestarted(slotID int, reason string) error
	NotifyEmergencyStop(slots, failures int) error
}

// Observer receives lifecycle and task events, typically for metrics
type Observer interface {
	SlotStateChanged(slotID int, state models.SlotState)
	TaskCompleted(slotID int, res task.Result)
	SlotRestarted(slotID int, reason string)
}

// StopReport summarizes a Stop call
type StopReport struct {
	Emergency    bool           `json:"emergency"`
	Slots        int            `json:"slots"`
	Forced       []int          `json:"forced,omitempty"`
	KillFailures map[int]string `json:"kill_failures,omitempty"`
}

// Option configures a Scheduler
type Option func(*Scheduler)

// WithSpawner sets the browser spawner. Without one slots run browserless.
func WithSpawner(sp *browser.Spawner) Option {
	return func(s *Scheduler) { s.spawner = sp }
}

// WithProxies sets the proxy pool
func WithProxies(m *proxy.Manager) Option {
	return func(s *Scheduler) { s.proxies = m }
}

// WithProfiles sets the per-slot profile store
func WithProfiles(m *profile.Manager) Option {
	return func(s *Scheduler) { s.profiles = m }
}

// WithHistory sets where session windows are recorded
func WithHistory(r SessionRecorder) Option {
	return func(s *Scheduler) { s.history = r }
}

// WithNotifier sets the restart notifier
func WithNotifier(n Notifier) Option {
	return func(s *Scheduler) { s.notifier = n }
}

// WithObserver sets the event observer
func WithObserver(o Observer) Option {
	return func(s *Scheduler) { s.observer = o }
}

// WithCapturer sets where panics recovered in slot loops are reported
func WithCapturer(c task.Capturer) Option {
	return func(s *Scheduler) { s.capturer = c }
}

// WithStatusSink registers a function called with a fresh snapshot after
// every state change
func WithStatusSink(fn func([]SlotStatus)) Option {
	return func(s *Scheduler) { s.sink = fn }
}

// WithLogger sets the logger
func WithLogger(l logger.Logger) Option {
	return func(s *Scheduler) { s.log = l }
}

// Scheduler owns the slot roster
type Scheduler struct {
	runner   *task.Runner
	spawner  *browser.Spawner
	proxies  *proxy.Manager
	profiles *profile.Manager
	history  SessionRecorder
	notifier Notifier
	observer Observer
	capturer task.Capturer
	sink     func([]SlotStatus)
	log      logger.Logger
	now      func() time.Time

	mu      sync.RWMutex
	cfg     Config
	slots   map[int]*Slot
	root    context.Context
	cancel  context.CancelFunc
	paused  bool
	stopped bool
	changed chan struct{} // closed and replaced on pause and resume
}

// New creates a scheduler running tasks through runner
func New(runner *task.Runner, opts ...Option) *Scheduler {
	s := &Scheduler{
		runner:  runner,
		cfg:     DefaultConfig(),
		slots:   make(map[int]*Slot),
		changed: make(chan struct{}),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = logger.NewNop()
	}
	s.log = s.log.With(logger.String("component", "scheduler"))
	return s
}

// Start brings slots 1..n up. Slots already live are left alone. It returns
// once every new slot is RUNNING or cfg.StartTimeout has elapsed.
func (s *Scheduler) Start(ctx context.Context, n int, cfg Config) error {
	if n < 1 {
		return ErrInvalidSlotCount
	}
	cfg = cfg.withDefaults()

	s.mu.Lock()
	if s.root == nil || s.stopped {
		s.root, s.cancel = context.WithCancel(context.WithoutCancel(ctx))
		s.stopped = false
	}
	s.cfg = cfg
	var started []*Slot
	for id := 1; id <= n; id++ {
		if cur, ok := s.slots[id]; ok && cur.State() != models.SlotStopped {
			continue
		}
		slot := newSlot(id)
		slotCtx, cancel := context.WithCancel(s.root)
		slot.cancel = cancel
		s.slots[id] = slot
		started = append(started, slot)
		go s.loop(slotCtx, slot, cfg, s.firstDelay(id, n, cfg))
	}
	s.mu.Unlock()

	if len(started) == 0 {
		return nil
	}

	waitCtx, cancel := context.WithTimeout(ctx, cfg.StartTimeout)
	defer cancel()

	var ready atomic.Int32
	g, gctx := errgroup.WithContext(waitCtx)
	for _, slot := range started {
		slot := slot
		g.Go(func() error {
			select {
			case <-slot.ready:
				ready.Add(1)
			case <-gctx.Done():
				s.log.Warn("Slot not running before start timeout",
					logger.Int("slot", slot.id),
					logger.String("state", string(slot.State())))
			}
			return nil
		})
	}
	_ = g.Wait()

	s.log.Info("Slots started",
		logger.Int("requested", len(started)),
		logger.Int("running", int(ready.Load())))
	s.publish()
	return nil
}

// Stop ends every slot loop. A graceful stop lets in-flight tasks finish,
// bounded by the drain timeout; an emergency stop kills every browser at
// once without waiting for the loops.
func (s *Scheduler) Stop(emergency bool) StopReport {
	s.mu.Lock()
	slots := s.sortedSlotsLocked()
	s.stopped = true
	cancelRoot := s.cancel
	cfg := s.cfg
	s.mu.Unlock()

	report := StopReport{Emergency: emergency, Slots: len(slots)}
	if emergency {
		report.KillFailures = s.emergencyStop(slots)
	} else {
		report.Forced = s.drain(slots, cfg.DrainTimeout)
	}
	if cancelRoot != nil {
		cancelRoot()
	}

	s.log.Info("Scheduler stopped",
		logger.Bool("emergency", emergency),
		logger.Int("slots", len(slots)),
		logger.Int("forced", len(report.Forced)),
		logger.Int("kill_failures", len(report.KillFailures)))
	s.publish()
	return report
}

func (s *Scheduler) emergencyStop(slots []*Slot) map[int]string {
	for _, slot := range slots {
		slot.gracefulStop()
		s.transition(slot, models.SlotStopped)
		if slot.cancel != nil {
			slot.cancel()
		}
	}

	failures := make(map[int]string)
	if s.spawner != nil {
		for id, err := range s.spawner.KillAll() {
			failures[id] = err.Error()
			s.log.Error("Failed to kill browser", logger.Int("slot", id), logger.Error(err))
		}
	}
	for _, slot := range slots {
		s.finish(slot)
	}

	if s.notifier != nil {
		if err := s.notifier.NotifyEmergencyStop(len(slots), len(failures)); err != nil {
			s.log.Warn("Failed to send emergency stop notification", logger.Error(err))
		}
	}
	if len(failures) == 0 {
		return nil
	}
	return failures
}

func (s *Scheduler) drain(slots []*Slot, timeout time.Duration) []int {
	for _, slot := range slots {
		slot.gracefulStop()
	}

	var (
		mu     sync.Mutex
		forced []int
	)
	var g errgroup.Group
	for _, slot := range slots {
		slot := slot
		g.Go(func() error {
			if waitDone(slot, timeout) {
				return nil
			}
			mu.Lock()
			forced = append(forced, slot.id)
			mu.Unlock()

			s.log.Warn("Drain timeout, forcing slot", logger.Int("slot", slot.id))
			if slot.cancel != nil {
				slot.cancel()
			}
			if !waitDone(slot, forceGrace) && s.spawner != nil {
				_ = s.spawner.Kill(slot.id)
			}
			s.finish(slot)
			return nil
		})
	}
	_ = g.Wait()

	sort.Ints(forced)
	return forced
}

func waitDone(slot *Slot, timeout time.Duration) bool {
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-slot.done:
		return true
	case <-t.C:
		return false
	}
}

// Pause stops dispatching new tasks. In-flight tasks finish.
func (s *Scheduler) Pause() error {
	return s.setPaused(true)
}

// Resume restarts dispatching after Pause
func (s *Scheduler) Resume() error {
	return s.setPaused(false)
}

func (s *Scheduler) setPaused(paused bool) error {
	s.mu.Lock()
	if s.root == nil || s.stopped {
		s.mu.Unlock()
		return fmt.Errorf("%w: scheduler is not running", ErrInvalidState)
	}
	s.paused = paused
	close(s.changed)
	s.changed = make(chan struct{})

	from, to := models.SlotRunning, models.SlotPaused
	if !paused {
		from, to = models.SlotPaused, models.SlotRunning
	}
	var moved []*Slot
	for _, slot := range s.slots {
		if slot.State() == from && slot.setState(to) {
			moved = append(moved, slot)
		}
	}
	s.mu.Unlock()

	for _, slot := range moved {
		s.observe(slot.id, to)
	}
	s.log.Info("Pause state changed", logger.Bool("paused", paused), logger.Int("slots", len(moved)))
	s.publish()
	return nil
}

// Paused reports whether dispatch is paused
func (s *Scheduler) Paused() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.paused
}

// RestartSlot tears down and re-initializes one slot. It returns false for
// unknown or stopped slots.
func (s *Scheduler) RestartSlot(id int) bool {
	return s.RestartSlotFor(id, ReasonManual)
}

// RestartSlotFor is RestartSlot with a reason
func (s *Scheduler) RestartSlotFor(id int, reason string) bool {
	s.mu.RLock()
	slot, ok := s.slots[id]
	s.mu.RUnlock()

	if !ok || slot.State() == models.SlotStopped {
		return false
	}
	s.log.Info("Restart requested", logger.Int("slot", id), logger.String("reason", reason))
	if !slot.requestRestart(reason) || s.spawner == nil {
		return true
	}

	// The loop is wedged in a task that ignores cancellation; pull the
	// browser out from under it.
	s.log.Warn("Restart not honoured, killing browser", logger.Int("slot", id))
	if err := s.spawner.Kill(id); err != nil && !errors.Is(err, browser.ErrSessionNotFound) {
		s.log.Error("Failed to kill browser", logger.Int("slot", id), logger.Error(err))
	}
	return true
}

// Status returns a snapshot of every slot ordered by id
func (s *Scheduler) Status() []SlotStatus {
	s.mu.RLock()
	slots := s.sortedSlotsLocked()
	s.mu.RUnlock()

	now := s.now()
	out := make([]SlotStatus, 0, len(slots))
	for _, slot := range slots {
		out = append(out, slot.status(now))
	}
	return out
}

// Running reports whether the scheduler has live slots
func (s *Scheduler) Running() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.root != nil && !s.stopped
}

func (s *Scheduler) sortedSlotsLocked() []*Slot {
	out := make([]*Slot, 0, len(s.slots))
	for _, slot := range s.slots {
		out = append(out, slot)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

func (s *Scheduler) firstDelay(id, n int, cfg Config) time.Duration {
	if !cfg.Stagger || n <= 1 {
		return 0
	}
	return time.Duration(id-1) * cfg.BaseInterval / time.Duration(n)
}

// loop is the control loop of one slot
func (s *Scheduler) loop(ctx context.Context, slot *Slot, cfg Config, firstDelay time.Duration) {
	defer close(slot.done)
	defer s.finish(slot)

	first := true
	for {
		if ctx.Err() != nil || slot.stopping() {
			return
		}

		s.transition(slot, models.SlotInitializing)
		if err := s.initialize(ctx, slot, cfg); err != nil {
			if ctx.Err() != nil {
				return
			}
			s.log.Warn("Slot initialization failed",
				logger.Int("slot", slot.id),
				logger.Error(err))
			s.transition(slot, models.SlotRestarting)
			if !wait(ctx, slot.stopCh, cfg.InitBackoff) {
				return
			}
			continue
		}

		if first {
			slot.schedule(s.now().Add(firstDelay), cfg)
			first = false
		}
		slot.openWindow(s.now())
		s.activate(slot)

		reason := s.guard(slot, func() string { return s.dispatch(ctx, slot, cfg) })
		if reason == "" {
			return
		}
		s.restart(slot, reason)
	}
}

// guard runs fn, turning a panic into a restart
func (s *Scheduler) guard(slot *Slot, fn func() string) (reason string) {
	defer func() {
		if p := recover(); p != nil {
			stack := debug.Stack()
			s.log.Error("Slot loop panicked",
				logger.Int("slot", slot.id),
				logger.Any("panic", p))
			if s.capturer != nil {
				s.capturer.CapturePanic(p, stack)
			}
			slot.setIterCancel(nil)
			reason = ReasonPanic
		}
	}()
	return fn()
}

// initialize acquires a proxy, a profile and a browser for slot
func (s *Scheduler) initialize(ctx context.Context, slot *Slot, cfg Config) error {
	var addr string
	if s.proxies != nil {
		addr, _ = s.proxies.Get(slot.id)
	}

	var profilePath string
	if s.profiles != nil {
		p, err := s.profiles.Acquire(slot.id, addr)
		if err != nil {
			s.releaseProxy(slot.id)
			return fmt.Errorf("acquire profile: %w", err)
		}
		profilePath = p.Path
	}

	var session browser.Session
	if s.spawner != nil {
		opts := cfg.Browser
		opts.ProfileDir = profilePath
		opts.Proxy = addr

		launchCtx, cancel := context.WithTimeout(ctx, cfg.StartTimeout)
		var err error
		session, err = s.spawner.Spawn(launchCtx, slot.id, opts)
		cancel()
		if err != nil {
			s.releaseProxy(slot.id)
			return fmt.Errorf("launch browser: %w", err)
		}
	}

	slot.mu.Lock()
	slot.proxy = addr
	slot.profilePath = profilePath
	slot.session = session
	slot.stats.LastHeartbeat = s.now()
	slot.mu.Unlock()
	return nil
}

// dispatch runs tasks until the slot needs a restart, returning the reason,
// or until the loop should end, returning "".
func (s *Scheduler) dispatch(ctx context.Context, slot *Slot, cfg Config) string {
	for {
		cat, at := slot.nextDue()
		if reason, proceed := s.idle(ctx, slot, at); !proceed {
			return reason
		}
		if reason, ok := slot.takeRestart(); ok {
			return reason
		}

		slot.mu.RLock()
		sc := task.SlotContext{
			SlotID:      slot.id,
			ProfilePath: slot.profilePath,
			Proxy:       slot.proxy,
			Category:    cat,
			Browser:     slot.session,
		}
		slot.mu.RUnlock()

		iterCtx, cancel := context.WithCancel(ctx)
		slot.setIterCancel(cancel)
		began := s.now()
		res := s.runner.Run(iterCtx, slot, sc)
		slot.setIterCancel(nil)
		cancel()
		slot.addActiveTime(s.now().Sub(began))

		if reason, ok := slot.takeRestart(); ok {
			return reason
		}
		if res.Cancelled {
			if ctx.Err() != nil || slot.stopping() {
				return ""
			}
			continue
		}
		if s.observer != nil {
			s.observer.TaskCompleted(slot.id, res)
		}
		if res.Exhausted {
			s.log.Warn("Slot retry budget exhausted",
				logger.Int("slot", slot.id),
				logger.Error(res.Err()))
			return ReasonExhausted
		}

		ran := res.Outcome.Category
		if ran == models.CategoryNone {
			ran = cat
		}
		slot.reschedule(cat, ran, s.now(), cfg)
		s.publish()
	}
}

// idle waits until the slot's next run is due and dispatch is not paused,
// touching the heartbeat while it waits.
func (s *Scheduler) idle(ctx context.Context, slot *Slot, until time.Time) (string, bool) {
	hb := time.NewTicker(heartbeatEvery)
	defer hb.Stop()

	for {
		s.mu.RLock()
		paused, changed := s.paused, s.changed
		s.mu.RUnlock()

		var (
			timer *time.Timer
			due   <-chan time.Time
		)
		if !paused {
			d := until.Sub(s.now())
			if d <= 0 {
				return "", true
			}
			timer = time.NewTimer(d)
			due = timer.C
		}

		reason, proceed, done := "", false, true
		select {
		case <-ctx.Done():
		case <-slot.stopCh:
		case <-slot.restartCh:
			reason = slot.consumeReason()
		case <-hb.C:
			slot.Heartbeat()
			done = false
		case <-changed:
			done = false
		case <-due:
			proceed = true
		}
		if timer != nil {
			timer.Stop()
		}
		if done {
			return reason, proceed
		}
	}
}

// activate moves a freshly initialized slot to RUNNING, or PAUSED when
// dispatch is paused.
func (s *Scheduler) activate(slot *Slot) {
	s.mu.RLock()
	state := models.SlotRunning
	if s.paused {
		state = models.SlotPaused
	}
	ok := slot.setState(state)
	s.mu.RUnlock()

	if ok {
		s.observe(slot.id, state)
		s.publish()
	}
}

// restart tears the slot down so the loop can initialize it again
func (s *Scheduler) restart(slot *Slot, reason string) {
	if !s.transition(slot, models.SlotRestarting) {
		return
	}
	s.recordWindow(slot)

	if s.spawner != nil {
		if err := s.spawner.Close(slot.id); err != nil {
			s.log.Debug("Browser close failed", logger.Int("slot", slot.id), logger.Error(err))
		}
	}
	if s.proxies != nil {
		if reason == ReasonExhausted {
			s.proxies.ReportFailure(slot.id, reason)
		} else {
			s.proxies.Release(slot.id)
		}
	}

	slot.mu.Lock()
	slot.retries = 0
	slot.stats.Restarts++
	slot.session = nil
	slot.proxy = ""
	slot.mu.Unlock()

	s.log.Info("Slot restarting", logger.Int("slot", slot.id), logger.String("reason", reason))
	if s.observer != nil {
		s.observer.SlotRestarted(slot.id, reason)
	}
	if s.notifier != nil {
		if err := s.notifier.NotifySlotRestarted(slot.id, reason); err != nil {
			s.log.Warn("Failed to send restart notification", logger.Error(err))
		}
	}
}

// finish releases everything the slot holds and marks it STOPPED. It is
// safe to call more than once.
func (s *Scheduler) finish(slot *Slot) {
	s.recordWindow(slot)

	// A replaced slot must not release what its successor holds
	s.mu.RLock()
	current := s.slots[slot.id] == slot
	s.mu.RUnlock()
	if current {
		if s.spawner != nil {
			_ = s.spawner.Close(slot.id)
		}
		s.releaseProxy(slot.id)
	}

	slot.mu.Lock()
	slot.session = nil
	slot.mu.Unlock()

	s.transition(slot, models.SlotStopped)
}

func (s *Scheduler) recordWindow(slot *Slot) {
	s.mu.RLock()
	cfg := s.cfg
	s.mu.RUnlock()

	rec, ok := slot.closeWindow(s.now(), cfg.BotID, cfg.InitialBalance)
	if !ok || s.history == nil {
		return
	}
	if err := s.history.RecordSession(rec, nil); err != nil {
		s.log.Error("Failed to record session",
			logger.Int("slot", slot.id),
			logger.String("session", rec.SessionID),
			logger.Error(err))
	}
}

func (s *Scheduler) releaseProxy(slotID int) {
	if s.proxies != nil {
		s.proxies.Release(slotID)
	}
}

func (s *Scheduler) transition(slot *Slot, state models.SlotState) bool {
	if slot.State() == state {
		return true
	}
	if !slot.setState(state) {
		return false
	}
	s.observe(slot.id, state)
	s.publish()
	return true
}

func (s *Scheduler) observe(slotID int, state models.SlotState) {
	if s.observer != nil {
		s.observer.SlotStateChanged(slotID, state)
	}
}

func (s *Scheduler) publish() {
	if s.sink != nil {
		s.sink(s.Status())
	}
}

// wait sleeps d unless ctx ends or stop closes first
func wait(ctx context.Context, stop <-chan struct{}, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-stop:
		return false
	case <-t.C:
		return true
	}
}
