// Package daemon assembles the pool, its supervisors and its control
// surfaces into one long-running process.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gabe/botpool/internal/browser"
	"github.com/gabe/botpool/internal/config"
	"github.com/gabe/botpool/internal/errreport"
	"github.com/gabe/botpool/internal/history"
	"github.com/gabe/botpool/internal/logger"
	"github.com/gabe/botpool/internal/metrics"
	"github.com/gabe/botpool/internal/models"
	"github.com/gabe/botpool/internal/notify"
	"github.com/gabe/botpool/internal/profile"
	"github.com/gabe/botpool/internal/proxy"
	"github.com/gabe/botpool/internal/registry"
	"github.com/gabe/botpool/internal/remote"
	"github.com/gabe/botpool/internal/scheduler"
	"github.com/gabe/botpool/internal/storage"
	"github.com/gabe/botpool/internal/task"
	"github.com/gabe/botpool/internal/watchdog"
)

// State represents the daemon's operational state
type State string

const (
	StateIdle    State = "idle"
	StateRunning State = "running"
	StatePaused  State = "paused"
)

const (
	flushEvery   = 5 * time.Minute
	summaryEvery = time.Hour
	httpShutdown = 5 * time.Second
)

// Daemon runs the bot pool
type Daemon struct {
	paths Paths
	cfg   *config.Config
	log   logger.Logger

	ctx    context.Context
	cancel context.CancelFunc

	metrics    *metrics.Metrics
	notifier   *notify.Manager
	summaries  *notify.SummaryReporter
	reporter   *errreport.Reporter
	diag       *errreport.Diagnostic
	proxies    *proxy.Manager
	history    *history.History
	spawner    *browser.Spawner
	registry   *registry.Registry
	pool       *scheduler.Scheduler
	watchdog   *watchdog.Watchdog
	controller *remote.Controller
	audit      *remote.Audit
	reports    *remote.ReportSchedule
	http       *http.Server

	stopOnce sync.Once
}

// New creates a daemon for the state directory. cfg must be validated.
func New(stateDir string, cfg *config.Config, log logger.Logger) *Daemon {
	if log == nil {
		log = logger.NewNop()
	}
	return &Daemon{
		paths: NewPaths(stateDir),
		cfg:   cfg,
		log:   log.With(logger.String("component", "daemon")),
	}
}

// Paths returns the daemon's file layout
func (d *Daemon) Paths() Paths {
	return d.paths
}

// Start runs the daemon until a signal or a stop command arrives
func (d *Daemon) Start() error {
	if err := os.MkdirAll(d.paths.Dir, 0755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	running, pid, err := CheckExistingDaemon(d.paths.PIDFile)
	if err != nil {
		return err
	}
	if running {
		return fmt.Errorf("daemon already running (PID %d)", pid)
	}
	if err := WritePID(d.paths.PIDFile, os.Getpid()); err != nil {
		return fmt.Errorf("failed to write PID file: %w", err)
	}

	d.ctx, d.cancel = context.WithCancel(context.Background())

	// the control socket outlives d.ctx so a stop request gets its reply
	controlCtx, stopControl := context.WithCancel(context.Background())
	defer stopControl()

	if err := d.build(); err != nil {
		d.teardown()
		RemovePID(d.paths.PIDFile)
		return err
	}

	go func() {
		if err := d.controlServer().ListenAndServe(controlCtx, d.paths.Socket); err != nil {
			d.log.Error("Control socket failed", logger.Error(err))
		}
	}()

	start := d.diag.Wrap("pool.start", func(ctx context.Context) error {
		return d.pool.Start(ctx, d.cfg.Pool.Slots, d.schedulerConfig())
	})
	if err := start(d.ctx); err != nil {
		// slots that failed to come up keep retrying in their loops
		d.log.Warn("Pool started degraded", logger.Error(err))
	}

	go func() {
		if err := d.watchdog.Start(d.ctx); err != nil && !errors.Is(err, context.Canceled) {
			d.log.Error("Watchdog stopped", logger.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	d.log.Info("Botpool daemon started",
		logger.Int("pid", os.Getpid()),
		logger.Int("slots", d.cfg.Pool.Slots),
		logger.Int("proxies", d.proxies.Size()))

	flushTicker := time.NewTicker(flushEvery)
	defer flushTicker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return d.shutdown(stopControl)
		case sig := <-sigChan:
			d.log.Info("Received signal, shutting down", logger.String("signal", sig.String()))
			return d.shutdown(stopControl)
		case <-flushTicker.C:
			d.flushPending()
		}
	}
}

// Stop asks a running Start to return. It does not block.
func (d *Daemon) Stop() {
	if d.cancel != nil {
		d.cancel()
	}
}

// Status returns the current daemon status
func (d *Daemon) Status() (State, int, error) {
	running, pid, err := CheckExistingDaemon(d.paths.PIDFile)
	if err != nil {
		return "", 0, err
	}
	if !running {
		return StateIdle, 0, nil
	}
	snap, err := registry.New(d.paths.Registry).Read()
	if err == nil && snap.Paused {
		return StatePaused, pid, nil
	}
	return StateRunning, pid, nil
}

func (d *Daemon) build() error {
	cfg := d.cfg
	dir := d.paths.Dir

	d.metrics = metrics.New()

	d.notifier = notify.NewManager(notify.NewLogNotifier(d.log))
	d.summaries = notify.NewSummaryReporter(d.paths.Summaries, summaryEvery)
	d.summaries.Start()
	d.notifier.Add(d.summaries)

	queue, err := storage.NewForwardQueue(d.paths.Forwards)
	if err != nil {
		return fmt.Errorf("failed to open forward queue: %w", err)
	}
	reporterOpts := []errreport.Option{errreport.WithLogger(d.log), errreport.WithPendingQueue(queue)}
	if cfg.Errors.ForwardURL != "" {
		forwarder := notify.NewManager(notify.NewWebhookNotifier(cfg.Errors.ForwardURL, 10*time.Second))
		reporterOpts = append(reporterOpts, errreport.WithForwarder(forwarder.NotifyErrorCaptured))
	}
	d.reporter, err = errreport.New(config.Resolve(dir, cfg.Errors.LogFile), reporterOpts...)
	if err != nil {
		return err
	}
	d.diag = errreport.NewDiagnostic(d.reporter, d.log)
	d.flushPending()

	if err := d.buildProxies(); err != nil {
		return err
	}

	profiles, err := profile.NewManager(config.Resolve(dir, cfg.Pool.ProfileDir))
	if err != nil {
		return fmt.Errorf("failed to create profile manager: %w", err)
	}
	d.history, err = history.New(config.Resolve(dir, cfg.History.Dir), cfg.History.BotID, d.log)
	if err != nil {
		return fmt.Errorf("failed to open history: %w", err)
	}

	executors := task.NewRegistry()
	executors.Register("exec", task.NewExecExecutor(cfg.Pool.ExecutorCommand))
	executors.Register("navigate", task.NavigateExecutor{URL: cfg.Browser.StartURL})
	executor, err := executors.Get(cfg.Pool.Executor)
	if err != nil {
		return err
	}
	runner := task.NewRunner(executor, task.RetryPolicy{
		MaxAttempts: cfg.Retry.MaxAttempts,
		Delay:       cfg.Retry.DelayDuration(),
	}, d.reporter, d.log)

	d.spawner = browser.NewSpawner(browser.ChromeLauncher{})
	d.registry = registry.New(d.paths.Registry)
	d.pool = scheduler.New(runner,
		scheduler.WithSpawner(d.spawner),
		scheduler.WithProxies(d.proxies),
		scheduler.WithProfiles(profiles),
		scheduler.WithHistory(d.history),
		scheduler.WithNotifier(d.notifier),
		scheduler.WithObserver(d.metrics),
		scheduler.WithCapturer(d.reporter),
		scheduler.WithStatusSink(d.writeSnapshot),
		scheduler.WithLogger(d.log),
	)

	wdOpts := []watchdog.Option{
		watchdog.WithInterval(cfg.Watchdog.IntervalDuration()),
		watchdog.WithTimeout(cfg.Watchdog.TimeoutDuration()),
		watchdog.WithRestartEvery(cfg.Watchdog.RestartEvery),
		watchdog.WithMemoryProbe(d.spawner),
		watchdog.WithLogger(d.log),
		watchdog.WithOnUnhealthy(func(h watchdog.Health) {
			d.log.Warn("Slot unhealthy",
				logger.Int("slot", h.SlotID),
				logger.String("status", string(h.Status)),
				logger.String("message", h.Message))
		}),
	}
	if cfg.Watchdog.MaxMemoryMB > 0 {
		wdOpts = append(wdOpts, watchdog.WithMaxMemory(uint64(cfg.Watchdog.MaxMemoryMB)*1024*1024))
	}
	d.watchdog = watchdog.New(d.pool, wdOpts...)

	return d.buildRemote()
}

func (d *Daemon) buildProxies() error {
	cfg := d.cfg.Proxy
	addresses := append([]string(nil), cfg.Addresses...)

	var file string
	if cfg.File != "" {
		file = config.Resolve(d.paths.Dir, cfg.File)
		loaded, err := proxy.LoadFile(file)
		if err != nil {
			return fmt.Errorf("failed to load proxy file: %w", err)
		}
		addresses = append(addresses, loaded...)
	}

	d.proxies = proxy.NewManager(addresses,
		proxy.WithLogger(d.log),
		proxy.WithOnDegraded(func(slotID int, address string) {
			// called under the manager's lock
			go d.notifier.NotifyProxyDegraded(slotID, address)
		}),
	)
	d.metrics.WatchProxies(d.proxies.FailureStats)

	if file == "" {
		return nil
	}
	added, err := proxy.Watch(d.ctx, file, d.proxies, d.log)
	if err != nil {
		d.log.Warn("Proxy file will not be reloaded", logger.Error(err))
		return nil
	}
	go func() {
		for n := range added {
			d.log.Info("Proxy file reloaded", logger.Int("added", n), logger.Int("total", d.proxies.Size()))
		}
	}()
	return nil
}

func (d *Daemon) buildRemote() error {
	cfg := d.cfg.Remote

	acl, err := remote.LoadACL(d.paths.ACL, cfg.AllowedChannels)
	if err != nil {
		return fmt.Errorf("failed to load allow-list: %w", err)
	}
	d.audit, err = remote.OpenAudit(d.paths.Audit)
	if err != nil {
		return err
	}

	d.controller = remote.NewController(d.pool, acl,
		remote.WithReports(d.history),
		remote.WithProxyLister(d.proxies),
		remote.WithAudit(d.audit),
		remote.WithShutdown(d.Stop),
		remote.WithControllerLogger(d.log),
	)
	d.notifier.Add(remote.NewBroadcaster(d.controller,
		notify.NotificationTypeSlotRestarted,
		notify.NotificationTypeEmergencyStop,
		notify.NotificationTypeProxyDegraded,
	))

	handlers := routes{
		metrics: d.metrics.Handler(),
		health:  metrics.HealthHandler(d.healthCheck),
	}

	if cfg.TelegramToken != "" {
		d.serve(remote.NewTelegram(cfg.TelegramToken, remote.WithTelegramLogger(d.log)))
	}
	if cfg.JWTSecret != "" {
		ws := remote.NewWebSocket(cfg.JWTSecret, d.log)
		handlers.ws = ws
		d.serve(ws)
	}

	if cfg.ReportSchedule != "" {
		d.reports, err = remote.ScheduleReports(d.ctx, cfg.ReportSchedule, d.controller, d.log)
		if err != nil {
			return err
		}
	}

	if d.cfg.Metrics.Listen != "" {
		d.http = &http.Server{
			Addr:              d.cfg.Metrics.Listen,
			Handler:           newRouter(d.log, handlers),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			if err := d.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				d.log.Error("HTTP server failed", logger.String("addr", d.cfg.Metrics.Listen), logger.Error(err))
			}
		}()
	}
	return nil
}

func (d *Daemon) serve(t remote.Transport) {
	go func() {
		if err := d.controller.Serve(d.ctx, t); err != nil && !errors.Is(err, context.Canceled) {
			d.log.Error("Remote transport stopped", logger.String("transport", t.Name()), logger.Error(err))
		}
	}()
}

func (d *Daemon) schedulerConfig() scheduler.Config {
	pool := d.cfg.Pool
	sc := scheduler.Config{
		BaseInterval:      pool.BaseIntervalDuration(),
		ContenderInterval: pool.ContenderIntervalDuration(),
		StartTimeout:      pool.StartTimeoutDuration(),
		DrainTimeout:      pool.DrainTimeoutDuration(),
		InitBackoff:       pool.InitBackoffDuration(),
		Stagger:           true,
		BotID:             d.cfg.History.BotID,
		Browser: browser.Options{
			ExecPath:  d.cfg.Browser.ExecPath,
			Headless:  d.cfg.Browser.Headless,
			StartURL:  d.cfg.Browser.StartURL,
			ExtraArgs: d.cfg.Browser.ExtraArgs,
		},
	}
	if d.cfg.History.InitialBalance > 0 {
		balance := d.cfg.History.InitialBalance
		sc.InitialBalance = &balance
	}
	return sc
}

func (d *Daemon) writeSnapshot(slots []scheduler.SlotStatus) {
	paused := false
	for _, st := range slots {
		if st.State == models.SlotPaused {
			paused = true
			break
		}
	}
	snap := registry.Snapshot{PID: os.Getpid(), Paused: paused, Slots: slots}
	if err := d.registry.Write(snap); err != nil {
		d.log.Warn("Failed to write slot snapshot", logger.Error(err))
	}
}

func (d *Daemon) healthCheck() error {
	if !d.pool.Running() {
		return errors.New("pool is not running")
	}
	for _, h := range d.watchdog.Status() {
		if h.Status != watchdog.StatusHealthy {
			return fmt.Errorf("slot %d: %s", h.SlotID, h.Message)
		}
	}
	return nil
}

func (d *Daemon) flushPending() {
	flush := errreport.Diagnose(d.diag, "errors.flush", func(context.Context) (int, error) {
		return d.reporter.FlushPending()
	})
	n, err := flush(context.Background())
	if err != nil {
		d.log.Warn("Failed to flush pending error forwards", logger.Error(err))
		return
	}
	if n > 0 {
		d.log.Info("Flushed pending error forwards", logger.Int("count", n))
	}
}

func (d *Daemon) shutdown(stopControl context.CancelFunc) error {
	d.stopOnce.Do(func() {
		if d.pool.Running() {
			report := d.pool.Stop(false)
			if len(report.Forced) > 0 {
				d.log.Warn("Slots forced to stop", logger.Any("slots", report.Forced))
			}
		}
		d.cancel()
		d.teardown()
		stopControl()

		if err := d.registry.Clear(); err != nil {
			d.log.Warn("Failed to clear slot snapshot", logger.Error(err))
		}
		RemovePID(d.paths.PIDFile)
		d.log.Info("Botpool daemon stopped")
		_ = d.log.Sync()
	})
	return nil
}

// teardown closes whatever build managed to open
func (d *Daemon) teardown() {
	if d.cancel != nil {
		d.cancel()
	}
	if d.reports != nil {
		d.reports.Stop()
	}
	if d.http != nil {
		ctx, cancel := context.WithTimeout(context.Background(), httpShutdown)
		if err := d.http.Shutdown(ctx); err != nil {
			d.log.Warn("HTTP server shutdown", logger.Error(err))
		}
		cancel()
	}
	if d.notifier != nil {
		if err := d.notifier.Close(); err != nil {
			d.log.Warn("Failed to close notifiers", logger.Error(err))
		}
	}
	if d.audit != nil {
		d.audit.Close()
	}
}
