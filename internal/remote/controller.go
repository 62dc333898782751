package remote

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/gabe/botpool/internal/history"
	"github.com/gabe/botpool/internal/logger"
	"github.com/gabe/botpool/internal/models"
	"github.com/gabe/botpool/internal/proxy"
	"github.com/gabe/botpool/internal/scheduler"
)

// Transport delivers commands and carries replies
type Transport interface {
	Name() string
	// Updates streams incoming commands until ctx ends
	Updates(ctx context.Context) <-chan models.Command
	Reply(ctx context.Context, channelID int64, text string) error
}

// Pool is the part of the scheduler the controller drives
type Pool interface {
	Status() []scheduler.SlotStatus
	Paused() bool
	Pause() error
	Resume() error
	RestartSlot(id int) bool
	Stop(emergency bool) scheduler.StopReport
}

// Reports summarizes performance history
type Reports interface {
	Summarize(start, end time.Time) (history.Summary, error)
}

// ProxyLister lists the proxy pool
type ProxyLister interface {
	Records() []proxy.Record
}

// Response is the reply to a command plus an optional action to run once
// the reply was sent
type Response struct {
	Text  string
	After func()
}

// ControllerOption configures a Controller
type ControllerOption func(*Controller)

// WithReports enables the report commands
func WithReports(r Reports) ControllerOption {
	return func(c *Controller) { c.reports = r }
}

// WithProxyLister enables the proxies command
func WithProxyLister(p ProxyLister) ControllerOption {
	return func(c *Controller) { c.proxies = p }
}

// WithAudit logs every command to a
func WithAudit(a *Audit) ControllerOption {
	return func(c *Controller) { c.audit = a }
}

// WithShutdown is called after a stop command's reply went out
func WithShutdown(fn func()) ControllerOption {
	return func(c *Controller) { c.shutdown = fn }
}

// WithControllerLogger sets the logger
func WithControllerLogger(l logger.Logger) ControllerOption {
	return func(c *Controller) { c.log = l }
}

// Controller authorizes, executes and audits remote commands
type Controller struct {
	pool     Pool
	acl      *ACL
	reports  Reports
	proxies  ProxyLister
	audit    *Audit
	shutdown func()
	log      logger.Logger
	now      func() time.Time

	mu         sync.RWMutex
	transports []Transport
}

// NewController creates a controller for pool guarded by acl
func NewController(pool Pool, acl *ACL, opts ...ControllerOption) *Controller {
	c := &Controller{
		pool: pool,
		acl:  acl,
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.log == nil {
		c.log = logger.NewNop()
	}
	c.log = c.log.With(logger.String("component", "remote"))
	return c
}

// Serve handles commands from t until ctx ends
func (c *Controller) Serve(ctx context.Context, t Transport) error {
	c.mu.Lock()
	c.transports = append(c.transports, t)
	c.mu.Unlock()

	c.log.Info("Remote transport started", logger.String("transport", t.Name()))
	for cmd := range t.Updates(ctx) {
		c.dispatch(ctx, t, cmd)
	}
	return ctx.Err()
}

func (c *Controller) dispatch(ctx context.Context, t Transport, cmd models.Command) {
	allowed, granted, err := c.acl.Authorize(cmd.ChannelID)
	if err != nil {
		c.log.Error("Failed to persist allow-list", logger.Error(err))
	}
	cmd.Authorized = allowed
	if granted {
		c.log.Info("Channel auto-authorized", logger.Int64("channel", cmd.ChannelID))
	}

	if !allowed {
		c.record(ctx, cmd, "ignored")
		c.log.Debug("Ignoring unauthorized command",
			logger.Int64("channel", cmd.ChannelID),
			logger.String("command", cmd.Name))
		return
	}

	resp := c.Handle(ctx, cmd)
	c.record(ctx, cmd, resp.Text)

	if err := t.Reply(ctx, cmd.ChannelID, resp.Text); err != nil {
		c.log.Warn("Failed to send reply",
			logger.String("transport", t.Name()),
			logger.Int64("channel", cmd.ChannelID),
			logger.Error(err))
	}
	if resp.After != nil {
		resp.After()
	}
}

func (c *Controller) record(ctx context.Context, cmd models.Command, result string) {
	if c.audit == nil {
		return
	}
	if err := c.audit.Record(ctx, cmd, result); err != nil {
		c.log.Warn("Failed to audit command", logger.Error(err))
	}
}

// Handle executes an authorized command
func (c *Controller) Handle(ctx context.Context, cmd models.Command) Response {
	switch cmd.Name {
	case CmdStatus, "start":
		return Response{Text: FormatStatus(c.pool.Status(), c.pool.Paused(), c.now())}

	case CmdRestart:
		if len(cmd.Args) != 1 {
			return Response{Text: "Usage: restart <slot>"}
		}
		id, err := strconv.Atoi(cmd.Args[0])
		if err != nil {
			return Response{Text: fmt.Sprintf("Invalid slot id %q", cmd.Args[0])}
		}
		if !c.pool.RestartSlot(id) {
			return Response{Text: fmt.Sprintf("Slot %d not found", id)}
		}
		return Response{Text: fmt.Sprintf("Restarting slot %d", id)}

	case CmdPause:
		if err := c.pool.Pause(); err != nil {
			return Response{Text: fmt.Sprintf("Cannot pause: %v", err)}
		}
		return Response{Text: "Paused. In-flight tasks will finish."}

	case CmdResume:
		if err := c.pool.Resume(); err != nil {
			return Response{Text: fmt.Sprintf("Cannot resume: %v", err)}
		}
		return Response{Text: "Resumed."}

	case CmdStop, CmdEmergencyStop:
		emergency := cmd.Name == CmdEmergencyStop
		report := c.pool.Stop(emergency)
		text := fmt.Sprintf("Stopped %d slots.", report.Slots)
		if emergency {
			text = fmt.Sprintf("Emergency stop: killed %d slots.", report.Slots)
			if n := len(report.KillFailures); n > 0 {
				text += fmt.Sprintf(" %d browsers could not be killed, check the process list.", n)
			}
		} else if n := len(report.Forced); n > 0 {
			text += fmt.Sprintf(" %d did not drain in time and were forced.", n)
		}
		return Response{Text: text, After: c.shutdown}

	case CmdReport:
		return Response{Text: c.Report(history.WindowDaily)}
	case CmdReportWeekly:
		return Response{Text: c.Report(history.WindowWeekly)}
	case CmdReportMonthly:
		return Response{Text: c.Report(history.WindowMonthly)}

	case CmdProxies:
		if c.proxies == nil {
			return Response{Text: "Proxy pool unavailable."}
		}
		return Response{Text: FormatProxies(c.proxies.Records())}

	case CmdHelp:
		return Response{Text: helpText}

	default:
		return Response{Text: fmt.Sprintf("Unknown command %q. Send help for the list.", cmd.Name)}
	}
}

// Report renders the summary of window ending today
func (c *Controller) Report(w history.Window) string {
	if c.reports == nil {
		return "History is not configured."
	}
	start, end := w.Range(c.now())
	summary, err := c.reports.Summarize(start, end)
	if err != nil {
		c.log.Error("Failed to summarize history", logger.Error(err))
		return "Report unavailable, see the daemon log."
	}
	return FormatSummary(reportTitle(w), summary)
}

func reportTitle(w history.Window) string {
	switch w {
	case history.WindowWeekly:
		return "Weekly report"
	case history.WindowMonthly:
		return "Monthly report"
	default:
		return "Daily report"
	}
}

// Broadcast sends text to every allow-listed channel on every transport.
// It returns the number of successful deliveries.
func (c *Controller) Broadcast(ctx context.Context, text string) int {
	c.mu.RLock()
	transports := append([]Transport(nil), c.transports...)
	c.mu.RUnlock()

	sent := 0
	for _, t := range transports {
		for _, id := range c.acl.Channels() {
			if err := t.Reply(ctx, id, text); err != nil {
				c.log.Debug("Broadcast delivery failed",
					logger.String("transport", t.Name()),
					logger.Int64("channel", id),
					logger.Error(err))
				continue
			}
			sent++
		}
	}
	return sent
}
