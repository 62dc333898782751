package remote

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gabe/botpool/internal/history"
	"github.com/gabe/botpool/internal/models"
	"github.com/gabe/botpool/internal/notify"
	"github.com/gabe/botpool/internal/proxy"
	"github.com/gabe/botpool/internal/scheduler"
)

func TestParseCommand(t *testing.T) {
	at := time.Now()
	tests := []struct {
		text string
		name string
		args []string
		ok   bool
	}{
		{"/status", "status", []string{}, true},
		{"/restart 3", "restart", []string{"3"}, true},
		{"/emergency_stop@pool_bot", "emergency-stop", []string{}, true},
		{"  Report-Weekly ", "report-weekly", []string{}, true},
		{"", "", nil, false},
		{"/", "", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			cmd, ok := ParseCommand(tt.text, 42, at)
			assert.Equal(t, tt.ok, ok)
			if !ok {
				return
			}
			assert.Equal(t, tt.name, cmd.Name)
			assert.Equal(t, tt.args, cmd.Args)
			assert.Equal(t, int64(42), cmd.ChannelID)
		})
	}
}

func TestACL_OpenModeGrantsFirstIssuer(t *testing.T) {
	path := filepath.Join(t.TempDir(), "allowed_channels.json")
	acl, err := LoadACL(path, nil)
	require.NoError(t, err)

	allowed, granted, err := acl.Authorize(100)
	require.NoError(t, err)
	assert.True(t, allowed)
	assert.True(t, granted)

	allowed, granted, err = acl.Authorize(200)
	require.NoError(t, err)
	assert.False(t, allowed, "list is no longer empty")
	assert.False(t, granted)

	reloaded, err := LoadACL(path, nil)
	require.NoError(t, err)
	assert.Equal(t, []int64{100}, reloaded.Channels())
}

func TestACL_SeedGrantRevoke(t *testing.T) {
	path := filepath.Join(t.TempDir(), "allowed_channels.json")
	acl, err := LoadACL(path, []int64{7, 3})
	require.NoError(t, err)
	assert.Equal(t, []int64{3, 7}, acl.Channels())

	require.NoError(t, acl.Grant(5))
	require.NoError(t, acl.Revoke(3))
	assert.True(t, acl.Allowed(5))
	assert.False(t, acl.Allowed(3))

	reloaded, err := LoadACL(path, nil)
	require.NoError(t, err)
	assert.Equal(t, []int64{5, 7}, reloaded.Channels())
}

func TestACL_FailedWriteKeepsList(t *testing.T) {
	path := filepath.Join(t.TempDir(), "allowed_channels.json")
	acl, err := LoadACL(path, []int64{7})
	require.NoError(t, err)

	// A directory at the temp path makes every write fail
	require.NoError(t, os.Mkdir(path+".tmp", 0755))

	assert.Error(t, acl.Grant(5))
	assert.False(t, acl.Allowed(5))

	assert.Error(t, acl.Revoke(7))
	assert.True(t, acl.Allowed(7))
	assert.Equal(t, []int64{7}, acl.Channels())
}

func TestACL_OpenModeFailedWriteGrantsNothing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "allowed_channels.json")
	acl, err := LoadACL(path, nil)
	require.NoError(t, err)
	require.NoError(t, os.Mkdir(path+".tmp", 0755))

	allowed, granted, err := acl.Authorize(100)
	assert.Error(t, err)
	assert.False(t, allowed)
	assert.False(t, granted)
	assert.Empty(t, acl.Channels(), "list stays in open mode")
}

func TestAudit_RecordRecent(t *testing.T) {
	audit, err := OpenAudit(filepath.Join(t.TempDir(), "audit.db"))
	require.NoError(t, err)
	defer audit.Close()

	ctx := context.Background()
	require.NoError(t, audit.Record(ctx, models.Command{Name: "status", ChannelID: 1, Authorized: true}, "ok"))
	require.NoError(t, audit.Record(ctx, models.Command{Name: "restart", Args: []string{"2"}, ChannelID: 9}, "ignored"))

	entries, err := audit.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "restart", entries[0].Command)
	assert.Equal(t, "2", entries[0].Args)
	assert.False(t, entries[0].Authorized)
	assert.Equal(t, "status", entries[1].Command)
	assert.True(t, entries[1].Authorized)
	assert.False(t, entries[1].At.IsZero())
}

type fakePool struct {
	mu        sync.Mutex
	slots     []scheduler.SlotStatus
	paused    bool
	restarted []int
	stopped   []bool
}

func (p *fakePool) Status() []scheduler.SlotStatus { return p.slots }
func (p *fakePool) Paused() bool                   { return p.paused }

func (p *fakePool) Pause() error {
	p.paused = true
	return nil
}

func (p *fakePool) Resume() error {
	if !p.paused {
		return scheduler.ErrInvalidState
	}
	p.paused = false
	return nil
}

func (p *fakePool) RestartSlot(id int) bool {
	for _, st := range p.slots {
		if st.ID == id {
			p.restarted = append(p.restarted, id)
			return true
		}
	}
	return false
}

func (p *fakePool) Stop(emergency bool) scheduler.StopReport {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopped = append(p.stopped, emergency)
	r := scheduler.StopReport{Emergency: emergency, Slots: len(p.slots)}
	if emergency {
		r.KillFailures = map[int]string{2: "operation not permitted"}
	}
	return r
}

type fakeReports struct {
	start, end time.Time
}

func (f *fakeReports) Summarize(start, end time.Time) (history.Summary, error) {
	f.start, f.end = start, end
	roi := 12.5
	return history.Summary{Start: start, End: end, TotalProfit: 1234.5, NumDays: 7, TotalParticipations: 1500, ROI: &roi}, nil
}

type fakeTransport struct {
	mu      sync.Mutex
	in      chan models.Command
	replies map[int64][]string
	fail    bool
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{in: make(chan models.Command), replies: make(map[int64][]string)}
}

func (f *fakeTransport) Name() string { return "fake" }

func (f *fakeTransport) Updates(ctx context.Context) <-chan models.Command {
	out := make(chan models.Command)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case cmd := <-f.in:
				out <- cmd
			}
		}
	}()
	return out
}

func (f *fakeTransport) Reply(ctx context.Context, channelID int64, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("network down")
	}
	f.replies[channelID] = append(f.replies[channelID], text)
	return nil
}

func (f *fakeTransport) repliesFor(id int64) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.replies[id]...)
}

func newTestController(t *testing.T, seed []int64, opts ...ControllerOption) (*Controller, *fakePool) {
	t.Helper()
	acl, err := LoadACL(filepath.Join(t.TempDir(), "allowed_channels.json"), seed)
	require.NoError(t, err)
	pool := &fakePool{slots: []scheduler.SlotStatus{
		{ID: 1, State: models.SlotRunning, Proxy: "10.0.0.1:8080", Stats: models.SlotStats{Successes: 4, Failures: 1}},
		{ID: 2, State: models.SlotRestarting, Retries: 2, Stats: models.SlotStats{Restarts: 1}},
	}}
	return NewController(pool, acl, opts...), pool
}

func cmd(name string, args ...string) models.Command {
	return models.Command{Name: name, Args: args, ChannelID: 1, Authorized: true}
}

func TestController_Handle(t *testing.T) {
	reports := &fakeReports{}
	proxies := proxy.NewManager([]string{"10.0.0.1:8080"})
	proxies.Get(1)
	c, pool := newTestController(t, []int64{1}, WithReports(reports), WithProxyLister(proxies))
	ctx := context.Background()

	status := c.Handle(ctx, cmd("status")).Text
	assert.Contains(t, status, "Pool: 2 slots, 1 running")
	assert.Contains(t, status, "#1 running via 10.0.0.1:8080 | 4 ok / 1 err")
	assert.Contains(t, status, "#2 restarting | 0 ok / 0 err | retry 2 | 1 restart")
	assert.Contains(t, status, `restart <id>`)

	assert.Equal(t, "Restarting slot 2", c.Handle(ctx, cmd("restart", "2")).Text)
	assert.Equal(t, "Slot 9 not found", c.Handle(ctx, cmd("restart", "9")).Text)
	assert.Equal(t, "Usage: restart <slot>", c.Handle(ctx, cmd("restart")).Text)
	assert.Equal(t, []int{2}, pool.restarted)

	assert.Contains(t, c.Handle(ctx, cmd("resume")).Text, "Cannot resume")
	assert.Contains(t, c.Handle(ctx, cmd("pause")).Text, "Paused")
	assert.True(t, pool.paused)

	weekly := c.Handle(ctx, cmd("report-weekly")).Text
	assert.Contains(t, weekly, "Weekly report")
	assert.Contains(t, weekly, "Profit: 1,234.50")
	assert.Contains(t, weekly, "Participations: 1,500")
	assert.Contains(t, weekly, "ROI: 12.50%")
	assert.Equal(t, 6*24*time.Hour, reports.end.Sub(reports.start))

	assert.Contains(t, c.Handle(ctx, cmd("proxies")).Text, "10.0.0.1:8080: 0 failures, slots [1]")
	assert.Contains(t, c.Handle(ctx, cmd("help")).Text, "emergency-stop")
	assert.Contains(t, c.Handle(ctx, cmd("dance")).Text, `Unknown command "dance"`)
}

func TestController_StopRunsShutdownAfterReply(t *testing.T) {
	var shutdown bool
	c, pool := newTestController(t, []int64{1}, WithShutdown(func() { shutdown = true }))

	resp := c.Handle(context.Background(), cmd("emergency-stop"))
	assert.Equal(t, "Emergency stop: killed 2 slots. 1 browsers could not be killed, check the process list.", resp.Text)
	assert.Equal(t, []bool{true}, pool.stopped)
	assert.False(t, shutdown)

	require.NotNil(t, resp.After)
	resp.After()
	assert.True(t, shutdown)
}

func TestController_ServeAuthorizesAndAudits(t *testing.T) {
	audit, err := OpenAudit(filepath.Join(t.TempDir(), "audit.db"))
	require.NoError(t, err)
	defer audit.Close()

	c, pool := newTestController(t, nil, WithAudit(audit))
	transport := newFakeTransport()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Serve(ctx, transport) }()

	send := func(channel int64, text string) {
		parsed, ok := ParseCommand(text, channel, time.Now())
		require.True(t, ok)
		transport.in <- parsed
	}

	send(10, "/status")       // open mode: 10 becomes the operator
	send(20, "/restart 1")    // ignored silently
	send(10, "/restart 1")
	require.Eventually(t, func() bool { return len(transport.repliesFor(10)) == 2 }, time.Second, 5*time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	assert.Empty(t, transport.repliesFor(20))
	assert.Equal(t, []int{1}, pool.restarted)

	entries, err := audit.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, entries, 3, "unauthorized commands are audited too")
	assert.Equal(t, "ignored", entries[1].Result)
	assert.Equal(t, int64(20), entries[1].ChannelID)
}

func TestController_BroadcastAndNotifier(t *testing.T) {
	c, _ := newTestController(t, []int64{1, 2})
	transport := newFakeTransport()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Serve(ctx, transport)
	require.Eventually(t, func() bool {
		c.mu.RLock()
		defer c.mu.RUnlock()
		return len(c.transports) == 1
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, 2, c.Broadcast(ctx, "hello"))
	assert.Equal(t, []string{"hello"}, transport.repliesFor(2))

	b := NewBroadcaster(c, notify.NotificationTypeSlotRestarted)
	require.NoError(t, b.Notify(notifyRestart()))
	require.NoError(t, b.Notify(notifyInfo()))
	require.NoError(t, b.Close())
	replies := transport.repliesFor(1)
	require.Len(t, replies, 2)
	assert.True(t, strings.HasPrefix(replies[1], "Slot 3 restarted"))

	transport.mu.Lock()
	transport.fail = true
	transport.mu.Unlock()
	assert.Zero(t, c.Broadcast(ctx, "lost"))
}

func TestScheduleReports_InvalidSpec(t *testing.T) {
	c, _ := newTestController(t, nil)
	_, err := ScheduleReports(context.Background(), "every tuesday", c, nil)
	assert.Error(t, err)

	sched, err := ScheduleReports(context.Background(), "0 9 * * 1", c, nil)
	require.NoError(t, err)
	sched.Stop()
}

func TestFormatProxies_Empty(t *testing.T) {
	assert.Equal(t, "No proxies configured; slots connect directly.", FormatProxies(nil))
	assert.Equal(t, "No slots are running.", FormatStatus(nil, false, time.Now()))
}

func notifyRestart() notify.Notification {
	return notify.Notification{Type: notify.NotificationTypeSlotRestarted, Title: "Slot 3 restarted", Message: "retries exhausted"}
}

func notifyInfo() notify.Notification {
	return notify.Notification{Type: notify.NotificationTypeInfo, Title: "Daemon started"}
}
