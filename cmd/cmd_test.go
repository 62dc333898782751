package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gabe/botpool/internal/config"
	"github.com/gabe/botpool/internal/errreport"
	"github.com/gabe/botpool/internal/scheduler"
)

func resetFlags() {
	flagStateDir, flagConfig = ".botpool", ""
	flagJSON, flagWatch = false, false
	flagWeekly, flagMonthly, flagFrom, flagTo = false, false, "", ""
	flagEmergency = false
	flagErrorsLimit, flagErrorsTrace = 10, false
	flagAuditLimit = 20
	flagTokenTTL = 30 * 24 * time.Hour
}

func runCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags()
	t.Cleanup(resetFlags)

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestInitCreatesConfig(t *testing.T) {
	dir := t.TempDir()

	out, err := runCmd(t, "--dir", dir, "init")
	if err != nil {
		t.Fatalf("init failed: %v", err)
	}
	if !strings.Contains(out, "Created") {
		t.Errorf("expected created message, got %q", out)
	}
	for _, path := range []string{"config.toml", "profiles", "history"} {
		if _, err := os.Stat(filepath.Join(dir, path)); err != nil {
			t.Errorf("expected %s to exist: %v", path, err)
		}
	}

	out, err = runCmd(t, "--dir", dir, "init")
	if err != nil {
		t.Fatalf("second init failed: %v", err)
	}
	if !strings.Contains(out, "already exists") {
		t.Errorf("expected existing config message, got %q", out)
	}
}

func TestCommandsRequireConfig(t *testing.T) {
	dir := t.TempDir()

	_, err := runCmd(t, "--dir", dir, "errors")
	if err == nil || !strings.Contains(err.Error(), "botpool init") {
		t.Errorf("expected hint to run init, got %v", err)
	}
}

func TestErrorsCommand(t *testing.T) {
	dir := t.TempDir()
	if _, err := runCmd(t, "--dir", dir, "init"); err != nil {
		t.Fatalf("init failed: %v", err)
	}

	out, err := runCmd(t, "--dir", dir, "errors")
	if err != nil {
		t.Fatalf("errors failed: %v", err)
	}
	if !strings.Contains(out, "No errors captured") {
		t.Errorf("expected empty message, got %q", out)
	}

	r, err := errreport.New(filepath.Join(dir, "errors.log"))
	if err != nil {
		t.Fatalf("reporter: %v", err)
	}
	r.CaptureTrace("login timed out\nat step 2")
	r.CaptureTrace("login timed out\nat step 2")
	r.CaptureTrace("button missing")

	out, err = runCmd(t, "--dir", dir, "errors", "-n", "1")
	if err != nil {
		t.Fatalf("errors failed: %v", err)
	}
	if !strings.Contains(out, "2x") || !strings.Contains(out, "login timed out") {
		t.Errorf("expected most frequent error, got %q", out)
	}
	if strings.Contains(out, "button missing") {
		t.Errorf("expected -n to limit output, got %q", out)
	}
	if strings.Contains(out, "at step 2") {
		t.Errorf("expected trace to be hidden without --trace, got %q", out)
	}
}

func TestReportCommand_Empty(t *testing.T) {
	dir := t.TempDir()
	if _, err := runCmd(t, "--dir", dir, "init"); err != nil {
		t.Fatalf("init failed: %v", err)
	}

	out, err := runCmd(t, "--dir", dir, "report", "--weekly")
	if err != nil {
		t.Fatalf("report failed: %v", err)
	}
	if !strings.Contains(out, "Weekly report") || !strings.Contains(out, "ROI: n/a") {
		t.Errorf("unexpected report output %q", out)
	}
}

func TestReportRange(t *testing.T) {
	now := time.Date(2024, 3, 10, 15, 0, 0, 0, time.Local)
	t.Cleanup(resetFlags)

	tests := []struct {
		name      string
		set       func()
		wantStart string
		wantEnd   string
		wantErr   bool
	}{
		{name: "daily", set: func() {}, wantStart: "2024-03-10", wantEnd: "2024-03-10"},
		{name: "weekly", set: func() { flagWeekly = true }, wantStart: "2024-03-04", wantEnd: "2024-03-10"},
		{name: "monthly", set: func() { flagMonthly = true }, wantStart: "2024-02-10", wantEnd: "2024-03-10"},
		{name: "explicit", set: func() { flagFrom, flagTo = "2024-01-01", "2024-01-31" }, wantStart: "2024-01-01", wantEnd: "2024-01-31"},
		{name: "from only", set: func() { flagFrom = "2024-03-01" }, wantStart: "2024-03-01", wantEnd: "2024-03-10"},
		{name: "inverted", set: func() { flagFrom, flagTo = "2024-02-01", "2024-01-01" }, wantErr: true},
		{name: "bad date", set: func() { flagFrom = "March" }, wantErr: true},
		{name: "both windows", set: func() { flagWeekly, flagMonthly = true, true }, wantErr: true},
		{name: "window and range", set: func() { flagWeekly, flagFrom = true, "2024-01-01" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetFlags()
			tt.set()
			start, end, _, err := reportRange(now)
			if tt.wantErr {
				if err == nil {
					t.Error("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := start.Format("2006-01-02"); got != tt.wantStart {
				t.Errorf("start = %s, want %s", got, tt.wantStart)
			}
			if got := end.Format("2006-01-02"); got != tt.wantEnd {
				t.Errorf("end = %s, want %s", got, tt.wantEnd)
			}
		})
	}
}

func TestStatusFallsBackToRegistry(t *testing.T) {
	dir := t.TempDir()

	out, err := runCmd(t, "--dir", dir, "status")
	if err != nil {
		t.Fatalf("status failed: %v", err)
	}
	if !strings.Contains(out, "not running") || !strings.Contains(out, "No slots") {
		t.Errorf("unexpected status output %q", out)
	}

	out, err = runCmd(t, "--dir", dir, "status", "--json")
	if err != nil {
		t.Fatalf("status --json failed: %v", err)
	}
	if !strings.Contains(out, `"slots": null`) {
		t.Errorf("expected JSON snapshot, got %q", out)
	}
}

func TestDaemonStatusCommand(t *testing.T) {
	dir := t.TempDir()

	out, err := runCmd(t, "--dir", dir, "daemon", "status")
	if err != nil {
		t.Fatalf("daemon status failed: %v", err)
	}
	if !strings.Contains(out, "Daemon: not running") {
		t.Errorf("unexpected output %q", out)
	}
}

func TestPauseWithoutDaemon(t *testing.T) {
	dir := t.TempDir()

	if _, err := runCmd(t, "--dir", dir, "pause"); err == nil {
		t.Error("expected error when the daemon is not reachable")
	}
}

func TestRestartRejectsBadSlot(t *testing.T) {
	_, err := runCmd(t, "--dir", t.TempDir(), "restart", "abc")
	if err == nil || !strings.Contains(err.Error(), "invalid slot id") {
		t.Errorf("expected invalid slot error, got %v", err)
	}
}

func TestPrintStopReport(t *testing.T) {
	var out bytes.Buffer
	stopCmd.SetOut(&out)
	t.Cleanup(func() { stopCmd.SetOut(nil) })

	printStopReport(stopCmd, scheduler.StopReport{Slots: 3, Forced: []int{2}})
	if !strings.Contains(out.String(), "Stopped 3 slots") || !strings.Contains(out.String(), "[2]") {
		t.Errorf("unexpected graceful report %q", out.String())
	}

	out.Reset()
	printStopReport(stopCmd, scheduler.StopReport{
		Emergency:    true,
		Slots:        2,
		KillFailures: map[int]string{1: "no such process"},
	})
	if !strings.Contains(out.String(), "killed 2 slots") || !strings.Contains(out.String(), "slot 1: no such process") {
		t.Errorf("unexpected emergency report %q", out.String())
	}
}

func TestTokenCommand(t *testing.T) {
	dir := t.TempDir()
	if _, err := runCmd(t, "--dir", dir, "init"); err != nil {
		t.Fatalf("init failed: %v", err)
	}

	t.Setenv(config.EnvJWTSecret, "")
	if _, err := runCmd(t, "--dir", dir, "token", "42"); err == nil {
		t.Error("expected error without a jwt secret")
	}

	t.Setenv(config.EnvJWTSecret, "s3cret")

	out, err := runCmd(t, "--dir", dir, "token", "42", "--ttl", "1h")
	if err != nil {
		t.Fatalf("token failed: %v", err)
	}
	if strings.Count(strings.TrimSpace(out), ".") != 2 {
		t.Errorf("expected a JWT, got %q", out)
	}
}

func TestDaemonStartValidatesConfig(t *testing.T) {
	dir := t.TempDir()
	if _, err := runCmd(t, "--dir", dir, "init"); err != nil {
		t.Fatalf("init failed: %v", err)
	}

	_, err := runCmd(t, "--dir", dir, "daemon", "start")
	if err == nil || !strings.Contains(err.Error(), "executor_command") {
		t.Errorf("expected validation error, got %v", err)
	}
}
