package task

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/gabe/botpool/internal/ipc"
	"github.com/gabe/botpool/internal/models"
)

// TestHelperTaskProgram is not a real test. It acts as the external
// automation program when run as a child of the exec executor tests.
func TestHelperTaskProgram(t *testing.T) {
	if os.Getenv("BOTPOOL_HELPER_TASK") == "" {
		return
	}
	defer os.Exit(0)

	mode := os.Getenv("BOTPOOL_HELPER_TASK")
	if mode == "hang" {
		time.Sleep(time.Minute)
		return
	}

	scanner := bufio.NewScanner(os.Stdin)
	if !scanner.Scan() {
		return
	}
	var req ipc.Request
	if err := json.Unmarshal(scanner.Bytes(), &req); err != nil {
		os.Exit(2)
	}
	var params ipc.TaskRunParams
	json.Unmarshal(req.Params, &params)

	var result ipc.TaskRunResult
	switch mode {
	case "success":
		profit := 1.5
		result = ipc.TaskRunResult{Success: true, Category: "contender", Profit: &profit}
	case "fail":
		result = ipc.TaskRunResult{Error: fmt.Sprintf("slot %d: captcha", params.SlotID)}
	}

	raw, _ := json.Marshal(result)
	json.NewEncoder(os.Stdout).Encode(ipc.Response{JSONRPC: "2.0", ID: req.ID, Result: raw})
}

func helperExecutor(mode string) *ExecExecutor {
	e := NewExecExecutor([]string{os.Args[0], "-test.run=TestHelperTaskProgram"})
	e.SetCommandCreator(func(ctx context.Context, name string, args ...string) *exec.Cmd {
		cmd := exec.CommandContext(ctx, name, args...)
		cmd.Env = append(os.Environ(), "BOTPOOL_HELPER_TASK="+mode)
		return cmd
	})
	return e
}

func TestExecExecutor_Success(t *testing.T) {
	out := helperExecutor("success").Run(context.Background(), SlotContext{SlotID: 2, Attempt: 1})

	if !out.Success {
		t.Fatalf("expected success, got %+v", out)
	}
	if out.Category != models.CategoryContender {
		t.Errorf("expected contender category, got %q", out.Category)
	}
	if out.Profit == nil || *out.Profit != 1.5 {
		t.Errorf("expected profit 1.5, got %v", out.Profit)
	}
}

func TestExecExecutor_ReportedFailure(t *testing.T) {
	out := helperExecutor("fail").Run(context.Background(), SlotContext{SlotID: 7})

	if out.Success {
		t.Fatal("expected failure")
	}
	if out.Err == nil || out.Err.Error() != "slot 7: captcha" {
		t.Errorf("unexpected error: %v", out.Err)
	}
}

func TestExecExecutor_CancelKillsProgram(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	out := helperExecutor("hang").Run(ctx, SlotContext{SlotID: 1})

	if out.Success || out.Err == nil {
		t.Fatalf("expected cancellation error, got %+v", out)
	}
	if time.Since(start) > 10*time.Second {
		t.Error("executor did not honor cancellation")
	}
}

func TestExecExecutor_NoCommand(t *testing.T) {
	out := NewExecExecutor(nil).Run(context.Background(), SlotContext{})
	if out.Err == nil {
		t.Error("expected error for empty command")
	}
}
