package task

import (
	"context"
	"errors"
	"fmt"
	"os/exec"

	"github.com/gabe/botpool/internal/ipc"
	"github.com/gabe/botpool/internal/models"
)

// CommandCreator creates exec.Cmd instances, replaceable in tests
type CommandCreator func(ctx context.Context, name string, args ...string) *exec.Cmd

// ExecExecutor runs an external automation program per attempt and asks it
// to perform the task over JSON-RPC on stdin/stdout.
type ExecExecutor struct {
	command        []string
	env            []string
	commandCreator CommandCreator
}

// NewExecExecutor creates an executor running command (program and args)
func NewExecExecutor(command []string, env ...string) *ExecExecutor {
	return &ExecExecutor{
		command:        command,
		env:            env,
		commandCreator: exec.CommandContext,
	}
}

// SetCommandCreator replaces how the child process is built
func (e *ExecExecutor) SetCommandCreator(cc CommandCreator) {
	e.commandCreator = cc
}

// Run performs one attempt
func (e *ExecExecutor) Run(ctx context.Context, sc SlotContext) models.Outcome {
	if len(e.command) == 0 {
		return models.Outcome{Err: errors.New("exec executor has no command")}
	}

	cmd := e.commandCreator(ctx, e.command[0], e.command[1:]...)
	if len(e.env) > 0 {
		cmd.Env = append(cmd.Environ(), e.env...)
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return models.Outcome{Err: err}
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return models.Outcome{Err: err}
	}
	if err := cmd.Start(); err != nil {
		return models.Outcome{Err: fmt.Errorf("failed to start task program: %w", err)}
	}

	client := ipc.NewClient(stdin, stdout)
	var result ipc.TaskRunResult
	callErr := client.CallInto(ipc.MethodTaskRun, ipc.TaskRunParams{
		SlotID:      sc.SlotID,
		ProfilePath: sc.ProfilePath,
		Proxy:       sc.Proxy,
		Attempt:     sc.Attempt,
	}, &result)

	stdin.Close()
	waitErr := cmd.Wait()

	if callErr != nil {
		if ctx.Err() != nil {
			return models.Outcome{Err: ctx.Err()}
		}
		return models.Outcome{Err: fmt.Errorf("task program call failed: %w", callErr)}
	}
	if waitErr != nil && ctx.Err() == nil {
		return models.Outcome{Err: fmt.Errorf("task program exited: %w", waitErr)}
	}

	out := models.Outcome{
		Success:  result.Success,
		Category: models.Category(result.Category),
		Profit:   result.Profit,
	}
	if !result.Success {
		msg := result.Error
		if msg == "" {
			msg = "task reported failure"
		}
		out.Err = errors.New(msg)
	}
	return out
}
