package daemon

import (
	"context"
	"encoding/json"
	"os"
	"time"

	"github.com/gabe/botpool/internal/ipc"
	"github.com/gabe/botpool/internal/models"
	"github.com/gabe/botpool/internal/registry"
	"github.com/gabe/botpool/internal/remote"
)

// CommandHandler executes operator commands typed on the CLI
type CommandHandler interface {
	Handle(ctx context.Context, cmd models.Command) remote.Response
}

func (d *Daemon) controlServer() *ipc.Server {
	return NewControlServer(d.pool, d.proxies, d.controller, d.Stop)
}

// NewControlServer exposes pool over JSON-RPC. onStop runs after a stop
// request was answered.
func NewControlServer(pool remote.Pool, proxies remote.ProxyLister, commands CommandHandler, onStop func()) *ipc.Server {
	srv := ipc.NewServer()

	srv.Handle(ipc.MethodStatus, func(ctx context.Context, _ json.RawMessage) (interface{}, error) {
		return registry.Snapshot{
			PID:       os.Getpid(),
			Paused:    pool.Paused(),
			UpdatedAt: time.Now(),
			Slots:     pool.Status(),
		}, nil
	})

	srv.Handle(ipc.MethodPause, func(ctx context.Context, _ json.RawMessage) (interface{}, error) {
		return nil, pool.Pause()
	})

	srv.Handle(ipc.MethodResume, func(ctx context.Context, _ json.RawMessage) (interface{}, error) {
		return nil, pool.Resume()
	})

	srv.Handle(ipc.MethodRestartSlot, func(ctx context.Context, params json.RawMessage) (interface{}, error) {
		var p ipc.RestartSlotParams
		if err := ipc.DecodeParams(params, &p); err != nil {
			return nil, err
		}
		return ipc.RestartSlotResult{Restarted: pool.RestartSlot(p.Slot)}, nil
	})

	srv.Handle(ipc.MethodStop, func(ctx context.Context, params json.RawMessage) (interface{}, error) {
		var p ipc.StopParams
		if err := ipc.DecodeParams(params, &p); err != nil {
			return nil, err
		}
		report := pool.Stop(p.Emergency)
		if onStop != nil {
			onStop()
		}
		return report, nil
	})

	srv.Handle(ipc.MethodProxyStats, func(ctx context.Context, _ json.RawMessage) (interface{}, error) {
		if proxies == nil {
			return nil, nil
		}
		return proxies.Records(), nil
	})

	srv.Handle(ipc.MethodCommand, func(ctx context.Context, params json.RawMessage) (interface{}, error) {
		var p ipc.CommandParams
		if err := ipc.DecodeParams(params, &p); err != nil {
			return nil, err
		}
		cmd, ok := remote.ParseCommand(p.Text, 0, time.Now())
		if !ok {
			return nil, &ipc.RPCError{Code: ipc.CodeInvalidParams, Message: "empty command"}
		}
		cmd.Authorized = true
		resp := commands.Handle(ctx, cmd)
		if resp.After != nil {
			resp.After()
		}
		return ipc.CommandResult{Reply: resp.Text}, nil
	})

	return srv
}
