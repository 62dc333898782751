package daemon

import (
	"fmt"
	"time"

	"github.com/gabe/botpool/internal/ipc"
	"github.com/gabe/botpool/internal/proxy"
	"github.com/gabe/botpool/internal/registry"
	"github.com/gabe/botpool/internal/scheduler"
)

const dialTimeout = 2 * time.Second

// Client talks to a running daemon over its control socket
type Client struct {
	rpc *ipc.Client
}

// Dial connects to the daemon listening on socketPath
func Dial(socketPath string) (*Client, error) {
	rpc, err := ipc.Dial(socketPath, dialTimeout)
	if err != nil {
		return nil, fmt.Errorf("daemon not reachable at %s (is it running?): %w", socketPath, err)
	}
	return &Client{rpc: rpc}, nil
}

// NewClient wraps an established JSON-RPC client
func NewClient(rpc *ipc.Client) *Client {
	return &Client{rpc: rpc}
}

// Status returns the live pool snapshot
func (c *Client) Status() (registry.Snapshot, error) {
	var snap registry.Snapshot
	err := c.rpc.CallInto(ipc.MethodStatus, nil, &snap)
	return snap, err
}

// Read implements the dashboard's snapshot source
func (c *Client) Read() (registry.Snapshot, error) {
	return c.Status()
}

// Pause stops dispatching new tasks
func (c *Client) Pause() error {
	return c.rpc.CallInto(ipc.MethodPause, nil, nil)
}

// Resume undoes Pause
func (c *Client) Resume() error {
	return c.rpc.CallInto(ipc.MethodResume, nil, nil)
}

// RestartSlot restarts one slot. It reports false for an unknown slot.
func (c *Client) RestartSlot(id int) (bool, error) {
	var res ipc.RestartSlotResult
	err := c.rpc.CallInto(ipc.MethodRestartSlot, ipc.RestartSlotParams{Slot: id}, &res)
	return res.Restarted, err
}

// Stop stops the pool and then the daemon
func (c *Client) Stop(emergency bool) (scheduler.StopReport, error) {
	var report scheduler.StopReport
	err := c.rpc.CallInto(ipc.MethodStop, ipc.StopParams{Emergency: emergency}, &report)
	return report, err
}

// Proxies returns the proxy pool
func (c *Client) Proxies() ([]proxy.Record, error) {
	var records []proxy.Record
	err := c.rpc.CallInto(ipc.MethodProxyStats, nil, &records)
	return records, err
}

// Command runs an operator command and returns the reply text
func (c *Client) Command(text string) (string, error) {
	var res ipc.CommandResult
	err := c.rpc.CallInto(ipc.MethodCommand, ipc.CommandParams{Text: text}, &res)
	return res.Reply, err
}

// Close closes the connection
func (c *Client) Close() error {
	return c.rpc.Close()
}
