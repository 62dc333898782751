package ipc

import (
	"encoding/json"
	"fmt"
	"io"
	"net"
	"sync"
	"time"
)

// Client sends JSON-RPC requests over a stream
type Client struct {
	closer io.Closer
	mu     sync.Mutex
	nextID int
	enc    *json.Encoder
	dec    *json.Decoder
}

// NewClient creates a client writing requests to w and reading responses from r
func NewClient(w io.Writer, r io.Reader) *Client {
	return &Client{
		nextID: 1,
		enc:    json.NewEncoder(w),
		dec:    json.NewDecoder(r),
	}
}

// Dial connects to a unix socket server
func Dial(socketPath string, timeout time.Duration) (*Client, error) {
	conn, err := net.DialTimeout("unix", socketPath, timeout)
	if err != nil {
		return nil, err
	}
	c := NewClient(conn, conn)
	c.closer = conn
	return c, nil
}

func (c *Client) request(method string, params interface{}) (Request, error) {
	req := Request{
		JSONRPC: "2.0",
		ID:      c.nextID,
		Method:  method,
	}
	c.nextID++

	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return req, fmt.Errorf("failed to marshal params: %w", err)
		}
		req.Params = raw
	}
	return req, nil
}

// Call sends a JSON-RPC request and waits for response
func (c *Client) Call(method string, params interface{}) (*Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	req, err := c.request(method, params)
	if err != nil {
		return nil, err
	}
	if err := c.enc.Encode(req); err != nil {
		return nil, err
	}

	var resp Response
	if err := c.dec.Decode(&resp); err != nil {
		return nil, err
	}

	return &resp, nil
}

// CallInto performs Call and decodes the result into out.
// An RPC error response is returned as *RPCError.
func (c *Client) CallInto(method string, params, out interface{}) error {
	resp, err := c.Call(method, params)
	if err != nil {
		return err
	}
	if resp.Error != nil {
		return resp.Error
	}
	if out == nil || len(resp.Result) == 0 {
		return nil
	}
	return json.Unmarshal(resp.Result, out)
}

// Send sends a request without waiting for response (notification)
func (c *Client) Send(method string, params interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	req, err := c.request(method, params)
	if err != nil {
		return err
	}
	return c.enc.Encode(req)
}

// Receive reads the next response from the stream
func (c *Client) Receive() (*Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var resp Response
	if err := c.dec.Decode(&resp); err != nil {
		return nil, err
	}

	return &resp, nil
}

// Close closes the underlying connection when the client owns one
func (c *Client) Close() error {
	if c.closer == nil {
		return nil
	}
	return c.closer.Close()
}
