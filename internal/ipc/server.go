package ipc

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"os"
	"sync"
)

// HandlerFunc answers one request. Returning an *RPCError sends it as-is;
// any other error becomes CodeInternalError.
type HandlerFunc func(ctx context.Context, params json.RawMessage) (interface{}, error)

// Server dispatches JSON-RPC requests to registered handlers
type Server struct {
	mu       sync.RWMutex
	handlers map[string]HandlerFunc
}

// NewServer creates an empty server
func NewServer() *Server {
	return &Server{handlers: make(map[string]HandlerFunc)}
}

// Handle registers fn for method
func (s *Server) Handle(method string, fn HandlerFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[method] = fn
}

// ServeConn answers requests on rw until EOF or ctx is done
func (s *Server) ServeConn(ctx context.Context, rw io.ReadWriter) error {
	dec := json.NewDecoder(rw)
	enc := json.NewEncoder(rw)

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		var req Request
		if err := dec.Decode(&req); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			_ = enc.Encode(Response{JSONRPC: "2.0", Error: &RPCError{Code: CodeParseError, Message: err.Error()}})
			return err
		}

		if err := enc.Encode(s.dispatch(ctx, req)); err != nil {
			return err
		}
	}
}

func (s *Server) dispatch(ctx context.Context, req Request) Response {
	resp := Response{JSONRPC: "2.0", ID: req.ID}

	s.mu.RLock()
	fn, ok := s.handlers[req.Method]
	s.mu.RUnlock()
	if !ok {
		resp.Error = &RPCError{Code: CodeMethodNotFound, Message: "method not found: " + req.Method}
		return resp
	}

	result, err := fn(ctx, req.Params)
	if err != nil {
		var rpcErr *RPCError
		if errors.As(err, &rpcErr) {
			resp.Error = rpcErr
		} else {
			resp.Error = &RPCError{Code: CodeInternalError, Message: err.Error()}
		}
		return resp
	}

	raw, err := json.Marshal(result)
	if err != nil {
		resp.Error = &RPCError{Code: CodeInternalError, Message: err.Error()}
		return resp
	}
	resp.Result = raw
	return resp
}

// ListenAndServe serves on a unix socket until ctx is cancelled.
// A stale socket file from a previous run is removed first.
func (s *Server) ListenAndServe(ctx context.Context, socketPath string) error {
	if err := os.Remove(socketPath); err != nil && !os.IsNotExist(err) {
		return err
	}

	ln, err := net.Listen("unix", socketPath)
	if err != nil {
		return err
	}
	defer os.Remove(socketPath)

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer conn.Close()
			stop := context.AfterFunc(ctx, func() { conn.Close() })
			defer stop()
			_ = s.ServeConn(ctx, conn)
		}()
	}
}

// DecodeParams unmarshals params into out, mapping failures to CodeInvalidParams
func DecodeParams(params json.RawMessage, out interface{}) error {
	if len(params) == 0 {
		return nil
	}
	if err := json.Unmarshal(params, out); err != nil {
		return &RPCError{Code: CodeInvalidParams, Message: err.Error()}
	}
	return nil
}
