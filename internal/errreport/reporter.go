// Package errreport deduplicates captured errors by a hash of their trace,
// appends them to an error log and forwards new signatures.
package errreport

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/gabe/botpool/internal/logger"
	"github.com/gabe/botpool/internal/storage"
)

// ForwardFunc delivers a captured error somewhere outside the process
type ForwardFunc func(hash, trace string) error

// Record is the in-memory view of one error signature
type Record struct {
	Hash  string
	Count int
	Trace string
}

// Reporter captures errors. It is safe for concurrent use.
type Reporter struct {
	logPath        string
	forward        ForwardFunc
	pending        *storage.ForwardQueue
	log            logger.Logger
	forwardInTests bool

	mu      sync.Mutex
	records map[string]*Record
}

// Option configures a Reporter
type Option func(*Reporter)

// WithForwarder sets the forwarding callback
func WithForwarder(fn ForwardFunc) Option {
	return func(r *Reporter) {
		r.forward = fn
	}
}

// WithPendingQueue stores forwards that failed for a later FlushPending
func WithPendingQueue(q *storage.ForwardQueue) Option {
	return func(r *Reporter) {
		r.pending = q
	}
}

// WithLogger sets the logger
func WithLogger(l logger.Logger) Option {
	return func(r *Reporter) {
		r.log = l
	}
}

// WithForwardInTests enables forwarding even when running under go test
func WithForwardInTests(enabled bool) Option {
	return func(r *Reporter) {
		r.forwardInTests = enabled
	}
}

// New creates a reporter appending to logPath
func New(logPath string, opts ...Option) (*Reporter, error) {
	if err := os.MkdirAll(filepath.Dir(logPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create error log directory: %w", err)
	}

	r := &Reporter{
		logPath: logPath,
		log:     logger.NewNop(),
		records: make(map[string]*Record),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.log = r.log.With(logger.String("component", "errreport"))

	return r, nil
}

// Hash returns the signature of a trace: the first 8 hex chars of its sha256
func Hash(trace string) string {
	sum := sha256.Sum256([]byte(trace))
	return hex.EncodeToString(sum[:])[:8]
}

// Capture records err and returns its signature. A nil error returns "".
func (r *Reporter) Capture(err error) string {
	if err == nil {
		return ""
	}
	return r.CaptureTrace(FormatError(err))
}

// CapturePanic records a recovered panic value with its stack
func (r *Reporter) CapturePanic(v interface{}, stack []byte) string {
	return r.CaptureTrace(fmt.Sprintf("panic: %v\n\n%s", v, NormalizeStack(stack)))
}

// CaptureTrace records a preformatted trace and returns its signature
func (r *Reporter) CaptureTrace(trace string) string {
	trace = strings.TrimRight(trace, "\n")
	hash := Hash(trace)

	r.mu.Lock()
	rec, ok := r.records[hash]
	if !ok {
		rec = &Record{Hash: hash, Trace: trace}
		r.records[hash] = rec
	}
	rec.Count++
	count := rec.Count
	r.mu.Unlock()

	if err := r.appendLog(hash, count, trace); err != nil {
		r.log.Error("Failed to write error log", logger.Error(err))
	}

	if r.shouldForward() {
		r.deliver(hash, trace)
	}

	return hash
}

// Count returns how many times hash was captured by this reporter
func (r *Reporter) Count(hash string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	if rec, ok := r.records[hash]; ok {
		return rec.Count
	}
	return 0
}

// Records returns copies of all signatures, most frequent first
func (r *Reporter) Records() []Record {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Record, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, *rec)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Hash < out[j].Hash
	})
	return out
}

// FlushPending retries queued forwards and returns how many were delivered
func (r *Reporter) FlushPending() (int, error) {
	if r.pending == nil || r.forward == nil {
		return 0, nil
	}
	return r.pending.Drain(func(p storage.PendingForward) error {
		return r.forward(p.Hash, p.Trace)
	})
}

// LogPath returns the error log path
func (r *Reporter) LogPath() string {
	return r.logPath
}

func (r *Reporter) shouldForward() bool {
	if r.forward == nil {
		return false
	}
	return r.forwardInTests || !testing.Testing()
}

func (r *Reporter) deliver(hash, trace string) {
	err := func() (err error) {
		defer func() {
			if p := recover(); p != nil {
				err = fmt.Errorf("forwarder panicked: %v", p)
			}
		}()
		return r.forward(hash, trace)
	}()
	if err == nil {
		return
	}

	r.log.Warn("Failed to forward error", logger.String("hash", hash), logger.Error(err))
	if r.pending != nil {
		if qerr := r.pending.Push(storage.PendingForward{Hash: hash, Trace: trace}); qerr != nil {
			r.log.Error("Failed to queue error forward", logger.String("hash", hash), logger.Error(qerr))
		}
	}
}

func (r *Reporter) appendLog(hash string, count int, trace string) error {
	f, err := os.OpenFile(r.logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = fmt.Fprintf(f, "#%s %dx\n%s\n\n", hash, count, trace)
	return err
}

// FormatError renders err and its wrapped chain, outermost first
func FormatError(err error) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%T: %v", err, err)
	for inner := errors.Unwrap(err); inner != nil; inner = errors.Unwrap(inner) {
		fmt.Fprintf(&b, "\ncaused by %T: %v", inner, inner)
	}
	return b.String()
}

var (
	goroutineHeader = regexp.MustCompile(`(?m)^goroutine \d+ \[[^\]]*\]:\n`)
	frameArgs       = regexp.MustCompile(`\((0x[0-9a-f]+|\.\.\.)(, (0x[0-9a-f]+|\.\.\.|\{[^}]*\}))*\)`)
)

// NormalizeStack removes goroutine ids and argument values from a stack dump
// so identical panics produce identical traces.
func NormalizeStack(stack []byte) string {
	s := goroutineHeader.ReplaceAllString(string(stack), "")
	s = frameArgs.ReplaceAllString(s, "(...)")
	return strings.TrimSpace(s)
}
