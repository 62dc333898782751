// Package browser launches and tracks one browser session per worker slot.
package browser

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
)

// Options describe a browser session to launch
type Options struct {
	ProfileDir string
	Proxy      string
	ExecPath   string
	Headless   bool
	StartURL   string
	ExtraArgs  []string // "--flag" or "--flag=value"
}

// Session is a running browser owned by a slot
type Session interface {
	ID() string
	PID() int
	StartedAt() time.Time
	// Run executes chromedp actions in the session's tab. Cancelling ctx
	// aborts the actions without closing the browser.
	Run(ctx context.Context, actions ...chromedp.Action) error
	// Close shuts the browser down gracefully
	Close() error
	// Kill terminates the browser process immediately
	Kill() error
}

// Launcher starts sessions
type Launcher interface {
	Launch(ctx context.Context, opts Options) (Session, error)
}

// ChromeLauncher launches Chrome through chromedp
type ChromeLauncher struct{}

// Launch starts a browser with its own user data dir and proxy
func (ChromeLauncher) Launch(ctx context.Context, opts Options) (Session, error) {
	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.UserDataDir(opts.ProfileDir),
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("mute-audio", true),
	)
	if opts.Proxy != "" {
		allocOpts = append(allocOpts, chromedp.ProxyServer(opts.Proxy))
	}
	if opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(opts.ExecPath))
	}
	for _, arg := range opts.ExtraArgs {
		allocOpts = append(allocOpts, parseFlag(arg))
	}

	// The browser outlives ctx, which only bounds the launch
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), allocOpts...)
	tabCtx, cancelTab := chromedp.NewContext(allocCtx)

	stop := context.AfterFunc(ctx, cancelAlloc)
	err := chromedp.Run(tabCtx)
	interrupted := !stop()
	if err == nil && interrupted {
		err = ctx.Err()
	}
	if err != nil {
		cancelTab()
		cancelAlloc()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	s := &chromeSession{
		id:          uuid.NewString(),
		startedAt:   time.Now(),
		ctx:         tabCtx,
		cancelTab:   cancelTab,
		cancelAlloc: cancelAlloc,
	}
	if c := chromedp.FromContext(tabCtx); c != nil && c.Browser != nil {
		if p := c.Browser.Process(); p != nil {
			s.process = p
		}
	}

	if opts.StartURL != "" {
		if err := s.Run(ctx, chromedp.Navigate(opts.StartURL)); err != nil {
			s.Close()
			return nil, fmt.Errorf("failed to open start page: %w", err)
		}
	}

	return s, nil
}

type chromeSession struct {
	id          string
	startedAt   time.Time
	process     *os.Process
	ctx         context.Context
	cancelTab   context.CancelFunc
	cancelAlloc context.CancelFunc
	closeOnce   sync.Once
}

func (s *chromeSession) ID() string           { return s.id }
func (s *chromeSession) StartedAt() time.Time { return s.startedAt }

func (s *chromeSession) PID() int {
	if s.process == nil {
		return 0
	}
	return s.process.Pid
}

func (s *chromeSession) Run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(s.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	return chromedp.Run(runCtx, actions...)
}

func (s *chromeSession) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = chromedp.Cancel(s.ctx)
		s.cancelTab()
		s.cancelAlloc()
	})
	return err
}

func (s *chromeSession) Kill() error {
	if s.process == nil {
		return ErrNoProcess
	}
	err := s.process.Kill()
	if err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("failed to kill browser pid %d: %w", s.process.Pid, err)
	}
	// Release chromedp resources without waiting on the dead browser
	go s.closeOnce.Do(func() {
		s.cancelTab()
		s.cancelAlloc()
	})
	return nil
}

// parseFlag turns "--name=value" or "--name" into an allocator flag
func parseFlag(arg string) chromedp.ExecAllocatorOption {
	arg = strings.TrimLeft(arg, "-")
	name, value, ok := strings.Cut(arg, "=")
	if !ok {
		return chromedp.Flag(name, true)
	}
	return chromedp.Flag(name, value)
}
