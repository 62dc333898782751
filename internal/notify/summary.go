package notify

import (
	"fmt"
	"os"
	"sort"
	"sync"
	"time"
)

// SummaryReporter buffers notifications and appends a periodic digest to a file
type SummaryReporter struct {
	mu            sync.Mutex
	notifications []Notification
	outputPath    string
	interval      time.Duration
	stopChan      chan struct{}
	stopOnce      sync.Once
	wg            sync.WaitGroup
}

// NewSummaryReporter creates a new summary reporter
func NewSummaryReporter(outputPath string, interval time.Duration) *SummaryReporter {
	return &SummaryReporter{
		outputPath: outputPath,
		interval:   interval,
		stopChan:   make(chan struct{}),
	}
}

// Notify buffers a notification for the next digest
func (s *SummaryReporter) Notify(notification Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifications = append(s.notifications, notification)
	return nil
}

// Start begins periodic digest generation
func (s *SummaryReporter) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				_ = s.flush()
			case <-s.stopChan:
				_ = s.flush()
				return
			}
		}
	}()
}

// flush appends a digest of buffered notifications and clears the buffer
func (s *SummaryReporter) flush() error {
	s.mu.Lock()
	pending := s.notifications
	s.notifications = nil
	s.mu.Unlock()

	if len(pending) == 0 {
		return nil
	}

	counts := make(map[NotificationType]int)
	for _, n := range pending {
		counts[n.Type]++
	}
	types := make([]string, 0, len(counts))
	for t := range counts {
		types = append(types, string(t))
	}
	sort.Strings(types)

	f, err := os.OpenFile(s.outputPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open summary file: %w", err)
	}
	defer f.Close()

	fmt.Fprintf(f, "=== %s: %d events ===\n", time.Now().Format(time.RFC3339), len(pending))
	for _, t := range types {
		fmt.Fprintf(f, "  %-16s %d\n", t, counts[NotificationType(t)])
	}
	for _, n := range pending {
		fmt.Fprintf(f, "  [%s] %s\n", n.Timestamp.Format("15:04:05"), n.Title)
	}
	fmt.Fprintln(f)

	return nil
}

// Close writes a final digest and stops the reporter
func (s *SummaryReporter) Close() error {
	s.stopOnce.Do(func() { close(s.stopChan) })
	s.wg.Wait()
	return nil
}
