package notify

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gabe/botpool/internal/logger"
)

type recordingNotifier struct {
	mu   sync.Mutex
	got  []Notification
	fail bool
}

func (r *recordingNotifier) Notify(n Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, n)
	if r.fail {
		return errors.New("backend down")
	}
	return nil
}

func (r *recordingNotifier) Close() error { return nil }

func TestManager_ContinuesPastFailures(t *testing.T) {
	failing := &recordingNotifier{fail: true}
	ok := &recordingNotifier{}
	manager := NewManager(failing, ok)

	err := manager.NotifySlotRestarted(3, "heartbeat stale")
	if err == nil {
		t.Error("expected error from failing backend")
	}
	if len(ok.got) != 1 {
		t.Fatalf("expected healthy backend to receive notification, got %d", len(ok.got))
	}
	if ok.got[0].Timestamp.IsZero() {
		t.Error("expected timestamp to be set")
	}
	if ok.got[0].Data["slot"] != 3 {
		t.Errorf("expected slot 3 in data, got %v", ok.got[0].Data["slot"])
	}
}

func TestManager_Add(t *testing.T) {
	manager := NewManager()
	r := &recordingNotifier{}
	manager.Add(r)

	if err := manager.NotifyReport("Weekly", "profit 10"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(r.got) != 1 || r.got[0].Type != NotificationTypeReport {
		t.Errorf("expected report notification, got %+v", r.got)
	}
}

func TestWebhookNotifier(t *testing.T) {
	var received Notification
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("unexpected content type %q", r.Header.Get("Content-Type"))
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("failed to decode body: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	webhook := NewWebhookNotifier(server.URL, time.Second, NotificationTypeError)

	if err := webhook.Notify(Notification{Type: NotificationTypeInfo, Title: "skipped"}); err != nil {
		t.Fatalf("filtered notification should not error: %v", err)
	}
	if received.Title != "" {
		t.Fatal("filtered notification was posted")
	}

	if err := webhook.Notify(Notification{Type: NotificationTypeError, Title: "Error #abcd1234"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if received.Title != "Error #abcd1234" {
		t.Errorf("expected posted title, got %q", received.Title)
	}
}

func TestWebhookNotifier_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	webhook := NewWebhookNotifier(server.URL, time.Second)
	if err := webhook.Notify(Notification{Type: NotificationTypeInfo}); err == nil {
		t.Error("expected error for 502 response")
	}
}

func TestSummaryReporter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.log")

	reporter := NewSummaryReporter(path, time.Hour)
	reporter.Start()

	for i := 0; i < 3; i++ {
		reporter.Notify(Notification{Type: NotificationTypeSlotRestarted, Title: "Slot Restarted", Timestamp: time.Now()})
	}
	reporter.Notify(Notification{Type: NotificationTypeError, Title: "Error #deadbeef", Timestamp: time.Now()})

	// Close flushes the final digest
	if err := reporter.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if err := reporter.Close(); err != nil {
		t.Fatalf("second close failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("summary file not written: %v", err)
	}
	out := string(data)
	if !strings.Contains(out, "4 events") {
		t.Errorf("expected event count in digest, got:\n%s", out)
	}
	if !strings.Contains(out, "slot_restarted") || !strings.Contains(out, "Error #deadbeef") {
		t.Errorf("digest missing entries:\n%s", out)
	}
}

func TestLogNotifier(t *testing.T) {
	n := NewLogNotifier(logger.NewNop())
	if err := n.Notify(Notification{Type: NotificationTypeEmergencyStop, Message: "stopped"}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := n.Close(); err != nil {
		t.Errorf("unexpected close error: %v", err)
	}
}
