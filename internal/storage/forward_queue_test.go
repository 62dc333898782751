package storage

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestForwardQueue_PushAndDrain(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pending.jsonl")
	q, err := NewForwardQueue(path)
	if err != nil {
		t.Fatalf("failed to create queue: %v", err)
	}

	for _, h := range []string{"aaaa1111", "bbbb2222", "cccc3333"} {
		if err := q.Push(PendingForward{Hash: h, Trace: "trace " + h}); err != nil {
			t.Fatalf("push failed: %v", err)
		}
	}

	n, err := q.Len()
	if err != nil || n != 3 {
		t.Fatalf("expected 3 entries, got %d (%v)", n, err)
	}

	delivered, err := q.Drain(func(e PendingForward) error {
		if e.Hash == "bbbb2222" {
			return errors.New("still down")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("drain failed: %v", err)
	}
	if delivered != 2 {
		t.Errorf("expected 2 delivered, got %d", delivered)
	}

	var kept []PendingForward
	if _, err := q.Drain(func(e PendingForward) error {
		kept = append(kept, e)
		return errors.New("keep")
	}); err != nil {
		t.Fatalf("drain failed: %v", err)
	}
	if len(kept) != 1 || kept[0].Hash != "bbbb2222" {
		t.Fatalf("expected only bbbb2222 to remain, got %+v", kept)
	}
	if kept[0].Attempts != 1 {
		t.Errorf("expected attempts to be 1 after one failed drain, got %d", kept[0].Attempts)
	}
}

func TestForwardQueue_SkipsMalformedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pending.jsonl")
	content := "{\"hash\":\"ok000001\",\"trace\":\"x\"}\nnot json\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	q, err := NewForwardQueue(path)
	if err != nil {
		t.Fatal(err)
	}
	n, err := q.Len()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 valid entry, got %d", n)
	}
}

func TestForwardQueue_MissingFile(t *testing.T) {
	q, err := NewForwardQueue(filepath.Join(t.TempDir(), "none.jsonl"))
	if err != nil {
		t.Fatal(err)
	}
	delivered, err := q.Drain(func(PendingForward) error { return nil })
	if err != nil || delivered != 0 {
		t.Errorf("expected empty drain, got %d (%v)", delivered, err)
	}
}
