package models

import (
	"testing"
	"time"
)

func TestSessionRecord_Day(t *testing.T) {
	rec := SessionRecord{StartTime: "2024-01-01T23:59:59"}
	day, err := rec.Day()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !day.Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("expected 2024-01-01, got %s", day)
	}

	if _, err := (SessionRecord{StartTime: "yesterday"}).Day(); err == nil {
		t.Error("expected error for malformed start_time")
	}
}

func TestSlotStats_Clone(t *testing.T) {
	stats := NewSlotStats()
	stats.Participations[CategoryAmateur] = 2
	stats.Participations[CategoryContender] = 1

	c := stats.Clone()
	c.Participations[CategoryAmateur] = 10

	if stats.Participations[CategoryAmateur] != 2 {
		t.Error("clone shares participations map with original")
	}
	if stats.TotalParticipations() != 3 {
		t.Errorf("expected 3 participations, got %d", stats.TotalParticipations())
	}
}
