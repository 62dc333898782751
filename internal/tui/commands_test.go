package tui

import "testing"

func TestFilterCommands(t *testing.T) {
	matches := FilterCommands(Commands, ":report")
	if len(matches) != 3 || matches[0].Name != "report" {
		t.Fatalf("expected the three report commands, got %+v", matches)
	}
	if matches := FilterCommands(Commands, "restart 3"); len(matches) != 1 || matches[0].Name != "restart" {
		t.Fatalf("expected restart match, got %+v", matches)
	}
	if matches := FilterCommands(Commands, " "); len(matches) != len(Commands) {
		t.Fatalf("expected all commands for empty input, got %d", len(matches))
	}
}

func TestNextIndex(t *testing.T) {
	if next := NextIndex(0, 2, 1); next != 1 {
		t.Fatalf("expected index 1, got %d", next)
	}
	if next := NextIndex(1, 2, 1); next != 0 {
		t.Fatalf("expected wrap to 0, got %d", next)
	}
	if next := NextIndex(0, 2, -1); next != 1 {
		t.Fatalf("expected wrap to 1, got %d", next)
	}
	if next := NextIndex(0, 0, 1); next != 0 {
		t.Fatalf("expected index 0 for empty list, got %d", next)
	}
}
