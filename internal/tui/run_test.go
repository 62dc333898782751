package tui

import (
	"testing"

	tea "github.com/charmbracelet/bubbletea"
)

func TestRunUsesStartProgram(t *testing.T) {
	var got tea.Model
	original := startProgram
	startProgram = func(model tea.Model) error {
		got = model
		return nil
	}
	defer func() {
		startProgram = original
	}()

	if err := Run(stubSource{}, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := got.(Model); !ok {
		t.Fatalf("expected a dashboard model, got %T", got)
	}
}
