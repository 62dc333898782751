package models

import "time"

// SlotState represents a worker slot's lifecycle state
type SlotState string

const (
	SlotInitializing SlotState = "initializing"
	SlotRunning      SlotState = "running"
	SlotPaused       SlotState = "paused"
	SlotRestarting   SlotState = "restarting"
	SlotStopped      SlotState = "stopped"
)

// SlotStats is the cumulative stats block of a slot.
// Only the slot's own control loop writes it.
type SlotStats struct {
	Participations map[Category]int `json:"participations"`
	Successes      int              `json:"successes"`
	Failures       int              `json:"failures"`
	Restarts       int              `json:"restarts"`
	Profit         float64          `json:"profit"`
	ActiveTime     time.Duration    `json:"active_time"`
	LastHeartbeat  time.Time        `json:"last_heartbeat"`
}

// NewSlotStats returns an empty stats block
func NewSlotStats() SlotStats {
	return SlotStats{Participations: make(map[Category]int)}
}

// Clone returns a deep copy
func (s SlotStats) Clone() SlotStats {
	c := s
	c.Participations = make(map[Category]int, len(s.Participations))
	for k, v := range s.Participations {
		c.Participations[k] = v
	}
	return c
}

// TotalParticipations sums participations across categories
func (s SlotStats) TotalParticipations() int {
	total := 0
	for _, n := range s.Participations {
		total += n
	}
	return total
}
