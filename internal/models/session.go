package models

import (
	"fmt"
	"strings"
	"time"
)

// TimeLayout is the timestamp format used in session records
const TimeLayout = "2006-01-02T15:04:05"

// DayLayout is the calendar day format used for history buckets
const DayLayout = "2006-01-02"

// SessionRecord is one completed session window of a slot
type SessionRecord struct {
	SessionID      string   `json:"session_id,omitempty"`
	StartTime      string   `json:"start_time"`
	EndTime        string   `json:"end_time"`
	BotID          string   `json:"bot_id"`
	SlotID         int      `json:"slot_id,omitempty"`
	Profit         float64  `json:"profit"`
	Participations int      `json:"participations"`
	Successes      int      `json:"successes"`
	Failures       int      `json:"failures"`
	ActiveTime     float64  `json:"active_time"` // seconds
	InitialBalance *float64 `json:"initial_balance"`
}

// FormatTime formats t for a session record
func FormatTime(t time.Time) string {
	return t.Format(TimeLayout)
}

// Day returns the calendar day of the record's start time
func (r SessionRecord) Day() (time.Time, error) {
	datePart, _, _ := strings.Cut(r.StartTime, "T")
	day, err := time.Parse(DayLayout, datePart)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid start_time %q: %w", r.StartTime, err)
	}
	return day, nil
}
