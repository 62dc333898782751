// Package history stores session records in one JSON file per profile and day.
package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gabe/botpool/internal/logger"
	"github.com/gabe/botpool/internal/models"
)

// ErrInvalidRange is returned when end is before start
var ErrInvalidRange = errors.New("end day is before start day")

// Summary aggregates session records over a day range
type Summary struct {
	Start               time.Time `json:"start"`
	End                 time.Time `json:"end"`
	TotalProfit         float64   `json:"total_profit"`
	AverageDailyProfit  float64   `json:"average_daily_profit"`
	TotalParticipations int       `json:"total_participations"`
	TotalSuccesses      int       `json:"total_successes"`
	TotalFailures       int       `json:"total_failures"`
	TotalActiveTime     float64   `json:"total_active_time"` // seconds
	ROI                 *float64  `json:"roi"`
	NumDays             int       `json:"num_days"`
	Sessions            int       `json:"sessions"`
}

// History is the performance store of one profile (bot id)
type History struct {
	profileID string
	dir       string
	log       logger.Logger

	mu      sync.Mutex
	buckets map[string]*sync.Mutex
}

// New creates a history rooted at dir
func New(dir, profileID string, log logger.Logger) (*History, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &History{
		profileID: profileID,
		dir:       dir,
		log:       log.With(logger.String("component", "history")),
		buckets:   make(map[string]*sync.Mutex),
	}, nil
}

// ProfileID returns the profile this history belongs to
func (h *History) ProfileID() string {
	return h.profileID
}

// Path returns the bucket file of day
func (h *History) Path(day time.Time) string {
	return filepath.Join(h.dir, fmt.Sprintf("%s_%s.json", h.profileID, day.Format(models.DayLayout)))
}

func (h *History) bucketLock(path string) *sync.Mutex {
	h.mu.Lock()
	defer h.mu.Unlock()

	l, ok := h.buckets[path]
	if !ok {
		l = &sync.Mutex{}
		h.buckets[path] = l
	}
	return l
}

// RecordSession appends rec to the bucket of day, or of the record's start
// day when day is nil. Readers never observe a partially written bucket.
func (h *History) RecordSession(rec models.SessionRecord, day *time.Time) error {
	var bucket time.Time
	if day != nil {
		bucket = *day
	} else {
		d, err := rec.Day()
		if err != nil {
			return err
		}
		bucket = d
	}

	path := h.Path(bucket)
	lock := h.bucketLock(path)
	lock.Lock()
	defer lock.Unlock()

	records, err := readBucket(path)
	if err != nil {
		// A corrupt bucket is replaced rather than blocking new sessions
		h.log.Warn("Discarding unreadable history bucket", logger.String("path", path), logger.Error(err))
		records = nil
	}
	records = append(records, rec)

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session records: %w", err)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write history bucket: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename history bucket: %w", err)
	}

	return nil
}

// LoadHistory returns all records from start to end inclusive in day order.
// Missing and unreadable buckets are skipped.
func (h *History) LoadHistory(start, end time.Time) ([]models.SessionRecord, error) {
	start, end = truncateDay(start), truncateDay(end)
	if end.Before(start) {
		return nil, ErrInvalidRange
	}

	var records []models.SessionRecord
	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		path := h.Path(day)
		bucket, err := readBucket(path)
		if err != nil {
			h.log.Warn("Skipping unreadable history bucket", logger.String("path", path), logger.Error(err))
			continue
		}
		records = append(records, bucket...)
	}
	return records, nil
}

// Summarize aggregates LoadHistory(start, end)
func (h *History) Summarize(start, end time.Time) (Summary, error) {
	start, end = truncateDay(start), truncateDay(end)
	records, err := h.LoadHistory(start, end)
	if err != nil {
		return Summary{}, err
	}
	return Summarize(records, start, end), nil
}

// Summarize aggregates records over the inclusive range start..end
func Summarize(records []models.SessionRecord, start, end time.Time) Summary {
	start, end = truncateDay(start), truncateDay(end)
	s := Summary{
		Start:    start,
		End:      end,
		NumDays:  daysBetween(start, end) + 1,
		Sessions: len(records),
	}

	var initialBalance *float64
	for _, r := range records {
		s.TotalProfit += r.Profit
		s.TotalParticipations += r.Participations
		s.TotalSuccesses += r.Successes
		s.TotalFailures += r.Failures
		s.TotalActiveTime += r.ActiveTime
		if initialBalance == nil && r.InitialBalance != nil {
			initialBalance = r.InitialBalance
		}
	}

	if s.NumDays > 0 {
		s.AverageDailyProfit = s.TotalProfit / float64(s.NumDays)
	}
	if initialBalance != nil && *initialBalance > 0 {
		roi := ((*initialBalance + s.TotalProfit) - *initialBalance) / *initialBalance * 100
		s.ROI = &roi
	}
	return s
}

func readBucket(path string) ([]models.SessionRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	if len(data) == 0 {
		return nil, nil
	}

	var records []models.SessionRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, err
	}
	return records, nil
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func daysBetween(start, end time.Time) int {
	return int(end.Sub(start).Hours() / 24)
}
