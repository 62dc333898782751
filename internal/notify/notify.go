// Package notify fans operator-facing events out to notification backends.
package notify

import (
	"sync"
	"time"
)

// NotificationType represents the type of notification
type NotificationType string

const (
	NotificationTypeError         NotificationType = "error"
	NotificationTypeSlotRestarted NotificationType = "slot_restarted"
	NotificationTypeEmergencyStop NotificationType = "emergency_stop"
	NotificationTypeProxyDegraded NotificationType = "proxy_degraded"
	NotificationTypeReport        NotificationType = "report"
	NotificationTypeInfo          NotificationType = "info"
)

// Notification represents a notification to be sent
type Notification struct {
	Type      NotificationType       `json:"type"`
	Title     string                 `json:"title"`
	Message   string                 `json:"message"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// Notifier is the interface for notification backends
type Notifier interface {
	Notify(notification Notification) error
	Close() error
}

// Manager manages multiple notification backends
type Manager struct {
	mu        sync.RWMutex
	notifiers []Notifier
}

// NewManager creates a new notification manager
func NewManager(notifiers ...Notifier) *Manager {
	return &Manager{
		notifiers: notifiers,
	}
}

// Add registers another backend
func (m *Manager) Add(n Notifier) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifiers = append(m.notifiers, n)
}

// Notify sends a notification to all registered backends.
// Every backend is tried; the last error is returned.
func (m *Manager) Notify(notification Notification) error {
	if notification.Timestamp.IsZero() {
		notification.Timestamp = time.Now()
	}

	m.mu.RLock()
	notifiers := append([]Notifier(nil), m.notifiers...)
	m.mu.RUnlock()

	var lastErr error
	for _, notifier := range notifiers {
		if err := notifier.Notify(notification); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// Close closes all notifiers
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var lastErr error
	for _, notifier := range m.notifiers {
		if err := notifier.Close(); err != nil {
			lastErr = err
		}
	}
	m.notifiers = nil
	return lastErr
}
