package notify

import (
	"fmt"
)

// NotifyErrorCaptured forwards a newly captured error signature
func (m *Manager) NotifyErrorCaptured(hash, trace string) error {
	return m.Notify(Notification{
		Type:    NotificationTypeError,
		Title:   fmt.Sprintf("Error #%s", hash),
		Message: trace,
		Data: map[string]interface{}{
			"hash": hash,
		},
	})
}

// NotifySlotRestarted sends a notification when a slot is structurally restarted
func (m *Manager) NotifySlotRestarted(slotID int, reason string) error {
	return m.Notify(Notification{
		Type:    NotificationTypeSlotRestarted,
		Title:   "Slot Restarted",
		Message: fmt.Sprintf("Slot %d restarted: %s", slotID, reason),
		Data: map[string]interface{}{
			"slot":   slotID,
			"reason": reason,
		},
	})
}

// NotifyEmergencyStop reports the outcome of an emergency teardown
func (m *Manager) NotifyEmergencyStop(slots, failures int) error {
	return m.Notify(Notification{
		Type:    NotificationTypeEmergencyStop,
		Title:   "Emergency Stop",
		Message: fmt.Sprintf("%d slots stopped, %d teardown failures", slots, failures),
		Data: map[string]interface{}{
			"slots":    slots,
			"failures": failures,
		},
	})
}

// NotifyProxyDegraded warns that the proxy pool is smaller than the slot count
func (m *Manager) NotifyProxyDegraded(slotID int, proxy string) error {
	return m.Notify(Notification{
		Type:    NotificationTypeProxyDegraded,
		Title:   "Proxy Pool Exhausted",
		Message: fmt.Sprintf("Slot %d is sharing proxy %s", slotID, proxy),
		Data: map[string]interface{}{
			"slot":  slotID,
			"proxy": proxy,
		},
	})
}

// NotifyReport pushes a formatted performance report
func (m *Manager) NotifyReport(title, body string) error {
	return m.Notify(Notification{
		Type:    NotificationTypeReport,
		Title:   title,
		Message: body,
	})
}
