package notify

import (
	"github.com/gabe/botpool/internal/logger"
)

// LogNotifier writes notifications to the daemon log
type LogNotifier struct {
	log logger.Logger
}

// NewLogNotifier creates a notifier backed by log
func NewLogNotifier(log logger.Logger) *LogNotifier {
	return &LogNotifier{log: log.With(logger.String("component", "notify"))}
}

// Notify logs the notification title and type
func (l *LogNotifier) Notify(notification Notification) error {
	fields := []logger.Field{
		logger.String("type", string(notification.Type)),
		logger.String("title", notification.Title),
	}
	switch notification.Type {
	case NotificationTypeError, NotificationTypeEmergencyStop:
		l.log.Warn(notification.Message, fields...)
	default:
		l.log.Info(notification.Message, fields...)
	}
	return nil
}

func (l *LogNotifier) Close() error {
	return l.log.Sync()
}
