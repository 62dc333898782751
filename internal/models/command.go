package models

import "time"

// Command is a remote operator command
type Command struct {
	Name       string
	Args       []string
	ChannelID  int64
	Authorized bool
	ReceivedAt time.Time
}
