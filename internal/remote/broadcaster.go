package remote

import (
	"context"
	"sync"
	"time"

	"github.com/gabe/botpool/internal/notify"
)

const broadcastTimeout = 30 * time.Second

// Broadcaster forwards notifications to every allow-listed channel. Delivery
// happens in the background; Close waits for pending deliveries.
type Broadcaster struct {
	c     *Controller
	types map[notify.NotificationType]bool
	wg    sync.WaitGroup
}

// NewBroadcaster creates a notifier broadcasting through c. With no types
// every notification is sent.
func NewBroadcaster(c *Controller, types ...notify.NotificationType) *Broadcaster {
	b := &Broadcaster{c: c}
	if len(types) > 0 {
		b.types = make(map[notify.NotificationType]bool, len(types))
		for _, t := range types {
			b.types[t] = true
		}
	}
	return b
}

// Notify implements notify.Notifier
func (b *Broadcaster) Notify(n notify.Notification) error {
	if b.types != nil && !b.types[n.Type] {
		return nil
	}
	text := n.Title
	if n.Message != "" {
		text += "\n" + n.Message
	}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), broadcastTimeout)
		defer cancel()
		b.c.Broadcast(ctx, text)
	}()
	return nil
}

// Close implements notify.Notifier
func (b *Broadcaster) Close() error {
	b.wg.Wait()
	return nil
}
