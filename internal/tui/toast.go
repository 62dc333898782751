package tui

import "time"

// Toast is a short-lived status line
type Toast struct {
	Message string
	Err     bool
	Expires time.Time
}

// ToastQueue shows toasts one at a time
type ToastQueue struct {
	items []Toast
}

func NewToastQueue() *ToastQueue {
	return &ToastQueue{}
}

func (queue *ToastQueue) Push(toast Toast) {
	queue.items = append(queue.items, toast)
}

func (queue *ToastQueue) Peek() (Toast, bool) {
	if len(queue.items) == 0 {
		return Toast{}, false
	}
	return queue.items[0], true
}

func (queue *ToastQueue) Pop() (Toast, bool) {
	if len(queue.items) == 0 {
		return Toast{}, false
	}
	item := queue.items[0]
	queue.items = queue.items[1:]
	return item, true
}

// Expire drops toasts at the head of the queue that expired before now
func (queue *ToastQueue) Expire(now time.Time) {
	for len(queue.items) > 0 && !queue.items[0].Expires.IsZero() && now.After(queue.items[0].Expires) {
		queue.items = queue.items[1:]
	}
}

func (queue *ToastQueue) Len() int {
	return len(queue.items)
}
