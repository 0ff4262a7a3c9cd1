package library

import "sync"

// Outbox priorities. Lower numbers are sent first.
const (
	PriorityChat uint8 = 0
	PriorityPost uint8 = 1
)

// DefaultOutboxSize bounds the messages waiting for one session.
const DefaultOutboxSize = 256

// Outbox is a priority-ordered queue of unsolicited messages for one session.
// The session goroutine drains it between requests. Items with equal
// priority keep insertion order.
type Outbox struct {
	mu    sync.Mutex
	items []outboxItem
	max   int
	ready chan struct{}
}

type outboxItem struct {
	msg      string
	priority uint8
}

// NewOutbox creates an empty outbox holding at most max messages. If max is
// 0, DefaultOutboxSize is used.
func NewOutbox(max int) *Outbox {
	if max <= 0 {
		max = DefaultOutboxSize
	}
	return &Outbox{
		max:   max,
		ready: make(chan struct{}, 1),
	}
}

// Push queues msg. Returns false if the outbox is full and msg was dropped.
func (q *Outbox) Push(msg string, priority uint8) bool {
	q.mu.Lock()
	if len(q.items) >= q.max {
		q.mu.Unlock()
		return false
	}
	q.items = append(q.items, outboxItem{msg: msg, priority: priority})
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
	return true
}

// Pop returns the highest-priority message. ok is false if the outbox is empty.
func (q *Outbox) Pop() (msg string, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	bestIdx := -1
	var bestPri uint8 = 255
	for i, item := range q.items {
		if bestIdx == -1 || item.priority < bestPri {
			bestIdx = i
			bestPri = item.priority
		}
	}
	if bestIdx == -1 {
		return "", false
	}

	msg = q.items[bestIdx].msg
	q.items = append(q.items[:bestIdx], q.items[bestIdx+1:]...)
	return msg, true
}

// Ready receives a value after Push. One signal may cover several messages,
// so drain with Pop until it reports empty.
func (q *Outbox) Ready() <-chan struct{} {
	return q.ready
}

// Len returns the number of queued messages.
func (q *Outbox) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
