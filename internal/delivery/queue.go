package delivery

import "sync"

// Queue is a mutex-guarded FIFO with a priority fast lane: high-priority
// envelopes are inserted at the head, everything else joins the tail.
type Queue struct {
	mu    sync.Mutex
	items []*Envelope
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{}
}

// Push inserts an envelope according to its priority.
func (q *Queue) Push(env *Envelope) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if env.Priority == PriorityHigh {
		q.items = append([]*Envelope{env}, q.items...)
		return
	}
	q.items = append(q.items, env)
}

// PushTail appends regardless of priority. Used for retries so a failing
// high-priority envelope cannot starve the rest of the queue.
func (q *Queue) PushTail(env *Envelope) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, env)
}

// pushHead reinserts an envelope at the head after an interrupted attempt.
func (q *Queue) pushHead(env *Envelope) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append([]*Envelope{env}, q.items...)
}

// Pop removes and returns the head envelope, or nil when empty.
func (q *Queue) Pop() *Envelope {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return nil
	}
	head := q.items[0]
	q.items = q.items[1:]
	return head
}

// Len returns the number of queued envelopes.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
