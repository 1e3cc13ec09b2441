// Package delivery paces outbound messages so the account behaves like a
// person typing rather than a bot: sends are spaced by a randomized delay,
// capped per hour, restricted to working hours, and preceded by a typing
// indicator.
package delivery

import (
	"time"

	"github.com/google/uuid"
)

// Priority orders envelopes in the queue.
type Priority int

const (
	// PriorityNormal joins the tail of the queue.
	PriorityNormal Priority = iota

	// PriorityHigh jumps to the head of the queue. It does not bypass the
	// pacing gates; it only wins the next available send slot.
	PriorityHigh
)

// String implements fmt.Stringer.
func (p Priority) String() string {
	if p == PriorityHigh {
		return "high"
	}
	return "normal"
}

// Envelope is one queued outbound message.
type Envelope struct {
	// ID identifies the envelope across retries.
	ID string

	// Destination is the recipient's phone number, digits only.
	Destination string

	// Body is the text to send.
	Body string

	// Priority decides queue position at enqueue time. Retries always
	// requeue at the tail regardless of the original priority.
	Priority Priority

	// Attempts counts delivery attempts made so far.
	Attempts int

	// EnqueuedAt is when the envelope first entered the queue.
	EnqueuedAt time.Time
}

// NewEnvelope creates an envelope with a fresh ID.
func NewEnvelope(destination, body string, priority Priority) *Envelope {
	return &Envelope{
		ID:          uuid.NewString(),
		Destination: destination,
		Body:        body,
		Priority:    priority,
		EnqueuedAt:  time.Now(),
	}
}
