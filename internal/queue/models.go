package queue

// Queue is a named FIFO-by-availability channel for JSON messages.
type Queue struct {
	ID int64 `json:"id"`

	// Name is the unique, externally addressable queue name.
	Name string `json:"name"`

	// DLQID, when non-nil, references the queue used as the dead-letter
	// target: messages that exhaust max_attempts are moved there instead of
	// being deleted.
	DLQID *int64 `json:"dlq_id,omitempty"`

	// MaxAttempts is the number of failed deliveries after which a message
	// is dropped (or dead-lettered). Always ≥ 1.
	MaxAttempts int `json:"max_attempts"`

	// VisibilityMS is the default lease duration applied when a poll does
	// not supply its own. Always ≥ 1.
	VisibilityMS int64 `json:"visibility_ms"`
}

// Message is a JSON payload plus delivery metadata owned by exactly one
// queue. Values handed to callers are by-value snapshots of the row at the
// time the owning transaction committed.
type Message struct {
	ID      int64 `json:"id"`
	QueueID int64 `json:"queue_id"`

	// Payload is the stored JSON text, re-emitted verbatim.
	Payload string `json:"payload"`

	// Priority orders delivery: higher values are polled first, ties fall
	// back to FIFO by availability.
	Priority int `json:"priority"`

	// IdempotencyKey, when non-nil, is unique within the queue; enqueueing
	// the same key again fails with ErrDuplicate.
	IdempotencyKey *string `json:"idempotency_key,omitempty"`

	// Attempts counts delivery failures recorded so far. Non-decreasing
	// until the message is deleted or dead-lettered.
	Attempts int `json:"attempts"`

	// AvailableAt is the millisecond timestamp before which the message is
	// hidden from pollers. It doubles as the FIFO key and the lease timer:
	// polling advances it to now + visibility.
	AvailableAt int64 `json:"available_at"`

	// LeaseExpiresAt mirrors AvailableAt for polled messages and lets stats
	// distinguish "currently leased" from "delayed but never delivered".
	LeaseExpiresAt *int64 `json:"lease_expires_at,omitempty"`

	// LeasedBy identifies the consumer holding the live lease, if any.
	LeasedBy *string `json:"leased_by,omitempty"`

	CreatedAt int64 `json:"created_at"`

	// ExpiresAt, when non-nil, is the millisecond timestamp after which the
	// message is discarded without delivery.
	ExpiresAt *int64 `json:"expires_at,omitempty"`
}

// Stats summarises the deliverable state of a queue at a point in time.
type Stats struct {
	// Ready counts messages with available_at ≤ now.
	Ready int64 `json:"ready"`

	// Leased counts messages with a live lease (lease_expires_at > now).
	Leased int64 `json:"leased"`

	// DLQ counts messages sitting in the associated dead-letter queue, or 0
	// when the queue has none.
	DLQ int64 `json:"dlq"`
}
