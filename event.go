package lum

import (
	"time"

	"github.com/google/uuid"
)

// Event is an opaque gateway payload plus delivery metadata. Events are
// delivered read-only to all Running modules; the framework never inspects
// the payload.
type Event struct {
	// ID uniquely identifies this event. Time-ordered (UUIDv7) when
	// generated by NewEvent.
	ID string

	// CorrelationID links this event to a related one, such as the
	// inbound message that caused a follow-up action. Optional.
	CorrelationID string

	// Source identifies the collaborator that produced the event.
	Source string

	// Timestamp is when the event was received from the gateway.
	Timestamp time.Time

	// Payload is the opaque event body.
	Payload any
}

// NewEvent builds an event with a fresh time-ordered ID and the current
// timestamp.
func NewEvent(source string, payload any) Event {
	return Event{
		ID:        newEventID(),
		Source:    source,
		Timestamp: time.Now(),
		Payload:   payload,
	}
}

// newEventID generates a UUIDv7, falling back to v4 if the clock source
// misbehaves.
func newEventID() string {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return id.String()
}
