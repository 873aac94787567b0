package waitlist

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const (
	EventOfferCreated    = "OFFER_CREATED"
	EventOfferAccepted   = "OFFER_ACCEPTED"
	EventOfferDeclined   = "OFFER_DECLINED"
	EventOfferExpired    = "OFFER_EXPIRED"
	EventOfferSuperseded = "OFFER_SUPERSEDED"
	EventPositionChanged = "POSITION_CHANGED"
)

// Event is one state transition, as seen by the notification and calendar
// collaborators. Fields that do not apply to the event type are zero.
type Event struct {
	Type      string     `json:"type"`
	OfferID   uuid.UUID  `json:"offer_id,omitempty"`
	EntryID   uuid.UUID  `json:"entry_id,omitempty"`
	SlotID    uuid.UUID  `json:"slot_id,omitempty"`
	PatientID uuid.UUID  `json:"patient_id,omitempty"`
	Deadline  *time.Time `json:"deadline,omitempty"`
	Position  int        `json:"position,omitempty"`
	At        time.Time  `json:"at"`
}

// EventRecord is the durable form appended to the event log table.
type EventRecord struct {
	ID        int64
	EventType string
	OfferID   *uuid.UUID
	EntryID   *uuid.UUID
	Payload   []byte
	CreatedAt time.Time
}

// Publisher fans events out to external subscribers. Delivery is best-effort
// relative to state transitions: the state machine advances whether or not
// anyone is listening.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// NopPublisher drops every event. Used when no fan-out transport is wired.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }
