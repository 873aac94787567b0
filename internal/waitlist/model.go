package waitlist

import (
	"time"

	"github.com/google/uuid"
)

type EntryStatus string

const (
	EntryWaiting EntryStatus = "waiting"
	EntryOffered EntryStatus = "offered"
	EntryBooked  EntryStatus = "booked"
	EntryRemoved EntryStatus = "removed"
)

// Active reports whether the entry still occupies a queue position.
func (s EntryStatus) Active() bool {
	return s == EntryWaiting || s == EntryOffered
}

type SlotState string

const (
	SlotFree      SlotState = "free"
	SlotHeld      SlotState = "held"
	SlotCommitted SlotState = "committed"
	SlotCancelled SlotState = "cancelled"
)

type OfferOutcome string

const (
	OfferPending    OfferOutcome = "pending"
	OfferAccepted   OfferOutcome = "accepted"
	OfferDeclined   OfferOutcome = "declined"
	OfferExpired    OfferOutcome = "expired"
	OfferSuperseded OfferOutcome = "superseded"
)

// Entry is a patient's standing request for a service, optionally pinned to a
// specific provider. ProviderID == nil means any provider will do.
type Entry struct {
	ID           uuid.UUID
	PatientID    uuid.UUID
	ServiceID    uuid.UUID
	ProviderID   *uuid.UUID
	Availability Availability
	Status       EntryStatus
	JoinedAt     time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Slot is a concrete bookable time range for a service/provider. HeldBy and
// HoldDeadline are set iff State == SlotHeld.
type Slot struct {
	ID           uuid.UUID
	ServiceID    uuid.UUID
	ProviderID   uuid.UUID
	StartTime    time.Time
	EndTime      time.Time
	State        SlotState
	HeldBy       *uuid.UUID
	HoldDeadline *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Offer is an exclusive, time-limited claim on a slot by one entry. Offers are
// immutable once resolved; a cascade appends a new row rather than reusing one.
// Slot and Entry are referenced by id only, every lookup goes through the
// repository.
type Offer struct {
	ID        uuid.UUID
	SlotID    uuid.UUID
	EntryID   uuid.UUID
	Outcome   OfferOutcome
	CreatedAt time.Time
	Deadline  time.Time
}

func (o *Offer) Resolved() bool {
	return o.Outcome != OfferPending
}
