package waitlist

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrEntryNotFound  = errors.New("waitlist entry not found")
	ErrSlotNotFound   = errors.New("slot not found")
	ErrOfferNotFound  = errors.New("offer not found")
	ErrDuplicateEntry = errors.New("patient already has an active entry for this service")

	// ErrSlotConflict means a state-changing slot operation lost the
	// check-and-set: the slot was not in the expected state. Expected
	// control flow, not a failure.
	ErrSlotConflict = errors.New("slot is not in the required state")

	// ErrEntryConflict is the entry-status analog of ErrSlotConflict.
	ErrEntryConflict = errors.New("entry is not in the required status")

	// ErrOfferResolved means the offer already reached a terminal outcome.
	ErrOfferResolved = errors.New("offer is already resolved")

	// ErrSlotHeld is returned when re-registering a slot that is currently
	// held. The caller must resolve the pending offer first.
	ErrSlotHeld = errors.New("slot is currently held")
)

// Repository contains all storage interactions needed by the service: the
// waitlist store, the slot registry, offer history, and the event log.
//
// Every status/state/outcome mutation is a check-and-set: the update applies
// only if the record is still in the expected prior state, and a miss is
// reported as the matching conflict error. That single property is what lets
// concurrent accepts, declines, expiries, and slot-freed events race without
// a global lock.
type Repository interface {
	// Waitlist store
	CreateEntry(ctx context.Context, e *Entry) error
	GetEntry(ctx context.Context, id uuid.UUID) (*Entry, error)
	FindActiveEntry(ctx context.Context, patientID, serviceID uuid.UUID, providerID *uuid.UUID) (*Entry, error)
	UpdateEntryStatus(ctx context.Context, id uuid.UUID, from, to EntryStatus) (*Entry, error)
	ListEntriesByPatient(ctx context.Context, patientID uuid.UUID) ([]Entry, error)

	// ListCandidates returns the Waiting entries compatible with the given
	// slot (service match, provider null-or-match, availability covers the
	// slot window) in FIFO join order. Empty result is not an error.
	ListCandidates(ctx context.Context, slot *Slot) ([]Entry, error)

	// ListBucket returns the active (Waiting or Offered) entries sharing the
	// given entry's compatibility bucket, FIFO ordered. Used for position
	// queries and PositionChanged fan-out.
	ListBucket(ctx context.Context, serviceID uuid.UUID, providerID *uuid.UUID) ([]Entry, error)

	// Slot registry
	UpsertFreeSlot(ctx context.Context, s *Slot) error
	GetSlot(ctx context.Context, id uuid.UUID) (*Slot, error)
	TryHoldSlot(ctx context.Context, slotID, entryID uuid.UUID, deadline time.Time) (*Slot, error)
	ReleaseSlot(ctx context.Context, slotID uuid.UUID) (*Slot, error)
	CommitSlot(ctx context.Context, slotID uuid.UUID) (*Slot, error)
	CancelSlot(ctx context.Context, slotID uuid.UUID) (*Slot, error)

	// Offers
	CreateOffer(ctx context.Context, o *Offer) error
	GetOffer(ctx context.Context, id uuid.UUID) (*Offer, error)
	GetPendingOfferForEntry(ctx context.Context, entryID uuid.UUID) (*Offer, error)
	ResolveOffer(ctx context.Context, id uuid.UUID, to OfferOutcome) (*Offer, error)
	ListOffersForSlot(ctx context.Context, slotID uuid.UUID) ([]Offer, error)
	ListPendingOffers(ctx context.Context) ([]Offer, error)
	FindDuePendingOffers(ctx context.Context, now time.Time) ([]Offer, error)
	ListActiveOffersByPatient(ctx context.Context, patientID uuid.UUID) ([]Offer, error)

	// Event log
	InsertEvent(ctx context.Context, ev EventRecord) error
}
