package waitlist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrOfferExpiredState is returned for an Accept that arrived at or
	// after the deadline. Once expiry has fired, expiry always wins.
	ErrOfferExpiredState = errors.New("offer has expired")

	ErrInvalidSlotWindow   = errors.New("slot end time must be after start time")
	ErrInvalidAvailability = errors.New("invalid availability")
)

// ExpiryScheduler is the timing collaborator: it promises to call back
// ExpireOffer once per scheduled offer at its deadline, unless cancelled.
type ExpiryScheduler interface {
	Schedule(offerID uuid.UUID, deadline time.Time)
	Cancel(offerID uuid.UUID)
}

type Config struct {
	// OfferWindow is how long a patient has to respond to an offer. One
	// fixed policy constant for all offers; per-offer windows would
	// complicate the scheduler for no product need.
	OfferWindow time.Duration
}

// Service is the offer lifecycle manager plus the matcher. It is the sole
// writer of slot state, entry status, and offer outcomes; everything else
// reads through the repository.
type Service struct {
	repo   Repository
	locker Locker
	sched  ExpiryScheduler
	pub    Publisher
	window time.Duration
	now    func() time.Time
}

func NewService(repo Repository, locker Locker, sched ExpiryScheduler, pub Publisher, cfg Config) *Service {
	if pub == nil {
		pub = NopPublisher{}
	}
	window := cfg.OfferWindow
	if window <= 0 {
		window = 30 * time.Minute
	}
	return &Service{
		repo:   repo,
		locker: locker,
		sched:  sched,
		pub:    pub,
		window: window,
		now:    time.Now,
	}
}

type JoinParams struct {
	PatientID    uuid.UUID
	ServiceID    uuid.UUID
	ProviderID   *uuid.UUID
	Availability Availability
}

// Join adds a patient to the waitlist for a service and returns the new entry
// with its 1-based queue position.
func (s *Service) Join(ctx context.Context, p JoinParams) (*Entry, int, error) {
	if p.PatientID == uuid.Nil {
		return nil, 0, errors.New("patient id is required")
	}
	if p.ServiceID == uuid.Nil {
		return nil, 0, errors.New("service id is required")
	}
	if err := p.Availability.Validate(); err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrInvalidAvailability, err)
	}

	existing, err := s.repo.FindActiveEntry(ctx, p.PatientID, p.ServiceID, p.ProviderID)
	if err != nil && !errors.Is(err, ErrEntryNotFound) {
		return nil, 0, fmt.Errorf("check active entry: %w", err)
	}
	if existing != nil {
		return nil, 0, ErrDuplicateEntry
	}

	now := s.now()
	entry := &Entry{
		ID:           uuid.New(),
		PatientID:    p.PatientID,
		ServiceID:    p.ServiceID,
		ProviderID:   p.ProviderID,
		Availability: p.Availability,
		Status:       EntryWaiting,
		JoinedAt:     now,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.CreateEntry(ctx, entry); err != nil {
		return nil, 0, fmt.Errorf("create entry: %w", err)
	}

	pos, err := s.positionOf(ctx, entry)
	if err != nil {
		return nil, 0, err
	}

	log.Printf("patient %s joined waitlist entry=%s service=%s position=%d",
		p.PatientID, entry.ID, p.ServiceID, pos)

	return entry, pos, nil
}

// Leave removes an entry from the waitlist. If the entry currently holds a
// pending offer, the offer is declined and its slot cascades to the next
// candidate before the entry is archived.
func (s *Service) Leave(ctx context.Context, entryID uuid.UUID) error {
	entry, err := s.repo.GetEntry(ctx, entryID)
	if err != nil {
		return err
	}
	if !entry.Status.Active() {
		return ErrEntryNotFound
	}

	if entry.Status == EntryOffered {
		offer, err := s.repo.GetPendingOfferForEntry(ctx, entryID)
		if err != nil && !errors.Is(err, ErrOfferNotFound) {
			return fmt.Errorf("find pending offer: %w", err)
		}
		if offer != nil {
			if err := s.abandonOffer(ctx, offer, entryID); err != nil {
				return err
			}
		}
	}

	from := entry.Status
	if _, err := s.repo.UpdateEntryStatus(ctx, entryID, from, EntryRemoved); err != nil {
		// The offer resolution above may have put the entry back to
		// Waiting already; retry from that status once.
		if errors.Is(err, ErrEntryConflict) && from == EntryOffered {
			if _, err := s.repo.UpdateEntryStatus(ctx, entryID, EntryWaiting, EntryRemoved); err != nil {
				return fmt.Errorf("remove entry: %w", err)
			}
		} else {
			return fmt.Errorf("remove entry: %w", err)
		}
	}

	log.Printf("entry %s left waitlist (was %s)", entryID, from)
	s.emitBucketPositions(ctx, entry.ServiceID, entry.ProviderID)
	return nil
}

// abandonOffer resolves a leaving entry's pending offer through the decline
// path and cascades the freed slot.
func (s *Service) abandonOffer(ctx context.Context, offer *Offer, entryID uuid.UUID) error {
	return s.locker.WithSlotLock(ctx, offer.SlotID, func(lockCtx context.Context) error {
		current, err := s.repo.GetOffer(lockCtx, offer.ID)
		if err != nil {
			return err
		}
		if current.Resolved() {
			return nil
		}

		resolved, err := s.repo.ResolveOffer(lockCtx, offer.ID, OfferDeclined)
		if err != nil {
			if errors.Is(err, ErrOfferResolved) {
				return nil
			}
			return fmt.Errorf("decline offer on leave: %w", err)
		}
		s.sched.Cancel(offer.ID)

		slot, err := s.repo.ReleaseSlot(lockCtx, offer.SlotID)
		if err != nil {
			return fmt.Errorf("release slot: %w", err)
		}

		s.emit(lockCtx, Event{
			Type:    EventOfferDeclined,
			OfferID: resolved.ID,
			EntryID: entryID,
			SlotID:  slot.ID,
		})

		if _, err := s.matchSlot(lockCtx, slot); err != nil {
			return fmt.Errorf("cascade after leave: %w", err)
		}
		return nil
	})
}

type SlotFreedParams struct {
	SlotID     uuid.UUID
	ServiceID  uuid.UUID
	ProviderID uuid.UUID
	StartTime  time.Time
	EndTime    time.Time
}

// SlotFreed registers a slot as free and immediately tries to match it. The
// returned offer is nil when no eligible candidate exists; the slot then
// stays free. ErrSlotHeld means the caller tried to re-register a slot with
// an unresolved hold, which is a contract violation on their side.
func (s *Service) SlotFreed(ctx context.Context, p SlotFreedParams) (*Offer, error) {
	if p.SlotID == uuid.Nil || p.ServiceID == uuid.Nil || p.ProviderID == uuid.Nil {
		return nil, errors.New("slot id, service id and provider id are required")
	}
	if !p.EndTime.After(p.StartTime) {
		return nil, ErrInvalidSlotWindow
	}

	var offer *Offer
	err := s.locker.WithSlotLock(ctx, p.SlotID, func(lockCtx context.Context) error {
		now := s.now()
		slot := &Slot{
			ID:         p.SlotID,
			ServiceID:  p.ServiceID,
			ProviderID: p.ProviderID,
			StartTime:  p.StartTime,
			EndTime:    p.EndTime,
			State:      SlotFree,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := s.repo.UpsertFreeSlot(lockCtx, slot); err != nil {
			return err
		}

		var err error
		offer, err = s.matchSlot(lockCtx, slot)
		return err
	})
	if err != nil {
		return nil, err
	}
	return offer, nil
}

// matchSlot finds the best eligible candidate for a free slot and holds the
// slot for them. Caller must hold the slot lock. A nil offer with nil error
// means no candidate; the slot remains free.
//
// Candidates that already let an offer on this same slot lapse (declined or
// expired) are skipped, otherwise a decline cascade would hand the slot
// straight back to the decliner. They keep full seniority for other slots.
func (s *Service) matchSlot(ctx context.Context, slot *Slot) (*Offer, error) {
	candidates, err := s.repo.ListCandidates(ctx, slot)
	if err != nil {
		return nil, fmt.Errorf("list candidates: %w", err)
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	prior, err := s.repo.ListOffersForSlot(ctx, slot.ID)
	if err != nil {
		return nil, fmt.Errorf("list prior offers: %w", err)
	}
	lapsed := make(map[uuid.UUID]bool)
	for _, o := range prior {
		if o.Outcome == OfferDeclined || o.Outcome == OfferExpired {
			lapsed[o.EntryID] = true
		}
	}

	now := s.now()
	deadline := now.Add(s.window)
	held := false

	for _, cand := range candidates {
		if lapsed[cand.ID] {
			continue
		}

		if held {
			// The previous candidate vanished between listing and
			// claiming; re-point the hold.
			if _, err := s.repo.ReleaseSlot(ctx, slot.ID); err != nil {
				return nil, fmt.Errorf("re-point hold: %w", err)
			}
			held = false
		}
		if _, err := s.repo.TryHoldSlot(ctx, slot.ID, cand.ID, deadline); err != nil {
			if errors.Is(err, ErrSlotConflict) {
				// Lost the slot to a concurrent path; it is no
				// longer ours to match.
				return nil, nil
			}
			return nil, fmt.Errorf("hold slot: %w", err)
		}
		held = true

		if _, err := s.repo.UpdateEntryStatus(ctx, cand.ID, EntryWaiting, EntryOffered); err != nil {
			if errors.Is(err, ErrEntryConflict) || errors.Is(err, ErrEntryNotFound) {
				continue
			}
			return nil, fmt.Errorf("mark entry offered: %w", err)
		}

		offer := &Offer{
			ID:        uuid.New(),
			SlotID:    slot.ID,
			EntryID:   cand.ID,
			Outcome:   OfferPending,
			CreatedAt: now,
			Deadline:  deadline,
		}
		if err := s.repo.CreateOffer(ctx, offer); err != nil {
			return nil, fmt.Errorf("create offer: %w", err)
		}

		s.sched.Schedule(offer.ID, offer.Deadline)
		s.emit(ctx, Event{
			Type:      EventOfferCreated,
			OfferID:   offer.ID,
			EntryID:   cand.ID,
			SlotID:    slot.ID,
			PatientID: cand.PatientID,
			Deadline:  &offer.Deadline,
		})

		log.Printf("offer %s created slot=%s entry=%s deadline=%s",
			offer.ID, slot.ID, cand.ID, offer.Deadline.Format(time.RFC3339))
		return offer, nil
	}

	if held {
		if _, err := s.repo.ReleaseSlot(ctx, slot.ID); err != nil {
			return nil, fmt.Errorf("release unmatched hold: %w", err)
		}
	}
	return nil, nil
}

// AcceptOffer books the offered slot for the patient. Valid only while the
// offer is pending and before its deadline; a late accept expires the offer
// on the spot and reports ErrOfferExpiredState.
func (s *Service) AcceptOffer(ctx context.Context, offerID uuid.UUID) (*Offer, error) {
	offer, err := s.repo.GetOffer(ctx, offerID)
	if err != nil {
		return nil, err
	}

	var accepted *Offer
	err = s.locker.WithSlotLock(ctx, offer.SlotID, func(lockCtx context.Context) error {
		current, err := s.repo.GetOffer(lockCtx, offerID)
		if err != nil {
			return err
		}
		if current.Resolved() {
			if current.Outcome == OfferExpired {
				return ErrOfferExpiredState
			}
			return ErrOfferResolved
		}

		if !s.now().Before(current.Deadline) {
			// The patient lost the race against the clock; expire now
			// rather than waiting for the scheduler.
			if err := s.expireLocked(lockCtx, current); err != nil {
				log.Printf("expire on late accept of offer %s: %v", offerID, err)
			}
			return ErrOfferExpiredState
		}

		resolved, err := s.repo.ResolveOffer(lockCtx, offerID, OfferAccepted)
		if err != nil {
			if errors.Is(err, ErrOfferResolved) {
				return ErrOfferResolved
			}
			return fmt.Errorf("accept offer: %w", err)
		}
		s.sched.Cancel(offerID)

		if _, err := s.repo.CommitSlot(lockCtx, offer.SlotID); err != nil {
			return fmt.Errorf("commit slot: %w", err)
		}
		entry, err := s.repo.UpdateEntryStatus(lockCtx, offer.EntryID, EntryOffered, EntryBooked)
		if err != nil {
			return fmt.Errorf("mark entry booked: %w", err)
		}

		s.emit(lockCtx, Event{
			Type:      EventOfferAccepted,
			OfferID:   resolved.ID,
			EntryID:   entry.ID,
			SlotID:    offer.SlotID,
			PatientID: entry.PatientID,
		})
		s.emitBucketPositions(lockCtx, entry.ServiceID, entry.ProviderID)

		accepted = resolved
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Printf("offer %s accepted, slot %s committed", offerID, offer.SlotID)
	return accepted, nil
}

// DeclineOffer releases the held slot, puts the entry back to Waiting with
// its original seniority, and cascades the slot to the next candidate.
func (s *Service) DeclineOffer(ctx context.Context, offerID uuid.UUID) (*Offer, error) {
	offer, err := s.repo.GetOffer(ctx, offerID)
	if err != nil {
		return nil, err
	}

	var declined *Offer
	err = s.locker.WithSlotLock(ctx, offer.SlotID, func(lockCtx context.Context) error {
		current, err := s.repo.GetOffer(lockCtx, offerID)
		if err != nil {
			return err
		}
		if current.Resolved() {
			if current.Outcome == OfferExpired {
				return ErrOfferExpiredState
			}
			return ErrOfferResolved
		}

		resolved, err := s.repo.ResolveOffer(lockCtx, offerID, OfferDeclined)
		if err != nil {
			if errors.Is(err, ErrOfferResolved) {
				return ErrOfferResolved
			}
			return fmt.Errorf("decline offer: %w", err)
		}
		s.sched.Cancel(offerID)

		entry, err := s.repo.UpdateEntryStatus(lockCtx, offer.EntryID, EntryOffered, EntryWaiting)
		if err != nil {
			return fmt.Errorf("return entry to waiting: %w", err)
		}
		slot, err := s.repo.ReleaseSlot(lockCtx, offer.SlotID)
		if err != nil {
			return fmt.Errorf("release slot: %w", err)
		}

		s.emit(lockCtx, Event{
			Type:      EventOfferDeclined,
			OfferID:   resolved.ID,
			EntryID:   entry.ID,
			SlotID:    slot.ID,
			PatientID: entry.PatientID,
		})

		if _, err := s.matchSlot(lockCtx, slot); err != nil {
			return fmt.Errorf("cascade after decline: %w", err)
		}

		declined = resolved
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Printf("offer %s declined, slot %s cascaded", offerID, offer.SlotID)
	return declined, nil
}

// ExpireOffer is the scheduler-fired resolution. It is a no-op when the offer
// already reached a terminal outcome, which is what makes a near-simultaneous
// accept and timer fire safe: the check-and-set inside decides the winner.
func (s *Service) ExpireOffer(ctx context.Context, offerID uuid.UUID) error {
	offer, err := s.repo.GetOffer(ctx, offerID)
	if err != nil {
		return err
	}

	return s.locker.WithSlotLock(ctx, offer.SlotID, func(lockCtx context.Context) error {
		current, err := s.repo.GetOffer(lockCtx, offerID)
		if err != nil {
			return err
		}
		if current.Resolved() {
			return nil
		}
		if s.now().Before(current.Deadline) {
			return nil
		}
		return s.expireLocked(lockCtx, current)
	})
}

// expireLocked resolves a pending, due offer as expired and cascades the
// slot. Caller must hold the slot lock.
func (s *Service) expireLocked(ctx context.Context, offer *Offer) error {
	resolved, err := s.repo.ResolveOffer(ctx, offer.ID, OfferExpired)
	if err != nil {
		if errors.Is(err, ErrOfferResolved) {
			return nil
		}
		return fmt.Errorf("expire offer: %w", err)
	}

	entry, err := s.repo.UpdateEntryStatus(ctx, offer.EntryID, EntryOffered, EntryWaiting)
	if err != nil && !errors.Is(err, ErrEntryConflict) && !errors.Is(err, ErrEntryNotFound) {
		return fmt.Errorf("return entry to waiting: %w", err)
	}

	slot, err := s.repo.ReleaseSlot(ctx, offer.SlotID)
	if err != nil {
		return fmt.Errorf("release slot: %w", err)
	}

	ev := Event{
		Type:    EventOfferExpired,
		OfferID: resolved.ID,
		EntryID: offer.EntryID,
		SlotID:  slot.ID,
	}
	if entry != nil {
		ev.PatientID = entry.PatientID
	}
	s.emit(ctx, ev)

	log.Printf("offer %s expired, slot %s cascaded", offer.ID, slot.ID)

	if _, err := s.matchSlot(ctx, slot); err != nil {
		return fmt.Errorf("cascade after expiry: %w", err)
	}
	return nil
}

// ExpireDueOffers sweeps pending offers whose deadline has passed. Run by the
// expiry worker as a backstop for in-process timers lost to a restart; each
// expiry goes through the same state-checked path, so overlap with the live
// scheduler is harmless.
func (s *Service) ExpireDueOffers(ctx context.Context) (int, error) {
	due, err := s.repo.FindDuePendingOffers(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("find due offers: %w", err)
	}

	expired := 0
	for i := range due {
		if err := s.ExpireOffer(ctx, due[i].ID); err != nil {
			log.Printf("failed to expire offer %s: %v", due[i].ID, err)
			continue
		}
		expired++
	}
	return expired, nil
}

// RearmScheduler re-registers every pending offer's deadline with the expiry
// scheduler. Called once at startup so holds created before a restart still
// fire on time instead of waiting for the sweep worker.
func (s *Service) RearmScheduler(ctx context.Context) (int, error) {
	pending, err := s.repo.ListPendingOffers(ctx)
	if err != nil {
		return 0, fmt.Errorf("list pending offers: %w", err)
	}
	for i := range pending {
		s.sched.Schedule(pending[i].ID, pending[i].Deadline)
	}
	return len(pending), nil
}

// CancelSlot administratively withdraws a slot. A pending offer on the slot
// is superseded: the entry returns to Waiting, nothing cascades because there
// is no slot left to offer.
func (s *Service) CancelSlot(ctx context.Context, slotID uuid.UUID) error {
	return s.locker.WithSlotLock(ctx, slotID, func(lockCtx context.Context) error {
		slot, err := s.repo.GetSlot(lockCtx, slotID)
		if err != nil {
			return err
		}

		if slot.State == SlotHeld {
			offers, err := s.repo.ListOffersForSlot(lockCtx, slotID)
			if err != nil {
				return fmt.Errorf("list offers for slot: %w", err)
			}
			for i := range offers {
				if offers[i].Outcome != OfferPending {
					continue
				}
				resolved, err := s.repo.ResolveOffer(lockCtx, offers[i].ID, OfferSuperseded)
				if err != nil {
					if errors.Is(err, ErrOfferResolved) {
						continue
					}
					return fmt.Errorf("supersede offer: %w", err)
				}
				s.sched.Cancel(offers[i].ID)

				entry, err := s.repo.UpdateEntryStatus(lockCtx, offers[i].EntryID, EntryOffered, EntryWaiting)
				if err != nil && !errors.Is(err, ErrEntryConflict) {
					return fmt.Errorf("return entry to waiting: %w", err)
				}

				ev := Event{
					Type:    EventOfferSuperseded,
					OfferID: resolved.ID,
					EntryID: offers[i].EntryID,
					SlotID:  slotID,
				}
				if entry != nil {
					ev.PatientID = entry.PatientID
				}
				s.emit(lockCtx, ev)
			}
		}

		if _, err := s.repo.CancelSlot(lockCtx, slotID); err != nil {
			return err
		}

		log.Printf("slot %s cancelled (was %s)", slotID, slot.State)
		return nil
	})
}

// QueuePosition returns the entry's 1-based rank among the active entries of
// its compatibility bucket, FIFO by join time.
func (s *Service) QueuePosition(ctx context.Context, entryID uuid.UUID) (int, error) {
	entry, err := s.repo.GetEntry(ctx, entryID)
	if err != nil {
		return 0, err
	}
	if !entry.Status.Active() {
		return 0, ErrEntryNotFound
	}
	return s.positionOf(ctx, entry)
}

func (s *Service) positionOf(ctx context.Context, entry *Entry) (int, error) {
	bucket, err := s.repo.ListBucket(ctx, entry.ServiceID, entry.ProviderID)
	if err != nil {
		return 0, fmt.Errorf("list bucket: %w", err)
	}
	for i := range bucket {
		if bucket[i].ID == entry.ID {
			return i + 1, nil
		}
	}
	return 0, ErrEntryNotFound
}

func (s *Service) ListWaitlistEntries(ctx context.Context, patientID uuid.UUID) ([]Entry, error) {
	return s.repo.ListEntriesByPatient(ctx, patientID)
}

func (s *Service) ListActiveOffers(ctx context.Context, patientID uuid.UUID) ([]Offer, error) {
	return s.repo.ListActiveOffersByPatient(ctx, patientID)
}

// emitBucketPositions publishes the new rank of every active entry in a
// bucket after one of its members left (booked or removed).
func (s *Service) emitBucketPositions(ctx context.Context, serviceID uuid.UUID, providerID *uuid.UUID) {
	bucket, err := s.repo.ListBucket(ctx, serviceID, providerID)
	if err != nil {
		log.Printf("failed to list bucket for position fan-out: %v", err)
		return
	}
	for i := range bucket {
		s.emit(ctx, Event{
			Type:      EventPositionChanged,
			EntryID:   bucket[i].ID,
			PatientID: bucket[i].PatientID,
			Position:  i + 1,
		})
	}
}

// emit appends the event to the durable log and publishes it for the
// notification collaborator. Neither failure blocks the state transition.
func (s *Service) emit(ctx context.Context, ev Event) {
	ev.At = s.now()

	payload, err := json.Marshal(ev)
	if err != nil {
		log.Printf("failed to marshal event %s: %v", ev.Type, err)
		payload = nil
	}

	rec := EventRecord{
		EventType: ev.Type,
		Payload:   payload,
		CreatedAt: ev.At,
	}
	if ev.OfferID != uuid.Nil {
		id := ev.OfferID
		rec.OfferID = &id
	}
	if ev.EntryID != uuid.Nil {
		id := ev.EntryID
		rec.EntryID = &id
	}

	if err := s.repo.InsertEvent(ctx, rec); err != nil {
		log.Printf("failed to insert event log %s: %v", ev.Type, err)
	}
	if err := s.pub.Publish(ctx, ev); err != nil {
		log.Printf("failed to publish event %s: %v", ev.Type, err)
	}
}
