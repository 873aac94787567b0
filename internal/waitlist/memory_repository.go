package waitlist

import (
	"bytes"
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepository is a mutex-guarded in-memory Repository. It backs the
// STORE=memory dev mode and the test suite; production deployments use
// PgRepository.
type MemoryRepository struct {
	mu      sync.Mutex
	entries map[uuid.UUID]*Entry
	slots   map[uuid.UUID]*Slot
	offers  map[uuid.UUID]*Offer
	events  []EventRecord
	nextEv  int64
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		entries: make(map[uuid.UUID]*Entry),
		slots:   make(map[uuid.UUID]*Slot),
		offers:  make(map[uuid.UUID]*Offer),
	}
}

func sameScope(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func fifoLess(a, b *Entry) bool {
	if !a.JoinedAt.Equal(b.JoinedAt) {
		return a.JoinedAt.Before(b.JoinedAt)
	}
	return bytes.Compare(a.ID[:], b.ID[:]) < 0
}

func (r *MemoryRepository) CreateEntry(_ context.Context, e *Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.entries {
		if existing.Status.Active() &&
			existing.PatientID == e.PatientID &&
			existing.ServiceID == e.ServiceID &&
			sameScope(existing.ProviderID, e.ProviderID) {
			return ErrDuplicateEntry
		}
	}

	cp := *e
	r.entries[e.ID] = &cp
	return nil
}

func (r *MemoryRepository) GetEntry(_ context.Context, id uuid.UUID) (*Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok {
		return nil, ErrEntryNotFound
	}
	cp := *e
	return &cp, nil
}

func (r *MemoryRepository) FindActiveEntry(_ context.Context, patientID, serviceID uuid.UUID, providerID *uuid.UUID) (*Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, e := range r.entries {
		if e.Status.Active() &&
			e.PatientID == patientID &&
			e.ServiceID == serviceID &&
			sameScope(e.ProviderID, providerID) {
			cp := *e
			return &cp, nil
		}
	}
	return nil, ErrEntryNotFound
}

func (r *MemoryRepository) UpdateEntryStatus(_ context.Context, id uuid.UUID, from, to EntryStatus) (*Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok {
		return nil, ErrEntryNotFound
	}
	if e.Status != from {
		return nil, ErrEntryConflict
	}
	e.Status = to
	e.UpdatedAt = time.Now()
	cp := *e
	return &cp, nil
}

func (r *MemoryRepository) ListEntriesByPatient(_ context.Context, patientID uuid.UUID) ([]Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*Entry
	for _, e := range r.entries {
		if e.PatientID == patientID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return fifoLess(out[i], out[j]) })

	result := make([]Entry, len(out))
	for i, e := range out {
		result[i] = *e
	}
	return result, nil
}

func (r *MemoryRepository) ListCandidates(_ context.Context, slot *Slot) ([]Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*Entry
	for _, e := range r.entries {
		if e.Status != EntryWaiting {
			continue
		}
		if e.ServiceID != slot.ServiceID {
			continue
		}
		if e.ProviderID != nil && *e.ProviderID != slot.ProviderID {
			continue
		}
		if !e.Availability.Covers(slot.StartTime, slot.EndTime) {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return fifoLess(out[i], out[j]) })

	result := make([]Entry, len(out))
	for i, e := range out {
		result[i] = *e
	}
	return result, nil
}

func (r *MemoryRepository) ListBucket(_ context.Context, serviceID uuid.UUID, providerID *uuid.UUID) ([]Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*Entry
	for _, e := range r.entries {
		if e.Status.Active() && e.ServiceID == serviceID && sameScope(e.ProviderID, providerID) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return fifoLess(out[i], out[j]) })

	result := make([]Entry, len(out))
	for i, e := range out {
		result[i] = *e
	}
	return result, nil
}

func (r *MemoryRepository) UpsertFreeSlot(_ context.Context, s *Slot) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.slots[s.ID]; ok {
		if existing.State == SlotHeld {
			return ErrSlotHeld
		}
		existing.ServiceID = s.ServiceID
		existing.ProviderID = s.ProviderID
		existing.StartTime = s.StartTime
		existing.EndTime = s.EndTime
		existing.State = SlotFree
		existing.HeldBy = nil
		existing.HoldDeadline = nil
		existing.UpdatedAt = time.Now()
		return nil
	}

	cp := *s
	cp.State = SlotFree
	r.slots[s.ID] = &cp
	return nil
}

func (r *MemoryRepository) GetSlot(_ context.Context, id uuid.UUID) (*Slot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.slots[id]
	if !ok {
		return nil, ErrSlotNotFound
	}
	cp := *s
	return &cp, nil
}

func (r *MemoryRepository) TryHoldSlot(_ context.Context, slotID, entryID uuid.UUID, deadline time.Time) (*Slot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.slots[slotID]
	if !ok {
		return nil, ErrSlotNotFound
	}
	if s.State != SlotFree {
		return nil, ErrSlotConflict
	}
	holder := entryID
	dl := deadline
	s.State = SlotHeld
	s.HeldBy = &holder
	s.HoldDeadline = &dl
	s.UpdatedAt = time.Now()
	cp := *s
	return &cp, nil
}

func (r *MemoryRepository) ReleaseSlot(_ context.Context, slotID uuid.UUID) (*Slot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.slots[slotID]
	if !ok {
		return nil, ErrSlotNotFound
	}
	if s.State != SlotHeld {
		return nil, ErrSlotConflict
	}
	s.State = SlotFree
	s.HeldBy = nil
	s.HoldDeadline = nil
	s.UpdatedAt = time.Now()
	cp := *s
	return &cp, nil
}

func (r *MemoryRepository) CommitSlot(_ context.Context, slotID uuid.UUID) (*Slot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.slots[slotID]
	if !ok {
		return nil, ErrSlotNotFound
	}
	if s.State != SlotHeld {
		return nil, ErrSlotConflict
	}
	s.State = SlotCommitted
	s.HeldBy = nil
	s.HoldDeadline = nil
	s.UpdatedAt = time.Now()
	cp := *s
	return &cp, nil
}

func (r *MemoryRepository) CancelSlot(_ context.Context, slotID uuid.UUID) (*Slot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.slots[slotID]
	if !ok {
		return nil, ErrSlotNotFound
	}
	if s.State == SlotCommitted || s.State == SlotCancelled {
		return nil, ErrSlotConflict
	}
	s.State = SlotCancelled
	s.HeldBy = nil
	s.HoldDeadline = nil
	s.UpdatedAt = time.Now()
	cp := *s
	return &cp, nil
}

func (r *MemoryRepository) CreateOffer(_ context.Context, o *Offer) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cp := *o
	r.offers[o.ID] = &cp
	return nil
}

func (r *MemoryRepository) GetOffer(_ context.Context, id uuid.UUID) (*Offer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.offers[id]
	if !ok {
		return nil, ErrOfferNotFound
	}
	cp := *o
	return &cp, nil
}

func (r *MemoryRepository) GetPendingOfferForEntry(_ context.Context, entryID uuid.UUID) (*Offer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, o := range r.offers {
		if o.EntryID == entryID && o.Outcome == OfferPending {
			cp := *o
			return &cp, nil
		}
	}
	return nil, ErrOfferNotFound
}

func (r *MemoryRepository) ResolveOffer(_ context.Context, id uuid.UUID, to OfferOutcome) (*Offer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.offers[id]
	if !ok {
		return nil, ErrOfferNotFound
	}
	if o.Outcome != OfferPending {
		return nil, ErrOfferResolved
	}
	o.Outcome = to
	cp := *o
	return &cp, nil
}

func (r *MemoryRepository) ListOffersForSlot(_ context.Context, slotID uuid.UUID) ([]Offer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Offer
	for _, o := range r.offers {
		if o.SlotID == slotID {
			out = append(out, *o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *MemoryRepository) ListPendingOffers(_ context.Context) ([]Offer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Offer
	for _, o := range r.offers {
		if o.Outcome == OfferPending {
			out = append(out, *o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Deadline.Before(out[j].Deadline) })
	return out, nil
}

func (r *MemoryRepository) FindDuePendingOffers(_ context.Context, now time.Time) ([]Offer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Offer
	for _, o := range r.offers {
		if o.Outcome == OfferPending && !now.Before(o.Deadline) {
			out = append(out, *o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Deadline.Before(out[j].Deadline) })
	return out, nil
}

func (r *MemoryRepository) ListActiveOffersByPatient(_ context.Context, patientID uuid.UUID) ([]Offer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Offer
	for _, o := range r.offers {
		if o.Outcome != OfferPending {
			continue
		}
		e, ok := r.entries[o.EntryID]
		if ok && e.PatientID == patientID {
			out = append(out, *o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *MemoryRepository) InsertEvent(_ context.Context, ev EventRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextEv++
	ev.ID = r.nextEv
	r.events = append(r.events, ev)
	return nil
}

// Events returns a snapshot of the event log, oldest first.
func (r *MemoryRepository) Events() []EventRecord {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]EventRecord, len(r.events))
	copy(out, r.events)
	return out
}
