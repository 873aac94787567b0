package waitlist

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
)

// testClock is a manually advanced clock wired into Service.now.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, time.March, 2, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// recordingScheduler captures Schedule and Cancel calls instead of firing
// timers. Tests drive expiry explicitly through ExpireOffer.
type recordingScheduler struct {
	mu        sync.Mutex
	scheduled map[uuid.UUID]time.Time
	cancelled map[uuid.UUID]bool
}

func newRecordingScheduler() *recordingScheduler {
	return &recordingScheduler{
		scheduled: make(map[uuid.UUID]time.Time),
		cancelled: make(map[uuid.UUID]bool),
	}
}

func (s *recordingScheduler) Schedule(offerID uuid.UUID, deadline time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scheduled[offerID] = deadline
}

func (s *recordingScheduler) Cancel(offerID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelled[offerID] = true
}

func (s *recordingScheduler) scheduledDeadline(offerID uuid.UUID) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.scheduled[offerID]
	return d, ok
}

func (s *recordingScheduler) wasCancelled(offerID uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelled[offerID]
}

func newTestService(t *testing.T) (*Service, *MemoryRepository, *recordingScheduler, *testClock) {
	t.Helper()
	repo := NewMemoryRepository()
	sched := newRecordingScheduler()
	clock := newTestClock()
	svc := NewService(repo, NewLocalLocker(), sched, NopPublisher{}, Config{OfferWindow: 30 * time.Minute})
	svc.now = clock.Now
	return svc, repo, sched, clock
}

func mustJoin(t *testing.T, svc *Service, clock *testClock, serviceID uuid.UUID, providerID *uuid.UUID, avail Availability) *Entry {
	t.Helper()
	entry, _, err := svc.Join(context.Background(), JoinParams{
		PatientID:    uuid.New(),
		ServiceID:    serviceID,
		ProviderID:   providerID,
		Availability: avail,
	})
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	// Spread join times so FIFO order is unambiguous.
	clock.Advance(time.Minute)
	return entry
}

func freeSlot(t *testing.T, svc *Service, clock *testClock, serviceID, providerID uuid.UUID) (*Offer, uuid.UUID) {
	t.Helper()
	slotID := uuid.New()
	start := clock.Now().Add(24 * time.Hour)
	offer, err := svc.SlotFreed(context.Background(), SlotFreedParams{
		SlotID:     slotID,
		ServiceID:  serviceID,
		ProviderID: providerID,
		StartTime:  start,
		EndTime:    start.Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("slot freed: %v", err)
	}
	return offer, slotID
}

func countEvents(repo *MemoryRepository, eventType string) int {
	n := 0
	for _, ev := range repo.Events() {
		if ev.EventType == eventType {
			n++
		}
	}
	return n
}

func TestJoinAssignsFIFOPositions(t *testing.T) {
	svc, _, _, clock := newTestService(t)
	ctx := context.Background()
	serviceID := uuid.New()

	for want := 1; want <= 3; want++ {
		_, pos, err := svc.Join(ctx, JoinParams{PatientID: uuid.New(), ServiceID: serviceID})
		if err != nil {
			t.Fatalf("join %d: %v", want, err)
		}
		if pos != want {
			t.Errorf("join %d: position = %d, want %d", want, pos, want)
		}
		clock.Advance(time.Minute)
	}
}

func TestJoinRejectsDuplicateActiveEntry(t *testing.T) {
	svc, _, _, clock := newTestService(t)
	ctx := context.Background()
	patientID := uuid.New()
	serviceID := uuid.New()

	if _, _, err := svc.Join(ctx, JoinParams{PatientID: patientID, ServiceID: serviceID}); err != nil {
		t.Fatalf("first join: %v", err)
	}
	clock.Advance(time.Minute)

	_, _, err := svc.Join(ctx, JoinParams{PatientID: patientID, ServiceID: serviceID})
	if !errors.Is(err, ErrDuplicateEntry) {
		t.Fatalf("second join error = %v, want ErrDuplicateEntry", err)
	}

	// A different provider scope is a different bucket.
	providerID := uuid.New()
	if _, _, err := svc.Join(ctx, JoinParams{PatientID: patientID, ServiceID: serviceID, ProviderID: &providerID}); err != nil {
		t.Fatalf("provider-scoped join: %v", err)
	}
}

func TestJoinRejectsInvalidAvailability(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	_, _, err := svc.Join(context.Background(), JoinParams{
		PatientID:    uuid.New(),
		ServiceID:    uuid.New(),
		Availability: Availability{{Weekday: time.Monday, StartMinute: 600, EndMinute: 600}},
	})
	if !errors.Is(err, ErrInvalidAvailability) {
		t.Fatalf("error = %v, want ErrInvalidAvailability", err)
	}
}

func TestSlotFreedOffersFirstInLine(t *testing.T) {
	svc, repo, sched, clock := newTestService(t)
	ctx := context.Background()
	serviceID := uuid.New()
	providerID := uuid.New()

	first := mustJoin(t, svc, clock, serviceID, nil, nil)
	mustJoin(t, svc, clock, serviceID, nil, nil)

	offer, slotID := freeSlot(t, svc, clock, serviceID, providerID)
	if offer == nil {
		t.Fatal("expected an offer")
	}
	if offer.EntryID != first.ID {
		t.Errorf("offer went to %s, want first entry %s", offer.EntryID, first.ID)
	}
	if got := offer.Deadline; !got.Equal(clock.Now().Add(30 * time.Minute)) {
		t.Errorf("deadline = %s, want now+30m", got)
	}

	slot, err := repo.GetSlot(ctx, slotID)
	if err != nil {
		t.Fatalf("get slot: %v", err)
	}
	if slot.State != SlotHeld {
		t.Errorf("slot state = %s, want held", slot.State)
	}
	if slot.HeldBy == nil || *slot.HeldBy != first.ID {
		t.Errorf("slot held by %v, want %s", slot.HeldBy, first.ID)
	}

	entry, err := repo.GetEntry(ctx, first.ID)
	if err != nil {
		t.Fatalf("get entry: %v", err)
	}
	if entry.Status != EntryOffered {
		t.Errorf("entry status = %s, want offered", entry.Status)
	}

	if _, ok := sched.scheduledDeadline(offer.ID); !ok {
		t.Error("offer was not scheduled for expiry")
	}
	if countEvents(repo, EventOfferCreated) != 1 {
		t.Errorf("OFFER_CREATED events = %d, want 1", countEvents(repo, EventOfferCreated))
	}
}

func TestSlotFreedWithNoCandidatesStaysFree(t *testing.T) {
	svc, repo, _, clock := newTestService(t)

	offer, slotID := freeSlot(t, svc, clock, uuid.New(), uuid.New())
	if offer != nil {
		t.Fatalf("offer = %v, want nil", offer)
	}

	slot, err := repo.GetSlot(context.Background(), slotID)
	if err != nil {
		t.Fatalf("get slot: %v", err)
	}
	if slot.State != SlotFree {
		t.Errorf("slot state = %s, want free", slot.State)
	}
}

func TestSlotFreedRespectsAvailability(t *testing.T) {
	svc, _, _, clock := newTestService(t)
	serviceID := uuid.New()

	// Slots created by freeSlot start 24h from now; rule out that weekday.
	slotDay := clock.Now().Add(24 * time.Hour).Weekday()
	offDay := Availability{{Weekday: (slotDay + 1) % 7, StartMinute: 0, EndMinute: 24 * 60}}

	mustJoin(t, svc, clock, serviceID, nil, offDay)
	second := mustJoin(t, svc, clock, serviceID, nil, nil)

	offer, _ := freeSlot(t, svc, clock, serviceID, uuid.New())
	if offer == nil {
		t.Fatal("expected an offer")
	}
	if offer.EntryID != second.ID {
		t.Errorf("offer went to %s, want availability-compatible entry %s", offer.EntryID, second.ID)
	}
}

func TestSlotFreedRespectsProviderPreference(t *testing.T) {
	svc, _, _, clock := newTestService(t)
	serviceID := uuid.New()
	wantedProvider := uuid.New()
	otherProvider := uuid.New()

	mustJoin(t, svc, clock, serviceID, &wantedProvider, nil)
	anyProvider := mustJoin(t, svc, clock, serviceID, nil, nil)

	offer, _ := freeSlot(t, svc, clock, serviceID, otherProvider)
	if offer == nil {
		t.Fatal("expected an offer")
	}
	if offer.EntryID != anyProvider.ID {
		t.Errorf("offer went to %s, want provider-agnostic entry %s", offer.EntryID, anyProvider.ID)
	}
}

func TestSlotFreedInvalidWindow(t *testing.T) {
	svc, _, _, clock := newTestService(t)

	start := clock.Now().Add(24 * time.Hour)
	_, err := svc.SlotFreed(context.Background(), SlotFreedParams{
		SlotID:     uuid.New(),
		ServiceID:  uuid.New(),
		ProviderID: uuid.New(),
		StartTime:  start,
		EndTime:    start,
	})
	if !errors.Is(err, ErrInvalidSlotWindow) {
		t.Fatalf("error = %v, want ErrInvalidSlotWindow", err)
	}
}

// TestOfferCascade walks the full chain: the slot is offered to the first
// entry, declined, re-offered to the second, expired, re-offered to the
// third, and accepted.
func TestOfferCascade(t *testing.T) {
	svc, repo, sched, clock := newTestService(t)
	ctx := context.Background()
	serviceID := uuid.New()

	a := mustJoin(t, svc, clock, serviceID, nil, nil)
	b := mustJoin(t, svc, clock, serviceID, nil, nil)
	c := mustJoin(t, svc, clock, serviceID, nil, nil)

	offerA, slotID := freeSlot(t, svc, clock, serviceID, uuid.New())
	if offerA == nil || offerA.EntryID != a.ID {
		t.Fatalf("first offer = %+v, want entry %s", offerA, a.ID)
	}

	// A declines; the slot must cascade to B in the same call.
	clock.Advance(5 * time.Minute)
	if _, err := svc.DeclineOffer(ctx, offerA.ID); err != nil {
		t.Fatalf("decline: %v", err)
	}
	if !sched.wasCancelled(offerA.ID) {
		t.Error("declined offer timer was not cancelled")
	}

	offerB, err := repo.GetPendingOfferForEntry(ctx, b.ID)
	if err != nil {
		t.Fatalf("no cascaded offer for B: %v", err)
	}
	if offerB.SlotID != slotID {
		t.Errorf("B's offer is for slot %s, want %s", offerB.SlotID, slotID)
	}

	// B sits on the offer until the window lapses.
	clock.Advance(31 * time.Minute)
	if err := svc.ExpireOffer(ctx, offerB.ID); err != nil {
		t.Fatalf("expire: %v", err)
	}

	gotB, _ := repo.GetOffer(ctx, offerB.ID)
	if gotB.Outcome != OfferExpired {
		t.Errorf("B's offer outcome = %s, want expired", gotB.Outcome)
	}
	entryB, _ := repo.GetEntry(ctx, b.ID)
	if entryB.Status != EntryWaiting {
		t.Errorf("B's status = %s, want waiting", entryB.Status)
	}

	offerC, err := repo.GetPendingOfferForEntry(ctx, c.ID)
	if err != nil {
		t.Fatalf("no cascaded offer for C: %v", err)
	}

	// C accepts within the window.
	clock.Advance(10 * time.Minute)
	if _, err := svc.AcceptOffer(ctx, offerC.ID); err != nil {
		t.Fatalf("accept: %v", err)
	}

	slot, _ := repo.GetSlot(ctx, slotID)
	if slot.State != SlotCommitted {
		t.Errorf("slot state = %s, want committed", slot.State)
	}
	entryC, _ := repo.GetEntry(ctx, c.ID)
	if entryC.Status != EntryBooked {
		t.Errorf("C's status = %s, want booked", entryC.Status)
	}

	// A and B keep their seniority in the remaining queue.
	if pos, err := svc.QueuePosition(ctx, a.ID); err != nil || pos != 1 {
		t.Errorf("A's position = %d (%v), want 1", pos, err)
	}
	if pos, err := svc.QueuePosition(ctx, b.ID); err != nil || pos != 2 {
		t.Errorf("B's position = %d (%v), want 2", pos, err)
	}

	for eventType, want := range map[string]int{
		EventOfferCreated:  3,
		EventOfferDeclined: 1,
		EventOfferExpired:  1,
		EventOfferAccepted: 1,
	} {
		if got := countEvents(repo, eventType); got != want {
			t.Errorf("%s events = %d, want %d", eventType, got, want)
		}
	}
}

func TestDeclinedEntrySkippedOnSameSlotOnly(t *testing.T) {
	svc, repo, _, clock := newTestService(t)
	ctx := context.Background()
	serviceID := uuid.New()
	providerID := uuid.New()

	a := mustJoin(t, svc, clock, serviceID, nil, nil)
	b := mustJoin(t, svc, clock, serviceID, nil, nil)

	offerA, slot1 := freeSlot(t, svc, clock, serviceID, providerID)
	if _, err := svc.DeclineOffer(ctx, offerA.ID); err != nil {
		t.Fatalf("decline: %v", err)
	}

	// Slot 1 cascaded to B, not back to A.
	offerB, err := repo.GetPendingOfferForEntry(ctx, b.ID)
	if err != nil {
		t.Fatalf("no cascaded offer for B: %v", err)
	}
	if offerB.SlotID != slot1 {
		t.Errorf("B's offer slot = %s, want %s", offerB.SlotID, slot1)
	}

	// A still leads the line for a different slot.
	offer2, _ := freeSlot(t, svc, clock, serviceID, providerID)
	if offer2 == nil || offer2.EntryID != a.ID {
		t.Fatalf("second slot offer = %+v, want entry %s", offer2, a.ID)
	}
}

func TestAcceptAfterDeadlineExpiresOffer(t *testing.T) {
	svc, repo, _, clock := newTestService(t)
	ctx := context.Background()
	serviceID := uuid.New()

	a := mustJoin(t, svc, clock, serviceID, nil, nil)
	b := mustJoin(t, svc, clock, serviceID, nil, nil)

	offer, _ := freeSlot(t, svc, clock, serviceID, uuid.New())
	clock.Advance(31 * time.Minute)

	_, err := svc.AcceptOffer(ctx, offer.ID)
	if !errors.Is(err, ErrOfferExpiredState) {
		t.Fatalf("late accept error = %v, want ErrOfferExpiredState", err)
	}

	got, _ := repo.GetOffer(ctx, offer.ID)
	if got.Outcome != OfferExpired {
		t.Errorf("offer outcome = %s, want expired", got.Outcome)
	}
	entryA, _ := repo.GetEntry(ctx, a.ID)
	if entryA.Status != EntryWaiting {
		t.Errorf("entry status = %s, want waiting", entryA.Status)
	}

	// The inline expiry cascades just like a timer-fired one.
	if _, err := repo.GetPendingOfferForEntry(ctx, b.ID); err != nil {
		t.Errorf("no cascaded offer for next entry: %v", err)
	}
}

func TestAcceptResolvedOffer(t *testing.T) {
	svc, _, _, clock := newTestService(t)
	ctx := context.Background()
	serviceID := uuid.New()

	mustJoin(t, svc, clock, serviceID, nil, nil)
	offer, _ := freeSlot(t, svc, clock, serviceID, uuid.New())

	if _, err := svc.DeclineOffer(ctx, offer.ID); err != nil {
		t.Fatalf("decline: %v", err)
	}
	if _, err := svc.AcceptOffer(ctx, offer.ID); !errors.Is(err, ErrOfferResolved) {
		t.Fatalf("accept after decline error = %v, want ErrOfferResolved", err)
	}
	if _, err := svc.DeclineOffer(ctx, offer.ID); !errors.Is(err, ErrOfferResolved) {
		t.Fatalf("second decline error = %v, want ErrOfferResolved", err)
	}
}

func TestExpireOfferIsExactlyOnce(t *testing.T) {
	svc, repo, _, clock := newTestService(t)
	ctx := context.Background()
	serviceID := uuid.New()

	mustJoin(t, svc, clock, serviceID, nil, nil)
	offer, _ := freeSlot(t, svc, clock, serviceID, uuid.New())
	clock.Advance(31 * time.Minute)

	if err := svc.ExpireOffer(ctx, offer.ID); err != nil {
		t.Fatalf("first expire: %v", err)
	}
	if err := svc.ExpireOffer(ctx, offer.ID); err != nil {
		t.Fatalf("second expire should no-op, got %v", err)
	}
	if got := countEvents(repo, EventOfferExpired); got != 1 {
		t.Errorf("OFFER_EXPIRED events = %d, want 1", got)
	}
}

func TestExpireOfferBeforeDeadlineIsNoop(t *testing.T) {
	svc, repo, _, clock := newTestService(t)
	ctx := context.Background()
	serviceID := uuid.New()

	mustJoin(t, svc, clock, serviceID, nil, nil)
	offer, _ := freeSlot(t, svc, clock, serviceID, uuid.New())

	if err := svc.ExpireOffer(ctx, offer.ID); err != nil {
		t.Fatalf("early expire: %v", err)
	}
	got, _ := repo.GetOffer(ctx, offer.ID)
	if got.Outcome != OfferPending {
		t.Errorf("offer outcome = %s, want still pending", got.Outcome)
	}
}

func TestLeaveWhileWaiting(t *testing.T) {
	svc, repo, _, clock := newTestService(t)
	ctx := context.Background()
	serviceID := uuid.New()

	a := mustJoin(t, svc, clock, serviceID, nil, nil)
	b := mustJoin(t, svc, clock, serviceID, nil, nil)

	if err := svc.Leave(ctx, a.ID); err != nil {
		t.Fatalf("leave: %v", err)
	}

	entry, _ := repo.GetEntry(ctx, a.ID)
	if entry.Status != EntryRemoved {
		t.Errorf("status = %s, want removed", entry.Status)
	}
	if pos, err := svc.QueuePosition(ctx, b.ID); err != nil || pos != 1 {
		t.Errorf("B's position = %d (%v), want 1 after A left", pos, err)
	}
	if err := svc.Leave(ctx, a.ID); !errors.Is(err, ErrEntryNotFound) {
		t.Errorf("second leave error = %v, want ErrEntryNotFound", err)
	}
}

func TestLeaveWhileOfferedCascadesSlot(t *testing.T) {
	svc, repo, _, clock := newTestService(t)
	ctx := context.Background()
	serviceID := uuid.New()

	a := mustJoin(t, svc, clock, serviceID, nil, nil)
	b := mustJoin(t, svc, clock, serviceID, nil, nil)

	offer, slotID := freeSlot(t, svc, clock, serviceID, uuid.New())
	if offer.EntryID != a.ID {
		t.Fatalf("offer went to %s, want %s", offer.EntryID, a.ID)
	}

	if err := svc.Leave(ctx, a.ID); err != nil {
		t.Fatalf("leave while offered: %v", err)
	}

	gotOffer, _ := repo.GetOffer(ctx, offer.ID)
	if gotOffer.Outcome != OfferDeclined {
		t.Errorf("abandoned offer outcome = %s, want declined", gotOffer.Outcome)
	}
	entry, _ := repo.GetEntry(ctx, a.ID)
	if entry.Status != EntryRemoved {
		t.Errorf("status = %s, want removed", entry.Status)
	}

	offerB, err := repo.GetPendingOfferForEntry(ctx, b.ID)
	if err != nil {
		t.Fatalf("no cascaded offer for B: %v", err)
	}
	if offerB.SlotID != slotID {
		t.Errorf("B's offer slot = %s, want %s", offerB.SlotID, slotID)
	}
}

func TestCancelSlotSupersedesPendingOffer(t *testing.T) {
	svc, repo, sched, clock := newTestService(t)
	ctx := context.Background()
	serviceID := uuid.New()

	a := mustJoin(t, svc, clock, serviceID, nil, nil)
	b := mustJoin(t, svc, clock, serviceID, nil, nil)

	offer, slotID := freeSlot(t, svc, clock, serviceID, uuid.New())

	if err := svc.CancelSlot(ctx, slotID); err != nil {
		t.Fatalf("cancel slot: %v", err)
	}

	gotOffer, _ := repo.GetOffer(ctx, offer.ID)
	if gotOffer.Outcome != OfferSuperseded {
		t.Errorf("offer outcome = %s, want superseded", gotOffer.Outcome)
	}
	if !sched.wasCancelled(offer.ID) {
		t.Error("superseded offer timer was not cancelled")
	}
	entry, _ := repo.GetEntry(ctx, a.ID)
	if entry.Status != EntryWaiting {
		t.Errorf("entry status = %s, want waiting", entry.Status)
	}
	slot, _ := repo.GetSlot(ctx, slotID)
	if slot.State != SlotCancelled {
		t.Errorf("slot state = %s, want cancelled", slot.State)
	}

	// No slot left means no cascade.
	if _, err := repo.GetPendingOfferForEntry(ctx, b.ID); !errors.Is(err, ErrOfferNotFound) {
		t.Errorf("B unexpectedly holds an offer after slot cancellation")
	}
}

func TestExpireDueOffersSweep(t *testing.T) {
	svc, _, _, clock := newTestService(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		serviceID := uuid.New()
		mustJoin(t, svc, clock, serviceID, nil, nil)
		if offer, _ := freeSlot(t, svc, clock, serviceID, uuid.New()); offer == nil {
			t.Fatal("expected an offer")
		}
	}

	clock.Advance(31 * time.Minute)

	expired, err := svc.ExpireDueOffers(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if expired != 2 {
		t.Errorf("sweep expired %d offers, want 2", expired)
	}
}

func TestRearmScheduler(t *testing.T) {
	svc, _, _, clock := newTestService(t)
	ctx := context.Background()
	serviceID := uuid.New()

	mustJoin(t, svc, clock, serviceID, nil, nil)
	offer, _ := freeSlot(t, svc, clock, serviceID, uuid.New())

	// A fresh scheduler stands in for a restarted process.
	replacement := newRecordingScheduler()
	svc.sched = replacement

	n, err := svc.RearmScheduler(ctx)
	if err != nil {
		t.Fatalf("rearm: %v", err)
	}
	if n != 1 {
		t.Errorf("rearmed %d offers, want 1", n)
	}
	if d, ok := replacement.scheduledDeadline(offer.ID); !ok || !d.Equal(offer.Deadline) {
		t.Errorf("rearmed deadline = %s (%v), want %s", d, ok, offer.Deadline)
	}
}

func TestQueuePositionAfterBooking(t *testing.T) {
	svc, _, _, clock := newTestService(t)
	ctx := context.Background()
	serviceID := uuid.New()

	a := mustJoin(t, svc, clock, serviceID, nil, nil)
	b := mustJoin(t, svc, clock, serviceID, nil, nil)

	offer, _ := freeSlot(t, svc, clock, serviceID, uuid.New())
	if _, err := svc.AcceptOffer(ctx, offer.ID); err != nil {
		t.Fatalf("accept: %v", err)
	}

	if _, err := svc.QueuePosition(ctx, a.ID); !errors.Is(err, ErrEntryNotFound) {
		t.Errorf("booked entry position error = %v, want ErrEntryNotFound", err)
	}
	if pos, err := svc.QueuePosition(ctx, b.ID); err != nil || pos != 1 {
		t.Errorf("B's position = %d (%v), want 1", pos, err)
	}
}

func TestOfferedEntryKeepsQueuePosition(t *testing.T) {
	svc, _, _, clock := newTestService(t)
	ctx := context.Background()
	serviceID := uuid.New()

	a := mustJoin(t, svc, clock, serviceID, nil, nil)
	b := mustJoin(t, svc, clock, serviceID, nil, nil)

	if _, slotID := freeSlot(t, svc, clock, serviceID, uuid.New()); slotID == uuid.Nil {
		t.Fatal("slot id")
	}

	// Holding an offer does not change either entry's rank.
	if pos, _ := svc.QueuePosition(ctx, a.ID); pos != 1 {
		t.Errorf("A's position = %d, want 1 while offered", pos)
	}
	if pos, _ := svc.QueuePosition(ctx, b.ID); pos != 2 {
		t.Errorf("B's position = %d, want 2", pos)
	}
}
