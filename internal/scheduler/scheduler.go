// Package scheduler fires exactly one expiry callback per scheduled offer at
// its deadline. One loop over a min-heap serves every outstanding offer; no
// per-offer timers.
package scheduler

import (
	"container/heap"
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

// FireFunc resolves a due offer. It must tolerate being called for offers
// that were resolved in the meantime; the scheduler only promises that the
// offer's deadline has passed.
type FireFunc func(ctx context.Context, offerID uuid.UUID) error

type item struct {
	id uuid.UUID
	at time.Time
}

type deadlineHeap []item

func (h deadlineHeap) Len() int            { return len(h) }
func (h deadlineHeap) Less(i, j int) bool  { return h[i].at.Before(h[j].at) }
func (h deadlineHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *deadlineHeap) Push(x interface{}) { *h = append(*h, x.(item)) }
func (h *deadlineHeap) Pop() interface{} {
	old := *h
	n := len(old)
	it := old[n-1]
	*h = old[:n-1]
	return it
}

// Scheduler wakes at the earliest outstanding deadline and hands due offer
// ids over a channel to a single dispatch goroutine, so every expiry the
// scheduler initiates flows through one logical sequence.
//
// Cancel is lazy: the heap entry stays behind and is discarded when it
// surfaces. Correctness does not depend on cancellation winning any race;
// the lifecycle manager's state check does.
type Scheduler struct {
	mu      sync.Mutex
	heap    deadlineHeap
	pending map[uuid.UUID]time.Time
	wake    chan struct{}
	now     func() time.Time
}

func New() *Scheduler {
	return &Scheduler{
		pending: make(map[uuid.UUID]time.Time),
		wake:    make(chan struct{}, 1),
		now:     time.Now,
	}
}

// Schedule registers a deadline for an offer. Scheduling the same offer again
// replaces its previous deadline.
func (s *Scheduler) Schedule(offerID uuid.UUID, deadline time.Time) {
	s.mu.Lock()
	s.pending[offerID] = deadline
	heap.Push(&s.heap, item{id: offerID, at: deadline})
	s.mu.Unlock()

	s.poke()
}

// Cancel forgets an offer. A concurrent fire that already left the heap is
// handled by the lifecycle manager's no-op on resolved offers.
func (s *Scheduler) Cancel(offerID uuid.UUID) {
	s.mu.Lock()
	delete(s.pending, offerID)
	s.mu.Unlock()
}

func (s *Scheduler) poke() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Run blocks until ctx is done, firing due offers as their deadlines pass.
func (s *Scheduler) Run(ctx context.Context, fire FireFunc) {
	due := make(chan uuid.UUID, 64)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for id := range due {
			if err := fire(ctx, id); err != nil {
				log.Printf("expiry fire for offer %s: %v", id, err)
			}
		}
	}()

	timer := time.NewTimer(time.Hour)
	if !timer.Stop() {
		<-timer.C
	}

	for {
		next, ok := s.nextDeadline()

		if ok {
			delay := time.Until(next)
			if delay <= 0 {
				for _, id := range s.popDue() {
					select {
					case due <- id:
					case <-ctx.Done():
						close(due)
						wg.Wait()
						return
					}
				}
				continue
			}
			timer.Reset(delay)
		}

		select {
		case <-ctx.Done():
			if ok && !timer.Stop() {
				<-timer.C
			}
			close(due)
			wg.Wait()
			return
		case <-s.wake:
			if ok && !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
		case <-timer.C:
		}
	}
}

// nextDeadline reports the earliest live deadline, discarding heap entries
// whose offer was cancelled or rescheduled.
func (s *Scheduler) nextDeadline() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for s.heap.Len() > 0 {
		top := s.heap[0]
		at, ok := s.pending[top.id]
		if !ok || !at.Equal(top.at) {
			heap.Pop(&s.heap)
			continue
		}
		return top.at, true
	}
	return time.Time{}, false
}

// popDue removes and returns every live entry whose deadline has passed.
func (s *Scheduler) popDue() []uuid.UUID {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	var ids []uuid.UUID
	for s.heap.Len() > 0 && !s.heap[0].at.After(now) {
		it := heap.Pop(&s.heap).(item)
		at, ok := s.pending[it.id]
		if !ok || !at.Equal(it.at) {
			continue
		}
		delete(s.pending, it.id)
		ids = append(ids, it.id)
	}
	return ids
}
