package waitlist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// Helpers

func scanEntry(row pgx.Row) (*Entry, error) {
	var e Entry
	var providerID *uuid.UUID
	var availability []byte

	err := row.Scan(
		&e.ID,
		&e.PatientID,
		&e.ServiceID,
		&providerID,
		&availability,
		&e.Status,
		&e.JoinedAt,
		&e.CreatedAt,
		&e.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrEntryNotFound
		}
		return nil, err
	}

	e.ProviderID = providerID
	if len(availability) > 0 {
		if err := json.Unmarshal(availability, &e.Availability); err != nil {
			return nil, fmt.Errorf("decode availability for entry %s: %w", e.ID, err)
		}
	}
	return &e, nil
}

func scanSlot(row pgx.Row) (*Slot, error) {
	var s Slot
	var heldBy *uuid.UUID
	var holdDeadline *time.Time

	err := row.Scan(
		&s.ID,
		&s.ServiceID,
		&s.ProviderID,
		&s.StartTime,
		&s.EndTime,
		&s.State,
		&heldBy,
		&holdDeadline,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSlotNotFound
		}
		return nil, err
	}

	s.HeldBy = heldBy
	s.HoldDeadline = holdDeadline
	return &s, nil
}

func scanOffer(row pgx.Row) (*Offer, error) {
	var o Offer

	err := row.Scan(
		&o.ID,
		&o.SlotID,
		&o.EntryID,
		&o.Outcome,
		&o.CreatedAt,
		&o.Deadline,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOfferNotFound
		}
		return nil, err
	}

	return &o, nil
}

const entryColumns = `id, patient_id, service_id, provider_id, availability, status, joined_at, created_at, updated_at`
const slotColumns = `id, service_id, provider_id, start_time, end_time, state, held_by, hold_deadline, created_at, updated_at`
const offerColumns = `id, slot_id, entry_id, outcome, created_at, deadline`

// Waitlist store

func (r *PgRepository) CreateEntry(ctx context.Context, e *Entry) error {
	availability, err := json.Marshal(e.Availability)
	if err != nil {
		return fmt.Errorf("encode availability: %w", err)
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO waitlist_entries (id, patient_id, service_id, provider_id, availability, status, joined_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now(), now())
	`, e.ID, e.PatientID, e.ServiceID, e.ProviderID, availability, e.Status, e.JoinedAt)
	if err != nil {
		// The partial unique index on active entries enforces the
		// one-active-entry invariant at the storage layer too.
		if isUniqueViolation(err) {
			return ErrDuplicateEntry
		}
		return fmt.Errorf("insert waitlist entry: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr interface{ SQLState() string }
	return errors.As(err, &pgErr) && pgErr.SQLState() == "23505"
}

func (r *PgRepository) GetEntry(ctx context.Context, id uuid.UUID) (*Entry, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+entryColumns+`
		FROM waitlist_entries
		WHERE id = $1
	`, id)
	return scanEntry(row)
}

func (r *PgRepository) FindActiveEntry(ctx context.Context, patientID, serviceID uuid.UUID, providerID *uuid.UUID) (*Entry, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+entryColumns+`
		FROM waitlist_entries
		WHERE patient_id = $1
		  AND service_id = $2
		  AND provider_id IS NOT DISTINCT FROM $3
		  AND status IN ('waiting', 'offered')
	`, patientID, serviceID, providerID)
	return scanEntry(row)
}

func (r *PgRepository) UpdateEntryStatus(ctx context.Context, id uuid.UUID, from, to EntryStatus) (*Entry, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE waitlist_entries
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING `+entryColumns+`
	`, id, to, from)

	e, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, ErrEntryNotFound) {
			// Distinguish a missing entry from a lost status race.
			if _, getErr := r.GetEntry(ctx, id); getErr == nil {
				return nil, ErrEntryConflict
			}
			return nil, ErrEntryNotFound
		}
		return nil, err
	}
	return e, nil
}

func (r *PgRepository) ListEntriesByPatient(ctx context.Context, patientID uuid.UUID) ([]Entry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+entryColumns+`
		FROM waitlist_entries
		WHERE patient_id = $1
		ORDER BY joined_at, id
	`, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectEntries(rows)
}

func (r *PgRepository) ListCandidates(ctx context.Context, slot *Slot) ([]Entry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+entryColumns+`
		FROM waitlist_entries
		WHERE status = 'waiting'
		  AND service_id = $1
		  AND (provider_id IS NULL OR provider_id = $2)
		ORDER BY joined_at, id
	`, slot.ServiceID, slot.ProviderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	all, err := collectEntries(rows)
	if err != nil {
		return nil, err
	}

	// Availability rules live in jsonb; the window check happens here
	// rather than in SQL.
	result := all[:0]
	for i := range all {
		if all[i].Availability.Covers(slot.StartTime, slot.EndTime) {
			result = append(result, all[i])
		}
	}
	return result, nil
}

func (r *PgRepository) ListBucket(ctx context.Context, serviceID uuid.UUID, providerID *uuid.UUID) ([]Entry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+entryColumns+`
		FROM waitlist_entries
		WHERE service_id = $1
		  AND provider_id IS NOT DISTINCT FROM $2
		  AND status IN ('waiting', 'offered')
		ORDER BY joined_at, id
	`, serviceID, providerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectEntries(rows)
}

func collectEntries(rows pgx.Rows) ([]Entry, error) {
	var result []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Slot registry

func (r *PgRepository) UpsertFreeSlot(ctx context.Context, s *Slot) error {
	existing, err := r.GetSlot(ctx, s.ID)
	if err != nil && !errors.Is(err, ErrSlotNotFound) {
		return err
	}
	if existing != nil && existing.State == SlotHeld {
		return ErrSlotHeld
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO slots (id, service_id, provider_id, start_time, end_time, state, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, 'free', now(), now())
		ON CONFLICT (id) DO UPDATE
		SET service_id = EXCLUDED.service_id,
		    provider_id = EXCLUDED.provider_id,
		    start_time = EXCLUDED.start_time,
		    end_time = EXCLUDED.end_time,
		    state = 'free',
		    held_by = NULL,
		    hold_deadline = NULL,
		    updated_at = now()
		WHERE slots.state <> 'held'
	`, s.ID, s.ServiceID, s.ProviderID, s.StartTime, s.EndTime)
	if err != nil {
		return fmt.Errorf("upsert slot: %w", err)
	}
	return nil
}

func (r *PgRepository) GetSlot(ctx context.Context, id uuid.UUID) (*Slot, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+slotColumns+`
		FROM slots
		WHERE id = $1
	`, id)
	return scanSlot(row)
}

// TryHoldSlot is the atomic free-to-held transition: exactly one concurrent
// caller can win the conditional update, every other one gets ErrSlotConflict.
func (r *PgRepository) TryHoldSlot(ctx context.Context, slotID, entryID uuid.UUID, deadline time.Time) (*Slot, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE slots
		SET state = 'held',
		    held_by = $2,
		    hold_deadline = $3,
		    updated_at = now()
		WHERE id = $1
		  AND state = 'free'
		RETURNING `+slotColumns+`
	`, slotID, entryID, deadline)

	return r.scanSlotTransition(ctx, slotID, row)
}

func (r *PgRepository) ReleaseSlot(ctx context.Context, slotID uuid.UUID) (*Slot, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE slots
		SET state = 'free',
		    held_by = NULL,
		    hold_deadline = NULL,
		    updated_at = now()
		WHERE id = $1
		  AND state = 'held'
		RETURNING `+slotColumns+`
	`, slotID)

	return r.scanSlotTransition(ctx, slotID, row)
}

func (r *PgRepository) CommitSlot(ctx context.Context, slotID uuid.UUID) (*Slot, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE slots
		SET state = 'committed',
		    held_by = NULL,
		    hold_deadline = NULL,
		    updated_at = now()
		WHERE id = $1
		  AND state = 'held'
		RETURNING `+slotColumns+`
	`, slotID)

	return r.scanSlotTransition(ctx, slotID, row)
}

func (r *PgRepository) CancelSlot(ctx context.Context, slotID uuid.UUID) (*Slot, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE slots
		SET state = 'cancelled',
		    held_by = NULL,
		    hold_deadline = NULL,
		    updated_at = now()
		WHERE id = $1
		  AND state IN ('free', 'held')
		RETURNING `+slotColumns+`
	`, slotID)

	return r.scanSlotTransition(ctx, slotID, row)
}

func (r *PgRepository) scanSlotTransition(ctx context.Context, slotID uuid.UUID, row pgx.Row) (*Slot, error) {
	s, err := scanSlot(row)
	if err != nil {
		if errors.Is(err, ErrSlotNotFound) {
			if _, getErr := r.GetSlot(ctx, slotID); getErr == nil {
				return nil, ErrSlotConflict
			}
			return nil, ErrSlotNotFound
		}
		return nil, err
	}
	return s, nil
}

// Offers

func (r *PgRepository) CreateOffer(ctx context.Context, o *Offer) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO offers (id, slot_id, entry_id, outcome, created_at, deadline)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, o.ID, o.SlotID, o.EntryID, o.Outcome, o.CreatedAt, o.Deadline)
	if err != nil {
		return fmt.Errorf("insert offer: %w", err)
	}
	return nil
}

func (r *PgRepository) GetOffer(ctx context.Context, id uuid.UUID) (*Offer, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+offerColumns+`
		FROM offers
		WHERE id = $1
	`, id)
	return scanOffer(row)
}

func (r *PgRepository) GetPendingOfferForEntry(ctx context.Context, entryID uuid.UUID) (*Offer, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+offerColumns+`
		FROM offers
		WHERE entry_id = $1 AND outcome = 'pending'
	`, entryID)
	return scanOffer(row)
}

func (r *PgRepository) ResolveOffer(ctx context.Context, id uuid.UUID, to OfferOutcome) (*Offer, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE offers
		SET outcome = $2
		WHERE id = $1
		  AND outcome = 'pending'
		RETURNING `+offerColumns+`
	`, id, to)

	o, err := scanOffer(row)
	if err != nil {
		if errors.Is(err, ErrOfferNotFound) {
			if _, getErr := r.GetOffer(ctx, id); getErr == nil {
				return nil, ErrOfferResolved
			}
			return nil, ErrOfferNotFound
		}
		return nil, err
	}
	return o, nil
}

func (r *PgRepository) ListOffersForSlot(ctx context.Context, slotID uuid.UUID) ([]Offer, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+offerColumns+`
		FROM offers
		WHERE slot_id = $1
		ORDER BY created_at, id
	`, slotID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectOffers(rows)
}

func (r *PgRepository) ListPendingOffers(ctx context.Context) ([]Offer, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+offerColumns+`
		FROM offers
		WHERE outcome = 'pending'
		ORDER BY deadline
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectOffers(rows)
}

func (r *PgRepository) FindDuePendingOffers(ctx context.Context, now time.Time) ([]Offer, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+offerColumns+`
		FROM offers
		WHERE outcome = 'pending'
		  AND deadline <= $1
		ORDER BY deadline
	`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectOffers(rows)
}

func (r *PgRepository) ListActiveOffersByPatient(ctx context.Context, patientID uuid.UUID) ([]Offer, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT o.id, o.slot_id, o.entry_id, o.outcome, o.created_at, o.deadline
		FROM offers o
		JOIN waitlist_entries e ON e.id = o.entry_id
		WHERE e.patient_id = $1
		  AND o.outcome = 'pending'
		ORDER BY o.created_at
	`, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectOffers(rows)
}

func collectOffers(rows pgx.Rows) ([]Offer, error) {
	var result []Offer
	for rows.Next() {
		o, err := scanOffer(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Event log

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventRecord) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO event_logs (event_type, offer_id, entry_id, payload, created_at)
		VALUES ($1, $2, $3, $4, COALESCE($5, now()))
	`, ev.EventType, ev.OfferID, ev.EntryID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}
	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
