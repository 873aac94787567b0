package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/daminiR/medspa-sub015/internal/db"
	"github.com/daminiR/medspa-sub015/internal/waitlist"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	gofakeit.Seed(time.Now().UnixNano())

	seedCtx := context.Background()

	serviceIDs, err := seedServices(seedCtx, pool)
	if err != nil {
		log.Fatalf("seed services: %v", err)
	}
	providerIDs, err := seedProviders(seedCtx, pool, 25)
	if err != nil {
		log.Fatalf("seed providers: %v", err)
	}
	patientIDs, err := seedPatients(seedCtx, pool, 2000)
	if err != nil {
		log.Fatalf("seed patients: %v", err)
	}
	if err := seedSlots(seedCtx, pool, serviceIDs, providerIDs, 500); err != nil {
		log.Fatalf("seed slots: %v", err)
	}
	if err := seedEntries(seedCtx, pool, serviceIDs, providerIDs, patientIDs, 800); err != nil {
		log.Fatalf("seed waitlist entries: %v", err)
	}

	log.Println("seed complete")
}

func seedServices(ctx context.Context, pool *pgxpool.Pool) ([]uuid.UUID, error) {
	services := []struct {
		name     string
		duration int
	}{
		{"Botox", 30},
		{"Dermal Filler", 45},
		{"Laser Hair Removal", 60},
		{"Chemical Peel", 45},
		{"Microneedling", 60},
		{"HydraFacial", 50},
		{"CoolSculpting", 90},
		{"IPL Photofacial", 45},
	}

	log.Printf("seeding %d services", len(services))

	ids := make([]uuid.UUID, 0, len(services))
	for _, s := range services {
		id := uuid.New()
		_, err := pool.Exec(ctx, `
			INSERT INTO services (id, name, duration_minutes, created_at, updated_at)
			VALUES ($1, $2, $3, now(), now())
		`, id, s.name, s.duration)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func seedProviders(ctx context.Context, pool *pgxpool.Pool, count int) ([]uuid.UUID, error) {
	log.Printf("seeding %d providers", count)

	titles := []string{"RN", "NP", "PA-C", "MD", "Aesthetician"}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	ids := make([]uuid.UUID, 0, count)
	for i := 0; i < count; i++ {
		id := uuid.New()
		name := gofakeit.Name()
		title := titles[gofakeit.Number(0, len(titles)-1)]

		_, err := tx.Exec(ctx, `
			INSERT INTO providers (id, name, title, created_at, updated_at)
			VALUES ($1, $2, $3, now(), now())
		`, id, name, title)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return ids, nil
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, count int) ([]uuid.UUID, error) {
	log.Printf("seeding %d patients", count)

	const batchSize = 500

	ids := make([]uuid.UUID, 0, count)
	for offset := 0; offset < count; offset += batchSize {
		end := offset + batchSize
		if end > count {
			end = count
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return nil, err
		}

		for i := offset; i < end; i++ {
			id := uuid.New()
			_, err := tx.Exec(ctx, `
				INSERT INTO patients (id, name, email, phone, created_at, updated_at)
				VALUES ($1, $2, $3, $4, now(), now())
			`, id, gofakeit.Name(), gofakeit.Email(), gofakeit.Phone())
			if err != nil {
				tx.Rollback(ctx)
				return nil, err
			}
			ids = append(ids, id)
		}

		if err := tx.Commit(ctx); err != nil {
			return nil, err
		}
	}
	return ids, nil
}

func seedSlots(ctx context.Context, pool *pgxpool.Pool, serviceIDs, providerIDs []uuid.UUID, count int) error {
	log.Printf("seeding %d open slots", count)

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for i := 0; i < count; i++ {
		start := gofakeit.DateRange(time.Now().Add(24*time.Hour), time.Now().Add(30*24*time.Hour)).Truncate(15 * time.Minute)
		end := start.Add(time.Duration(gofakeit.Number(2, 4)) * 15 * time.Minute)

		_, err := tx.Exec(ctx, `
			INSERT INTO slots (id, service_id, provider_id, start_time, end_time, state, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, 'free', now(), now())
		`,
			uuid.New(),
			serviceIDs[gofakeit.Number(0, len(serviceIDs)-1)],
			providerIDs[gofakeit.Number(0, len(providerIDs)-1)],
			start, end)
		if err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

func seedEntries(ctx context.Context, pool *pgxpool.Pool, serviceIDs, providerIDs, patientIDs []uuid.UUID, count int) error {
	log.Printf("seeding %d waitlist entries", count)

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	seen := make(map[string]bool)
	inserted := 0

	for inserted < count && len(seen) < len(patientIDs)*len(serviceIDs) {
		patientID := patientIDs[gofakeit.Number(0, len(patientIDs)-1)]
		serviceID := serviceIDs[gofakeit.Number(0, len(serviceIDs)-1)]

		var providerID *uuid.UUID
		if gofakeit.Number(0, 3) == 0 { // quarter of patients want a specific provider
			id := providerIDs[gofakeit.Number(0, len(providerIDs)-1)]
			providerID = &id
		}

		key := patientID.String() + "/" + serviceID.String()
		if seen[key] {
			continue
		}
		seen[key] = true

		availability, err := json.Marshal(randomAvailability())
		if err != nil {
			return err
		}

		joinedAt := gofakeit.DateRange(time.Now().Add(-14*24*time.Hour), time.Now())

		_, err = tx.Exec(ctx, `
			INSERT INTO waitlist_entries (id, patient_id, service_id, provider_id, availability, status, joined_at, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, 'waiting', $6, now(), now())
		`, uuid.New(), patientID, serviceID, providerID, availability, joinedAt)
		if err != nil {
			return err
		}
		inserted++
	}

	return tx.Commit(ctx)
}

func randomAvailability() waitlist.Availability {
	// Most patients can come any time; the rest have a few weekday windows.
	if gofakeit.Number(0, 2) > 0 {
		return nil
	}

	rules := make(waitlist.Availability, 0, 3)
	for i := 0; i < gofakeit.Number(1, 3); i++ {
		startHour := gofakeit.Number(8, 15)
		rules = append(rules, waitlist.WindowRule{
			Weekday:     time.Weekday(gofakeit.Number(1, 5)),
			StartMinute: startHour * 60,
			EndMinute:   (startHour + gofakeit.Number(2, 5)) * 60,
		})
	}
	return rules
}
