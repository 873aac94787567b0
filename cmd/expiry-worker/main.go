// The expiry worker is the backstop for offer deadlines: it periodically
// sweeps pending offers whose deadline has passed and expires them through
// the same state-checked path the in-process scheduler uses. It exists for
// the window between an api-server crash and restart.
package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/daminiR/medspa-sub015/internal/config"
	"github.com/daminiR/medspa-sub015/internal/db"
	redisclient "github.com/daminiR/medspa-sub015/internal/redis"
	"github.com/daminiR/medspa-sub015/internal/waitlist"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("expiry-worker starting up")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	if cfg.Store == config.StoreMemory {
		log.Fatal("expiry-worker requires STORE=postgres; memory mode expires in-process")
	}

	log.Printf("running expiry worker in env=%s interval=%s", cfg.Env, cfg.SweepInterval)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		log.Fatalf("postgres connection error: %v", err)
	}
	defer pgPool.Close()
	log.Println("connected to Postgres")

	rdb, err := redisclient.NewRedisClient(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		log.Fatalf("redis connection error: %v", err)
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			log.Printf("error closing redis: %v", err)
		}
	}()
	log.Println("connected to Redis")

	repo := waitlist.NewPgRepository(pgPool)
	locker := redisclient.NewSlotLocker(rdb, cfg.LockTTL)
	pub := redisclient.NewEventPublisher(rdb)
	svc := waitlist.NewService(repo, locker, noopScheduler{}, pub, waitlist.Config{
		OfferWindow: cfg.OfferWindow,
	})

	// Run once at startup
	runOnce(rootCtx, svc)

	ticker := time.NewTicker(cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			log.Println("shutdown signal received, stopping expiry worker")
			return
		case <-ticker.C:
			runOnce(rootCtx, svc)
		}
	}
}

func runOnce(ctx context.Context, svc *waitlist.Service) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	start := time.Now()
	expired, err := svc.ExpireDueOffers(runCtx)
	if err != nil {
		log.Printf("expiry sweep error: %v", err)
		return
	}
	if expired > 0 {
		log.Printf("expired %d offers in %s", expired, time.Since(start))
	}
}

// noopScheduler stands in for the api-server's in-process scheduler. Offers
// the sweep creates via cascade are picked up by the next sweep (and by the
// api-server's own scheduler once it reloads pending offers).
type noopScheduler struct{}

func (noopScheduler) Schedule(_ uuid.UUID, _ time.Time) {}
func (noopScheduler) Cancel(_ uuid.UUID)                {}
