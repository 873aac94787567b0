package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/daminiR/medspa-sub015/internal/api"
	"github.com/daminiR/medspa-sub015/internal/config"
	"github.com/daminiR/medspa-sub015/internal/db"
	redisclient "github.com/daminiR/medspa-sub015/internal/redis"
	"github.com/daminiR/medspa-sub015/internal/scheduler"
	"github.com/daminiR/medspa-sub015/internal/waitlist"
)

const version = "0.3.0"

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("api-server starting up")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	log.Printf("running in env=%s store=%s http_port=%s offer_window=%s",
		cfg.Env, cfg.Store, cfg.HTTPPort, cfg.OfferWindow)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		repo   waitlist.Repository
		locker waitlist.Locker
		pub    waitlist.Publisher
		pgPool *pgxpool.Pool
		rdb    *redis.Client
	)

	switch cfg.Store {
	case config.StoreMemory:
		log.Println("using in-memory store (dev mode)")
		repo = waitlist.NewMemoryRepository()
		locker = waitlist.NewLocalLocker()

	default:
		pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
		pgPool, err = db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
		cancelPg()
		if err != nil {
			log.Fatalf("postgres connection error: %v", err)
		}
		defer pgPool.Close()
		log.Println("connected to Postgres")

		rdb, err = redisclient.NewRedisClient(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
		if err != nil {
			log.Fatalf("redis connection error: %v", err)
		}
		defer func() {
			if err := rdb.Close(); err != nil {
				log.Printf("error closing redis: %v", err)
			}
		}()
		log.Println("connected to Redis")

		repo = waitlist.NewPgRepository(pgPool)
		locker = redisclient.NewSlotLocker(rdb, cfg.LockTTL)
		pub = redisclient.NewEventPublisher(rdb)
	}

	sched := scheduler.New()
	svc := waitlist.NewService(repo, locker, sched, pub, waitlist.Config{
		OfferWindow: cfg.OfferWindow,
	})

	rearmed, err := svc.RearmScheduler(rootCtx)
	if err != nil {
		log.Fatalf("rearm scheduler error: %v", err)
	}
	if rearmed > 0 {
		log.Printf("re-armed %d pending offer deadlines", rearmed)
	}

	schedDone := make(chan struct{})
	go func() {
		defer close(schedDone)
		sched.Run(rootCtx, svc.ExpireOffer)
	}()

	router := api.NewRouter(api.RouterConfig{
		Service: svc,
		PgPool:  pgPool,
		Redis:   rdb,
		Env:     cfg.Env,
		Version: version,
	})

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Printf("listening on :%s", cfg.HTTPPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http server error: %v", err)
		}
	}()

	<-rootCtx.Done()
	log.Println("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("http shutdown error: %v", err)
	}

	<-schedDone
	log.Println("api-server stopped")
}
