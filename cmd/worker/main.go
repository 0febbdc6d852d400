// cmd/worker/main.go
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"place-discovery-service/internal/config"
	"place-discovery-service/internal/logging"
	"place-discovery-service/internal/places"
	"place-discovery-service/internal/repository/postgresql"
	"place-discovery-service/internal/service"
	"place-discovery-service/internal/storage"
	"place-discovery-service/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("config")
	}
	log := logging.New(cfg.Log.Level, cfg.Log.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithFields(logrus.Fields{
		"workers":        cfg.Worker.Count,
		"redis_addr":     cfg.Redis.Addr,
		"queue_key":      cfg.Queue.Key,
		"processing_key": cfg.Queue.ProcessingKey,
		"postgres_dsn":   logging.RedactDSN(cfg.Postgres.DSN),
		"archive":        cfg.ArchiveEnabled(),
	}).Info("worker config")

	// Postgres
	pool, err := postgresql.NewPool(ctx, cfg.Postgres.DSN, cfg.Postgres.MaxConns)
	if err != nil {
		log.WithError(err).Fatal("pg")
	}
	defer pool.Close()

	// Redis
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.WithError(err).Fatal("redis")
	}

	// DI
	repo := postgresql.NewJobRepository(pool)
	queue := service.NewRedisQueue(rdb, service.QueueKeys{
		Queue:      cfg.Queue.Key,
		Processing: cfg.Queue.ProcessingKey,
		Claims:     cfg.Queue.ClaimsKey,
	})
	creds := service.NewCredentialResolver(postgresql.NewCredentialRepository(pool), cfg.Provider.CredentialDefault)

	searcher := places.NewClient(places.Options{
		BaseURL:          cfg.Provider.BaseURL,
		MaxRetryAttempts: cfg.Provider.MaxRetryAttempts,
		RetryBaseDelay:   cfg.Provider.RetryBaseDelay,
		RetryMaxDelay:    cfg.Provider.RetryMaxDelay,
		PaginationWarmup: cfg.Provider.PaginationWarmup,
		HTTPClient:       &http.Client{Timeout: cfg.Provider.Timeout},
		Logger:           log,
	})

	processor := worker.NewProcessor(repo, searcher, creds, log)
	if cfg.ArchiveEnabled() {
		archive, err := storage.NewSnapshotArchive(ctx, cfg.Archive)
		if err != nil {
			log.WithError(err).Fatal("archive")
		}
		processor.WithArchiver(archive)
	}

	// Reaper returns jobs left in processing by a crashed worker to the queue.
	reaper := worker.NewReaper(queue, cfg.Queue.ReaperInterval, cfg.Queue.StaleAfter, log)
	workers := worker.NewPool(queue, processor, cfg.Worker.Count, log)

	var g errgroup.Group
	g.Go(func() error {
		reaper.Run(ctx)
		return nil
	})
	g.Go(func() error {
		log.WithField("workers", cfg.Worker.Count).Info("worker started")
		workers.Run(ctx)
		return nil
	})
	_ = g.Wait()

	log.Info("worker stopped")
}
