// cmd/api/main.go
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	_ "place-discovery-service/docs"
	"place-discovery-service/internal/config"
	"place-discovery-service/internal/logging"
	"place-discovery-service/internal/repository/postgresql"
	"place-discovery-service/internal/service"
	httptransport "place-discovery-service/internal/transport/http"
)

// @title Place discovery API
// @version 1.0
// @description Asynchronous place search jobs with deduplicated CSV snapshots.
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("config")
	}
	log := logging.New(cfg.Log.Level, cfg.Log.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithFields(logrus.Fields{
		"http_addr":    cfg.HTTP.Addr,
		"redis_addr":   cfg.Redis.Addr,
		"queue_key":    cfg.Queue.Key,
		"postgres_dsn": logging.RedactDSN(cfg.Postgres.DSN),
		"auth":         cfg.Auth.JWTSecret != "",
	}).Info("api config")

	// Postgres
	pool, err := postgresql.NewPool(ctx, cfg.Postgres.DSN, cfg.Postgres.MaxConns)
	if err != nil {
		log.WithError(err).Fatal("pg")
	}
	defer pool.Close()

	if err := postgresql.Migrate(ctx, pool, log); err != nil {
		log.WithError(err).Fatal("migrate")
	}

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
	queue := service.NewRedisQueue(rdb, service.QueueKeys{
		Queue:      cfg.Queue.Key,
		Processing: cfg.Queue.ProcessingKey,
		Claims:     cfg.Queue.ClaimsKey,
	})
	creds := service.NewCredentialResolver(postgresql.NewCredentialRepository(pool), cfg.Provider.CredentialDefault)
	jobSvc := service.NewJobService(
		postgresql.NewJobRepository(pool),
		queue,
		creds,
		postgresql.NewRegistryRepository(pool),
		log,
	)

	handler := httptransport.NewHandler(jobSvc, log)
	auth := httptransport.NewAuthenticator(cfg.Auth.JWTSecret)

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           httptransport.Routes(handler, auth, log),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.WithField("addr", cfg.HTTP.Addr).Info("api started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.WithError(err).Error("api stopped with error")
		return
	}
	log.Info("api stopped")
}
