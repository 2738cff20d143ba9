package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/expensehub/expensehub/internal/config"
	"github.com/expensehub/expensehub/internal/db"
	httpx "github.com/expensehub/expensehub/internal/http"
	"github.com/expensehub/expensehub/internal/observability"
	"github.com/expensehub/expensehub/internal/tokens"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	// .env is optional; real deployments set the environment directly
	_ = godotenv.Load()

	cfg := config.Load()

	log := observability.NewLogger(cfg.Env)

	// tracing (no-op when the endpoint is unset)
	var shutdownTracer func(context.Context) error

	if cfg.OTLPEndpoint != "" {
		ctx, cancel := config.WithTimeout(5 * time.Second)

		shutdown, err := observability.InitTracer(ctx, "expensehub", cfg.OTLPEndpoint)
		cancel()

		if err != nil {
			log.Error("tracer init failed", "err", err)
		} else {
			shutdownTracer = shutdown
		}
	}

	pool, err := db.NewPool(cfg.DBURL)

	if err != nil {
		log.Error("could not connect to database", "err", err)
		os.Exit(1)
	}

	defer pool.Close()

	{
		ctx, cancel := config.WithTimeout(5 * time.Second)
		err = db.EnsureSeedUser(ctx, pool, cfg)
		cancel()

		if err != nil {
			log.Error("seed user bootstrap failed", "err", err)
			os.Exit(1)
		}
	}

	// token revocation list; falls back to process memory without redis
	var revoker tokens.Revoker
	var pingRedis func() error

	if cfg.RedisAddr != "" {
		redisRevoker := tokens.NewRedisRevoker(tokens.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})

		defer redisRevoker.Close()

		revoker = redisRevoker
		pingRedis = func() error {
			ctx, cancel := config.WithTimeout(1 * time.Second)
			defer cancel()
			return redisRevoker.Ping(ctx)
		}
	} else {
		revoker = tokens.NewMemoryRevoker()
	}

	metrics := prometheus.NewRegistry()
	prom := observability.NewProm(metrics)

	router := httpx.NewRouter(httpx.RouterDeps{
		Log:       log,
		Pool:      pool,
		Revoker:   revoker,
		PingRedis: pingRedis,
		Prom:      prom,
		Metrics:   metrics,
		Cfg:       cfg,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("server starting", "port", cfg.Port, "env", cfg.Env)
		err := srv.ListenAndServe()

		if err != nil && err != http.ErrServerClosed {
			log.Error("server failed", "err", err)
			os.Exit(1)
		}
	}()

	// graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Info("server shutting down")

	shutdownCh := make(chan struct{})

	go func() {
		defer close(shutdownCh)

		ctx, cancel := config.WithTimeout(10 * time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			log.Error("graceful shutdown failed", "err", err)
			return
		}

		if shutdownTracer != nil {
			if err := shutdownTracer(ctx); err != nil {
				log.Error("tracer shutdown failed", "err", err)
			}
		}
	}()

	select {
	case <-shutdownCh:
		log.Info("shutdown complete")

	case <-time.After(12 * time.Second):
		log.Error("shutdown timed out")
	}
}
