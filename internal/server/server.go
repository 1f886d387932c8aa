// Package server wires the service together and runs the HTTP listener.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/sentinel-hub/classification-app-backend/internal/adapter"
	"github.com/sentinel-hub/classification-app-backend/internal/api"
	"github.com/sentinel-hub/classification-app-backend/internal/auth"
	"github.com/sentinel-hub/classification-app-backend/internal/cache"
	"github.com/sentinel-hub/classification-app-backend/internal/cache/redisstore"
	"github.com/sentinel-hub/classification-app-backend/internal/cache/tileindex"
	"github.com/sentinel-hub/classification-app-backend/internal/config"
	"github.com/sentinel-hub/classification-app-backend/internal/health"
	"github.com/sentinel-hub/classification-app-backend/internal/invalidation/kafkaconsumer"
	"github.com/sentinel-hub/classification-app-backend/internal/observability"
	"github.com/sentinel-hub/classification-app-backend/internal/sampler"
	"github.com/sentinel-hub/classification-app-backend/internal/source"
)

// Run builds every component from the configuration and serves until ctx is
// canceled or the listener fails.
func Run(ctx context.Context, cfg config.Config, logger zerolog.Logger) error {
	registry, err := source.LoadRegistry(cfg.Sources.Path,
		source.WithRecognizedParams(cfg.Sources.Recognized),
		source.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("load sources: %w", err)
	}

	client := adapter.NewClient(adapter.ClientConfig{
		Retries:       cfg.Upstream.Retries,
		RetryInterval: cfg.Upstream.RetryInterval,
		RateLimit:     cfg.Upstream.RateLimit,
		RateBurst:     cfg.Upstream.RateBurst,
		Timeout:       cfg.Upstream.Timeout,
	}, logger)
	adapters := adapter.NewSet(client, cfg.Upstream.ImageryURL, cfg.Upstream.ImageryInstance, cfg.Upstream.GeopediaURL)

	var (
		store   cache.Store
		index   *tileindex.Index
		cleanup func()
	)
	if cfg.Cache.Enabled {
		redis, err := redisstore.New(ctx, cfg.Cache.RedisAddr)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		cleanup = func() { _ = redis.Close() }

		tiered, err := cache.NewTiered(cfg.Cache.LRUSize, redis, cfg.Cache.OpTimeout)
		if err != nil {
			return fmt.Errorf("build cache: %w", err)
		}
		store = tiered

		// the index goes straight to redis so purges are visible to every
		// replica, not just this process's LRU
		index, err = tileindex.New(redis, cfg.Cache.IndexRes)
		if err != nil {
			return fmt.Errorf("build tile index: %w", err)
		}
	}
	if cleanup != nil {
		defer cleanup()
	}

	engineOpts := []sampler.Option{}
	if store != nil {
		engineOpts = append(engineOpts, sampler.WithCache(store, index))
	}
	engine := sampler.New(logger, registry, adapters, sampler.Config{
		Workers:             cfg.Sampling.Workers,
		RequestTimeout:      cfg.Server.RequestTimeout,
		CacheTTL:            cfg.Cache.TTL,
		DefaultResolution:   cfg.Sampling.DefaultResolution,
		DefaultWindowWidth:  cfg.Sampling.DefaultWindowWidth,
		DefaultWindowHeight: cfg.Sampling.DefaultWindowHeight,
		DefaultBuffer:       cfg.Sampling.DefaultBuffer,
	}, engineOpts...)

	if cfg.Kafka.Enabled {
		var purger kafkaconsumer.RegionPurger
		if index != nil {
			purger = index
		}
		consumer := kafkaconsumer.New(kafkaconsumer.Config{
			Brokers: cfg.Kafka.Brokers,
			Topic:   cfg.Kafka.Topic,
			GroupID: cfg.Kafka.GroupID,
		}, logger, purger, registry)
		go func() {
			if err := consumer.Start(ctx); err != nil {
				logger.Error().Err(err).Msg("invalidation consumer stopped")
			}
		}()
	}

	handler := api.NewHandler(logger, registry, engine)

	r := chi.NewRouter()
	r.Use(api.Recover(logger))
	r.Use(api.Logging(logger))
	r.Use(api.CORS())
	r.Use(auth.Middleware([]byte(cfg.Auth.Secret), logger))

	r.Get("/healthz", health.Liveness())
	r.Get("/metrics", observability.Handler().ServeHTTP)
	handler.Register(r)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      2 * cfg.Server.RequestTimeout,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.Server.Addr).Msg("http listen")
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		return err
	}
}
