package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	contenthandler "muniapi/internal/content/handler"
	contentstore "muniapi/internal/content/store"
	"muniapi/internal/fingerprint"
	fpmetrics "muniapi/internal/fingerprint/metrics"
	fpstore "muniapi/internal/fingerprint/store"
	"muniapi/internal/httpcache"
	cachemetrics "muniapi/internal/httpcache/metrics"
	"muniapi/internal/identifier"
	idmetrics "muniapi/internal/identifier/metrics"
	idstore "muniapi/internal/identifier/store"
	"muniapi/internal/jwttoken"
	"muniapi/internal/platform/config"
	"muniapi/internal/platform/httpserver"
	"muniapi/internal/platform/kafka"
	"muniapi/internal/platform/logger"
	"muniapi/internal/platform/metrics"
	"muniapi/internal/platform/postgres"
	"muniapi/internal/platform/redis"
	"muniapi/internal/providers"
	"muniapi/internal/providers/httpjson"
	"muniapi/internal/refresh"
	httptransport "muniapi/internal/transport/http"
	"muniapi/internal/updater"
	"muniapi/internal/updater/kafkabus"
	updatermetrics "muniapi/internal/updater/metrics"
	"muniapi/pkg/domain"
)

const shutdownGrace = 10 * time.Second

// main wires dependencies and keeps the process lifecycle small. Domain logic
// lives in the internal packages.
func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "muniapi: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.FromEnv()
	log := logger.New(cfg.Server.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sources, err := config.LoadSources(cfg.SourcesFile)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	checks := map[string]httptransport.HealthCheck{}

	var idStore identifier.Store = idstore.NewInMemoryStore()
	db, err := postgres.Open(ctx, cfg.Database)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
		idStore = idstore.NewPostgres(db)
		checks["postgres"] = db.PingContext
		log.Info("identifier store: postgres")
	}
	ids := identifier.New(idStore,
		identifier.WithLogger(log),
		identifier.WithMetrics(idmetrics.New(reg)),
	)

	var cache fingerprint.Cache = fpstore.NewInMemoryCache()
	rc, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	if rc != nil {
		defer rc.Close()
		cache = fpstore.NewRedisCache(rc.Client, cfg.Redis.KeyPrefix)
		checks["redis"] = rc.Health
		log.Info("fingerprint cache: redis")
	}
	cache = fingerprint.NewInstrumented(cache, fpmetrics.New(reg))

	registry, err := buildProviders(sources, log)
	if err != nil {
		return err
	}
	for _, p := range registry.All() {
		checks["source:"+p.ID()] = p.Health
	}

	store := contentstore.NewInMemoryStore()
	processor := refresh.New(registry, ids, cache, store, refresh.WithLogger(log))

	local := updater.NewChannelBus()
	schedulerMetrics := updatermetrics.New(reg)
	schedulers := make([]*updater.Scheduler, 0, len(domain.EntityTypes()))
	for _, t := range domain.EntityTypes() {
		s := updater.NewScheduler(t, processor,
			updater.WithInterval(cfg.Scheduler.IntervalFor(t, cfg.Server.TestMode)),
			updater.WithInboxSize(cfg.Scheduler.InboxSize),
			updater.WithAccept(refresh.ConfiguredFilter(sources)),
			updater.WithLogger(log),
			updater.WithMetrics(schedulerMetrics),
		)
		local.RegisterScheduler(s)
		schedulers = append(schedulers, s)
	}

	g, gctx := errgroup.WithContext(ctx)

	var bus updater.Bus = local
	if len(cfg.Kafka.Brokers) > 0 {
		topics := kafka.Topics(cfg.Kafka.TopicPrefix)
		producer, err := kafka.NewClient(cfg.Kafka)
		if err != nil {
			return err
		}
		defer producer.Close()
		if err := kafka.EnsureTopics(ctx, producer, cfg.Kafka, topics...); err != nil {
			return err
		}
		consumerClient, err := kafka.NewClient(cfg.Kafka, kafkabus.ConsumerOpts(cfg.Kafka.ConsumerGroup, topics...)...)
		if err != nil {
			return err
		}
		defer consumerClient.Close()

		bus = kafkabus.NewPublisher(producer, cfg.Kafka.TopicPrefix)
		consumer := kafkabus.NewConsumer(consumerClient, local, kafkabus.WithLogger(log))
		g.Go(func() error { return consumer.Run(gctx) })
		log.Info("update bus: kafka", "brokers", cfg.Kafka.Brokers)
	}

	for _, s := range schedulers {
		s.Start(gctx)
	}
	g.Go(func() error {
		<-gctx.Done()
		for _, s := range schedulers {
			s.Stop()
		}
		for _, s := range schedulers {
			s.Wait()
		}
		return nil
	})

	jwtService := jwttoken.NewJWTService(cfg.Server.JWTSigningKey, cfg.Server.JWTIssuer, cfg.Server.JWTAudience)
	cacheController := httpcache.New(cache,
		httpcache.WithLogger(log),
		httpcache.WithMetrics(cachemetrics.New(reg)),
	)
	router := httptransport.NewRouter(httptransport.Deps{
		Logger:         log,
		Metrics:        metrics.New(reg),
		Gatherer:       reg,
		RequestTimeout: cfg.Server.RequestTimeout,
		Checks:         checks,
		Routes: []httptransport.Registrar{
			contenthandler.New(ids, store, cacheController, bus, jwtService, log),
		},
	})

	srv := httpserver.New(cfg.Server.Addr, router)
	g.Go(func() error {
		log.Info("starting muniapi", "addr", cfg.Server.Addr, "test_mode", cfg.Server.TestMode)
		return httpserver.Run(gctx, srv, shutdownGrace)
	})

	return g.Wait()
}

// buildProviders registers one HTTP JSON provider per configured source.
func buildProviders(sources *config.Sources, log *slog.Logger) (*providers.ProviderRegistry, error) {
	names := make([]string, 0, len(sources.Sources))
	for name := range sources.Sources {
		names = append(names, name)
	}
	sort.Strings(names)

	registry := providers.NewProviderRegistry()
	for _, name := range names {
		p, err := httpjson.New(name, sources, httpjson.WithLogger(log.With("source", name)))
		if err != nil {
			return nil, err
		}
		if err := registry.Register(p); err != nil {
			return nil, err
		}
	}
	return registry, nil
}
