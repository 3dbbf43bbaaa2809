package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"beacon/internal/changefeed"
	changefeedMetrics "beacon/internal/changefeed/metrics"
	"beacon/internal/health"
	notifyHandler "beacon/internal/notify/handler"
	notifyMetrics "beacon/internal/notify/metrics"
	"beacon/internal/notify/ports"
	notifyService "beacon/internal/notify/service"
	"beacon/internal/platform/config"
	"beacon/internal/platform/httpserver"
	"beacon/internal/platform/kafka/consumer"
	"beacon/internal/platform/logger"
	"beacon/internal/platform/metrics"
	"beacon/internal/platform/postgres"
	platformredis "beacon/internal/platform/redis"
	presenceHandler "beacon/internal/presence/handler"
	presenceMetrics "beacon/internal/presence/metrics"
	presenceService "beacon/internal/presence/service"
	presenceStore "beacon/internal/presence/store"
	realtimeHandler "beacon/internal/realtime/handler"
	"beacon/internal/realtime/hub"
	"beacon/internal/realtime/legacy"
	realtimeMetrics "beacon/internal/realtime/metrics"
	"beacon/internal/realtime/session"
	recordStore "beacon/internal/records/store"
	"beacon/internal/schema"
	subHandler "beacon/internal/subscription/handler"
	subMetrics "beacon/internal/subscription/metrics"
	subService "beacon/internal/subscription/service"
	subStore "beacon/internal/subscription/store"
	httptransport "beacon/internal/transport/http"
)

const startupTimeout = 15 * time.Second

// recordBackend is what the notify engine needs from a record store.
type recordBackend interface {
	ports.RecordSource
	ports.RecordSink
}

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal services packages.
func main() {
	cfg, err := config.FromEnvWithFile(os.Getenv("BEACON_CONFIG_FILE"))
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Log.Level, cfg.Log.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	startCtx, cancel := context.WithTimeout(ctx, startupTimeout)
	defer cancel()

	catalog, err := loadCatalog(cfg.Notify.SchemaFile)
	if err != nil {
		return err
	}

	healthHandler := health.New(log)

	// Subscriptions
	subscriptions, err := subService.New(subStore.NewInMemory(), catalog,
		subService.WithLogger(log),
		subService.WithMetrics(subMetrics.New()),
	)
	if err != nil {
		return fmt.Errorf("subscription service: %w", err)
	}

	// Records
	records, closeRecords, err := buildRecordStore(startCtx, cfg, catalog, healthHandler, log)
	if err != nil {
		return err
	}
	defer closeRecords()

	// Presence
	presence, closePresence, err := buildPresenceStore(startCtx, cfg, healthHandler, log)
	if err != nil {
		return err
	}
	defer closePresence()
	tracker, err := presenceService.New(presence,
		presenceService.WithLogger(log),
		presenceService.WithMetrics(presenceMetrics.New()),
		presenceService.WithRoomPrefix(cfg.Notify.PresencePrefix),
	)
	if err != nil {
		return fmt.Errorf("presence tracker: %w", err)
	}

	// Realtime
	rtMetrics := realtimeMetrics.New()
	rooms := hub.New(hub.WithLogger(log), hub.WithMetrics(rtMetrics))
	if cfg.Notify.MetadataKey == "" {
		log.Warn("BEACON_METADATA_KEY not set; legacy leave metadata will be ignored")
	}
	sockets, err := realtimeHandler.New(session.Deps{
		Rooms:         rooms,
		Presence:      tracker,
		Subscriptions: subscriptions,
		Codec:         legacy.New(cfg.Notify.MetadataKey),
		Logger:        log,
		Metrics:       rtMetrics,
	}, realtimeHandler.WithAllowedOrigins(cfg.Server.AllowedOrigins))
	if err != nil {
		return fmt.Errorf("realtime handler: %w", err)
	}
	defer sockets.Close()

	// Notify engine
	nMetrics := notifyMetrics.New()
	processor, err := notifyService.NewProcessor(subscriptions.Typecaster(), notifyService.WithProcessorLogger(log))
	if err != nil {
		return fmt.Errorf("processor: %w", err)
	}
	broadcaster, err := notifyService.NewBroadcaster(records, rooms,
		notifyService.WithBroadcasterLogger(log),
		notifyService.WithBroadcasterMetrics(nMetrics),
		notifyService.WithConcurrency(cfg.Notify.BroadcastConcurrency),
	)
	if err != nil {
		return fmt.Errorf("broadcaster: %w", err)
	}
	dispatcher, err := notifyService.New(subscriptions, processor, broadcaster,
		notifyService.WithLogger(log),
		notifyService.WithMetrics(nMetrics),
		notifyService.WithRecordSink(records),
	)
	if err != nil {
		return fmt.Errorf("dispatcher: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	// Change feed
	if cfg.KafkaEnabled() {
		feed, err := buildChangeFeed(startCtx, cfg, dispatcher, healthHandler, log)
		if err != nil {
			return err
		}
		defer feed.consumer.Close()
		g.Go(func() error {
			log.Info("change feed started", "topic", cfg.Kafka.ChangesTopic, "group", cfg.Kafka.Group)
			return feed.consumer.Run(gctx, feed.handler.Handle)
		})
	}

	router := httptransport.NewRouter(log, metrics.New(),
		healthHandler,
		subHandler.New(subscriptions, log),
		notifyHandler.New(dispatcher, broadcaster, log),
		presenceHandler.New(tracker, log),
		sockets,
	)
	srv := httpserver.New(cfg.Server.Addr, router)

	g.Go(func() error {
		log.Info("starting beacon", "addr", cfg.Server.Addr)
		err := httpserver.Run(gctx, srv, cfg.Server.ShutdownGrace, func() {
			log.Info("shutting down")
			sockets.Close()
		})
		if err != nil {
			return err
		}
		log.Info("http server stopped")
		return nil
	})

	return g.Wait()
}

func loadCatalog(path string) (*schema.Catalog, error) {
	if path == "" {
		return schema.DefaultCatalog(), nil
	}
	catalog, err := schema.LoadCatalogFile(path)
	if err != nil {
		return nil, fmt.Errorf("load schema catalog: %w", err)
	}
	return catalog, nil
}

func buildRecordStore(ctx context.Context, cfg config.Config, catalog *schema.Catalog, hc *health.Handler, log *slog.Logger) (recordBackend, func(), error) {
	client, err := postgres.New(ctx, cfg.Postgres)
	if err != nil {
		return nil, nil, fmt.Errorf("postgres: %w", err)
	}
	if client == nil {
		log.Info("DATABASE_URL not set; using in-memory record store")
		return recordStore.NewInMemory(catalog), func() {}, nil
	}
	store := recordStore.NewPostgres(client.DB, catalog)
	if err := store.EnsureSchema(ctx); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("postgres schema: %w", err)
	}
	hc.Add("postgres", client)
	return store, func() { _ = client.Close() }, nil
}

func buildPresenceStore(ctx context.Context, cfg config.Config, hc *health.Handler, log *slog.Logger) (presenceService.Store, func(), error) {
	client, err := platformredis.New(ctx, cfg.Redis)
	if err != nil {
		return nil, nil, fmt.Errorf("redis: %w", err)
	}
	if client == nil {
		log.Info("REDIS_URL not set; using in-memory presence store")
		return presenceStore.NewInMemory(), func() {}, nil
	}
	hc.Add("redis", client)
	store := presenceStore.NewRedis(client.Client, presenceStore.WithTTL(cfg.Redis.PresenceTTL))
	return store, func() { _ = client.Close() }, nil
}

type changeFeed struct {
	consumer *consumer.Consumer
	handler  *changefeed.Handler
}

func buildChangeFeed(ctx context.Context, cfg config.Config, dispatcher changefeed.Dispatcher, hc *health.Handler, log *slog.Logger) (*changeFeed, error) {
	c, err := consumer.New(consumer.Config{
		Brokers: cfg.Kafka.Brokers,
		Topic:   cfg.Kafka.ChangesTopic,
		Group:   cfg.Kafka.Group,
	}, consumer.WithLogger(log))
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	if err := c.EnsureTopic(ctx, cfg.Kafka.Partitions, cfg.Kafka.ReplicationFactor); err != nil {
		c.Close()
		return nil, fmt.Errorf("kafka topic: %w", err)
	}
	h, err := changefeed.New(dispatcher,
		changefeed.WithLogger(log),
		changefeed.WithMetrics(changefeedMetrics.New()),
	)
	if err != nil {
		c.Close()
		return nil, err
	}
	hc.Add("kafka", health.CheckerFunc(c.Ping))
	return &changeFeed{consumer: c, handler: h}, nil
}
