package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/labstack/echo-contrib/pprof"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"kanban-sync/api"
	"kanban-sync/attachments"
	"kanban-sync/broadcast"
	"kanban-sync/internal/redisconn"
	"kanban-sync/mutation"
	"kanban-sync/outbox"
	"kanban-sync/storage"
	"kanban-sync/subscription"
)

func newLogger() *log.Logger {
	logger := log.New()
	if dbg, err := strconv.ParseBool(os.Getenv("DEBUG")); err == nil && dbg {
		logger.SetLevel(log.DebugLevel)
	}
	if strings.EqualFold(os.Getenv("LOG_FORMAT"), "json") {
		logger.SetFormatter(&log.JSONFormatter{})
	}
	return logger
}

func main() {
	logger := newLogger()
	cfg, err := loadConfig()
	if err != nil {
		logger.Fatalf("config: %v", err)
	}

	tp := sdktrace.NewTracerProvider()
	otel.SetTracerProvider(tp)

	store, err := storage.NewStore(cfg.columns)
	if err != nil {
		logger.Fatalf("board: %v", err)
	}

	var (
		rc    *redis.Client
		relay *subscription.Relay
		ob    *outbox.Outbox
		sinks []broadcast.Sink
	)
	if cfg.redisConn != "" {
		rc = redisconn.New(cfg.redisConn)
		if err := rc.Ping(context.Background()).Err(); err != nil {
			logger.WithError(err).Warn("redis unreachable at startup, continuing")
		}
		relay = subscription.NewRelay(rc, cfg.eventsChannel, cfg.queueSize, logger)
		sinks = append(sinks, relay)
	} else {
		logger.Info("REDIS_CONNECTION_STRING not set, running without dedupe, snapshot cache and relay")
	}
	if cfg.storageConn != "" {
		queue, err := storage.NewEventQueue(cfg.storageConn, cfg.eventsQueue)
		if err != nil {
			logger.Fatalf("event queue: %v", err)
		}
		obCfg, err := outbox.ConfigFromEnv()
		if err != nil {
			logger.Fatalf("outbox: %v", err)
		}
		ob = outbox.New(obCfg, queue, logger, store.Seq())
		sinks = append(sinks, ob)
	}

	registry := broadcast.NewRegistry()
	hub := broadcast.NewHub(registry, logger, store.Seq(), sinks...)

	opts := []mutation.Option{}
	if cfg.initialColumn != "" {
		opts = append(opts, mutation.WithInitialColumn(cfg.initialColumn))
	}
	if rc != nil {
		opts = append(opts, mutation.WithDeduper(mutation.NewRedisDeduper(rc, cfg.dedupeTTL)))
	}
	processor, err := mutation.NewProcessor(store, hub, logger, opts...)
	if err != nil {
		logger.Fatalf("processor: %v", err)
	}

	uploads, err := attachments.NewDiskStore(cfg.uploadsDir, cfg.uploadMaxBytes)
	if err != nil {
		logger.Fatalf("uploads: %v", err)
	}

	e := echo.New()
	e.HideBanner = true
	e.JSONSerializer = api.SonicSerializer{}
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: cfg.corsOrigins,
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderContentEncoding, "Idempotency-Key"},
	}))
	e.Static("/uploads", uploads.Dir())
	if cfg.pprofEnabled {
		pprof.Register(e)
	}

	deps := api.Deps{
		Store:       store,
		Board:       storage.NewCache(store, rc, cfg.snapshotCacheTTL),
		Processor:   processor,
		Registry:    registry,
		Hub:         hub,
		Attachments: uploads,
		Logger:      logger,
		Config: api.Config{
			QueueSize:      cfg.queueSize,
			PingInterval:   cfg.pingInterval,
			WriteTimeout:   cfg.writeTimeout,
			AllowedOrigins: cfg.corsOrigins,
		},
	}
	if ob != nil {
		deps.Outbox = ob
	}
	api.Register(e, deps)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.WithFields(log.Fields{"port": cfg.port, "columns": cfg.columns}).Info("board server listening")
		if err := e.Start(":" + cfg.port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("server: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("server shutdown")
	}
	if relay != nil {
		relay.Close()
	}
	if ob != nil {
		ob.Close()
	}
	if rc != nil {
		_ = rc.Close()
	}
	if err := tp.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("tracer shutdown")
	}
}
