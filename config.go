package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"kanban-sync/domain"
	"kanban-sync/internal/consts"
	"kanban-sync/internal/env"
)

type config struct {
	port          string
	columns       []string
	initialColumn string

	queueSize    int
	pingInterval time.Duration
	writeTimeout time.Duration

	redisConn        string
	dedupeTTL        time.Duration
	snapshotCacheTTL time.Duration
	eventsChannel    string

	storageConn string
	eventsQueue string

	uploadsDir     string
	uploadMaxBytes int64

	corsOrigins  []string
	pprofEnabled bool
}

func loadConfig() (config, error) {
	cfg := config{
		port:          env.String("PORT", "8080"),
		columns:       env.List("BOARD_COLUMNS", domain.DefaultColumns()),
		initialColumn: env.String("BOARD_INITIAL_COLUMN", ""),
		redisConn:     env.String("REDIS_CONNECTION_STRING", ""),
		eventsChannel: env.String("BOARD_EVENTS_CHANNEL", consts.DefaultEventsChannel),
		storageConn:   env.String("STORAGE_CONNECTION_STRING", ""),
		eventsQueue:   env.String("EVENTS_QUEUE", ""),
		uploadsDir:    env.String("UPLOADS_DIR", filepath.Join(os.TempDir(), "kanban-uploads")),
		corsOrigins:   env.List("CORS_ORIGINS", []string{"*"}),
	}

	var err error
	if cfg.queueSize, err = env.Int("CLIENT_QUEUE_SIZE", 256); err != nil {
		return cfg, err
	}
	if cfg.pingInterval, err = env.Duration("WS_PING_INTERVAL", 30*time.Second); err != nil {
		return cfg, err
	}
	if cfg.writeTimeout, err = env.Duration("WS_WRITE_TIMEOUT", 10*time.Second); err != nil {
		return cfg, err
	}
	if cfg.dedupeTTL, err = env.Duration("DEDUPER_TTL", 24*time.Hour); err != nil {
		return cfg, err
	}
	if cfg.dedupeTTL == 0 {
		return cfg, fmt.Errorf("invalid DEDUPER_TTL: must be greater than zero")
	}
	if cfg.snapshotCacheTTL, err = env.Duration("SNAPSHOT_CACHE_TTL", 30*time.Second); err != nil {
		return cfg, err
	}
	if cfg.uploadMaxBytes, err = env.Int64("UPLOAD_MAX_BYTES", 10<<20); err != nil {
		return cfg, err
	}
	if cfg.pprofEnabled, err = env.Bool("PPROF_ENABLED", false); err != nil {
		return cfg, err
	}
	if (cfg.storageConn == "") != (cfg.eventsQueue == "") {
		return cfg, fmt.Errorf("STORAGE_CONNECTION_STRING and EVENTS_QUEUE must be set together")
	}
	return cfg, nil
}
