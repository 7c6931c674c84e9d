package outbox

import (
	"time"

	"kanban-sync/internal/env"
)

type Config struct {
	BufferSize     int
	Workers        int
	BatchSize      int
	MaxAttempts    int
	FlushInterval  time.Duration
	EnqueueTimeout time.Duration
	RetryInitial   time.Duration
	RetryMax       time.Duration
}

// DefaultConfig returns the settings used when no OUTBOX_* variables are set.
func DefaultConfig() Config {
	return Config{
		BufferSize:     4096,
		Workers:        4,
		BatchSize:      32,
		MaxAttempts:    8,
		FlushInterval:  5 * time.Millisecond,
		EnqueueTimeout: 60 * time.Second,
		RetryInitial:   250 * time.Millisecond,
		RetryMax:       30 * time.Second,
	}
}

// ConfigFromEnv reads OUTBOX_* overrides on top of DefaultConfig.
func ConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()
	var err error
	if cfg.BufferSize, err = env.Int("OUTBOX_BUFFER", cfg.BufferSize); err != nil {
		return cfg, err
	}
	if cfg.Workers, err = env.Int("OUTBOX_WORKERS", cfg.Workers); err != nil {
		return cfg, err
	}
	if cfg.BatchSize, err = env.Int("OUTBOX_BATCH", cfg.BatchSize); err != nil {
		return cfg, err
	}
	if cfg.MaxAttempts, err = env.Int("OUTBOX_MAX_ATTEMPTS", cfg.MaxAttempts); err != nil {
		return cfg, err
	}
	if cfg.FlushInterval, err = env.Duration("OUTBOX_FLUSH_INTERVAL", cfg.FlushInterval); err != nil {
		return cfg, err
	}
	if cfg.EnqueueTimeout, err = env.Duration("OUTBOX_ENQUEUE_TIMEOUT", cfg.EnqueueTimeout); err != nil {
		return cfg, err
	}
	if cfg.RetryInitial, err = env.Duration("OUTBOX_RETRY_INITIAL", cfg.RetryInitial); err != nil {
		return cfg, err
	}
	if cfg.RetryMax, err = env.Duration("OUTBOX_RETRY_MAX", cfg.RetryMax); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c Config) normalized() Config {
	if c.Workers <= 0 {
		c.Workers = 1
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 1
	}
	if c.BufferSize <= 0 {
		c.BufferSize = c.Workers * c.BatchSize * 2
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 1
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = 5 * time.Millisecond
	}
	if c.EnqueueTimeout <= 0 {
		c.EnqueueTimeout = 60 * time.Second
	}
	return c
}
