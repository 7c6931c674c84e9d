package api

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"kanban-sync/attachments"
	"kanban-sync/broadcast"
	"kanban-sync/domain"
	"kanban-sync/outbox"
)

// Mutator applies client requests to the board.
type Mutator interface {
	Execute(ctx context.Context, cmd domain.Command) (domain.Event, error)
	Create(ctx context.Context, requestID string, req domain.CreateTask) (domain.Event, error)
	Update(ctx context.Context, requestID string, req domain.UpdateTask) (domain.Event, error)
	Move(ctx context.Context, requestID string, req domain.MoveTask) (domain.Event, error)
	Delete(ctx context.Context, requestID string, req domain.DeleteTask) (domain.Event, error)
	Attach(ctx context.Context, requestID string, req domain.AttachFile) (domain.Event, error)
}

// Snapshotter returns a consistent copy of the live board.
type Snapshotter interface {
	Snapshot() domain.Board
}

// BoardReader serves board reads for request/response clients.
type BoardReader interface {
	FetchBoard(ctx context.Context) domain.Board
}

type hubStats interface {
	Stats() broadcast.HubStats
}

type outboxStats interface {
	Stats() outbox.Stats
}

type Config struct {
	// QueueSize bounds each connection's outbound event queue.
	QueueSize    int
	PingInterval time.Duration
	WriteTimeout time.Duration
	// AllowedOrigins restricts websocket upgrades; "*" allows any origin.
	AllowedOrigins []string
}

// Deps are the collaborators the HTTP surface is built on. Attachments and
// Outbox are optional.
type Deps struct {
	Store       Snapshotter
	Board       BoardReader
	Processor   Mutator
	Registry    *broadcast.Registry
	Hub         hubStats
	Attachments attachments.Store
	Outbox      outboxStats
	Logger      *log.Logger
	Config      Config
}
