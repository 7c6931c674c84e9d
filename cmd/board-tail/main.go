// Command board-tail follows the change events relayed over Redis and keeps a
// local replica of the board, logging every applied change.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/bytedance/sonic"
	log "github.com/sirupsen/logrus"

	"kanban-sync/domain"
	"kanban-sync/internal/consts"
	"kanban-sync/internal/env"
	"kanban-sync/internal/redisconn"
	"kanban-sync/subscription"
)

type snapshotFunc func(ctx context.Context) (domain.Board, error)

// replica applies relayed events in order and reloads the board when a
// sequence gap shows that events were missed.
type replica struct {
	board  domain.Board
	fetch  snapshotFunc
	logger *log.Logger
}

func newReplica(ctx context.Context, columns []string, fetch snapshotFunc, logger *log.Logger) *replica {
	r := &replica{board: domain.NewBoard(columns), fetch: fetch, logger: logger}
	r.reload(ctx)
	return r
}

func (r *replica) reload(ctx context.Context) {
	if r.fetch == nil {
		return
	}
	b, err := r.fetch(ctx)
	if err != nil {
		r.logger.WithError(err).Warn("snapshot fetch failed, keeping local replica")
		return
	}
	r.board = b
	r.logger.WithFields(log.Fields{"seq": b.Seq, "tasks": b.Count()}).Info("replica loaded")
}

func (r *replica) handle(ctx context.Context, ev domain.Event) {
	entry := r.logger.WithFields(log.Fields{"seq": ev.Seq, "type": ev.Type, "request_id": ev.RequestID})
	if r.board.Seq > 0 && ev.Seq > r.board.Seq+1 {
		entry.WithField("replica_seq", r.board.Seq).Warn("missed change events")
		r.reload(ctx)
		if ev.Seq <= r.board.Seq {
			return
		}
	}
	if err := r.board.Apply(ev); err != nil {
		entry.WithError(err).Error("unable to apply change event")
		r.reload(ctx)
		return
	}
	entry.WithField("tasks", r.board.Count()).Info("applied")
}

func httpSnapshot(client *http.Client, url string) snapshotFunc {
	return func(ctx context.Context) (domain.Board, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return domain.Board{}, err
		}
		resp, err := client.Do(req)
		if err != nil {
			return domain.Board{}, err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return domain.Board{}, fmt.Errorf("snapshot: unexpected status %d", resp.StatusCode)
		}
		var b domain.Board
		if err := sonic.ConfigDefault.NewDecoder(resp.Body).Decode(&b); err != nil {
			return domain.Board{}, fmt.Errorf("snapshot: %w", err)
		}
		return b, nil
	}
}

func main() {
	logger := log.New()
	if strings.EqualFold(os.Getenv("LOG_FORMAT"), "json") {
		logger.SetFormatter(&log.JSONFormatter{})
	}

	redisConn := env.String("REDIS_CONNECTION_STRING", "")
	if redisConn == "" {
		logger.Fatal("REDIS_CONNECTION_STRING is required")
	}
	channel := env.String("BOARD_EVENTS_CHANNEL", consts.DefaultEventsChannel)
	columns := env.List("BOARD_COLUMNS", domain.DefaultColumns())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var fetch snapshotFunc
	if url := env.String("BOARD_URL", ""); url != "" {
		fetch = httpSnapshot(&http.Client{Timeout: 10 * time.Second}, strings.TrimRight(url, "/")+"/api/board")
	}

	rc := redisconn.New(redisConn)
	defer rc.Close()

	r := newReplica(ctx, columns, fetch, logger)
	logger.WithField("channel", channel).Info("tailing board events")
	subscription.SubscribeUpdates(ctx, logger, rc, channel, func(ev domain.Event) {
		r.handle(ctx, ev)
	})
}
