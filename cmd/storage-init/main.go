// Command storage-init provisions the Azure Storage queue that receives
// exported board change events.
package main

import (
	"context"
	"os"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"

	"kanban-sync/internal/env"
	"kanban-sync/storage"
)

func main() {
	if dbg, err := strconv.ParseBool(os.Getenv("DEBUG")); err == nil && dbg {
		log.SetLevel(log.DebugLevel)
	}
	log.Info("storage init starting")

	connStr := env.String("STORAGE_CONNECTION_STRING", "")
	queues := env.List("EVENTS_QUEUE", nil)
	if connStr == "" || len(queues) == 0 {
		log.Fatal("missing STORAGE_CONNECTION_STRING or EVENTS_QUEUE")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	for _, name := range queues {
		if err := storage.EnsureQueue(ctx, connStr, name); err != nil {
			log.WithField("queue", name).Fatalf("create queue: %v", err)
		}
		log.WithField("queue", name).Debug("queue ready")
	}

	log.Info("storage init complete")
}
