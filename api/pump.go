package api

import (
	"time"

	"github.com/bytedance/sonic"
	log "github.com/sirupsen/logrus"

	"kanban-sync/broadcast"
	"kanban-sync/domain"
)

// frameWriter is one outbound transport.
type frameWriter interface {
	WriteFrame(msgType string, payload []byte) error
	Ping() error
}

// pump writes the board snapshot and then every queued change event newer
// than it, until done closes or a write fails. A resync request replaces the
// client's view with a fresh snapshot. replies carries messages meant only for
// this connection and may be nil.
func pump(
	done <-chan struct{},
	client *broadcast.Client,
	store Snapshotter,
	w frameWriter,
	replies <-chan []byte,
	pingInterval time.Duration,
	logger *log.Entry,
) error {
	floor, err := writeSnapshot(store, w)
	if err != nil {
		return err
	}

	var ping <-chan time.Time
	if pingInterval > 0 {
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()
		ping = ticker.C
	}

	for {
		// A pending resync wins over queued events so a client never applies
		// an event past a gap.
		select {
		case <-client.Resync():
			if floor, err = writeSnapshot(store, w); err != nil {
				return err
			}
			logger.WithField("seq", floor).Debug("client resynced")
			continue
		default:
		}

		select {
		case <-done:
			return nil
		case <-client.Done():
			return nil
		case <-client.Resync():
			if floor, err = writeSnapshot(store, w); err != nil {
				return err
			}
			logger.WithField("seq", floor).Debug("client resynced")
		case msg := <-client.Messages():
			if msg.Seq <= floor {
				continue
			}
			if err := w.WriteFrame(msg.Type, msg.Payload); err != nil {
				return err
			}
		case reply := <-replies:
			if err := w.WriteFrame(domain.ErrorEvent, reply); err != nil {
				return err
			}
		case <-ping:
			if err := w.Ping(); err != nil {
				return err
			}
		}
	}
}

func writeSnapshot(store Snapshotter, w frameWriter) (uint64, error) {
	board := store.Snapshot()
	payload, err := sonic.Marshal(domain.SnapshotMessage{Type: domain.BoardInit, Board: board})
	if err != nil {
		return 0, err
	}
	if err := w.WriteFrame(domain.BoardInit, payload); err != nil {
		return 0, err
	}
	return board.Seq, nil
}
