// Package subscription relays committed change events over Redis pub/sub so
// processes outside the server can follow the board.
package subscription

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"kanban-sync/domain"
)

const publishTimeout = 5 * time.Second

// Relay publishes change events to a Redis channel from a single goroutine,
// keeping commit order. It is a broadcast sink: Deliver never blocks.
type Relay struct {
	client  *redis.Client
	channel string
	logger  *log.Logger

	events    chan domain.Event
	stop      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup

	published atomic.Uint64
	dropped   atomic.Uint64
}

func NewRelay(client *redis.Client, channel string, buffer int, logger *log.Logger) *Relay {
	if client == nil {
		panic("redis client is required")
	}
	if logger == nil {
		panic("logger is required")
	}
	if buffer <= 0 {
		buffer = 1
	}
	r := &Relay{
		client:  client,
		channel: channel,
		logger:  logger,
		events:  make(chan domain.Event, buffer),
		stop:    make(chan struct{}),
	}
	r.wg.Add(1)
	go r.run()
	return r
}

func (r *Relay) Deliver(ev domain.Event) {
	select {
	case <-r.stop:
		return
	default:
	}
	select {
	case r.events <- ev:
	default:
		r.dropped.Add(1)
		r.logger.WithError(domain.ErrDeliveryFailure).WithFields(log.Fields{
			"channel": r.channel,
			"seq":     ev.Seq,
		}).Warn("relay buffer full, dropping change event")
	}
}

func (r *Relay) run() {
	defer r.wg.Done()
	for {
		select {
		case ev := <-r.events:
			r.publish(ev)
		case <-r.stop:
			for {
				select {
				case ev := <-r.events:
					r.publish(ev)
				default:
					return
				}
			}
		}
	}
}

func (r *Relay) publish(ev domain.Event) {
	payload, err := sonic.Marshal(ev)
	if err != nil {
		r.logger.WithError(err).WithField("seq", ev.Seq).Error("encode relayed event")
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := r.client.Publish(ctx, r.channel, payload).Err(); err != nil {
		r.logger.WithError(err).WithFields(log.Fields{"channel": r.channel, "seq": ev.Seq}).Error("relay publish failed")
		return
	}
	r.published.Add(1)
}

// Close flushes buffered events and stops the relay.
func (r *Relay) Close() {
	r.closeOnce.Do(func() { close(r.stop) })
	r.wg.Wait()
}

// Stats reports how many events were published and dropped.
func (r *Relay) Stats() (published, dropped uint64) {
	return r.published.Load(), r.dropped.Load()
}
