// Package outbox exports committed change events to an external queue in the
// background. It sits behind the broadcast hub as a sink, so a slow or failing
// queue never delays mutations or live clients.
package outbox

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"kanban-sync/domain"
)

// Sink is the destination queue.
type Sink interface {
	EnqueueEvents(ctx context.Context, events []domain.Event) error
}

type record struct {
	ev       domain.Event
	attempt  int
	enqueued time.Time
}

type Outbox struct {
	cfg    Config
	sink   Sink
	logger *log.Logger

	workCh   chan *record
	stopCh   chan struct{}
	workerWG sync.WaitGroup
	retryWG  sync.WaitGroup

	// gate orders sends on workCh against closing it.
	gate    sync.RWMutex
	closing bool

	mu       sync.Mutex
	inflight map[uint64]*record
	resolved map[uint64]struct{}
	nextAck  uint64

	delivered atomic.Uint64
	failed    atomic.Uint64
	dropped   atomic.Uint64
	started   time.Time
}

// New starts an outbox whose watermark begins at lastSeq.
func New(cfg Config, sink Sink, logger *log.Logger, lastSeq uint64) *Outbox {
	if sink == nil {
		panic("sink is required")
	}
	if logger == nil {
		panic("logger is required")
	}
	cfg = cfg.normalized()
	o := &Outbox{
		cfg:      cfg,
		sink:     sink,
		logger:   logger,
		workCh:   make(chan *record, cfg.BufferSize),
		stopCh:   make(chan struct{}),
		inflight: make(map[uint64]*record),
		resolved: make(map[uint64]struct{}),
		nextAck:  lastSeq,
		started:  time.Now().UTC(),
	}
	for i := 0; i < cfg.Workers; i++ {
		o.workerWG.Add(1)
		go o.worker(i)
	}
	logger.Infof("event outbox started, workers: %d, buffer: %d, batch: %d", cfg.Workers, cfg.BufferSize, cfg.BatchSize)
	return o
}

// Deliver hands ev to the export workers without blocking. When the buffer is
// full the event is dropped and counted.
func (o *Outbox) Deliver(ev domain.Event) {
	rec := &record{ev: ev, enqueued: time.Now()}

	o.gate.RLock()
	defer o.gate.RUnlock()
	if o.closing {
		return
	}
	o.mu.Lock()
	o.inflight[ev.Seq] = rec
	o.mu.Unlock()

	select {
	case o.workCh <- rec:
	default:
		o.dropped.Add(1)
		o.resolve(rec)
		o.logger.WithError(domain.ErrDeliveryFailure).WithField("seq", ev.Seq).Warn("event outbox is saturated, dropping export")
	}
}

func (o *Outbox) worker(id int) {
	defer o.workerWG.Done()

	batch := make([]*record, 0, o.cfg.BatchSize)
	timer := time.NewTimer(o.cfg.FlushInterval)
	defer timer.Stop()
	for {
		if len(batch) == 0 {
			rec, ok := <-o.workCh
			if !ok {
				return
			}
			batch = append(batch, rec)
			timer.Reset(o.cfg.FlushInterval)
		}

		open := true
	gather:
		for len(batch) < o.cfg.BatchSize {
			select {
			case rec, ok := <-o.workCh:
				if !ok {
					open = false
					break gather
				}
				batch = append(batch, rec)
			case <-timer.C:
				break gather
			}
		}

		o.flushBatch(batch, id)
		batch = batch[:0]
		if !open {
			return
		}
	}
}

func (o *Outbox) flushBatch(batch []*record, workerID int) {
	if len(batch) == 0 {
		return
	}
	events := make([]domain.Event, len(batch))
	for i, rec := range batch {
		events[i] = rec.ev
	}

	ctx, cancel := context.WithTimeout(context.Background(), o.cfg.EnqueueTimeout)
	err := o.sink.EnqueueEvents(ctx, events)
	cancel()

	if err == nil {
		o.delivered.Add(uint64(len(batch)))
		for _, rec := range batch {
			o.resolve(rec)
		}
		return
	}

	for _, rec := range batch {
		rec.attempt++
		entry := o.logger.WithError(err).WithFields(log.Fields{
			"worker":  workerID,
			"seq":     rec.ev.Seq,
			"attempt": rec.attempt,
		})
		if rec.attempt >= o.cfg.MaxAttempts {
			o.failed.Add(1)
			o.resolve(rec)
			entry.Error("event export failed, giving up")
			continue
		}
		entry.Warn("event export failed, retrying")
		o.scheduleRetry(rec)
	}
}

// resolve retires rec and advances the watermark over every contiguous
// resolved sequence.
func (o *Outbox) resolve(rec *record) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.inflight, rec.ev.Seq)
	o.resolved[rec.ev.Seq] = struct{}{}
	for {
		next := o.nextAck + 1
		if _, ok := o.resolved[next]; !ok {
			return
		}
		delete(o.resolved, next)
		o.nextAck = next
	}
}

func (o *Outbox) scheduleRetry(rec *record) {
	delay := exponentialBackoff(rec.attempt, o.cfg.RetryInitial, o.cfg.RetryMax)
	o.retryWG.Add(1)
	go func() {
		defer o.retryWG.Done()
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-timer.C:
			o.requeue(rec)
		case <-o.stopCh:
			o.failed.Add(1)
			o.resolve(rec)
		}
	}()
}

func (o *Outbox) requeue(rec *record) {
	o.gate.RLock()
	defer o.gate.RUnlock()
	if o.closing {
		o.failed.Add(1)
		o.resolve(rec)
		return
	}
	select {
	case o.workCh <- rec:
	default:
		o.scheduleRetry(rec)
	}
}

// Close stops accepting events, abandons pending retries and waits for the
// workers to flush what is already buffered.
func (o *Outbox) Close() {
	o.gate.Lock()
	if o.closing {
		o.gate.Unlock()
		return
	}
	o.closing = true
	close(o.stopCh)
	o.gate.Unlock()

	o.retryWG.Wait()
	close(o.workCh)
	o.workerWG.Wait()
}

func exponentialBackoff(attempt int, initial, max time.Duration) time.Duration {
	if initial <= 0 {
		initial = time.Second
	}
	if attempt <= 0 {
		return initial
	}
	if max <= 0 {
		max = 10 * time.Second
	}
	backoff := float64(initial) * math.Pow(2, float64(attempt-1))
	if backoff > float64(max) {
		backoff = float64(max)
	}
	jitter := 0.2 * backoff
	return time.Duration(backoff + (rand.Float64()-0.5)*2*jitter)
}

type Stats struct {
	QueueDepth int           `json:"queueDepth"`
	Buffered   int           `json:"buffered"`
	OldestAge  time.Duration `json:"oldestAge"`
	Delivered  uint64        `json:"delivered"`
	Failed     uint64        `json:"failed"`
	Dropped    uint64        `json:"dropped"`
	Watermark  uint64        `json:"watermark"`
	StartedAt  time.Time     `json:"startedAt"`
	DrainRate  float64       `json:"drainRatePerSecond"`
}

func (o *Outbox) Stats() Stats {
	o.mu.Lock()
	depth := len(o.inflight)
	watermark := o.nextAck
	var oldest time.Duration
	now := time.Now()
	for _, rec := range o.inflight {
		if age := now.Sub(rec.enqueued); age > oldest {
			oldest = age
		}
	}
	o.mu.Unlock()

	delivered := o.delivered.Load()
	rps := 0.0
	if elapsed := time.Since(o.started); elapsed > 0 {
		rps = float64(delivered) / elapsed.Seconds()
	}
	return Stats{
		QueueDepth: depth,
		Buffered:   len(o.workCh),
		OldestAge:  oldest,
		Delivered:  delivered,
		Failed:     o.failed.Load(),
		Dropped:    o.dropped.Load(),
		Watermark:  watermark,
		StartedAt:  o.started,
		DrainRate:  rps,
	}
}
