package broadcast

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/bytedance/sonic"
	log "github.com/sirupsen/logrus"

	"kanban-sync/domain"
)

const defaultMaxPending = 1024

// Sink receives every change event in commit order. Deliver must not block.
type Sink interface {
	Deliver(ev domain.Event)
}

type pendingEvent struct {
	ev  domain.Event
	msg Message
}

// Hub fans committed change events out to every registered client and sink.
// Events may be published concurrently and out of order; they are released
// strictly by sequence number so each recipient observes commit order.
type Hub struct {
	registry   *Registry
	logger     *log.Logger
	sinks      []Sink
	maxPending int

	mu      sync.Mutex
	next    uint64
	pending map[uint64]pendingEvent

	delivered atomic.Uint64
	dropped   atomic.Uint64
}

// NewHub creates a hub that expects the next published event to carry
// lastSeq+1.
func NewHub(registry *Registry, logger *log.Logger, lastSeq uint64, sinks ...Sink) *Hub {
	if logger == nil {
		panic("logger is required")
	}
	return &Hub{
		registry:   registry,
		logger:     logger,
		sinks:      sinks,
		maxPending: defaultMaxPending,
		next:       lastSeq + 1,
		pending:    make(map[uint64]pendingEvent),
	}
}

// Publish queues ev for delivery once every earlier sequence has been delivered.
func (h *Hub) Publish(ev domain.Event) {
	payload, err := sonic.Marshal(ev)
	if err != nil {
		h.logger.WithError(err).WithField("seq", ev.Seq).Error("encode change event")
		return
	}
	pe := pendingEvent{ev: ev, msg: Message{Seq: ev.Seq, Type: ev.Type, Payload: payload}}

	h.mu.Lock()
	defer h.mu.Unlock()

	if ev.Seq < h.next {
		h.logger.WithFields(log.Fields{"seq": ev.Seq, "next": h.next}).Warn("dropping already released change event")
		return
	}
	h.pending[ev.Seq] = pe
	h.releaseLocked()

	if len(h.pending) > h.maxPending {
		h.skipGapLocked()
	}
}

func (h *Hub) releaseLocked() {
	for {
		pe, ok := h.pending[h.next]
		if !ok {
			return
		}
		delete(h.pending, h.next)
		h.dispatchLocked(pe)
		h.next++
	}
}

// skipGapLocked gives up on a sequence that never arrived so later events are
// not held back forever.
func (h *Hub) skipGapLocked() {
	seqs := make([]uint64, 0, len(h.pending))
	for s := range h.pending {
		seqs = append(seqs, s)
	}
	sort.Slice(seqs, func(i, j int) bool { return seqs[i] < seqs[j] })
	h.logger.WithFields(log.Fields{"missing_from": h.next, "resume_at": seqs[0]}).Error("change event gap, resyncing clients")
	h.next = seqs[0]
	h.registry.ForEach(func(c *Client) { c.RequestResync() })
	h.releaseLocked()
}

func (h *Hub) dispatchLocked(pe pendingEvent) {
	h.registry.ForEach(func(c *Client) {
		if c.offer(pe.msg) {
			h.delivered.Add(1)
			return
		}
		select {
		case <-c.Done():
			return
		default:
		}
		h.dropped.Add(1)
		h.logger.WithFields(log.Fields{
			"client": c.ID,
			"remote": c.RemoteAddr,
			"seq":    pe.ev.Seq,
			"type":   pe.ev.Type,
		}).WithError(domain.ErrDeliveryFailure).Warn("client queue full, scheduling resync")
		c.RequestResync()
	})
	for _, s := range h.sinks {
		s.Deliver(pe.ev)
	}
}

// HubStats summarises fan-out activity.
type HubStats struct {
	Clients   int    `json:"clients"`
	NextSeq   uint64 `json:"nextSeq"`
	Pending   int    `json:"pending"`
	Delivered uint64 `json:"delivered"`
	Dropped   uint64 `json:"dropped"`
}

func (h *Hub) Stats() HubStats {
	h.mu.Lock()
	next, pending := h.next, len(h.pending)
	h.mu.Unlock()
	return HubStats{
		Clients:   h.registry.Len(),
		NextSeq:   next,
		Pending:   pending,
		Delivered: h.delivered.Load(),
		Dropped:   h.dropped.Load(),
	}
}
