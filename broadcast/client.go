package broadcast

import (
	"sync"

	"github.com/google/uuid"
)

// Message is an encoded change event ready to be written to a connection.
type Message struct {
	Seq     uint64
	Type    string
	Payload []byte
}

// Client is one registered connection. The hub writes into its queue and the
// owning gateway drains it.
type Client struct {
	ID         string
	RemoteAddr string

	queue  chan Message
	resync chan struct{}

	closeOnce sync.Once
	done      chan struct{}
}

// NewClient creates a client with an outbound queue of the given size.
func NewClient(remoteAddr string, queueSize int) *Client {
	if queueSize <= 0 {
		queueSize = 1
	}
	return &Client{
		ID:         uuid.NewString(),
		RemoteAddr: remoteAddr,
		queue:      make(chan Message, queueSize),
		resync:     make(chan struct{}, 1),
		done:       make(chan struct{}),
	}
}

// Messages returns the queue of events waiting to be written.
func (c *Client) Messages() <-chan Message { return c.queue }

// Resync fires when the client should receive a fresh snapshot.
func (c *Client) Resync() <-chan struct{} { return c.resync }

// Done is closed once the client has been closed.
func (c *Client) Done() <-chan struct{} { return c.done }

// RequestResync asks the writer to send a new snapshot. Repeated requests
// before the writer reacts collapse into one.
func (c *Client) RequestResync() {
	select {
	case c.resync <- struct{}{}:
	default:
	}
}

// Close marks the client as gone. It is safe to call more than once.
func (c *Client) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// offer hands msg to the client without blocking.
func (c *Client) offer(msg Message) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.queue <- msg:
		return true
	default:
		return false
	}
}
