// Package mock provides an in-memory scripted transport for session tests.
// Tests push inbound frames and inspect recorded outbound frames without any
// network dependency.
package mock

import (
	"context"
	"errors"
	"sync"

	"github.com/cloud-rtc/trtc-asr-go/pkg/transports"
)

var errClosed = errors.New("mock: connection closed")

// Dialer hands out a scripted connection and records the dialed target.
type Dialer struct {
	Conn *Conn
	Err  error

	mu     sync.Mutex
	target transports.Target
	calls  int
}

func NewDialer(conn *Conn) *Dialer {
	return &Dialer{Conn: conn}
}

func (d *Dialer) DialContext(_ context.Context, target transports.Target) (transports.Conn, error) {
	d.mu.Lock()
	d.target = target
	d.calls++
	d.mu.Unlock()
	if d.Err != nil {
		return nil, d.Err
	}
	return d.Conn, nil
}

// Target returns the most recently dialed target.
func (d *Dialer) Target() transports.Target {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.target
}

func (d *Dialer) DialCalls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

type item struct {
	msg transports.Message
	err error
}

// Conn is a scripted duplex connection.
type Conn struct {
	inbound   chan item
	closed    chan struct{}
	closeOnce sync.Once

	mu      sync.Mutex
	sent    []transports.Message
	sendErr error

	// OnSend, when set, runs after each recorded send. Tests use it to react
	// to outbound frames, e.g. answering the end signal with a complete frame.
	OnSend func(msg transports.Message)
}

func NewConn() *Conn {
	return &Conn{
		inbound: make(chan item, 64),
		closed:  make(chan struct{}),
	}
}

// Push queues an inbound message.
func (c *Conn) Push(msg transports.Message) {
	c.inbound <- item{msg: msg}
}

// PushText queues an inbound text frame, the shape event frames arrive in.
func (c *Conn) PushText(payload string) {
	c.Push(transports.Message{Type: transports.MessageText, Data: []byte(payload)})
}

// Fail queues a read error, simulating an unexpected connection drop once the
// frames pushed before it have been consumed.
func (c *Conn) Fail(err error) {
	c.inbound <- item{err: err}
}

// SetSendError makes subsequent sends fail with err.
func (c *Conn) SetSendError(err error) {
	c.mu.Lock()
	c.sendErr = err
	c.mu.Unlock()
}

func (c *Conn) Send(msg transports.Message) error {
	c.mu.Lock()
	if c.sendErr != nil {
		err := c.sendErr
		c.mu.Unlock()
		return err
	}
	recorded := transports.Message{Type: msg.Type, Data: append([]byte(nil), msg.Data...)}
	c.sent = append(c.sent, recorded)
	hook := c.OnSend
	c.mu.Unlock()
	if hook != nil {
		hook(recorded)
	}
	return nil
}

func (c *Conn) Receive() (transports.Message, error) {
	// Drain scripted items before honoring close so tests stay deterministic.
	select {
	case it := <-c.inbound:
		return it.msg, it.err
	default:
	}
	select {
	case it := <-c.inbound:
		return it.msg, it.err
	case <-c.closed:
		return transports.Message{}, errClosed
	}
}

func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		close(c.closed)
	})
	return nil
}

// Sent returns a snapshot of the outbound messages recorded so far.
func (c *Conn) Sent() []transports.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]transports.Message, len(c.sent))
	copy(out, c.sent)
	return out
}
