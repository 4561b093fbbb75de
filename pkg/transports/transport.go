// Package transports defines the duplex message transport a recognition
// session runs over. Implementations deliver discrete messages in both
// directions; the session layer owns framing semantics and lifecycle.
package transports

import (
	"context"
	"fmt"
	"net/http"
)

// MessageType distinguishes the two wire framings.
type MessageType int

const (
	// MessageText carries a UTF-8 JSON payload (control and event frames).
	MessageText MessageType = iota + 1
	// MessageBinary carries raw audio bytes.
	MessageBinary
)

// Message is one discrete frame.
type Message struct {
	Type MessageType
	Data []byte
}

// Target is the fully composed upgrade target for one session.
type Target struct {
	URL    string
	Header http.Header
}

// Conn is an open duplex connection.
//
// Send serializes concurrent writers internally and returns only once the
// message has been flushed, so successive calls from one goroutine preserve
// their order on the wire. Receive blocks for the next inbound message; after
// it returns an error the connection is unusable. Close is idempotent and
// unblocks a pending Receive.
type Conn interface {
	Send(msg Message) error
	Receive() (Message, error)
	Close() error
}

// Dialer opens a connection to a target.
type Dialer interface {
	DialContext(ctx context.Context, target Target) (Conn, error)
}

// HandshakeError reports an upgrade attempt the server answered with an HTTP
// response instead of a connection, e.g. a 401 for a rejected signature.
type HandshakeError struct {
	Status int
	Body   string
}

func (e *HandshakeError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("handshake rejected with status %d", e.Status)
	}
	return fmt.Sprintf("handshake rejected with status %d: %s", e.Status, e.Body)
}
