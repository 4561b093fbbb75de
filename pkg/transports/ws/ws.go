// Package ws implements the transport abstraction over a WebSocket
// connection using gorilla/websocket.
package ws

import (
	"context"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/cloud-rtc/trtc-asr-go/pkg/transports"
)

const (
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultWriteTimeout     = 5 * time.Second
)

// Config tunes the dialer. Zero values fall back to the defaults above.
type Config struct {
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
}

func (c Config) withDefaults() Config {
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
	return c
}

// Dialer opens WebSocket connections to session targets.
type Dialer struct {
	cfg Config
}

func NewDialer(cfg Config) *Dialer {
	return &Dialer{cfg: cfg.withDefaults()}
}

func (d *Dialer) DialContext(ctx context.Context, target transports.Target) (transports.Conn, error) {
	wd := websocket.Dialer{
		HandshakeTimeout: d.cfg.HandshakeTimeout,
		Proxy:            http.ProxyFromEnvironment,
	}
	wsc, resp, err := wd.DialContext(ctx, target.URL, target.Header)
	if err != nil {
		if resp != nil {
			// The server answered the upgrade with a plain HTTP response,
			// typically 401/403 for a rejected signature.
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			resp.Body.Close()
			return nil, &transports.HandshakeError{Status: resp.StatusCode, Body: string(body)}
		}
		return nil, err
	}
	return &conn{ws: wsc, writeTimeout: d.cfg.WriteTimeout}, nil
}

type conn struct {
	ws           *websocket.Conn
	writeTimeout time.Duration

	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

// Send writes one message under the write mutex. WriteMessage returns after
// the frame is flushed, so callers observe strict FIFO ordering.
func (c *conn) Send(msg transports.Message) error {
	mt := websocket.BinaryMessage
	if msg.Type == transports.MessageText {
		mt = websocket.TextMessage
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	return c.ws.WriteMessage(mt, msg.Data)
}

func (c *conn) Receive() (transports.Message, error) {
	mt, data, err := c.ws.ReadMessage()
	if err != nil {
		return transports.Message{}, err
	}
	t := transports.MessageBinary
	if mt == websocket.TextMessage {
		t = transports.MessageText
	}
	return transports.Message{Type: t, Data: data}, nil
}

func (c *conn) Close() error {
	c.closeOnce.Do(func() {
		deadline := time.Now().Add(time.Second)
		c.writeMu.Lock()
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		c.writeMu.Unlock()
		c.closeErr = c.ws.Close()
	})
	return c.closeErr
}
