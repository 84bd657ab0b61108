// Package transport provides the persistent WebSocket connection to the
// device under test. One connection lives for a whole test run; a dedicated
// read loop drains frames into a channel so callers never block the socket.
package transport

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/c360/nccheck/errors"
)

const defaultHandshakeTimeout = 10 * time.Second

// Conn is a client WebSocket connection carrying raw text frames.
type Conn struct {
	ws     *websocket.Conn
	logger *slog.Logger

	frames chan []byte

	writeMu sync.Mutex

	shutdown     chan struct{}
	shutdownOnce sync.Once
	wg           sync.WaitGroup

	errMu   sync.Mutex
	readErr error
}

// Options adjusts connection behaviour.
type Options struct {
	HandshakeTimeout time.Duration
	// FrameBuffer is the capacity of the inbound frame channel.
	FrameBuffer int
	Logger      *slog.Logger
}

// Dial opens a WebSocket connection to url and starts the read loop.
func Dial(ctx context.Context, url string, opts Options) (*Conn, error) {
	if opts.HandshakeTimeout == 0 {
		opts.HandshakeTimeout = defaultHandshakeTimeout
	}
	if opts.FrameBuffer == 0 {
		opts.FrameBuffer = 256
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	dialer := &websocket.Dialer{
		HandshakeTimeout: opts.HandshakeTimeout,
	}

	ws, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, errors.Wrap(err, "transport", "Dial", "open websocket")
	}

	c := &Conn{
		ws:       ws,
		logger:   opts.Logger.With("component", "transport"),
		frames:   make(chan []byte, opts.FrameBuffer),
		shutdown: make(chan struct{}),
	}

	c.wg.Add(1)
	go c.readLoop()

	return c, nil
}

// Frames returns the inbound frame channel. The channel is closed when the
// connection ends; Err reports why.
func (c *Conn) Frames() <-chan []byte {
	return c.frames
}

// Send writes one text frame. Safe for concurrent use.
func (c *Conn) Send(data []byte) error {
	select {
	case <-c.shutdown:
		return errors.Wrap(errors.ErrConnectionClosed, "transport", "Send", "write frame")
	default:
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		return errors.Wrap(err, "transport", "Send", "write frame")
	}
	return nil
}

// Open reports whether the connection is still usable.
func (c *Conn) Open() bool {
	select {
	case <-c.shutdown:
		return false
	default:
		return true
	}
}

// Err returns the terminal read error, if any. A clean Close returns nil.
func (c *Conn) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.readErr
}

// Close shuts the connection down and waits for the read loop to exit.
func (c *Conn) Close() error {
	c.shutdownOnce.Do(func() {
		close(c.shutdown)
		// Best-effort close handshake before tearing the socket down.
		deadline := time.Now().Add(time.Second)
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		_ = c.ws.Close()
	})
	c.wg.Wait()
	return nil
}

func (c *Conn) readLoop() {
	defer c.wg.Done()
	defer close(c.frames)

	for {
		_, message, err := c.ws.ReadMessage()
		if err != nil {
			select {
			case <-c.shutdown:
				// Expected during Close.
			default:
				c.errMu.Lock()
				c.readErr = err
				c.errMu.Unlock()
				c.logger.Debug("read loop terminated", "error", err)
				c.shutdownOnce.Do(func() {
					close(c.shutdown)
					_ = c.ws.Close()
				})
			}
			return
		}

		select {
		case c.frames <- message:
		case <-c.shutdown:
			return
		}
	}
}
