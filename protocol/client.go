package protocol

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/xeipuuv/gojsonschema"

	"github.com/c360/nccheck/errors"
	"github.com/c360/nccheck/eventlog"
	"github.com/c360/nccheck/nc"
	"github.com/c360/nccheck/transport"
)

const (
	defaultResponseTimeout = 5 * time.Second
	maxHandle              = 65535
)

// commandOutcome is what a waiter receives: either a method result or a
// protocol-level failure.
type commandOutcome struct {
	result nc.MethodResult
	err    error
}

type subscriptionOutcome struct {
	oids []int
	err  error
}

// Client correlates commands with responses over a transport connection and
// feeds notifications to the event log. The command path blocks the caller;
// the receive loop never blocks on it.
type Client struct {
	conn    *transport.Conn
	log     *eventlog.Log
	logger  *slog.Logger
	timeout time.Duration
	metrics *Metrics

	schemas map[nc.MessageType]*gojsonschema.Schema

	mu         sync.Mutex
	nextHandle uint16
	pending    map[uint16]chan commandOutcome
	subWaiters []chan subscriptionOutcome

	wg sync.WaitGroup
}

// Options adjusts client behaviour.
type Options struct {
	// ResponseTimeout bounds the wait for a matching command response.
	ResponseTimeout time.Duration
	Logger          *slog.Logger
	// Registerer receives client metrics; nil disables them.
	Registerer prometheus.Registerer
}

// NewClient wraps a connection and starts the receive loop. The event log
// receives every notification observed for the life of the connection.
func NewClient(conn *transport.Conn, log *eventlog.Log, opts Options) (*Client, error) {
	if conn == nil || !conn.Open() {
		return nil, errors.Wrap(errors.ErrNoConnection, "protocol", "NewClient", "attach to transport")
	}
	if opts.ResponseTimeout == 0 {
		opts.ResponseTimeout = defaultResponseTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	schemas, err := compileMessageSchemas()
	if err != nil {
		return nil, errors.Wrap(err, "protocol", "NewClient", "compile message schemas")
	}

	c := &Client{
		conn:    conn,
		log:     log,
		logger:  opts.Logger.With("component", "protocol"),
		timeout: opts.ResponseTimeout,
		metrics: newMetrics(opts.Registerer),
		schemas: schemas,
		pending: make(map[uint16]chan commandOutcome),
	}

	c.wg.Add(1)
	go c.receiveLoop()

	return c, nil
}

// Notifications returns the event log the client appends to.
func (c *Client) Notifications() *eventlog.Log {
	return c.log
}

// Close tears down the connection and waits for the receive loop.
func (c *Client) Close() error {
	err := c.conn.Close()
	c.wg.Wait()
	return err
}

// allocHandle assigns the next command handle, wrapping within 1..65535.
func (c *Client) allocHandle() uint16 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.nextHandle >= maxHandle {
		c.nextHandle = 0
	}
	c.nextHandle++
	return c.nextHandle
}

// Send issues a single command and blocks until the matching response
// arrives, the response timeout elapses, or the connection fails. Error
// method results are returned as values, not errors, so callers can match on
// expected statuses.
func (c *Client) Send(ctx context.Context, oid int, methodID nc.ElementID, arguments map[string]any) (nc.MethodResult, error) {
	handle := c.allocHandle()
	if arguments == nil {
		arguments = map[string]any{}
	}

	msg := nc.CommandMessage{
		MessageType: nc.MessageCommand,
		Commands: []nc.Command{{
			Handle:    handle,
			OID:       oid,
			MethodID:  methodID,
			Arguments: arguments,
		}},
	}

	frame, err := json.Marshal(msg)
	if err != nil {
		return nc.MethodResult{}, errors.Wrap(err, "protocol", "Send", "marshal command")
	}

	ch := make(chan commandOutcome, 1)
	c.mu.Lock()
	c.pending[handle] = ch
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, handle)
		c.mu.Unlock()
	}()

	if err := c.conn.Send(frame); err != nil {
		return nc.MethodResult{}, err
	}
	c.metrics.incCommandsSent()

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	select {
	case outcome := <-ch:
		if outcome.err != nil {
			return nc.MethodResult{}, outcome.err
		}
		return outcome.result, nil
	case <-timer.C:
		c.metrics.incTimeouts()
		return nc.MethodResult{}, errors.New(errors.KindTimeout, "protocol", "Send",
			"no command response for handle %d on oid %d within %s", handle, oid, c.timeout)
	case <-ctx.Done():
		return nc.MethodResult{}, errors.Wrap(ctx.Err(), "protocol", "Send", "wait for response")
	}
}

// Subscribe requests notifications for the given oids and verifies that the
// acknowledged list covers every requested oid.
func (c *Client) Subscribe(ctx context.Context, oids []int) ([]int, error) {
	msg := nc.SubscriptionMessage{
		MessageType:   nc.MessageSubscription,
		Subscriptions: oids,
	}
	frame, err := json.Marshal(msg)
	if err != nil {
		return nil, errors.Wrap(err, "protocol", "Subscribe", "marshal subscription")
	}

	ch := make(chan subscriptionOutcome, 1)
	c.mu.Lock()
	c.subWaiters = append(c.subWaiters, ch)
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		for i, waiter := range c.subWaiters {
			if waiter == ch {
				c.subWaiters = append(c.subWaiters[:i], c.subWaiters[i+1:]...)
				break
			}
		}
		c.mu.Unlock()
	}()

	if err := c.conn.Send(frame); err != nil {
		return nil, err
	}

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	select {
	case outcome := <-ch:
		if outcome.err != nil {
			return nil, outcome.err
		}
		acked := make(map[int]bool, len(outcome.oids))
		for _, oid := range outcome.oids {
			acked[oid] = true
		}
		for _, oid := range oids {
			if !acked[oid] {
				return nil, errors.New(errors.KindProtocolError, "protocol", "Subscribe",
					"subscription response does not acknowledge oid %d", oid)
			}
		}
		return outcome.oids, nil
	case <-timer.C:
		c.metrics.incTimeouts()
		return nil, errors.New(errors.KindTimeout, "protocol", "Subscribe",
			"no subscription response within %s", c.timeout)
	case <-ctx.Done():
		return nil, errors.Wrap(ctx.Err(), "protocol", "Subscribe", "wait for response")
	}
}

// receiveLoop classifies every inbound frame and dispatches it. Notifications
// go straight to the event log; responses wake their waiting sender. The loop
// exits when the transport closes its frame channel.
func (c *Client) receiveLoop() {
	defer c.wg.Done()

	for frame := range c.conn.Frames() {
		mt, err := nc.PeekMessageType(frame)
		if err != nil {
			c.metrics.incProtocolErrors()
			c.failAll(errors.WrapKind(errors.KindProtocolError, err, "protocol", "receiveLoop",
				"classify message"))
			continue
		}

		if err := c.validateFrame(mt, frame); err != nil {
			c.metrics.incSchemaFailures()
			c.failAll(err)
			continue
		}

		switch mt {
		case nc.MessageCommandResponse:
			c.dispatchResponses(frame)
		case nc.MessageNotification:
			c.dispatchNotifications(frame)
		case nc.MessageSubscriptionResponse:
			c.dispatchSubscriptionResponse(frame)
		case nc.MessageError:
			c.dispatchError(frame)
		}
	}

	// Connection gone: all outstanding waiters fail.
	err := c.conn.Err()
	if err == nil {
		err = errors.ErrConnectionClosed
	}
	c.failAll(errors.WrapKind(errors.KindProtocolError, err, "protocol", "receiveLoop",
		"connection terminated"))
}

func (c *Client) dispatchResponses(frame []byte) {
	var msg nc.CommandResponseMessage
	if err := json.Unmarshal(frame, &msg); err != nil {
		c.metrics.incProtocolErrors()
		c.failAll(errors.WrapKind(errors.KindProtocolError, err, "protocol", "receiveLoop",
			"decode command response"))
		return
	}

	for _, response := range msg.Responses {
		c.mu.Lock()
		ch, ok := c.pending[response.Handle]
		if ok {
			delete(c.pending, response.Handle)
		}
		c.mu.Unlock()

		if !ok {
			// Late response after a timeout, or a device defect. Either way
			// nothing is waiting.
			c.logger.Debug("unmatched command response", "handle", response.Handle)
			continue
		}
		c.metrics.incResponsesMatched()
		ch <- commandOutcome{result: response.Result}
	}
}

func (c *Client) dispatchNotifications(frame []byte) {
	var msg nc.NotificationMessage
	if err := json.Unmarshal(frame, &msg); err != nil {
		c.metrics.incProtocolErrors()
		c.logger.Warn("malformed notification message", "error", err)
		return
	}
	c.log.Append(msg.Notifications...)
	c.metrics.incNotifications(len(msg.Notifications))
}

func (c *Client) dispatchSubscriptionResponse(frame []byte) {
	var msg nc.SubscriptionResponseMessage
	if err := json.Unmarshal(frame, &msg); err != nil {
		c.metrics.incProtocolErrors()
		c.failAll(errors.WrapKind(errors.KindProtocolError, err, "protocol", "receiveLoop",
			"decode subscription response"))
		return
	}

	c.mu.Lock()
	var waiter chan subscriptionOutcome
	if len(c.subWaiters) > 0 {
		waiter = c.subWaiters[0]
		c.subWaiters = c.subWaiters[1:]
	}
	c.mu.Unlock()

	if waiter == nil {
		c.logger.Debug("unsolicited subscription response")
		return
	}
	waiter <- subscriptionOutcome{oids: msg.Subscriptions}
}

// dispatchError handles a messageType 5 error, which carries no handle: every
// in-flight command fails with the raw payload surfaced.
func (c *Client) dispatchError(frame []byte) {
	var msg nc.ErrorMessage
	_ = json.Unmarshal(frame, &msg)
	c.metrics.incProtocolErrors()
	c.failAll(errors.New(errors.KindProtocolError, "protocol", "receiveLoop",
		"device reported error status %s: %s (raw: %s)", msg.Status, msg.ErrorMessage, string(frame)))
}

// failAll delivers err to every outstanding command and subscription waiter.
func (c *Client) failAll(err error) {
	c.mu.Lock()
	pending := c.pending
	c.pending = make(map[uint16]chan commandOutcome)
	waiters := c.subWaiters
	c.subWaiters = nil
	c.mu.Unlock()

	for _, ch := range pending {
		ch <- commandOutcome{err: err}
	}
	for _, ch := range waiters {
		ch <- subscriptionOutcome{err: err}
	}
}
