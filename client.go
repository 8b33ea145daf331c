// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package clnrpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	evbus "github.com/asaskevich/EventBus"
	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
)

// Caller is the call surface of a Client. Application code should depend on
// this interface.
type Caller interface {
	// Call invokes method with positional args and decodes the result into
	// reply, which may be nil.
	Call(ctx context.Context, method string, args []interface{}, reply interface{}) error

	// CallRaw invokes method and returns the undecoded result.
	CallRaw(ctx context.Context, method string, args ...interface{}) (json.RawMessage, error)

	// Close closes the connection
	Close() error
}

var _ Caller = (*Client)(nil)

// Client keeps one logical connection to the daemon across restarts and
// correlates responses with the calls that asked for them. It is safe for
// concurrent use.
type Client struct {
	target      Target
	codec       Codec
	log         *zap.Logger
	clock       clock.Clock
	failPending bool

	t        *transport
	ctrl     *controller
	registry *registry
	bus      evbus.Bus
	events   *eventQueue
	metrics  *metrics
	methods  map[string]MethodFunc

	nextID atomic.Uint64

	closeOnce sync.Once
	closing   chan struct{}
}

// NewClient creates a client for target and starts connecting in the
// background.
func NewClient(target Target, opts ...DialOption) (*Client, error) {
	o := defaultDialOptions()
	for _, opt := range opts {
		opt(o)
	}
	if err := o.backoff.validate(); err != nil {
		return nil, err
	}
	m, err := newMetrics(o.registerer)
	if err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}

	log := o.logger.With(zap.Stringer("target", target))
	c := &Client{
		target:      target,
		codec:       o.codec,
		log:         log,
		clock:       o.clock,
		failPending: o.failPending,
		bus:         newBus(),
		metrics:     m,
		closing:     make(chan struct{}),
	}
	c.events = newEventQueue(c.bus)
	c.registry = newRegistry(func(n int) { m.pending.Set(float64(n)) })
	c.methods = c.buildMethods()
	c.t = newTransport(target, o.dial, o.dialTimeout, c, log)
	c.ctrl = newController(c.t, o.backoff, o.clock, log, controllerHooks{
		stateChanged: c.stateChanged,
		connected:    c.onConnected,
		disconnected: c.onDisconnected,
		failed:       c.onFailed,
		scheduled:    c.onScheduled,
	})

	log.Debug("connecting")
	c.ctrl.start()
	return c, nil
}

// Target returns where the client connects.
func (c *Client) Target() Target {
	return c.target
}

// State returns the current connection state and, when disconnected after
// an error, that error.
func (c *Client) State() (State, error) {
	return c.ctrl.current()
}

// Backoff returns the delay the next scheduled reconnect will use.
func (c *Client) Backoff() time.Duration {
	return c.ctrl.backoff()
}

// Pending returns the number of calls awaiting a response.
func (c *Client) Pending() int {
	return c.registry.len()
}

// WaitConnected blocks until the client is connected.
func (c *Client) WaitConnected(ctx context.Context) error {
	select {
	case <-c.closing:
		return ErrClosed
	default:
	}
	select {
	case <-c.ctrl.ready():
		return nil
	case <-c.closing:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) Call(ctx context.Context, method string, args []interface{}, reply interface{}) error {
	resp, err := c.call(ctx, method, args)
	if err != nil {
		return err
	}
	if reply != nil && len(resp) > 0 {
		if err := c.codec.Decode(resp, reply); err != nil {
			return fmt.Errorf("decode reply: %w", err)
		}
	}
	return nil
}

func (c *Client) CallRaw(ctx context.Context, method string, args ...interface{}) (json.RawMessage, error) {
	return c.call(ctx, method, args)
}

func (c *Client) call(ctx context.Context, method string, args []interface{}) (json.RawMessage, error) {
	select {
	case <-c.closing:
		return nil, ErrClosed
	default:
	}

	if args == nil {
		args = []interface{}{}
	}
	id := strconv.FormatUint(c.nextID.Add(1), 10)
	payload, err := c.codec.Encode(&request{Method: method, Params: args, ID: id})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	c.log.Debug("-->", zap.String("id", id), zap.String("method", method), zap.Any("params", args))

	p := &pendingCall{id: id, method: method, params: args, createdAt: c.clock.Now()}
	res, err := c.roundTrip(ctx, p, payload)
	c.metrics.observeCall(method, err)
	return res, err
}

// roundTrip waits for the connection, writes payload and waits for the
// matching response. A write lost to a dropped connection is repeated under
// the same id once the next connection is up.
func (c *Client) roundTrip(ctx context.Context, p *pendingCall, payload []byte) (json.RawMessage, error) {
	var done <-chan outcome
	for {
		select {
		case <-c.ctrl.ready():
		case o := <-done:
			return o.result, o.err
		case <-c.closing:
			c.registry.cancel(p.id)
			return nil, ErrClosed
		case <-ctx.Done():
			c.registry.cancel(p.id)
			return nil, ctx.Err()
		}

		if done == nil {
			var err error
			if done, err = c.registry.register(p); err != nil {
				return nil, err
			}
		}

		err := c.t.write(payload)
		if err == nil {
			break
		}
		if errors.Is(err, ErrClosed) {
			c.registry.cancel(p.id)
			return nil, ErrClosed
		}
		c.log.Debug("write failed, waiting for reconnect", zap.String("id", p.id), zap.Error(err))
	}

	select {
	case o := <-done:
		return o.result, o.err
	case <-c.closing:
		c.registry.cancel(p.id)
		return nil, ErrClosed
	case <-ctx.Done():
		c.registry.cancel(p.id)
		return nil, ctx.Err()
	}
}

// Close stops reconnecting, closes the connection and fails every pending
// call with ErrClosed.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closing)
		err = c.ctrl.close()
		c.events.stop()
		if n := c.registry.failAll(ErrClosed); n > 0 {
			c.log.Debug("failed pending calls on close", zap.Int("count", n))
		}
	})
	return err
}

// value routes a top-level value from the stream to its pending call.
func (c *Client) value(v json.RawMessage) {
	var resp response
	if err := json.Unmarshal(v, &resp); err != nil {
		c.log.Debug("dropping value that is not a response", zap.ByteString("value", v))
		c.metrics.dropped.Inc()
		return
	}
	id, ok := resp.responseID()
	if !ok {
		c.log.Debug("dropping response without id", zap.ByteString("value", v))
		c.metrics.dropped.Inc()
		return
	}
	p, ok := c.registry.resolve(id, &resp)
	if !ok {
		c.log.Debug("dropping response with no pending call", zap.String("id", id))
		c.metrics.dropped.Inc()
		return
	}
	if ce := c.log.Check(zap.DebugLevel, "<--"); ce != nil {
		body := resp.Result
		if !isNull(resp.Error) {
			body = resp.Error
		}
		ce.Write(
			zap.String("id", id),
			zap.String("method", p.method),
			zap.Duration("elapsed", c.clock.Since(p.createdAt)),
			zap.ByteString("body", body),
		)
	}
}

// transportEvents

func (c *Client) connected(gen uint64) {
	c.ctrl.connected(gen)
}

func (c *Client) failed(gen uint64, err error) {
	c.ctrl.failed(gen, err)
}

// controller hooks, run under the controller lock

func (c *Client) stateChanged(from, to State) {
	c.metrics.observeState(from, to)
	c.events.publish(EventState, from, to)
}

func (c *Client) onConnected() {
	c.events.publish(EventConnect)
}

func (c *Client) onDisconnected(err error) {
	reason := "closed"
	if err != nil {
		reason = "error"
	}
	c.metrics.disconnects.WithLabelValues(reason).Inc()
	if !c.failPending {
		return
	}
	if n := c.registry.failAll(ErrDisconnected); n > 0 {
		c.log.Warn("failed pending calls on disconnect", zap.Int("count", n))
	}
}

func (c *Client) onFailed(err error) {
	c.events.publish(EventError, err)
}

func (c *Client) onScheduled(delay time.Duration) {
	c.metrics.reconnects.Inc()
	c.metrics.backoff.Set(delay.Seconds())
	c.events.publish(EventReconnect, delay)
}
