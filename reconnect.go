// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package clnrpc

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
	"google.golang.org/grpc/backoff"
	"google.golang.org/grpc/connectivity"
)

// State is the connection state of a client.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Connectivity maps s onto the gRPC connectivity states, for callers that
// report health in those terms.
func (s State) Connectivity() connectivity.State {
	switch s {
	case StateConnecting:
		return connectivity.Connecting
	case StateConnected:
		return connectivity.Ready
	case StateClosed:
		return connectivity.Shutdown
	default:
		return connectivity.TransientFailure
	}
}

// transitions lists the legal moves of the connection state machine.
var transitions = map[State][]State{
	StateDisconnected: {StateConnecting, StateClosed},
	StateConnecting:   {StateConnected, StateDisconnected, StateClosed},
	StateConnected:    {StateDisconnected, StateClosed},
}

func canTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// BackoffConfig controls the delay between reconnection attempts. The first
// attempt after a fresh start waits BaseDelay; each further failure
// multiplies the delay up to MaxDelay. A successful connect resets the
// delay to Reset. Jitter must be zero: delays never shrink between connects.
type BackoffConfig struct {
	backoff.Config
	Reset time.Duration
}

// DefaultBackoff is 0.5s doubling to 16s, reset to 1s after a connect.
var DefaultBackoff = BackoffConfig{
	Config: backoff.Config{
		BaseDelay:  500 * time.Millisecond,
		Multiplier: 2,
		MaxDelay:   16 * time.Second,
	},
	Reset: time.Second,
}

func (b BackoffConfig) validate() error {
	switch {
	case b.BaseDelay <= 0:
		return fmt.Errorf("%w: backoff base delay must be positive", ErrInvalidConfig)
	case b.MaxDelay < b.BaseDelay:
		return fmt.Errorf("%w: backoff max delay below base delay", ErrInvalidConfig)
	case b.Multiplier < 1:
		return fmt.Errorf("%w: backoff multiplier below 1", ErrInvalidConfig)
	case b.Jitter != 0:
		return fmt.Errorf("%w: backoff jitter is not supported", ErrInvalidConfig)
	case b.Reset < b.BaseDelay || b.Reset > b.MaxDelay:
		return fmt.Errorf("%w: backoff reset delay outside [base, max]", ErrInvalidConfig)
	}
	return nil
}

func (b BackoffConfig) next(d time.Duration) time.Duration {
	n := time.Duration(float64(d) * b.Multiplier)
	if n > b.MaxDelay {
		n = b.MaxDelay
	}
	if n < b.BaseDelay {
		n = b.BaseDelay
	}
	return n
}

// controllerHooks are invoked with the controller lock held, in the order
// the transitions happen, and must not block.
type controllerHooks struct {
	stateChanged func(from, to State)
	connected    func()
	disconnected func(err error)
	failed       func(err error)
	scheduled    func(delay time.Duration)
}

// controller is the reconnection state machine layered on the transport.
// It owns the backoff delay, the single reconnect timer and the connected
// gate that writers wait on.
type controller struct {
	t      *transport
	cfg    BackoffConfig
	clock  clock.Clock
	log    *zap.Logger
	hooks  controllerHooks
	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.Mutex
	state State
	epoch uint64
	cause error
	wait  time.Duration
	timer *clock.Timer

	// gate is closed while connected. A fresh gate is made for every drop
	// so that waiters queued after a disconnect wait for the next connect.
	gate     chan struct{}
	released bool
}

func newController(t *transport, cfg BackoffConfig, clk clock.Clock, log *zap.Logger, hooks controllerHooks) *controller {
	ctx, cancel := context.WithCancel(context.Background())
	return &controller{
		t:      t,
		cfg:    cfg,
		clock:  clk,
		log:    log,
		hooks:  hooks,
		ctx:    ctx,
		cancel: cancel,
		state:  StateDisconnected,
		wait:   cfg.BaseDelay,
		gate:   make(chan struct{}),
	}
}

// setState moves to `to` and reports the change. Must be called with mu
// held.
func (c *controller) setState(to State) {
	from := c.state
	if !canTransition(from, to) {
		panic(fmt.Sprintf("clnrpc: illegal transition %s -> %s", from, to))
	}
	c.state = to
	if c.hooks.stateChanged != nil {
		c.hooks.stateChanged(from, to)
	}
}

// start opens the first connection.
func (c *controller) start() {
	c.mu.Lock()
	c.setState(StateConnecting)
	c.epoch++
	gen := c.epoch
	c.mu.Unlock()

	go c.t.connect(c.ctx, gen)
}

func (c *controller) connected(gen uint64) {
	c.mu.Lock()
	if gen != c.epoch || c.state != StateConnecting {
		c.mu.Unlock()
		return
	}
	c.setState(StateConnected)
	c.cause = nil
	c.wait = c.cfg.Reset
	if !c.released {
		close(c.gate)
		c.released = true
	}
	if c.hooks.connected != nil {
		c.hooks.connected()
	}
	c.mu.Unlock()

	c.log.Info("connected", zap.Stringer("target", c.t.target))
}

// failed handles end-of-stream (err == nil) and errors for attempt gen.
func (c *controller) failed(gen uint64, err error) {
	c.mu.Lock()
	if gen != c.epoch || c.state == StateClosed {
		c.mu.Unlock()
		return
	}

	wasConnected := c.state == StateConnected
	if c.state != StateDisconnected {
		c.setState(StateDisconnected)
		c.cause = err
		if c.released {
			c.gate = make(chan struct{})
			c.released = false
		}
	}
	delay, scheduled := c.scheduleLocked()
	if wasConnected && c.hooks.disconnected != nil {
		c.hooks.disconnected(err)
	}
	if err != nil && c.hooks.failed != nil {
		c.hooks.failed(err)
	}
	if scheduled && c.hooks.scheduled != nil {
		c.hooks.scheduled(delay)
	}
	c.mu.Unlock()

	if err != nil {
		c.log.Warn("connection error, reconnecting", zap.Error(err), zap.Duration("backoff", delay))
	} else {
		c.log.Warn("connection closed, reconnecting", zap.Duration("backoff", delay))
	}
}

// scheduleLocked arms the reconnect timer unless one is already armed.
// It returns the delay in effect and whether a new timer was armed.
func (c *controller) scheduleLocked() (time.Duration, bool) {
	if c.timer != nil {
		return c.wait, false
	}
	delay := c.wait
	c.wait = c.cfg.next(c.wait)
	c.timer = c.clock.AfterFunc(delay, c.fire)
	return delay, true
}

// fire runs when the reconnect timer expires and reconnects in place.
func (c *controller) fire() {
	c.mu.Lock()
	c.timer = nil
	if c.state != StateDisconnected {
		c.mu.Unlock()
		return
	}
	c.setState(StateConnecting)
	c.epoch++
	gen := c.epoch
	c.mu.Unlock()

	c.log.Debug("trying to reconnect", zap.Uint64("attempt", gen))
	c.t.connect(c.ctx, gen)
}

// ready returns the gate for the current connection epoch. It is closed
// once connected.
func (c *controller) ready() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gate
}

func (c *controller) current() (State, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state, c.cause
}

func (c *controller) backoff() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.wait
}

func (c *controller) close() error {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return nil
	}
	c.setState(StateClosed)
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.mu.Unlock()

	c.cancel()
	return c.t.close()
}
