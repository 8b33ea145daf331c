// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package clnrpc

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/backoff"
	"google.golang.org/grpc/connectivity"
)

func scheduledDelays(t *testing.T, c *Client) <-chan time.Duration {
	t.Helper()
	ch := make(chan time.Duration, 64)
	require.NoError(t, c.OnReconnectScheduled(func(d time.Duration) { ch <- d }))
	return ch
}

func nextDelay(t *testing.T, ch <-chan time.Duration) time.Duration {
	t.Helper()
	select {
	case d := <-ch:
		return d
	case <-time.After(waitFor):
		t.Fatal("no reconnect scheduled")
		return 0
	}
}

func TestBackoffSequence(t *testing.T) {
	d := newFakeDaemon()
	d.refuse.Store(true)

	// Subscribe before the first dial can fail.
	d.holdDials()
	c, clk := newTestClient(t, d)
	delays := scheduledDelays(t, c)
	d.release()

	want := []time.Duration{
		500 * time.Millisecond,
		1 * time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
		16 * time.Second,
		16 * time.Second,
	}
	for i, w := range want {
		got := nextDelay(t, delays)
		require.Equal(t, w, got, "failure %d", i+1)
		require.Equal(t, int32(i+1), d.dials.Load())
		clk.Add(got)
	}
}

func TestBackoffResetsAfterConnect(t *testing.T) {
	d := newFakeDaemon()
	d.refuse.Store(true)
	d.holdDials()
	c, clk := newTestClient(t, d)
	delays := scheduledDelays(t, c)
	d.release()

	for i := 0; i < 4; i++ {
		clk.Add(nextDelay(t, delays))
	}
	require.Equal(t, 8*time.Second, nextDelay(t, delays))
	assert.Equal(t, 16*time.Second, c.Backoff())

	d.refuse.Store(false)
	clk.Add(8 * time.Second)
	conn := d.accept(t)
	waitConnected(t, c)
	assert.Equal(t, time.Second, c.Backoff())

	// The daemon goes away: the next attempt waits the reset delay.
	conn.Close()
	assert.Equal(t, time.Second, nextDelay(t, delays))
	assert.Equal(t, 2*time.Second, c.Backoff())
}

func TestReconnectNotBeforeDelay(t *testing.T) {
	d := newFakeDaemon()
	d.refuse.Store(true)
	d.holdDials()
	c, clk := newTestClient(t, d)
	delays := scheduledDelays(t, c)
	d.release()

	require.Equal(t, 500*time.Millisecond, nextDelay(t, delays))
	require.Equal(t, int32(1), d.dials.Load())

	clk.Add(499 * time.Millisecond)
	assert.Never(t, func() bool { return d.dials.Load() > 1 }, 50*time.Millisecond, 5*time.Millisecond)

	clk.Add(time.Millisecond)
	assert.Eventually(t, func() bool { return d.dials.Load() == 2 }, waitFor, 5*time.Millisecond)
}

func TestSecondErrorDoesNotScheduleTwice(t *testing.T) {
	d := newFakeDaemon()
	d.holdDials()
	c, clk := newTestClient(t, d)
	delays := scheduledDelays(t, c)
	errs := make(chan error, 4)
	require.NoError(t, c.OnError(func(err error) { errs <- err }))
	d.release()
	d.accept(t)
	waitConnected(t, c)

	c.ctrl.mu.Lock()
	gen := c.ctrl.epoch
	c.ctrl.mu.Unlock()

	first, second := errors.New("reset by peer"), errors.New("broken pipe")
	c.failed(gen, first)
	c.failed(gen, second)

	assert.Equal(t, time.Second, nextDelay(t, delays))
	select {
	case extra := <-delays:
		t.Fatalf("second timer scheduled with delay %s", extra)
	case <-time.After(50 * time.Millisecond):
	}
	for _, want := range []error{first, second} {
		select {
		case got := <-errs:
			assert.Equal(t, want, got)
		case <-time.After(waitFor):
			t.Fatalf("missing error event %v", want)
		}
	}

	state, cause := c.State()
	assert.Equal(t, StateDisconnected, state)
	assert.Equal(t, first, cause)

	dials := d.dials.Load()
	clk.Add(time.Second)
	d.accept(t)
	waitConnected(t, c)
	assert.Equal(t, dials+1, d.dials.Load())
}

func TestStaleSignalsIgnored(t *testing.T) {
	d := newFakeDaemon()
	c, _ := newTestClient(t, d)
	d.accept(t)
	waitConnected(t, c)

	c.failed(0, errors.New("from a previous attempt"))
	c.connected(0)
	state, _ := c.State()
	assert.Equal(t, StateConnected, state)
}

func TestGateRegeneratedPerEpoch(t *testing.T) {
	d := newFakeDaemon()
	c, clk := newTestClient(t, d)
	conn := d.accept(t)
	waitConnected(t, c)

	first := c.ctrl.ready()
	select {
	case <-first:
	default:
		t.Fatal("gate not released after connect")
	}

	conn.Close()
	require.Eventually(t, func() bool {
		s, _ := c.State()
		return s == StateDisconnected
	}, waitFor, time.Millisecond)

	second := c.ctrl.ready()
	select {
	case <-second:
		t.Fatal("gate still released after disconnect")
	default:
	}

	clk.Add(time.Second)
	d.accept(t)
	waitConnected(t, c)
	select {
	case <-second:
	default:
		t.Fatal("new gate not released after reconnect")
	}
}

func TestStateTransitionsObserved(t *testing.T) {
	d := newFakeDaemon()
	d.holdDials()
	c, clk := newTestClient(t, d)

	type change struct{ from, to State }
	changes := make(chan change, 16)
	require.NoError(t, c.OnStateChange(func(from, to State) { changes <- change{from, to} }))
	var connects atomic.Int32
	require.NoError(t, c.OnConnect(func() { connects.Add(1) }))

	expect := func(from, to State) {
		t.Helper()
		select {
		case got := <-changes:
			assert.Equal(t, change{from, to}, got)
		case <-time.After(waitFor):
			t.Fatalf("missing transition %s -> %s", from, to)
		}
	}

	// Disconnected -> Connecting happened inside NewClient and may or may
	// not reach a handler subscribed afterwards.
	d.release()
	conn := d.accept(t)
	select {
	case got := <-changes:
		if got == (change{StateDisconnected, StateConnecting}) {
			expect(StateConnecting, StateConnected)
		} else {
			assert.Equal(t, change{StateConnecting, StateConnected}, got)
		}
	case <-time.After(waitFor):
		t.Fatal("missing transition connecting -> connected")
	}
	conn.Close()
	expect(StateConnected, StateDisconnected)
	clk.Add(time.Second)
	d.accept(t)
	expect(StateDisconnected, StateConnecting)
	expect(StateConnecting, StateConnected)
	assert.Eventually(t, func() bool { return connects.Load() == 2 }, waitFor, time.Millisecond)
}

func TestTransitionTable(t *testing.T) {
	assert.True(t, canTransition(StateDisconnected, StateConnecting))
	assert.True(t, canTransition(StateConnecting, StateConnected))
	assert.True(t, canTransition(StateConnected, StateDisconnected))
	assert.False(t, canTransition(StateDisconnected, StateConnected))
	assert.False(t, canTransition(StateConnected, StateConnecting))
	assert.False(t, canTransition(StateClosed, StateConnecting))
}

func TestStateConnectivity(t *testing.T) {
	assert.Equal(t, connectivity.Ready, StateConnected.Connectivity())
	assert.Equal(t, connectivity.Connecting, StateConnecting.Connectivity())
	assert.Equal(t, connectivity.TransientFailure, StateDisconnected.Connectivity())
	assert.Equal(t, connectivity.Shutdown, StateClosed.Connectivity())
}

func TestBackoffConfigValidate(t *testing.T) {
	require.NoError(t, DefaultBackoff.validate())

	bad := DefaultBackoff
	bad.Reset = time.Minute
	require.ErrorIs(t, bad.validate(), ErrInvalidConfig)

	bad = BackoffConfig{Config: backoff.Config{BaseDelay: time.Second, Multiplier: 0.5, MaxDelay: time.Minute}, Reset: time.Second}
	require.ErrorIs(t, bad.validate(), ErrInvalidConfig)

	bad = DefaultBackoff
	bad.Jitter = 0.2
	require.ErrorIs(t, bad.validate(), ErrInvalidConfig)

	_, err := NewClient(testTarget(t), WithBackoff(BackoffConfig{}))
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func waitState(t *testing.T, c *Client, want State) {
	t.Helper()
	require.Eventually(t, func() bool {
		s, _ := c.State()
		return s == want
	}, waitFor, time.Millisecond)
}
