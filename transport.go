// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package clnrpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"
)

const readBufferSize = 32 * 1024

// DialFunc opens a byte-stream connection to the daemon. It has the shape of
// (*net.Dialer).DialContext.
type DialFunc func(ctx context.Context, network, address string) (net.Conn, error)

// transportEvents receives what happens on the wire. gen identifies the
// connection attempt a signal belongs to so stale signals can be ignored.
type transportEvents interface {
	connected(gen uint64)
	failed(gen uint64, err error)
	value(v json.RawMessage)
}

// transport is the single long-lived handle on the daemon connection. Each
// reconnect replaces the net.Conn inside it; at most one conn is live.
type transport struct {
	target      Target
	dial        DialFunc
	dialTimeout time.Duration
	events      transportEvents
	log         *zap.Logger

	mu     sync.Mutex
	conn   net.Conn
	gen    uint64
	closed bool

	writeMu sync.Mutex
}

func newTransport(target Target, dial DialFunc, dialTimeout time.Duration, events transportEvents, log *zap.Logger) *transport {
	if dial == nil {
		var d net.Dialer
		dial = d.DialContext
	}
	return &transport{
		target:      target,
		dial:        dial,
		dialTimeout: dialTimeout,
		events:      events,
		log:         log,
	}
}

// connect dials the target for attempt gen and reports the result through
// events. It blocks for the duration of the dial.
func (t *transport) connect(ctx context.Context, gen uint64) {
	if t.dialTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.dialTimeout)
		defer cancel()
	}

	conn, err := t.dial(ctx, t.target.Network(), t.target.Address())
	if err != nil {
		t.events.failed(gen, fmt.Errorf("dial %s: %w", t.target, err))
		return
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		conn.Close()
		return
	}
	old := t.conn
	t.conn, t.gen = conn, gen
	t.mu.Unlock()
	if old != nil {
		old.Close()
	}

	// connected only flips state and queues events, so reading starts
	// right after the gate opens.
	t.events.connected(gen)
	go t.readLoop(conn, gen)
}

func (t *transport) readLoop(conn net.Conn, gen uint64) {
	demux := NewDemuxer(t.events.value)
	buf := make([]byte, readBufferSize)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			if _, perr := demux.Write(buf[:n]); perr != nil {
				t.log.Warn("discarding desynchronized stream", zap.Error(perr))
				t.drop(conn, gen, perr)
				return
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				err = nil
			}
			t.drop(conn, gen, err)
			return
		}
	}
}

// write sends p on the live connection. A failed write tears the
// connection down before returning.
func (t *transport) write(p []byte) error {
	t.mu.Lock()
	conn, gen := t.conn, t.gen
	closed := t.closed
	t.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if conn == nil {
		return ErrNotConnected
	}

	t.writeMu.Lock()
	_, err := conn.Write(p)
	t.writeMu.Unlock()
	if err != nil {
		t.drop(conn, gen, err)
		return fmt.Errorf("write: %w", err)
	}
	return nil
}

// drop retires conn. Only the first drop of the live conn is reported; a
// nil err means the daemon closed the stream cleanly.
func (t *transport) drop(conn net.Conn, gen uint64, err error) {
	t.mu.Lock()
	current := t.conn == conn && !t.closed
	t.mu.Unlock()
	conn.Close()
	if !current {
		return
	}

	// Report first so the controller closes the gate before writers can
	// observe a nil conn.
	t.events.failed(gen, err)

	t.mu.Lock()
	if t.conn == conn {
		t.conn = nil
	}
	t.mu.Unlock()
}

func (t *transport) close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	conn := t.conn
	t.conn = nil
	t.mu.Unlock()
	if conn != nil {
		return conn.Close()
	}
	return nil
}
