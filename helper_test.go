// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package clnrpc

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"
)

const waitFor = 2 * time.Second

// fakeDaemon hands out in-memory connections. Each successful dial pushes
// the daemon end of a net.Pipe onto conns.
type fakeDaemon struct {
	conns  chan net.Conn
	refuse atomic.Bool
	dials  atomic.Int32
	hold   chan struct{}

	// failWrite makes the next client write on a fresh connection fail.
	failWrite atomic.Bool
}

// flakyConn fails one Write when its daemon asks for it.
type flakyConn struct {
	net.Conn
	fail *atomic.Bool
}

func (c *flakyConn) Write(p []byte) (int, error) {
	if c.fail.CompareAndSwap(true, false) {
		c.Conn.Close()
		return 0, errors.New("broken pipe")
	}
	return c.Conn.Write(p)
}

func newFakeDaemon() *fakeDaemon {
	return &fakeDaemon{conns: make(chan net.Conn, 16)}
}

// holdDials makes dials block until release, so a test can subscribe to
// events before the first attempt resolves. Call it before NewClient.
func (d *fakeDaemon) holdDials() {
	d.hold = make(chan struct{})
}

func (d *fakeDaemon) release() {
	close(d.hold)
}

func (d *fakeDaemon) dial(ctx context.Context, network, address string) (net.Conn, error) {
	if d.hold != nil {
		select {
		case <-d.hold:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	d.dials.Add(1)
	if d.refuse.Load() {
		return nil, errors.New("connection refused")
	}
	client, server := net.Pipe()
	d.conns <- server
	return &flakyConn{Conn: client, fail: &d.failWrite}, nil
}

func (d *fakeDaemon) accept(t *testing.T) *daemonConn {
	t.Helper()
	select {
	case conn := <-d.conns:
		t.Cleanup(func() { conn.Close() })
		return &daemonConn{Conn: conn, dec: json.NewDecoder(conn)}
	case <-time.After(waitFor):
		t.Fatal("no connection from client")
		return nil
	}
}

type daemonConn struct {
	net.Conn
	dec *json.Decoder
}

type wireRequest struct {
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
	ID     string            `json:"id"`
}

func (c *daemonConn) readRequest(t *testing.T) wireRequest {
	t.Helper()
	var req wireRequest
	require.NoError(t, c.dec.Decode(&req))
	return req
}

func (c *daemonConn) send(t *testing.T, s string) {
	t.Helper()
	_, err := c.Write([]byte(s))
	require.NoError(t, err)
}

// serveEcho answers every request with its own params as the result.
func serveEcho(conn net.Conn) {
	dec := json.NewDecoder(conn)
	enc := json.NewEncoder(conn)
	for {
		var req wireRequest
		if err := dec.Decode(&req); err != nil {
			return
		}
		resp := map[string]interface{}{"id": req.ID, "result": req.Params}
		if err := enc.Encode(resp); err != nil {
			return
		}
	}
}

func testTarget(t *testing.T) Target {
	t.Helper()
	target, err := SocketTarget("/tmp/clnrpc-test")
	require.NoError(t, err)
	return target
}

// newTestClient builds a client over d with a mock clock.
func newTestClient(t *testing.T, d *fakeDaemon, opts ...DialOption) (*Client, *clock.Mock) {
	t.Helper()
	clk := clock.NewMock()
	opts = append([]DialOption{WithClock(clk), WithDialer(d.dial)}, opts...)
	c, err := NewClient(testTarget(t), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c, clk
}

type callResult struct {
	res json.RawMessage
	err error
}

func goCall(c *Client, method string, args ...interface{}) <-chan callResult {
	ch := make(chan callResult, 1)
	go func() {
		res, err := c.CallRaw(context.Background(), method, args...)
		ch <- callResult{res, err}
	}()
	return ch
}

func waitResult(t *testing.T, ch <-chan callResult) callResult {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(waitFor):
		t.Fatal("call did not complete")
		return callResult{}
	}
}

func waitConnected(t *testing.T, c *Client) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	require.NoError(t, c.WaitConnected(ctx))
}
