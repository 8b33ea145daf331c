// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package clnrpc

import (
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// DefaultDialTimeout bounds a single connection attempt.
const DefaultDialTimeout = 5 * time.Second

// Dial creates a client for the daemon at rpcPath, or at rpcPath:rpcPort
// over TCP when rpcPort is a valid port number. It starts connecting in the
// background and returns without waiting for the daemon; calls made before
// the connection is up are queued until it is.
func Dial(rpcPath, rpcPort string, opts ...DialOption) (*Client, error) {
	target, err := ParseTarget(rpcPath, rpcPort)
	if err != nil {
		return nil, err
	}
	return NewClient(target, opts...)
}

// DialOption configures client connections
type DialOption func(*dialOptions)

type dialOptions struct {
	codec       Codec
	logger      *zap.Logger
	clock       clock.Clock
	dial        DialFunc
	dialTimeout time.Duration
	backoff     BackoffConfig
	registerer  prometheus.Registerer
	failPending bool
}

func defaultDialOptions() *dialOptions {
	return &dialOptions{
		codec:       defaultCodec,
		logger:      zap.NewNop(),
		clock:       clock.New(),
		dialTimeout: DefaultDialTimeout,
		backoff:     DefaultBackoff,
	}
}

// WithCodec sets a custom codec
func WithCodec(c Codec) DialOption {
	return func(o *dialOptions) { o.codec = c }
}

// WithLogger sets the logger. Requests and responses are traced at debug level.
func WithLogger(l *zap.Logger) DialOption {
	return func(o *dialOptions) { o.logger = l }
}

// WithClock replaces the clock that drives reconnect timers.
func WithClock(c clock.Clock) DialOption {
	return func(o *dialOptions) { o.clock = c }
}

// WithDialer replaces net.Dialer, e.g. to go through a proxy.
func WithDialer(d DialFunc) DialOption {
	return func(o *dialOptions) { o.dial = d }
}

// WithDialTimeout bounds each connection attempt. Zero disables the bound.
func WithDialTimeout(d time.Duration) DialOption {
	return func(o *dialOptions) { o.dialTimeout = d }
}

// WithBackoff sets the reconnect delay policy.
func WithBackoff(b BackoffConfig) DialOption {
	return func(o *dialOptions) { o.backoff = b }
}

// WithRegisterer registers the client's Prometheus collectors with reg.
func WithRegisterer(reg prometheus.Registerer) DialOption {
	return func(o *dialOptions) { o.registerer = reg }
}

// WithFailPending makes every in-flight call fail with ErrDisconnected when
// an established connection drops. Without it such calls keep waiting, and
// are answered only if the daemon replies on a later connection.
func WithFailPending() DialOption {
	return func(o *dialOptions) { o.failPending = true }
}
