// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package clnrpc

import (
	"sync"
	"time"

	evbus "github.com/asaskevich/EventBus"
)

// Event topics published by a Client.
const (
	EventConnect   = "connect"
	EventError     = "error"
	EventState     = "state"
	EventReconnect = "reconnect"
)

// OnConnect subscribes fn to every successful connect. fn runs on its own
// goroutine, after the connection is already reading, so it may make calls
// on the client.
//
// Each handler sees its events in order and one at a time. A handler that
// is still running when its next event comes due holds back delivery of
// later events, but never the connection itself. Handlers may call any
// Client method, Close included.
func (c *Client) OnConnect(fn func()) error {
	return c.bus.SubscribeAsync(EventConnect, fn, true)
}

// OnError subscribes fn to transport errors. A clean end-of-stream from the
// daemon is not an error and is not reported here. See OnConnect for how
// handlers run.
func (c *Client) OnError(fn func(err error)) error {
	return c.bus.SubscribeAsync(EventError, fn, true)
}

// OnStateChange subscribes fn to every connection state transition, in the
// order they happened.
func (c *Client) OnStateChange(fn func(from, to State)) error {
	return c.bus.SubscribeAsync(EventState, fn, true)
}

// OnReconnectScheduled subscribes fn to reconnect timers being armed.
func (c *Client) OnReconnectScheduled(fn func(delay time.Duration)) error {
	return c.bus.SubscribeAsync(EventReconnect, fn, true)
}

// Unsubscribe removes a handler previously passed to one of the On methods.
func (c *Client) Unsubscribe(topic string, fn interface{}) error {
	return c.bus.Unsubscribe(topic, fn)
}

func newBus() evbus.Bus {
	return evbus.New()
}

type event struct {
	topic string
	args  []interface{}
}

// eventQueue hands events to the bus from a goroutine of its own, so the
// connection and timer goroutines never wait on a subscriber. publish never
// blocks and keeps the order it was called in.
type eventQueue struct {
	bus evbus.Bus

	mu      sync.Mutex
	pending []event
	stopped bool

	wake chan struct{}
	done chan struct{}
}

func newEventQueue(bus evbus.Bus) *eventQueue {
	q := &eventQueue{
		bus:  bus,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go q.run()
	return q
}

func (q *eventQueue) publish(topic string, args ...interface{}) {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return
	}
	q.pending = append(q.pending, event{topic: topic, args: args})
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// stop delivers what is already queued and then ends the queue goroutine.
func (q *eventQueue) stop() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.stopped {
		q.stopped = true
		close(q.done)
	}
}

func (q *eventQueue) run() {
	for {
		select {
		case <-q.wake:
		case <-q.done:
		}

		q.mu.Lock()
		batch := q.pending
		q.pending = nil
		stopped := q.stopped
		q.mu.Unlock()

		for _, ev := range batch {
			q.bus.Publish(ev.topic, ev.args...)
		}
		if stopped {
			return
		}
	}
}
