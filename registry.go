// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package clnrpc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// request is the wire envelope. Field order is the order on the wire.
type request struct {
	Method string        `json:"method"`
	Params []interface{} `json:"params"`
	ID     string        `json:"id"`
}

// response is a decoded top-level value from the daemon.
type response struct {
	ID     json.RawMessage `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  json.RawMessage `json:"error"`
}

// responseID returns the correlation id, accepting both "7" and 7.
func (r *response) responseID() (string, bool) {
	if isNull(r.ID) {
		return "", false
	}
	if r.ID[0] == '"' {
		var id string
		if err := json.Unmarshal(r.ID, &id); err != nil {
			return "", false
		}
		return id, true
	}
	return string(r.ID), true
}

func isNull(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) == 0 || bytes.Equal(raw, []byte("null"))
}

type outcome struct {
	result json.RawMessage
	err    error
}

// pendingCall is one in-flight request awaiting its response.
type pendingCall struct {
	id        string
	method    string
	params    []interface{}
	createdAt time.Time

	done chan outcome // buffered; written at most once
}

// registry correlates response ids with the calls waiting on them. Each id
// has at most one subscriber and is resolved at most once.
type registry struct {
	mu      sync.Mutex
	pending map[string]*pendingCall

	onChange func(n int)
}

func newRegistry(onChange func(n int)) *registry {
	if onChange == nil {
		onChange = func(int) {}
	}
	return &registry{
		pending:  make(map[string]*pendingCall),
		onChange: onChange,
	}
}

// register subscribes p to its id and returns the channel its outcome is
// delivered on.
func (r *registry) register(p *pendingCall) (<-chan outcome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.pending[p.id]; ok {
		return nil, fmt.Errorf("clnrpc: id %s already pending", p.id)
	}
	p.done = make(chan outcome, 1)
	r.pending[p.id] = p
	r.onChange(len(r.pending))
	return p.done, nil
}

// resolve delivers resp to the call registered under id and forgets it.
// It reports false when nobody was waiting, in which case resp is dropped.
func (r *registry) resolve(id string, resp *response) (*pendingCall, bool) {
	r.mu.Lock()
	p, ok := r.pending[id]
	if ok {
		delete(r.pending, id)
		r.onChange(len(r.pending))
	}
	r.mu.Unlock()
	if !ok {
		return nil, false
	}

	if !isNull(resp.Error) {
		p.done <- outcome{err: newRPCError(p.method, id, resp.Error)}
	} else {
		p.done <- outcome{result: resp.Result}
	}
	return p, true
}

// cancel withdraws the subscription for id, if still present.
func (r *registry) cancel(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.pending[id]; ok {
		delete(r.pending, id)
		r.onChange(len(r.pending))
	}
}

// failAll rejects every pending call with err and returns how many there were.
func (r *registry) failAll(err error) int {
	r.mu.Lock()
	calls := r.pending
	r.pending = make(map[string]*pendingCall)
	r.onChange(0)
	r.mu.Unlock()

	for _, p := range calls {
		p.done <- outcome{err: err}
	}
	return len(calls)
}

func (r *registry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}
