// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package clnrpc is a client for the JSON-RPC interface of a lightning
// daemon, reached over its unix socket (~/.lightning/lightning-rpc) or a TCP
// port.
//
// # Connection
//
// A Client holds one logical connection for its whole life. It starts
// connecting as soon as it is created and reconnects forever when the daemon
// goes away, waiting 0.5s, 1s, 2s ... up to 16s between attempts. The delay
// drops back to 1s after every successful connect.
//
// Calls made while disconnected wait for the next successful connect and are
// then written exactly once. Use a context deadline to bound how long a call
// may wait; the client never times calls out on its own.
//
// # Usage
//
//	client, err := clnrpc.Dial("/home/satoshi/.lightning", "")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	// Structured call
//	var info struct {
//	    ID      string `json:"id"`
//	    Version string `json:"version"`
//	}
//	err = client.Call(ctx, "getinfo", nil, &info)
//
//	// Raw call
//	res, err := client.CallRaw(ctx, "listinvoices", "label-1")
//
//	// Camel-cased entry points
//	rhash, _ := client.Method("devRhash")
//	res, err = rhash(ctx, preimage)
//
// Errors reported by the daemon come back as *RPCError carrying the code,
// message and data the daemon sent:
//
//	if rerr, ok := clnrpc.IsRPCError(err); ok {
//	    log.Printf("daemon said %d: %s", rerr.Code(), rerr.Message())
//	}
//
// # Events
//
// OnConnect, OnError, OnStateChange and OnReconnectScheduled subscribe to
// what happens on the connection. Events are queued and delivered from a
// goroutine of their own, and each handler runs on its own goroutine, so a
// handler may make calls, subscribe, or Close the client. A handler receives
// its events in order, one at a time; one that is still busy when its next
// event comes due holds back later deliveries but never the connection.
//
// # Wire format
//
// Requests are written as bare JSON objects with no delimiter:
//
//	{"method":"getinfo","params":[],"id":"1"}
//
// The daemon answers with a stream of JSON objects that may be split or
// coalesced arbitrarily by the socket. A Demuxer cuts that stream back into
// values by tracking bracket nesting, and each value is matched to its call
// by id.
//
// # Architecture
//
//   - client.go: Client, Call and response routing
//   - transport.go: the socket, reconnected in place
//   - reconnect.go: connection state machine, backoff and connected gate
//   - demux.go: top-level JSON value splitter
//   - registry.go: pending calls keyed by id
//   - methods.go: the daemon method catalog
//   - events.go, metrics.go, log.go, config.go: observers, Prometheus
//     collectors, zap logging and YAML configuration
package clnrpc
