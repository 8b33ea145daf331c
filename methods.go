// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package clnrpc

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Methods is the daemon's RPC surface, by canonical name.
var Methods = []string{
	"autocleaninvoice",
	"check",
	"checkmessage",
	"close",
	"connect",
	"createonion",
	"decodepay",
	"delexpiredinvoice",
	"delinvoice",
	"delpay",
	"dev-compact-gossip-store",
	"dev-crash",
	"dev-fail",
	"dev-forget-channel",
	"dev-listaddrs",
	"dev-memdump",
	"dev-memleak",
	"dev-ping",
	"dev-query-scids",
	"dev-reenable-commit",
	"dev-rhash",
	"dev-sign-last-tx",
	"disconnect",
	"feerates",
	"fundchannel",
	"fundchannel_cancel",
	"fundchannel_complete",
	"fundchannel_start",
	"fundpsbt",
	"getinfo",
	"getlog",
	"getroute",
	"help",
	"invoice",
	"keysend",
	"listchannels",
	"listconfigs",
	"listforwards",
	"listfunds",
	"listinvoices",
	"listnodes",
	"listpayments",
	"listpays",
	"listpeers",
	"listsendpays",
	"listtransactions",
	"multifundchannel",
	"multiwithdraw",
	"newaddr",
	"pay",
	"ping",
	"plugin",
	"reserveinputs",
	"sendonion",
	"sendpay",
	"sendpsbt",
	"setchannelfee",
	"signmessage",
	"signpsbt",
	"stop",
	"txdiscard",
	"txprepare",
	"txsend",
	"unreserveinputs",
	"utxopsbt",
	"waitanyinvoice",
	"waitinvoice",
	"waitsendpay",
	"withdraw",
}

// MethodFunc calls one RPC method with positional arguments.
type MethodFunc func(ctx context.Context, args ...interface{}) (json.RawMessage, error)

var hyphenLetter = regexp.MustCompile(`-([a-z])`)

// CamelCase turns a hyphenated method name into its camel-cased entry point
// name: "dev-rhash" becomes "devRhash". Underscores are left alone.
func CamelCase(name string) string {
	return hyphenLetter.ReplaceAllStringFunc(name, func(m string) string {
		return strings.ToUpper(m[1:])
	})
}

func (c *Client) buildMethods() map[string]MethodFunc {
	table := make(map[string]MethodFunc, len(Methods))
	for _, name := range Methods {
		method := name
		table[CamelCase(method)] = func(ctx context.Context, args ...interface{}) (json.RawMessage, error) {
			return c.CallRaw(ctx, method, args...)
		}
	}
	return table
}

// Method looks up the entry point for a camel-cased method name.
func (c *Client) Method(name string) (MethodFunc, bool) {
	fn, ok := c.methods[name]
	return fn, ok
}

// Invoke calls the entry point for a camel-cased method name.
func (c *Client) Invoke(ctx context.Context, name string, args ...interface{}) (json.RawMessage, error) {
	fn, ok := c.Method(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownMethod, name)
	}
	return fn(ctx, args...)
}

// MethodNames returns the camel-cased entry point names, sorted.
func (c *Client) MethodNames() []string {
	names := make([]string, 0, len(c.methods))
	for name := range c.methods {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetInfo returns the daemon's node summary.
func (c *Client) GetInfo(ctx context.Context) (json.RawMessage, error) {
	return c.CallRaw(ctx, "getinfo")
}

// ListPeers returns connected peers and their channels.
func (c *Client) ListPeers(ctx context.Context, args ...interface{}) (json.RawMessage, error) {
	return c.CallRaw(ctx, "listpeers", args...)
}

// ListFunds returns on-chain outputs and channel balances.
func (c *Client) ListFunds(ctx context.Context) (json.RawMessage, error) {
	return c.CallRaw(ctx, "listfunds")
}
