// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package clnrpc

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const (
	// RPCFileName is the socket file the daemon creates in its data directory.
	RPCFileName = "lightning-rpc"

	defaultDirName = ".lightning"
)

// Target is where the daemon listens: a unix socket path or a TCP host/port.
// A Target never changes for the lifetime of a client.
type Target struct {
	path string
	host string
	port int
}

// DefaultSocketDir returns ~/.lightning.
func DefaultSocketDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return string(filepath.Separator) + defaultDirName
	}
	return filepath.Join(home, defaultDirName)
}

// ParseTarget picks TCP when port is an integer in [1,65535] and treats
// rpcPath as the host. Anything else falls back to a socket target at
// rpcPath. An empty rpcPath means DefaultSocketDir.
func ParseTarget(rpcPath, rpcPort string) (Target, error) {
	if rpcPath == "" {
		rpcPath = DefaultSocketDir()
	}
	if rpcPort != "" {
		if port, err := strconv.Atoi(strings.TrimSpace(rpcPort)); err == nil && port >= 1 && port <= 65535 {
			return TCPTarget(rpcPath, port)
		}
	}
	return SocketTarget(rpcPath)
}

// SocketTarget canonicalizes path: it must be absolute, and RPCFileName is
// appended unless path already ends with it.
func SocketTarget(path string) (Target, error) {
	if !filepath.IsAbs(path) {
		return Target{}, fmt.Errorf("%w: %q", ErrRelativePath, path)
	}
	if filepath.Base(path) != RPCFileName {
		path = filepath.Join(path, RPCFileName)
	}
	return Target{path: filepath.Clean(path)}, nil
}

// TCPTarget returns a target for host:port.
func TCPTarget(host string, port int) (Target, error) {
	if port < 1 || port > 65535 {
		return Target{}, fmt.Errorf("%w: port %d out of range", ErrInvalidConfig, port)
	}
	return Target{host: host, port: port}, nil
}

// IsTCP reports whether the target is a host/port pair.
func (t Target) IsTCP() bool {
	return t.port != 0
}

// Network is the net.Dial network for the target.
func (t Target) Network() string {
	if t.IsTCP() {
		return "tcp"
	}
	return "unix"
}

// Address is the net.Dial address for the target.
func (t Target) Address() string {
	if t.IsTCP() {
		return net.JoinHostPort(t.host, strconv.Itoa(t.port))
	}
	return t.path
}

func (t Target) String() string {
	return t.Network() + "://" + t.Address()
}
