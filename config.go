// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package clnrpc

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// ConfigFileName is looked up in the daemon directory and the working directory.
const ConfigFileName = "clnrpc.yaml"

// Config is the file form of the client settings.
type Config struct {
	// RPCFile is the daemon directory or the socket itself.
	RPCFile string `yaml:"rpc-file"`
	// Host and Port select TCP; Port must be a valid port number.
	Host string `yaml:"host"`
	Port string `yaml:"port"`

	DialTimeout             time.Duration `yaml:"dial-timeout"`
	FailPendingOnDisconnect bool          `yaml:"fail-pending-on-disconnect"`
	Backoff                 BackoffFile   `yaml:"backoff"`
	Log                     LogConfig     `yaml:"log"`
}

// BackoffFile is the file form of BackoffConfig.
type BackoffFile struct {
	Base       time.Duration `yaml:"base"`
	Max        time.Duration `yaml:"max"`
	Reset      time.Duration `yaml:"reset"`
	Multiplier float64       `yaml:"multiplier"`
}

// DefaultConfig returns the settings used when no file overrides them.
func DefaultConfig() *Config {
	return &Config{
		RPCFile:     DefaultSocketDir(),
		DialTimeout: DefaultDialTimeout,
		Backoff: BackoffFile{
			Base:       DefaultBackoff.BaseDelay,
			Max:        DefaultBackoff.MaxDelay,
			Reset:      DefaultBackoff.Reset,
			Multiplier: DefaultBackoff.Multiplier,
		},
		Log: LogConfig{Level: "info", Format: "console"},
	}
}

// DefaultConfigPaths returns the daemon-directory file then the
// working-directory file.
func DefaultConfigPaths() []string {
	paths := []string{filepath.Join(DefaultSocketDir(), ConfigFileName)}
	if wd, err := os.Getwd(); err == nil {
		paths = append(paths, filepath.Join(wd, ConfigFileName))
	}
	return paths
}

// LoadConfig applies each existing file in paths over DefaultConfig, so
// later files override earlier ones. Missing files are skipped.
func LoadConfig(paths ...string) (*Config, error) {
	cfg := DefaultConfig()
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		// Unmarshal only overwrites the fields present in the file.
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	return cfg, nil
}

// Target resolves the connection target. A Host with a valid Port selects
// TCP; otherwise RPCFile is used as a socket path.
func (c *Config) Target() (Target, error) {
	if c.Host != "" {
		if t, err := ParseTarget(c.Host, c.Port); err == nil && t.IsTCP() {
			return t, nil
		}
	}
	return ParseTarget(c.RPCFile, "")
}

// BackoffConfig returns the reconnect policy described by the file.
func (c *Config) BackoffConfig() BackoffConfig {
	b := DefaultBackoff
	if c.Backoff.Base > 0 {
		b.BaseDelay = c.Backoff.Base
	}
	if c.Backoff.Max > 0 {
		b.MaxDelay = c.Backoff.Max
	}
	if c.Backoff.Reset > 0 {
		b.Reset = c.Backoff.Reset
	}
	if c.Backoff.Multiplier > 0 {
		b.Multiplier = c.Backoff.Multiplier
	}
	return b
}

// DialOptions translates the file settings into client options.
func (c *Config) DialOptions() []DialOption {
	opts := []DialOption{
		WithDialTimeout(c.DialTimeout),
		WithBackoff(c.BackoffConfig()),
	}
	if c.FailPendingOnDisconnect {
		opts = append(opts, WithFailPending())
	}
	return opts
}
