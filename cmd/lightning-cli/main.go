// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// lightning-cli calls one method on a running daemon and prints the result.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/luxfi/clnrpc"
)

type flags struct {
	lightningDir string
	rpcFile      string
	host         string
	port         string
	config       string
	timeout      time.Duration
	logLevel     string
	logFile      string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	f := &flags{}
	cmd := &cobra.Command{
		Use:   "lightning-cli [flags] <method> [params...]",
		Short: "Call a method on a lightning daemon",
		Long: "Call a method on a lightning daemon over its unix socket or TCP.\n" +
			"Each param is sent as JSON when it parses as JSON, otherwise as a string.",
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			err := run(cmd.Context(), f, args[0], parseParams(args[1:]), cmd.OutOrStdout())
			if err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), "error:", err)
			}
			return err
		},
	}

	fs := cmd.Flags()
	fs.StringVar(&f.lightningDir, "lightning-dir", "", "daemon data directory (default ~/.lightning)")
	fs.StringVar(&f.rpcFile, "rpc-file", "", "socket path, absolute or relative to --lightning-dir")
	fs.StringVar(&f.host, "host", "", "daemon host, used with --port")
	fs.StringVar(&f.port, "port", "", "daemon TCP port")
	fs.StringVar(&f.config, "config", "", "config file (default "+clnrpc.ConfigFileName+" in the daemon and working directories)")
	fs.DurationVar(&f.timeout, "timeout", 30*time.Second, "give up after this long")
	fs.StringVar(&f.logLevel, "log-level", "", "log level: debug, info, warn, error")
	fs.StringVar(&f.logFile, "log-file", "", "write logs to a rotating file")
	return cmd
}

// parseParams sends each argument as JSON when it is valid JSON and as a
// string otherwise.
func parseParams(args []string) []interface{} {
	params := make([]interface{}, len(args))
	for i, arg := range args {
		if json.Valid([]byte(arg)) {
			params[i] = json.RawMessage(arg)
		} else {
			params[i] = arg
		}
	}
	return params
}

// loadConfig layers the config files and then the flags.
func loadConfig(f *flags) (*clnrpc.Config, error) {
	paths := clnrpc.DefaultConfigPaths()
	if f.config != "" {
		paths = []string{f.config}
	} else if f.lightningDir != "" {
		paths[0] = filepath.Join(f.lightningDir, clnrpc.ConfigFileName)
	}
	cfg, err := clnrpc.LoadConfig(paths...)
	if err != nil {
		return nil, err
	}

	if f.lightningDir != "" {
		cfg.RPCFile = f.lightningDir
	}
	if f.rpcFile != "" {
		cfg.RPCFile = f.rpcFile
		if !filepath.IsAbs(f.rpcFile) && f.lightningDir != "" {
			cfg.RPCFile = filepath.Join(f.lightningDir, f.rpcFile)
		}
	}
	if f.host != "" {
		cfg.Host = f.host
	}
	if f.port != "" {
		cfg.Port = f.port
		if cfg.Host == "" {
			cfg.Host = "127.0.0.1"
		}
	}
	if f.logLevel != "" {
		cfg.Log.Level = f.logLevel
	}
	if f.logFile != "" {
		cfg.Log.File = f.logFile
	}
	return cfg, nil
}

func run(ctx context.Context, f *flags, method string, params []interface{}, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := loadConfig(f)
	if err != nil {
		return err
	}
	if f.logLevel == "" && f.logFile == "" {
		// Keep stderr quiet unless asked.
		cfg.Log.Level = "error"
	}
	log, err := clnrpc.NewLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck

	target, err := cfg.Target()
	if err != nil {
		return err
	}
	opts := append(cfg.DialOptions(), clnrpc.WithLogger(log), clnrpc.WithFailPending())
	client, err := clnrpc.NewClient(target, opts...)
	if err != nil {
		return err
	}
	defer func() {
		if err := client.Close(); err != nil {
			log.Debug("close", zap.Error(err))
		}
	}()

	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	res, err := client.CallRaw(ctx, method, params...)
	if err != nil {
		if rerr, ok := clnrpc.IsRPCError(err); ok {
			printJSON(out, rerr.Raw)
		}
		return err
	}
	printJSON(out, res)
	return nil
}

func printJSON(out io.Writer, v json.RawMessage) {
	if len(v) == 0 {
		return
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, v, "", "   "); err != nil {
		out.Write(v) //nolint:errcheck
		fmt.Fprintln(out)
		return
	}
	buf.WriteByte('\n')
	buf.WriteTo(out) //nolint:errcheck
}
