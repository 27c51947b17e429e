// Package main provides the CLI entry point for the echoprobe ICMP prober.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/probeworks/echoprobe/internal/config"
	"github.com/probeworks/echoprobe/internal/health"
	"github.com/probeworks/echoprobe/internal/logging"
	"github.com/probeworks/echoprobe/internal/probe"
	"github.com/probeworks/echoprobe/internal/resolve"
)

var (
	// Version is set at build time
	Version = "dev"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "echoprobe",
		Short: "echoprobe - ICMP echo probing engine",
		Long: `echoprobe sends ICMP echo requests to a host and reports the
replies as they arrive.

It resolves the target, opens an ICMP socket (datagram by default,
raw with --privileged), and probes on a fixed interval until
interrupted or until the requested count completes.`,
		Version: Version,
	}

	rootCmd.AddCommand(pingCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func pingCmd() *cobra.Command {
	var (
		configPath    string
		forceIPv4     bool
		forceIPv6     bool
		interval      time.Duration
		timeout       time.Duration
		count         int
		payloadSize   int
		privileged    bool
		logLevel      string
		logFormat     string
		healthAddress string
	)

	cmd := &cobra.Command{
		Use:   "ping <host>",
		Short: "Probe a host with ICMP echo requests",
		Long:  "Resolve the host and send periodic ICMP echo requests, printing each reply.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			host := args[0]

			cfg := config.Default()
			if configPath != "" {
				loaded, err := config.Load(configPath)
				if err != nil {
					return fmt.Errorf("failed to load config: %w", err)
				}
				cfg = loaded
			}

			// Flags override the config file.
			flags := cmd.Flags()
			if flags.Changed("interval") {
				cfg.Probe.Interval = interval
			}
			if flags.Changed("timeout") {
				cfg.Probe.Timeout = timeout
			}
			if flags.Changed("size") {
				cfg.Probe.PayloadSize = payloadSize
			}
			if flags.Changed("privileged") {
				cfg.Probe.Privileged = privileged
			}
			if flags.Changed("log-level") {
				cfg.Log.Level = logLevel
			}
			if flags.Changed("log-format") {
				cfg.Log.Format = logFormat
			}
			if flags.Changed("health") {
				cfg.Health.Enabled = healthAddress != ""
				cfg.Health.Address = healthAddress
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			style := cfg.AddressStyle()
			switch {
			case forceIPv4 && forceIPv6:
				return fmt.Errorf("-4 and -6 are mutually exclusive")
			case forceIPv4:
				style = resolve.StyleForceIPv4
			case forceIPv6:
				style = resolve.StyleForceIPv6
			}

			logger := logging.NewLogger(cfg.Log.Level, cfg.Log.Format)

			rep := newReporter(host, count, cfg.Probe.Timeout)
			sess := probe.New(host, rep, probe.Config{
				Interval:     cfg.Probe.Interval,
				Timeout:      cfg.Probe.Timeout,
				PayloadSize:  cfg.Probe.PayloadSize,
				Privileged:   cfg.Probe.Privileged,
				AddressStyle: style,
				Resolver: &resolve.Resolver{
					Timeout: cfg.Probe.ResolveTimeout,
				},
				Logger: logger,
			})
			rep.session = sess

			if cfg.Health.Enabled {
				hs := health.NewServer(health.ServerConfig{
					Address:      cfg.Health.Address,
					ReadTimeout:  cfg.Health.ReadTimeout,
					WriteTimeout: cfg.Health.WriteTimeout,
				}, rep, nil)
				if err := hs.Start(); err != nil {
					return fmt.Errorf("failed to start health server: %w", err)
				}
				defer hs.Stop()
				logger.Info("health server listening", logging.KeyAddress, hs.Address().String())
			}

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

			sess.Start()

			select {
			case <-sigCh:
				fmt.Println()
			case <-rep.done:
			}

			sess.Stop()
			rep.printSummary(os.Stdout)

			if rep.failure() != nil {
				return rep.failure()
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "C", "", "Path to configuration file")
	cmd.Flags().BoolVarP(&forceIPv4, "ipv4", "4", false, "Resolve to an IPv4 address only")
	cmd.Flags().BoolVarP(&forceIPv6, "ipv6", "6", false, "Resolve to an IPv6 address only")
	cmd.Flags().DurationVarP(&interval, "interval", "i", time.Second, "Interval between echo requests")
	cmd.Flags().DurationVarP(&timeout, "timeout", "W", 5*time.Second, "Time to wait for each reply")
	cmd.Flags().IntVarP(&count, "count", "c", 0, "Stop after this many requests (0 = unlimited)")
	cmd.Flags().IntVarP(&payloadSize, "size", "s", probe.DefaultPayloadSize, "Echo payload size in bytes")
	cmd.Flags().BoolVar(&privileged, "privileged", false, "Use raw ICMP sockets (requires elevated privileges)")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	cmd.Flags().StringVar(&logFormat, "log-format", "text", "Log format (text, json)")
	cmd.Flags().StringVar(&healthAddress, "health", "", "Health/metrics HTTP listen address (empty disables)")

	return cmd
}
