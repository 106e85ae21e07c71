package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"chorus/pkg/config"
	"chorus/pkg/eventlog"
	"chorus/pkg/master"
	"chorus/pkg/transport"
	"chorus/pkg/web"

	"github.com/spf13/cobra"
)

// newRunCmd creates the "chorus run" subcommand: the master process itself.
func newRunCmd() *cobra.Command {
	var (
		configPath string
		address    string
		channel    string
		verbose    int
		local      bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the farm master",
		Long: `Starts the master: connects to the configured server, waits for pokes,
and provisions one music bot per requesting channel. Flags override the
config file. Runs in the foreground; SIGINT/SIGTERM shut the farm down.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			paths, err := ResolvePaths()
			if err != nil {
				return fmt.Errorf("resolve paths: %w", err)
			}
			if configPath == "" {
				configPath = paths.ConfigPath
			}

			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			cfg = cfg.Merge(config.Overrides{
				Address: address,
				Channel: channel,
				Verbose: verbose,
				Local:   local,
			})
			if err := cfg.Validate(); err != nil {
				return err
			}

			return runMaster(cmd.Context(), cmd.OutOrStdout(), paths, cfg)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "config file (default $CHORUS_HOME/config.toml)")
	cmd.Flags().StringVarP(&address, "address", "a", "", "server address (overrides config)")
	cmd.Flags().StringVar(&channel, "channel", "", "home channel for the master (overrides config)")
	cmd.Flags().CountVarP(&verbose, "verbose", "v", "protocol tracing, repeat up to -vvv (overrides config)")
	cmd.Flags().BoolVar(&local, "local", false, "run against an in-process server, no network")
	return cmd
}

// runMaster wires the transport, event log, status server, and dispatcher
// together and blocks until shutdown.
func runMaster(parent context.Context, out io.Writer, paths *Paths, cfg config.File) error {
	if err := ensureHome(paths); err != nil {
		return err
	}

	// The master's own identity is separate from the worker pool. Generate
	// an ephemeral one when the config does not pin it.
	masterID := cfg.ID
	if masterID == nil {
		generated, err := config.GenerateRoster(1)
		if err != nil {
			return err
		}
		masterID = &generated[0]
	}

	dialer, err := selectDialer(cfg)
	if err != nil {
		return err
	}

	log, err := eventlog.Open(paths.EventLogPath)
	if err != nil {
		return err
	}
	defer func() { _ = log.Close() }()

	ctx, cleanup := SetupSignalHandler(parent, paths.PIDPath)
	defer cleanup()
	if err := WritePIDFile(paths.PIDPath, os.Getpid()); err != nil {
		return err
	}

	conn, err := dialer.Dial(ctx, transport.ConnectOptions{
		Address:  cfg.Address,
		Name:     cfg.MasterName,
		Channel:  cfg.Channel,
		Verbose:  cfg.Verbose,
		Identity: *masterID,
	})
	if err != nil {
		return fmt.Errorf("connect master: %w", err)
	}

	m := master.New(master.Config{
		Name:       cfg.MasterName,
		Address:    cfg.Address,
		Channel:    cfg.Channel,
		Verbose:    cfg.Verbose,
		Names:      cfg.Names,
		Identities: cfg.IDs,
	}, conn, dialer, log)

	if cfg.WebEnable {
		srv := web.New(cfg.BindAddress, m)
		go func() {
			if err := srv.Run(ctx); err != nil {
				fmt.Fprintf(os.Stderr, "status server: %v\n", err)
			}
		}()
	}

	fmt.Fprintf(out, "chorus master %q up (run %s, %d names, %d identities)\n",
		cfg.MasterName, m.RunID(), len(cfg.Names), len(cfg.IDs))

	if err := m.Run(ctx); err != nil {
		if errors.Is(err, master.ErrConnectionLost) {
			// Crash-and-restart: the supervisor brings us back up.
			return fmt.Errorf("connection lost, exiting for supervisor restart: %w", err)
		}
		return fmt.Errorf("master: %w", err)
	}
	fmt.Fprintln(out, "farm shut down")
	return nil
}

// selectDialer picks the transport driver. This build ships the in-process
// local driver; the network voice-protocol client is an external component.
func selectDialer(cfg config.File) (transport.Dialer, error) {
	if cfg.Local {
		return transport.NewLocalServer(), nil
	}
	return nil, fmt.Errorf("no transport driver for address %q: this build supports --local only", cfg.Address)
}
