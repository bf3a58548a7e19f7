package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/MKhiriev/go-pos-sync/internal/adapter"
	"github.com/MKhiriev/go-pos-sync/internal/config"
	"github.com/MKhiriev/go-pos-sync/internal/logger"
	"github.com/MKhiriev/go-pos-sync/internal/service"
	"github.com/MKhiriev/go-pos-sync/internal/store"
)

// agent is what every subcommand runs against.
type agent struct {
	services *service.ClientServices
	syncer   adapter.SyncAdapter
	close    func() error
}

type agentOpener func(ctx context.Context, opts *rootOptions) (*agent, error)

type rootOptions struct {
	LogFile  string
	LogLevel string
}

// newRootCommand builds the command tree. The returned function releases the
// agent opened by the command that ran, if any.
func newRootCommand(open agentOpener) (*cobra.Command, func() error) {
	opts := &rootOptions{}
	var a *agent

	cmd := &cobra.Command{
		Use:           "go-pos-device",
		Short:         "Offline outbox agent of a point of sale",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) (err error) {
			if cmd.Name() == "version" {
				return nil
			}
			a, err = open(cmd.Context(), opts)
			return err
		},
	}

	cmd.PersistentFlags().StringVar(&opts.LogFile, "log-file", "", "append logs to this file instead of stderr")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "info", "log level (debug|info|warn|error)")

	current := func() *agent { return a }
	cmd.AddCommand(newEnqueueCommand(current))
	cmd.AddCommand(newPushCommand(current))
	cmd.AddCommand(newStatusCommand(current))
	cmd.AddCommand(newRunCommand(current))
	cmd.AddCommand(newVersionCommand(open, opts))

	release := func() error {
		if a == nil || a.close == nil {
			return nil
		}
		return a.close()
	}
	return cmd, release
}

// openAgent wires the outbox, the transport and the client services from the
// DEVICE_* environment.
func openAgent(ctx context.Context, opts *rootOptions) (*agent, error) {
	log := logger.NewClientLogger("go-pos-device", opts.LogFile)
	logger.SetLevel(opts.LogLevel)

	cfg, err := config.GetClientConfig()
	if err != nil {
		return nil, err
	}
	if err = cfg.Validate(); err != nil {
		return nil, err
	}

	outbox, err := store.NewOutboxStorage(ctx, cfg.OutboxDSN, log)
	if err != nil {
		return nil, fmt.Errorf("error opening outbox: %w", err)
	}

	syncer, err := adapter.NewHTTPSyncAdapter(*cfg, log)
	if err != nil {
		_ = outbox.Close()
		return nil, err
	}

	return &agent{
		services: service.NewClientServices(outbox, syncer, *cfg),
		syncer:   syncer,
		close:    outbox.Close,
	}, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
