package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/MKhiriev/go-pos-sync/models"
)

type enqueueOptions struct {
	ID           string
	Operation    string
	Entity       string
	EntityID     string
	Payload      string
	PayloadFile  string
	BaseVersion  string
	Dependencies []string
	Priority     string
}

func newEnqueueCommand(current func() *agent) *cobra.Command {
	opts := &enqueueOptions{}

	cmd := &cobra.Command{
		Use:   "enqueue",
		Short: "Record a local write in the outbox",
		Example: `  go-pos-device enqueue --op update --entity cliente --entity-id 7 \
    --base-version 2026-03-01T10:00:00Z --payload '{"telefono":"555-0101"}'`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			input, err := opts.mutation(cmd.InOrStdin())
			if err != nil {
				return err
			}
			queued, err := current().services.SyncService.Enqueue(cmd.Context(), input)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), queued)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.ID, "id", "", "mutation id (generated when empty)")
	f.StringVar(&opts.Operation, "op", "", "operation (create|update|delete)")
	f.StringVar(&opts.Entity, "entity", "", "entity (cliente|venta)")
	f.StringVar(&opts.EntityID, "entity-id", "", "id of the target record")
	f.StringVar(&opts.Payload, "payload", "", "JSON document with the changed fields")
	f.StringVar(&opts.PayloadFile, "payload-file", "", "read the payload from a file, - for stdin")
	f.StringVar(&opts.BaseVersion, "base-version", "", "server version (RFC 3339) the edit was based on")
	f.StringSliceVar(&opts.Dependencies, "depends-on", nil, "ids of mutations that must apply first")
	f.StringVar(&opts.Priority, "priority", "", "priority (high|medium|low)")
	_ = cmd.MarkFlagRequired("op")
	_ = cmd.MarkFlagRequired("entity")
	_ = cmd.MarkFlagRequired("entity-id")
	cmd.MarkFlagsMutuallyExclusive("payload", "payload-file")

	return cmd
}

// mutation builds the outbox input from the flags. stdin is read when the
// payload file is "-".
func (o *enqueueOptions) mutation(stdin io.Reader) (models.MutationInput, error) {
	input := models.MutationInput{
		ID:           o.ID,
		Operation:    models.Operation(strings.ToLower(o.Operation)),
		Entity:       models.EntityName(strings.ToLower(o.Entity)),
		EntityID:     o.EntityID,
		Dependencies: o.Dependencies,
		Priority:     models.Priority(strings.ToLower(o.Priority)),
	}

	payload := []byte(o.Payload)
	switch o.PayloadFile {
	case "":
	case "-":
		data, err := io.ReadAll(stdin)
		if err != nil {
			return models.MutationInput{}, fmt.Errorf("error reading payload: %w", err)
		}
		payload = data
	default:
		data, err := os.ReadFile(o.PayloadFile)
		if err != nil {
			return models.MutationInput{}, fmt.Errorf("error reading payload: %w", err)
		}
		payload = data
	}
	if len(strings.TrimSpace(string(payload))) > 0 {
		if !json.Valid(payload) {
			return models.MutationInput{}, errors.New("payload is not valid JSON")
		}
		input.Payload = json.RawMessage(payload)
	}

	if o.BaseVersion != "" {
		v, err := time.Parse(time.RFC3339Nano, o.BaseVersion)
		if err != nil {
			return models.MutationInput{}, fmt.Errorf("invalid base version: %w", err)
		}
		input.BaseVersion = &v
	}
	return input, nil
}

func newPushCommand(current func() *agent) *cobra.Command {
	var sessionType string

	cmd := &cobra.Command{
		Use:     "push",
		Aliases: []string{"pull", "sync"},
		Short:   "Send queued mutations and pull server changes in one session",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := current().services.SyncService.Push(cmd.Context(), models.SessionType(sessionType))
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), report)
		},
	}
	cmd.Flags().StringVar(&sessionType, "type", string(models.SessionTypeIncremental), "session type (initial|incremental|full)")

	return cmd
}

func newStatusCommand(current func() *agent) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show outbox counters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := current().services.SyncService.Status(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), status)
		},
	}
}

func newRunCommand(current func() *agent) *cobra.Command {
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Push the outbox periodically until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			job := current().services.SyncJob
			job.Start(ctx, interval)
			<-ctx.Done()
			job.Stop()
			return nil
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", time.Minute, "time between pushes")

	return cmd
}

func newVersionCommand(open agentOpener, opts *rootOptions) *cobra.Command {
	var remote bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			local := models.NewAppBuildInfo(buildVersion, buildDate, buildCommit)
			if !remote {
				return printJSON(cmd.OutOrStdout(), local)
			}

			a, err := open(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer a.close()

			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()
			server, err := a.syncer.Version(ctx)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]models.AppBuildInfo{"device": local, "server": server})
		},
	}
	cmd.Flags().BoolVar(&remote, "remote", false, "also query the server version")

	return cmd
}
