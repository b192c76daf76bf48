package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/agrolink-core/internal/config"
	"github.com/custodia-labs/agrolink-core/internal/core/domain"
)

type rootOptions struct {
	configPath string
	envFile    string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "agrolink-core",
		Short:         "Offline sync queue and analytics recorder for the AgroLink marketplace",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", config.ConfigPath(), "path to the TOML config file")
	root.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "path to a .env file")

	root.AddCommand(
		newStatusCmd(opts),
		newQueueCmd(opts),
		newDrainCmd(opts),
		newClearCmd(opts),
		newDeadLettersCmd(opts),
		newRequeueCmd(opts),
		newRecordsCmd(opts),
		newExportCmd(opts),
		newImportCmd(opts),
		newEventsCmd(opts),
		newTrackCmd(opts),
		newSessionCmd(opts),
		newCloudCmd(opts),
		newInitCmd(opts),
		newWorkerCmd(opts),
		newServeCmd(opts),
		newTokenCmd(opts),
	)
	return root
}

// withApp wires the services for the duration of fn
func withApp(opts *rootOptions, fn func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx, config.Options{Path: opts.configPath, EnvFile: opts.envFile}, cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		defer a.Close()
		return fn(ctx, a, cmd, args)
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newStatusCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the sync status record",
		Args:  cobra.NoArgs,
		RunE: withApp(opts, func(ctx context.Context, a *app, cmd *cobra.Command, _ []string) error {
			status, err := a.sync.Status(ctx)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), status)
		}),
	}
}

func newQueueCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "queue",
		Short: "List pending mutations in processing order",
		Args:  cobra.NoArgs,
		RunE: withApp(opts, func(ctx context.Context, a *app, cmd *cobra.Command, _ []string) error {
			queue, err := a.sync.Queue(ctx)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), queue)
		}),
	}
}

func newDrainCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "drain",
		Short: "Push every pending mutation to the cloud once",
		Args:  cobra.NoArgs,
		RunE: withApp(opts, func(ctx context.Context, a *app, cmd *cobra.Command, _ []string) error {
			result, err := a.newWorker().RunOnce(ctx)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), result)
		}),
	}
}

func newClearCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Drop every pending mutation",
		Args:  cobra.NoArgs,
		RunE: withApp(opts, func(ctx context.Context, a *app, cmd *cobra.Command, _ []string) error {
			if err := a.sync.Clear(ctx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "sync queue cleared")
			return nil
		}),
	}
}

func newDeadLettersCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "dead-letters",
		Short: "List mutations abandoned after exhausting their retries",
		Args:  cobra.NoArgs,
		RunE: withApp(opts, func(ctx context.Context, a *app, cmd *cobra.Command, _ []string) error {
			items, err := a.sync.DeadLetters(ctx)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), items)
		}),
	}
}

func newRequeueCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "requeue",
		Short: "Move dead letters back to the queue with a fresh retry count",
		Args:  cobra.NoArgs,
		RunE: withApp(opts, func(ctx context.Context, a *app, cmd *cobra.Command, _ []string) error {
			n, err := a.sync.RequeueDeadLetters(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "requeued %d item(s)\n", n)
			return nil
		}),
	}
}

func newRecordsCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "records",
		Short: "Read and write locally stored entities",
	}

	list := &cobra.Command{
		Use:   "list <type>",
		Short: "List records of one entity type",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(opts, func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
			records, err := a.entities.List(ctx, domain.EntityType(args[0]))
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), records)
		}),
	}

	var data string
	save := &cobra.Command{
		Use:   "save <type> [id]",
		Short: "Create or update a record and queue the mutation",
		Args:  cobra.RangeArgs(1, 2),
		RunE: withApp(opts, func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
			if !json.Valid([]byte(data)) {
				return fmt.Errorf("%w: --data must be valid JSON", domain.ErrInvalidInput)
			}
			var id string
			if len(args) == 2 {
				id = args[1]
			}
			record, err := a.entities.Save(ctx, domain.EntityType(args[0]), id, json.RawMessage(data))
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), record)
		}),
	}
	save.Flags().StringVar(&data, "data", "{}", "record body as JSON")

	del := &cobra.Command{
		Use:   "delete <type> <id>",
		Short: "Delete a record and queue the deletion",
		Args:  cobra.ExactArgs(2),
		RunE: withApp(opts, func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
			return a.entities.Delete(ctx, domain.EntityType(args[0]), args[1])
		}),
	}

	counts := &cobra.Command{
		Use:   "counts",
		Short: "Count records per entity type",
		Args:  cobra.NoArgs,
		RunE: withApp(opts, func(ctx context.Context, a *app, cmd *cobra.Command, _ []string) error {
			counts, err := a.entities.Counts(ctx)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), counts)
		}),
	}

	cmd.AddCommand(list, save, del, counts)
	return cmd
}

func newExportCmd(opts *rootOptions) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Dump every entity collection as JSON",
		Args:  cobra.NoArgs,
		RunE: withApp(opts, func(ctx context.Context, a *app, cmd *cobra.Command, _ []string) error {
			export, err := a.data.Export(ctx)
			if err != nil {
				return err
			}
			if out == "" || out == "-" {
				return printJSON(cmd.OutOrStdout(), export)
			}

			f, err := os.OpenFile(out, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
			if err != nil {
				return err
			}
			if err := printJSON(f, export); err != nil {
				f.Close()
				return err
			}
			return f.Close()
		}),
	}
	cmd.Flags().StringVarP(&out, "output", "o", "", "file to write (default: stdout)")
	return cmd
}

func newImportCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Replace entity collections from an export file",
		Long: "Validates the whole file before writing anything. Collections absent\n" +
			"from the file are left untouched. Imported records are not queued for sync.",
		Args: cobra.ExactArgs(1),
		RunE: withApp(opts, func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
			var (
				payload []byte
				err     error
			)
			if args[0] == "-" {
				payload, err = io.ReadAll(cmd.InOrStdin())
			} else {
				payload, err = os.ReadFile(args[0])
			}
			if err != nil {
				return err
			}

			result, err := a.data.Import(ctx, payload)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), result)
		}),
	}
}

func newEventsCmd(opts *rootOptions) *cobra.Command {
	var (
		eventType string
		screen    string
		last      int
	)
	cmd := &cobra.Command{
		Use:   "events",
		Short: "List recorded analytics events",
		Args:  cobra.NoArgs,
		RunE: withApp(opts, func(ctx context.Context, a *app, cmd *cobra.Command, _ []string) error {
			var (
				events []*domain.AnalyticsEvent
				err    error
			)
			switch {
			case eventType != "":
				events, err = a.analytics.EventsByType(ctx, domain.EventType(eventType))
			case screen != "":
				events, err = a.analytics.EventsByScreen(ctx, screen)
			case last > 0:
				events, err = a.analytics.RecentEvents(ctx, last)
			default:
				events, err = a.analytics.Events(ctx)
			}
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), events)
		}),
	}
	cmd.Flags().StringVar(&eventType, "type", "", "only events of this type")
	cmd.Flags().StringVar(&screen, "screen", "", "only events from this screen")
	cmd.Flags().IntVar(&last, "last", 0, "only the trailing n events")
	cmd.MarkFlagsMutuallyExclusive("type", "screen", "last")

	summary := &cobra.Command{
		Use:   "summary",
		Short: "Aggregate the event log",
		Args:  cobra.NoArgs,
		RunE: withApp(opts, func(ctx context.Context, a *app, cmd *cobra.Command, _ []string) error {
			s, err := a.analytics.Summary(ctx)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), s)
		}),
	}

	sessions := &cobra.Command{
		Use:   "sessions",
		Short: "List archived sessions",
		Args:  cobra.NoArgs,
		RunE: withApp(opts, func(ctx context.Context, a *app, cmd *cobra.Command, _ []string) error {
			s, err := a.analytics.Sessions(ctx)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), s)
		}),
	}

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Drop the event log and session history",
		Args:  cobra.NoArgs,
		RunE: withApp(opts, func(ctx context.Context, a *app, cmd *cobra.Command, _ []string) error {
			return a.analytics.Clear(ctx)
		}),
	}

	cmd.AddCommand(summary, sessions, clearCmd)
	return cmd
}

func newTrackCmd(opts *rootOptions) *cobra.Command {
	var (
		screen string
		fields []string
	)
	cmd := &cobra.Command{
		Use:   "track <event-type>",
		Short: "Record an analytics event",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(opts, func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
			data, err := parseFields(fields)
			if err != nil {
				return err
			}
			event, err := a.analytics.TrackEvent(ctx, domain.EventType(args[0]), data, screen)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), event)
		}),
	}
	cmd.Flags().StringVar(&screen, "screen", "", "originating screen")
	cmd.Flags().StringArrayVar(&fields, "field", nil, "event data as key=value (repeatable)")
	return cmd
}

// parseFields turns key=value pairs into event data
func parseFields(fields []string) (map[string]any, error) {
	if len(fields) == 0 {
		return nil, nil
	}
	data := make(map[string]any, len(fields))
	for _, f := range fields {
		k, v, ok := strings.Cut(f, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("%w: field %q is not key=value", domain.ErrInvalidInput, f)
		}
		data[k] = v
	}
	return data, nil
}

func newSessionCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Manage the analytics session",
	}

	var userID string
	start := &cobra.Command{
		Use:   "start",
		Short: "End any active session and start a new one",
		Args:  cobra.NoArgs,
		RunE: withApp(opts, func(ctx context.Context, a *app, cmd *cobra.Command, _ []string) error {
			s, err := a.analytics.StartSession(ctx, userID)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), s)
		}),
	}
	start.Flags().StringVar(&userID, "user", "", "user the session belongs to")

	end := &cobra.Command{
		Use:   "end",
		Short: "End the active session",
		Args:  cobra.NoArgs,
		RunE: withApp(opts, func(ctx context.Context, a *app, cmd *cobra.Command, _ []string) error {
			s, err := a.analytics.EndSession(ctx)
			if err != nil {
				return err
			}
			if s == nil {
				return domain.ErrNoActiveSession
			}
			return printJSON(cmd.OutOrStdout(), s)
		}),
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Show the active session",
		Args:  cobra.NoArgs,
		RunE: withApp(opts, func(ctx context.Context, a *app, cmd *cobra.Command, _ []string) error {
			s := a.analytics.CurrentSession()
			if s == nil {
				return domain.ErrNoActiveSession
			}
			return printJSON(cmd.OutOrStdout(), s)
		}),
	}

	cmd.AddCommand(start, end, show)
	return cmd
}

func newCloudCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cloud",
		Short: "Manage the cloud sync endpoint",
	}

	var cfg domain.CloudSyncConfig
	set := &cobra.Command{
		Use:   "set",
		Short: "Store the endpoint and API key",
		Args:  cobra.NoArgs,
		RunE: withApp(opts, func(ctx context.Context, a *app, cmd *cobra.Command, _ []string) error {
			if cfg.APIKey == "" {
				cfg.APIKey = os.Getenv(config.EnvPrefix + "CLOUD_API_KEY")
			}
			if err := a.cloud.Save(ctx, &cfg); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), cfg.Redacted())
		}),
	}
	set.Flags().StringVar(&cfg.APIURL, "api-url", "", "base URL of the sync API")
	set.Flags().StringVar(&cfg.APIKey, "api-key", "", "API key (default: $AGROLINK_CLOUD_API_KEY)")
	set.Flags().StringVar(&cfg.UserID, "user", "", "user the pushed mutations belong to")

	show := &cobra.Command{
		Use:   "show",
		Short: "Show the stored endpoint with the key redacted",
		Args:  cobra.NoArgs,
		RunE: withApp(opts, func(ctx context.Context, a *app, cmd *cobra.Command, _ []string) error {
			stored, err := a.cloud.Get(ctx)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), stored.Redacted())
		}),
	}

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove the stored endpoint",
		Args:  cobra.NoArgs,
		RunE: withApp(opts, func(ctx context.Context, a *app, cmd *cobra.Command, _ []string) error {
			return a.cloud.Clear(ctx)
		}),
	}

	cmd.AddCommand(set, show, clearCmd)
	return cmd
}

func newInitCmd(opts *rootOptions) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := os.Stat(opts.configPath); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", opts.configPath)
			} else if err != nil && !errors.Is(err, os.ErrNotExist) {
				return err
			}
			if err := config.DefaultConfig().Save(opts.configPath); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "wrote", opts.configPath)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

func newWorkerCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Drain the queue on the configured schedule until interrupted",
		Args:  cobra.NoArgs,
		RunE: withApp(opts, func(ctx context.Context, a *app, cmd *cobra.Command, _ []string) error {
			w := a.newWorker()
			if err := w.Start(ctx); err != nil {
				return err
			}
			a.logger.Info("worker running", "schedule", a.cfg.Sync.Schedule, "backend", a.cfg.Storage.Backend)

			<-ctx.Done()

			a.logger.Info("shutdown signal received, stopping worker")
			w.Stop()
			return nil
		}),
	}
}
