package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/nerrad567/supermqtt/internal/api"
	"github.com/nerrad567/supermqtt/internal/auth"
	"github.com/nerrad567/supermqtt/internal/infrastructure/config"
	"github.com/nerrad567/supermqtt/internal/infrastructure/database"
	"github.com/nerrad567/supermqtt/internal/infrastructure/mqtt"
	"github.com/nerrad567/supermqtt/internal/journal"
	"github.com/nerrad567/supermqtt/internal/pubsub"
	"github.com/nerrad567/supermqtt/migrations"
)

// newRootCmd assembles the command tree. Output goes to stdout; logs to stderr.
func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	var cfgFile string

	root := &cobra.Command{
		Use:   "supermqtt",
		Short: "supermqtt is a resilient MQTT publish/subscribe client",
		Long: `supermqtt connects to an MQTT 3.1.1 broker on demand, publishes and
subscribes through a fault-isolating client, and records faults to a local
SQLite journal.

Configuration is read from --config, $SUPERMQTT_CONFIG or configs/config.yaml.
When the default file is absent, built-in defaults and SUPERMQTT_* environment
variables apply.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.PersistentFlags().StringVar(&cfgFile, "config", configPath(), "path to the YAML configuration file")

	withConfig := func(cmd *cobra.Command) (*config.Config, error) {
		return loadConfig(cfgFile, cmd.Flags().Changed("config"))
	}

	// withApp loads configuration, wires an app for the duration of fn and
	// tears it down afterwards.
	withApp := func(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
		cfg, err := withConfig(cmd)
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		a, err := newApp(ctx, cfg, stderr)
		if err != nil {
			return err
		}
		defer a.close()
		return fn(ctx, a)
	}

	root.AddCommand(
		newPublishCmd(withApp),
		newSubscribeCmd(withApp),
		newFaultsCmd(withApp),
		newServeCmd(withApp),
		newTokenCmd(withConfig),
		newMigrateCmd(withConfig),
		newVersionCmd(),
	)
	return root
}

type appRunner func(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error

func newPublishCmd(withApp appRunner) *cobra.Command {
	var (
		qos    int
		retain bool
	)
	cmd := &cobra.Command{
		Use:   "publish <topic> <payload>",
		Short: "Publish one message",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				res := a.client.Publish(ctx, args[0], []byte(args[1]), pubsub.WithQoS(qos), pubsub.WithRetain(retain))
				if !res.OK() {
					return fmt.Errorf("publish %s: %s", args[0], res)
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&qos, "qos", 0, "quality of service level (0, 1 or 2)")
	cmd.Flags().BoolVar(&retain, "retain", false, "ask the broker to retain the message")
	return cmd
}

func newSubscribeCmd(withApp appRunner) *cobra.Command {
	var (
		qos   int
		count int
	)
	cmd := &cobra.Command{
		Use:   "subscribe <topic>...",
		Short: "Print messages from one or more topic filters",
		Long: `Subscribe prints each message as "topic payload" on its own line until
interrupted, or until --count messages have been received.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				return subscribe(ctx, a.client, cmd.OutOrStdout(), args, pubsub.QoSFromLevel(qos), count)
			})
		},
	}
	cmd.Flags().IntVar(&qos, "qos", 0, "requested quality of service level (0, 1 or 2)")
	cmd.Flags().IntVar(&count, "count", 0, "exit after this many messages (0 = until interrupted)")
	return cmd
}

func subscribe(ctx context.Context, c *pubsub.Client, out io.Writer, topics []string, qos mqtt.QoS, count int) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		mu       sync.Mutex
		received int
	)
	// One observer for every filter, so a message matching overlapping
	// filters prints and counts once.
	stop := c.OnMessage(pubsub.FilterMessages(topics, func(topic string, payload []byte) error {
		mu.Lock()
		defer mu.Unlock()
		if count > 0 && received >= count {
			return nil
		}
		received++
		if _, err := fmt.Fprintf(out, "%s %s\n", topic, payload); err != nil {
			return err
		}
		if count > 0 && received == count {
			cancel()
		}
		return nil
	}))
	defer stop()

	filters := make([]mqtt.TopicFilter, len(topics))
	for i, t := range topics {
		filters[i] = mqtt.TopicFilter{Topic: t, QoS: qos}
	}
	if res := c.SubscribeFilters(ctx, filters...); !res.OK() {
		return fmt.Errorf("subscribe: %s", res)
	}

	<-ctx.Done()

	unsubCtx, unsubCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer unsubCancel()
	c.Unsubscribe(unsubCtx, topics...)
	return nil
}

func newFaultsCmd(withApp appRunner) *cobra.Command {
	var (
		kind  string
		limit int
	)
	cmd := &cobra.Command{
		Use:   "faults",
		Short: "List journaled faults and disconnects, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				if a.journal == nil {
					return errJournalDisabled
				}
				res, err := a.journal.List(ctx, journal.Filter{Kind: kind, Limit: limit})
				if err != nil {
					return err
				}
				return printEntries(cmd.OutOrStdout(), res.Entries)
			})
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "", "only show entries of this kind (fault or disconnected)")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum number of entries")
	return cmd
}

func printEntries(out io.Writer, entries []journal.Entry) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tKIND\tOPERATION\tMESSAGE")
	for _, e := range entries {
		op := e.Operation
		if op == "" {
			op = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", e.CreatedAt.Local().Format(time.RFC3339), e.Kind, op, e.Message)
	}
	return w.Flush()
}

func newServeCmd(withApp appRunner) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and WebSocket bridge until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				srv, err := api.New(api.Deps{
					Config:  a.cfg.API,
					Logger:  a.log.With("component", "api"),
					Client:  a.client,
					Journal: a.journal,
					Checks:  a.checks(),
					Version: version,
				})
				if err != nil {
					return err
				}
				if err := srv.Start(ctx); err != nil {
					return err
				}
				defer func() {
					if cerr := srv.Close(); cerr != nil {
						a.log.Error("error closing API server", "error", cerr)
					}
				}()

				// Operations connect on demand, so a failed first attempt is
				// not fatal; it has already been logged and journaled.
				a.client.Connect(ctx)

				<-ctx.Done()
				a.log.Info("shutdown signal received")
				return nil
			})
		},
	}
}

func newTokenCmd(withConfig func(*cobra.Command) (*config.Config, error)) *cobra.Command {
	var (
		subject string
		scope   string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for the HTTP bridge",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := withConfig(cmd)
			if err != nil {
				return err
			}
			if cfg.API.JWTSecret == "" {
				return errors.New("api.jwt_secret is not configured")
			}
			if ttl <= 0 {
				ttl = cfg.GetTokenTTL()
			}
			token, err := auth.GenerateToken(subject, auth.Scope(scope), cfg.API.JWTSecret, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "supermqtt-cli", "token subject")
	cmd.Flags().StringVar(&scope, "scope", string(auth.ScopeRead), "token scope (read or write)")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (default api.token_ttl)")
	return cmd
}

// newMigrateCmd groups journal schema maintenance. Other commands migrate
// up automatically; these act on the database without wiring a client.
func newMigrateCmd(withConfig func(*cobra.Command) (*config.Config, error)) *cobra.Command {
	withDB := func(fn func(ctx context.Context, db *database.DB, out io.Writer) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, _ []string) error {
			cfg, err := withConfig(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			db, err := openJournalDB(ctx, cfg)
			if err != nil {
				return err
			}
			defer db.Close() //nolint:errcheck // Read-mostly command; nothing to recover
			return fn(ctx, db, cmd.OutOrStdout())
		}
	}

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Inspect, apply or roll back the journal schema",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "status",
			Short: "List applied and pending migrations",
			Args:  cobra.NoArgs,
			RunE: withDB(func(ctx context.Context, db *database.DB, out io.Writer) error {
				return printMigrationStatus(ctx, db, out)
			}),
		},
		&cobra.Command{
			Use:   "up",
			Short: "Apply pending migrations",
			Args:  cobra.NoArgs,
			RunE: withDB(func(ctx context.Context, db *database.DB, out io.Writer) error {
				if err := db.Migrate(ctx, migrations.FS); err != nil {
					return err
				}
				return printMigrationStatus(ctx, db, out)
			}),
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back the most recently applied migration",
			Args:  cobra.NoArgs,
			RunE: withDB(func(ctx context.Context, db *database.DB, out io.Writer) error {
				if err := db.MigrateDown(ctx, migrations.FS); err != nil {
					return err
				}
				return printMigrationStatus(ctx, db, out)
			}),
		},
	)
	return cmd
}

func printMigrationStatus(ctx context.Context, db *database.DB, out io.Writer) error {
	status, err := db.MigrationStatus(ctx, migrations.FS)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "VERSION\tSTATE\tAPPLIED")
	for _, m := range status.Applied {
		fmt.Fprintf(w, "%s\tapplied\t%s\n", m.Version, m.AppliedAt.Local().Format(time.RFC3339))
	}
	for _, m := range status.Pending {
		fmt.Fprintf(w, "%s\tpending\t-\n", m.Version)
	}
	return w.Flush()
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "supermqtt %s (commit %s, built %s)\n", version, commit, date)
		},
	}
}
