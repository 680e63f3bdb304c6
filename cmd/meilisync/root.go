package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kailas-cloud/meilisync"
	"github.com/kailas-cloud/meilisync/internal/config"
	"github.com/kailas-cloud/meilisync/internal/metrics"
	"github.com/kailas-cloud/meilisync/internal/posts"
	"github.com/kailas-cloud/meilisync/internal/version"
)

type rootOptions struct {
	env        string
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:          "meilisync",
		Short:        "Mirror relational records into Meilisearch indexes.",
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&opts.env, "env", config.GetEnv(), "Environment: local, dev, docker or prod.")
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "Config file (default is config/<env>.yaml).")

	cmd.AddCommand(
		newSyncCmd(opts),
		newClearCmd(opts),
		newMigrateCmd(opts),
		newServeCmd(opts),
		newVersionCmd(),
	)
	return cmd
}

type runFunc func(ctx context.Context, cmd *cobra.Command, args []string, a *app) error

// withApp builds the application, runs fn and releases every resource.
// Without wire only the database is opened.
func withApp(opts *rootOptions, wire bool, fn runFunc) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := newApp(opts.env, opts.configPath)
		if err != nil {
			return err
		}
		defer a.close()

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		if wire {
			if err := a.wire(ctx); err != nil {
				return err
			}
		} else if err := a.openDB(); err != nil {
			return err
		}
		return fn(ctx, cmd, args, a)
	}
}

func newSyncCmd(opts *rootOptions) *cobra.Command {
	var (
		batchSize int
		resume    bool
	)
	cmd := &cobra.Command{
		Use:   "sync <index-or-type>",
		Short: "Push every stored record of a registered type into its index.",
		Long: `
  Reads the table in batches, skips records that are excluded from search
  and adds the rest to the index. Progress is checkpointed after every
  confirmed batch; --resume continues from the last checkpoint.

  Examples:
  meilisync sync posts
  meilisync sync Venue --batch-size 200 --resume
  `,
		Args: cobra.ExactArgs(1),
	}
	cmd.Flags().IntVarP(&batchSize, "batch-size", "b", 0, "Records per batch (default from config).")
	cmd.Flags().BoolVar(&resume, "resume", false, "Resume from the saved checkpoint.")

	cmd.PreRunE = func(*cobra.Command, []string) error {
		if batchSize < 0 {
			return fmt.Errorf("--batch-size must not be negative")
		}
		return nil
	}
	cmd.RunE = withApp(opts, true, func(ctx context.Context, cmd *cobra.Command, args []string, a *app) error {
		h, err := a.client.Lookup(args[0])
		if err != nil {
			return err
		}
		start := time.Now()
		rep, err := h.Sync(ctx, meilisync.SyncOptions{
			BatchSize:  batchSize,
			Checkpoint: a.checkpoint,
			Resume:     resume,
		})
		metrics.RecordSync(h.Name(), rep.Documents, rep.Skipped, time.Since(start), err)
		if err != nil {
			a.logger.Error("sync failed", zap.String("index", h.Name()), zap.Error(err))
			return err
		}
		a.logger.Info("sync finished",
			zap.String("index", rep.Index),
			zap.Int("documents", rep.Documents),
			zap.Int("skipped", rep.Skipped),
			zap.Duration("took", time.Since(start)),
		)
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(rep)
	})
	return cmd
}

func newClearCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "clear <index-or-type>",
		Short: "Delete every document from a registered index.",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(opts, true, func(ctx context.Context, cmd *cobra.Command, args []string, a *app) error {
			h, err := a.client.Lookup(args[0])
			if err != nil {
				return err
			}
			if err := h.Clear(ctx); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "cleared %s\n", h.Name())
			return nil
		}),
	}
}

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the application tables.",
		Args:  cobra.NoArgs,
		RunE: withApp(opts, false, func(_ context.Context, _ *cobra.Command, _ []string, a *app) error {
			if err := posts.Migrate(a.db); err != nil {
				return err
			}
			a.logger.Info("migration complete", zap.String("driver", a.cfg.Database.Driver))
			return nil
		}),
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information.",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.String())
		},
	}
}
