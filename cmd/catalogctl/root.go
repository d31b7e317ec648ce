package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"medcatalog/api/internal/app"
	"medcatalog/api/internal/auth"
	"medcatalog/api/internal/catalog"
	"medcatalog/api/internal/config"
	"medcatalog/api/internal/logger"
	"medcatalog/api/internal/store"
)

func rootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "catalogctl",
		Short:         "Maintenance commands for the medical equipment catalog",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		slugCommand(),
		migrateCommand(),
		sweepCommand(),
		reindexCommand(),
	)
	return rootCmd
}

func slugCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "slug <name>",
		Short: "Print the slug a display name is stored under",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			slug, err := catalog.Slugify(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), slug)
			return nil
		},
	}
}

func migrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := loadEnvironment()
			if err != nil {
				return err
			}
			defer log.Sync()

			ctx := cmd.Context()
			db, err := store.Open(ctx, cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer db.Close()
			return store.ApplyMigrations(ctx, db, cfg.MigrationsDir, log)
		},
	}
}

func sweepCommand() *cobra.Command {
	var remove bool
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Report machine assets and entries that do not reference each other",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				report, err := rt.Service.Reconcile(ctx, auth.LocalPrincipal, remove)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), report)
			})
		},
	}
	cmd.Flags().BoolVar(&remove, "remove", false, "delete orphaned machine assets")
	return cmd
}

func reindexCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "reindex",
		Short: "Push every stored entry to the search index",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				return rt.Service.Bootstrap(ctx)
			})
		},
	}
}

func loadEnvironment() (config.Config, *logger.Logger, error) {
	config.LoadEnvFiles()
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, nil, err
	}
	log, err := logger.New(cfg.Environment)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("logger: %w", err)
	}
	return cfg, log, nil
}

func withRuntime(ctx context.Context, fn func(context.Context, *app.Runtime) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, log, err := loadEnvironment()
	if err != nil {
		return err
	}
	defer log.Sync()

	rt, err := app.Build(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer rt.Close()
	return fn(ctx, rt)
}

func writeJSON(w io.Writer, value any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(value)
}
