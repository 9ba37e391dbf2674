package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"hittracker/internal/api"
	"hittracker/internal/calendar"
	"hittracker/internal/models"
	"hittracker/internal/scheduler"
	"hittracker/internal/service"
)

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "hittracker",
		Short:         "Tracks marketplace work items against the dashboard",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	defaultConfig := os.Getenv("CONFIG_PATH")
	if defaultConfig == "" {
		defaultConfig = "configs/config.yaml"
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfig, "path to config file")

	// withApp wires the app for one command and tears it down afterwards.
	withApp := func(fn func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			a, err := newApp(configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return fn(ctx, cmd, a, args)
		}
	}

	root.AddCommand(
		syncCmd(withApp),
		overviewCmd(withApp),
		exportCmd(withApp),
		backupCmd(withApp),
		serveCmd(withApp),
	)
	return root
}

type runFunc = func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error

type wrapper = func(runFunc) func(*cobra.Command, []string) error

func syncCmd(withApp wrapper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Synchronize local records with the marketplace",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "today",
			Short: "Resync the current business date",
			Args:  cobra.NoArgs,
			RunE: withApp(func(ctx context.Context, cmd *cobra.Command, a *app, _ []string) error {
				res, err := a.sync.SyncToday(ctx)
				return printRun(cmd.OutOrStdout(), res, err)
			}),
		},
		&cobra.Command{
			Use:   "day <YYYYMMDD>",
			Short: "Resync one business date",
			Args:  cobra.ExactArgs(1),
			RunE: withApp(func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
				res, err := a.sync.SyncDay(ctx, calendar.Compact(args[0]))
				return printRun(cmd.OutOrStdout(), res, err)
			}),
		},
		&cobra.Command{
			Use:   "last45",
			Short: "Resync every unsettled day of the dashboard window",
			Args:  cobra.NoArgs,
			RunE: withApp(func(ctx context.Context, cmd *cobra.Command, a *app, _ []string) error {
				res, err := a.sync.SyncLast45(ctx)
				return printRun(cmd.OutOrStdout(), res, err)
			}),
		},
		&cobra.Command{
			Use:   "resume",
			Short: "Retry days left pending by earlier runs",
			Args:  cobra.NoArgs,
			RunE: withApp(func(ctx context.Context, cmd *cobra.Command, a *app, _ []string) error {
				res, err := a.sync.Resume(ctx)
				return printRun(cmd.OutOrStdout(), res, err)
			}),
		},
	)
	return cmd
}

func overviewCmd(withApp wrapper) *cobra.Command {
	cmd := &cobra.Command{
		Use:       "overview [today|week|month]",
		Short:     "Print the overview of a period",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{"today", "week", "month"},
		RunE: withApp(func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
			period := "today"
			if len(args) == 1 {
				period = args[0]
			}
			o, err := a.overview.Period(ctx, period)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), o)
		}),
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "totals",
		Short: "Print pending, awaiting and transferable totals",
		Args:  cobra.NoArgs,
		RunE: withApp(func(ctx context.Context, cmd *cobra.Command, a *app, _ []string) error {
			t, err := a.overview.Totals(ctx)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), t)
		}),
	})
	return cmd
}

func exportCmd(withApp wrapper) *cobra.Command {
	var from, to, period string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write an xlsx workbook of days and items",
		Args:  cobra.NoArgs,
		RunE: withApp(func(ctx context.Context, cmd *cobra.Command, a *app, _ []string) error {
			var w models.Window
			if from != "" || to != "" {
				w = models.Window{Start: calendar.Compact(from), End: calendar.Compact(to)}
				if !calendar.Valid(w.Start) || !calendar.Valid(w.End) {
					return errors.New("--from and --to must both be valid dates")
				}
			} else {
				var err error
				if w, err = a.overview.Window(period); err != nil {
					return err
				}
			}

			path, err := a.export.Export(ctx, w)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		}),
	}
	cmd.Flags().StringVar(&from, "from", "", "first date (YYYYMMDD)")
	cmd.Flags().StringVar(&to, "to", "", "last date (YYYYMMDD)")
	cmd.Flags().StringVar(&period, "period", "month", "period when no range is given (today, week, month)")
	return cmd
}

func backupCmd(withApp wrapper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Back up and restore tracked data",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "export [file]",
			Short: "Write every item and day as JSON",
			Args:  cobra.MaximumNArgs(1),
			RunE: withApp(func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
				name := a.archive.FileName()
				if len(args) == 1 {
					name = args[0]
				}
				if name == "-" {
					return a.archive.Export(ctx, cmd.OutOrStdout())
				}

				f, err := os.Create(name)
				if err != nil {
					return fmt.Errorf("create backup file: %w", err)
				}
				if err := a.archive.Export(ctx, f); err != nil {
					f.Close()
					return err
				}
				if err := f.Close(); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), name)
				return nil
			}),
		},
		&cobra.Command{
			Use:   "import <file>",
			Short: "Import a JSON backup or a HITDB export",
			Args:  cobra.ExactArgs(1),
			RunE: withApp(func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
				f, err := os.Open(filepath.Clean(args[0]))
				if err != nil {
					return fmt.Errorf("open backup file: %w", err)
				}
				defer f.Close()

				res, err := a.archive.Import(ctx, f)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), res)
			}),
		},
		&cobra.Command{
			Use:   "db",
			Short: "Snapshot the sqlite database",
			Args:  cobra.NoArgs,
			RunE: withApp(func(ctx context.Context, cmd *cobra.Command, a *app, _ []string) error {
				path, err := a.backups.PerformBackup(ctx)
				if err != nil {
					return err
				}
				a.backups.CleanupOldBackups()
				fmt.Fprintln(cmd.OutOrStdout(), path)
				return nil
			}),
		},
	)
	return cmd
}

func serveCmd(withApp wrapper) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and scheduled jobs",
		Args:  cobra.NoArgs,
		RunE: withApp(func(ctx context.Context, _ *cobra.Command, a *app, _ []string) error {
			return serve(ctx, a)
		}),
	}
}

func serve(ctx context.Context, a *app) error {
	logger := a.logger.With().Str("component", "serve").Logger()

	sched := scheduler.New(a.logger)
	if a.cfg.Sync.Schedule != "" {
		if err := sched.AddJob(a.cfg.Sync.Schedule, scheduler.NewSyncJob(a.sync, a.logger)); err != nil {
			return fmt.Errorf("schedule sync: %w", err)
		}
	}
	if a.cfg.Backup.Enabled && a.cfg.Backup.Schedule != "" {
		if err := sched.AddJob(a.cfg.Backup.Schedule, scheduler.NewBackupJob(a.backups)); err != nil {
			return fmt.Errorf("schedule backup: %w", err)
		}
	}
	sched.Start()
	defer sched.Stop()

	if a.commands != nil {
		go a.commands.Start(ctx)
	}

	if !a.cfg.API.Enabled {
		logger.Warn().Msg("API is disabled in config, running scheduled jobs only")
		<-ctx.Done()
		return nil
	}

	srv := api.NewServer(a.cfg.API, a.cfg.Monitoring, api.Deps{
		Store:     a.db,
		Sync:      a.sync,
		Overviews: a.overview,
		Today:     a.calendar,
		Triggers:  a.progress,
	}, a.logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()
	logger.Info().Int("port", a.cfg.API.Port).Msg("hittracker started")

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func printRun(w io.Writer, res *service.RunResult, runErr error) error {
	if res != nil {
		out := map[string]any{
			"run_id": res.RunID,
			"kind":   res.Kind,
			"status": res.Status,
			"dates":  res.Dates,
		}
		if res.Day != nil {
			out["day"] = res.Day
		}
		if res.Batch != nil {
			out["synced"] = res.Batch.Synced
			out["settled"] = res.Batch.Settled
			failed := make(map[string]string, len(res.Batch.Failed))
			for date, err := range res.Batch.Failed {
				failed[date] = err.Error()
			}
			out["failed"] = failed
		}
		if err := printJSON(w, out); err != nil {
			return err
		}
	}
	return runErr
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
