package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	appLog "synccal/internal/log"
	"synccal/internal/scheduler"
	"synccal/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the sync scheduler",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigCh)
		go func() {
			select {
			case sig := <-sigCh:
				appLog.Info("signal received, shutting down", "signal", sig.String())
				cancel()
			case <-ctx.Done():
			}
		}()

		a, err := newApp(ctx, cfg)
		if err != nil {
			return err
		}

		if cfg.AutoStart {
			if err := a.session.Start(ctx); err != nil {
				appLog.Warn("auto start failed", "error", err.Error())
			}
		}

		var sched *scheduler.Scheduler
		if cfg.SyncCron != "" {
			sched, err = scheduler.New(cfg.SyncCron, cfg.Location(), a.session.IsActive,
				scheduler.RunnerFunc(func(ctx context.Context) error {
					_, err := a.syncer.Run(ctx)
					return err
				}))
			if err != nil {
				_ = a.close(context.Background())
				return err
			}
			sched.Start()
		}

		srv := web.NewServer(cfg, web.Deps{
			Session: a.session,
			Syncer:  a.syncer,
			Local:   a.local,
			Metrics: a.metrics,
		})
		serveErr := srv.ListenAndServe(ctx)

		shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
		defer stop()
		if sched != nil {
			sched.Stop(shutdownCtx)
		}
		closeErr := a.close(shutdownCtx)

		appLog.Info("synccal exiting")
		return errors.Join(serveErr, closeErr)
	},
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one sync pass and exit",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		a, err := newApp(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer a.close(context.Background())

		report, err := a.syncer.Run(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), report)
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print sync statistics from the persisted session",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		a, err := newApp(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer a.close(context.Background())

		return printJSON(cmd.OutOrStdout(), a.session.Statistics())
	},
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}
