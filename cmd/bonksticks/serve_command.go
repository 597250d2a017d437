package main

import (
	"context"
	"fmt"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/art0007i/bonk-sticks-map-converter/internal/logging"
	"github.com/art0007i/bonk-sticks-map-converter/internal/preflight"
	"github.com/art0007i/bonk-sticks-map-converter/internal/server"
)

const drainTimeout = 30 * time.Second

func newServeCommand(ctx *commandContext) *cobra.Command {
	var bind string
	var skipPreflight bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the conversion HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if strings.TrimSpace(bind) != "" {
				cfg.Paths.APIBind = strings.TrimSpace(bind)
			}

			var rotated string
			if cfg.Paths.LogDir != "" {
				rotated, err = logging.RotateLog(filepath.Join(cfg.Paths.LogDir, logging.LogFileName), time.Now())
				if err != nil {
					return err
				}
			}
			logger, err := logging.NewFromConfig(cfg)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			if rotated != "" {
				logger.Info("previous log rotated", logging.String("path", rotated))
			}
			logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays, logging.RetentionTarget{
				Dir:     cfg.Paths.LogDir,
				Pattern: logging.RotatedPattern,
			})

			runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if !skipPreflight {
				results := preflight.RunAll(runCtx, cfg)
				for _, r := range results {
					if r.Passed {
						logger.Info("preflight passed", logging.String("check", r.Name), logging.String("detail", r.Detail))
						continue
					}
					logging.WarnWithContext(runCtx, logger, "preflight failed", "preflight_failed",
						logging.String("check", r.Name),
						logging.String("detail", r.Detail),
						logging.String(logging.FieldErrorHint, "run bonksticks doctor for details"),
						logging.String(logging.FieldImpact, "requests depending on this check may fail"),
					)
				}
				if failed, ok := preflight.FirstRequiredFailure(results); ok {
					return fmt.Errorf("preflight %s: %s", strings.ToLower(failed.Name), failed.Detail)
				}
			}

			store, err := ctx.openCache(logger)
			if err != nil {
				return err
			}
			svc, hist, cleanup, err := ctx.newConverter(logger, store)
			if err != nil {
				return err
			}
			defer cleanup()

			opts := []server.Option{
				server.WithLogger(logger),
				server.WithCacheStats(store),
			}
			if hist != nil {
				opts = append(opts, server.WithHistory(hist))
			}
			srv, err := server.New(cfg, svc, opts...)
			if err != nil {
				return err
			}
			if err := srv.Start(runCtx); err != nil {
				return err
			}

			<-runCtx.Done()
			srv.Stop()

			drainCtx, cancel := context.WithTimeout(context.WithoutCancel(runCtx), drainTimeout)
			defer cancel()
			if err := svc.Close(drainCtx); err != nil {
				logging.WarnWithContext(drainCtx, logger, "persistence did not drain before shutdown", "shutdown_drain_timeout",
					logging.Duration("timeout", drainTimeout),
					logging.String(logging.FieldImpact, "some maps will be converted again on next request"),
				)
			}
			logger.Info("server stopped")
			return nil
		},
	}

	cmd.Flags().StringVar(&bind, "bind", "", "Override paths.api_bind")
	cmd.Flags().BoolVar(&skipPreflight, "skip-preflight", false, "Start without directory and catalog checks")
	return cmd
}
