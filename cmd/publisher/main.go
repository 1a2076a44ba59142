package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"personrelay/internal/config"
	"personrelay/internal/constants"
	"personrelay/internal/logger"
	"personrelay/pkg/logging"
)

var (
	configFile string
	total      int
	workers    int
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "publisher",
		Short: "Publish synthetic person messages",
		Long:  "Publisher fans a range of person IDs out over concurrent senders onto the person queue",
		RunE:  publishCmd().RunE,
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to config file (optional, env overrides apply)")
	rootCmd.PersistentFlags().IntVar(&total, "total", 0, "Number of IDs to publish, [0, total) (default publisher.total)")
	rootCmd.PersistentFlags().IntVar(&workers, "workers", 0, "Number of concurrent senders (default publisher.workers)")

	rootCmd.AddCommand(publishCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func publishCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "publish",
		Short: "Publish one message per ID across concurrent senders",
		RunE: func(cmd *cobra.Command, args []string) error {
			earlyLog := logging.NewEarlyLog()

			if configFile == "" {
				configFile = os.Getenv("CONFIG_FILE")
			}

			cfg, err := config.Load(configFile)
			if err != nil {
				earlyLog.Error("Failed to load config: %v", err)
				return err
			}
			if total > 0 {
				cfg.Publisher.Total = total
			}
			if workers > 0 {
				cfg.Publisher.Workers = workers
			}

			log, err := logger.New(cfg.Logging.Level, cfg.Logging.Format)
			if err != nil {
				earlyLog.Error("Failed to init logger: %v", err)
				return err
			}
			defer log.Sync()

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			ctx = logging.WithServiceName(ctx, constants.ServiceNamePublisher)

			app := NewApp(cfg, log)
			if err := app.Initialize(ctx); err != nil {
				log.ErrorwCtx(ctx, "Failed to initialize publisher", "error", err)
				_ = app.Shutdown(ctx)
				return err
			}

			report, runErr := app.Run(ctx)
			if err := app.Shutdown(ctx); err != nil {
				log.WarnwCtx(ctx, "Shutdown finished with errors", "error", err)
			}
			if runErr != nil {
				log.ErrorwCtx(ctx, "Publish stopped with error", "error", runErr)
				return runErr
			}

			earlyLog.Info("published %d messages, %d failed", report.Sent, report.Failed)
			return nil
		},
	}
}
