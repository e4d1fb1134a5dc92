package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/sakif/microblog/internal/activity"
	"github.com/sakif/microblog/internal/config"
	"github.com/sakif/microblog/internal/scheduler"
	"github.com/sakif/microblog/internal/server"
)

const (
	activityQueueSize   = 1024
	schedulerStopBudget = 30 * time.Second
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		Long: `Run the HTTP server until SIGINT or SIGTERM.

Pending migrations are applied first. When KAFKA_BROKERS is set, activity
events are published to KAFKA_TOPIC; otherwise they are discarded. Expired
API tokens are cleared on TOKEN_SWEEP_SCHEDULE.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig(cmd.OutOrStdout())
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, logger)
		},
	}
}

// serve runs the server, the activity dispatcher and the scheduler until
// ctx ends or one of them fails.
func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	db, err := openDB(cfg.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.MigrateUp(); err != nil {
		return err
	}

	var (
		events     activity.Publisher = activity.Discard{}
		dispatcher *activity.Dispatcher
	)
	if len(cfg.KafkaBrokers) > 0 {
		writer := activity.NewKafkaWriter(activity.KafkaConfig{
			Brokers:      cfg.KafkaBrokers,
			Topic:        cfg.KafkaTopic,
			WriteTimeout: cfg.KafkaWriteTimeout,
		})
		dispatcher = activity.NewDispatcher(writer, activityQueueSize, logger)
		events = dispatcher
		logger.Info("publishing activity",
			slog.Any("brokers", cfg.KafkaBrokers),
			slog.String("topic", cfg.KafkaTopic),
		)
	}

	srv, err := server.New(server.Config{
		Port:          cfg.Port,
		SessionSecret: cfg.SessionSecret,
		SessionTTL:    cfg.SessionTTL,
		APITokenTTL:   cfg.APITokenTTL,
		BcryptCost:    cfg.BcryptCost,
		SecureCookie:  cfg.SecureCookie,
	}, db, events, logger)
	if err != nil {
		return err
	}

	sched := scheduler.New(logger)
	if err := sched.Add(cfg.TokenSweepSchedule, "sweep-expired-tokens", func(ctx context.Context) error {
		n, err := srv.Identity().SweepExpiredTokens(ctx)
		if err == nil && n > 0 {
			logger.Info("expired api tokens cleared", slog.Int64("count", n))
		}
		return err
	}); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return srv.Run(gctx)
	})

	if dispatcher != nil {
		g.Go(func() error {
			return dispatcher.Run(gctx)
		})
	}

	g.Go(func() error {
		sched.Start()
		<-gctx.Done()

		stopCtx, cancel := context.WithTimeout(context.Background(), schedulerStopBudget)
		defer cancel()
		sched.Stop(stopCtx)
		return nil
	})

	return g.Wait()
}
