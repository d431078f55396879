package main

import (
	"context"
	"errors"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/skyfeed/internal/config"
	"github.com/alfredjeanlab/skyfeed/internal/events"
	"github.com/alfredjeanlab/skyfeed/internal/feed"
	"github.com/alfredjeanlab/skyfeed/internal/ingest"
	"github.com/alfredjeanlab/skyfeed/internal/notify"
	"github.com/alfredjeanlab/skyfeed/internal/registry"
	"github.com/alfredjeanlab/skyfeed/internal/server"
	"github.com/alfredjeanlab/skyfeed/internal/snapshot"
	"github.com/alfredjeanlab/skyfeed/internal/store"
	"github.com/alfredjeanlab/skyfeed/internal/supervisor"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Short:   "Run the ingest pipeline and the HTTP server",
	GroupID: "system",
	// Override PersistentPreRunE so we don't build an API client.
	PersistentPreRunE: localCommand,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		logger := newLogger(cfg.LogLevel, cfg.LogFormat)
		slog.SetDefault(logger)

		st, err := openStore(cfg.DatabaseURL, logger)
		if err != nil {
			return err
		}
		defer func() {
			if err := st.Close(); err != nil {
				logger.Error("error closing store", "err", err)
			}
		}()

		// External events go to NATS when configured and always to the
		// in-process hub behind GET /v1/events.
		hub := server.NewEventHub()
		publisher := events.MultiPublisher{hub}
		if cfg.NATSURL != "" {
			nats, err := events.NewNATSPublisher(cfg.NATSURL)
			if err != nil {
				return err
			}
			publisher = append(publisher, nats)
			logger.Info("events enabled", "nats_url", cfg.NATSURL)
		} else {
			logger.Info("NATS events disabled (SKYFEED_NATS_URL not set)")
		}
		defer func() {
			if err := publisher.Close(); err != nil {
				logger.Error("error closing publisher", "err", err)
			}
		}()

		bus := notify.New()
		sessions := registry.NewSessions()
		views := registry.NewViews()

		buffer := ingest.NewBuffer(st, bus, publisher, logger, ingest.BufferConfig{
			FlushSize:     cfg.FlushSize,
			FlushInterval: cfg.FlushInterval.Duration,
		})
		evictor := ingest.NewEvictor(st, publisher, logger, ingest.EvictorConfig{
			Retention: cfg.Retention.Duration,
			Interval:  cfg.EvictInterval.Duration,
		})
		connector := feed.New(feed.Config{
			URL:            cfg.FeedURL,
			ReconnectDelay: cfg.ReconnectDelay.Duration,
		}, buffer, logger)

		srv := server.New(server.Config{
			Store:      st,
			Bus:        bus,
			Sessions:   sessions,
			Views:      views,
			Publisher:  publisher,
			Events:     hub,
			Feed:       connector,
			Queue:      buffer,
			Logger:     logger,
			QueryLimit: cfg.QueryLimit,
			AuthToken:  cfg.AuthToken,
		})

		tree := supervisor.NewTree(logger, supervisor.DefaultTreeConfig())
		tree.AddIngest(buffer)
		tree.AddIngest(evictor)
		tree.AddIngest(connector)
		if scheduler := newSnapshotScheduler(cmd.Context(), cfg, st, logger); scheduler != nil {
			tree.AddIngest(scheduler)
		}
		tree.AddAPI(server.NewService(cfg.HTTPAddr, srv.Handler(), logger))

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		logger.Info("skyfeed started",
			"http_addr", cfg.HTTPAddr,
			"feed_url", cfg.FeedURL,
			"retention", cfg.Retention.Duration,
		)

		err = tree.Serve(ctx)
		logger.Info("shutting down")
		if report, rerr := tree.UnstoppedServiceReport(); rerr == nil {
			for _, svc := range report {
				logger.Warn("service did not stop in time", "service", svc.Name)
			}
		}

		// The connector may have submitted posts after the buffer's final flush.
		flushCtx, cancel := context.WithTimeout(context.Background(), supervisor.DefaultTreeConfig().ShutdownTimeout)
		defer cancel()
		if n := buffer.Flush(flushCtx); n > 0 {
			logger.Info("flushed queued posts on shutdown", "posts", n)
		}

		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		logger.Info("shutdown complete")
		return nil
	},
}

// newSnapshotScheduler returns nil when snapshots are disabled or no
// destination is usable.
func newSnapshotScheduler(ctx context.Context, cfg *config.Config, st store.Store, logger *slog.Logger) *snapshot.Scheduler {
	if cfg.SnapshotInterval.Duration <= 0 {
		return nil
	}

	var dests []snapshot.Destination
	if cfg.SnapshotS3Bucket != "" {
		dest, err := snapshot.NewS3Destination(ctx, snapshot.S3Config{
			Bucket:   cfg.SnapshotS3Bucket,
			Key:      cfg.SnapshotS3Key,
			Region:   cfg.SnapshotS3Region,
			Endpoint: cfg.SnapshotS3Endpoint,
		})
		if err != nil {
			logger.Error("failed to create S3 snapshot destination", "err", err)
		} else {
			dests = append(dests, dest)
			logger.Info("snapshot destination enabled", "dest", dest.Name())
		}
	}
	if cfg.SnapshotGitRepo != "" {
		dest := snapshot.NewGitDestination(cfg.SnapshotGitRepo, cfg.SnapshotGitFile, cfg.SnapshotGitBranch)
		dests = append(dests, dest)
		logger.Info("snapshot destination enabled", "dest", dest.Name())
	}
	if len(dests) == 0 {
		logger.Warn("snapshot interval set but no destination configured")
		return nil
	}
	return snapshot.NewScheduler(st, dests, cfg.SnapshotInterval.Duration, logger)
}
