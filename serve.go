package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"aqi-service/api"
	"aqi-service/collector"
	"aqi-service/datasource"
	"aqi-service/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the dashboard API server",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if st.Driver() == "memory" {
			seedMemoryStore(ctx, st, cfg.Store.CSVPath)
		}

		var source datasource.Source
		if cfg.Upstream.BaseURL != "" {
			client := datasource.NewModelServiceClient(cfg.Upstream.BaseURL, cfg.Upstream.Timeout())
			source = datasource.NewRateLimitedSource(client, cfg.Upstream.RateLimitRPS, cfg.Upstream.Burst)
		} else {
			zap.L().Warn("no model service configured, prediction endpoints disabled",
				zap.String("operation", "startup"),
			)
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}
		server := api.NewServer(st, source, api.Options{
			Port:           port,
			AllowedOrigins: cfg.Server.AllowedOrigins,
			DefaultModel:   cfg.Upstream.DefaultModel,
			HistoryDays:    cfg.History.DefaultDays,
			ChartWidth:     cfg.Chart.Width,
			ChartHeight:    cfg.Chart.Height,
		})

		if source != nil {
			stopCollector, err := startCollector(ctx, st, source)
			if err != nil {
				return err
			}
			defer stopCollector()
		}

		go pruneLoop(ctx, st, cfg.Collector.Retention)

		serverErr := make(chan error, 1)
		go func() {
			if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serverErr <- err
			}
			close(serverErr)
		}()

		select {
		case <-ctx.Done():
		case err := <-serverErr:
			if err != nil {
				return eris.Wrap(err, "server listen")
			}
		}

		zap.L().Info("shutting down server", zap.String("operation", "shutdown"))
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return eris.Wrap(err, "server shutdown")
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// openStore opens the configured store and applies its schema
func openStore(ctx context.Context) (store.Store, error) {
	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, eris.Wrap(err, "open store")
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

// seedMemoryStore loads the CSV export into a fresh in-memory store. A
// missing file leaves the store empty.
func seedMemoryStore(ctx context.Context, st store.Store, path string) {
	samples, _, err := datasource.LoadAqiCSV(ctx, path)
	if err != nil {
		zap.L().Warn("could not load csv, starting with empty history",
			zap.String("operation", "startup"),
			zap.String("path", path),
			zap.Error(err),
		)
		return
	}
	n, err := st.UpsertSamples(ctx, samples)
	if err != nil {
		zap.L().Error("seed memory store", zap.String("operation", "startup"), zap.Error(err))
		return
	}
	zap.L().Info("memory store seeded", zap.String("operation", "startup"), zap.Int("samples", n))
}

// startCollector snapshots forecasts for the configured counties into the
// prediction log. It is a no-op when no counties are configured.
func startCollector(ctx context.Context, st store.Store, source datasource.PredictionSource) (func(), error) {
	targets, err := collector.ParseTargets(cfg.Collector.Counties)
	if err != nil {
		return nil, err
	}
	if len(targets) == 0 {
		return func() {}, nil
	}

	c := collector.NewPredictionCollector(source, targets, collector.Options{
		Interval:    cfg.Collector.Interval,
		HorizonDays: cfg.Collector.HorizonDays,
		Model:       cfg.Upstream.DefaultModel,
	})
	stopCollection := c.Start(ctx)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for snapshot := range c.OutputChannel() {
			if err := st.SavePredictions(context.Background(), snapshot.Records); err != nil {
				zap.L().Error("save predictions",
					zap.String("operation", "collector"),
					zap.String("target", snapshot.Target.String()),
					zap.Error(err),
				)
			}
		}
	}()
	go func() {
		for err := range c.ErrorChannel() {
			zap.L().Warn("collector fetch failed", zap.String("operation", "collector"), zap.Error(err))
		}
	}()

	zap.L().Info("collector started",
		zap.String("operation", "startup"),
		zap.Int("targets", len(targets)),
		zap.Duration("interval", cfg.Collector.Interval),
	)
	return func() {
		stopCollection()
		<-done
	}, nil
}

// pruneLoop removes prediction log entries older than retention once a day
func pruneLoop(ctx context.Context, st store.Store, retention time.Duration) {
	if retention <= 0 {
		return
	}
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			n, err := st.PrunePredictions(ctx, time.Now().Add(-retention))
			if err != nil {
				zap.L().Warn("prune predictions", zap.String("operation", "collector"), zap.Error(err))
				continue
			}
			zap.L().Info("pruned prediction log", zap.String("operation", "collector"), zap.Int("removed", n))
		case <-ctx.Done():
			return
		}
	}
}
