package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"liqfeed/config"
	"liqfeed/internal/channel"
	"liqfeed/internal/metrics"
	"liqfeed/internal/reader/hyperliquid"
	"liqfeed/internal/registry"
	redissink "liqfeed/internal/sink/redis"
	"liqfeed/logger"
)

func main() {
	log := logger.GetLogger()

	// Load environment variables from .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	configPath := flag.String("config", config.DefaultPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Error("Failed to configure logger")
		os.Exit(1)
	}

	log.WithComponent("main").WithFields(logger.Fields{
		"service": cfg.Liqfeed.Name,
		"version": cfg.Liqfeed.Version,
		"env":     config.AppEnvironment(),
	}).Info("starting liqfeed")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if strings.ToLower(cfg.Logging.Level) == logger.ReportLevel {
		logger.StartReport(ctx, log, cfg.Metrics.Interval)
	}

	metrics.Configure(cfg.Metrics)
	if cfg.Metrics.CloudWatch.Enabled {
		metrics.InitCloudWatch(ctx, cfg.Metrics.CloudWatch.Region, cfg.Metrics.CloudWatch.Namespace, cfg.Metrics.Interval)
	}

	client, err := hyperliquid.NewClient(cfg.Venue)
	if err != nil {
		log.WithComponent("main").WithError(err).Error("failed to create venue client")
		os.Exit(1)
	}

	channels := channel.NewChannels(cfg.Registry.TradeBuffer)
	metrics.StartChannelSizeMetrics(ctx, channels, cfg.Metrics.Interval)

	sinks := []registry.TradeSink{registry.NewLogSink(log)}
	var redisSink *redissink.Sink
	if cfg.Publisher.Redis.Enabled {
		connectCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		redisSink, err = redissink.New(connectCtx, cfg.Publisher.Redis)
		cancel()
		if err != nil {
			log.WithComponent("main").WithError(err).Error("failed to connect to redis")
			os.Exit(1)
		}
		sinks = append(sinks, redisSink)
	} else {
		log.WithComponent("main").Info("redis publisher disabled; trades are only logged")
	}

	reg := registry.New(cfg.Registry, client, client, registry.WithTradeChannel(channels.Liq))
	fanout := registry.NewFanout(channels.Liq, sinks, 100, time.Second, cfg.Metrics.Interval)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return fanout.Run(gctx)
	})

	if err := reg.Start(gctx); err != nil {
		log.WithComponent("main").WithError(err).Error("failed to start registry")
		os.Exit(1)
	}

	g.Go(func() error {
		watchAlerts(gctx, log, reg, cfg.Registry.CycleInterval)
		return nil
	})

	log.WithComponent("main").Info("all components started successfully")

	<-gctx.Done()
	log.WithComponent("main").Info("starting graceful shutdown")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Registry.CycleTimeout+5*time.Second)
	defer cancel()

	if err := reg.Stop(shutdownCtx); err != nil {
		log.WithComponent("main").WithError(err).Warn("registry did not stop in time")
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.WithComponent("main").WithError(err).Warn("component exited with error")
	}

	if redisSink != nil {
		if err := redisSink.Close(); err != nil {
			log.WithComponent("main").WithError(err).Warn("failed to close redis client")
		}
	}

	log.WithComponent("main").WithFields(logger.Fields{
		"trades_sent":    channels.Liq.GetStats().TradesSent,
		"trades_dropped": channels.Liq.GetStats().TradesDropped,
	}).Info("shutdown complete")
}

// watchAlerts logs when the published snapshot enters or leaves an alerting
// condition.
func watchAlerts(ctx context.Context, log *logger.Log, reg *registry.Registry, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	alerting := false
	var lastSeq uint64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		snap := reg.Snapshot()
		if snap.Sequence == lastSeq {
			continue
		}
		lastSeq = snap.Sequence

		entry := log.WithComponent("main").WithFields(logger.Fields{
			"cycle_id":           snap.CycleID,
			"all_stale":          snap.AllStale,
			"stale_vaults":       len(snap.StaleVaults),
			"vaults":             len(snap.Vaults),
			"discovery_degraded": snap.Discovery.Degraded,
			"discovery_failures": snap.Discovery.ConsecutiveFailures,
			"stale_threshold":    snap.StaleThreshold.String(),
		})
		switch now := snap.Alerting(); {
		case now && !alerting:
			entry.Error("liquidation feed alert raised")
		case !now && alerting:
			entry.Info("liquidation feed alert cleared")
		}
		alerting = snap.Alerting()
	}
}
