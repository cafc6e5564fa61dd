package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/kstaniek/gbt43229-signal-link/internal/detector"
	"github.com/kstaniek/gbt43229-signal-link/internal/metrics"
)

func main() {
	cfg, showVersion, err := parseFlags(os.Args[1:])
	if showVersion {
		fmt.Printf("vehicle-detector %s (commit %s, built %s)\n", version, commit, date)
		return
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	l, closeLog, err := setupLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		os.Exit(1)
	}
	defer closeLog()
	l.Info("starting", "self", cfg.self.String())

	source, err := openSensor(cfg)
	if err != nil {
		l.Error("sensor_init_failed", "error", err)
		os.Exit(1)
	}
	defer func() { _ = source.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	engine := detector.New(cfg.self, newDialer(cfg, l), source,
		detector.WithLogger(l),
		detector.WithConnectRetry(cfg.connectRetry),
		detector.WithHeartbeatInterval(cfg.heartbeatInterval),
		detector.WithHeartbeatTimeout(cfg.heartbeatTO),
		detector.WithRealtimeInterval(cfg.realtimeInterval),
		detector.WithStatisticsInterval(cfg.statisticsInterval),
	)

	runDone := make(chan error, 1)
	go func() { runDone <- engine.Run(ctx) }()

	metrics.SetReadinessFunc(func() bool { return ctx.Err() == nil })
	if cfg.metricsAddr != "" {
		metrics.InitBuildInfo(version, commit, date)
		metricsSrv := metrics.StartHTTP(cfg.metricsAddr)
		defer func() { _ = metricsSrv.Shutdown(context.Background()) }()
	}

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case s := <-sigCh:
		l.Info("shutdown_signal", "signal", s.String())
		cancel()
		<-runDone
	case err := <-runDone:
		if err != nil {
			l.Error("engine_exited", "error", err)
		}
	}
}
