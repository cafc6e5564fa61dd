package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kstaniek/gbt43229-signal-link/internal/controller"
	"github.com/kstaniek/gbt43229-signal-link/internal/metrics"
)

func main() {
	cfg, showVersion, err := parseFlags(os.Args[1:])
	if showVersion {
		fmt.Printf("signal-controller %s (commit %s, built %s)\n", version, commit, date)
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

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv := controller.NewServer(cfg.self,
		controller.WithListenAddr(cfg.listenAddr),
		controller.WithMaxClients(cfg.maxClients),
		controller.WithHandshakeTimeout(cfg.handshakeTO),
		controller.WithHeartbeatInterval(cfg.heartbeatInterval),
		controller.WithHeartbeatTimeout(cfg.heartbeatTO),
		controller.WithLogger(l),
	)

	go func() {
		if err := srv.Serve(ctx); err != nil {
			l.Error("tcp_server_error", "error", err)
			cancel()
		}
	}()

	var mdnsCleanup func()
	go func() {
		select {
		case <-srv.Ready():
		case <-ctx.Done():
			return
		}
		mdnsCleanup = startMDNS(ctx, cfg, srv.Addr(), l)
	}()

	metrics.SetReadinessFunc(func() bool {
		select {
		case <-srv.Ready():
		default:
			return false
		}
		return ctx.Err() == nil
	})
	if cfg.metricsAddr != "" {
		metrics.InitBuildInfo(version, commit, date)
		metricsSrv := metrics.StartHTTP(cfg.metricsAddr)
		defer func() { _ = metricsSrv.Shutdown(context.Background()) }()
	}

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	s := <-sigCh
	l.Info("shutdown_signal", "signal", s.String())
	cancel()
	if mdnsCleanup != nil {
		mdnsCleanup()
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.handshakeTO+5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		l.Error("shutdown_error", "error", err)
	}
}
