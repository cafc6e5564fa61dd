package main

import (
	"context"
	"log/slog"
	"net"
	"strconv"
	"strings"

	"github.com/kstaniek/gbt43229-signal-link/internal/discovery"
)

// startMDNS registers the controller once its listener is bound. It is a
// no-op when mDNS advertisement is disabled.
func startMDNS(ctx context.Context, cfg *appConfig, addr string, l *slog.Logger) func() {
	if !cfg.mdnsEnable {
		return func() {}
	}
	port := portOf(addr)
	if port == 0 {
		l.Warn("mdns_start_failed", "error", "could not determine listen port")
		return func() {}
	}
	txt := []string{
		"admin-code=" + cfg.adminCode,
		"version=" + version,
	}
	cleanup, err := discovery.Register(ctx, cfg.mdnsName, port, txt)
	if err != nil {
		l.Warn("mdns_start_failed", "error", err)
		return func() {}
	}
	l.Info("mdns_started", "service", discovery.ServiceType, "port", port)
	return cleanup
}

func portOf(addr string) int {
	if _, p, err := net.SplitHostPort(addr); err == nil {
		if n, err := strconv.Atoi(p); err == nil {
			return n
		}
	}
	if i := strings.LastIndex(addr, ":"); i >= 0 {
		if n, err := strconv.Atoi(addr[i+1:]); err == nil {
			return n
		}
	}
	return 0
}
