package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/kstaniek/gbt43229-signal-link/internal/discovery"
)

// newDialer builds the Engine.Dialer used for each (re)connect attempt. When
// --mdns-discover is set it browses first and falls back to --server-host on
// a failed or empty browse, per the CLI's discover-then-fallback ordering.
func newDialer(cfg *appConfig, l *slog.Logger) func(ctx context.Context) (net.Conn, error) {
	return func(ctx context.Context) (net.Conn, error) {
		addr := net.JoinHostPort(cfg.serverHost, fmt.Sprint(cfg.serverPort))
		if cfg.mdnsDiscover {
			ep, err := discovery.Browse(ctx, 3*time.Second)
			if err != nil {
				l.Warn("mdns_browse_failed", "error", err)
				if cfg.serverHost == "" {
					return nil, err
				}
			} else {
				addr = net.JoinHostPort(ep.Host, fmt.Sprint(ep.Port))
			}
		}
		dialer := net.Dialer{Timeout: 5 * time.Second}
		return dialer.DialContext(ctx, "tcp", addr)
	}
}
