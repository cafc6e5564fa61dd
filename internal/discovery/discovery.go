// Package discovery advertises and locates signal controllers over mDNS,
// grounded on the teacher's cmd/can-server/mdns.go zeroconf.Register call
// and extended with zeroconf.Browse for the vehicle-detector side
// (spec §6.3's "discover, else fall back to a configured host/port").
package discovery

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/grandcat/zeroconf"
)

// ServiceType is the mDNS service type advertised by signal-controller and
// browsed for by vehicle-detector.
const ServiceType = "_gbt43229-signal._tcp"

// Register advertises instance on ServiceType/port with the given TXT
// records and returns a cleanup function. It is safe to call even when
// discovery is disabled by the caller skipping this call entirely.
func Register(ctx context.Context, instance string, port int, txt []string) (func(), error) {
	if instance == "" {
		host, _ := os.Hostname()
		instance = fmt.Sprintf("signal-controller-%s", host)
	}
	svc, err := zeroconf.Register(instance, ServiceType, "local.", port, txt, nil)
	if err != nil {
		return nil, fmt.Errorf("discovery: register: %w", err)
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
		case <-done:
		}
		svc.Shutdown()
	}()
	return func() { close(done); svc.Shutdown(); time.Sleep(50 * time.Millisecond) }, nil
}

// Endpoint is a discovered signal-controller address.
type Endpoint struct {
	Host string
	Port int
}

// Browse waits up to timeout for the first ServiceType instance to appear
// and returns its address. Used by vehicle-detector's --mdns-discover
// dialer before falling back to a configured --server-host/--server-port.
func Browse(ctx context.Context, timeout time.Duration) (Endpoint, error) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return Endpoint{}, fmt.Errorf("discovery: resolver: %w", err)
	}
	entries := make(chan *zeroconf.ServiceEntry, 4)
	browseCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := resolver.Browse(browseCtx, ServiceType, "local.", entries); err != nil {
		return Endpoint{}, fmt.Errorf("discovery: browse: %w", err)
	}
	select {
	case e, ok := <-entries:
		if !ok || e == nil {
			return Endpoint{}, fmt.Errorf("discovery: no %s instance found within %s", ServiceType, timeout)
		}
		host := e.HostName
		if len(e.AddrIPv4) > 0 {
			host = e.AddrIPv4[0].String()
		}
		return Endpoint{Host: host, Port: e.Port}, nil
	case <-browseCtx.Done():
		return Endpoint{}, fmt.Errorf("discovery: browse timed out after %s", timeout)
	}
}
