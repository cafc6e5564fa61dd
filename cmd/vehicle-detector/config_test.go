package main

import (
	"testing"
	"time"
)

func baseConfig() *appConfig {
	return &appConfig{
		serverHost:         "localhost",
		serverPort:         40000,
		adminCode:          "0x01AD24",
		deviceType:         "inductive-loop",
		deviceID:           1,
		logFormat:          "text",
		logLevel:           "info",
		connectRetry:       5 * time.Second,
		realtimeInterval:   2 * time.Second,
		statisticsInterval: 60 * time.Second,
		heartbeatInterval:  5 * time.Second,
		heartbeatTO:        15 * time.Second,
		sensorBackend:      "simulated",
		sensorBaud:         9600,
	}
}

func TestConfigValidate_OK(t *testing.T) {
	if err := baseConfig().validate(); err != nil {
		t.Fatalf("expected ok got %v", err)
	}
}

func TestConfigValidate_Errors(t *testing.T) {
	tests := []struct {
		name string
		mod  func(*appConfig)
	}{
		{"badFormat", func(c *appConfig) { c.logFormat = "xx" }},
		{"badLevel", func(c *appConfig) { c.logLevel = "nope" }},
		{"badBackend", func(c *appConfig) { c.sensorBackend = "x" }},
		{"noHostNoDiscover", func(c *appConfig) { c.serverHost = ""; c.mdnsDiscover = false }},
		{"badPort", func(c *appConfig) { c.serverPort = 0 }},
		{"badBaud", func(c *appConfig) { c.sensorBaud = 0 }},
		{"badConnectRetry", func(c *appConfig) { c.connectRetry = 0 }},
		{"heartbeatTOTooSmall", func(c *appConfig) { c.heartbeatTO = c.heartbeatInterval }},
	}
	for _, tc := range tests {
		c := baseConfig()
		tc.mod(c)
		if err := c.validate(); err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
	}
}

func TestConfigValidate_DiscoverWithoutHostOK(t *testing.T) {
	c := baseConfig()
	c.serverHost = ""
	c.mdnsDiscover = true
	if err := c.validate(); err != nil {
		t.Fatalf("expected ok with mdns-discover set, got %v", err)
	}
}

func TestParseFlags_Defaults(t *testing.T) {
	cfg, showVersion, err := parseFlags([]string{"--server-host", "localhost"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if showVersion {
		t.Fatalf("expected showVersion false")
	}
	if cfg.serverPort != 40000 {
		t.Fatalf("unexpected default server port %d", cfg.serverPort)
	}
	if cfg.self.Kind().String() != "inductive-loop" {
		t.Fatalf("unexpected default device kind %s", cfg.self.Kind())
	}
}

func TestParseFlags_RequiresHostOrDiscover(t *testing.T) {
	if _, _, err := parseFlags(nil); err == nil {
		t.Fatalf("expected error when neither --server-host nor --mdns-discover is set")
	}
}

func TestParseFlags_BadDeviceType(t *testing.T) {
	if _, _, err := parseFlags([]string{"--server-host", "localhost", "--device-type", "bogus"}); err == nil {
		t.Fatalf("expected error for unknown device-type")
	}
}
