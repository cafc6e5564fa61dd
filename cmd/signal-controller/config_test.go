package main

import (
	"testing"
	"time"
)

func baseConfig() *appConfig {
	return &appConfig{
		listenAddr:        ":40000",
		adminCode:         "0x01AD24",
		deviceID:          1,
		logFormat:         "text",
		logLevel:          "info",
		maxClients:        64,
		handshakeTO:       3 * time.Second,
		heartbeatInterval: 5 * time.Second,
		heartbeatTO:       15 * time.Second,
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
		{"badMaxClients", func(c *appConfig) { c.maxClients = 0 }},
		{"badHandshakeTO", func(c *appConfig) { c.handshakeTO = 0 }},
		{"badHeartbeatInterval", func(c *appConfig) { c.heartbeatInterval = 0 }},
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

func TestParseFlags_Defaults(t *testing.T) {
	cfg, showVersion, err := parseFlags(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if showVersion {
		t.Fatalf("expected showVersion false")
	}
	if cfg.listenAddr != ":40000" {
		t.Fatalf("unexpected default listen addr %q", cfg.listenAddr)
	}
	if cfg.self.DeviceID != 1 {
		t.Fatalf("unexpected default device id %d", cfg.self.DeviceID)
	}
}

func TestParseFlags_Version(t *testing.T) {
	_, showVersion, err := parseFlags([]string{"--version"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !showVersion {
		t.Fatalf("expected showVersion true")
	}
}

func TestParseFlags_BadAdminCode(t *testing.T) {
	if _, _, err := parseFlags([]string{"--admin-code", "not-a-number"}); err == nil {
		t.Fatalf("expected error for malformed admin-code")
	}
}
