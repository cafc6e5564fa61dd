package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"github.com/kstaniek/gbt43229-signal-link/internal/config"
	"github.com/kstaniek/gbt43229-signal-link/internal/deviceid"
)

type appConfig struct {
	listenAddr        string
	adminCode         string
	deviceID          uint16
	logFormat         string
	logLevel          string
	logFile           string
	metricsAddr       string
	maxClients        int
	handshakeTO       time.Duration
	heartbeatInterval time.Duration
	heartbeatTO       time.Duration
	mdnsEnable        bool
	mdnsName          string
	configFile        string

	self deviceid.ID
}

func parseFlags(args []string) (*appConfig, bool, error) {
	fs := pflag.NewFlagSet("signal-controller", pflag.ContinueOnError)
	cfg := &appConfig{}

	listen := fs.String("listen", ":40000", "TCP listen address")
	adminCode := fs.String("admin-code", "0x01AD24", "24-bit administrative region code (decimal or 0x hex)")
	deviceID := fs.Uint16("device-id", 1, "Device identifier within the admin region")
	logFormat := fs.String("log-format", "text", "Log format: text|json")
	logLevel := fs.String("log-level", "info", "Log level: debug|info|warn|error")
	logFile := fs.String("log-file", "", "Log output file (default: stderr)")
	metricsAddr := fs.String("metrics-addr", "", "Metrics HTTP listen address (e.g. :9100); empty disables")
	maxClients := fs.Int("max-clients", 64, "Maximum simultaneous vehicle-detector sessions")
	handshakeTO := fs.Duration("handshake-timeout", 3*time.Second, "Handshake completion timeout")
	heartbeatInterval := fs.Duration("heartbeat-interval", 5*time.Second, "Heartbeat query interval")
	heartbeatTO := fs.Duration("heartbeat-timeout", 15*time.Second, "Heartbeat silence timeout before a session is dropped")
	mdnsEnable := fs.Bool("mdns-enable", false, "Advertise this controller via mDNS")
	mdnsName := fs.String("mdns-name", "", "mDNS instance name (default signal-controller-<hostname>)")
	configFile := fs.String("config", "", "Optional YAML config file")
	showVersion := fs.Bool("version", false, "Print version and exit")

	if err := fs.Parse(args); err != nil {
		return nil, false, err
	}

	set := config.Explicit{}
	fs.Visit(func(f *pflag.Flag) { set[f.Name] = struct{}{} })

	cfg.listenAddr = *listen
	cfg.adminCode = *adminCode
	cfg.deviceID = *deviceID
	cfg.logFormat = *logFormat
	cfg.logLevel = *logLevel
	cfg.logFile = *logFile
	cfg.metricsAddr = *metricsAddr
	cfg.maxClients = *maxClients
	cfg.handshakeTO = *handshakeTO
	cfg.heartbeatInterval = *heartbeatInterval
	cfg.heartbeatTO = *heartbeatTO
	cfg.mdnsEnable = *mdnsEnable
	cfg.mdnsName = *mdnsName
	cfg.configFile = *configFile

	if *configFile != "" {
		var fileCfg yamlConfig
		if err := config.LoadYAML(*configFile, true, &fileCfg); err != nil {
			return nil, *showVersion, err
		}
		fileCfg.applyTo(cfg, set)
	}

	if err := applyEnvOverrides(cfg, set); err != nil {
		return nil, *showVersion, err
	}
	if err := cfg.validate(); err != nil {
		return nil, *showVersion, err
	}

	admin, err := config.ParseAdminCode(cfg.adminCode)
	if err != nil {
		return nil, *showVersion, err
	}
	cfg.self = deviceid.ID{
		AdminCode:  admin,
		DeviceType: uint16(deviceid.SignalController),
		DeviceID:   cfg.deviceID,
	}
	return cfg, *showVersion, nil
}

// yamlConfig mirrors appConfig's settable fields for --config file layering
// (lowest precedence, below flags and environment).
type yamlConfig struct {
	Listen            string `yaml:"listen"`
	AdminCode         string `yaml:"admin_code"`
	DeviceID          uint16 `yaml:"device_id"`
	LogFormat         string `yaml:"log_format"`
	LogLevel          string `yaml:"log_level"`
	LogFile           string `yaml:"log_file"`
	MetricsAddr       string `yaml:"metrics_addr"`
	MaxClients        int    `yaml:"max_clients"`
	HandshakeTimeout  string `yaml:"handshake_timeout"`
	HeartbeatInterval string `yaml:"heartbeat_interval"`
	HeartbeatTimeout  string `yaml:"heartbeat_timeout"`
	MDNSEnable        bool   `yaml:"mdns_enable"`
	MDNSName          string `yaml:"mdns_name"`
}

func (y *yamlConfig) applyTo(c *appConfig, set config.Explicit) {
	apply := func(flag string, have bool, assign func()) {
		if have && !set.Has(flag) {
			assign()
		}
	}
	apply("listen", y.Listen != "", func() { c.listenAddr = y.Listen })
	apply("admin-code", y.AdminCode != "", func() { c.adminCode = y.AdminCode })
	apply("device-id", y.DeviceID != 0, func() { c.deviceID = y.DeviceID })
	apply("log-format", y.LogFormat != "", func() { c.logFormat = y.LogFormat })
	apply("log-level", y.LogLevel != "", func() { c.logLevel = y.LogLevel })
	apply("log-file", y.LogFile != "", func() { c.logFile = y.LogFile })
	apply("metrics-addr", y.MetricsAddr != "", func() { c.metricsAddr = y.MetricsAddr })
	apply("max-clients", y.MaxClients != 0, func() { c.maxClients = y.MaxClients })
	apply("mdns-enable", y.MDNSEnable, func() { c.mdnsEnable = y.MDNSEnable })
	apply("mdns-name", y.MDNSName != "", func() { c.mdnsName = y.MDNSName })
	if y.HandshakeTimeout != "" && !set.Has("handshake-timeout") {
		if d, err := time.ParseDuration(y.HandshakeTimeout); err == nil {
			c.handshakeTO = d
		}
	}
	if y.HeartbeatInterval != "" && !set.Has("heartbeat-interval") {
		if d, err := time.ParseDuration(y.HeartbeatInterval); err == nil {
			c.heartbeatInterval = d
		}
	}
	if y.HeartbeatTimeout != "" && !set.Has("heartbeat-timeout") {
		if d, err := time.ParseDuration(y.HeartbeatTimeout); err == nil {
			c.heartbeatTO = d
		}
	}
}

// applyEnvOverrides maps SIGNAL_CONTROLLER_* environment variables onto cfg
// for any flag not explicitly set, mirroring the teacher's CAN_SERVER_*
// override layer in cmd/can-server/config.go.
func applyEnvOverrides(c *appConfig, set config.Explicit) error {
	var errs config.FirstError
	config.StringEnv(set, "listen", "SIGNAL_CONTROLLER_LISTEN", &c.listenAddr)
	config.StringEnv(set, "admin-code", "SIGNAL_CONTROLLER_ADMIN_CODE", &c.adminCode)
	deviceID := int(c.deviceID)
	config.IntEnv(set, "device-id", "SIGNAL_CONTROLLER_DEVICE_ID", &deviceID, &errs)
	c.deviceID = uint16(deviceID)
	config.StringEnv(set, "log-format", "SIGNAL_CONTROLLER_LOG_FORMAT", &c.logFormat)
	config.StringEnv(set, "log-level", "SIGNAL_CONTROLLER_LOG_LEVEL", &c.logLevel)
	config.StringEnv(set, "log-file", "SIGNAL_CONTROLLER_LOG_FILE", &c.logFile)
	config.StringEnv(set, "metrics-addr", "SIGNAL_CONTROLLER_METRICS_ADDR", &c.metricsAddr)
	config.IntEnv(set, "max-clients", "SIGNAL_CONTROLLER_MAX_CLIENTS", &c.maxClients, &errs)
	config.DurationEnv(set, "handshake-timeout", "SIGNAL_CONTROLLER_HANDSHAKE_TIMEOUT", &c.handshakeTO, &errs)
	config.DurationEnv(set, "heartbeat-interval", "SIGNAL_CONTROLLER_HEARTBEAT_INTERVAL", &c.heartbeatInterval, &errs)
	config.DurationEnv(set, "heartbeat-timeout", "SIGNAL_CONTROLLER_HEARTBEAT_TIMEOUT", &c.heartbeatTO, &errs)
	config.BoolEnv(set, "mdns-enable", "SIGNAL_CONTROLLER_MDNS_ENABLE", &c.mdnsEnable)
	config.StringEnv(set, "mdns-name", "SIGNAL_CONTROLLER_MDNS_NAME", &c.mdnsName)
	return errs.Err()
}

func (c *appConfig) validate() error {
	if c == nil {
		return errors.New("nil config")
	}
	switch c.logFormat {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log-format: %s", c.logFormat)
	}
	switch c.logLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log-level: %s", c.logLevel)
	}
	if c.maxClients <= 0 {
		return fmt.Errorf("max-clients must be > 0 (got %d)", c.maxClients)
	}
	if c.handshakeTO <= 0 {
		return fmt.Errorf("handshake-timeout must be > 0")
	}
	if c.heartbeatInterval <= 0 {
		return fmt.Errorf("heartbeat-interval must be > 0")
	}
	if c.heartbeatTO <= c.heartbeatInterval {
		return fmt.Errorf("heartbeat-timeout must exceed heartbeat-interval")
	}
	return nil
}
