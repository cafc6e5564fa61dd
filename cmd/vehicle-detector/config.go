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
	serverHost string
	serverPort int
	adminCode  string
	deviceType string
	deviceID   uint16

	logFormat   string
	logLevel    string
	logFile     string
	metricsAddr string

	connectRetry       time.Duration
	realtimeInterval   time.Duration
	statisticsInterval time.Duration
	heartbeatInterval  time.Duration
	heartbeatTO        time.Duration

	sensorBackend string
	sensorDevice  string
	sensorBaud    int

	mdnsDiscover bool
	configFile   string

	self deviceid.ID
}

func parseFlags(args []string) (*appConfig, bool, error) {
	fs := pflag.NewFlagSet("vehicle-detector", pflag.ContinueOnError)
	cfg := &appConfig{}

	serverHost := fs.String("server-host", "", "Signal controller host (used when --mdns-discover is off or fails)")
	serverPort := fs.Int("server-port", 40000, "Signal controller TCP port")
	adminCode := fs.String("admin-code", "0x01AD24", "24-bit administrative region code (decimal or 0x hex)")
	deviceType := fs.String("device-type", "inductive-loop", "Sensor kind: inductive-loop|magnetic|ultrasonic|video|microwave|radar|rfid")
	deviceID := fs.Uint16("device-id", 1, "Device identifier within the admin region")
	logFormat := fs.String("log-format", "text", "Log format: text|json")
	logLevel := fs.String("log-level", "info", "Log level: debug|info|warn|error")
	logFile := fs.String("log-file", "", "Log output file (default: stderr)")
	metricsAddr := fs.String("metrics-addr", "", "Metrics HTTP listen address (e.g. :9101); empty disables")
	connectRetry := fs.Duration("connect-retry", 5*time.Second, "Delay between reconnect attempts")
	realtimeInterval := fs.Duration("realtime-interval", 2*time.Second, "TRAFFIC_REALTIME upload interval")
	statisticsInterval := fs.Duration("statistics-interval", 60*time.Second, "TRAFFIC_STATS upload interval")
	heartbeatInterval := fs.Duration("heartbeat-interval", 5*time.Second, "Expected heartbeat query interval")
	heartbeatTO := fs.Duration("heartbeat-timeout", 15*time.Second, "Heartbeat silence timeout before reconnecting")
	sensorBackend := fs.String("sensor-backend", "simulated", "Sensor source: simulated|serial")
	sensorDevice := fs.String("sensor-device", "/dev/ttyUSB0", "Serial device path (when --sensor-backend=serial)")
	sensorBaud := fs.Int("sensor-baud", 9600, "Serial baud rate (when --sensor-backend=serial)")
	mdnsDiscover := fs.Bool("mdns-discover", false, "Discover the signal controller via mDNS before falling back to --server-host")
	configFile := fs.String("config", "", "Optional YAML config file")
	showVersion := fs.Bool("version", false, "Print version and exit")

	if err := fs.Parse(args); err != nil {
		return nil, false, err
	}

	set := config.Explicit{}
	fs.Visit(func(f *pflag.Flag) { set[f.Name] = struct{}{} })

	cfg.serverHost = *serverHost
	cfg.serverPort = *serverPort
	cfg.adminCode = *adminCode
	cfg.deviceType = *deviceType
	cfg.deviceID = *deviceID
	cfg.logFormat = *logFormat
	cfg.logLevel = *logLevel
	cfg.logFile = *logFile
	cfg.metricsAddr = *metricsAddr
	cfg.connectRetry = *connectRetry
	cfg.realtimeInterval = *realtimeInterval
	cfg.statisticsInterval = *statisticsInterval
	cfg.heartbeatInterval = *heartbeatInterval
	cfg.heartbeatTO = *heartbeatTO
	cfg.sensorBackend = *sensorBackend
	cfg.sensorDevice = *sensorDevice
	cfg.sensorBaud = *sensorBaud
	cfg.mdnsDiscover = *mdnsDiscover
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
	kind, err := config.ParseDeviceKind(cfg.deviceType)
	if err != nil {
		return nil, *showVersion, err
	}
	cfg.self = deviceid.ID{
		AdminCode:  admin,
		DeviceType: uint16(kind),
		DeviceID:   cfg.deviceID,
	}
	return cfg, *showVersion, nil
}

type yamlConfig struct {
	ServerHost         string `yaml:"server_host"`
	ServerPort         int    `yaml:"server_port"`
	AdminCode          string `yaml:"admin_code"`
	DeviceType         string `yaml:"device_type"`
	DeviceID           uint16 `yaml:"device_id"`
	LogFormat          string `yaml:"log_format"`
	LogLevel           string `yaml:"log_level"`
	LogFile            string `yaml:"log_file"`
	MetricsAddr        string `yaml:"metrics_addr"`
	ConnectRetry       string `yaml:"connect_retry"`
	RealtimeInterval   string `yaml:"realtime_interval"`
	StatisticsInterval string `yaml:"statistics_interval"`
	HeartbeatInterval  string `yaml:"heartbeat_interval"`
	HeartbeatTimeout   string `yaml:"heartbeat_timeout"`
	SensorBackend      string `yaml:"sensor_backend"`
	SensorDevice       string `yaml:"sensor_device"`
	SensorBaud         int    `yaml:"sensor_baud"`
	MDNSDiscover       bool   `yaml:"mdns_discover"`
}

func (y *yamlConfig) applyTo(c *appConfig, set config.Explicit) {
	apply := func(flag string, have bool, assign func()) {
		if have && !set.Has(flag) {
			assign()
		}
	}
	apply("server-host", y.ServerHost != "", func() { c.serverHost = y.ServerHost })
	apply("server-port", y.ServerPort != 0, func() { c.serverPort = y.ServerPort })
	apply("admin-code", y.AdminCode != "", func() { c.adminCode = y.AdminCode })
	apply("device-type", y.DeviceType != "", func() { c.deviceType = y.DeviceType })
	apply("device-id", y.DeviceID != 0, func() { c.deviceID = y.DeviceID })
	apply("log-format", y.LogFormat != "", func() { c.logFormat = y.LogFormat })
	apply("log-level", y.LogLevel != "", func() { c.logLevel = y.LogLevel })
	apply("log-file", y.LogFile != "", func() { c.logFile = y.LogFile })
	apply("metrics-addr", y.MetricsAddr != "", func() { c.metricsAddr = y.MetricsAddr })
	apply("sensor-backend", y.SensorBackend != "", func() { c.sensorBackend = y.SensorBackend })
	apply("sensor-device", y.SensorDevice != "", func() { c.sensorDevice = y.SensorDevice })
	apply("sensor-baud", y.SensorBaud != 0, func() { c.sensorBaud = y.SensorBaud })
	apply("mdns-discover", y.MDNSDiscover, func() { c.mdnsDiscover = y.MDNSDiscover })
	durs := []struct {
		flag string
		raw  string
		dst  *time.Duration
	}{
		{"connect-retry", y.ConnectRetry, &c.connectRetry},
		{"realtime-interval", y.RealtimeInterval, &c.realtimeInterval},
		{"statistics-interval", y.StatisticsInterval, &c.statisticsInterval},
		{"heartbeat-interval", y.HeartbeatInterval, &c.heartbeatInterval},
		{"heartbeat-timeout", y.HeartbeatTimeout, &c.heartbeatTO},
	}
	for _, d := range durs {
		if d.raw != "" && !set.Has(d.flag) {
			if parsed, err := time.ParseDuration(d.raw); err == nil {
				*d.dst = parsed
			}
		}
	}
}

// applyEnvOverrides maps VEHICLE_DETECTOR_* environment variables onto cfg
// for any flag not explicitly set.
func applyEnvOverrides(c *appConfig, set config.Explicit) error {
	var errs config.FirstError
	config.StringEnv(set, "server-host", "VEHICLE_DETECTOR_SERVER_HOST", &c.serverHost)
	config.IntEnv(set, "server-port", "VEHICLE_DETECTOR_SERVER_PORT", &c.serverPort, &errs)
	config.StringEnv(set, "admin-code", "VEHICLE_DETECTOR_ADMIN_CODE", &c.adminCode)
	config.StringEnv(set, "device-type", "VEHICLE_DETECTOR_DEVICE_TYPE", &c.deviceType)
	deviceID := int(c.deviceID)
	config.IntEnv(set, "device-id", "VEHICLE_DETECTOR_DEVICE_ID", &deviceID, &errs)
	c.deviceID = uint16(deviceID)
	config.StringEnv(set, "log-format", "VEHICLE_DETECTOR_LOG_FORMAT", &c.logFormat)
	config.StringEnv(set, "log-level", "VEHICLE_DETECTOR_LOG_LEVEL", &c.logLevel)
	config.StringEnv(set, "log-file", "VEHICLE_DETECTOR_LOG_FILE", &c.logFile)
	config.StringEnv(set, "metrics-addr", "VEHICLE_DETECTOR_METRICS_ADDR", &c.metricsAddr)
	config.DurationEnv(set, "connect-retry", "VEHICLE_DETECTOR_CONNECT_RETRY", &c.connectRetry, &errs)
	config.DurationEnv(set, "realtime-interval", "VEHICLE_DETECTOR_REALTIME_INTERVAL", &c.realtimeInterval, &errs)
	config.DurationEnv(set, "statistics-interval", "VEHICLE_DETECTOR_STATISTICS_INTERVAL", &c.statisticsInterval, &errs)
	config.DurationEnv(set, "heartbeat-interval", "VEHICLE_DETECTOR_HEARTBEAT_INTERVAL", &c.heartbeatInterval, &errs)
	config.DurationEnv(set, "heartbeat-timeout", "VEHICLE_DETECTOR_HEARTBEAT_TIMEOUT", &c.heartbeatTO, &errs)
	config.StringEnv(set, "sensor-backend", "VEHICLE_DETECTOR_SENSOR_BACKEND", &c.sensorBackend)
	config.StringEnv(set, "sensor-device", "VEHICLE_DETECTOR_SENSOR_DEVICE", &c.sensorDevice)
	config.IntEnv(set, "sensor-baud", "VEHICLE_DETECTOR_SENSOR_BAUD", &c.sensorBaud, &errs)
	config.BoolEnv(set, "mdns-discover", "VEHICLE_DETECTOR_MDNS_DISCOVER", &c.mdnsDiscover)
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
	switch c.sensorBackend {
	case "simulated", "serial":
	default:
		return fmt.Errorf("invalid sensor-backend: %s", c.sensorBackend)
	}
	if !c.mdnsDiscover && c.serverHost == "" {
		return errors.New("either --mdns-discover or --server-host must be set")
	}
	if c.serverPort <= 0 || c.serverPort > 65535 {
		return fmt.Errorf("server-port out of range: %d", c.serverPort)
	}
	if c.sensorBaud <= 0 {
		return fmt.Errorf("sensor-baud must be > 0")
	}
	if c.connectRetry <= 0 {
		return errors.New("connect-retry must be > 0")
	}
	if c.heartbeatTO <= c.heartbeatInterval {
		return errors.New("heartbeat-timeout must exceed heartbeat-interval")
	}
	return nil
}
