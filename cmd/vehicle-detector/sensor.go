package main

import (
	"fmt"
	"time"

	"github.com/kstaniek/gbt43229-signal-link/internal/detector/sensor"
)

func openSensor(cfg *appConfig) (sensor.Source, error) {
	laneID := uint8(cfg.deviceID)
	switch cfg.sensorBackend {
	case "serial":
		return sensor.NewSerial(cfg.sensorDevice, cfg.sensorBaud, 200*time.Millisecond, laneID)
	case "simulated":
		return sensor.NewSimulated(int64(cfg.self.DeviceID), laneID), nil
	default:
		return nil, fmt.Errorf("unknown sensor-backend %q", cfg.sensorBackend)
	}
}
