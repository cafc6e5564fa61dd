package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/kstaniek/gbt43229-signal-link/internal/deviceid"
)

// ParseAdminCode accepts either decimal or 0x-prefixed hex and enforces the
// 24-bit admin-code invariant (spec §3).
func ParseAdminCode(s string) (uint32, error) {
	n, err := strconv.ParseUint(strings.TrimSpace(s), 0, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid admin-code %q: %w", s, err)
	}
	if n > deviceid.MaxAdminCode {
		return 0, fmt.Errorf("admin-code %q exceeds 24 bits", s)
	}
	return uint32(n), nil
}

// ParseDeviceKind maps the --device-type flag value used by
// vehicle-detector to a deviceid.DeviceKind.
func ParseDeviceKind(s string) (deviceid.DeviceKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "inductive-loop", "inductive":
		return deviceid.InductiveLoop, nil
	case "magnetic":
		return deviceid.Magnetic, nil
	case "ultrasonic":
		return deviceid.Ultrasonic, nil
	case "video":
		return deviceid.Video, nil
	case "microwave":
		return deviceid.Microwave, nil
	case "radar":
		return deviceid.Radar, nil
	case "rfid":
		return deviceid.RFID, nil
	default:
		return 0, fmt.Errorf("unknown device-type %q", s)
	}
}
