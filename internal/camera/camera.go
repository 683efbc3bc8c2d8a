// Package camera captures frames from a local video device.
package camera

import (
	"log/slog"
	"strconv"
	"time"
)

type Config struct {
	// Device is a numeric device index ("0") or a file/stream URL.
	Device string
	// GrabInterval bounds how often frames are pulled from the device.
	GrabInterval time.Duration
	Logger       *slog.Logger
}

func (c *Config) normalize() {
	if c.Device == "" {
		c.Device = "0"
	}
	if c.GrabInterval <= 0 {
		c.GrabInterval = 33 * time.Millisecond
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// deviceID returns the device as an index when it is numeric.
func deviceID(device string) any {
	if id, err := strconv.Atoi(device); err == nil {
		return id
	}
	return device
}
