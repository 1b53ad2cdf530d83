// Package sensor reads the CPU package temperature from the host.
//
// The host strategy is backed by gopsutil's hwmon / thermal_zone scan. Hosts
// without a usable CPU sensor get a fixed fallback reading instead, chosen
// once at startup by Detect.
package sensor

import (
	"context"
	"errors"
)

// DefaultFallbackCelsius is reported when the host has no CPU sensor.
const DefaultFallbackCelsius = 40.0

// ErrNoSensor is returned when the selected sensor disappears from the host.
var ErrNoSensor = errors.New("cpu temperature sensor not available")

// Reader returns the current CPU temperature in degrees Celsius.
// Implementations are safe for concurrent use.
type Reader interface {
	Read(ctx context.Context) (float64, error)
	// Source names the backing sensor, e.g. "bcm2835_thermal" or "fallback".
	Source() string
}

// Reading is a single sensor as reported by the host.
type Reading struct {
	Key      string  // e.g. "cpu_thermal"
	Name     string  // friendly component name, e.g. "CPU"
	Celsius  float64 // current temperature
	High     float64 // 0 if not available
	Critical float64 // 0 if not available
}
