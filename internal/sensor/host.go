package sensor

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/host"
)

// temperaturesFunc matches host.SensorsTemperaturesWithContext so tests can
// substitute a canned sensor table.
type temperaturesFunc func(ctx context.Context) ([]host.TemperatureStat, error)

// HostReader reads one named sensor through gopsutil.
type HostReader struct {
	key          string
	timeout      time.Duration
	temperatures temperaturesFunc
}

func newHostReader(key string, timeout time.Duration, fn temperaturesFunc) *HostReader {
	return &HostReader{key: key, timeout: timeout, temperatures: fn}
}

func (h *HostReader) Read(ctx context.Context) (float64, error) {
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	stats, err := h.temperatures(ctx)
	// gopsutil returns partial results together with warnings for
	// unreadable hwmon entries, so only fail when nothing came back.
	if err != nil && len(stats) == 0 {
		return 0, fmt.Errorf("read sensors: %w", err)
	}

	for _, s := range stats {
		if s.SensorKey == h.key {
			return s.Temperature, nil
		}
	}
	return 0, fmt.Errorf("%w: %s", ErrNoSensor, h.key)
}

func (h *HostReader) Source() string {
	return h.key
}

// Discover lists every temperature sensor the host exposes, sorted by key.
// Hosts without the facility yield an empty list.
func Discover(ctx context.Context) []Reading {
	return discover(ctx, host.SensorsTemperaturesWithContext)
}

func discover(ctx context.Context, fn temperaturesFunc) []Reading {
	stats, err := fn(ctx)
	if err != nil && len(stats) == 0 {
		return nil
	}

	readings := make([]Reading, 0, len(stats))
	for _, s := range stats {
		readings = append(readings, Reading{
			Key:      s.SensorKey,
			Name:     FriendlyName(s.SensorKey),
			Celsius:  s.Temperature,
			High:     s.High,
			Critical: s.Critical,
		})
	}
	sort.SliceStable(readings, func(i, j int) bool {
		return readings[i].Key < readings[j].Key
	})
	return readings
}

// isNotImplemented reports whether err means the platform has no sensor
// facility at all, as opposed to a transient read failure.
func isNotImplemented(err error) bool {
	text := strings.ToLower(err.Error())
	return strings.Contains(text, "not implemented") || strings.Contains(text, "not supported")
}
