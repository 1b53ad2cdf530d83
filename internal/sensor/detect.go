package sensor

import (
	"context"
	"time"

	"github.com/shirou/gopsutil/v3/host"
)

// Options controls strategy selection.
type Options struct {
	KeyPrefixes     []string
	FallbackCelsius float64
	ReadTimeout     time.Duration
	// ForceFallback skips probing, for hosts known to lack a sensor.
	ForceFallback bool
}

// Detection is the outcome of the one-time capability check.
type Detection struct {
	Reader Reader
	// Seed is the first reading, used to initialise the bounds.
	Seed float64
	// Reason explains why the fallback was chosen. Empty for host readers.
	Reason string
}

// Detect probes the host once and picks the host or fallback strategy.
// It never fails: any probe problem selects the fallback.
func Detect(ctx context.Context, opts Options) Detection {
	return detect(ctx, opts, host.SensorsTemperaturesWithContext)
}

func detect(ctx context.Context, opts Options, fn temperaturesFunc) Detection {
	fallback := func(reason string) Detection {
		return Detection{
			Reader: NewFallbackReader(opts.FallbackCelsius),
			Seed:   opts.FallbackCelsius,
			Reason: reason,
		}
	}

	if opts.ForceFallback {
		return fallback("fallback forced by configuration")
	}

	probeCtx := ctx
	if opts.ReadTimeout > 0 {
		var cancel context.CancelFunc
		probeCtx, cancel = context.WithTimeout(ctx, opts.ReadTimeout)
		defer cancel()
	}

	stats, err := fn(probeCtx)
	if err != nil && len(stats) == 0 {
		if isNotImplemented(err) {
			return fallback("sensor facility not implemented on this platform")
		}
		return fallback("sensor probe failed: " + err.Error())
	}

	keys := make([]string, 0, len(stats))
	for _, s := range stats {
		keys = append(keys, s.SensorKey)
	}

	key, ok := matchKey(keys, opts.KeyPrefixes)
	if !ok {
		return fallback("no cpu sensor among host sensors")
	}

	reader := newHostReader(key, opts.ReadTimeout, fn)
	seed, err := reader.Read(ctx)
	if err != nil {
		return fallback("first read failed: " + err.Error())
	}

	return Detection{Reader: reader, Seed: seed}
}
