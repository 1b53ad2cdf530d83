// Package monitor implements the four temperature operations on top of a
// sensor reader and a bounds tracker.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/thermal-monitor/internal/bounds"
	"github.com/thermal-monitor/internal/metrics"
	"github.com/thermal-monitor/internal/publish"
	"github.com/thermal-monitor/internal/sensor"
)

var (
	// ErrInvalidDuration is returned for negative durations and for
	// durations outside the configured limits.
	ErrInvalidDuration = errors.New("invalid duration")
)

// stressCheckEvery is how many loop iterations pass between context checks
// in StressTest.
const stressCheckEvery = 1 << 16

// Sink receives every observed sample.
type Sink interface {
	Submit(s publish.Sample)
}

// Limits caps caller supplied durations. Zero fields disable the check.
type Limits struct {
	MaxStress         time.Duration
	MinStreamInterval time.Duration
}

// Sample is one element of a temperature stream. A sample with a non-nil Err
// is the last one on its channel.
type Sample struct {
	Celsius float64
	Time    time.Time
	Err     error
}

// Service owns the bounds and serves the monitor operations. All methods are
// safe for concurrent use.
type Service struct {
	reader  sensor.Reader
	bounds  *bounds.Tracker
	sink    Sink
	metrics *metrics.Metrics
	limits  Limits
	log     *logrus.Entry
	host    string
	now     func() time.Time

	// gaugeMu orders bounds gauge updates so the last write is the widest.
	gaugeMu sync.Mutex
}

// Option customises a Service.
type Option func(*Service)

// WithSink forwards every observed sample to sink.
func WithSink(sink Sink) Option {
	return func(s *Service) { s.sink = sink }
}

// WithMetrics records readings and bounds on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithLimits applies duration limits.
func WithLimits(l Limits) Option {
	return func(s *Service) { s.limits = l }
}

// WithLogger sets the logger.
func WithLogger(log *logrus.Logger) Option {
	return func(s *Service) { s.log = log.WithField("component", "monitor") }
}

// NewService creates the service. tracker must already be seeded with the
// first reading.
func NewService(reader sensor.Reader, tracker *bounds.Tracker, opts ...Option) *Service {
	hostname, _ := os.Hostname()
	s := &Service{
		reader: reader,
		bounds: tracker,
		log:    logrus.NewEntry(logrus.StandardLogger()).WithField("component", "monitor"),
		host:   hostname,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = metrics.NewNop()
	}

	s.setBoundsGauges()
	return s
}

// setBoundsGauges snapshots the tracker and exports it. The snapshot is
// taken under gaugeMu, and bounds only widen, so a concurrent update can
// never leave an older pair on the gauges.
func (s *Service) setBoundsGauges() bounds.Bounds {
	s.gaugeMu.Lock()
	defer s.gaugeMu.Unlock()
	b := s.bounds.Snapshot()
	s.metrics.Min.Set(b.Min)
	s.metrics.Max.Set(b.Max)
	return b
}

// Source names the sensor behind the service.
func (s *Service) Source() string {
	return s.reader.Source()
}

// CurrentTemperature reads the sensor, widens the bounds and returns the
// reading.
func (s *Service) CurrentTemperature(ctx context.Context) (float64, error) {
	celsius, err := s.reader.Read(ctx)
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", s.reader.Source(), err)
	}

	if s.bounds.Observe(celsius) {
		b := s.setBoundsGauges()
		s.log.WithFields(logrus.Fields{"min": b.Min, "max": b.Max}).Debug("bounds widened")
	}
	s.metrics.Temperature.Set(celsius)

	if s.sink != nil {
		s.sink.Submit(publish.Sample{
			Celsius: celsius,
			Source:  s.reader.Source(),
			Host:    s.host,
			Time:    s.now(),
		})
	}
	return celsius, nil
}

// MinMaxTemperature returns the bounds without taking a reading.
func (s *Service) MinMaxTemperature() bounds.Bounds {
	return s.bounds.Snapshot()
}

// Temperatures starts a stream that reads, emits, then waits interval, until
// ctx is done. ctx is the caller's liveness signal: it is checked before
// every read and interrupts the wait. The channel is closed when the stream
// ends. A zero interval streams without pause.
func (s *Service) Temperatures(ctx context.Context, interval time.Duration) (<-chan Sample, error) {
	if interval < 0 {
		return nil, fmt.Errorf("%w: interval %v is negative", ErrInvalidDuration, interval)
	}
	if s.limits.MinStreamInterval > 0 && interval < s.limits.MinStreamInterval {
		return nil, fmt.Errorf("%w: interval %v below minimum %v", ErrInvalidDuration, interval, s.limits.MinStreamInterval)
	}

	out := make(chan Sample)
	s.metrics.ActiveStreams.Inc()

	go func() {
		defer close(out)
		defer s.metrics.ActiveStreams.Dec()

		for {
			if ctx.Err() != nil {
				return
			}

			celsius, err := s.CurrentTemperature(ctx)
			if ctx.Err() != nil {
				// the caller left while we were reading
				return
			}
			sample := Sample{Celsius: celsius, Time: s.now(), Err: err}

			select {
			case out <- sample:
			case <-ctx.Done():
				return
			}
			if err != nil {
				return
			}

			if interval == 0 {
				runtime.Gosched()
				continue
			}
			timer := time.NewTimer(interval)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return
			}
		}
	}()

	return out, nil
}

// StressTest burns CPU on the calling goroutine for d and returns how many
// loop iterations ran. It shares no lock with reads, so concurrent streams
// keep sampling while it runs. ctx is only consulted periodically so that
// shutdown is not held up by a long test.
func (s *Service) StressTest(ctx context.Context, d time.Duration) (uint64, error) {
	if d < 0 {
		return 0, fmt.Errorf("%w: duration %v is negative", ErrInvalidDuration, d)
	}
	if s.limits.MaxStress > 0 && d > s.limits.MaxStress {
		return 0, fmt.Errorf("%w: duration %v exceeds maximum %v", ErrInvalidDuration, d, s.limits.MaxStress)
	}
	if d == 0 {
		return 0, nil
	}

	s.metrics.StressRunning.Inc()
	defer s.metrics.StressRunning.Dec()

	var counter uint64
	start := time.Now()
	for time.Since(start) < d {
		counter++
		if counter%stressCheckEvery == 0 && ctx.Err() != nil {
			return counter, ctx.Err()
		}
	}

	s.log.WithFields(logrus.Fields{
		"duration":   d,
		"iterations": counter,
	}).Info("stress test finished")
	return counter, nil
}
