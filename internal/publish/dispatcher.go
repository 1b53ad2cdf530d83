package publish

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/thermal-monitor/internal/config"
	"github.com/thermal-monitor/internal/metrics"
)

const (
	defaultQueueSize = 256
	publishTimeout   = 5 * time.Second
)

// Dispatcher queues samples and delivers them to every publisher from a
// single background worker. Submit never blocks; a full queue drops the
// sample.
type Dispatcher struct {
	publishers []Publisher
	log        *logrus.Entry
	metrics    *metrics.Metrics

	queue    chan Sample
	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
	mu       sync.RWMutex
	stopped  bool
}

// NewDispatcher starts the delivery worker. With no publishers it is a no-op
// sink.
func NewDispatcher(publishers []Publisher, queueSize int, log *logrus.Logger, m *metrics.Metrics) *Dispatcher {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	d := &Dispatcher{
		publishers: publishers,
		log:        log.WithField("component", "publisher"),
		metrics:    m,
		queue:      make(chan Sample, queueSize),
		done:       make(chan struct{}),
	}
	if len(publishers) > 0 {
		d.wg.Add(1)
		go d.run()
	}
	return d
}

// Submit enqueues s for delivery.
func (d *Dispatcher) Submit(s Sample) {
	if len(d.publishers) == 0 {
		return
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.stopped {
		return
	}

	select {
	case d.queue <- s:
	default:
		d.metrics.PublishDropped.Inc()
		d.log.Debug("publish queue full, sample dropped")
	}
}

func (d *Dispatcher) run() {
	defer d.wg.Done()

	for {
		select {
		case s := <-d.queue:
			d.deliver(s)
		case <-d.done:
			// drain what was queued before Close
			for {
				select {
				case s := <-d.queue:
					d.deliver(s)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) deliver(s Sample) {
	for _, p := range d.publishers {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		err := p.Publish(ctx, s)
		cancel()
		if err != nil {
			d.metrics.PublishErrors.WithLabelValues(p.Name()).Inc()
			d.log.WithError(err).WithField("sink", p.Name()).Warn("sample delivery failed")
		}
	}
}

// Close stops accepting samples, flushes the queue and closes every
// publisher.
func (d *Dispatcher) Close() error {
	var errs []error
	d.stopOnce.Do(func() {
		d.mu.Lock()
		d.stopped = true
		d.mu.Unlock()

		close(d.done)
		d.wg.Wait()

		for _, p := range d.publishers {
			if err := p.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	})
	return errors.Join(errs...)
}

// FromConfig builds the publishers enabled in cfg. A sink that fails to
// initialise is logged and skipped so the monitor still serves reads.
func FromConfig(cfg config.PublishConfig, log *logrus.Logger) []Publisher {
	var publishers []Publisher

	if cfg.Kafka.Enabled {
		p, err := NewKafkaPublisher(cfg.Kafka)
		if err != nil {
			log.WithError(err).Error("kafka publisher disabled")
		} else {
			publishers = append(publishers, p)
			log.WithField("topic", cfg.Kafka.Topic).Info("kafka publisher enabled")
		}
	}

	if cfg.MQTT.Enabled {
		p, err := NewMQTTPublisher(cfg.MQTT)
		if err != nil {
			log.WithError(err).Error("mqtt publisher disabled")
		} else {
			publishers = append(publishers, p)
			log.WithField("topic", cfg.MQTT.Topic).Info("mqtt publisher enabled")
		}
	}

	if cfg.Influx.Enabled {
		publishers = append(publishers, NewInfluxPublisher(cfg.Influx))
		log.WithField("bucket", cfg.Influx.Bucket).Info("influx publisher enabled")
	}

	return publishers
}
