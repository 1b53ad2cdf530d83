package publish

import (
	"context"
	"fmt"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/thermal-monitor/internal/config"
)

type pointWriter interface {
	WritePoint(ctx context.Context, point ...*write.Point) error
}

// InfluxPublisher writes one point per sample through the blocking write API.
type InfluxPublisher struct {
	client      influxdb2.Client
	writer      pointWriter
	measurement string
}

// NewInfluxPublisher creates a client for cfg.URL. No request is made until
// the first sample.
func NewInfluxPublisher(cfg config.InfluxConfig) *InfluxPublisher {
	client := influxdb2.NewClient(cfg.URL, cfg.Token)
	return &InfluxPublisher{
		client:      client,
		writer:      client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		measurement: cfg.Measurement,
	}
}

func (i *InfluxPublisher) Name() string { return "influx" }

func (i *InfluxPublisher) Publish(ctx context.Context, s Sample) error {
	p := newPoint(i.measurement, s)
	if err := i.writer.WritePoint(ctx, p); err != nil {
		return fmt.Errorf("influx write: %w", err)
	}
	return nil
}

func newPoint(measurement string, s Sample) *write.Point {
	return influxdb2.NewPoint(
		measurement,
		map[string]string{"host": s.Host, "sensor": s.Source},
		map[string]interface{}{"celsius": s.Celsius},
		s.Time,
	)
}

func (i *InfluxPublisher) Close() error {
	if i.client != nil {
		i.client.Close()
	}
	return nil
}
