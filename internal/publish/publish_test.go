package publish

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/segmentio/kafka-go"

	"github.com/thermal-monitor/internal/config"
	"github.com/thermal-monitor/internal/logging"
	"github.com/thermal-monitor/internal/metrics"
)

type recordingPublisher struct {
	mu      sync.Mutex
	samples []Sample
	fail    bool
	closed  bool
	block   chan struct{}
}

func (r *recordingPublisher) Name() string { return "recording" }

func (r *recordingPublisher) Publish(ctx context.Context, s Sample) error {
	if r.block != nil {
		<-r.block
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return errors.New("sink down")
	}
	r.samples = append(r.samples, s)
	return nil
}

func (r *recordingPublisher) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *recordingPublisher) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.samples)
}

func TestDispatcherDeliversAndFlushesOnClose(t *testing.T) {
	rec := &recordingPublisher{}
	d := NewDispatcher([]Publisher{rec}, 16, logging.Discard(), metrics.NewNop())

	for i := 0; i < 10; i++ {
		d.Submit(Sample{Celsius: float64(40 + i), Source: "fallback", Time: time.Now()})
	}
	if err := d.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if rec.count() != 10 {
		t.Errorf("Expected 10 delivered samples, got %d", rec.count())
	}
	if !rec.closed {
		t.Error("Expected publisher to be closed")
	}

	// submits after close are ignored
	d.Submit(Sample{Celsius: 99})
	if rec.count() != 10 {
		t.Errorf("Expected no delivery after close, got %d", rec.count())
	}
}

func TestDispatcherDropsWhenQueueFull(t *testing.T) {
	rec := &recordingPublisher{block: make(chan struct{})}
	m := metrics.NewNop()
	d := NewDispatcher([]Publisher{rec}, 1, logging.Discard(), m)

	// first sample is taken by the worker and blocks, second fills the queue
	for i := 0; i < 10; i++ {
		d.Submit(Sample{Celsius: float64(i)})
	}
	close(rec.block)
	if err := d.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if got := rec.count(); got < 1 || got > 2 {
		t.Errorf("Expected 1-2 delivered samples, got %d", got)
	}
}

func TestDispatcherCountsErrors(t *testing.T) {
	rec := &recordingPublisher{fail: true}
	d := NewDispatcher([]Publisher{rec}, 4, logging.Discard(), metrics.NewNop())
	d.Submit(Sample{Celsius: 41})
	if err := d.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if rec.count() != 0 {
		t.Errorf("Expected no recorded samples, got %d", rec.count())
	}
}

func TestDispatcherWithoutPublishers(t *testing.T) {
	d := NewDispatcher(nil, 0, logging.Discard(), metrics.NewNop())
	d.Submit(Sample{Celsius: 40})
	if err := d.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

type fakeKafkaWriter struct {
	msgs   []kafka.Message
	closed bool
}

func (f *fakeKafkaWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeKafkaWriter) Close() error {
	f.closed = true
	return nil
}

func TestKafkaPublisherEncodesSample(t *testing.T) {
	w := &fakeKafkaWriter{}
	p := &KafkaPublisher{writer: w, topic: "thermal.samples"}

	at := time.Date(2026, 2, 21, 14, 30, 0, 0, time.UTC)
	if err := p.Publish(context.Background(), Sample{Celsius: 52.1, Source: "cpu_thermal", Host: "pi4", Time: at}); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	if len(w.msgs) != 1 {
		t.Fatalf("Expected 1 message, got %d", len(w.msgs))
	}
	if string(w.msgs[0].Key) != "pi4" {
		t.Errorf("Key = %q, want pi4", w.msgs[0].Key)
	}

	var got Sample
	if err := json.Unmarshal(w.msgs[0].Value, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Celsius != 52.1 || got.Source != "cpu_thermal" || !got.Time.Equal(at) {
		t.Errorf("Decoded sample = %+v", got)
	}

	p.Close()
	if !w.closed {
		t.Error("Expected writer to be closed")
	}
}

func TestNewKafkaPublisherRequiresBrokers(t *testing.T) {
	if _, err := NewKafkaPublisher(config.KafkaConfig{Topic: "t"}); err == nil {
		t.Error("Expected error without brokers")
	}
}

type fakeToken struct {
	mqtt.Token
	err  error
	done chan struct{}
}

func (f *fakeToken) Done() <-chan struct{} { return f.done }
func (f *fakeToken) Error() error          { return f.err }

type fakeMQTTClient struct {
	mqtt.Client
	topic   string
	payload []byte
	qos     byte
}

func (f *fakeMQTTClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	f.topic = topic
	f.qos = qos
	f.payload = payload.([]byte)
	done := make(chan struct{})
	close(done)
	return &fakeToken{done: done}
}

func TestMQTTPublisher(t *testing.T) {
	client := &fakeMQTTClient{}
	p := newMQTTPublisher(client, "thermal/samples", 1)

	if err := p.Publish(context.Background(), Sample{Celsius: 47.0, Source: "cpu_thermal"}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if client.topic != "thermal/samples" || client.qos != 1 {
		t.Errorf("Published to %s qos %d", client.topic, client.qos)
	}

	var got Sample
	if err := json.Unmarshal(client.payload, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Celsius != 47.0 {
		t.Errorf("Celsius = %f, want 47.0", got.Celsius)
	}
}

func TestInfluxPoint(t *testing.T) {
	at := time.Date(2026, 2, 21, 14, 30, 0, 0, time.UTC)
	p := newPoint("cpu_temperature", Sample{Celsius: 48.3, Source: "bcm2835_thermal", Host: "pi4", Time: at})

	if p.Name() != "cpu_temperature" {
		t.Errorf("Name = %s", p.Name())
	}
	if !p.Time().Equal(at) {
		t.Errorf("Time = %v, want %v", p.Time(), at)
	}

	tags := make(map[string]string)
	for _, tag := range p.TagList() {
		tags[tag.Key] = tag.Value
	}
	if tags["host"] != "pi4" || tags["sensor"] != "bcm2835_thermal" {
		t.Errorf("Tags = %v", tags)
	}

	fields := p.FieldList()
	if len(fields) != 1 || fields[0].Key != "celsius" || fields[0].Value != 48.3 {
		t.Errorf("Fields = %+v", fields)
	}
}

func TestFromConfigDisabled(t *testing.T) {
	if got := FromConfig(config.Default().Publish, logging.Discard()); len(got) != 0 {
		t.Errorf("Expected no publishers, got %d", len(got))
	}
}
