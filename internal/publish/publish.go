// Package publish fans observed temperature samples out to external sinks.
// Every sink is optional; the dispatcher keeps broker latency off the read
// path.
package publish

import (
	"context"
	"encoding/json"
	"time"
)

// Sample is one observed CPU temperature.
type Sample struct {
	Celsius float64   `json:"celsius"`
	Source  string    `json:"source"`
	Host    string    `json:"host"`
	Time    time.Time `json:"time"`
}

func (s Sample) encode() ([]byte, error) {
	return json.Marshal(s)
}

// Publisher delivers samples to one sink.
type Publisher interface {
	Name() string
	Publish(ctx context.Context, s Sample) error
	Close() error
}
