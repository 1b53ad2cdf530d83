package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/thermal-monitor/internal/bounds"
	"github.com/thermal-monitor/internal/monitor"
	"github.com/thermal-monitor/internal/sensor"
)

// Monitor is the service the temperature commands drive.
type Monitor interface {
	CurrentTemperature(ctx context.Context) (float64, error)
	Temperatures(ctx context.Context, interval time.Duration) (<-chan monitor.Sample, error)
	MinMaxTemperature() bounds.Bounds
	StressTest(ctx context.Context, d time.Duration) (uint64, error)
}

// Temperature is the wire form of a single reading.
type Temperature struct {
	Celsius float64 `json:"celsius"`
}

// MinMax is the wire form of the running bounds.
type MinMax struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Duration is the request payload for temperatures and stress_test.
type Duration struct {
	Seconds int64 `json:"seconds"`
}

// Empty is the result of commands that return no data.
type Empty struct{}

// maxSeconds is the largest seconds value a time.Duration can hold.
const maxSeconds = int64(math.MaxInt64 / time.Second)

func decodeDuration(params json.RawMessage) (time.Duration, error) {
	var d Duration
	trimmed := bytes.TrimSpace(params)
	if len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null")) {
		if err := json.Unmarshal(trimmed, &d); err != nil {
			return 0, &CommandError{Code: ErrInvalidParams, Message: fmt.Sprintf("params must be {\"seconds\": <int>}: %v", err)}
		}
	}
	if d.Seconds < 0 {
		return 0, &CommandError{Code: ErrInvalidParams, Message: fmt.Sprintf("seconds must not be negative, got %d", d.Seconds)}
	}
	if d.Seconds > maxSeconds {
		return 0, &CommandError{Code: ErrInvalidParams, Message: fmt.Sprintf("seconds out of range, got %d, max %d", d.Seconds, maxSeconds)}
	}
	return time.Duration(d.Seconds) * time.Second, nil
}

func expectNoParams(params json.RawMessage) error {
	trimmed := bytes.TrimSpace(params)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) || bytes.Equal(trimmed, []byte("{}")) || bytes.Equal(trimmed, []byte("[]")) {
		return nil
	}
	return &CommandError{Code: ErrInvalidParams, Message: "This command does not accept parameters"}
}

// toCommandError maps service errors onto wire error codes.
func toCommandError(err error) error {
	var cmdErr *CommandError
	switch {
	case errors.As(err, &cmdErr):
		return err
	case errors.Is(err, monitor.ErrInvalidDuration):
		return &CommandError{Code: ErrInvalidParams, Message: err.Error()}
	case errors.Is(err, sensor.ErrNoSensor):
		return &CommandError{Code: ErrUnavailable, Message: err.Error()}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return &CommandError{Code: ErrUnavailable, Message: err.Error()}
	default:
		return &CommandError{Code: ErrInternal, Message: err.Error()}
	}
}

// CurrentTemperatureHandler handles current_temperature
type CurrentTemperatureHandler struct {
	monitor Monitor
}

// NewCurrentTemperatureHandler creates a new current temperature handler
func NewCurrentTemperatureHandler(m Monitor) *CurrentTemperatureHandler {
	return &CurrentTemperatureHandler{monitor: m}
}

func (h *CurrentTemperatureHandler) Handle(ctx context.Context, params json.RawMessage) (interface{}, error) {
	if err := expectNoParams(params); err != nil {
		return nil, err
	}
	celsius, err := h.monitor.CurrentTemperature(ctx)
	if err != nil {
		return nil, toCommandError(err)
	}
	return Temperature{Celsius: celsius}, nil
}

func (h *CurrentTemperatureHandler) GetName() string { return "current_temperature" }

func (h *CurrentTemperatureHandler) GetDescription() string {
	return "Read the CPU temperature now and widen the min/max bounds"
}

func (h *CurrentTemperatureHandler) IsReadOnly() bool { return true }

// TemperaturesHandler handles the temperatures stream
type TemperaturesHandler struct {
	monitor Monitor
}

// NewTemperaturesHandler creates a new streaming temperatures handler
func NewTemperaturesHandler(m Monitor) *TemperaturesHandler {
	return &TemperaturesHandler{monitor: m}
}

// Handle rejects unary use; transports must call Stream.
func (h *TemperaturesHandler) Handle(ctx context.Context, params json.RawMessage) (interface{}, error) {
	return nil, &CommandError{Code: ErrNotSupported, Message: "temperatures is a streaming method"}
}

func (h *TemperaturesHandler) Stream(ctx context.Context, params json.RawMessage, emit func(interface{}) error) error {
	interval, err := decodeDuration(params)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	samples, err := h.monitor.Temperatures(ctx, interval)
	if err != nil {
		return toCommandError(err)
	}

	for s := range samples {
		if s.Err != nil {
			return toCommandError(s.Err)
		}
		if err := emit(Temperature{Celsius: s.Celsius}); err != nil {
			// caller is gone; cancel stops the producer
			return nil
		}
	}
	return nil
}

func (h *TemperaturesHandler) GetName() string { return "temperatures" }

func (h *TemperaturesHandler) GetDescription() string {
	return "Stream a temperature every {seconds} until the caller disconnects"
}

func (h *TemperaturesHandler) IsReadOnly() bool { return true }

// MinMaxTemperatureHandler handles min_max_temperature
type MinMaxTemperatureHandler struct {
	monitor Monitor
}

// NewMinMaxTemperatureHandler creates a new bounds handler
func NewMinMaxTemperatureHandler(m Monitor) *MinMaxTemperatureHandler {
	return &MinMaxTemperatureHandler{monitor: m}
}

func (h *MinMaxTemperatureHandler) Handle(ctx context.Context, params json.RawMessage) (interface{}, error) {
	if err := expectNoParams(params); err != nil {
		return nil, err
	}
	b := h.monitor.MinMaxTemperature()
	return MinMax{Min: b.Min, Max: b.Max}, nil
}

func (h *MinMaxTemperatureHandler) GetName() string { return "min_max_temperature" }

func (h *MinMaxTemperatureHandler) GetDescription() string {
	return "Lowest and highest temperature seen since start"
}

func (h *MinMaxTemperatureHandler) IsReadOnly() bool { return true }

// StressTestHandler handles stress_test
type StressTestHandler struct {
	monitor Monitor
}

// NewStressTestHandler creates a new stress test handler
func NewStressTestHandler(m Monitor) *StressTestHandler {
	return &StressTestHandler{monitor: m}
}

func (h *StressTestHandler) Handle(ctx context.Context, params json.RawMessage) (interface{}, error) {
	d, err := decodeDuration(params)
	if err != nil {
		return nil, err
	}
	if _, err := h.monitor.StressTest(ctx, d); err != nil {
		return nil, toCommandError(err)
	}
	return Empty{}, nil
}

func (h *StressTestHandler) GetName() string { return "stress_test" }

func (h *StressTestHandler) GetDescription() string {
	return "Busy-loop one worker for {seconds} to heat the CPU"
}

func (h *StressTestHandler) IsReadOnly() bool { return false }

// ListMethodsHandler handles list_methods
type ListMethodsHandler struct {
	registry *CommandRegistry
}

func (h *ListMethodsHandler) Handle(ctx context.Context, params json.RawMessage) (interface{}, error) {
	return h.registry.Info(), nil
}

func (h *ListMethodsHandler) GetName() string { return "list_methods" }

func (h *ListMethodsHandler) GetDescription() string { return "Describe the available methods" }

func (h *ListMethodsHandler) IsReadOnly() bool { return true }

// RegisterTemperatureCommands registers the monitor commands in the registry
func RegisterTemperatureCommands(registry *CommandRegistry, m Monitor) {
	registry.Register(NewCurrentTemperatureHandler(m))
	registry.Register(NewTemperaturesHandler(m))
	registry.Register(NewMinMaxTemperatureHandler(m))
	registry.Register(NewStressTestHandler(m))
	registry.Register(&ListMethodsHandler{registry: registry})
}
