package sensor

import "context"

// FallbackReader reports a fixed temperature. It stands in for hosts that
// expose no CPU sensor, e.g. development machines off-device.
type FallbackReader struct {
	celsius float64
}

// NewFallbackReader returns a reader pinned at celsius.
func NewFallbackReader(celsius float64) *FallbackReader {
	return &FallbackReader{celsius: celsius}
}

func (f *FallbackReader) Read(ctx context.Context) (float64, error) {
	return f.celsius, nil
}

func (f *FallbackReader) Source() string {
	return "fallback"
}
