package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/thermal-monitor/internal/config"
	"github.com/thermal-monitor/internal/sensor"
)

// thermalprobe prints what the host exposes and which strategy the service
// would pick, without starting any server.
func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	readings := sensor.Discover(ctx)
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "KEY\tCOMPONENT\tCELSIUS\tHIGH\tCRITICAL")
	for _, r := range readings {
		fmt.Fprintf(w, "%s\t%s\t%.1f\t%.1f\t%.1f\n", r.Key, r.Name, r.Celsius, r.High, r.Critical)
	}
	w.Flush()
	if len(readings) == 0 {
		fmt.Println("no temperature sensors reported by this host")
	}

	detection := sensor.Detect(ctx, sensor.Options{
		KeyPrefixes:     cfg.Sensor.KeyPrefixes,
		FallbackCelsius: cfg.Sensor.FallbackCelsius,
		ReadTimeout:     time.Duration(cfg.Sensor.ReadTimeoutMs) * time.Millisecond,
		ForceFallback:   cfg.Sensor.ForceFallback,
	})

	fmt.Printf("\nselected source: %s\n", detection.Reader.Source())
	fmt.Printf("first reading:   %.1f C\n", detection.Seed)
	if detection.Reason != "" {
		fmt.Printf("fallback reason: %s\n", detection.Reason)
	}
}
