package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/thermal-monitor/internal/bounds"
	"github.com/thermal-monitor/internal/commands"
	"github.com/thermal-monitor/internal/config"
	"github.com/thermal-monitor/internal/jsonrpc"
	"github.com/thermal-monitor/internal/logging"
	"github.com/thermal-monitor/internal/metrics"
	"github.com/thermal-monitor/internal/monitor"
	"github.com/thermal-monitor/internal/publish"
	"github.com/thermal-monitor/internal/rpcserver"
	"github.com/thermal-monitor/internal/sensor"
)

func main() {
	port := flag.Int("port", 0, "TCP port for the RPC server (default from config, 50051)")
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}
	if *port != 0 {
		cfg.Network.RPC.Port = *port
	}

	log, logCloser, err := logging.New(cfg.Logging)
	if err != nil {
		logrus.Fatalf("Failed to set up logging: %v", err)
	}
	defer logCloser.Close()

	if err := run(cfg, log); err != nil {
		log.WithError(err).Error("thermal monitor stopped with error")
		logCloser.Close()
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *logrus.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithFields(logrus.Fields{
		"rpc_port":  cfg.Network.RPC.Port,
		"http_port": cfg.Network.HTTP.Port,
		"workers":   cfg.Network.RPC.MaxWorkers,
	}).Info("starting thermal monitor")

	detection := sensor.Detect(ctx, sensor.Options{
		KeyPrefixes:     cfg.Sensor.KeyPrefixes,
		FallbackCelsius: cfg.Sensor.FallbackCelsius,
		ReadTimeout:     time.Duration(cfg.Sensor.ReadTimeoutMs) * time.Millisecond,
		ForceFallback:   cfg.Sensor.ForceFallback,
	})
	entry := log.WithFields(logrus.Fields{
		"source": detection.Reader.Source(),
		"seed":   detection.Seed,
	})
	if detection.Reason != "" {
		entry.WithField("reason", detection.Reason).Warn("using fallback temperature")
	} else {
		entry.Info("using host temperature sensor")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	opts := []monitor.Option{
		monitor.WithMetrics(m),
		monitor.WithLogger(log),
		monitor.WithLimits(monitor.Limits{
			MaxStress:         time.Duration(cfg.Limits.MaxStressSec) * time.Second,
			MinStreamInterval: time.Duration(cfg.Limits.MinStreamInterval) * time.Second,
		}),
	}

	var dispatcher *publish.Dispatcher
	if publishers := publish.FromConfig(cfg.Publish, log); len(publishers) > 0 {
		dispatcher = publish.NewDispatcher(publishers, cfg.Publish.QueueSize, log, m)
		opts = append(opts, monitor.WithSink(dispatcher))
	}

	svc := monitor.NewService(detection.Reader, bounds.New(detection.Seed), opts...)

	registry := commands.NewCommandRegistry()
	commands.RegisterTemperatureCommands(registry, svc)
	executor := commands.NewExecutor(registry, cfg.Network.RPC.MaxWorkers, m, log)

	rpc := rpcserver.NewServer(cfg.Network.RPC, executor, log)

	var gateway *jsonrpc.Server
	var httpServer *http.Server
	if cfg.Network.HTTP.Enabled {
		gateway = jsonrpc.NewServer(cfg.Network.HTTP, executor, svc, reg, log)
		httpServer = gateway.NewHTTPServer()
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return rpc.ListenAndServe()
	})

	if httpServer != nil {
		g.Go(func() error {
			log.WithField("port", cfg.Network.HTTP.Port).Info("http gateway listening")
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down servers")

		if httpServer != nil {
			if err := gateway.Shutdown(httpServer, 5*time.Second); err != nil {
				log.WithError(err).Warn("http gateway shutdown error")
			}
		}
		if err := rpc.Close(); err != nil {
			log.WithError(err).Warn("rpc server shutdown error")
		}
		if dispatcher != nil {
			if err := dispatcher.Close(); err != nil {
				log.WithError(err).Warn("publisher shutdown error")
			}
		}
		return nil
	})

	err := g.Wait()
	b := svc.MinMaxTemperature()
	log.WithFields(logrus.Fields{"min": b.Min, "max": b.Max}).Info("servers stopped")
	return err
}
