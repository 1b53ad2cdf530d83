// Package jsonrpc exposes the command registry over HTTP: unary JSON-RPC on
// POST /rpc, the temperature stream as server-sent events, Prometheus
// metrics and a health probe.
package jsonrpc

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"github.com/sirupsen/logrus"

	"github.com/thermal-monitor/internal/bounds"
	"github.com/thermal-monitor/internal/commands"
	"github.com/thermal-monitor/internal/config"
)

// maxBodyBytes bounds a POST /rpc body.
const maxBodyBytes = 1 << 20

// defaultStreamSeconds applies when GET /temperatures has no seconds query.
const defaultStreamSeconds = 1

// Health is what /healthz reports on.
type Health interface {
	Source() string
	MinMaxTemperature() bounds.Bounds
}

// Server handles JSON-RPC HTTP requests
type Server struct {
	config    config.HTTPConfig
	executor  *commands.Executor
	health    Health
	gatherer  prometheus.Gatherer
	log       *logrus.Entry
	accessLog *io.PipeWriter
	started   time.Time
	baseCtx   context.Context
	cancel    context.CancelFunc
}

// NewServer creates a new HTTP gateway. gatherer may be nil, in which case
// /metrics is not served.
func NewServer(cfg config.HTTPConfig, executor *commands.Executor, health Health, gatherer prometheus.Gatherer, log *logrus.Logger) *Server {
	if log == nil {
		log = logrus.StandardLogger()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		config:    cfg,
		executor:  executor,
		health:    health,
		gatherer:  gatherer,
		log:       log.WithField("component", "http"),
		accessLog: log.WriterLevel(logrus.DebugLevel),
		started:   time.Now(),
		baseCtx:   ctx,
		cancel:    cancel,
	}
}

// Handler builds the routed handler with access logging and CORS applied.
func (s *Server) Handler() http.Handler {
	router := mux.NewRouter()
	router.HandleFunc("/rpc", s.HandleRequest).Methods(http.MethodPost)
	router.HandleFunc("/temperatures", s.HandleTemperatures).Methods(http.MethodGet)
	router.HandleFunc("/healthz", s.HandleHealth).Methods(http.MethodGet)
	if s.gatherer != nil {
		router.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}
	router.Use(s.serverHeader)

	c := cors.New(cors.Options{
		AllowedOrigins: s.config.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Content-Type", "Cache-Control", "Last-Event-ID"},
	})
	return handlers.CombinedLoggingHandler(s.accessLog, c.Handler(router))
}

// NewHTTPServer wraps Handler in an http.Server on the configured port.
// WriteTimeout stays zero so event streams are not cut off.
func (s *Server) NewHTTPServer() *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.Port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return s.baseCtx },
	}
}

// Shutdown ends open event streams, then stops srv, waiting up to timeout
// for the remaining requests.
func (s *Server) Shutdown(srv *http.Server, timeout time.Duration) error {
	s.cancel()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	err := srv.Shutdown(ctx)
	s.accessLog.Close()
	return err
}

func (s *Server) serverHeader(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.config.ServerHeader != "" {
			w.Header().Set("Server", s.config.ServerHeader)
		}
		next.ServeHTTP(w, r)
	})
}

// HandleRequest handles HTTP POST requests to /rpc. Protocol level failures
// answer 400; method errors travel in the JSON-RPC envelope with 200. Calls
// run on the server context, so a client hanging up does not abort them.
func (s *Server) HandleRequest(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		s.writeResponse(w, http.StatusBadRequest, commands.NewError(nil, commands.CodeParseError, "Parse error", err.Error()))
		return
	}

	req, errResp := s.executor.Decode(body)
	if errResp != nil {
		s.writeResponse(w, http.StatusBadRequest, errResp)
		return
	}

	s.writeResponse(w, http.StatusOK, s.executor.Call(s.baseCtx, req))
}

func (s *Server) writeResponse(w http.ResponseWriter, status int, resp *commands.Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.log.WithError(err).Warn("failed to encode response")
	}
}

// HandleTemperatures streams samples as server-sent events until the client
// goes away. Each sample is a "temperature" event; a failure ends the stream
// with an "error" event.
func (s *Server) HandleTemperatures(w http.ResponseWriter, r *http.Request) {
	seconds := int64(defaultStreamSeconds)
	if v := r.URL.Query().Get("seconds"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			http.Error(w, "seconds must be an integer", http.StatusBadRequest)
			return
		}
		seconds = n
	}
	if seconds < 0 {
		http.Error(w, "seconds must not be negative", http.StatusBadRequest)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	streamID := uuid.NewString()
	params, _ := json.Marshal(commands.Duration{Seconds: seconds})
	req := &commands.Request{
		JSONRPC: commands.Version,
		Method:  "temperatures",
		Params:  params,
		ID:      streamID,
	}

	log := s.log.WithFields(logrus.Fields{"stream": streamID, "remote": r.RemoteAddr})
	log.Info("event stream started")

	sse := &eventWriter{w: w, flusher: flusher}
	err := s.executor.Stream(r.Context(), req, sse.write)
	log.WithError(err).WithField("events", sse.id).Info("event stream ended")
}

// eventWriter formats responses as SSE frames.
type eventWriter struct {
	mu      sync.Mutex
	w       io.Writer
	flusher http.Flusher
	id      int64
}

func (e *eventWriter) write(resp *commands.Response) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	event, payload := "temperature", interface{}(resp.Result)
	if resp.Error != nil {
		event, payload = "error", resp.Error
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}

	e.id++
	if _, err := fmt.Fprintf(e.w, "id: %d\nevent: %s\ndata: %s\n\n", e.id, event, data); err != nil {
		return fmt.Errorf("failed to write event: %w", err)
	}
	e.flusher.Flush()
	return nil
}

type healthResponse struct {
	Status    string  `json:"status"`
	Source    string  `json:"source"`
	Min       float64 `json:"min"`
	Max       float64 `json:"max"`
	UptimeSec int64   `json:"uptime_sec"`
}

// HandleHealth reports the sensor strategy and current bounds.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	b := s.health.MinMaxTemperature()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(healthResponse{
		Status:    "ok",
		Source:    s.health.Source(),
		Min:       b.Min,
		Max:       b.Max,
		UptimeSec: int64(time.Since(s.started).Seconds()),
	})
}
