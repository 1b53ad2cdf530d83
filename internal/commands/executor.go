package commands

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"github.com/thermal-monitor/internal/metrics"
)

// Executor turns JSON-RPC requests into handler calls and handler results
// into JSON-RPC responses. It is shared by the TCP and HTTP transports, so
// its worker pool bounds the calls in flight across both: every unary call
// and every open stream holds one slot.
type Executor struct {
	registry *CommandRegistry
	workers  *semaphore.Weighted
	metrics  *metrics.Metrics
	log      *logrus.Entry
}

// NewExecutor creates an executor over registry with maxWorkers slots.
// m and log may be nil.
func NewExecutor(registry *CommandRegistry, maxWorkers int, m *metrics.Metrics, log *logrus.Logger) *Executor {
	if maxWorkers <= 0 {
		maxWorkers = 1
	}
	if m == nil {
		m = metrics.NewNop()
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Executor{
		registry: registry,
		workers:  semaphore.NewWeighted(int64(maxWorkers)),
		metrics:  m,
		log:      log.WithField("component", "executor"),
	}
}

// Registry returns the underlying command registry.
func (e *Executor) Registry() *CommandRegistry {
	return e.registry
}

// Decode parses one request. When the request is unusable the returned
// response carries the error to send back and the request is nil.
func (e *Executor) Decode(data []byte) (*Request, *Response) {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		e.metrics.Requests.WithLabelValues("", "PARSE_ERROR").Inc()
		return nil, NewError(nil, CodeParseError, "Parse error", err.Error())
	}
	if req.JSONRPC != Version || req.Method == "" {
		e.metrics.Requests.WithLabelValues(req.Method, "INVALID_REQUEST").Inc()
		return nil, NewError(req.ID, CodeInvalidRequest, "Invalid Request", "")
	}
	return &req, nil
}

// IsStreaming reports whether method produces a stream of responses.
func (e *Executor) IsStreaming(method string) bool {
	handler, ok := e.registry.Get(method)
	if !ok {
		return false
	}
	_, streaming := handler.(StreamHandler)
	return streaming
}

// Call runs a unary method, waiting for a free worker first. Streaming
// methods are refused because a single response cannot carry them.
func (e *Executor) Call(ctx context.Context, req *Request) *Response {
	handler, ok := e.registry.Get(req.Method)
	if !ok {
		e.metrics.Requests.WithLabelValues(req.Method, "METHOD_NOT_FOUND").Inc()
		return NewError(req.ID, CodeMethodNotFound, "Method not found", req.Method)
	}
	if _, streaming := handler.(StreamHandler); streaming {
		e.metrics.Requests.WithLabelValues(req.Method, ErrNotSupported).Inc()
		return NewError(req.ID, CodeMethodNotFound, "Method is streaming", "use a streaming transport for "+req.Method)
	}

	if err := e.workers.Acquire(ctx, 1); err != nil {
		return e.errorResponse(req, &CommandError{Code: ErrUnavailable, Message: "no worker available: " + err.Error()})
	}
	defer e.workers.Release(1)

	start := time.Now()
	result, err := handler.Handle(ctx, req.Params)
	if err != nil {
		return e.errorResponse(req, err)
	}

	e.metrics.Requests.WithLabelValues(req.Method, "OK").Inc()
	e.log.WithFields(logrus.Fields{
		"method":   req.Method,
		"duration": time.Since(start),
	}).Debug("request processed")
	return NewResult(req.ID, result)
}

// Stream runs method and hands every response to emit, all carrying the
// request id. Unary methods produce exactly one response. Stream returns
// when the handler ends, ctx is done or emit fails; the error is emit's.
func (e *Executor) Stream(ctx context.Context, req *Request, emit func(*Response) error) error {
	handler, ok := e.registry.Get(req.Method)
	if !ok {
		return emit(e.Call(ctx, req))
	}
	streamer, streaming := handler.(StreamHandler)
	if !streaming {
		return emit(e.Call(ctx, req))
	}

	if err := e.workers.Acquire(ctx, 1); err != nil {
		return emit(e.errorResponse(req, &CommandError{Code: ErrUnavailable, Message: "no worker available: " + err.Error()}))
	}
	defer e.workers.Release(1)

	var emitErr error
	err := streamer.Stream(ctx, req.Params, func(result interface{}) error {
		if emitErr = emit(NewResult(req.ID, result)); emitErr != nil {
			return emitErr
		}
		return nil
	})
	if emitErr != nil {
		e.metrics.Requests.WithLabelValues(req.Method, "OK").Inc()
		e.log.WithField("method", req.Method).Debug("stream closed by peer")
		return emitErr
	}
	if err != nil {
		return emit(e.errorResponse(req, err))
	}
	e.metrics.Requests.WithLabelValues(req.Method, "OK").Inc()
	return nil
}

func (e *Executor) errorResponse(req *Request, err error) *Response {
	var cmdErr *CommandError
	if !errors.As(err, &cmdErr) {
		cmdErr = &CommandError{Code: ErrInternal, Message: err.Error()}
	}
	e.metrics.Requests.WithLabelValues(req.Method, cmdErr.Code).Inc()
	e.log.WithFields(logrus.Fields{
		"method": req.Method,
		"code":   cmdErr.Code,
	}).WithError(err).Warn("request failed")
	return NewError(req.ID, RPCCode(cmdErr.Code), cmdErr.Message, cmdErr.Code)
}

// RPCCode maps a command error code to its JSON-RPC error code.
func RPCCode(code string) int {
	switch code {
	case ErrInvalidParams:
		return CodeInvalidParams
	case ErrUnavailable:
		return CodeUnavailable
	case ErrNotSupported:
		return CodeMethodNotFound
	default:
		return CodeInternalError
	}
}
