// Package rpcserver serves the command registry as newline-delimited
// JSON-RPC 2.0 over TCP. A connection may carry many requests; each runs on
// its own goroutine once the executor grants it a worker, and a streaming
// request keeps answering with the same id until the peer goes away.
package rpcserver

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/thermal-monitor/internal/commands"
	"github.com/thermal-monitor/internal/config"
)

// maxRequestBytes bounds a single request line.
const maxRequestBytes = 1 << 20

// Server handles JSON-RPC TCP connections
type Server struct {
	config       config.RPCConfig
	executor     *commands.Executor
	log          *logrus.Entry
	allowed      []*net.IPNet
	writeTimeout time.Duration

	listener net.Listener
	stopChan chan struct{}
	baseCtx  context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup

	activeConnections map[string]net.Conn
	connectionsMutex  sync.Mutex
}

// NewServer creates a new RPC server. Invalid CIDRs are skipped with a
// warning; an empty allow-list admits every peer.
func NewServer(cfg config.RPCConfig, executor *commands.Executor, log *logrus.Logger) *Server {
	if log == nil {
		log = logrus.StandardLogger()
	}
	entry := log.WithField("component", "rpcserver")

	var allowed []*net.IPNet
	for _, cidrStr := range cfg.AllowedCIDRs {
		_, network, err := net.ParseCIDR(cidrStr)
		if err != nil {
			entry.WithField("cidr", cidrStr).Warn("invalid CIDR in config")
			continue
		}
		allowed = append(allowed, network)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		config:            cfg,
		executor:          executor,
		log:               entry,
		allowed:           allowed,
		writeTimeout:      time.Duration(cfg.WriteTimeoutSec) * time.Second,
		stopChan:          make(chan struct{}),
		baseCtx:           ctx,
		cancel:            cancel,
		activeConnections: make(map[string]net.Conn),
	}
}

// ListenAndServe listens on every interface at the configured port.
func (s *Server) ListenAndServe() error {
	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", s.config.Port))
	if err != nil {
		return fmt.Errorf("failed to listen on port %d: %w", s.config.Port, err)
	}
	return s.Serve(listener)
}

// Serve accepts connections on listener until Close is called.
func (s *Server) Serve(listener net.Listener) error {
	s.connectionsMutex.Lock()
	select {
	case <-s.stopChan:
		s.connectionsMutex.Unlock()
		listener.Close()
		return nil
	default:
	}
	s.listener = listener
	s.connectionsMutex.Unlock()

	s.log.WithField("addr", listener.Addr().String()).Info("rpc server listening")

	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-s.stopChan:
				return nil
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.log.WithError(err).Warn("failed to accept connection")
			continue
		}

		if !s.isAllowedConnection(conn) {
			s.log.WithField("remote", conn.RemoteAddr().String()).Warn("rejected connection outside allowed CIDRs")
			conn.Close()
			continue
		}

		id := uuid.NewString()
		if !s.track(id, conn) {
			conn.Close()
			return nil
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.untrack(id)
			s.handleConnection(id, conn)
		}()
	}
}

// Addr returns the listening address, or nil before Serve.
func (s *Server) Addr() net.Addr {
	s.connectionsMutex.Lock()
	defer s.connectionsMutex.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *Server) track(id string, conn net.Conn) bool {
	s.connectionsMutex.Lock()
	defer s.connectionsMutex.Unlock()
	select {
	case <-s.stopChan:
		return false
	default:
	}
	s.activeConnections[id] = conn
	return true
}

func (s *Server) untrack(id string) {
	s.connectionsMutex.Lock()
	delete(s.activeConnections, id)
	s.connectionsMutex.Unlock()
}

// connWriter serialises responses onto one connection.
type connWriter struct {
	mu      sync.Mutex
	conn    net.Conn
	enc     *json.Encoder
	timeout time.Duration
}

func (w *connWriter) write(resp *commands.Response) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timeout > 0 {
		w.conn.SetWriteDeadline(time.Now().Add(w.timeout))
	}
	return w.enc.Encode(resp)
}

// handleConnection reads requests until the peer closes its side. Reaching
// EOF cancels the streams on this connection; unary calls already running
// are allowed to finish and answer before the connection is closed.
func (s *Server) handleConnection(id string, conn net.Conn) {
	defer conn.Close()

	log := s.log.WithFields(logrus.Fields{
		"conn":   id,
		"remote": conn.RemoteAddr().String(),
	})
	log.Debug("connection opened")

	peerCtx, peerGone := context.WithCancel(s.baseCtx)
	defer peerGone()

	w := &connWriter{conn: conn, enc: json.NewEncoder(conn), timeout: s.writeTimeout}
	var inflight sync.WaitGroup

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 4096), maxRequestBytes)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		req, errResp := s.executor.Decode(line)
		if errResp != nil {
			log.WithField("code", errResp.Error.Code).Debug("rejected request")
			if err := w.write(errResp); err != nil {
				break
			}
			continue
		}

		inflight.Add(1)
		go func() {
			defer inflight.Done()
			s.dispatch(peerCtx, req, w, log)
		}()
	}
	if err := scanner.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			w.write(commands.NewError(nil, commands.CodeParseError, "Parse error", "request too large"))
		}
		log.WithError(err).Debug("connection read ended")
	}

	peerGone()
	inflight.Wait()
	log.Debug("connection closed")
}

// dispatch runs one request. Streams live until the peer goes away; unary
// calls are bound only to server shutdown.
func (s *Server) dispatch(peerCtx context.Context, req *commands.Request, w *connWriter, log *logrus.Entry) {
	if !s.executor.IsStreaming(req.Method) {
		if err := w.write(s.executor.Call(s.baseCtx, req)); err != nil {
			log.WithError(err).WithField("method", req.Method).Warn("failed to write response")
		}
		return
	}

	streamID := uuid.NewString()
	log.WithFields(logrus.Fields{"method": req.Method, "stream": streamID}).Info("stream started")
	err := s.executor.Stream(peerCtx, req, w.write)
	log.WithFields(logrus.Fields{"method": req.Method, "stream": streamID}).WithError(err).Info("stream ended")
}

// isAllowedConnection checks if the connection is from an allowed CIDR
func (s *Server) isAllowedConnection(conn net.Conn) bool {
	if len(s.allowed) == 0 {
		return true
	}

	host, _, err := net.SplitHostPort(conn.RemoteAddr().String())
	if err != nil {
		return false
	}

	clientIP := net.ParseIP(host)
	if clientIP == nil {
		return false
	}

	for _, network := range s.allowed {
		if network.Contains(clientIP) {
			return true
		}
	}
	return false
}

// Close stops accepting, cancels running calls and waits for every
// connection handler to return.
func (s *Server) Close() error {
	s.connectionsMutex.Lock()
	select {
	case <-s.stopChan:
		s.connectionsMutex.Unlock()
		return nil
	default:
		close(s.stopChan)
	}
	listener := s.listener
	conns := make([]net.Conn, 0, len(s.activeConnections))
	for _, c := range s.activeConnections {
		conns = append(conns, c)
	}
	s.connectionsMutex.Unlock()

	s.cancel()

	var err error
	if listener != nil {
		err = listener.Close()
	}
	for _, c := range conns {
		c.Close()
	}

	s.wg.Wait()
	s.log.Info("rpc server stopped")
	return err
}
