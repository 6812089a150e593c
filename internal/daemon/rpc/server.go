// Package rpc implements the daemon's Unix-socket JSON-RPC surface:
// newline-terminated JSON framing, one request in and one response out
// per call, dispatched to the core subsystems through the single
// cooperative dispatch queue.
package rpc

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"

	"github.com/agentctl/agentctl/errors"
	"github.com/agentctl/agentctl/internal/daemon"
	"github.com/sirupsen/logrus"
)

// maxLineBytes bounds one request line, guarding against a misbehaving
// client streaming an unterminated line forever.
const maxLineBytes = 4 << 20 // 4 MiB

// Server accepts connections on a Unix socket and dispatches each
// newline-terminated JSON request line to the method table, writing back
// exactly one newline-terminated JSON response per request.
type Server struct {
	logger   *logrus.Entry
	core     *daemon.Core
	methods  map[string]handlerFunc
	listener net.Listener
	ready    chan struct{}

	wg sync.WaitGroup
}

// New creates a Server bound to core. Call ListenAndServe to start
// accepting connections.
func New(core *daemon.Core, logger *logrus.Entry) *Server {
	return &Server{
		logger:  logger,
		core:    core,
		methods: methodTable(),
		ready:   make(chan struct{}),
	}
}

// Ready is closed once the Unix socket is bound and Accept is about to
// be entered. Callers that must not claim the daemon is up (e.g. a
// pidfile write) until the socket genuinely works should wait on this
// before doing so, selecting against ListenAndServe's error return too
// in case binding itself fails.
func (s *Server) Ready() <-chan struct{} { return s.ready }

// ListenAndServe removes any stale socket at socketPath, binds a new
// Unix-domain listener with 0600 permissions, and serves connections
// until ctx is cancelled or Shutdown is called. It blocks until the
// listener stops.
func (s *Server) ListenAndServe(ctx context.Context, socketPath string) error {
	if _, err := os.Stat(socketPath); err == nil {
		if err := os.Remove(socketPath); err != nil {
			return fmt.Errorf("failed to remove stale socket: %w", err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(socketPath), 0755); err != nil {
		return fmt.Errorf("failed to create socket directory: %w", err)
	}

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return fmt.Errorf("failed to listen on socket: %w", err)
	}
	if err := os.Chmod(socketPath, 0600); err != nil {
		_ = listener.Close()
		return fmt.Errorf("failed to set socket permissions: %w", err)
	}
	s.listener = listener

	s.logger.WithField("socket", socketPath).Info("daemon listening")
	close(s.ready)

	go func() {
		<-ctx.Done()
		_ = s.listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				s.wg.Wait()
				return nil
			}
			return err
		}
		s.wg.Add(1)
		go s.handleConn(ctx, conn)
	}
}

// Shutdown stops accepting new connections and waits (bounded by ctx)
// for in-flight connections to finish.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.listener != nil {
		_ = s.listener.Close()
	}
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// handleConn serves requests on one connection until it is closed or a
// line fails to parse too badly to continue. A malformed individual line
// gets an error response, not a dropped connection, matching the spec's
// "one request in, one response out per line" framing.
func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		resp := s.dispatch(ctx, line)
		data, err := json.Marshal(resp)
		if err != nil {
			s.logger.WithError(err).Error("failed to marshal response")
			continue
		}
		data = append(data, '\n')
		if _, err := conn.Write(data); err != nil {
			return
		}
	}
}

// dispatch parses one request line and invokes its handler, converting
// any error (structured or not) into the wire {code, message} shape.
func (s *Server) dispatch(ctx context.Context, line []byte) Response {
	var req Request
	if err := json.Unmarshal(line, &req); err != nil {
		return Response{Error: &WireError{
			Code:    string(errors.ErrCodeInvalidArgument),
			Message: "malformed request: " + err.Error(),
		}}
	}

	handler, ok := s.methods[req.Method]
	if !ok {
		s.core.Metrics.IncRPCError(string(errors.ErrCodeInvalidArgument))
		return Response{ID: req.ID, Error: &WireError{
			Code:    string(errors.ErrCodeInvalidArgument),
			Message: "unknown method: " + req.Method,
		}}
	}

	s.core.Metrics.IncRPCRequests()
	result, err := handler(ctx, s.core, req.Params)
	if err != nil {
		if agentErr, ok := err.(*errors.AgentctlError); ok {
			wire := agentErr.ToWire()
			s.core.Metrics.IncRPCError(string(wire.Code))
			return Response{ID: req.ID, Error: &WireError{Code: string(wire.Code), Message: wire.Message}}
		}
		s.core.Metrics.IncRPCError(string(errors.ErrCodeInternal))
		return Response{ID: req.ID, Error: &WireError{Code: string(errors.ErrCodeInternal), Message: err.Error()}}
	}

	return Response{ID: req.ID, Result: result}
}
