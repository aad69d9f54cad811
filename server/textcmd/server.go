package textcmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/migadu/kiri/helpers"
	"github.com/migadu/kiri/logger"
	"github.com/migadu/kiri/pkg/metrics"
	"github.com/migadu/kiri/pkg/retry"
	serverPkg "github.com/migadu/kiri/server"
	"github.com/migadu/kiri/server/idgen"
)

const (
	defaultReadBufferSize  = 1024
	defaultShutdownTimeout = 5 * time.Second
)

var acceptBackoff = retry.BackoffConfig{
	InitialInterval: 5 * time.Millisecond,
	MaxInterval:     time.Second,
	Multiplier:      2.0,
}

// ErrServerClosed is returned by Serve after a second call on the same Server.
var ErrServerClosed = errors.New("textcmd: server already served")

type Options struct {
	Name            string
	Greeting        string
	ReadBufferSize  int           // Upper bound of one read per connection
	WriteTimeout    time.Duration // Deadline for each write (0 = none)
	ShutdownTimeout time.Duration // Deadline for the shutdown notice
	Debug           bool          // Trace every line, passwords masked

	MaxConnections      int // 0 = unlimited
	MaxConnectionsPerIP int // 0 = unlimited
}

// Server multiplexes every client connection through a single event loop.
// Blocking reads and accepts happen on helper goroutines which only post
// events; the loop owns the session table, runs each state machine and
// performs every write.
type Server struct {
	name            string
	greeting        string
	readBufferSize  int
	writeTimeout    time.Duration
	shutdownTimeout time.Duration
	debug           bool
	auth            Authenticator
	limiter         *serverPkg.ConnectionLimiter

	events chan event
	done   chan struct{}
	served atomic.Bool
	wg     sync.WaitGroup

	addrMu sync.Mutex
	addr   net.Addr

	// Connection counters, readable from any goroutine.
	totalConnections         atomic.Int64
	authenticatedConnections atomic.Int64
}

func New(auth Authenticator, options Options) *Server {
	s := &Server{
		name:            options.Name,
		greeting:        options.Greeting,
		readBufferSize:  options.ReadBufferSize,
		writeTimeout:    options.WriteTimeout,
		shutdownTimeout: options.ShutdownTimeout,
		debug:           options.Debug,
		auth:            auth,
		limiter:         serverPkg.NewConnectionLimiter("KIRI", options.MaxConnections, options.MaxConnectionsPerIP),
		events:          make(chan event),
		done:            make(chan struct{}),
	}
	if s.readBufferSize <= 0 {
		s.readBufferSize = defaultReadBufferSize
	}
	if s.shutdownTimeout <= 0 {
		s.shutdownTimeout = defaultShutdownTimeout
	}
	return s
}

// GetTotalConnections returns the number of live connections.
func (s *Server) GetTotalConnections() int64 {
	return s.totalConnections.Load()
}

// GetAuthenticatedConnections returns the number of live authenticated
// connections.
func (s *Server) GetAuthenticatedConnections() int64 {
	return s.authenticatedConnections.Load()
}

// Addr returns the listening address, or nil before Serve starts.
func (s *Server) Addr() net.Addr {
	s.addrMu.Lock()
	defer s.addrMu.Unlock()
	return s.addr
}

// ListenAndServe listens on addr and serves until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := serverPkg.Listen(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Start runs ListenAndServe and reports a failure on errChan.
func (s *Server) Start(ctx context.Context, addr string, errChan chan error) {
	if err := s.ListenAndServe(ctx, addr); err != nil {
		errChan <- fmt.Errorf("%s server: %w", s.name, err)
	}
}

// Serve runs the event loop on ln until ctx is cancelled or accepting
// fails. Cancellation is a clean stop and returns nil. Serve closes ln and
// every client connection before returning.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	if !s.served.CompareAndSwap(false, true) {
		ln.Close()
		return ErrServerClosed
	}

	s.addrMu.Lock()
	s.addr = ln.Addr()
	s.addrMu.Unlock()
	logger.Info("KIRI server listening", "name", s.name, "addr", ln.Addr().String())

	acceptErr := make(chan error, 1)
	s.wg.Add(1)
	go s.acceptLoop(ln, acceptErr)

	table := newSessionTable()
	defer func() {
		ln.Close()
		close(s.done)
		s.wg.Wait()
	}()

	for {
		select {
		case <-ctx.Done():
			logger.Info("KIRI server stopping", "name", s.name, "sessions", table.len())
			ln.Close()
			s.shutdown(table)
			logger.Info("KIRI server stopped gracefully", "name", s.name)
			return nil
		case err := <-acceptErr:
			logger.Error("KIRI accept failed", "name", s.name, "error", err)
			s.shutdown(table)
			return fmt.Errorf("accept: %w", err)
		case ev := <-s.events:
			s.dispatch(table, ev)
		}
	}
}

func (s *Server) acceptLoop(ln net.Listener, errc chan<- error) {
	defer s.wg.Done()

	backoff := retry.ExponentialBackoff(acceptBackoff)
	failures := 0
	for {
		conn, err := ln.Accept()
		if err != nil {
			if isTemporaryAcceptError(err) {
				failures++
				delay := backoff(failures)
				logger.Warn("KIRI accept error, retrying", "name", s.name, "error", err, "delay", delay)
				select {
				case <-time.After(delay):
					continue
				case <-s.done:
					return
				}
			}
			errc <- err
			return
		}
		failures = 0

		if !s.post(event{kind: eventAccept, conn: conn}) {
			conn.Close()
			return
		}
	}
}

// isTemporaryAcceptError reports descriptor exhaustion and aborted
// handshakes, which the listener survives.
func isTemporaryAcceptError(err error) bool {
	return errors.Is(err, syscall.EMFILE) ||
		errors.Is(err, syscall.ENFILE) ||
		errors.Is(err, syscall.ECONNABORTED)
}

func (s *Server) readLoop(id connID, conn net.Conn) {
	defer s.wg.Done()

	buf := make([]byte, s.readBufferSize)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])
			if !s.post(event{kind: eventData, id: id, data: data}) {
				return
			}
		}
		if err != nil {
			s.post(event{kind: eventClosed, id: id, err: err})
			return
		}
	}
}

// post hands ev to the loop. It reports false once the loop has exited.
func (s *Server) post(ev event) bool {
	select {
	case s.events <- ev:
		return true
	case <-s.done:
		return false
	}
}

func (s *Server) dispatch(table *sessionTable, ev event) {
	switch ev.kind {
	case eventAccept:
		s.open(table, ev.conn)
	case eventData:
		if e, ok := table.get(ev.id); ok {
			s.receive(table, e, ev.data)
		}
	case eventClosed:
		e, ok := table.get(ev.id)
		if !ok {
			// Already torn down by the loop; this is the reader noticing.
			return
		}
		reason := CloseReadError
		if errors.Is(ev.err, io.EOF) || serverPkg.IsConnectionError(ev.err) {
			reason = ClosePeer
		}
		if reason == CloseReadError {
			e.session.WarnLog("read failed: %v", ev.err)
		}
		s.teardown(table, e, reason)
	}
}

func (s *Server) open(table *sessionTable, conn net.Conn) {
	release, err := s.limiter.Accept(conn.RemoteAddr())
	if err != nil {
		s.reject(conn, err)
		return
	}

	session := NewSession(idgen.New(), conn.RemoteAddr().String(), s.name, s.auth)
	session.Stats = s
	e := table.add(conn, session)
	e.release = release

	s.totalConnections.Add(1)
	metrics.ConnectionsTotal.WithLabelValues(s.name).Inc()
	metrics.ConnectionsCurrent.WithLabelValues(s.name).Inc()
	session.Log("connected")

	if err := s.write(e, s.greeting); err != nil {
		session.DebugLog("greeting failed: %v", err)
		s.teardown(table, e, CloseWriteError)
		return
	}

	s.wg.Add(1)
	go s.readLoop(e.id, conn)
}

// reject refuses a connection the limiter did not admit.
func (s *Server) reject(conn net.Conn, err error) {
	reason := "max_connections"
	if errors.Is(err, serverPkg.ErrMaxConnectionsPerIP) {
		reason = "max_connections_per_ip"
	}
	metrics.ConnectionsRejected.WithLabelValues(s.name, reason).Inc()
	logger.Info("KIRI connection rejected", "name", s.name, "remote", conn.RemoteAddr().String(), "error", err)

	// Best effort: the client may already be gone.
	_ = conn.SetWriteDeadline(time.Now().Add(time.Second))
	_, _ = io.WriteString(conn, ReplyTooManyConnections+"\n")
	conn.Close()
}

func (s *Server) receive(table *sessionTable, e *entry, data []byte) {
	metrics.BytesReceived.WithLabelValues(s.name).Add(float64(len(data)))

	for line := range e.session.Feed(data) {
		if s.debug {
			e.session.DebugLog("C: %s", helpers.MaskSensitive(line, "Password"))
		}

		resp := e.session.HandleLine(line)
		if !e.authenticated && e.session.State() == Authenticated {
			e.authenticated = true
			s.authenticatedConnections.Add(1)
			metrics.AuthenticatedConnectionsCurrent.WithLabelValues(s.name).Inc()
		}

		if resp.Reply != "" {
			if err := s.write(e, resp.Reply); err != nil {
				e.session.DebugLog("write failed: %v", err)
				s.teardown(table, e, CloseWriteError)
				return
			}
		}
		if resp.Close {
			s.teardown(table, e, e.session.CloseReason())
			return
		}
	}
}

// write sends one reply line.
func (s *Server) write(e *entry, line string) error {
	if s.writeTimeout > 0 {
		if err := e.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout)); err != nil {
			return err
		}
	}
	n, err := io.WriteString(e.conn, line+"\n")
	metrics.BytesSent.WithLabelValues(s.name).Add(float64(n))
	if err == nil && s.debug {
		e.session.DebugLog("S: %s", line)
	}
	return err
}

// teardown removes e from the table and releases everything it holds.
// It is a no-op for an entry that is already gone.
func (s *Server) teardown(table *sessionTable, e *entry, reason string) {
	if !table.remove(e.id) {
		return
	}
	e.session.Terminate(reason)
	e.conn.Close()
	if e.release != nil {
		e.release()
	}

	if e.authenticated {
		s.authenticatedConnections.Add(-1)
		metrics.AuthenticatedConnectionsCurrent.WithLabelValues(s.name).Dec()
	}
	s.totalConnections.Add(-1)
	metrics.ConnectionsCurrent.WithLabelValues(s.name).Dec()
	metrics.ConnectionsClosed.WithLabelValues(s.name, reason).Inc()
	metrics.ConnectionDuration.WithLabelValues(s.name).Observe(time.Since(e.session.started).Seconds())

	if buffered := e.session.Buffered(); buffered > 0 {
		e.session.DebugLog("discarding %d bytes of incomplete input", buffered)
	}
	e.session.Log("disconnected (%s)", reason)
}

// shutdown tells every client the server is going away and closes it.
func (s *Server) shutdown(table *sessionTable) {
	deadline := time.Now().Add(s.shutdownTimeout)
	for _, e := range table.all() {
		_ = e.conn.SetWriteDeadline(deadline)
		n, err := io.WriteString(e.conn, ReplyShuttingDown+"\n")
		metrics.BytesSent.WithLabelValues(s.name).Add(float64(n))
		if err != nil {
			e.session.DebugLog("shutdown notice failed: %v", err)
		}
		s.teardown(table, e, CloseShutdown)
	}
}
