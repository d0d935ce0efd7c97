// Package panelsrv is the TCP accept loop that turns inbound panel
// connections into handshaken pkg/session sessions: one session per
// connection, a registry keyed by session_id, a weighted semaphore
// bounding how many connections can be mid-accept at once, and
// Prometheus metrics for accepted connections, handshake failures,
// active sessions and routed notifications. See
// SPEC_FULL.md §6.
package panelsrv

import (
	"context"
	"net"
	"sync"

	"github.com/google/uuid"
	"github.com/halvardtech/itv2link/pkg/binpack"
	"github.com/halvardtech/itv2link/pkg/session"
	"github.com/pion/logging"
	"golang.org/x/sync/semaphore"
)

// NotificationHandler is invoked for every unmatched inbound message a
// session's pump delivers to its Notifications channel.
type NotificationHandler func(sessionID string, msg interface{})

// Config configures a Server.
type Config struct {
	// Listener is an optional pre-existing listener (tests use
	// net.Pipe-backed listeners or net.Listen("tcp", "127.0.0.1:0")).
	// If nil, ListenAddr is used to create one.
	Listener net.Listener
	// ListenAddr is used to create a listener when Listener is nil.
	ListenAddr string

	// Registry is the message catalog every session on this server
	// decodes against. Required.
	Registry *binpack.Registry

	// Settings is passed through to session.Connect for every accepted
	// connection.
	Settings session.Settings

	// MaxConcurrentHandshakes bounds how many connections can be
	// in-flight through session.Connect at once. Zero means unbounded.
	MaxConcurrentHandshakes int64

	// OnNotification receives every session's unmatched inbound
	// messages. May be nil.
	OnNotification NotificationHandler

	// LoggerFactory builds the server's and every session's logger. If
	// nil, logging is disabled.
	LoggerFactory logging.LoggerFactory

	// Metrics is optional; nil disables metrics entirely.
	Metrics *Metrics
}

// Server accepts panel connections and keeps their sessions registered
// for the lifetime of the connection.
type Server struct {
	listener      net.Listener
	registry      *binpack.Registry
	settings      session.Settings
	onNotify      NotificationHandler
	metrics       *Metrics
	log           logging.LeveledLogger
	loggerFactory logging.LoggerFactory

	sem *semaphore.Weighted

	sessions *sessionRegistry

	closeCh chan struct{}
	wg      sync.WaitGroup

	mu      sync.Mutex
	started bool
	closed  bool
}

// NewServer builds a Server from cfg, creating a listener if one was
// not supplied.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Registry == nil {
		panic("panelsrv: Config.Registry is required")
	}

	listener := cfg.Listener
	if listener == nil {
		addr := cfg.ListenAddr
		if addr == "" {
			addr = ":0"
		}
		l, err := net.Listen("tcp", addr)
		if err != nil {
			return nil, err
		}
		listener = l
	}

	weight := cfg.MaxConcurrentHandshakes
	if weight <= 0 {
		weight = 1 << 30 // effectively unbounded
	}

	s := &Server{
		listener:      listener,
		registry:      cfg.Registry,
		settings:      cfg.Settings,
		onNotify:      cfg.OnNotification,
		metrics:       cfg.Metrics,
		sem:           semaphore.NewWeighted(weight),
		sessions:      newSessionRegistry(),
		closeCh:       make(chan struct{}),
		loggerFactory: cfg.LoggerFactory,
	}
	if cfg.LoggerFactory != nil {
		s.log = cfg.LoggerFactory.NewLogger("panelsrv")
	}
	return s, nil
}

// LocalAddr returns the address the server is listening on.
func (s *Server) LocalAddr() net.Addr { return s.listener.Addr() }

// Lookup returns the connected session registered under id, or
// perr.SessionNotFound.
func (s *Server) Lookup(id string) (*session.Session, error) { return s.sessions.Get(id) }

// ActiveSessions reports how many sessions are currently registered.
func (s *Server) ActiveSessions() int { return s.sessions.Len() }

// Start begins accepting connections in the background.
func (s *Server) Start() {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()

	if s.log != nil {
		s.log.Infof("panelsrv listening on %s", s.listener.Addr())
	}

	s.wg.Add(1)
	go s.acceptLoop()
}

// Stop closes the listener and every registered session, then waits
// for the accept loop and in-flight handshakes to unwind.
func (s *Server) Stop() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	close(s.closeCh)
	err := s.listener.Close()

	s.sessions.mu.RLock()
	live := make([]*session.Session, 0, len(s.sessions.sessions))
	for _, sess := range s.sessions.sessions {
		live = append(live, sess)
	}
	s.sessions.mu.RUnlock()
	for _, sess := range live {
		sess.Close()
	}

	s.wg.Wait()
	return err
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.closeCh:
				return
			default:
				continue
			}
		}

		connID := uuid.NewString()
		s.metrics.acceptedConnection()

		if err := s.sem.Acquire(context.Background(), 1); err != nil {
			conn.Close()
			continue
		}

		s.wg.Add(1)
		go s.handleConn(conn, connID)
	}
}

func (s *Server) handleConn(conn net.Conn, connID string) {
	defer s.wg.Done()
	defer s.sem.Release(1)

	sess, err := session.Connect(context.Background(), conn, s.registry, s.settings, s.loggerFactory)
	if err != nil {
		s.metrics.handshakeFailed()
		if s.log != nil {
			s.log.Warnf("panelsrv: connection %s failed handshake: %v", connID, err)
		}
		conn.Close()
		return
	}

	s.sessions.put(sess.SessionID(), sess)
	s.metrics.sessionRegistered()
	if s.log != nil {
		s.log.Infof("panelsrv: connection %s handshaken as session %s", connID, sess.SessionID())
	}

	defer func() {
		s.sessions.delete(sess.SessionID())
		s.metrics.sessionUnregistered()
		sess.Close()
	}()

	for msg := range sess.Notifications() {
		s.metrics.notificationRouted()
		if s.onNotify != nil {
			s.onNotify(sess.SessionID(), msg)
		}
	}
}
