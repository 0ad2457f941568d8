package server

import (
	"log/slog"
	"net"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"relay/db"
	"relay/protocol"
)

type Server struct {
	store    *db.Store
	config   *Config
	registry *Registry
	logger   *slog.Logger
	sem      chan struct{}
	listener net.Listener
	closing  atomic.Bool
}

type Config struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	MaxConns     int
}

func New(store *db.Store, config *Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if config.MaxConns <= 0 {
		config.MaxConns = 1024
	}

	return &Server{
		store:    store,
		config:   config,
		registry: NewRegistry(),
		logger:   logger,
		sem:      make(chan struct{}, config.MaxConns),
	}
}

// Start listens on the configured TCP address and accepts until Shutdown
// closes the listener. It blocks for the lifetime of the server.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return err
	}
	s.listener = listener
	defer listener.Close()

	s.logger.Info("relay listening", "addr", listener.Addr().String())

	for {
		conn, err := listener.Accept()
		if err != nil {
			if s.closing.Load() {
				return nil
			}
			s.logger.Error("accept failed", "error", err)
			continue
		}

		go s.handleConn(newTCPConn(conn))
	}
}

// handleConn drives one connection through login, relay and finalization.
// Both the TCP and the WebSocket listeners land here.
func (s *Server) handleConn(conn framedConn) {
	if !s.acquire() {
		s.reject(conn)
		return
	}
	defer s.release()
	defer conn.Close()

	remote := conn.RemoteAddr().String()
	s.logger.Info("client connected", "addr", remote)

	sess, ok := s.login(conn, remote)
	if !ok {
		return
	}
	defer s.finalize(sess)

	for {
		conn.SetReadDeadline(time.Now().Add(s.config.IdleTimeout))
		raw, err := conn.ReadFrame()
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				s.logger.Info("closing idle session", "username", sess.Username)
			}
			return
		}

		f, err := protocol.Decode(raw)
		if err != nil {
			s.logger.Warn("undecodable frame ignored", "username", sess.Username, "addr", remote)
			continue
		}
		switch f.Type {
		case protocol.TypeMessage:
			framesTotal.WithLabelValues(f.Type).Inc()
			s.handleMessage(sess, f)
		case protocol.TypeLogout:
			framesTotal.WithLabelValues(f.Type).Inc()
			return
		default:
			framesTotal.WithLabelValues("unknown").Inc()
			s.logger.Warn("unrecognized frame ignored", "username", sess.Username, "type", f.Type)
		}
	}
}

// finalize runs exactly once per logged-in session, whatever ended it:
// logout, peer close, I/O error or idle timeout. A superseded session stays
// silent because its user is still online through the newer session.
func (s *Server) finalize(sess *Session) {
	s.registry.Unregister(sess)
	connectedSessions.Set(float64(s.registry.Len()))

	if sess.isSuperseded() {
		s.logger.Info("superseded session closed", "username", sess.Username)
		return
	}

	s.logger.Info("client disconnected", "username", sess.Username)
	s.broadcast(protocol.Notification(sess.Username+" has disconnected."), sess.Username)
}

func (s *Server) acquire() bool {
	select {
	case s.sem <- struct{}{}:
		return true
	default:
		return false
	}
}

func (s *Server) release() {
	<-s.sem
}

func (s *Server) reject(conn framedConn) {
	s.logger.Warn("connection limit reached, rejecting", "addr", conn.RemoteAddr().String())
	if payload, err := protocol.Encode(protocol.Notification("server is full")); err == nil {
		conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
		conn.WriteFrame(payload)
	}
	conn.Close()
}

// Shutdown notifies and closes every session, then stops the listener.
func (s *Server) Shutdown() {
	s.closing.Store(true)
	if s.listener != nil {
		s.listener.Close()
	}

	payload, err := protocol.Encode(protocol.Notification("server is shutting down"))
	for _, sess := range s.registry.Snapshot() {
		if err == nil {
			sess.send(payload)
		}
		sess.Close()
		s.registry.Unregister(sess)
	}
	connectedSessions.Set(float64(s.registry.Len()))

	s.logger.Info("shutdown complete")
}

// Stats returns a one-line summary for the control socket.
func (s *Server) Stats() string {
	sessions := s.registry.Snapshot()
	names := make([]string, 0, len(sessions))
	for _, sess := range sessions {
		names = append(names, sess.Username)
	}
	sort.Strings(names)

	pending, err := s.store.CountUndelivered()
	if err != nil {
		pending = -1
	}

	return "sessions=" + strconv.Itoa(len(sessions)) +
		",pending=" + strconv.Itoa(pending) +
		",users=" + strings.Join(names, ";")
}
