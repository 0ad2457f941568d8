package server

import (
	"strings"
	"time"

	"relay/protocol"
)

// login reads and validates the first frame. Anything but a well-formed
// login closes the connection with no side effects. On success the user is
// registered, the session is installed (evicting a prior login for the same
// username), the arrival is announced and pending offline messages are
// flushed.
func (s *Server) login(conn framedConn, remote string) (*Session, bool) {
	conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))
	raw, err := conn.ReadFrame()
	if err != nil {
		s.logger.Info("connection closed before login", "addr", remote)
		return nil, false
	}

	f, err := protocol.Decode(raw)
	if err != nil {
		s.logger.Warn("malformed login frame, closing", "addr", remote)
		return nil, false
	}

	username := strings.TrimSpace(f.Username)
	if f.Type != protocol.TypeLogin || username == "" {
		s.logger.Warn("first frame is not a login, closing", "addr", remote, "type", f.Type)
		return nil, false
	}
	framesTotal.WithLabelValues(f.Type).Inc()

	ok, err := s.store.Authenticate(username, f.Password)
	if err != nil {
		storageErrors.Inc()
		s.logger.Error("authentication lookup failed", "username", username, "error", err)
		return nil, false
	}
	if !ok {
		s.logger.Warn("login rejected", "username", username, "addr", remote)
		s.sendDirect(conn, protocol.Notification("invalid credentials"))
		return nil, false
	}

	if err := s.registerUser(username, f.Password); err != nil {
		storageErrors.Inc()
		s.logger.Error("user registration failed", "username", username, "error", err)
		return nil, false
	}

	sess := newSession(username, conn, s.config.WriteTimeout)
	if prev := s.registry.Register(sess); prev != nil {
		prev.markSuperseded()
		prev.Send(protocol.Notification("signed in from another connection"))
		prev.Close()
		s.logger.Info("session superseded by new login", "username", username)
	}
	connectedSessions.Set(float64(s.registry.Len()))
	s.logger.Info("user logged in", "username", username, "addr", remote)

	sess.Send(protocol.Notification("Welcome " + username + "!"))
	s.broadcast(protocol.Notification(username+" has connected."), username)
	s.deliverOffline(sess)

	return sess, true
}

// registerUser inserts the username on first login. A password supplied on
// first login is stored hashed; later logins never overwrite it.
func (s *Server) registerUser(username, password string) error {
	if password != "" {
		exists, err := s.store.UserExists(username)
		if err != nil {
			return err
		}
		if !exists {
			return s.store.SetPassword(username, password)
		}
	}
	return s.store.RegisterUser(username)
}

// handleMessage relays one inbound message: persist a copy for every
// registered-but-offline user, then fan out to the online sessions. The
// partition and the broadcast are not one atomic step against the registry;
// a user logging in between the two can transiently see a message twice.
func (s *Server) handleMessage(sess *Session, f *protocol.Frame) {
	content := f.Content
	if content == "" {
		return
	}
	timestamp := time.Now().UTC().Truncate(time.Second)

	registered, err := s.store.ListRegisteredUsers()
	if err != nil {
		// Offline persistence is skipped, the live relay still proceeds.
		storageErrors.Inc()
		s.logger.Error("listing registered users failed", "error", err)
		registered = nil
	}

	online := s.registry.OnlineSet()
	for _, username := range registered {
		if username == sess.Username {
			continue
		}
		if _, ok := online[username]; ok {
			continue
		}
		if _, err := s.store.StoreMessage(sess.Username, username, content); err != nil {
			storageErrors.Inc()
			s.logger.Error("storing offline message failed",
				"sender", sess.Username, "recipient", username, "error", err)
			continue
		}
		offlineStored.Inc()
	}

	s.broadcast(protocol.Message(sess.Username, content, timestamp), sess.Username)
}

// deliverOffline flushes the session's pending messages in id order. Only
// ids that were actually written to the connection are marked delivered, so
// failed entries are retried on the next login.
func (s *Server) deliverOffline(sess *Session) {
	pending, err := s.store.FetchUndelivered(sess.Username)
	if err != nil {
		storageErrors.Inc()
		s.logger.Error("fetching offline messages failed", "username", sess.Username, "error", err)
		return
	}
	if len(pending) == 0 {
		return
	}

	delivered := make([]int64, 0, len(pending))
	for _, m := range pending {
		if err := sess.Send(protocol.OfflineMessage(m.Sender, m.Content, m.Timestamp)); err != nil {
			s.logger.Warn("offline delivery failed",
				"username", sess.Username, "id", m.ID, "error", err)
			continue
		}
		delivered = append(delivered, m.ID)
	}

	if err := s.store.MarkDelivered(delivered); err != nil {
		storageErrors.Inc()
		s.logger.Error("marking messages delivered failed", "username", sess.Username, "error", err)
		return
	}

	offlineDelivered.Add(float64(len(delivered)))
	s.logger.Info("offline messages delivered", "username", sess.Username, "count", len(delivered))
}

func (s *Server) sendDirect(conn framedConn, f *protocol.Frame) {
	payload, err := protocol.Encode(f)
	if err != nil {
		return
	}
	conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
	conn.WriteFrame(payload)
}
