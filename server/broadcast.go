package server

import "relay/protocol"

// broadcast fans one frame out to every session except the excluded
// username. The payload is encoded once. A failed send closes that handle
// and evicts it from the registry without aborting delivery to the rest;
// no ordering is guaranteed across recipients.
func (s *Server) broadcast(f *protocol.Frame, exclude string) {
	payload, err := protocol.Encode(f)
	if err != nil {
		s.logger.Error("broadcast encode failed", "error", err)
		return
	}

	for _, sess := range s.registry.Snapshot() {
		if sess.Username == exclude {
			continue
		}
		if err := sess.send(payload); err != nil {
			broadcastFailures.Inc()
			s.logger.Warn("broadcast send failed, evicting session",
				"username", sess.Username, "error", err)
			sess.Close()
			s.registry.Unregister(sess)
			connectedSessions.Set(float64(s.registry.Len()))
		}
	}
}
