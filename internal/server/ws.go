// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 RelayDesk Contributors

package server

import (
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/relaydesk/relaydesk/internal/realtime"
)

// handleWebsocket upgrades the connection and subscribes it to the
// requested topics plus the member's personal topic. The actor comes from
// the X-Actor-ID header or, for browser clients that cannot set headers on
// websocket dials, the actor query parameter.
func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	actor := r.Header.Get("X-Actor-ID")
	if actor == "" {
		actor = r.URL.Query().Get("actor")
	}
	if actor == "" {
		http.Error(w, "missing actor", http.StatusBadRequest)
		return
	}

	topics := []string{realtime.UserTopic(actor)}
	if raw := r.URL.Query().Get("topics"); raw != "" {
		for _, topic := range strings.Split(raw, ",") {
			if topic = strings.TrimSpace(topic); topic != "" && topic != realtime.UserTopic(actor) {
				topics = append(topics, topic)
			}
		}
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: s.checkWSOrigin,
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the error response.
		s.log.Debug("websocket upgrade failed", "error", err)
		return
	}

	s.hub.HandleConn(conn, actor, topics)
}

// checkWSOrigin accepts same-host requests and the configured CORS
// origins.
func (s *Server) checkWSOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range s.cfg.CORSOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return strings.Contains(origin, r.Host)
}
