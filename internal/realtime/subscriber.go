// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 RelayDesk Contributors

package realtime

import (
	"context"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	rderr "github.com/relaydesk/relaydesk/pkg/errors"
)

// Subscriber is the client-side counterpart of the Hub: it dials the
// websocket endpoint, feeds received events to a channel, and drives a
// Tracker through disconnect/reconnect.
type Subscriber struct {
	endpoint string
	actorID  string
	topics   []string
	dialer   *websocket.Dialer
	log      *slog.Logger

	events  chan Event
	tracker *Tracker

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool
}

// SubscriberOptions configures a Subscriber.
type SubscriberOptions struct {
	// Endpoint is the ws:// or wss:// URL of the subscribe route.
	Endpoint string
	ActorID  string
	Topics   []string

	Dialer  *websocket.Dialer
	Log     *slog.Logger
	Tracker TrackerOptions

	// EventBuffer is the capacity of the delivered-events channel.
	EventBuffer int
}

// NewSubscriber creates a subscriber; call Connect before reading Events.
func NewSubscriber(opts SubscriberOptions) *Subscriber {
	if opts.Dialer == nil {
		opts.Dialer = &websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	}
	if opts.Log == nil {
		opts.Log = slog.Default()
	}
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = 256
	}

	s := &Subscriber{
		endpoint: opts.Endpoint,
		actorID:  opts.ActorID,
		topics:   opts.Topics,
		dialer:   opts.Dialer,
		log:      opts.Log,
		events:   make(chan Event, opts.EventBuffer),
	}

	trackerOpts := opts.Tracker
	trackerOpts.Dial = s.redial
	if trackerOpts.Log == nil {
		trackerOpts.Log = opts.Log
	}
	s.tracker = NewTracker(trackerOpts)

	return s
}

// Connect performs the initial dial and starts the read loop.
func (s *Subscriber) Connect(ctx context.Context) error {
	conn, err := s.dialOnce(ctx)
	if err != nil {
		return rderr.Wrap(err, rderr.CodeRealtimeTransportFailure, "connecting to event stream")
	}

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()

	go s.readLoop(conn)
	return nil
}

// Events delivers received events. The channel is never closed while the
// subscriber reconnects; Close abandons it.
func (s *Subscriber) Events() <-chan Event {
	return s.events
}

// Tracker exposes the connection state machine.
func (s *Subscriber) Tracker() *Tracker {
	return s.tracker
}

// Reconnect requests a manual reconnect.
func (s *Subscriber) Reconnect() {
	s.tracker.Reconnect()
}

// Close tears the connection down for good.
func (s *Subscriber) Close() error {
	s.mu.Lock()
	s.closed = true
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()

	s.tracker.Stop()
	if conn != nil {
		return conn.Close()
	}
	return nil
}

func (s *Subscriber) dialOnce(ctx context.Context) (*websocket.Conn, error) {
	u, err := url.Parse(s.endpoint)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("actor", s.actorID)
	q.Set("topics", strings.Join(s.topics, ","))
	u.RawQuery = q.Encode()

	conn, _, err := s.dialer.DialContext(ctx, u.String(), nil)
	return conn, err
}

// redial is the Tracker's handshake: dial and, on success, swap the live
// connection and restart the read loop.
func (s *Subscriber) redial(ctx context.Context) error {
	conn, err := s.dialOnce(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		conn.Close()
		return rderr.New(rderr.CodeRealtimeTransportFailure, "subscriber closed")
	}
	if s.conn != nil {
		s.conn.Close()
	}
	s.conn = conn
	s.mu.Unlock()

	go s.readLoop(conn)
	return nil
}

func (s *Subscriber) readLoop(conn *websocket.Conn) {
	for {
		var evt Event
		if err := conn.ReadJSON(&evt); err != nil {
			s.mu.Lock()
			stale := s.conn != conn
			closed := s.closed
			if !stale {
				s.conn = nil
			}
			s.mu.Unlock()

			// A superseding reconnect already replaced this connection;
			// only the live one reports a transport loss.
			if closed || stale {
				return
			}

			s.log.Debug("event stream lost", "error", err)
			s.tracker.HandleDisconnect()
			return
		}

		select {
		case s.events <- evt:
		default:
			s.log.Warn("event buffer full, dropping event", "event_type", string(evt.Type))
		}
	}
}
