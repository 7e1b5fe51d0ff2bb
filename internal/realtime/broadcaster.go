// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 RelayDesk Contributors

package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"
)

// Transport delivers an encoded event to every subscriber of a topic.
type Transport interface {
	Send(ctx context.Context, topic string, payload []byte) error
}

// DefaultSendTimeout bounds a single transport delivery attempt.
const DefaultSendTimeout = 5 * time.Second

type outboxItem struct {
	topic   string
	payload []byte
}

// Broadcaster is the event outbox. Publish enqueues and returns
// immediately; a dispatcher goroutine drains the queue to the transport in
// enqueue order, so two events on the same topic are always attempted in
// the order their mutations committed. Transport failures are logged and
// swallowed; the originating mutation has already committed and must not
// be failed retroactively.
type Broadcaster struct {
	transport Transport
	log       *slog.Logger
	timeout   time.Duration

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []outboxItem
	closed bool

	done chan struct{}
}

// NewBroadcaster creates a broadcaster and starts its dispatcher.
func NewBroadcaster(transport Transport, log *slog.Logger) *Broadcaster {
	if log == nil {
		log = slog.Default()
	}
	b := &Broadcaster{
		transport: transport,
		log:       log,
		timeout:   DefaultSendTimeout,
		done:      make(chan struct{}),
	}
	b.cond = sync.NewCond(&b.mu)
	go b.dispatch()
	return b
}

// SetSendTimeout overrides the per-delivery timeout. Call before the
// first Publish.
func (b *Broadcaster) SetSendTimeout(d time.Duration) {
	if d <= 0 {
		return
	}
	b.mu.Lock()
	b.timeout = d
	b.mu.Unlock()
}

// Publish enqueues event for delivery to topic. Fire-and-forget: the call
// never blocks on the network and never fails.
func (b *Broadcaster) Publish(topic string, event Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		b.log.Error("encoding event", "topic", topic, "event_type", string(event.Type), "error", err)
		return
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		b.log.Warn("publish after close dropped", "topic", topic, "event_type", string(event.Type))
		return
	}
	b.queue = append(b.queue, outboxItem{topic: topic, payload: payload})
	b.mu.Unlock()

	b.cond.Signal()
}

// Close drains the remaining queue and stops the dispatcher.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		<-b.done
		return
	}
	b.closed = true
	b.mu.Unlock()

	b.cond.Signal()
	<-b.done
}

func (b *Broadcaster) dispatch() {
	defer close(b.done)

	for {
		b.mu.Lock()
		for len(b.queue) == 0 && !b.closed {
			b.cond.Wait()
		}
		if len(b.queue) == 0 && b.closed {
			b.mu.Unlock()
			return
		}
		item := b.queue[0]
		b.queue = b.queue[1:]
		b.mu.Unlock()

		b.deliver(item)
	}
}

func (b *Broadcaster) deliver(item outboxItem) {
	b.mu.Lock()
	timeout := b.timeout
	b.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := b.transport.Send(ctx, item.topic, item.payload); err != nil {
		b.log.Warn("event delivery failed", "topic", item.topic, "error", err)
	}
}
