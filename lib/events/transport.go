/*
 * Quasar
 * Copyright (C) 2025  Gravitational, Inc.
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Affero General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU Affero General Public License for more details.
 *
 * You should have received a copy of the GNU Affero General Public License
 * along with this program.  If not, see <http://www.gnu.org/licenses/>.
 */

package events

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/gravitational/trace"
)

// Envelope is the frame every event travels in on the cluster transport.
// The body is the JSON encoding of the topic's payload type.
type Envelope struct {
	// Type is the topic name.
	Type string `json:"type"`
	// Body is the encoded payload, embedded as-is so the frame stays
	// readable on the wire.
	Body json.RawMessage `json:"body"`
	// SenderID identifies the publishing process so receivers can
	// discard their own echo.
	SenderID string `json:"senderId"`
}

// Transport moves raw envelope frames between cluster processes. Delivery
// preserves per-sender order; cross-sender order is unspecified.
type Transport interface {
	// Publish sends a frame to every process on the channel, including
	// the sender.
	Publish(ctx context.Context, data []byte) error
	// Receive returns the channel inbound frames arrive on. The channel
	// is closed when the transport closes.
	Receive() <-chan []byte
	// Close releases the transport. Safe to call more than once.
	Close() error
}

// noopTransport drops everything. Used when a process runs standalone.
type noopTransport struct {
	out  chan []byte
	once sync.Once
}

// NewNoopTransport returns a transport that publishes nowhere and never
// receives. A bus on a noop transport still dispatches local events.
func NewNoopTransport() Transport {
	return &noopTransport{out: make(chan []byte)}
}

func (t *noopTransport) Publish(ctx context.Context, data []byte) error { return nil }

func (t *noopTransport) Receive() <-chan []byte { return t.out }

func (t *noopTransport) Close() error {
	t.once.Do(func() { close(t.out) })
	return nil
}

// LoopbackHub fans published frames out to every attached transport within
// a single process. It stands in for the cluster channel in tests and in
// single-node deployments.
type LoopbackHub struct {
	mu      sync.Mutex
	members []*loopbackMember
	closed  bool
}

// NewLoopbackHub creates an empty hub.
func NewLoopbackHub() *LoopbackHub {
	return &LoopbackHub{}
}

// Transport attaches a new member transport to the hub.
func (h *LoopbackHub) Transport() Transport {
	h.mu.Lock()
	defer h.mu.Unlock()
	m := &loopbackMember{hub: h, out: make(chan []byte, 128)}
	h.members = append(h.members, m)
	return m
}

// Close detaches and closes every member.
func (h *LoopbackHub) Close() error {
	h.mu.Lock()
	members := h.members
	h.members = nil
	h.closed = true
	h.mu.Unlock()
	for _, m := range members {
		m.closeChan()
	}
	return nil
}

func (h *LoopbackHub) broadcast(ctx context.Context, data []byte) error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return trace.ConnectionProblem(nil, "loopback hub is closed")
	}
	members := make([]*loopbackMember, len(h.members))
	copy(members, h.members)
	h.mu.Unlock()

	for _, m := range members {
		select {
		case m.out <- data:
		case <-ctx.Done():
			return trace.Wrap(ctx.Err())
		}
	}
	return nil
}

func (h *LoopbackHub) detach(member *loopbackMember) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, m := range h.members {
		if m == member {
			h.members = append(h.members[:i], h.members[i+1:]...)
			return
		}
	}
}

type loopbackMember struct {
	hub  *LoopbackHub
	out  chan []byte
	once sync.Once
}

func (m *loopbackMember) Publish(ctx context.Context, data []byte) error {
	return trace.Wrap(m.hub.broadcast(ctx, data))
}

func (m *loopbackMember) Receive() <-chan []byte { return m.out }

func (m *loopbackMember) Close() error {
	m.hub.detach(m)
	m.closeChan()
	return nil
}

func (m *loopbackMember) closeChan() {
	m.once.Do(func() { close(m.out) })
}
