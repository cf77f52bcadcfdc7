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

// Package events implements the in-process event bus multiplexed onto the
// cluster-wide pub/sub channel.
//
// Every event is dispatched to the local subscribers first and then
// published over the transport; peer processes dispatch it to their
// subscribers with isLocal=false. Subscribers choose which side of the
// split they want with [SubscribeOptions].
package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/gravitational/trace"

	"github.com/gravitational/quasar"
	logutils "github.com/gravitational/quasar/lib/utils/log"
)

// SubscribeOptions filters which deliveries reach a handler.
type SubscribeOptions struct {
	// IgnoreLocal suppresses events emitted by this process.
	IgnoreLocal bool
	// IgnoreRemote suppresses events received from peer processes.
	IgnoreRemote bool
}

// Handler is the erased form a typed handler is stored in. For local
// dispatch the payload is the value passed to Emit; for remote dispatch it
// is the raw JSON body of the envelope.
type handlerFunc func(ctx context.Context, payload any, isLocal bool) error

type subscriber struct {
	id     uint64
	opts   SubscribeOptions
	invoke handlerFunc
}

// Subscription is a registered handler. Closing it unregisters the
// handler; closing twice is safe.
type Subscription struct {
	bus   *Bus
	topic Topic
	id    uint64
	once  sync.Once
}

// Close unregisters the subscription from the bus.
func (s *Subscription) Close() {
	s.once.Do(func() { s.bus.unsubscribe(s.topic, s.id) })
}

// BusConfig configures an event bus.
type BusConfig struct {
	// Transport is the cluster pub/sub channel. Defaults to a noop
	// transport, which makes the bus process-local.
	Transport Transport
	// ProcessID identifies this process in published envelopes.
	// Defaults to a random UUID.
	ProcessID string
	// Logger is the logger handler failures are reported to.
	Logger *slog.Logger
	// Context is an optional parent context for the receive loop.
	Context context.Context
}

// CheckAndSetDefaults checks parameters and sets default values.
func (c *BusConfig) CheckAndSetDefaults() error {
	if c.Transport == nil {
		c.Transport = NewNoopTransport()
	}
	if c.ProcessID == "" {
		c.ProcessID = uuid.NewString()
	}
	if c.Logger == nil {
		c.Logger = logutils.NewPackageLogger(quasar.ComponentKey, quasar.ComponentBus)
	}
	if c.Context == nil {
		c.Context = context.Background()
	}
	return nil
}

// Bus delivers tagged messages to registered handlers and mirrors locally
// emitted messages onto the cluster transport.
//
// Local dispatch is synchronous: handlers run serially in registration
// order and each handler finishes before the next starts. Remote dispatch
// runs on a single receive goroutine, so per-sender order is preserved.
// Handler errors are logged and never stop dispatch to the remaining
// handlers.
type Bus struct {
	cfg    BusConfig
	logger *slog.Logger

	mu     sync.RWMutex
	nextID uint64
	subs   map[Topic][]*subscriber

	closeCtx context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewBus creates a bus and starts its transport receive loop.
func NewBus(cfg BusConfig) (*Bus, error) {
	if err := cfg.CheckAndSetDefaults(); err != nil {
		return nil, trace.Wrap(err)
	}
	ctx, cancel := context.WithCancel(cfg.Context)
	b := &Bus{
		cfg:      cfg,
		logger:   cfg.Logger,
		subs:     make(map[Topic][]*subscriber),
		closeCtx: ctx,
		cancel:   cancel,
	}
	b.wg.Add(1)
	go b.receiveLoop()
	return b, nil
}

// ProcessID returns the id this bus stamps on published envelopes.
func (b *Bus) ProcessID() string { return b.cfg.ProcessID }

// Close stops the receive loop and closes the transport.
func (b *Bus) Close() error {
	b.cancel()
	err := b.cfg.Transport.Close()
	b.wg.Wait()
	return trace.Wrap(err)
}

// Subscribe registers a typed handler for a topic. The returned
// subscription unregisters it.
func Subscribe[T any](b *Bus, topic Topic, fn func(ctx context.Context, payload T, isLocal bool) error, opts SubscribeOptions) *Subscription {
	sub := &subscriber{
		opts: opts,
		invoke: func(ctx context.Context, payload any, isLocal bool) error {
			switch p := payload.(type) {
			case T:
				return fn(ctx, p, isLocal)
			case json.RawMessage:
				var decoded T
				if err := json.Unmarshal(p, &decoded); err != nil {
					return trace.Wrap(err, "decoding %q payload", topic)
				}
				return fn(ctx, decoded, isLocal)
			default:
				return trace.BadParameter("unexpected %q payload type %T", topic, payload)
			}
		},
	}

	b.mu.Lock()
	b.nextID++
	sub.id = b.nextID
	b.subs[topic] = append(b.subs[topic], sub)
	b.mu.Unlock()

	return &Subscription{bus: b, topic: topic, id: sub.id}
}

// Emit dispatches the payload to the local subscribers of the topic and
// then publishes it over the cluster transport. The returned error is a
// transport publish failure only; handler errors are logged.
func (b *Bus) Emit(ctx context.Context, topic Topic, payload any) error {
	b.dispatch(ctx, topic, payload, true)

	body, err := json.Marshal(payload)
	if err != nil {
		return trace.Wrap(err, "encoding %q payload", topic)
	}
	frame, err := json.Marshal(Envelope{
		Type:     string(topic),
		Body:     body,
		SenderID: b.cfg.ProcessID,
	})
	if err != nil {
		return trace.Wrap(err)
	}
	return trace.Wrap(b.cfg.Transport.Publish(ctx, frame))
}

func (b *Bus) dispatch(ctx context.Context, topic Topic, payload any, isLocal bool) {
	b.mu.RLock()
	subs := make([]*subscriber, len(b.subs[topic]))
	copy(subs, b.subs[topic])
	b.mu.RUnlock()

	for _, sub := range subs {
		if isLocal && sub.opts.IgnoreLocal {
			continue
		}
		if !isLocal && sub.opts.IgnoreRemote {
			continue
		}
		if err := sub.invoke(ctx, payload, isLocal); err != nil {
			b.logger.WarnContext(ctx, "Event handler failed.",
				"topic", topic,
				"is_local", isLocal,
				"error", err,
			)
		}
	}
}

func (b *Bus) receiveLoop() {
	defer b.wg.Done()
	in := b.cfg.Transport.Receive()
	for {
		select {
		case <-b.closeCtx.Done():
			return
		case frame, ok := <-in:
			if !ok {
				return
			}
			var env Envelope
			if err := json.Unmarshal(frame, &env); err != nil {
				b.logger.WarnContext(b.closeCtx, "Dropping malformed envelope.", "error", err)
				continue
			}
			// The transport echoes our own messages back; local
			// subscribers already saw them during Emit.
			if env.SenderID == b.cfg.ProcessID {
				continue
			}
			b.dispatch(b.closeCtx, Topic(env.Type), json.RawMessage(env.Body), false)
		}
	}
}

func (b *Bus) unsubscribe(topic Topic, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subs[topic]
	for i, sub := range subs {
		if sub.id == id {
			b.subs[topic] = append(subs[:i], subs[i+1:]...)
			return
		}
	}
}
