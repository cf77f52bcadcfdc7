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
	"log/slog"
	"sync"

	"github.com/gravitational/trace"
	"github.com/redis/go-redis/v9"

	"github.com/gravitational/quasar"
	"github.com/gravitational/quasar/lib/defaults"
	logutils "github.com/gravitational/quasar/lib/utils/log"
)

// RedisTransportConfig configures a redis pub/sub transport.
type RedisTransportConfig struct {
	// Client is a connected redis client shared with the rest of the
	// process.
	Client redis.UniversalClient
	// Channel is the pub/sub channel name. Defaults to
	// defaults.EventsChannel.
	Channel string
	// Logger is the logger receive failures are reported to.
	Logger *slog.Logger
	// Context is an optional parent context for the subscription.
	Context context.Context
}

// CheckAndSetDefaults checks parameters and sets default values.
func (c *RedisTransportConfig) CheckAndSetDefaults() error {
	if c.Client == nil {
		return trace.BadParameter("missing Client parameter")
	}
	if c.Channel == "" {
		c.Channel = defaults.EventsChannel
	}
	if c.Logger == nil {
		c.Logger = logutils.NewPackageLogger(quasar.ComponentKey, quasar.ComponentTransport)
	}
	if c.Context == nil {
		c.Context = context.Background()
	}
	return nil
}

// RedisTransport carries envelope frames over a single redis pub/sub
// channel. Redis guarantees per-publisher ordering on a channel, which is
// all the bus contract requires.
type RedisTransport struct {
	cfg    RedisTransportConfig
	pubsub *redis.PubSub
	out    chan []byte
	closed chan struct{}
	wg     sync.WaitGroup
	once   sync.Once
}

// NewRedisTransport subscribes to the configured channel and starts
// forwarding inbound messages.
func NewRedisTransport(cfg RedisTransportConfig) (*RedisTransport, error) {
	if err := cfg.CheckAndSetDefaults(); err != nil {
		return nil, trace.Wrap(err)
	}
	pubsub := cfg.Client.Subscribe(cfg.Context, cfg.Channel)
	// Force the subscription to be established before the first Publish
	// can race it.
	if _, err := pubsub.Receive(cfg.Context); err != nil {
		pubsub.Close()
		return nil, trace.Wrap(err)
	}
	t := &RedisTransport{
		cfg:    cfg,
		pubsub: pubsub,
		out:    make(chan []byte, 128),
		closed: make(chan struct{}),
	}
	t.wg.Add(1)
	go t.forward()
	return t, nil
}

// Publish sends a frame to every subscriber of the channel.
func (t *RedisTransport) Publish(ctx context.Context, data []byte) error {
	return trace.Wrap(t.cfg.Client.Publish(ctx, t.cfg.Channel, data).Err())
}

// Receive returns the inbound frame channel.
func (t *RedisTransport) Receive() <-chan []byte { return t.out }

// Close terminates the subscription. The receive channel closes once the
// forwarder drains.
func (t *RedisTransport) Close() error {
	var err error
	t.once.Do(func() {
		close(t.closed)
		err = t.pubsub.Close()
		t.wg.Wait()
		close(t.out)
	})
	return trace.Wrap(err)
}

// forward copies inbound messages onto the out channel. The send races
// Close: once nobody drains the out channel a backlog larger than its
// buffer would block the send forever, so the closed signal wins and the
// backlog is dropped.
func (t *RedisTransport) forward() {
	defer t.wg.Done()
	for msg := range t.pubsub.Channel() {
		select {
		case t.out <- []byte(msg.Payload):
		case <-t.closed:
			return
		}
	}
}
