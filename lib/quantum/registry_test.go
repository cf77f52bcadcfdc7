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

package quantum

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gravitational/trace"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(t *testing.T, clock clockwork.Clock) *Registry {
	t.Helper()
	r, err := NewRegistry(RegistryConfig{Clock: clock})
	require.NoError(t, err)
	t.Cleanup(func() { r.Dispose(context.Background()) })
	return r
}

func TestRegistryUniqueNames(t *testing.T) {
	r := newTestRegistry(t, nil)
	bus := newLocalBus(t)

	_, err := NewCache(r, Config[string]{Name: "users", Bus: bus, Fetch: staticFetch(nil)})
	require.NoError(t, err)

	_, err = NewCache(r, Config[string]{Name: "users", Bus: bus, Fetch: staticFetch(nil)})
	require.True(t, trace.IsAlreadyExists(err))

	// Memory caches share the same namespace.
	_, err = NewMemoryCache[int](r, MemoryConfig{Name: "users"})
	require.True(t, trace.IsAlreadyExists(err))
}

func TestRegistryClear(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(t, nil)
	bus := newLocalBus(t)

	c, err := NewCache(r, Config[string]{Name: "a", Bus: bus, Fetch: staticFetch(nil)})
	require.NoError(t, err)
	m, err := NewMemoryCache[string](r, MemoryConfig{Name: "b"})
	require.NoError(t, err)

	require.NoError(t, c.Set(ctx, "k", "v"))
	m.Set("k", "v")

	require.NoError(t, r.Clear())
	require.Zero(t, c.Len())
	require.Zero(t, m.Len())
}

// sweepCounter is a registry-tracked fake that counts GC sweeps.
type sweepCounter struct {
	sweeps atomic.Int32
}

func (c *sweepCounter) Name() string                      { return "sweeps" }
func (c *sweepCounter) Clear() error                      { return nil }
func (c *sweepCounter) GC() int                           { c.sweeps.Add(1); return 0 }
func (c *sweepCounter) Dispose(ctx context.Context) error { return nil }

func TestRegistryGCLoop(t *testing.T) {
	clock := clockwork.NewFakeClock()
	r, err := NewRegistry(RegistryConfig{Clock: clock, GCInterval: time.Minute})
	require.NoError(t, err)
	defer r.Dispose(context.Background())

	counter := &sweepCounter{}
	require.NoError(t, r.track(counter))

	clock.BlockUntilContext(context.Background(), 1)
	clock.Advance(time.Minute)
	require.Eventually(t, func() bool {
		return counter.sweeps.Load() >= 1
	}, 5*time.Second, time.Millisecond)

	clock.BlockUntilContext(context.Background(), 1)
	clock.Advance(time.Minute)
	require.Eventually(t, func() bool {
		return counter.sweeps.Load() >= 2
	}, 5*time.Second, time.Millisecond)
}

func TestRegistryDispose(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(t, nil)
	bus := newLocalBus(t)

	c, err := NewCache(r, Config[string]{Name: "a", Bus: bus, Fetch: staticFetch(nil)})
	require.NoError(t, err)

	require.NoError(t, r.Dispose(ctx))
	_, err = c.Get("k")
	require.True(t, IsDisposed(err))

	// No new caches after shutdown.
	_, err = NewCache(r, Config[string]{Name: "late", Bus: bus, Fetch: staticFetch(nil)})
	require.Error(t, err)

	// Dispose is idempotent.
	require.NoError(t, r.Dispose(ctx))
}
