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
	"sync"
	"time"

	"github.com/gravitational/trace"
	"github.com/jonboulle/clockwork"

	"github.com/gravitational/quasar/lib/memcache"
)

// MemoryConfig holds the parameters of a process-local memory cache.
type MemoryConfig struct {
	// Name identifies the cache within the process.
	Name string
	// Lifetime bounds the age of every entry; zero keeps entries forever.
	Lifetime time.Duration
	// Clock can be set to control time, uses the runtime clock by
	// default.
	Clock clockwork.Clock
}

// CheckAndSetDefaults checks parameters and sets default values.
func (c *MemoryConfig) CheckAndSetDefaults() error {
	if c.Name == "" {
		return trace.BadParameter("missing Name parameter")
	}
	if c.Lifetime < 0 {
		return trace.BadParameter("cache %q has negative lifetime", c.Name)
	}
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	return nil
}

// MemoryCache is a process-local expiring cache with no loaders and no
// cluster coherence. It shares the registry lifecycle with the quantum
// caches so its expired entries are garbage collected on the same cadence.
type MemoryCache[V any] struct {
	name string

	mu    sync.Mutex
	store *memcache.Store[V]
}

// NewMemory creates a process-local memory cache. Most callers should
// construct caches through a [Registry] instead.
func NewMemory[V any](cfg MemoryConfig) (*MemoryCache[V], error) {
	if err := cfg.CheckAndSetDefaults(); err != nil {
		return nil, trace.Wrap(err)
	}
	return &MemoryCache[V]{
		name:  cfg.Name,
		store: memcache.NewStore[V](cfg.Clock, cfg.Lifetime),
	}, nil
}

// Name returns the cache name.
func (c *MemoryCache[V]) Name() string { return c.name }

// Get returns the live value stored under key.
func (c *MemoryCache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.Get(key)
}

// Set stores the value under key.
func (c *MemoryCache[V]) Set(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store.Set(key, value)
}

// Delete removes the entry stored under key, if any.
func (c *MemoryCache[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store.Delete(key)
}

// Has reports whether a live entry exists under key.
func (c *MemoryCache[V]) Has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.Has(key)
}

// Len counts the live entries.
func (c *MemoryCache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.Len()
}

// Snapshot copies the live entries into a fresh map.
func (c *MemoryCache[V]) Snapshot() map[string]V {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.Snapshot()
}

// Keys lists the keys of the live entries.
func (c *MemoryCache[V]) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.Keys()
}

// Clear drops every entry.
func (c *MemoryCache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store.Clear()
}

// GC evicts the expired entries and returns how many were removed.
func (c *MemoryCache[V]) GC() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.GC()
}
