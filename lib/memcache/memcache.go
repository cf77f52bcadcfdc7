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

// Package memcache implements the per-key expiring in-memory store the
// quantum cache is built on. The store emits no events; coherence lives a
// layer above.
package memcache

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// Forever disables expiry for a store or an individual entry.
const Forever time.Duration = 0

type entry[V any] struct {
	value     V
	expiresAt time.Time // zero means never
}

func (e *entry[V]) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !e.expiresAt.After(now)
}

// Store maps opaque string keys to values with per-entry expiry. An entry
// past its expiry is treated as absent on read and removed lazily. The
// store is not synchronized; the owning cache serializes access.
type Store[V any] struct {
	clock    clockwork.Clock
	lifetime time.Duration
	entries  map[string]entry[V]
}

// NewStore creates a store whose entries live for the given lifetime by
// default. A zero lifetime keeps entries forever.
func NewStore[V any](clock clockwork.Clock, lifetime time.Duration) *Store[V] {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Store[V]{
		clock:    clock,
		lifetime: lifetime,
		entries:  make(map[string]entry[V]),
	}
}

// Get returns the live value stored under key.
func (s *Store[V]) Get(key string) (V, bool) {
	e, ok := s.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	if e.expired(s.clock.Now()) {
		delete(s.entries, key)
		var zero V
		return zero, false
	}
	return e.value, true
}

// Set stores the value under key with the default lifetime.
func (s *Store[V]) Set(key string, value V) {
	var expires time.Time
	if s.lifetime != Forever {
		expires = s.clock.Now().Add(s.lifetime)
	}
	s.entries[key] = entry[V]{value: value, expiresAt: expires}
}

// SetWithExpiry stores the value under key with an explicit expiry.
func (s *Store[V]) SetWithExpiry(key string, value V, expiresAt time.Time) {
	s.entries[key] = entry[V]{value: value, expiresAt: expiresAt}
}

// Delete removes the entry stored under key, if any.
func (s *Store[V]) Delete(key string) {
	delete(s.entries, key)
}

// Has reports whether a live entry exists under key.
func (s *Store[V]) Has(key string) bool {
	_, ok := s.Get(key)
	return ok
}

// Len counts the live entries.
func (s *Store[V]) Len() int {
	now := s.clock.Now()
	n := 0
	for _, e := range s.entries {
		if !e.expired(now) {
			n++
		}
	}
	return n
}

// Snapshot copies the live entries into a fresh map.
func (s *Store[V]) Snapshot() map[string]V {
	now := s.clock.Now()
	out := make(map[string]V, len(s.entries))
	for k, e := range s.entries {
		if !e.expired(now) {
			out[k] = e.value
		}
	}
	return out
}

// Keys lists the keys of the live entries.
func (s *Store[V]) Keys() []string {
	now := s.clock.Now()
	out := make([]string, 0, len(s.entries))
	for k, e := range s.entries {
		if !e.expired(now) {
			out = append(out, k)
		}
	}
	return out
}

// Clear drops every entry.
func (s *Store[V]) Clear() {
	clear(s.entries)
}

// GC removes every expired entry and returns how many were removed.
func (s *Store[V]) GC() int {
	now := s.clock.Now()
	n := 0
	for k, e := range s.entries {
		if e.expired(now) {
			delete(s.entries, k)
			n++
		}
	}
	return n
}
