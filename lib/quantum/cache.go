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

// Package quantum implements the cluster-coherent key-value cache.
//
// Each process holds a subset view of the authoritative state: reads are
// served from local memory, misses go to a de-duplicated, rate-limited
// loader, and explicit writes broadcast invalidations over the event bus so
// every peer process drops its stale copy. A read issued after the
// invalidation arrives is guaranteed to consult the loader again; reads
// that raced the invalidation may still have seen the old value, which is
// the documented eventual-coherence trade-off.
//
// Emission rules: Set, SetMany, Delete, DeleteMany and Reset publish
// coherence events; Add, AddMany, Fetch and Refresh variants never do, as
// they record discovered authoritative state rather than user intent.
package quantum

import (
	"context"
	"log/slog"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gravitational/trace"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/semaphore"

	"github.com/gravitational/quasar"
	"github.com/gravitational/quasar/lib/defaults"
	"github.com/gravitational/quasar/lib/events"
	"github.com/gravitational/quasar/lib/memcache"
	logutils "github.com/gravitational/quasar/lib/utils/log"
)

// FetchFunc loads the value of a single key from the source of truth.
// A missing key is reported as trace.NotFound.
type FetchFunc[V any] func(ctx context.Context, key string) (V, error)

// FetchMaybeFunc loads the value of a single key, reporting absence as
// ok=false instead of an error.
type FetchMaybeFunc[V any] func(ctx context.Context, key string) (V, bool, error)

// FetchBulkFunc loads several keys at once. Missing keys may be omitted
// from the result; extra keys are ignored by the cache.
type FetchBulkFunc[V any] func(ctx context.Context, keys []string) (map[string]V, error)

// Config holds the parameters of a quantum cache.
type Config[V any] struct {
	// Name uniquely identifies the cache across the cluster; coherence
	// events carry it.
	Name string
	// Lifetime bounds the age of every memory entry.
	Lifetime time.Duration
	// Bus is the event bus coherence flows over.
	Bus *events.Bus
	// Fetch is the required single-key loader.
	Fetch FetchFunc[V]
	// FetchMaybe is the optional single-key loader for callers that
	// treat absence as a normal outcome.
	FetchMaybe FetchMaybeFunc[V]
	// FetchBulk is the optional multi-key loader.
	FetchBulk FetchBulkFunc[V]
	// OnChanged runs after keys changed in memory, both for local
	// writes and for received peer invalidations.
	OnChanged func(ctx context.Context, keys []string) error
	// OnReset runs after a full clear, local or remote.
	OnReset func(ctx context.Context) error
	// FetchConcurrency limits in-flight Fetch loader calls. Default 4.
	FetchConcurrency int
	// FetchMaybeConcurrency limits in-flight FetchMaybe loader calls.
	// Default 4.
	FetchMaybeConcurrency int
	// BulkFetchConcurrency limits in-flight FetchBulk loader calls.
	// Default 2.
	BulkFetchConcurrency int
	// GlobalConcurrency limits in-flight loader calls of all tiers
	// combined. Defaults to the largest tier limit.
	GlobalConcurrency int
	// Clock can be set to control time, uses the runtime clock by
	// default.
	Clock clockwork.Clock
	// Logger is the cache's logger.
	Logger *slog.Logger
	// Context is an optional parent context for in-flight fetches.
	Context context.Context
}

// CheckAndSetDefaults checks parameters and sets default values.
func (c *Config[V]) CheckAndSetDefaults() error {
	if c.Name == "" {
		return trace.BadParameter("missing Name parameter")
	}
	if c.Lifetime < 0 {
		return trace.BadParameter("cache %q has negative lifetime", c.Name)
	}
	if c.Bus == nil {
		return trace.BadParameter("cache %q is missing Bus parameter", c.Name)
	}
	if c.Fetch == nil {
		return trace.BadParameter("cache %q is missing Fetch parameter", c.Name)
	}
	if c.FetchConcurrency <= 0 {
		c.FetchConcurrency = defaults.FetchConcurrency
	}
	if c.FetchMaybeConcurrency <= 0 {
		c.FetchMaybeConcurrency = defaults.FetchMaybeConcurrency
	}
	if c.BulkFetchConcurrency <= 0 {
		c.BulkFetchConcurrency = defaults.BulkFetchConcurrency
	}
	if c.GlobalConcurrency <= 0 {
		c.GlobalConcurrency = max(c.FetchConcurrency, c.FetchMaybeConcurrency, c.BulkFetchConcurrency)
	}
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	if c.Logger == nil {
		c.Logger = logutils.NewPackageLogger(quasar.ComponentKey, quasar.Component(quasar.ComponentQuantum, c.Name))
	}
	if c.Context == nil {
		c.Context = context.Background()
	}
	return nil
}

const (
	stateActive int32 = iota
	stateDisposing
	stateDisposed
)

// Cache is a cluster-coherent key-value cache. See the package
// documentation for the coherence and emission rules.
type Cache[V any] struct {
	cfg    Config[V]
	logger *slog.Logger

	// mu guards the store and the in-flight fetch tables. The window
	// between checking a table and installing a future must be a single
	// critical section.
	mu           sync.Mutex
	store        *memcache.Store[V]
	fetches      map[string]*future[V]
	maybeFetches map[string]*future[V]
	bulkFetches  map[string]*bulkFuture[V]

	globalSem *semaphore.Weighted
	fetchSem  *semaphore.Weighted
	maybeSem  *semaphore.Weighted
	bulkSem   *semaphore.Weighted

	state     atomic.Int32
	closeCtx  context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	disposedC chan struct{}
	subs      []*events.Subscription
}

// New creates a quantum cache and subscribes it to the coherence topics.
// Most callers should construct caches through a [Registry] instead so
// names are kept unique and shutdown is centralized.
func New[V any](cfg Config[V]) (*Cache[V], error) {
	if err := cfg.CheckAndSetDefaults(); err != nil {
		return nil, trace.Wrap(err)
	}
	ctx, cancel := context.WithCancel(cfg.Context)
	c := &Cache[V]{
		cfg:          cfg,
		logger:       cfg.Logger,
		store:        memcache.NewStore[V](cfg.Clock, cfg.Lifetime),
		fetches:      make(map[string]*future[V]),
		maybeFetches: make(map[string]*future[V]),
		bulkFetches:  make(map[string]*bulkFuture[V]),
		globalSem:    semaphore.NewWeighted(int64(cfg.GlobalConcurrency)),
		fetchSem:     semaphore.NewWeighted(int64(cfg.FetchConcurrency)),
		maybeSem:     semaphore.NewWeighted(int64(cfg.FetchMaybeConcurrency)),
		bulkSem:      semaphore.NewWeighted(int64(cfg.BulkFetchConcurrency)),
		closeCtx:     ctx,
		cancel:       cancel,
		disposedC:    make(chan struct{}),
	}
	// The emitting process must not re-process its own coherence
	// events: memory is already up to date when they are published.
	c.subs = append(c.subs,
		events.Subscribe(cfg.Bus, events.TopicQuantumCacheUpdated, c.onPeerUpdated, events.SubscribeOptions{IgnoreLocal: true}),
		events.Subscribe(cfg.Bus, events.TopicQuantumCacheReset, c.onPeerReset, events.SubscribeOptions{IgnoreLocal: true}),
	)
	return c, nil
}

// Name returns the cluster-unique cache name.
func (c *Cache[V]) Name() string { return c.cfg.Name }

func (c *Cache[V]) checkActive() error {
	switch c.state.Load() {
	case stateDisposing:
		return &DisposingError{Cache: c.cfg.Name}
	case stateDisposed:
		return &DisposedError{Cache: c.cfg.Name}
	default:
		return nil
	}
}

// Get returns the value stored in memory under key and fails with a
// key-not-found error when it is absent or expired. The loader is never
// consulted.
func (c *Cache[V]) Get(key string) (V, error) {
	var zero V
	if err := c.checkActive(); err != nil {
		return zero, trace.Wrap(err)
	}
	c.mu.Lock()
	v, ok := c.store.Get(key)
	c.mu.Unlock()
	if !ok {
		cacheMisses.WithLabelValues(c.cfg.Name).Inc()
		return zero, keyNotFound(c.cfg.Name, key)
	}
	cacheHits.WithLabelValues(c.cfg.Name).Inc()
	return v, nil
}

// GetMaybe returns the value stored in memory under key, if any.
func (c *Cache[V]) GetMaybe(key string) (V, bool) {
	var zero V
	if err := c.checkActive(); err != nil {
		return zero, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.Get(key)
}

// GetMany returns the subset of keys present in memory.
func (c *Cache[V]) GetMany(keys []string) map[string]V {
	out := make(map[string]V, len(keys))
	if err := c.checkActive(); err != nil {
		return out
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, key := range keys {
		if v, ok := c.store.Get(key); ok {
			out[key] = v
		}
	}
	return out
}

// Has reports whether a live entry for key exists in memory.
func (c *Cache[V]) Has(key string) bool {
	_, ok := c.GetMaybe(key)
	return ok
}

// Len counts the live entries in memory.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.Len()
}

// Snapshot copies the live memory entries. Used for local scans such as
// reverse-index invalidation; peers are not consulted.
func (c *Cache[V]) Snapshot() map[string]V {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.Snapshot()
}

// Keys lists the keys of the live memory entries.
func (c *Cache[V]) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.Keys()
}

// Set stores the value and broadcasts an invalidation for the key. When
// the stored value is reference-identical to the previous one the write is
// a no-op and nothing is emitted.
func (c *Cache[V]) Set(ctx context.Context, key string, value V) error {
	if err := c.checkActive(); err != nil {
		return trace.Wrap(err)
	}
	c.mu.Lock()
	prev, had := c.store.Get(key)
	c.store.Set(key, value)
	c.mu.Unlock()
	if had && sameRef(prev, value) {
		return nil
	}
	c.emitUpdated(ctx, []string{key})
	return trace.Wrap(c.notifyChanged(ctx, []string{key}))
}

// SetMany stores every entry and broadcasts one invalidation covering the
// keys that actually changed; nothing is emitted when none did.
func (c *Cache[V]) SetMany(ctx context.Context, entries map[string]V) error {
	if err := c.checkActive(); err != nil {
		return trace.Wrap(err)
	}
	changed := make([]string, 0, len(entries))
	c.mu.Lock()
	for key, value := range entries {
		prev, had := c.store.Get(key)
		c.store.Set(key, value)
		if !(had && sameRef(prev, value)) {
			changed = append(changed, key)
		}
	}
	c.mu.Unlock()
	if len(changed) == 0 {
		return nil
	}
	c.emitUpdated(ctx, changed)
	return trace.Wrap(c.notifyChanged(ctx, changed))
}

// Add stores a value without any coherence emission or change hook. Meant
// for authoritative fresh data, e.g. a row that was just inserted: no peer
// can hold a stale copy yet.
func (c *Cache[V]) Add(key string, value V) error {
	if err := c.checkActive(); err != nil {
		return trace.Wrap(err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store.Set(key, value)
	return nil
}

// AddMany stores every entry without any coherence emission or change
// hook.
func (c *Cache[V]) AddMany(entries map[string]V) error {
	if err := c.checkActive(); err != nil {
		return trace.Wrap(err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, value := range entries {
		c.store.Set(key, value)
	}
	return nil
}

// CompareAndSwap installs value under key only when the resident entry is
// still reference-identical to prev, and reports whether it did. Like Add
// it emits nothing and runs no change hook: it exists for hooks that
// re-derive a resident entry from its own current value and must not
// resurrect an entry that was deleted or replaced while they computed.
// Values of non-comparable types never compare identical, so the swap
// never applies to them.
func (c *Cache[V]) CompareAndSwap(key string, prev, value V) (bool, error) {
	if err := c.checkActive(); err != nil {
		return false, trace.Wrap(err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	cur, ok := c.store.Get(key)
	if !ok || !sameRef(cur, prev) {
		return false, nil
	}
	c.store.Set(key, value)
	return true, nil
}

// Delete evicts the key locally and broadcasts the invalidation. Peers may
// hold the entry even when this process does not, so the event is emitted
// unconditionally.
func (c *Cache[V]) Delete(ctx context.Context, key string) error {
	if err := c.checkActive(); err != nil {
		return trace.Wrap(err)
	}
	c.mu.Lock()
	c.store.Delete(key)
	c.mu.Unlock()
	c.emitUpdated(ctx, []string{key})
	return trace.Wrap(c.notifyChanged(ctx, []string{key}))
}

// DeleteMany evicts the keys locally and broadcasts one invalidation
// covering all of them.
func (c *Cache[V]) DeleteMany(ctx context.Context, keys []string) error {
	if err := c.checkActive(); err != nil {
		return trace.Wrap(err)
	}
	if len(keys) == 0 {
		return nil
	}
	c.mu.Lock()
	for _, key := range keys {
		c.store.Delete(key)
	}
	c.mu.Unlock()
	c.emitUpdated(ctx, keys)
	return trace.Wrap(c.notifyChanged(ctx, keys))
}

// Clear wipes local memory without emitting anything.
func (c *Cache[V]) Clear() error {
	if err := c.checkActive(); err != nil {
		return trace.Wrap(err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store.Clear()
	return nil
}

// Reset wipes local memory, broadcasts a reset to every peer and runs the
// reset hook.
func (c *Cache[V]) Reset(ctx context.Context) error {
	if err := c.checkActive(); err != nil {
		return trace.Wrap(err)
	}
	c.mu.Lock()
	c.store.Clear()
	c.mu.Unlock()
	if err := c.cfg.Bus.Emit(ctx, events.TopicQuantumCacheReset, events.QuantumCacheReset{Name: c.cfg.Name}); err != nil {
		c.logger.WarnContext(ctx, "Failed to publish cache reset.", "error", err)
	}
	if c.cfg.OnReset != nil {
		return trace.Wrap(c.cfg.OnReset(ctx))
	}
	return nil
}

// GC evicts the expired entries and returns how many were removed.
func (c *Cache[V]) GC() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.GC()
}

// Dispose aborts the in-flight fetches, waits for them to settle,
// unsubscribes from the bus and purges memory. Further calls on the cache
// fail with a disposed error. Dispose is idempotent; concurrent callers
// wait for the first one to finish.
func (c *Cache[V]) Dispose(ctx context.Context) error {
	if c.state.CompareAndSwap(stateActive, stateDisposing) {
		c.cancel()
		c.wg.Wait()
		for _, sub := range c.subs {
			sub.Close()
		}
		c.mu.Lock()
		c.store.Clear()
		c.mu.Unlock()
		c.state.Store(stateDisposed)
		close(c.disposedC)
		return nil
	}
	select {
	case <-c.disposedC:
		return nil
	case <-ctx.Done():
		return trace.Wrap(ctx.Err())
	}
}

func (c *Cache[V]) emitUpdated(ctx context.Context, keys []string) {
	err := c.cfg.Bus.Emit(ctx, events.TopicQuantumCacheUpdated, events.QuantumCacheUpdated{
		Name: c.cfg.Name,
		Keys: keys,
	})
	if err != nil {
		// Peers will self-heal once the entry lifetime runs out.
		c.logger.WarnContext(ctx, "Failed to publish cache invalidation.",
			"keys", len(keys),
			"error", err,
		)
	}
}

func (c *Cache[V]) notifyChanged(ctx context.Context, keys []string) error {
	if c.cfg.OnChanged == nil {
		return nil
	}
	return trace.Wrap(c.cfg.OnChanged(ctx, keys))
}

// onPeerUpdated handles a coherence invalidation published by a peer
// process. Keys are deleted rather than refreshed: this process may never
// need them, and the loader is the authority on demand.
func (c *Cache[V]) onPeerUpdated(ctx context.Context, ev events.QuantumCacheUpdated, isLocal bool) error {
	if ev.Name != c.cfg.Name {
		return nil
	}
	if c.state.Load() != stateActive {
		return nil
	}
	c.mu.Lock()
	for _, key := range ev.Keys {
		c.store.Delete(key)
	}
	c.mu.Unlock()
	cacheCoherenceEvictions.WithLabelValues(c.cfg.Name).Add(float64(len(ev.Keys)))
	return trace.Wrap(c.notifyChanged(ctx, ev.Keys))
}

// onPeerReset handles a full clear published by a peer process.
func (c *Cache[V]) onPeerReset(ctx context.Context, ev events.QuantumCacheReset, isLocal bool) error {
	if ev.Name != c.cfg.Name {
		return nil
	}
	if c.state.Load() != stateActive {
		return nil
	}
	c.mu.Lock()
	c.store.Clear()
	c.mu.Unlock()
	if c.cfg.OnReset != nil {
		return trace.Wrap(c.cfg.OnReset(ctx))
	}
	return nil
}

// sameRef reports whether the new value is reference-identical to the
// previous one. Values of non-comparable types (maps, slices) never
// compare identical; their writers always emit.
func sameRef[V any](a, b V) bool {
	av, bv := any(a), any(b)
	if av == nil || bv == nil {
		return av == nil && bv == nil
	}
	if !reflect.TypeOf(av).Comparable() {
		return false
	}
	return av == bv
}
