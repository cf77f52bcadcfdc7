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
	"log/slog"
	"sync"
	"time"

	"github.com/gravitational/trace"
	"github.com/jonboulle/clockwork"

	"github.com/gravitational/quasar"
	"github.com/gravitational/quasar/lib/defaults"
	"github.com/gravitational/quasar/lib/utils"
	logutils "github.com/gravitational/quasar/lib/utils/log"
)

// clearer is the registry's view of a tracked cache: enough to purge,
// collect garbage and shut down without knowing the value type.
type clearer interface {
	Name() string
	Clear() error
	GC() int
	Dispose(ctx context.Context) error
}

// memoryAdapter lifts a MemoryCache into the registry's cache interface.
type memoryAdapter[V any] struct {
	*MemoryCache[V]
}

func (a memoryAdapter[V]) Clear() error {
	a.MemoryCache.Clear()
	return nil
}

func (a memoryAdapter[V]) Dispose(ctx context.Context) error {
	a.MemoryCache.Clear()
	return nil
}

// RegistryConfig holds the parameters of a cache registry.
type RegistryConfig struct {
	// GCInterval is the cadence of the expired-entry sweep across all
	// tracked caches.
	GCInterval time.Duration
	// Clock can be set to control time, uses the runtime clock by
	// default.
	Clock clockwork.Clock
	// Logger is the registry's logger.
	Logger *slog.Logger
	// Context is an optional parent context for the GC loop.
	Context context.Context
}

// CheckAndSetDefaults checks parameters and sets default values.
func (c *RegistryConfig) CheckAndSetDefaults() error {
	if c.GCInterval <= 0 {
		c.GCInterval = defaults.CacheGCInterval
	}
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	if c.Logger == nil {
		c.Logger = logutils.NewPackageLogger(quasar.ComponentKey, quasar.Component(quasar.ComponentRegistry))
	}
	if c.Context == nil {
		c.Context = context.Background()
	}
	return nil
}

// Registry tracks every cache of a process under a unique name, sweeps
// their expired entries on one timer and disposes them together on
// shutdown. Caches are registered through [NewCache] and [NewMemoryCache];
// generic methods cannot hang off a generic receiver, so those are
// package-level functions taking the registry.
type Registry struct {
	cfg    RegistryConfig
	logger *slog.Logger

	mu     sync.Mutex
	caches map[string]clearer
	closed bool

	closeCtx context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewRegistry creates a cache registry, registers the cache metrics and
// starts the GC loop.
func NewRegistry(cfg RegistryConfig) (*Registry, error) {
	if err := cfg.CheckAndSetDefaults(); err != nil {
		return nil, trace.Wrap(err)
	}
	if err := utils.RegisterPrometheusCollectors(
		cacheHits,
		cacheMisses,
		cacheLoads,
		cacheLoadFailures,
		cacheCoherenceEvictions,
	); err != nil {
		return nil, trace.Wrap(err)
	}
	ctx, cancel := context.WithCancel(cfg.Context)
	r := &Registry{
		cfg:      cfg,
		logger:   cfg.Logger,
		caches:   make(map[string]clearer),
		closeCtx: ctx,
		cancel:   cancel,
	}
	r.wg.Add(1)
	go r.gcLoop()
	return r, nil
}

// NewCache creates a quantum cache and tracks it in the registry. The
// name must be unique within the registry.
func NewCache[V any](r *Registry, cfg Config[V]) (*Cache[V], error) {
	c, err := New(cfg)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	if err := r.track(c); err != nil {
		if derr := c.Dispose(context.Background()); derr != nil {
			r.logger.Warn("Failed to dispose cache after registration failure.",
				"cache", c.Name(),
				"error", derr,
			)
		}
		return nil, trace.Wrap(err)
	}
	return c, nil
}

// NewMemoryCache creates a process-local memory cache and tracks it in
// the registry. The name must be unique within the registry.
func NewMemoryCache[V any](r *Registry, cfg MemoryConfig) (*MemoryCache[V], error) {
	if cfg.Clock == nil {
		cfg.Clock = r.cfg.Clock
	}
	c, err := NewMemory[V](cfg)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	if err := r.track(memoryAdapter[V]{c}); err != nil {
		return nil, trace.Wrap(err)
	}
	return c, nil
}

func (r *Registry) track(c clearer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return trace.Errorf("registry is closed")
	}
	if _, ok := r.caches[c.Name()]; ok {
		return trace.AlreadyExists("cache %q is already registered", c.Name())
	}
	r.caches[c.Name()] = c
	return nil
}

// Clear purges every tracked cache's local memory. Nothing is emitted;
// peers are unaffected.
func (r *Registry) Clear() error {
	r.mu.Lock()
	caches := make([]clearer, 0, len(r.caches))
	for _, c := range r.caches {
		caches = append(caches, c)
	}
	r.mu.Unlock()

	var errs []error
	for _, c := range caches {
		if err := c.Clear(); err != nil {
			errs = append(errs, trace.Wrap(err, "clearing cache %q", c.Name()))
		}
	}
	return trace.NewAggregate(errs...)
}

// Dispose stops the GC loop and disposes every tracked cache. The
// registry accepts no new caches afterwards.
func (r *Registry) Dispose(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	caches := make([]clearer, 0, len(r.caches))
	for _, c := range r.caches {
		caches = append(caches, c)
	}
	r.mu.Unlock()

	r.cancel()
	r.wg.Wait()

	var errs []error
	for _, c := range caches {
		if err := c.Dispose(ctx); err != nil {
			errs = append(errs, trace.Wrap(err, "disposing cache %q", c.Name()))
		}
	}
	return trace.NewAggregate(errs...)
}

func (r *Registry) gcLoop() {
	defer r.wg.Done()
	ticker := r.cfg.Clock.NewTicker(r.cfg.GCInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.Chan():
			r.collect()
		case <-r.closeCtx.Done():
			return
		}
	}
}

func (r *Registry) collect() {
	r.mu.Lock()
	caches := make([]clearer, 0, len(r.caches))
	for _, c := range r.caches {
		caches = append(caches, c)
	}
	r.mu.Unlock()

	total := 0
	for _, c := range caches {
		total += c.GC()
	}
	if total > 0 {
		r.logger.DebugContext(r.closeCtx, "Swept expired cache entries.", "evicted", total)
	}
}
