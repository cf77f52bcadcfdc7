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
	"sync"

	"github.com/gravitational/trace"
	"golang.org/x/sync/semaphore"
)

// future is a single-key in-flight load. Concurrent callers of the same
// key attach to the same future; the first caller runs the loader.
type future[V any] struct {
	done  chan struct{}
	val   V
	found bool
	err   error
}

func newFuture[V any]() *future[V] {
	return &future[V]{done: make(chan struct{})}
}

func (f *future[V]) settleValue(v V) {
	f.val = v
	f.found = true
	close(f.done)
}

func (f *future[V]) settleMissing() {
	close(f.done)
}

func (f *future[V]) settleErr(err error) {
	f.err = err
	close(f.done)
}

// bulkFuture is a multi-key in-flight load. Every key it covers points at
// it from the bulk table.
type bulkFuture[V any] struct {
	done chan struct{}
	res  map[string]V
	err  error
}

func newBulkFuture[V any]() *bulkFuture[V] {
	return &bulkFuture[V]{done: make(chan struct{})}
}

func (f *bulkFuture[V]) settle(res map[string]V, err error) {
	f.res = res
	f.err = err
	close(f.done)
}

// Fetch returns the value for key, consulting memory first and the loader
// on a miss. It fails with a key-not-found error when the loader reports
// the key missing and with a FetchFailedError on any other loader error.
// Loader calls are de-duplicated: concurrent callers share one in-flight
// load.
func (c *Cache[V]) Fetch(ctx context.Context, key string) (V, error) {
	var zero V
	if err := c.checkActive(); err != nil {
		return zero, trace.Wrap(err)
	}

	c.mu.Lock()
	if v, ok := c.store.Get(key); ok {
		c.mu.Unlock()
		cacheHits.WithLabelValues(c.cfg.Name).Inc()
		return v, nil
	}
	if f, ok := c.fetches[key]; ok {
		c.mu.Unlock()
		return c.awaitFetch(ctx, key, f)
	}
	f := newFuture[V]()
	c.fetches[key] = f
	c.wg.Add(1)
	c.mu.Unlock()

	cacheMisses.WithLabelValues(c.cfg.Name).Inc()
	go c.runFetch(key, f)
	return c.awaitFetch(ctx, key, f)
}

// FetchMaybe returns the value for key, treating absence as a normal
// outcome. It joins an in-flight fetch of either single tier when one
// exists, otherwise starts a load on the optional-fetch tier, falling back
// to the required loader when no optional loader is configured.
func (c *Cache[V]) FetchMaybe(ctx context.Context, key string) (V, bool, error) {
	var zero V
	if err := c.checkActive(); err != nil {
		return zero, false, trace.Wrap(err)
	}

	c.mu.Lock()
	if v, ok := c.store.Get(key); ok {
		c.mu.Unlock()
		cacheHits.WithLabelValues(c.cfg.Name).Inc()
		return v, true, nil
	}
	if f, ok := c.maybeFetches[key]; ok {
		c.mu.Unlock()
		return c.awaitMaybe(ctx, f)
	}
	if f, ok := c.fetches[key]; ok {
		c.mu.Unlock()
		return c.awaitFetchAbsorbing(ctx, key, f)
	}
	f := newFuture[V]()
	if c.cfg.FetchMaybe != nil {
		c.maybeFetches[key] = f
		c.wg.Add(1)
		c.mu.Unlock()
		cacheMisses.WithLabelValues(c.cfg.Name).Inc()
		go c.runFetchMaybe(key, f)
		return c.awaitMaybe(ctx, f)
	}
	// No optional loader: promote to the required tier so plain Fetch
	// callers can still join this load.
	c.fetches[key] = f
	c.wg.Add(1)
	c.mu.Unlock()
	cacheMisses.WithLabelValues(c.cfg.Name).Inc()
	go c.runFetch(key, f)
	return c.awaitFetchAbsorbing(ctx, key, f)
}

// FetchMany returns the values of all keys it could find, silently
// dropping missing ones. Keys already in memory or covered by an in-flight
// load of any tier are joined; the remaining keys go to one bulk load when
// a bulk loader is configured and more than one key is left, otherwise to
// individual optional fetches. All partial failures are aggregated into a
// single FetchFailedError.
func (c *Cache[V]) FetchMany(ctx context.Context, keys []string) (map[string]V, error) {
	if err := c.checkActive(); err != nil {
		return nil, trace.Wrap(err)
	}

	result := make(map[string]V, len(keys))
	joinMaybe := make(map[string]*future[V])
	joinFetch := make(map[string]*future[V])
	joinBulk := make(map[string]*bulkFuture[V])
	var remaining []string

	seen := make(map[string]struct{}, len(keys))
	c.mu.Lock()
	for _, key := range keys {
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		if v, ok := c.store.Get(key); ok {
			result[key] = v
			continue
		}
		if f, ok := c.maybeFetches[key]; ok {
			joinMaybe[key] = f
			continue
		}
		if f, ok := c.fetches[key]; ok {
			joinFetch[key] = f
			continue
		}
		if bf, ok := c.bulkFetches[key]; ok {
			joinBulk[key] = bf
			continue
		}
		remaining = append(remaining, key)
	}
	var newBulk *bulkFuture[V]
	if len(remaining) > 1 && c.cfg.FetchBulk != nil {
		newBulk = newBulkFuture[V]()
		for _, key := range remaining {
			c.bulkFetches[key] = newBulk
			joinBulk[key] = newBulk
		}
		c.wg.Add(1)
	}
	c.mu.Unlock()

	cacheHits.WithLabelValues(c.cfg.Name).Add(float64(len(result)))

	// Leftover singletons count their misses inside FetchMaybe; joined
	// loads were counted by whoever started them.
	if newBulk != nil {
		cacheMisses.WithLabelValues(c.cfg.Name).Add(float64(len(remaining)))
		go c.runBulk(remaining, newBulk)
		remaining = nil
	}

	var (
		errsMu sync.Mutex
		errs   []error
	)
	addErr := func(err error) {
		errsMu.Lock()
		errs = append(errs, err)
		errsMu.Unlock()
	}

	// Leftover singletons run concurrently through the optional-fetch
	// path; every outcome is collected before errors are aggregated.
	var singles sync.WaitGroup
	var resultMu sync.Mutex
	for _, key := range remaining {
		key := key
		singles.Add(1)
		go func() {
			defer singles.Done()
			v, ok, err := c.FetchMaybe(ctx, key)
			if err != nil {
				addErr(err)
				return
			}
			if ok {
				resultMu.Lock()
				result[key] = v
				resultMu.Unlock()
			}
		}()
	}

	for key, f := range joinMaybe {
		if v, ok, err := c.awaitMaybe(ctx, f); err != nil {
			addErr(err)
		} else if ok {
			result[key] = v
		}
	}
	for key, f := range joinFetch {
		v, err := c.awaitFetch(ctx, key, f)
		switch {
		case err == nil:
			result[key] = v
		case IsKeyNotFound(err):
		default:
			addErr(err)
		}
	}
	awaited := make(map[*bulkFuture[V]]bool)
	for key, bf := range joinBulk {
		if !awaited[bf] {
			awaited[bf] = true
			if err := c.awaitBulk(ctx, bf); err != nil {
				addErr(err)
				continue
			}
		}
		if bf.err == nil {
			if v, ok := bf.res[key]; ok {
				result[key] = v
			}
		}
	}
	singles.Wait()

	if len(errs) > 0 {
		if len(errs) == 1 && IsFetchFailed(errs[0]) {
			return nil, errs[0]
		}
		return nil, &FetchFailedError{Cache: c.cfg.Name, Err: trace.NewAggregate(errs...)}
	}
	return result, nil
}

// Refresh bypasses memory, loads the key and installs the outcome: the
// fresh value on success, an eviction when the loader reports the key
// gone. No coherence event is emitted; refresh records discovered
// authoritative state.
func (c *Cache[V]) Refresh(ctx context.Context, key string) (V, error) {
	var zero V
	if err := c.checkActive(); err != nil {
		return zero, trace.Wrap(err)
	}
	if err := c.acquireSlots(c.fetchSem); err != nil {
		return zero, trace.Wrap(err)
	}
	defer c.releaseSlots(c.fetchSem)

	cacheLoads.WithLabelValues(c.cfg.Name, tierFetch).Inc()
	v, found, err := c.invokeFetch(key)
	switch {
	case err != nil:
		cacheLoadFailures.WithLabelValues(c.cfg.Name, tierFetch).Inc()
		return zero, err
	case !found:
		c.mu.Lock()
		c.store.Delete(key)
		c.mu.Unlock()
		return zero, keyNotFound(c.cfg.Name, key)
	default:
		c.install(key, v)
		return v, nil
	}
}

// RefreshMaybe is Refresh for callers that treat absence as a normal
// outcome.
func (c *Cache[V]) RefreshMaybe(ctx context.Context, key string) (V, bool, error) {
	var zero V
	if err := c.checkActive(); err != nil {
		return zero, false, trace.Wrap(err)
	}

	tierSem, tierLabel := c.fetchSem, tierFetch
	if c.cfg.FetchMaybe != nil {
		tierSem, tierLabel = c.maybeSem, tierFetchMaybe
	}
	if err := c.acquireSlots(tierSem); err != nil {
		return zero, false, trace.Wrap(err)
	}
	defer c.releaseSlots(tierSem)

	cacheLoads.WithLabelValues(c.cfg.Name, tierLabel).Inc()
	var (
		v     V
		found bool
		err   error
	)
	if c.cfg.FetchMaybe != nil {
		v, found, err = c.invokeFetchMaybe(key)
	} else {
		v, found, err = c.invokeFetch(key)
	}
	if err != nil {
		cacheLoadFailures.WithLabelValues(c.cfg.Name, tierLabel).Inc()
		return zero, false, err
	}
	if !found {
		c.mu.Lock()
		c.store.Delete(key)
		c.mu.Unlock()
		return zero, false, nil
	}
	c.install(key, v)
	return v, true, nil
}

// RefreshMany bypasses memory and reloads all keys, installing found
// values and evicting the rest. Uses the bulk loader when configured.
func (c *Cache[V]) RefreshMany(ctx context.Context, keys []string) (map[string]V, error) {
	if err := c.checkActive(); err != nil {
		return nil, trace.Wrap(err)
	}
	if len(keys) == 0 {
		return map[string]V{}, nil
	}

	if c.cfg.FetchBulk != nil {
		if err := c.acquireSlots(c.bulkSem); err != nil {
			return nil, trace.Wrap(err)
		}
		defer c.releaseSlots(c.bulkSem)

		cacheLoads.WithLabelValues(c.cfg.Name, tierBulk).Inc()
		res, err := c.invokeFetchBulk(keys)
		if err != nil {
			cacheLoadFailures.WithLabelValues(c.cfg.Name, tierBulk).Inc()
			return nil, err
		}
		c.mu.Lock()
		for _, key := range keys {
			if v, ok := res[key]; ok {
				c.store.Set(key, v)
			} else {
				c.store.Delete(key)
			}
		}
		c.mu.Unlock()
		out := make(map[string]V, len(res))
		for _, key := range keys {
			if v, ok := res[key]; ok {
				out[key] = v
			}
		}
		return out, nil
	}

	out := make(map[string]V, len(keys))
	var errs []error
	for _, key := range keys {
		v, ok, err := c.RefreshMaybe(ctx, key)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if ok {
			out[key] = v
		}
	}
	if len(errs) > 0 {
		if len(errs) == 1 && IsFetchFailed(errs[0]) {
			return nil, errs[0]
		}
		return nil, &FetchFailedError{Cache: c.cfg.Name, Err: trace.NewAggregate(errs...)}
	}
	return out, nil
}

// --- future plumbing ---

func (c *Cache[V]) awaitFetch(ctx context.Context, key string, f *future[V]) (V, error) {
	var zero V
	if err := c.waitSettled(ctx, f.done); err != nil {
		return zero, err
	}
	switch {
	case f.err != nil:
		return zero, f.err
	case !f.found:
		return zero, keyNotFound(c.cfg.Name, key)
	default:
		return f.val, nil
	}
}

func (c *Cache[V]) awaitFetchAbsorbing(ctx context.Context, key string, f *future[V]) (V, bool, error) {
	v, err := c.awaitFetch(ctx, key, f)
	switch {
	case err == nil:
		return v, true, nil
	case IsKeyNotFound(err):
		var zero V
		return zero, false, nil
	default:
		var zero V
		return zero, false, err
	}
}

func (c *Cache[V]) awaitMaybe(ctx context.Context, f *future[V]) (V, bool, error) {
	var zero V
	if err := c.waitSettled(ctx, f.done); err != nil {
		return zero, false, err
	}
	if f.err != nil {
		return zero, false, f.err
	}
	return f.val, f.found, nil
}

func (c *Cache[V]) awaitBulk(ctx context.Context, f *bulkFuture[V]) error {
	if err := c.waitSettled(ctx, f.done); err != nil {
		return err
	}
	return f.err
}

// waitSettled blocks until the future settles, the cache disposes or the
// caller gives up. A settled future always wins the race.
func (c *Cache[V]) waitSettled(ctx context.Context, done <-chan struct{}) error {
	select {
	case <-done:
		return nil
	default:
	}
	select {
	case <-done:
		return nil
	case <-c.closeCtx.Done():
		return &AbortedError{Cache: c.cfg.Name}
	case <-ctx.Done():
		return trace.Wrap(ctx.Err())
	}
}

// --- loader runners ---

// acquireSlots takes the global slot first and the tier slot second; both
// limiters are FIFO. An error means the cache started disposing.
func (c *Cache[V]) acquireSlots(tier *semaphore.Weighted) error {
	if err := c.globalSem.Acquire(c.closeCtx, 1); err != nil {
		return &AbortedError{Cache: c.cfg.Name}
	}
	if err := tier.Acquire(c.closeCtx, 1); err != nil {
		c.globalSem.Release(1)
		return &AbortedError{Cache: c.cfg.Name}
	}
	return nil
}

func (c *Cache[V]) releaseSlots(tier *semaphore.Weighted) {
	tier.Release(1)
	c.globalSem.Release(1)
}

type loadOutcome[V any] struct {
	val   V
	found bool
	err   error
}

// invokeFetch runs the required loader detached, so a loader that ignores
// the dispose signal merely leaks its goroutine until it returns and never
// blocks disposal. The loader context is the cache's close context: its
// cancellation is the dispose signal.
func (c *Cache[V]) invokeFetch(key string) (V, bool, error) {
	resC := make(chan loadOutcome[V], 1)
	go func() {
		v, err := c.cfg.Fetch(c.closeCtx, key)
		switch {
		case err == nil:
			resC <- loadOutcome[V]{val: v, found: true}
		case trace.IsNotFound(err):
			resC <- loadOutcome[V]{}
		default:
			resC <- loadOutcome[V]{err: &FetchFailedError{Cache: c.cfg.Name, Err: err}}
		}
	}()
	return c.waitLoad(resC)
}

func (c *Cache[V]) invokeFetchMaybe(key string) (V, bool, error) {
	resC := make(chan loadOutcome[V], 1)
	go func() {
		v, ok, err := c.cfg.FetchMaybe(c.closeCtx, key)
		if err != nil {
			resC <- loadOutcome[V]{err: &FetchFailedError{Cache: c.cfg.Name, Err: err}}
			return
		}
		resC <- loadOutcome[V]{val: v, found: ok}
	}()
	return c.waitLoad(resC)
}

func (c *Cache[V]) invokeFetchBulk(keys []string) (map[string]V, error) {
	type bulkOutcome struct {
		res map[string]V
		err error
	}
	resC := make(chan bulkOutcome, 1)
	go func() {
		res, err := c.cfg.FetchBulk(c.closeCtx, keys)
		if err != nil {
			resC <- bulkOutcome{err: &FetchFailedError{Cache: c.cfg.Name, Err: err}}
			return
		}
		resC <- bulkOutcome{res: res}
	}()
	select {
	case out := <-resC:
		return out.res, out.err
	case <-c.closeCtx.Done():
		return nil, &AbortedError{Cache: c.cfg.Name}
	}
}

func (c *Cache[V]) waitLoad(resC <-chan loadOutcome[V]) (V, bool, error) {
	select {
	case out := <-resC:
		return out.val, out.found, out.err
	case <-c.closeCtx.Done():
		var zero V
		return zero, false, &AbortedError{Cache: c.cfg.Name}
	}
}

func (c *Cache[V]) runFetch(key string, f *future[V]) {
	defer c.wg.Done()
	defer c.finishSingle(c.fetches, key, f)

	if err := c.acquireSlots(c.fetchSem); err != nil {
		f.settleErr(err)
		return
	}
	defer c.releaseSlots(c.fetchSem)

	cacheLoads.WithLabelValues(c.cfg.Name, tierFetch).Inc()
	v, found, err := c.invokeFetch(key)
	switch {
	case err != nil:
		cacheLoadFailures.WithLabelValues(c.cfg.Name, tierFetch).Inc()
		f.settleErr(err)
	case !found:
		f.settleMissing()
	default:
		c.install(key, v)
		f.settleValue(v)
	}
}

func (c *Cache[V]) runFetchMaybe(key string, f *future[V]) {
	defer c.wg.Done()
	defer c.finishSingle(c.maybeFetches, key, f)

	if err := c.acquireSlots(c.maybeSem); err != nil {
		f.settleErr(err)
		return
	}
	defer c.releaseSlots(c.maybeSem)

	cacheLoads.WithLabelValues(c.cfg.Name, tierFetchMaybe).Inc()
	v, found, err := c.invokeFetchMaybe(key)
	switch {
	case err != nil:
		cacheLoadFailures.WithLabelValues(c.cfg.Name, tierFetchMaybe).Inc()
		f.settleErr(err)
	case !found:
		f.settleMissing()
	default:
		c.install(key, v)
		f.settleValue(v)
	}
}

func (c *Cache[V]) runBulk(keys []string, f *bulkFuture[V]) {
	defer c.wg.Done()
	defer c.finishBulk(keys, f)

	if err := c.acquireSlots(c.bulkSem); err != nil {
		f.settle(nil, err)
		return
	}
	defer c.releaseSlots(c.bulkSem)

	cacheLoads.WithLabelValues(c.cfg.Name, tierBulk).Inc()
	res, err := c.invokeFetchBulk(keys)
	if err != nil {
		cacheLoadFailures.WithLabelValues(c.cfg.Name, tierBulk).Inc()
		f.settle(nil, err)
		return
	}
	// The loader may return keys nobody asked for; keep the requested
	// subset only.
	filtered := make(map[string]V, len(res))
	c.mu.Lock()
	for _, key := range keys {
		if v, ok := res[key]; ok {
			filtered[key] = v
			c.store.Set(key, v)
		}
	}
	c.mu.Unlock()
	f.settle(filtered, nil)
}

// install records a loader result in memory, unless the cache already
// started disposing.
func (c *Cache[V]) install(key string, v V) {
	if c.state.Load() != stateActive {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store.Set(key, v)
}

// finishSingle removes the settled future from its table. The slot not
// referencing this future means the table was corrupted, which is an
// internal invariant violation.
func (c *Cache[V]) finishSingle(table map[string]*future[V], key string, f *future[V]) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cur, ok := table[key]; !ok || cur != f {
		c.logger.Error("In-flight fetch table does not reference the settling fetch (this is a bug).",
			"key", key,
		)
		return
	}
	delete(table, key)
}

func (c *Cache[V]) finishBulk(keys []string, f *bulkFuture[V]) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, key := range keys {
		if cur, ok := c.bulkFetches[key]; !ok || cur != f {
			c.logger.Error("In-flight bulk fetch table does not reference the settling fetch (this is a bug).",
				"key", key,
			)
			continue
		}
		delete(c.bulkFetches, key)
	}
}
