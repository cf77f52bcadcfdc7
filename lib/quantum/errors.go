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
	"errors"
	"fmt"

	"github.com/gravitational/trace"
)

// Missing keys surface as trace.NotFound so callers can use the usual
// trace classification; the lifecycle and loader failures below get their
// own types because callers must tell them apart from domain errors
// flowing out of loaders.

func keyNotFound(cache, key string) error {
	return trace.NotFound("key %q is not cached in %q", key, cache)
}

// IsKeyNotFound reports whether the error means the key is absent from
// the cache and its loader.
func IsKeyNotFound(err error) bool {
	return trace.IsNotFound(err)
}

// FetchFailedError wraps a loader failure. The inner error is the loader's
// own error, or an aggregate when a multi-key fetch failed on several
// loaders.
type FetchFailedError struct {
	// Cache is the name of the cache whose loader failed.
	Cache string
	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *FetchFailedError) Error() string {
	return fmt.Sprintf("fetch from cache %q failed: %v", e.Cache, e.Err)
}

// Unwrap returns the underlying cause.
func (e *FetchFailedError) Unwrap() error { return e.Err }

// IsFetchFailed reports whether the error is a loader failure.
func IsFetchFailed(err error) bool {
	var ffe *FetchFailedError
	return errors.As(err, &ffe)
}

// DisposingError is returned by every public method while a dispose is in
// progress.
type DisposingError struct {
	// Cache is the cache name.
	Cache string
}

// Error implements the error interface.
func (e *DisposingError) Error() string {
	return fmt.Sprintf("cache %q is disposing", e.Cache)
}

// IsDisposing reports whether the error means the cache is disposing.
func IsDisposing(err error) bool {
	var de *DisposingError
	return errors.As(err, &de)
}

// DisposedError is returned by every public method after dispose
// completed.
type DisposedError struct {
	// Cache is the cache name.
	Cache string
}

// Error implements the error interface.
func (e *DisposedError) Error() string {
	return fmt.Sprintf("cache %q is disposed", e.Cache)
}

// IsDisposed reports whether the error means the cache is disposed.
func IsDisposed(err error) bool {
	var de *DisposedError
	return errors.As(err, &de)
}

// AbortedError is returned by in-flight fetches interrupted by a dispose.
type AbortedError struct {
	// Cache is the cache name.
	Cache string
}

// Error implements the error interface.
func (e *AbortedError) Error() string {
	return fmt.Sprintf("fetch aborted: cache %q is disposing", e.Cache)
}

// IsAborted reports whether the error means a fetch was interrupted by a
// dispose.
func IsAborted(err error) bool {
	var ae *AbortedError
	return errors.As(err, &ae)
}
