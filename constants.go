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

// Package quasar contains constants shared across the Quasar caching core.
package quasar

import "strings"

const (
	// ComponentKey is a logging attribute key holding the name of the
	// component emitting the log entry.
	ComponentKey = "component"

	// ComponentBus is the in-process event dispatcher and its cluster
	// transport glue.
	ComponentBus = "bus"

	// ComponentTransport is the cluster pub/sub transport.
	ComponentTransport = "transport"

	// ComponentQuantum is the cluster-coherent key-value cache.
	ComponentQuantum = "quantum"

	// ComponentRegistry is the cache registry.
	ComponentRegistry = "registry"

	// ComponentCaches is the domain cache bundle.
	ComponentCaches = "caches"
)

// Component generates a colon-joined component name for logging,
// e.g. Component(ComponentQuantum, "userById") -> "quantum:userById".
func Component(parts ...string) string {
	return strings.Join(parts, ":")
}
