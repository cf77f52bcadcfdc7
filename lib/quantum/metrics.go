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

import "github.com/prometheus/client_golang/prometheus"

var (
	cacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quasar_cache_hits_total",
			Help: "Number of cache reads served from memory",
		},
		[]string{"cache"},
	)
	cacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quasar_cache_misses_total",
			Help: "Number of cache reads that missed memory",
		},
		[]string{"cache"},
	)
	cacheLoads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quasar_cache_loads_total",
			Help: "Number of loader invocations by fetch tier",
		},
		[]string{"cache", "tier"},
	)
	cacheLoadFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quasar_cache_load_failures_total",
			Help: "Number of failed loader invocations by fetch tier",
		},
		[]string{"cache", "tier"},
	)
	cacheCoherenceEvictions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quasar_cache_coherence_evictions_total",
			Help: "Number of keys evicted due to peer coherence events",
		},
		[]string{"cache"},
	)
)

const (
	tierFetch      = "fetch"
	tierFetchMaybe = "fetch_maybe"
	tierBulk       = "bulk"
)
