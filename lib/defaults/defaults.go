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

// Package defaults contains default constants used across the Quasar
// caching core.
package defaults

import "time"

const (
	// EventsChannel is the pub/sub channel all cluster events travel over.
	EventsChannel = "quasar:events"

	// FetchConcurrency is the default per-cache limit on concurrent
	// single-key required fetches.
	FetchConcurrency = 4

	// FetchMaybeConcurrency is the default per-cache limit on concurrent
	// single-key optional fetches.
	FetchMaybeConcurrency = 4

	// BulkFetchConcurrency is the default per-cache limit on concurrent
	// bulk fetches.
	BulkFetchConcurrency = 2

	// CacheGCInterval is how often the registry sweeps expired entries
	// out of every tracked cache.
	CacheGCInterval = 3 * time.Minute
)

// Cache lifetimes. Entity caches backing hot request paths stay short so a
// missed invalidation self-heals quickly; slow-moving data (public keys)
// lives longer.
const (
	// UserLifetime bounds userById and localUserByNativeToken entries.
	UserLifetime = 5 * time.Minute

	// RelationLifetime bounds the relation and index caches (acct,
	// profile, mutes, blocks, follows, list memberships).
	RelationLifetime = 30 * time.Minute

	// FollowStatsLifetime bounds the per-process follow stats cache.
	FollowStatsLifetime = 10 * time.Minute

	// PublicKeyLifetime bounds the actor public key caches.
	PublicKeyLifetime = 12 * time.Hour

	// EmojiLifetime bounds the custom emoji caches.
	EmojiLifetime = time.Hour

	// InstanceLifetime bounds the federated instance cache. Instances
	// carry moderation flags that must take effect promptly.
	InstanceLifetime = 3 * time.Minute
)
