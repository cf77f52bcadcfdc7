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

// Package types defines the domain entities held by the Quasar caches.
//
// Entities are keyed by id, never by pointer: the authoritative caches hold
// the full objects and every other cache holds id values that are re-resolved
// through the authoritative cache.
package types

// User is the authoritative user record. A user is local when Host is empty
// and remote otherwise.
type User struct {
	// ID is the unique user id.
	ID string `json:"id"`
	// Username is the user's handle without the host part.
	Username string `json:"username"`
	// Host is the user's home instance, empty for local users.
	Host string `json:"host,omitempty"`
	// URI is the ActivityPub id of the user, empty for local users.
	URI string `json:"uri,omitempty"`
	// Inbox is the ActivityPub inbox, empty for local users.
	Inbox string `json:"inbox,omitempty"`
	// Token is the native API token, set for local users only.
	Token string `json:"token,omitempty"`
	// FollowingCount is the aggregate number of users this user follows.
	FollowingCount int64 `json:"followingCount"`
	// FollowersCount is the aggregate number of users following this user.
	FollowersCount int64 `json:"followersCount"`
	// IsHibernated is set once all of the user's followers went inactive.
	IsHibernated bool `json:"isHibernated"`
	// IsSuspended marks a user suspended by moderation.
	IsSuspended bool `json:"isSuspended"`
	// IsDeleted marks a user whose deletion is in progress or complete.
	IsDeleted bool `json:"isDeleted"`
}

// IsLocal returns true when the user belongs to this instance.
func (u *User) IsLocal() bool { return u.Host == "" }

// IsRemote returns true when the user belongs to another instance.
func (u *User) IsRemote() bool { return u.Host != "" }

// Clone returns a shallow copy of the user. Cached user objects are shared
// between readers, so denormalized flags (hibernation, follow counters) are
// updated by installing a clone instead of writing through the shared
// pointer.
func (u *User) Clone() *User {
	out := *u
	return &out
}

// UserProfile is the authoritative per-user profile record.
type UserProfile struct {
	// UserID is the owning user id.
	UserID string `json:"userId"`
	// Description is the profile text.
	Description string `json:"description,omitempty"`
	// Location is the free-form location field.
	Location string `json:"location,omitempty"`
	// MutedInstances is the set of instance hosts the user muted.
	MutedInstances []string `json:"mutedInstances,omitempty"`
	// FollowingVisibility controls who can list the user's followees.
	FollowingVisibility string `json:"followingVisibility,omitempty"`
	// FollowersVisibility controls who can list the user's followers.
	FollowersVisibility string `json:"followersVisibility,omitempty"`
}

// PublicKey is a cached actor public key.
type PublicKey struct {
	// KeyID is the ActivityPub key id.
	KeyID string `json:"keyId"`
	// UserID is the owning user id.
	UserID string `json:"userId"`
	// KeyPem is the PEM encoded public key.
	KeyPem string `json:"keyPem"`
}

// FollowStats are the local/remote follow counts of a single user, computed
// on demand and cached per process.
type FollowStats struct {
	LocalFollowing  int64 `json:"localFollowing"`
	LocalFollowers  int64 `json:"localFollowers"`
	RemoteFollowing int64 `json:"remoteFollowing"`
	RemoteFollowers int64 `json:"remoteFollowers"`
}
