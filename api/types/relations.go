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

package types

import "time"

// Following is a follow relation. At most one exists per ordered
// (follower, followee) pair. Hosts are denormalized from the user records so
// follow stats can be bucketed without loading both users.
type Following struct {
	// FollowerID is the id of the following user.
	FollowerID string `json:"followerId"`
	// FolloweeID is the id of the followed user.
	FolloweeID string `json:"followeeId"`
	// FollowerHost is the follower's home instance, empty for local.
	FollowerHost string `json:"followerHost,omitempty"`
	// FolloweeHost is the followee's home instance, empty for local.
	FolloweeHost string `json:"followeeHost,omitempty"`
	// FollowerInbox is the follower's shared inbox, set for remote
	// followers.
	FollowerInbox string `json:"followerInbox,omitempty"`
	// WithReplies controls whether replies show up on the timeline.
	WithReplies bool `json:"withReplies"`
}

// FollowerWithHibernation pairs a follow relation with the hibernation flag
// of the follower.
type FollowerWithHibernation struct {
	Following *Following `json:"following"`
	// IsFollowerHibernated mirrors the follower's hibernation state,
	// false when unknown.
	IsFollowerHibernated bool `json:"isFollowerHibernated"`
}

// Muting is a user mute relation, optionally expiring.
type Muting struct {
	// MuterID is the id of the muting user.
	MuterID string `json:"muterId"`
	// MuteeID is the id of the muted user.
	MuteeID string `json:"muteeId"`
	// ExpiresAt is the mute expiry, zero when indefinite.
	ExpiresAt time.Time `json:"expiresAt,omitzero"`
}

// Blocking is a user block relation.
type Blocking struct {
	// BlockerID is the id of the blocking user.
	BlockerID string `json:"blockerId"`
	// BlockeeID is the id of the blocked user.
	BlockeeID string `json:"blockeeId"`
}

// RenoteMuting suppresses renotes of the mutee on the muter's timelines.
type RenoteMuting struct {
	// MuterID is the id of the muting user.
	MuterID string `json:"muterId"`
	// MuteeID is the id of the user whose renotes are muted.
	MuteeID string `json:"muteeId"`
}

// ThreadMuting mutes a thread for a user. IsPostMute distinguishes muting
// notifications for the whole thread from muting a single post's thread
// activity.
type ThreadMuting struct {
	// UserID is the id of the muting user.
	UserID string `json:"userId"`
	// ThreadID is the id of the muted thread.
	ThreadID string `json:"threadId"`
	// IsPostMute is true for note mutes and false for thread mutes.
	IsPostMute bool `json:"isPostMute"`
}

// UserListMembership is a user's membership in a user list.
type UserListMembership struct {
	// UserID is the member's user id.
	UserID string `json:"userId"`
	// ListID is the user list id.
	ListID string `json:"listId"`
	// WithReplies controls whether the member's replies show up on the
	// list timeline.
	WithReplies bool `json:"withReplies"`
}

// UserListFavorite marks a user list favorited by a user.
type UserListFavorite struct {
	// UserID is the favoriting user id.
	UserID string `json:"userId"`
	// ListID is the favorited list id.
	ListID string `json:"listId"`
}

// ChannelFollowing is a user's subscription to a channel.
type ChannelFollowing struct {
	// FollowerID is the subscribing user id.
	FollowerID string `json:"followerId"`
	// ChannelID is the followed channel id.
	ChannelID string `json:"channelId"`
}
