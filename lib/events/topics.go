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

package events

import "github.com/gravitational/quasar/api/types"

// Topic names an event stream on the bus. Topic names are part of the wire
// contract between cluster processes and must not change between releases.
type Topic string

const (
	// TopicQuantumCacheUpdated carries coherence invalidations for a
	// named quantum cache.
	TopicQuantumCacheUpdated Topic = "quantumCacheUpdated"
	// TopicQuantumCacheReset carries full clears of a named quantum
	// cache.
	TopicQuantumCacheReset Topic = "quantumCacheReset"

	// TopicUserUpdated fires after any user record mutation.
	TopicUserUpdated Topic = "userUpdated"
	// TopicUsersUpdated is the batched form of TopicUserUpdated.
	TopicUsersUpdated Topic = "usersUpdated"
	// TopicUserChangeSuspendedState fires when moderation toggles a
	// user's suspension.
	TopicUserChangeSuspendedState Topic = "userChangeSuspendedState"
	// TopicUserChangeDeletedState fires when a user deletion starts or
	// completes.
	TopicUserChangeDeletedState Topic = "userChangeDeletedState"
	// TopicRemoteUserUpdated fires after a remote actor refresh.
	TopicRemoteUserUpdated Topic = "remoteUserUpdated"
	// TopicLocalUserUpdated fires after a local profile-surface update.
	TopicLocalUserUpdated Topic = "localUserUpdated"
	// TopicUserTokenRegenerated fires after a native token rotation.
	TopicUserTokenRegenerated Topic = "userTokenRegenerated"

	// TopicFollow fires after a follow relation is created.
	TopicFollow Topic = "follow"
	// TopicUnfollow fires after a follow relation is removed.
	TopicUnfollow Topic = "unfollow"
	// TopicFollowChannel fires after a channel subscription is created.
	TopicFollowChannel Topic = "followChannel"
	// TopicUnfollowChannel fires after a channel subscription is removed.
	TopicUnfollowChannel Topic = "unfollowChannel"
	// TopicUpdateUserProfile fires after a profile mutation.
	TopicUpdateUserProfile Topic = "updateUserProfile"

	// TopicUserListMemberAdded fires after a list membership insert.
	TopicUserListMemberAdded Topic = "userListMemberAdded"
	// TopicUserListMemberUpdated fires after a list membership update.
	TopicUserListMemberUpdated Topic = "userListMemberUpdated"
	// TopicUserListMemberRemoved fires after a list membership removal.
	TopicUserListMemberRemoved Topic = "userListMemberRemoved"
	// TopicUserListMemberBulkAdded is the batched insert form.
	TopicUserListMemberBulkAdded Topic = "userListMemberBulkAdded"
	// TopicUserListMemberBulkUpdated is the batched update form.
	TopicUserListMemberBulkUpdated Topic = "userListMemberBulkUpdated"
	// TopicUserListMemberBulkRemoved is the batched removal form.
	TopicUserListMemberBulkRemoved Topic = "userListMemberBulkRemoved"

	// TopicMetaUpdated fires after the instance-wide configuration
	// changes.
	TopicMetaUpdated Topic = "metaUpdated"
)

// QuantumCacheUpdated invalidates the listed keys of the named cache on
// every peer process.
type QuantumCacheUpdated struct {
	Name string   `json:"name"`
	Keys []string `json:"keys"`
}

// QuantumCacheReset clears the named cache on every peer process.
type QuantumCacheReset struct {
	Name string `json:"name"`
}

// UserUpdated is the payload of the single-id user topics.
type UserUpdated struct {
	ID string `json:"id"`
}

// UsersUpdated is the payload of the batched user topic.
type UsersUpdated struct {
	IDs []string `json:"ids"`
}

// UserTokenRegenerated reports a native token rotation.
type UserTokenRegenerated struct {
	ID       string `json:"id"`
	OldToken string `json:"oldToken"`
	NewToken string `json:"newToken"`
}

// FollowChanged is the payload of the follow and unfollow topics.
type FollowChanged struct {
	FollowerID string `json:"followerId"`
	FolloweeID string `json:"followeeId"`
}

// ChannelFollowChanged is the payload of the channel follow topics.
type ChannelFollowChanged struct {
	UserID    string `json:"userId"`
	ChannelID string `json:"channelId"`
}

// UserProfileUpdated reports a profile mutation.
type UserProfileUpdated struct {
	UserID string `json:"userId"`
}

// UserListMemberChanged is the payload of the single list membership
// topics.
type UserListMemberChanged struct {
	MemberID   string `json:"memberId"`
	UserListID string `json:"userListId"`
}

// UserListMemberBulkChanged is the payload of the batched list membership
// topics.
type UserListMemberBulkChanged struct {
	MemberID    string   `json:"memberId"`
	UserListIDs []string `json:"userListIds"`
}

// MetaUpdated carries the configuration snapshots before and after a meta
// mutation. Before is nil on first publication after boot.
type MetaUpdated struct {
	Before *types.Meta `json:"before"`
	After  *types.Meta `json:"after"`
}
