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

package services

import (
	"context"

	"github.com/gravitational/quasar/api/types"
)

// EmojiRef addresses an emoji by its composite name and host key.
type EmojiRef struct {
	// Name is the emoji short name.
	Name string
	// Host is the origin instance, empty for local emojis.
	Host string
}

// Store is the loader surface over the shared database. Query construction
// and the connection pool live behind it; the cache layer only sees typed
// reads and the few writes the emoji operations need.
//
// Single-entity getters report absence as trace.NotFound. Bulk getters omit
// missing entities from the result and never fail on absence.
type Store interface {
	// GetUserByID returns the user record.
	GetUserByID(ctx context.Context, id string) (*types.User, error)
	// GetUsersByIDs returns the user records that exist, keyed by id.
	GetUsersByIDs(ctx context.Context, ids []string) (map[string]*types.User, error)
	// GetLocalUserIDByToken resolves a native API token to a local user id.
	GetLocalUserIDByToken(ctx context.Context, token string) (string, error)
	// GetLocalUserIDsByTokens is the bulk form of GetLocalUserIDByToken.
	GetLocalUserIDsByTokens(ctx context.Context, tokens []string) (map[string]string, error)
	// GetUserIDByAcct resolves a (username, host) pair to a user id. Host is
	// already normalized: empty for local users, punycoded otherwise.
	GetUserIDByAcct(ctx context.Context, username, host string) (string, error)
	// GetUserIDByURI resolves an ActivityPub actor URI to a user id.
	GetUserIDByURI(ctx context.Context, uri string) (string, error)
	// GetUserIDsByURIs is the bulk form of GetUserIDByURI.
	GetUserIDsByURIs(ctx context.Context, uris []string) (map[string]string, error)

	// GetUserProfile returns the profile of the user.
	GetUserProfile(ctx context.Context, userID string) (*types.UserProfile, error)
	// GetUserProfiles returns the profiles that exist, keyed by user id.
	GetUserProfiles(ctx context.Context, userIDs []string) (map[string]*types.UserProfile, error)
	// GetUserHibernations returns the hibernation flags of the users that
	// exist, keyed by user id.
	GetUserHibernations(ctx context.Context, userIDs []string) (map[string]bool, error)

	// GetMutingsByMuter lists the mute relations the user created,
	// including expired ones; callers filter by expiry.
	GetMutingsByMuter(ctx context.Context, userID string) ([]*types.Muting, error)
	// GetMutingsByMuters is the bulk form of GetMutingsByMuter.
	GetMutingsByMuters(ctx context.Context, userIDs []string) ([]*types.Muting, error)
	// GetMutingsByMutee lists the mute relations targeting the user.
	GetMutingsByMutee(ctx context.Context, userID string) ([]*types.Muting, error)
	// GetMutingsByMutees is the bulk form of GetMutingsByMutee.
	GetMutingsByMutees(ctx context.Context, userIDs []string) ([]*types.Muting, error)

	// GetBlockingsByBlocker lists the block relations the user created.
	GetBlockingsByBlocker(ctx context.Context, userID string) ([]*types.Blocking, error)
	// GetBlockingsByBlockers is the bulk form of GetBlockingsByBlocker.
	GetBlockingsByBlockers(ctx context.Context, userIDs []string) ([]*types.Blocking, error)
	// GetBlockingsByBlockee lists the block relations targeting the user.
	GetBlockingsByBlockee(ctx context.Context, userID string) ([]*types.Blocking, error)
	// GetBlockingsByBlockees is the bulk form of GetBlockingsByBlockee.
	GetBlockingsByBlockees(ctx context.Context, userIDs []string) ([]*types.Blocking, error)

	// GetRenoteMutingsByMuter lists the renote mutes the user created.
	GetRenoteMutingsByMuter(ctx context.Context, userID string) ([]*types.RenoteMuting, error)
	// GetRenoteMutingsByMuters is the bulk form of GetRenoteMutingsByMuter.
	GetRenoteMutingsByMuters(ctx context.Context, userIDs []string) ([]*types.RenoteMuting, error)

	// GetThreadMutingsByUser lists the user's thread mutes, both kinds.
	GetThreadMutingsByUser(ctx context.Context, userID string) ([]*types.ThreadMuting, error)
	// GetThreadMutingsByUsers is the bulk form of GetThreadMutingsByUser.
	GetThreadMutingsByUsers(ctx context.Context, userIDs []string) ([]*types.ThreadMuting, error)

	// GetFollowingsByFollower lists the follow relations the user created.
	GetFollowingsByFollower(ctx context.Context, userID string) ([]*types.Following, error)
	// GetFollowingsByFollowers is the bulk form of GetFollowingsByFollower.
	GetFollowingsByFollowers(ctx context.Context, userIDs []string) ([]*types.Following, error)
	// GetFollowingsByFollowee lists the follow relations targeting the user.
	GetFollowingsByFollowee(ctx context.Context, userID string) ([]*types.Following, error)
	// GetFollowingsByFollowees is the bulk form of GetFollowingsByFollowee.
	GetFollowingsByFollowees(ctx context.Context, userIDs []string) ([]*types.Following, error)

	// GetListMembershipsByUser lists the list memberships of the user.
	GetListMembershipsByUser(ctx context.Context, userID string) ([]*types.UserListMembership, error)
	// GetListMembershipsByUsers is the bulk form of GetListMembershipsByUser.
	GetListMembershipsByUsers(ctx context.Context, userIDs []string) ([]*types.UserListMembership, error)
	// GetListMembershipsByList lists the memberships of the list.
	GetListMembershipsByList(ctx context.Context, listID string) ([]*types.UserListMembership, error)
	// GetListMembershipsByLists is the bulk form of GetListMembershipsByList.
	GetListMembershipsByLists(ctx context.Context, listIDs []string) ([]*types.UserListMembership, error)

	// GetListFavoritesByUser lists the list favorites of the user.
	GetListFavoritesByUser(ctx context.Context, userID string) ([]*types.UserListFavorite, error)
	// GetListFavoritesByUsers is the bulk form of GetListFavoritesByUser.
	GetListFavoritesByUsers(ctx context.Context, userIDs []string) ([]*types.UserListFavorite, error)
	// GetListFavoritesByList lists the favorites of the list.
	GetListFavoritesByList(ctx context.Context, listID string) ([]*types.UserListFavorite, error)
	// GetListFavoritesByLists is the bulk form of GetListFavoritesByList.
	GetListFavoritesByLists(ctx context.Context, listIDs []string) ([]*types.UserListFavorite, error)

	// GetChannelFollowingsByUser lists the channel subscriptions of the
	// user.
	GetChannelFollowingsByUser(ctx context.Context, userID string) ([]*types.ChannelFollowing, error)

	// GetPublicKeyByKeyID returns the actor public key with the given key
	// id.
	GetPublicKeyByKeyID(ctx context.Context, keyID string) (*types.PublicKey, error)
	// GetPublicKeysByKeyIDs is the bulk form of GetPublicKeyByKeyID.
	GetPublicKeysByKeyIDs(ctx context.Context, keyIDs []string) (map[string]*types.PublicKey, error)
	// GetPublicKeyByUserID returns the actor public key of the user.
	GetPublicKeyByUserID(ctx context.Context, userID string) (*types.PublicKey, error)
	// GetPublicKeysByUserIDs is the bulk form of GetPublicKeyByUserID.
	GetPublicKeysByUserIDs(ctx context.Context, userIDs []string) (map[string]*types.PublicKey, error)

	// GetEmojiByID returns the emoji record.
	GetEmojiByID(ctx context.Context, id string) (*types.Emoji, error)
	// GetEmojisByIDs returns the emoji records that exist, keyed by id.
	GetEmojisByIDs(ctx context.Context, ids []string) (map[string]*types.Emoji, error)
	// GetEmojiByRef returns the emoji with the given name and host.
	GetEmojiByRef(ctx context.Context, ref EmojiRef) (*types.Emoji, error)
	// GetEmojisByRefs returns the emojis that exist, keyed by ref.
	GetEmojisByRefs(ctx context.Context, refs []EmojiRef) (map[EmojiRef]*types.Emoji, error)
	// InsertEmoji inserts a new emoji row and returns its id.
	InsertEmoji(ctx context.Context, emoji *types.Emoji) (string, error)
	// UpdateEmoji replaces the emoji row identified by emoji.ID.
	UpdateEmoji(ctx context.Context, emoji *types.Emoji) error

	// FindOrCreateInstance returns the instance row for the punycoded host,
	// inserting a fresh row on first contact.
	FindOrCreateInstance(ctx context.Context, host string) (*types.Instance, error)
	// GetInstancesByHosts returns the instance rows that exist, keyed by
	// punycoded host. No rows are created.
	GetInstancesByHosts(ctx context.Context, hosts []string) (map[string]*types.Instance, error)
}
