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

	"github.com/gravitational/trace"

	"github.com/gravitational/quasar/api/types"
)

// GetUser returns the user record, from memory or the database.
func (s *Service) GetUser(ctx context.Context, id string) (*types.User, error) {
	u, err := s.users.Fetch(ctx, id)
	return u, trace.Wrap(err)
}

// GetUsers returns the user records that exist, keyed by id. Concurrent
// and in-flight loads are de-duplicated.
func (s *Service) GetUsers(ctx context.Context, ids []string) (map[string]*types.User, error) {
	users, err := s.users.FetchMany(ctx, ids)
	return users, trace.Wrap(err)
}

// GetUserProfile returns the user's profile.
func (s *Service) GetUserProfile(ctx context.Context, userID string) (*types.UserProfile, error) {
	p, err := s.profiles.Fetch(ctx, userID)
	return p, trace.Wrap(err)
}

// FindUserByAcct resolves a handle like "alice" or "alice@example.org" to
// the full user record. The index entry holds the id only; the record is
// re-resolved through the authoritative user cache.
func (s *Service) FindUserByAcct(ctx context.Context, acct string) (*types.User, error) {
	username, host := ParseAcct(acct)
	host, err := normalizeHost(host, s.localHost)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	id, err := s.usersByAcct.Fetch(ctx, acctKey(username, host))
	if err != nil {
		return nil, trace.Wrap(err)
	}
	u, err := s.users.Fetch(ctx, id)
	return u, trace.Wrap(err)
}

// FindLocalUserByNativeToken resolves a native API token to a local user.
// Fails with UserNotLocalError when the token maps to a remote user.
func (s *Service) FindLocalUserByNativeToken(ctx context.Context, token string) (*types.User, error) {
	id, err := s.usersByToken.Fetch(ctx, token)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	u, err := s.users.Fetch(ctx, id)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	if !u.IsLocal() {
		return nil, &UserNotLocalError{UserID: u.ID}
	}
	return u, nil
}

// ResolvePersonByURI resolves an ActivityPub actor URI to the full user
// record through the uriPerson index.
func (s *Service) ResolvePersonByURI(ctx context.Context, uri string) (*types.User, error) {
	id, err := s.uriPersons.Fetch(ctx, uri)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	u, err := s.users.Fetch(ctx, id)
	return u, trace.Wrap(err)
}

// GetPublicKeyByKeyID returns the actor public key with the given key id.
func (s *Service) GetPublicKeyByKeyID(ctx context.Context, keyID string) (*types.PublicKey, error) {
	k, err := s.publicKeysByKeyID.Fetch(ctx, keyID)
	return k, trace.Wrap(err)
}

// GetPublicKeyOfUser returns the actor public key of the user.
func (s *Service) GetPublicKeyOfUser(ctx context.Context, userID string) (*types.PublicKey, error) {
	k, err := s.publicKeysByUser.Fetch(ctx, userID)
	return k, trace.Wrap(err)
}

// IsFollowing reports whether followerID follows followeeID. The follower
// side of the relation is consulted first when it is already resident, so
// the database is hit at most once.
func (s *Service) IsFollowing(ctx context.Context, followerID, followeeID string) (bool, error) {
	if m, ok := s.followers.GetMaybe(followeeID); ok {
		_, has := m[followerID]
		return has, nil
	}
	m, err := s.followings.Fetch(ctx, followerID)
	if err != nil {
		return false, trace.Wrap(err)
	}
	_, has := m[followeeID]
	return has, nil
}

// GetFollowings returns the user's follow relations keyed by followee id.
func (s *Service) GetFollowings(ctx context.Context, followerID string) (map[string]*types.Following, error) {
	m, err := s.followings.Fetch(ctx, followerID)
	return m, trace.Wrap(err)
}

// GetFollowers returns the user's follow relations keyed by follower id.
func (s *Service) GetFollowers(ctx context.Context, followeeID string) (map[string]*types.Following, error) {
	m, err := s.followers.Fetch(ctx, followeeID)
	return m, trace.Wrap(err)
}

// RefreshFollowRelations reloads the user's followings from the database
// and evicts the follower-side entries of every followee so the peer
// processes drop their stale copies too.
func (s *Service) RefreshFollowRelations(ctx context.Context, followerID string) error {
	rels, err := s.followings.Refresh(ctx, followerID)
	if err != nil {
		return trace.Wrap(err)
	}
	followeeIDs := make([]string, 0, len(rels))
	for id := range rels {
		followeeIDs = append(followeeIDs, id)
	}
	return trace.Wrap(s.followers.DeleteMany(ctx, followeeIDs))
}

// GetFollowersWithHibernation returns the user's followers annotated with
// each follower's hibernation flag, false when unknown.
func (s *Service) GetFollowersWithHibernation(ctx context.Context, followeeID string) ([]*types.FollowerWithHibernation, error) {
	rels, err := s.followers.Fetch(ctx, followeeID)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	followerIDs := make([]string, 0, len(rels))
	for id := range rels {
		followerIDs = append(followerIDs, id)
	}
	flags, err := s.hibernated.FetchMany(ctx, followerIDs)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	out := make([]*types.FollowerWithHibernation, 0, len(rels))
	for id, rel := range rels {
		out = append(out, &types.FollowerWithHibernation{
			Following:            rel,
			IsFollowerHibernated: flags[id],
		})
	}
	return out, nil
}

// GetFollowingChannels returns the set of channel ids the user subscribes
// to.
func (s *Service) GetFollowingChannels(ctx context.Context, userID string) (Set, error) {
	chans, err := s.followingChannels.Fetch(ctx, userID)
	return chans, trace.Wrap(err)
}
