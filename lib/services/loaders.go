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

// Relation loaders return an empty set for a user without relations: the
// absence of rows is a valid cached value, not a missing key.

func (s *Service) fetchUserIDByAcctKey(ctx context.Context, key string) (string, error) {
	username, host := ParseAcct(key)
	id, err := s.cfg.Store.GetUserIDByAcct(ctx, username, host)
	return id, trace.Wrap(err)
}

func (s *Service) muteActive(m *types.Muting) bool {
	return m.ExpiresAt.IsZero() || m.ExpiresAt.After(s.cfg.Clock.Now())
}

func (s *Service) fetchMutings(ctx context.Context, muterID string) (Set, error) {
	rels, err := s.cfg.Store.GetMutingsByMuter(ctx, muterID)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	out := Set{}
	for _, m := range rels {
		if s.muteActive(m) {
			out[m.MuteeID] = struct{}{}
		}
	}
	return out, nil
}

func (s *Service) fetchMutingsBulk(ctx context.Context, muterIDs []string) (map[string]Set, error) {
	rels, err := s.cfg.Store.GetMutingsByMuters(ctx, muterIDs)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	out := emptySets(muterIDs)
	for _, m := range rels {
		if s.muteActive(m) {
			out[m.MuterID][m.MuteeID] = struct{}{}
		}
	}
	return out, nil
}

func (s *Service) fetchMuted(ctx context.Context, muteeID string) (Set, error) {
	rels, err := s.cfg.Store.GetMutingsByMutee(ctx, muteeID)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	out := Set{}
	for _, m := range rels {
		if s.muteActive(m) {
			out[m.MuterID] = struct{}{}
		}
	}
	return out, nil
}

func (s *Service) fetchMutedBulk(ctx context.Context, muteeIDs []string) (map[string]Set, error) {
	rels, err := s.cfg.Store.GetMutingsByMutees(ctx, muteeIDs)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	out := emptySets(muteeIDs)
	for _, m := range rels {
		if s.muteActive(m) {
			out[m.MuteeID][m.MuterID] = struct{}{}
		}
	}
	return out, nil
}

func (s *Service) fetchBlocking(ctx context.Context, blockerID string) (Set, error) {
	rels, err := s.cfg.Store.GetBlockingsByBlocker(ctx, blockerID)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	out := Set{}
	for _, b := range rels {
		out[b.BlockeeID] = struct{}{}
	}
	return out, nil
}

func (s *Service) fetchBlockingBulk(ctx context.Context, blockerIDs []string) (map[string]Set, error) {
	rels, err := s.cfg.Store.GetBlockingsByBlockers(ctx, blockerIDs)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	out := emptySets(blockerIDs)
	for _, b := range rels {
		out[b.BlockerID][b.BlockeeID] = struct{}{}
	}
	return out, nil
}

func (s *Service) fetchBlocked(ctx context.Context, blockeeID string) (Set, error) {
	rels, err := s.cfg.Store.GetBlockingsByBlockee(ctx, blockeeID)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	out := Set{}
	for _, b := range rels {
		out[b.BlockerID] = struct{}{}
	}
	return out, nil
}

func (s *Service) fetchBlockedBulk(ctx context.Context, blockeeIDs []string) (map[string]Set, error) {
	rels, err := s.cfg.Store.GetBlockingsByBlockees(ctx, blockeeIDs)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	out := emptySets(blockeeIDs)
	for _, b := range rels {
		out[b.BlockeeID][b.BlockerID] = struct{}{}
	}
	return out, nil
}

func (s *Service) fetchRenoteMutings(ctx context.Context, muterID string) (Set, error) {
	rels, err := s.cfg.Store.GetRenoteMutingsByMuter(ctx, muterID)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	out := Set{}
	for _, m := range rels {
		out[m.MuteeID] = struct{}{}
	}
	return out, nil
}

func (s *Service) fetchRenoteMutingsBulk(ctx context.Context, muterIDs []string) (map[string]Set, error) {
	rels, err := s.cfg.Store.GetRenoteMutingsByMuters(ctx, muterIDs)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	out := emptySets(muterIDs)
	for _, m := range rels {
		out[m.MuterID][m.MuteeID] = struct{}{}
	}
	return out, nil
}

func (s *Service) fetchThreadMutings(ctx context.Context, userID string) (Set, error) {
	return s.fetchThreadMutingsKind(ctx, userID, false)
}

func (s *Service) fetchNoteMutings(ctx context.Context, userID string) (Set, error) {
	return s.fetchThreadMutingsKind(ctx, userID, true)
}

func (s *Service) fetchThreadMutingsKind(ctx context.Context, userID string, postMute bool) (Set, error) {
	rels, err := s.cfg.Store.GetThreadMutingsByUser(ctx, userID)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	out := Set{}
	for _, m := range rels {
		if m.IsPostMute == postMute {
			out[m.ThreadID] = struct{}{}
		}
	}
	return out, nil
}

func (s *Service) fetchThreadMutingsBulk(ctx context.Context, userIDs []string) (map[string]Set, error) {
	return s.fetchThreadMutingsKindBulk(ctx, userIDs, false)
}

func (s *Service) fetchNoteMutingsBulk(ctx context.Context, userIDs []string) (map[string]Set, error) {
	return s.fetchThreadMutingsKindBulk(ctx, userIDs, true)
}

func (s *Service) fetchThreadMutingsKindBulk(ctx context.Context, userIDs []string, postMute bool) (map[string]Set, error) {
	rels, err := s.cfg.Store.GetThreadMutingsByUsers(ctx, userIDs)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	out := emptySets(userIDs)
	for _, m := range rels {
		if m.IsPostMute == postMute {
			out[m.UserID][m.ThreadID] = struct{}{}
		}
	}
	return out, nil
}

func (s *Service) fetchMembershipsByUser(ctx context.Context, userID string) (map[string]*types.UserListMembership, error) {
	rels, err := s.cfg.Store.GetListMembershipsByUser(ctx, userID)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	out := make(map[string]*types.UserListMembership, len(rels))
	for _, m := range rels {
		out[m.ListID] = m
	}
	return out, nil
}

func (s *Service) fetchMembershipsByUsersBulk(ctx context.Context, userIDs []string) (map[string]map[string]*types.UserListMembership, error) {
	rels, err := s.cfg.Store.GetListMembershipsByUsers(ctx, userIDs)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	out := make(map[string]map[string]*types.UserListMembership, len(userIDs))
	for _, id := range userIDs {
		out[id] = map[string]*types.UserListMembership{}
	}
	for _, m := range rels {
		out[m.UserID][m.ListID] = m
	}
	return out, nil
}

func (s *Service) fetchMembershipsByList(ctx context.Context, listID string) (map[string]*types.UserListMembership, error) {
	rels, err := s.cfg.Store.GetListMembershipsByList(ctx, listID)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	out := make(map[string]*types.UserListMembership, len(rels))
	for _, m := range rels {
		out[m.UserID] = m
	}
	return out, nil
}

func (s *Service) fetchMembershipsByListsBulk(ctx context.Context, listIDs []string) (map[string]map[string]*types.UserListMembership, error) {
	rels, err := s.cfg.Store.GetListMembershipsByLists(ctx, listIDs)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	out := make(map[string]map[string]*types.UserListMembership, len(listIDs))
	for _, id := range listIDs {
		out[id] = map[string]*types.UserListMembership{}
	}
	for _, m := range rels {
		out[m.ListID][m.UserID] = m
	}
	return out, nil
}

func (s *Service) fetchFavoritesByUser(ctx context.Context, userID string) (Set, error) {
	rels, err := s.cfg.Store.GetListFavoritesByUser(ctx, userID)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	out := Set{}
	for _, f := range rels {
		out[f.ListID] = struct{}{}
	}
	return out, nil
}

func (s *Service) fetchFavoritesByUsersBulk(ctx context.Context, userIDs []string) (map[string]Set, error) {
	rels, err := s.cfg.Store.GetListFavoritesByUsers(ctx, userIDs)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	out := emptySets(userIDs)
	for _, f := range rels {
		out[f.UserID][f.ListID] = struct{}{}
	}
	return out, nil
}

func (s *Service) fetchFavoritesByList(ctx context.Context, listID string) (Set, error) {
	rels, err := s.cfg.Store.GetListFavoritesByList(ctx, listID)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	out := Set{}
	for _, f := range rels {
		out[f.UserID] = struct{}{}
	}
	return out, nil
}

func (s *Service) fetchFavoritesByListsBulk(ctx context.Context, listIDs []string) (map[string]Set, error) {
	rels, err := s.cfg.Store.GetListFavoritesByLists(ctx, listIDs)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	out := emptySets(listIDs)
	for _, f := range rels {
		out[f.ListID][f.UserID] = struct{}{}
	}
	return out, nil
}

func (s *Service) fetchFollowings(ctx context.Context, followerID string) (map[string]*types.Following, error) {
	rels, err := s.cfg.Store.GetFollowingsByFollower(ctx, followerID)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	out := make(map[string]*types.Following, len(rels))
	for _, f := range rels {
		out[f.FolloweeID] = f
	}
	return out, nil
}

func (s *Service) fetchFollowingsBulk(ctx context.Context, followerIDs []string) (map[string]map[string]*types.Following, error) {
	rels, err := s.cfg.Store.GetFollowingsByFollowers(ctx, followerIDs)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	out := make(map[string]map[string]*types.Following, len(followerIDs))
	for _, id := range followerIDs {
		out[id] = map[string]*types.Following{}
	}
	for _, f := range rels {
		out[f.FollowerID][f.FolloweeID] = f
	}
	return out, nil
}

func (s *Service) fetchFollowers(ctx context.Context, followeeID string) (map[string]*types.Following, error) {
	rels, err := s.cfg.Store.GetFollowingsByFollowee(ctx, followeeID)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	out := make(map[string]*types.Following, len(rels))
	for _, f := range rels {
		out[f.FollowerID] = f
	}
	return out, nil
}

func (s *Service) fetchFollowersBulk(ctx context.Context, followeeIDs []string) (map[string]map[string]*types.Following, error) {
	rels, err := s.cfg.Store.GetFollowingsByFollowees(ctx, followeeIDs)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	out := make(map[string]map[string]*types.Following, len(followeeIDs))
	for _, id := range followeeIDs {
		out[id] = map[string]*types.Following{}
	}
	for _, f := range rels {
		out[f.FolloweeID][f.FollowerID] = f
	}
	return out, nil
}

func (s *Service) fetchHibernation(ctx context.Context, userID string) (bool, error) {
	flags, err := s.cfg.Store.GetUserHibernations(ctx, []string{userID})
	if err != nil {
		return false, trace.Wrap(err)
	}
	hib, ok := flags[userID]
	if !ok {
		return false, trace.NotFound("user %q not found", userID)
	}
	return hib, nil
}

func (s *Service) fetchFollowingChannels(ctx context.Context, userID string) (Set, error) {
	rels, err := s.cfg.Store.GetChannelFollowingsByUser(ctx, userID)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	out := Set{}
	for _, f := range rels {
		out[f.ChannelID] = struct{}{}
	}
	return out, nil
}

func (s *Service) fetchEmojiByKey(ctx context.Context, key string) (*types.Emoji, error) {
	name, host, err := DecodeEmojiKey(key)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	emoji, err := s.cfg.Store.GetEmojiByRef(ctx, EmojiRef{Name: name, Host: host})
	return emoji, trace.Wrap(err)
}

func (s *Service) fetchEmojisByKeysBulk(ctx context.Context, keys []string) (map[string]*types.Emoji, error) {
	refs := make([]EmojiRef, 0, len(keys))
	for _, key := range keys {
		name, host, err := DecodeEmojiKey(key)
		if err != nil {
			return nil, trace.Wrap(err)
		}
		refs = append(refs, EmojiRef{Name: name, Host: host})
	}
	found, err := s.cfg.Store.GetEmojisByRefs(ctx, refs)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	out := make(map[string]*types.Emoji, len(found))
	for ref, emoji := range found {
		key, err := EncodeEmojiKey(ref.Name, ref.Host)
		if err != nil {
			return nil, trace.Wrap(err)
		}
		out[key] = emoji
	}
	return out, nil
}

func emptySets(keys []string) map[string]Set {
	out := make(map[string]Set, len(keys))
	for _, k := range keys {
		out[k] = Set{}
	}
	return out
}
