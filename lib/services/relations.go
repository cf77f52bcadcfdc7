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

// GetMutings returns the ids of the users muted by muterID. Expired mutes
// are filtered out at load time.
func (s *Service) GetMutings(ctx context.Context, muterID string) (Set, error) {
	m, err := s.mutings.Fetch(ctx, muterID)
	return m, trace.Wrap(err)
}

// GetMuters returns the ids of the users muting muteeID.
func (s *Service) GetMuters(ctx context.Context, muteeID string) (Set, error) {
	m, err := s.muted.Fetch(ctx, muteeID)
	return m, trace.Wrap(err)
}

// IsMuting reports whether muterID mutes muteeID. The mutee side of the
// relation is consulted first when it is already resident, so the database
// is hit at most once.
func (s *Service) IsMuting(ctx context.Context, muterID, muteeID string) (bool, error) {
	if m, ok := s.muted.GetMaybe(muteeID); ok {
		_, has := m[muterID]
		return has, nil
	}
	m, err := s.mutings.Fetch(ctx, muterID)
	if err != nil {
		return false, trace.Wrap(err)
	}
	_, has := m[muteeID]
	return has, nil
}

// GetBlockings returns the ids of the users blocked by blockerID.
func (s *Service) GetBlockings(ctx context.Context, blockerID string) (Set, error) {
	m, err := s.blocking.Fetch(ctx, blockerID)
	return m, trace.Wrap(err)
}

// GetBlockers returns the ids of the users blocking blockeeID.
func (s *Service) GetBlockers(ctx context.Context, blockeeID string) (Set, error) {
	m, err := s.blocked.Fetch(ctx, blockeeID)
	return m, trace.Wrap(err)
}

// IsBlocking reports whether blockerID blocks blockeeID. The blockee side
// of the relation is consulted first when it is already resident.
func (s *Service) IsBlocking(ctx context.Context, blockerID, blockeeID string) (bool, error) {
	if m, ok := s.blocked.GetMaybe(blockeeID); ok {
		_, has := m[blockerID]
		return has, nil
	}
	m, err := s.blocking.Fetch(ctx, blockerID)
	if err != nil {
		return false, trace.Wrap(err)
	}
	_, has := m[blockeeID]
	return has, nil
}

// GetRenoteMutings returns the ids of the users whose renotes muterID
// muted.
func (s *Service) GetRenoteMutings(ctx context.Context, muterID string) (Set, error) {
	m, err := s.renoteMutings.Fetch(ctx, muterID)
	return m, trace.Wrap(err)
}

// GetThreadMutings returns the ids of the threads the user muted whole.
func (s *Service) GetThreadMutings(ctx context.Context, userID string) (Set, error) {
	m, err := s.threadMutings.Fetch(ctx, userID)
	return m, trace.Wrap(err)
}

// GetNoteMutings returns the ids of the threads the user muted as single
// post mutes.
func (s *Service) GetNoteMutings(ctx context.Context, userID string) (Set, error) {
	m, err := s.noteMutings.Fetch(ctx, userID)
	return m, trace.Wrap(err)
}

// GetListMemberships returns the user's list memberships keyed by list id.
func (s *Service) GetListMemberships(ctx context.Context, userID string) (map[string]*types.UserListMembership, error) {
	m, err := s.listMembershipsByUser.Fetch(ctx, userID)
	return m, trace.Wrap(err)
}

// GetListMembers returns the list's memberships keyed by member user id.
func (s *Service) GetListMembers(ctx context.Context, listID string) (map[string]*types.UserListMembership, error) {
	m, err := s.listMembershipsByList.Fetch(ctx, listID)
	return m, trace.Wrap(err)
}

// IsListMember reports whether userID is a member of the list. The list
// side of the relation is consulted first when it is already resident.
func (s *Service) IsListMember(ctx context.Context, listID, userID string) (bool, error) {
	if m, ok := s.listMembershipsByList.GetMaybe(listID); ok {
		_, has := m[userID]
		return has, nil
	}
	m, err := s.listMembershipsByUser.Fetch(ctx, userID)
	if err != nil {
		return false, trace.Wrap(err)
	}
	_, has := m[listID]
	return has, nil
}

// GetListFavorites returns the ids of the lists the user favorited.
func (s *Service) GetListFavorites(ctx context.Context, userID string) (Set, error) {
	m, err := s.listFavoritesByUser.Fetch(ctx, userID)
	return m, trace.Wrap(err)
}

// GetListFavoritedBy returns the ids of the users who favorited the list.
func (s *Service) GetListFavoritedBy(ctx context.Context, listID string) (Set, error) {
	m, err := s.listFavoritesByList.Fetch(ctx, listID)
	return m, trace.Wrap(err)
}
