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

// GetFollowStats returns the local/remote follow counts of a user. The
// value is derived from coherent state, so it is cached per process with a
// plain TTL and no cluster coherence; follow events evict it locally.
//
// Relations involving a remote instance are only stored when one side is
// local, so for a remote user the remote-to-remote portion is inferred from
// the aggregate counters on the user record: remoteFollowing is the
// aggregate following count minus the locally observed followees, clamped
// at zero. The inference can drift when the aggregate counters lag.
func (s *Service) GetFollowStats(ctx context.Context, userID string) (*types.FollowStats, error) {
	if stats, ok := s.followStats.Get(userID); ok {
		return stats, nil
	}

	followings, err := s.followings.Fetch(ctx, userID)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	followers, err := s.followers.Fetch(ctx, userID)
	if err != nil {
		return nil, trace.Wrap(err)
	}

	stats := &types.FollowStats{}
	for _, rel := range followings {
		if rel.FolloweeHost == "" {
			stats.LocalFollowing++
		} else {
			stats.RemoteFollowing++
		}
	}
	for _, rel := range followers {
		if rel.FollowerHost == "" {
			stats.LocalFollowers++
		} else {
			stats.RemoteFollowers++
		}
	}

	u, err := s.users.Fetch(ctx, userID)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	if u.IsRemote() {
		stats.RemoteFollowing = max(0, u.FollowingCount-stats.LocalFollowing)
		stats.RemoteFollowers = max(0, u.FollowersCount-stats.LocalFollowers)
	}

	s.followStats.Set(userID, stats)
	return stats, nil
}
