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
	"slices"

	"github.com/gravitational/trace"
	"golang.org/x/sync/errgroup"

	"github.com/gravitational/quasar/api/types"
	"github.com/gravitational/quasar/lib/events"
)

// subscribe registers the invalidation handlers.
//
// User, token, channel, profile and list membership events are expanded by
// the originating process only: it issues cache deletes whose coherence
// events reach the peers, so the peers must not expand the domain event a
// second time. Follow events additionally carry memory-only side effects
// (counter adjustment, follow stats eviction) that every process applies to
// its own memory, so those are handled on both sides. Meta updates are
// likewise handled everywhere since the reaction is a local, non-emitting
// clear.
func (s *Service) subscribe() {
	localOnly := events.SubscribeOptions{IgnoreRemote: true}
	everywhere := events.SubscribeOptions{}

	for _, topic := range []events.Topic{
		events.TopicUserUpdated,
		events.TopicUserChangeSuspendedState,
		events.TopicUserChangeDeletedState,
		events.TopicRemoteUserUpdated,
		events.TopicLocalUserUpdated,
	} {
		s.subs = append(s.subs, events.Subscribe(s.cfg.Bus, topic, s.onUserUpdated, localOnly))
	}
	s.subs = append(s.subs,
		events.Subscribe(s.cfg.Bus, events.TopicUsersUpdated, s.onUsersUpdated, localOnly),
		events.Subscribe(s.cfg.Bus, events.TopicUserTokenRegenerated, s.onTokenRegenerated, localOnly),
		events.Subscribe(s.cfg.Bus, events.TopicFollow, s.onFollow, everywhere),
		events.Subscribe(s.cfg.Bus, events.TopicUnfollow, s.onUnfollow, everywhere),
		events.Subscribe(s.cfg.Bus, events.TopicFollowChannel, s.onChannelFollowChanged, localOnly),
		events.Subscribe(s.cfg.Bus, events.TopicUnfollowChannel, s.onChannelFollowChanged, localOnly),
		events.Subscribe(s.cfg.Bus, events.TopicUpdateUserProfile, s.onProfileUpdated, localOnly),
		events.Subscribe(s.cfg.Bus, events.TopicUserListMemberAdded, s.onListMemberChanged, localOnly),
		events.Subscribe(s.cfg.Bus, events.TopicUserListMemberUpdated, s.onListMemberChanged, localOnly),
		events.Subscribe(s.cfg.Bus, events.TopicUserListMemberRemoved, s.onListMemberChanged, localOnly),
		events.Subscribe(s.cfg.Bus, events.TopicUserListMemberBulkAdded, s.onListMemberBulkChanged, localOnly),
		events.Subscribe(s.cfg.Bus, events.TopicUserListMemberBulkUpdated, s.onListMemberBulkChanged, localOnly),
		events.Subscribe(s.cfg.Bus, events.TopicUserListMemberBulkRemoved, s.onListMemberBulkChanged, localOnly),
		events.Subscribe(s.cfg.Bus, events.TopicMetaUpdated, s.onMetaUpdated, everywhere),
	)
}

func (s *Service) onUserUpdated(ctx context.Context, ev events.UserUpdated, isLocal bool) error {
	return trace.Wrap(s.expandUserUpdate(ctx, []string{ev.ID}))
}

func (s *Service) onUsersUpdated(ctx context.Context, ev events.UsersUpdated, isLocal bool) error {
	return trace.Wrap(s.expandUserUpdate(ctx, ev.IDs))
}

// expandUserUpdate fans a user mutation out to every cache keyed by the
// user, plus the list-side membership entries that contain any of the
// users. Deletes run concurrently; each one emits its own coherence event.
func (s *Service) expandUserUpdate(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	affectedLists := s.affectedLists(ids)

	var g errgroup.Group
	g.Go(func() error { return s.users.DeleteMany(ctx, ids) })
	g.Go(func() error { return s.profiles.DeleteMany(ctx, ids) })
	g.Go(func() error { return s.mutings.DeleteMany(ctx, ids) })
	g.Go(func() error { return s.muted.DeleteMany(ctx, ids) })
	g.Go(func() error { return s.blocking.DeleteMany(ctx, ids) })
	g.Go(func() error { return s.blocked.DeleteMany(ctx, ids) })
	g.Go(func() error { return s.renoteMutings.DeleteMany(ctx, ids) })
	g.Go(func() error { return s.followings.DeleteMany(ctx, ids) })
	g.Go(func() error { return s.followers.DeleteMany(ctx, ids) })
	g.Go(func() error { return s.hibernated.DeleteMany(ctx, ids) })
	g.Go(func() error { return s.threadMutings.DeleteMany(ctx, ids) })
	g.Go(func() error { return s.noteMutings.DeleteMany(ctx, ids) })
	g.Go(func() error { return s.listMembershipsByUser.DeleteMany(ctx, ids) })
	if len(affectedLists) > 0 {
		g.Go(func() error { return s.listMembershipsByList.DeleteMany(ctx, affectedLists) })
	}
	return trace.Wrap(g.Wait())
}

// affectedLists scans the local list-side membership entries for lists
// containing any of the users. Only local memory is consulted; peers run
// their own scan when they expand their own mutations.
func (s *Service) affectedLists(ids []string) []string {
	var out []string
	for listID, members := range s.listMembershipsByList.Snapshot() {
		for _, id := range ids {
			if _, ok := members[id]; ok {
				out = append(out, listID)
				break
			}
		}
	}
	return out
}

func (s *Service) onTokenRegenerated(ctx context.Context, ev events.UserTokenRegenerated, isLocal bool) error {
	if err := s.usersByToken.Delete(ctx, ev.OldToken); err != nil {
		return trace.Wrap(err)
	}
	return trace.Wrap(s.usersByToken.Set(ctx, ev.NewToken, ev.ID))
}

func (s *Service) onFollow(ctx context.Context, ev events.FollowChanged, isLocal bool) error {
	return trace.Wrap(s.applyFollowChange(ctx, ev, isLocal, +1))
}

func (s *Service) onUnfollow(ctx context.Context, ev events.FollowChanged, isLocal bool) error {
	return trace.Wrap(s.applyFollowChange(ctx, ev, isLocal, -1))
}

// applyFollowChange adjusts the denormalized counters of resident user
// entries, evicts both follow stats entries and, on the originating
// process, deletes both relation caches so the eviction propagates to the
// peers. The counter adjustment deliberately trusts the event over the
// database row, which may not be committed yet; the entry lifetime bounds
// any drift.
func (s *Service) applyFollowChange(ctx context.Context, ev events.FollowChanged, isLocal bool, delta int64) error {
	s.adjustUserCounters(ev.FollowerID, delta, 0)
	s.adjustUserCounters(ev.FolloweeID, 0, delta)
	s.followStats.Delete(ev.FollowerID)
	s.followStats.Delete(ev.FolloweeID)

	if !isLocal {
		return nil
	}
	var g errgroup.Group
	g.Go(func() error { return s.followings.Delete(ctx, ev.FollowerID) })
	g.Go(func() error { return s.followers.Delete(ctx, ev.FolloweeID) })
	return trace.Wrap(g.Wait())
}

// adjustUserCounters bumps the follow counters of a resident user entry.
// The cached object is shared with concurrent readers, so a clone is
// installed instead of writing through the shared pointer. The install is
// a compare-and-swap against the entry the clone was derived from: if the
// entry was invalidated or replaced in the meantime, installing the clone
// would resurrect stale data, so the adjustment is dropped and the next
// read loads fresh state. No coherence emission; every process adjusts its
// own copy.
func (s *Service) adjustUserCounters(userID string, followingDelta, followersDelta int64) {
	u, ok := s.users.GetMaybe(userID)
	if !ok {
		return
	}
	clone := u.Clone()
	clone.FollowingCount += followingDelta
	clone.FollowersCount += followersDelta
	if _, err := s.users.CompareAndSwap(userID, u, clone); err != nil {
		s.logger.Warn("Failed to adjust cached follow counters.", "user_id", userID, "error", err)
	}
}

func (s *Service) onChannelFollowChanged(ctx context.Context, ev events.ChannelFollowChanged, isLocal bool) error {
	return trace.Wrap(s.followingChannels.Delete(ctx, ev.UserID))
}

func (s *Service) onProfileUpdated(ctx context.Context, ev events.UserProfileUpdated, isLocal bool) error {
	return trace.Wrap(s.profiles.Delete(ctx, ev.UserID))
}

func (s *Service) onListMemberChanged(ctx context.Context, ev events.UserListMemberChanged, isLocal bool) error {
	var g errgroup.Group
	g.Go(func() error { return s.listMembershipsByUser.Delete(ctx, ev.MemberID) })
	g.Go(func() error { return s.listMembershipsByList.Delete(ctx, ev.UserListID) })
	return trace.Wrap(g.Wait())
}

func (s *Service) onListMemberBulkChanged(ctx context.Context, ev events.UserListMemberBulkChanged, isLocal bool) error {
	var g errgroup.Group
	g.Go(func() error { return s.listMembershipsByUser.Delete(ctx, ev.MemberID) })
	g.Go(func() error { return s.listMembershipsByList.DeleteMany(ctx, ev.UserListIDs) })
	return trace.Wrap(g.Wait())
}

// onMetaUpdated clears the instance cache when any host policy list
// changed. The clear is local and emits nothing: every process receives
// metaUpdated on its own and reacts independently.
func (s *Service) onMetaUpdated(ctx context.Context, ev events.MetaUpdated, isLocal bool) error {
	if ev.After == nil {
		return nil
	}
	if ev.Before != nil && !hostPoliciesChanged(ev.Before, ev.After) {
		return nil
	}
	return trace.Wrap(s.instances.Clear())
}

func hostPoliciesChanged(before, after *types.Meta) bool {
	return !slices.Equal(before.BlockedHosts, after.BlockedHosts) ||
		!slices.Equal(before.SilencedHosts, after.SilencedHosts) ||
		!slices.Equal(before.MediaSilencedHosts, after.MediaSilencedHosts) ||
		!slices.Equal(before.FederationHosts, after.FederationHosts) ||
		!slices.Equal(before.BubbleInstances, after.BubbleInstances)
}

// onHibernationChanged re-reads the hibernation flags of users resident in
// the authoritative user cache and installs updated clones. The flag is
// denormalized into the user record, so a hibernation change must be
// mirrored there without emitting: every peer runs this same hook for its
// own memory. The install is a compare-and-swap against the entry the
// clone was derived from: the hook can race a concurrent invalidation of
// the same user (expandUserUpdate deletes users and hibernated in
// parallel), and a plain Add would resurrect the deleted entry.
func (s *Service) onHibernationChanged(ctx context.Context, keys []string) error {
	resident := make([]string, 0, len(keys))
	for _, id := range keys {
		if s.users.Has(id) {
			resident = append(resident, id)
		}
	}
	if len(resident) == 0 {
		return nil
	}
	flags, err := s.cfg.Store.GetUserHibernations(ctx, resident)
	if err != nil {
		return trace.Wrap(err)
	}
	for id, hib := range flags {
		u, ok := s.users.GetMaybe(id)
		if !ok || u.IsHibernated == hib {
			continue
		}
		clone := u.Clone()
		clone.IsHibernated = hib
		if _, err := s.users.CompareAndSwap(id, u, clone); err != nil {
			return trace.Wrap(err)
		}
	}
	return nil
}
