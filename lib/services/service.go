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

// Package services implements the domain cache bundle: the concrete caches
// over users, relations, emojis, public keys and federated instances,
// their database loaders, and the cross-cache invalidation triggered by
// domain events.
package services

import (
	"context"
	"log/slog"

	"github.com/gravitational/trace"
	"github.com/jonboulle/clockwork"

	"github.com/gravitational/quasar"
	"github.com/gravitational/quasar/api/types"
	"github.com/gravitational/quasar/lib/defaults"
	"github.com/gravitational/quasar/lib/events"
	"github.com/gravitational/quasar/lib/quantum"
	logutils "github.com/gravitational/quasar/lib/utils/log"
)

// Cache names. Coherence events carry them across the cluster, so they are
// part of the wire contract and must not change between releases.
const (
	CacheUserByID               = "userById"
	CacheLocalUserByNativeToken = "localUserByNativeToken"
	CacheUserByAcct             = "userByAcct"
	CacheUserProfile            = "userProfile"
	CacheUserMutings            = "userMutings"
	CacheUserMuted              = "userMuted"
	CacheUserBlocking           = "userBlocking"
	CacheUserBlocked            = "userBlocked"
	CacheUserListMemberships    = "userListMemberships"
	CacheListUserMemberships    = "listUserMemberships"
	CacheUserListFavorites      = "userListFavorites"
	CacheListUserFavorites      = "listUserFavorites"
	CacheRenoteMutings          = "renoteMutings"
	CacheThreadMutings          = "threadMutings"
	CacheNoteMutings            = "noteMutings"
	CacheUserFollowings         = "userFollowings"
	CacheUserFollowers          = "userFollowers"
	CacheHibernatedUsers        = "hibernatedUsers"
	CacheUserFollowingChannels  = "userFollowingChannels"
	CacheUserFollowStats        = "userFollowStats"
	CacheURIPerson              = "uriPerson"
	CachePublicKeyByKeyID       = "publicKeyByKeyId"
	CachePublicKeyByUserID      = "publicKeyByUserId"
	CacheEmojisByID             = "emojisById"
	CacheEmojisByKey            = "emojisByKey"
	CacheFederatedInstance      = "federatedInstance"
)

// Set is a set of ids, keyed for O(1) membership checks.
type Set = map[string]struct{}

// Config holds the parameters of the domain cache bundle.
type Config struct {
	// Registry tracks the bundle's caches for GC and shutdown.
	Registry *quantum.Registry
	// Bus is the cluster event bus.
	Bus *events.Bus
	// Store is the loader surface over the shared database.
	Store Store
	// LocalHost is this server's own host. Accts and emojis carrying it
	// are normalized to local before key encoding.
	LocalHost string
	// Clock can be set to control time, uses the runtime clock by
	// default.
	Clock clockwork.Clock
	// Logger is the bundle's logger.
	Logger *slog.Logger
	// Context is an optional parent context for the bundle's caches.
	Context context.Context
}

// CheckAndSetDefaults checks parameters and sets default values.
func (c *Config) CheckAndSetDefaults() error {
	if c.Registry == nil {
		return trace.BadParameter("missing Registry parameter")
	}
	if c.Bus == nil {
		return trace.BadParameter("missing Bus parameter")
	}
	if c.Store == nil {
		return trace.BadParameter("missing Store parameter")
	}
	if c.LocalHost == "" {
		return trace.BadParameter("missing LocalHost parameter")
	}
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	if c.Logger == nil {
		c.Logger = logutils.NewPackageLogger(quasar.ComponentKey, quasar.ComponentCaches)
	}
	if c.Context == nil {
		c.Context = context.Background()
	}
	return nil
}

// Service is the domain cache bundle. It owns every cache of the catalog,
// wires their loaders to the database store and keeps them coherent by
// handling the domain events on the bus.
type Service struct {
	cfg       Config
	logger    *slog.Logger
	localHost string

	users        *quantum.Cache[*types.User]
	usersByToken *quantum.Cache[string]
	usersByAcct  *quantum.Cache[string]
	profiles     *quantum.Cache[*types.UserProfile]

	mutings       *quantum.Cache[Set]
	muted         *quantum.Cache[Set]
	blocking      *quantum.Cache[Set]
	blocked       *quantum.Cache[Set]
	renoteMutings *quantum.Cache[Set]
	threadMutings *quantum.Cache[Set]
	noteMutings   *quantum.Cache[Set]

	listMembershipsByUser *quantum.Cache[map[string]*types.UserListMembership]
	listMembershipsByList *quantum.Cache[map[string]*types.UserListMembership]
	listFavoritesByUser   *quantum.Cache[Set]
	listFavoritesByList   *quantum.Cache[Set]

	followings        *quantum.Cache[map[string]*types.Following]
	followers         *quantum.Cache[map[string]*types.Following]
	hibernated        *quantum.Cache[bool]
	followingChannels *quantum.Cache[Set]
	followStats       *quantum.MemoryCache[*types.FollowStats]

	uriPersons        *quantum.Cache[string]
	publicKeysByKeyID *quantum.Cache[*types.PublicKey]
	publicKeysByUser  *quantum.Cache[*types.PublicKey]
	emojisByID        *quantum.Cache[*types.Emoji]
	emojisByKey       *quantum.Cache[*types.Emoji]
	instances         *quantum.Cache[*types.Instance]

	subs []*events.Subscription
}

// NewService creates the domain cache bundle: every catalog cache is
// constructed through the registry and the invalidation handlers are
// subscribed on the bus.
func NewService(cfg Config) (*Service, error) {
	if err := cfg.CheckAndSetDefaults(); err != nil {
		return nil, trace.Wrap(err)
	}
	localHost, err := Punyhost(cfg.LocalHost)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	s := &Service{
		cfg:       cfg,
		logger:    cfg.Logger,
		localHost: localHost,
	}
	if err := s.createCaches(); err != nil {
		return nil, trace.Wrap(err)
	}
	s.subscribe()
	return s, nil
}

// Close unregisters the bundle's event handlers. The caches themselves are
// disposed by the registry.
func (s *Service) Close() {
	for _, sub := range s.subs {
		sub.Close()
	}
}

func (s *Service) createCaches() error {
	var err error
	if s.users, err = quantum.NewCache(s.cfg.Registry, quantum.Config[*types.User]{
		Name:      CacheUserByID,
		Lifetime:  defaults.UserLifetime,
		Bus:       s.cfg.Bus,
		Fetch:     s.cfg.Store.GetUserByID,
		FetchBulk: s.cfg.Store.GetUsersByIDs,
		Clock:     s.cfg.Clock,
		Context:   s.cfg.Context,
	}); err != nil {
		return trace.Wrap(err)
	}
	if s.usersByToken, err = quantum.NewCache(s.cfg.Registry, quantum.Config[string]{
		Name:      CacheLocalUserByNativeToken,
		Lifetime:  defaults.UserLifetime,
		Bus:       s.cfg.Bus,
		Fetch:     s.cfg.Store.GetLocalUserIDByToken,
		FetchBulk: s.cfg.Store.GetLocalUserIDsByTokens,
		Clock:     s.cfg.Clock,
		Context:   s.cfg.Context,
	}); err != nil {
		return trace.Wrap(err)
	}
	if s.usersByAcct, err = quantum.NewCache(s.cfg.Registry, quantum.Config[string]{
		Name:     CacheUserByAcct,
		Lifetime: defaults.RelationLifetime,
		Bus:      s.cfg.Bus,
		Fetch:    s.fetchUserIDByAcctKey,
		Clock:    s.cfg.Clock,
		Context:  s.cfg.Context,
	}); err != nil {
		return trace.Wrap(err)
	}
	if s.profiles, err = quantum.NewCache(s.cfg.Registry, quantum.Config[*types.UserProfile]{
		Name:      CacheUserProfile,
		Lifetime:  defaults.RelationLifetime,
		Bus:       s.cfg.Bus,
		Fetch:     s.cfg.Store.GetUserProfile,
		FetchBulk: s.cfg.Store.GetUserProfiles,
		Clock:     s.cfg.Clock,
		Context:   s.cfg.Context,
	}); err != nil {
		return trace.Wrap(err)
	}

	if s.mutings, err = s.newSetCache(CacheUserMutings, s.fetchMutings, s.fetchMutingsBulk); err != nil {
		return trace.Wrap(err)
	}
	if s.muted, err = s.newSetCache(CacheUserMuted, s.fetchMuted, s.fetchMutedBulk); err != nil {
		return trace.Wrap(err)
	}
	if s.blocking, err = s.newSetCache(CacheUserBlocking, s.fetchBlocking, s.fetchBlockingBulk); err != nil {
		return trace.Wrap(err)
	}
	if s.blocked, err = s.newSetCache(CacheUserBlocked, s.fetchBlocked, s.fetchBlockedBulk); err != nil {
		return trace.Wrap(err)
	}
	if s.renoteMutings, err = s.newSetCache(CacheRenoteMutings, s.fetchRenoteMutings, s.fetchRenoteMutingsBulk); err != nil {
		return trace.Wrap(err)
	}
	if s.threadMutings, err = s.newSetCache(CacheThreadMutings, s.fetchThreadMutings, s.fetchThreadMutingsBulk); err != nil {
		return trace.Wrap(err)
	}
	if s.noteMutings, err = s.newSetCache(CacheNoteMutings, s.fetchNoteMutings, s.fetchNoteMutingsBulk); err != nil {
		return trace.Wrap(err)
	}

	if s.listMembershipsByUser, err = quantum.NewCache(s.cfg.Registry, quantum.Config[map[string]*types.UserListMembership]{
		Name:      CacheUserListMemberships,
		Lifetime:  defaults.RelationLifetime,
		Bus:       s.cfg.Bus,
		Fetch:     s.fetchMembershipsByUser,
		FetchBulk: s.fetchMembershipsByUsersBulk,
		Clock:     s.cfg.Clock,
		Context:   s.cfg.Context,
	}); err != nil {
		return trace.Wrap(err)
	}
	if s.listMembershipsByList, err = quantum.NewCache(s.cfg.Registry, quantum.Config[map[string]*types.UserListMembership]{
		Name:      CacheListUserMemberships,
		Lifetime:  defaults.RelationLifetime,
		Bus:       s.cfg.Bus,
		Fetch:     s.fetchMembershipsByList,
		FetchBulk: s.fetchMembershipsByListsBulk,
		Clock:     s.cfg.Clock,
		Context:   s.cfg.Context,
	}); err != nil {
		return trace.Wrap(err)
	}
	if s.listFavoritesByUser, err = s.newSetCache(CacheUserListFavorites, s.fetchFavoritesByUser, s.fetchFavoritesByUsersBulk); err != nil {
		return trace.Wrap(err)
	}
	if s.listFavoritesByList, err = s.newSetCache(CacheListUserFavorites, s.fetchFavoritesByList, s.fetchFavoritesByListsBulk); err != nil {
		return trace.Wrap(err)
	}

	if s.followings, err = quantum.NewCache(s.cfg.Registry, quantum.Config[map[string]*types.Following]{
		Name:      CacheUserFollowings,
		Lifetime:  defaults.RelationLifetime,
		Bus:       s.cfg.Bus,
		Fetch:     s.fetchFollowings,
		FetchBulk: s.fetchFollowingsBulk,
		Clock:     s.cfg.Clock,
		Context:   s.cfg.Context,
	}); err != nil {
		return trace.Wrap(err)
	}
	if s.followers, err = quantum.NewCache(s.cfg.Registry, quantum.Config[map[string]*types.Following]{
		Name:      CacheUserFollowers,
		Lifetime:  defaults.RelationLifetime,
		Bus:       s.cfg.Bus,
		Fetch:     s.fetchFollowers,
		FetchBulk: s.fetchFollowersBulk,
		Clock:     s.cfg.Clock,
		Context:   s.cfg.Context,
	}); err != nil {
		return trace.Wrap(err)
	}
	if s.hibernated, err = quantum.NewCache(s.cfg.Registry, quantum.Config[bool]{
		Name:      CacheHibernatedUsers,
		Lifetime:  defaults.RelationLifetime,
		Bus:       s.cfg.Bus,
		Fetch:     s.fetchHibernation,
		FetchBulk: s.cfg.Store.GetUserHibernations,
		OnChanged: s.onHibernationChanged,
		Clock:     s.cfg.Clock,
		Context:   s.cfg.Context,
	}); err != nil {
		return trace.Wrap(err)
	}
	if s.followingChannels, err = quantum.NewCache(s.cfg.Registry, quantum.Config[Set]{
		Name:     CacheUserFollowingChannels,
		Lifetime: defaults.RelationLifetime,
		Bus:      s.cfg.Bus,
		Fetch:    s.fetchFollowingChannels,
		Clock:    s.cfg.Clock,
		Context:  s.cfg.Context,
	}); err != nil {
		return trace.Wrap(err)
	}
	if s.followStats, err = quantum.NewMemoryCache[*types.FollowStats](s.cfg.Registry, quantum.MemoryConfig{
		Name:     CacheUserFollowStats,
		Lifetime: defaults.FollowStatsLifetime,
		Clock:    s.cfg.Clock,
	}); err != nil {
		return trace.Wrap(err)
	}

	if s.uriPersons, err = quantum.NewCache(s.cfg.Registry, quantum.Config[string]{
		Name:      CacheURIPerson,
		Lifetime:  defaults.RelationLifetime,
		Bus:       s.cfg.Bus,
		Fetch:     s.cfg.Store.GetUserIDByURI,
		FetchBulk: s.cfg.Store.GetUserIDsByURIs,
		Clock:     s.cfg.Clock,
		Context:   s.cfg.Context,
	}); err != nil {
		return trace.Wrap(err)
	}
	if s.publicKeysByKeyID, err = quantum.NewCache(s.cfg.Registry, quantum.Config[*types.PublicKey]{
		Name:      CachePublicKeyByKeyID,
		Lifetime:  defaults.PublicKeyLifetime,
		Bus:       s.cfg.Bus,
		Fetch:     s.cfg.Store.GetPublicKeyByKeyID,
		FetchBulk: s.cfg.Store.GetPublicKeysByKeyIDs,
		Clock:     s.cfg.Clock,
		Context:   s.cfg.Context,
	}); err != nil {
		return trace.Wrap(err)
	}
	if s.publicKeysByUser, err = quantum.NewCache(s.cfg.Registry, quantum.Config[*types.PublicKey]{
		Name:      CachePublicKeyByUserID,
		Lifetime:  defaults.PublicKeyLifetime,
		Bus:       s.cfg.Bus,
		Fetch:     s.cfg.Store.GetPublicKeyByUserID,
		FetchBulk: s.cfg.Store.GetPublicKeysByUserIDs,
		Clock:     s.cfg.Clock,
		Context:   s.cfg.Context,
	}); err != nil {
		return trace.Wrap(err)
	}
	if s.emojisByID, err = quantum.NewCache(s.cfg.Registry, quantum.Config[*types.Emoji]{
		Name:      CacheEmojisByID,
		Lifetime:  defaults.EmojiLifetime,
		Bus:       s.cfg.Bus,
		Fetch:     s.cfg.Store.GetEmojiByID,
		FetchBulk: s.cfg.Store.GetEmojisByIDs,
		Clock:     s.cfg.Clock,
		Context:   s.cfg.Context,
	}); err != nil {
		return trace.Wrap(err)
	}
	if s.emojisByKey, err = quantum.NewCache(s.cfg.Registry, quantum.Config[*types.Emoji]{
		Name:      CacheEmojisByKey,
		Lifetime:  defaults.EmojiLifetime,
		Bus:       s.cfg.Bus,
		Fetch:     s.fetchEmojiByKey,
		FetchBulk: s.fetchEmojisByKeysBulk,
		Clock:     s.cfg.Clock,
		Context:   s.cfg.Context,
	}); err != nil {
		return trace.Wrap(err)
	}
	if s.instances, err = quantum.NewCache(s.cfg.Registry, quantum.Config[*types.Instance]{
		Name:      CacheFederatedInstance,
		Lifetime:  defaults.InstanceLifetime,
		Bus:       s.cfg.Bus,
		Fetch:     s.cfg.Store.FindOrCreateInstance,
		FetchBulk: s.cfg.Store.GetInstancesByHosts,
		Clock:     s.cfg.Clock,
		Context:   s.cfg.Context,
	}); err != nil {
		return trace.Wrap(err)
	}
	return nil
}

func (s *Service) newSetCache(name string, fetch quantum.FetchFunc[Set], bulk quantum.FetchBulkFunc[Set]) (*quantum.Cache[Set], error) {
	c, err := quantum.NewCache(s.cfg.Registry, quantum.Config[Set]{
		Name:      name,
		Lifetime:  defaults.RelationLifetime,
		Bus:       s.cfg.Bus,
		Fetch:     fetch,
		FetchBulk: bulk,
		Clock:     s.cfg.Clock,
		Context:   s.cfg.Context,
	})
	return c, trace.Wrap(err)
}
