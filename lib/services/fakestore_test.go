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
	"fmt"
	"sync"

	"github.com/gravitational/trace"

	"github.com/gravitational/quasar/api/types"
)

// fakeStore is an in-memory Store backed by plain slices and maps.
type fakeStore struct {
	mu sync.Mutex

	users       map[string]*types.User
	tokens      map[string]string
	uris        map[string]string
	profiles    map[string]*types.UserProfile
	mutings     []*types.Muting
	blockings   []*types.Blocking
	renoteMutes []*types.RenoteMuting
	threadMutes []*types.ThreadMuting
	followings  []*types.Following
	memberships []*types.UserListMembership
	favorites   []*types.UserListFavorite
	channels    []*types.ChannelFollowing
	keysByKeyID map[string]*types.PublicKey
	keysByUser  map[string]*types.PublicKey
	emojis      map[string]*types.Emoji
	instances   map[string]*types.Instance

	nextID int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:       map[string]*types.User{},
		tokens:      map[string]string{},
		uris:        map[string]string{},
		profiles:    map[string]*types.UserProfile{},
		keysByKeyID: map[string]*types.PublicKey{},
		keysByUser:  map[string]*types.PublicKey{},
		emojis:      map[string]*types.Emoji{},
		instances:   map[string]*types.Instance{},
	}
}

func (f *fakeStore) addUser(u *types.User) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[u.ID] = u
	if u.Token != "" {
		f.tokens[u.Token] = u.ID
	}
	if u.URI != "" {
		f.uris[u.URI] = u.ID
	}
}

func (f *fakeStore) genID(prefix string) string {
	f.nextID++
	return fmt.Sprintf("%s%d", prefix, f.nextID)
}

func (f *fakeStore) GetUserByID(ctx context.Context, id string) (*types.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, trace.NotFound("user %q not found", id)
	}
	return u, nil
}

func (f *fakeStore) GetUsersByIDs(ctx context.Context, ids []string) (map[string]*types.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := map[string]*types.User{}
	for _, id := range ids {
		if u, ok := f.users[id]; ok {
			out[id] = u
		}
	}
	return out, nil
}

func (f *fakeStore) GetLocalUserIDByToken(ctx context.Context, token string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.tokens[token]
	if !ok {
		return "", trace.NotFound("token not found")
	}
	return id, nil
}

func (f *fakeStore) GetLocalUserIDsByTokens(ctx context.Context, tokens []string) (map[string]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := map[string]string{}
	for _, tok := range tokens {
		if id, ok := f.tokens[tok]; ok {
			out[tok] = id
		}
	}
	return out, nil
}

func (f *fakeStore) GetUserIDByAcct(ctx context.Context, username, host string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Username == username && u.Host == host {
			return u.ID, nil
		}
	}
	return "", trace.NotFound("user %q@%q not found", username, host)
}

func (f *fakeStore) GetUserIDByURI(ctx context.Context, uri string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.uris[uri]
	if !ok {
		return "", trace.NotFound("uri %q not found", uri)
	}
	return id, nil
}

func (f *fakeStore) GetUserIDsByURIs(ctx context.Context, uris []string) (map[string]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := map[string]string{}
	for _, uri := range uris {
		if id, ok := f.uris[uri]; ok {
			out[uri] = id
		}
	}
	return out, nil
}

func (f *fakeStore) GetUserProfile(ctx context.Context, userID string) (*types.UserProfile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.profiles[userID]
	if !ok {
		return nil, trace.NotFound("profile %q not found", userID)
	}
	return p, nil
}

func (f *fakeStore) GetUserProfiles(ctx context.Context, userIDs []string) (map[string]*types.UserProfile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := map[string]*types.UserProfile{}
	for _, id := range userIDs {
		if p, ok := f.profiles[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func (f *fakeStore) GetUserHibernations(ctx context.Context, userIDs []string) (map[string]bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := map[string]bool{}
	for _, id := range userIDs {
		if u, ok := f.users[id]; ok {
			out[id] = u.IsHibernated
		}
	}
	return out, nil
}

func (f *fakeStore) GetMutingsByMuter(ctx context.Context, userID string) ([]*types.Muting, error) {
	return f.GetMutingsByMuters(ctx, []string{userID})
}

func (f *fakeStore) GetMutingsByMuters(ctx context.Context, userIDs []string) ([]*types.Muting, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*types.Muting
	for _, m := range f.mutings {
		if contains(userIDs, m.MuterID) {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeStore) GetMutingsByMutee(ctx context.Context, userID string) ([]*types.Muting, error) {
	return f.GetMutingsByMutees(ctx, []string{userID})
}

func (f *fakeStore) GetMutingsByMutees(ctx context.Context, userIDs []string) ([]*types.Muting, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*types.Muting
	for _, m := range f.mutings {
		if contains(userIDs, m.MuteeID) {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeStore) GetBlockingsByBlocker(ctx context.Context, userID string) ([]*types.Blocking, error) {
	return f.GetBlockingsByBlockers(ctx, []string{userID})
}

func (f *fakeStore) GetBlockingsByBlockers(ctx context.Context, userIDs []string) ([]*types.Blocking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*types.Blocking
	for _, b := range f.blockings {
		if contains(userIDs, b.BlockerID) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (f *fakeStore) GetBlockingsByBlockee(ctx context.Context, userID string) ([]*types.Blocking, error) {
	return f.GetBlockingsByBlockees(ctx, []string{userID})
}

func (f *fakeStore) GetBlockingsByBlockees(ctx context.Context, userIDs []string) ([]*types.Blocking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*types.Blocking
	for _, b := range f.blockings {
		if contains(userIDs, b.BlockeeID) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (f *fakeStore) GetRenoteMutingsByMuter(ctx context.Context, userID string) ([]*types.RenoteMuting, error) {
	return f.GetRenoteMutingsByMuters(ctx, []string{userID})
}

func (f *fakeStore) GetRenoteMutingsByMuters(ctx context.Context, userIDs []string) ([]*types.RenoteMuting, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*types.RenoteMuting
	for _, m := range f.renoteMutes {
		if contains(userIDs, m.MuterID) {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeStore) GetThreadMutingsByUser(ctx context.Context, userID string) ([]*types.ThreadMuting, error) {
	return f.GetThreadMutingsByUsers(ctx, []string{userID})
}

func (f *fakeStore) GetThreadMutingsByUsers(ctx context.Context, userIDs []string) ([]*types.ThreadMuting, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*types.ThreadMuting
	for _, m := range f.threadMutes {
		if contains(userIDs, m.UserID) {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeStore) GetFollowingsByFollower(ctx context.Context, userID string) ([]*types.Following, error) {
	return f.GetFollowingsByFollowers(ctx, []string{userID})
}

func (f *fakeStore) GetFollowingsByFollowers(ctx context.Context, userIDs []string) ([]*types.Following, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*types.Following
	for _, rel := range f.followings {
		if contains(userIDs, rel.FollowerID) {
			out = append(out, rel)
		}
	}
	return out, nil
}

func (f *fakeStore) GetFollowingsByFollowee(ctx context.Context, userID string) ([]*types.Following, error) {
	return f.GetFollowingsByFollowees(ctx, []string{userID})
}

func (f *fakeStore) GetFollowingsByFollowees(ctx context.Context, userIDs []string) ([]*types.Following, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*types.Following
	for _, rel := range f.followings {
		if contains(userIDs, rel.FolloweeID) {
			out = append(out, rel)
		}
	}
	return out, nil
}

func (f *fakeStore) GetListMembershipsByUser(ctx context.Context, userID string) ([]*types.UserListMembership, error) {
	return f.GetListMembershipsByUsers(ctx, []string{userID})
}

func (f *fakeStore) GetListMembershipsByUsers(ctx context.Context, userIDs []string) ([]*types.UserListMembership, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*types.UserListMembership
	for _, m := range f.memberships {
		if contains(userIDs, m.UserID) {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeStore) GetListMembershipsByList(ctx context.Context, listID string) ([]*types.UserListMembership, error) {
	return f.GetListMembershipsByLists(ctx, []string{listID})
}

func (f *fakeStore) GetListMembershipsByLists(ctx context.Context, listIDs []string) ([]*types.UserListMembership, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*types.UserListMembership
	for _, m := range f.memberships {
		if contains(listIDs, m.ListID) {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeStore) GetListFavoritesByUser(ctx context.Context, userID string) ([]*types.UserListFavorite, error) {
	return f.GetListFavoritesByUsers(ctx, []string{userID})
}

func (f *fakeStore) GetListFavoritesByUsers(ctx context.Context, userIDs []string) ([]*types.UserListFavorite, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*types.UserListFavorite
	for _, fav := range f.favorites {
		if contains(userIDs, fav.UserID) {
			out = append(out, fav)
		}
	}
	return out, nil
}

func (f *fakeStore) GetListFavoritesByList(ctx context.Context, listID string) ([]*types.UserListFavorite, error) {
	return f.GetListFavoritesByLists(ctx, []string{listID})
}

func (f *fakeStore) GetListFavoritesByLists(ctx context.Context, listIDs []string) ([]*types.UserListFavorite, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*types.UserListFavorite
	for _, fav := range f.favorites {
		if contains(listIDs, fav.ListID) {
			out = append(out, fav)
		}
	}
	return out, nil
}

func (f *fakeStore) GetChannelFollowingsByUser(ctx context.Context, userID string) ([]*types.ChannelFollowing, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*types.ChannelFollowing
	for _, c := range f.channels {
		if c.FollowerID == userID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeStore) GetPublicKeyByKeyID(ctx context.Context, keyID string) (*types.PublicKey, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	k, ok := f.keysByKeyID[keyID]
	if !ok {
		return nil, trace.NotFound("key %q not found", keyID)
	}
	return k, nil
}

func (f *fakeStore) GetPublicKeysByKeyIDs(ctx context.Context, keyIDs []string) (map[string]*types.PublicKey, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := map[string]*types.PublicKey{}
	for _, id := range keyIDs {
		if k, ok := f.keysByKeyID[id]; ok {
			out[id] = k
		}
	}
	return out, nil
}

func (f *fakeStore) GetPublicKeyByUserID(ctx context.Context, userID string) (*types.PublicKey, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	k, ok := f.keysByUser[userID]
	if !ok {
		return nil, trace.NotFound("key of user %q not found", userID)
	}
	return k, nil
}

func (f *fakeStore) GetPublicKeysByUserIDs(ctx context.Context, userIDs []string) (map[string]*types.PublicKey, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := map[string]*types.PublicKey{}
	for _, id := range userIDs {
		if k, ok := f.keysByUser[id]; ok {
			out[id] = k
		}
	}
	return out, nil
}

func (f *fakeStore) GetEmojiByID(ctx context.Context, id string) (*types.Emoji, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.emojis[id]
	if !ok {
		return nil, trace.NotFound("emoji %q not found", id)
	}
	return e, nil
}

func (f *fakeStore) GetEmojisByIDs(ctx context.Context, ids []string) (map[string]*types.Emoji, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := map[string]*types.Emoji{}
	for _, id := range ids {
		if e, ok := f.emojis[id]; ok {
			out[id] = e
		}
	}
	return out, nil
}

func (f *fakeStore) GetEmojiByRef(ctx context.Context, ref EmojiRef) (*types.Emoji, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.emojis {
		if e.Name == ref.Name && e.Host == ref.Host {
			return e, nil
		}
	}
	return nil, trace.NotFound("emoji %q@%q not found", ref.Name, ref.Host)
}

func (f *fakeStore) GetEmojisByRefs(ctx context.Context, refs []EmojiRef) (map[EmojiRef]*types.Emoji, error) {
	out := map[EmojiRef]*types.Emoji{}
	for _, ref := range refs {
		e, err := f.GetEmojiByRef(ctx, ref)
		if err != nil {
			if trace.IsNotFound(err) {
				continue
			}
			return nil, trace.Wrap(err)
		}
		out[ref] = e
	}
	return out, nil
}

func (f *fakeStore) InsertEmoji(ctx context.Context, emoji *types.Emoji) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *emoji
	cp.ID = f.genID("emoji-")
	f.emojis[cp.ID] = &cp
	return cp.ID, nil
}

func (f *fakeStore) UpdateEmoji(ctx context.Context, emoji *types.Emoji) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.emojis[emoji.ID]; !ok {
		return trace.NotFound("emoji %q not found", emoji.ID)
	}
	cp := *emoji
	f.emojis[emoji.ID] = &cp
	return nil
}

func (f *fakeStore) FindOrCreateInstance(ctx context.Context, host string) (*types.Instance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if inst, ok := f.instances[host]; ok {
		return inst, nil
	}
	inst := &types.Instance{ID: f.genID("inst-"), Host: host}
	f.instances[host] = inst
	return inst, nil
}

func (f *fakeStore) GetInstancesByHosts(ctx context.Context, hosts []string) (map[string]*types.Instance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := map[string]*types.Instance{}
	for _, h := range hosts {
		if inst, ok := f.instances[h]; ok {
			out[h] = inst
		}
	}
	return out, nil
}

func contains(ids []string, id string) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}
