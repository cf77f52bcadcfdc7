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
	"regexp"
	"strings"

	"github.com/gravitational/trace"

	"github.com/gravitational/quasar/api/types"
)

// emojiPattern matches an emoji reference in note text: a name with an
// optional @host part.
var emojiPattern = regexp.MustCompile(`^([-\w]+)(?:@([\w.-]+))?$`)

// EncodeEmojiKey encodes a (name, host) pair into the emojisByKey cache
// key: the bare name for local emojis, "name host" otherwise. A single
// ASCII space is the separator, so neither part may contain one.
func EncodeEmojiKey(name, host string) (string, error) {
	if name == "" || strings.Contains(name, " ") {
		return "", &InvalidEmojiNameError{Name: name}
	}
	if host == "" {
		return name, nil
	}
	if strings.Contains(host, " ") {
		return "", &InvalidEmojiHostError{Host: host}
	}
	return name + " " + host, nil
}

// DecodeEmojiKey splits an emojisByKey cache key on the first space into
// the (name, host) pair.
func DecodeEmojiKey(key string) (name, host string, err error) {
	name, host, _ = strings.Cut(key, " ")
	if name == "" || strings.Contains(host, " ") {
		return "", "", &InvalidEmojiKeyError{Key: key}
	}
	return name, host, nil
}

// PopulateEmoji resolves an emoji reference from note text to its display
// URL. The reference may carry an explicit host ("name@host"), a "@."
// marker for the local instance, or no host at all, in which case the note
// author's host applies. Returns the empty string when the reference does
// not parse or the emoji does not exist.
func (s *Service) PopulateEmoji(ctx context.Context, nameWithHost, noteUserHost string) (string, error) {
	m := emojiPattern.FindStringSubmatch(nameWithHost)
	if m == nil {
		return "", nil
	}
	name, host := m[1], m[2]
	switch host {
	case ".":
		host = ""
	case "":
		host = noteUserHost
	}
	host, err := normalizeHost(host, s.localHost)
	if err != nil {
		return "", trace.Wrap(err)
	}
	key, err := EncodeEmojiKey(name, host)
	if err != nil {
		return "", trace.Wrap(err)
	}
	emoji, ok, err := s.emojisByKey.FetchMaybe(ctx, key)
	if err != nil {
		return "", trace.Wrap(err)
	}
	if !ok {
		return "", nil
	}
	return emoji.DisplayURL(), nil
}

// GetEmoji returns the emoji record by id.
func (s *Service) GetEmoji(ctx context.Context, id string) (*types.Emoji, error) {
	e, err := s.emojisByID.Fetch(ctx, id)
	return e, trace.Wrap(err)
}

// CreateEmoji inserts a new emoji and primes both emoji caches. The key
// entry is installed with Add: the row is brand new, so no peer can hold a
// stale copy and no coherence event is needed.
func (s *Service) CreateEmoji(ctx context.Context, emoji *types.Emoji) (*types.Emoji, error) {
	if _, err := EncodeEmojiKey(emoji.Name, emoji.Host); err != nil {
		return nil, trace.Wrap(err)
	}
	id, err := s.cfg.Store.InsertEmoji(ctx, emoji)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	created, err := s.emojisByID.Fetch(ctx, id)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	key, err := EncodeEmojiKey(created.Name, created.Host)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	if err := s.emojisByKey.Add(key, created); err != nil {
		return nil, trace.Wrap(err)
	}
	return created, nil
}

// UpdateEmoji writes an emoji mutation through to the database and the
// caches. A rename is checked for collisions first; the new key is stored
// with Set so peers holding the emoji under either key drop their copies,
// and the old key entry is deleted when the rename changed the key.
func (s *Service) UpdateEmoji(ctx context.Context, emoji *types.Emoji) (*types.Emoji, error) {
	prev, err := s.emojisByID.Fetch(ctx, emoji.ID)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	oldKey, err := EncodeEmojiKey(prev.Name, prev.Host)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	newKey, err := EncodeEmojiKey(emoji.Name, emoji.Host)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	if newKey != oldKey {
		switch _, err := s.cfg.Store.GetEmojiByRef(ctx, EmojiRef{Name: emoji.Name, Host: emoji.Host}); {
		case err == nil:
			return nil, &DuplicateEmojiError{Name: emoji.Name, Host: emoji.Host}
		case !trace.IsNotFound(err):
			return nil, trace.Wrap(err)
		}
	}
	if err := s.cfg.Store.UpdateEmoji(ctx, emoji); err != nil {
		return nil, trace.Wrap(err)
	}
	updated, err := s.emojisByID.Refresh(ctx, emoji.ID)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	if err := s.emojisByKey.Set(ctx, newKey, updated); err != nil {
		return nil, trace.Wrap(err)
	}
	if newKey != oldKey {
		if err := s.emojisByKey.Delete(ctx, oldKey); err != nil {
			return nil, trace.Wrap(err)
		}
	}
	return updated, nil
}
