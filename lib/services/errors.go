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
	"errors"
	"fmt"
)

// UserNotLocalError is returned by narrowing reads that require a local
// user.
type UserNotLocalError struct {
	// UserID is the offending user id.
	UserID string
}

// Error implements the error interface.
func (e *UserNotLocalError) Error() string {
	return fmt.Sprintf("user %q is not a local user", e.UserID)
}

// IsUserNotLocal reports whether the error means a local user was required.
func IsUserNotLocal(err error) bool {
	var u *UserNotLocalError
	return errors.As(err, &u)
}

// UserNotRemoteError is returned by narrowing reads that require a remote
// user.
type UserNotRemoteError struct {
	// UserID is the offending user id.
	UserID string
}

// Error implements the error interface.
func (e *UserNotRemoteError) Error() string {
	return fmt.Sprintf("user %q is not a remote user", e.UserID)
}

// IsUserNotRemote reports whether the error means a remote user was
// required.
func IsUserNotRemote(err error) bool {
	var u *UserNotRemoteError
	return errors.As(err, &u)
}

// InvalidEmojiNameError reports an emoji name the key codec cannot encode.
type InvalidEmojiNameError struct {
	// Name is the offending name.
	Name string
}

// Error implements the error interface.
func (e *InvalidEmojiNameError) Error() string {
	return fmt.Sprintf("invalid emoji name %q: must be non-empty and contain no space", e.Name)
}

// IsInvalidEmojiName reports whether the error is an emoji name violation.
func IsInvalidEmojiName(err error) bool {
	var n *InvalidEmojiNameError
	return errors.As(err, &n)
}

// InvalidEmojiHostError reports an emoji host the key codec cannot encode.
type InvalidEmojiHostError struct {
	// Host is the offending host.
	Host string
}

// Error implements the error interface.
func (e *InvalidEmojiHostError) Error() string {
	return fmt.Sprintf("invalid emoji host %q: must be non-empty and contain no space", e.Host)
}

// IsInvalidEmojiHost reports whether the error is an emoji host violation.
func IsInvalidEmojiHost(err error) bool {
	var h *InvalidEmojiHostError
	return errors.As(err, &h)
}

// InvalidEmojiKeyError reports an encoded emoji key that cannot be decoded.
type InvalidEmojiKeyError struct {
	// Key is the offending key.
	Key string
}

// Error implements the error interface.
func (e *InvalidEmojiKeyError) Error() string {
	return fmt.Sprintf("invalid emoji key %q", e.Key)
}

// IsInvalidEmojiKey reports whether the error is an emoji key violation.
func IsInvalidEmojiKey(err error) bool {
	var k *InvalidEmojiKeyError
	return errors.As(err, &k)
}

// DuplicateEmojiError reports an emoji rename that collides with an
// existing emoji.
type DuplicateEmojiError struct {
	// Name is the colliding name.
	Name string
	// Host is the colliding host, empty for local.
	Host string
}

// Error implements the error interface.
func (e *DuplicateEmojiError) Error() string {
	if e.Host == "" {
		return fmt.Sprintf("emoji %q already exists", e.Name)
	}
	return fmt.Sprintf("emoji %q on host %q already exists", e.Name, e.Host)
}

// IsDuplicateEmoji reports whether the error is an emoji name collision.
func IsDuplicateEmoji(err error) bool {
	var d *DuplicateEmojiError
	return errors.As(err, &d)
}
