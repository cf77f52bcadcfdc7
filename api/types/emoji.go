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

package types

// Emoji is a custom emoji, either local (Host empty) or copied from a remote
// instance.
type Emoji struct {
	// ID is the unique emoji id.
	ID string `json:"id"`
	// Name is the short name the emoji is referenced by, without colons.
	Name string `json:"name"`
	// Host is the origin instance, empty for local emojis.
	Host string `json:"host,omitempty"`
	// OriginalURL is the upstream image URL.
	OriginalURL string `json:"originalUrl"`
	// PublicURL is the locally proxied image URL, preferred when set.
	PublicURL string `json:"publicUrl,omitempty"`
	// Category is the grouping shown in pickers.
	Category string `json:"category,omitempty"`
	// Aliases are alternative names the emoji matches.
	Aliases []string `json:"aliases,omitempty"`
	// License is the attached license text.
	License string `json:"license,omitempty"`
	// IsSensitive hides the emoji behind a sensitivity gate.
	IsSensitive bool `json:"isSensitive"`
	// LocalOnly prevents the emoji from federating.
	LocalOnly bool `json:"localOnly"`
}

// DisplayURL returns the URL clients should render, preferring the proxied
// copy over the origin.
func (e *Emoji) DisplayURL() string {
	if e.PublicURL != "" {
		return e.PublicURL
	}
	return e.OriginalURL
}
