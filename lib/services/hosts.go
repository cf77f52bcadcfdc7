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
	"strings"

	"github.com/gravitational/trace"
	"golang.org/x/net/idna"
)

// Punyhost returns the punycoded, lowercased form of a host. Hosts arrive
// from handles and remote activities in whatever casing and script the
// sender used; cache keys need one canonical form.
func Punyhost(host string) (string, error) {
	if host == "" {
		return "", nil
	}
	out, err := idna.Lookup.ToASCII(strings.ToLower(host))
	if err != nil {
		return "", trace.BadParameter("invalid host %q: %v", host, err)
	}
	return out, nil
}

// normalizeHost canonicalizes a host for keying: punycoded and lowercased,
// with the local server's own host collapsed to empty. localHost is already
// in punycoded form.
func normalizeHost(host, localHost string) (string, error) {
	puny, err := Punyhost(host)
	if err != nil {
		return "", trace.Wrap(err)
	}
	if puny == localHost {
		return "", nil
	}
	return puny, nil
}

// acctKey encodes a normalized (username, host) pair into the userByAcct
// cache key: "username" for local users, "username@host" otherwise.
func acctKey(username, host string) string {
	username = strings.ToLower(username)
	if host == "" {
		return username
	}
	return username + "@" + host
}

// ParseAcct splits an acct handle into username and raw host. A leading "@"
// is tolerated; the host part is empty when absent.
func ParseAcct(acct string) (username, host string) {
	acct = strings.TrimPrefix(acct, "@")
	if i := strings.Index(acct, "@"); i >= 0 {
		return acct[:i], acct[i+1:]
	}
	return acct, ""
}
