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

import "time"

// Instance is a federated peer instance, keyed by its punycoded host. Rows
// are created lazily on first contact.
type Instance struct {
	// ID is the unique instance id.
	ID string `json:"id"`
	// Host is the punycoded registered domain of the instance.
	Host string `json:"host"`
	// SoftwareName is the self-reported server software.
	SoftwareName string `json:"softwareName,omitempty"`
	// SoftwareVersion is the self-reported server version.
	SoftwareVersion string `json:"softwareVersion,omitempty"`
	// UsersCount is the number of known users on the instance.
	UsersCount int64 `json:"usersCount"`
	// IsBlocked blocks all federation with the instance.
	IsBlocked bool `json:"isBlocked"`
	// IsSilenced demotes the instance's content.
	IsSilenced bool `json:"isSilenced"`
	// IsMediaSilenced strips media from the instance's content.
	IsMediaSilenced bool `json:"isMediaSilenced"`
	// IsSuspended stops delivery to the instance.
	IsSuspended bool `json:"isSuspended"`
	// FirstRetrievedAt records when the row was created.
	FirstRetrievedAt time.Time `json:"firstRetrievedAt,omitzero"`
	// LatestRequestReceivedAt records the last inbound activity.
	LatestRequestReceivedAt time.Time `json:"latestRequestReceivedAt,omitzero"`
}

// Meta is the instance-wide configuration snapshot. Only the host policy
// lists relevant to cache invalidation are modeled here.
type Meta struct {
	// Name is the display name of this instance.
	Name string `json:"name,omitempty"`
	// BlockedHosts lists hosts blocked from federation.
	BlockedHosts []string `json:"blockedHosts,omitempty"`
	// SilencedHosts lists hosts whose content is demoted.
	SilencedHosts []string `json:"silencedHosts,omitempty"`
	// MediaSilencedHosts lists hosts whose media is stripped.
	MediaSilencedHosts []string `json:"mediaSilencedHosts,omitempty"`
	// FederationHosts restricts federation to the listed hosts when set.
	FederationHosts []string `json:"federationHosts,omitempty"`
	// BubbleInstances lists hosts included in the bubble timeline.
	BubbleInstances []string `json:"bubbleInstances,omitempty"`
}
