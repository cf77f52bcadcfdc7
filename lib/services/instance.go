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

// GetInstance returns the federated instance row for the host, creating it
// on first contact. The short entry lifetime keeps moderation flag changes
// visible promptly even without an explicit invalidation.
func (s *Service) GetInstance(ctx context.Context, host string) (*types.Instance, error) {
	puny, err := Punyhost(host)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	inst, err := s.instances.Fetch(ctx, puny)
	return inst, trace.Wrap(err)
}

// IsInstanceBlocked reports whether federation with the host is blocked.
func (s *Service) IsInstanceBlocked(ctx context.Context, host string) (bool, error) {
	inst, err := s.GetInstance(ctx, host)
	if err != nil {
		return false, trace.Wrap(err)
	}
	return inst.IsBlocked, nil
}

// IsInstanceSilenced reports whether the host's content is demoted.
func (s *Service) IsInstanceSilenced(ctx context.Context, host string) (bool, error) {
	inst, err := s.GetInstance(ctx, host)
	if err != nil {
		return false, trace.Wrap(err)
	}
	return inst.IsSilenced, nil
}

// IsInstanceMediaSilenced reports whether media from the host is stripped.
func (s *Service) IsInstanceMediaSilenced(ctx context.Context, host string) (bool, error) {
	inst, err := s.GetInstance(ctx, host)
	if err != nil {
		return false, trace.Wrap(err)
	}
	return inst.IsMediaSilenced, nil
}
