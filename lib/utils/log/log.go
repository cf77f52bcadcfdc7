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

// Package log provides slog helpers shared by the Quasar packages.
package log

import (
	"io"
	"log/slog"
)

// NewPackageLogger creates a [slog.Logger] from the default slog logger
// with the provided attributes preset. Packages call this once at init
// time, e.g.
//
//	var log = logutils.NewPackageLogger(quasar.ComponentKey, quasar.ComponentQuantum)
func NewPackageLogger(args ...any) *slog.Logger {
	return slog.With(args...)
}

// DiscardLogger is a logger that throws away all messages. Meant for use
// in tests.
func DiscardLogger() *slog.Logger {
	// slog.DiscardHandler requires Go 1.24; discard via io.Discard on
	// older toolchains.
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
