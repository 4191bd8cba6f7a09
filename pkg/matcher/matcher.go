// Romshelf
// Copyright (c) 2026 The Romshelf Project Contributors.
// SPDX-License-Identifier: GPL-3.0-or-later
//
// This file is part of Romshelf.
//
// Romshelf is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Romshelf is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with Romshelf.  If not, see <http://www.gnu.org/licenses/>.

// Package matcher resolves scanned item names to catalog records using an
// exact lookup followed by a fixed, ordered list of deterministic name
// transforms. Partial and fuzzy matching are deliberately not supported:
// against a catalog of hundreds of thousands of entries they produce false
// positives that are worse than no match at all.
package matcher

import (
	"regexp"
	"strings"

	"github.com/RomshelfProject/romshelf-core/pkg/catalog"
)

// bracketTagRe strips region/revision tags like "(USA)", "(Europe)",
// "(Rev 1)", "(v1.1)", "[!]", "[a1]".
var bracketTagRe = regexp.MustCompile(`\s*[([][^)\]]*[)\]]`)

// trailingVersionRe strips trailing version tokens like "v1.1", "rev3", "r2".
var trailingVersionRe = regexp.MustCompile(`(?i)[ _-](v[0-9][0-9.]*|rev[ ]?[0-9]+|r[0-9]+)$`)

// transforms are tried in order after an exact lookup misses. Each is total
// and deterministic.
var transforms = []func(string) string{
	func(s string) string { return strings.ReplaceAll(s, "_", "") },
	func(s string) string { return strings.ReplaceAll(s, "-", "") },
	strings.ToLower,
	strings.ToUpper,
	func(s string) string { return strings.TrimSpace(bracketTagRe.ReplaceAllString(s, "")) },
	func(s string) string { return strings.TrimSpace(trailingVersionRe.ReplaceAllString(s, "")) },
}

// Match finds the catalog record for a scanned item name, or nil when no
// deterministic match exists. The exact (case-insensitive) lookup always
// wins; transforms are only consulted when it misses, and the first hit is
// returned.
func Match(name string, lookup *catalog.Lookup) *catalog.Record {
	if lookup == nil || name == "" {
		return nil
	}

	if r := lookup.Get(name); r != nil {
		return r
	}

	for _, transform := range transforms {
		candidate := transform(name)
		if candidate == "" || candidate == name {
			continue
		}
		if r := lookup.Get(candidate); r != nil {
			return r
		}
	}

	return nil
}
