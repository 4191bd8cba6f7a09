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

// Package catalog streams MAME-style XML game lists into structured records
// and builds the name-keyed lookup used during scanning.
package catalog

import "strings"

// RomFile is one expected archive member of a catalog record.
type RomFile struct {
	Name string `json:"name"`
	CRC  string `json:"crc,omitempty"`
	SHA1 string `json:"sha1,omitempty"`
	MD5  string `json:"md5,omitempty"`
	Size int64  `json:"size,omitempty"`
}

// DiskFile is one expected companion disk image of a catalog record.
type DiskFile struct {
	Name string `json:"name"`
	SHA1 string `json:"sha1,omitempty"`
	MD5  string `json:"md5,omitempty"`
}

// Record is a single game entry from the reference catalog. Records are
// built once per parse pass and immutable afterwards; BIOS and device
// entries are filtered out by the parser and never materialize.
type Record struct {
	Name         string     `json:"name"`
	Description  string     `json:"description,omitempty"`
	Year         string     `json:"year,omitempty"`
	Manufacturer string     `json:"manufacturer,omitempty"`
	Category     string     `json:"category,omitempty"`
	CloneOf      string     `json:"cloneOf,omitempty"`
	RomFiles     []RomFile  `json:"romFiles,omitempty"`
	DiskFiles    []DiskFile `json:"diskFiles,omitempty"`
}

// IsClone reports whether the record is a clone of another parent record.
func (r *Record) IsClone() bool {
	return r.CloneOf != ""
}

// HasDisks reports whether the record expects companion disk images.
func (r *Record) HasDisks() bool {
	return len(r.DiskFiles) > 0
}

// Lookup is a case-insensitive name-keyed map of catalog records. It is
// built once after a parse pass and treated as read-only by consumers.
type Lookup struct {
	records map[string]*Record
}

func NewLookup() *Lookup {
	return &Lookup{records: make(map[string]*Record)}
}

// Add inserts a record keyed by lowercased name. Duplicate names are
// last-write-wins.
func (l *Lookup) Add(r *Record) {
	if r == nil || r.Name == "" {
		return
	}
	l.records[strings.ToLower(r.Name)] = r
}

// Get returns the record for a name, or nil if absent.
func (l *Lookup) Get(name string) *Record {
	return l.records[strings.ToLower(name)]
}

func (l *Lookup) Len() int {
	return len(l.records)
}
