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

// Package index holds the canonical in-memory map of scanned items shared by
// the scanner, snapshot store, and reconciliation passes.
package index

import (
	"time"

	"github.com/RomshelfProject/romshelf-core/pkg/catalog"
)

// Item is one discovered archive plus its optional companion blobs. Items
// are created during a scan pass and overwritten in place on re-scan; the
// key is the archive filename minus extension, compared case-insensitively.
type Item struct {
	LastModified  time.Time       `json:"lastModified"`
	Metadata      *catalog.Record `json:"metadata,omitempty"`
	Name          string          `json:"name"`
	ArchivePath   string          `json:"archivePath,omitempty"`
	BlobPaths     []string        `json:"chdPaths,omitempty"`
	ArchiveSize   int64           `json:"archiveSize"`
	BlobTotalSize int64           `json:"chdTotalSize"`
	InDestination bool            `json:"inDestination"`
	Selected      bool            `json:"isSelected,omitempty"`
}

func (i *Item) HasArchive() bool {
	return i.ArchivePath != ""
}

func (i *Item) HasBlobs() bool {
	return len(i.BlobPaths) > 0
}

func (i *Item) HasMetadata() bool {
	return i.Metadata != nil
}

// TotalSize is the archive size plus all companion blob sizes.
func (i *Item) TotalSize() int64 {
	return i.ArchiveSize + i.BlobTotalSize
}

// DisplayName falls back to the raw item name when no catalog metadata is
// attached.
func (i *Item) DisplayName() string {
	if i.Metadata != nil && i.Metadata.Description != "" {
		return i.Metadata.Description
	}
	return i.Name
}

func (i *Item) DisplayYear() string {
	if i.Metadata != nil {
		return i.Metadata.Year
	}
	return ""
}

func (i *Item) DisplayManufacturer() string {
	if i.Metadata != nil {
		return i.Metadata.Manufacturer
	}
	return ""
}

func (i *Item) IsClone() bool {
	return i.Metadata != nil && i.Metadata.IsClone()
}
