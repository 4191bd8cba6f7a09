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

package index

import (
	"testing"

	"github.com/RomshelfProject/romshelf-core/pkg/catalog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInsertBatchOverwritesByKey(t *testing.T) {
	t.Parallel()

	idx := NewIndex()
	idx.InsertBatch([]*Item{
		{Name: "PacMan", ArchiveSize: 1},
		{Name: "mslug", ArchiveSize: 2},
	})
	// same key, different case: overwrite, not duplicate
	idx.InsertBatch([]*Item{{Name: "pacman", ArchiveSize: 3}})

	assert.Equal(t, 2, idx.Len())
	got := idx.Get("PACMAN")
	require.NotNil(t, got)
	assert.Equal(t, int64(3), got.ArchiveSize)

	// nil and nameless entries are dropped
	idx.InsertBatch([]*Item{nil, {Name: ""}})
	assert.Equal(t, 2, idx.Len())
}

func TestItemsSorted(t *testing.T) {
	t.Parallel()

	idx := NewIndex()
	idx.InsertBatch([]*Item{{Name: "zaxxon"}, {Name: "asteroid"}, {Name: "mslug"}})

	items := idx.Items()
	require.Len(t, items, 3)
	assert.Equal(t, "asteroid", items[0].Name)
	assert.Equal(t, "mslug", items[1].Name)
	assert.Equal(t, "zaxxon", items[2].Name)
}

func TestDestinationFlags(t *testing.T) {
	t.Parallel()

	idx := NewIndex()
	idx.InsertBatch([]*Item{{Name: "pacman"}, {Name: "mslug"}})

	assert.True(t, idx.MarkInDestination("pacman"))
	assert.False(t, idx.MarkInDestination("unknown"))
	assert.True(t, idx.Get("pacman").InDestination)

	idx.ClearDestinationFlags()
	assert.False(t, idx.Get("pacman").InDestination)
}

func TestSelection(t *testing.T) {
	t.Parallel()

	idx := NewIndex()
	idx.InsertBatch([]*Item{
		{Name: "pacman", ArchiveSize: 10},
		{Name: "mslug", ArchiveSize: 99},
		{Name: "dkong", ArchiveSize: 20},
	})

	affected := idx.SelectWhere(func(i *Item) bool { return i.ArchiveSize < 50 })
	assert.Len(t, affected, 2)

	selected := idx.Selected()
	require.Len(t, selected, 2)
	assert.Equal(t, "dkong", selected[0].Name)
	assert.Equal(t, "pacman", selected[1].Name)

	idx.ClearSelection()
	assert.Empty(t, idx.Selected())
}

func TestSelectionExportImport(t *testing.T) {
	t.Parallel()

	idx := NewIndex()
	idx.InsertBatch([]*Item{{Name: "pacman"}, {Name: "mslug"}})
	idx.SelectWhere(func(i *Item) bool { return i.Name == "pacman" })

	doc, err := idx.ExportSelection()
	require.NoError(t, err)

	// import into a freshly scanned index that only partially overlaps
	fresh := NewIndex()
	fresh.InsertBatch([]*Item{{Name: "PACMAN"}, {Name: "dkong"}})

	matched, err := fresh.ImportSelection(doc)
	require.NoError(t, err)
	assert.Equal(t, 1, matched)
	assert.True(t, fresh.Get("pacman").Selected)
	assert.False(t, fresh.Get("dkong").Selected)
}

func TestImportSelectionBadDocument(t *testing.T) {
	t.Parallel()

	idx := NewIndex()
	_, err := idx.ImportSelection([]byte("not json"))
	require.Error(t, err)

	_, err = idx.ImportSelection([]byte(`{"version": 99, "names": []}`))
	require.Error(t, err)
}

func TestItemDisplayDerivations(t *testing.T) {
	t.Parallel()

	bare := &Item{Name: "pacman", ArchiveSize: 100, BlobTotalSize: 50}
	assert.Equal(t, "pacman", bare.DisplayName())
	assert.Equal(t, "", bare.DisplayYear())
	assert.Equal(t, "", bare.DisplayManufacturer())
	assert.False(t, bare.IsClone())
	assert.False(t, bare.HasMetadata())
	assert.Equal(t, int64(150), bare.TotalSize())

	rich := &Item{
		Name: "puckman",
		Metadata: &catalog.Record{
			Name:         "puckman",
			Description:  "Puck Man",
			Year:         "1980",
			Manufacturer: "Namco",
			CloneOf:      "pacman",
		},
	}
	assert.Equal(t, "Puck Man", rich.DisplayName())
	assert.Equal(t, "1980", rich.DisplayYear())
	assert.Equal(t, "Namco", rich.DisplayManufacturer())
	assert.True(t, rich.IsClone())
}
