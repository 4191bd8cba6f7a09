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
	"strings"

	"github.com/RomshelfProject/romshelf-core/pkg/helpers"
	"github.com/RomshelfProject/romshelf-core/pkg/helpers/syncutil"
)

// Index is the single shared mutable map of scanned items. All mutation is
// serialized at batch granularity under one coarse lock; workers accumulate
// their own slices and insert completed batches.
type Index struct {
	items         map[string]*Item
	totalBlobDirs int
	mu            syncutil.RWMutex
}

func NewIndex() *Index {
	return &Index{items: make(map[string]*Item)}
}

// Key returns the canonical map key for an item name.
func Key(name string) string {
	return strings.ToLower(name)
}

// InsertBatch adds a completed worker batch under a single lock acquisition.
// Duplicate keys are last-write-wins overwrites, never duplicates.
func (idx *Index) InsertBatch(items []*Item) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	for _, item := range items {
		if item == nil || item.Name == "" {
			continue
		}
		idx.items[Key(item.Name)] = item
	}
}

// Get returns the item for a name, or nil if absent.
func (idx *Index) Get(name string) *Item {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.items[Key(name)]
}

func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.items)
}

// Items returns all items sorted by key.
func (idx *Index) Items() []*Item {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	items := make([]*Item, 0, len(idx.items))
	for _, k := range helpers.AlphaMapKeys(idx.items) {
		items = append(items, idx.items[k])
	}
	return items
}

// TotalBlobDirs is the number of blob-bearing subdirectories observed at
// scan time. It counts directories with qualifying files, not directories
// that matched an archive, so it cannot be recomputed from the items alone.
func (idx *Index) TotalBlobDirs() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.totalBlobDirs
}

func (idx *Index) SetTotalBlobDirs(n int) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.totalBlobDirs = n
}

// ClearDestinationFlags unconditionally resets every item's InDestination
// flag. Reconciliation always clears before re-marking so externally deleted
// installations are reflected.
func (idx *Index) ClearDestinationFlags() {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	for _, item := range idx.items {
		item.InDestination = false
	}
}

// MarkInDestination flags the named item as present in the destination.
// Returns false when the name matches no item.
func (idx *Index) MarkInDestination(name string) bool {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	item, ok := idx.items[Key(name)]
	if !ok {
		return false
	}
	item.InDestination = true
	return true
}

// SelectWhere marks every item satisfying pred as selected and returns the
// affected items.
func (idx *Index) SelectWhere(pred func(*Item) bool) []*Item {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	var affected []*Item
	for _, item := range idx.items {
		if pred(item) {
			item.Selected = true
			affected = append(affected, item)
		}
	}
	return affected
}

// ClearSelection unmarks every selected item.
func (idx *Index) ClearSelection() {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	for _, item := range idx.items {
		item.Selected = false
	}
}

// Selected returns the currently selected items sorted by key.
func (idx *Index) Selected() []*Item {
	items := idx.Items()
	selected := make([]*Item, 0)
	for _, item := range items {
		if item.Selected {
			selected = append(selected, item)
		}
	}
	return selected
}
