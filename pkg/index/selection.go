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
	"encoding/json"
	"fmt"
	"time"
)

const selectionVersion = 1

// SelectionDoc is the portable form of a user selection. Selections survive
// re-scans only through explicit export and import.
type SelectionDoc struct {
	CreatedAt time.Time `json:"createdAt"`
	Names     []string  `json:"names"`
	Version   int       `json:"version"`
}

// ExportSelection serializes the names of all selected items.
func (idx *Index) ExportSelection() ([]byte, error) {
	doc := SelectionDoc{
		Version:   selectionVersion,
		CreatedAt: time.Now().UTC(),
	}
	for _, item := range idx.Selected() {
		doc.Names = append(doc.Names, item.Name)
	}

	data, err := json.MarshalIndent(&doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal selection: %w", err)
	}
	return data, nil
}

// ImportSelection marks the items named in a selection document as selected
// and reports how many names matched an item. Unknown names are ignored.
func (idx *Index) ImportSelection(data []byte) (int, error) {
	var doc SelectionDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return 0, fmt.Errorf("failed to unmarshal selection: %w", err)
	}
	if doc.Version != selectionVersion {
		return 0, fmt.Errorf("unsupported selection version: %d", doc.Version)
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	matched := 0
	for _, name := range doc.Names {
		if item, ok := idx.items[Key(name)]; ok {
			item.Selected = true
			matched++
		}
	}
	return matched, nil
}
