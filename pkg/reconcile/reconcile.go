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

// Package reconcile marks which scanned items already exist in the
// destination directory.
package reconcile

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/RomshelfProject/romshelf-core/pkg/helpers"
	"github.com/RomshelfProject/romshelf-core/pkg/index"
	"github.com/RomshelfProject/romshelf-core/pkg/scanner"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
)

// Reconcile walks the destination tree and flags every item found there.
// All InDestination flags are cleared first, so installations deleted since
// the last pass are reflected. Running twice with no destination changes
// produces the same flag state. An empty or missing destination is a no-op,
// not an error.
//
// Ownership convention: an archive-extension file belongs to the item named
// by its filename minus extension. A blob-extension file directly in the
// destination root belongs likewise; anywhere deeper it belongs to the item
// named by its immediate parent directory.
func Reconcile(fsys afero.Fs, destDir string, idx *index.Index) (int, error) {
	if destDir == "" {
		return 0, nil
	}
	if _, err := fsys.Stat(destDir); err != nil {
		return 0, nil
	}

	owners := make(map[string]struct{})
	err := helpers.WalkFiles(fsys, destDir, func(path string, _ fs.FileInfo) error {
		ext := strings.ToLower(filepath.Ext(path))
		switch {
		case helpers.Contains(scanner.ArchiveExts, ext):
			owners[index.Key(helpers.BaseNoExt(path))] = struct{}{}
		case ext == scanner.BlobExt:
			parent := filepath.Dir(path)
			if filepath.Clean(parent) == filepath.Clean(destDir) {
				owners[index.Key(helpers.BaseNoExt(path))] = struct{}{}
			} else {
				owners[index.Key(filepath.Base(parent))] = struct{}{}
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to walk destination: %w", err)
	}

	idx.ClearDestinationFlags()

	marked := 0
	for owner := range owners {
		// Orphan files in the destination are not tracked.
		if idx.MarkInDestination(owner) {
			marked++
		}
	}

	log.Debug().Msgf("reconciled destination: %d of %d names matched", marked, len(owners))
	return marked, nil
}
