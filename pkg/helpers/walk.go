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

package helpers

import (
	"errors"
	"io/fs"
	"os"

	"github.com/RomshelfProject/romshelf-core/pkg/helpers/syncutil"
	"github.com/charlievieth/fastwalk"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
)

// SkipAll stops a WalkFiles pass early without error.
var SkipAll = fs.SkipAll //nolint:errname // mirrors fs.SkipAll

// WalkFiles calls fn for every regular file under root, recursively.
// Unreadable entries are logged and skipped rather than aborting the walk.
// On the real filesystem the walk runs on fastwalk's parallel walker; fn
// calls are serialized either way.
func WalkFiles(fsys afero.Fs, root string, fn func(path string, info fs.FileInfo) error) error {
	if _, ok := fsys.(*afero.OsFs); ok {
		var mu syncutil.Mutex
		conf := fastwalk.Config{}
		err := fastwalk.Walk(&conf, root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				log.Warn().Err(err).Msgf("skipping unreadable entry: %s", path)
				return nil
			}
			if d.IsDir() || !d.Type().IsRegular() {
				return nil
			}
			info, err := d.Info()
			if err != nil {
				log.Warn().Err(err).Msgf("skipping unstatable file: %s", path)
				return nil
			}
			mu.Lock()
			defer mu.Unlock()
			return fn(path, info)
		})
		if errors.Is(err, fs.SkipAll) {
			return nil
		}
		return err
	}

	err := afero.Walk(fsys, root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			log.Warn().Err(err).Msgf("skipping unreadable entry: %s", path)
			return nil
		}
		if info.IsDir() || !info.Mode().IsRegular() {
			return nil
		}
		return fn(path, info)
	})
	if errors.Is(err, fs.SkipAll) {
		return nil
	}
	return err
}
