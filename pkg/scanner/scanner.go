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

// Package scanner walks the archive and companion-blob repositories and
// builds the in-memory item index.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/RomshelfProject/romshelf-core/pkg/catalog"
	"github.com/RomshelfProject/romshelf-core/pkg/helpers"
	"github.com/RomshelfProject/romshelf-core/pkg/helpers/syncutil"
	"github.com/RomshelfProject/romshelf-core/pkg/index"
	"github.com/RomshelfProject/romshelf-core/pkg/matcher"
	"github.com/RomshelfProject/romshelf-core/pkg/progress"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"
)

const (
	// BlobExt is the extension of companion disk-image files.
	BlobExt = ".chd"

	// PhaseBlobIndex and PhaseArchiveScan name the two sequential scan
	// phases for progress consumers.
	PhaseBlobIndex   = "companion-index"
	PhaseArchiveScan = "archive-scan"

	// archiveBatchSize bounds how many items a worker accumulates before
	// merging into the shared index under the lock.
	archiveBatchSize = 100
)

// ArchiveExts is the fixed allow-list of archive file extensions.
var ArchiveExts = []string{".zip", ".7z"}

// ErrNotFound is returned when the archive repository does not exist.
var ErrNotFound = errors.New("archive repository not found")

// Options configures a scan pass. BlobDir and Lookup are optional; a missing
// blob repository skips companion matching, and a nil lookup skips inline
// metadata matching.
type Options struct {
	Lookup     *catalog.Lookup
	Sink       progress.Sink
	ArchiveDir string
	BlobDir    string
}

// Scanner performs the two-phase filesystem scan. The companion pre-index
// fully completes before the archive scan begins, because attaching blobs
// inline depends on the completed lookup.
type Scanner struct {
	fs    afero.Fs
	clock clockwork.Clock
	// workers bounds parallelism for the archive phase; the blob phase runs
	// at half this since it is I/O-bound across large files.
	workers int
}

func New(fsys afero.Fs, clock clockwork.Clock) *Scanner {
	return &Scanner{
		fs:      fsys,
		clock:   clock,
		workers: runtime.NumCPU(),
	}
}

type blobEntry struct {
	paths     []string
	totalSize int64
}

// Scan builds a fresh index from the configured repositories. Cancellation
// is observed at batch boundaries and surfaces as ctx.Err(), distinct from
// scan failure.
func (s *Scanner) Scan(ctx context.Context, opts Options) (*index.Index, error) {
	if _, err := s.fs.Stat(opts.ArchiveDir); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, opts.ArchiveDir)
	}

	reporter := progress.NewReporter(opts.Sink, s.clock)
	idx := index.NewIndex()

	blobs, err := s.indexBlobDirs(ctx, opts.BlobDir, reporter)
	if err != nil {
		return nil, err
	}
	idx.SetTotalBlobDirs(len(blobs))

	if err := s.scanArchives(ctx, opts, blobs, idx, reporter); err != nil {
		return nil, err
	}

	log.Info().Msgf("scan complete: %d items, %d blob directories", idx.Len(), len(blobs))
	return idx, nil
}

// indexBlobDirs enumerates immediate subdirectories of the blob repository
// and collects qualifying blob files per directory. Directories with no
// qualifying files are dropped. An absent blob repository is not an error.
func (s *Scanner) indexBlobDirs(
	ctx context.Context,
	blobDir string,
	reporter *progress.Reporter,
) (map[string]*blobEntry, error) {
	blobs := make(map[string]*blobEntry)
	if blobDir == "" {
		return blobs, nil
	}
	if _, err := s.fs.Stat(blobDir); err != nil {
		log.Debug().Msgf("blob repository missing, skipping companion index: %s", blobDir)
		return blobs, nil
	}

	entries, err := afero.ReadDir(s.fs, blobDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read blob repository: %w", err)
	}

	var dirs []string
	for _, entry := range entries {
		if entry.IsDir() {
			dirs = append(dirs, entry.Name())
		}
	}

	reporter.StartPhase(PhaseBlobIndex)

	var mu syncutil.Mutex
	var processed atomic.Int64
	total := len(dirs)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, s.workers/2))

	for _, dir := range dirs {
		dir := dir
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}

			entry := &blobEntry{}
			root := filepath.Join(blobDir, dir)
			err := helpers.WalkFiles(s.fs, root, func(path string, info fs.FileInfo) error {
				if strings.EqualFold(filepath.Ext(path), BlobExt) {
					entry.paths = append(entry.paths, path)
					entry.totalSize += info.Size()
				}
				return nil
			})
			if err != nil {
				return fmt.Errorf("failed to walk blob directory %s: %w", root, err)
			}

			done := int(processed.Add(1))
			if len(entry.paths) > 0 {
				sort.Strings(entry.paths)
				mu.Lock()
				blobs[index.Key(dir)] = entry
				mu.Unlock()
			}
			reporter.Advance(1, done*100/max(1, total))

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	reporter.FinishPhase()
	return blobs, nil
}

// scanArchives enumerates immediate files of the archive repository,
// materializes items, attaches companion blobs by key, and matches catalog
// metadata inline when a lookup is supplied.
func (s *Scanner) scanArchives(
	ctx context.Context,
	opts Options,
	blobs map[string]*blobEntry,
	idx *index.Index,
	reporter *progress.Reporter,
) error {
	entries, err := afero.ReadDir(s.fs, opts.ArchiveDir)
	if err != nil {
		return fmt.Errorf("failed to read archive repository: %w", err)
	}

	var files []fs.FileInfo
	for _, entry := range entries {
		if !entry.IsDir() && isArchive(entry.Name()) {
			files = append(files, entry)
		}
	}

	reporter.StartPhase(PhaseArchiveScan)

	var processed atomic.Int64
	total := len(files)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, s.workers))

	for start := 0; start < len(files); start += archiveBatchSize {
		batch := files[start:min(start+archiveBatchSize, len(files))]
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}

			items := make([]*index.Item, 0, len(batch))
			for _, info := range batch {
				items = append(items, s.buildItem(info, opts, blobs))
			}
			idx.InsertBatch(items)

			done := int(processed.Add(int64(len(batch))))
			reporter.Advance(len(batch), done*100/max(1, total))

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	reporter.FinishPhase()
	return nil
}

func (s *Scanner) buildItem(info fs.FileInfo, opts Options, blobs map[string]*blobEntry) *index.Item {
	name := helpers.BaseNoExt(info.Name())
	item := &index.Item{
		Name:         name,
		ArchivePath:  filepath.Join(opts.ArchiveDir, info.Name()),
		ArchiveSize:  info.Size(),
		LastModified: info.ModTime().UTC(),
	}

	if entry, ok := blobs[index.Key(name)]; ok {
		item.BlobPaths = entry.paths
		item.BlobTotalSize = entry.totalSize
	}

	if opts.Lookup != nil {
		item.Metadata = matcher.Match(name, opts.Lookup)
	}

	return item
}

// CountBlobDirs counts blob-repository subdirectories containing at least
// one qualifying file, without materializing per-file detail. Used for
// pre-flight sizing.
func (s *Scanner) CountBlobDirs(ctx context.Context, blobDir string) (int, error) {
	if blobDir == "" {
		return 0, nil
	}
	if _, err := s.fs.Stat(blobDir); err != nil {
		return 0, nil
	}

	entries, err := afero.ReadDir(s.fs, blobDir)
	if err != nil {
		return 0, fmt.Errorf("failed to read blob repository: %w", err)
	}

	count := 0
	for _, entry := range entries {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		if !entry.IsDir() {
			continue
		}

		found := false
		root := filepath.Join(blobDir, entry.Name())
		err := helpers.WalkFiles(s.fs, root, func(path string, _ fs.FileInfo) error {
			if strings.EqualFold(filepath.Ext(path), BlobExt) {
				found = true
				return helpers.SkipAll
			}
			return nil
		})
		if err != nil {
			return 0, fmt.Errorf("failed to walk blob directory %s: %w", root, err)
		}
		if found {
			count++
		}
	}

	return count, nil
}

func isArchive(name string) bool {
	return helpers.Contains(ArchiveExts, strings.ToLower(filepath.Ext(name)))
}
