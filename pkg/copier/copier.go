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

// Package copier copies selected items into the destination tree and
// verifies archive contents against catalog checksums.
package copier

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/RomshelfProject/romshelf-core/pkg/helpers"
	"github.com/RomshelfProject/romshelf-core/pkg/index"
	"github.com/RomshelfProject/romshelf-core/pkg/progress"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
)

// PhaseCopy names the copy phase for progress consumers.
const PhaseCopy = "copy"

// maxReportedErrors caps the detail list surfaced to callers so dialog
// content stays bounded; the counts are always complete.
const maxReportedErrors = 10

// ItemError records one failed file within a batch copy.
type ItemError struct {
	Err  error
	Item string
	Path string
}

// Report aggregates a batch copy. Individual file failures are accumulated
// per item; one failure never aborts the remaining batch.
type Report struct {
	Errors  []ItemError
	Copied  int
	Skipped int
	Failed  int
}

// TruncatedErrors returns at most maxReportedErrors entries for display.
func (r *Report) TruncatedErrors() []ItemError {
	if len(r.Errors) <= maxReportedErrors {
		return r.Errors
	}
	return r.Errors[:maxReportedErrors]
}

// Options configures a batch copy.
type Options struct {
	Sink      progress.Sink
	DestDir   string
	CopyBlobs bool
	Overwrite bool
}

// Copier performs destination copies and checksum verification.
type Copier struct {
	fs    afero.Fs
	clock clockwork.Clock
}

func New(fsys afero.Fs, clock clockwork.Clock) *Copier {
	return &Copier{fs: fsys, clock: clock}
}

// Copy copies each item's archive (and, optionally, companion blobs into a
// same-named subdirectory) to the destination. Existing files are skipped
// unless Overwrite is set. Cancellation is checked between items.
func (c *Copier) Copy(ctx context.Context, items []*index.Item, opts Options) (*Report, error) {
	if opts.DestDir == "" {
		return nil, fmt.Errorf("destination path is not set")
	}
	if err := c.fs.MkdirAll(opts.DestDir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create destination: %w", err)
	}

	reporter := progress.NewReporter(opts.Sink, c.clock)
	reporter.StartPhase(PhaseCopy)

	report := &Report{}
	for i, item := range items {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}

		c.copyItem(item, opts, report)
		reporter.Advance(1, (i+1)*100/len(items))
	}

	reporter.FinishPhase()
	log.Info().Msgf("copy complete: %d copied, %d skipped, %d failed",
		report.Copied, report.Skipped, report.Failed)
	return report, nil
}

func (c *Copier) copyItem(item *index.Item, opts Options, report *Report) {
	if item.HasArchive() {
		dest := filepath.Join(opts.DestDir, filepath.Base(item.ArchivePath))
		c.copyOne(item.Name, item.ArchivePath, dest, opts.Overwrite, report)
	}

	if !opts.CopyBlobs || !item.HasBlobs() {
		return
	}

	blobDir := filepath.Join(opts.DestDir, item.Name)
	if err := c.fs.MkdirAll(blobDir, 0o750); err != nil {
		report.Failed++
		report.Errors = append(report.Errors, ItemError{Item: item.Name, Path: blobDir, Err: err})
		return
	}
	for _, blob := range item.BlobPaths {
		dest := filepath.Join(blobDir, filepath.Base(blob))
		c.copyOne(item.Name, blob, dest, opts.Overwrite, report)
	}
}

func (c *Copier) copyOne(itemName, src, dest string, overwrite bool, report *Report) {
	if !overwrite {
		if _, err := c.fs.Stat(dest); err == nil {
			report.Skipped++
			return
		}
	}

	if err := helpers.CopyFile(c.fs, src, dest); err != nil {
		log.Warn().Err(err).Msgf("failed to copy %s", src)
		report.Failed++
		report.Errors = append(report.Errors, ItemError{Item: itemName, Path: src, Err: err})
		return
	}
	report.Copied++
}

// Mismatch records one archive member whose checksum disagreed with the
// catalog.
type Mismatch struct {
	Item     string
	File     string
	Expected string
	Actual   string
}

// VerifyResult aggregates a verification pass.
type VerifyResult struct {
	Mismatches []Mismatch
	Checked    int
	Passed     int
	Failed     int
	NoMetadata int
}

// Verify compares each item's zip entries against the CRCs its catalog
// record expects. Items without metadata or without an archive are counted
// but not failed. Cancellation is checked between items.
func (c *Copier) Verify(ctx context.Context, items []*index.Item) (*VerifyResult, error) {
	result := &VerifyResult{}

	for _, item := range items {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		if !item.HasMetadata() || !item.HasArchive() || !helpers.IsZip(item.ArchivePath) {
			result.NoMetadata++
			continue
		}

		result.Checked++
		entries, err := helpers.ListZip(item.ArchivePath)
		if err != nil {
			result.Failed++
			result.Mismatches = append(result.Mismatches, Mismatch{
				Item: item.Name, File: filepath.Base(item.ArchivePath),
				Expected: "readable archive", Actual: err.Error(),
			})
			continue
		}

		crcs := make(map[string]uint32, len(entries))
		for _, e := range entries {
			crcs[strings.ToLower(e.Name)] = e.CRC32
		}

		ok := true
		for _, rom := range item.Metadata.RomFiles {
			if rom.CRC == "" {
				continue
			}
			actual, found := crcs[strings.ToLower(rom.Name)]
			actualHex := fmt.Sprintf("%08x", actual)
			if !found || !strings.EqualFold(actualHex, rom.CRC) {
				ok = false
				if !found {
					actualHex = "missing"
				}
				result.Mismatches = append(result.Mismatches, Mismatch{
					Item: item.Name, File: rom.Name,
					Expected: strings.ToLower(rom.CRC), Actual: actualHex,
				})
			}
		}

		if ok {
			result.Passed++
		} else {
			result.Failed++
		}
	}

	return result, nil
}
