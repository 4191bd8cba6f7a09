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

// Package service exposes the core operation surface consumed by
// presentation layers: scan, cache-or-scan, reconcile, match, selection and
// copy. It owns the live index and guarantees at most one scan in flight.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/RomshelfProject/romshelf-core/pkg/catalog"
	"github.com/RomshelfProject/romshelf-core/pkg/config"
	"github.com/RomshelfProject/romshelf-core/pkg/copier"
	"github.com/RomshelfProject/romshelf-core/pkg/helpers/syncutil"
	"github.com/RomshelfProject/romshelf-core/pkg/index"
	"github.com/RomshelfProject/romshelf-core/pkg/matcher"
	"github.com/RomshelfProject/romshelf-core/pkg/progress"
	"github.com/RomshelfProject/romshelf-core/pkg/reconcile"
	"github.com/RomshelfProject/romshelf-core/pkg/scanner"
	"github.com/RomshelfProject/romshelf-core/pkg/snapshot"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
)

// PhaseCatalogParse names the catalog parse phase for progress consumers.
const PhaseCatalogParse = "catalog-parse"

// ErrScanInProgress is returned when a scan is requested while another is
// still running. Concurrent scans against the same index are not allowed.
var ErrScanInProgress = errors.New("a scan is already in progress")

// Core is the engine behind the presentation layer. All methods are safe
// for concurrent use.
type Core struct {
	cfg      *config.Instance
	fs       afero.Fs
	clock    clockwork.Clock
	parser   *catalog.Parser
	scanner  *scanner.Scanner
	copier   *copier.Copier
	idx      *index.Index
	lookup   *catalog.Lookup
	mu       syncutil.RWMutex
	scanning atomic.Bool
}

func New(cfg *config.Instance, fsys afero.Fs, clock clockwork.Clock) *Core {
	return &Core{
		cfg:     cfg,
		fs:      fsys,
		clock:   clock,
		parser:  catalog.NewParser(fsys),
		scanner: scanner.New(fsys, clock),
		copier:  copier.New(fsys, clock),
		idx:     index.NewIndex(),
	}
}

// Index returns the live item index.
func (c *Core) Index() *index.Index {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.idx
}

func (c *Core) store() *snapshot.Store {
	return snapshot.NewStore(c.fs, c.clock, c.cfg.CachePath())
}

func (c *Core) sources() snapshot.Sources {
	return snapshot.Sources{
		ArchiveDir:  c.cfg.ArchiveDir(),
		BlobDir:     c.cfg.BlobDir(),
		CatalogPath: c.cfg.CatalogPath(),
	}
}

// Scan runs a full filesystem scan and replaces the live index, then
// persists a snapshot best-effort. A second concurrent scan request is
// rejected with ErrScanInProgress rather than interleaving writes.
// Cancellation surfaces as ctx.Err(), distinct from failure.
func (c *Core) Scan(ctx context.Context, sink progress.Sink) error {
	if !c.scanning.CompareAndSwap(false, true) {
		return ErrScanInProgress
	}
	defer c.scanning.Store(false)

	if err := c.cfg.Validate(); err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}

	lookup, err := c.buildLookup(ctx, sink)
	if err != nil {
		return err
	}

	idx, err := c.scanner.Scan(ctx, scanner.Options{
		ArchiveDir: c.cfg.ArchiveDir(),
		BlobDir:    c.cfg.BlobDir(),
		Lookup:     lookup,
		Sink:       sink,
	})
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.idx = idx
	c.lookup = lookup
	c.mu.Unlock()

	// Caching is best-effort: a full disk or bad permissions never fails
	// the scan that produced the index.
	if err := c.store().Save(idx, c.sources()); err != nil {
		log.Warn().Err(err).Msg("failed to save snapshot")
	}

	return nil
}

// LoadFromCacheOrScan loads the persisted snapshot when it is still valid
// for the current settings, falling back to a full scan otherwise.
func (c *Core) LoadFromCacheOrScan(ctx context.Context, sink progress.Sink) error {
	idx, reason, err := c.store().Load(ctx, c.sources(), sink)
	if err != nil {
		return err
	}
	if idx != nil {
		lookup, err := c.buildLookup(ctx, sink)
		if err != nil {
			return err
		}
		c.mu.Lock()
		c.idx = idx
		c.lookup = lookup
		c.mu.Unlock()
		return nil
	}

	log.Info().Msgf("no usable snapshot (%s), scanning", reason)
	return c.Scan(ctx, sink)
}

// buildLookup parses the configured catalog into a lookup, reporting parse
// progress through sink. Returns nil when no catalog is configured.
func (c *Core) buildLookup(ctx context.Context, sink progress.Sink) (*catalog.Lookup, error) {
	path := c.cfg.CatalogPath()
	if path == "" {
		return nil, nil //nolint:nilnil // no catalog configured is a valid state
	}

	// Counting pass first so parse progress can report a real percentage.
	total, err := c.parser.CountGames(ctx, path)
	if err != nil {
		return nil, err
	}

	if sink == nil {
		sink = progress.Discard
	}
	lookup, result, err := c.parser.ParseLookup(ctx, path, catalog.ParseOptions{
		Total: total,
		OnProgress: func(percent, processed int) {
			sink.Report(progress.Update{Phase: PhaseCatalogParse, Percent: percent, Items: processed})
		},
	})
	if err != nil {
		return nil, err
	}

	log.Info().Msgf("parsed catalog: %d records, %d skipped, %d malformed",
		result.Records, result.Skipped, result.Malformed)
	return lookup, nil
}

// ReconcileDestination recomputes every item's InDestination flag against
// the configured destination and returns how many items were marked.
func (c *Core) ReconcileDestination() (int, error) {
	return reconcile.Reconcile(c.fs, c.cfg.DestDir(), c.Index())
}

// Match resolves an item name against the current catalog lookup.
func (c *Core) Match(name string) *catalog.Record {
	c.mu.RLock()
	lookup := c.lookup
	c.mu.RUnlock()
	return matcher.Match(name, lookup)
}

// SelectWhere marks matching items selected and returns them.
func (c *Core) SelectWhere(pred func(*index.Item) bool) []*index.Item {
	return c.Index().SelectWhere(pred)
}

// ExportSelection serializes the current selection.
func (c *Core) ExportSelection() ([]byte, error) {
	return c.Index().ExportSelection()
}

// ImportSelection applies a previously exported selection, returning the
// number of names that matched items.
func (c *Core) ImportSelection(data []byte) (int, error) {
	return c.Index().ImportSelection(data)
}

// CopySelected copies the selected items to the configured destination and
// reconciles afterwards so InDestination flags reflect the copies.
func (c *Core) CopySelected(ctx context.Context, sink progress.Sink) (*copier.Report, error) {
	report, err := c.copier.Copy(ctx, c.Index().Selected(), copier.Options{
		DestDir:   c.cfg.DestDir(),
		CopyBlobs: c.cfg.CopyBlobs(),
		Overwrite: c.cfg.OverwriteExisting(),
		Sink:      sink,
	})
	if err != nil {
		return report, err
	}

	if _, err := c.ReconcileDestination(); err != nil {
		log.Warn().Err(err).Msg("post-copy reconcile failed")
	}
	return report, nil
}

// VerifySelected checks the selected items' archives against catalog
// checksums.
func (c *Core) VerifySelected(ctx context.Context) (*copier.VerifyResult, error) {
	return c.copier.Verify(ctx, c.Index().Selected())
}
