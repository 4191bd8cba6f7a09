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

// Package snapshot persists the scanned item index to disk so later runs
// can skip a full rescan, and validates a stored snapshot against
// configuration drift before trusting it.
package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/RomshelfProject/romshelf-core/pkg/index"
	"github.com/RomshelfProject/romshelf-core/pkg/progress"
	"github.com/cespare/xxhash/v2"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
)

// FormatVersion is bumped whenever the snapshot shape changes in a way old
// readers cannot handle. A mismatch rejects the snapshot outright.
const FormatVersion = 1

// DefaultMaxAge is the snapshot retention window. Staleness is purely
// time-based, not content-based.
const DefaultMaxAge = 30 * 24 * time.Hour

// PhaseCacheLoad names the load-transfer phase for progress consumers. The
// transfer into the live index is the same cost center as scanning and uses
// the same batching discipline.
const PhaseCacheLoad = "cache-load"

const loadBatchSize = 250

// InvalidReason names why a stored snapshot was rejected. An invalid
// snapshot is treated as "no cache", never as an error.
type InvalidReason string

const (
	ReasonNone            InvalidReason = ""
	ReasonMissing         InvalidReason = "missing"
	ReasonUnreadable      InvalidReason = "unreadable"
	ReasonVersionMismatch InvalidReason = "version mismatch"
	ReasonPathChanged     InvalidReason = "source path changed"
	ReasonPathMissing     InvalidReason = "source path missing"
	ReasonExpired         InvalidReason = "expired"
	ReasonCorrupt         InvalidReason = "corrupt payload"
)

// Sources are the fingerprinted inputs a snapshot was built from. Equality
// is byte-for-byte on the raw paths; a changed path invalidates the
// snapshot regardless of whether the new path holds equivalent data.
type Sources struct {
	ArchiveDir  string
	BlobDir     string
	CatalogPath string
}

// envelope is the on-disk JSON shape. Items stay raw so the payload digest
// can be verified before decoding the (potentially large) item map.
type envelope struct {
	CreatedAt     time.Time       `json:"createdAt"`
	ArchiveDir    string          `json:"romRepositoryPath"`
	BlobDir       string          `json:"chdRepositoryPath"`
	CatalogPath   string          `json:"mameXmlPath"`
	PayloadDigest string          `json:"payloadDigest"`
	Items         json.RawMessage `json:"scannedRoms"`
	Version       int             `json:"version"`
	TotalBlobDirs int             `json:"totalChdDirectories"`
}

// Store reads and writes index snapshots at a fixed path. At most one save
// or load is in flight per process; cross-process access is out of scope.
type Store struct {
	fs     afero.Fs
	clock  clockwork.Clock
	path   string
	maxAge time.Duration
}

func NewStore(fsys afero.Fs, clock clockwork.Clock, path string) *Store {
	return &Store{
		fs:     fsys,
		clock:  clock,
		path:   path,
		maxAge: DefaultMaxAge,
	}
}

// Save persists the index. Callers treat failure as log-and-discard: caching
// is an optimization, never a correctness requirement. The snapshot is
// written to a temp file and renamed into place so a crash mid-write cannot
// corrupt the previous successful snapshot.
func (s *Store) Save(idx *index.Index, src Sources) error {
	items := make(map[string]*index.Item, idx.Len())
	for _, item := range idx.Items() {
		items[index.Key(item.Name)] = item
	}

	itemsData, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot items: %w", err)
	}

	env := envelope{
		Version:       FormatVersion,
		CreatedAt:     s.clock.Now().UTC(),
		ArchiveDir:    src.ArchiveDir,
		BlobDir:       src.BlobDir,
		CatalogPath:   src.CatalogPath,
		PayloadDigest: fmt.Sprintf("%016x", xxhash.Sum64(itemsData)),
		TotalBlobDirs: idx.TotalBlobDirs(),
		Items:         itemsData,
	}

	// Compact encoding: snapshot files can be large.
	data, err := json.Marshal(&env)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	tmpPath := s.path + ".tmp"
	if err := afero.WriteFile(s.fs, tmpPath, data, 0o600); err != nil {
		return fmt.Errorf("failed to write snapshot temp file: %w", err)
	}
	if err := s.fs.Rename(tmpPath, s.path); err != nil {
		_ = s.fs.Remove(tmpPath)
		return fmt.Errorf("failed to replace snapshot: %w", err)
	}

	log.Info().Msgf("saved snapshot: %d items", len(items))
	return nil
}

// Load reads and validates the stored snapshot, transferring its items into
// a fresh index in batches with progress updates. Any validity failure
// returns a nil index with the named reason; the only error returned is
// cancellation.
func (s *Store) Load(ctx context.Context, src Sources, sink progress.Sink) (*index.Index, InvalidReason, error) {
	if _, err := s.fs.Stat(s.path); err != nil {
		return nil, ReasonMissing, nil
	}

	data, err := afero.ReadFile(s.fs, s.path)
	if err != nil {
		log.Warn().Err(err).Msg("failed to read snapshot")
		return nil, ReasonUnreadable, nil
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Warn().Err(err).Msg("failed to decode snapshot")
		return nil, ReasonUnreadable, nil
	}

	if reason := s.validate(&env, src); reason != ReasonNone {
		log.Info().Msgf("snapshot rejected: %s", reason)
		return nil, reason, nil
	}

	var items map[string]*index.Item
	if err := json.Unmarshal(env.Items, &items); err != nil {
		log.Warn().Err(err).Msg("failed to decode snapshot items")
		return nil, ReasonCorrupt, nil
	}

	idx := index.NewIndex()
	idx.SetTotalBlobDirs(env.TotalBlobDirs)

	reporter := progress.NewReporter(sink, s.clock)
	reporter.StartPhase(PhaseCacheLoad)

	total := len(items)
	batch := make([]*index.Item, 0, loadBatchSize)
	done := 0
	for _, item := range items {
		batch = append(batch, item)
		if len(batch) >= loadBatchSize {
			if ctx.Err() != nil {
				return nil, ReasonNone, ctx.Err()
			}
			idx.InsertBatch(batch)
			done += len(batch)
			batch = batch[:0]
			reporter.Advance(loadBatchSize, done*100/max(1, total))
		}
	}
	if len(batch) > 0 {
		idx.InsertBatch(batch)
		reporter.Advance(len(batch), 100)
	}
	reporter.FinishPhase()

	log.Info().Msgf("loaded snapshot: %d items", idx.Len())
	return idx, ReasonNone, nil
}

// validate applies the staleness rules in order; the first failure
// short-circuits with its reason.
func (s *Store) validate(env *envelope, src Sources) InvalidReason {
	if env.Version != FormatVersion {
		return ReasonVersionMismatch
	}

	if env.ArchiveDir != src.ArchiveDir ||
		env.BlobDir != src.BlobDir ||
		env.CatalogPath != src.CatalogPath {
		return ReasonPathChanged
	}

	for _, p := range []string{env.ArchiveDir, env.BlobDir, env.CatalogPath} {
		if p == "" {
			continue
		}
		if _, err := s.fs.Stat(p); err != nil {
			return ReasonPathMissing
		}
	}

	age := s.clock.Now().UTC().Sub(env.CreatedAt)
	if age < 0 || age > s.maxAge {
		return ReasonExpired
	}

	if fmt.Sprintf("%016x", xxhash.Sum64(env.Items)) != env.PayloadDigest {
		return ReasonCorrupt
	}

	return ReasonNone
}
