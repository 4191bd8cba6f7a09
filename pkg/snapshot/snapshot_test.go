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

package snapshot

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/RomshelfProject/romshelf-core/pkg/catalog"
	"github.com/RomshelfProject/romshelf-core/pkg/index"
	"github.com/jonboulle/clockwork"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const snapshotPath = "/cache/index.json"

func testSources() Sources {
	return Sources{
		ArchiveDir:  "/roms",
		BlobDir:     "/chds",
		CatalogPath: "/mame.xml",
	}
}

// newFixture builds a mem fs with every source path present, a fake clock,
// and an index with two items, one carrying catalog metadata.
func newFixture(t *testing.T) (afero.Fs, *clockwork.FakeClock, *index.Index) {
	t.Helper()

	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("/roms", 0o755))
	require.NoError(t, fs.MkdirAll("/chds", 0o755))
	require.NoError(t, afero.WriteFile(fs, "/mame.xml", []byte("<mame/>"), 0o644))

	idx := index.NewIndex()
	idx.SetTotalBlobDirs(3)
	idx.InsertBatch([]*index.Item{
		{
			Name:        "pacman",
			ArchivePath: "/roms/pacman.zip",
			ArchiveSize: 10000,
			Metadata:    &catalog.Record{Name: "pacman", Description: "Pac-Man", Year: "1980"},
		},
		{
			Name:          "kinst",
			ArchivePath:   "/roms/kinst.zip",
			ArchiveSize:   200,
			BlobPaths:     []string{"/chds/kinst/kinst.chd"},
			BlobTotalSize: 500,
		},
	})

	return fs, clockwork.NewFakeClock(), idx
}

func TestSaveLoadRoundTrip(t *testing.T) {
	t.Parallel()

	fs, clock, idx := newFixture(t)
	store := NewStore(fs, clock, snapshotPath)

	require.NoError(t, store.Save(idx, testSources()))

	loaded, reason, err := store.Load(context.Background(), testSources(), nil)
	require.NoError(t, err)
	require.Equal(t, ReasonNone, reason)
	require.NotNil(t, loaded)

	assert.Equal(t, idx.Items(), loaded.Items())
	assert.Equal(t, idx.TotalBlobDirs(), loaded.TotalBlobDirs())

	// no temp file left behind
	exists, err := afero.Exists(fs, snapshotPath+".tmp")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestLoadMissing(t *testing.T) {
	t.Parallel()

	fs, clock, _ := newFixture(t)
	store := NewStore(fs, clock, snapshotPath)

	loaded, reason, err := store.Load(context.Background(), testSources(), nil)
	require.NoError(t, err)
	assert.Nil(t, loaded)
	assert.Equal(t, ReasonMissing, reason)
}

func TestLoadUnreadable(t *testing.T) {
	t.Parallel()

	fs, clock, _ := newFixture(t)
	require.NoError(t, afero.WriteFile(fs, snapshotPath, []byte("not json{"), 0o600))
	store := NewStore(fs, clock, snapshotPath)

	loaded, reason, err := store.Load(context.Background(), testSources(), nil)
	require.NoError(t, err)
	assert.Nil(t, loaded)
	assert.Equal(t, ReasonUnreadable, reason)
}

func TestLoadVersionMismatch(t *testing.T) {
	t.Parallel()

	fs, clock, idx := newFixture(t)
	store := NewStore(fs, clock, snapshotPath)
	require.NoError(t, store.Save(idx, testSources()))

	tamperEnvelope(t, fs, func(env map[string]any) {
		env["version"] = FormatVersion + 1
	})

	_, reason, err := store.Load(context.Background(), testSources(), nil)
	require.NoError(t, err)
	assert.Equal(t, ReasonVersionMismatch, reason)
}

func TestLoadPathChanged(t *testing.T) {
	t.Parallel()

	fs, clock, idx := newFixture(t)
	store := NewStore(fs, clock, snapshotPath)
	require.NoError(t, store.Save(idx, testSources()))

	changed := testSources()
	changed.ArchiveDir = "/other-roms"
	require.NoError(t, fs.MkdirAll("/other-roms", 0o755))

	_, reason, err := store.Load(context.Background(), changed, nil)
	require.NoError(t, err)
	assert.Equal(t, ReasonPathChanged, reason)
}

func TestLoadPathMissing(t *testing.T) {
	t.Parallel()

	fs, clock, idx := newFixture(t)
	store := NewStore(fs, clock, snapshotPath)
	require.NoError(t, store.Save(idx, testSources()))

	require.NoError(t, fs.Remove("/mame.xml"))

	_, reason, err := store.Load(context.Background(), testSources(), nil)
	require.NoError(t, err)
	assert.Equal(t, ReasonPathMissing, reason)
}

func TestLoadEmptySourcePathSkipsExistenceCheck(t *testing.T) {
	t.Parallel()

	fs, clock, idx := newFixture(t)
	store := NewStore(fs, clock, snapshotPath)

	src := Sources{ArchiveDir: "/roms"}
	require.NoError(t, store.Save(idx, src))

	loaded, reason, err := store.Load(context.Background(), src, nil)
	require.NoError(t, err)
	assert.Equal(t, ReasonNone, reason)
	assert.NotNil(t, loaded)
}

func TestLoadExpired(t *testing.T) {
	t.Parallel()

	fs, clock, idx := newFixture(t)
	store := NewStore(fs, clock, snapshotPath)
	require.NoError(t, store.Save(idx, testSources()))

	// just inside the window still loads
	clock.Advance(DefaultMaxAge - time.Minute)
	_, reason, err := store.Load(context.Background(), testSources(), nil)
	require.NoError(t, err)
	assert.Equal(t, ReasonNone, reason)

	clock.Advance(2 * time.Minute)
	_, reason, err = store.Load(context.Background(), testSources(), nil)
	require.NoError(t, err)
	assert.Equal(t, ReasonExpired, reason)
}

func TestLoadFutureTimestampExpired(t *testing.T) {
	t.Parallel()

	fs, clock, idx := newFixture(t)
	store := NewStore(fs, clock, snapshotPath)
	require.NoError(t, store.Save(idx, testSources()))

	tamperEnvelope(t, fs, func(env map[string]any) {
		env["createdAt"] = clock.Now().UTC().Add(time.Hour).Format(time.RFC3339Nano)
	})

	_, reason, err := store.Load(context.Background(), testSources(), nil)
	require.NoError(t, err)
	assert.Equal(t, ReasonExpired, reason)
}

func TestLoadCorruptPayload(t *testing.T) {
	t.Parallel()

	fs, clock, idx := newFixture(t)
	store := NewStore(fs, clock, snapshotPath)
	require.NoError(t, store.Save(idx, testSources()))

	tamperEnvelope(t, fs, func(env map[string]any) {
		env["scannedRoms"] = map[string]any{"injected": map[string]any{"name": "injected"}}
	})

	_, reason, err := store.Load(context.Background(), testSources(), nil)
	require.NoError(t, err)
	assert.Equal(t, ReasonCorrupt, reason)
}

func TestLoadCancellation(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("/roms", 0o755))
	clock := clockwork.NewFakeClock()

	// enough items to cross a batch boundary during transfer
	idx := index.NewIndex()
	items := make([]*index.Item, 0, loadBatchSize+1)
	for i := 0; i <= loadBatchSize; i++ {
		items = append(items, &index.Item{Name: "game" + string(rune('a'+i%26)) + string(rune('a'+i/26))})
	}
	idx.InsertBatch(items)

	store := NewStore(fs, clock, snapshotPath)
	src := Sources{ArchiveDir: "/roms"}
	require.NoError(t, store.Save(idx, src))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	loaded, reason, err := store.Load(ctx, src, nil)
	require.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, loaded)
	assert.Equal(t, ReasonNone, reason)
}

// tamperEnvelope rewrites the stored snapshot through a generic map so tests
// can edit one field without re-deriving the digest.
func tamperEnvelope(t *testing.T, fs afero.Fs, mutate func(map[string]any)) {
	t.Helper()

	data, err := afero.ReadFile(fs, snapshotPath)
	require.NoError(t, err)

	var env map[string]any
	require.NoError(t, json.Unmarshal(data, &env))
	mutate(env)

	out, err := json.Marshal(env)
	require.NoError(t, err)
	require.NoError(t, afero.WriteFile(fs, snapshotPath, out, 0o600))
}
