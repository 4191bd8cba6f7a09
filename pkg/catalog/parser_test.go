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

package catalog

import (
	"context"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeCatalog(t *testing.T, fs afero.Fs, path, body string) {
	t.Helper()
	doc := `<?xml version="1.0"?><mame>` + body + `</mame>`
	require.NoError(t, afero.WriteFile(fs, path, []byte(doc), 0o644))
}

func parseAll(t *testing.T, fs afero.Fs, path string) ([]*Record, *ParseResult) {
	t.Helper()
	var records []*Record
	result, err := NewParser(fs).Parse(context.Background(), path, ParseOptions{
		OnRecord: func(r *Record) { records = append(records, r) },
	})
	require.NoError(t, err)
	return records, result
}

func TestParseSingleGame(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	writeCatalog(t, fs, "/catalog.xml", `
		<game name="pacman" isbios="no">
			<description>Pac-Man</description>
			<year>1980</year>
			<manufacturer>Namco</manufacturer>
			<rom name="pacman.6e" size="4096" crc="abc123"/>
		</game>`)

	records, result := parseAll(t, fs, "/catalog.xml")

	require.Len(t, records, 1)
	assert.Equal(t, 1, result.Records)
	r := records[0]
	assert.Equal(t, "pacman", r.Name)
	assert.Equal(t, "Pac-Man", r.Description)
	assert.Equal(t, "1980", r.Year)
	assert.Equal(t, "Namco", r.Manufacturer)
	require.Len(t, r.RomFiles, 1)
	assert.Equal(t, "pacman.6e", r.RomFiles[0].Name)
	assert.Equal(t, "abc123", r.RomFiles[0].CRC)
	assert.Equal(t, int64(4096), r.RomFiles[0].Size)
	assert.False(t, r.IsClone())
	assert.False(t, r.HasDisks())
}

func TestParseFiltersBiosDeviceAndNameless(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	writeCatalog(t, fs, "/catalog.xml", `
		<game name="neogeo" isbios="yes">
			<description>Neo-Geo BIOS</description>
		</game>
		<machine name="z80" isdevice="yes"/>
		<game>
			<description>no name attribute</description>
		</game>
		<game name="mslug">
			<description>Metal Slug</description>
		</game>`)

	records, result := parseAll(t, fs, "/catalog.xml")

	require.Len(t, records, 1)
	assert.Equal(t, "mslug", records[0].Name)
	assert.Equal(t, 3, result.Skipped)
	assert.Equal(t, 0, result.Malformed)
}

func TestParseCloneAndDisks(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	writeCatalog(t, fs, "/catalog.xml", `
		<game name="kinst" cloneof="">
			<description>Killer Instinct</description>
			<disk name="kinst" sha1="ee33"/>
		</game>
		<game name="kinst2" cloneof="kinst">
			<description>Killer Instinct 2</description>
		</game>`)

	records, _ := parseAll(t, fs, "/catalog.xml")

	require.Len(t, records, 2)
	assert.True(t, records[0].HasDisks())
	assert.Equal(t, "ee33", records[0].DiskFiles[0].SHA1)
	assert.False(t, records[0].IsClone())
	assert.True(t, records[1].IsClone())
	assert.Equal(t, "kinst", records[1].CloneOf)
}

func TestParseIgnoresUnknownChildrenAndAttrs(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	writeCatalog(t, fs, "/catalog.xml", `
		<game name="dkong" sourcefile="dkong.cpp" runnable="yes">
			<description>Donkey Kong</description>
			<video orientation="vertical"><param>1</param></video>
			<driver status="good"/>
			<rom name="dk.5e" size="bogus" crc="ff00"/>
		</game>`)

	records, result := parseAll(t, fs, "/catalog.xml")

	require.Len(t, records, 1)
	assert.Equal(t, 0, result.Malformed)
	assert.Equal(t, "Donkey Kong", records[0].Description)
	require.Len(t, records[0].RomFiles, 1)
	// an unparseable size is tolerated as zero
	assert.Equal(t, int64(0), records[0].RomFiles[0].Size)
}

func TestParseSyntaxErrorKeepsEarlierRecords(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	// the second element carries an illegal control character in its text,
	// which the decoder rejects as a syntax error mid-element
	writeCatalog(t, fs, "/catalog.xml", `
		<game name="pacman">
			<description>Pac-Man</description>
		</game>
		<game name="broken">
			<description>bad `+"\x01"+` byte</description>
		</game>
		<game name="mslug">
			<description>Metal Slug</description>
		</game>`)

	var records []*Record
	result, err := NewParser(fs).Parse(context.Background(), "/catalog.xml", ParseOptions{
		OnRecord: func(r *Record) { records = append(records, r) },
	})

	// a syntax error poisons the token stream, so the pass aborts; records
	// before the bad element survive and the element itself counts as
	// malformed
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
	require.NotNil(t, result)
	assert.Equal(t, 1, result.Records)
	assert.Equal(t, 1, result.Malformed)
	require.Len(t, records, 1)
	assert.Equal(t, "pacman", records[0].Name)
}

func TestParseMissingFile(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	_, err := NewParser(fs).Parse(context.Background(), "/nope.xml", ParseOptions{})
	require.ErrorIs(t, err, ErrNotFound)

	_, err = NewParser(fs).CountGames(context.Background(), "/nope.xml")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestCountGames(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	writeCatalog(t, fs, "/catalog.xml", `
		<game name="a"/>
		<machine name="b" isdevice="yes"/>
		<game name="c"><rom name="c.bin"/></game>`)

	count, err := NewParser(fs).CountGames(context.Background(), "/catalog.xml")
	require.NoError(t, err)
	// the counting pass counts top-level elements, including ones the parse
	// pass will filter
	assert.Equal(t, 3, count)
}

func TestParseProgressWithTotal(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	writeCatalog(t, fs, "/catalog.xml", `<game name="a"/><game name="b"/>`)

	var percents []int
	_, err := NewParser(fs).Parse(context.Background(), "/catalog.xml", ParseOptions{
		Total:      2,
		OnProgress: func(percent, _ int) { percents = append(percents, percent) },
	})
	require.NoError(t, err)
	require.NotEmpty(t, percents)
	assert.Equal(t, 100, percents[len(percents)-1])
}

func TestLookup(t *testing.T) {
	t.Parallel()

	lookup := NewLookup()
	first := &Record{Name: "PacMan", Description: "first"}
	second := &Record{Name: "pacman", Description: "second"}
	lookup.Add(first)
	lookup.Add(second)

	// case-insensitive keys, last write wins
	assert.Equal(t, 1, lookup.Len())
	got := lookup.Get("PACMAN")
	require.NotNil(t, got)
	assert.Equal(t, "second", got.Description)

	assert.Nil(t, lookup.Get("missing"))
}
