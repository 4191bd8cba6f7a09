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
	"bufio"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
)

// Catalog files regularly run to multiple gigabytes, so the parser works on
// a forward-only token stream and never materializes the document tree.
const readBufferSize = 256 * 1024

// Progress between catalog elements is reported in batches rather than
// per-element so a slow consumer is never overwhelmed.
const progressBatch = 500

// ErrNotFound is returned when the catalog file does not exist.
var ErrNotFound = errors.New("catalog file not found")

// ParseResult summarizes one parse pass. Skipped counts BIOS/device/nameless
// elements; Malformed counts elements dropped after a local read failure.
type ParseResult struct {
	Records   int
	Skipped   int
	Malformed int
}

// ParseOptions configures a parse pass. Total, when non-zero, enables
// percentage progress (usually from a prior CountGames pass). OnRecord
// receives every surviving record in document order.
type ParseOptions struct {
	OnRecord   func(*Record)
	OnProgress func(percent, processed int)
	Total      int
}

// Parser streams catalog documents from a filesystem.
type Parser struct {
	fs afero.Fs
}

func NewParser(fsys afero.Fs) *Parser {
	return &Parser{fs: fsys}
}

// CountGames counts the top-level game elements in a catalog document. It is
// a full extra pass over the file, accepted as the price of an accurate
// percentage during Parse.
func (p *Parser) CountGames(ctx context.Context, path string) (int, error) {
	f, err := p.fs.Open(path)
	if err != nil {
		return 0, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	defer func(f afero.File) {
		_ = f.Close()
	}(f)

	decoder := xml.NewDecoder(bufio.NewReaderSize(f, readBufferSize))
	decoder.Strict = false
	count := 0
	depth := 0

	for {
		if count%progressBatch == 0 && ctx.Err() != nil {
			return 0, ctx.Err()
		}

		tok, err := decoder.Token()
		if errors.Is(err, io.EOF) {
			return count, nil
		}
		if err != nil {
			return 0, fmt.Errorf("failed to read catalog token: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			depth++
			if depth == 2 && isGameElement(t.Name.Local) {
				count++
			}
		case xml.EndElement:
			depth--
		}
	}
}

// Parse streams the catalog at path, invoking opts.OnRecord for every
// surviving record in document order. BIOS and device entries, and entries
// with no name, are consumed but never yielded. A malformed element is
// dropped and the stream resynchronized at its end tag; one bad element
// never aborts the pass.
func (p *Parser) Parse(ctx context.Context, path string, opts ParseOptions) (*ParseResult, error) {
	f, err := p.fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	defer func(f afero.File) {
		_ = f.Close()
	}(f)

	decoder := xml.NewDecoder(bufio.NewReaderSize(f, readBufferSize))
	decoder.Strict = false
	result := &ParseResult{}
	processed := 0
	depth := 0

	for {
		if processed%progressBatch == 0 && ctx.Err() != nil {
			return result, ctx.Err()
		}

		tok, err := decoder.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return result, fmt.Errorf("failed to read catalog token: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			depth++
			if depth != 2 || !isGameElement(t.Name.Local) {
				continue
			}

			processed++
			record, keep, err := p.parseGame(decoder, t)
			// parseGame consumes through the element's end tag on both
			// success and failure, so depth is already balanced.
			depth--
			switch {
			case err != nil:
				result.Malformed++
				log.Debug().Err(err).Msg("dropped malformed catalog element")
			case !keep:
				result.Skipped++
			default:
				result.Records++
				if opts.OnRecord != nil {
					opts.OnRecord(record)
				}
			}

			if opts.OnProgress != nil && processed%progressBatch == 0 {
				opts.OnProgress(percentOf(processed, opts.Total), processed)
			}
		case xml.EndElement:
			depth--
		}
	}

	if opts.OnProgress != nil {
		opts.OnProgress(percentOf(processed, opts.Total), processed)
	}

	return result, nil
}

// ParseLookup runs Parse and collects the results into a Lookup.
func (p *Parser) ParseLookup(ctx context.Context, path string, opts ParseOptions) (*Lookup, *ParseResult, error) {
	lookup := NewLookup()
	userOnRecord := opts.OnRecord
	opts.OnRecord = func(r *Record) {
		lookup.Add(r)
		if userOnRecord != nil {
			userOnRecord(r)
		}
	}

	result, err := p.Parse(ctx, path, opts)
	if err != nil {
		return nil, result, err
	}
	return lookup, result, nil
}

// parseGame reads one game element, starting just after its start tag and
// consuming through its end tag. keep is false for BIOS, device, and
// nameless entries. On error the element has still been consumed as far as
// the decoder allows.
func (p *Parser) parseGame(decoder *xml.Decoder, start xml.StartElement) (record *Record, keep bool, err error) {
	record = &Record{}
	skip := false

	for _, attr := range start.Attr {
		switch attr.Name.Local {
		case "name":
			record.Name = attr.Value
		case "cloneof":
			record.CloneOf = attr.Value
		case "isbios", "isdevice":
			if isTruthy(attr.Value) {
				skip = true
			}
		}
	}

	if record.Name == "" {
		skip = true
	}

	if skip {
		// Still advance the stream past the whole element.
		if err := decoder.Skip(); err != nil {
			return nil, false, fmt.Errorf("failed to skip catalog element: %w", err)
		}
		return nil, false, nil
	}

	for {
		tok, err := decoder.Token()
		if err != nil {
			return nil, false, fmt.Errorf("failed to read game element: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if childErr := p.parseGameChild(decoder, t, record); childErr != nil {
				// Resynchronize at the game's end tag and report the
				// element as malformed.
				if skipErr := decoder.Skip(); skipErr != nil {
					return nil, false, fmt.Errorf("failed to resync after bad child: %w", skipErr)
				}
				return nil, false, childErr
			}
		case xml.EndElement:
			if t.Name.Local == start.Name.Local {
				return record, true, nil
			}
		}
	}
}

func (p *Parser) parseGameChild(decoder *xml.Decoder, start xml.StartElement, record *Record) error {
	switch start.Name.Local {
	case "description":
		text, err := readElementText(decoder, start)
		if err != nil {
			return err
		}
		record.Description = text
	case "year":
		text, err := readElementText(decoder, start)
		if err != nil {
			return err
		}
		record.Year = text
	case "manufacturer":
		text, err := readElementText(decoder, start)
		if err != nil {
			return err
		}
		record.Manufacturer = text
	case "category":
		text, err := readElementText(decoder, start)
		if err != nil {
			return err
		}
		record.Category = text
	case "rom":
		rom := RomFile{}
		for _, attr := range start.Attr {
			switch attr.Name.Local {
			case "name":
				rom.Name = attr.Value
			case "size":
				// Bad sizes are tolerated as zero rather than dropping the
				// whole element.
				if size, err := strconv.ParseInt(attr.Value, 10, 64); err == nil {
					rom.Size = size
				}
			case "crc":
				rom.CRC = attr.Value
			case "sha1":
				rom.SHA1 = attr.Value
			case "md5":
				rom.MD5 = attr.Value
			}
		}
		if err := decoder.Skip(); err != nil {
			return fmt.Errorf("failed to skip rom element: %w", err)
		}
		if rom.Name != "" {
			record.RomFiles = append(record.RomFiles, rom)
		}
	case "disk":
		disk := DiskFile{}
		for _, attr := range start.Attr {
			switch attr.Name.Local {
			case "name":
				disk.Name = attr.Value
			case "sha1":
				disk.SHA1 = attr.Value
			case "md5":
				disk.MD5 = attr.Value
			}
		}
		if err := decoder.Skip(); err != nil {
			return fmt.Errorf("failed to skip disk element: %w", err)
		}
		if disk.Name != "" {
			record.DiskFiles = append(record.DiskFiles, disk)
		}
	default:
		// Unknown children are ignored without aborting the parent element.
		if err := decoder.Skip(); err != nil {
			return fmt.Errorf("failed to skip unknown element: %w", err)
		}
	}
	return nil
}

// readElementText returns the first text content of an element, consuming
// through its end tag.
func readElementText(decoder *xml.Decoder, start xml.StartElement) (string, error) {
	var text string
	for {
		tok, err := decoder.Token()
		if err != nil {
			return "", fmt.Errorf("failed to read %s element: %w", start.Name.Local, err)
		}
		switch t := tok.(type) {
		case xml.CharData:
			if text == "" {
				text = strings.TrimSpace(string(t))
			}
		case xml.EndElement:
			if t.Name.Local == start.Name.Local {
				return text, nil
			}
		case xml.StartElement:
			if err := decoder.Skip(); err != nil {
				return "", fmt.Errorf("failed to skip nested element: %w", err)
			}
		}
	}
}

func isGameElement(name string) bool {
	return name == "game" || name == "machine"
}

func isTruthy(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "yes" || s == "true" || s == "1"
}

func percentOf(processed, total int) int {
	if total <= 0 {
		return -1 // indeterminate
	}
	if processed >= total {
		return 100
	}
	return processed * 100 / total
}
