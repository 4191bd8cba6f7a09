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

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/RomshelfProject/romshelf-core/pkg/config"
	"github.com/RomshelfProject/romshelf-core/pkg/helpers"
	"github.com/RomshelfProject/romshelf-core/pkg/index"
	"github.com/RomshelfProject/romshelf-core/pkg/progress"
	"github.com/RomshelfProject/romshelf-core/pkg/service"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
)

func main() {
	if err := run(); err != nil {
		if errors.Is(err, context.Canceled) {
			// User-requested stop, not a failure.
			fmt.Fprintln(os.Stderr, "cancelled")
			return
		}
		_, _ = fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

// consoleSink prints progress updates to stderr.
type consoleSink struct{}

func (consoleSink) Report(u progress.Update) {
	if u.Percent < 0 {
		_, _ = fmt.Fprintf(os.Stderr, "\r%s: %d items", u.Phase, u.Items)
		return
	}
	_, _ = fmt.Fprintf(os.Stderr, "\r%s: %3d%% (%d items)", u.Phase, u.Percent, u.Items)
	if u.Percent >= 100 {
		_, _ = fmt.Fprintln(os.Stderr)
	}
}

func run() error {
	doScan := flag.Bool("scan", false, "run a full scan of the configured repositories")
	doCached := flag.Bool("cached", false, "load the saved index, scanning only if it is stale")
	doReconcile := flag.Bool("reconcile", false, "mark items already present in the destination")
	doCopy := flag.Bool("copy", false, "copy selected items to the destination")
	doVerify := flag.Bool("verify", false, "verify selected archives against catalog checksums")
	selectAll := flag.Bool("select-all", false, "select every scanned item")
	selectName := flag.String("select", "", "select items whose name contains this text")
	exportPath := flag.String("export", "", "write the current selection to a file")
	importPath := flag.String("import", "", "apply a previously exported selection")
	configDir := flag.String("config", "", "config directory (default: XDG config home, or beside a portable install)")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	fsys := afero.NewOsFs()
	clock := clockwork.NewRealClock()

	dir := *configDir
	if dir == "" {
		exe, err := os.Executable()
		if err != nil {
			exe = ""
		}
		dir = config.DefaultDir(fsys, exe)
	}

	if err := helpers.InitLogging(dir, nil); err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}

	cfg, err := config.NewConfig(fsys, dir, config.BaseDefaults)
	if err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}

	if *debug || cfg.DebugLogging() {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	core := service.New(cfg, fsys, clock)
	sink := consoleSink{}

	switch {
	case *doScan:
		if err := core.Scan(ctx, sink); err != nil {
			return err
		}
	case *doCached, *doReconcile, *doCopy, *doVerify, *exportPath != "", *importPath != "":
		// Every other operation needs an index to work against.
		if err := core.LoadFromCacheOrScan(ctx, sink); err != nil {
			return err
		}
	default:
		flag.Usage()
		return nil
	}

	fmt.Printf("indexed %d items (%d companion directories)\n",
		core.Index().Len(), core.Index().TotalBlobDirs())

	if *doReconcile || *doCopy {
		marked, err := core.ReconcileDestination()
		if err != nil {
			return err
		}
		fmt.Printf("%d items already in destination\n", marked)
	}

	if *selectAll {
		core.SelectWhere(func(*index.Item) bool { return true })
	} else if *selectName != "" {
		needle := strings.ToLower(*selectName)
		core.SelectWhere(func(item *index.Item) bool {
			return strings.Contains(strings.ToLower(item.Name), needle) ||
				strings.Contains(strings.ToLower(item.DisplayName()), needle)
		})
	}

	if *importPath != "" {
		data, err := os.ReadFile(*importPath)
		if err != nil {
			return fmt.Errorf("failed to read selection file: %w", err)
		}
		matched, err := core.ImportSelection(data)
		if err != nil {
			return err
		}
		fmt.Printf("selection matched %d items\n", matched)
	}

	if *exportPath != "" {
		data, err := core.ExportSelection()
		if err != nil {
			return err
		}
		if err := os.WriteFile(*exportPath, data, 0o600); err != nil {
			return fmt.Errorf("failed to write selection file: %w", err)
		}
	}

	if *doCopy {
		report, err := core.CopySelected(ctx, sink)
		if err != nil {
			return err
		}
		fmt.Printf("copied %d, skipped %d, failed %d\n",
			report.Copied, report.Skipped, report.Failed)
		for _, e := range report.TruncatedErrors() {
			fmt.Printf("  %s: %s: %v\n", e.Item, e.Path, e.Err)
		}
		if len(report.Errors) > len(report.TruncatedErrors()) {
			fmt.Printf("  ... and %d more\n", len(report.Errors)-len(report.TruncatedErrors()))
		}
	}

	if *doVerify {
		result, err := core.VerifySelected(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("verified %d archives: %d passed, %d failed, %d without metadata\n",
			result.Checked, result.Passed, result.Failed, result.NoMetadata)
		for i, m := range result.Mismatches {
			if i >= 10 {
				fmt.Printf("  ... and %d more\n", len(result.Mismatches)-i)
				break
			}
			fmt.Printf("  %s/%s: expected %s, got %s\n", m.Item, m.File, m.Expected, m.Actual)
		}
	}

	log.Debug().Msg("done")
	return nil
}
