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

// Package progress defines the sink abstraction long-running operations
// report through. The core depends only on the Sink interface; presentation
// layers decide how updates are rendered.
package progress

import (
	"time"

	"github.com/RomshelfProject/romshelf-core/pkg/helpers/syncutil"
	"github.com/jonboulle/clockwork"
)

// Update is one progress report. Percent is -1 when indeterminate.
type Update struct {
	Phase   string
	Percent int
	Items   int
}

// Sink receives progress updates.
type Sink interface {
	Report(Update)
}

// SinkFunc adapts a plain function to the Sink interface.
type SinkFunc func(Update)

func (f SinkFunc) Report(u Update) {
	f(u)
}

// Discard is a Sink that drops every update.
var Discard Sink = SinkFunc(func(Update) {})

const (
	// emitEvery caps how many items can be processed between emissions.
	emitEvery = 250
	// emitInterval caps how stale the consumer's view can get.
	emitInterval = 200 * time.Millisecond
)

// Reporter throttles per-item advancement into bounded-rate sink updates.
// Updates are never emitted per item, and percentages within a phase are
// monotonically non-decreasing.
type Reporter struct {
	clock       clockwork.Clock
	sink        Sink
	phase       string
	lastEmit    time.Time
	lastPercent int
	items       int
	sinceEmit   int
	mu          syncutil.Mutex
}

func NewReporter(sink Sink, clock clockwork.Clock) *Reporter {
	if sink == nil {
		sink = Discard
	}
	return &Reporter{sink: sink, clock: clock}
}

// StartPhase resets the reporter for a new phase and emits an initial
// update. Phases are strictly sequential.
func (r *Reporter) StartPhase(phase string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.phase = phase
	r.items = 0
	r.sinceEmit = 0
	r.lastPercent = 0
	r.lastEmit = r.clock.Now()
	r.sink.Report(Update{Phase: phase, Percent: 0, Items: 0})
}

// Advance records processed items and emits an update when either the batch
// threshold or the time slice has elapsed. Percent regressions are clamped.
func (r *Reporter) Advance(items, percent int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.items += items
	r.sinceEmit += items
	if percent < r.lastPercent {
		percent = r.lastPercent
	}
	r.lastPercent = percent

	now := r.clock.Now()
	if r.sinceEmit < emitEvery && now.Sub(r.lastEmit) < emitInterval {
		return
	}

	r.sinceEmit = 0
	r.lastEmit = now
	r.sink.Report(Update{Phase: r.phase, Percent: percent, Items: r.items})
}

// FinishPhase emits a final 100% update for the current phase.
func (r *Reporter) FinishPhase() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.lastPercent = 100
	r.sinceEmit = 0
	r.lastEmit = r.clock.Now()
	r.sink.Report(Update{Phase: r.phase, Percent: 100, Items: r.items})
}
