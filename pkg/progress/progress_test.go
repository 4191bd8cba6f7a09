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

package progress

import (
	"testing"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collectSink(updates *[]Update) Sink {
	return SinkFunc(func(u Update) { *updates = append(*updates, u) })
}

func TestReporterPhaseBoundaries(t *testing.T) {
	t.Parallel()

	var updates []Update
	r := NewReporter(collectSink(&updates), clockwork.NewFakeClock())

	r.StartPhase("first")
	r.FinishPhase()
	r.StartPhase("second")
	r.FinishPhase()

	require.Len(t, updates, 4)
	assert.Equal(t, Update{Phase: "first", Percent: 0}, updates[0])
	assert.Equal(t, Update{Phase: "first", Percent: 100}, updates[1])
	assert.Equal(t, Update{Phase: "second", Percent: 0}, updates[2])
	assert.Equal(t, Update{Phase: "second", Percent: 100}, updates[3])
}

func TestReporterThrottlesByItemCount(t *testing.T) {
	t.Parallel()

	var updates []Update
	r := NewReporter(collectSink(&updates), clockwork.NewFakeClock())

	r.StartPhase("scan")
	for i := 1; i < emitEvery; i++ {
		r.Advance(1, i*100/emitEvery)
	}
	// nothing emitted until the batch threshold is crossed
	require.Len(t, updates, 1)

	r.Advance(1, 100)
	require.Len(t, updates, 2)
	assert.Equal(t, emitEvery, updates[1].Items)
}

func TestReporterEmitsOnTimeSlice(t *testing.T) {
	t.Parallel()

	var updates []Update
	clock := clockwork.NewFakeClock()
	r := NewReporter(collectSink(&updates), clock)

	r.StartPhase("scan")
	r.Advance(1, 10)
	require.Len(t, updates, 1)

	clock.Advance(emitInterval)
	r.Advance(1, 20)
	require.Len(t, updates, 2)
	assert.Equal(t, 20, updates[1].Percent)
	assert.Equal(t, 2, updates[1].Items)
}

func TestReporterClampsPercentRegressions(t *testing.T) {
	t.Parallel()

	var updates []Update
	clock := clockwork.NewFakeClock()
	r := NewReporter(collectSink(&updates), clock)

	r.StartPhase("scan")
	clock.Advance(emitInterval)
	r.Advance(1, 50)
	// out-of-order worker completion reports a lower percent
	clock.Advance(emitInterval)
	r.Advance(1, 30)

	require.Len(t, updates, 3)
	assert.Equal(t, 50, updates[1].Percent)
	assert.Equal(t, 50, updates[2].Percent)
}

func TestReporterNilSink(t *testing.T) {
	t.Parallel()

	r := NewReporter(nil, clockwork.NewFakeClock())
	r.StartPhase("scan")
	r.Advance(1, 50)
	r.FinishPhase()
}
