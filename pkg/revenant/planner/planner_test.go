// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

package planner

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinkershack/drive-revenant/pkg/revenant/clock"
	"github.com/tinkershack/drive-revenant/pkg/revenant/types"
)

func newDrive(letter string, typ types.DriveType, intervalSec int, enabledAt time.Time, p *Planner) *types.Drive {
	d := &types.Drive{
		Letter:      letter,
		Type:        typ,
		IntervalSec: intervalSec,
		Enabled:     true,
		State:       types.DriveStateActive,
		EnabledAt:   enabledAt,
	}
	d.PhaseOffsetGrid = p.PhaseOffsetGrid(letter, intervalSec, enabledAt)
	d.NextDue = NominalFireTime(d)
	return d
}

func TestPhaseOffsetGridIsDeterministicAndBounded(t *testing.T) {
	p := New(Config{InstallID: "install-a"})
	at := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	first := p.PhaseOffsetGrid("D", 60, at)
	second := p.PhaseOffsetGrid("D", 60, at)
	assert.Equal(t, first, second, "phase offset must be deterministic for the same inputs")
	assert.GreaterOrEqual(t, first, int64(0))
	assert.Less(t, first, int64(60)*2, "phase offset must stay within one interval's worth of grid cells")

	otherInstall := New(Config{InstallID: "install-b"})
	assert.NotEqual(t, first, otherInstall.PhaseOffsetGrid("D", 60, at),
		"different install IDs should (almost always) disagree on phase offset")
}

func TestNominalFireTimeHasNoDrift(t *testing.T) {
	p := New(Config{InstallID: "install-a"})
	enabledAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	d := newDrive("D", types.DriveTypeSSD, 60, enabledAt, p)

	origin := clock.GridFloor(enabledAt)
	phase := time.Duration(d.PhaseOffsetGrid) * clock.GridResolution

	for k := int64(0); k < 100; k++ {
		d.FireCount = k
		want := origin.Add(phase).Add(time.Duration(k) * 60 * time.Second)
		assert.Equal(t, want, NominalFireTime(d))
	}
}

func TestOpForFiringHDDAlwaysWrites(t *testing.T) {
	p := New(Config{InstallID: "install-a"})
	enabledAt := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	d := newDrive("H", types.DriveTypeHDD, 30, enabledAt, p)
	for k := int64(0); k < 20; k++ {
		d.FireCount = k
		assert.Equal(t, types.OpWrite, opForFiring(d))
	}
}

func TestOpForFiringSSDWritesFirstAndEveryNth(t *testing.T) {
	d := &types.Drive{Type: types.DriveTypeSSD, IntervalSec: 60} // n = ceil(60/30) = 2
	d.FireCount = 0
	assert.Equal(t, types.OpWrite, opForFiring(d))
	d.FireCount = 1
	assert.Equal(t, types.OpRead, opForFiring(d))
	d.FireCount = 2
	assert.Equal(t, types.OpWrite, opForFiring(d))
	d.FireCount = 3
	assert.Equal(t, types.OpRead, opForFiring(d))
}

func TestNextNominalNeverFiresImmediately(t *testing.T) {
	p := New(Config{InstallID: "install-a", JitterSec: 5, HDDMaxGapSec: 3600, DeadlineMarginSec: 2})
	enabledAt := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	d := newDrive("D", types.DriveTypeSSD, 30, enabledAt, p)

	now := enabledAt.Add(10 * time.Hour) // far past any nominal schedule
	next := p.NextNominal(d, now)
	assert.True(t, !next.Before(now.Add(clock.GridResolution)),
		"next_due must be at least one grid cell ahead of now")
}

func TestNextNominalHDDRespectsMaxGap(t *testing.T) {
	p := New(Config{InstallID: "install-a", JitterSec: 2, HDDMaxGapSec: 600, DeadlineMarginSec: 1})
	enabledAt := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	d := newDrive("H", types.DriveTypeHDD, 7200, enabledAt, p) // interval far exceeds the gap bound
	d.LastFireAt = enabledAt

	now := enabledAt.Add(time.Minute)
	next := p.NextNominal(d, now)
	maxGap := 600 * time.Second
	assert.LessOrEqual(t, next.Sub(d.LastFireAt), maxGap+clock.GridResolution,
		"HDD next_due must never exceed LastFireAt + hdd_max_gap_sec by more than one grid cell")
}

func TestPlanSkipsNonActiveDrives(t *testing.T) {
	p := New(Config{InstallID: "install-a"})
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	d := newDrive("D", types.DriveTypeSSD, 60, now, p)
	d.State = types.DriveStatePaused
	d.NextDue = now

	firings := p.Plan(now, []*types.Drive{d})
	assert.Empty(t, firings)
}

func TestPlanEnforcesWriteWriteSpacingAcrossCells(t *testing.T) {
	p := New(Config{InstallID: "install-a"})
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	a := newDrive("A", types.DriveTypeHDD, 1, now, p)
	a.NextDue = now
	b := newDrive("B", types.DriveTypeHDD, 1, now, p)
	b.NextDue = now

	// The write-write spacing (1s) exceeds one grid cell (500ms), so only one
	// write can land in the cell containing `now`; the second is deferred
	// rather than doubled up.
	firings := p.Plan(now, []*types.Drive{a, b})
	require.Len(t, firings, 1)
	assert.Equal(t, types.OpWrite, firings[0].Op)

	var deferred *types.Drive
	for _, d := range []*types.Drive{a, b} {
		if d.Letter != firings[0].Letter {
			deferred = d
		}
	}
	require.NotNil(t, deferred)
	assert.GreaterOrEqual(t, deferred.NextDue.Sub(firings[0].Due), writeWriteSpace,
		"the deferred write's rescheduled instant must respect the write-write spacing")

	// Re-planning at the deferred instant fires it without dropping it.
	second := p.Plan(deferred.NextDue, []*types.Drive{deferred})
	require.Len(t, second, 1)
	assert.Equal(t, deferred.Letter, second[0].Letter)
}

func TestPlanTieBreakIsStableAcrossCalls(t *testing.T) {
	p := New(Config{InstallID: "install-a"})
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	a := newDrive("A", types.DriveTypeSSD, 1, now, p)
	a.NextDue = now
	b := newDrive("B", types.DriveTypeSSD, 1, now, p)
	b.NextDue = now

	// Both ops are writes and only one fits in a 500ms cell; the other spills.
	first := p.Plan(now, []*types.Drive{a, b})
	firstNext := map[string]time.Time{"A": a.NextDue, "B": b.NextDue}
	a.NextDue, b.NextDue = now, now
	second := p.Plan(now, []*types.Drive{a, b})

	require.Len(t, first, 1)
	require.Len(t, second, 1)
	assert.Equal(t, first[0].Letter, second[0].Letter)
	assert.Equal(t, firstNext, map[string]time.Time{"A": a.NextDue, "B": b.NextDue})
}

func TestPlanOverflowSpillsRatherThanDropsOrDoubles(t *testing.T) {
	p := New(Config{InstallID: "install-a"})
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	// Pack enough same-cell HDD writes that the write-write spacing overflows
	// the 500ms cell; the overflow drive should be deferred, not dropped.
	drives := make([]*types.Drive, 0, 3)
	for _, letter := range []string{"A", "B", "C"} {
		d := newDrive(letter, types.DriveTypeHDD, 1, now, p)
		d.NextDue = now
		drives = append(drives, d)
	}

	firings := p.Plan(now, drives)
	assert.Less(t, len(firings), len(drives), "spacing should force at least one drive to overflow this cell")

	fired := make(map[string]bool, len(firings))
	for _, f := range firings {
		fired[f.Letter] = true
	}
	for _, d := range drives {
		if !fired[d.Letter] {
			assert.True(t, d.NextDue.After(now), "an overflowed drive's NextDue must be pushed forward, never dropped")
		}
	}
}

func TestClampIntervalSecEnforcesMinimumForEveryDriveType(t *testing.T) {
	assert.Equal(t, 30, ClampIntervalSec(types.DriveTypeSSD, 5, 30, 3600))
	assert.Equal(t, 30, ClampIntervalSec(types.DriveTypeHDD, 5, 30, 3600))
	assert.Equal(t, 30, ClampIntervalSec(types.DriveTypeRemovable, 5, 30, 3600))
}

func TestClampIntervalSecEnforcesHDDMaxGapCeiling(t *testing.T) {
	assert.Equal(t, 3600, ClampIntervalSec(types.DriveTypeHDD, 7200, 30, 3600))
	// Non-HDD types are not bound by hdd_max_gap_sec.
	assert.Equal(t, 7200, ClampIntervalSec(types.DriveTypeSSD, 7200, 30, 3600))
}

func TestClampIntervalSecPassesThroughInRangeValues(t *testing.T) {
	assert.Equal(t, 120, ClampIntervalSec(types.DriveTypeHDD, 120, 30, 3600))
	assert.Equal(t, 120, ClampIntervalSec(types.DriveTypeSSD, 120, 30, 3600))
}
