// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

// Package planner implements the core's C2 component: the JitterPlanner.
// It maps (drive, tick) to scheduled instants using a fixed-origin canonical
// cadence (so no drift accumulates), a deterministic per-install phase
// offset and jitter derived from a keyed BLAKE2s hash, an HDD guard, and
// collision packing with a stable tie-break within each grid cell.
package planner

import (
	"encoding/binary"
	"sort"
	"strconv"
	"time"

	"golang.org/x/crypto/blake2s"

	"github.com/tinkershack/drive-revenant/pkg/revenant/clock"
	"github.com/tinkershack/drive-revenant/pkg/revenant/types"
)

const (
	anyAnySpacing   = 500 * time.Millisecond
	writeWriteSpace = 1 * time.Second
)

// Planner is the JitterPlanner (C2). It holds no per-drive state of its own;
// all schedule state lives on the Drive records the SchedulerLoop owns, so
// the planner can be constructed once and shared across drives.
type Planner struct {
	installID         string
	jitterSec         float64
	hddMaxGapSec      int
	deadlineMarginSec float64
}

// Config carries the configuration keys the planner consumes.
type Config struct {
	InstallID         string
	JitterSec         float64
	HDDMaxGapSec      int
	DeadlineMarginSec float64
}

// New constructs a Planner.
func New(cfg Config) *Planner {
	return &Planner{
		installID:         cfg.InstallID,
		jitterSec:         cfg.JitterSec,
		hddMaxGapSec:      cfg.HDDMaxGapSec,
		deadlineMarginSec: cfg.DeadlineMarginSec,
	}
}

// keyedHash computes a stable, deterministic 64-bit digest of the install ID
// (acting as the key) and the supplied parts, using BLAKE2s as the spec
// names explicitly. The install ID is folded into the hashed message rather
// than used as blake2s's fixed-size MAC key, since install IDs are
// arbitrary-length UUID strings.
func keyedHash(installID string, parts ...string) uint64 {
	h, _ := blake2s.New256(nil)
	h.Write([]byte(installID))
	for _, p := range parts {
		h.Write([]byte{0x1f}) // unit separator
		h.Write([]byte(p))
	}
	sum := h.Sum(nil)
	return binary.BigEndian.Uint64(sum[:8])
}

func localDate(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// PhaseOffsetGrid computes phase_offset_grid = H(install_id ∥ letter ∥
// local_date) mod (interval_sec/0.5), in 0.5s grid cells. It is computed
// once, at enable.
func (p *Planner) PhaseOffsetGrid(letter string, intervalSec int, at time.Time) int64 {
	gridCellsPerInterval := int64(intervalSec) * 2
	if gridCellsPerInterval <= 0 {
		return 0
	}
	h := keyedHash(p.installID, letter, localDate(at))
	return int64(h % uint64(gridCellsPerInterval))
}

// jitterOffset returns offset(d,k) snapped to the grid, in [-jitterSec, +jitterSec].
func (p *Planner) jitterOffset(letter string, k int64, at time.Time) time.Duration {
	if p.jitterSec <= 0 {
		return 0
	}
	cells := int64(p.jitterSec / 0.5)
	if cells <= 0 {
		return 0
	}
	span := 2*cells + 1
	h := keyedHash(p.installID, letter, strconv.FormatInt(k, 10), localDate(at))
	offsetCells := int64(h%uint64(span)) - cells
	return time.Duration(offsetCells) * clock.GridResolution
}

// tieBreakHash is H(install_id ∥ letter ∥ grid_cell), the stable
// deterministic sort key within a packing class.
func (p *Planner) tieBreakHash(letter string, gridCell int64) uint64 {
	return keyedHash(p.installID, letter, strconv.FormatInt(gridCell, 10))
}

// ClampIntervalSec enforces the data model's invariant that interval_sec is
// clamped to [intervalMinSec, hddMaxGapSec] for HDD drives, and to a floor of
// intervalMinSec for every other drive type (hddMaxGapSec has no meaning
// outside the HDD guard). Both drive-config entry points (initial config
// load and the operator-facing SetDriveConfig command) call this rather than
// assigning a caller-supplied interval verbatim.
func ClampIntervalSec(driveType types.DriveType, intervalSec, intervalMinSec, hddMaxGapSec int) int {
	if intervalMinSec > 0 && intervalSec < intervalMinSec {
		intervalSec = intervalMinSec
	}
	if driveType == types.DriveTypeHDD && hddMaxGapSec > 0 && intervalSec > hddMaxGapSec {
		intervalSec = hddMaxGapSec
	}
	return intervalSec
}

// NominalFireTime returns t_nom(k) = grid_floor(t_enable) + phase_offset + k*interval.
// Computed from the fixed EnabledAt origin every time, so no drift accumulates.
func NominalFireTime(d *types.Drive) time.Time {
	origin := clock.GridFloor(d.EnabledAt)
	phase := time.Duration(d.PhaseOffsetGrid) * clock.GridResolution
	interval := time.Duration(d.IntervalSec) * time.Second
	return origin.Add(phase).Add(time.Duration(d.FireCount) * interval)
}

// candidate is one drive's due-or-not evaluation for the current cell.
type candidate struct {
	drive *types.Drive
	op    types.Op
	due   time.Time // grid-snapped nominal instant, jitter/HDD-guard applied
}

// opForFiring applies §4.5's op-selection rule: every firing is a write for
// HDD; for SSD/Removable, the first firing and every Nth firing (N =
// ceil(interval/30)) is a write, others are reads.
func opForFiring(d *types.Drive) types.Op {
	if d.Type == types.DriveTypeHDD {
		return types.OpWrite
	}
	if d.ForceNextWrite {
		return types.OpWrite
	}
	n := (d.IntervalSec + 29) / 30
	if n <= 0 {
		n = 1
	}
	if d.FireCount == 0 || d.FireCount%int64(n) == 0 {
		return types.OpWrite
	}
	return types.OpRead
}

// Plan determines the nominal due instant for every enabled, schedulable
// drive, applies jitter and the HDD guard, and returns the ordered,
// spacing-enforced list of firings due in the grid cell containing `now`.
// Drives whose packed launch instant would overflow the current cell have
// their NextDue bumped forward (to be re-evaluated on a later call) rather
// than being executed out of turn.
func (p *Planner) Plan(now time.Time, drives []*types.Drive) []types.Firing {
	cellStart := clock.GridFloor(now)
	cellEnd := cellStart.Add(clock.GridResolution)
	gridCell := cellStart.UnixMilli() / clock.GridResolution.Milliseconds()

	var due []candidate
	for _, d := range drives {
		if d.State != types.DriveStateActive {
			continue
		}
		if d.NextDue.Before(cellEnd) {
			due = append(due, candidate{drive: d, op: opForFiring(d), due: d.NextDue})
		}
	}
	if len(due) == 0 {
		return nil
	}

	writes := make([]candidate, 0, len(due))
	reads := make([]candidate, 0, len(due))
	for _, c := range due {
		if c.op == types.OpWrite {
			writes = append(writes, c)
		} else {
			reads = append(reads, c)
		}
	}
	sortByTieBreak := func(cs []candidate) {
		sort.Slice(cs, func(i, j int) bool {
			return p.tieBreakHash(cs[i].drive.Letter, gridCell) < p.tieBreakHash(cs[j].drive.Letter, gridCell)
		})
	}
	sortByTieBreak(writes)
	sortByTieBreak(reads)
	ordered := append(writes, reads...)
	packSize := len(ordered)

	var firings []types.Firing
	var lastWrite, lastAny time.Time
	rank := 0
	for _, c := range ordered {
		launch := cellStart
		if !lastAny.IsZero() {
			minGap := anyAnySpacing
			if c.op == types.OpWrite && !lastWrite.IsZero() {
				if lastWrite.Add(writeWriteSpace).After(launch) {
					launch = lastWrite.Add(writeWriteSpace)
				}
			}
			if lastAny.Add(minGap).After(launch) {
				launch = lastAny.Add(minGap)
			}
			launch = snapUpToGrid(launch)
		}

		d := c.drive
		if launch.Before(cellEnd) {
			firings = append(firings, types.Firing{
				Letter:    d.Letter,
				Op:        c.op,
				FireIndex: d.FireCount,
				Due:       launch,
				TieEpoch:  gridCell,
				TieRank:   rank,
				PackSize:  packSize,
			})
			lastAny = launch
			if c.op == types.OpWrite {
				lastWrite = launch
			}
		} else {
			// Overflowed the current cell: spill into the grid cell containing
			// `launch` and re-evaluate there, never dropping and never doubling.
			d.NextDue = launch
			lastAny = launch
			if c.op == types.OpWrite {
				lastWrite = launch
			}
		}
		rank++
	}
	return firings
}

func snapUpToGrid(t time.Time) time.Time {
	floored := clock.GridFloor(t)
	if floored.Equal(t) {
		return t
	}
	return floored.Add(clock.GridResolution)
}

// NextNominal advances a drive past the firing it just acted on (or skipped),
// applying jitter and the HDD guard, and enforcing the invariant that
// next_due >= now + 0.5s (no immediate-fire). Nominal slots that already lie
// in the past (e.g. missed during quarantine) are skipped, not replayed.
func (p *Planner) NextNominal(d *types.Drive, now time.Time) time.Time {
	d.FireCount++
	for d.IntervalSec > 0 && NominalFireTime(d).Before(now) {
		d.FireCount++
	}
	t := NominalFireTime(d)
	jitter := p.jitterOffset(d.Letter, d.FireCount, now)

	if d.Type == types.DriveTypeHDD {
		// Earlier-only with a small late slack.
		maxLate := time.Duration(p.deadlineMarginSec * float64(time.Second))
		if jitter > maxLate {
			jitter = maxLate
		}
		if jitter < -time.Duration(p.jitterSec*float64(time.Second)) {
			jitter = -time.Duration(p.jitterSec * float64(time.Second))
		}
	}
	t = t.Add(jitter)
	t = clock.GridFloor(t)

	if d.Type == types.DriveTypeHDD && !d.LastFireAt.IsZero() {
		maxGap := time.Duration(p.hddMaxGapSec) * time.Second
		if t.Sub(d.LastFireAt) > maxGap {
			t = clock.GridFloor(d.LastFireAt.Add(maxGap))
		}
	}

	floor := now.Add(clock.GridResolution)
	if t.Before(floor) {
		t = clock.GridFloor(floor)
		if t.Before(floor) {
			t = t.Add(clock.GridResolution)
		}
	}
	d.NextDue = t
	return t
}
