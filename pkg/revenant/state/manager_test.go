// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

package state

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinkershack/drive-revenant/pkg/revenant/types"
)

func TestLoadMissingFileIsNotAnError(t *testing.T) {
	dir := t.TempDir()
	m := New(filepath.Join(dir, "state.json"), nil)

	d := &types.Drive{Letter: "D", IntervalSec: 30}
	require.NoError(t, m.Load([]*types.Drive{d}))
	assert.Equal(t, 30, d.IntervalSec, "a fresh drive keeps its caller-provided defaults")
}

func TestMarkDirtyThenFlushRoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")
	m := New(path, nil)

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	d := &types.Drive{
		Letter:           "D",
		Type:             types.DriveTypeSSD,
		IntervalSec:      45,
		Enabled:          true,
		UserPaused:       true,
		PhaseOffsetGrid:  7,
		State:            types.DriveStateActive,
		ConsecutiveFails: 2,
		QuarantineUntil:  now.Add(time.Hour),
		NextDue:          now.Add(time.Minute),
		EnabledAt:        now,
		FireCount:        12,
		LastFireAt:       now.Add(-time.Minute),
	}

	m.MarkDirty([]*types.Drive{d}, now)
	require.NoError(t, m.Flush())

	_, err := os.Stat(path)
	require.NoError(t, err)

	restored := &types.Drive{Letter: "D", PhaseOffsetGrid: 99, NextDue: now.Add(24 * time.Hour)}
	require.NoError(t, m.Load([]*types.Drive{restored}))

	assert.Equal(t, d.IntervalSec, restored.IntervalSec)
	assert.Equal(t, d.UserPaused, restored.UserPaused)
	assert.Equal(t, d.ConsecutiveFails, restored.ConsecutiveFails)
	assert.True(t, d.QuarantineUntil.Equal(restored.QuarantineUntil))

	// Scheduling fields are never persisted: the caller's fresh values (as
	// set at enable time on this start) must survive Load untouched.
	assert.Equal(t, int64(99), restored.PhaseOffsetGrid)
	assert.True(t, restored.NextDue.Equal(now.Add(24*time.Hour)))
}

func TestFlushWithoutMarkDirtyIsNoOp(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")
	m := New(path, nil)

	require.NoError(t, m.Flush())
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err), "Flush must not write anything before MarkDirty")
}

func TestFlushBacksUpPriorFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")
	m := New(path, nil)
	now := time.Now()

	d := &types.Drive{Letter: "D", IntervalSec: 10}
	m.MarkDirty([]*types.Drive{d}, now)
	require.NoError(t, m.Flush())

	d.IntervalSec = 20
	m.MarkDirty([]*types.Drive{d}, now)
	require.NoError(t, m.Flush())

	_, err := os.Stat(path + ".backup")
	assert.NoError(t, err, "a second Flush must back up the prior canonical file")
}

func TestLoadQuarantinesCorruptFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")
	require.NoError(t, os.WriteFile(path, []byte("not json"), 0o644))

	m := New(path, nil)
	d := &types.Drive{Letter: "D", IntervalSec: 30}
	require.NoError(t, m.Load([]*types.Drive{d}), "a corrupt state file must not fail startup")
	assert.Equal(t, 30, d.IntervalSec, "the caller's defaults survive a corrupt file")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	foundCorrupt := false
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".corrupt" || matchesCorruptSuffix(e.Name()) {
			foundCorrupt = true
		}
	}
	assert.True(t, foundCorrupt, "the corrupt file must be renamed aside, not left at the canonical path")
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err), "the canonical path must no longer hold the corrupt content")
}

func matchesCorruptSuffix(name string) bool {
	return len(name) > len(".corrupt") && name[len(name)-len(".corrupt"):] == ".corrupt"
}
