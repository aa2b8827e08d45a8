// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

package policy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinkershack/drive-revenant/pkg/errors"
	"github.com/tinkershack/drive-revenant/pkg/revenant/types"
)

func activeDrive() *types.Drive {
	return &types.Drive{Letter: "D", Enabled: true, State: types.DriveStateActive}
}

func TestEvaluateUserPauseWinsOverEverything(t *testing.T) {
	a := New(Config{})
	d := activeDrive()
	d.UserPaused = true

	decision := a.Evaluate(d, types.PolicyInputValues{})
	assert.False(t, decision.Allow)
	assert.Equal(t, types.ReasonUser, decision.Reason)
}

func TestEvaluateQuarantineAndOfflineAreInherent(t *testing.T) {
	a := New(Config{Precedence: []types.Reason{}})

	quarantined := activeDrive()
	quarantined.State = types.DriveStateQuarantined
	decision := a.Evaluate(quarantined, types.PolicyInputValues{})
	assert.Equal(t, types.ReasonQuarantine, decision.Reason)

	offline := activeDrive()
	offline.State = types.DriveStateOffline
	decision = a.Evaluate(offline, types.PolicyInputValues{})
	assert.Equal(t, types.ReasonOffline, decision.Reason)
}

func TestEvaluateDisabledDriveBlocksRegardlessOfPrecedence(t *testing.T) {
	a := New(Config{})
	d := activeDrive()
	d.Enabled = false

	decision := a.Evaluate(d, types.PolicyInputValues{})
	assert.False(t, decision.Allow)
	assert.Equal(t, types.ReasonPerDriveDisabled, decision.Reason)
}

func TestEvaluateGlobalBatteryIdlePrecedence(t *testing.T) {
	a := New(Config{IdlePauseMin: 5})

	d := activeDrive()
	decision := a.Evaluate(d, types.PolicyInputValues{GlobalPaused: true, OnBattery: true, IdleSeconds: 10000})
	assert.Equal(t, types.ReasonGlobal, decision.Reason, "global should take precedence per the default ordering")

	decision = a.Evaluate(d, types.PolicyInputValues{OnBattery: true, IdleSeconds: 10000})
	assert.Equal(t, types.ReasonBattery, decision.Reason)

	decision = a.Evaluate(d, types.PolicyInputValues{IdleSeconds: 301})
	assert.Equal(t, types.ReasonIdle, decision.Reason)

	decision = a.Evaluate(d, types.PolicyInputValues{IdleSeconds: 1})
	assert.True(t, decision.Allow)
}

func TestRecordOutcomeResetsOnSuccessCodes(t *testing.T) {
	a := New(Config{ErrorQuarantineAfter: 3, ErrorQuarantineSec: 60})
	d := activeDrive()
	d.ConsecutiveFails = 2

	entered := a.RecordOutcome(d, types.CodeOK, time.Now())
	assert.False(t, entered)
	assert.Equal(t, 0, d.ConsecutiveFails)

	d.ConsecutiveFails = 2
	entered = a.RecordOutcome(d, types.CodePartialFlush, time.Now())
	assert.False(t, entered)
	assert.Equal(t, 0, d.ConsecutiveFails)
}

func TestRecordOutcomeEntersQuarantineAtThreshold(t *testing.T) {
	a := New(Config{ErrorQuarantineAfter: 3, ErrorQuarantineSec: 60})
	d := activeDrive()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 2; i++ {
		entered := a.RecordOutcome(d, types.CodeError, now)
		assert.False(t, entered)
		assert.Equal(t, types.DriveStateActive, d.State)
	}

	entered := a.RecordOutcome(d, types.CodeError, now)
	require.True(t, entered)
	assert.Equal(t, types.DriveStateQuarantined, d.State)
	assert.Equal(t, now.Add(60*time.Second), d.QuarantineUntil)
	assert.Equal(t, d.QuarantineUntil, d.NextDue)
}

func TestCheckQuarantineExpiry(t *testing.T) {
	a := New(Config{})
	d := activeDrive()
	d.State = types.DriveStateQuarantined
	d.ConsecutiveFails = 5
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	d.QuarantineUntil = now.Add(time.Minute)

	assert.False(t, a.CheckQuarantineExpiry(d, now), "must not exit before quarantine_until")
	assert.False(t, a.CheckQuarantineExpiry(d, d.QuarantineUntil.Add(-time.Millisecond)))

	exited := a.CheckQuarantineExpiry(d, d.QuarantineUntil)
	assert.True(t, exited)
	assert.Equal(t, types.DriveStateActive, d.State)
	assert.Equal(t, 0, d.ConsecutiveFails)
}

func TestReleaseQuarantineIsIdempotent(t *testing.T) {
	a := New(Config{})
	d := activeDrive()
	d.State = types.DriveStateQuarantined
	d.ConsecutiveFails = 3
	d.QuarantineUntil = time.Now().Add(time.Hour)

	require.NoError(t, a.ReleaseQuarantine(d))
	assert.Equal(t, types.DriveStateActive, d.State)
	assert.Equal(t, 0, d.ConsecutiveFails)
	assert.True(t, d.QuarantineUntil.IsZero())

	// Calling again on a non-quarantined drive is a no-op, not an error.
	require.NoError(t, a.ReleaseQuarantine(d))
}

func TestCheckExecutableRejectsInherentlyBlockedStates(t *testing.T) {
	a := New(Config{})

	quarantined := activeDrive()
	quarantined.State = types.DriveStateQuarantined
	err := a.CheckExecutable(quarantined)
	require.Error(t, err)
	code, ok := errors.GetCode(err)
	require.True(t, ok)
	assert.Equal(t, errors.SchedulerDriveQuarantined, code)

	offline := activeDrive()
	offline.State = types.DriveStateOffline
	_, ok = errors.GetCode(a.CheckExecutable(offline))
	require.True(t, ok)

	disabled := activeDrive()
	disabled.Enabled = false
	_, ok = errors.GetCode(a.CheckExecutable(disabled))
	require.True(t, ok)

	assert.NoError(t, a.CheckExecutable(activeDrive()))
}
