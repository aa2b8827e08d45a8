// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

// Package policy implements the core's C4 component: the PolicyArbiter.
// It evaluates a precedence-ordered list of conditions over global/battery/
// idle/per-drive state and tracks the consecutive-failure quarantine.
package policy

import (
	"time"

	"github.com/tinkershack/drive-revenant/pkg/errors"
	"github.com/tinkershack/drive-revenant/pkg/revenant/types"
)

// Config carries the configuration keys the arbiter consumes.
type Config struct {
	Precedence           []types.Reason // default: [global, battery, idle, per_drive_disable]
	IdlePauseMin         int
	ErrorQuarantineAfter int
	ErrorQuarantineSec   int
}

// Arbiter is the PolicyArbiter (C4).
type Arbiter struct {
	cfg Config
}

// New constructs an Arbiter.
func New(cfg Config) *Arbiter {
	if len(cfg.Precedence) == 0 {
		cfg.Precedence = []types.Reason{types.ReasonGlobal, types.ReasonBattery, types.ReasonIdle, types.ReasonPerDriveDisabled}
	}
	return &Arbiter{cfg: cfg}
}

// Evaluate produces a decision for one drive at the current tick. `user`
// pause is checked first, unconditionally: user intent always wins, and a
// user-paused drive stays paused through a global resume. `quarantine` and
// `offline` are inherent states that block execution regardless of policy.
func (a *Arbiter) Evaluate(d *types.Drive, in types.PolicyInputValues) types.Decision {
	if d.UserPaused {
		return types.Decision{Allow: false, Reason: types.ReasonUser}
	}
	if d.State == types.DriveStateQuarantined {
		return types.Decision{Allow: false, Reason: types.ReasonQuarantine}
	}
	if d.State == types.DriveStateOffline {
		return types.Decision{Allow: false, Reason: types.ReasonOffline}
	}
	if d.State == types.DriveStateDisabled || !d.Enabled {
		return types.Decision{Allow: false, Reason: types.ReasonPerDriveDisabled}
	}

	for _, reason := range a.cfg.Precedence {
		switch reason {
		case types.ReasonGlobal:
			if in.GlobalPaused {
				return types.Decision{Allow: false, Reason: types.ReasonGlobal}
			}
		case types.ReasonBattery:
			if in.OnBattery {
				return types.Decision{Allow: false, Reason: types.ReasonBattery}
			}
		case types.ReasonIdle:
			if a.cfg.IdlePauseMin > 0 && in.IdleSeconds >= a.cfg.IdlePauseMin*60 {
				return types.Decision{Allow: false, Reason: types.ReasonIdle}
			}
		case types.ReasonPerDriveDisabled:
			// already checked unconditionally above
		}
	}

	return types.Decision{Allow: true, Reason: types.ReasonNone}
}

// CheckExecutable reports whether a drive's inherent state blocks an
// operator-triggered immediate probe (ping-now): quarantined, offline, or
// disabled drives return the matching scheduler error; anything else (user
// paused, global/battery/idle policy) is not checked here and is applied by
// Evaluate at tick time, which can still deny the pinged firing.
func (a *Arbiter) CheckExecutable(d *types.Drive) error {
	switch {
	case d.State == types.DriveStateQuarantined:
		return errors.New(errors.SchedulerDriveQuarantined, "drive is quarantined").WithMetadata("letter", d.Letter)
	case d.State == types.DriveStateOffline:
		return errors.New(errors.SchedulerDriveOffline, "drive is offline").WithMetadata("letter", d.Letter)
	case d.State == types.DriveStateDisabled || !d.Enabled:
		return errors.New(errors.SchedulerDriveDisabled, "drive is disabled").WithMetadata("letter", d.Letter)
	}
	return nil
}

// RecordOutcome updates consecutive_failures and, when the threshold is
// crossed, transitions the drive into Quarantined. PARTIAL_FLUSH and OK both
// count as success for quarantine purposes; SKIP_LOCKED does not affect the
// failure count at all (the loop passes it in like any other outcome).
func (a *Arbiter) RecordOutcome(d *types.Drive, code types.Code, now time.Time) (quarantineEntered bool) {
	switch code {
	case types.CodeOK, types.CodePartialFlush:
		d.ConsecutiveFails = 0
	case types.CodeError:
		d.ConsecutiveFails++
		if d.ConsecutiveFails >= a.cfg.ErrorQuarantineAfter && d.State != types.DriveStateQuarantined {
			d.State = types.DriveStateQuarantined
			d.QuarantineUntil = now.Add(time.Duration(a.cfg.ErrorQuarantineSec) * time.Second)
			d.NextDue = d.QuarantineUntil
			return true
		}
	}
	return false
}

// CheckQuarantineExpiry transitions a quarantined drive back to Active once
// quarantine_until has passed, resetting consecutive_failures to 0.
func (a *Arbiter) CheckQuarantineExpiry(d *types.Drive, now time.Time) (exited bool) {
	if d.State != types.DriveStateQuarantined {
		return false
	}
	if now.Before(d.QuarantineUntil) {
		return false
	}
	d.State = types.DriveStateActive
	d.ConsecutiveFails = 0
	return true
}

// ReleaseQuarantine is the operator-triggered early release, honoring the
// same state transition as natural expiry.
func (a *Arbiter) ReleaseQuarantine(d *types.Drive) error {
	if d.State != types.DriveStateQuarantined {
		return nil
	}
	d.State = types.DriveStateActive
	d.ConsecutiveFails = 0
	d.QuarantineUntil = time.Time{}
	return nil
}
