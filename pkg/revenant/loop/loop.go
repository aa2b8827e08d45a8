// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

// Package loop implements the core's C5 component: the SchedulerLoop. It
// ties together the Clock, JitterPlanner, PolicyArbiter, and IOEngine into
// one grid-aligned tick cycle, and exposes the operator-facing commands as a
// bounded channel drained at the top of every tick.
package loop

import (
	"context"
	"sync"
	"time"

	"github.com/stratastor/logger"

	"github.com/tinkershack/drive-revenant/pkg/errors"
	"github.com/tinkershack/drive-revenant/pkg/revenant/clock"
	"github.com/tinkershack/drive-revenant/pkg/revenant/planner"
	"github.com/tinkershack/drive-revenant/pkg/revenant/policy"
	"github.com/tinkershack/drive-revenant/pkg/revenant/state"
	"github.com/tinkershack/drive-revenant/pkg/revenant/types"
)

func errUnknownDrive(letter string) error {
	return errors.New(errors.SchedulerDriveNotFound, "no such drive").WithMetadata("letter", letter)
}

func errCommandQueueFull() error {
	return errors.New(errors.SchedulerCommandQueueFull, "command channel did not drain in time")
}

// commandKind enumerates the operator-facing intents the loop accepts.
type commandKind string

const (
	cmdSetDriveConfig   commandKind = "set_drive_config"
	cmdPauseDrive       commandKind = "pause_drive"
	cmdResumeDrive      commandKind = "resume_drive"
	cmdReleaseQuarantine commandKind = "release_quarantine"
	cmdPingNow          commandKind = "ping_now"
)

type command struct {
	kind   commandKind
	letter string
	// setDriveConfig fields
	intervalSec *int
	driveType   *types.DriveType
	enabled     *bool

	result chan error
}

// Config carries every spec-facing tunable the loop needs, already resolved
// from the config package.
type Config struct {
	Fsync                bool
	MaxFlushMs           int
	LockRetryMs          int
	JitterSec            float64
	HDDMaxGapSec         int
	DeadlineMarginSec    float64
	InstallID            string
	IdlePauseMin         int
	ErrorQuarantineAfter int
	ErrorQuarantineSec   int
	Precedence           []types.Reason
	IntervalMinSec       int
}

// Loop is the SchedulerLoop (C5).
type Loop struct {
	cfg Config
	clk *clock.Clock

	planner *planner.Planner
	arbiter *policy.Arbiter
	io      IOExecutor
	sink    types.EventSink
	state   *state.Manager
	inputs  types.PolicyInputs

	log logger.Logger

	mu       sync.RWMutex
	drives   map[string]*types.Drive
	global   types.PolicyInputValues
	lastSnap types.Snapshot
	lastTick time.Time

	commands chan command

	subMu sync.Mutex
	subs  []chan types.Snapshot
}

// IOExecutor is the subset of ioengine.Engine the loop depends on, narrowed
// to an interface so tests can substitute a fake.
type IOExecutor interface {
	ProbeWrite(d *types.Drive, now time.Time) types.Outcome
	ProbeRead(d *types.Drive, now time.Time) types.Outcome
}

// New constructs a Loop. drives is the authoritative, already-state-loaded
// set of managed volumes, keyed by letter.
func New(cfg Config, clk *clock.Clock, p *planner.Planner, a *policy.Arbiter, io IOExecutor, sink types.EventSink, sm *state.Manager, inputs types.PolicyInputs, log logger.Logger, drives map[string]*types.Drive) *Loop {
	return &Loop{
		cfg:      cfg,
		clk:      clk,
		planner:  p,
		arbiter:  a,
		io:       io,
		sink:     sink,
		state:    sm,
		inputs:   inputs,
		log:      log,
		drives:   drives,
		commands: make(chan command, 64),
	}
}

// Run drives the tick cycle until ctx is cancelled, then drains in-flight
// work for up to 2 seconds before returning.
func (l *Loop) Run(ctx context.Context) error {
	flush := l.clk.NewTicker(5 * time.Second)
	defer flush.Stop()

	for {
		next := clock.NextGridEdge(l.clk.Now())
		select {
		case <-ctx.Done():
			return l.shutdown()
		case <-flush.Chan():
			_ = l.state.Flush()
		default:
		}

		waitFor := next.Sub(l.clk.Now())
		if waitFor < 0 {
			waitFor = 0
		}
		timer := l.clk.NewTimer(waitFor)
		select {
		case <-ctx.Done():
			timer.Stop()
			return l.shutdown()
		case <-timer.Chan():
			l.tick()
		}
	}
}

func (l *Loop) shutdown() error {
	deadline := time.NewTimer(2 * time.Second)
	defer deadline.Stop()
drain:
	for {
		select {
		case cmd := <-l.commands:
			l.handleCommand(cmd)
		case <-deadline.C:
			break drain
		default:
			break drain
		}
	}
	_ = l.state.Flush()
	return l.sink.Close()
}

// tick runs one full cycle: drain commands, detect a resume jump, check
// quarantine expiry, evaluate policy, plan, execute in pack order, record
// outcomes, and publish a snapshot if anything observable changed.
func (l *Loop) tick() {
	now := l.clk.Now()
	l.drainCommands()

	l.mu.Lock()
	l.detectResumeSmoothing(now)
	drivesSnapshot := make([]*types.Drive, 0, len(l.drives))
	quarantineExited := false
	for _, d := range l.drives {
		if l.arbiter.CheckQuarantineExpiry(d, now) {
			quarantineExited = true
			l.sink.Emit(types.Event{Kind: types.EventKindQuarantineExit, TS: now, Drive: d.Letter})
		}
		drivesSnapshot = append(drivesSnapshot, d)
	}
	inputs, _ := l.inputs.Read()
	l.global = inputs

	firings := l.planner.Plan(now, drivesSnapshot)
	l.mu.Unlock()

	changed := len(firings) > 0 || quarantineExited
	for _, f := range firings {
		l.executeFiring(f, inputs, now)
	}

	if changed {
		l.state.MarkDirty(l.snapshotDrives(), now)
		l.publishSnapshot(now)
	}
}

func (l *Loop) executeFiring(f types.Firing, inputs types.PolicyInputValues, tickNow time.Time) {
	l.mu.Lock()
	d, ok := l.drives[f.Letter]
	if !ok {
		l.mu.Unlock()
		return
	}
	decision := l.arbiter.Evaluate(d, inputs)
	if !decision.Allow {
		l.planner.NextNominal(d, tickNow)
		l.mu.Unlock()
		l.sink.Emit(types.Event{Kind: types.EventKindPolicyChange, TS: tickNow, Drive: d.Letter, Notes: string(decision.Reason)})
		return
	}
	l.mu.Unlock()

	execAt := l.clk.Now()
	var out types.Outcome
	if f.Op == types.OpWrite {
		out = l.io.ProbeWrite(d, execAt)
	} else {
		out = l.io.ProbeRead(d, execAt)
	}

	l.mu.Lock()
	d.PushOutcome(types.OutcomeEntry{Op: out.Op, Code: out.Code, LatencyMs: out.LatencyMs, Instant: out.Instant})
	d.LastFireAt = execAt
	if f.Op == types.OpWrite {
		d.ForceNextWrite = false
	} else if out.Code == types.CodeOK && out.Notes == "created" {
		d.ForceNextWrite = true
	}
	entered := l.arbiter.RecordOutcome(d, out.Code, execAt)
	if !entered {
		l.planner.NextNominal(d, execAt)
	}
	l.mu.Unlock()

	l.sink.Emit(types.Event{
		Kind:      types.EventKindProbe,
		TS:        out.Instant,
		Drive:     d.Letter,
		Op:        out.Op,
		Code:      out.Code,
		LatencyMs: out.LatencyMs,
		TieEpoch:  f.TieEpoch,
		TieRank:   f.TieRank,
		PackSize:  f.PackSize,
		Notes:     out.Notes,
	})
	if entered {
		l.sink.Emit(types.Event{Kind: types.EventKindQuarantineEnter, TS: execAt, Drive: d.Letter})
	}
}

// detectResumeSmoothing detects a wall-clock jump larger than the
// resume-smoothing threshold (suspend/resume, large clock step) and pulls
// every drive's next_due back to a small, grid-snapped horizon instead of
// letting stale due times fire as one enormous burst.
func (l *Loop) detectResumeSmoothing(now time.Time) {
	threshold := time.Duration(l.cfg.IntervalMinSec) * 2 * time.Second
	if threshold < 5*time.Second {
		threshold = 5 * time.Second
	}
	prev := l.lastTick
	l.lastTick = now
	if prev.IsZero() {
		return
	}
	gap := now.Sub(prev)
	if gap <= threshold {
		return
	}
	horizon := 2 * time.Second
	for _, d := range l.drives {
		ivl := time.Duration(d.IntervalSec) * time.Second
		h := horizon
		if half := ivl / 2; half < h {
			h = half
		}
		d.NextDue = clock.GridFloor(now.Add(h))
		d.EnabledAt = d.NextDue.Add(-time.Duration(d.PhaseOffsetGrid) * clock.GridResolution)
		d.FireCount = 0
	}
	l.sink.Emit(types.Event{Kind: types.EventKindResumeSmooth, TS: now, Notes: gap.String()})
}

func (l *Loop) snapshotDrives() []*types.Drive {
	out := make([]*types.Drive, 0, len(l.drives))
	for _, d := range l.drives {
		out = append(out, d)
	}
	return out
}

func (l *Loop) publishSnapshot(now time.Time) {
	l.mu.RLock()
	views := make([]types.DriveSnapshotView, 0, len(l.drives))
	for _, d := range l.drives {
		var remaining time.Duration
		if d.State == types.DriveStateQuarantined {
			remaining = d.QuarantineUntil.Sub(now)
			if remaining < 0 {
				remaining = 0
			}
		}
		views = append(views, types.DriveSnapshotView{
			Letter:              d.Letter,
			Type:                d.Type,
			State:               d.State,
			IntervalSec:         d.IntervalSec,
			NextDue:             d.NextDue,
			SecondsUntilNext:    d.NextDue.Sub(now).Seconds(),
			LastOutcome:         d.LastOutcome,
			QuarantineRemaining: remaining,
			PolicyReason:        types.ReasonNone,
		})
	}
	snap := types.Snapshot{
		TakenAt: now,
		Drives:  views,
		Global:  types.GlobalSnapshotView{Paused: l.global.GlobalPaused, Now: now},
	}
	l.lastSnap = snap
	l.mu.RUnlock()

	l.subMu.Lock()
	for _, ch := range l.subs {
		select {
		case ch <- snap:
		default:
		}
	}
	l.subMu.Unlock()
}

// CurrentSnapshot returns the most recently published snapshot.
func (l *Loop) CurrentSnapshot() types.Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.lastSnap
}

// Subscribe registers an observer channel for every published snapshot. The
// returned channel is buffered by 1; a slow observer misses intermediate
// snapshots rather than blocking the loop.
func (l *Loop) Subscribe() <-chan types.Snapshot {
	ch := make(chan types.Snapshot, 1)
	l.subMu.Lock()
	l.subs = append(l.subs, ch)
	l.subMu.Unlock()
	return ch
}

func (l *Loop) drainCommands() {
	for {
		select {
		case cmd := <-l.commands:
			l.handleCommand(cmd)
		default:
			return
		}
	}
}

func (l *Loop) handleCommand(cmd command) {
	l.mu.Lock()
	d, ok := l.drives[cmd.letter]
	if !ok && cmd.kind != cmdSetDriveConfig {
		l.mu.Unlock()
		cmd.result <- errUnknownDrive(cmd.letter)
		return
	}
	var err error
	switch cmd.kind {
	case cmdSetDriveConfig:
		if !ok {
			d = &types.Drive{Letter: cmd.letter, State: types.DriveStateActive, EnabledAt: l.clk.Now()}
			l.drives[cmd.letter] = d
		}
		if cmd.driveType != nil {
			d.Type = *cmd.driveType
		}
		if cmd.intervalSec != nil {
			d.IntervalSec = *cmd.intervalSec
		}
		d.IntervalSec = planner.ClampIntervalSec(d.Type, d.IntervalSec, l.cfg.IntervalMinSec, l.cfg.HDDMaxGapSec)
		if cmd.enabled != nil {
			d.Enabled = *cmd.enabled
		}
		d.PhaseOffsetGrid = l.planner.PhaseOffsetGrid(d.Letter, d.IntervalSec, l.clk.Now())
	case cmdPauseDrive:
		d.UserPaused = true
	case cmdResumeDrive:
		d.UserPaused = false
	case cmdReleaseQuarantine:
		err = l.arbiter.ReleaseQuarantine(d)
	case cmdPingNow:
		if err = l.arbiter.CheckExecutable(d); err == nil {
			d.NextDue = l.clk.Now()
		}
	}
	l.mu.Unlock()
	if err != nil && l.log != nil {
		l.log.Warn("drive command failed", "kind", string(cmd.kind), "letter", cmd.letter, "error", err)
	}
	if cmd.result != nil {
		cmd.result <- err
	}
}

func (l *Loop) send(cmd command) error {
	cmd.letter = types.NormalizeLetter(cmd.letter)
	cmd.result = make(chan error, 1)
	select {
	case l.commands <- cmd:
	case <-time.After(2 * time.Second):
		return errCommandQueueFull()
	}
	return <-cmd.result
}

// SetDriveConfig enqueues a configuration change for a drive, creating it if
// it does not yet exist.
func (l *Loop) SetDriveConfig(letter string, intervalSec *int, driveType *types.DriveType, enabled *bool) error {
	return l.send(command{kind: cmdSetDriveConfig, letter: letter, intervalSec: intervalSec, driveType: driveType, enabled: enabled})
}

// PauseDrive enqueues a user-pause for a drive.
func (l *Loop) PauseDrive(letter string) error {
	return l.send(command{kind: cmdPauseDrive, letter: letter})
}

// ResumeDrive enqueues a user-resume for a drive.
func (l *Loop) ResumeDrive(letter string) error {
	return l.send(command{kind: cmdResumeDrive, letter: letter})
}

// ReleaseQuarantine enqueues an early quarantine release for a drive.
func (l *Loop) ReleaseQuarantine(letter string) error {
	return l.send(command{kind: cmdReleaseQuarantine, letter: letter})
}

// PingNow enqueues an immediate (next-tick) firing for a drive.
func (l *Loop) PingNow(letter string) error {
	return l.send(command{kind: cmdPingNow, letter: letter})
}
