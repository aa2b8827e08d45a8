// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

// Package ioengine implements the core's C3 component: one bounded-flush
// write probe or one read probe against a drive's probe directory, with
// lock-retry and atomic-replace semantics. The atomic temp-file-then-rename
// pattern mirrors the state package's debounced-save approach, applied here
// to a single small probe file instead of JSON state.
package ioengine

import (
	"path/filepath"
	"strconv"
	"time"

	"github.com/tinkershack/drive-revenant/pkg/errors"
	"github.com/tinkershack/drive-revenant/pkg/revenant/types"
)

// Config carries the configuration keys the IO engine consumes.
type Config struct {
	Fsync       bool
	MaxFlushMs  int
	LockRetryMs int
}

// Engine is the IOEngine (C3).
type Engine struct {
	cfg   Config
	fs    types.Filesystem
	nowFn func() time.Time
}

// New constructs an Engine over the given Filesystem collaborator. nowFn
// measures latency on the monotonic clock; pass the core Clock's Now.
func New(cfg Config, fs types.Filesystem, nowFn func() time.Time) *Engine {
	return &Engine{cfg: cfg, fs: fs, nowFn: nowFn}
}

const canonicalName = "drive_revenant"

// ProbeWrite executes one write probe against the drive's ping_dir.
func (e *Engine) ProbeWrite(d *types.Drive, now time.Time) types.Outcome {
	out := types.Outcome{Op: types.OpWrite, Instant: now}
	defer func() { out.LatencyMs = e.nowFn().Sub(now).Milliseconds() }()

	if err := e.fs.MkdirAll(d.PingDir); err != nil {
		out.Code = types.CodeError
		out.Notes = errors.Wrap(err, errors.SchedulerProbeDirCreateFailed).Error()
		return out
	}

	payload := "drive_revenant " + strconv.FormatInt(now.UnixMilli(), 10) + "\n"
	tempPath, err := e.fs.WriteTemp(d.PingDir, payload)
	if err != nil {
		if isLocked(err) {
			out.Code = types.CodeSkipLocked
			out.Notes = errors.New(errors.SchedulerProbeLocked, "locked on write").Error()
			return out
		}
		out.Code = types.CodeError
		out.Notes = errors.Wrap(err, errors.SchedulerProbeWriteFailed).Error()
		return out
	}

	partial := false
	if e.cfg.Fsync {
		deadline := time.Duration(e.cfg.MaxFlushMs) * time.Millisecond
		complete, ferr := e.fs.Flush(tempPath, deadline)
		if ferr != nil {
			out.Code = types.CodeError
			out.Notes = errors.Wrap(ferr, errors.SchedulerProbeWriteFailed).Error()
			return out
		}
		if !complete {
			partial = true
		}
	}

	canonical := filepath.Join(d.PingDir, canonicalName)
	if err := e.fs.Replace(canonical, tempPath); err != nil {
		if !isLocked(err) {
			out.Code = types.CodeError
			out.Notes = errors.Wrap(err, errors.SchedulerProbeReplaceFailed).Error()
			return out
		}
		time.Sleep(time.Duration(e.cfg.LockRetryMs) * time.Millisecond)
		if err2 := e.fs.Replace(canonical, tempPath); err2 != nil {
			if isLocked(err2) {
				out.Code = types.CodeSkipLocked
				out.Notes = errors.New(errors.SchedulerProbeLocked, "locked after retry").Error()
				return out
			}
			out.Code = types.CodeError
			out.Notes = errors.Wrap(err2, errors.SchedulerProbeReplaceFailed).Error()
			return out
		}
	}

	if partial {
		out.Code = types.CodePartialFlush
		out.Notes = "flush deadline exceeded, write not rolled back"
	} else {
		out.Code = types.CodeOK
	}
	return out
}

// ProbeRead executes one read probe against the drive's ping_dir.
func (e *Engine) ProbeRead(d *types.Drive, now time.Time) types.Outcome {
	out := types.Outcome{Op: types.OpRead, Instant: now}
	defer func() { out.LatencyMs = e.nowFn().Sub(now).Milliseconds() }()

	canonical := filepath.Join(d.PingDir, canonicalName)
	_, existed, err := e.fs.ReadCanonical(canonical, 4096)
	if err != nil {
		if isLocked(err) {
			out.Code = types.CodeSkipLocked
			out.Notes = errors.New(errors.SchedulerProbeLocked, "locked on read").Error()
			return out
		}
		out.Code = types.CodeError
		out.Notes = errors.Wrap(err, errors.SchedulerProbeReadFailed).Error()
		return out
	}
	if !existed {
		// Missing file is not an error; the loop forces this drive's next
		// scheduled firing to be a write (no extra firing is added on the
		// next tick).
		out.Code = types.CodeOK
		out.Notes = "created"
		return out
	}
	out.Code = types.CodeOK
	return out
}

// lockedError is the classification the Filesystem collaborator returns for
// sharing-violation-class errors.
type lockedError interface {
	Locked() bool
}

func isLocked(err error) bool {
	le, ok := err.(lockedError)
	return ok && le.Locked()
}
