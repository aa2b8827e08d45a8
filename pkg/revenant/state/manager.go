// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

// Package state persists the scheduler's drive set across restarts. It
// mirrors the write-to-temp/backup-rename/atomic-rename pattern the ioengine
// package uses for probe files, applied here to one JSON document holding
// every drive's config and policy state.
package state

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stratastor/logger"

	"github.com/tinkershack/drive-revenant/pkg/errors"
	"github.com/tinkershack/drive-revenant/pkg/revenant/types"
)

// persisted is the on-disk shape. Only config/policy state survives a
// restart; scheduling is monotonic and ephemeral (no schedule-across-reboots
// guarantee), so NextDue/EnabledAt/FireCount/LastFireAt/PhaseOffsetGrid are
// never written here — they are re-derived fresh at enable time on every
// start. PingDir and Type are otherwise re-derived from the drive enumerator
// and config on load.
type persisted struct {
	SavedAt time.Time        `json:"saved_at"`
	Drives  []persistedDrive `json:"drives"`
}

type persistedDrive struct {
	Letter           string    `json:"letter"`
	Type             string    `json:"type"`
	IntervalSec      int       `json:"interval_sec"`
	Enabled          bool      `json:"enabled"`
	UserPaused       bool      `json:"user_paused"`
	State            string    `json:"state"`
	ConsecutiveFails int       `json:"consecutive_fails"`
	QuarantineUntil  time.Time `json:"quarantine_until"`
}

// Manager owns the on-disk state file and debounces writes so a burst of
// ticks does not turn into a burst of fsyncs.
type Manager struct {
	path string
	log  logger.Logger

	mu      sync.Mutex
	dirty   bool
	pending *persisted
}

// New constructs a Manager bound to the given state file path. log may be
// nil (e.g. in tests); when set, it receives a warning on a corrupt state
// file and on save failures.
func New(path string, log logger.Logger) *Manager {
	return &Manager{path: path, log: log}
}

// Load reads the state file, merging saved config/policy state onto the
// caller's authoritative drive list (keyed by Letter). Scheduling itself
// (NextDue, EnabledAt, FireCount, PhaseOffsetGrid) is never restored: it is
// monotonic and ephemeral by design, recomputed fresh at enable time on every
// start. A missing file is not an error: every drive starts fresh, as if
// newly enabled. A corrupt file is renamed aside with a timestamp suffix and
// the caller proceeds with empty state, rather than failing startup.
func (m *Manager) Load(drives []*types.Drive) error {
	raw, err := os.ReadFile(m.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Wrap(err, errors.SchedulerStateLoadFailed)
	}

	var doc persisted
	if err := json.Unmarshal(raw, &doc); err != nil {
		corrupt := m.path + "." + time.Now().UTC().Format("20060102T150405") + ".corrupt"
		_ = os.Rename(m.path, corrupt)
		if m.log != nil {
			m.log.Warn("scheduler state file was corrupt, quarantined and reset",
				"error", errors.Wrap(err, errors.SchedulerStateCorrupt).Error(), "quarantined_to", corrupt)
		}
		return nil
	}

	byLetter := make(map[string]persistedDrive, len(doc.Drives))
	for _, pd := range doc.Drives {
		byLetter[pd.Letter] = pd
	}
	for _, d := range drives {
		pd, ok := byLetter[d.Letter]
		if !ok {
			continue
		}
		d.IntervalSec = pd.IntervalSec
		d.Enabled = pd.Enabled
		d.UserPaused = pd.UserPaused
		d.State = types.DriveState(pd.State)
		d.ConsecutiveFails = pd.ConsecutiveFails
		d.QuarantineUntil = pd.QuarantineUntil
	}
	return nil
}

// MarkDirty records that the in-memory drive set has changed since the last
// save, without writing to disk. The loop calls this after every tick that
// mutates schedule or policy state; Flush does the actual write, debounced by
// the caller (e.g. on a ticker or at shutdown).
func (m *Manager) MarkDirty(drives []*types.Drive, now time.Time) {
	doc := &persisted{SavedAt: now, Drives: make([]persistedDrive, 0, len(drives))}
	for _, d := range drives {
		doc.Drives = append(doc.Drives, persistedDrive{
			Letter:           d.Letter,
			Type:             string(d.Type),
			IntervalSec:      d.IntervalSec,
			Enabled:          d.Enabled,
			UserPaused:       d.UserPaused,
			State:            string(d.State),
			ConsecutiveFails: d.ConsecutiveFails,
			QuarantineUntil:  d.QuarantineUntil,
		})
	}
	m.mu.Lock()
	m.pending = doc
	m.dirty = true
	m.mu.Unlock()
}

// Flush writes the most recently marked-dirty snapshot to disk atomically,
// if anything has changed since the last Flush. Safe to call on a timer.
func (m *Manager) Flush() error {
	m.mu.Lock()
	if !m.dirty || m.pending == nil {
		m.mu.Unlock()
		return nil
	}
	doc := m.pending
	m.dirty = false
	m.mu.Unlock()

	payload, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return errors.Wrap(err, errors.SchedulerStateSaveFailed)
	}

	dir := filepath.Dir(m.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		saveErr := errors.Wrap(err, errors.SchedulerStateSaveFailed)
		if m.log != nil {
			m.log.Warn("failed to save scheduler state", "error", saveErr.Error())
		}
		return saveErr
	}
	tempPath := filepath.Join(dir, "."+uuid.NewString()+".tmp")
	if err := os.WriteFile(tempPath, payload, 0o644); err != nil {
		saveErr := errors.Wrap(err, errors.SchedulerStateSaveFailed)
		if m.log != nil {
			m.log.Warn("failed to save scheduler state", "error", saveErr.Error())
		}
		return saveErr
	}
	if _, err := os.Stat(m.path); err == nil {
		_ = os.Rename(m.path, m.path+".backup")
	}
	if err := os.Rename(tempPath, m.path); err != nil {
		_ = os.Remove(tempPath)
		saveErr := errors.Wrap(err, errors.SchedulerStateSaveFailed)
		if m.log != nil {
			m.log.Warn("failed to save scheduler state", "error", saveErr.Error())
		}
		return saveErr
	}
	return nil
}
