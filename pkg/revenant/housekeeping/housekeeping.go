// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

// Package housekeeping runs the scheduler's non-tick-critical maintenance
// work on its own cadence, independent of the grid-aligned scheduler loop.
// It wraps gocron the same way the disk package's probe scheduler does,
// minus the per-device schedule registry: there is exactly one job here.
package housekeeping

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/stratastor/logger"

	"github.com/tinkershack/drive-revenant/pkg/errors"
)

// Housekeeper periodically prunes the state directory's backup and corrupt
// artifacts so state.Manager's atomic-replace pattern and Load's
// corrupt-file quarantining don't accumulate files forever.
type Housekeeper struct {
	log       logger.Logger
	scheduler gocron.Scheduler
	stateDir  string
	maxAge    time.Duration
}

// New constructs a Housekeeper bound to stateDir. Artifacts older than
// maxAge are removed each run.
func New(log logger.Logger, stateDir string, maxAge time.Duration) (*Housekeeper, error) {
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return nil, errors.Wrap(err, errors.SchedulerHousekeepingFailed).
			WithMetadata("operation", "create_scheduler")
	}
	return &Housekeeper{log: log, scheduler: scheduler, stateDir: stateDir, maxAge: maxAge}, nil
}

// Start runs one prune pass immediately, then registers the job on a
// one-hour cadence and starts the scheduler.
func (h *Housekeeper) Start() error {
	h.pruneStaleArtifacts()

	_, err := h.scheduler.NewJob(
		gocron.DurationJob(time.Hour),
		gocron.NewTask(h.pruneStaleArtifacts),
		gocron.WithName("prune-state-artifacts"),
	)
	if err != nil {
		return errors.Wrap(err, errors.SchedulerHousekeepingFailed).
			WithMetadata("operation", "register_prune_job")
	}
	h.scheduler.Start()
	return nil
}

// Stop shuts the scheduler down, waiting for the in-flight run (if any) to
// finish.
func (h *Housekeeper) Stop() error {
	if err := h.scheduler.Shutdown(); err != nil {
		return errors.Wrap(err, errors.SchedulerHousekeepingFailed).
			WithMetadata("operation", "shutdown")
	}
	return nil
}

// pruneStaleArtifacts removes ".backup" files and ".corrupt"-suffixed
// quarantined state files older than maxAge from the state directory.
func (h *Housekeeper) pruneStaleArtifacts() {
	entries, err := os.ReadDir(h.stateDir)
	if err != nil {
		h.log.Warn("housekeeping: failed to list state directory", "dir", h.stateDir, "error", err)
		return
	}

	cutoff := time.Now().Add(-h.maxAge)
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasSuffix(name, ".backup") && !strings.Contains(name, ".corrupt") {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(h.stateDir, name)
		if err := os.Remove(path); err != nil {
			h.log.Warn("housekeeping: failed to remove stale artifact", "path", path, "error", err)
			continue
		}
		removed++
	}
	if removed > 0 {
		h.log.Info("housekeeping: pruned stale state artifacts", "count", removed, "dir", h.stateDir)
	}
}
