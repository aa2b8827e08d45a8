// Copyright 2025 Raamsri Kumar <raam@tinkershack.in>
// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

package errors

import (
	"maps"
	"net/http"
)

// Scheduler/IO/Policy core error codes (2400-2499).
const (
	// Planner errors (2400-2419)
	SchedulerDriveNotFound    = 2400 + iota // No such drive
	SchedulerDriveExists                    // Drive already configured
	SchedulerInvalidInterval                // interval_sec out of bounds
	SchedulerInvalidLetter                  // Drive letter not a single normalized character
	SchedulerPlanningInvariant              // Planner produced an invariant-violating plan

	// IO engine errors (2420-2439)
	SchedulerProbeDirCreateFailed = 2420 + iota
	SchedulerProbeWriteFailed
	SchedulerProbeReadFailed
	SchedulerProbeReplaceFailed
	SchedulerProbeLocked

	// Policy/quarantine errors (2440-2459)
	SchedulerDriveQuarantined = 2440 + iota
	SchedulerDriveDisabled
	SchedulerDriveOffline
	SchedulerInvalidPrecedence

	// State/config errors (2460-2479)
	SchedulerStateLoadFailed = 2460 + iota
	SchedulerStateSaveFailed
	SchedulerStateCorrupt

	// Command channel errors (2480-2499)
	SchedulerCommandQueueFull = 2480 + iota
	SchedulerLoopNotRunning
	SchedulerHousekeepingFailed
)

func init() {
	schedulerErrorDefinitions := map[ErrorCode]struct {
		message    string
		domain     Domain
		httpStatus int
	}{
		SchedulerDriveNotFound: {
			"Drive not found",
			DomainScheduler,
			http.StatusNotFound,
		},
		SchedulerDriveExists: {
			"Drive already configured",
			DomainScheduler,
			http.StatusConflict,
		},
		SchedulerInvalidInterval: {
			"Interval out of configured bounds",
			DomainScheduler,
			http.StatusBadRequest,
		},
		SchedulerInvalidLetter: {
			"Drive letter must be a single normalized character",
			DomainScheduler,
			http.StatusBadRequest,
		},
		SchedulerPlanningInvariant: {
			"Planner produced a plan violating a scheduling invariant",
			DomainScheduler,
			http.StatusInternalServerError,
		},
		SchedulerProbeDirCreateFailed: {
			"Failed to create probe directory",
			DomainScheduler,
			http.StatusInternalServerError,
		},
		SchedulerProbeWriteFailed: {
			"Probe write failed",
			DomainScheduler,
			http.StatusInternalServerError,
		},
		SchedulerProbeReadFailed: {
			"Probe read failed",
			DomainScheduler,
			http.StatusInternalServerError,
		},
		SchedulerProbeReplaceFailed: {
			"Failed to atomically replace probe file",
			DomainScheduler,
			http.StatusInternalServerError,
		},
		SchedulerProbeLocked: {
			"Probe file locked by another process",
			DomainScheduler,
			http.StatusConflict,
		},
		SchedulerDriveQuarantined: {
			"Drive is quarantined",
			DomainScheduler,
			http.StatusConflict,
		},
		SchedulerDriveDisabled: {
			"Drive is disabled",
			DomainScheduler,
			http.StatusConflict,
		},
		SchedulerDriveOffline: {
			"Drive is offline",
			DomainScheduler,
			http.StatusConflict,
		},
		SchedulerInvalidPrecedence: {
			"Invalid policy precedence list",
			DomainScheduler,
			http.StatusBadRequest,
		},
		SchedulerStateLoadFailed: {
			"Failed to load scheduler state",
			DomainScheduler,
			http.StatusInternalServerError,
		},
		SchedulerStateSaveFailed: {
			"Failed to save scheduler state",
			DomainScheduler,
			http.StatusInternalServerError,
		},
		SchedulerStateCorrupt: {
			"Scheduler state file was corrupt and has been reset",
			DomainScheduler,
			http.StatusInternalServerError,
		},
		SchedulerCommandQueueFull: {
			"Command channel is full",
			DomainScheduler,
			http.StatusServiceUnavailable,
		},
		SchedulerLoopNotRunning: {
			"Scheduler loop is not running",
			DomainScheduler,
			http.StatusConflict,
		},
		SchedulerHousekeepingFailed: {
			"Housekeeping task failed",
			DomainScheduler,
			http.StatusInternalServerError,
		},
	}
	maps.Copy(errorDefinitions, schedulerErrorDefinitions)
}
