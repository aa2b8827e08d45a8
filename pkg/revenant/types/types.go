// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

// Package types holds the data model and external-interface contracts of the
// scheduling/IO/policy core: the Drive record, the immutable Snapshot
// published each tick, and the collaborator interfaces consumed from outside
// the core (device enumeration, policy inputs, clock, filesystem, event
// sink).
package types

import (
	"strings"
	"time"
)

// DriveType classifies a managed volume for HDD-guard and op-selection purposes.
type DriveType string

const (
	DriveTypeSSD       DriveType = "SSD"
	DriveTypeHDD       DriveType = "HDD"
	DriveTypeRemovable DriveType = "Removable"
	DriveTypeUnknown   DriveType = "Unknown"
)

// DriveState is the lifecycle state of a managed drive.
type DriveState string

const (
	DriveStateActive      DriveState = "Active"
	DriveStatePaused      DriveState = "Paused"
	DriveStateQuarantined DriveState = "Quarantined"
	DriveStateDisabled    DriveState = "Disabled"
	DriveStateOffline     DriveState = "Offline"
)

// Op is the kind of probe operation.
type Op string

const (
	OpRead  Op = "read"
	OpWrite Op = "write"
)

// Code is the outcome classification of one IO engine probe.
type Code string

const (
	CodeOK           Code = "OK"
	CodeSkipLocked   Code = "SKIP_LOCKED"
	CodePartialFlush Code = "PARTIAL_FLUSH"
	CodeError        Code = "ERROR"
)

// Reason is why the policy arbiter denied a scheduled op.
type Reason string

const (
	ReasonNone             Reason = "none"
	ReasonUser             Reason = "user"
	ReasonGlobal           Reason = "global"
	ReasonBattery          Reason = "battery"
	ReasonIdle             Reason = "idle"
	ReasonPerDriveDisabled Reason = "per_drive_disable"
	ReasonQuarantine       Reason = "quarantine"
	ReasonOffline          Reason = "offline"
)

// Outcome is the result of one probe execution.
type Outcome struct {
	Op        Op
	Code      Code
	LatencyMs int64
	Notes     string
	Instant   time.Time
}

// OutcomeEntry is one ring-buffer slot of a drive's recent outcome history.
type OutcomeEntry struct {
	Op        Op
	Code      Code
	LatencyMs int64
	Instant   time.Time
}

// NormalizeLetter canonicalizes a drive letter to the data model's invariant
// form: a single uppercase character, with any trailing colon stripped (so
// "e", "E", "e:", and "E:" all key the same Drive).
func NormalizeLetter(letter string) string {
	letter = strings.TrimSpace(letter)
	letter = strings.TrimSuffix(letter, ":")
	return strings.ToUpper(letter)
}

// Drive is one managed volume, keyed by its normalized letter.
type Drive struct {
	Letter           string
	Type             DriveType
	IntervalSec      int
	Enabled          bool
	UserPaused       bool
	PingDir          string
	PhaseOffsetGrid  int64
	State            DriveState
	ConsecutiveFails int
	QuarantineUntil  time.Time
	LastOutcome      []OutcomeEntry // most recent first, capped at 3
	NextDue          time.Time

	// EnabledAt anchors the canonical cadence: t_nom(k) = grid_floor(EnabledAt) + phase_offset + k*interval.
	EnabledAt time.Time
	// FireCount is the number of firings since EnabledAt, used both to compute
	// t_nom(k) and to pick write-vs-read per §4.5's op-selection rule.
	FireCount int64
	// LastFireAt is the actual instant of the most recent firing, used by the
	// HDD guard to enforce the hard maximum-gap bound.
	LastFireAt time.Time
	// ForceNextWrite is set when a read probe finds no canonical ping file
	// (first firing after enable, or one recreated after external deletion):
	// the planner's next op-selection for this drive is forced to a write
	// regardless of the SSD/Removable read cadence, and cleared once that
	// write actually executes.
	ForceNextWrite bool
}

// PushOutcome records a new outcome at the front of the 3-entry ring buffer.
func (d *Drive) PushOutcome(o OutcomeEntry) {
	d.LastOutcome = append([]OutcomeEntry{o}, d.LastOutcome...)
	if len(d.LastOutcome) > 3 {
		d.LastOutcome = d.LastOutcome[:3]
	}
}

// Firing is one (drive, op) pair due at a particular grid cell, carried as a
// value-typed record rather than a reference into planning-loop locals (see
// design notes on closure-capture pitfalls).
type Firing struct {
	Letter    string
	Op        Op
	FireIndex int64
	Due       time.Time
	TieEpoch  int64 // grid cell number
	TieRank   int   // post-sort index within the cell
	PackSize  int   // total ops in this cell
}

// Decision is the policy arbiter's verdict for one firing.
type Decision struct {
	Allow  bool
	Reason Reason
}

// DriveSnapshotView is one drive's row in a published Snapshot.
type DriveSnapshotView struct {
	Letter              string
	Type                DriveType
	State               DriveState
	IntervalSec         int
	NextDue             time.Time
	SecondsUntilNext    float64
	LastOutcome         []OutcomeEntry
	QuarantineRemaining time.Duration
	PolicyReason        Reason
}

// GlobalSnapshotView is the global portion of a Snapshot.
type GlobalSnapshotView struct {
	Paused       bool
	PauseReason  Reason
	Now          time.Time
}

// Snapshot is the immutable, by-value view published after every tick whose
// observable state changed.
type Snapshot struct {
	TakenAt time.Time
	Drives  []DriveSnapshotView
	Global  GlobalSnapshotView
}

// DriveEnumerator is the external collaborator that reports the set of
// physical volumes present. Implementations debounce device-change
// notifications themselves; the core only calls List().
type DriveEnumerator interface {
	List() ([]EnumeratedDrive, error)
}

// EnumeratedDrive is one row returned by DriveEnumerator.List.
type EnumeratedDrive struct {
	Letter      string
	Type        DriveType
	SizeBytes   int64
	Removable   bool
}

// PolicyInputs is the external collaborator providing the global/battery/idle
// signals the PolicyArbiter consults at the top of each tick.
type PolicyInputs interface {
	Read() (PolicyInputValues, error)
}

// PolicyInputValues is the result of one PolicyInputs.Read call.
type PolicyInputValues struct {
	GlobalPaused bool
	OnBattery    bool
	IdleSeconds  int
}

// Filesystem is the abstract probe-file collaborator: create directory,
// open/write/read/replace/flush/close primitives, isolated so the IOEngine
// never calls os.* directly.
type Filesystem interface {
	MkdirAll(dir string) error
	WriteTemp(dir, payload string) (tempPath string, err error)
	Flush(tempPath string, deadline time.Duration) (complete bool, err error)
	Replace(canonicalPath, tempPath string) error
	ReadCanonical(canonicalPath string, maxBytes int) (content []byte, existed bool, err error)
}

// EventSink is the external collaborator that receives structured records —
// NDJSON emission mechanics belong to it, not to the core.
type EventSink interface {
	Emit(event Event)
	Close() error
}

// EventKind distinguishes the record shapes described in the NDJSON schema.
type EventKind string

const (
	EventKindProbe           EventKind = "probe"
	EventKindPolicyChange    EventKind = "policy_change"
	EventKindQuarantineEnter EventKind = "quarantine_enter"
	EventKindQuarantineExit  EventKind = "quarantine_exit"
	EventKindResumeSmooth    EventKind = "resume_smooth"
)

// Event is one structured record destined for the EventSink. Only the fields
// relevant to Kind are populated; json struct tags follow the NDJSON schema
// of §6 exactly.
type Event struct {
	Kind      EventKind `json:"-"`
	TS        time.Time `json:"ts"`
	MonoMs    int64     `json:"mono_ms"`
	Drive     string    `json:"drive"`
	Op        Op        `json:"op"`
	Code      Code      `json:"code"`
	LatencyMs int64     `json:"latency_ms,omitempty"`
	TieEpoch  int64     `json:"tie_epoch"`
	TieRank   int       `json:"tie_rank"`
	PackSize  int       `json:"pack_size"`
	Notes     string    `json:"notes,omitempty"`
}
