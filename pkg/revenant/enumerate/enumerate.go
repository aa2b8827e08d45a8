// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

// Package enumerate provides the default DriveEnumerator. Real
// device-enumeration and type inference are named external collaborators
// (out of scope for the core); this package reads the statically declared
// drive list from configuration instead of probing the OS.
package enumerate

import (
	"strings"

	"github.com/tinkershack/drive-revenant/config"
	"github.com/tinkershack/drive-revenant/pkg/revenant/types"
)

// ConfigEnumerator satisfies types.DriveEnumerator from config.Config.Drives.
type ConfigEnumerator struct {
	entries []config.DriveEntry
}

// New constructs a ConfigEnumerator over the given declared drive list.
func New(entries []config.DriveEntry) *ConfigEnumerator {
	return &ConfigEnumerator{entries: entries}
}

// List returns the configured drives, normalizing type strings and falling
// back to Unknown for anything unrecognized (treat_unknown_as_ssd is applied
// downstream, when cmd/serve builds the drive record from this list).
func (c *ConfigEnumerator) List() ([]types.EnumeratedDrive, error) {
	out := make([]types.EnumeratedDrive, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, types.EnumeratedDrive{
			Letter:    types.NormalizeLetter(e.Letter),
			Type:      normalizeType(e.Type),
			Removable: normalizeType(e.Type) == types.DriveTypeRemovable,
		})
	}
	return out, nil
}

func normalizeType(t string) types.DriveType {
	switch strings.ToUpper(strings.TrimSpace(t)) {
	case "HDD":
		return types.DriveTypeHDD
	case "SSD":
		return types.DriveTypeSSD
	case "REMOVABLE":
		return types.DriveTypeRemovable
	default:
		return types.DriveTypeUnknown
	}
}
