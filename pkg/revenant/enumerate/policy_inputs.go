// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

package enumerate

import "github.com/tinkershack/drive-revenant/pkg/revenant/types"

// StaticPolicyInputs is the default types.PolicyInputs: battery state and
// idle-duration probing are named external collaborators (out of scope for
// the core), so this reports a fixed baseline: never on battery, never idle,
// and globally paused only when GlobalPaused is set.
type StaticPolicyInputs struct {
	GlobalPaused bool
}

// Read returns the fixed baseline.
func (s *StaticPolicyInputs) Read() (types.PolicyInputValues, error) {
	return types.PolicyInputValues{GlobalPaused: s.GlobalPaused, OnBattery: false, IdleSeconds: 0}, nil
}
