// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

package enumerate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinkershack/drive-revenant/config"
	"github.com/tinkershack/drive-revenant/pkg/revenant/types"
)

func TestListNormalizesDeclaredTypes(t *testing.T) {
	e := New([]config.DriveEntry{
		{Letter: "D", Type: "hdd"},
		{Letter: "E", Type: " SSD "},
		{Letter: "F", Type: "Removable"},
		{Letter: "G", Type: "nonsense"},
	})

	got, err := e.List()
	require.NoError(t, err)
	require.Len(t, got, 4)

	assert.Equal(t, types.DriveTypeHDD, got[0].Type)
	assert.Equal(t, types.DriveTypeSSD, got[1].Type)
	assert.Equal(t, types.DriveTypeRemovable, got[2].Type)
	assert.True(t, got[2].Removable)
	assert.Equal(t, types.DriveTypeUnknown, got[3].Type)
	assert.False(t, got[3].Removable)
}

func TestListNormalizesDriveLetters(t *testing.T) {
	e := New([]config.DriveEntry{
		{Letter: "e:", Type: "ssd"},
		{Letter: " f ", Type: "ssd"},
	})

	got, err := e.List()
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "E", got[0].Letter)
	assert.Equal(t, "F", got[1].Letter)
}

func TestListEmpty(t *testing.T) {
	e := New(nil)
	got, err := e.List()
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestStaticPolicyInputsReadsFixedBaseline(t *testing.T) {
	s := &StaticPolicyInputs{GlobalPaused: true}
	got, err := s.Read()
	require.NoError(t, err)
	assert.True(t, got.GlobalPaused)
	assert.False(t, got.OnBattery)
	assert.Equal(t, 0, got.IdleSeconds)
}
