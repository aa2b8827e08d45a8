// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

package revenantapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinkershack/drive-revenant/pkg/errors"
	"github.com/tinkershack/drive-revenant/pkg/revenant/types"
)

// fakeLoop is a scripted LoopAPI, independent of the real scheduler loop, so
// these tests exercise the HTTP routing and error mapping in isolation.
type fakeLoop struct {
	snapshot        types.Snapshot
	pauseErr        error
	resumeErr       error
	pingErr         error
	releaseErr      error
	setErr          error
	lastSetLetter   string
	lastSetInterval *int
}

func (f *fakeLoop) CurrentSnapshot() types.Snapshot       { return f.snapshot }
func (f *fakeLoop) PauseDrive(letter string) error        { return f.pauseErr }
func (f *fakeLoop) ResumeDrive(letter string) error       { return f.resumeErr }
func (f *fakeLoop) PingNow(letter string) error           { return f.pingErr }
func (f *fakeLoop) ReleaseQuarantine(letter string) error { return f.releaseErr }
func (f *fakeLoop) SetDriveConfig(letter string, intervalSec *int, driveType *types.DriveType, enabled *bool) error {
	f.lastSetLetter = letter
	f.lastSetInterval = intervalSec
	return f.setErr
}

func newTestServer(loop *fakeLoop) *Server {
	return New(loop)
}

func TestGetStatusReturnsCurrentSnapshot(t *testing.T) {
	loop := &fakeLoop{snapshot: types.Snapshot{Drives: []types.DriveSnapshotView{{Letter: "D"}}}}
	s := newTestServer(loop)

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec := httptest.NewRecorder()
	s.engine.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var got types.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got.Drives, 1)
	assert.Equal(t, "D", got.Drives[0].Letter)
}

func TestPauseDriveSuccess(t *testing.T) {
	loop := &fakeLoop{}
	s := newTestServer(loop)

	req := httptest.NewRequest(http.MethodPost, "/drives/D/pause", nil)
	rec := httptest.NewRecorder()
	s.engine.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestPauseDriveNotFoundMapsToRodentError(t *testing.T) {
	loop := &fakeLoop{pauseErr: errors.New(errors.SchedulerDriveNotFound, "no such drive")}
	s := newTestServer(loop)

	req := httptest.NewRequest(http.MethodPost, "/drives/Z/pause", nil)
	rec := httptest.NewRecorder()
	s.engine.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)

	var body map[string]map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, float64(errors.SchedulerDriveNotFound), body["error"]["code"])
}

func TestPauseDriveGenericErrorMapsToLoopNotRunning(t *testing.T) {
	loop := &fakeLoop{pauseErr: assertAnError{}}
	s := newTestServer(loop)

	req := httptest.NewRequest(http.MethodPost, "/drives/D/pause", nil)
	rec := httptest.NewRecorder()
	s.engine.ServeHTTP(rec, req)

	var body map[string]map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, float64(errors.SchedulerLoopNotRunning), body["error"]["code"])
}

type assertAnError struct{}

func (assertAnError) Error() string { return "boom" }

func TestSetDriveConfigBindsJSONBody(t *testing.T) {
	loop := &fakeLoop{}
	s := newTestServer(loop)

	body, err := json.Marshal(map[string]any{"interval_sec": 45})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPut, "/drives/D/config", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.engine.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "D", loop.lastSetLetter)
	require.NotNil(t, loop.lastSetInterval)
	assert.Equal(t, 45, *loop.lastSetInterval)
}

func TestSetDriveConfigRejectsNonPositiveInterval(t *testing.T) {
	loop := &fakeLoop{}
	s := newTestServer(loop)

	body, err := json.Marshal(map[string]any{"interval_sec": 0})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPut, "/drives/D/config", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.engine.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, loop.lastSetLetter, "the loop must never see a non-positive interval")
}

func TestSetDriveConfigInvalidBodyIsBadRequest(t *testing.T) {
	loop := &fakeLoop{}
	s := newTestServer(loop)

	req := httptest.NewRequest(http.MethodPut, "/drives/D/config", bytes.NewReader([]byte("not json")))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.engine.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReleaseQuarantineAndPingNowRoutes(t *testing.T) {
	loop := &fakeLoop{}
	s := newTestServer(loop)

	for _, path := range []string{"/drives/D/quarantine/release", "/drives/D/ping-now", "/drives/D/resume"} {
		req := httptest.NewRequest(http.MethodPost, path, nil)
		rec := httptest.NewRecorder()
		s.engine.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNoContent, rec.Code, "path %s", path)
	}
}
