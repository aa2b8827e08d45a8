// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

package ioengine

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinkershack/drive-revenant/pkg/revenant/types"
)

// fakeLockedError lets tests exercise the SKIP_LOCKED path without a real
// sharing violation.
type fakeLockedError struct{ msg string }

func (e *fakeLockedError) Error() string { return e.msg }
func (e *fakeLockedError) Locked() bool  { return true }

type fakeFS struct {
	mkdirErr     error
	writeErr     error
	flushErr     error
	flushOK      bool
	replaceErr   error
	replaceCalls int
	readErr      error
	readExisted  bool
}

func (f *fakeFS) MkdirAll(dir string) error { return f.mkdirErr }

func (f *fakeFS) WriteTemp(dir, payload string) (string, error) {
	if f.writeErr != nil {
		return "", f.writeErr
	}
	return dir + "/.tmp", nil
}

func (f *fakeFS) Flush(tempPath string, deadline time.Duration) (bool, error) {
	if f.flushErr != nil {
		return false, f.flushErr
	}
	return f.flushOK, nil
}

func (f *fakeFS) Replace(canonicalPath, tempPath string) error {
	f.replaceCalls++
	return f.replaceErr
}

func (f *fakeFS) ReadCanonical(canonicalPath string, maxBytes int) ([]byte, bool, error) {
	if f.readErr != nil {
		return nil, false, f.readErr
	}
	return []byte("x"), f.readExisted, nil
}

func newTestDrive() *types.Drive {
	return &types.Drive{Letter: "D", PingDir: "/ping/D"}
}

func TestProbeWriteOK(t *testing.T) {
	fs := &fakeFS{flushOK: true}
	e := New(Config{Fsync: true, MaxFlushMs: 100}, fs, time.Now)

	out := e.ProbeWrite(newTestDrive(), time.Now())
	assert.Equal(t, types.CodeOK, out.Code)
	assert.Equal(t, types.OpWrite, out.Op)
	assert.Equal(t, 1, fs.replaceCalls)
}

func TestProbeWriteMkdirError(t *testing.T) {
	fs := &fakeFS{mkdirErr: errors.New("permission denied")}
	e := New(Config{}, fs, time.Now)

	out := e.ProbeWrite(newTestDrive(), time.Now())
	assert.Equal(t, types.CodeError, out.Code)
}

func TestProbeWriteLockedOnWrite(t *testing.T) {
	fs := &fakeFS{writeErr: &fakeLockedError{msg: "locked"}}
	e := New(Config{}, fs, time.Now)

	out := e.ProbeWrite(newTestDrive(), time.Now())
	assert.Equal(t, types.CodeSkipLocked, out.Code)
}

func TestProbeWritePartialFlushIsNotRolledBack(t *testing.T) {
	fs := &fakeFS{flushOK: false}
	e := New(Config{Fsync: true, MaxFlushMs: 10}, fs, time.Now)

	out := e.ProbeWrite(newTestDrive(), time.Now())
	require.Equal(t, types.CodePartialFlush, out.Code)
	assert.Equal(t, 1, fs.replaceCalls, "a partial flush must still complete the replace, not abort it")
}

func TestProbeWriteRetriesReplaceOnceWhenLocked(t *testing.T) {
	fs := &fakeFS{replaceErr: &fakeLockedError{msg: "locked"}}
	e := New(Config{LockRetryMs: 1}, fs, time.Now)

	out := e.ProbeWrite(newTestDrive(), time.Now())
	assert.Equal(t, types.CodeSkipLocked, out.Code)
	assert.Equal(t, 2, fs.replaceCalls, "a locked replace must be retried exactly once")
}

func TestProbeReadMissingFileIsOK(t *testing.T) {
	fs := &fakeFS{readExisted: false}
	e := New(Config{}, fs, time.Now)

	out := e.ProbeRead(newTestDrive(), time.Now())
	assert.Equal(t, types.CodeOK, out.Code)
	assert.Equal(t, "created", out.Notes)
}

func TestProbeReadLocked(t *testing.T) {
	fs := &fakeFS{readErr: &fakeLockedError{msg: "locked"}}
	e := New(Config{}, fs, time.Now)

	out := e.ProbeRead(newTestDrive(), time.Now())
	assert.Equal(t, types.CodeSkipLocked, out.Code)
}
