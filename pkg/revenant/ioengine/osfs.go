// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

package ioengine

import (
	"errors"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/tinkershack/drive-revenant/pkg/revenant/types"
)

// OSFilesystem is the production types.Filesystem, backed by the real
// filesystem. Flush runs on a helper goroutine so the caller can observe a
// deadline without blocking the calling task on the OS.
type OSFilesystem struct{}

// NewOSFilesystem constructs the real Filesystem collaborator.
func NewOSFilesystem() *OSFilesystem {
	return &OSFilesystem{}
}

func (OSFilesystem) MkdirAll(dir string) error {
	return os.MkdirAll(dir, 0o755)
}

func (OSFilesystem) WriteTemp(dir, payload string) (string, error) {
	tempPath := filepath.Join(dir, "."+uuid.NewString()+".tmp")
	if err := os.WriteFile(tempPath, []byte(payload), 0o644); err != nil {
		return "", lockWrap(err)
	}
	return tempPath, nil
}

// Flush runs fsync in a worker goroutine and abandons the wait at the
// deadline; the write is never rolled back on timeout.
func (OSFilesystem) Flush(tempPath string, deadline time.Duration) (bool, error) {
	f, err := os.OpenFile(tempPath, os.O_RDWR, 0o644)
	if err != nil {
		return false, err
	}
	defer f.Close()

	done := make(chan error, 1)
	go func() {
		done <- f.Sync()
	}()

	select {
	case err := <-done:
		return true, err
	case <-time.After(deadline):
		return false, nil
	}
}

func (OSFilesystem) Replace(canonicalPath, tempPath string) error {
	if _, err := os.Stat(canonicalPath); err == nil {
		// Best-effort backup of the prior canonical file; failure here does
		// not abort the replace.
		_ = os.Rename(canonicalPath, canonicalPath+".backup")
	}
	if err := os.Rename(tempPath, canonicalPath); err != nil {
		_ = os.Remove(tempPath)
		return lockWrap(err)
	}
	return nil
}

func (OSFilesystem) ReadCanonical(canonicalPath string, maxBytes int) ([]byte, bool, error) {
	f, err := os.Open(canonicalPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, lockWrap(err)
	}
	defer f.Close()

	buf := make([]byte, maxBytes)
	n, err := f.Read(buf)
	if err != nil && err.Error() != "EOF" {
		return nil, true, lockWrap(err)
	}
	return buf[:n], true, nil
}

// fsLockedError classifies a sharing-violation-class OS error so ioengine
// can distinguish SKIP_LOCKED from ERROR without string-matching.
type fsLockedError struct{ err error }

func (e *fsLockedError) Error() string { return e.err.Error() }
func (e *fsLockedError) Unwrap() error { return e.err }
func (e *fsLockedError) Locked() bool  { return true }

func lockWrap(err error) error {
	if errors.Is(err, syscall.EBUSY) || errors.Is(err, syscall.ETXTBSY) || errors.Is(err, os.ErrPermission) {
		return &fsLockedError{err: err}
	}
	var pathErr *os.PathError
	if errors.As(err, &pathErr) {
		if pathErr.Err == syscall.EBUSY || pathErr.Err == syscall.ETXTBSY {
			return &fsLockedError{err: err}
		}
	}
	return err
}
