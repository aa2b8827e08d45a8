// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

// Package sink implements the core's EventSink collaborator as a bounded,
// asynchronous NDJSON writer. Emit is non-blocking: a full channel drops the
// event rather than stalling the scheduler loop, following the event bus's
// channel-with-drop pattern.
package sink

import (
	"bufio"
	"encoding/json"
	"io"
	"sync"
	"time"

	"github.com/stratastor/logger"

	"github.com/tinkershack/drive-revenant/pkg/revenant/types"
)

// NDJSONSink writes one JSON object per line to the configured writer.
type NDJSONSink struct {
	log logger.Logger

	eventChan chan types.Event
	stopChan  chan struct{}
	doneChan  chan struct{}

	mu         sync.RWMutex
	isShutdown bool

	w *bufio.Writer
}

// New constructs an NDJSONSink writing to w (typically an opened log file)
// with the given channel capacity, and starts its drain goroutine.
func New(w io.Writer, capacity int, l logger.Logger) *NDJSONSink {
	if capacity <= 0 {
		capacity = 1000
	}
	s := &NDJSONSink{
		log:       l,
		eventChan: make(chan types.Event, capacity),
		stopChan:  make(chan struct{}),
		doneChan:  make(chan struct{}),
		w:         bufio.NewWriter(w),
	}
	go s.drain()
	return s
}

// Emit queues an event for asynchronous write. Non-blocking: a full channel
// drops the event and logs a warning rather than stalling the caller.
func (s *NDJSONSink) Emit(event types.Event) {
	s.mu.RLock()
	if s.isShutdown {
		s.mu.RUnlock()
		return
	}
	s.mu.RUnlock()

	select {
	case s.eventChan <- event:
	default:
		if s.log != nil {
			s.log.Warn("event sink channel full, dropping event", "kind", string(event.Kind), "drive", event.Drive)
		}
	}
}

func (s *NDJSONSink) drain() {
	defer close(s.doneChan)
	flush := time.NewTicker(1 * time.Second)
	defer flush.Stop()

	for {
		select {
		case event := <-s.eventChan:
			s.write(event)
		case <-flush.C:
			_ = s.w.Flush()
		case <-s.stopChan:
			// Bounded drain: write whatever is already queued, then stop.
			for {
				select {
				case event := <-s.eventChan:
					s.write(event)
				default:
					_ = s.w.Flush()
					return
				}
			}
		}
	}
}

func (s *NDJSONSink) write(event types.Event) {
	line, err := json.Marshal(event)
	if err != nil {
		if s.log != nil {
			s.log.Error("failed to marshal event", "error", err)
		}
		return
	}
	line = append(line, '\n')
	if _, err := s.w.Write(line); err != nil && s.log != nil {
		s.log.Error("failed to write event", "error", err)
	}
}

// Close stops the drain goroutine, bounded to 2 seconds, after writing
// whatever is already queued.
func (s *NDJSONSink) Close() error {
	s.mu.Lock()
	if s.isShutdown {
		s.mu.Unlock()
		return nil
	}
	s.isShutdown = true
	s.mu.Unlock()

	close(s.stopChan)
	select {
	case <-s.doneChan:
	case <-time.After(2 * time.Second):
	}
	return s.w.Flush()
}
