// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides the core's C1 component: a monotonic time source
// with grid quantization, built directly on clockwork so tests can advance
// time deterministically instead of sleeping.
package clock

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// GridResolution is the grid cell width (§ GLOSSARY: a 500 ms aligned interval
// on the monotonic timeline).
const GridResolution = 500 * time.Millisecond

// Clock is the core's injectable time source. now() is any strictly
// non-decreasing instant; grid_floor(t) rounds down to the grid.
type Clock struct {
	underlying clockwork.Clock
}

// New wraps a clockwork.Clock. Pass clockwork.NewRealClock() in production
// and clockwork.NewFakeClock() in tests.
func New(c clockwork.Clock) *Clock {
	return &Clock{underlying: c}
}

// NewReal returns a Clock backed by the real wall/monotonic clock.
func NewReal() *Clock {
	return New(clockwork.NewRealClock())
}

// Now returns the current instant.
func (c *Clock) Now() time.Time {
	return c.underlying.Now()
}

// GridFloor returns the largest grid-aligned instant <= t.
func GridFloor(t time.Time) time.Time {
	return t.Truncate(GridResolution)
}

// NextGridEdge returns the next grid boundary strictly after GridFloor(now).
func NextGridEdge(now time.Time) time.Time {
	return GridFloor(now).Add(GridResolution)
}

// SleepUntil blocks until t, or returns immediately if t is not in the future.
func (c *Clock) SleepUntil(t time.Time) {
	now := c.underlying.Now()
	if !t.After(now) {
		return
	}
	c.underlying.Sleep(t.Sub(now))
}

// NewTimer and NewTicker hand back clockwork's own Timer/Ticker instead of
// time.NewTimer/time.NewTicker, so a caller that selects on their .Chan()
// stays driven by this Clock's source (real or fake) instead of the real
// wall clock.
func (c *Clock) NewTimer(d time.Duration) clockwork.Timer {
	return c.underlying.NewTimer(d)
}

func (c *Clock) NewTicker(d time.Duration) clockwork.Ticker {
	return c.underlying.NewTicker(d)
}

// Underlying exposes the wrapped clockwork.Clock, e.g. for test advancement
// (c.Underlying().(clockwork.FakeClock).Advance(...)).
func (c *Clock) Underlying() clockwork.Clock {
	return c.underlying
}
