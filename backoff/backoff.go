/*
 * MIT License
 *
 * Copyright (c) 2024 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

// Package backoff implements the fixed exponential-backoff retry schedule
// used to drive reconnection attempts.
package backoff

import (
	"context"
	"time"
)

// Table is an ordered sequence of retry delays.
type Table []time.Duration

// DefaultTable returns the 9-entry schedule: roughly 9.77ms, 19.53ms,
// 39.06ms, 78.13ms, 156.25ms, 312.5ms, 625ms, 1.25s, 2.5s. The period
// stabilises at the end of the table: 1.25s once, then 2.5s forever.
func DefaultTable() Table {
	return Table{
		10 * time.Second / 1024, // ~9.77ms
		20 * time.Second / 1024, // ~19.53ms
		40 * time.Second / 1024, // ~39.06ms
		80 * time.Second / 1024, // ~78.13ms
		160 * time.Second / 1024,
		320 * time.Second / 1024,
		640 * time.Second / 1024,
		1250 * time.Millisecond,
		2500 * time.Millisecond,
	}
}

// Timer drives a sequence of retries against Table, using TimeNow as an
// injectable clock so tests can run the schedule without real sleeps.
type Timer struct {
	Table   Table
	TimeNow func() time.Time

	attempt int
	start   time.Time
}

// NewTimer returns a Timer with the default table and time.Now clock.
func NewTimer() *Timer {
	return &Timer{Table: DefaultTable(), TimeNow: time.Now}
}

// Reset clears the attempt counter, starting the schedule over.
func (t *Timer) Reset() {
	t.attempt = 0
	t.start = time.Time{}
}

// Retry invokes tryOnce immediately. If it returns false, Retry sleeps for
// the next scheduled delay (honoring ctx cancellation) and invokes tryOnce
// again, repeating until tryOnce returns true or ctx is done.
func (t *Timer) Retry(ctx context.Context, tryOnce func() bool) error {
	t.start = t.TimeNow()
	t.attempt = 0

	for {
		if tryOnce() {
			return nil
		}

		delay := t.nextDelay()
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		t.attempt++
	}
}

// NextAndAdvance returns the next scheduled delay and advances the
// internal attempt counter, for callers (such as connection.Connection)
// that drive their own retry loop instead of using Retry.
func (t *Timer) NextAndAdvance() time.Duration {
	if t.start.IsZero() {
		t.start = t.TimeNow()
	}
	d := t.nextDelay()
	t.attempt++
	return d
}

// nextDelay picks the smallest table entry, at or after the current
// attempt's index, strictly greater than the elapsed time since the first
// attempt. Once the attempt count passes the end of the table it holds at
// the last entry.
func (t *Timer) nextDelay() time.Duration {
	if len(t.Table) == 0 {
		return 0
	}

	elapsed := t.TimeNow().Sub(t.start)
	idx := t.attempt
	if idx >= len(t.Table) {
		// Steady state: the schedule visited 1.25s once (the penultimate
		// entry) and now holds at 2.5s (the last entry) forever.
		return t.Table[len(t.Table)-1]
	}

	for i := idx; i < len(t.Table); i++ {
		if t.Table[i] > elapsed {
			return t.Table[i]
		}
	}
	return t.Table[len(t.Table)-1]
}
