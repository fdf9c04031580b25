// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"slices"
	"sync"
	"time"
)

// FakeClock is a manually driven Clock. Time only moves on Advance.
// It is safe for concurrent use.
type FakeClock struct {
	mu      sync.Mutex
	changed *sync.Cond
	now     time.Time
	pending []retryTimer

	// created counts every timer handed out, fired or not.
	created int
}

type retryTimer struct {
	due     time.Time
	channel chan time.Time
}

// Fake returns a FakeClock reading start.
func Fake(start time.Time) *FakeClock {
	fake := &FakeClock{now: start}
	fake.changed = sync.NewCond(&fake.mu)
	return fake
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *FakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	channel := make(chan time.Time, 1)
	if d <= 0 {
		channel <- c.now
		return channel
	}
	c.pending = append(c.pending, retryTimer{due: c.now.Add(d), channel: channel})
	c.created++
	c.changed.Broadcast()
	return channel
}

// Advance moves the clock forward by d and fires every timer that has
// come due, earliest first.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	now := c.now

	var due []retryTimer
	c.pending = slices.DeleteFunc(c.pending, func(timer retryTimer) bool {
		if timer.due.After(now) {
			return false
		}
		due = append(due, timer)
		return true
	})
	c.changed.Broadcast()
	c.mu.Unlock()

	slices.SortStableFunc(due, func(a, b retryTimer) int { return a.due.Compare(b.due) })
	for _, timer := range due {
		timer.channel <- now
	}
}

// WaitForTimers blocks until at least n timers are pending, so a test
// can advance only after the loop has entered its retry wait.
func (c *FakeClock) WaitForTimers(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for len(c.pending) < n {
		c.changed.Wait()
	}
}

// WaitForRegistered blocks until at least n timers have been created
// over the clock's lifetime.
func (c *FakeClock) WaitForRegistered(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for c.created < n {
		c.changed.Wait()
	}
}

// PendingCount reports how many timers have not fired yet.
func (c *FakeClock) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}
