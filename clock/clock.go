// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package clock provides cancellable, time-based suspension for ef fibers:
// [Sleep] resumes the calling fiber after a duration elapses, and is
// interruptible like any other [ef.EffectAsync]-based effect. [VirtualClock]
// is a deterministic test double that advances time under the test's
// control instead of the wall clock, for tests that exercise timing
// behavior without ever actually sleeping.
package clock

import (
	"errors"
	"sort"
	"sync"
	"time"

	"code.hybscloud.com/ef"
)

// ErrTimeout is the failure [Timeout] reports when effect does not complete
// within its deadline.
var ErrTimeout = errors.New("ef/clock: timed out")

// Clock is the minimal interface ef's timed effects are built against;
// [Wall] is the real implementation and [VirtualClock] is the test double.
type Clock interface {
	// After arranges for fire to be called once, no sooner than d after
	// After returns, and returns a cancel function that prevents fire from
	// running if called before it fires.
	After(d time.Duration, fire func()) (cancel func())
	// Now returns the clock's current instant.
	Now() time.Time
}

// Wall is the real-time [Clock], backed by [time.AfterFunc].
var Wall Clock = wallClock{}

type wallClock struct{}

func (wallClock) Now() time.Time { return time.Now() }

func (wallClock) After(d time.Duration, fire func()) func() {
	t := time.AfterFunc(d, fire)
	return func() { t.Stop() }
}

// Sleep suspends the calling fiber for at least d, measured by clk.
// Interrupting the fiber while asleep cancels the pending timer instead of
// leaking it.
func Sleep(clk Clock, d time.Duration) ef.Effect[struct{}] {
	return ef.EffectAsync(func(resume func(ef.Exit[struct{}])) ef.Effect[struct{}] {
		cancel := clk.After(d, func() { resume(ef.Succeeded(struct{}{})) })
		return ef.EffectTotal(func() struct{} {
			cancel()
			return struct{}{}
		})
	})
}

// Timeout races effect against a [Sleep] of d on clk: if effect wins, its
// Exit is returned as-is; if the deadline wins, effect is interrupted and
// the result fails with [ErrTimeout].
func Timeout[A any](clk Clock, d time.Duration, effect ef.Effect[A]) ef.Effect[ef.Exit[A]] {
	return ef.RaceWith(effect, Sleep(clk, d),
		func(exit ef.Exit[A], loser *ef.Fiber[struct{}]) ef.Effect[ef.Exit[A]] {
			return ef.FlatMap(interruptLoser(loser), func(struct{}) ef.Effect[ef.Exit[A]] {
				return ef.Succeed(exit)
			})
		},
		func(_ ef.Exit[struct{}], loser *ef.Fiber[A]) ef.Effect[ef.Exit[A]] {
			return ef.FlatMap(interruptLoser(loser), func(struct{}) ef.Effect[ef.Exit[A]] {
				return ef.Succeed(ef.Failed[A](ef.FailCause(ErrTimeout)))
			})
		},
	)
}

// TimeoutFail is [Timeout] composed with [ef.Flatten]: instead of returning
// an [ef.Exit] describing whether effect finished in time, it directly
// propagates [ErrTimeout] as this Effect's own failure.
func TimeoutFail[A any](clk Clock, d time.Duration, effect ef.Effect[A]) ef.Effect[A] {
	return ef.Flatten(Timeout(clk, d, effect))
}

// interruptLoser interrupts loser, attributing the interruption to the
// currently running fiber (the winner of the race).
func interruptLoser[T any](loser *ef.Fiber[T]) ef.Effect[struct{}] {
	return ef.FlatMap(ef.EffectDescriptor(func(d ef.Descriptor) ef.Effect[ef.FiberID] {
		return ef.Succeed(d.ID)
	}), func(id ef.FiberID) ef.Effect[struct{}] {
		return loser.Interrupt(id)
	})
}

// VirtualClock is a [Clock] whose Now only advances when [VirtualClock.Advance]
// is called, for deterministic tests of timing behavior.
type VirtualClock struct {
	mu      sync.Mutex
	now     time.Time
	waiters []*virtualWaiter
}

type virtualWaiter struct {
	deadline  time.Time
	fire      func()
	cancelled bool
}

// NewVirtualClock creates a VirtualClock starting at epoch.
func NewVirtualClock(epoch time.Time) *VirtualClock {
	return &VirtualClock{now: epoch}
}

func (c *VirtualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *VirtualClock) After(d time.Duration, fire func()) func() {
	c.mu.Lock()
	w := &virtualWaiter{deadline: c.now.Add(d), fire: fire}
	c.waiters = append(c.waiters, w)
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		w.cancelled = true
		c.mu.Unlock()
	}
}

// Advance moves the virtual clock forward by d, synchronously firing every
// timer whose deadline has now passed, in deadline order.
func (c *VirtualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	now := c.now
	var due []*virtualWaiter
	remaining := c.waiters[:0]
	for _, w := range c.waiters {
		if !w.cancelled && !w.deadline.After(now) {
			due = append(due, w)
		} else if !w.cancelled {
			remaining = append(remaining, w)
		}
	}
	c.waiters = remaining
	c.mu.Unlock()

	sort.Slice(due, func(i, j int) bool { return due[i].deadline.Before(due[j].deadline) })
	for _, w := range due {
		w.fire()
	}
}
