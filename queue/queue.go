// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package queue is a bounded, asynchronous FIFO queue built entirely from
// [ef.EffectAsync] and [ef.Promise]: offering into a full queue and taking
// from an empty one both suspend the calling fiber instead of blocking an OS
// thread, and are cancellable like any other [ef.Effect].
//
// The queue itself is guarded by a plain mutex, not an [ef.Ref], mirroring
// the mutex-plus-FIFO-of-resume-callbacks shape ef's own Promise uses
// internally — a queue is, structurally, many one-shot promises (one per
// pending offer or take) multiplexed over a shared buffer.
package queue

import (
	"errors"
	"sync"

	"code.hybscloud.com/ef"
)

// ErrShutdown is the failure every pending and future offer/take observes
// once a [Queue] has been shut down.
var ErrShutdown = errors.New("ef/queue: queue is shut down")

// Strategy governs what happens when Offer is called against a full bounded
// queue (the "Surplus" state).
type Strategy uint8

const (
	// BackPressure suspends the offering fiber until room is available or a
	// waiting taker can receive the value directly. This is the default and
	// the only strategy that ever suspends an offer.
	BackPressure Strategy = iota
	// Sliding drops the oldest buffered element to make room for the new
	// one; Offer never suspends, and returns false when it dropped one.
	Sliding
	// Dropping discards the newly offered element when the queue is full;
	// Offer returns false without suspending.
	Dropping
)

// Unbounded is the capacity value for a queue that never applies a surplus
// strategy: Offer always appends and returns true immediately.
const Unbounded = -1

// pendingPut is one parked BackPressure offer: every value from a single
// Offer/OfferAll call, plus the one promise shared by all of them. Keeping
// an entire batch as one FIFO entry (rather than one entry per scalar
// value) is what makes a multi-element OfferAll an atomic FIFO unit: no
// concurrent Offer from another caller can be interleaved into the middle
// of it while it waits for room.
type pendingPut[A any] struct {
	values []A
	ack    *ef.Promise[bool]
}

// Queue is a bounded, FIFO, multi-producer multi-consumer asynchronous
// queue. The zero value is not usable; construct with [NewQueue].
type Queue[A any] struct {
	mu       sync.Mutex
	capacity int
	strategy Strategy
	items    []A
	takers   []*ef.Promise[A]
	putters  []*pendingPut[A]
	shutdown bool
}

// NewQueue creates a bounded queue of the given capacity and surplus
// strategy. A non-positive capacity other than [Unbounded] is treated as a
// capacity of 1.
func NewQueue[A any](capacity int, strategy Strategy) *Queue[A] {
	if capacity != Unbounded && capacity <= 0 {
		capacity = 1
	}
	return &Queue[A]{capacity: capacity, strategy: strategy}
}

// NewUnboundedQueue creates a queue with no capacity limit; Offer never
// suspends and the surplus strategy never applies.
func NewUnboundedQueue[A any]() *Queue[A] {
	return &Queue[A]{capacity: Unbounded}
}

// MakeQueue is the Effect-returning constructor, for use inside an effect
// program.
func MakeQueue[A any](capacity int, strategy Strategy) ef.Effect[*Queue[A]] {
	return ef.EffectTotal(func() *Queue[A] { return NewQueue[A](capacity, strategy) })
}

// Size reports the number of buffered elements, not counting fibers
// suspended on Offer or Take.
func (q *Queue[A]) Size() ef.Effect[int] {
	return ef.EffectTotal(func() int {
		q.mu.Lock()
		defer q.mu.Unlock()
		return len(q.items)
	})
}

// IsShutdown reports whether [Queue.Shutdown] has already run.
func (q *Queue[A]) IsShutdown() ef.Effect[bool] {
	return ef.EffectTotal(func() bool {
		q.mu.Lock()
		defer q.mu.Unlock()
		return q.shutdown
	})
}

// Offer enqueues a. Under BackPressure, Offer suspends the calling fiber
// until room exists or a waiting taker consumes a directly, and always
// returns true once it does. Under Dropping it never suspends and returns
// false if a was discarded instead of enqueued. Under Sliding it never
// suspends either, but returns false whenever enqueuing a forced the
// oldest buffered element out to make room. Offer fails with
// [ErrShutdown] if the queue has already been shut down.
func (q *Queue[A]) Offer(a A) ef.Effect[bool] {
	return q.OfferAll([]A{a})
}

// OfferAll offers every element of as, in order, as a single FIFO unit:
// under BackPressure, a concurrent Offer or OfferAll from another caller can
// never be interleaved into the middle of this batch while it waits for
// room, matching the putter queue's FIFO<(values, promise)> shape. Returns
// false if any element was dropped or rejected (a Sliding eviction, a
// Dropping discard) and true if every element landed in the buffer, or was
// handed straight to a waiting taker, untouched. Under BackPressure this may
// suspend until every element has been placed, and always returns true once
// it does. OfferAll fails with [ErrShutdown] if the queue has already been
// shut down.
func (q *Queue[A]) OfferAll(as []A) ef.Effect[bool] {
	if len(as) == 0 {
		return ef.Succeed(true)
	}
	return ef.EffectAsync(func(resume func(ef.Exit[bool])) ef.Effect[struct{}] {
		q.mu.Lock()
		if q.shutdown {
			q.mu.Unlock()
			resume(ef.Failed[bool](ef.FailCause(ErrShutdown)))
			return ef.Effect[struct{}]{}
		}

		remaining, untouched := q.admitLocked(as)
		if len(remaining) == 0 {
			q.mu.Unlock()
			resume(ef.Succeeded(untouched))
			return ef.Effect[struct{}]{}
		}

		// Only BackPressure ever leaves a remainder: Sliding and Dropping
		// are applied to every element inside admitLocked and never park.
		ack := ef.NewPromise[bool]()
		entry := &pendingPut[A]{values: remaining, ack: ack}
		q.putters = append(q.putters, entry)
		q.mu.Unlock()
		ack.OnComplete(func(exit ef.Exit[bool]) { resume(exit) })
		return ef.EffectTotal(func() struct{} {
			q.removePutter(entry)
			return struct{}{}
		})
	})
}

// admitLocked places as many elements of as directly into the queue as
// possible, in order: handing one to a waiting taker, appending it to the
// buffer while under capacity, or, once the buffer is full, applying the
// surplus strategy. Sliding and Dropping always consume every element this
// way; BackPressure stops at the first element that does not fit and
// returns the unconsumed suffix for the caller to park as one unit. Callers
// must hold q.mu.
func (q *Queue[A]) admitLocked(as []A) (remaining []A, untouched bool) {
	untouched = true
	for i, a := range as {
		if len(q.takers) > 0 {
			taker := q.takers[0]
			q.takers = q.takers[1:]
			taker.Fulfill(ef.Succeeded(a))
			continue
		}
		if q.capacity == Unbounded || len(q.items) < q.capacity {
			q.items = append(q.items, a)
			continue
		}
		switch q.strategy {
		case Sliding:
			if len(q.items) > 0 {
				q.items = q.items[1:]
			}
			q.items = append(q.items, a)
			untouched = false
		case Dropping:
			untouched = false
		default: // BackPressure
			return as[i:], untouched
		}
	}
	return nil, untouched
}

// Take removes and returns one element, suspending the calling fiber if the
// queue is empty until one is offered. Take fails with [ErrShutdown] once
// the queue is shut down, even if elements are still buffered.
func (q *Queue[A]) Take() ef.Effect[A] {
	return ef.EffectAsync(func(resume func(ef.Exit[A])) ef.Effect[struct{}] {
		q.mu.Lock()
		if q.shutdown {
			q.mu.Unlock()
			resume(ef.Failed[A](ef.FailCause(ErrShutdown)))
			return ef.Effect[struct{}]{}
		}
		if v, ok := q.popLocked(); ok {
			q.mu.Unlock()
			resume(ef.Succeeded(v))
			return ef.Effect[struct{}]{}
		}
		taker := ef.NewPromise[A]()
		q.takers = append(q.takers, taker)
		q.mu.Unlock()
		taker.OnComplete(func(exit ef.Exit[A]) { resume(exit) })
		return ef.EffectTotal(func() struct{} {
			q.removeTaker(taker)
			return struct{}{}
		})
	})
}

// popLocked removes and returns the head element if any, then promotes
// waiting putters (BackPressure) into the freed room. Callers must hold
// q.mu and the returned bool reports whether an element was available.
func (q *Queue[A]) popLocked() (A, bool) {
	if len(q.items) == 0 {
		var zero A
		return zero, false
	}
	v := q.items[0]
	q.items = q.items[1:]
	q.fillFromPuttersLocked()
	return v, true
}

// fillFromPuttersLocked drains parked putters into the buffer in FIFO
// order, moving an entire putter's values and fulfilling its promise
// whenever they all fit in the room left, and stopping partway through a
// putter — pushing it back to the front with only its unconsumed tail and
// its promise still pending — the moment its entire remaining values would
// not fit. Callers must hold q.mu.
func (q *Queue[A]) fillFromPuttersLocked() {
	for len(q.putters) > 0 {
		room := q.capacity - len(q.items)
		if room <= 0 {
			return
		}
		p := q.putters[0]
		if len(p.values) <= room {
			q.items = append(q.items, p.values...)
			q.putters = q.putters[1:]
			p.ack.Fulfill(ef.Succeeded(true))
			continue
		}
		q.items = append(q.items, p.values[:room]...)
		p.values = p.values[room:]
		return
	}
}

// TakeAll drains every currently buffered element without suspending, even
// if the queue is empty (in which case it returns an empty, non-nil slice).
func (q *Queue[A]) TakeAll() ef.Effect[[]A] {
	return ef.EffectTotal(func() []A {
		q.mu.Lock()
		defer q.mu.Unlock()
		out := make([]A, 0, len(q.items))
		for {
			v, ok := q.popLocked()
			if !ok {
				break
			}
			out = append(out, v)
		}
		return out
	})
}

// TakeUpTo removes up to max buffered elements without suspending.
func (q *Queue[A]) TakeUpTo(max int) ef.Effect[[]A] {
	return ef.EffectTotal(func() []A {
		q.mu.Lock()
		defer q.mu.Unlock()
		out := make([]A, 0, max)
		for len(out) < max {
			v, ok := q.popLocked()
			if !ok {
				break
			}
			out = append(out, v)
		}
		return out
	})
}

// Shutdown marks the queue closed and fails every currently suspended
// offer and take with [ErrShutdown]. Buffered elements already accepted by
// Offer remain available to TakeAll/TakeUpTo but not to Take, matching the
// teacher's fail-fast shutdown semantics over a best-effort drain.
func (q *Queue[A]) Shutdown() ef.Effect[struct{}] {
	return ef.EffectTotal(func() struct{} {
		q.mu.Lock()
		if q.shutdown {
			q.mu.Unlock()
			return struct{}{}
		}
		q.shutdown = true
		takers := q.takers
		putters := q.putters
		q.takers = nil
		q.putters = nil
		q.mu.Unlock()

		for _, t := range takers {
			t.Fulfill(ef.Failed[A](ef.FailCause(ErrShutdown)))
		}
		for _, p := range putters {
			p.ack.Fulfill(ef.Failed[bool](ef.FailCause(ErrShutdown)))
		}
		return struct{}{}
	})
}

func (q *Queue[A]) removeTaker(target *ef.Promise[A]) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, t := range q.takers {
		if t == target {
			q.takers = append(q.takers[:i], q.takers[i+1:]...)
			return
		}
	}
}

func (q *Queue[A]) removePutter(target *pendingPut[A]) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, p := range q.putters {
		if p == target {
			q.putters = append(q.putters[:i], q.putters[i+1:]...)
			return
		}
	}
}
