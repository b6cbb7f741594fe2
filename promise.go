// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package ef

import "sync"

// Promise[A] is a single-assignment, awaitable cell: many fibers may
// [Promise.Await] it concurrently, and exactly one completion (Succeed,
// Fail, Die or Interrupt) wakes every waiter with the same [Exit].
//
// Promise is the primitive structured concurrency (supervise.go) and the
// bounded queue (ef/queue) are both built from; internally it is a FIFO of
// resume callbacks registered through [EffectAsync], guarded by a mutex —
// the same shape as the teacher's one-shot [Affine] continuation, widened
// to fan-out to many waiters instead of exactly one.
type Promise[A any] struct {
	mu      sync.Mutex
	done    bool
	exit    Exit[A]
	waiters []*waiterEntry[A]
}

// waiterEntry gives each registered waiter a stable identity so it can be
// removed from the FIFO by pointer even if other waiters are added or
// removed concurrently.
type waiterEntry[A any] struct {
	resume func(Exit[A])
}

// NewPromise creates a pending Promise.
func NewPromise[A any]() *Promise[A] {
	return &Promise[A]{}
}

// MakePromise is the Effect-returning constructor.
func MakePromise[A any]() Effect[*Promise[A]] {
	return EffectTotal(func() *Promise[A] { return NewPromise[A]() })
}

// IsDone reports whether the Promise has already completed.
func (p *Promise[A]) IsDone() Effect[bool] {
	return EffectTotal(func() bool {
		p.mu.Lock()
		defer p.mu.Unlock()
		return p.done
	})
}

// complete is the single completion path every Succeed/Fail/Die/Interrupt
// variant funnels through. Returns false if the Promise was already done,
// matching ZIO's Promise semantics where only the first completion wins.
func (p *Promise[A]) complete(exit Exit[A]) bool {
	p.mu.Lock()
	if p.done {
		p.mu.Unlock()
		return false
	}
	p.done = true
	p.exit = exit
	waiters := p.waiters
	p.waiters = nil
	p.mu.Unlock()
	for _, w := range waiters {
		w.resume(exit)
	}
	return true
}

// Succeed completes the Promise successfully. Returns whether this call
// was the one that completed it.
func (p *Promise[A]) Succeed(a A) Effect[bool] {
	return EffectTotal(func() bool { return p.complete(Succeeded(a)) })
}

// Fail completes the Promise with a typed error.
func (p *Promise[A]) Fail(err error) Effect[bool] {
	return EffectTotal(func() bool { return p.complete(Failed[A](FailCause(err))) })
}

// Halt completes the Promise with an already-built Cause (used to forward
// a Cause captured elsewhere, e.g. a child fiber's failure).
func (p *Promise[A]) Halt(c Cause) Effect[bool] {
	return EffectTotal(func() bool { return p.complete(Failed[A](c)) })
}

// Interrupt completes the Promise with an interruption Cause attributed to
// fiberID.
func (p *Promise[A]) Interrupt(fiberID FiberID) Effect[bool] {
	return EffectTotal(func() bool { return p.complete(Failed[A](InterruptCause(fiberID))) })
}

// Await suspends the calling fiber until the Promise completes, then
// resumes with its Exit. Multiple fibers may Await the same Promise; all
// are released in FIFO registration order when it completes.
func (p *Promise[A]) Await() Effect[A] {
	return EffectAsync(func(resume func(Exit[A])) Effect[struct{}] {
		p.mu.Lock()
		if p.done {
			exit := p.exit
			p.mu.Unlock()
			resume(exit)
			return Effect[struct{}]{}
		}
		entry := &waiterEntry[A]{resume: resume}
		p.waiters = append(p.waiters, entry)
		p.mu.Unlock()
		return EffectTotal(func() struct{} {
			p.removeWaiter(entry)
			return struct{}{}
		})
	})
}

// AwaitExit is like Await but never fails: it always succeeds with the
// Promise's terminal Exit, success or failure. Structured concurrency
// (supervise.go) uses this to observe a child's outcome without the
// short-circuiting FlatMap would otherwise apply to a failed Exit.
func (p *Promise[A]) AwaitExit() Effect[Exit[A]] {
	return EffectAsync(func(resume func(Exit[Exit[A]])) Effect[struct{}] {
		wrap := func(exit Exit[A]) { resume(Succeeded(exit)) }
		p.mu.Lock()
		if p.done {
			exit := p.exit
			p.mu.Unlock()
			wrap(exit)
			return Effect[struct{}]{}
		}
		entry := &waiterEntry[A]{resume: wrap}
		p.waiters = append(p.waiters, entry)
		p.mu.Unlock()
		return EffectTotal(func() struct{} {
			p.removeWaiter(entry)
			return struct{}{}
		})
	})
}

// OnComplete registers f to run exactly once when the Promise completes —
// immediately, inline, if it already has. Unlike Await/AwaitExit this does
// not go through EffectAsync: it is an internal wiring primitive used by
// the interpreter itself (see raceWith in fiber.go), not part of the
// public Effect algebra.
func (p *Promise[A]) OnComplete(f func(Exit[A])) {
	p.mu.Lock()
	if p.done {
		exit := p.exit
		p.mu.Unlock()
		f(exit)
		return
	}
	p.waiters = append(p.waiters, &waiterEntry[A]{resume: f})
	p.mu.Unlock()
}

// Fulfill completes the Promise with exit immediately, outside the Effect
// algebra, returning whether this call won the race to complete it. Like
// OnComplete, this is a wiring primitive for companion packages (ef/queue's
// putter/taker handshake) that must complete a Promise synchronously from
// inside a callback that is already running on a fiber's executor, rather
// than build another Effect to interpret.
func (p *Promise[A]) Fulfill(exit Exit[A]) bool {
	return p.complete(exit)
}

func (p *Promise[A]) removeWaiter(target *waiterEntry[A]) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, w := range p.waiters {
		if w == target {
			p.waiters = append(p.waiters[:i], p.waiters[i+1:]...)
			return
		}
	}
}
