// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package ef

import "sync/atomic"

// Ref[A] is a mutable, thread-safe reference cell. Unlike a bare
// sync/atomic value, Ref exposes its operations as [Effect] values so they
// compose with the rest of the effect algebra (sequencing, interruption,
// bracket finalizers) instead of running immediately.
//
// Ref never blocks and never suspends a fiber; every operation is a single
// CAS loop (or a plain atomic load/store for Get/Set), modelled as
// [EffectTotal] underneath.
type Ref[A any] struct {
	v atomic.Value
}

type refBox[A any] struct{ value A }

// NewRef creates a Ref initialized to a.
func NewRef[A any](a A) *Ref[A] {
	r := &Ref[A]{}
	r.v.Store(refBox[A]{value: a})
	return r
}

// MakeRef is the Effect-returning constructor, for use inside an effect
// program so construction participates in sequencing and interruption like
// every other allocation.
func MakeRef[A any](a A) Effect[*Ref[A]] {
	return EffectTotal(func() *Ref[A] { return NewRef(a) })
}

func (r *Ref[A]) load() A {
	return r.v.Load().(refBox[A]).value
}

// Get reads the current value.
func (r *Ref[A]) Get() Effect[A] {
	return EffectTotal(func() A { return r.load() })
}

// Set overwrites the current value unconditionally.
func (r *Ref[A]) Set(a A) Effect[struct{}] {
	return EffectTotal(func() struct{} {
		r.v.Store(refBox[A]{value: a})
		return struct{}{}
	})
}

// SetAsync overwrites the current value with no ordering guarantee against
// concurrent reads beyond what Set already provides. The spec distinguishes
// set-async as a weaker, release-only store with no participating fence;
// Go's atomic.Value exposes a single Store operation with the full
// happens-before guarantee Load needs to observe it safely, and there is no
// lower-level, still race-detector-clean store in the standard atomic
// package to fall back to — so SetAsync has Set's exact semantics. The
// method exists under its own name so callers can express "this write's
// ordering against other operations doesn't matter to me" even though the
// runtime gives them the stronger guarantee regardless.
func (r *Ref[A]) SetAsync(a A) Effect[struct{}] {
	return r.Set(a)
}

// GetAndSet atomically swaps in a new value, returning the old one.
func (r *Ref[A]) GetAndSet(a A) Effect[A] {
	return EffectTotal(func() A {
		old := r.v.Swap(refBox[A]{value: a}).(refBox[A])
		return old.value
	})
}

// Modify atomically applies f to the current value, storing the first
// return value and returning the second. f may be retried if another
// fiber/goroutine updates the Ref concurrently — it must be a pure,
// side-effect-free function of the current value.
func (r *Ref[A]) Modify(f func(A) (A, Erased)) Effect[Erased] {
	return EffectTotal(func() Erased {
		for {
			oldBox := r.v.Load().(refBox[A])
			newValue, ret := f(oldBox.value)
			if r.v.CompareAndSwap(oldBox, refBox[A]{value: newValue}) {
				return ret
			}
		}
	})
}

// Update atomically applies f to the current value and stores the result.
func (r *Ref[A]) Update(f func(A) A) Effect[struct{}] {
	return Map(r.Modify(func(a A) (A, Erased) { return f(a), struct{}{} }), func(Erased) struct{} { return struct{}{} })
}
