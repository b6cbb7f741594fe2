// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package ef

// Exit is the terminal value of a fiber: it either succeeded with a value
// of type A, or failed with a [Cause]. Exit is erased to Exit[Erased]
// wherever the interpreter needs to move a result
// across a type-erased boundary (promises, fork/await, race); the generic
// [Exit] wrapper performs the assertion back to A at the call site.
type Exit[A any] struct {
	value   A
	cause   Cause
	success bool
}

// Succeeded creates a successful Exit.
func Succeeded[A any](a A) Exit[A] {
	return Exit[A]{value: a, success: true}
}

// Failed creates a failed Exit from a Cause. Failed(EmptyCause) is
// forbidden at the type level only by convention — callers constructing an
// Exit by hand should prefer Succeeded unless they hold a genuine Cause.
func Failed[A any](c Cause) Exit[A] {
	return Exit[A]{cause: c, success: false}
}

// IsSuccess reports whether the Exit completed successfully.
func (e Exit[A]) IsSuccess() bool { return e.success }

// IsFailure reports whether the Exit failed.
func (e Exit[A]) IsFailure() bool { return !e.success }

// Value returns the success value and true, or the zero value and false.
func (e Exit[A]) Value() (A, bool) {
	if e.success {
		return e.value, true
	}
	var zero A
	return zero, false
}

// Cause returns the failure cause and true, or EmptyCause and false.
func (e Exit[A]) Cause() (Cause, bool) {
	if e.success {
		return EmptyCause, false
	}
	return e.cause, true
}

// FoldExit reduces an Exit to a single value, calling onFailure or
// onSuccess. Named distinctly from effect.go's [Fold] (which folds an
// Effect, not an already-produced Exit) since Go has no overloading.
func FoldExit[A, B any](e Exit[A], onFailure func(Cause) B, onSuccess func(A) B) B {
	if e.success {
		return onSuccess(e.value)
	}
	return onFailure(e.cause)
}

// MapExit transforms the success value of an Exit, leaving failures
// untouched.
func MapExit[A, B any](e Exit[A], f func(A) B) Exit[B] {
	if e.success {
		return Succeeded(f(e.value))
	}
	return Failed[B](e.cause)
}

// FromExit reflects an already-produced Exit back into the Effect algebra:
// a successful Exit becomes [Succeed], a failed one becomes
// [FailWithCause]. This is the inverse of [Fiber.AwaitExit] — the same
// relationship ZIO's ZIO.done has to Fiber#await.
func FromExit[A any](e Exit[A]) Effect[A] {
	return FoldExit(e, FailWithCause[A], Succeed[A])
}

// Flatten collapses an Effect that produces an Exit into an Effect that
// actually succeeds or fails with it, undoing an earlier [Fiber.AwaitExit]
// or [Promise.AwaitExit] once the caller no longer needs to inspect the
// Exit without it short-circuiting.
func Flatten[A any](m Effect[Exit[A]]) Effect[A] {
	return FlatMap(m, FromExit[A])
}
