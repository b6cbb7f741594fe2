// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package ef

// Structured concurrency: every [Fork]ed fiber is registered as a child of
// its parent (fiber.go's fiberNode.children), and the parent's completion
// — by any means, success, failure or interruption — interrupts and awaits
// every child still registered at that point (interruptAndAwaitChildren).
// This file provides the combinators built on top of that guarantee:
// racing, and the exported RaceWith escape hatch for custom race policies.

// RaceWith runs left and right concurrently. As soon as either completes,
// its matching callback (onLeftDone/onRightDone) runs with that side's
// Exit and a handle to the *other*, still-possibly-running fiber; the
// loser is not automatically interrupted — callbacks that want race
// semantics (first success wins, cancel the rest) must call
// [Fiber.Interrupt] themselves.
func RaceWith[L, R, A any](
	left Effect[L],
	right Effect[R],
	onLeftDone func(Exit[L], *Fiber[R]) Effect[A],
	onRightDone func(Exit[R], *Fiber[L]) Effect[A],
) Effect[A] {
	return Effect[A]{node: raceWithNode{
		left:  left.erase(),
		right: right.erase(),
		onLeftDone: func(exit Exit[Erased], loser *Fiber[Erased]) effectNode {
			return onLeftDone(mapExitErasedTo[L](exit), reinterpretFiber[R](loser)).erase()
		},
		onRightDone: func(exit Exit[Erased], loser *Fiber[Erased]) effectNode {
			return onRightDone(mapExitErasedTo[R](exit), reinterpretFiber[L](loser)).erase()
		},
	}}
}

// reinterpretFiber re-labels an erased *Fiber[Erased] handle as a typed
// *Fiber[T] handle. It is safe because forkNode/raceWithNode only ever
// erase a fiber whose body actually produces a T, and nothing else reads
// the erased identity.
func reinterpretFiber[T any](f *Fiber[Erased]) *Fiber[T] {
	return &Fiber[T]{id: f.id, node: f.node, done: reinterpretPromise[T](f.done)}
}

func reinterpretPromise[T any](p *Promise[Erased]) *Promise[T] {
	typed := NewPromise[T]()
	p.OnComplete(func(exit Exit[Erased]) {
		typed.complete(mapExitErasedTo[T](exit))
	})
	return typed
}

// Race runs two effects of the same type concurrently and returns the
// first to complete successfully, interrupting the other. If both fail,
// the second failure is combined with the first via [Both].
func Race[A any](left, right Effect[A]) Effect[A] {
	return RaceWith(left, right,
		func(exit Exit[A], loser *Fiber[A]) Effect[A] {
			return raceArbiter(exit, loser)
		},
		func(exit Exit[A], loser *Fiber[A]) Effect[A] {
			return raceArbiter(exit, loser)
		},
	)
}

func raceArbiter[A any](exit Exit[A], loser *Fiber[A]) Effect[A] {
	if exit.IsSuccess() {
		return FlatMap(EffectDescriptor(func(d Descriptor) Effect[struct{}] {
			return loser.Interrupt(d.ID)
		}), func(struct{}) Effect[A] {
			v, _ := exit.Value()
			return Succeed(v)
		})
	}
	firstCause, _ := exit.Cause()
	return FlatMap(loser.AwaitExit(), func(loserExit Exit[A]) Effect[A] {
		if loserExit.IsSuccess() {
			v, _ := loserExit.Value()
			return Succeed(v)
		}
		secondCause, _ := loserExit.Cause()
		return FailWithCause[A](Both(firstCause, secondCause))
	})
}
