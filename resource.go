// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package ef

// Resource safety primitives for exception-safe resource management,
// adapted from the teacher's acquire/use/release Bracket into the Effect/
// Cause/Exit model: acquire and release both run [MakeUninterruptible], so
// a cooperative interruption can never leak a resource between a
// successful acquire and its matching release.

// Ensuring registers a finalizer that runs when inner completes, by
// whatever means — success, failure or interruption — and whose own
// outcome (if it fails) is sequenced after inner's via [Then]. This is the
// primitive [Bracket] is built from.
func Ensuring[A any](inner Effect[A], finalizer Effect[struct{}]) Effect[A] {
	return Effect[A]{node: ensureContFrameNode{
		inner: inner.erase(),
		finalizer: func(Exit[Erased]) effectNode { return finalizer.erase() },
	}}
}

// ensureContFrameNode is the effectNode counterpart of ensureContFrame: it
// lets Ensuring/Bracket construct a tree node that the interpreter turns
// into a pushed ensureContFrame, the same way flatMapNode turns into a
// pushed bindContFrame.
type ensureContFrameNode struct {
	inner     effectNode
	finalizer func(Exit[Erased]) effectNode
}

func (ensureContFrameNode) effectNode() {}

// Bracket acquires a resource, runs use with it, and guarantees release
// runs afterward regardless of how use completed — success, failure, or
// interruption. acquire and release are both made uninterruptible; use
// runs with the fiber's ambient interruptibility.
func Bracket[R, A any](
	acquire Effect[R],
	release func(R) Effect[struct{}],
	use func(R) Effect[A],
) Effect[A] {
	return FlatMap(MakeUninterruptible(acquire), func(resource R) Effect[A] {
		return Ensuring(use(resource), MakeUninterruptible(release(resource)))
	})
}

// BracketExit is the Exit-aware variant of Bracket: release observes how
// use actually completed, mirroring ZIO's bracketExit.
func BracketExit[R, A any](
	acquire Effect[R],
	release func(R, Exit[A]) Effect[struct{}],
	use func(R) Effect[A],
) Effect[A] {
	return FlatMap(MakeUninterruptible(acquire), func(resource R) Effect[A] {
		return Effect[A]{node: ensureContFrameNode{
			inner: use(resource).erase(),
			finalizer: func(exit Exit[Erased]) effectNode {
				typed := mapExitErasedTo[A](exit)
				return MakeUninterruptible(release(resource, typed)).erase()
			},
		}}
	})
}

func mapExitErasedTo[A any](exit Exit[Erased]) Exit[A] {
	if exit.IsSuccess() {
		v, _ := exit.Value()
		return Succeeded(v.(A))
	}
	c, _ := exit.Cause()
	return Failed[A](c)
}

// OnError runs cleanup only if body fails, re-raising the original
// failure afterward. Unlike Bracket, cleanup is skipped entirely on
// success.
func OnError[A any](body Effect[A], cleanup func(Cause) Effect[struct{}]) Effect[A] {
	return Fold(body, func(c Cause) Effect[A] {
		return FlatMap(MakeUninterruptible(cleanup(c)), func(struct{}) Effect[A] {
			return FailWithCause[A](c)
		})
	}, func(a A) Effect[A] { return Succeed(a) })
}
