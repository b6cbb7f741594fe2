// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package ef

// Effect[A] is an immutable, pure description of a program that, when
// interpreted by a [Fiber], either produces a value of type A or fails
// with a [Cause]. Effect values are built by the constructors in this file
// and combined with [FlatMap]; nothing runs until a [Runtime] hands the
// tree to a fiber.
//
// Internally an Effect erases its payload to [Erased] and recovers the
// concrete type only at the boundary of each public constructor/combinator
// — the same type-erasure discipline the fiber's continuation frames use
// (see the contFrame types in fiber.go). This lets the interpreter hold a single homogeneous
// `effectNode` tree and dispatch on it with one type switch instead of
// requiring Go generics to express an existential effect type.
type Effect[A any] struct {
	node effectNode
}

// Erased is the payload type of the type-erased effect tree: values carried
// by effect nodes, continuation frames and erased [Exit]s are held as Erased
// and asserted back to their static type by the generic wrapper that built
// the node.
type Erased = any

// erase discards the static type, exposing only the effectNode tree.
func (e Effect[A]) erase() effectNode { return e.node }

// effectNode is the marker interface for the type-erased effect tree.
// Dispatch uses a type switch in the fiber interpreter (fiber.go), not
// virtual calls.
type effectNode interface {
	effectNode()
}

// succeedNode wraps an already-known pure value.
type succeedNode struct{ value Erased }

func (succeedNode) effectNode() {}

// Succeed lifts a pure value, already computed, into an Effect. Prefer
// [EffectTotal] for anything with a side effect, even an allocation —
// Succeed's argument is evaluated before the Effect is constructed.
func Succeed[A any](a A) Effect[A] {
	return Effect[A]{node: succeedNode{value: a}}
}

// failNode wraps a pre-built Cause.
type failNode struct{ cause Cause }

func (failNode) effectNode() {}

// Fail lifts a typed application error into a failing Effect.
func Fail[A any](err error) Effect[A] {
	return Effect[A]{node: failNode{cause: FailCause(err)}}
}

// FailWithCause lifts an already-built Cause directly, without wrapping it
// in another Fail leaf. Used by combinators that need to propagate a Cause
// they received from elsewhere (bracket finalizers, RaceWith).
func FailWithCause[A any](c Cause) Effect[A] {
	return Effect[A]{node: failNode{cause: c}}
}

// dieNode wraps a defect: a failure that was never declared in the
// program's error channel.
type dieNode struct{ defect any }

func (dieNode) effectNode() {}

// Die lifts a defect value into a failing Effect. Use Die for invariant
// violations the caller cannot recover from in the ordinary error channel.
func Die[A any](defect any) Effect[A] {
	return Effect[A]{node: dieNode{defect: defect}}
}

// totalNode wraps a thunk that cannot fail (by contract — a panic inside it
// is still converted to a Die by the interpreter).
type totalNode struct{ thunk func() Erased }

func (totalNode) effectNode() {}

// EffectTotal suspends a side-effecting computation that is not expected to
// fail. A panic raised by thunk is caught by the interpreter and converted
// to a Die, never propagated as a Go panic out of RunSync.
func EffectTotal[A any](thunk func() A) Effect[A] {
	return Effect[A]{node: totalNode{thunk: func() Erased { return thunk() }}}
}

// partialNode wraps a thunk that can fail with a typed error.
type partialNode struct{ thunk func() (Erased, error) }

func (partialNode) effectNode() {}

// EffectPartial suspends a side-effecting computation that may return an
// error; a non-nil error becomes a Fail, not a Die.
func EffectPartial[A any](thunk func() (A, error)) Effect[A] {
	return Effect[A]{node: partialNode{thunk: func() (Erased, error) {
		a, err := thunk()
		return Erased(a), err
	}}}
}

// suspendTotalNode wraps a thunk that builds the *next* effect to run,
// deferring its construction (and any side effects the construction itself
// has) until the fiber actually reaches this point in the program.
type suspendTotalNode struct{ thunk func() effectNode }

func (suspendTotalNode) effectNode() {}

// EffectSuspendTotal defers building effect until the fiber evaluates this
// node; useful for effects that recursively construct themselves (loops)
// without blowing the Go stack at construction time.
func EffectSuspendTotal[A any](thunk func() Effect[A]) Effect[A] {
	return Effect[A]{node: suspendTotalNode{thunk: func() effectNode { return thunk().erase() }}}
}

// suspendPartialNode is EffectSuspendTotal's partial counterpart: building
// the next effect can itself fail with a typed error via thunk's second
// return value.
type suspendPartialNode struct{ thunk func() (effectNode, error) }

func (suspendPartialNode) effectNode() {}

// EffectSuspendPartial defers building effect, additionally allowing the
// construction step itself to fail with a typed error.
func EffectSuspendPartial[A any](thunk func() (Effect[A], error)) Effect[A] {
	return Effect[A]{node: suspendPartialNode{thunk: func() (effectNode, error) {
		eff, err := thunk()
		if err != nil {
			return nil, err
		}
		return eff.erase(), nil
	}}}
}

// flatMapNode sequences first, then applies k to its result to obtain the
// next effect. This is the single sequencing primitive every other
// combinator (Map, ThenEffect) derives from.
type flatMapNode struct {
	first effectNode
	k     func(Erased) effectNode
}

func (flatMapNode) effectNode() {}

// FlatMap sequences two effects, using the result of m to build the next
// effect to run. If m fails, f is never called and the failure propagates
// unchanged (left-zero law).
func FlatMap[A, B any](m Effect[A], f func(A) Effect[B]) Effect[B] {
	return Effect[B]{node: flatMapNode{
		first: m.erase(),
		k:     func(a Erased) effectNode { return f(a.(A)).erase() },
	}}
}

// Map transforms the success value of an effect. Map(m, f) is defined as
// FlatMap(m, func(a A) Effect[B] { return Succeed(f(a)) }).
func Map[A, B any](m Effect[A], f func(A) B) Effect[B] {
	return FlatMap(m, func(a A) Effect[B] { return Succeed(f(a)) })
}

// ThenEffect sequences two effects, discarding the first result.
// ThenEffect(m, n) is defined as FlatMap(m, func(A) Effect[B] { return n }).
func ThenEffect[A, B any](m Effect[A], n Effect[B]) Effect[B] {
	return FlatMap(m, func(A) Effect[B] { return n })
}

// foldNode is the single recovery primitive: every catch/fold/orElse
// combinator in the package is built from it. Exactly one of onFailure or
// onSuccess is invoked, depending on the Exit of first.
type foldNode struct {
	first     effectNode
	onFailure func(Cause) effectNode
	onSuccess func(Erased) effectNode
}

func (foldNode) effectNode() {}

// Fold runs m, then dispatches to onFailure or onSuccess depending on how
// it completed. Fold is the only way to observe and potentially recover
// from a failure. Whether onFailure sees a Cause that is interrupted-only
// is gated by the fiber's interrupt status: while the fiber is
// interruptible such a Cause skips onFailure and keeps propagating (see
// IsInterruptedOnly and the recovery-gating rule in fiber.go).
func Fold[A, B any](m Effect[A], onFailure func(Cause) Effect[B], onSuccess func(A) Effect[B]) Effect[B] {
	return Effect[B]{node: foldNode{
		first:     m.erase(),
		onFailure: func(c Cause) effectNode { return onFailure(c).erase() },
		onSuccess: func(a Erased) effectNode { return onSuccess(a.(A)).erase() },
	}}
}

// CatchAll recovers from any failure, replacing it with the effect that
// handler produces.
func CatchAll[A any](m Effect[A], handler func(Cause) Effect[A]) Effect[A] {
	return Fold(m, handler, func(a A) Effect[A] { return Succeed(a) })
}

// asyncNode suspends the fiber until register calls the supplied callback
// exactly once, off-fiber (from another goroutine, a timer, an I/O
// completion, ...). This is the sole bridge between ef's cooperative fiber
// scheduling and arbitrary external asynchrony; Promise and the queue
// package are built on top of it.
type asyncNode struct {
	register func(resume func(Exit[Erased])) (canceler Effect[struct{}])
}

func (asyncNode) effectNode() {}

// EffectAsync suspends the running fiber and invokes register with a
// resume callback. register must arrange for resume to be called exactly
// once; calling it more than once panics (see the one-shot affine guard in
// fiber.go). If the fiber is interrupted while suspended and the returned
// canceler is non-nil, canceler runs to let register unregister itself
// (cancel a timer, remove a queued waiter) before the interruption Cause
// propagates.
func EffectAsync[A any](register func(resume func(Exit[A])) (canceler Effect[struct{}])) Effect[A] {
	return Effect[A]{node: asyncNode{
		register: func(resumeErased func(Exit[Erased])) Effect[struct{}] {
			return register(func(exit Exit[A]) {
				resumeErased(eraseExit(exit))
			})
		},
	}}
}

func eraseExit[A any](e Exit[A]) Exit[Erased] {
	if e.IsSuccess() {
		v, _ := e.Value()
		return Succeeded[Erased](v)
	}
	c, _ := e.Cause()
	return Failed[Erased](c)
}

// forkNode spawns a child fiber running body, immediately returning a
// handle (the caller never blocks on the child's completion here; use
// [Fiber.Await] on the returned handle for that). wrap re-labels the
// interpreter's erased *Fiber[Erased] handle as the statically-typed
// *Fiber[A] the caller's continuation expects, the same boundary
// [reinterpretFiber] crosses for [RaceWith]'s loser handle.
type forkNode struct {
	body   effectNode
	daemon bool
	wrap   func(*Fiber[Erased]) Erased
}

func (forkNode) effectNode() {}

// Fork starts body on a new fiber registered as a child of the caller's
// fiber, returning a handle to it. The child is interrupted automatically
// if the parent fiber completes while the child is still running, unless
// the parent explicitly disowns it (see Disown).
func Fork[A any](body Effect[A]) Effect[*Fiber[A]] {
	return Effect[*Fiber[A]]{node: forkNode{
		body: body.erase(),
		wrap: func(f *Fiber[Erased]) Erased { return reinterpretFiber[A](f) },
	}}
}

// ForkDaemon starts body on a new fiber that is never auto-interrupted by
// its parent's completion; it runs until it finishes on its own or is
// interrupted explicitly.
func ForkDaemon[A any](body Effect[A]) Effect[*Fiber[A]] {
	return Effect[*Fiber[A]]{node: forkNode{
		body:   body.erase(),
		daemon: true,
		wrap:   func(f *Fiber[Erased]) Erased { return reinterpretFiber[A](f) },
	}}
}

// disownNode removes a previously forked child from its parent's
// supervision scope without interrupting it.
type disownNode struct{ fiberID FiberID }

func (disownNode) effectNode() {}

// Disown removes f from its parent's supervision scope: the parent's
// completion will no longer wait for or interrupt f.
func Disown[A any](f *Fiber[A]) Effect[struct{}] {
	return Effect[struct{}]{node: disownNode{fiberID: f.id}}
}

// checkInterruptNode asks the interpreter for the fiber's current
// InterruptStatus without otherwise suspending.
type checkInterruptNode struct {
	k func(InterruptStatus) effectNode
}

func (checkInterruptNode) effectNode() {}

// CheckInterrupt observes the fiber's current [InterruptStatus] and builds
// the next effect from it.
func CheckInterrupt[A any](f func(InterruptStatus) Effect[A]) Effect[A] {
	return Effect[A]{node: checkInterruptNode{k: func(s InterruptStatus) effectNode { return f(s).erase() }}}
}

// setInterruptNode pushes a new interrupt status for the duration of
// inner, popping it back on the way out regardless of how inner completes.
type setInterruptNode struct {
	status InterruptStatus
	inner  effectNode
}

func (setInterruptNode) effectNode() {}

// InterruptStatus describes whether a fiber currently accepts cooperative
// interruption.
type InterruptStatus uint8

const (
	// Interruptible is the default: the fiber checks for a pending
	// interruption before every reduction step, and one suspended in
	// EffectAsync is resumed with the interruption right away.
	Interruptible InterruptStatus = iota
	// Uninterruptible suppresses interruption until the enclosing region
	// ends or explicitly restores interruptibility. Used internally by
	// bracket's acquire/release steps.
	Uninterruptible
)

// SetInterruptStatus runs inner with status in effect, restoring the
// fiber's previous status on exit (success, failure, or interruption).
func SetInterruptStatus[A any](status InterruptStatus, inner Effect[A]) Effect[A] {
	return Effect[A]{node: setInterruptNode{status: status, inner: inner.erase()}}
}

// MakeUninterruptible runs inner with interruption suppressed.
func MakeUninterruptible[A any](inner Effect[A]) Effect[A] {
	return SetInterruptStatus(Uninterruptible, inner)
}

// descriptorNode asks the interpreter for a snapshot of the running
// fiber's metadata.
type descriptorNode struct {
	k func(Descriptor) effectNode
}

func (descriptorNode) effectNode() {}

// EffectDescriptor exposes a [Descriptor] snapshot of the running fiber to
// the program, mainly for diagnostics and the supervision-tree walk used by
// [Descriptor.Children].
func EffectDescriptor[A any](f func(Descriptor) Effect[A]) Effect[A] {
	return Effect[A]{node: descriptorNode{k: func(d Descriptor) effectNode { return f(d).erase() }}}
}

// lockNode relocates subsequent execution of inner onto a specific
// [Executor], restoring the previous executor once inner completes.
type lockNode struct {
	executor Executor
	inner    effectNode
}

func (lockNode) effectNode() {}

// Lock runs inner on executor, switching back to the fiber's previous
// executor afterward. A fiber that never calls Lock runs entirely on the
// [Platform]'s default executor.
func Lock[A any](executor Executor, inner Effect[A]) Effect[A] {
	return Effect[A]{node: lockNode{executor: executor, inner: inner.erase()}}
}

// yieldNode voluntarily gives up the current OS thread to let other fibers
// on the same executor run, without otherwise blocking.
type yieldNode struct{}

func (yieldNode) effectNode() {}

// Yield is a cooperative scheduling point: it returns control to the
// executor, which is free to run other ready fibers before resuming this
// one. Yield is also an interruption point.
func Yield() Effect[struct{}] {
	return Effect[struct{}]{node: yieldNode{}}
}

// accessNode reads the fiber's environment value.
type accessNode struct {
	k func(Erased) effectNode
}

func (accessNode) effectNode() {}

// Access reads the current environment value installed by the nearest
// enclosing [Provide] and builds the next effect from it.
func Access[R, A any](f func(R) Effect[A]) Effect[A] {
	return Effect[A]{node: accessNode{k: func(r Erased) effectNode { return f(r.(R)).erase() }}}
}

// provideNode installs an environment value for the duration of inner.
type provideNode struct {
	env   Erased
	inner effectNode
}

func (provideNode) effectNode() {}

// Provide installs env as the environment seen by [Access] calls inside
// inner, restoring the previous environment (if any) afterward.
func Provide[R, A any](env R, inner Effect[A]) Effect[A] {
	return Effect[A]{node: provideNode{env: env, inner: inner.erase()}}
}

// raceWithNode runs two effects concurrently on sibling fibers, calling the
// matching continuation as soon as either finishes — the other keeps
// running. Interruption policy is left to the caller; see [RaceWith] in
// supervise.go for the exported combinator built on top of this node.
type raceWithNode struct {
	left, right             effectNode
	onLeftDone, onRightDone func(Exit[Erased], *Fiber[Erased]) effectNode
}

func (raceWithNode) effectNode() {}
