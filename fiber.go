// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package ef

import (
	"sync"
	"sync/atomic"
)

var fiberIDSeq atomic.Uint64

func nextFiberID() FiberID {
	return FiberID(fiberIDSeq.Add(1))
}

// contFrame is the marker interface for the fiber interpreter's
// continuation stack — the same defunctionalized-frame discipline the
// teacher's trampoline.go/frame.go use, generalized from a single Expr
// chain to the full effect algebra (recovery frames, interrupt-status
// frames, executor frames, environment frames).
type contFrame interface {
	contFrame()
}

// bindContFrame resumes a flatMapNode: apply k to the completed value.
type bindContFrame struct {
	k func(Erased) effectNode
}

func (bindContFrame) contFrame() {}

// foldContFrame resumes a foldNode, dispatching on success or failure.
type foldContFrame struct {
	onFailure func(Cause) effectNode
	onSuccess func(Erased) effectNode
}

func (foldContFrame) contFrame() {}

// restoreExecutorFrame restores the previous executor once a lockNode
// region completes.
type restoreExecutorFrame struct {
	prev Executor
}

func (restoreExecutorFrame) contFrame() {}

// ensureContFrame runs a finalizer effect regardless of how the preceding
// region completed; see resource.go.
type ensureContFrame struct {
	finalizer func(Exit[Erased]) effectNode
}

func (ensureContFrame) contFrame() {}

// fiberNode is the type-erased, heap-resident fiber state shared by every
// generic [Fiber] handle pointing at the same running fiber. Child
// supervision (registerChild, interruptAndAwaitChildren) operates entirely
// on fiberNode so it does not need to be generic over the fiber's result
// type.
type fiberNode struct {
	id       FiberID
	platform *Platform

	mu       sync.Mutex
	state    FiberState
	executor Executor
	status   InterruptStatus
	env      Erased
	hasEnv   bool

	interruptRequested atomic.Bool
	interruptCause      atomic.Value // interruptCauseBox
	asyncCancel         atomic.Value // *asyncCancelState

	parent   *fiberNode
	children map[FiberID]*fiberNode

	exit       Exit[Erased]
	onExit     []func(Exit[Erased])
	exitIsSet  bool
}

func newFiberNode(platform *Platform, parent *fiberNode, executor Executor, env Erased, hasEnv bool, status InterruptStatus) *fiberNode {
	return &fiberNode{
		id:       nextFiberID(),
		platform: platform,
		state:    FiberExecuting,
		executor: executor,
		status:   status,
		env:      env,
		hasEnv:   hasEnv,
		parent:   parent,
		children: make(map[FiberID]*fiberNode),
	}
}

func (n *fiberNode) registerChild(c *fiberNode) {
	n.mu.Lock()
	n.children[c.id] = c
	n.mu.Unlock()
}

func (n *fiberNode) unregisterChild(id FiberID) {
	n.mu.Lock()
	delete(n.children, id)
	n.mu.Unlock()
}

func (n *fiberNode) snapshotChildren() []*fiberNode {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]*fiberNode, 0, len(n.children))
	for _, c := range n.children {
		out = append(out, c)
	}
	return out
}

func (n *fiberNode) requestInterrupt(cause Cause) {
	n.interruptCause.Store(interruptCauseBox{c: cause})
	n.interruptRequested.Store(true)
	n.triggerCancelIfPending(cause)
}

// asyncCancelState records the outstanding [EffectAsync] registration's
// canceler while the fiber is suspended, so a concurrent Interrupt can run
// it immediately instead of waiting for the fiber's next safe point (which
// will never come, since the fiber is parked on the async op).
type asyncCancelState struct {
	canceler Effect[struct{}]
	resume   func(Exit[Erased])
	resumed  *atomic.Bool
}

// triggerCancelIfPending runs the outstanding async canceler (if any and
// if the fiber currently accepts interruption), then resumes the
// suspended EffectAsync with the interruption cause.
func (n *fiberNode) triggerCancelIfPending(cause Cause) {
	n.mu.Lock()
	status := n.status
	n.mu.Unlock()
	if status != Interruptible {
		return
	}
	v := n.asyncCancel.Load()
	state, ok := v.(*asyncCancelState)
	if !ok || state == nil {
		return
	}
	if !state.resumed.CompareAndSwap(false, true) {
		return
	}
	n.asyncCancel.Store((*asyncCancelState)(nil))
	runCancelerThenResume(n, state, cause)
}

// runCancelerThenResume executes state.canceler on a disposable fiber and,
// once it settles, resumes the original async suspension with cause
// (combined with the canceler's own failure, if it had one).
func runCancelerThenResume(n *fiberNode, state *asyncCancelState, cause Cause) {
	childDone := NewPromise[Erased]()
	childNode := newFiberNode(n.platform, nil, n.executor, n.env, n.hasEnv, Uninterruptible)
	childNode.onExit = append(childNode.onExit, func(exit Exit[Erased]) {
		childDone.complete(exit)
	})
	childInterp := &interpreter{node: childNode}
	n.executor.Submit(func() { childInterp.run(state.canceler.erase()) })
	childDone.OnComplete(func(cancelExit Exit[Erased]) {
		finalCause := cause
		if cancelExit.IsFailure() {
			cc, _ := cancelExit.Cause()
			finalCause = Then(cc, cause)
		}
		state.resume(Failed[Erased](finalCause))
	})
}

func (n *fiberNode) pendingInterrupt() (Cause, bool) {
	if !n.interruptRequested.Load() {
		return nil, false
	}
	box, ok := n.interruptCause.Load().(interruptCauseBox)
	if !ok {
		return nil, false
	}
	return box.c, true
}

type interruptCauseBox struct{ c Cause }

func (n *fiberNode) descriptor() Descriptor {
	n.mu.Lock()
	d := Descriptor{ID: n.id, State: n.state, Status: n.status, parent: n.parent}
	n.mu.Unlock()
	d.children = func() []Descriptor {
		kids := n.snapshotChildren()
		out := make([]Descriptor, len(kids))
		for i, k := range kids {
			out[i] = k.descriptor()
		}
		return out
	}
	return d
}

// onComplete registers f to run once the fiber's Exit is known —
// immediately, inline, if it already is. Thread-safe counterpart to the
// onExit slice used by runFiber at construction time.
func (n *fiberNode) onComplete(f func(Exit[Erased])) {
	n.mu.Lock()
	if n.exitIsSet {
		exit := n.exit
		n.mu.Unlock()
		f(exit)
		return
	}
	n.onExit = append(n.onExit, f)
	n.mu.Unlock()
}

// interruptAndAwaitChildren implements the structured-concurrency
// invariant: a fiber's normal or failed completion interrupts every
// still-registered (non-daemon, non-disowned) child and blocks until all
// of them have actually stopped, so no child ever outlives the scope that
// forked it.
func (n *fiberNode) interruptAndAwaitChildren() {
	kids := n.snapshotChildren()
	if len(kids) == 0 {
		return
	}
	cause := InterruptCause(n.id)
	var wg sync.WaitGroup
	wg.Add(len(kids))
	for _, k := range kids {
		k.requestInterrupt(cause)
		k.onComplete(func(Exit[Erased]) { wg.Done() })
	}
	wg.Wait()
}

func (n *fiberNode) notifyExit(exit Exit[Erased]) {
	n.mu.Lock()
	n.state = FiberDone
	n.exit = exit
	n.exitIsSet = true
	observers := n.onExit
	n.onExit = nil
	n.mu.Unlock()
	for _, o := range observers {
		o(exit)
	}
	if n.parent != nil {
		n.parent.unregisterChild(n.id)
	}
}

// Fiber[A] is a handle to a running or completed fiber. It is returned by
// [Fork] and [ForkDaemon]; use [Fiber.Await] to block the calling fiber
// until it completes, or [Fiber.Interrupt] to cooperatively cancel it.
type Fiber[A any] struct {
	id   FiberID
	node *fiberNode
	done *Promise[A]
}

// Await suspends the calling fiber until f completes, then resumes with
// its result. If f failed, the failure propagates as this Effect's own
// failure (the normal FlatMap short-circuit).
func (f *Fiber[A]) Await() Effect[A] {
	return f.done.Await()
}

// AwaitExit is like Await but observes the full [Exit] without
// propagating a failure as this Effect's own failure.
func (f *Fiber[A]) AwaitExit() Effect[Exit[A]] {
	return f.done.AwaitExit()
}

// Interrupt cooperatively interrupts f, attributing the request to by.
// Interrupt does not itself wait for f to actually stop; FlatMap it with
// AwaitExit for that.
func (f *Fiber[A]) Interrupt(by FiberID) Effect[struct{}] {
	return EffectTotal(func() struct{} {
		f.node.requestInterrupt(InterruptCause(by))
		return struct{}{}
	})
}

// ID returns the fiber's identity.
func (f *Fiber[A]) ID() FiberID { return f.id }

// runFiber starts a brand-new fiber node executing body and returns its
// handle without blocking. [Fork], [ForkDaemon], [RaceWith],
// [Runtime.RunSync] and [Runtime.RunAsync] all funnel through it.
func runFiber[A any](platform *Platform, parent *fiberNode, executor Executor, env Erased, hasEnv bool, status InterruptStatus, body effectNode) *Fiber[A] {
	node := newFiberNode(platform, parent, executor, env, hasEnv, status)
	if parent != nil {
		parent.registerChild(node)
	}
	done := NewPromise[A]()
	node.onExit = append(node.onExit, func(exit Exit[Erased]) {
		if exit.IsSuccess() {
			v, _ := exit.Value()
			done.complete(Succeeded(v.(A)))
		} else {
			c, _ := exit.Cause()
			done.complete(Failed[A](c))
		}
	})
	interp := &interpreter{node: node}
	executor.Submit(func() {
		interp.run(body)
	})
	return &Fiber[A]{id: node.id, node: node, done: done}
}

// interpreter drives a single fiber's trampoline. One interpreter exists
// per fiber for its entire lifetime; it is never shared.
type interpreter struct {
	node  *fiberNode
	stack []contFrame
	opCount int64
}

func (ip *interpreter) push(f contFrame) { ip.stack = append(ip.stack, f) }

func (ip *interpreter) pop() (contFrame, bool) {
	n := len(ip.stack)
	if n == 0 {
		return nil, false
	}
	f := ip.stack[n-1]
	ip.stack = ip.stack[:n-1]
	return f, true
}

// run drives node's trampoline to completion, possibly hopping across
// several executor.Submit calls whenever the program suspends on
// [EffectAsync] or switches executors via [Lock].
func (ip *interpreter) run(node effectNode) {
	for {
		cur, action := ip.step(node)
		switch action {
		case stepContinue:
			node = cur.(effectNode)
			continue
		case stepSuspended:
			return // resumed asynchronously; the async callback restarts run
		case stepDone:
			ip.node.interruptAndAwaitChildren()
			ip.node.notifyExit(cur.(Exit[Erased]))
			return
		}
	}
}

type stepAction uint8

const (
	stepContinue stepAction = iota
	stepSuspended
	stepDone
)

// step evaluates a single effectNode, consulting and mutating the
// continuation stack as needed, and returns either the next node to
// evaluate, a sentinel meaning "suspended, another goroutine will resume
// this interpreter", or the fiber's terminal Exit.
func (ip *interpreter) step(node effectNode) (any, stepAction) {
	ip.opCount++
	// Checked on every reduction, not just the periodic yield checkpoint
	// below: a CPU-bound fiber running a long pure FlatMap/EffectTotal chain
	// with no async or yield point must still be interruptible immediately,
	// not only once every yieldBudget() reductions.
	if c, isInterrupted := ip.node.pendingInterrupt(); isInterrupted && ip.node.status == Interruptible {
		return ip.unwind(Failed[Erased](c))
	}
	if ip.opCount%ip.yieldBudget() == 0 {
		if ip.maybeYield(node) {
			return nil, stepSuspended
		}
	}

	switch n := node.(type) {
	case succeedNode:
		return ip.unwind(Succeeded(n.value))

	case failNode:
		return ip.unwind(Failed[Erased](n.cause))

	case dieNode:
		return ip.unwind(Failed[Erased](DieCause(n.defect)))

	case totalNode:
		return ip.safeCall(func() effectNode {
			return succeedNode{value: n.thunk()}
		})

	case partialNode:
		return ip.safeCallPartial(n.thunk)

	case suspendTotalNode:
		return ip.safeCall(n.thunk)

	case suspendPartialNode:
		return ip.safeCallSuspendPartial(n.thunk)

	case flatMapNode:
		ip.push(bindContFrame{k: n.k})
		return n.first, stepContinue

	case foldNode:
		ip.push(foldContFrame{onFailure: n.onFailure, onSuccess: n.onSuccess})
		return n.first, stepContinue

	case asyncNode:
		if c, isInterrupted := ip.node.pendingInterrupt(); isInterrupted && ip.node.status == Interruptible {
			return ip.unwind(Failed[Erased](c))
		}
		return ip.suspendAsync(n)

	case forkNode:
		return ip.fork(n)

	case disownNode:
		ip.node.mu.Lock()
		child, ok := ip.node.children[n.fiberID]
		ip.node.mu.Unlock()
		if ok {
			ip.node.unregisterChild(child.id)
		}
		return ip.unwind(Succeeded[Erased](struct{}{}))

	case checkInterruptNode:
		return n.k(ip.node.status), stepContinue

	case setInterruptNode:
		prev := ip.node.status
		ip.node.status = n.status
		ip.push(ensureContFrame{finalizer: func(Exit[Erased]) effectNode {
			return totalNode{thunk: func() Erased {
				ip.node.status = prev
				return struct{}{}
			}}
		}})
		return n.inner, stepContinue

	case descriptorNode:
		return n.k(ip.node.descriptor()), stepContinue

	case lockNode:
		prevExec := ip.node.executor
		ip.node.executor = n.executor
		ip.push(restoreExecutorFrame{prev: prevExec})
		n.executor.Submit(func() { ip.run(n.inner) })
		return nil, stepSuspendedValue()

	case yieldNode:
		if c, isInterrupted := ip.node.pendingInterrupt(); isInterrupted && ip.node.status == Interruptible {
			return ip.unwind(Failed[Erased](c))
		}
		if ip.maybeYield(succeedNode{value: struct{}{}}) {
			return nil, stepSuspended
		}
		return ip.unwind(Succeeded[Erased](struct{}{}))

	case accessNode:
		if !ip.node.hasEnv {
			return ip.unwind(Failed[Erased](DieCause("ef: Access with no environment provided")))
		}
		return n.k(ip.node.env), stepContinue

	case provideNode:
		prevEnv, hadPrev := ip.node.env, ip.node.hasEnv
		ip.node.env, ip.node.hasEnv = n.env, true
		ip.push(ensureContFrame{finalizer: func(Exit[Erased]) effectNode {
			return totalNode{thunk: func() Erased {
				ip.node.env, ip.node.hasEnv = prevEnv, hadPrev
				return struct{}{}
			}}
		}})
		return n.inner, stepContinue

	case raceWithNode:
		return ip.raceWith(n)

	case ensureContFrameNode:
		ip.push(ensureContFrame{finalizer: n.finalizer})
		return n.inner, stepContinue

	default:
		panic("ef: unknown effect node")
	}
}

// stepSuspendedValue is a helper returning the canonical "nothing, just
// suspended" pair shape used by branches that submit continuation work to
// an executor rather than returning a next node.
func stepSuspendedValue() stepAction { return stepSuspended }

func (ip *interpreter) yieldBudget() int64 {
	if ip.node.platform == nil || ip.node.platform.yieldOpCount <= 0 {
		return 2048
	}
	return ip.node.platform.yieldOpCount
}

// maybeYield reschedules the remainder of the trampoline onto the fiber's
// current executor, returning true if it did so (caller must stop). This
// both bounds how long one fiber can monopolize a goroutine and gives
// [Yield] somewhere to suspend to.
func (ip *interpreter) maybeYield(next effectNode) bool {
	exec := ip.node.executor
	exec.Submit(func() { ip.run(next) })
	return true
}

// safeCall executes thunk, converting a recovered panic into a Die and
// otherwise continuing with the produced node.
func (ip *interpreter) safeCall(thunk func() effectNode) (any, stepAction) {
	var result effectNode
	var panicked any
	func() {
		defer func() {
			if r := recover(); r != nil {
				panicked = r
			}
		}()
		result = thunk()
	}()
	if panicked != nil {
		return ip.unwind(Failed[Erased](DieCause(panicked)))
	}
	return result, stepContinue
}

func (ip *interpreter) safeCallPartial(thunk func() (Erased, error)) (any, stepAction) {
	var value Erased
	var err error
	var panicked any
	func() {
		defer func() {
			if r := recover(); r != nil {
				panicked = r
			}
		}()
		value, err = thunk()
	}()
	if panicked != nil {
		return ip.unwind(Failed[Erased](DieCause(panicked)))
	}
	if err != nil {
		return ip.unwind(Failed[Erased](FailCause(err)))
	}
	return ip.unwind(Succeeded(value))
}

func (ip *interpreter) safeCallSuspendPartial(thunk func() (effectNode, error)) (any, stepAction) {
	var next effectNode
	var err error
	var panicked any
	func() {
		defer func() {
			if r := recover(); r != nil {
				panicked = r
			}
		}()
		next, err = thunk()
	}()
	if panicked != nil {
		return ip.unwind(Failed[Erased](DieCause(panicked)))
	}
	if err != nil {
		return ip.unwind(Failed[Erased](FailCause(err)))
	}
	return next, stepContinue
}

// unwind drives the continuation stack with a completed Exit[Erased],
// applying bind/fold/restore/ensure frames until either a new effectNode
// needs to run or the stack is empty, in which case the fiber is done.
func (ip *interpreter) unwind(exit Exit[Erased]) (any, stepAction) {
	for {
		frame, ok := ip.pop()
		if !ok {
			return exit, stepDone
		}
		switch fr := frame.(type) {
		case bindContFrame:
			if exit.IsFailure() {
				continue // propagate failure past bind, look for a fold/ensure
			}
			v, _ := exit.Value()
			return fr.k(v), stepContinue

		case foldContFrame:
			if exit.IsSuccess() {
				v, _ := exit.Value()
				return fr.onSuccess(v), stepContinue
			}
			c, _ := exit.Cause()
			if HasInterrupt(c) && ip.node.status == Uninterruptible {
				// Recovery-gating rule: an uninterruptible fiber may still
				// observe and recover from an interruption Cause that
				// reached it (e.g. produced by a nested Fold), since the
				// fiber itself cannot be preempted right now.
				return fr.onFailure(c), stepContinue
			}
			if HasInterrupt(c) && !IsInterruptedOnly(c) {
				return fr.onFailure(c), stepContinue
			}
			if !HasInterrupt(c) {
				return fr.onFailure(c), stepContinue
			}
			// Pure interruption while interruptible: cannot be caught,
			// keep propagating.
			continue

		case restoreExecutorFrame:
			ip.node.executor = fr.prev
			continue

		case ensureContFrame:
			finalizer := fr.finalizer(exit)
			ip.push(resumeUnwindFrame{pending: exit})
			return finalizer, stepContinue

		case resumeUnwindFrame:
			if exit.IsFailure() {
				fc, _ := exit.Cause()
				if fr.pending.IsFailure() {
					pc, _ := fr.pending.Cause()
					exit = Failed[Erased](Then(pc, fc))
				} else {
					exit = Failed[Erased](fc)
				}
			} else {
				exit = fr.pending
			}
			continue

		default:
			panic("ef: unknown continuation frame")
		}
	}
}

// resumeUnwindFrame re-enters unwind with the Exit that was pending before
// a finalizer ran, combining the finalizer's own failure (if any) with the
// original one via Then.
type resumeUnwindFrame struct {
	pending Exit[Erased]
}

func (resumeUnwindFrame) contFrame() {}

func (ip *interpreter) suspendAsync(n asyncNode) (any, stepAction) {
	var resumed atomic.Bool
	deliver := func(exit Exit[Erased]) {
		ip.node.asyncCancel.Store((*asyncCancelState)(nil))
		ip.node.executor.Submit(func() {
			next, action := ip.unwind(exit)
			ip.continueFrom(next, action)
		})
	}
	resume := func(exit Exit[Erased]) {
		if !resumed.CompareAndSwap(false, true) {
			panic("ef: EffectAsync resume called more than once")
		}
		deliver(exit)
	}
	canceler := n.register(resume)
	if canceler.node != nil {
		// triggerCancelIfPending claims resumed itself before resuming, so it
		// is handed deliver rather than the CAS-guarded resume.
		ip.node.asyncCancel.Store(&asyncCancelState{canceler: canceler, resume: deliver, resumed: &resumed})
	}
	// An Interrupt racing with registration above would have found no
	// asyncCancelState yet; re-check now that it is in place.
	if c, isInterrupted := ip.node.pendingInterrupt(); isInterrupted {
		ip.node.triggerCancelIfPending(c)
	}
	return nil, stepSuspended
}

// continueFrom resumes the trampoline loop after an out-of-line unwind
// (used by async resume callbacks and executor-hop continuations).
func (ip *interpreter) continueFrom(node any, action stepAction) {
	switch action {
	case stepDone:
		ip.node.interruptAndAwaitChildren()
		ip.node.notifyExit(node.(Exit[Erased]))
		return
	case stepSuspended:
		return
	case stepContinue:
		ip.run(node.(effectNode))
	}
}

func (ip *interpreter) fork(n forkNode) (any, stepAction) {
	var parent *fiberNode
	if !n.daemon {
		parent = ip.node
	}
	child := runFiber[Erased](ip.node.platform, parent, ip.node.executor, ip.node.env, ip.node.hasEnv, Interruptible, n.body)
	return ip.unwind(Succeeded[Erased](n.wrap(child)))
}

// raceWith runs both branches on sibling fibers and resumes the racing
// fiber's own trampoline from whichever's onDone continuation fires first;
// the loser keeps running in the background (see raceWithNode's doc
// comment for the interruption policy this leaves to callers).
func (ip *interpreter) raceWith(n raceWithNode) (any, stepAction) {
	leftFiber := runFiber[Erased](ip.node.platform, nil, ip.node.executor, ip.node.env, ip.node.hasEnv, Interruptible, n.left)
	rightFiber := runFiber[Erased](ip.node.platform, nil, ip.node.executor, ip.node.env, ip.node.hasEnv, Interruptible, n.right)

	var once sync.Once
	settle := func(node effectNode) {
		once.Do(func() {
			ip.node.executor.Submit(func() { ip.run(node) })
		})
	}

	leftFiber.done.OnComplete(func(exit Exit[Erased]) {
		settle(n.onLeftDone(exit, rightFiber))
	})
	rightFiber.done.OnComplete(func(exit Exit[Erased]) {
		settle(n.onRightDone(exit, leftFiber))
	})

	return nil, stepSuspended
}
