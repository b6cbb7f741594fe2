// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package ef is a lightweight effect runtime: composable, pure descriptions
// of effectful programs ("effects") executed by a pool of user-space fibers
// multiplexed onto a small set of OS threads.
//
// # Core pieces
//
// An [Effect] is an immutable tree of tagged nodes (see effect.go) built
// from constructors such as [Succeed], [Fail], [FlatMap] and [Fold]. A
// [Fiber] interprets one such tree: it owns a continuation stack, an
// interrupt-status stack, an executor stack and an environment stack, and
// drives evaluation via a single-threaded trampoline that suspends only at
// [EffectAsync], [Yield], executor [Lock] changes, and the periodic
// yield-opcount check (see fiber.go).
//
// Effects never run outside of a [Fiber]; a [Runtime] bound to a [Platform]
// is the entry point that allocates the root fiber and blocks (or invokes a
// callback) for its [Exit].
//
// # Failure model
//
// Failures are carried by [Cause] trees (component C): typed application
// failures (Fail), defects (Die), and cooperative interruption (Interrupt),
// composed with the parallel (Both) and sequential (Then) monoid operators.
// [Exit] is the terminal value of a fiber: either a successful value or a
// failed [Cause].
//
// # Structured concurrency
//
// [Fork] spawns a child fiber under the parent's supervision scope; on
// normal parent exit every still-registered child is interrupted and
// awaited (see supervise.go). [RaceWith] implements structured racing: the
// losing fiber is not auto-interrupted by the race machinery, that policy
// belongs to the combinator built on top.
//
// # Companion packages
//
// [code.hybscloud.com/ef/queue] is the asynchronous bounded queue with four
// surplus strategies; [code.hybscloud.com/ef/stm] is the software
// transactional memory core; [code.hybscloud.com/ef/clock] is cancellable
// timed wake-up. All three are built only from the primitives exported by
// this package (mainly [EffectAsync] and [Promise]).
package ef
