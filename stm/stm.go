// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package stm is a software transactional memory core built on top of ef's
// fiber runtime: transactions over [TVar] cells compose like [STM] values
// and commit atomically via [Atomically], which returns an [ef.Effect] like
// any other ef primitive.
//
// Transactions are optimistic: a transaction's reads are tracked in a
// private [Journal], and committing validates every read against the
// TVar's current version before applying the transaction's writes. A
// transaction that calls [Retry], or whose validation fails because another
// transaction committed first, is simply re-run — this package chooses the
// simpler of the two QoS strategies a retrying STM runtime can offer
// (busy-retry with randomized backoff) over a wake-list of blocked
// transactions keyed by the TVars they read.
package stm

import (
	"math/rand"
	"sync"
	"sync/atomic"

	"code.hybscloud.com/ef"
)

// TVar is a transactional variable: it may only be read or written inside
// an [STM] transaction, never directly.
type TVar[A any] struct {
	state atomic.Value // tvarState[A]
}

type tvarState[A any] struct {
	version int64
	value   A
}

// NewTVar creates a TVar initialized to a, outside of any transaction. Use
// this for TVars set up once before any [Atomically] block runs (test
// fixtures, a long-lived shared cell); use [New] to allocate one as part of
// a transaction's own body.
func NewTVar[A any](a A) *TVar[A] {
	t := &TVar[A]{}
	t.state.Store(tvarState[A]{value: a})
	return t
}

// MakeTVar is the Effect-returning convenience constructor, equivalent to
// [Atomically] applied to [New] for callers that only need to allocate a
// single TVar and have no other transaction to fold it into.
func MakeTVar[A any](a A) ef.Effect[*TVar[A]] {
	return Atomically(New(a))
}

func (t *TVar[A]) load() tvarState[A] { return t.state.Load().(tvarState[A]) }

// tvarHandle is the type-erased identity a [Journal] entry is keyed by;
// every *TVar[A] implements it regardless of A, the same erasure discipline
// ef's own Effect/Cause trees use.
type tvarHandle interface {
	currentVersion() int64
	commit(entry *journalEntry)
}

func (t *TVar[A]) currentVersion() int64 { return t.load().version }

func (t *TVar[A]) commit(entry *journalEntry) {
	old := t.load()
	t.state.Store(tvarState[A]{version: old.version + 1, value: entry.write.(A)})
}

// journalEntry records one TVar touched by a transaction attempt: the
// version observed on first read (a write records no version, so an entry
// that was only written is not validated at commit) and, if the
// transaction wrote to it, the pending value.
type journalEntry struct {
	tvar         tvarHandle
	readVersion  int64
	hasRead      bool
	hasWrite     bool
	write        any
}

// Journal is the read/write set of one transaction attempt, private to that
// attempt until [Atomically] commits it.
type Journal struct {
	entries map[tvarHandle]*journalEntry
}

func newJournal() *Journal {
	return &Journal{entries: make(map[tvarHandle]*journalEntry)}
}

func (j *Journal) entryFor(tv tvarHandle) *journalEntry {
	e, ok := j.entries[tv]
	if !ok {
		e = &journalEntry{tvar: tv}
		j.entries[tv] = e
	}
	return e
}

// signal is the outcome of running an STM tree against a Journal.
type signal uint8

const (
	signalOK signal = iota
	signalRetry
	signalFail
)

// STM[A] is an immutable, type-erased description of a transactional
// computation, mirroring ef's own Effect algebra: build with [Return],
// [ReadTVar], [WriteTVar], [Retry], [Check] and [OrElse], sequence with
// [FlatMap], and run with [Atomically].
type STM[A any] struct {
	node stmNode
}

func (s STM[A]) erase() stmNode { return s.node }

type stmNode interface {
	run(j *Journal) (any, signal, error)
}

type returnNode struct{ value any }

func (n returnNode) run(*Journal) (any, signal, error) { return n.value, signalOK, nil }

// Return lifts a pure value into STM.
func Return[A any](a A) STM[A] { return STM[A]{node: returnNode{value: a}} }

type failNode struct{ err error }

func (n failNode) run(*Journal) (any, signal, error) { return nil, signalFail, n.err }

// Fail aborts the transaction with a typed error; the enclosing
// [Atomically] effect fails with it, it is never retried.
func Fail[A any](err error) STM[A] { return STM[A]{node: failNode{err: err}} }

type retryNode struct{}

func (retryNode) run(*Journal) (any, signal, error) { return nil, signalRetry, nil }

// Retry abandons the current attempt unconditionally; [Atomically] re-runs
// the transaction from scratch once some TVar it read has a chance to have
// changed.
func Retry[A any]() STM[A] { return STM[A]{node: retryNode{}} }

// Check retries unless cond holds, the STM equivalent of a guard.
func Check(cond bool) STM[struct{}] {
	if cond {
		return Return(struct{}{})
	}
	return Retry[struct{}]()
}

type bindNode struct {
	first stmNode
	k     func(any) stmNode
}

func (n bindNode) run(j *Journal) (any, signal, error) {
	v, sig, err := n.first.run(j)
	if sig != signalOK {
		return nil, sig, err
	}
	return n.k(v).run(j)
}

// FlatMap sequences two transactions, using the first's result to build the
// second.
func FlatMap[A, B any](m STM[A], f func(A) STM[B]) STM[B] {
	return STM[B]{node: bindNode{
		first: m.erase(),
		k:     func(a any) stmNode { return f(a.(A)).erase() },
	}}
}

// Map transforms an STM transaction's result purely.
func Map[A, B any](m STM[A], f func(A) B) STM[B] {
	return FlatMap(m, func(a A) STM[B] { return Return(f(a)) })
}

type orElseNode struct{ first, alt stmNode }

func (n orElseNode) run(j *Journal) (any, signal, error) {
	v, sig, err := n.first.run(j)
	if sig == signalOK {
		return v, sig, err
	}
	return n.alt.run(j)
}

// OrElse runs first; if it (or anything nested in it) calls [Retry] or
// fails with [Fail], alt runs instead against the same journal.
func OrElse[A any](first, alt STM[A]) STM[A] {
	return STM[A]{node: orElseNode{first: first.erase(), alt: alt.erase()}}
}

type readNode[A any] struct{ tvar *TVar[A] }

func (n readNode[A]) run(j *Journal) (any, signal, error) {
	e := j.entryFor(n.tvar)
	if e.hasWrite {
		return e.write, signalOK, nil
	}
	if !e.hasRead {
		st := n.tvar.load()
		e.hasRead = true
		e.readVersion = st.version
		return st.value, signalOK, nil
	}
	return n.tvar.load().value, signalOK, nil
}

// ReadTVar reads tv's current value within the transaction.
func ReadTVar[A any](tv *TVar[A]) STM[A] {
	return STM[A]{node: readNode[A]{tvar: tv}}
}

type writeNode[A any] struct {
	tvar  *TVar[A]
	value A
}

func (n writeNode[A]) run(j *Journal) (any, signal, error) {
	e := j.entryFor(n.tvar)
	e.hasWrite = true
	e.write = n.value
	return struct{}{}, signalOK, nil
}

// WriteTVar sets tv's value, visible to later reads in the same
// transaction but not published to other transactions until commit.
func WriteTVar[A any](tv *TVar[A], a A) STM[struct{}] {
	return STM[struct{}]{node: writeNode[A]{tvar: tv, value: a}}
}

type makeTVarNode[A any] struct{ init A }

func (n makeTVarNode[A]) run(j *Journal) (any, signal, error) {
	tv := &TVar[A]{}
	// version -1 so the eventual commit (old.version+1) lands at 0, per
	// spec: "allocates a fresh id, writes (version = 0, init)". Nothing
	// outside this attempt holds tv yet, so no other transaction can
	// observe or race this placeholder state.
	tv.state.Store(tvarState[A]{version: -1})
	e := j.entryFor(tv)
	e.hasWrite = true
	e.write = n.init
	return tv, signalOK, nil
}

// New allocates a fresh TVar as part of the enclosing transaction, the STM
// counterpart of [NewTVar]: the returned handle is recorded in the
// transaction's journal like any other write and only becomes visible to
// other transactions once this one commits. A retried attempt re-runs this
// node and allocates an entirely new TVar, the same fresh-per-retry
// guarantee every other read or write in the transaction already has.
func New[A any](init A) STM[*TVar[A]] {
	return STM[*TVar[A]]{node: makeTVarNode[A]{init: init}}
}

// Modify is a convenience combinator: read, apply f, write back.
func Modify[A any](tv *TVar[A], f func(A) A) STM[struct{}] {
	return FlatMap(ReadTVar(tv), func(a A) STM[struct{}] { return WriteTVar(tv, f(a)) })
}

// commitMu serializes the validate-then-apply phase of every transaction
// attempt across all TVars. Reads and the pure parts of a transaction's
// body run lock-free; only the brief window where a committing transaction
// checks its read set and publishes its writes is serialized, which is
// enough to make commit atomic without per-TVar lock ordering.
var commitMu sync.Mutex

// Atomically runs transaction to completion and commits it atomically,
// returning an [ef.Effect] that succeeds with its result or fails with the
// error passed to [Fail]. A transaction that retries is re-run from
// scratch; this implementation busy-retries with a small randomized
// cooperative back-off (see the package doc) rather than blocking until a
// touched TVar changes.
func Atomically[A any](transaction STM[A]) ef.Effect[A] {
	return attempt[A](transaction, 0)
}

func attempt[A any](transaction STM[A], round int) ef.Effect[A] {
	return ef.EffectSuspendTotal(func() ef.Effect[A] {
		j := newJournal()
		v, sig, err := transaction.erase().run(j)
		switch sig {
		case signalFail:
			return ef.Fail[A](err)
		case signalRetry:
			return ef.ThenEffect(backoff(round), attempt[A](transaction, round+1))
		default:
			if tryCommit(j) {
				return ef.Succeed(v.(A))
			}
			return ef.ThenEffect(backoff(round), attempt[A](transaction, round+1))
		}
	})
}

// tryCommit validates every entry's read version against the TVar's
// current version and, if all are still fresh, publishes every write. The
// whole check-then-apply sequence runs under the shared commitMu, so only
// one commit is ever in flight — no per-TVar lock ordering is needed.
func tryCommit(j *Journal) bool {
	if len(j.entries) == 0 {
		return true
	}
	commitMu.Lock()
	defer commitMu.Unlock()
	for _, e := range j.entries {
		if e.hasRead && e.tvar.currentVersion() != e.readVersion {
			return false
		}
	}
	for _, e := range j.entries {
		if e.hasWrite {
			e.tvar.commit(e)
		}
	}
	return true
}

// backoff yields the fiber a randomized number of times, growing with the
// retry round, before the next attempt.
func backoff(round int) ef.Effect[struct{}] {
	n := 1 + rand.Intn(round+2)
	eff := ef.Yield()
	for i := 1; i < n; i++ {
		eff = ef.ThenEffect(eff, ef.Yield())
	}
	return eff
}
