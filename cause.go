// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package ef

import (
	"errors"
	"fmt"
	"strings"
)

// Cause is the type-erased failure tree of a fiber. A Cause is built from
// the leaves [FailCause], [DieCause] and [InterruptCause], composed with the
// parallel operator [Both] and the sequential operator [Then].
// Cause is immutable; every combinator returns a new tree.
//
// Cause mirrors the defunctionalized contFrame pattern used by the fiber
// interpreter: a small marker interface plus a type switch, rather than a
// virtual-dispatch tree of interfaces with many methods.
type Cause interface {
	causeNode()
}

// emptyCause is the identity element for both Both and Then.
type emptyCause struct{}

func (emptyCause) causeNode() {}

// EmptyCause is the Cause carrying no failure at all. It is the monoid
// identity: Both(EmptyCause, c) == c and Then(c, EmptyCause) == c.
var EmptyCause Cause = emptyCause{}

// failCause is a typed application failure: the error value an effect
// program explicitly produced via [Fail].
type failCause struct {
	err   error
	trace []uintptr
}

func (*failCause) causeNode() {}

// FailCause builds a Cause from a typed application error.
func FailCause(err error) Cause {
	return &failCause{err: err, trace: captureTrace()}
}

// dieCause is a defect: a failure the program never declared, usually a
// recovered panic or an invariant violation detected by the runtime.
type dieCause struct {
	defect any
	trace  []uintptr
}

func (*dieCause) causeNode() {}

// DieCause builds a Cause from an unrecovered defect value (often a
// recovered panic argument).
func DieCause(defect any) Cause {
	return &dieCause{defect: defect, trace: captureTrace()}
}

// interruptCause records cooperative interruption of a fiber by another
// fiber (or by itself).
type interruptCause struct {
	fiberID FiberID
}

func (interruptCause) causeNode() {}

// InterruptCause builds a Cause recording that fiberID requested the
// interruption.
func InterruptCause(fiberID FiberID) Cause {
	return interruptCause{fiberID: fiberID}
}

// bothCause is the parallel composition of two causes: both branches failed
// concurrently and neither is privileged over the other.
type bothCause struct{ left, right Cause }

func (*bothCause) causeNode() {}

// thenCause is the sequential composition of two causes: left happened,
// then right happened (for example a finalizer itself failed after the
// original effect failed).
type thenCause struct{ left, right Cause }

func (*thenCause) causeNode() {}

// Both combines two causes as having failed in parallel. EmptyCause is the
// identity: Both(a, EmptyCause) == a and Both(EmptyCause, b) == b.
func Both(a, b Cause) Cause {
	if isEmptyCause(a) {
		return b
	}
	if isEmptyCause(b) {
		return a
	}
	return &bothCause{left: a, right: b}
}

// Then combines two causes as having failed in sequence. EmptyCause is the
// identity.
func Then(a, b Cause) Cause {
	if isEmptyCause(a) {
		return b
	}
	if isEmptyCause(b) {
		return a
	}
	return &thenCause{left: a, right: b}
}

func isEmptyCause(c Cause) bool {
	_, ok := c.(emptyCause)
	return ok
}

// IsEmpty reports whether c carries no failure.
func IsEmpty(c Cause) bool {
	if c == nil {
		return true
	}
	return isEmptyCause(c)
}

// Failures returns every typed application error recorded anywhere in the
// tree, in left-to-right, depth-first order.
func Failures(c Cause) []error {
	var out []error
	walkCause(c, func(leaf Cause) {
		if f, ok := leaf.(*failCause); ok {
			out = append(out, f.err)
		}
	})
	return out
}

// Defects returns every recovered-panic/defect value recorded in the tree.
func Defects(c Cause) []any {
	var out []any
	walkCause(c, func(leaf Cause) {
		if d, ok := leaf.(*dieCause); ok {
			out = append(out, d.defect)
		}
	})
	return out
}

// Interruptors returns the set of fiber IDs that requested interruption
// anywhere in the tree.
func Interruptors(c Cause) []FiberID {
	var out []FiberID
	walkCause(c, func(leaf Cause) {
		if i, ok := leaf.(interruptCause); ok {
			out = append(out, i.fiberID)
		}
	})
	return out
}

// IsInterruptedOnly reports whether the cause consists solely of
// interruption leaves, with no Fail or Die mixed in. It feeds the
// recovery-gating rule in fiber.go: an uninterruptible fiber recovers
// (catchAll, fold) from any cause, and an interruptible fiber recovers from
// every cause except an interrupted-only one, which keeps propagating.
func IsInterruptedOnly(c Cause) bool {
	if IsEmpty(c) {
		return false
	}
	found := false
	clean := true
	walkCause(c, func(leaf Cause) {
		found = true
		switch leaf.(type) {
		case interruptCause:
		default:
			clean = false
		}
	})
	return found && clean
}

// HasInterrupt reports whether any interruption leaf occurs anywhere in c.
func HasInterrupt(c Cause) bool {
	return len(Interruptors(c)) > 0
}

func walkCause(c Cause, visit func(leaf Cause)) {
	switch n := c.(type) {
	case nil, emptyCause:
		return
	case *failCause, *dieCause, interruptCause:
		visit(n)
	case *bothCause:
		walkCause(n.left, visit)
		walkCause(n.right, visit)
	case *thenCause:
		walkCause(n.left, visit)
		walkCause(n.right, visit)
	default:
		panic(fmt.Sprintf("ef: unknown cause node %T", c))
	}
}

// Prune removes every interruption leaf from the tree, collapsing empty
// subtrees away, for a handler that wants to report only the "real"
// failures of a cause that also happened to race with an interruption.
func Prune(c Cause) Cause {
	switch n := c.(type) {
	case nil, emptyCause:
		return EmptyCause
	case interruptCause:
		return EmptyCause
	case *failCause, *dieCause:
		return n.(Cause)
	case *bothCause:
		return Both(Prune(n.left), Prune(n.right))
	case *thenCause:
		return Then(Prune(n.left), Prune(n.right))
	default:
		panic(fmt.Sprintf("ef: unknown cause node %T", c))
	}
}

// stripFailures removes every Fail leaf from the tree, collapsing empty
// subtrees away, mirroring how Prune strips Interrupt leaves instead.
func stripFailures(c Cause) Cause {
	switch n := c.(type) {
	case nil, emptyCause:
		return EmptyCause
	case *failCause:
		return EmptyCause
	case *dieCause, interruptCause:
		return n.(Cause)
	case *bothCause:
		return Both(stripFailures(n.left), stripFailures(n.right))
	case *thenCause:
		return Then(stripFailures(n.left), stripFailures(n.right))
	default:
		panic(fmt.Sprintf("ef: unknown cause node %T", c))
	}
}

// FailureOrCause returns the first typed failure recorded in c along with
// ok=true, or, if c contains no Fail leaf at all, returns ok=false and the
// cause with every Fail leaf stripped out (defects and interrupts only).
// This mirrors ZIO's Cause#failureOrCause: callers that only know how to
// handle the typed error channel use the first return; callers that need
// to re-raise whatever is left (a defect, an interrupt) use the second.
func FailureOrCause(c Cause) (error, Cause, bool) {
	if fails := Failures(c); len(fails) > 0 {
		return fails[0], nil, true
	}
	return nil, stripFailures(c), false
}

// errInterruptedSquash is SquashWith's fallback when c carries no defect
// and no typed failure, i.e. it is interrupted-only (or empty).
var errInterruptedSquash = errors.New("ef: interrupted")

// SquashWith collapses c to a single error for code that only wants one
// error value back, not a tree: the first defect if c.Defects() is
// non-empty, otherwise f applied to the first typed failure, otherwise a
// generic interruption error.
func SquashWith(c Cause, f func(error) error) error {
	if defects := Defects(c); len(defects) > 0 {
		if err, ok := defects[0].(error); ok {
			return err
		}
		return fmt.Errorf("ef: defect: %v", defects[0])
	}
	if fails := Failures(c); len(fails) > 0 {
		return f(fails[0])
	}
	return errInterruptedSquash
}

// String renders a Cause for logging. It is intentionally compact: the
// stack traces captured by FailCause and DieCause are not part of the
// rendering.
func String(c Cause) string {
	var sb strings.Builder
	writeCause(&sb, c)
	return sb.String()
}

func writeCause(sb *strings.Builder, c Cause) {
	switch n := c.(type) {
	case nil, emptyCause:
		sb.WriteString("Empty")
	case *failCause:
		fmt.Fprintf(sb, "Fail(%v)", n.err)
	case *dieCause:
		fmt.Fprintf(sb, "Die(%v)", n.defect)
	case interruptCause:
		fmt.Fprintf(sb, "Interrupt(%d)", n.fiberID)
	case *bothCause:
		sb.WriteString("Both(")
		writeCause(sb, n.left)
		sb.WriteString(", ")
		writeCause(sb, n.right)
		sb.WriteString(")")
	case *thenCause:
		sb.WriteString("Then(")
		writeCause(sb, n.left)
		sb.WriteString(", ")
		writeCause(sb, n.right)
		sb.WriteString(")")
	default:
		fmt.Fprintf(sb, "Unknown(%T)", c)
	}
}
