// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package ef

import (
	"github.com/joeycumines/izerolog"
	"github.com/joeycumines/logiface"
	"github.com/rs/zerolog"
	"os"
)

// Executor runs a batch of fiber-reduction work. An Executor is free to
// run Task on any goroutine, immediately or queued, as long as it
// eventually runs it exactly once. The default [Platform] executor starts
// a new goroutine for every submitted task; tests typically install a
// synchronous Executor that runs Task inline.
type Executor interface {
	// Submit schedules task to run. It must not block the caller beyond
	// the time needed to enqueue task.
	Submit(task func())
}

// executorFunc adapts a plain function to Executor.
type executorFunc func(task func())

func (f executorFunc) Submit(task func()) { f(task) }

// goroutineExecutor runs every submitted task on its own goroutine. This
// is the default executor: it gives every fiber-reduction batch a real OS
// thread to make progress on and relies on the Go runtime's scheduler for
// multiplexing, the same posture the teacher's trampoline takes toward the
// goroutine it is called from.
var goroutineExecutor Executor = executorFunc(func(task func()) { go task() })

// SyncExecutor runs submitted tasks inline, on the submitting goroutine.
// Useful for tests that want deterministic, single-threaded interleaving.
var SyncExecutor Executor = executorFunc(func(task func()) { task() })

// FailureSink receives causes the runtime itself could not otherwise
// report: an unhandled defect that reached the root fiber. The default
// sink logs via
// logiface/izerolog, mirroring the ambient logging stack used across the
// rest of the pack this runtime was built from.
type FailureSink interface {
	ReportFailure(fiberID FiberID, cause Cause)
}

type logifaceFailureSink struct {
	logger *logiface.Logger[*izerolog.Event]
}

func (s *logifaceFailureSink) ReportFailure(fiberID FiberID, cause Cause) {
	s.logger.Err().
		Int64("fiber_id", int64(fiberID)).
		Str("cause", String(cause)).
		Log("unhandled fiber failure")
}

// DefaultFailureSink returns a FailureSink that writes structured,
// human-readable log lines to w via zerolog's console writer.
func DefaultFailureSink(w *os.File) FailureSink {
	zl := zerolog.New(zerolog.ConsoleWriter{Out: w}).With().Timestamp().Logger()
	logger := izerolog.L.New(
		izerolog.L.WithZerolog(zl),
		izerolog.L.WithLevel(logiface.LevelTrace),
	)
	return &logifaceFailureSink{logger: logger}
}

// Platform bundles the configuration a [Runtime] needs to execute effects:
// which executor fibers run on by default, how unhandled failures are
// reported, and the scheduling knobs that bound how much work a fiber does
// before yielding back to its executor.
type Platform struct {
	executor    Executor
	sink        FailureSink
	yieldOpCount int64
}

// PlatformOption configures a Platform built by [NewPlatform].
type PlatformOption func(*Platform)

// WithExecutor overrides the default executor fibers run on.
func WithExecutor(e Executor) PlatformOption {
	return func(p *Platform) { p.executor = e }
}

// WithFailureSink overrides where unhandled defects/causes are reported.
func WithFailureSink(sink FailureSink) PlatformOption {
	return func(p *Platform) { p.sink = sink }
}

// WithYieldOpCount sets how many interpreter reductions a fiber performs
// before voluntarily yielding back to its executor, bounding how long a
// CPU-bound fiber can starve its executor's other fibers. The default is
// 2048, matching the kind of fairness budget a green-thread scheduler
// typically uses.
func WithYieldOpCount(n int64) PlatformOption {
	return func(p *Platform) { p.yieldOpCount = n }
}

// NewPlatform builds a Platform from options, defaulting to the goroutine
// executor, a stderr FailureSink and a 2048-reduction yield budget.
func NewPlatform(opts ...PlatformOption) *Platform {
	p := &Platform{
		executor:     goroutineExecutor,
		sink:         DefaultFailureSink(os.Stderr),
		yieldOpCount: 2048,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}
