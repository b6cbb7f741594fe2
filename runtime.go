// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package ef

// Runtime is the entry point that hands an [Effect] tree to a root fiber
// and reports its [Exit]. A Runtime is cheap to construct and safe to
// share across goroutines: it holds no mutable state beyond the
// [Platform] it was built with.
type Runtime struct {
	platform *Platform
}

// NewRuntime binds a Runtime to platform. A nil platform is replaced with
// [NewPlatform]()'s defaults.
func NewRuntime(platform *Platform) *Runtime {
	if platform == nil {
		platform = NewPlatform()
	}
	return &Runtime{platform: platform}
}

// RunSync runs program on a fresh root fiber and blocks the calling
// goroutine until it produces an [Exit]. Any Die that reaches the root
// fiber unrecovered is additionally reported to the [Platform]'s
// [FailureSink] before RunSync returns, mirroring how the teacher's
// RunWith entry point lets a caller supply a final handler without
// swallowing the underlying failure.
func (r *Runtime) RunSync(program Effect[Erased]) Exit[Erased] {
	done := make(chan Exit[Erased], 1)
	root := runFiber[Erased](r.platform, nil, r.platform.executor, nil, false, Interruptible, program.erase())
	root.done.OnComplete(func(exit Exit[Erased]) { done <- exit })
	exit := <-done
	r.reportIfUnhandled(root.id, exit)
	return exit
}

// RunAsync runs program on a fresh root fiber without blocking, invoking
// callback exactly once with its Exit. It returns the [*Fiber] handle so
// the caller can interrupt the run before it completes.
func (r *Runtime) RunAsync(program Effect[Erased], callback func(Exit[Erased])) *Fiber[Erased] {
	root := runFiber[Erased](r.platform, nil, r.platform.executor, nil, false, Interruptible, program.erase())
	root.done.OnComplete(func(exit Exit[Erased]) {
		r.reportIfUnhandled(root.id, exit)
		if callback != nil {
			callback(exit)
		}
	})
	return root
}

func (r *Runtime) reportIfUnhandled(id FiberID, exit Exit[Erased]) {
	if exit.IsSuccess() || r.platform.sink == nil {
		return
	}
	c, _ := exit.Cause()
	if len(Defects(c)) == 0 {
		return
	}
	r.platform.sink.ReportFailure(id, c)
}

// RunSyncTyped is a generic convenience wrapper around RunSync for callers
// that know the program's result type statically.
func RunSyncTyped[A any](r *Runtime, program Effect[A]) Exit[A] {
	exit := r.RunSync(Effect[Erased]{node: program.erase()})
	if exit.IsSuccess() {
		v, _ := exit.Value()
		return Succeeded(v.(A))
	}
	c, _ := exit.Cause()
	return Failed[A](c)
}
