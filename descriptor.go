// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package ef

// FiberID uniquely identifies a fiber for the lifetime of the runtime.
type FiberID uint64

// FiberState is a coarse snapshot of a fiber's run state.
type FiberState uint8

const (
	// FiberExecuting is set while the fiber is actively reducing, or
	// suspended pending an async resume/child join.
	FiberExecuting FiberState = iota
	// FiberDone is set once the fiber has produced its Exit.
	FiberDone
)

// Descriptor is an immutable snapshot of a fiber's identity and
// supervision relationships, handed out by [EffectDescriptor]. It is a
// supplemented feature relative to the distilled spec: useful for
// diagnostics/tracing tooling built on top of the runtime, grounded in the
// fiber-introspection APIs many effect systems expose alongside their core
// primitives.
type Descriptor struct {
	ID       FiberID
	State    FiberState
	Status   InterruptStatus
	parent   *fiberNode
	children func() []Descriptor
}

// Children returns a snapshot of the fiber's currently registered,
// still-running children.
func (d Descriptor) Children() []Descriptor {
	if d.children == nil {
		return nil
	}
	return d.children()
}
