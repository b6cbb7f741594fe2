// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package ef_test

import (
	"runtime"
	"sync/atomic"
	"testing"

	"code.hybscloud.com/ef"
	"github.com/stretchr/testify/require"
)

func neverEffect[A any](onCancel func()) ef.Effect[A] {
	return ef.EffectAsync(func(func(ef.Exit[A])) ef.Effect[struct{}] {
		return ef.EffectTotal(func() struct{} {
			if onCancel != nil {
				onCancel()
			}
			return struct{}{}
		})
	})
}

func TestParentInterruptsChildOnCompletion(t *testing.T) {
	canceled := false
	program := ef.FlatMap(ef.Fork(neverEffect[int](func() { canceled = true })), func(*ef.Fiber[int]) ef.Effect[struct{}] {
		return ef.Succeed(struct{}{})
	})
	exit := runTyped(t, program)
	require.True(t, exit.IsSuccess())
	require.True(t, canceled, "a still-running child must be interrupted when its parent completes")
}

func TestForkDaemonOutlivesParent(t *testing.T) {
	canceled := false
	program := ef.FlatMap(ef.ForkDaemon(neverEffect[int](func() { canceled = true })), func(*ef.Fiber[int]) ef.Effect[struct{}] {
		return ef.Succeed(struct{}{})
	})
	exit := runTyped(t, program)
	require.True(t, exit.IsSuccess())
	require.False(t, canceled, "a daemon fiber must not be interrupted by its parent's completion")
}

func TestEnsuringRunsOnInterrupt(t *testing.T) {
	finalized := false
	body := ef.Ensuring(neverEffect[struct{}](nil), ef.EffectTotal(func() struct{} {
		finalized = true
		return struct{}{}
	}))
	program := ef.FlatMap(ef.Fork(body), func(fiber *ef.Fiber[struct{}]) ef.Effect[ef.Exit[struct{}]] {
		return ef.FlatMap(fiber.Interrupt(1), func(struct{}) ef.Effect[ef.Exit[struct{}]] {
			return fiber.AwaitExit()
		})
	})
	exit := runTyped(t, program)
	require.True(t, exit.IsSuccess())
	inner, _ := exit.Value()
	require.True(t, inner.IsFailure())
	c, _ := inner.Cause()
	require.True(t, ef.IsInterruptedOnly(c))
	require.True(t, finalized)
}

// TestInterruptObservedWithoutYieldPoint proves interruption is checked on
// every reduction, not only at the periodic yield-opcount checkpoint: the
// child fiber below never calls EffectAsync or Yield, so the only way it can
// stop short of totalIterations is the unconditional check step now performs
// before dispatch.
func TestInterruptObservedWithoutYieldPoint(t *testing.T) {
	rt := ef.NewRuntime(ef.NewPlatform())
	started := make(chan struct{})
	var steps int64
	const totalIterations = 200000 // far beyond the default yieldBudget of 2048

	loop := ef.EffectTotal(func() struct{} {
		close(started)
		return struct{}{}
	})
	cont := func(struct{}) ef.Effect[struct{}] {
		atomic.AddInt64(&steps, 1)
		runtime.Gosched()
		return ef.Succeed(struct{}{})
	}
	for i := 0; i < totalIterations; i++ {
		loop = ef.FlatMap(loop, cont)
	}

	program := ef.FlatMap(ef.Fork(loop), func(fiber *ef.Fiber[struct{}]) ef.Effect[ef.Exit[struct{}]] {
		return ef.FlatMap(ef.EffectTotal(func() struct{} {
			<-started
			return struct{}{}
		}), func(struct{}) ef.Effect[ef.Exit[struct{}]] {
			return ef.FlatMap(fiber.Interrupt(1), func(struct{}) ef.Effect[ef.Exit[struct{}]] {
				return fiber.AwaitExit()
			})
		})
	})

	exit := ef.RunSyncTyped(rt, program)
	require.True(t, exit.IsSuccess())
	inner, _ := exit.Value()
	require.True(t, inner.IsFailure())
	c, _ := inner.Cause()
	require.True(t, ef.IsInterruptedOnly(c))
	require.Less(t, atomic.LoadInt64(&steps), int64(totalIterations),
		"interruption must land before the fiber runs its pure chain to completion")
}

func TestSetInterruptStatusRestoresPreviousStatus(t *testing.T) {
	var statuses []ef.InterruptStatus
	record := func() ef.Effect[struct{}] {
		return ef.CheckInterrupt(func(s ef.InterruptStatus) ef.Effect[struct{}] {
			statuses = append(statuses, s)
			return ef.Succeed(struct{}{})
		})
	}
	program := ef.FlatMap(record(), func(struct{}) ef.Effect[struct{}] {
		return ef.FlatMap(ef.MakeUninterruptible(record()), func(struct{}) ef.Effect[struct{}] {
			return record()
		})
	})
	exit := runTyped(t, program)
	require.True(t, exit.IsSuccess())
	require.Equal(t, []ef.InterruptStatus{ef.Interruptible, ef.Uninterruptible, ef.Interruptible}, statuses)
}
