// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package clock_test

import (
	"sync"
	"testing"
	"time"

	"code.hybscloud.com/ef"
	"code.hybscloud.com/ef/clock"
	"github.com/stretchr/testify/require"
)

func runTyped[A any](t *testing.T, program ef.Effect[A]) ef.Exit[A] {
	t.Helper()
	rt := ef.NewRuntime(ef.NewPlatform(ef.WithExecutor(ef.SyncExecutor)))
	return ef.RunSyncTyped(rt, program)
}

func TestSleepResumesAfterAdvance(t *testing.T) {
	vc := clock.NewVirtualClock(time.Unix(0, 0))
	program := ef.FlatMap(ef.Fork(clock.Sleep(vc, 5*time.Second)), func(fiber *ef.Fiber[struct{}]) ef.Effect[ef.Exit[struct{}]] {
		return ef.FlatMap(ef.EffectTotal(func() struct{} {
			vc.Advance(5 * time.Second)
			return struct{}{}
		}), func(struct{}) ef.Effect[ef.Exit[struct{}]] {
			return fiber.AwaitExit()
		})
	})
	exit := runTyped(t, program)
	require.True(t, exit.IsSuccess())
	inner, _ := exit.Value()
	require.True(t, inner.IsSuccess())
}

func TestTimeoutWinsWhenFast(t *testing.T) {
	vc := clock.NewVirtualClock(time.Unix(0, 0))
	fast := ef.Succeed(42)
	program := clock.Timeout(vc, time.Second, fast)
	exit := runTyped(t, program)
	require.True(t, exit.IsSuccess())
	inner, _ := exit.Value()
	require.True(t, inner.IsSuccess())
	v, _ := inner.Value()
	require.Equal(t, 42, v)
}

func TestTimeoutFailFlattensDeadlineIntoFailure(t *testing.T) {
	vc := clock.NewVirtualClock(time.Unix(0, 0))
	never := ef.EffectAsync(func(func(ef.Exit[int])) ef.Effect[struct{}] {
		return ef.Effect[struct{}]{}
	})
	program := ef.FlatMap(ef.Fork(clock.TimeoutFail(vc, time.Second, never)), func(fiber *ef.Fiber[int]) ef.Effect[ef.Exit[int]] {
		return ef.FlatMap(ef.EffectTotal(func() struct{} {
			vc.Advance(time.Second)
			return struct{}{}
		}), func(struct{}) ef.Effect[ef.Exit[int]] {
			return fiber.AwaitExit()
		})
	})
	exit := runTyped(t, program)
	require.True(t, exit.IsSuccess())
	result, _ := exit.Value()
	require.True(t, result.IsFailure())
	c, _ := result.Cause()
	require.Equal(t, []error{clock.ErrTimeout}, ef.Failures(c))
}

func TestAdvanceFiresTimersInDeadlineOrderNotRegistrationOrder(t *testing.T) {
	vc := clock.NewVirtualClock(time.Unix(0, 0))
	var order []string
	var mu sync.Mutex
	record := func(label string) func() {
		return func() {
			mu.Lock()
			order = append(order, label)
			mu.Unlock()
		}
	}
	vc.After(time.Second, record("slow"))
	vc.After(10*time.Millisecond, record("fast"))
	vc.Advance(2 * time.Second)
	require.Equal(t, []string{"fast", "slow"}, order)
}

func TestTimeoutFiresOnDeadline(t *testing.T) {
	vc := clock.NewVirtualClock(time.Unix(0, 0))
	never := ef.EffectAsync(func(func(ef.Exit[int])) ef.Effect[struct{}] {
		return ef.Effect[struct{}]{}
	})
	program := ef.FlatMap(ef.Fork(clock.Timeout(vc, time.Second, never)), func(fiber *ef.Fiber[ef.Exit[int]]) ef.Effect[ef.Exit[ef.Exit[int]]] {
		return ef.FlatMap(ef.EffectTotal(func() struct{} {
			vc.Advance(time.Second)
			return struct{}{}
		}), func(struct{}) ef.Effect[ef.Exit[ef.Exit[int]]] {
			return fiber.AwaitExit()
		})
	})
	exit := runTyped(t, program)
	require.True(t, exit.IsSuccess())
	outer, _ := exit.Value()
	require.True(t, outer.IsSuccess())
	result, _ := outer.Value()
	require.True(t, result.IsFailure())
	c, _ := result.Cause()
	require.Equal(t, []error{clock.ErrTimeout}, ef.Failures(c))
}
