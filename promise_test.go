// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package ef_test

import (
	"errors"
	"testing"

	"code.hybscloud.com/ef"
	"github.com/stretchr/testify/require"
)

func TestPromiseFansOutToMultipleAwaiters(t *testing.T) {
	p := ef.NewPromise[int]()
	var results []int
	program := ef.FlatMap(ef.Fork(p.Await()), func(f1 *ef.Fiber[int]) ef.Effect[struct{}] {
		return ef.FlatMap(ef.Fork(p.Await()), func(f2 *ef.Fiber[int]) ef.Effect[struct{}] {
			return ef.FlatMap(p.Succeed(9), func(bool) ef.Effect[struct{}] {
				return ef.FlatMap(f1.Await(), func(a int) ef.Effect[struct{}] {
					return ef.FlatMap(f2.Await(), func(b int) ef.Effect[struct{}] {
						results = append(results, a, b)
						return ef.Succeed(struct{}{})
					})
				})
			})
		})
	})
	exit := runTyped(t, program)
	require.True(t, exit.IsSuccess())
	require.Equal(t, []int{9, 9}, results)
}

func TestPromiseOnlyFirstCompletionWins(t *testing.T) {
	p := ef.NewPromise[int]()
	program := ef.FlatMap(p.Succeed(1), func(first bool) ef.Effect[bool] {
		return ef.FlatMap(p.Succeed(2), func(second bool) ef.Effect[bool] {
			return ef.Succeed(first && !second)
		})
	})
	exit := runTyped(t, program)
	require.True(t, exit.IsSuccess())
	v, _ := exit.Value()
	require.True(t, v)
}

func TestAwaitExitFlattenRoundTrips(t *testing.T) {
	boom := errors.New("boom")
	p := ef.NewPromise[int]()
	program := ef.FlatMap(p.Fail(boom), func(bool) ef.Effect[int] {
		return ef.Flatten(p.AwaitExit())
	})
	exit := runTyped(t, program)
	require.True(t, exit.IsFailure())
	c, _ := exit.Cause()
	require.Equal(t, []error{boom}, ef.Failures(c))
}

func TestRefSetAsyncIsVisibleToGet(t *testing.T) {
	r := ef.NewRef(0)
	program := ef.FlatMap(r.SetAsync(7), func(struct{}) ef.Effect[int] {
		return r.Get()
	})
	exit := runTyped(t, program)
	require.True(t, exit.IsSuccess())
	v, _ := exit.Value()
	require.Equal(t, 7, v)
}

func TestRefUpdateAppliesFunctionToCurrentValue(t *testing.T) {
	r := ef.NewRef(0)
	program := ef.FlatMap(r.Update(func(n int) int { return n + 1 }), func(struct{}) ef.Effect[int] {
		return r.Get()
	})
	exit := runTyped(t, program)
	require.True(t, exit.IsSuccess())
	v, _ := exit.Value()
	require.Equal(t, 1, v)
}
