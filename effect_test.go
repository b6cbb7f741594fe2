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

func TestFlatMapSequencesInOrder(t *testing.T) {
	var order []int
	program := ef.FlatMap(ef.EffectTotal(func() int {
		order = append(order, 1)
		return 1
	}), func(a int) ef.Effect[int] {
		return ef.EffectTotal(func() int {
			order = append(order, 2)
			return a + 1
		})
	})
	exit := runTyped(t, program)
	require.True(t, exit.IsSuccess())
	v, _ := exit.Value()
	require.Equal(t, 2, v)
	require.Equal(t, []int{1, 2}, order)
}

func TestFlatMapLeftZeroLaw(t *testing.T) {
	called := false
	boom := errors.New("boom")
	program := ef.FlatMap(ef.Fail[int](boom), func(int) ef.Effect[int] {
		called = true
		return ef.Succeed(0)
	})
	exit := runTyped(t, program)
	require.True(t, exit.IsFailure())
	require.False(t, called)
	c, _ := exit.Cause()
	require.Equal(t, []error{boom}, ef.Failures(c))
}

func TestMapTransformsSuccess(t *testing.T) {
	exit := runTyped(t, ef.Map(ef.Succeed(21), func(a int) int { return a * 2 }))
	require.True(t, exit.IsSuccess())
	v, _ := exit.Value()
	require.Equal(t, 42, v)
}

func TestCatchAllRecoversFromFailure(t *testing.T) {
	program := ef.CatchAll(ef.Fail[int](errors.New("x")), func(ef.Cause) ef.Effect[int] {
		return ef.Succeed(7)
	})
	exit := runTyped(t, program)
	require.True(t, exit.IsSuccess())
	v, _ := exit.Value()
	require.Equal(t, 7, v)
}

func TestEffectPartialConvertsErrorToFailure(t *testing.T) {
	boom := errors.New("partial failure")
	program := ef.EffectPartial(func() (int, error) { return 0, boom })
	exit := runTyped(t, program)
	require.True(t, exit.IsFailure())
	c, _ := exit.Cause()
	require.Equal(t, []error{boom}, ef.Failures(c))
}

func TestDieIsReportedAsDefectNotFailure(t *testing.T) {
	program := ef.Die[int]("unexpected")
	exit := runTyped(t, program)
	require.True(t, exit.IsFailure())
	c, _ := exit.Cause()
	require.Empty(t, ef.Failures(c))
	require.Equal(t, []any{"unexpected"}, ef.Defects(c))
}

func TestEffectSuspendTotalDefersConstruction(t *testing.T) {
	built := false
	program := ef.EffectSuspendTotal(func() ef.Effect[int] {
		built = true
		return ef.Succeed(1)
	})
	require.False(t, built)
	exit := runTyped(t, program)
	require.True(t, built)
	require.True(t, exit.IsSuccess())
}
