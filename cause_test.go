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

func TestBothIsIdentityOverEmptyCause(t *testing.T) {
	c := ef.FailCause(errors.New("x"))
	require.Equal(t, c, ef.Both(c, ef.EmptyCause))
	require.Equal(t, c, ef.Both(ef.EmptyCause, c))
}

func TestThenIsIdentityOverEmptyCause(t *testing.T) {
	c := ef.FailCause(errors.New("x"))
	require.Equal(t, c, ef.Then(c, ef.EmptyCause))
	require.Equal(t, c, ef.Then(ef.EmptyCause, c))
}

func TestFailuresWalksBothAndThen(t *testing.T) {
	e1, e2, e3 := errors.New("1"), errors.New("2"), errors.New("3")
	c := ef.Then(ef.Both(ef.FailCause(e1), ef.FailCause(e2)), ef.FailCause(e3))
	require.Equal(t, []error{e1, e2, e3}, ef.Failures(c))
}

func TestIsInterruptedOnly(t *testing.T) {
	pure := ef.InterruptCause(1)
	require.True(t, ef.IsInterruptedOnly(pure))

	mixed := ef.Both(ef.InterruptCause(1), ef.FailCause(errors.New("x")))
	require.False(t, ef.IsInterruptedOnly(mixed))

	require.False(t, ef.IsInterruptedOnly(ef.EmptyCause))
}

func TestHasInterrupt(t *testing.T) {
	require.True(t, ef.HasInterrupt(ef.Both(ef.FailCause(errors.New("x")), ef.InterruptCause(2))))
	require.False(t, ef.HasInterrupt(ef.FailCause(errors.New("x"))))
}

func TestPruneRemovesInterruptLeaves(t *testing.T) {
	e := errors.New("real failure")
	c := ef.Both(ef.InterruptCause(1), ef.FailCause(e))
	pruned := ef.Prune(c)
	require.False(t, ef.HasInterrupt(pruned))
	require.Equal(t, []error{e}, ef.Failures(pruned))
}

func TestFailureOrCauseReturnsFirstFailure(t *testing.T) {
	e := errors.New("real failure")
	c := ef.Both(ef.InterruptCause(1), ef.FailCause(e))
	err, rest, ok := ef.FailureOrCause(c)
	require.True(t, ok)
	require.Equal(t, e, err)
	require.Nil(t, rest)
}

func TestFailureOrCauseStripsFailuresWhenNoneFound(t *testing.T) {
	c := ef.Both(ef.InterruptCause(1), ef.DieCause("boom"))
	err, rest, ok := ef.FailureOrCause(c)
	require.False(t, ok)
	require.Nil(t, err)
	require.True(t, ef.HasInterrupt(rest))
	require.Equal(t, []any{"boom"}, ef.Defects(rest))
}

func TestSquashWithPrefersDefectOverFailure(t *testing.T) {
	e := errors.New("real failure")
	c := ef.Both(ef.FailCause(e), ef.DieCause(errors.New("defect")))
	got := ef.SquashWith(c, func(err error) error { return err })
	require.Equal(t, "defect", got.Error())
}

func TestSquashWithMapsFailureWhenNoDefect(t *testing.T) {
	e := errors.New("real failure")
	mapped := errors.New("mapped")
	got := ef.SquashWith(ef.FailCause(e), func(err error) error {
		require.Equal(t, e, err)
		return mapped
	})
	require.Equal(t, mapped, got)
}

func TestSquashWithFallsBackToInterruptedOnlyCause(t *testing.T) {
	got := ef.SquashWith(ef.InterruptCause(1), func(err error) error { return err })
	require.Error(t, got)
}
