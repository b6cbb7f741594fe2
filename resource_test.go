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

func runTyped[A any](t *testing.T, program ef.Effect[A]) ef.Exit[A] {
	t.Helper()
	rt := ef.NewRuntime(ef.NewPlatform(ef.WithExecutor(ef.SyncExecutor)))
	return ef.RunSyncTyped(rt, program)
}

func TestBracketSuccess(t *testing.T) {
	var acquired, released bool

	comp := ef.Bracket[int, int](
		ef.Succeed(42),
		func(r int) ef.Effect[struct{}] {
			released = true
			return ef.Succeed(struct{}{})
		},
		func(r int) ef.Effect[int] {
			acquired = true
			return ef.Succeed(r * 2)
		},
	)

	exit := runTyped(t, comp)
	require.True(t, exit.IsSuccess())
	v, _ := exit.Value()
	require.Equal(t, 84, v)
	require.True(t, acquired)
	require.True(t, released)
}

func TestBracketReleasesOnError(t *testing.T) {
	var released bool

	comp := ef.Bracket[int, int](
		ef.Succeed(42),
		func(r int) ef.Effect[struct{}] {
			released = true
			return ef.Succeed(struct{}{})
		},
		func(r int) ef.Effect[int] {
			return ef.Fail[int](errors.New("intentional error"))
		},
	)

	exit := runTyped(t, comp)
	require.True(t, exit.IsFailure())
	c, _ := exit.Cause()
	require.Equal(t, []error{errors.New("intentional error")}, ef.Failures(c))
	require.True(t, released)
}

func TestOnErrorRunsOnError(t *testing.T) {
	var cleanedUp bool
	var capturedErr error

	comp := ef.OnError(
		ef.Fail[int](errors.New("test error")),
		func(c ef.Cause) ef.Effect[struct{}] {
			cleanedUp = true
			fs := ef.Failures(c)
			require.Len(t, fs, 1)
			capturedErr = fs[0]
			return ef.Succeed(struct{}{})
		},
	)

	exit := runTyped(t, comp)
	require.True(t, exit.IsFailure())
	require.True(t, cleanedUp)
	require.EqualError(t, capturedErr, "test error")
}

func TestOnErrorSkippedOnSuccess(t *testing.T) {
	var cleanedUp bool

	comp := ef.OnError(
		ef.Succeed(42),
		func(ef.Cause) ef.Effect[struct{}] {
			cleanedUp = true
			return ef.Succeed(struct{}{})
		},
	)

	exit := runTyped(t, comp)
	require.True(t, exit.IsSuccess())
	v, _ := exit.Value()
	require.Equal(t, 42, v)
	require.False(t, cleanedUp)
}
