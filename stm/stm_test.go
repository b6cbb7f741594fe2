// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package stm_test

import (
	"errors"
	"testing"

	"code.hybscloud.com/ef"
	"code.hybscloud.com/ef/stm"
	"github.com/stretchr/testify/require"
)

func runTyped[A any](t *testing.T, program ef.Effect[A]) ef.Exit[A] {
	t.Helper()
	rt := ef.NewRuntime(ef.NewPlatform(ef.WithExecutor(ef.SyncExecutor)))
	return ef.RunSyncTyped(rt, program)
}

func TestAtomicallyReadWrite(t *testing.T) {
	tv := stm.NewTVar(10)
	program := stm.Atomically(stm.FlatMap(stm.ReadTVar(tv), func(v int) stm.STM[int] {
		return stm.Return(v + 1)
	}))
	exit := runTyped(t, program)
	require.True(t, exit.IsSuccess())
	v, _ := exit.Value()
	require.Equal(t, 11, v)
}

func TestAtomicTransfer(t *testing.T) {
	from := stm.NewTVar(100)
	to := stm.NewTVar(0)

	transfer := func(amount int) stm.STM[struct{}] {
		return stm.FlatMap(stm.ReadTVar(from), func(balance int) stm.STM[struct{}] {
			return stm.FlatMap(stm.Check(balance >= amount), func(struct{}) stm.STM[struct{}] {
				return stm.FlatMap(stm.WriteTVar(from, balance-amount), func(struct{}) stm.STM[struct{}] {
					return stm.FlatMap(stm.ReadTVar(to), func(toBalance int) stm.STM[struct{}] {
						return stm.WriteTVar(to, toBalance+amount)
					})
				})
			})
		})
	}

	exit := runTyped(t, stm.Atomically(transfer(30)))
	require.True(t, exit.IsSuccess())

	fromExit := runTyped(t, stm.Atomically(stm.ReadTVar(from)))
	toExit := runTyped(t, stm.Atomically(stm.ReadTVar(to)))
	fv, _ := fromExit.Value()
	tvv, _ := toExit.Value()
	require.Equal(t, 70, fv)
	require.Equal(t, 30, tvv)
}

func TestFailThenOrElseFallsBack(t *testing.T) {
	balance := stm.NewTVar(0)
	insufficientFunds := errors.New("insufficient funds")

	withdraw := stm.FlatMap(stm.ReadTVar(balance), func(b int) stm.STM[int] {
		if b < 10 {
			return stm.Fail[int](insufficientFunds)
		}
		return stm.FlatMap(stm.WriteTVar(balance, b-10), func(struct{}) stm.STM[int] {
			return stm.Return(10)
		})
	})
	fallback := stm.Return(0)

	exit := runTyped(t, stm.Atomically(stm.OrElse(withdraw, fallback)))
	require.True(t, exit.IsSuccess())
	v, _ := exit.Value()
	require.Equal(t, 0, v)
}

func TestNewAllocatesTVarWithinTransaction(t *testing.T) {
	program := stm.Atomically(stm.FlatMap(stm.New(5), func(tv *stm.TVar[int]) stm.STM[int] {
		return stm.FlatMap(stm.WriteTVar(tv, 9), func(struct{}) stm.STM[int] {
			return stm.ReadTVar(tv)
		})
	}))
	exit := runTyped(t, program)
	require.True(t, exit.IsSuccess())
	v, _ := exit.Value()
	require.Equal(t, 9, v)
}

func TestMakeTVarCommitsInitialValue(t *testing.T) {
	exit := runTyped(t, stm.MakeTVar(42))
	require.True(t, exit.IsSuccess())
	tv, _ := exit.Value()

	readExit := runTyped(t, stm.Atomically(stm.ReadTVar(tv)))
	require.True(t, readExit.IsSuccess())
	v, _ := readExit.Value()
	require.Equal(t, 42, v)
}

func TestFailAbortsTransaction(t *testing.T) {
	tv := stm.NewTVar(1)
	boom := errors.New("boom")
	program := stm.Atomically(stm.FlatMap(stm.WriteTVar(tv, 2), func(struct{}) stm.STM[struct{}] {
		return stm.Fail[struct{}](boom)
	}))
	exit := runTyped(t, program)
	require.True(t, exit.IsFailure())
	c, _ := exit.Cause()
	require.Equal(t, []error{boom}, ef.Failures(c))

	readExit := runTyped(t, stm.Atomically(stm.ReadTVar(tv)))
	v, _ := readExit.Value()
	require.Equal(t, 1, v, "a failed transaction must not publish its writes")
}
