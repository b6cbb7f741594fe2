// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package ef

import "runtime"

// traceDepth bounds the number of program counters captured per failure
// leaf. Deep recursive effect chains are common; an unbounded trace would
// make every Fail/Die allocation proportional to stack depth.
const traceDepth = 32

func captureTrace() []uintptr {
	pcs := make([]uintptr, traceDepth)
	n := runtime.Callers(3, pcs)
	return pcs[:n]
}
