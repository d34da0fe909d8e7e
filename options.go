// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package dque

// pad is cache line padding to prevent false sharing between fields that
// are hot on different goroutines (e.g. the back offset versus the front
// offset), carried over from the teacher's lock-free queues where this
// padding mattered for the same reason.
type pad [64]byte
