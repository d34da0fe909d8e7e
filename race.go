// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

//go:build race

package dque

// RaceEnabled is true when the race detector is active, so a test can tell
// when timing-sensitive scenarios run under the detector's instrumentation.
// No test in this module reads it.
const RaceEnabled = true
