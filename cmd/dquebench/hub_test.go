// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package main

import "testing"

func TestTailHubBroadcastDropsWhenFull(t *testing.T) {
	h := newTailHub()
	for i := 0; i < cap(h.values)+10; i++ {
		h.broadcast(uint64(i))
	}
	if len(h.values) != cap(h.values) {
		t.Fatalf("values channel length: got %d, want %d (full, excess dropped)", len(h.values), cap(h.values))
	}
}
