// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package dque

// placement is the tagged variant stored in the bounded deque: either a
// concrete in-memory value, or a marker announcing that the next n
// deserialized records on disk belong here in queue order.
//
// A producer never push_backs a disk placement without having already
// written exactly n records to the current queue file; the consumer never
// inspects disk contents except through a disk placement it has popped.
type placement[T any] struct {
	disk  bool
	value T      // valid iff !disk
	n     uint64 // valid iff disk; always >= 1
}

// memoryPlacement wraps a user value for direct delivery to the consumer.
func memoryPlacement[T any](v T) placement[T] {
	return placement[T]{value: v}
}

// diskPlacement announces n sequential disk records. n must be >= 1.
func diskPlacement[T any](n uint64) placement[T] {
	return placement[T]{disk: true, n: n}
}

// isDisk reports whether p is a Disk(n) marker rather than a Memory(T).
func (p placement[T]) isDisk() bool {
	return p.disk
}
