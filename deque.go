// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package dque

import (
	"bufio"
	"os"
	"sync"

	"code.hybscloud.com/atomix"
	"go.uber.org/zap"

	"code.hybscloud.com/dque/dquecodec"
	"code.hybscloud.com/dque/dquemetrics"
)

// negOne is added to an atomix.Uint64 to decrement it by one, relying on
// unsigned wraparound — atomix exposes Add but not Sub.
const negOne = ^uint64(0)

// slot is one cell of the deque's backing array.
type slot[T any] struct {
	filled bool
	value  placement[T]
}

// Deque is the fixed-capacity ring buffer shared by every clone of a
// Sender and by the single Receiver of one channel. It also carries the
// producer-side disk-writer state and the channel-wide configuration
// (directory, codec, remaining-disk-files budget, logger, observer) so
// that a Sender clone and the Receiver need only this one shared pointer.
//
// Two independent mutexes guard disjoint halves of the struct: back_lock
// guards the back offset plus all producer-shared disk-writer state,
// front_lock guards the front offset and the not-empty condition variable.
// The size counter is synchronized separately with acquire/release atomics
// so the two locks never need to be held together: the brief
// wake-on-transition-to-nonempty path takes the front lock only after the
// producer has released the back lock.
type Deque[T any] struct {
	_        pad
	size     atomix.Uint64
	_        pad
	capacity uint64
	slots    []slot[T]

	_      pad
	backMu sync.Mutex
	back   uint64

	// Producer-shared state, guarded by backMu.
	writeFile       *os.File
	writeBuf        *bufio.Writer
	bytesWritten    uint64
	writeSeq        uint64
	writePath       string
	totalDiskWrites uint64

	_        pad
	frontMu  sync.Mutex
	front    uint64
	notEmpty *sync.Cond

	// Immutable for the lifetime of the channel.
	root         string
	codec        Codec[T]
	maxDiskBytes uint64

	// Shared atomically; remainingDiskFiles is decremented by a producer
	// on rollover and incremented by the consumer on deletion.
	remainingDiskFiles atomix.Int64

	logger   *zap.Logger
	observer dquemetrics.Observer
}

// newDeque allocates a deque with the given usable capacity (slot count).
func newDeque[T any](capacity uint64, root string, codec Codec[T], maxDiskBytes uint64, maxDiskFiles int64, logger *zap.Logger, observer dquemetrics.Observer) *Deque[T] {
	if capacity < 1 {
		capacity = 1
	}
	d := &Deque[T]{
		capacity:     capacity,
		slots:        make([]slot[T], capacity),
		root:         root,
		codec:        codec,
		maxDiskBytes: maxDiskBytes,
		logger:       logger,
		observer:     observer,
	}
	d.notEmpty = sync.NewCond(&d.frontMu)
	d.remainingDiskFiles.StoreRelaxed(maxDiskFiles)
	return d
}

// BackGuard is a scoped handle over the deque's back lock, proving to
// PushBack, PopBackNoBlock, and the disk-writer methods that the caller
// holds backMu.
type BackGuard[T any] struct {
	d *Deque[T]
}

// LockBack acquires the back mutex.
func (d *Deque[T]) LockBack() *BackGuard[T] {
	d.backMu.Lock()
	return &BackGuard[T]{d: d}
}

// Unlock releases the back mutex. Safe to call exactly once per LockBack.
func (g *BackGuard[T]) Unlock() {
	g.d.backMu.Unlock()
}

// FrontGuard is a scoped handle over the deque's front lock, proving to
// NotifyNotEmpty that the caller holds frontMu.
type FrontGuard[T any] struct {
	d *Deque[T]
}

// LockFront acquires the front mutex.
func (d *Deque[T]) LockFront() *FrontGuard[T] {
	d.frontMu.Lock()
	return &FrontGuard[T]{d: d}
}

// Unlock releases the front mutex. Safe to call exactly once per LockFront.
func (g *FrontGuard[T]) Unlock() {
	g.d.frontMu.Unlock()
}

// Cap returns the deque's fixed slot count.
func (d *Deque[T]) Cap() int {
	return int(d.capacity)
}

// Len returns the current number of occupied slots. It is a snapshot;
// under concurrent use it may be stale by the time the caller observes it.
func (d *Deque[T]) Len() int {
	return int(d.size.LoadAcquire())
}

// PushBack writes p into the slot under the back offset and advances it.
// mustWake reports whether size transitioned from 0 to 1 — the caller must
// then acquire the front lock and call NotifyNotEmpty to avoid a lost
// wakeup. On failure, the returned *FullError[placement[T]] carries p back
// to the caller unchanged.
func (d *Deque[T]) PushBack(g *BackGuard[T], p placement[T]) (mustWake bool, err error) {
	assertSameDeque(d, g.d)

	size := d.size.LoadAcquire()
	if size >= d.capacity || d.slots[d.back].filled {
		return false, &FullError[placement[T]]{Value: p}
	}

	d.slots[d.back].value = p
	d.slots[d.back].filled = true
	d.back = (d.back + 1) % d.capacity
	d.size.AddAcqRel(1)

	return size == 0, nil
}

// PopBackNoBlock reverses the most recent successful PushBack. It is used
// only by a producer rolling back its own speculative push (never by the
// consumer, and never across producers — callers must hold backMu for the
// entire rollback sequence to make that safe).
func (d *Deque[T]) PopBackNoBlock(g *BackGuard[T]) (placement[T], bool) {
	assertSameDeque(d, g.d)

	if d.size.LoadAcquire() == 0 {
		var zero placement[T]
		return zero, false
	}

	d.back = (d.back - 1 + d.capacity) % d.capacity
	v := d.slots[d.back].value
	d.slots[d.back] = slot[T]{}
	d.size.AddAcqRel(negOne)

	return v, true
}

// PopFront blocks until the deque is non-empty, then takes and returns the
// value at the front offset. It never returns a sentinel: the only way to
// observe "nothing yet" is to keep waiting.
func (d *Deque[T]) PopFront() placement[T] {
	g := d.LockFront()
	defer g.Unlock()

	for d.size.LoadAcquire() == 0 {
		d.notEmpty.Wait()
	}

	v := d.slots[d.front].value
	d.slots[d.front] = slot[T]{}
	d.front = (d.front + 1) % d.capacity
	d.size.AddAcqRel(negOne)

	return v
}

// NotifyNotEmpty wakes every goroutine blocked in PopFront. The caller must
// hold the front lock (proved by FrontGuard) so that a waiter always
// re-checks size under the same mutex it will sleep on again, eliminating
// the lost-wakeup window between the size check and the Wait call.
func (d *Deque[T]) NotifyNotEmpty(g *FrontGuard[T]) {
	assertSameDeque(d, g.d)
	d.notEmpty.Broadcast()
}

func assertSameDeque[T any](d *Deque[T], g *Deque[T]) {
	if d != g {
		panic("dque: guard acquired from a different deque")
	}
}
