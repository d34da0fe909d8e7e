// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package dque

import (
	"bufio"
	"os"
	"path/filepath"
	"testing"

	"code.hybscloud.com/dque/dquecodec"
	"code.hybscloud.com/dque/dquemetrics"
)

func newTestChannel(t *testing.T, capacity uint64, maxDiskBytes uint64, maxDiskFiles int64) (*Sender[uint64], *Receiver[uint64]) {
	t.Helper()
	root := t.TempDir()
	if maxDiskFiles < 0 {
		maxDiskFiles = unlimitedDiskFiles
	}
	d := newDeque[uint64](capacity, root, dquecodec.CBOR[uint64]{}, maxDiskBytes, maxDiskFiles, nil, dquemetrics.NewNoop())

	g := d.LockBack()
	if err := d.openInitialFile(g); err != nil {
		g.Unlock()
		t.Fatalf("openInitialFile: %v", err)
	}
	g.Unlock()

	path := filepath.Join(root, "0")
	rf, err := os.Open(path)
	if err != nil {
		t.Fatalf("open read file: %v", err)
	}

	sender := &Sender[uint64]{name: "test", dq: d}
	receiver := &Receiver[uint64]{dq: d, readFile: rf, reader: bufio.NewReader(rf), path: path, seq: 0}
	return sender, receiver
}

func TestSendMemoryModeFIFO(t *testing.T) {
	sender, receiver := newTestChannel(t, 4, 1<<20, -1)
	defer receiver.Close()

	for i := uint64(0); i < 4; i++ {
		if err := sender.Send(i); err != nil {
			t.Fatalf("Send(%d): %v", i, err)
		}
	}
	for i := uint64(0); i < 4; i++ {
		got, err := receiver.Next()
		if err != nil {
			t.Fatalf("Next(%d): %v", i, err)
		}
		if got != i {
			t.Fatalf("Next(%d): got %d, want %d", i, got, i)
		}
	}
}

func TestSendSpillsToDiskWhenMemoryFull(t *testing.T) {
	const n = 8
	sender, receiver := newTestChannel(t, 2, 1<<20, -1)
	defer receiver.Close()

	for i := uint64(0); i < n; i++ {
		if err := sender.Send(i); err != nil {
			t.Fatalf("Send(%d): %v", i, err)
		}
	}

	// Draining empties the deque before the pending Disk(n) marker has
	// been push_back'd; Flush must be retried between pops to surface it.
	var received []uint64
	for len(received) < n {
		if err := sender.Flush(); err != nil && err != ErrNoFlush {
			t.Fatalf("Flush: %v", err)
		}
		got, err := receiver.Next()
		if err != nil {
			t.Fatalf("Next(%d): %v", len(received), err)
		}
		received = append(received, got)
	}
	for i, v := range received {
		if v != uint64(i) {
			t.Fatalf("received[%d]: got %d, want %d", i, v, i)
		}
	}
}

func TestSendEntersAndLeavesDiskMode(t *testing.T) {
	sender, receiver := newTestChannel(t, 1, 1<<20, -1)
	defer receiver.Close()

	if err := sender.Send(1); err != nil {
		t.Fatalf("Send(1): %v", err)
	}
	// Deque now holds Memory(1); this one must spill to disk and enter
	// disk mode (totalDiskWrites == 1, no marker pushed yet).
	if err := sender.Send(2); err != nil {
		t.Fatalf("Send(2): %v", err)
	}
	if sender.dq.totalDiskWrites != 1 {
		t.Fatalf("totalDiskWrites: got %d, want 1", sender.dq.totalDiskWrites)
	}

	if got, err := receiver.Next(); err != nil || got != 1 {
		t.Fatalf("Next: got (%d, %v), want (1, nil)", got, err)
	}
	// Draining Memory(1) makes room; the next Send writes 3 to disk too,
	// pushes the Disk(2) marker and returns to memory mode.
	if err := sender.Send(3); err != nil {
		t.Fatalf("Send(3): %v", err)
	}
	if sender.dq.totalDiskWrites != 0 {
		t.Fatalf("totalDiskWrites after marker push: got %d, want 0", sender.dq.totalDiskWrites)
	}

	if got, err := receiver.Next(); err != nil || got != 2 {
		t.Fatalf("Next: got (%d, %v), want (2, nil)", got, err)
	}
	if got, err := receiver.Next(); err != nil || got != 3 {
		t.Fatalf("Next: got (%d, %v), want (3, nil)", got, err)
	}
}

func TestFlushPushesPendingMarker(t *testing.T) {
	sender, receiver := newTestChannel(t, 1, 1<<20, -1)
	defer receiver.Close()

	if err := sender.Send(1); err != nil {
		t.Fatalf("Send(1): %v", err)
	}
	if err := sender.Send(2); err != nil {
		t.Fatalf("Send(2): %v", err)
	}
	if sender.dq.totalDiskWrites != 1 {
		t.Fatalf("totalDiskWrites: got %d, want 1", sender.dq.totalDiskWrites)
	}

	if err := sender.Flush(); err == nil {
		t.Fatalf("Flush while deque full: got nil, want ErrNoFlush")
	} else if err != ErrNoFlush {
		t.Fatalf("Flush while deque full: got %v, want ErrNoFlush", err)
	}

	if got, err := receiver.Next(); err != nil || got != 1 {
		t.Fatalf("Next: got (%d, %v), want (1, nil)", got, err)
	}

	if err := sender.Flush(); err != nil {
		t.Fatalf("Flush after drain: %v", err)
	}
	if got, err := receiver.Next(); err != nil || got != 2 {
		t.Fatalf("Next: got (%d, %v), want (2, nil)", got, err)
	}
}

func TestSenderCloneSharesDeque(t *testing.T) {
	sender, receiver := newTestChannel(t, 4, 1<<20, -1)
	defer receiver.Close()

	clone := sender.Clone()
	if clone.dq != sender.dq {
		t.Fatalf("Clone: dq pointer differs from original")
	}
	if clone.Name() != sender.Name() {
		t.Fatalf("Clone: Name() = %q, want %q", clone.Name(), sender.Name())
	}

	if err := sender.Send(1); err != nil {
		t.Fatalf("Send via original: %v", err)
	}
	if err := clone.Send(2); err != nil {
		t.Fatalf("Send via clone: %v", err)
	}

	got1, _ := receiver.Next()
	got2, _ := receiver.Next()
	if got1 != 1 || got2 != 2 {
		t.Fatalf("got (%d, %d), want (1, 2)", got1, got2)
	}
}

func TestSendReturnsFullWhenDiskBudgetExhausted(t *testing.T) {
	sender, receiver := newTestChannel(t, 1, 8, 0)
	defer receiver.Close()

	if err := sender.Send(1); err != nil {
		t.Fatalf("Send(1): %v", err)
	}

	var fullCount int
	for i := uint64(2); i < 20; i++ {
		err := sender.Send(i)
		if err != nil {
			if !IsFull(err) {
				t.Fatalf("Send(%d): got %v, want IsFull", i, err)
			}
			fullCount++
		}
	}
	if fullCount == 0 {
		t.Fatalf("expected at least one Full rejection with zero disk-file budget")
	}
}

// Regression: once the file that exhausted the disk-file budget is fully
// read and deleted (freeing the budget back by one), the channel must
// accept sends again instead of double-closing the sealed file or
// returning an IOError in place of Full.
func TestSendRecoversAfterDiskBudgetFreed(t *testing.T) {
	sender, receiver := newTestChannel(t, 1, 8, 1)
	defer receiver.Close()

	// capacity 1, maxDiskBytes 8: the 2nd send spills to disk, the 3rd
	// forces a rollover that consumes the entire budget of 1, and the 4th
	// must observe the budget exhausted and return Full.
	for i := uint64(1); i <= 3; i++ {
		if err := sender.Send(i); err != nil {
			t.Fatalf("Send(%d): %v", i, err)
		}
	}
	if err := sender.Send(4); err == nil || !IsFull(err) {
		t.Fatalf("Send(4) with exhausted budget: got %v, want IsFull", err)
	}

	// Drain the in-memory value only; the freed slot lets Flush push the
	// pending Disk(2) marker and leave disk mode.
	if got, err := receiver.Next(); err != nil || got != 1 {
		t.Fatalf("Next: got (%d, %v), want (1, nil)", got, err)
	}
	if err := sender.Flush(); err != nil && err != ErrNoFlush {
		t.Fatalf("Flush: %v", err)
	}
	if sender.dq.totalDiskWrites != 0 {
		t.Fatalf("totalDiskWrites after marker push: got %d, want 0", sender.dq.totalDiskWrites)
	}

	// Draining the Disk(2) marker's two values reads past the sealed
	// sequence-0 file, deleting it and restoring one unit of budget.
	if got, err := receiver.Next(); err != nil || got != 2 {
		t.Fatalf("Next: got (%d, %v), want (2, nil)", got, err)
	}
	if got, err := receiver.Next(); err != nil || got != 3 {
		t.Fatalf("Next: got (%d, %v), want (3, nil)", got, err)
	}

	// The deque is now empty and the budget freed. Send(5) takes the
	// memory-mode fast path; Send(6) finds the deque full again and must
	// spill to disk, forcing the writer to roll over from the state the
	// failed rollover of Send(4) left behind (sequence 1 sealed, no file
	// open). That rollover must succeed cleanly rather than reusing or
	// double-closing the old handle.
	if err := sender.Send(5); err != nil {
		t.Fatalf("Send(5): %v", err)
	}
	if err := sender.Send(6); err != nil {
		t.Fatalf("Send(6) forcing rollover after budget freed: got %v, want nil", err)
	}
	if err := sender.Flush(); err != nil && err != ErrNoFlush {
		t.Fatalf("Flush: %v", err)
	}

	if got, err := receiver.Next(); err != nil || got != 5 {
		t.Fatalf("Next: got (%d, %v), want (5, nil)", got, err)
	}
	if err := sender.Flush(); err != nil && err != ErrNoFlush {
		t.Fatalf("Flush: %v", err)
	}
	if got, err := receiver.Next(); err != nil || got != 6 {
		t.Fatalf("Next: got (%d, %v), want (6, nil)", got, err)
	}
}
