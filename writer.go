// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package dque

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"go.uber.org/zap"
)

// errDiskFull is the internal sentinel rollover returns when the
// remaining-disk-files counter has reached zero. WriteToDisk translates it
// into a FullError[T] carrying the value the caller tried to write.
var errDiskFull = errors.New("dque: disk file budget exhausted")

// WriteToDisk serializes v with the channel's codec and appends it as one
// length-prefixed record to the currently open queue file, rolling over to
// a new file first if no file is open or the write would exceed
// maxDiskBytes. The caller must hold the back lock. On any failure the
// value is returned alongside the error so the caller retains ownership.
func (d *Deque[T]) WriteToDisk(g *BackGuard[T], v T) (T, error) {
	assertSameDeque(d, g.d)

	payload, err := d.codec.Encode(v)
	if err != nil {
		return v, fmt.Errorf("dque: encode: %w", err)
	}
	recordLen := uint64(4 + len(payload))

	if d.writeFile == nil || d.bytesWritten+recordLen > d.maxDiskBytes {
		if err := d.rollover(); err != nil {
			if errors.Is(err, errDiskFull) {
				return v, &FullError[T]{Value: v}
			}
			return v, err
		}
	}

	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	if _, err := d.writeBuf.Write(lenBuf[:]); err != nil {
		return v, wrapIOError("write", d.writePath, err)
	}
	if _, err := d.writeBuf.Write(payload); err != nil {
		return v, wrapIOError("write", d.writePath, err)
	}
	d.bytesWritten += recordLen

	if d.observer != nil {
		d.observer.DiskWrite(int(recordLen))
	}
	return v, nil
}

// FlushWriter commits the writer's buffer to the OS. The caller must hold
// the back lock.
func (d *Deque[T]) FlushWriter(g *BackGuard[T]) error {
	assertSameDeque(d, g.d)
	if d.writeBuf == nil {
		return nil
	}
	if err := d.writeBuf.Flush(); err != nil {
		return wrapIOError("flush", d.writePath, err)
	}
	return nil
}

// rollover seals the currently open file (if any), consults the
// remaining-disk-files budget, and opens the next sequence-numbered file.
// The caller must hold the back lock.
func (d *Deque[T]) rollover() error {
	if d.writeFile != nil {
		sealPath := d.writePath
		flushErr := d.writeBuf.Flush()
		closeErr := d.writeFile.Close()
		// The old file is done regardless of how sealing goes: never leave
		// writeFile/writeBuf pointing at a file we already tried to close,
		// or the next call would double-close it instead of rolling over.
		d.writeFile = nil
		d.writeBuf = nil
		d.writePath = ""
		if flushErr != nil {
			return wrapIOError("flush", sealPath, flushErr)
		}
		if closeErr != nil {
			return wrapIOError("close", sealPath, closeErr)
		}
		if err := os.Chmod(sealPath, 0o444); err != nil && !os.IsNotExist(err) {
			return wrapIOError("seal", sealPath, err)
		}
	}

	for {
		cur := d.remainingDiskFiles.LoadAcquire()
		if cur <= 0 {
			return errDiskFull
		}
		if d.remainingDiskFiles.CompareAndSwapAcqRel(cur, cur-1) {
			break
		}
	}

	d.writeSeq++
	newPath := filepath.Join(d.root, strconv.FormatUint(d.writeSeq, 10))
	f, err := os.OpenFile(newPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		d.remainingDiskFiles.AddAcqRel(1) // restore the budget; no file was actually created
		return wrapIOError("create", newPath, err)
	}

	d.writeFile = f
	d.writeBuf = bufio.NewWriter(f)
	d.writePath = newPath
	d.bytesWritten = 0

	if d.observer != nil {
		d.observer.Rollover()
	}
	if d.logger != nil {
		d.logger.Debug("dque: rolled over to a new queue file",
			zap.String("channel_root", d.root),
			zap.String("path", newPath),
			zap.Uint64("sequence", d.writeSeq))
	}
	return nil
}

// openInitialFile creates sequence 0 directly, bypassing the
// remaining-disk-files budget: the channel constructor guarantees one
// writable file exists for the Receiver to open, regardless of how small
// maxDiskFiles is. It must be called before any Sender or Receiver is
// handed out, with the back lock held.
func (d *Deque[T]) openInitialFile(g *BackGuard[T]) error {
	assertSameDeque(d, g.d)

	path := filepath.Join(d.root, "0")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return wrapIOError("create", path, err)
	}
	d.writeFile = f
	d.writeBuf = bufio.NewWriter(f)
	d.writePath = path
	d.writeSeq = 0
	d.bytesWritten = 0
	return nil
}
