// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package dque

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"path/filepath"
	"strconv"

	"code.hybscloud.com/spin"
	"go.uber.org/zap"
)

// Receiver dequeues values from a channel. There is exactly one Receiver
// per channel; it is not safe for concurrent use by more than one
// goroutine.
type Receiver[T any] struct {
	dq *Deque[T]

	readFile *os.File
	reader   *bufio.Reader
	path     string
	seq      uint64

	pendingDiskReads uint64
	sw               spin.Wait
}

// Close releases the Receiver's open read file. It does not affect the
// Sender side of the channel.
func (r *Receiver[T]) Close() error {
	if r.readFile == nil {
		return nil
	}
	return r.readFile.Close()
}

// Next blocks until a value is available and returns it.
//
// On a recoverable failure — the file at the next sequence number could
// not be opened after a rollover — Next returns the zero value and an
// error satisfying errors.Is(err, ErrRetry): the caller may call Next
// again, and a later attempt may succeed once the condition clears.
//
// On a fatal failure — a record failed to decode, or an I/O call on the
// queue files failed — Next returns an error wrapping ErrCorrupt or an
// *IOError; the caller should stop iterating. An end of file on a queue
// file that is not yet sealed is not an error: Next yields and reads
// again until the record is there.
func (r *Receiver[T]) Next() (T, error) {
	for r.pendingDiskReads == 0 {
		p := r.dq.PopFront()
		if !p.isDisk() {
			if r.dq.observer != nil {
				r.dq.observer.Dequeue()
			}
			return p.value, nil
		}
		r.pendingDiskReads = p.n
	}

	v, err := r.readDiskValue()
	if err != nil {
		return v, err
	}
	r.pendingDiskReads--
	if r.dq.observer != nil {
		r.dq.observer.Dequeue()
	}
	return v, nil
}

// ErrRetry marks a Next failure as recoverable: a later call to Next may
// succeed once whatever transient condition caused it clears.
var ErrRetry = errors.New("dque: transient failure, retry")

// readDiskValue reads one length-prefixed record from the current read
// file, rolling over to the next queue file transparently when the
// current one is sealed and exhausted.
func (r *Receiver[T]) readDiskValue() (T, error) {
	var zero T
	for {
		var lenBuf [4]byte
		if _, err := io.ReadFull(r.reader, lenBuf[:]); err != nil {
			if isEOF(err) {
				if err := r.handleEOF(); err != nil {
					return zero, err
				}
				continue
			}
			return zero, wrapIOError("read", r.path, err)
		}

		length := binary.BigEndian.Uint32(lenBuf[:])
		payload := make([]byte, length)
		if _, err := io.ReadFull(r.reader, payload); err != nil {
			if isEOF(err) {
				if err := r.handleEOF(); err != nil {
					return zero, err
				}
				continue
			}
			return zero, wrapIOError("read", r.path, err)
		}

		v, err := r.dq.codec.Decode(payload)
		if err != nil {
			return zero, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		return v, nil
	}
}

// handleEOF is invoked after an EOF or unexpected EOF reading the current
// file. A non-sealed file hitting EOF means the producer has under
// committed a record it is still in the middle of writing: this is a
// transient condition, not corruption, so we yield and retry. A sealed
// file hitting EOF means it has been fully read: delete it and open the
// next one.
func (r *Receiver[T]) handleEOF() error {
	sealed, err := r.isSealed()
	if err != nil {
		return err
	}
	if !sealed {
		r.sw.Once()
		return nil
	}
	return r.rolloverRead()
}

func isEOF(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
}

func (r *Receiver[T]) isSealed() (bool, error) {
	info, err := os.Stat(r.path)
	if err != nil {
		return false, wrapIOError("stat", r.path, err)
	}
	return info.Mode().Perm()&0o200 == 0, nil
}

// rolloverRead opens the next sequence number, then deletes the exhausted,
// sealed current file and restores its slot to the remaining-disk-files
// budget. Per invariant 6, the current file's sequence number is the
// minimum in the directory, so the next file is simply seq+1. If the next
// file cannot be opened, the current file is left open and in place, so a
// later call retries the same rollover.
func (r *Receiver[T]) rolloverRead() error {
	nextSeq := r.seq + 1
	nextPath := filepath.Join(r.dq.root, strconv.FormatUint(nextSeq, 10))
	f, err := os.Open(nextPath)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrRetry, wrapIOError("open", nextPath, err))
	}

	if err := r.readFile.Close(); err != nil {
		_ = f.Close()
		return wrapIOError("close", r.path, err)
	}
	if err := os.Remove(r.path); err != nil {
		_ = f.Close()
		return wrapIOError("remove", r.path, err)
	}
	r.dq.remainingDiskFiles.AddAcqRel(1)
	if r.dq.observer != nil {
		r.dq.observer.FileDeleted()
	}
	if r.dq.logger != nil {
		r.dq.logger.Debug("dque: deleted exhausted queue file", zap.String("path", r.path))
	}

	r.readFile = f
	r.reader = bufio.NewReader(f)
	r.path = nextPath
	r.seq = nextSeq
	return nil
}

// Iter returns a blocking range-over-func iterator. It is not restartable
// from the beginning: each value is consumed forward exactly once. A
// recoverable failure is retried transparently (matching Next's own
// retry-on-ErrRetry contract); a fatal failure ends the iteration.
func (r *Receiver[T]) Iter() iter.Seq[T] {
	return func(yield func(T) bool) {
		for {
			v, err := r.Next()
			if err != nil {
				if errors.Is(err, ErrRetry) {
					continue
				}
				return
			}
			if !yield(v) {
				return
			}
		}
	}
}
