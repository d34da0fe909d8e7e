// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package dque

import (
	"errors"
	"fmt"

	"code.hybscloud.com/iox"
	pkgerrors "github.com/pkg/errors"
)

// ErrWouldBlock is reused from the wider ecosystem's [iox.ErrWouldBlock].
// No operation in this package returns it: PushBack on a full deque
// reports a *FullError, PopBackNoBlock on an empty deque reports false,
// and PopFront blocks instead of failing.
//
// This is an alias for [iox.ErrWouldBlock] for ecosystem consistency.
var ErrWouldBlock = iox.ErrWouldBlock

// IsWouldBlock reports whether err indicates an internal operation would
// block. Delegates to [iox.IsWouldBlock] for wrapped error support.
func IsWouldBlock(err error) bool {
	return iox.IsWouldBlock(err)
}

// ErrNoSuchDirectory is returned by the channel constructors when the
// caller-supplied data directory does not exist.
var ErrNoSuchDirectory = errors.New("dque: no such directory")

// ErrNoFlush is returned by Sender.Flush when the deque is full and the
// pending Disk(n) marker could not be pushed. The caller may retry once the
// consumer has drained at least one entry.
var ErrNoFlush = errors.New("dque: flush failed: deque is full, retry after drain")

// ErrCorrupt indicates the consumer found a record it could not decode.
// That indicates a producer bug, a mismatched codec or on-disk corruption
// rather than a transient condition; callers should treat it as fatal
// rather than retrying. An end of file on a queue file that is not yet
// sealed is not reported this way: the consumer yields and reads again.
var ErrCorrupt = errors.New("dque: corrupt or truncated queue file")

// FullError reports that an operation could not complete because a
// capacity limit was reached, and carries back ownership of the value that
// could not be enqueued or written.
//
// FullError is generic so it can wrap either the placement that failed to
// push_back or the raw value a Sender failed to write to disk, depending
// on where it originates. Use [IsFull] to test for it without knowing its
// value type parameter.
type FullError[V any] struct {
	Value V
}

func (e *FullError[V]) Error() string {
	return "dque: full"
}

// isFull lets IsFull recognize any FullError[V] without needing to know V.
func (e *FullError[V]) isFull() {}

type fullErr interface {
	isFull()
}

// IsFull reports whether err (or any error it wraps) is a FullError,
// regardless of its value type parameter.
func IsFull(err error) bool {
	var f fullErr
	return errors.As(err, &f)
}

// IOError wraps an underlying I/O failure with the operation and path that
// produced it, following the pack's block-storage convention of wrapping
// every I/O call site with github.com/pkg/errors rather than returning the
// bare *os.PathError.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("dque: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

func wrapIOError(op, path string, err error) error {
	if err == nil {
		return nil
	}
	return &IOError{Op: op, Path: path, Err: pkgerrors.Wrapf(err, "dque: %s", op)}
}
