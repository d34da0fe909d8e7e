// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package dque

import (
	"bufio"
	"math"
	"os"
	"path/filepath"
	"unsafe"

	"go.uber.org/zap"

	"code.hybscloud.com/dque/dquemetrics"
)

const (
	// DefaultMaxMemoryBytes is the in-memory byte budget used by Channel.
	DefaultMaxMemoryBytes = 1 << 20 // 1 MiB

	// DefaultMaxDiskBytes is the per-file byte cap used by Channel.
	DefaultMaxDiskBytes = 256 << 20 // 256 MiB

	// minDiskBytes is the floor ChannelWithExplicitCapacity clamps
	// maxDiskBytes to.
	minDiskBytes = 1 << 20 // 1 MiB

	// unlimitedDiskFiles is used as the initial remaining-disk-files
	// counter when the caller does not want a cap.
	unlimitedDiskFiles = int64(math.MaxInt64)
)

// ChannelOption configures optional, type-independent channel behavior:
// an observer and a structured logger. Required tunables (memory/disk
// budgets, file counts) are positional arguments of the constructors
// themselves, following the teacher's preference for explicit capacity
// arguments over a loosely typed options bag.
type ChannelOption func(*channelSettings)

type channelSettings struct {
	logger   *zap.Logger
	observer dquemetrics.Observer
}

// WithLogger attaches a structured logger the core uses, at debug level,
// for the events a caller cannot otherwise observe synchronously: rollover
// to a new queue file (which seals the previous one) and deletion of an
// exhausted sealed file. Decode failures are not logged; Receiver.Next
// returns them.
func WithLogger(logger *zap.Logger) ChannelOption {
	return func(s *channelSettings) { s.logger = logger }
}

// WithObserver attaches a metrics observer. See package dquemetrics.
func WithObserver(observer dquemetrics.Observer) ChannelOption {
	return func(s *channelSettings) { s.observer = observer }
}

// Channel creates a named channel rooted at data_dir/name, with the
// default in-memory budget (1 MiB), per-file disk cap (256 MiB), and an
// unlimited number of queue files.
func Channel[T any](name, dataDir string, codec Codec[T], opts ...ChannelOption) (*Sender[T], *Receiver[T], error) {
	return ChannelWithExplicitCapacity[T](name, dataDir, codec, DefaultMaxMemoryBytes, DefaultMaxDiskBytes, -1, opts...)
}

// ChannelWithExplicitCapacity creates a named channel with all four
// tunables supplied by the caller. The effective in-memory slot count is
// max(1, maxMemoryBytes/sizeof(T)). The effective per-file byte cap is
// max(1 MiB, maxDiskBytes). maxDiskFiles is passed through as the initial
// remaining-files counter; a negative value means unlimited.
func ChannelWithExplicitCapacity[T any](
	name, dataDir string,
	codec Codec[T],
	maxMemoryBytes, maxDiskBytes uint64,
	maxDiskFiles int64,
	opts ...ChannelOption,
) (*Sender[T], *Receiver[T], error) {
	if _, err := os.Stat(dataDir); err != nil {
		if os.IsNotExist(err) {
			return nil, nil, ErrNoSuchDirectory
		}
		return nil, nil, wrapIOError("stat", dataDir, err)
	}

	var settings channelSettings
	for _, opt := range opts {
		opt(&settings)
	}

	root := filepath.Join(dataDir, name)
	if err := resetDirectory(root); err != nil {
		return nil, nil, err
	}

	elemSize := unsafe.Sizeof(*new(T))
	if elemSize == 0 {
		elemSize = 1
	}
	slots := maxMemoryBytes / uint64(elemSize)
	if slots < 1 {
		slots = 1
	}

	if maxDiskBytes < minDiskBytes {
		maxDiskBytes = minDiskBytes
	}
	if maxDiskFiles < 0 {
		maxDiskFiles = unlimitedDiskFiles
	}

	d := newDeque[T](slots, root, codec, maxDiskBytes, maxDiskFiles, settings.logger, settings.observer)

	g := d.LockBack()
	err := d.openInitialFile(g)
	g.Unlock()
	if err != nil {
		return nil, nil, err
	}

	readFile, err := os.Open(filepath.Join(root, "0"))
	if err != nil {
		return nil, nil, wrapIOError("open", filepath.Join(root, "0"), err)
	}

	sender := &Sender[T]{name: name, dq: d}
	receiver := &Receiver[T]{dq: d, readFile: readFile, reader: bufio.NewReader(readFile), path: filepath.Join(root, "0"), seq: 0}
	return sender, receiver, nil
}

// resetDirectory creates root if missing, or removes every entry inside it
// if it already exists — the channel carries no durability across
// construction calls, by design (see spec Non-goals).
func resetDirectory(root string) error {
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			if err := os.MkdirAll(root, 0o755); err != nil {
				return wrapIOError("mkdir", root, err)
			}
			return nil
		}
		return wrapIOError("readdir", root, err)
	}
	for _, entry := range entries {
		p := filepath.Join(root, entry.Name())
		_ = os.Chmod(p, 0o644) // clear any seal left by a prior session so RemoveAll can overwrite it
		if err := os.RemoveAll(p); err != nil {
			return wrapIOError("remove", p, err)
		}
	}
	return nil
}
