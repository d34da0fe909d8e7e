// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package dquecodec provides the pluggable serializer contract dque's disk
// spill writer and consumer use to turn values into record payloads and
// back, plus a default CBOR-backed implementation.
package dquecodec

import (
	"github.com/fxamacker/cbor/v2"
)

// Codec serializes values of type T to bytes for the disk spill writer and
// deserializes them back for the consumer. Implementations need not be
// concurrency-safe for concurrent Encode calls from multiple producers:
// all disk writes happen under the channel's back lock, so at most one
// Encode call is ever in flight at a time. Decode is only ever called from
// the single consumer goroutine.
type Codec[T any] interface {
	Encode(v T) ([]byte, error)
	Decode(b []byte) (T, error)
}

// CBOR is a [Codec] backed by github.com/fxamacker/cbor/v2, matching the
// serialization choice of the pack's own disk-backed event queue.
type CBOR[T any] struct{}

// Encode marshals v to CBOR with the library's default encoding options
// (not the canonical encoding; map keys are not sorted).
func (CBOR[T]) Encode(v T) ([]byte, error) {
	return cbor.Marshal(v)
}

// Decode unmarshals b into a value of type T.
func (CBOR[T]) Decode(b []byte) (T, error) {
	var v T
	err := cbor.Unmarshal(b, &v)
	return v, err
}
