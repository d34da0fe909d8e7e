// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package dque

import "code.hybscloud.com/dque/dquecodec"

// Codec is re-exported from [dquecodec.Codec] so callers configuring a
// channel never need a second import for the common case. Use
// [dquecodec.CBOR] for the default implementation, or supply your own.
type Codec[T any] = dquecodec.Codec[T]
