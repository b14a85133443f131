// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package ioflow

import (
	"errors"

	"code.hybscloud.com/iox"
)

var (
	// ErrInvalidArgument reports an invalid configuration or nil transport/codec.
	ErrInvalidArgument = errors.New("ioflow: invalid argument")

	// ErrTooLong reports that a frame length exceeds limits or the supported wire format.
	ErrTooLong = errors.New("ioflow: message too long")

	// ErrClosed is returned by operations attempted after the connection reached IO_STOPPED.
	ErrClosed = errors.New("ioflow: connection closed")

	// ErrFilterSealed is returned by AddFilter once Seal has erased the filter type.
	ErrFilterSealed = errors.New("ioflow: filter chain already sealed")
)

// These are provided as package-level aliases so callers can reference the
// same sentinels the teacher's framing layer re-exports from iox, without a
// direct iox import, for their own Filter implementations: this package's
// own pumps (runReadTask/runWriteTask) run against blocking net.Conn and
// never produce a "would block" outcome themselves, so neither sentinel is
// compared against internally — they exist for a custom Filter (e.g. one
// wrapping a non-blocking transport) to report in terms a caller built
// against this package already knows how to recognize.
var (
	// ErrWouldBlock means "no further progress without waiting".
	ErrWouldBlock = iox.ErrWouldBlock

	// ErrMore means "this completion is usable and more completions will
	// follow" — for a Filter that decodes in chunks.
	ErrMore = iox.ErrMore
)
