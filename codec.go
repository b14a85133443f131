// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package ioflow

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// Decoder is the external codec collaborator's decode half (spec §6).
// Decode must consume the bytes it parses out of *buf; returning
// (nil, false, nil) means "need more bytes".
type Decoder interface {
	Decode(buf *[]byte) (item any, ok bool, err error)
}

// Encoder is the external codec collaborator's encode half (spec §6).
type Encoder interface {
	Encode(item any, buf *[]byte) error
}

// LengthDelimitedCodec is a concrete Decoder+Encoder: a 4-byte big-endian
// length prefix followed by the payload, matching the Echo scenario wire
// format in spec §8 scenario 1. It is the minimal codec needed to make the
// Dispatcher and its tests concretely runnable without pulling in
// an HTTP/WebSocket layer, which stays out of scope per spec §1.
type LengthDelimitedCodec struct {
	// MaxFrameLen caps the accepted payload length; zero means unbounded.
	MaxFrameLen int
}

const lengthPrefixSize = 4

func (c LengthDelimitedCodec) Decode(buf *[]byte) (any, bool, error) {
	b := *buf
	if len(b) < lengthPrefixSize {
		return nil, false, nil
	}
	n := binary.BigEndian.Uint32(b[:lengthPrefixSize])
	if c.MaxFrameLen > 0 && int(n) > c.MaxFrameLen {
		return nil, false, errors.Wrapf(ErrTooLong, "frame length %d", n)
	}
	total := lengthPrefixSize + int(n)
	if len(b) < total {
		return nil, false, nil
	}
	payload := make([]byte, n)
	copy(payload, b[lengthPrefixSize:total])
	*buf = b[total:]
	return payload, true, nil
}

func (c LengthDelimitedCodec) Encode(item any, buf *[]byte) error {
	payload, ok := item.([]byte)
	if !ok {
		return errors.Errorf("ioflow: LengthDelimitedCodec cannot encode %T", item)
	}
	if c.MaxFrameLen > 0 && len(payload) > c.MaxFrameLen {
		return errors.Wrapf(ErrTooLong, "frame length %d", len(payload))
	}
	var hdr [lengthPrefixSize]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(payload)))
	*buf = append(*buf, hdr[:]...)
	*buf = append(*buf, payload...)
	return nil
}

var _ Decoder = LengthDelimitedCodec{}
var _ Encoder = LengthDelimitedCodec{}
