// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package ioflow

import (
	"context"
	"encoding/binary"

	"github.com/golang/snappy"
	"github.com/pkg/errors"
)

// SnappyFilter transparently compresses the write side and decompresses the
// read side on 4-byte length-prefixed chunk boundaries (there is no
// self-delimiting snappy stream framing in the block API, so this filter
// carries its own chunk header exactly like LengthFramingFilter's wire
// shape, just with a compressed payload). Grounded on xtaci/kcptun's use of
// github.com/golang/snappy as a transparent wire-level compressor ahead of
// its FEC/session layers; adapted here into the Filter chain instead of a
// net.Conn wrapper.
type SnappyFilter struct {
	inner   Filter
	pending []byte
}

// NewSnappyFilter wraps the current chain head with snappy compression.
func NewSnappyFilter() FilterFactory {
	return FilterFactoryFunc(func(io *Io) (Filter, error) {
		return &SnappyFilter{inner: io.st.currentFilter()}, nil
	})
}

func (f *SnappyFilter) Query(key any) (any, bool) { return f.inner.Query(key) }
func (f *SnappyFilter) WantRead()                 { f.inner.WantRead() }
func (f *SnappyFilter) WantShutdown(err error)    { f.inner.WantShutdown(err) }
func (f *SnappyFilter) PollShutdown(ctx context.Context) error {
	return f.inner.PollShutdown(ctx)
}
func (f *SnappyFilter) PollReadReady(ctx context.Context) (ReadStatus, error) {
	return f.inner.PollReadReady(ctx)
}
func (f *SnappyFilter) PollWriteReady(ctx context.Context) (WriteReadiness, error) {
	return f.inner.PollWriteReady(ctx)
}
func (f *SnappyFilter) GetReadBuf() []byte  { return f.inner.GetReadBuf() }
func (f *SnappyFilter) GetWriteBuf() []byte { return f.inner.GetWriteBuf() }
func (f *SnappyFilter) Closed(err error)    { f.inner.Closed(err) }

func (f *SnappyFilter) ReleaseReadBuf(src []byte, dst *[]byte, nbytes int) (int, error) {
	f.pending = append(f.pending, src[:nbytes]...)

	produced := 0
	for {
		if len(f.pending) < lengthPrefixSize {
			break
		}
		n := binary.BigEndian.Uint32(f.pending[:lengthPrefixSize])
		total := lengthPrefixSize + int(n)
		if len(f.pending) < total {
			break
		}
		chunk := f.pending[lengthPrefixSize:total]
		decoded, err := snappy.Decode(nil, chunk)
		if err != nil {
			return 0, errors.Wrap(err, "ioflow: snappy decode")
		}
		*dst = append(*dst, decoded...)
		produced += len(decoded)
		f.pending = f.pending[total:]
	}
	return produced, nil
}

// ReleaseWriteBuf compresses buf as a single chunk and forwards it downward
// with a 4-byte length prefix.
func (f *SnappyFilter) ReleaseWriteBuf(buf []byte) error {
	if len(buf) == 0 {
		return f.inner.ReleaseWriteBuf(buf)
	}
	compressed := snappy.Encode(nil, buf)
	out := make([]byte, lengthPrefixSize+len(compressed))
	binary.BigEndian.PutUint32(out[:lengthPrefixSize], uint32(len(compressed)))
	copy(out[lengthPrefixSize:], compressed)
	return f.inner.ReleaseWriteBuf(out)
}

var _ Filter = (*SnappyFilter)(nil)
