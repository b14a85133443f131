// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package ioflow

import "context"

// RecvErrorKind enumerates the RecvError tagged union of spec §3.
type RecvErrorKind int

const (
	RecvKeepAlive RecvErrorKind = iota
	RecvWriteBackpressure
	RecvStop
	RecvDecoderErr
	RecvPeerGone
)

// RecvError is returned by receive operations (spec §3, §7).
type RecvError struct {
	Kind RecvErrorKind
	Err  error // Decoder error payload, or PeerGone's optional cause
}

func (e *RecvError) Error() string {
	switch e.Kind {
	case RecvKeepAlive:
		return "ioflow: keep-alive timeout"
	case RecvWriteBackpressure:
		return "ioflow: write backpressure"
	case RecvStop:
		return "ioflow: stop"
	case RecvDecoderErr:
		return "ioflow: decoder error: " + e.Err.Error()
	case RecvPeerGone:
		if e.Err != nil {
			return "ioflow: peer gone: " + e.Err.Error()
		}
		return "ioflow: peer gone"
	default:
		return "ioflow: recv error"
	}
}

// Framed is a non-consuming view pairing an Io with a codec (spec §4.6).
type Framed struct {
	io      *Io
	codec   any // Decoder, Encoder, or both
	decoder Decoder
	encoder Encoder
}

// NewFramed pairs io with codec, which must implement Decoder, Encoder, or
// both (this package's LengthDelimitedCodec implements both).
func NewFramed(io *Io, codec any) *Framed {
	fr := &Framed{io: io, codec: codec}
	fr.decoder, _ = codec.(Decoder)
	fr.encoder, _ = codec.(Encoder)
	return fr
}

// Next decodes one frame, blocking until one is available or a terminal
// condition (spec §4.6 decode algorithm, §4.5 recv semantics).
func (fr *Framed) Next(ctx context.Context) (any, *RecvError) {
	return fr.recv(ctx)
}

// Send encodes item and queues it for the write pump (spec §4.6).
func (fr *Framed) Send(ctx context.Context, item any) error {
	return fr.send(ctx, item)
}

// Flush blocks until the write buffer has fully drained.
func (fr *Framed) Flush(ctx context.Context) error {
	st := fr.io.st
	for {
		if st.writeBufLen() == 0 {
			return nil
		}
		if st.getFlags().Contains(IoStopped) {
			return ErrClosed
		}
		if !parkUntil(st.dispatchTask, ctx, st.rootContext()) {
			return ctx.Err()
		}
	}
}

func (fr *Framed) recv(ctx context.Context) (any, *RecvError) {
	st := fr.io.st
	if fr.decoder == nil && fr.codec != nil {
		fr.decoder, _ = fr.codec.(Decoder)
	}

	for {
		buf := st.takeReadBuf()
		if buf != nil && len(buf) > 0 && fr.decoder != nil {
			item, ok, err := fr.decoder.Decode(&buf)
			if err != nil {
				st.setReadBuf(buf)
				return nil, &RecvError{Kind: RecvDecoderErr, Err: err}
			}
			if ok {
				if len(buf) == 0 {
					st.removeFlags(RdReady)
					st.setReadBuf(nil)
				} else {
					st.setReadBuf(buf)
				}
				if st.getFlags().Contains(RdBufFull) && len(buf) <= st.memoryPool().ReadParams().High {
					st.removeFlags(RdBufFull)
					st.readTask.wake()
				}
				return item, nil
			}
			st.setReadBuf(buf)
		} else if buf != nil {
			st.setReadBuf(buf)
		}

		flags := st.getFlags()
		if flags.Contains(IoStopped) {
			return nil, &RecvError{Kind: RecvPeerGone, Err: st.recordedError()}
		}
		if flags.Contains(DspStop) {
			return nil, &RecvError{Kind: RecvStop}
		}
		if flags.Contains(DspKeepalive) {
			st.removeFlags(DspKeepalive)
			return nil, &RecvError{Kind: RecvKeepAlive}
		}
		if flags.Contains(WrBackpressure) {
			return nil, &RecvError{Kind: RecvWriteBackpressure}
		}

		st.currentFilter().WantRead()
		st.removeFlags(RdReady)
		if !parkUntil(st.dispatchTask, ctx, st.rootContext()) {
			return nil, &RecvError{Kind: RecvStop}
		}
	}
}

func (fr *Framed) send(ctx context.Context, item any) error {
	st := fr.io.st
	if fr.encoder == nil && fr.codec != nil {
		fr.encoder, _ = fr.codec.(Encoder)
	}
	if fr.encoder == nil {
		return ErrInvalidArgument
	}

	// If already backpressured, stall the caller until the write pump
	// drains below the threshold, per spec §4.5's send() contract.
	for st.getFlags().Contains(WrBackpressure) {
		if st.getFlags().Contains(IoStopped) {
			return ErrClosed
		}
		if !parkUntil(st.dispatchTask, ctx, st.rootContext()) {
			return ctx.Err()
		}
	}

	buf := st.takeWriteBuf()
	if buf == nil {
		buf = st.memoryPool().GetWriteBuf()
	}
	if err := fr.encoder.Encode(item, &buf); err != nil {
		st.setWriteBuf(buf)
		return err
	}

	hw := st.memoryPool().WriteParamsHigh()
	if len(buf) > 2*hw {
		st.insertFlags(WrBackpressure)
		st.dispatchTask.wake()
	}
	st.setWriteBuf(buf)
	st.writeTask.wake()
	return nil
}
