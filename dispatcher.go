// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package ioflow

import (
	"context"
	"time"
)

// DispatchItemKind tags the DispatchItem union (spec §3, §4.7).
type DispatchItemKind int

const (
	DispatchItemFrame DispatchItemKind = iota
	DispatchItemKeepAlive
	DispatchItemWBackpressureEnabled
	DispatchItemWBackpressureDisabled
	DispatchItemDecoderError
	DispatchItemEncoderError
	DispatchItemDisconnect
)

// DispatchItem is the full control-event union the Dispatcher delivers to
// Service on every iteration of the dispatch loop, a Go enum expressed as a
// tagged struct in place of ntex-io's Rust enum of the same shape (spec §3).
// Frame carries the decoded request when Kind == DispatchItemFrame; Err
// carries the triggering error for DecoderError, EncoderError, and a
// Disconnect caused by a transport failure (nil for a graceful peer EOF or
// an explicit Stop).
type DispatchItem[Req any] struct {
	Kind  DispatchItemKind
	Frame Req
	Err   error
}

// Service is the request/response contract the Dispatcher drives (spec
// §4.7): every DispatchItem — a decoded frame or a control event — passes
// through Call, so the service reacts to KeepAliveTimeout, a decode/encode
// failure, or a backpressure transition instead of only ever seeing frames.
// send reports whether resp should be encoded and written; a service with
// nothing to say about a control event simply returns send=false.
type Service[Req, Resp any] interface {
	Call(ctx context.Context, item DispatchItem[Req]) (resp Resp, send bool, err error)
}

// ServiceFunc adapts a plain function to Service.
type ServiceFunc[Req, Resp any] func(ctx context.Context, item DispatchItem[Req]) (Resp, bool, error)

func (f ServiceFunc[Req, Resp]) Call(ctx context.Context, item DispatchItem[Req]) (Resp, bool, error) {
	return f(ctx, item)
}

// rawDispatchItem is the pre-decode shape of the union next() produces from
// a RecvError: Frame is the codec's any-typed decode result, not yet bridged
// into the Service's Req type by toServiceItem.
type rawDispatchItem struct {
	Kind  DispatchItemKind
	Frame any
	Err   error
}

// dispatcherState is the Dispatcher's own state machine (spec §4.7), distinct
// from the connection-wide Flags word: it tracks what the dispatch loop
// itself is doing, not what the I/O pumps are doing.
type dispatcherState int

const (
	dispProcessing dispatcherState = iota
	dispBackpressure
	dispStop
	dispShutdown
)

// Dispatcher drives one connection's request/response loop: decode a frame,
// call the Service, encode and send the response, repeating until a
// terminal DispatchItem arrives (spec §4.7). Keep-alive, backpressure, and
// decode/encode failures are surfaced as DispatchItems rather than
// exceptions, so the Service sees one uniform union instead of special-cased
// error returns.
type Dispatcher[Req, Resp any] struct {
	io      *Io
	framed  *Framed
	svc     Service[Req, Resp]
	decode  func(any) (Req, error)
	encode  func(Resp) any
	state   dispatcherState
	keepAt  time.Duration
	kaTimer *timerEntry
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption[Req, Resp any] func(*Dispatcher[Req, Resp])

// WithDispatcherKeepAlive arms the wheel-backed idle timer spec §4.8
// describes: if no frame is decoded within d, the dispatch loop receives a
// DispatchItemKeepAlive item.
func WithDispatcherKeepAlive[Req, Resp any](d time.Duration) DispatcherOption[Req, Resp] {
	return func(disp *Dispatcher[Req, Resp]) { disp.keepAt = d }
}

// NewDispatcher pairs io (through a Framed over codec) with svc, plus the
// decode/encode functions bridging the codec's any-typed Decode/Encode to
// the Service's generic Req/Resp.
func NewDispatcher[Req, Resp any](
	io *Io,
	codec any,
	svc Service[Req, Resp],
	decode func(any) (Req, error),
	encode func(Resp) any,
	opts ...DispatcherOption[Req, Resp],
) *Dispatcher[Req, Resp] {
	disp := &Dispatcher[Req, Resp]{
		io:     io,
		framed: NewFramed(io, codec),
		svc:    svc,
		decode: decode,
		encode: encode,
		state:  dispProcessing,
	}
	for _, fn := range opts {
		fn(disp)
	}
	return disp
}

// Run drives the dispatch loop until the connection stops or ctx is done
// (spec §4.7). Tie-break order when more than one condition is ready at once
// is enforced by Framed.recv's own priority checks: a decoded frame always
// wins over KeepAlive, and Disconnect always supersedes KeepAlive.
//
// Every terminal DispatchItem (KeepAlive, DecoderError, EncoderError,
// Disconnect) is delivered to Service exactly once — finalizing the
// outstanding service call — before the loop moves d.state from Stop to
// Shutdown and drives the connection through io.Shutdown (IO_SHUTDOWN ->
// IO_STOPPED), matching the error table's "connection is then shut down"
// rows.
func (d *Dispatcher[Req, Resp]) Run(ctx context.Context) error {
	var queued *rawDispatchItem
	var finalErr error

	for {
		var raw rawDispatchItem
		if queued != nil {
			raw, queued = *queued, nil
		} else {
			raw = d.next(ctx)
		}
		item := d.toServiceItem(raw)

		resp, send, callErr := d.svc.Call(ctx, item)
		if callErr != nil {
			d.state = dispStop
			if finalErr == nil {
				finalErr = callErr
			}
		}
		if send {
			if err := d.framed.Send(ctx, d.encode(resp)); err != nil {
				// The service already answered the item it was given; it
				// has not yet been told that answer failed to go out, so
				// queue EncoderError as its own item instead of folding it
				// silently into this iteration's outcome.
				queued = &rawDispatchItem{Kind: DispatchItemEncoderError, Err: err}
			}
		}

		switch item.Kind {
		case DispatchItemKeepAlive, DispatchItemDecoderError, DispatchItemEncoderError, DispatchItemDisconnect:
			d.state = dispStop
			if finalErr == nil {
				finalErr = item.Err
			}
		case DispatchItemWBackpressureEnabled:
			if d.state == dispProcessing {
				d.state = dispBackpressure
			}
		case DispatchItemWBackpressureDisabled:
			if d.state == dispBackpressure {
				d.state = dispProcessing
			}
		}

		if d.state == dispStop && queued == nil {
			d.state = dispShutdown
			if err := d.io.Shutdown(ctx); err != nil && finalErr == nil {
				finalErr = err
			}
			return finalErr
		}
	}
}

// toServiceItem bridges a rawDispatchItem's any-typed Frame into Req via
// decode; a decode failure here is itself a DecoderError, the same as one
// surfaced from the codec inside Framed.recv.
func (d *Dispatcher[Req, Resp]) toServiceItem(raw rawDispatchItem) DispatchItem[Req] {
	if raw.Kind != DispatchItemFrame {
		return DispatchItem[Req]{Kind: raw.Kind, Err: raw.Err}
	}
	req, err := d.decode(raw.Frame)
	if err != nil {
		return DispatchItem[Req]{Kind: DispatchItemDecoderError, Err: err}
	}
	return DispatchItem[Req]{Kind: DispatchItemFrame, Frame: req}
}

// next blocks for the next rawDispatchItem, resetting the keep-alive timer
// on every decoded frame (spec §4.8: keep-alive is an idle timeout, not a
// fixed-interval one).
func (d *Dispatcher[Req, Resp]) next(ctx context.Context) rawDispatchItem {
	d.armKeepAlive()

	frame, recvErr := d.framed.Next(ctx)
	if recvErr == nil {
		return rawDispatchItem{Kind: DispatchItemFrame, Frame: frame}
	}

	switch recvErr.Kind {
	case RecvKeepAlive:
		return rawDispatchItem{Kind: DispatchItemKeepAlive}
	case RecvWriteBackpressure:
		return rawDispatchItem{Kind: DispatchItemWBackpressureEnabled}
	case RecvStop:
		return rawDispatchItem{Kind: DispatchItemDisconnect}
	case RecvDecoderErr:
		return rawDispatchItem{Kind: DispatchItemDecoderError, Err: recvErr.Err}
	case RecvPeerGone:
		return rawDispatchItem{Kind: DispatchItemDisconnect, Err: recvErr.Err}
	default:
		return rawDispatchItem{Kind: DispatchItemDisconnect, Err: recvErr}
	}
}

func (d *Dispatcher[Req, Resp]) armKeepAlive() {
	if d.keepAt <= 0 {
		return
	}
	if d.kaTimer != nil {
		d.kaTimer.Cancel()
	}
	d.kaTimer = defaultTimerWheel.Register(d.keepAt, func() {
		d.io.st.insertFlags(DspKeepalive)
		d.io.st.dispatchTask.wake()
	})
}
