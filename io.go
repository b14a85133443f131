// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package ioflow

import (
	"context"
	"time"
)

// IoOption configures a new Io.
type IoOption func(*sharedState)

// WithIoKeepalive records a keep-alive deadline d from now in SharedState.
// Nothing in this package reads that deadline: the Dispatcher's keep-alive
// timer is configured only by WithDispatcherKeepAlive.
func WithIoKeepalive(d time.Duration) IoOption {
	return func(s *sharedState) { s.keepalive = time.Now().Add(d) }
}

// WithDisconnectTimeout sets the bound on the graceful shutdown drain (spec §4.4).
func WithDisconnectTimeout(d time.Duration) IoOption {
	return func(s *sharedState) { s.disconnectTimeout = d }
}

// Io is the owning connection handle (spec §4.5, §9). Exactly one Io exists
// per connection; IoRef handles borrow its SharedState without owning it.
type Io struct {
	st *sharedState
}

// NewIo creates a connection from an IoStream + transport: it builds
// SharedState with a Base filter and spawns the read/write pumps via
// stream.Start (spec §3 Lifecycle).
func NewIo(stream IoStream, pool *MemoryPool, opts ...IoOption) (*Io, error) {
	if stream == nil {
		return nil, ErrInvalidArgument
	}
	if pool == nil {
		pool = NewMemoryPool()
	}
	st := newSharedState(pool, 3*time.Second)
	for _, fn := range opts {
		fn(st)
	}

	base := newBase(st, nil)
	st.setFilter(base)

	rc := &ReadContext{st: st}
	wc := &WriteContext{st: st}

	handle, err := stream.Start(rc, wc)
	if err != nil {
		return nil, err
	}
	base.handle = handle

	return &Io{st: st}, nil
}

// Ref returns a non-owning handle to the same SharedState.
func (io *Io) Ref() IoRef {
	io.st.addRef()
	return IoRef{st: io.st}
}

// Query performs a type-indexed metadata lookup through the filter chain
// (spec §4.5, §6).
func (io *Io) Query(key any) (any, bool) {
	return io.st.currentFilter().Query(key)
}

// AddFilter wraps the current chain head with a new layer. Factories that
// need a handshake (e.g. TLS) simply block inside Create (spec §4.5/§6).
func (io *Io) AddFilter(factory FilterFactory) error {
	if io.st.isSealed() {
		return ErrFilterSealed
	}
	f, err := factory.Create(io)
	if err != nil {
		return err
	}
	io.st.setFilter(f)
	return nil
}

// Seal erases the filter's concrete type for dynamic use and forbids any
// further AddFilter calls (spec §4.5/§9). In Go, Filter is already an
// interface value, so beyond that one-way latch, Seal is a documentation-only
// wrapper: it returns an IoBoxed that exposes the same dynamic-dispatch
// surface without pretending to change representation, mirroring the design
// note that Go interfaces already perform the erasure ntex-io's seal()
// exists to bolt onto monomorphized generics.
func (io *Io) Seal() IoBoxed {
	io.st.seal()
	return IoBoxed{io: io}
}

// IoBoxed is the type-erased form returned by Seal.
type IoBoxed struct{ io *Io }

func (b IoBoxed) Query(key any) (any, bool) { return b.io.Query(key) }
func (b IoBoxed) Recv(codec Decoder) (any, *RecvError) { return b.io.Recv(codec) }
func (b IoBoxed) Send(item any, codec Encoder) error { return b.io.Send(item, codec) }
func (b IoBoxed) Shutdown(ctx context.Context) error { return b.io.Shutdown(ctx) }

// PollReadReady blocks until frames may be read; it returns (true, nil) when
// ready, (false, nil) on peer-gone (spec §4.5).
func (io *Io) PollReadReady(ctx context.Context) (bool, error) {
	for {
		flags := io.st.getFlags()
		if flags.Contains(IoStopped) {
			return false, nil
		}
		if flags.Contains(RdReady) {
			return true, nil
		}
		if !parkUntil(io.st.dispatchTask, ctx, io.st.rootContext()) {
			return false, ctx.Err()
		}
	}
}

// StatusUpdate is the result of PollStatusUpdate: a keep-alive or
// backpressure transition the Dispatcher must react to (spec §4.5).
type StatusUpdate int

const (
	StatusNone StatusUpdate = iota
	StatusKeepAliveTimeout
	StatusBackpressureEnabled
	StatusBackpressureDisabled
)

// PollStatusUpdate blocks until a keepalive/backpressure transition occurs
// or ctx is done.
func (io *Io) PollStatusUpdate(ctx context.Context) (StatusUpdate, error) {
	for {
		flags := io.st.getFlags()
		if flags.Contains(DspKeepalive) {
			io.st.removeFlags(DspKeepalive)
			return StatusKeepAliveTimeout, nil
		}
		if flags.Contains(WrBackpressure) && !io.st.getFlags().Contains(WrWait) {
			io.st.insertFlags(WrWait)
			return StatusBackpressureEnabled, nil
		}
		if io.st.getFlags().Contains(WrWait) && !flags.Contains(WrBackpressure) {
			io.st.removeFlags(WrWait)
			return StatusBackpressureDisabled, nil
		}
		if flags.Contains(IoStopped) {
			return StatusNone, nil
		}
		if !parkUntil(io.st.dispatchTask, ctx, io.st.rootContext()) {
			return StatusNone, ctx.Err()
		}
	}
}

// Shutdown begins a graceful close: IO_SHUTDOWN -> IO_STOPPED, and blocks
// until the write pump has finished draining or ctx is done (spec §4.5).
func (io *Io) Shutdown(ctx context.Context) error {
	io.st.currentFilter().WantShutdown(nil)
	for {
		if io.st.getFlags().Contains(IoStopped) {
			return nil
		}
		if !parkUntil(io.st.dispatchTask, ctx, io.st.rootContext()) {
			return ctx.Err()
		}
	}
}

// Recv decodes one frame, or returns the terminal/control-flow RecvError
// that blocked it (spec §4.5, §7). It blocks until a decision is possible.
func (io *Io) Recv(codec Decoder) (any, *RecvError) {
	fr := Framed{io: io, decoder: codec}
	return fr.recv(context.Background())
}

// Send encodes item and appends it to the write buffer, applying the
// backpressure threshold of spec §3 invariant 2 / §4.5.
func (io *Io) Send(item any, codec Encoder) error {
	fr := Framed{io: io, encoder: codec}
	return fr.send(context.Background(), item)
}

// IoRef is a non-owning handle over SharedState (spec §4.5, §9). After
// IO_STOPPED, Query reports no value (nil, false); Flags still returns the
// current flag word.
type IoRef struct{ st *sharedState }

func (r IoRef) Query(key any) (any, bool) {
	if r.st.stopped() {
		return nil, false
	}
	return r.st.currentFilter().Query(key)
}

func (r IoRef) Flags() Flags { return r.st.getFlags() }

// Close releases this ref. SharedState is reclaimed by the garbage
// collector once unreferenced; this only decrements the ref count, which
// nothing else in the package reads.
func (r IoRef) Close() { r.st.dropRef() }
