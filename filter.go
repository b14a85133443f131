// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package ioflow

import (
	"context"
	"time"
)

// ReadStatus is the Go analogue of ntex-io's Poll<ReadStatus>: because Go
// goroutines already park on blocking calls instead of returning control to
// an executor, PollReadReady blocks until one of these is decided rather
// than returning Pending for a caller to re-poll.
type ReadStatus int

const (
	// ReadReady means the read pump may attempt a transport read.
	ReadReady ReadStatus = iota
	// ReadTerminate means the read pump must exit without reading again.
	ReadTerminate
)

// WriteStatus mirrors ntex-io's WriteStatus enum.
type WriteStatus int

const (
	// WriteReady means the write pump should flush the pending write buffer.
	WriteReady WriteStatus = iota
	// WriteTimeout carries a disconnect delay in Delay. runWriteTask arms no
	// deadline for it; it simply polls the filter chain again.
	WriteTimeout
	// WriteShutdown means the write pump should transition to its Shutdown
	// sub-state with the given grace delay.
	WriteShutdown
	// WriteTerminate means the write pump must close the transport immediately.
	WriteTerminate
)

// WriteReadiness bundles a WriteStatus with the delay that accompanies
// WriteTimeout/WriteShutdown.
type WriteReadiness struct {
	Status WriteStatus
	Delay  time.Duration
}

// Filter is the contract every layer in the connection's byte-processing
// chain satisfies (spec §4.2). Implementations normally wrap an inner
// Filter and delegate operations they do not transform.
type Filter interface {
	// Query extracts metadata (peer address, negotiated ALPN, ...) by
	// walking upward; a filter that does not recognize key delegates to its
	// inner filter.
	Query(key any) (value any, ok bool)

	// WantRead is an upward hint that propagates to the Base filter: "I need
	// more raw bytes to make progress."
	WantRead()

	// WantShutdown requests a graceful close, optionally carrying the
	// triggering error; propagates to Base.
	WantShutdown(err error)

	// PollShutdown blocks until the filter's own shutdown sequence (e.g. TLS
	// close-notify) has drained, or ctx is done.
	PollShutdown(ctx context.Context) error

	// PollReadReady blocks until the read pump should attempt a read or stop.
	PollReadReady(ctx context.Context) (ReadStatus, error)

	// PollWriteReady blocks until the write pump has a decision to act on.
	PollWriteReady(ctx context.Context) (WriteReadiness, error)

	// GetReadBuf takes ownership of the filter's staged read buffer, if any.
	GetReadBuf() []byte

	// GetWriteBuf takes ownership of the filter's staged write buffer, if any.
	GetWriteBuf() []byte

	// ReleaseReadBuf consumes nbytes of raw data from src and appends decoded
	// bytes into *dst (allocating it from the pool if nil), returning the
	// count of newly decoded bytes. An error means the connection must shut
	// down.
	ReleaseReadBuf(src []byte, dst *[]byte, nbytes int) (int, error)

	// ReleaseWriteBuf encodes buf and forwards it downward.
	ReleaseWriteBuf(buf []byte) error

	// Closed propagates terminal closure downward.
	Closed(err error)
}

// Base is the terminal, transport-facing filter (spec §4.2). It owns no
// buffers of its own: GetReadBuf/GetWriteBuf simply take SharedState's
// buffers. ReleaseReadBuf passes the raw bytes through unchanged, and
// ReleaseWriteBuf stores buf as SharedState's write buffer and wakes the
// write pump. The RD_READY/RD_BUF_FULL flags and the dispatcher wake are
// handled by ReadContext.releaseReadBuf, for whichever filter is the chain
// head.
type Base struct {
	st     *sharedState
	handle Handle
}

func newBase(st *sharedState, handle Handle) *Base {
	return &Base{st: st, handle: handle}
}

func (b *Base) Query(key any) (any, bool) {
	if b.handle == nil {
		return nil, false
	}
	return b.handle.Query(key)
}

func (b *Base) WantRead() {
	// Terminal: the read pump already loops continuously; nothing to hint.
}

func (b *Base) WantShutdown(err error) {
	alreadyShuttingDown := b.st.getFlags().Contains(IoShutdown)
	if err != nil {
		b.st.recordError(err)
		b.st.insertFlags(IoErr)
	}
	if alreadyShuttingDown {
		// Second want_shutdown while already closing: escalate to Terminate
		// rather than attempting another graceful round (spec §7 Filter
		// failure row: "if already closing, escalate to Terminate").
		b.st.stop(err)
		return
	}
	b.st.insertFlags(IoShutdown)
	b.st.wakeAll()
}

func (b *Base) PollShutdown(ctx context.Context) error {
	// Base has no extra draining of its own; half-close/linger is driven by
	// WriteTask directly against the transport.
	return nil
}

func (b *Base) PollReadReady(ctx context.Context) (ReadStatus, error) {
	for {
		flags := b.st.getFlags()
		if flags.Contains(IoStopped) {
			return ReadTerminate, nil
		}
		if flags.Contains(RdBufFull) {
			if !parkUntil(b.st.readTask, ctx, b.st.rootContext()) {
				return ReadTerminate, ctx.Err()
			}
			continue
		}
		return ReadReady, nil
	}
}

func (b *Base) PollWriteReady(ctx context.Context) (WriteReadiness, error) {
	for {
		flags := b.st.getFlags()
		if flags.Contains(IoStopped) {
			return WriteReadiness{Status: WriteTerminate}, nil
		}
		if flags.Contains(IoShutdown) {
			return WriteReadiness{Status: WriteShutdown, Delay: b.st.disconnectTimeout}, nil
		}
		s := b.st
		s.mu.Lock()
		hasWork := len(s.writeBuf) > 0
		s.mu.Unlock()
		if hasWork {
			return WriteReadiness{Status: WriteReady}, nil
		}
		if !parkUntil(b.st.writeTask, ctx, b.st.rootContext()) {
			return WriteReadiness{Status: WriteTerminate}, ctx.Err()
		}
	}
}

// parkUntil blocks on w until woken, until ctx is done, or until root
// (SharedState's own lifetime context, cancelled by stop()) is done.
func parkUntil(w waker, ctx context.Context, root context.Context) bool {
	select {
	case <-w.c:
		return true
	case <-ctx.Done():
		return false
	case <-root.Done():
		return false
	}
}

func (b *Base) GetReadBuf() []byte { return b.st.takeReadBuf() }

func (b *Base) GetWriteBuf() []byte { return b.st.takeWriteBuf() }

func (b *Base) ReleaseReadBuf(src []byte, dst *[]byte, nbytes int) (int, error) {
	// Base is pass-through: the raw bytes just read from the transport are
	// themselves the "decoded" bytes when Base is the chain head.
	if *dst == nil {
		*dst = src
	} else if nbytes > 0 {
		*dst = append(*dst, src[:nbytes]...)
	}
	return nbytes, nil
}

func (b *Base) ReleaseWriteBuf(buf []byte) error {
	b.st.setWriteBuf(buf)
	b.st.writeTask.wake()
	return nil
}

func (b *Base) Closed(err error) {
	b.st.stop(err)
}

var _ Filter = (*Base)(nil)

// FilterFactory wraps an Io's current filter chain head with a new layer
// (spec §4.5/§6). Factories that need a handshake (TLS) block inside
// Create instead of returning a future, since Go goroutines already park.
type FilterFactory interface {
	Create(io *Io) (Filter, error)
}

// FilterFactoryFunc adapts a plain function to FilterFactory.
type FilterFactoryFunc func(io *Io) (Filter, error)

func (f FilterFactoryFunc) Create(io *Io) (Filter, error) { return f(io) }

