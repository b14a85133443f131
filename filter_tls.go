// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package ioflow

import (
	"context"
	"crypto/tls"
	"net"
	"time"

	"github.com/pkg/errors"
)

// tlsBridgeConn adapts SharedState's pull-based buffers to the net.Conn
// crypto/tls.Conn requires, the same role ntex-tls's IoInner/Wrapper plays
// in bridging an async Io to a synchronous handshake-driving TLS library
// (original_source/ntex-tls/src/rustls/client.rs). Read blocks for
// ciphertext pushed by pushRead, but honors SetReadDeadline so a caller can
// turn a would-otherwise-block Read into an immediate timeout once it has
// fed the bridge everything it currently has; Write forwards ciphertext to
// inner, the filter that was current when the TLSFilter was created
// (ordinarily Base).
type tlsBridgeConn struct {
	inner    Filter
	buf      []byte
	pushed   chan []byte
	done     chan struct{}
	deadline time.Time
}

func newTLSBridgeConn(inner Filter) *tlsBridgeConn {
	return &tlsBridgeConn{inner: inner, pushed: make(chan []byte, 16), done: make(chan struct{})}
}

func (c *tlsBridgeConn) pushRead(b []byte) {
	if len(b) == 0 {
		return
	}
	cp := make([]byte, len(b))
	copy(cp, b)
	select {
	case c.pushed <- cp:
	case <-c.done:
	}
}

func (c *tlsBridgeConn) Read(p []byte) (int, error) {
	for len(c.buf) == 0 {
		// Always try a non-blocking drain first: ciphertext pushRead already
		// queued must be consumed before the deadline is even consulted, or
		// a caller that sets an already-past deadline right after pushing
		// (ReleaseReadBuf's SetReadDeadline(time.Now()) pattern) would never
		// observe what it just fed in.
		select {
		case b := <-c.pushed:
			c.buf = b
			continue
		case <-c.done:
			return 0, net.ErrClosed
		default:
		}

		if c.deadline.IsZero() {
			select {
			case b := <-c.pushed:
				c.buf = b
			case <-c.done:
				return 0, net.ErrClosed
			}
			continue
		}

		d := time.Until(c.deadline)
		if d <= 0 {
			return 0, tlsBridgeTimeout{}
		}
		t := time.NewTimer(d)
		select {
		case b := <-c.pushed:
			t.Stop()
			c.buf = b
		case <-c.done:
			t.Stop()
			return 0, net.ErrClosed
		case <-t.C:
			return 0, tlsBridgeTimeout{}
		}
	}
	n := copy(p, c.buf)
	c.buf = c.buf[n:]
	return n, nil
}

func (c *tlsBridgeConn) Write(p []byte) (int, error) {
	if err := c.inner.ReleaseWriteBuf(append([]byte(nil), p...)); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (c *tlsBridgeConn) Close() error {
	select {
	case <-c.done:
	default:
		close(c.done)
	}
	return nil
}
func (c *tlsBridgeConn) LocalAddr() net.Addr  { return tlsBridgeAddr{} }
func (c *tlsBridgeConn) RemoteAddr() net.Addr { return tlsBridgeAddr{} }
func (c *tlsBridgeConn) SetDeadline(t time.Time) error     { c.deadline = t; return nil }
func (c *tlsBridgeConn) SetReadDeadline(t time.Time) error  { c.deadline = t; return nil }
func (c *tlsBridgeConn) SetWriteDeadline(time.Time) error { return nil }

type tlsBridgeAddr struct{}

func (tlsBridgeAddr) Network() string { return "tls-bridge" }
func (tlsBridgeAddr) String() string  { return "tls-bridge" }

// tlsBridgeTimeout satisfies net.Error with Timeout()==true, the signal
// ReleaseReadBuf below uses to know "no more ciphertext right now" rather
// than a real transport failure.
type tlsBridgeTimeout struct{}

func (tlsBridgeTimeout) Error() string   { return "ioflow: tls bridge read would block" }
func (tlsBridgeTimeout) Timeout() bool   { return true }
func (tlsBridgeTimeout) Temporary() bool { return true }

// TLSFilter wraps the current chain head with a TLS session. Because
// crypto/tls.Conn expects a synchronous net.Conn rather than the Filter
// chain's pull-based buffers, ReleaseReadBuf pushes the freshly-arrived
// ciphertext into the bridge and then drains conn.Read with an immediate
// deadline: once the bridge has no more pushed ciphertext to hand back,
// Read times out instead of blocking, so the real ReadTask loop this runs
// inside of never stalls on an incomplete TLS record (spec §4.2/§4.3).
type TLSFilter struct {
	inner  Filter
	st     *sharedState
	bridge *tlsBridgeConn
	conn   *tls.Conn
}

// NewTLSFilter returns a FilterFactory performing a TLS handshake as a
// client or server according to cfg and isClient; Create blocks until the
// handshake completes (spec §4.5/§6's "factories that need a handshake
// block inside Create" contract).
func NewTLSFilter(cfg *tls.Config, isClient bool) FilterFactory {
	return FilterFactoryFunc(func(io *Io) (Filter, error) {
		inner := io.st.currentFilter()
		bridge := newTLSBridgeConn(inner)

		var conn *tls.Conn
		if isClient {
			conn = tls.Client(bridge, cfg)
		} else {
			conn = tls.Server(bridge, cfg)
		}

		pumpCtx, cancelPump := context.WithCancel(io.st.rootContext())
		defer cancelPump()

		// During the handshake window only, steal raw bytes straight out of
		// SharedState's read buffer: nothing else calls recv() until
		// AddFilter returns, so there is no concurrent reader to race with.
		go func() {
			for {
				select {
				case <-pumpCtx.Done():
					return
				case <-bridge.done:
					return
				default:
				}
				buf := io.st.takeReadBuf()
				if len(buf) > 0 {
					io.st.removeFlags(RdReady)
					bridge.pushRead(buf)
					continue
				}
				if !parkUntil(io.st.dispatchTask, pumpCtx, io.st.rootContext()) {
					return
				}
			}
		}()

		if err := conn.HandshakeContext(context.Background()); err != nil {
			bridge.Close()
			return nil, errors.Wrap(err, "ioflow: TLS handshake")
		}

		return &TLSFilter{inner: inner, st: io.st, bridge: bridge, conn: conn}, nil
	})
}

func (f *TLSFilter) Query(key any) (any, bool) {
	if key == QueryHttpProtocol {
		switch f.conn.ConnectionState().NegotiatedProtocol {
		case "h2":
			return HttpProtocol2, true
		case "http/1.1", "":
			return HttpProtocol1, true
		}
	}
	return f.inner.Query(key)
}

func (f *TLSFilter) WantRead()              { f.inner.WantRead() }
func (f *TLSFilter) WantShutdown(err error) { f.inner.WantShutdown(err) }
func (f *TLSFilter) PollShutdown(ctx context.Context) error {
	_ = f.conn.CloseWrite()
	return f.inner.PollShutdown(ctx)
}
func (f *TLSFilter) PollReadReady(ctx context.Context) (ReadStatus, error) {
	return f.inner.PollReadReady(ctx)
}
func (f *TLSFilter) PollWriteReady(ctx context.Context) (WriteReadiness, error) {
	return f.inner.PollWriteReady(ctx)
}
func (f *TLSFilter) GetReadBuf() []byte  { return f.inner.GetReadBuf() }
func (f *TLSFilter) GetWriteBuf() []byte { return f.inner.GetWriteBuf() }
func (f *TLSFilter) Closed(err error) {
	f.bridge.Close()
	f.inner.Closed(err)
}

// ReleaseReadBuf feeds the newly-arrived ciphertext to the bridge, then
// drains however many complete TLS records that ciphertext now completes
// into *dst, stopping the instant conn.Read would otherwise block for more.
func (f *TLSFilter) ReleaseReadBuf(src []byte, dst *[]byte, nbytes int) (int, error) {
	f.bridge.pushRead(src[:nbytes])

	produced := 0
	tmp := make([]byte, 16*1024)
	for {
		_ = f.conn.SetReadDeadline(time.Now())
		n, err := f.conn.Read(tmp)
		if n > 0 {
			*dst = append(*dst, tmp[:n]...)
			produced += n
		}
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				break
			}
			return produced, errors.Wrap(err, "ioflow: TLS record read")
		}
	}
	return produced, nil
}

func (f *TLSFilter) ReleaseWriteBuf(buf []byte) error {
	if len(buf) == 0 {
		return nil
	}
	_, err := f.conn.Write(buf)
	return err
}

var _ Filter = (*TLSFilter)(nil)
