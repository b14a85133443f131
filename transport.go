// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package ioflow

import (
	"context"
	"io"
	"net"

	"github.com/pkg/errors"
)

// Handle is runtime-specific metadata exposed by a started IoStream (spec §6).
type Handle interface {
	Query(key any) (value any, ok bool)
}

// IoStream is the transport contract external runtime adapters satisfy
// (spec §6). Start spawns whatever goroutines are needed to service the
// contexts and returns a Handle for metadata queries.
type IoStream interface {
	Start(rc *ReadContext, wc *WriteContext) (Handle, error)
}

// halfCloser is satisfied by *net.TCPConn and *net.UnixConn.
type halfCloser interface {
	CloseWrite() error
}

// NetIoStream adapts a net.Conn (TCP or Unix stream socket) to the IoStream
// contract, driving ReadTask/WriteTask directly against it.
type NetIoStream struct {
	conn net.Conn
}

// NewNetIoStream wraps conn, applying best-effort socket tuning (see
// netopts.go) for recognized conn kinds.
func NewNetIoStream(conn net.Conn, opts ...NetOption) *NetIoStream {
	n := &NetIoStream{conn: conn}
	cfg := defaultNetOptions
	for _, fn := range opts {
		fn(&cfg)
	}
	tuneConn(conn, cfg)
	return n
}

func (n *NetIoStream) Start(rc *ReadContext, wc *WriteContext) (Handle, error) {
	if n.conn == nil {
		return nil, ErrInvalidArgument
	}
	go runReadTask(rc, n.conn)
	go runWriteTask(wc, n.conn)
	return &netHandle{conn: n.conn}, nil
}

type netHandle struct{ conn net.Conn }

func (h *netHandle) Query(key any) (any, bool) {
	if key == QueryPeerAddr {
		if addr := h.conn.RemoteAddr(); addr != nil {
			return addr, true
		}
	}
	return nil, false
}

// halfClose performs the transport half of WriteTask's Shutdown state (spec
// §4.4): shut down the write side if the conn supports it, else close fully.
func halfClose(conn net.Conn) error {
	if hc, ok := conn.(halfCloser); ok {
		return hc.CloseWrite()
	}
	return conn.Close()
}

// drainUntilEOF discards up to max bytes while waiting for the peer to
// close its side, bounded by ctx (spec §4.4 Shutdown sub-state).
func drainUntilEOF(ctx context.Context, conn net.Conn, max int) error {
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetReadDeadline(deadline)
	}
	buf := make([]byte, 4096)
	discarded := 0
	for discarded < max {
		n, err := conn.Read(buf)
		discarded += n
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
	}
	return errors.New("ioflow: peer did not EOF within disconnect drain budget")
}
