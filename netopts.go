// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package ioflow

import (
	"net"
)

// Best-effort socket tuning for NetIoStream, grounded on the teacher's
// transport-classification pattern (single source of truth mapping a
// transport kind to its tuning), now acting on the real socket via
// golang.org/x/sys/unix instead of just choosing a Protocol/byte order.

// netOptions collects the knobs WithTCPNoDelay/WithSocketBuffers set.
type netOptions struct {
	tcpNoDelay    bool
	setNoDelay    bool
	recvBuf       int
	sendBuf       int
	setRecvBuf    bool
	setSendBuf    bool
}

var defaultNetOptions = netOptions{
	tcpNoDelay: true,
	setNoDelay: true,
}

// NetOption configures a NetIoStream's socket tuning.
type NetOption func(*netOptions)

// WithTCPNoDelay toggles TCP_NODELAY (Nagle's algorithm) on TCP conns.
// Enabled by default, matching low-latency framed-message workloads.
func WithTCPNoDelay(enabled bool) NetOption {
	return func(o *netOptions) { o.tcpNoDelay = enabled; o.setNoDelay = true }
}

// WithSocketBuffers requests OS-level receive/send buffer sizes. Zero values
// leave the OS default untouched.
func WithSocketBuffers(recv, send int) NetOption {
	return func(o *netOptions) {
		if recv > 0 {
			o.recvBuf = recv
			o.setRecvBuf = true
		}
		if send > 0 {
			o.sendBuf = send
			o.setSendBuf = true
		}
	}
}

// tuneConn applies cfg to conn where the concrete type and platform support
// it; unsupported combinations are silently skipped, since socket tuning is
// an optimization, not a correctness requirement.
func tuneConn(conn net.Conn, cfg netOptions) {
	tc, ok := conn.(*net.TCPConn)
	if !ok {
		return
	}
	if cfg.setNoDelay {
		_ = tc.SetNoDelay(cfg.tcpNoDelay)
	}
	if cfg.setRecvBuf {
		_ = tc.SetReadBuffer(cfg.recvBuf)
	}
	if cfg.setSendBuf {
		_ = tc.SetWriteBuffer(cfg.sendBuf)
	}
	tuneConnPlatform(tc, cfg)
}
