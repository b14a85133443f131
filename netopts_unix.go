//go:build linux || darwin || freebsd

// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package ioflow

import (
	"net"

	"golang.org/x/sys/unix"
)

// tuneConnPlatform applies any tuning knobs that need a raw syscall, using
// golang.org/x/sys/unix via (*net.TCPConn).SyscallConn, per the domain stack
// wiring recorded in DESIGN.md.
func tuneConnPlatform(tc *net.TCPConn, cfg netOptions) {
	if !cfg.setRecvBuf && !cfg.setSendBuf {
		return
	}
	raw, err := tc.SyscallConn()
	if err != nil {
		return
	}
	_ = raw.Control(func(fd uintptr) {
		if cfg.setRecvBuf {
			_ = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_RCVBUF, cfg.recvBuf)
		}
		if cfg.setSendBuf {
			_ = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_SNDBUF, cfg.sendBuf)
		}
	})
}
