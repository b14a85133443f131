//go:build !linux && !darwin && !freebsd

// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package ioflow

import "net"

// tuneConnPlatform is a no-op on platforms without the raw-socket tuning
// path; net.TCPConn's portable setters in tuneConn already covered what's
// portably available.
func tuneConnPlatform(*net.TCPConn, netOptions) {}
