// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package ioflow

// queryKey is a private type so external packages cannot accidentally collide
// with these well-known Query keys, mirroring ntex-io's types.rs marker
// structs (PeerAddr, HttpProtocol) used the same way as typed dictionary keys.
type queryKey int

const (
	// QueryPeerAddr retrieves the transport's remote address, when the
	// underlying Handle exposes one (spec §4.5/§6; see NetIoStream).
	QueryPeerAddr queryKey = iota
	// QueryHttpProtocol retrieves the negotiated protocol (e.g. after an
	// ALPN handshake performed by a FilterFactory such as TLSFilter).
	QueryHttpProtocol
)

// HttpProtocol is the value TLSFilter publishes under QueryHttpProtocol once
// its handshake completes, mirroring ntex-io's Http1/Http2 distinction.
type HttpProtocol int

const (
	HttpProtocolUnknown HttpProtocol = iota
	HttpProtocol1
	HttpProtocol2
)

func (p HttpProtocol) String() string {
	switch p {
	case HttpProtocol1:
		return "http/1.1"
	case HttpProtocol2:
		return "h2"
	default:
		return "unknown"
	}
}
