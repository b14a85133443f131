// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package ioflow

import (
	"crypto/tls"
	"time"
)

// WithDecompression wraps cfg's resulting Io with a SnappyFilter, the
// functional-option equivalent of calling io.AddFilter(NewSnappyFilter())
// right after NewIo, for callers assembling a filter chain declaratively.
func WithDecompression() FilterFactory { return NewSnappyFilter() }

// WithLengthFraming wraps the resulting Io with a LengthFramingFilter
// bounding accepted frames to maxFrameLen bytes (0 = unbounded).
func WithLengthFraming(maxFrameLen int) FilterFactory {
	return NewLengthFramingFilter(maxFrameLen)
}

// WithTLSClient wraps the resulting Io with a client-side TLS handshake.
func WithTLSClient(cfg *tls.Config) FilterFactory { return NewTLSFilter(cfg, true) }

// WithTLSServer wraps the resulting Io with a server-side TLS handshake.
func WithTLSServer(cfg *tls.Config) FilterFactory { return NewTLSFilter(cfg, false) }

// WithKeepAlive is an alias of WithIoKeepalive. Like it, it does not
// configure the Dispatcher's keep-alive timer (see WithDispatcherKeepAlive).
func WithKeepAlive(d time.Duration) IoOption { return WithIoKeepalive(d) }
