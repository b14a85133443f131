// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package ioflow

import (
	"net"
	"testing"
	"time"
)

// TestTLSBridgeConnReadDrainsPushedDataPastDeadline pins down the bug a
// prior review caught: Read must consume ciphertext already sitting in
// pushed before it even looks at the deadline, since ReleaseReadBuf's
// SetReadDeadline(time.Now()) pattern always hands Read an already-past
// deadline right after pushing fresh bytes.
func TestTLSBridgeConnReadDrainsPushedDataPastDeadline(t *testing.T) {
	c := newTLSBridgeConn(noopFilter{})
	c.pushRead([]byte("hello"))
	if err := c.SetReadDeadline(time.Now()); err != nil {
		t.Fatalf("SetReadDeadline: %v", err)
	}

	buf := make([]byte, 16)
	n, err := c.Read(buf)
	if err != nil {
		t.Fatalf("expected already-pushed data to be drained despite a past deadline, got err=%v", err)
	}
	if string(buf[:n]) != "hello" {
		t.Fatalf("got %q, want %q", buf[:n], "hello")
	}
}

func TestTLSBridgeConnReadTimesOutWhenNothingPushed(t *testing.T) {
	c := newTLSBridgeConn(noopFilter{})
	if err := c.SetReadDeadline(time.Now()); err != nil {
		t.Fatalf("SetReadDeadline: %v", err)
	}

	_, err := c.Read(make([]byte, 16))
	ne, ok := err.(net.Error)
	if !ok || !ne.Timeout() {
		t.Fatalf("expected a timeout net.Error, got %v", err)
	}
}

// TestTLSBridgeConnReadMultipleChunksPastDeadline exercises the exact loop
// ReleaseReadBuf runs: push once, then Read repeatedly with the deadline
// already past, expecting every already-buffered byte back before the
// eventual timeout.
func TestTLSBridgeConnReadMultipleChunksPastDeadline(t *testing.T) {
	c := newTLSBridgeConn(noopFilter{})
	c.pushRead([]byte("ab"))
	c.pushRead([]byte("cd"))
	if err := c.SetReadDeadline(time.Now()); err != nil {
		t.Fatalf("SetReadDeadline: %v", err)
	}

	var got []byte
	for {
		buf := make([]byte, 1)
		n, err := c.Read(buf)
		if err != nil {
			ne, ok := err.(net.Error)
			if !ok || !ne.Timeout() {
				t.Fatalf("unexpected error: %v", err)
			}
			break
		}
		got = append(got, buf[:n]...)
	}
	if string(got) != "abcd" {
		t.Fatalf("got %q, want %q", got, "abcd")
	}
}

func TestTLSBridgeConnReadBlocksUntilPushed(t *testing.T) {
	c := newTLSBridgeConn(noopFilter{})
	pushed := make(chan struct{})
	go func() {
		time.Sleep(10 * time.Millisecond)
		c.pushRead([]byte("later"))
		close(pushed)
	}()

	buf := make([]byte, 16)
	n, err := c.Read(buf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(buf[:n]) != "later" {
		t.Fatalf("got %q, want %q", buf[:n], "later")
	}
	<-pushed
}

func TestTLSBridgeConnReadReturnsClosedAfterClose(t *testing.T) {
	c := newTLSBridgeConn(noopFilter{})
	_ = c.Close()

	_, err := c.Read(make([]byte, 16))
	if err != net.ErrClosed {
		t.Fatalf("expected net.ErrClosed, got %v", err)
	}
}
