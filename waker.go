// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package ioflow

// waker is a single-slot wake cell, the Go stand-in for the futures-style
// "waker" of spec §3/§9: a capacity-1 channel that coalesces repeated wakes
// between suspension points. A parked goroutine blocks receiving on c; a
// waking goroutine sends a non-blocking signal, so multiple wake() calls
// between two receives collapse into one wake — tolerated as a "spurious"
// extra wake per spec §5's dispatcher re-check requirement.
type waker struct {
	c chan struct{}
}

func newWaker() waker {
	return waker{c: make(chan struct{}, 1)}
}

// wake signals the parked goroutine, if any. Never blocks.
func (w waker) wake() {
	select {
	case w.c <- struct{}{}:
	default:
	}
}

// park blocks until woken or done is closed, returning false in the latter case.
func (w waker) park(done <-chan struct{}) bool {
	select {
	case <-w.c:
		return true
	case <-done:
		return false
	}
}

// drain clears a pending wake without blocking. Nothing in this package
// calls it (or park); the pumps and Framed park through parkUntil.
func (w waker) drain() {
	select {
	case <-w.c:
	default:
	}
}
