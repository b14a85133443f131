// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package ioflow

import (
	"context"
	"sync"
	"time"
)

// sharedState is the single allocation that anchors one connection (spec §3).
// Exactly one Io owns it; any number of IoRef handles may borrow it for as
// long as the Io lives. All fields are guarded by mu except the waker
// channels themselves, which are safe for concurrent send/receive by design.
type sharedState struct {
	mu sync.Mutex

	flags Flags

	readBuf  []byte
	writeBuf []byte

	readTask     waker
	writeTask    waker
	dispatchTask waker

	filter Filter
	pool   *MemoryPool
	sealed bool

	err error

	keepalive         time.Time
	disconnectTimeout time.Duration

	// ctx/cancel unblock any PollReadReady/PollWriteReady park currently
	// waiting on a waker when IO_STOPPED is set, since a waker alone cannot
	// be selected against from inside a parked goroutine that also needs to
	// notice shutdown.
	ctx    context.Context
	cancel context.CancelFunc

	// refs counts live IoRef + the owning Io; the backing struct is simply
	// garbage collected once unreferenced, so this count is kept up to date
	// by Ref/Close but not consulted anywhere, and plays no part in memory
	// management.
	refs int32
}

func newSharedState(pool *MemoryPool, disconnectTimeout time.Duration) *sharedState {
	ctx, cancel := context.WithCancel(context.Background())
	return &sharedState{
		pool:              pool,
		readTask:          newWaker(),
		writeTask:         newWaker(),
		dispatchTask:      newWaker(),
		disconnectTimeout: disconnectTimeout,
		ctx:               ctx,
		cancel:            cancel,
		refs:              1,
	}
}

// rootContext is the lifetime context for this connection's internal parks;
// it is cancelled exactly once, by stop().
func (s *sharedState) rootContext() context.Context { return s.ctx }

func (s *sharedState) getFlags() Flags {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flags
}

func (s *sharedState) setFlags(f Flags) {
	s.mu.Lock()
	s.flags = f
	s.mu.Unlock()
}

// insertFlags sets mask's bits and returns the resulting flag word.
func (s *sharedState) insertFlags(mask Flags) Flags {
	s.mu.Lock()
	s.flags = s.flags.Insert(mask)
	f := s.flags
	s.mu.Unlock()
	return f
}

// removeFlags clears mask's bits and returns the resulting flag word.
func (s *sharedState) removeFlags(mask Flags) Flags {
	s.mu.Lock()
	s.flags = s.flags.Remove(mask)
	f := s.flags
	s.mu.Unlock()
	return f
}

func (s *sharedState) currentFilter() Filter {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filter
}

func (s *sharedState) setFilter(f Filter) {
	s.mu.Lock()
	s.filter = f
	s.mu.Unlock()
}

// seal marks the chain closed to further AddFilter calls; returns false if
// already sealed.
func (s *sharedState) seal() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sealed {
		return false
	}
	s.sealed = true
	return true
}

func (s *sharedState) isSealed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sealed
}

func (s *sharedState) memoryPool() *MemoryPool {
	return s.pool
}

// recordError records the first fatal error only; spec §7's "at-most-one
// terminal notification" policy starts here.
func (s *sharedState) recordError(err error) {
	s.mu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.mu.Unlock()
}

func (s *sharedState) recordedError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *sharedState) takeReadBuf() []byte {
	s.mu.Lock()
	b := s.readBuf
	s.readBuf = nil
	s.mu.Unlock()
	return b
}

func (s *sharedState) setReadBuf(b []byte) {
	s.mu.Lock()
	s.readBuf = b
	s.mu.Unlock()
}

func (s *sharedState) takeWriteBuf() []byte {
	s.mu.Lock()
	b := s.writeBuf
	s.writeBuf = nil
	s.mu.Unlock()
	return b
}

func (s *sharedState) setWriteBuf(b []byte) {
	s.mu.Lock()
	s.writeBuf = b
	s.mu.Unlock()
}

// wakeAll wakes all three per-actor wakers, used when IO_STOPPED is set
// (spec §3 invariant 3: "all woken at least once since it was set").
func (s *sharedState) wakeAll() {
	s.readTask.wake()
	s.writeTask.wake()
	s.dispatchTask.wake()
}

// stop sets IO_STOPPED, wakes every waker, and cancels rootContext so any
// goroutine currently parked on a PollReadReady/PollWriteReady wait notices
// termination immediately instead of waiting for its own waker's turn.
func (s *sharedState) stop(err error) {
	if err != nil {
		s.recordError(err)
		s.insertFlags(IoErr)
	}
	s.insertFlags(IoStopped)
	s.wakeAll()
	s.cancel()
}

// shutdownFilters performs the filter-chain shutdown sweep requested via the
// IO_FILTERS flag (spec §4.3 step 6 / §4.5).
func (s *sharedState) shutdownFilters() {
	s.removeFlags(IoFilters)
	f := s.currentFilter()
	if f == nil {
		return
	}
	f.Closed(s.recordedError())
}

func (s *sharedState) addRef() {
	s.mu.Lock()
	s.refs++
	s.mu.Unlock()
}

func (s *sharedState) dropRef() int32 {
	s.mu.Lock()
	s.refs--
	n := s.refs
	s.mu.Unlock()
	return n
}

func (s *sharedState) stopped() bool {
	return s.getFlags().Contains(IoStopped)
}

func (s *sharedState) writeBufLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.writeBuf)
}
