package ioflow

import "testing"

func TestMemoryPoolDefaultWatermarks(t *testing.T) {
	p := NewMemoryPool()
	if p.ReadParams().High != defaultReadHigh || p.ReadParams().Low != defaultReadLow {
		t.Fatalf("unexpected default read params: %+v", p.ReadParams())
	}
	if p.WriteParamsHigh() != defaultWriteHigh {
		t.Fatalf("unexpected default write high: %d", p.WriteParamsHigh())
	}
}

func TestMemoryPoolOverriddenWatermarks(t *testing.T) {
	p := NewMemoryPool(WithReadWatermarks(128, 16), WithWriteWatermarks(256, 32))
	if p.ReadParams() != (WatermarkParams{High: 128, Low: 16}) {
		t.Fatalf("read watermarks not applied: %+v", p.ReadParams())
	}
	if p.WriteParams() != (WatermarkParams{High: 256, Low: 32}) {
		t.Fatalf("write watermarks not applied: %+v", p.WriteParams())
	}
}

func TestMemoryPoolReuseFromFreelist(t *testing.T) {
	p := NewMemoryPool(WithReadWatermarks(64, 8))
	buf := p.GetReadBuf()
	buf = append(buf, []byte("hello")...)
	p.ReleaseReadBuf(buf)

	reused := p.GetReadBuf()
	if len(reused) != 0 {
		t.Fatalf("reused buffer should be reset to zero length, got %d", len(reused))
	}
	if cap(reused) < len("hello") {
		t.Fatalf("expected reused capacity to carry over, got cap=%d", cap(reused))
	}
}

func TestMemoryPoolSpareLimitDropsExcess(t *testing.T) {
	p := NewMemoryPool()
	for i := 0; i < poolSpareLimit+10; i++ {
		p.ReleaseWriteBuf(make([]byte, 0, 4))
	}
	p.mu.Lock()
	n := len(p.writeFL)
	p.mu.Unlock()
	if n != poolSpareLimit {
		t.Fatalf("expected freelist capped at %d, got %d", poolSpareLimit, n)
	}
}

func TestMemoryPoolReleaseNilIsNoop(t *testing.T) {
	p := NewMemoryPool()
	p.ReleaseReadBuf(nil)
	p.mu.Lock()
	n := len(p.readFL)
	p.mu.Unlock()
	if n != 0 {
		t.Fatalf("releasing nil should not grow the freelist, got %d entries", n)
	}
}
