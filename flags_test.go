package ioflow

import "testing"

func TestFlagsInsertRemoveContains(t *testing.T) {
	var f Flags
	f = f.Insert(RdReady | WrBackpressure)
	if !f.Contains(RdReady) || !f.Contains(WrBackpressure) {
		t.Fatalf("expected both bits set, got %s", f)
	}
	if f.Contains(IoStopped) {
		t.Fatalf("unexpected bit set: %s", f)
	}
	f = f.Remove(RdReady)
	if f.Contains(RdReady) {
		t.Fatalf("RdReady should have been cleared: %s", f)
	}
	if !f.Contains(WrBackpressure) {
		t.Fatalf("WrBackpressure should still be set: %s", f)
	}
}

func TestFlagsIntersects(t *testing.T) {
	f := RdReady.Insert(DspStop)
	if !f.Intersects(DspStop | DspKeepalive) {
		t.Fatalf("expected intersection with DspStop")
	}
	if f.Intersects(IoErr | WrWait) {
		t.Fatalf("unexpected intersection")
	}
}

func TestFlagsStringEmpty(t *testing.T) {
	var f Flags
	if f.String() != "(none)" {
		t.Fatalf("zero Flags should print (none), got %q", f.String())
	}
}

func TestFlagsStringListsAllSetBits(t *testing.T) {
	f := RdReady.Insert(IoStopped).Insert(DspKeepalive)
	s := f.String()
	for _, want := range []string{"RD_READY", "IO_STOPPED", "DSP_KEEPALIVE"} {
		if !contains(s, want) {
			t.Fatalf("expected %q in %q", want, s)
		}
	}
}

func contains(s, substr string) bool {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}
