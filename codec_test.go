package ioflow

import (
	"bytes"
	"testing"
)

func TestLengthDelimitedCodecRoundTrip(t *testing.T) {
	c := LengthDelimitedCodec{}
	var buf []byte
	payload := []byte("hello, world")

	if err := c.Encode(payload, &buf); err != nil {
		t.Fatalf("encode: %v", err)
	}

	item, ok, err := c.Decode(&buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !ok {
		t.Fatalf("expected a complete frame")
	}
	if !bytes.Equal(item.([]byte), payload) {
		t.Fatalf("round trip mismatch: got %q", item)
	}
	if len(buf) != 0 {
		t.Fatalf("expected buf fully consumed, %d bytes left", len(buf))
	}
}

func TestLengthDelimitedCodecNeedsMoreBytes(t *testing.T) {
	c := LengthDelimitedCodec{}
	buf := []byte{0, 0, 0, 5, 'a', 'b'} // declares 5 bytes, only 2 present

	item, ok, err := c.Decode(&buf)
	if err != nil || ok || item != nil {
		t.Fatalf("expected (nil, false, nil) for a partial frame, got (%v, %v, %v)", item, ok, err)
	}
}

func TestLengthDelimitedCodecMaxFrameLen(t *testing.T) {
	c := LengthDelimitedCodec{MaxFrameLen: 4}
	var buf []byte
	if err := c.Encode([]byte("12345"), &buf); err == nil {
		t.Fatalf("expected an error exceeding MaxFrameLen")
	}
}

func TestLengthDelimitedCodecDecodeRejectsOversizedHeader(t *testing.T) {
	c := LengthDelimitedCodec{MaxFrameLen: 4}
	buf := []byte{0, 0, 0, 10, 'x'}
	_, _, err := c.Decode(&buf)
	if err == nil {
		t.Fatalf("expected an error for a frame length exceeding MaxFrameLen")
	}
}

func TestLengthDelimitedCodecMultipleFramesInOneBuffer(t *testing.T) {
	c := LengthDelimitedCodec{}
	var buf []byte
	_ = c.Encode([]byte("one"), &buf)
	_ = c.Encode([]byte("two"), &buf)

	first, ok, err := c.Decode(&buf)
	if err != nil || !ok {
		t.Fatalf("decode first: ok=%v err=%v", ok, err)
	}
	if string(first.([]byte)) != "one" {
		t.Fatalf("expected first frame 'one', got %q", first)
	}

	second, ok, err := c.Decode(&buf)
	if err != nil || !ok {
		t.Fatalf("decode second: ok=%v err=%v", ok, err)
	}
	if string(second.([]byte)) != "two" {
		t.Fatalf("expected second frame 'two', got %q", second)
	}
}
