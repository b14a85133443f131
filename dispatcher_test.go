package ioflow_test

import (
	"context"
	"net"
	"testing"
	"time"

	"code.hybscloud.com/ioflow"
)

func TestDispatcherEchoesOneFrame(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	client := newPipeIo(t, clientConn)
	server := newPipeIo(t, serverConn)

	echo := ioflow.ServiceFunc[[]byte, []byte](func(_ context.Context, item ioflow.DispatchItem[[]byte]) ([]byte, bool, error) {
		if item.Kind != ioflow.DispatchItemFrame {
			return nil, false, nil
		}
		return item.Frame, true, nil
	})
	identity := func(a any) ([]byte, error) { return a.([]byte), nil }
	box := func(b []byte) any { return b }

	disp := ioflow.NewDispatcher[[]byte, []byte](server, ioflow.LengthDelimitedCodec{}, echo, identity, box)

	dispErrCh := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		dispErrCh <- disp.Run(ctx)
	}()

	codec := ioflow.LengthDelimitedCodec{}
	if err := client.Send([]byte("ping"), codec); err != nil {
		t.Fatalf("client send: %v", err)
	}

	got, recvErr := client.Recv(codec)
	if recvErr != nil {
		t.Fatalf("client recv: %v", recvErr)
	}
	if string(got.([]byte)) != "ping" {
		t.Fatalf("expected echoed 'ping', got %q", got)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = client.Shutdown(ctx)
}

// TestDispatcherDeliversKeepAliveTimeoutThenShutsDown covers spec scenario 2:
// an idle connection gets exactly one KeepAliveTimeout item, then the
// Dispatcher drives the connection through shutdown on its own.
func TestDispatcherDeliversKeepAliveTimeoutThenShutsDown(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	client := newPipeIo(t, clientConn)
	server := newPipeIo(t, serverConn)

	kinds := make(chan ioflow.DispatchItemKind, 8)
	svc := ioflow.ServiceFunc[[]byte, []byte](func(_ context.Context, item ioflow.DispatchItem[[]byte]) ([]byte, bool, error) {
		kinds <- item.Kind
		if item.Kind == ioflow.DispatchItemFrame {
			return item.Frame, true, nil
		}
		return nil, false, nil
	})
	identity := func(a any) ([]byte, error) { return a.([]byte), nil }
	box := func(b []byte) any { return b }

	disp := ioflow.NewDispatcher[[]byte, []byte](
		server, ioflow.LengthDelimitedCodec{}, svc, identity, box,
		ioflow.WithDispatcherKeepAlive[[]byte, []byte](30*time.Millisecond),
	)

	dispErrCh := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		dispErrCh <- disp.Run(ctx)
	}()

	codec := ioflow.LengthDelimitedCodec{}
	if err := client.Send([]byte("hi"), codec); err != nil {
		t.Fatalf("client send: %v", err)
	}
	if _, recvErr := client.Recv(codec); recvErr != nil {
		t.Fatalf("client recv: %v", recvErr)
	}

	select {
	case kind := <-kinds:
		if kind != ioflow.DispatchItemFrame {
			t.Fatalf("expected the frame item first, got %v", kind)
		}
	case <-time.After(time.Second):
		t.Fatal("service never saw the frame")
	}

	select {
	case kind := <-kinds:
		if kind != ioflow.DispatchItemKeepAlive {
			t.Fatalf("expected DispatchItemKeepAlive, got %v", kind)
		}
	case <-time.After(time.Second):
		t.Fatal("service never saw KeepAliveTimeout")
	}

	select {
	case err := <-dispErrCh:
		if err != nil {
			t.Fatalf("Run returned unexpected error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not shut the connection down after keep-alive expiry")
	}
}

// TestDispatcherDeliversDecoderErrorThenShutsDown covers spec scenario 4: a
// malformed length prefix is delivered as DispatchItemDecoderError exactly
// once, then the connection is shut down.
func TestDispatcherDeliversDecoderErrorThenShutsDown(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	server := newPipeIo(t, serverConn)

	kinds := make(chan ioflow.DispatchItemKind, 8)
	svc := ioflow.ServiceFunc[[]byte, []byte](func(_ context.Context, item ioflow.DispatchItem[[]byte]) ([]byte, bool, error) {
		kinds <- item.Kind
		return nil, false, nil
	})
	identity := func(a any) ([]byte, error) { return a.([]byte), nil }
	box := func(b []byte) any { return b }

	codec := ioflow.LengthDelimitedCodec{MaxFrameLen: 1024}
	disp := ioflow.NewDispatcher[[]byte, []byte](server, codec, svc, identity, box)

	dispErrCh := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		dispErrCh <- disp.Run(ctx)
	}()

	if _, err := clientConn.Write([]byte{0xff, 0xff, 0xff, 0xff}); err != nil {
		t.Fatalf("raw write: %v", err)
	}

	select {
	case kind := <-kinds:
		if kind != ioflow.DispatchItemDecoderError {
			t.Fatalf("expected DispatchItemDecoderError, got %v", kind)
		}
	case <-time.After(time.Second):
		t.Fatal("service never saw DecoderError")
	}

	select {
	case kind := <-kinds:
		t.Fatalf("expected DecoderError delivered exactly once, got a second item %v", kind)
	default:
	}

	select {
	case err := <-dispErrCh:
		if err == nil {
			t.Fatalf("expected Run to return the decoder error")
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not shut the connection down after a decoder error")
	}

	_ = clientConn.Close()
}
