//go:build integration

// Package integration_test exercises ztpipe across process-shaped
// boundaries that unit tests in internal/* don't reach: overlay.Host's
// goroutine-driven Run loop, the admin HTTP surface, and the CLI client
// that drives it.
package integration_test

import (
	"bytes"
	"context"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ztpipe/ztpipe/internal/ztproto"
)

// TestHostRunDialAcceptRoundTrip exercises a dial-accept round trip with
// both Hosts driven by their real Run loop (background scheduler + UDP
// recv loop goroutines) instead of called synchronously, and verifies Run
// exits cleanly when its context is cancelled.
func TestHostRunDialAcceptRoundTrip(t *testing.T) {
	const nwid = 0xAAAA

	listener, dialer := newBridgedHosts(t, nwid)

	ctx, cancel := context.WithCancel(context.Background())
	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error { return listener.Run(gCtx) })
	g.Go(func() error { return dialer.Run(gCtx) })

	lep, err := listener.Bind(ztproto.ModeListen, nwid, 0, 0, 7, 1<<20)
	if err != nil {
		t.Fatalf("listener Bind: %v", err)
	}

	accepted := make(chan *ztproto.Pipe, 1)
	if err := listener.Accept(lep, func(p *ztproto.Pipe, err error) {
		if err != nil {
			t.Errorf("accept completion error: %v", err)
			return
		}
		accepted <- p
	}); err != nil {
		t.Fatalf("Accept: %v", err)
	}

	dep, err := dialer.Bind(ztproto.ModeDial, nwid, 0, 0, 7, 1<<20)
	if err != nil {
		t.Fatalf("dialer Bind: %v", err)
	}

	dialed := make(chan *ztproto.Pipe, 1)
	if err := dialer.Connect(dep, lep.LocalAddr(), func(p *ztproto.Pipe, err error) {
		if err != nil {
			t.Errorf("connect completion error: %v", err)
			return
		}
		dialed <- p
	}); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	var acceptedPipe, dialedPipe *ztproto.Pipe
	select {
	case acceptedPipe = <-accepted:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for listener accept")
	}
	select {
	case dialedPipe = <-dialed:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for dialer connect")
	}

	msg := bytes.Repeat([]byte{0xAB}, 4096)
	if _, err := dialedPipe.Send(msg); err != nil {
		t.Fatalf("Send: %v", err)
	}

	received := make(chan []byte, 1)
	acceptedPipe.Receive(func(m []byte, err error) {
		if err != nil {
			t.Errorf("receive completion error: %v", err)
			return
		}
		received <- m
	})

	select {
	case got := <-received:
		if !bytes.Equal(got, msg) {
			t.Fatalf("received %d bytes, want %d matching bytes", len(got), len(msg))
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for message delivery")
	}

	cancel()
	if err := g.Wait(); err != nil {
		t.Fatalf("Run returned error after cancel: %v", err)
	}
}
