//go:build integration

package integration_test

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/ztpipe/ztpipe/internal/adminapi"
	"github.com/ztpipe/ztpipe/internal/overlay"
)

// newAdminTestServer mounts adminapi.New over host behind an httptest
// server, mirroring how cmd/ztpiped wires the admin mux.
func newAdminTestServer(t *testing.T, host *overlay.Host) *httptest.Server {
	t.Helper()

	logger := slog.New(slog.DiscardHandler)
	path, handler := adminapi.New(host, logger)
	mux := http.NewServeMux()
	mux.Handle(path, handler)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

// TestAdminServerListenDialLifecycle exercises the admin HTTP surface end
// to end: binding a listener via POST /v1/listen, dialing it from a peer
// Host via POST /v1/dial, and observing both sides in GET /v1/status,
// /v1/endpoints, and /v1/pipes.
func TestAdminServerListenDialLifecycle(t *testing.T) {
	const nwid = 0xBEEF

	listenerHost, dialerHost := newBridgedHosts(t, nwid)

	listenerSrv := newAdminTestServer(t, listenerHost)
	dialerSrv := newAdminTestServer(t, dialerHost)

	listenerClient := adminapi.NewClient(listenerSrv.URL)
	dialerClient := adminapi.NewClient(dialerSrv.URL)

	ctx := t.Context()

	statusBefore, err := listenerClient.Status(ctx)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if statusBefore.Endpoints != 0 || statusBefore.Pipes != 0 {
		t.Fatalf("Status before listen = %+v, want zero endpoints and pipes", statusBefore)
	}

	listenResp, err := listenerClient.Listen(ctx, adminapi.ListenRequest{
		URL:         "zt://beef:0",
		Protocol:    7,
		RecvMaxSize: 1 << 20,
	})
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	if listenResp.Endpoint.Mode != "listen" {
		t.Errorf("Listen endpoint mode = %q, want %q", listenResp.Endpoint.Mode, "listen")
	}

	endpoints, err := listenerClient.Endpoints(ctx)
	if err != nil {
		t.Fatalf("Endpoints: %v", err)
	}
	if len(endpoints.Endpoints) != 1 {
		t.Fatalf("Endpoints count = %d, want 1", len(endpoints.Endpoints))
	}

	_, port, _ := strings.Cut(listenResp.Endpoint.LocalAddr, ":")
	nodeHex := strconv.FormatUint(uint64(listenerHost.NodeAddress()), 16)
	dialURL := "zt://beef/" + nodeHex + ":" + port

	dialResp, err := dialerClient.Dial(ctx, adminapi.DialRequest{
		URL:         dialURL,
		Protocol:    7,
		RecvMaxSize: 1 << 20,
	})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	if dialResp.Pipe.State != "live" {
		t.Errorf("Dial pipe state = %q, want %q", dialResp.Pipe.State, "live")
	}

	pipes, err := dialerClient.Pipes(ctx)
	if err != nil {
		t.Fatalf("Pipes: %v", err)
	}
	if len(pipes.Pipes) != 1 {
		t.Fatalf("Pipes count = %d, want 1", len(pipes.Pipes))
	}

	statusAfter, err := dialerClient.Status(ctx)
	if err != nil {
		t.Fatalf("Status after dial: %v", err)
	}
	if statusAfter.Pipes != 1 {
		t.Errorf("Status.Pipes after dial = %d, want 1", statusAfter.Pipes)
	}
}

// TestAdminServerDialRefused dials a node with no listener bound for the
// requested port and expects a refusal, surfaced through the admin API as
// a non-2xx response.
func TestAdminServerDialRefused(t *testing.T) {
	const nwid = 0xCAFE

	_, dialerHost := newBridgedHosts(t, nwid)
	dialerSrv := newAdminTestServer(t, dialerHost)
	dialerClient := adminapi.NewClient(dialerSrv.URL)

	_, err := dialerClient.Dial(t.Context(), adminapi.DialRequest{
		URL:      "zt://cafe/1111111111:7",
		Protocol: 7,
	})
	if err == nil {
		t.Fatal("Dial against a node with no listener should fail")
	}
}
