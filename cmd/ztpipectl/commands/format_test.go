package commands

import (
	"strings"
	"testing"

	"github.com/ztpipe/ztpipe/internal/adminapi"
)

func TestFormatStatusTable(t *testing.T) {
	out, err := formatStatus(adminapi.StatusResponse{
		Version:     "v1.0.0",
		NodeAddress: "1111111111",
		UptimeSec:   42,
		Endpoints:   2,
		Pipes:       1,
	}, formatTable)
	if err != nil {
		t.Fatalf("formatStatus: %v", err)
	}
	for _, want := range []string{"v1.0.0", "1111111111", "42", "2", "1"} {
		if !strings.Contains(out, want) {
			t.Errorf("table output missing %q:\n%s", want, out)
		}
	}
}

func TestFormatStatusJSON(t *testing.T) {
	out, err := formatStatus(adminapi.StatusResponse{Version: "dev", NodeAddress: "abc"}, formatJSON)
	if err != nil {
		t.Fatalf("formatStatus: %v", err)
	}
	if !strings.Contains(out, `"node_address": "abc"`) {
		t.Errorf("JSON output missing node_address field:\n%s", out)
	}
}

func TestFormatStatusUnsupportedFormat(t *testing.T) {
	if _, err := formatStatus(adminapi.StatusResponse{}, "yaml"); err == nil {
		t.Fatal("expected an error for an unsupported format")
	}
}

func TestFormatEndpointsTable(t *testing.T) {
	out, err := formatEndpoints([]adminapi.EndpointView{
		{LocalAddr: "1111111111:5", NWID: "beef", Mode: "listen", State: "listening", Protocol: 7},
	}, formatTable)
	if err != nil {
		t.Fatalf("formatEndpoints: %v", err)
	}
	if !strings.Contains(out, "LOCAL-ADDR") || !strings.Contains(out, "listening") {
		t.Errorf("endpoints table missing expected content:\n%s", out)
	}
}

func TestFormatPipesTable(t *testing.T) {
	out, err := formatPipes([]adminapi.PipeView{
		{LocalAddr: "1111111111:5", RemoteAddr: "2222222222:9", NWID: "beef", State: "live", PeerProtocol: 7},
	}, formatTable)
	if err != nil {
		t.Fatalf("formatPipes: %v", err)
	}
	if !strings.Contains(out, "REMOTE-ADDR") || !strings.Contains(out, "live") {
		t.Errorf("pipes table missing expected content:\n%s", out)
	}
}
