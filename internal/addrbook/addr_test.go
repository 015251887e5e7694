package addrbook_test

import (
	"testing"

	"github.com/ztpipe/ztpipe/internal/addrbook"
)

func TestAddrNodePortRoundTrip(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		node addrbook.NodeID
		port uint32
	}{
		{"zero", 0, 0},
		{"static port", 0x1122334455, 0x000042},
		{"ephemeral port", 0xFFFFFFFFFF, 0x800001},
		{"max port", 0xABCDEF0123, addrbook.EphemeralHigh},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			a := addrbook.NewAddr(tt.node, tt.port)
			if got := a.Node(); got != tt.node {
				t.Fatalf("Node() = %#x, want %#x", uint64(got), uint64(tt.node))
			}
			if got := a.Port(); got != tt.port&addrbook.PortMask {
				t.Fatalf("Port() = %#x, want %#x", got, tt.port&addrbook.PortMask)
			}
		})
	}
}

func TestAddrIsEphemeral(t *testing.T) {
	t.Parallel()

	if addrbook.NewAddr(1, addrbook.StaticLow).IsEphemeral() {
		t.Fatal("static-range port reported ephemeral")
	}
	if !addrbook.NewAddr(1, addrbook.EphemeralLow).IsEphemeral() {
		t.Fatal("ephemeral-range low bound not reported ephemeral")
	}
	if !addrbook.NewAddr(1, addrbook.EphemeralHigh).IsEphemeral() {
		t.Fatal("ephemeral-range high bound not reported ephemeral")
	}
}

func TestMACNodeRoundTrip(t *testing.T) {
	t.Parallel()

	nwids := []uint64{0, 1, 0x0123456789ABCDEF, 0xFFFFFFFFFFFFFFFF, 0x0000000000000052}
	nodes := []addrbook.NodeID{0, 1, 0x1122334455, 0xFFFFFFFFFF, 0x8000000000}

	for _, nwid := range nwids {
		for _, node := range nodes {
			mac := addrbook.NodeToMAC(node, nwid)
			got := addrbook.MACToNode(mac, nwid)
			if got != node {
				t.Fatalf("MACToNode(NodeToMAC(%#x, %#x), %#x) = %#x, want %#x",
					uint64(node), nwid, nwid, uint64(got), uint64(node))
			}
		}
	}
}

func TestNodeToMACAvoidsReservedOUI(t *testing.T) {
	t.Parallel()

	// Construct an nwid whose low byte alone would produce the reserved
	// 0x52 leading octet, and confirm it is remapped to 0x32.
	for nwid := uint64(0); nwid < 256; nwid++ {
		hi := byte(nwid&0xfe) | 0x02
		if hi != 0x52 {
			continue
		}
		mac := addrbook.NodeToMAC(1, nwid)
		if mac[0] != 0x32 {
			t.Fatalf("nwid %#x: leading octet = %#x, want 0x32", nwid, mac[0])
		}
	}
}
