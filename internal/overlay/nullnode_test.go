package overlay

import "testing"

func TestNewNullNodeGeneratesAddressWhenZero(t *testing.T) {
	t.Parallel()

	n := NewNullNode(0)
	if n.Address() == 0 {
		t.Fatal("NewNullNode(0) left address zero")
	}
}

func TestNewNullNodeKeepsExplicitAddress(t *testing.T) {
	t.Parallel()

	n := NewNullNode(0x1234567890)
	if n.Address() != 0x1234567890 {
		t.Errorf("Address() = %x, want 1234567890", n.Address())
	}
}

func TestNullNodeNetworkConfigAlwaysMissing(t *testing.T) {
	t.Parallel()

	n := NewNullNode(1)
	if _, ok := n.NetworkConfig(42); ok {
		t.Error("NetworkConfig reported a configured network")
	}
}
