// Package zturl parses the zt:// endpoint URL form
// zt://<nwid>[/<node>]:<port>, with nwid and node in hexadecimal and port
// in decimal.
package zturl

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/ztpipe/ztpipe/internal/addrbook"
)

// Sentinel parse errors.
var (
	ErrBadScheme = errors.New("zturl: url must start with zt://")
	ErrBadNWID   = errors.New("zturl: invalid network id")
	ErrBadNode   = errors.New("zturl: invalid node id")
	ErrBadPort   = errors.New("zturl: invalid port")
)

const scheme = "zt://"

// Endpoint is the parsed form of a zt:// URL.
type Endpoint struct {
	NWID uint64
	Node addrbook.NodeID // 0 means wildcard/own node
	Port uint32
}

// Parse decodes raw as a zt:// endpoint URL. The <node> segment is
// optional; when absent (or "*"), Node is zero.
func Parse(raw string) (Endpoint, error) {
	if !strings.HasPrefix(raw, scheme) {
		return Endpoint{}, fmt.Errorf("%w: %q", ErrBadScheme, raw)
	}
	rest := strings.TrimPrefix(raw, scheme)

	nwidPart, portPart, ok := strings.Cut(rest, ":")
	if !ok {
		return Endpoint{}, fmt.Errorf("%w: missing port in %q", ErrBadPort, raw)
	}

	var nodePart string
	if idx := strings.IndexByte(nwidPart, '/'); idx >= 0 {
		nodePart = nwidPart[idx+1:]
		nwidPart = nwidPart[:idx]
	}

	nwid, err := strconv.ParseUint(nwidPart, 16, 64)
	if err != nil {
		return Endpoint{}, fmt.Errorf("%w: %q: %w", ErrBadNWID, nwidPart, err)
	}

	var node addrbook.NodeID
	if nodePart != "" && nodePart != "*" {
		n, err := strconv.ParseUint(nodePart, 16, 40)
		if err != nil {
			return Endpoint{}, fmt.Errorf("%w: %q: %w", ErrBadNode, nodePart, err)
		}
		node = addrbook.NodeID(n)
	}

	port, err := strconv.ParseUint(portPart, 10, 24)
	if err != nil {
		return Endpoint{}, fmt.Errorf("%w: %q: %w", ErrBadPort, portPart, err)
	}

	return Endpoint{NWID: nwid, Node: node, Port: uint32(port)}, nil
}

// String renders e back into zt:// URL form.
func (e Endpoint) String() string {
	if e.Node == 0 {
		return fmt.Sprintf("zt://%x:%d", e.NWID, e.Port)
	}
	return fmt.Sprintf("zt://%x/%x:%d", e.NWID, uint64(e.Node), e.Port)
}
