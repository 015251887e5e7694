package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/ztpipe/ztpipe/internal/adminapi"
)

const (
	formatJSON  = "json"
	formatTable = "table"
)

// errUnsupportedFormat is returned when the requested output format is not supported.
var errUnsupportedFormat = errors.New("unsupported output format")

// formatStatus renders the daemon status in the requested format.
func formatStatus(s adminapi.StatusResponse, format string) (string, error) {
	switch format {
	case formatJSON:
		return marshalJSON(s)
	case formatTable:
		return formatStatusTable(s), nil
	default:
		return "", fmt.Errorf("%w: %q", errUnsupportedFormat, format)
	}
}

func formatStatusTable(s adminapi.StatusResponse) string {
	var buf strings.Builder
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Version:\t%s\n", s.Version)
	fmt.Fprintf(w, "Node Address:\t%s\n", s.NodeAddress)
	fmt.Fprintf(w, "Uptime:\t%ds\n", s.UptimeSec)
	fmt.Fprintf(w, "Endpoints:\t%d\n", s.Endpoints)
	fmt.Fprintf(w, "Pipes:\t%d\n", s.Pipes)
	_ = w.Flush()
	return buf.String()
}

// formatEndpoints renders a list of endpoints in the requested format.
func formatEndpoints(eps []adminapi.EndpointView, format string) (string, error) {
	switch format {
	case formatJSON:
		return marshalJSON(eps)
	case formatTable:
		return formatEndpointsTable(eps), nil
	default:
		return "", fmt.Errorf("%w: %q", errUnsupportedFormat, format)
	}
}

func formatEndpointsTable(eps []adminapi.EndpointView) string {
	var buf strings.Builder
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "LOCAL-ADDR\tNWID\tMODE\tSTATE\tPROTOCOL")
	for _, e := range eps {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\n", e.LocalAddr, e.NWID, e.Mode, e.State, e.Protocol)
	}
	_ = w.Flush()
	return buf.String()
}

// formatEndpoint renders a single endpoint (as produced by "listen") in the
// requested format.
func formatEndpoint(e adminapi.EndpointView, format string) (string, error) {
	switch format {
	case formatJSON:
		return marshalJSON(e)
	case formatTable:
		return formatEndpointsTable([]adminapi.EndpointView{e}), nil
	default:
		return "", fmt.Errorf("%w: %q", errUnsupportedFormat, format)
	}
}

// formatPipes renders a list of pipes in the requested format.
func formatPipes(pipes []adminapi.PipeView, format string) (string, error) {
	switch format {
	case formatJSON:
		return marshalJSON(pipes)
	case formatTable:
		return formatPipesTable(pipes), nil
	default:
		return "", fmt.Errorf("%w: %q", errUnsupportedFormat, format)
	}
}

func formatPipesTable(pipes []adminapi.PipeView) string {
	var buf strings.Builder
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "LOCAL-ADDR\tREMOTE-ADDR\tNWID\tSTATE\tPEER-PROTOCOL")
	for _, p := range pipes {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\n", p.LocalAddr, p.RemoteAddr, p.NWID, p.State, p.PeerProtocol)
	}
	_ = w.Flush()
	return buf.String()
}

// formatPipe renders a single pipe (as produced by "dial") in the requested
// format.
func formatPipe(p adminapi.PipeView, format string) (string, error) {
	switch format {
	case formatJSON:
		return marshalJSON(p)
	case formatTable:
		return formatPipesTable([]adminapi.PipeView{p}), nil
	default:
		return "", fmt.Errorf("%w: %q", errUnsupportedFormat, format)
	}
}

func marshalJSON(v any) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal to JSON: %w", err)
	}
	return string(data) + "\n", nil
}
