package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ztpipe/ztpipe/internal/adminapi"
)

func dialCmd() *cobra.Command {
	var (
		protocol    uint16
		recvMaxSize uint32
	)

	cmd := &cobra.Command{
		Use:   "dial <url>",
		Short: "Dial a remote endpoint and wait for the pipe to establish",
		Long:  "Dials zt://<nwid>/<node>:<port> and blocks until the connect-request retry loop completes, refuses, or times out.",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			resp, err := client.Dial(context.Background(), adminapi.DialRequest{
				URL:         args[0],
				Protocol:    protocol,
				RecvMaxSize: recvMaxSize,
			})
			if err != nil {
				return fmt.Errorf("dial: %w", err)
			}

			out, err := formatPipe(resp.Pipe, outputFormat)
			if err != nil {
				return fmt.Errorf("format pipe: %w", err)
			}

			fmt.Print(out)
			return nil
		},
	}

	flags := cmd.Flags()
	flags.Uint16Var(&protocol, "protocol", 0, "higher-level protocol number advertised in conn-req")
	flags.Uint32Var(&recvMaxSize, "recv-max-size", 0, "per-pipe receive cap in bytes (0 uses the daemon default)")

	return cmd
}
