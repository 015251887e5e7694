package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ztpipe/ztpipe/internal/adminapi"
)

func listenCmd() *cobra.Command {
	var (
		protocol    uint16
		recvMaxSize uint32
	)

	cmd := &cobra.Command{
		Use:   "listen <url>",
		Short: "Bind a listener endpoint and begin accepting connect-requests",
		Long:  "Binds zt://<nwid>[/<node>]:<port> as a listener and registers a standing accept() loop.",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			resp, err := client.Listen(context.Background(), adminapi.ListenRequest{
				URL:         args[0],
				Protocol:    protocol,
				RecvMaxSize: recvMaxSize,
			})
			if err != nil {
				return fmt.Errorf("listen: %w", err)
			}

			out, err := formatEndpoint(resp.Endpoint, outputFormat)
			if err != nil {
				return fmt.Errorf("format endpoint: %w", err)
			}

			fmt.Print(out)
			return nil
		},
	}

	flags := cmd.Flags()
	flags.Uint16Var(&protocol, "protocol", 0, "higher-level protocol number this listener accepts")
	flags.Uint32Var(&recvMaxSize, "recv-max-size", 0, "per-pipe receive cap in bytes (0 uses the daemon default)")

	return cmd
}
