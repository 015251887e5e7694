package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func endpointsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "endpoints",
		Short: "List bound endpoints (listeners and dialers)",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			resp, err := client.Endpoints(context.Background())
			if err != nil {
				return fmt.Errorf("list endpoints: %w", err)
			}

			out, err := formatEndpoints(resp.Endpoints, outputFormat)
			if err != nil {
				return fmt.Errorf("format endpoints: %w", err)
			}

			fmt.Print(out)
			return nil
		},
	}
}
