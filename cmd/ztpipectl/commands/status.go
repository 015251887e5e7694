package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show ztpiped daemon status",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			resp, err := client.Status(context.Background())
			if err != nil {
				return fmt.Errorf("get status: %w", err)
			}

			out, err := formatStatus(resp, outputFormat)
			if err != nil {
				return fmt.Errorf("format status: %w", err)
			}

			fmt.Print(out)
			return nil
		},
	}
}
