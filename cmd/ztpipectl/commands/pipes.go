package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func pipesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pipes",
		Short: "List established pipes",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			resp, err := client.Pipes(context.Background())
			if err != nil {
				return fmt.Errorf("list pipes: %w", err)
			}

			out, err := formatPipes(resp.Pipes, outputFormat)
			if err != nil {
				return fmt.Errorf("format pipes: %w", err)
			}

			fmt.Print(out)
			return nil
		},
	}
}
