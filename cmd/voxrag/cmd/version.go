package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/voxide/voxrag/pkg/version"
)

func newVersionCmd() *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version and build information",
		RunE: func(_ *cobra.Command, _ []string) error {
			info := version.Info()
			if jsonOut {
				return printJSON(info)
			}
			fmt.Println(info.String())
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	return cmd
}
