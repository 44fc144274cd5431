package cmd

import (
	"github.com/spf13/cobra"
)

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print store statistics as JSON",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if err := setupCLILogging(cfg); err != nil {
				return err
			}

			stores, closeStores, err := openStores(cfg)
			if err != nil {
				return err
			}
			defer closeStores()

			return printJSON(map[string]any{
				"vec_count": stores.vecs.Count(),
			})
		},
	}
}
