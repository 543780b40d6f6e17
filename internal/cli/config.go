package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/forPelevin/recut/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.FromContext(cmd.Context())
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("config: %w", err)
			}
			if path, _ := cmd.Flags().GetString("save"); path != "" {
				if err := cfg.Save(path); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "config written to %s\n", path)
				return nil
			}
			b, err := cfg.Marshal()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(b)
			return err
		},
	}
	cmd.Flags().String("save", "", "Write the configuration to this file instead of stdout")
	return cmd
}
