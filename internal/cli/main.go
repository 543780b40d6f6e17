package cli

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/forPelevin/recut/internal/config"
	"github.com/forPelevin/recut/internal/logging"
)

func Main() {
	_ = godotenv.Load() // best-effort: load .env if present

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "recut",
		Short:        "Select and pace highlight clips into an edit decision list",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("config")
			cfg, err := config.Load(path, cmd.Flags())
			if err != nil {
				return fmt.Errorf("config: %w", err)
			}
			if err := logging.Init(cfg.Log.Level, cfg.Log.Format); err != nil {
				return fmt.Errorf("config: %w", err)
			}
			cmd.SetContext(config.WithConfig(cmd.Context(), cfg))
			return nil
		},
	}

	root.SetOut(os.Stdout)
	root.SetErr(os.Stderr)
	root.SilenceErrors = true

	pf := root.PersistentFlags()
	pf.String("config", "", "Config file (default ./recut.yaml if present)")
	pf.String("log-level", "info", "Log level: debug, info, warn, error")
	pf.String("log-format", "console", "Log format: console or json")
	pf.String("runs-dir", "runs", "Directory holding per-run artifacts")
	pf.String("ledger", "", "Run ledger database (default <runs-dir>/ledger.db)")

	root.AddCommand(
		newRunCmd(),
		newCandidatesCmd(),
		newConfigCmd(),
		newRunsCmd(),
		newServeCmd(),
	)
	return root
}
