package cli

import (
	"fmt"
	"path/filepath"

	"github.com/harun/webchat/internal/config"
	"github.com/spf13/cobra"
)

var configureCmd = &cobra.Command{
	Use:   "configure",
	Short: "Write a config file interactively",
	Long: `Ask for the conversation backend, bot endpoint, record store and gateway
settings, then write them to the config file (--config, or the default path).
Records are kept next to the config file unless data_dir is edited later.`,
	RunE: runConfigure,
}

func init() {
	rootCmd.AddCommand(configureCmd)
}

func runConfigure(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	cfg, err := config.NewWizard(cmd.InOrStdin(), out).Run()
	if err != nil {
		return fmt.Errorf("configuration failed: %w", err)
	}

	loader := config.NewLoader(cfgFile)
	path := loader.GetConfigPath()
	if path == "" {
		return fmt.Errorf("failed to resolve config path")
	}
	cfg.DataDir = filepath.Dir(path)

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if err := loader.Save(cfg); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}

	fmt.Fprintf(out, "\nConfiguration saved to: %s\n", path)
	fmt.Fprintln(out, "Start the daemon with: webchat start")
	return nil
}
