package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/MrEthical07/goTasks/internal/config"
)

func newSecurityReportCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "security-report",
		Short: "Print the security posture of a configuration as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			engineCfg, err := cfg.Engine()
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(posture(cfg, engineCfg))
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "Path to a YAML config file")
	return cmd
}
