package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/foxzi/techsupport/internal/web/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration commands",
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	RunE:  runConfigValidate,
}

func init() {
	configValidateCmd.Flags().StringVarP(&configFile, "config", "c", defaultConfigFile, "Path to configuration file")
	configCmd.AddCommand(configValidateCmd)
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Configuration is valid")
	fmt.Fprintf(out, "  Listen address: %s\n", cfg.Server.ListenAddr)
	fmt.Fprintf(out, "  TLS: %v\n", cfg.Server.TLS.Enabled)
	fmt.Fprintf(out, "  Store path: %s\n", orMissing(cfg.Store.Path))
	fmt.Fprintf(out, "  Project ID: %s\n", orMissing(cfg.Store.ProjectID))
	fmt.Fprintf(out, "  Connect timeout: %s\n", cfg.Store.ConnectTimeout)
	fmt.Fprintf(out, "  Seed empty store: %v\n", cfg.Store.SeedEnabled())
	fmt.Fprintf(out, "  Session TTL: %s\n", cfg.Auth.SessionTTL)
	if cfg.Reports.Timeout == 0 {
		fmt.Fprintln(out, "  Report timeout: none")
	} else {
		fmt.Fprintf(out, "  Report timeout: %s\n", cfg.Reports.Timeout)
	}
	if cfg.Metrics.Enabled {
		fmt.Fprintf(out, "  Metrics: %s%s\n", cfg.Metrics.ListenAddr, cfg.Metrics.Path)
	}

	if cfg.Store.Path == "" || cfg.Store.ProjectID == "" {
		fmt.Fprintln(out, "Warning: store.path and store.project_id are required to connect; the server will start in the error state")
	}
	return nil
}

func orMissing(s string) string {
	if s == "" {
		return "(missing)"
	}
	return s
}
