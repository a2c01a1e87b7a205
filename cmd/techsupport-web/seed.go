package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/foxzi/techsupport/internal/web/seed"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Write the default dataset into an empty store",
	RunE:  runSeed,
}

func init() {
	seedCmd.Flags().StringVarP(&configFile, "config", "c", defaultConfigFile, "Path to configuration file")
}

func runSeed(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	p, err := openProvider(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer p.Close()

	seeded, err := p.SeedIfEmpty(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to seed store: %w", err)
	}

	out := cmd.OutOrStdout()
	if !seeded {
		fmt.Fprintln(out, "Store already contains users, nothing seeded")
		return nil
	}
	fmt.Fprintf(out, "Seeded %d records\n", seed.Default().Len())
	return nil
}
