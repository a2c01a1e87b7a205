package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/foxzi/techsupport/internal/web/auth"
	"github.com/foxzi/techsupport/internal/web/store"
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove expired login sessions",
	RunE:  runCleanup,
}

var cleanupDryRun bool

func init() {
	cleanupCmd.Flags().BoolVar(&cleanupDryRun, "dry-run", false, "Show what would be deleted without actually deleting")
	cleanupCmd.Flags().StringVarP(&configFile, "config", "c", defaultConfigFile, "Path to configuration file")
}

func runCleanup(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	p, err := openProvider(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer p.Close()

	st, err := p.Documents()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	if cleanupDryRun {
		docs, err := st.List(cmd.Context(), store.CollectionSessions)
		if err != nil {
			return fmt.Errorf("failed to list sessions: %w", err)
		}
		now := time.Now()
		expired := 0
		for _, doc := range docs {
			var sess auth.Session
			if err := doc.Decode(&sess); err != nil || sess.Expired(now) {
				expired++
			}
		}
		fmt.Fprintf(out, "Dry run: %d of %d sessions would be deleted\n", expired, len(docs))
		return nil
	}

	manager := auth.NewManager(auth.Options{}, nil, func() (auth.SessionStore, error) { return st, nil }, logger)
	removed, err := manager.Sweep(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to cleanup sessions: %w", err)
	}
	fmt.Fprintf(out, "Deleted %d expired sessions\n", removed)
	return nil
}
