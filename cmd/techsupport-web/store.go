package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"golang.org/x/crypto/bcrypt"

	"github.com/foxzi/techsupport/internal/web/config"
	"github.com/foxzi/techsupport/internal/web/provider"
)

// openProvider connects to the configured store for a one-off command.
// The web server must not be running, since the store file is locked.
func openProvider(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*provider.Provider, error) {
	p := provider.New(provider.Config{
		StorePath:      cfg.Store.Path,
		ProjectID:      cfg.Store.ProjectID,
		ConnectTimeout: cfg.Store.ConnectTimeout,
		PasswordCost:   bcrypt.DefaultCost,
	}, nil, logger)

	if err := p.Start(ctx); err != nil {
		p.Close()
		return nil, err
	}

	waitCtx, cancel := context.WithTimeout(ctx, cfg.Store.ConnectTimeout)
	defer cancel()
	if err := p.WaitConnected(waitCtx); err != nil {
		p.Close()
		return nil, fmt.Errorf("failed to connect to store: %w", err)
	}
	return p, nil
}

func loadConfig() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, nil, err
	}
	return cfg, newLogger(config.LoggingConfig{Level: "warn", Format: "text"}, os.Stderr), nil
}
