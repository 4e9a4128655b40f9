package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/vaultgate/vaultgate/internal/bootstrap"
	"github.com/vaultgate/vaultgate/internal/service"
)

// connectDB opens the database connection for a command.
func connectDB(cmdCtx *commandContext) (*sql.DB, error) {
	db, err := bootstrap.ConnectDB(bootstrap.DatabaseConfig{
		DBConfig: cmdCtx.Config.Postgres,
		Logger:   cmdCtx.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}
	return db, nil
}

func closeDB(cmdCtx *commandContext, db *sql.DB) {
	if err := db.Close(); err != nil {
		cmdCtx.Logger.Warn("db close failed", "error", err)
	}
}

// buildServices wires the full service container for commands that need it.
// The admin CLI never touches the response cache, so Redis is not connected.
func buildServices(ctx context.Context, cmdCtx *commandContext, db *sql.DB) (*bootstrap.ServiceContainer, error) {
	return bootstrap.BuildServices(ctx, bootstrap.ServiceDeps{
		Config: &cmdCtx.Config,
		DB:     db,
		Logger: cmdCtx.Logger,
	})
}

func runKeysCleanup(cmdCtx *commandContext, args []string) error {
	fs := flag.NewFlagSet("keys-cleanup", flag.ContinueOnError)
	timeout := fs.Duration("timeout", 30*time.Minute, "overall cleanup timeout")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, *timeout)
	defer cancel()

	db, err := connectDB(cmdCtx)
	if err != nil {
		return err
	}
	defer closeDB(cmdCtx, db)

	services, err := buildServices(ctx, cmdCtx, db)
	if err != nil {
		return err
	}

	stats, err := services.Janitor.CleanupOnce(ctx)
	if err != nil {
		return fmt.Errorf("cleanup pass: %w", err)
	}
	return printJanitorStats(os.Stdout, stats)
}

func printJanitorStats(w *os.File, stats service.JanitorStats) error {
	if err := writef(w, "Keys scheduled for deletion: %d\n", stats.KeysScheduled); err != nil {
		return err
	}
	if err := writef(w, "Stale records dropped:       %d\n", stats.RecordsDropped); err != nil {
		return err
	}
	if err := writef(w, "Keys skipped:                %d\n", stats.KeysSkipped); err != nil {
		return err
	}
	if err := writef(w, "Orphaned roles deleted:      %d\n", stats.RolesDeleted); err != nil {
		return err
	}
	return writef(w, "Blocklist entries purged:    %d\n", stats.BlocklistDeleted)
}

func runBlocklistPurge(cmdCtx *commandContext, args []string) error {
	fs := flag.NewFlagSet("blocklist-purge", flag.ContinueOnError)
	timeout := fs.Duration("timeout", 2*time.Minute, "purge timeout")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, *timeout)
	defer cancel()

	db, err := connectDB(cmdCtx)
	if err != nil {
		return err
	}
	defer closeDB(cmdCtx, db)

	services, err := buildServices(ctx, cmdCtx, db)
	if err != nil {
		return err
	}

	deleted, err := services.Tokens.PurgeExpired(ctx)
	if err != nil {
		return fmt.Errorf("purge blocklist: %w", err)
	}
	return writef(os.Stdout, "Expired blocklist entries purged: %d\n", deleted)
}

func runTokenInspect(cmdCtx *commandContext, args []string) error {
	fs := flag.NewFlagSet("token-inspect", flag.ContinueOnError)
	token := fs.String("token", "", "token string to inspect")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *token == "" {
		return errors.New("-token is required")
	}

	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, time.Minute)
	defer cancel()

	db, err := connectDB(cmdCtx)
	if err != nil {
		return err
	}
	defer closeDB(cmdCtx, db)

	services, err := buildServices(ctx, cmdCtx, db)
	if err != nil {
		return err
	}

	principal, ok := services.Auth.ValidateToken(ctx, *token)
	if !ok {
		return errors.New("token is invalid, expired, or revoked")
	}

	out, err := json.MarshalIndent(principal, "", "  ")
	if err != nil {
		return fmt.Errorf("render principal: %w", err)
	}
	return writef(os.Stdout, "%s\n", out)
}
