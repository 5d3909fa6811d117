package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"canonkeep/internal/config"
)

func initCmd() *cobra.Command {
	var projectName string
	var driver string
	var dsn string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Scaffold a new canonkeep project",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(projectName) == "" {
				return fmt.Errorf("--name is required")
			}
			return runInit(projectName, driver, dsn)
		},
	}
	cmd.Flags().StringVar(&projectName, "name", "", "Project name")
	cmd.Flags().StringVar(&driver, "driver", "sqlite", "Storage driver: sqlite, postgres, or neo4j")
	cmd.Flags().StringVar(&dsn, "dsn", "sqlite://canonkeep.db", "Storage DSN")
	return cmd
}

func runInit(projectName, driver, dsn string) error {
	configPath := config.DefaultPath
	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("%s already exists", configPath)
	}

	contents := fmt.Sprintf(`project: %s
version: 1

storage:
  driver: %s
  dsn: %s

# Used when storage.driver is neo4j; staging stays in storage.dsn.
neo4j:
  uri: bolt://localhost:7687
  username: neo4j
  password: changeme
  database: neo4j

policy:
  threshold: 0.6
  weights:
    authority: 0.3
    evidence: 0.3
    consistency: 0.3
    confidence: 0.1
  authority_weights:
    source: 1.0
    gm: 0.8
    player: 0.5
    system: 0.2
  retcon_authorities:
    - gm
    - source

lease:
  ttl_seconds: 60
`, projectName, driver, dsn)

	if err := os.WriteFile(configPath, []byte(contents), 0o600); err != nil {
		return fmt.Errorf("writing %s: %w", configPath, err)
	}

	ctx := context.Background()
	cfg, err := config.LoadProjectConfig(configPath)
	if err != nil {
		return err
	}
	db, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close(ctx)

	if err := db.canon.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("initializing canon schema: %w", err)
	}
	if err := db.staging.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("initializing staging schema: %w", err)
	}

	fmt.Fprintf(os.Stdout, "Initialized %s in %s.\n", projectName, configPath)
	return nil
}
