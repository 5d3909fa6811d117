package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"canonkeep/internal/canon"
	"canonkeep/internal/config"
)

func retconCmd() *cobra.Command {
	var authority string
	var supersededBy string
	var reason string
	cmd := &cobra.Command{
		Use:   "retcon <fact-id>",
		Short: "Supersede a canonical fact without deleting it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(reason) == "" {
				return fmt.Errorf("--reason is required")
			}
			return runRetcon(cmd, args[0], authority, supersededBy, reason)
		},
	}
	cmd.Flags().StringVar(&authority, "authority", "gm", "Authority requesting the retcon")
	cmd.Flags().StringVar(&supersededBy, "superseded-by", "", "Fact id that replaces the retconned one")
	cmd.Flags().StringVar(&reason, "reason", "", "Why the fact is being retconned")
	return cmd
}

func runRetcon(cmd *cobra.Command, factID, authority, supersededBy, reason string) error {
	ctx := context.Background()

	cfg, err := config.LoadProjectConfig(config.DefaultPath)
	if err != nil {
		return err
	}

	db, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close(ctx)

	engine, err := newEngine(cfg, db)
	if err != nil {
		return err
	}

	if err := engine.Retcon(ctx, canon.Authority(authority), factID, supersededBy, reason); err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "Fact %s retconned.\n", factID)
	return nil
}
