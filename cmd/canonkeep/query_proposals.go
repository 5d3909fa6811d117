package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"canonkeep/internal/config"
)

func queryProposalsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "proposals <scene-id>",
		Short: "List a scene's pending proposals in canonization order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQueryProposals(cmd, args[0])
		},
	}
	return cmd
}

func runQueryProposals(cmd *cobra.Command, sceneID string) error {
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

	proposals, err := db.staging.PendingProposals(ctx, sceneID)
	if err != nil {
		return err
	}

	if len(proposals) == 0 {
		fmt.Fprintln(os.Stdout, "No pending proposals.")
		return nil
	}

	for _, p := range proposals {
		summary := p.Payload.Statement
		if summary == "" && p.Payload.Entity != nil {
			summary = p.Payload.Entity.Name
		}
		fmt.Fprintf(os.Stdout, "%s  %-12s %-6s %.2f  %s\n", p.ID, p.Type, p.Authority, p.Confidence, summary)
	}
	return nil
}
