package main

import (
	"context"

	"github.com/spf13/cobra"

	"canonkeep/internal/config"
)

func queryFactCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fact <fact-id>",
		Short: "Display a canonical fact with its edges and retcon status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQueryFact(cmd, args[0])
		},
	}
	return cmd
}

func runQueryFact(cmd *cobra.Command, factID string) error {
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

	fact, err := db.canon.GetFact(ctx, factID)
	if err != nil {
		return err
	}

	printFact(*fact)
	return nil
}
