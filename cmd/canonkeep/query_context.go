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

func queryContextCmd() *cobra.Command {
	var universeID string
	cmd := &cobra.Command{
		Use:   "context <entity-id>...",
		Short: "Show the canonical facts involving the given entities",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(universeID) == "" {
				return fmt.Errorf("--universe is required")
			}
			return runQueryContext(cmd, universeID, args)
		},
	}
	cmd.Flags().StringVar(&universeID, "universe", "", "Story id to query within")
	return cmd
}

func runQueryContext(cmd *cobra.Command, universeID string, entityIDs []string) error {
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

	facts, err := db.canon.CanonContext(ctx, universeID, entityIDs)
	if err != nil {
		return err
	}

	if len(facts) == 0 {
		fmt.Fprintln(os.Stdout, "No canonical facts found.")
		return nil
	}

	for _, fact := range facts {
		printFact(fact)
	}
	return nil
}

func printFact(fact canon.Fact) {
	fmt.Fprintf(os.Stdout, "%s  [%s/%s]  %s\n", fact.ID, fact.Kind, fact.Authority, fact.Statement)
	if fact.Dimension != "" {
		fmt.Fprintf(os.Stdout, "    state: %s=%s\n", fact.Dimension, fact.Tag)
	}
	if len(fact.Evidence) > 0 {
		fmt.Fprintf(os.Stdout, "    evidence: %s\n", strings.Join(fact.Evidence, ", "))
	}
	if len(fact.Causes) > 0 {
		fmt.Fprintf(os.Stdout, "    causes: %s\n", strings.Join(fact.Causes, ", "))
	}
	if fact.Level == canon.LevelRetconned {
		fmt.Fprintf(os.Stdout, "    retconned: %s", fact.RetconReason)
		if fact.SupersededBy != "" {
			fmt.Fprintf(os.Stdout, " (superseded by %s)", fact.SupersededBy)
		}
		fmt.Fprintln(os.Stdout)
	}
}
