package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"canonkeep/internal/canonizer"
	"canonkeep/internal/config"
)

func endSceneCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "end-scene <scene-id>",
		Short: "Finalize a scene and canonize its staged proposals",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCanonize(cmd, args[0], true)
		},
	}
	return cmd
}

func canonizeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "canonize <scene-id>",
		Short: "Canonize or retry a finalizing scene",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCanonize(cmd, args[0], false)
		},
	}
	return cmd
}

func runCanonize(cmd *cobra.Command, sceneID string, endScene bool) error {
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

	var report *canonizer.Report
	if endScene {
		report, err = engine.EndScene(ctx, sceneID)
	} else {
		report, err = engine.CanonizeScene(ctx, sceneID)
	}
	if err != nil {
		return err
	}

	printReport(report)
	if !report.OK() {
		return fmt.Errorf("canonization finished with %d write errors; re-run canonize to retry", len(report.Errors))
	}
	return nil
}

func printReport(report *canonizer.Report) {
	fmt.Fprintf(os.Stdout, "Scene %s: %d accepted, %d rejected\n", report.SceneID, len(report.Accepted), len(report.Rejected))
	for _, id := range report.Accepted {
		fmt.Fprintf(os.Stdout, "  + %s\n", id)
	}
	for _, id := range report.Rejected {
		fmt.Fprintf(os.Stdout, "  - %s\n", id)
	}
	for _, e := range report.Errors {
		fmt.Fprintf(os.Stdout, "  ! %s: %s\n", e.ProposalID, e.Reason)
	}
}
