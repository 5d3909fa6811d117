package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"canonkeep/internal/config"
)

func querySceneCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scene <scene-id>",
		Short: "Display a scene and its lifecycle status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQueryScene(cmd, args[0])
		},
	}
	return cmd
}

func runQueryScene(cmd *cobra.Command, sceneID string) error {
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

	scene, err := db.staging.GetScene(ctx, sceneID)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "Scene: %s\n", scene.ID)
	if scene.Name != "" {
		fmt.Fprintf(os.Stdout, "Name: %s\n", scene.Name)
	}
	fmt.Fprintf(os.Stdout, "Universe: %s\n", scene.UniverseID)
	fmt.Fprintf(os.Stdout, "Status: %s\n", scene.Status)
	fmt.Fprintf(os.Stdout, "Created: %s\n", scene.CreatedAt.Format("2006-01-02 15:04:05"))
	return nil
}
