package main

import (
	"context"

	"github.com/spf13/cobra"

	"canonkeep/internal/config"
	"canonkeep/internal/mcp"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server over stdio",
		RunE:  runServe,
	}
	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
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

	server, err := mcp.NewServer(db.canon, db.staging, engine, version)
	if err != nil {
		return err
	}
	return server.Run(ctx, &sdk.StdioTransport{})
}
