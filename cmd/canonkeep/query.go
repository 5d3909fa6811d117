package main

import "github.com/spf13/cobra"

func queryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "query",
		Short: "Query canon and staging from the CLI",
	}
	cmd.AddCommand(querySceneCmd())
	cmd.AddCommand(queryProposalsCmd())
	cmd.AddCommand(queryContextCmd())
	cmd.AddCommand(queryFactCmd())
	cmd.AddCommand(querySQLCmd())
	return cmd
}
