package main

import (
	"context"
	"log"

	"github.com/spf13/cobra"

	"github.com/askdb/askdb/config"
	"github.com/askdb/askdb/internal/datasource/sqldb"
	"github.com/askdb/askdb/internal/mcpserver"
)

func main() {
	var cfgPath string
	var addr string
	var root = &cobra.Command{
		Use:   "askdb-sqlmcp",
		Short: "Expose a read-only SQL database as MCP tools",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(cfgPath)
			if err != nil {
				return err
			}
			src, err := sqldb.Open(context.Background(), cfg.Databases.Postgres.URL)
			if err != nil {
				return err
			}
			defer src.Close()

			return mcpserver.Serve(mcpserver.NewSQLServer(src), addr)
		},
	}
	root.Flags().StringVar(&addr, "addr", "", "SSE listen address (empty = stdio)")
	root.Flags().StringVarP(&cfgPath, "config", "c", "", "config file (default is .)")

	if err := root.Execute(); err != nil {
		log.Fatal(err)
	}
}
