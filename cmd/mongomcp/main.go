package main

import (
	"context"
	"log"

	"github.com/spf13/cobra"

	"github.com/askdb/askdb/config"
	"github.com/askdb/askdb/internal/datasource/mongodb"
	"github.com/askdb/askdb/internal/mcpserver"
)

func main() {
	var cfgPath string
	var addr string
	var root = &cobra.Command{
		Use:   "askdb-mongomcp",
		Short: "Expose a MongoDB database as MCP tools",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(cfgPath)
			if err != nil {
				return err
			}
			src, err := mongodb.Open(context.Background(), cfg.Databases.Mongo.URI, cfg.Databases.Mongo.DBName)
			if err != nil {
				return err
			}
			defer src.Close(context.Background())

			return mcpserver.Serve(mcpserver.NewMongoServer(src, cfg.Agent.SchemaSampleSize), addr)
		},
	}
	root.Flags().StringVar(&addr, "addr", "", "SSE listen address (empty = stdio)")
	root.Flags().StringVarP(&cfgPath, "config", "c", "", "config file (default is .)")

	if err := root.Execute(); err != nil {
		log.Fatal(err)
	}
}
