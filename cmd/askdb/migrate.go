package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/askdb/askdb/config"
	"github.com/askdb/askdb/internal/store"
)

func migrateCMD() *cobra.Command {
	var cfgPath string
	var source string
	var migrate = &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(cfgPath)
			if err != nil {
				return err
			}
			if cfg.Databases.Postgres.URL == "" {
				return fmt.Errorf("postgres not configured (databases.postgres.url)")
			}
			return store.Migrate(source, cfg.Databases.Postgres.URL)
		},
	}
	migrate.Flags().StringVar(&source, "dir", "file://migrations", "migrations source")
	migrate.Flags().StringVarP(&cfgPath, "config", "c", "", "config file (default is .)")

	return migrate
}
