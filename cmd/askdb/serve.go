package main

import (
	"log"

	"github.com/spf13/cobra"

	"github.com/askdb/askdb/config"
	"github.com/askdb/askdb/internal/server"
)

func serveCMD() *cobra.Command {
	var cfgPath string
	var serveAddr string
	var serve = &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server and scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(cfgPath)
			if err != nil {
				return err
			}
			if serveAddr != "" {
				cfg.Server.Address = serveAddr
			}

			d, err := buildDeps(cmd.Context(), cfg, true)
			if err != nil {
				return err
			}
			defer d.cleanup()

			srv, err := server.New(cfg, nil, d.store, d.index, d.telemetry, d.orchestrator)
			if err != nil {
				return err
			}

			if cfg.Schedule.Enabled {
				sched := &server.Scheduler{
					Store:    d.store,
					Rdb:      d.redis,
					Runner:   d.orchestrator,
					Interval: cfg.Schedule.TickInterval,
					Logger:   log.New(log.Writer(), "[SCHED] ", log.LstdFlags),
				}
				sched.Start()
				defer sched.Shutdown()
			}

			return srv.Run()
		},
	}
	serve.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides config)")
	serve.Flags().StringVarP(&cfgPath, "config", "c", "", "config file (default is .)")

	return serve
}
