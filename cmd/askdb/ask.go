package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/askdb/askdb/config"
)

func askCMD() *cobra.Command {
	var cfgPath string
	var noStore bool
	var refreshSchema bool
	var ask = &cobra.Command{
		Use:   "ask [question]",
		Short: "Answer a question against the configured databases",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(cfgPath)
			if err != nil {
				return err
			}
			question := strings.Join(args, " ")

			d, err := buildDeps(cmd.Context(), cfg, !noStore)
			if err != nil {
				return err
			}
			defer d.cleanup()

			if refreshSchema {
				if err := d.orchestrator.RefreshSchemas(cmd.Context()); err != nil {
					return err
				}
			}

			result, err := d.orchestrator.Run(cmd.Context(), question)
			if err != nil {
				return err
			}
			for _, r := range result.Results {
				status := "ok"
				if r.Failed {
					status = "FAILED"
				}
				fmt.Printf("[%s] %s (%s)\n%s\n\n", status, r.Question, r.Target, r.Answer)
			}
			fmt.Printf("report: %s\n", result.ReportPath)
			return nil
		},
	}
	ask.Flags().StringVarP(&cfgPath, "config", "c", "", "config file (default is .)")
	ask.Flags().BoolVar(&noStore, "no-store", false, "skip persisting the run to postgres")
	ask.Flags().BoolVar(&refreshSchema, "refresh-schema", false, "re-introspect datasource schemas before planning")

	return ask
}
