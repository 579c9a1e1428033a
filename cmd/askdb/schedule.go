package main

import (
	"fmt"
	"strings"

	"github.com/gorhill/cronexpr"
	"github.com/spf13/cobra"

	"github.com/askdb/askdb/config"
	"github.com/askdb/askdb/internal/store"
)

func scheduleCMD() *cobra.Command {
	var schedule = &cobra.Command{
		Use:   "schedule",
		Short: "Manage recurring analyses",
	}
	schedule.AddCommand(scheduleCreateCMD(), scheduleListCMD())
	return schedule
}

func scheduleCreateCMD() *cobra.Command {
	var cfgPath string
	var cronSpec string
	var create = &cobra.Command{
		Use:   "create [question]",
		Short: "Register a recurring question",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			question := strings.Join(args, " ")
			if err := validateCronSpec(cronSpec); err != nil {
				return err
			}
			st, err := openScheduleStore(cmd, cfgPath)
			if err != nil {
				return err
			}
			defer st.Close()

			id, err := st.CreateSchedule(cmd.Context(), question, cronSpec)
			if err != nil {
				return err
			}
			fmt.Printf("schedule %s created (%s)\n", id, cronSpec)
			return nil
		},
	}
	create.Flags().StringVar(&cronSpec, "cron", "@daily", "cron expression, or @daily / @hourly")
	create.Flags().StringVarP(&cfgPath, "config", "c", "", "config file (default is .)")

	return create
}

func scheduleListCMD() *cobra.Command {
	var cfgPath string
	var list = &cobra.Command{
		Use:   "list",
		Short: "List enabled schedules",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openScheduleStore(cmd, cfgPath)
			if err != nil {
				return err
			}
			defer st.Close()

			schedules, err := st.ListSchedules(cmd.Context())
			if err != nil {
				return err
			}
			if len(schedules) == 0 {
				fmt.Println("no schedules")
				return nil
			}
			for _, sc := range schedules {
				last := "never"
				if sc.LastRunAt != nil {
					last = sc.LastRunAt.Format("2006-01-02 15:04")
				}
				fmt.Printf("%s  %-12s  last run %s  %s\n", sc.ID, sc.CronExpr, last, sc.Question)
			}
			return nil
		},
	}
	list.Flags().StringVarP(&cfgPath, "config", "c", "", "config file (default is .)")

	return list
}

func validateCronSpec(cronSpec string) error {
	if cronSpec == "@daily" || cronSpec == "@hourly" {
		return nil
	}
	if _, err := cronexpr.Parse(cronSpec); err != nil {
		return fmt.Errorf("invalid cron expression %q", cronSpec)
	}
	return nil
}

func openScheduleStore(cmd *cobra.Command, cfgPath string) (*store.Store, error) {
	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		return nil, err
	}
	if cfg.Databases.Postgres.URL == "" {
		return nil, fmt.Errorf("postgres not configured (databases.postgres.url)")
	}
	return store.Open(cmd.Context(), cfg.Databases.Postgres.URL)
}
