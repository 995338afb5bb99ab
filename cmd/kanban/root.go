package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// flagKeys binds persistent flags onto config keys.
var flagKeys = map[string]string{
	"db-driver":    "db_driver",
	"database-url": "database_url",
	"sqlite-path":  "sqlite_path",
	"migrations":   "migrations_dir",
	"redis-url":    "redis_url",
	"log-level":    "log_level",
	"log-format":   "log_format",
}

func newRootCmd() *cobra.Command {
	v := viper.New()
	root := &cobra.Command{
		Use:           "kanban",
		Short:         "Ordered workflows, statuses and stories",
		Long:          "kanban manages workflows, their statuses and stories, keeping every list in a stable, user-defined order.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return readConfigFile(cmd, v)
		},
	}

	flags := root.PersistentFlags()
	flags.String("config", "", "config file (default .kanban.yaml)")
	flags.String("db-driver", "", "database driver: postgres or sqlite")
	flags.String("database-url", "", "postgres connection string")
	flags.String("sqlite-path", "", "sqlite database file")
	flags.String("migrations", "", "migrations directory")
	flags.String("redis-url", "", "redis url for scope locks and events")
	flags.String("log-level", "", "debug, info, warn or error")
	flags.String("log-format", "", "text or json")
	for flag, key := range flagKeys {
		_ = v.BindPFlag(key, flags.Lookup(flag))
	}

	root.AddCommand(
		newMigrateCmd(v),
		newWorkflowCmd(v),
		newStatusCmd(v),
		newStoryCmd(v),
		newEventsCmd(v),
	)
	return root
}

func readConfigFile(cmd *cobra.Command, v *viper.Viper) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config %s: %w", cfgFile, err)
		}
		return nil
	}

	v.SetConfigName(".kanban")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("read config: %w", err)
		}
	}
	return nil
}

func newMigrateCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := openRuntime(cmd.Context(), v)
			if err != nil {
				return err
			}
			defer rt.Close()
			return printJSON(cmd.OutOrStdout(), map[string]any{"applied": rt.applied})
		},
	}
}
