package main

import (
	"encoding/json"
	"errors"
	"io"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"kanban/api/internal/events"
	"kanban/api/internal/store"
)

func newEventsCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Follow ordering events",
	}

	watch := &cobra.Command{
		Use:   "watch [COLLECTION...]",
		Short: "Print reorder events as they are published",
		Long: `Subscribes to the redis channels of the given collections (stories and
workflow_statuses by default) and prints one JSON event per line until
interrupted. Requires --redis-url or REDIS_URL.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := openRuntime(cmd.Context(), v)
			if err != nil {
				return err
			}
			defer rt.Close()
			if rt.publisher == nil {
				return errors.New("events watch needs a redis url")
			}

			collections := args
			if len(collections) == 0 {
				collections = []string{store.Stories.Name, store.WorkflowStatuses.Name}
			}
			stream, err := rt.publisher.Subscribe(cmd.Context(), collections...)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for event := range stream {
				if err := writeEventLine(out, event); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.AddCommand(watch)
	return cmd
}

func writeEventLine(w io.Writer, event events.Event) error {
	return json.NewEncoder(w).Encode(event)
}
