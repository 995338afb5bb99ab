package main

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"kanban/api/internal/app"
)

func newStoryCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "story",
		Short: "Manage stories",
	}

	create := &cobra.Command{
		Use:   "create TITLE",
		Short: "Append a story to a status",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			workflow, _ := cmd.Flags().GetString("workflow")
			status, _ := cmd.Flags().GetString("status")
			return withService(cmd.Context(), v, func(svc *app.Service) error {
				story, err := svc.CreateStory(cmd.Context(), workflow, status, strings.Join(args, " "))
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), story)
			})
		},
	}
	create.Flags().String("workflow", "", "workflow id")
	create.Flags().String("status", "", "status id")
	_ = create.MarkFlagRequired("workflow")
	_ = create.MarkFlagRequired("status")

	show := &cobra.Command{
		Use:   "show STORY_ID",
		Short: "Show a story",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), v, func(svc *app.Service) error {
				story, err := svc.GetStory(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), story)
			})
		},
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List the stories of a status in order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			status, _ := cmd.Flags().GetString("status")
			return withService(cmd.Context(), v, func(svc *app.Service) error {
				stories, err := svc.ListStories(cmd.Context(), status)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), stories)
			})
		},
	}
	list.Flags().String("status", "", "status id")
	_ = list.MarkFlagRequired("status")

	reorder := &cobra.Command{
		Use:   "reorder STORY_ID...",
		Short: "Move stories into a status of their workflow",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			workflow, _ := cmd.Flags().GetString("workflow")
			status, _ := cmd.Flags().GetString("status")
			return withService(cmd.Context(), v, func(svc *app.Service) error {
				result, err := svc.ReorderStories(cmd.Context(), workflow, status, args, anchorInput(cmd))
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), result)
			})
		},
	}
	reorder.Flags().String("workflow", "", "workflow id")
	reorder.Flags().String("status", "", "target status id")
	_ = reorder.MarkFlagRequired("workflow")
	_ = reorder.MarkFlagRequired("status")
	addAnchorFlags(reorder)

	rebalance := &cobra.Command{
		Use:   "rebalance",
		Short: "Respace the story orders of a status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			status, _ := cmd.Flags().GetString("status")
			return withService(cmd.Context(), v, func(svc *app.Service) error {
				result, err := svc.RebalanceStories(cmd.Context(), status)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), result)
			})
		},
	}
	rebalance.Flags().String("status", "", "status id")
	_ = rebalance.MarkFlagRequired("status")

	cmd.AddCommand(create, show, list, reorder, rebalance)
	return cmd
}
