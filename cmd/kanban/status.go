package main

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"kanban/api/internal/app"
)

func newStatusCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Manage the statuses of a workflow",
	}

	create := &cobra.Command{
		Use:   "create NAME",
		Short: "Append a status to a workflow",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			workflow, _ := cmd.Flags().GetString("workflow")
			color, _ := cmd.Flags().GetString("color")
			return withService(cmd.Context(), v, func(svc *app.Service) error {
				status, err := svc.CreateWorkflowStatus(cmd.Context(), workflow, strings.Join(args, " "), color)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), status)
			})
		},
	}
	create.Flags().String("workflow", "", "workflow id")
	create.Flags().String("color", "", "#rrggbb color")
	_ = create.MarkFlagRequired("workflow")

	list := &cobra.Command{
		Use:   "list",
		Short: "List the statuses of a workflow in order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			workflow, _ := cmd.Flags().GetString("workflow")
			return withService(cmd.Context(), v, func(svc *app.Service) error {
				statuses, err := svc.ListWorkflowStatuses(cmd.Context(), workflow)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), statuses)
			})
		},
	}
	list.Flags().String("workflow", "", "workflow id")
	_ = list.MarkFlagRequired("workflow")

	reorder := &cobra.Command{
		Use:   "reorder STATUS_ID...",
		Short: "Move statuses into a workflow of the same project",
		Long: `Moves the given statuses, in the given sequence, into --workflow. Without
--before or --after they are appended. Statuses coming from another workflow
take their stories with them.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			workflow, _ := cmd.Flags().GetString("workflow")
			return withService(cmd.Context(), v, func(svc *app.Service) error {
				result, err := svc.ReorderWorkflowStatuses(cmd.Context(), workflow, args, anchorInput(cmd))
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), result)
			})
		},
	}
	reorder.Flags().String("workflow", "", "target workflow id")
	_ = reorder.MarkFlagRequired("workflow")
	addAnchorFlags(reorder)

	rebalance := &cobra.Command{
		Use:   "rebalance",
		Short: "Respace the status orders of a workflow",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			workflow, _ := cmd.Flags().GetString("workflow")
			return withService(cmd.Context(), v, func(svc *app.Service) error {
				result, err := svc.RebalanceWorkflowStatuses(cmd.Context(), workflow)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), result)
			})
		},
	}
	rebalance.Flags().String("workflow", "", "workflow id")
	_ = rebalance.MarkFlagRequired("workflow")

	remove := &cobra.Command{
		Use:   "delete STATUS_ID",
		Short: "Delete a status, optionally moving its stories to another one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, _ := cmd.Flags().GetString("move-to")
			return withService(cmd.Context(), v, func(svc *app.Service) error {
				if err := svc.DeleteWorkflowStatus(cmd.Context(), args[0], target); err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), map[string]any{"deleted": args[0]})
			})
		},
	}
	remove.Flags().String("move-to", "", "status of the same workflow receiving the stories")

	cmd.AddCommand(create, list, reorder, rebalance, remove)
	return cmd
}
