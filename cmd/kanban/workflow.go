package main

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"kanban/api/internal/app"
)

func newWorkflowCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workflow",
		Short: "Manage the workflows of a project",
	}

	create := &cobra.Command{
		Use:   "create NAME",
		Short: "Append a workflow to a project",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			project, _ := cmd.Flags().GetString("project")
			return withService(cmd.Context(), v, func(svc *app.Service) error {
				workflow, err := svc.CreateWorkflow(cmd.Context(), project, strings.Join(args, " "))
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), workflow)
			})
		},
	}
	create.Flags().String("project", "", "project id")
	_ = create.MarkFlagRequired("project")

	list := &cobra.Command{
		Use:   "list",
		Short: "List the workflows of a project in order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			project, _ := cmd.Flags().GetString("project")
			return withService(cmd.Context(), v, func(svc *app.Service) error {
				workflows, err := svc.ListWorkflows(cmd.Context(), project)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), workflows)
			})
		},
	}
	list.Flags().String("project", "", "project id")
	_ = list.MarkFlagRequired("project")

	show := &cobra.Command{
		Use:   "show WORKFLOW_ID",
		Short: "Show a workflow with its statuses and story counts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), v, func(svc *app.Service) error {
				workflow, err := svc.GetWorkflow(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), workflow)
			})
		},
	}

	remove := &cobra.Command{
		Use:   "delete WORKFLOW_ID",
		Short: "Delete a workflow, optionally moving its statuses to another one",
		Long: `Deletes a workflow. With --move-to, statuses that still hold stories are
appended to the workflow with that slug first; without it every status and
story of the workflow is deleted.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, _ := cmd.Flags().GetString("move-to")
			return withService(cmd.Context(), v, func(svc *app.Service) error {
				if err := svc.DeleteWorkflow(cmd.Context(), args[0], target); err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), map[string]any{"deleted": args[0]})
			})
		},
	}
	remove.Flags().String("move-to", "", "slug of the workflow receiving non-empty statuses")

	cmd.AddCommand(create, list, show, remove)
	return cmd
}

// addAnchorFlags registers --before/--after; at most one may be given.
func addAnchorFlags(cmd *cobra.Command) {
	cmd.Flags().String("before", "", "place the items before this sibling")
	cmd.Flags().String("after", "", "place the items after this sibling")
	cmd.MarkFlagsMutuallyExclusive("before", "after")
}

// anchorInput reads --before/--after; neither means append.
func anchorInput(cmd *cobra.Command) *app.ReorderInput {
	if before, _ := cmd.Flags().GetString("before"); before != "" {
		return &app.ReorderInput{Place: "before", Ref: before}
	}
	if after, _ := cmd.Flags().GetString("after"); after != "" {
		return &app.ReorderInput{Place: "after", Ref: after}
	}
	return nil
}
