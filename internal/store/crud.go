package store

import (
	"context"
	"database/sql"
	"fmt"
)

// CreateWorkflow appends the workflow to its project: sort_order is the
// current project maximum plus offset, or offset for the first workflow.
func (s *SQLStore) CreateWorkflow(ctx context.Context, workflow Workflow, offset int64) (Workflow, error) {
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		return tx.QueryRowContext(ctx, s.q(`
			INSERT INTO workflows (id, project_id, name, slug, sort_order)
			VALUES (?, ?, ?, ?, COALESCE((SELECT MAX(sort_order) FROM workflows WHERE project_id = ?), 0) + ?)
			RETURNING sort_order
		`), workflow.ID, workflow.ProjectID, workflow.Name, workflow.Slug, workflow.ProjectID, offset).Scan(&workflow.SortOrder)
	})
	if err != nil {
		return Workflow{}, fmt.Errorf("insert workflow: %w", err)
	}
	return workflow, nil
}

func (s *SQLStore) GetWorkflow(ctx context.Context, workflowID string) (Workflow, error) {
	var item Workflow
	err := s.db.QueryRowContext(ctx, s.q(`
		SELECT id, project_id, name, slug, sort_order
		FROM workflows
		WHERE id = ?
	`), workflowID).Scan(&item.ID, &item.ProjectID, &item.Name, &item.Slug, &item.SortOrder)
	if err != nil {
		return Workflow{}, fmt.Errorf("get workflow %s: %w", workflowID, err)
	}
	return item, nil
}

func (s *SQLStore) GetWorkflowBySlug(ctx context.Context, projectID, slug string) (Workflow, error) {
	var item Workflow
	err := s.db.QueryRowContext(ctx, s.q(`
		SELECT id, project_id, name, slug, sort_order
		FROM workflows
		WHERE project_id = ? AND slug = ?
	`), projectID, slug).Scan(&item.ID, &item.ProjectID, &item.Name, &item.Slug, &item.SortOrder)
	if err != nil {
		return Workflow{}, fmt.Errorf("get workflow %s/%s: %w", projectID, slug, err)
	}
	return item, nil
}

func (s *SQLStore) ListWorkflows(ctx context.Context, projectID string) ([]Workflow, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`
		SELECT id, project_id, name, slug, sort_order
		FROM workflows
		WHERE project_id = ?
		ORDER BY sort_order ASC, id ASC
	`), projectID)
	if err != nil {
		return nil, fmt.Errorf("list workflows: %w", err)
	}
	defer rows.Close()

	items := make([]Workflow, 0)
	for rows.Next() {
		var item Workflow
		if err := rows.Scan(&item.ID, &item.ProjectID, &item.Name, &item.Slug, &item.SortOrder); err != nil {
			return nil, fmt.Errorf("scan workflow: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate workflows: %w", err)
	}
	return items, nil
}

// GetWorkflowDetail returns the workflow with its ordered statuses and the
// number of stories in each of them.
func (s *SQLStore) GetWorkflowDetail(ctx context.Context, workflowID string) (WorkflowDetail, error) {
	workflow, err := s.GetWorkflow(ctx, workflowID)
	if err != nil {
		return WorkflowDetail{}, err
	}
	statuses, err := s.ListWorkflowStatuses(ctx, workflowID)
	if err != nil {
		return WorkflowDetail{}, err
	}

	rows, err := s.db.QueryContext(ctx, s.q(`
		SELECT status_id, COUNT(*)
		FROM stories
		WHERE workflow_id = ?
		GROUP BY status_id
	`), workflowID)
	if err != nil {
		return WorkflowDetail{}, fmt.Errorf("count workflow stories: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int, len(statuses))
	for rows.Next() {
		var statusID string
		var count int
		if err := rows.Scan(&statusID, &count); err != nil {
			return WorkflowDetail{}, fmt.Errorf("scan story count: %w", err)
		}
		counts[statusID] = count
	}
	if err := rows.Err(); err != nil {
		return WorkflowDetail{}, fmt.Errorf("iterate story counts: %w", err)
	}
	return WorkflowDetail{Workflow: workflow, Statuses: statuses, StoryCounts: counts}, nil
}

// DeleteWorkflow removes the workflow together with the statuses and stories
// it still holds.
func (s *SQLStore) DeleteWorkflow(ctx context.Context, workflowID string) (bool, error) {
	var deleted bool
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, s.q(`DELETE FROM stories WHERE workflow_id = ?`), workflowID); err != nil {
			return fmt.Errorf("delete workflow stories: %w", err)
		}
		if _, err := tx.ExecContext(ctx, s.q(`DELETE FROM workflow_statuses WHERE workflow_id = ?`), workflowID); err != nil {
			return fmt.Errorf("delete workflow statuses: %w", err)
		}
		res, err := tx.ExecContext(ctx, s.q(`DELETE FROM workflows WHERE id = ?`), workflowID)
		if err != nil {
			return fmt.Errorf("delete workflow: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("delete workflow: %w", err)
		}
		deleted = n > 0
		return nil
	})
	return deleted, err
}

func (s *SQLStore) CreateWorkflowStatus(ctx context.Context, status WorkflowStatus, offset int64) (WorkflowStatus, error) {
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		return tx.QueryRowContext(ctx, s.q(`
			INSERT INTO workflow_statuses (id, workflow_id, name, color, sort_order)
			VALUES (?, ?, ?, ?, COALESCE((SELECT MAX(sort_order) FROM workflow_statuses WHERE workflow_id = ?), 0) + ?)
			RETURNING sort_order
		`), status.ID, status.WorkflowID, status.Name, status.Color, status.WorkflowID, offset).Scan(&status.SortOrder)
	})
	if err != nil {
		return WorkflowStatus{}, fmt.Errorf("insert workflow status: %w", err)
	}
	return status, nil
}

func (s *SQLStore) GetWorkflowStatus(ctx context.Context, statusID string) (WorkflowStatus, error) {
	var item WorkflowStatus
	err := s.db.QueryRowContext(ctx, s.q(`
		SELECT id, workflow_id, name, color, sort_order
		FROM workflow_statuses
		WHERE id = ?
	`), statusID).Scan(&item.ID, &item.WorkflowID, &item.Name, &item.Color, &item.SortOrder)
	if err != nil {
		return WorkflowStatus{}, fmt.Errorf("get workflow status %s: %w", statusID, err)
	}
	return item, nil
}

func (s *SQLStore) ListWorkflowStatuses(ctx context.Context, workflowID string) ([]WorkflowStatus, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`
		SELECT id, workflow_id, name, color, sort_order
		FROM workflow_statuses
		WHERE workflow_id = ?
		ORDER BY sort_order ASC, id ASC
	`), workflowID)
	if err != nil {
		return nil, fmt.Errorf("list workflow statuses: %w", err)
	}
	defer rows.Close()

	items := make([]WorkflowStatus, 0)
	for rows.Next() {
		var item WorkflowStatus
		if err := rows.Scan(&item.ID, &item.WorkflowID, &item.Name, &item.Color, &item.SortOrder); err != nil {
			return nil, fmt.Errorf("scan workflow status: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate workflow statuses: %w", err)
	}
	return items, nil
}

// DeleteWorkflowStatus removes the status and the stories it still holds.
func (s *SQLStore) DeleteWorkflowStatus(ctx context.Context, statusID string) (bool, error) {
	var deleted bool
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, s.q(`DELETE FROM stories WHERE status_id = ?`), statusID); err != nil {
			return fmt.Errorf("delete status stories: %w", err)
		}
		res, err := tx.ExecContext(ctx, s.q(`DELETE FROM workflow_statuses WHERE id = ?`), statusID)
		if err != nil {
			return fmt.Errorf("delete workflow status: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("delete workflow status: %w", err)
		}
		deleted = n > 0
		return nil
	})
	return deleted, err
}

// CreateStory appends the story to its status and gives it the next
// project-wide ref.
func (s *SQLStore) CreateStory(ctx context.Context, story Story, offset int64) (Story, error) {
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		return tx.QueryRowContext(ctx, s.q(`
			INSERT INTO stories (id, project_id, workflow_id, status_id, ref, title, sort_order)
			VALUES (
				?, ?, ?, ?,
				COALESCE((SELECT MAX(ref) FROM stories WHERE project_id = ?), 0) + 1,
				?,
				COALESCE((SELECT MAX(sort_order) FROM stories WHERE status_id = ?), 0) + ?
			)
			RETURNING ref, sort_order, version
		`), story.ID, story.ProjectID, story.WorkflowID, story.StatusID,
			story.ProjectID,
			story.Title,
			story.StatusID, offset,
		).Scan(&story.Ref, &story.SortOrder, &story.Version)
	})
	if err != nil {
		return Story{}, fmt.Errorf("insert story: %w", err)
	}
	return story, nil
}

func (s *SQLStore) GetStory(ctx context.Context, storyID string) (Story, error) {
	var item Story
	err := s.db.QueryRowContext(ctx, s.q(`
		SELECT id, project_id, workflow_id, status_id, ref, title, sort_order, version
		FROM stories
		WHERE id = ?
	`), storyID).Scan(&item.ID, &item.ProjectID, &item.WorkflowID, &item.StatusID, &item.Ref, &item.Title, &item.SortOrder, &item.Version)
	if err != nil {
		return Story{}, fmt.Errorf("get story %s: %w", storyID, err)
	}
	return item, nil
}

func (s *SQLStore) ListStories(ctx context.Context, statusID string) ([]Story, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`
		SELECT id, project_id, workflow_id, status_id, ref, title, sort_order, version
		FROM stories
		WHERE status_id = ?
		ORDER BY sort_order ASC, id ASC
	`), statusID)
	if err != nil {
		return nil, fmt.Errorf("list stories: %w", err)
	}
	defer rows.Close()

	items := make([]Story, 0)
	for rows.Next() {
		var item Story
		if err := rows.Scan(&item.ID, &item.ProjectID, &item.WorkflowID, &item.StatusID, &item.Ref, &item.Title, &item.SortOrder, &item.Version); err != nil {
			return nil, fmt.Errorf("scan story: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stories: %w", err)
	}
	return items, nil
}
