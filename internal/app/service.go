package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strings"

	"kanban/api/internal/lock"
	"kanban/api/internal/ordering"
	"kanban/api/internal/store"
	"kanban/api/internal/util"
)

const (
	defaultStatusColor = "#70728f"
	maxSlugLength      = 50
)

var colorPattern = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

// ReorderInput positions moved items next to an existing sibling.
type ReorderInput struct {
	Place string `json:"place"`
	Ref   string `json:"ref"`
}

type dataStore interface {
	Ping(context.Context) error
	CreateWorkflow(context.Context, store.Workflow, int64) (store.Workflow, error)
	GetWorkflow(context.Context, string) (store.Workflow, error)
	GetWorkflowBySlug(context.Context, string, string) (store.Workflow, error)
	ListWorkflows(context.Context, string) ([]store.Workflow, error)
	GetWorkflowDetail(context.Context, string) (store.WorkflowDetail, error)
	DeleteWorkflow(context.Context, string) (bool, error)
	CreateWorkflowStatus(context.Context, store.WorkflowStatus, int64) (store.WorkflowStatus, error)
	GetWorkflowStatus(context.Context, string) (store.WorkflowStatus, error)
	ListWorkflowStatuses(context.Context, string) ([]store.WorkflowStatus, error)
	DeleteWorkflowStatus(context.Context, string) (bool, error)
	CreateStory(context.Context, store.Story, int64) (store.Story, error)
	GetStory(context.Context, string) (store.Story, error)
	ListStories(context.Context, string) ([]store.Story, error)
}

// reorderer is the slice of *ordering.Planner the use cases depend on.
type reorderer interface {
	Lock(ctx context.Context, scope string) (func(), error)
	Reorder(ctx context.Context, req ordering.Request) (ordering.Result, error)
	Rebalance(ctx context.Context, scope string) (ordering.Result, error)
	Offset() ordering.Order
}

type Options struct {
	Locker   ordering.Locker
	Notifier ordering.Notifier
	Offset   ordering.Order
	Logger   *slog.Logger
}

type Service struct {
	store    dataStore
	stories  reorderer
	statuses reorderer
	locker   ordering.Locker
	logger   *slog.Logger
}

// New wires one planner per ordered collection on top of sqlStore. Without a
// Locker scope locks are held in process.
func New(sqlStore *store.SQLStore, opts Options) *Service {
	if opts.Locker == nil {
		opts.Locker = lock.NewLocalLocker()
	}
	plannerOpts := ordering.Options{
		Locker:   opts.Locker,
		Notifier: opts.Notifier,
		Offset:   opts.Offset,
		Logger:   opts.Logger,
	}
	return newService(
		sqlStore,
		ordering.NewPlanner(store.Stories.Name, sqlStore.Ordering(store.Stories), plannerOpts),
		ordering.NewPlanner(store.WorkflowStatuses.Name, sqlStore.Ordering(store.WorkflowStatuses), plannerOpts),
		opts.Locker,
		opts.Logger,
	)
}

func newService(dataStore dataStore, stories, statuses reorderer, locker ordering.Locker, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:    dataStore,
		stories:  stories,
		statuses: statuses,
		locker:   locker,
		logger:   logger,
	}
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) CreateWorkflow(ctx context.Context, projectID, name string) (map[string]any, error) {
	projectID = strings.TrimSpace(projectID)
	workflowName := strings.TrimSpace(name)
	if projectID == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "project is required", nil)
	}
	if workflowName == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "name is required", nil)
	}

	release, err := s.locker.Lock(ctx, "workflows:"+projectID)
	if err != nil {
		return nil, orderingError(err)
	}
	defer release()

	existing, err := s.store.ListWorkflows(ctx, projectID)
	if err != nil {
		return nil, err
	}
	workflow, err := s.store.CreateWorkflow(ctx, store.Workflow{
		ID:        util.NewID("wf"),
		ProjectID: projectID,
		Name:      workflowName,
		Slug:      uniqueSlug(workflowName, existing),
	}, int64(s.statuses.Offset()))
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "workflow created", "project", projectID, "workflow", workflow.ID, "slug", workflow.Slug)
	return workflowView(workflow), nil
}

// uniqueSlug derives a slug from name that no workflow in existing uses.
func uniqueSlug(name string, existing []store.Workflow) string {
	base := util.Slugify(name, maxSlugLength)
	if base == "" {
		base = "workflow"
	}
	taken := make(map[string]struct{}, len(existing))
	for _, workflow := range existing {
		taken[workflow.Slug] = struct{}{}
	}
	slug := base
	for i := 2; ; i++ {
		if _, ok := taken[slug]; !ok {
			return slug
		}
		slug = fmt.Sprintf("%s-%d", base, i)
	}
}

func (s *Service) GetWorkflow(ctx context.Context, workflowID string) (map[string]any, error) {
	detail, err := s.store.GetWorkflowDetail(ctx, workflowID)
	if err != nil {
		return nil, lookupError(err, "workflow", workflowID)
	}
	statuses := make([]map[string]any, 0, len(detail.Statuses))
	for _, status := range detail.Statuses {
		item := statusView(status)
		item["storyCount"] = detail.StoryCounts[status.ID]
		statuses = append(statuses, item)
	}
	view := workflowView(detail.Workflow)
	view["statuses"] = statuses
	return view, nil
}

func (s *Service) ListWorkflows(ctx context.Context, projectID string) ([]map[string]any, error) {
	workflows, err := s.store.ListWorkflows(ctx, strings.TrimSpace(projectID))
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(workflows))
	for _, workflow := range workflows {
		items = append(items, workflowView(workflow))
	}
	return items, nil
}

// DeleteWorkflow removes the workflow. When targetSlug names another workflow
// of the same project, statuses still holding stories are first appended to
// it; otherwise everything the workflow holds is deleted with it.
func (s *Service) DeleteWorkflow(ctx context.Context, workflowID, targetSlug string) error {
	detail, err := s.store.GetWorkflowDetail(ctx, workflowID)
	if err != nil {
		return lookupError(err, "workflow", workflowID)
	}

	if targetSlug = strings.TrimSpace(targetSlug); targetSlug != "" {
		target, err := s.store.GetWorkflowBySlug(ctx, detail.Workflow.ProjectID, targetSlug)
		if err != nil {
			return lookupError(err, "target workflow", targetSlug)
		}
		if target.ID == detail.Workflow.ID {
			return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "target workflow must differ from the deleted one", nil)
		}

		moving := make([]string, 0, len(detail.Statuses))
		for _, status := range detail.Statuses {
			if detail.StoryCounts[status.ID] > 0 {
				moving = append(moving, status.ID)
			}
		}
		if len(moving) > 0 {
			targetStatuses, err := s.store.ListWorkflowStatuses(ctx, target.ID)
			if err != nil {
				return err
			}
			var anchor *ordering.Anchor
			if len(targetStatuses) > 0 {
				anchor = &ordering.Anchor{Place: ordering.PlaceAfter, ItemID: targetStatuses[len(targetStatuses)-1].ID}
			}
			if _, err := s.statuses.Reorder(ctx, ordering.Request{
				Scope:   target.ID,
				ItemIDs: moving,
				Anchor:  anchor,
				Group:   detail.Workflow.ProjectID,
			}); err != nil {
				return orderingError(err)
			}
		}
	}

	deleted, err := s.store.DeleteWorkflow(ctx, workflowID)
	if err != nil {
		return err
	}
	if !deleted {
		return notFound("workflow", workflowID)
	}
	s.logger.InfoContext(ctx, "workflow deleted", "workflow", workflowID, "target", targetSlug)
	return nil
}

func (s *Service) CreateWorkflowStatus(ctx context.Context, workflowID, name, color string) (map[string]any, error) {
	statusName := strings.TrimSpace(name)
	if statusName == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "name is required", nil)
	}
	color = strings.TrimSpace(color)
	if color == "" {
		color = defaultStatusColor
	}
	if !colorPattern.MatchString(color) {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "color must be a #rrggbb value", map[string]any{"color": color})
	}
	workflow, err := s.store.GetWorkflow(ctx, workflowID)
	if err != nil {
		return nil, lookupError(err, "workflow", workflowID)
	}

	release, err := s.statuses.Lock(ctx, workflow.ID)
	if err != nil {
		return nil, orderingError(err)
	}
	defer release()

	status, err := s.store.CreateWorkflowStatus(ctx, store.WorkflowStatus{
		ID:         util.NewID("ws"),
		WorkflowID: workflow.ID,
		Name:       statusName,
		Color:      strings.ToLower(color),
	}, int64(s.statuses.Offset()))
	if err != nil {
		return nil, err
	}
	return statusView(status), nil
}

func (s *Service) ListWorkflowStatuses(ctx context.Context, workflowID string) ([]map[string]any, error) {
	if _, err := s.store.GetWorkflow(ctx, workflowID); err != nil {
		return nil, lookupError(err, "workflow", workflowID)
	}
	statuses, err := s.store.ListWorkflowStatuses(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(statuses))
	for _, status := range statuses {
		items = append(items, statusView(status))
	}
	return items, nil
}

// ReorderWorkflowStatuses moves statuses into workflowID. Statuses may come
// from any workflow of the same project; their stories follow them.
func (s *Service) ReorderWorkflowStatuses(ctx context.Context, workflowID string, statusIDs []string, reorder *ReorderInput) (map[string]any, error) {
	workflow, err := s.store.GetWorkflow(ctx, workflowID)
	if err != nil {
		return nil, lookupError(err, "workflow", workflowID)
	}
	anchor, err := parseAnchor(reorder)
	if err != nil {
		return nil, err
	}
	result, err := s.statuses.Reorder(ctx, ordering.Request{
		Scope:   workflow.ID,
		ItemIDs: statusIDs,
		Anchor:  anchor,
		Group:   workflow.ProjectID,
	})
	if err != nil {
		return nil, orderingError(err)
	}
	return reorderView("workflowId", result, statusIDs, anchor), nil
}

func (s *Service) RebalanceWorkflowStatuses(ctx context.Context, workflowID string) (map[string]any, error) {
	if _, err := s.store.GetWorkflow(ctx, workflowID); err != nil {
		return nil, lookupError(err, "workflow", workflowID)
	}
	result, err := s.statuses.Rebalance(ctx, workflowID)
	if err != nil {
		return nil, orderingError(err)
	}
	return reorderView("workflowId", result, nil, nil), nil
}

// DeleteWorkflowStatus removes the status. With a target status of the same
// workflow its stories are appended there first; without one they are
// deleted.
func (s *Service) DeleteWorkflowStatus(ctx context.Context, statusID, targetStatusID string) error {
	status, err := s.store.GetWorkflowStatus(ctx, statusID)
	if err != nil {
		return lookupError(err, "status", statusID)
	}

	if targetStatusID = strings.TrimSpace(targetStatusID); targetStatusID != "" {
		if targetStatusID == status.ID {
			return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "target status must differ from the deleted one", nil)
		}
		target, err := s.store.GetWorkflowStatus(ctx, targetStatusID)
		if err != nil {
			return lookupError(err, "target status", targetStatusID)
		}
		if target.WorkflowID != status.WorkflowID {
			return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "target status belongs to another workflow", map[string]any{"workflowId": target.WorkflowID})
		}

		stories, err := s.store.ListStories(ctx, status.ID)
		if err != nil {
			return err
		}
		if len(stories) > 0 {
			ids := make([]string, 0, len(stories))
			for _, story := range stories {
				ids = append(ids, story.ID)
			}
			if _, err := s.stories.Reorder(ctx, ordering.Request{
				Scope:   target.ID,
				ItemIDs: ids,
				Group:   status.WorkflowID,
			}); err != nil {
				return orderingError(err)
			}
		}
	}

	deleted, err := s.store.DeleteWorkflowStatus(ctx, statusID)
	if err != nil {
		return err
	}
	if !deleted {
		return notFound("status", statusID)
	}
	s.logger.InfoContext(ctx, "workflow status deleted", "status", statusID, "target", targetStatusID)
	return nil
}

func (s *Service) CreateStory(ctx context.Context, workflowID, statusID, title string) (map[string]any, error) {
	storyTitle := strings.TrimSpace(title)
	if storyTitle == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "title is required", nil)
	}
	workflow, status, err := s.statusInWorkflow(ctx, workflowID, statusID)
	if err != nil {
		return nil, err
	}

	release, err := s.stories.Lock(ctx, status.ID)
	if err != nil {
		return nil, orderingError(err)
	}
	defer release()

	story, err := s.store.CreateStory(ctx, store.Story{
		ID:         util.NewID("st"),
		ProjectID:  workflow.ProjectID,
		WorkflowID: workflow.ID,
		StatusID:   status.ID,
		Title:      storyTitle,
	}, int64(s.stories.Offset()))
	if err != nil {
		return nil, err
	}
	return storyView(story), nil
}

func (s *Service) GetStory(ctx context.Context, storyID string) (map[string]any, error) {
	story, err := s.store.GetStory(ctx, storyID)
	if err != nil {
		return nil, lookupError(err, "story", storyID)
	}
	return storyView(story), nil
}

func (s *Service) ListStories(ctx context.Context, statusID string) ([]map[string]any, error) {
	if _, err := s.store.GetWorkflowStatus(ctx, statusID); err != nil {
		return nil, lookupError(err, "status", statusID)
	}
	stories, err := s.store.ListStories(ctx, statusID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(stories))
	for _, story := range stories {
		items = append(items, storyView(story))
	}
	return items, nil
}

// ReorderStories moves stories of workflowID into statusID, which must belong
// to the same workflow.
func (s *Service) ReorderStories(ctx context.Context, workflowID, statusID string, storyIDs []string, reorder *ReorderInput) (map[string]any, error) {
	workflow, status, err := s.statusInWorkflow(ctx, workflowID, statusID)
	if err != nil {
		return nil, err
	}
	anchor, err := parseAnchor(reorder)
	if err != nil {
		return nil, err
	}
	result, err := s.stories.Reorder(ctx, ordering.Request{
		Scope:   status.ID,
		ItemIDs: storyIDs,
		Anchor:  anchor,
		Group:   workflow.ID,
	})
	if err != nil {
		return nil, orderingError(err)
	}
	return reorderView("statusId", result, storyIDs, anchor), nil
}

func (s *Service) RebalanceStories(ctx context.Context, statusID string) (map[string]any, error) {
	if _, err := s.store.GetWorkflowStatus(ctx, statusID); err != nil {
		return nil, lookupError(err, "status", statusID)
	}
	result, err := s.stories.Rebalance(ctx, statusID)
	if err != nil {
		return nil, orderingError(err)
	}
	return reorderView("statusId", result, nil, nil), nil
}

func (s *Service) statusInWorkflow(ctx context.Context, workflowID, statusID string) (store.Workflow, store.WorkflowStatus, error) {
	workflow, err := s.store.GetWorkflow(ctx, workflowID)
	if err != nil {
		return store.Workflow{}, store.WorkflowStatus{}, lookupError(err, "workflow", workflowID)
	}
	status, err := s.store.GetWorkflowStatus(ctx, statusID)
	if err != nil {
		return store.Workflow{}, store.WorkflowStatus{}, lookupError(err, "status", statusID)
	}
	if status.WorkflowID != workflow.ID {
		return store.Workflow{}, store.WorkflowStatus{}, domainError(
			http.StatusUnprocessableEntity,
			"VALIDATION_ERROR",
			"status does not belong to workflow",
			map[string]any{"statusId": status.ID, "workflowId": workflow.ID},
		)
	}
	return workflow, status, nil
}

func parseAnchor(input *ReorderInput) (*ordering.Anchor, error) {
	if input == nil {
		return nil, nil
	}
	place, err := ordering.ParsePlace(input.Place)
	if err != nil {
		return nil, orderingError(err)
	}
	ref := strings.TrimSpace(input.Ref)
	if ref == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "reorder ref is required", nil)
	}
	return &ordering.Anchor{Place: place, ItemID: ref}, nil
}

func workflowView(workflow store.Workflow) map[string]any {
	return map[string]any{
		"id":        workflow.ID,
		"projectId": workflow.ProjectID,
		"name":      workflow.Name,
		"slug":      workflow.Slug,
		"order":     workflow.SortOrder,
	}
}

func statusView(status store.WorkflowStatus) map[string]any {
	return map[string]any{
		"id":         status.ID,
		"workflowId": status.WorkflowID,
		"name":       status.Name,
		"color":      status.Color,
		"order":      status.SortOrder,
	}
}

func storyView(story store.Story) map[string]any {
	return map[string]any{
		"id":         story.ID,
		"projectId":  story.ProjectID,
		"workflowId": story.WorkflowID,
		"statusId":   story.StatusID,
		"ref":        story.Ref,
		"title":      story.Title,
		"order":      story.SortOrder,
		"version":    story.Version,
	}
}

func reorderView(scopeKey string, result ordering.Result, ids []string, anchor *ordering.Anchor) map[string]any {
	orders := make(map[string]int64, len(result.Moved)+len(result.Shifted))
	for id, order := range result.Orders() {
		orders[id] = int64(order)
	}
	if ids == nil {
		ids = make([]string, 0, len(result.Moved))
		for _, placement := range result.Moved {
			ids = append(ids, placement.ID)
		}
	}
	view := map[string]any{
		scopeKey:  result.Scope,
		"items":   ids,
		"orders":  orders,
		"shifted": len(result.Shifted),
	}
	if anchor != nil {
		view["reorder"] = map[string]any{"place": string(anchor.Place), "ref": anchor.ItemID}
	}
	return view
}
