package store

// Collection describes how an orderable table maps onto ordering items.
type Collection struct {
	Name        string
	table       string
	scopeColumn string
	// from exposes the row as t; group is evaluated against it.
	from  string
	group string
	// lockFor is the Postgres row-locking clause for from.
	lockFor   string
	versioned bool
	// cascade keeps back-references in step with a scope change. It receives
	// the new scope and the item id.
	cascade string
}

var (
	// Stories are ordered inside a status; they never leave their workflow
	// through a reorder.
	Stories = Collection{
		Name:        "stories",
		table:       "stories",
		scopeColumn: "status_id",
		from:        "stories t",
		group:       "t.workflow_id",
		lockFor:     "FOR UPDATE",
		versioned:   true,
	}

	// WorkflowStatuses are ordered inside a workflow and may move to another
	// workflow of the same project, taking their stories along.
	WorkflowStatuses = Collection{
		Name:        "workflow_statuses",
		table:       "workflow_statuses",
		scopeColumn: "workflow_id",
		from:        "workflow_statuses t JOIN workflows w ON w.id = t.workflow_id",
		group:       "w.project_id",
		lockFor:     "FOR UPDATE OF t",
		cascade:     "UPDATE stories SET workflow_id = ?, updated_at = CURRENT_TIMESTAMP WHERE status_id = ?",
	}
)

func (c Collection) selectItems() string {
	return "SELECT t.id, t." + c.scopeColumn + ", " + c.group + ", t.sort_order FROM " + c.from
}
