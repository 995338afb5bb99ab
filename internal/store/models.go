package store

type Workflow struct {
	ID        string
	ProjectID string
	Name      string
	Slug      string
	SortOrder int64
}

type WorkflowStatus struct {
	ID         string
	WorkflowID string
	Name       string
	Color      string
	SortOrder  int64
}

// Story is ordered inside its status. WorkflowID is denormalised from the
// status and follows it when the status moves to another workflow.
type Story struct {
	ID         string
	ProjectID  string
	WorkflowID string
	StatusID   string
	Ref        int64
	Title      string
	SortOrder  int64
	Version    int
}

// WorkflowDetail carries what a workflow deletion needs to decide.
type WorkflowDetail struct {
	Workflow Workflow
	Statuses []WorkflowStatus
	// StoryCounts is keyed by status id.
	StoryCounts map[string]int
}
