package asana

// Workspace is an Asana workspace or organization.
type Workspace struct {
	GID  string `json:"gid"`
	Name string `json:"name"`
}

// Project is a project within a workspace.
type Project struct {
	GID  string `json:"gid"`
	Name string `json:"name"`
}

// Section is a column or section within a project.
type Section struct {
	GID  string `json:"gid"`
	Name string `json:"name"`
}

// Tag is a workspace-level tag.
type Tag struct {
	GID   string `json:"gid"`
	Name  string `json:"name"`
	Color string `json:"color,omitempty"`
}

// User is a workspace member.
type User struct {
	GID   string `json:"gid"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}

// Task is a created task as returned by the API.
type Task struct {
	GID          string `json:"gid"`
	Name         string `json:"name"`
	PermalinkURL string `json:"permalink_url,omitempty"`
}

// TaskInput is the input for creating a task.
type TaskInput struct {
	Name         string
	Notes        string
	WorkspaceGID string
	ProjectGID   string
	SectionGID   string
	AssigneeGID  string
	// DueOn is a date-only due date (YYYY-MM-DD). Ignored when DueAt is
	// set; the two are mutually exclusive in the API.
	DueOn string
	// DueAt is a due date with time (RFC 3339).
	DueAt   string
	TagGIDs []string
}

// membership pairs a project with a section for task placement.
type membership struct {
	Project string `json:"project"`
	Section string `json:"section"`
}

// buildTaskPayload constructs the create-task request body from input.
// Field rules: notes only when non-empty; a section is expressed as a
// one-element memberships array pairing project and section; tags only when
// non-empty; assignee only when present; due_at wins over due_on.
func buildTaskPayload(input TaskInput) map[string]any {
	data := map[string]any{
		"name":      input.Name,
		"workspace": input.WorkspaceGID,
	}
	if input.Notes != "" {
		data["notes"] = input.Notes
	}
	if input.SectionGID != "" {
		data["memberships"] = []membership{{
			Project: input.ProjectGID,
			Section: input.SectionGID,
		}}
	} else if input.ProjectGID != "" {
		data["projects"] = []string{input.ProjectGID}
	}
	if len(input.TagGIDs) > 0 {
		data["tags"] = input.TagGIDs
	}
	if input.AssigneeGID != "" {
		data["assignee"] = input.AssigneeGID
	}
	switch {
	case input.DueAt != "":
		data["due_at"] = input.DueAt
	case input.DueOn != "":
		data["due_on"] = input.DueOn
	}
	return data
}
