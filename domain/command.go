package domain

import (
	"strings"

	"github.com/bytedance/sonic"
)

// Inbound command types.
const (
	CreateTaskCommand = "task:create"
	UpdateTaskCommand = "task:update"
	EditTaskCommand   = "task:edit"
	MoveTaskCommand   = "task:move"
	DeleteTaskCommand = "task:delete"
	SyncBoardCommand  = "board:sync"
	SyncTasksCommand  = "sync:tasks"
)

// Command is a mutation request received from a connection.
type Command struct {
	Type string `json:"type"`
	// RequestID doubles as the idempotency key and is echoed on the resulting event.
	RequestID string                 `json:"requestId,omitempty"`
	Data      sonic.NoCopyRawMessage `json:"data,omitempty"`
}

// CreateTask asks for a new task; Column falls back to Status and then to the
// board's initial column.
type CreateTask struct {
	ID          string       `json:"id,omitempty"`
	Title       string       `json:"title"`
	Description string       `json:"description,omitempty"`
	Priority    Priority     `json:"priority,omitempty"`
	Category    Category     `json:"category,omitempty"`
	Column      string       `json:"column,omitempty"`
	Status      string       `json:"status,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// Validate checks the structural requirements of a create request.
func (r CreateTask) Validate() error {
	if strings.TrimSpace(r.Title) == "" {
		return Validationf("title is required")
	}
	if r.Priority != "" && !r.Priority.Valid() {
		return Validationf("unknown priority %q", r.Priority)
	}
	if r.Category != "" && !r.Category.Valid() {
		return Validationf("unknown category %q", r.Category)
	}
	return nil
}

// Task builds the record to insert.
func (r CreateTask) Task() Task {
	t := Task{
		ID:          strings.TrimSpace(r.ID),
		Title:       strings.TrimSpace(r.Title),
		Description: r.Description,
		Priority:    r.Priority,
		Category:    r.Category,
		Attachments: append([]Attachment{}, r.Attachments...),
	}
	if t.Priority == "" {
		t.Priority = PriorityMedium
	}
	if t.Category == "" {
		t.Category = CategoryFeature
	}
	return t
}

// TargetColumn resolves the requested column, defaulting to initial.
func (r CreateTask) TargetColumn(initial string) string {
	if r.Column != "" {
		return r.Column
	}
	if r.Status != "" {
		return r.Status
	}
	return initial
}

// UpdateTask changes any subset of a task's mutable fields.
type UpdateTask struct {
	ID          string    `json:"id"`
	Title       *string   `json:"title,omitempty"`
	Description *string   `json:"description,omitempty"`
	Priority    *Priority `json:"priority,omitempty"`
	Category    *Category `json:"category,omitempty"`
}

// Validate requires a task id and rejects blank titles or unknown enum values.
func (r UpdateTask) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return Validationf("task id is required")
	}
	if r.Title != nil && strings.TrimSpace(*r.Title) == "" {
		return Validationf("title cannot be empty")
	}
	if r.Priority != nil && !r.Priority.Valid() {
		return Validationf("unknown priority %q", *r.Priority)
	}
	if r.Category != nil && !r.Category.Valid() {
		return Validationf("unknown category %q", *r.Category)
	}
	return nil
}

// Patch extracts the field changes.
func (r UpdateTask) Patch() TaskPatch {
	return TaskPatch{Title: r.Title, Description: r.Description, Priority: r.Priority, Category: r.Category}
}

// MoveTask relocates a task to the tail of another column.
type MoveTask struct {
	TaskID     string `json:"taskId"`
	FromColumn string `json:"fromColumn"`
	ToColumn   string `json:"toColumn"`
}

// Validate requires the task id and both columns.
func (r MoveTask) Validate() error {
	switch {
	case strings.TrimSpace(r.TaskID) == "":
		return Validationf("task id is required")
	case r.FromColumn == "":
		return Validationf("source column is required")
	case r.ToColumn == "":
		return Validationf("destination column is required")
	}
	return nil
}

// DeleteTask removes a task from a column.
type DeleteTask struct {
	TaskID string `json:"taskId"`
	Column string `json:"column"`
}

// Validate requires the task id and its column.
func (r DeleteTask) Validate() error {
	switch {
	case strings.TrimSpace(r.TaskID) == "":
		return Validationf("task id is required")
	case r.Column == "":
		return Validationf("column is required")
	}
	return nil
}

// AttachFile records an already stored attachment on a task.
type AttachFile struct {
	TaskID     string
	Column     string
	Attachment Attachment
}

// Validate requires the task, its column and a stored attachment.
func (r AttachFile) Validate() error {
	switch {
	case strings.TrimSpace(r.TaskID) == "":
		return Validationf("task id is required")
	case r.Column == "":
		return Validationf("column is required")
	case r.Attachment.ID == "":
		return Validationf("attachment id is required")
	}
	return nil
}
