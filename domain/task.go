package domain

import (
	"strings"
	"time"
)

// Priority ranks how urgent a task is.
type Priority string

const (
	PriorityLow    Priority = "Low"
	PriorityMedium Priority = "Medium"
	PriorityHigh   Priority = "High"
)

// Valid reports whether p is one of the known priorities.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// Category classifies the kind of work a task tracks.
type Category string

const (
	CategoryBug         Category = "Bug"
	CategoryFeature     Category = "Feature"
	CategoryEnhancement Category = "Enhancement"
)

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	switch c {
	case CategoryBug, CategoryFeature, CategoryEnhancement:
		return true
	}
	return false
}

// Attachment references a file stored outside the board.
type Attachment struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	MediaType string `json:"type"`
	Size      int64  `json:"size"`
	URL       string `json:"url"`
}

// Task represents a single board item.
type Task struct {
	ID          string       `json:"id"`
	Title       string       `json:"title"`
	Description string       `json:"description,omitempty"`
	Priority    Priority     `json:"priority"`
	Category    Category     `json:"category"`
	Status      string       `json:"status"`
	Attachments []Attachment `json:"attachments"`
	CreatedAt   time.Time    `json:"createdAt"`
	UpdatedAt   *time.Time   `json:"updatedAt,omitempty"`
}

// Clone returns a copy of t that shares no mutable state with it.
func (t Task) Clone() Task {
	out := t
	out.Attachments = append([]Attachment{}, t.Attachments...)
	if t.UpdatedAt != nil {
		ts := *t.UpdatedAt
		out.UpdatedAt = &ts
	}
	return out
}

// TaskPatch carries the mutable fields of an update; nil fields are left untouched.
type TaskPatch struct {
	Title       *string
	Description *string
	Priority    *Priority
	Category    *Category
}

// Empty reports whether the patch changes nothing.
func (p TaskPatch) Empty() bool {
	return p.Title == nil && p.Description == nil && p.Priority == nil && p.Category == nil
}

// Merge applies the patch fields onto t.
func (p TaskPatch) Merge(t *Task) {
	if p.Title != nil {
		t.Title = strings.TrimSpace(*p.Title)
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.Priority != nil {
		t.Priority = *p.Priority
	}
	if p.Category != nil {
		t.Category = *p.Category
	}
}
