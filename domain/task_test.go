package domain

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/bytedance/sonic"
)

func TestTaskMarshalIncludesEmptyAttachments(t *testing.T) {
	task := Task{ID: "t1", Title: "Title", Priority: PriorityLow, Category: CategoryBug, Status: ColumnToDo, Attachments: []Attachment{}}

	payload, err := sonic.Marshal(task)
	if err != nil {
		t.Fatalf("marshal task: %v", err)
	}

	if !strings.Contains(string(payload), "\"attachments\":[]") {
		t.Fatalf("expected attachments field to be present, got %s", payload)
	}
	if strings.Contains(string(payload), "updatedAt") {
		t.Fatalf("expected updatedAt to be omitted before first update, got %s", payload)
	}
}

func TestTaskCloneDoesNotShareState(t *testing.T) {
	now := time.Now()
	orig := Task{ID: "t1", Attachments: []Attachment{{ID: "a1"}}, UpdatedAt: &now}
	cp := orig.Clone()
	cp.Attachments[0].ID = "changed"
	*cp.UpdatedAt = now.Add(time.Hour)

	if orig.Attachments[0].ID != "a1" {
		t.Fatalf("clone shares attachments slice")
	}
	if !orig.UpdatedAt.Equal(now) {
		t.Fatalf("clone shares updatedAt pointer")
	}
}

func TestCreateTaskValidate(t *testing.T) {
	tests := map[string]struct {
		req     CreateTask
		wantErr bool
	}{
		"ok":               {req: CreateTask{Title: "Write spec"}},
		"blank title":      {req: CreateTask{Title: "   "}, wantErr: true},
		"bad priority":     {req: CreateTask{Title: "x", Priority: "Urgent"}, wantErr: true},
		"bad category":     {req: CreateTask{Title: "x", Category: "Chore"}, wantErr: true},
		"explicit choices": {req: CreateTask{Title: "x", Priority: PriorityHigh, Category: CategoryEnhancement}},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.wantErr && !errors.Is(err, ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestCreateTaskDefaults(t *testing.T) {
	req := CreateTask{Title: "  Write spec  "}
	task := req.Task()
	if task.Title != "Write spec" {
		t.Fatalf("expected trimmed title, got %q", task.Title)
	}
	if task.Priority != PriorityMedium || task.Category != CategoryFeature {
		t.Fatalf("unexpected defaults: %s/%s", task.Priority, task.Category)
	}
	if got := req.TargetColumn(ColumnToDo); got != ColumnToDo {
		t.Fatalf("expected initial column, got %q", got)
	}
	if got := (CreateTask{Status: ColumnDone}).TargetColumn(ColumnToDo); got != ColumnDone {
		t.Fatalf("expected status to select column, got %q", got)
	}
	if got := (CreateTask{Status: ColumnDone, Column: ColumnInProgress}).TargetColumn(ColumnToDo); got != ColumnInProgress {
		t.Fatalf("expected explicit column to win, got %q", got)
	}
}

func TestUpdateTaskValidate(t *testing.T) {
	empty := " "
	bad := Priority("Urgent")
	if err := (UpdateTask{}).Validate(); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected missing id to fail, got %v", err)
	}
	if err := (UpdateTask{ID: "t1", Title: &empty}).Validate(); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected empty title to fail, got %v", err)
	}
	if err := (UpdateTask{ID: "t1", Priority: &bad}).Validate(); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected bad priority to fail, got %v", err)
	}
}

func TestCode(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{err: Validationf("x"), want: CodeValidation},
		{err: ErrDuplicateTask, want: CodeDuplicateTask},
		{err: ErrInvalidColumn, want: CodeInvalidColumn},
		{err: ErrTaskNotFound, want: CodeTaskNotFound},
		{err: ErrDuplicateRequest, want: CodeDuplicateRequest},
		{err: errors.New("boom"), want: CodeInternal},
	}
	for _, tt := range tests {
		if got := Code(tt.err); got != tt.want {
			t.Fatalf("Code(%v) = %s, want %s", tt.err, got, tt.want)
		}
	}
}
