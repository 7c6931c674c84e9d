package main

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bytedance/sonic"
	"github.com/sirupsen/logrus/hooks/test"

	"kanban-sync/domain"
)

func TestReplicaAppliesEventsInOrder(t *testing.T) {
	logger, hook := test.NewNullLogger()
	r := newReplica(context.Background(), domain.DefaultColumns(), nil, logger)

	task := domain.Task{ID: "t1", Title: "write docs", Status: domain.ColumnToDo}
	r.handle(context.Background(), domain.Event{Seq: 1, Type: domain.TaskCreated, Task: &task, Column: domain.ColumnToDo})
	r.handle(context.Background(), domain.Event{Seq: 2, Type: domain.TaskMoved, TaskID: "t1", FromColumn: domain.ColumnToDo, ToColumn: domain.ColumnDone})

	if r.board.Seq != 2 || len(r.board.Columns[domain.ColumnDone]) != 1 {
		t.Fatalf("unexpected replica %+v", r.board)
	}
	if n := len(hook.AllEntries()); n != 2 {
		t.Fatalf("expected 2 log entries, got %d", n)
	}
}

func TestReplicaReloadsOnGap(t *testing.T) {
	logger, _ := test.NewNullLogger()
	fresh := domain.NewBoard(domain.DefaultColumns())
	fresh.Seq = 5
	fresh.Columns[domain.ColumnDone] = []domain.Task{{ID: "x", Title: "done", Status: domain.ColumnDone}}
	calls := 0
	fetch := func(context.Context) (domain.Board, error) {
		calls++
		if calls == 1 {
			b := domain.NewBoard(domain.DefaultColumns())
			b.Seq = 1
			return b, nil
		}
		return fresh, nil
	}
	r := newReplica(context.Background(), domain.DefaultColumns(), fetch, logger)

	r.handle(context.Background(), domain.Event{Seq: 4, Type: domain.TaskDeleted, TaskID: "gone", Column: domain.ColumnToDo})
	if calls != 2 {
		t.Fatalf("expected a reload on gap, fetched %d times", calls)
	}
	if r.board.Seq != 5 || r.board.Count() != 1 {
		t.Fatalf("expected reloaded board, got %+v", r.board)
	}
}

func TestReplicaKeepsBoardWhenFetchFails(t *testing.T) {
	logger, hook := test.NewNullLogger()
	fetch := func(context.Context) (domain.Board, error) { return domain.Board{}, errors.New("offline") }
	r := newReplica(context.Background(), domain.DefaultColumns(), fetch, logger)
	if r.board.Seq != 0 || len(r.board.ColumnOrder) != 3 {
		t.Fatalf("unexpected board %+v", r.board)
	}
	if entry := hook.LastEntry(); entry == nil || entry.Message != "snapshot fetch failed, keeping local replica" {
		t.Fatalf("expected fetch warning, got %#v", entry)
	}
}

func TestHTTPSnapshot(t *testing.T) {
	want := domain.NewBoard(domain.DefaultColumns())
	want.Seq = 7
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/board" {
			http.NotFound(w, r)
			return
		}
		body, _ := sonic.Marshal(want)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	got, err := httpSnapshot(srv.Client(), srv.URL+"/api/board")(context.Background())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if got.Seq != 7 || len(got.ColumnOrder) != 3 {
		t.Fatalf("unexpected board %+v", got)
	}

	if _, err := httpSnapshot(srv.Client(), srv.URL+"/missing")(context.Background()); err == nil {
		t.Fatal("expected error for non-200 response")
	}
}
