// Package mutation validates client requests, applies them to the board and
// publishes the resulting change events.
package mutation

import (
	"context"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	log "github.com/sirupsen/logrus"

	"kanban-sync/domain"
)

// Board is the authoritative state the processor mutates.
type Board interface {
	Columns() []string
	HasColumn(name string) bool
	ApplyCreate(column string, task domain.Task) (domain.Task, uint64, error)
	ApplyUpdate(id string, patch domain.TaskPatch) (domain.Task, string, uint64, error)
	ApplyMove(id, from, to string) (domain.Task, uint64, error)
	ApplyDelete(id, column string) (domain.Task, uint64, error)
	ApplyAttach(id, column string, att domain.Attachment) (domain.Task, uint64, error)
}

// Publisher receives every committed change event.
type Publisher interface {
	Publish(ev domain.Event)
}

// Processor is the single write path to the board. Every accepted mutation
// is applied once and published with the sequence the store assigned it.
type Processor struct {
	board         Board
	publisher     Publisher
	deduper       Deduper
	logger        *log.Logger
	initialColumn string
	now           func() time.Time
}

// Option customises a Processor.
type Option func(*Processor)

// WithDeduper enables request id deduplication.
func WithDeduper(d Deduper) Option {
	return func(p *Processor) { p.deduper = d }
}

// WithInitialColumn sets the column used when a create names none.
func WithInitialColumn(column string) Option {
	return func(p *Processor) { p.initialColumn = column }
}

// WithClock overrides the time source stamped on events.
func WithClock(now func() time.Time) Option {
	return func(p *Processor) { p.now = now }
}

// NewProcessor builds a processor over board. It fails when the initial
// column is not one of the board's columns.
func NewProcessor(board Board, publisher Publisher, logger *log.Logger, opts ...Option) (*Processor, error) {
	if board == nil {
		panic("board is required")
	}
	if publisher == nil {
		panic("publisher is required")
	}
	if logger == nil {
		panic("logger is required")
	}
	p := &Processor{
		board:     board,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.initialColumn == "" {
		p.initialColumn = domain.ColumnToDo
		if !board.HasColumn(p.initialColumn) {
			p.initialColumn = board.Columns()[0]
		}
	}
	if !board.HasColumn(p.initialColumn) {
		return nil, fmt.Errorf("%w: initial column %q", domain.ErrInvalidColumn, p.initialColumn)
	}
	return p, nil
}

// InitialColumn is where new tasks land by default.
func (p *Processor) InitialColumn() string { return p.initialColumn }

// Create adds a task to the requested column, or the initial column when none is given.
func (p *Processor) Create(ctx context.Context, requestID string, req domain.CreateTask) (domain.Event, error) {
	return p.run(ctx, domain.CreateTaskCommand, requestID, req.Validate, func() (domain.Event, error) {
		column := req.TargetColumn(p.initialColumn)
		task, seq, err := p.board.ApplyCreate(column, req.Task())
		if err != nil {
			return domain.Event{}, err
		}
		return domain.Event{Seq: seq, Type: domain.TaskCreated, Task: &task, TaskID: task.ID, Column: column}, nil
	})
}

func (p *Processor) Update(ctx context.Context, requestID string, req domain.UpdateTask) (domain.Event, error) {
	return p.run(ctx, domain.UpdateTaskCommand, requestID, req.Validate, func() (domain.Event, error) {
		task, column, seq, err := p.board.ApplyUpdate(req.ID, req.Patch())
		if err != nil {
			return domain.Event{}, err
		}
		return domain.Event{Seq: seq, Type: domain.TaskUpdated, Task: &task, TaskID: task.ID, Column: column}, nil
	})
}

func (p *Processor) Move(ctx context.Context, requestID string, req domain.MoveTask) (domain.Event, error) {
	return p.run(ctx, domain.MoveTaskCommand, requestID, req.Validate, func() (domain.Event, error) {
		task, seq, err := p.board.ApplyMove(req.TaskID, req.FromColumn, req.ToColumn)
		if err != nil {
			return domain.Event{}, err
		}
		return domain.Event{
			Seq:        seq,
			Type:       domain.TaskMoved,
			Task:       &task,
			TaskID:     task.ID,
			Column:     req.ToColumn,
			FromColumn: req.FromColumn,
			ToColumn:   req.ToColumn,
		}, nil
	})
}

func (p *Processor) Delete(ctx context.Context, requestID string, req domain.DeleteTask) (domain.Event, error) {
	return p.run(ctx, domain.DeleteTaskCommand, requestID, req.Validate, func() (domain.Event, error) {
		task, seq, err := p.board.ApplyDelete(req.TaskID, req.Column)
		if err != nil {
			return domain.Event{}, err
		}
		return domain.Event{Seq: seq, Type: domain.TaskDeleted, TaskID: task.ID, Column: req.Column}, nil
	})
}

// Attach records an uploaded file on a task and broadcasts the updated task.
func (p *Processor) Attach(ctx context.Context, requestID string, req domain.AttachFile) (domain.Event, error) {
	return p.run(ctx, "task:attach", requestID, req.Validate, func() (domain.Event, error) {
		task, seq, err := p.board.ApplyAttach(req.TaskID, req.Column, req.Attachment)
		if err != nil {
			return domain.Event{}, err
		}
		return domain.Event{Seq: seq, Type: domain.TaskUpdated, Task: &task, TaskID: task.ID, Column: req.Column}, nil
	})
}

// Execute decodes a wire command and runs the matching mutation.
func (p *Processor) Execute(ctx context.Context, cmd domain.Command) (domain.Event, error) {
	switch cmd.Type {
	case domain.CreateTaskCommand:
		var req domain.CreateTask
		if err := decode(cmd, &req); err != nil {
			return domain.Event{}, err
		}
		return p.Create(ctx, cmd.RequestID, req)
	case domain.UpdateTaskCommand, domain.EditTaskCommand:
		var req domain.UpdateTask
		if err := decode(cmd, &req); err != nil {
			return domain.Event{}, err
		}
		return p.Update(ctx, cmd.RequestID, req)
	case domain.MoveTaskCommand:
		var req domain.MoveTask
		if err := decode(cmd, &req); err != nil {
			return domain.Event{}, err
		}
		return p.Move(ctx, cmd.RequestID, req)
	case domain.DeleteTaskCommand:
		var req domain.DeleteTask
		if err := decode(cmd, &req); err != nil {
			return domain.Event{}, err
		}
		return p.Delete(ctx, cmd.RequestID, req)
	default:
		return domain.Event{}, domain.Validationf("unknown command type %q", cmd.Type)
	}
}

func decode(cmd domain.Command, v any) error {
	if len(cmd.Data) == 0 {
		return domain.Validationf("%s requires data", cmd.Type)
	}
	if err := sonic.Unmarshal(cmd.Data, v); err != nil {
		return domain.Validationf("malformed %s payload: %v", cmd.Type, err)
	}
	return nil
}

func (p *Processor) run(ctx context.Context, kind, requestID string, validate func() error, apply func() (domain.Event, error)) (ev domain.Event, err error) {
	metrics, ctx := newMutationMetrics(ctx, p.logger, kind, requestID)
	defer func() { metrics.Finish(ev, err) }()

	if err = validate(); err != nil {
		metrics.SetStage("validate")
		return domain.Event{}, err
	}

	release, err := p.claim(ctx, requestID)
	if err != nil {
		metrics.SetStage("dedupe")
		return domain.Event{}, err
	}

	ev, err = apply()
	if err != nil {
		metrics.SetStage("apply")
		release()
		return domain.Event{}, err
	}

	ev.RequestID = requestID
	ev.Time = p.now().UnixMilli()
	p.publisher.Publish(ev)
	return ev, nil
}

// claim records requestID with the deduper. The returned func forgets it again
// so a rejected request can be retried.
func (p *Processor) claim(ctx context.Context, requestID string) (func(), error) {
	noop := func() {}
	if requestID == "" || p.deduper == nil {
		return noop, nil
	}
	added, err := p.deduper.Add(ctx, requestID)
	if err != nil {
		p.logger.WithError(err).WithField("request_id", requestID).Warn("dedupe unavailable, applying without idempotency")
		return noop, nil
	}
	if !added {
		return noop, fmt.Errorf("%w: %s", domain.ErrDuplicateRequest, requestID)
	}
	return func() {
		if rerr := p.deduper.Remove(context.WithoutCancel(ctx), requestID); rerr != nil {
			p.logger.WithError(rerr).WithField("request_id", requestID).Error("dedupe rollback failed")
		}
	}, nil
}
